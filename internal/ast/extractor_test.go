package ast

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func analyze(t *testing.T, language string, source string) *StructuralMetadata {
	t.Helper()
	a := NewAnalyzer()
	defer a.Close()

	meta, err := a.AnalyzeLanguage(context.Background(), language, []byte(source))
	require.NoError(t, err)
	return meta
}

func TestExtract_Go_Functions(t *testing.T) {
	meta := analyze(t, "go", `package main

import "fmt"

func greet(name string) {
	fmt.Println(name)
}

type Server struct{}

func (s *Server) Start() error {
	return nil
}
`)

	require.Len(t, meta.Functions, 2)
	assert.Equal(t, "greet", meta.Functions[0].Name)
	assert.Equal(t, []string{"name"}, meta.Functions[0].Parameters)
	assert.Equal(t, "Start", meta.Functions[1].Name)

	require.Len(t, meta.Imports, 1)
	assert.Equal(t, "fmt", meta.Imports[0].Module)
	assert.False(t, meta.Imports[0].IsRelative)

	require.Len(t, meta.Calls, 1)
	assert.Contains(t, meta.Calls[0].Callee, "Println")
}

func TestExtract_Go_HasNoClasses(t *testing.T) {
	meta := analyze(t, "go", `package main

type Widget struct {
	Name string
}
`)
	assert.Empty(t, meta.Classes)
}

func TestExtract_Python_FunctionsAndDecorators(t *testing.T) {
	meta := analyze(t, "python", `import os
from .utils import helper

class Greeter:
    def __init__(self, name):
        self.name = name

    @staticmethod
    def shout(text):
        print(text)

if os.getenv("DEBUG"):
    print("debug")
`)

	require.Len(t, meta.Classes, 1)
	assert.Equal(t, "Greeter", meta.Classes[0].Name)
	assert.Contains(t, meta.Classes[0].Methods, "__init__")
	assert.Contains(t, meta.Classes[0].Methods, "shout")

	var shout *FunctionDef
	for i := range meta.Functions {
		if meta.Functions[i].Name == "shout" {
			shout = &meta.Functions[i]
		}
	}
	require.NotNil(t, shout, "expected to find decorated method 'shout'")
	assert.Equal(t, []string{"@staticmethod"}, shout.Decorators)

	require.Len(t, meta.Imports, 2)
	assert.True(t, meta.Imports[1].IsRelative, "from .utils import helper should be relative")

	require.Len(t, meta.ControlFlow, 1)
	assert.Equal(t, "if", meta.ControlFlow[0].Kind)
}

func TestExtract_JavaScript_ArrowFunctionAssignment(t *testing.T) {
	meta := analyze(t, "javascript", `const add = (a, b) => {
  return a + b;
};

class Widget extends Base {
  render() {}
}
`)

	var add *FunctionDef
	for i := range meta.Functions {
		if meta.Functions[i].Name == "add" {
			add = &meta.Functions[i]
		}
	}
	require.NotNil(t, add, "expected arrow function assigned to 'add' to be extracted")
	assert.ElementsMatch(t, []string{"a", "b"}, add.Parameters)

	require.Len(t, meta.Classes, 1)
	assert.Equal(t, "Widget", meta.Classes[0].Name)
	assert.Contains(t, meta.Classes[0].Bases, "Base")
}

func TestExtract_C_FunctionNameThroughPointerDeclarator(t *testing.T) {
	meta := analyze(t, "c", `#include <stdio.h>
#include "local.h"

char *make_greeting(char *name) {
    return name;
}
`)

	require.Len(t, meta.Functions, 1)
	assert.Equal(t, "make_greeting", meta.Functions[0].Name)

	require.Len(t, meta.Imports, 2)
	assert.False(t, meta.Imports[0].IsRelative, "<stdio.h> is a system include")
	assert.True(t, meta.Imports[1].IsRelative, "\"local.h\" is a project-relative include")
}

func TestExtract_Rust_FunctionAndStruct(t *testing.T) {
	meta := analyze(t, "rust", `use std::fmt;

struct Config {
    name: String,
}

fn build(name: String) -> Config {
    Config { name }
}
`)

	require.Len(t, meta.Functions, 1)
	assert.Equal(t, "build", meta.Functions[0].Name)

	require.Len(t, meta.Classes, 1)
	assert.Equal(t, "Config", meta.Classes[0].Name)

	require.Len(t, meta.Imports, 1)
	assert.Equal(t, "use std::fmt;", meta.Imports[0].Text)
}

func TestExtract_UnsupportedLanguage_ReturnsEmptyMetadata(t *testing.T) {
	a := NewAnalyzer()
	defer a.Close()

	meta, err := a.AnalyzeLanguage(context.Background(), "dart", []byte("void main() {}"))
	require.NoError(t, err)
	assert.Equal(t, UnknownLanguage, meta.Language)
	assert.Empty(t, meta.Functions)
}
