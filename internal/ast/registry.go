package ast

import (
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/php"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// LanguageSpec lists the tree-sitter node type names the extractor
// recognizes for one language, grouped by the StructuralMetadata
// category they feed.
type LanguageSpec struct {
	Name       string
	Extensions []string

	FunctionTypes []string // function/method definitions
	ImportTypes   []string // import/include/use statements
	CallTypes     []string // call expressions
	ClassTypes    []string // class/struct/interface declarations

	IfTypes    []string
	WhileTypes []string
	ForTypes   []string
	TryTypes   []string
}

// LanguageRegistry maps file extensions and language names to grammars
// and extraction specs.
type LanguageRegistry struct {
	mu          sync.RWMutex
	specs       map[string]*LanguageSpec
	extToLang   map[string]string
	tsLanguages map[string]*sitter.Language
}

// NewLanguageRegistry builds a registry covering every grammar available
// in the dependency closure. Dart has no published smacker/go-tree-sitter
// grammar, so it is deliberately left unregistered: GetByExtension(".dart")
// returns (nil, false) and callers route it through the unsupported-
// language path rather than fabricate a binding.
func NewLanguageRegistry() *LanguageRegistry {
	r := &LanguageRegistry{
		specs:       make(map[string]*LanguageSpec),
		extToLang:   make(map[string]string),
		tsLanguages: make(map[string]*sitter.Language),
	}

	r.registerGo()
	r.registerPython()
	r.registerJavaScript()
	r.registerTypeScript()
	r.registerC()
	r.registerCPP()
	r.registerJava()
	r.registerPHP()
	r.registerRust()

	return r
}

func (r *LanguageRegistry) register(spec *LanguageSpec, tsLang *sitter.Language) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.specs[spec.Name] = spec
	r.tsLanguages[spec.Name] = tsLang
	for _, ext := range spec.Extensions {
		r.extToLang[ext] = spec.Name
	}
}

// GetByExtension looks up a language spec by file extension (with or
// without the leading dot).
func (r *LanguageRegistry) GetByExtension(ext string) (*LanguageSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	name, ok := r.extToLang[ext]
	if !ok {
		return nil, false
	}
	spec, ok := r.specs[name]
	return spec, ok
}

// GetByName looks up a language spec by name.
func (r *LanguageRegistry) GetByName(name string) (*LanguageSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[name]
	return spec, ok
}

// GetTreeSitterLanguage returns the grammar registered for a language name.
func (r *LanguageRegistry) GetTreeSitterLanguage(name string) (*sitter.Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lang, ok := r.tsLanguages[name]
	return lang, ok
}

// SupportedExtensions lists every registered file extension.
func (r *LanguageRegistry) SupportedExtensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.extToLang))
	for ext := range r.extToLang {
		exts = append(exts, ext)
	}
	return exts
}

func (r *LanguageRegistry) registerGo() {
	spec := &LanguageSpec{
		Name:          "go",
		Extensions:    []string{".go"},
		FunctionTypes: []string{"function_declaration", "method_declaration"},
		ImportTypes:   []string{"import_declaration"},
		CallTypes:     []string{"call_expression"},
		ClassTypes:    []string{}, // Go has no classes
		IfTypes:       []string{"if_statement"},
		ForTypes:      []string{"for_statement"},
	}
	r.register(spec, golang.GetLanguage())
}

func (r *LanguageRegistry) registerPython() {
	spec := &LanguageSpec{
		Name:          "python",
		Extensions:    []string{".py"},
		FunctionTypes: []string{"function_definition"},
		ImportTypes:   []string{"import_statement", "import_from_statement"},
		CallTypes:     []string{"call"},
		ClassTypes:    []string{"class_definition"},
		IfTypes:       []string{"if_statement"},
		WhileTypes:    []string{"while_statement"},
		ForTypes:      []string{"for_statement"},
		TryTypes:      []string{"try_statement"},
	}
	r.register(spec, python.GetLanguage())
}

func (r *LanguageRegistry) registerJavaScript() {
	spec := &LanguageSpec{
		Name:          "javascript",
		Extensions:    []string{".js", ".mjs", ".cjs", ".jsx"},
		FunctionTypes: []string{"function_declaration", "function", "method_definition", "arrow_function"},
		ImportTypes:   []string{"import_statement"},
		CallTypes:     []string{"call_expression"},
		ClassTypes:    []string{"class_declaration"},
		IfTypes:       []string{"if_statement"},
		WhileTypes:    []string{"while_statement"},
		ForTypes:      []string{"for_statement", "for_in_statement"},
		TryTypes:      []string{"try_statement"},
	}
	r.register(spec, javascript.GetLanguage())

	jsxSpec := *spec
	jsxSpec.Name = "jsx"
	jsxSpec.Extensions = []string{".jsx"}
	r.register(&jsxSpec, javascript.GetLanguage())
}

func (r *LanguageRegistry) registerTypeScript() {
	spec := &LanguageSpec{
		Name:          "typescript",
		Extensions:    []string{".ts"},
		FunctionTypes: []string{"function_declaration", "method_definition", "arrow_function"},
		ImportTypes:   []string{"import_statement"},
		CallTypes:     []string{"call_expression"},
		ClassTypes:    []string{"class_declaration", "interface_declaration"},
		IfTypes:       []string{"if_statement"},
		WhileTypes:    []string{"while_statement"},
		ForTypes:      []string{"for_statement", "for_in_statement"},
		TryTypes:      []string{"try_statement"},
	}
	r.register(spec, typescript.GetLanguage())

	tsxSpec := *spec
	tsxSpec.Name = "tsx"
	tsxSpec.Extensions = []string{".tsx"}
	r.register(&tsxSpec, tsx.GetLanguage())
}

func (r *LanguageRegistry) registerC() {
	spec := &LanguageSpec{
		Name:          "c",
		Extensions:    []string{".c", ".h"},
		FunctionTypes: []string{"function_definition"},
		ImportTypes:   []string{"preproc_include"},
		CallTypes:     []string{"call_expression"},
		ClassTypes:    []string{"struct_specifier"},
		IfTypes:       []string{"if_statement"},
		WhileTypes:    []string{"while_statement"},
		ForTypes:      []string{"for_statement"},
	}
	r.register(spec, c.GetLanguage())
}

func (r *LanguageRegistry) registerCPP() {
	spec := &LanguageSpec{
		Name:          "cpp",
		Extensions:    []string{".cc", ".cpp", ".cxx", ".hpp", ".hh"},
		FunctionTypes: []string{"function_definition"},
		ImportTypes:   []string{"preproc_include"},
		CallTypes:     []string{"call_expression"},
		ClassTypes:    []string{"class_specifier", "struct_specifier"},
		IfTypes:       []string{"if_statement"},
		WhileTypes:    []string{"while_statement"},
		ForTypes:      []string{"for_statement"},
		TryTypes:      []string{"try_statement"},
	}
	r.register(spec, cpp.GetLanguage())
}

func (r *LanguageRegistry) registerJava() {
	spec := &LanguageSpec{
		Name:          "java",
		Extensions:    []string{".java"},
		FunctionTypes: []string{"method_declaration", "constructor_declaration"},
		ImportTypes:   []string{"import_declaration"},
		CallTypes:     []string{"method_invocation"},
		ClassTypes:    []string{"class_declaration", "interface_declaration"},
		IfTypes:       []string{"if_statement"},
		WhileTypes:    []string{"while_statement"},
		ForTypes:      []string{"for_statement", "enhanced_for_statement"},
		TryTypes:      []string{"try_statement"},
	}
	r.register(spec, java.GetLanguage())
}

func (r *LanguageRegistry) registerPHP() {
	spec := &LanguageSpec{
		Name:          "php",
		Extensions:    []string{".php"},
		FunctionTypes: []string{"function_definition", "method_declaration"},
		ImportTypes:   []string{"namespace_use_declaration"},
		CallTypes:     []string{"function_call_expression"},
		ClassTypes:    []string{"class_declaration", "interface_declaration"},
		IfTypes:       []string{"if_statement"},
		WhileTypes:    []string{"while_statement"},
		ForTypes:      []string{"for_statement", "foreach_statement"},
		TryTypes:      []string{"try_statement"},
	}
	r.register(spec, php.GetLanguage())
}

func (r *LanguageRegistry) registerRust() {
	spec := &LanguageSpec{
		Name:          "rust",
		Extensions:    []string{".rs"},
		FunctionTypes: []string{"function_item"},
		ImportTypes:   []string{"use_declaration"},
		CallTypes:     []string{"call_expression"},
		ClassTypes:    []string{"struct_item", "enum_item"},
		IfTypes:       []string{"if_expression"},
		WhileTypes:    []string{"while_expression"},
		ForTypes:      []string{"for_expression"},
	}
	r.register(spec, rust.GetLanguage())
}

var defaultRegistry = NewLanguageRegistry()

// DefaultRegistry returns the package-wide registry shared by NewParser
// and NewAnalyzer.
func DefaultRegistry() *LanguageRegistry {
	return defaultRegistry
}
