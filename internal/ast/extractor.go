package ast

import (
	"slices"
	"strings"
)

// nameNodeTypes lists, in priority order, the node types that hold a bare
// name identifier across the registered grammars. Checking them in order
// lets one generic lookup serve every language: a node only ever exposes
// one of these as a direct child for "the name".
var nameNodeTypes = []string{"identifier", "field_identifier", "type_identifier", "name", "property_identifier"}

func genericName(n *Node, source []byte) string {
	for _, t := range nameNodeTypes {
		if c := n.FindChildByType(t); c != nil {
			return c.GetContent(source)
		}
	}
	return ""
}

// cFunctionName recovers a C/C++ function's name from its declarator,
// which may be wrapped in pointer_declarator layers (e.g. "char *foo()").
// The declarator subtree is walked in source order, so its own identifier
// is found before any identifier belonging to the parameter list that
// follows it.
func cFunctionName(n *Node, source []byte) string {
	declarators := n.FindAllByType("function_declarator")
	if len(declarators) == 0 {
		return ""
	}
	ids := declarators[0].FindAllByType("identifier")
	if len(ids) == 0 {
		return ""
	}
	return ids[0].GetContent(source)
}

func isAsync(n *Node) bool {
	return n.FindChildByType("async") != nil
}

var paramContainerTypes = []string{"parameter_list", "parameters", "formal_parameters"}

func paramNames(n *Node, source []byte) []string {
	var container *Node
	for _, t := range paramContainerTypes {
		// Go method_declaration carries the receiver parameter_list before
		// the real parameter list, and a parenthesized result list may follow
		// it, so a method takes its second match and every other node its
		// first.
		if matches := n.FindChildrenByType(t); len(matches) > 0 {
			container = matches[0]
			if n.Type == "method_declaration" && len(matches) > 1 {
				container = matches[1]
			}
			break
		}
	}
	if container == nil {
		return nil
	}
	ids := container.FindAllByType("identifier")
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, id.GetContent(source))
	}
	return names
}

var stringLiteralTypes = []string{"string", "interpreted_string_literal", "raw_string_literal", "string_literal", "system_lib_string"}

func firstStringLiteral(n *Node) *Node {
	for _, t := range stringLiteralTypes {
		if matches := n.FindAllByType(t); len(matches) > 0 {
			return matches[0]
		}
	}
	return nil
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'<>")
	return s
}

func importIsRelative(language string, n *Node, module string) bool {
	switch language {
	case "python":
		return n.FindChildByType("relative_import") != nil || strings.HasPrefix(module, ".")
	case "javascript", "jsx", "typescript", "tsx":
		return strings.HasPrefix(module, ".")
	case "c", "cpp":
		// A quoted include ("foo.h") is project-relative; an angle-bracket
		// include (<foo.h>) is a system/library header.
		return len(n.FindAllByType("string_literal")) > 0
	default:
		return false
	}
}

var baseContainerTypes = []string{
	"argument_list", "class_heritage", "superclass", "super_interfaces",
	"base_class_clause", "base_clause", "class_interface_clause", "trait_list",
}

func baseNames(n *Node, source []byte) []string {
	var bases []string
	for _, t := range baseContainerTypes {
		for _, c := range n.FindChildrenByType(t) {
			for _, idType := range []string{"identifier", "type_identifier", "name", "scoped_type_identifier"} {
				for _, id := range c.FindAllByType(idType) {
					bases = append(bases, id.GetContent(source))
				}
			}
		}
	}
	return bases
}

func methodNames(classNode *Node, spec *LanguageSpec, source []byte) []string {
	var methods []string
	for _, t := range spec.FunctionTypes {
		for _, m := range classNode.FindAllByType(t) {
			if m == classNode {
				continue
			}
			if name := genericName(m, source); name != "" {
				methods = append(methods, name)
			}
		}
	}
	return methods
}

var conditionSkipTypes = map[string]bool{
	"if": true, "else": true, "while": true, "for": true, "try": true,
	"catch": true, "finally": true, "block": true, "compound_statement": true,
	"(": true, ")": true, "{": true, "}": true, ";": true,
}

func conditionText(n *Node, source []byte) string {
	if pe := n.FindChildByType("parenthesized_expression"); pe != nil {
		return strings.Trim(strings.TrimSpace(pe.GetContent(source)), "()")
	}
	if c := n.FindChildByType("condition_clause"); c != nil {
		return strings.TrimSpace(c.GetContent(source))
	}
	for _, c := range n.Children {
		if conditionSkipTypes[c.Type] {
			continue
		}
		return strings.TrimSpace(c.GetContent(source))
	}
	return ""
}

// jsFunctionExpressionTypes are the node types assignable to a variable
// that the extractor treats as anonymous functions worth recording, e.g.
// "const handler = async (req) => {}".
var jsFunctionExpressionTypes = []string{"arrow_function", "function", "function_expression"}

func isJSLanguage(language string) bool {
	switch language {
	case "javascript", "jsx", "typescript", "tsx":
		return true
	}
	return false
}

// Extract walks tree and builds the StructuralMetadata for it using spec's
// node-type tables. Extraction is intentionally best-effort: a grammar
// quirk that defeats one of the generic heuristics above drops that one
// symbol rather than failing the whole file.
func Extract(tree *Tree, spec *LanguageSpec) *StructuralMetadata {
	meta := &StructuralMetadata{Language: tree.Language}
	source := tree.Source

	// decoratorsFor records the decorator texts attached to a given
	// function/class node by its enclosing decorated_definition, so the
	// generic dispatch below can attach them without short-circuiting the
	// walk (which would otherwise skip everything nested inside — calls,
	// control flow, even further decorated definitions).
	decoratorsFor := make(map[*Node][]string)

	tree.Root.Walk(func(n *Node) bool {
		switch {
		case n.Type == "decorated_definition":
			decorators := decoratorTexts(n, source)
			for _, child := range n.Children {
				if slices.Contains(spec.FunctionTypes, child.Type) || slices.Contains(spec.ClassTypes, child.Type) {
					decoratorsFor[child] = decorators
				}
			}

		case slices.Contains(spec.FunctionTypes, n.Type):
			fn := extractFunction(n, spec, source)
			fn.Decorators = decoratorsFor[n]
			meta.Functions = append(meta.Functions, fn)

		case isJSLanguage(tree.Language) && (n.Type == "lexical_declaration" || n.Type == "variable_declaration"):
			if fn, ok := extractJSVariableFunction(n, source); ok {
				meta.Functions = append(meta.Functions, fn)
			}

		case slices.Contains(spec.ImportTypes, n.Type):
			meta.Imports = append(meta.Imports, extractImport(n, tree.Language, source))

		case slices.Contains(spec.CallTypes, n.Type):
			meta.Calls = append(meta.Calls, extractCall(n, source))

		case slices.Contains(spec.ClassTypes, n.Type):
			meta.Classes = append(meta.Classes, extractClass(n, spec, source))

		case slices.Contains(spec.IfTypes, n.Type):
			meta.ControlFlow = append(meta.ControlFlow, ControlFlowNode{Kind: "if", Line: n.Line(), Condition: conditionText(n, source)})

		case slices.Contains(spec.WhileTypes, n.Type):
			meta.ControlFlow = append(meta.ControlFlow, ControlFlowNode{Kind: "while", Line: n.Line(), Condition: conditionText(n, source)})

		case slices.Contains(spec.ForTypes, n.Type):
			meta.ControlFlow = append(meta.ControlFlow, ControlFlowNode{Kind: "for", Line: n.Line(), Condition: conditionText(n, source)})

		case slices.Contains(spec.TryTypes, n.Type):
			meta.ControlFlow = append(meta.ControlFlow, ControlFlowNode{Kind: "try", Line: n.Line()})
		}

		return true
	})

	return meta
}

func extractFunction(n *Node, spec *LanguageSpec, source []byte) FunctionDef {
	var name string
	if spec.Name == "c" || spec.Name == "cpp" {
		name = cFunctionName(n, source)
	} else {
		name = genericName(n, source)
	}
	return FunctionDef{
		Name:       name,
		Line:       n.Line(),
		Parameters: paramNames(n, source),
		IsAsync:    isAsync(n),
	}
}

func extractJSVariableFunction(n *Node, source []byte) (FunctionDef, bool) {
	for _, declarator := range n.FindChildrenByType("variable_declarator") {
		var name string
		var fnNode *Node
		for _, child := range declarator.Children {
			if child.Type == "identifier" {
				name = child.GetContent(source)
			}
			if slices.Contains(jsFunctionExpressionTypes, child.Type) {
				fnNode = child
			}
		}
		if name != "" && fnNode != nil {
			return FunctionDef{
				Name:       name,
				Line:       n.Line(),
				Parameters: paramNames(fnNode, source),
				IsAsync:    isAsync(fnNode),
			}, true
		}
	}
	return FunctionDef{}, false
}

func decoratorTexts(n *Node, source []byte) []string {
	var decorators []string
	for _, d := range n.FindChildrenByType("decorator") {
		decorators = append(decorators, strings.TrimSpace(d.GetContent(source)))
	}
	return decorators
}

func extractImport(n *Node, language string, source []byte) ImportStmt {
	text := n.GetContent(source)
	module := ""
	if lit := firstStringLiteral(n); lit != nil {
		module = unquote(lit.GetContent(source))
	}

	var names []string
	for _, t := range []string{"import_clause", "named_imports", "import_spec_list"} {
		if clause := n.FindChildByType(t); clause != nil {
			for _, id := range clause.FindAllByType("identifier") {
				names = append(names, id.GetContent(source))
			}
			break
		}
	}

	return ImportStmt{
		Text:          strings.TrimSpace(text),
		Line:          n.Line(),
		Module:        module,
		ImportedNames: names,
		IsRelative:    importIsRelative(language, n, module),
	}
}

func extractCall(n *Node, source []byte) CallExpr {
	callee := ""
	if len(n.Children) > 0 {
		callee = n.Children[0].GetContent(source)
	}
	return CallExpr{Callee: callee, Line: n.Line()}
}

func extractClass(n *Node, spec *LanguageSpec, source []byte) ClassDef {
	return ClassDef{
		Name:    genericName(n, source),
		Line:    n.Line(),
		Bases:   baseNames(n, source),
		Methods: methodNames(n, spec, source),
	}
}
