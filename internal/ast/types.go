// Package ast extracts per-file structural metadata — functions, imports,
// calls, classes, and control-flow markers — from source text via
// tree-sitter, selected by a file-extension-to-language registry.
package ast

// Point is a 0-indexed row/column position in source text.
type Point struct {
	Row    uint32
	Column uint32
}

// Node is a tree-sitter parse tree node, stripped down to what the
// extractors need: type, span, and children.
type Node struct {
	Type       string
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	Children   []*Node
	HasError   bool
}

// Tree is a parsed file.
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
}

// GetContent returns the source slice spanned by n.
func (n *Node) GetContent(source []byte) string {
	if n == nil || n.StartByte >= n.EndByte || int(n.EndByte) > len(source) {
		return ""
	}
	return string(source[n.StartByte:n.EndByte])
}

// FindChildByType returns the first direct child with the given type.
func (n *Node) FindChildByType(nodeType string) *Node {
	for _, child := range n.Children {
		if child.Type == nodeType {
			return child
		}
	}
	return nil
}

// FindChildrenByType returns every direct child with the given type.
func (n *Node) FindChildrenByType(nodeType string) []*Node {
	var result []*Node
	for _, child := range n.Children {
		if child.Type == nodeType {
			result = append(result, child)
		}
	}
	return result
}

// FindAllByType recursively collects every node in the subtree (including
// n itself) with the given type.
func (n *Node) FindAllByType(nodeType string) []*Node {
	var result []*Node
	if n.Type == nodeType {
		result = append(result, n)
	}
	for _, child := range n.Children {
		result = append(result, child.FindAllByType(nodeType)...)
	}
	return result
}

// Walk traverses the subtree depth-first, calling fn for each node. fn
// returning false stops descent into that node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, child := range n.Children {
		child.Walk(fn)
	}
}

// Line is StartPoint.Row converted to 1-based.
func (n *Node) Line() int {
	return int(n.StartPoint.Row) + 1
}

// StructuralMetadata is everything the analyzer recovers from one file.
// An unsupported language yields a zero-value StructuralMetadata with
// Language set to "unknown".
type StructuralMetadata struct {
	Language    string
	Functions   []FunctionDef
	Imports     []ImportStmt
	Calls       []CallExpr
	Classes     []ClassDef
	ControlFlow []ControlFlowNode
}

// FunctionDef is a function or method definition.
type FunctionDef struct {
	Name       string
	Line       int
	Parameters []string
	IsAsync    bool
	Decorators []string
}

// ImportStmt is an import/include/use statement.
type ImportStmt struct {
	Text          string
	Line          int
	Module        string
	ImportedNames []string
	IsRelative    bool
}

// CallExpr is a function or method call site.
type CallExpr struct {
	Callee string
	Line   int
}

// ClassDef is a class, struct, or interface declaration.
type ClassDef struct {
	Name    string
	Line    int
	Bases   []string
	Methods []string
}

// ControlFlowNode is an if/while/for/try node.
type ControlFlowNode struct {
	Kind      string // "if", "while", "for", "try"
	Line      int
	Condition string
}

// UnknownLanguage is the Language value for files whose extension maps to
// no registered grammar.
const UnknownLanguage = "unknown"
