package ast

import "context"

// Analyzer ties a Parser to the registry that selects its grammar per file.
type Analyzer struct {
	parser   *Parser
	registry *LanguageRegistry
}

// NewAnalyzer builds an Analyzer against the default language registry.
func NewAnalyzer() *Analyzer {
	registry := DefaultRegistry()
	return &Analyzer{parser: NewParserWithRegistry(registry), registry: registry}
}

// Close releases the underlying tree-sitter parser.
func (a *Analyzer) Close() {
	a.parser.Close()
}

// AnalyzeFile extracts StructuralMetadata for source given its file
// extension. An extension with no registered grammar (including ".dart",
// which has no published smacker/go-tree-sitter binding) returns an empty
// StructuralMetadata with Language "unknown" and a nil error — this is
// the expected unsupported-language path, not a failure.
//
// A parse error is returned to the caller rather than swallowed, so the
// indexing orchestrator can log it at warning level and skip the file
// without aborting the run, per the failure policy for this stage.
func (a *Analyzer) AnalyzeFile(ctx context.Context, ext string, source []byte) (*StructuralMetadata, error) {
	spec, ok := a.registry.GetByExtension(ext)
	if !ok {
		return &StructuralMetadata{Language: UnknownLanguage}, nil
	}
	return a.AnalyzeLanguage(ctx, spec.Name, source)
}

// AnalyzeLanguage extracts StructuralMetadata for source under an explicit
// language name (bypassing extension lookup).
func (a *Analyzer) AnalyzeLanguage(ctx context.Context, language string, source []byte) (*StructuralMetadata, error) {
	spec, ok := a.registry.GetByName(language)
	if !ok {
		return &StructuralMetadata{Language: UnknownLanguage}, nil
	}

	tree, err := a.parser.Parse(ctx, source, language)
	if err != nil {
		return nil, err
	}

	return Extract(tree, spec), nil
}
