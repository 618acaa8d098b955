// Package prompt assembles the prompt-ready analysis context for a
// target file: its own code, structural metadata, and semantically
// related code and documentation retrieved by embedding search.
package prompt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/falconeye/falconeye/internal/ast"
	ferrors "github.com/falconeye/falconeye/internal/errors"
	"github.com/falconeye/falconeye/internal/llmgateway"
	"github.com/falconeye/falconeye/internal/vectorstore"
)

// PromptContext is everything the model gets to see for one target.
type PromptContext struct {
	FilePath     string
	CodeSnippet  string
	Language     string
	Structural   *ast.StructuralMetadata
	RelatedCode  string
	RelatedDocs  string
	OriginalFile string
	AnalysisType string
}

// Options tunes one assembly call.
type Options struct {
	ProjectID string
	// RelPath is the target's project-relative path, used to keep the
	// target's own chunks out of its related-code section.
	RelPath      string
	TopKCode     int
	TopKDocs     int
	OriginalFile string
	AnalysisType string
}

// Assembler gathers the pieces of a PromptContext. Retrieval and
// metadata failures degrade to empty sections; the assembler only
// errors on a caller-contract violation.
type Assembler struct {
	gateway  llmgateway.Gateway
	vectors  *vectorstore.Store
	metadata *vectorstore.MetadataStore
	logger   *slog.Logger
}

// NewAssembler wires the assembler's collaborators.
func NewAssembler(gateway llmgateway.Gateway, vectors *vectorstore.Store, metadata *vectorstore.MetadataStore) *Assembler {
	return &Assembler{
		gateway:  gateway,
		vectors:  vectors,
		metadata: metadata,
		logger:   slog.Default(),
	}
}

// overfetch is how many extra code neighbours are retrieved before the
// target's own chunks are filtered out.
const overfetch = 5

// Assemble builds the context for (filePath, code, language). The code
// is embedded once; the same vector drives both the code-neighbour and
// documentation searches.
func (a *Assembler) Assemble(ctx context.Context, filePath, code, language string, opts Options) (*PromptContext, error) {
	if a.gateway == nil {
		return nil, ferrors.ValidationError("assembler requires a gateway", nil)
	}
	if opts.AnalysisType == "" {
		opts.AnalysisType = "review"
	}

	pc := &PromptContext{
		FilePath:     filePath,
		CodeSnippet:  code,
		Language:     language,
		OriginalFile: opts.OriginalFile,
		AnalysisType: opts.AnalysisType,
	}

	if a.metadata != nil {
		meta, err := a.metadata.Get(opts.ProjectID, opts.RelPath)
		if err != nil {
			a.logger.Warn("structural metadata lookup failed",
				slog.String("file_path", filePath),
				slog.String("error", err.Error()))
		} else {
			pc.Structural = meta
		}
	}

	if a.vectors == nil || (opts.TopKCode <= 0 && opts.TopKDocs <= 0) {
		return pc, nil
	}

	embedding, err := a.gateway.Embed(ctx, code)
	if err != nil {
		a.logger.Warn("query embedding failed, continuing without retrieval",
			slog.String("file_path", filePath),
			slog.String("error", err.Error()))
		return pc, nil
	}

	if opts.TopKCode > 0 {
		pc.RelatedCode = a.relatedCode(ctx, embedding, filePath, opts)
	}
	if opts.TopKDocs > 0 {
		pc.RelatedDocs = a.relatedDocs(ctx, embedding, opts)
	}
	return pc, nil
}

func (a *Assembler) relatedCode(ctx context.Context, embedding []float32, filePath string, opts Options) string {
	collection := a.vectors.CollectionName(opts.ProjectID, vectorstore.KindCode)
	results, err := a.vectors.Search(ctx, collection, embedding, opts.TopKCode+overfetch, false)
	if err != nil {
		a.logger.Warn("related-code search failed",
			slog.String("collection", collection),
			slog.String("error", err.Error()))
		return ""
	}

	var parts []string
	for _, r := range results {
		path := r.Metadata["file_path"]
		if path == filePath || (opts.RelPath != "" && path == opts.RelPath) {
			continue
		}
		parts = append(parts, fmt.Sprintf("[Related Code %d] From %s:\n%s\n", len(parts)+1, path, r.Content))
		if len(parts) == opts.TopKCode {
			break
		}
	}
	return strings.Join(parts, "\n")
}

func (a *Assembler) relatedDocs(ctx context.Context, embedding []float32, opts Options) string {
	collection := a.vectors.CollectionName(opts.ProjectID, vectorstore.KindDocuments)
	results, err := a.vectors.Search(ctx, collection, embedding, opts.TopKDocs, false)
	if err != nil {
		a.logger.Warn("related-docs search failed",
			slog.String("collection", collection),
			slog.String("error", err.Error()))
		return ""
	}

	var parts []string
	for i, r := range results {
		docType := titleCase(strings.ReplaceAll(r.Metadata["document_type"], "_", " "))
		parts = append(parts, fmt.Sprintf("[Documentation %d] %s - %s:\n%s\n",
			i+1, docType, r.Metadata["file_path"], r.Content))
	}
	return strings.Join(parts, "\n")
}

// titleCase uppercases the first letter of each space-separated word.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// FormatForAI renders the context into the single prompt string sent to
// the model. The target code carries a line-number gutter so findings
// can reference exact lines.
func (pc *PromptContext) FormatForAI() string {
	parts := []string{
		"FILE: " + pc.FilePath,
		"LANGUAGE: " + pc.Language,
		"ANALYSIS TYPE: " + pc.AnalysisType,
		"",
		"CODE (with line numbers):",
		NumberLines(pc.CodeSnippet),
	}

	if pc.OriginalFile != "" {
		parts = append(parts, "", "ORIGINAL FILE (before changes):", pc.OriginalFile)
	}

	if pc.Structural != nil {
		parts = append(parts, "",
			"STRUCTURAL CONTEXT:",
			fmt.Sprintf("- Functions: %d", len(pc.Structural.Functions)),
			fmt.Sprintf("- Classes: %d", len(pc.Structural.Classes)),
			fmt.Sprintf("- Imports: %d", len(pc.Structural.Imports)),
			fmt.Sprintf("- Calls: %d", len(pc.Structural.Calls)))

		if len(pc.Structural.ControlFlow) > 0 {
			parts = append(parts, "", "CONTROL FLOW INFORMATION:")
			for _, cf := range pc.Structural.ControlFlow {
				line := fmt.Sprintf("- %s at line %d", cf.Kind, cf.Line)
				if cf.Condition != "" {
					line += ": " + cf.Condition
				}
				parts = append(parts, line)
			}
		}
	}

	if pc.RelatedCode != "" {
		parts = append(parts, "", "RELATED CODE (from semantic search):", pc.RelatedCode)
	}
	if pc.RelatedDocs != "" {
		parts = append(parts, "", "RELATED DOCUMENTATION (from semantic search):", pc.RelatedDocs)
	}
	return strings.Join(parts, "\n")
}

// NumberLines prefixes each line with a 1-based right-aligned line
// number gutter.
func NumberLines(code string) string {
	lines := strings.Split(code, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	var sb strings.Builder
	for i, line := range lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%4d | %s", i+1, line)
	}
	return sb.String()
}
