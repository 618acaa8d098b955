// Package review runs the single-file analysis pipeline: assemble
// context, ask the model, parse and locate findings, and optionally
// re-validate them with a second pass.
package review

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"

	ferrors "github.com/falconeye/falconeye/internal/errors"
	"github.com/falconeye/falconeye/internal/finding"
	"github.com/falconeye/falconeye/internal/llmgateway"
	"github.com/falconeye/falconeye/internal/logging"
	"github.com/falconeye/falconeye/internal/prompt"
)

// Request describes one file review.
type Request struct {
	// Path is the file to analyze.
	Path string
	// RelPath is the project-relative path used for retrieval
	// self-exclusion and finding attribution; defaults to Path.
	RelPath   string
	ProjectID string
	Language  string
	// SystemPrompt is the language-specific analysis instruction text,
	// supplied by the caller.
	SystemPrompt string
	// Validate runs the second-pass re-evaluation over any findings.
	Validate    bool
	TopKContext int
	TopKDocs    int
}

// Reviewer orchestrates assembly, analysis, and parsing.
type Reviewer struct {
	gateway   llmgateway.Gateway
	assembler *prompt.Assembler
	parser    *finding.Parser
	logger    *slog.Logger
}

// NewReviewer wires the pipeline.
func NewReviewer(gateway llmgateway.Gateway, assembler *prompt.Assembler, parser *finding.Parser) *Reviewer {
	return &Reviewer{
		gateway:   gateway,
		assembler: assembler,
		parser:    parser,
		logger:    slog.Default(),
	}
}

// ReviewFile analyzes one file and returns the completed review.
func (r *Reviewer) ReviewFile(ctx context.Context, req Request) (*finding.SecurityReview, error) {
	if req.RelPath == "" {
		req.RelPath = req.Path
	}

	data, err := os.ReadFile(req.Path)
	if err != nil {
		return nil, ferrors.IOError("failed to read file for review", err).
			WithDetail("file_path", req.Path)
	}
	code := strings.ToValidUTF8(string(data), "")

	rev := finding.NewReview(req.Path, req.Language)
	logger := logging.FromCtx(ctx, r.logger).With(
		slog.String("review_id", rev.ID),
		slog.String("file_path", req.Path))

	pc, err := r.assembler.Assemble(ctx, req.Path, code, req.Language, prompt.Options{
		ProjectID:    req.ProjectID,
		RelPath:      req.RelPath,
		TopKCode:     req.TopKContext,
		TopKDocs:     req.TopKDocs,
		AnalysisType: "review",
	})
	if err != nil {
		return nil, err
	}
	rendered := pc.FormatForAI()

	raw, err := r.gateway.AnalyzeCodeSecurity(ctx, rendered, req.SystemPrompt)
	if err != nil {
		return nil, err
	}

	findings := finding.Locate(r.parser.Parse(raw, req.RelPath), req.Path)
	for _, f := range findings {
		rev.AddFinding(f)
	}
	logger.Info("analysis complete", slog.Int("findings", len(rev.Findings)))

	if req.Validate && len(rev.Findings) > 0 {
		validated, err := r.validate(ctx, req, code, rendered, rev.Findings)
		if err != nil {
			// Validation is best-effort: keep the first-pass findings.
			logger.Warn("validation pass failed, keeping first-pass findings",
				slog.String("error", err.Error()))
		} else {
			rev.Findings = validated
			logger.Info("validation complete", slog.Int("findings", len(rev.Findings)))
		}
	}

	rev.FilesAnalyzed = 1
	rev.Complete()
	return rev, nil
}

// validate serializes the findings, asks the model to re-evaluate them,
// and re-parses the response into the surviving set.
func (r *Reviewer) validate(ctx context.Context, req Request, code, renderedContext string, findings []*finding.SecurityFinding) ([]*finding.SecurityFinding, error) {
	type wireFinding struct {
		Issue       string `json:"issue"`
		Reasoning   string `json:"reasoning"`
		CodeSnippet string `json:"code_snippet"`
		Severity    string `json:"severity"`
	}
	wire := make([]wireFinding, len(findings))
	for i, f := range findings {
		wire[i] = wireFinding{
			Issue:       f.Issue,
			Reasoning:   f.Reasoning,
			CodeSnippet: f.CodeSnippet,
			Severity:    string(f.Severity),
		}
	}
	findingsJSON, err := json.Marshal(wire)
	if err != nil {
		return nil, err
	}

	raw, err := r.gateway.ValidateFindings(ctx, code, string(findingsJSON), renderedContext)
	if err != nil {
		return nil, err
	}
	return finding.Locate(r.parser.Parse(raw, req.RelPath), req.Path), nil
}
