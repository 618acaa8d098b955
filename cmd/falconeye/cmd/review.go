package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/falconeye/falconeye/internal/finding"
	"github.com/falconeye/falconeye/internal/index"
	"github.com/falconeye/falconeye/internal/projectid"
	"github.com/falconeye/falconeye/pkg/falconeye"
)

// defaultSystemPrompt frames the analysis when the caller supplies no
// language-specific prompt file.
const defaultSystemPrompt = `You are a security code reviewer. Analyze the code for genuine,
exploitable security vulnerabilities: injection, unsafe deserialization,
path traversal, command execution, authentication and authorization
flaws, secrets handling, and unsafe use of the language's dangerous
primitives. Reason about reachability and attacker-controlled data; do
not report stylistic issues. Respond with JSON:
{"reviews": [{"issue", "reasoning", "mitigation", "severity",
"confidence", "code_snippet", "cwe_id", "tags"}]}.
Respond {"reviews": []} if the code is clean.`

func newReviewCmd() *cobra.Command {
	var (
		language   string
		promptFile string
		projectID  string
		validate   bool
		topK       int
		jsonOut    bool
	)

	cmd := &cobra.Command{
		Use:   "review <file>",
		Short: "Analyze one file for security issues",
		Long: `Review reads a file, assembles a retrieval-augmented context from the
project's index, and asks the model for security findings.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			dir := filepath.Dir(target)

			cfg, err := loadConfig(dir)
			if err != nil {
				return err
			}

			app, err := falconeye.New(cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			if language == "" {
				language, err = index.DetectLanguage(target, cfg.Languages.Enabled)
				if err != nil {
					return err
				}
			}

			systemPrompt := defaultSystemPrompt
			if promptFile != "" {
				data, err := os.ReadFile(promptFile)
				if err != nil {
					return fmt.Errorf("failed to read prompt file: %w", err)
				}
				systemPrompt = string(data)
			}

			if projectID == "" {
				identity, err := projectid.Identify(dir, "")
				if err == nil {
					projectID = identity.ProjectID
				}
			}

			// The project-relative path keeps the target's own chunks out
			// of its retrieved context.
			relPath := filepath.Base(target)
			if project, err := app.Project(cmd.Context(), projectID); err == nil && project != nil {
				if rel, err := filepath.Rel(project.ProjectRoot, target); err == nil {
					relPath = filepath.ToSlash(rel)
				}
			}

			review, err := app.Review(cmd.Context(), falconeye.ReviewRequest{
				Path:         target,
				RelPath:      relPath,
				ProjectID:    projectID,
				Language:     language,
				SystemPrompt: systemPrompt,
				Validate:     validate || cfg.Analysis.ValidateFindings,
				TopKContext:  topK,
			})
			if err != nil {
				return fmt.Errorf("review failed: %w", err)
			}

			if jsonOut {
				return writeReviewJSON(cmd, review)
			}
			writeReviewText(cmd, review)
			return nil
		},
	}

	cmd.Flags().StringVarP(&language, "language", "l", "", "Language of the file (default: detect from extension)")
	cmd.Flags().StringVar(&promptFile, "prompt", "", "Path to a system prompt file")
	cmd.Flags().StringVar(&projectID, "project-id", "", "Project id whose index provides related context")
	cmd.Flags().BoolVar(&validate, "validate", false, "Run the second-pass validation over findings")
	cmd.Flags().IntVar(&topK, "top-k", 0, "Related code chunks to retrieve (0 = config default)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the review as JSON")
	return cmd
}

func writeReviewText(cmd *cobra.Command, review *finding.SecurityReview) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Review of %s (%s)\n", review.TargetPath, review.Language)
	if len(review.Findings) == 0 {
		fmt.Fprintln(out, "No findings.")
		return
	}
	fmt.Fprintf(out, "%d finding(s):\n\n", len(review.Findings))
	for i, f := range review.Findings {
		fmt.Fprintf(out, "%d. [%s/%s] %s\n", i+1, f.Severity, f.Confidence, f.Issue)
		if f.LineStart > 0 {
			fmt.Fprintf(out, "   Lines %d-%d\n", f.LineStart, f.LineEnd)
		}
		if f.CWEID != "" {
			fmt.Fprintf(out, "   %s\n", f.CWEID)
		}
		if f.Reasoning != "" {
			fmt.Fprintf(out, "   %s\n", f.Reasoning)
		}
		if f.Mitigation != "" {
			fmt.Fprintf(out, "   Mitigation: %s\n", f.Mitigation)
		}
		if f.CodeSnippet != "" {
			fmt.Fprintf(out, "%s\n", indent(f.CodeSnippet, "   "))
		}
		fmt.Fprintln(out)
	}
}

func writeReviewJSON(cmd *cobra.Command, review *finding.SecurityReview) error {
	type jsonFinding struct {
		ID          string   `json:"id"`
		Issue       string   `json:"issue"`
		Reasoning   string   `json:"reasoning,omitempty"`
		Mitigation  string   `json:"mitigation,omitempty"`
		Severity    string   `json:"severity"`
		Confidence  string   `json:"confidence"`
		FilePath    string   `json:"file_path"`
		CodeSnippet string   `json:"code_snippet,omitempty"`
		LineStart   int      `json:"line_start,omitempty"`
		LineEnd     int      `json:"line_end,omitempty"`
		CWEID       string   `json:"cwe_id,omitempty"`
		Tags        []string `json:"tags,omitempty"`
	}
	doc := struct {
		ID            string        `json:"id"`
		TargetPath    string        `json:"target_path"`
		Language      string        `json:"language"`
		StartedAt     string        `json:"started_at"`
		CompletedAt   string        `json:"completed_at,omitempty"`
		FilesAnalyzed int           `json:"files_analyzed"`
		Findings      []jsonFinding `json:"findings"`
	}{
		ID:            review.ID,
		TargetPath:    review.TargetPath,
		Language:      review.Language,
		StartedAt:     review.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
		FilesAnalyzed: review.FilesAnalyzed,
		Findings:      make([]jsonFinding, 0, len(review.Findings)),
	}
	if review.CompletedAt != nil {
		doc.CompletedAt = review.CompletedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	for _, f := range review.Findings {
		doc.Findings = append(doc.Findings, jsonFinding{
			ID: f.ID, Issue: f.Issue, Reasoning: f.Reasoning, Mitigation: f.Mitigation,
			Severity: string(f.Severity), Confidence: string(f.Confidence),
			FilePath: f.FilePath, CodeSnippet: f.CodeSnippet,
			LineStart: f.LineStart, LineEnd: f.LineEnd, CWEID: f.CWEID, Tags: f.Tags,
		})
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
