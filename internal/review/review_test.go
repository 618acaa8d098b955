package review

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/falconeye/falconeye/internal/errors"
	"github.com/falconeye/falconeye/internal/finding"
	"github.com/falconeye/falconeye/internal/prompt"
)

// fakeGateway scripts the chat responses and records the prompts.
type fakeGateway struct {
	analyzeResponse  string
	validateResponse string
	analyzeErr       error
	validateErr      error

	analyzeCalls  int
	validateCalls int
	lastContext   string
	lastSystem    string
	lastFindings  string
}

func (f *fakeGateway) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (f *fakeGateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (f *fakeGateway) AnalyzeCodeSecurity(ctx context.Context, contextText, systemPrompt string) (string, error) {
	f.analyzeCalls++
	f.lastContext = contextText
	f.lastSystem = systemPrompt
	return f.analyzeResponse, f.analyzeErr
}

func (f *fakeGateway) ValidateFindings(ctx context.Context, code, findingsJSON, contextText string) (string, error) {
	f.validateCalls++
	f.lastFindings = findingsJSON
	return f.validateResponse, f.validateErr
}

func (f *fakeGateway) CountTokens(text string) int         { return len(text) / 4 }
func (f *fakeGateway) HealthCheck(ctx context.Context) bool { return true }
func (f *fakeGateway) Dimensions() int                      { return 2 }
func (f *fakeGateway) Close() error                         { return nil }

func writeTarget(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "target.py")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newReviewer(t *testing.T, gw *fakeGateway) *Reviewer {
	t.Helper()
	assembler := prompt.NewAssembler(gw, nil, nil)
	parser := finding.NewParser(filepath.Join(t.TempDir(), "failed_responses"))
	return NewReviewer(gw, assembler, parser)
}

func TestReviewFileProducesLocatedFindings(t *testing.T) {
	path := writeTarget(t, "def f(x):\n    return eval(x)\n")
	gw := &fakeGateway{
		analyzeResponse: `{"reviews":[{"issue":"Arbitrary code execution","severity":"critical","confidence":0.95,"code_snippet":"    return eval(x)"}]}`,
	}
	r := newReviewer(t, gw)

	rev, err := r.ReviewFile(context.Background(), Request{
		Path:         path,
		Language:     "python",
		SystemPrompt: "analyze for security issues",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, rev.FilesAnalyzed)
	assert.NotNil(t, rev.CompletedAt)
	require.Len(t, rev.Findings, 1)

	f := rev.Findings[0]
	assert.Equal(t, "Arbitrary code execution", f.Issue)
	assert.Equal(t, finding.SeverityCritical, f.Severity)
	assert.Equal(t, 2, f.LineStart)
	assert.Equal(t, 2, f.LineEnd)

	// The rendered context carries the numbered target code.
	assert.Contains(t, gw.lastContext, "   2 |     return eval(x)")
	assert.Equal(t, "analyze for security issues", gw.lastSystem)
}

func TestReviewFileValidationReplacesFindings(t *testing.T) {
	path := writeTarget(t, "x = input()\nrun(x)\n")
	gw := &fakeGateway{
		analyzeResponse:  `{"reviews":[{"issue":"A"},{"issue":"B"}]}`,
		validateResponse: `{"reviews":[{"issue":"A"}]}`,
	}
	r := newReviewer(t, gw)

	rev, err := r.ReviewFile(context.Background(), Request{
		Path: path, Language: "python", Validate: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, gw.validateCalls)
	require.Len(t, rev.Findings, 1)
	assert.Equal(t, "A", rev.Findings[0].Issue)
	assert.Contains(t, gw.lastFindings, `"issue":"A"`)
	assert.Contains(t, gw.lastFindings, `"issue":"B"`)
}

func TestReviewFileValidationSkippedWhenNoFindings(t *testing.T) {
	path := writeTarget(t, "pass\n")
	gw := &fakeGateway{analyzeResponse: `{"reviews": []}`}
	r := newReviewer(t, gw)

	rev, err := r.ReviewFile(context.Background(), Request{
		Path: path, Language: "python", Validate: true,
	})
	require.NoError(t, err)
	assert.Empty(t, rev.Findings)
	assert.Equal(t, 0, gw.validateCalls)
}

func TestReviewFileValidationFailureKeepsFirstPass(t *testing.T) {
	path := writeTarget(t, "pass\n")
	gw := &fakeGateway{
		analyzeResponse: `{"reviews":[{"issue":"A"}]}`,
		validateErr:     ferrors.NetworkError("down", nil),
	}
	r := newReviewer(t, gw)

	rev, err := r.ReviewFile(context.Background(), Request{
		Path: path, Language: "python", Validate: true,
	})
	require.NoError(t, err)
	require.Len(t, rev.Findings, 1)
	assert.Equal(t, "A", rev.Findings[0].Issue)
}

func TestReviewFileMissingFile(t *testing.T) {
	r := newReviewer(t, &fakeGateway{})
	_, err := r.ReviewFile(context.Background(), Request{Path: "/does/not/exist.py"})
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryIO, ferrors.GetCategory(err))
}

func TestReviewFileUnparseableResponseCompletesEmpty(t *testing.T) {
	path := writeTarget(t, "pass\n")
	gw := &fakeGateway{analyzeResponse: "no json here whatsoever"}
	r := newReviewer(t, gw)

	rev, err := r.ReviewFile(context.Background(), Request{Path: path, Language: "python"})
	require.NoError(t, err)
	assert.Empty(t, rev.Findings)
	assert.NotNil(t, rev.CompletedAt)
}
