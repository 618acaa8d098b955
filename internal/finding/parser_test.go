package finding

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestParser(t *testing.T) *Parser {
	t.Helper()
	return NewParser(filepath.Join(t.TempDir(), "failed_responses"))
}

func TestParseBareJSONObject(t *testing.T) {
	p := newTestParser(t)
	findings := p.Parse(`{"reviews":[{"issue":"SQL injection","severity":"critical","confidence":0.95}]}`, "a.py")
	require.Len(t, findings, 1)
	assert.Equal(t, "SQL injection", findings[0].Issue)
	assert.Equal(t, SeverityCritical, findings[0].Severity)
	assert.Equal(t, ConfidenceHigh, findings[0].Confidence)
	assert.Equal(t, "a.py", findings[0].FilePath)
	assert.NotEmpty(t, findings[0].ID)
}

func TestParseFencedJSONWithProse(t *testing.T) {
	p := newTestParser(t)
	raw := "Here are the findings:\n```json\n{\"reviews\":[{\"issue\":\"X\",\"severity\":\"high\",\"confidence\":0.9}]}\n```\nHope this helps."
	findings := p.Parse(raw, "a.py")
	require.Len(t, findings, 1)
	assert.Equal(t, "X", findings[0].Issue)
	assert.Equal(t, SeverityHigh, findings[0].Severity)
	assert.Equal(t, ConfidenceHigh, findings[0].Confidence)
}

func TestParsePlainFence(t *testing.T) {
	p := newTestParser(t)
	raw := "```\n{\"reviews\":[{\"issue\":\"Y\"}]}\n```"
	findings := p.Parse(raw, "a.py")
	require.Len(t, findings, 1)
	assert.Equal(t, "Y", findings[0].Issue)
}

func TestParseJSONEmbeddedInProse(t *testing.T) {
	p := newTestParser(t)
	raw := `After careful analysis I found: {"reviews":[{"issue":"Z","severity":"low"}]} as described above.`
	findings := p.Parse(raw, "a.py")
	require.Len(t, findings, 1)
	assert.Equal(t, "Z", findings[0].Issue)
	assert.Equal(t, SeverityLow, findings[0].Severity)
}

func TestParseWindowsPaths(t *testing.T) {
	p := newTestParser(t)
	raw := `{"reviews":[{"issue":"Path traversal","reasoning":"writes to C:\Users\admin","severity":"high"}]}`
	findings := p.Parse(raw, "a.py")
	require.Len(t, findings, 1)
	assert.Contains(t, findings[0].Reasoning, `C:\Users\admin`)
}

func TestParseTrailingComma(t *testing.T) {
	p := newTestParser(t)
	raw := `{"reviews":[{"issue":"A","severity":"medium",}]}`
	findings := p.Parse(raw, "a.py")
	require.Len(t, findings, 1)
	assert.Equal(t, "A", findings[0].Issue)
}

func TestParseTrailingProseAfterClose(t *testing.T) {
	p := newTestParser(t)
	raw := "```json\n{\"reviews\":[{\"issue\":\"B\"}]}\nLet me know if you need more detail."
	findings := p.Parse(raw, "a.py")
	require.Len(t, findings, 1)
	assert.Equal(t, "B", findings[0].Issue)
}

func TestParseBareArray(t *testing.T) {
	p := newTestParser(t)
	findings := p.Parse(`[{"issue":"C"},{"issue":"D"}]`, "a.py")
	require.Len(t, findings, 2)
	assert.Equal(t, "C", findings[0].Issue)
	assert.Equal(t, "D", findings[1].Issue)
}

func TestParseEmptyResponse(t *testing.T) {
	p := newTestParser(t)
	assert.Empty(t, p.Parse("", "a.py"))
	assert.Empty(t, p.Parse("   \n  ", "a.py"))
}

func TestParseNoFindings(t *testing.T) {
	p := newTestParser(t)
	assert.Empty(t, p.Parse(`{"reviews": []}`, "a.py"))
}

func TestParseIrrecoverableWritesDiagnostics(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "failed_responses")
	p := NewParser(dir)

	findings := p.Parse("this is not json at all, and has no braces", "a.py")
	assert.Empty(t, findings)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), "this is not json at all")
	assert.Contains(t, string(data), "a.py")
}

func TestParseSkipsMalformedEntries(t *testing.T) {
	p := newTestParser(t)
	findings := p.Parse(`{"reviews":[{"issue":"ok"},"not an object",42]}`, "a.py")
	require.Len(t, findings, 1)
	assert.Equal(t, "ok", findings[0].Issue)
}

func TestParseDefaults(t *testing.T) {
	p := newTestParser(t)
	findings := p.Parse(`{"reviews":[{}]}`, "a.py")
	require.Len(t, findings, 1)
	assert.Equal(t, "Unknown issue", findings[0].Issue)
	assert.Equal(t, SeverityMedium, findings[0].Severity)
	assert.Equal(t, ConfidenceMedium, findings[0].Confidence)
}

func TestParseTagsAndSpans(t *testing.T) {
	p := newTestParser(t)
	findings := p.Parse(`{"reviews":[{"issue":"E","line_start":3,"line_end":5,"cwe_id":"CWE-78","tags":["injection","cli"]}]}`, "a.py")
	require.Len(t, findings, 1)
	assert.Equal(t, 3, findings[0].LineStart)
	assert.Equal(t, 5, findings[0].LineEnd)
	assert.Equal(t, "CWE-78", findings[0].CWEID)
	assert.Equal(t, []string{"injection", "cli"}, findings[0].Tags)
}

func TestRepairJSONInvalidEscape(t *testing.T) {
	repaired := RepairJSON(`{"a":"bad \q escape"}`)
	assert.Equal(t, `{"a":"bad \\q escape"}`, repaired)
}

func TestRepairJSONKeepsValidEscapes(t *testing.T) {
	in := `{"a":"line\nbreak \"quoted\" \u00e9"}`
	assert.Equal(t, in, RepairJSON(in))
}

func TestRepairJSONMalformedUnicodeEscape(t *testing.T) {
	repaired := RepairJSON(`{"a":"\uXYZ1"}`)
	assert.Equal(t, `{"a":"\\uXYZ1"}`, repaired)
}

func TestConfidenceBuckets(t *testing.T) {
	assert.Equal(t, ConfidenceHigh, ConfidenceFromScore(0.8))
	assert.Equal(t, ConfidenceHigh, ConfidenceFromScore(1.0))
	assert.Equal(t, ConfidenceMedium, ConfidenceFromScore(0.5))
	assert.Equal(t, ConfidenceMedium, ConfidenceFromScore(0.79))
	assert.Equal(t, ConfidenceLow, ConfidenceFromScore(0.49))
	assert.Equal(t, ConfidenceLow, ConfidenceFromScore(0))
}

func TestParseSeverityDefaultsToMedium(t *testing.T) {
	assert.Equal(t, SeverityMedium, ParseSeverity("bogus"))
	assert.Equal(t, SeverityCritical, ParseSeverity("critical"))
}
