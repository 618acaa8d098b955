package finding

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Parser decodes the model's raw responses into findings. On an
// irrecoverable response it writes the raw text to the diagnostics
// directory and returns an empty list instead of failing the review.
type Parser struct {
	// DiagnosticsDir receives failed raw responses; empty disables the
	// dump.
	DiagnosticsDir string
	logger         *slog.Logger
}

// NewParser returns a parser writing diagnostics under diagnosticsDir.
func NewParser(diagnosticsDir string) *Parser {
	return &Parser{DiagnosticsDir: diagnosticsDir, logger: slog.Default()}
}

// Parse extracts findings from a raw model response. It never returns an
// error: malformed entries are skipped, and a fully unparseable response
// yields an empty list after dumping the raw text for diagnosis.
func (p *Parser) Parse(raw, filePath string) []*SecurityFinding {
	reviews, err := p.extract(raw)
	if err != nil {
		p.dumpFailedResponse(raw, filePath, err)
		p.logger.Error("failed to parse model response",
			slog.String("file_path", filePath),
			slog.String("error", err.Error()))
		return nil
	}

	var findings []*SecurityFinding
	for _, entry := range reviews {
		obj, ok := entry.(map[string]any)
		if !ok {
			p.logger.Warn("skipping malformed finding entry",
				slog.String("file_path", filePath))
			continue
		}
		findings = append(findings, buildFinding(obj, filePath))
	}
	return findings
}

// extract pulls the reviews list out of the response using the fenced /
// balanced / whole-body strategies in order.
func (p *Parser) extract(raw string) ([]any, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, nil
	}

	var body string
	switch {
	case strings.Contains(text, "```json"):
		start := strings.Index(text, "```json") + len("```json")
		body = fenceBody(text, start)
	case strings.Contains(text, "```"):
		start := strings.Index(text, "```") + len("```")
		body = fenceBody(text, start)
	default:
		if slice := balancedSlice(text); slice != "" {
			body = slice
		} else {
			body = text
		}
	}

	parsed, err := parseWithRepair(body)
	if err != nil {
		return nil, err
	}
	return reviewsOf(parsed), nil
}

// fenceBody returns the text between start and the next fence marker, or
// to the end when the closing fence is missing (truncated responses).
func fenceBody(text string, start int) string {
	rest := text[start:]
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

// parseWithRepair tries the body as-is, then once more after the repair
// pass.
func parseWithRepair(body string) (any, error) {
	var parsed any
	if err := json.Unmarshal([]byte(body), &parsed); err == nil {
		return parsed, nil
	}
	repaired := RepairJSON(body)
	var parsed2 any
	if err := json.Unmarshal([]byte(repaired), &parsed2); err != nil {
		return nil, fmt.Errorf("response is not valid JSON after repair: %w", err)
	}
	return parsed2, nil
}

// reviewsOf normalizes the parsed document: an object's "reviews" list,
// or the document itself when it is a bare array.
func reviewsOf(parsed any) []any {
	switch v := parsed.(type) {
	case map[string]any:
		if reviews, ok := v["reviews"].([]any); ok {
			return reviews
		}
		return nil
	case []any:
		return v
	default:
		return nil
	}
}

// buildFinding normalizes one review object. Missing fields get their
// documented defaults.
func buildFinding(obj map[string]any, filePath string) *SecurityFinding {
	f := NewFinding()
	f.FilePath = filePath
	f.Issue = stringField(obj, "issue", "Unknown issue")
	f.Reasoning = stringField(obj, "reasoning", "")
	f.Mitigation = stringField(obj, "mitigation", "")
	f.Severity = ParseSeverity(strings.ToLower(stringField(obj, "severity", "medium")))
	f.Confidence = ConfidenceFromScore(floatField(obj, "confidence", 0.7))
	f.CodeSnippet = stringField(obj, "code_snippet", "")
	f.CWEID = stringField(obj, "cwe_id", "")
	f.LineStart = intField(obj, "line_start")
	f.LineEnd = intField(obj, "line_end")

	if tags, ok := obj["tags"].([]any); ok {
		for _, t := range tags {
			if s, ok := t.(string); ok {
				f.Tags = append(f.Tags, s)
			}
		}
	}
	return f
}

func stringField(obj map[string]any, key, fallback string) string {
	if s, ok := obj[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

func floatField(obj map[string]any, key string, fallback float64) float64 {
	if v, ok := obj[key].(float64); ok {
		return v
	}
	return fallback
}

func intField(obj map[string]any, key string) int {
	if v, ok := obj[key].(float64); ok {
		return int(v)
	}
	return 0
}

// balancedSlice returns the first balanced {...} or [...] region of
// text, honoring strings and escapes, or "" when none closes.
func balancedSlice(text string) string {
	start := -1
	for i := 0; i < len(text); i++ {
		if text[i] == '{' || text[i] == '[' {
			start = i
			break
		}
	}
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

var (
	windowsPathPattern   = regexp.MustCompile(`([A-Z]):\\`)
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// RepairJSON applies the recovery passes for the malformed-but-salvageable
// responses models produce: invalid escape sequences inside strings,
// un-doubled Windows drive paths, trailing commas, and trailing prose
// after the final close.
func RepairJSON(text string) string {
	text = windowsPathPattern.ReplaceAllString(text, `$1:\\`)
	text = fixEscapeSequences(text)
	text = trailingCommaPattern.ReplaceAllString(text, `$1`)
	return trimAfterClose(strings.TrimSpace(text))
}

// validEscapes are the characters that may legally follow a backslash in
// a JSON string, besides the u of \uXXXX.
var validEscapes = map[byte]bool{
	'"': true, '\\': true, '/': true, 'b': true, 'f': true, 'n': true, 'r': true, 't': true,
}

// fixEscapeSequences is a single forward scan over the text carrying an
// in-string flag. Inside strings, a legal escape pair is consumed whole;
// a backslash followed by anything outside the legal escape set (or a
// malformed \uXXXX) gets its backslash doubled.
func fixEscapeSequences(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))

	inString := false
	for i := 0; i < len(text); i++ {
		c := text[i]

		if inString && c == '\\' && i+1 < len(text) {
			next := text[i+1]
			switch {
			case validEscapes[next]:
				sb.WriteByte(c)
				sb.WriteByte(next)
				i++
			case next == 'u' && isHex4(text, i+2):
				sb.WriteByte(c)
			default:
				sb.WriteString(`\\`)
			}
			continue
		}

		if c == '"' {
			inString = !inString
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

func isHex4(text string, from int) bool {
	if from+4 > len(text) {
		return false
	}
	for i := from; i < from+4; i++ {
		c := text[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}

// trimAfterClose drops any trailing text after the last closing brace or
// bracket matching the document's opener.
func trimAfterClose(text string) string {
	switch {
	case strings.HasPrefix(text, "{"):
		if last := strings.LastIndex(text, "}"); last >= 0 {
			return text[:last+1]
		}
	case strings.HasPrefix(text, "["):
		if last := strings.LastIndex(text, "]"); last >= 0 {
			return text[:last+1]
		}
	}
	return text
}

// dumpFailedResponse writes the raw response to the diagnostics
// directory for post-mortem inspection. Failure to write is logged, not
// propagated.
func (p *Parser) dumpFailedResponse(raw, filePath string, cause error) {
	if p.DiagnosticsDir == "" {
		return
	}
	if err := os.MkdirAll(p.DiagnosticsDir, 0o755); err != nil {
		p.logger.Warn("could not create diagnostics directory", slog.String("error", err.Error()))
		return
	}

	sum := sha256.Sum256([]byte(raw))
	name := fmt.Sprintf("%d_%s.txt", time.Now().Unix(), hex.EncodeToString(sum[:])[:12])
	path := filepath.Join(p.DiagnosticsDir, name)

	content := fmt.Sprintf("File: %s\nError: %v\nResponse length: %d\n%s\n%s",
		filePath, cause, len(raw), strings.Repeat("=", 80), raw)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		p.logger.Warn("could not write diagnostics file", slog.String("error", err.Error()))
		return
	}
	p.logger.Warn("raw response saved for diagnosis", slog.String("path", path))
}
