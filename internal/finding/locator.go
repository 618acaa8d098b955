package finding

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode"
)

// contextLines is how many lines above and below a located snippet are
// included in the expanded context.
const contextLines = 4

// Locate enriches findings with precise line spans by searching for each
// finding's quoted snippet in the target file. Findings whose snippet
// can't be located keep their original snippet and no line numbers. The
// original slice order is preserved; Locate never fails.
func Locate(findings []*SecurityFinding, targetPath string) []*SecurityFinding {
	if len(findings) == 0 {
		return findings
	}

	data, err := os.ReadFile(targetPath)
	if err != nil {
		slog.Warn("could not read file for line-span recovery",
			slog.String("file_path", targetPath),
			slog.String("error", err.Error()))
		return findings
	}
	fileLines := strings.Split(strings.ToValidUTF8(string(data), ""), "\n")
	if n := len(fileLines); n > 0 && fileLines[n-1] == "" {
		fileLines = fileLines[:n-1]
	}

	located := make([]*SecurityFinding, 0, len(findings))
	for _, f := range findings {
		start, end := findSnippet(f.CodeSnippet, fileLines)
		if start == 0 {
			located = append(located, f)
			continue
		}

		enriched := *f
		enriched.LineStart = start
		enriched.LineEnd = end
		enriched.CodeSnippet = expandSnippet(fileLines, start, end)
		located = append(located, &enriched)
	}
	return located
}

// findSnippet returns the 1-based inclusive line span where the snippet
// first matches the file, or (0, 0). Each normalized snippet line must
// appear as a substring of the file line at the same relative offset.
func findSnippet(snippet string, fileLines []string) (int, int) {
	snippetLines := normalizeSnippetLines(snippet)
	if len(snippetLines) == 0 {
		return 0, 0
	}

	for i := range fileLines {
		if matchesAt(snippetLines, fileLines, i) {
			return i + 1, i + len(snippetLines)
		}
	}
	return 0, 0
}

func matchesAt(snippetLines, fileLines []string, at int) bool {
	for j, sl := range snippetLines {
		if at+j >= len(fileLines) {
			return false
		}
		if sl != "" && !strings.Contains(strings.TrimSpace(fileLines[at+j]), sl) {
			return false
		}
	}
	return true
}

// normalizeSnippetLines trims each snippet line and drops a leading
// "<digits> |" gutter when the model echoed numbered code back.
func normalizeSnippetLines(snippet string) []string {
	trimmed := strings.TrimSpace(snippet)
	if trimmed == "" {
		return nil
	}

	var lines []string
	for _, line := range strings.Split(trimmed, "\n") {
		cleaned := strings.TrimSpace(line)
		if before, after, found := strings.Cut(cleaned, "|"); found && isDigits(strings.TrimSpace(before)) {
			cleaned = strings.TrimSpace(after)
		}
		lines = append(lines, cleaned)
	}
	return lines
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// expandSnippet renders the located lines with four lines of context on
// each side, marking the finding's own lines with ">" and context lines
// with "|".
func expandSnippet(fileLines []string, lineStart, lineEnd int) string {
	startIdx := lineStart - 1 - contextLines
	if startIdx < 0 {
		startIdx = 0
	}
	endIdx := lineEnd + contextLines
	if endIdx > len(fileLines) {
		endIdx = len(fileLines)
	}

	var sb strings.Builder
	for i := startIdx; i < endIdx; i++ {
		lineNum := i + 1
		content := strings.TrimRight(fileLines[i], " \t\r")
		marker := "|"
		if lineNum >= lineStart && lineNum <= lineEnd {
			marker = ">"
		}
		if i > startIdx {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%4d %s %s", lineNum, marker, content)
	}
	return sb.String()
}
