package chunk

import (
	"strconv"
	"strings"

	ferrors "github.com/falconeye/falconeye/internal/errors"
)

// CodeChunker emits fixed-size, overlapping line windows over source text.
type CodeChunker struct {
	size    int
	overlap int
	// countTokens estimates the token cost of a chunk's content.
	countTokens func(string) int
}

// NewCodeChunker validates the window parameters and returns a chunker.
// The overlap must satisfy 0 <= overlap < size.
func NewCodeChunker(size, overlap int, countTokens func(string) int) (*CodeChunker, error) {
	if size <= 0 {
		return nil, ferrors.New(ferrors.ErrCodeOverlapTooLarge,
			"chunk size must be positive", nil).
			WithDetail("size", strconv.Itoa(size))
	}
	if overlap < 0 || overlap >= size {
		return nil, ferrors.New(ferrors.ErrCodeOverlapTooLarge,
			"chunk overlap must satisfy 0 <= overlap < size", nil).
			WithDetail("size", strconv.Itoa(size)).
			WithDetail("overlap", strconv.Itoa(overlap))
	}
	if countTokens == nil {
		countTokens = ApproxTokens
	}
	return &CodeChunker{size: size, overlap: overlap, countTokens: countTokens}, nil
}

// Chunk splits content at line boundaries into windows of the configured
// size, stepping size-overlap lines between starts. Line terminators are
// preserved inside chunk content; metadata records 1-based inclusive line
// spans.
func (c *CodeChunker) Chunk(content, filePath, language string) []*CodeChunk {
	lines := SplitLines(content)
	if len(lines) == 0 {
		return nil
	}

	var chunks []*CodeChunk
	step := c.size - c.overlap

	for start, index := 0, 0; start < len(lines); start, index = start+step, index+1 {
		end := start + c.size
		if end > len(lines) {
			end = len(lines)
		}
		text := strings.Join(lines[start:end], "")

		chunks = append(chunks, &CodeChunk{
			ID:      ChunkID(filePath, text),
			Content: text,
			Metadata: ChunkMetadata{
				FilePath:   filePath,
				Language:   language,
				StartLine:  start + 1,
				EndLine:    end,
				ChunkIndex: index,
			},
			TokenCount: c.countTokens(text),
		})
	}

	for _, ch := range chunks {
		ch.Metadata.TotalChunks = len(chunks)
	}
	return chunks
}

// SplitLines splits text at line boundaries, keeping the terminator on
// each line, so that joining the result reproduces the input exactly.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	var lines []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			lines = append(lines, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}
