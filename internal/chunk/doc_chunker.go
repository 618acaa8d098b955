package chunk

import (
	"strings"
	"time"
)

// DocumentChunker emits character-bounded chunks that prefer to break at
// paragraph or sentence boundaries. The overlap between consecutive
// chunks is a quarter of the chunk size.
type DocumentChunker struct {
	size int
}

// NewDocumentChunker returns a chunker emitting chunks of roughly size
// characters. A non-positive size falls back to 1000.
func NewDocumentChunker(size int) *DocumentChunker {
	if size <= 0 {
		size = 1000
	}
	return &DocumentChunker{size: size}
}

// sentence terminators searched, in addition to the paragraph break, when
// deciding where to end a chunk.
var sentenceBreaks = []string{". ", ".\n", "! ", "? "}

// Chunk splits content into chunks of up to the configured size. When a
// chunk would end mid-text, the boundary is pulled back to the last
// paragraph break after the halfway point, or failing that the last
// sentence terminator. Chunks whose trimmed content is empty are skipped.
func (d *DocumentChunker) Chunk(content string, meta DocumentMetadata) []*DocumentChunk {
	if content == "" {
		return nil
	}

	overlap := d.size / 4
	now := time.Now().UTC()

	var chunks []*DocumentChunk
	index := 0
	start := 0
	for start < len(content) {
		end := start + d.size
		if end > len(content) {
			end = len(content)
		}

		if end < len(content) {
			half := start + d.size/2
			if para := strings.LastIndex(content[start:end], "\n\n"); para >= 0 && start+para > half {
				end = start + para + 2
			} else {
				best := -1
				for _, sep := range sentenceBreaks {
					if p := strings.LastIndex(content[start:end], sep); p >= 0 && start+p > best {
						best = start + p
					}
				}
				if best > half {
					end = best + 2
				}
			}
		}

		text := strings.TrimSpace(content[start:end])
		if text != "" {
			chunks = append(chunks, &DocumentChunk{
				ID:         ChunkID(meta.FilePath, text),
				Content:    text,
				Metadata:   meta,
				StartChar:  start,
				EndChar:    end,
				ChunkIndex: index,
				CreatedAt:  now,
			})
			index++
		}

		if end < len(content) {
			start = end - overlap
		} else {
			start = end
		}
	}

	for _, ch := range chunks {
		ch.TotalChunks = len(chunks)
	}
	return chunks
}

// ClassifyDocument maps a documentation file's name and relative path to
// a DocumentType.
func ClassifyDocument(filename, relPath string) DocumentType {
	upper := strings.ToUpper(filename)
	lower := strings.ToLower(relPath)

	switch {
	case strings.Contains(upper, "README"):
		return DocTypeReadme
	case strings.Contains(upper, "CONTRIBUTING"):
		return DocTypeContributing
	case strings.Contains(upper, "SECURITY"):
		return DocTypeSecurityPolicy
	case strings.Contains(upper, "CHANGELOG"):
		return DocTypeChangelog
	case strings.Contains(upper, "LICENSE"):
		return DocTypeLicense
	case strings.Contains(upper, "API") || strings.Contains(lower, "api"):
		return DocTypeAPIDoc
	case strings.Contains(upper, "ARCHITECTURE") || strings.Contains(lower, "architecture"):
		return DocTypeArchitecture
	case strings.Contains(upper, "DESIGN") || strings.Contains(lower, "design"):
		return DocTypeDesignDoc
	case strings.Contains(upper, "GUIDE") || strings.Contains(lower, "tutorial"):
		return DocTypeGuide
	default:
		return DocTypeDocumentation
	}
}

// documentKeywords are scanned for in document content to produce the
// keyword list on DocumentMetadata.
var documentKeywords = []string{
	"security", "authentication", "authorization", "api",
	"architecture", "design", "implementation", "configuration",
}

// ExtractDocumentMetadata builds DocumentMetadata from a document's
// content: the first markdown heading becomes the title, every heading
// becomes a section, and a fixed keyword vocabulary is matched against
// the lowercased content.
func ExtractDocumentMetadata(relPath, content string, docType DocumentType) DocumentMetadata {
	var title string
	var sections []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			heading := strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			if title == "" {
				title = heading
			}
			sections = append(sections, heading)
		}
	}

	var keywords []string
	lower := strings.ToLower(content)
	for _, kw := range documentKeywords {
		if strings.Contains(lower, kw) {
			keywords = append(keywords, kw)
		}
	}

	return DocumentMetadata{
		FilePath:     relPath,
		DocumentType: docType,
		Title:        title,
		Sections:     sections,
		Keywords:     keywords,
	}
}
