// Package chunk splits source files into line-bounded chunks and
// documentation files into character-bounded, sentence-aware chunks, both
// carrying the metadata the retrieval layer stores alongside each
// embedding.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// CodeFile is one source file loaded for an indexing run.
type CodeFile struct {
	Path      string
	RelPath   string
	Content   string
	Language  string
	Size      int64
	LineCount int
}

// Codebase owns the files of a single indexing run.
type Codebase struct {
	RootPath         string
	Language         string
	Files            []CodeFile
	ExcludedPatterns []string
}

// AddFile appends a file to the run.
func (cb *Codebase) AddFile(f CodeFile) {
	cb.Files = append(cb.Files, f)
}

// TotalFiles returns the number of files added so far.
func (cb *Codebase) TotalFiles() int {
	return len(cb.Files)
}

// TotalLines returns the sum of line counts across all files.
func (cb *Codebase) TotalLines() int {
	total := 0
	for _, f := range cb.Files {
		total += f.LineCount
	}
	return total
}

// ChunkMetadata is the file-relative identity of a code chunk. Lines are
// 1-based and inclusive.
type ChunkMetadata struct {
	FilePath      string
	Language      string
	StartLine     int
	EndLine       int
	ChunkIndex    int
	TotalChunks   int
	HasFunctions  bool
	HasImports    bool
	FunctionNames []string
}

// CodeChunk is an embeddable slice of a source file. The ID is
// content-addressed: byte-identical content at the same path yields the
// same ID across runs.
type CodeChunk struct {
	ID         string
	Content    string
	Metadata   ChunkMetadata
	TokenCount int
	Embedding  []float32
}

// DocumentType classifies a documentation file by its name and location.
type DocumentType string

const (
	DocTypeReadme         DocumentType = "readme"
	DocTypeContributing   DocumentType = "contributing"
	DocTypeSecurityPolicy DocumentType = "security_policy"
	DocTypeChangelog      DocumentType = "changelog"
	DocTypeLicense        DocumentType = "license"
	DocTypeAPIDoc         DocumentType = "api_doc"
	DocTypeArchitecture   DocumentType = "architecture"
	DocTypeDesignDoc      DocumentType = "design_doc"
	DocTypeGuide          DocumentType = "guide"
	DocTypeDocumentation  DocumentType = "documentation"
)

// DocumentMetadata describes one documentation file.
type DocumentMetadata struct {
	FilePath     string
	DocumentType DocumentType
	Title        string
	Sections     []string
	Keywords     []string
}

// DocumentChunk is an embeddable slice of a documentation file.
// StartChar/EndChar are half-open character offsets into the source text.
type DocumentChunk struct {
	ID          string
	Content     string
	Metadata    DocumentMetadata
	StartChar   int
	EndChar     int
	ChunkIndex  int
	TotalChunks int
	Embedding   []float32
	CreatedAt   time.Time
}

// ChunkID derives the content-addressed chunk identifier:
// sha256(path \x00 sha256hex(content)), truncated to 16 hex chars.
func ChunkID(path, content string) string {
	inner := sha256.Sum256([]byte(content))
	outer := sha256.Sum256([]byte(path + "\x00" + hex.EncodeToString(inner[:])))
	return hex.EncodeToString(outer[:])[:16]
}

// ApproxTokens is the fallback token estimator used when no gateway
// tokenizer is supplied: roughly four characters per token.
func ApproxTokens(text string) int {
	return len(text) / 4
}
