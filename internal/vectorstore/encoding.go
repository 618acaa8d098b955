package vectorstore

import (
	"encoding/json"
	"strconv"

	"github.com/falconeye/falconeye/internal/chunk"
)

// Metadata is stored as a flat string→string map: integers and booleans
// are stringified, lists are JSON encoded.

// EncodeCodeChunkMetadata flattens a code chunk's metadata for storage.
func EncodeCodeChunkMetadata(ch *chunk.CodeChunk) map[string]string {
	m := map[string]string{
		"file_path":     ch.Metadata.FilePath,
		"language":      ch.Metadata.Language,
		"start_line":    strconv.Itoa(ch.Metadata.StartLine),
		"end_line":      strconv.Itoa(ch.Metadata.EndLine),
		"chunk_index":   strconv.Itoa(ch.Metadata.ChunkIndex),
		"total_chunks":  strconv.Itoa(ch.Metadata.TotalChunks),
		"has_functions": strconv.FormatBool(ch.Metadata.HasFunctions),
		"has_imports":   strconv.FormatBool(ch.Metadata.HasImports),
		"token_count":   strconv.Itoa(ch.TokenCount),
	}
	if names, err := json.Marshal(ch.Metadata.FunctionNames); err == nil {
		m["function_names"] = string(names)
	}
	return m
}

// DecodeCodeChunkMetadata rebuilds ChunkMetadata from a stored flat map.
func DecodeCodeChunkMetadata(m map[string]string) chunk.ChunkMetadata {
	meta := chunk.ChunkMetadata{
		FilePath: m["file_path"],
		Language: m["language"],
	}
	meta.StartLine, _ = strconv.Atoi(m["start_line"])
	meta.EndLine, _ = strconv.Atoi(m["end_line"])
	meta.ChunkIndex, _ = strconv.Atoi(m["chunk_index"])
	meta.TotalChunks, _ = strconv.Atoi(m["total_chunks"])
	meta.HasFunctions, _ = strconv.ParseBool(m["has_functions"])
	meta.HasImports, _ = strconv.ParseBool(m["has_imports"])
	if raw, ok := m["function_names"]; ok {
		_ = json.Unmarshal([]byte(raw), &meta.FunctionNames)
	}
	return meta
}

// EncodeDocumentChunkMetadata flattens a document chunk's metadata.
func EncodeDocumentChunkMetadata(ch *chunk.DocumentChunk) map[string]string {
	m := map[string]string{
		"file_path":     ch.Metadata.FilePath,
		"document_type": string(ch.Metadata.DocumentType),
		"title":         ch.Metadata.Title,
		"start_char":    strconv.Itoa(ch.StartChar),
		"end_char":      strconv.Itoa(ch.EndChar),
		"chunk_index":   strconv.Itoa(ch.ChunkIndex),
		"total_chunks":  strconv.Itoa(ch.TotalChunks),
		"created_at":    ch.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	if sections, err := json.Marshal(ch.Metadata.Sections); err == nil {
		m["sections"] = string(sections)
	}
	if keywords, err := json.Marshal(ch.Metadata.Keywords); err == nil {
		m["keywords"] = string(keywords)
	}
	return m
}

// DecodeDocumentChunkMetadata rebuilds DocumentMetadata from a stored map.
func DecodeDocumentChunkMetadata(m map[string]string) chunk.DocumentMetadata {
	meta := chunk.DocumentMetadata{
		FilePath:     m["file_path"],
		DocumentType: chunk.DocumentType(m["document_type"]),
		Title:        m["title"],
	}
	if raw, ok := m["sections"]; ok {
		_ = json.Unmarshal([]byte(raw), &meta.Sections)
	}
	if raw, ok := m["keywords"]; ok {
		_ = json.Unmarshal([]byte(raw), &meta.Keywords)
	}
	return meta
}
