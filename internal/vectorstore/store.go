// Package vectorstore is the project-scoped, kind-partitioned embedding
// store. Each collection is one HNSW graph plus a gob-encoded sidecar of
// id mappings and row payloads, persisted under a single directory.
package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/falconeye/falconeye/internal/chunk"
	ferrors "github.com/falconeye/falconeye/internal/errors"
)

// Collection kinds.
const (
	KindCode      = "code"
	KindDocuments = "documents"
	KindMetadata  = "metadata"
)

// SearchResult is one reconstructed store row.
type SearchResult struct {
	ID        string
	Content   string
	Metadata  map[string]string
	Score     float32
	Embedding []float32
}

// Store manages the named collections under one persist directory.
// Safe for concurrent use.
type Store struct {
	mu          sync.Mutex
	dir         string
	prefix      string
	isolation   bool
	collections map[string]*collection
}

// New returns a Store rooted at dir. When isolation is false the
// project-id segment is omitted from collection names (compat mode).
func New(dir, prefix string, isolation bool) *Store {
	return &Store{
		dir:         dir,
		prefix:      prefix,
		isolation:   isolation,
		collections: make(map[string]*collection),
	}
}

// CollectionName builds "<prefix>_<project_id>_<kind>", or
// "<prefix>_<kind>" when project isolation is disabled.
func (s *Store) CollectionName(projectID, kind string) string {
	if !s.isolation || projectID == "" {
		return s.prefix + "_" + kind
	}
	return s.prefix + "_" + projectID + "_" + kind
}

// get returns the named collection, loading it from disk or creating it
// fresh as needed.
func (s *Store) get(name string) (*collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.collections[name]; ok {
		return c, nil
	}
	c, err := loadCollection(s.dir, name)
	if err != nil {
		return nil, err
	}
	if c == nil {
		c = newCollection(name, 0)
	}
	s.collections[name] = c
	return c, nil
}

// StoreCodeChunks persists chunks into the named collection. Every chunk
// must carry an embedding; a missing one fails the whole call before
// anything is written.
func (s *Store) StoreCodeChunks(ctx context.Context, collectionName string, chunks []*chunk.CodeChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for _, ch := range chunks {
		if ch.Embedding == nil {
			return ferrors.ValidationError(
				fmt.Sprintf("chunk %s has no embedding", ch.ID), nil).
				WithDetail("file_path", ch.Metadata.FilePath)
		}
	}

	c, err := s.get(collectionName)
	if err != nil {
		return err
	}
	for _, ch := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.add(ch.ID, ch.Embedding, ch.Content, EncodeCodeChunkMetadata(ch)); err != nil {
			return err
		}
	}
	return c.save(s.dir)
}

// StoreDocumentChunks is the documents-kind variant of StoreCodeChunks.
func (s *Store) StoreDocumentChunks(ctx context.Context, collectionName string, chunks []*chunk.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for _, ch := range chunks {
		if ch.Embedding == nil {
			return ferrors.ValidationError(
				fmt.Sprintf("document chunk %s has no embedding", ch.ID), nil).
				WithDetail("file_path", ch.Metadata.FilePath)
		}
	}

	c, err := s.get(collectionName)
	if err != nil {
		return err
	}
	for _, ch := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.add(ch.ID, ch.Embedding, ch.Content, EncodeDocumentChunkMetadata(ch)); err != nil {
			return err
		}
	}
	return c.save(s.dir)
}

// Search returns the topK nearest rows for a pre-computed query
// embedding. withEmbedding attaches each row's stored vector to the
// result.
func (s *Store) Search(ctx context.Context, collectionName string, embedding []float32, topK int, withEmbedding bool) ([]*SearchResult, error) {
	if len(embedding) == 0 {
		return nil, ferrors.ValidationError("query embedding must not be empty", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c, err := s.get(collectionName)
	if err != nil {
		return nil, err
	}
	results, err := c.search(embedding, topK)
	if err != nil {
		return nil, err
	}
	if withEmbedding {
		for _, r := range results {
			if v, ok := c.vectorFor(r.ID); ok {
				r.Embedding = v
			}
		}
	}
	return results, nil
}

// DeleteIDs removes the given ids from the collection.
func (s *Store) DeleteIDs(ctx context.Context, collectionName string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c, err := s.get(collectionName)
	if err != nil {
		return err
	}
	c.delete(ids)
	return c.save(s.dir)
}

// Exists reports whether the collection has been persisted or is live in
// memory.
func (s *Store) Exists(collectionName string) bool {
	s.mu.Lock()
	_, live := s.collections[collectionName]
	s.mu.Unlock()
	if live {
		return true
	}
	_, err := os.Stat(filepath.Join(s.dir, collectionName+".ids"))
	return err == nil
}

// Count returns the number of live rows in the collection.
func (s *Store) Count(collectionName string) (int, error) {
	if !s.Exists(collectionName) {
		return 0, nil
	}
	c, err := s.get(collectionName)
	if err != nil {
		return 0, err
	}
	return c.count(), nil
}

// DeleteCollection drops the collection from memory and disk.
func (s *Store) DeleteCollection(collectionName string) error {
	s.mu.Lock()
	delete(s.collections, collectionName)
	s.mu.Unlock()

	for _, suffix := range []string{".hnsw", ".ids"} {
		if err := os.Remove(filepath.Join(s.dir, collectionName+suffix)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// DeleteAllForProject drops every collection belonging to the project.
func (s *Store) DeleteAllForProject(projectID string) error {
	for _, kind := range []string{KindCode, KindDocuments, KindMetadata} {
		if err := s.DeleteCollection(s.CollectionName(projectID, kind)); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes every live collection to disk.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for _, c := range s.collections {
		if err := c.save(s.dir); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.collections = make(map[string]*collection)
	return firstErr
}

// ProjectIDFromCollection extracts the project-id segment from a
// collection name built by CollectionName, or "" in compat mode.
func (s *Store) ProjectIDFromCollection(name string) string {
	trimmed := strings.TrimPrefix(name, s.prefix+"_")
	for _, kind := range []string{KindCode, KindDocuments, KindMetadata} {
		if cut, ok := strings.CutSuffix(trimmed, "_"+kind); ok {
			return cut
		}
	}
	return ""
}
