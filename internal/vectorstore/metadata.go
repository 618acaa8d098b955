package vectorstore

import (
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/falconeye/falconeye/internal/ast"
)

// MetadataStore persists per-file structural metadata as JSON blobs,
// one document per file, keyed "metadata_<escaped relative path>".
// Documents live under <dir>/<collection>[_<projectID>]/.
type MetadataStore struct {
	mu         sync.Mutex
	dir        string
	collection string
	isolation  bool
}

// NewMetadataStore returns a store rooted at dir using the given base
// collection name.
func NewMetadataStore(dir, collection string, isolation bool) *MetadataStore {
	return &MetadataStore{dir: dir, collection: collection, isolation: isolation}
}

func (m *MetadataStore) collectionDir(projectID string) string {
	name := m.collection
	if m.isolation && projectID != "" {
		name = m.collection + "_" + projectID
	}
	return filepath.Join(m.dir, name)
}

func metadataKey(relPath string) string {
	return "metadata_" + url.PathEscape(relPath) + ".json"
}

// storedMetadata is the JSON shape of one structural-metadata document.
type storedMetadata struct {
	FilePath string                  `json:"file_path"`
	Language string                  `json:"language"`
	Metadata *ast.StructuralMetadata `json:"metadata"`
}

// Put writes the structural metadata for one file, replacing any prior
// document for the same path.
func (m *MetadataStore) Put(projectID, relPath string, meta *ast.StructuralMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dir := m.collectionDir(projectID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := json.Marshal(storedMetadata{FilePath: relPath, Language: meta.Language, Metadata: meta})
	if err != nil {
		return err
	}

	path := filepath.Join(dir, metadataKey(relPath))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Get returns the stored metadata for a file, or nil when none exists.
func (m *MetadataStore) Get(projectID, relPath string) (*ast.StructuralMetadata, error) {
	data, err := os.ReadFile(filepath.Join(m.collectionDir(projectID), metadataKey(relPath)))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var stored storedMetadata
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}
	return stored.Metadata, nil
}

// Delete removes one file's metadata document. Missing documents are not
// an error.
func (m *MetadataStore) Delete(projectID, relPath string) error {
	err := os.Remove(filepath.Join(m.collectionDir(projectID), metadataKey(relPath)))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// DeleteAll removes the project's whole metadata collection.
func (m *MetadataStore) DeleteAll(projectID string) error {
	err := os.RemoveAll(m.collectionDir(projectID))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Paths lists the relative paths with stored metadata for the project.
func (m *MetadataStore) Paths(projectID string) ([]string, error) {
	entries, err := os.ReadDir(m.collectionDir(projectID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "metadata_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		escaped := strings.TrimSuffix(strings.TrimPrefix(name, "metadata_"), ".json")
		p, err := url.PathUnescape(escaped)
		if err != nil {
			continue
		}
		paths = append(paths, p)
	}
	return paths, nil
}
