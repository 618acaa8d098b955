package vectorstore

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	ferrors "github.com/falconeye/falconeye/internal/errors"
)

// row is the stored payload for one vector id: the chunk text, its flat
// string metadata, and the original (un-normalized) embedding.
type row struct {
	Content  string
	Metadata map[string]string
	Vector   []float32
}

// collection is one HNSW graph plus its id mappings and row payloads.
// Deleted ids are removed lazily: the mapping is dropped but the graph
// node stays, because deleting the last node corrupts the coder/hnsw
// graph.
type collection struct {
	mu      sync.RWMutex
	name    string
	dims    int
	graph   *hnsw.Graph[uint64]
	idMap   map[string]uint64
	keyMap  map[uint64]string
	rows    map[string]row
	nextKey uint64
}

// collectionMeta is the gob-persisted companion of the .hnsw graph file.
type collectionMeta struct {
	Dims    int
	IDMap   map[string]uint64
	Rows    map[string]row
	NextKey uint64
}

func newCollection(name string, dims int) *collection {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25

	return &collection{
		name:   name,
		dims:   dims,
		graph:  graph,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
		rows:   make(map[string]row),
	}
}

// add inserts or replaces one id. The vector must match the collection's
// dimensionality once the first vector fixes it.
func (c *collection) add(id string, vector []float32, content string, metadata map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dims == 0 {
		c.dims = len(vector)
	}
	if len(vector) != c.dims {
		return ferrors.New(ferrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("embedding has %d dimensions, collection %s expects %d",
				len(vector), c.name, c.dims), nil)
	}

	if oldKey, exists := c.idMap[id]; exists {
		delete(c.keyMap, oldKey)
		delete(c.idMap, id)
	}

	key := c.nextKey
	c.nextKey++

	normalized := make([]float32, len(vector))
	copy(normalized, vector)
	normalizeInPlace(normalized)
	c.graph.Add(hnsw.MakeNode(key, normalized))

	c.idMap[id] = key
	c.keyMap[key] = id
	c.rows[id] = row{Content: content, Metadata: metadata, Vector: vector}
	return nil
}

func (c *collection) search(query []float32, k int) ([]*SearchResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(query) != c.dims && c.dims != 0 {
		return nil, ferrors.New(ferrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("query has %d dimensions, collection %s expects %d",
				len(query), c.name, c.dims), nil)
	}
	if c.graph.Len() == 0 {
		return nil, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeInPlace(normalized)

	// Over-fetch to compensate for lazily deleted nodes still present in
	// the graph.
	nodes := c.graph.Search(normalized, k+(c.graph.Len()-len(c.idMap)))

	results := make([]*SearchResult, 0, k)
	for _, node := range nodes {
		id, ok := c.keyMap[node.Key]
		if !ok {
			continue
		}
		r := c.rows[id]
		distance := c.graph.Distance(normalized, node.Value)
		results = append(results, &SearchResult{
			ID:       id,
			Content:  r.Content,
			Metadata: r.Metadata,
			Score:    1.0 - distance/2.0,
		})
		if len(results) == k {
			break
		}
	}
	return results, nil
}

func (c *collection) delete(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		if key, exists := c.idMap[id]; exists {
			delete(c.keyMap, key)
			delete(c.idMap, id)
			delete(c.rows, id)
		}
	}
}

func (c *collection) count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.idMap)
}

func (c *collection) vectorFor(id string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.rows[id]
	if !ok {
		return nil, false
	}
	return r.Vector, true
}

// save writes the graph to <base>.hnsw and the id/row mappings to
// <base>.ids, each via a temp-file rename.
func (c *collection) save(dir string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create vector store directory: %w", err)
	}

	graphPath := filepath.Join(dir, c.name+".hnsw")
	tmp := graphPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create graph file: %w", err)
	}
	if err := c.graph.Export(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, graphPath); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	metaPath := filepath.Join(dir, c.name+".ids")
	tmp = metaPath + ".tmp"
	mf, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create ids file: %w", err)
	}
	meta := collectionMeta{Dims: c.dims, IDMap: c.idMap, Rows: c.rows, NextKey: c.nextKey}
	if err := gob.NewEncoder(mf).Encode(meta); err != nil {
		_ = mf.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("encode ids: %w", err)
	}
	if err := mf.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, metaPath)
}

// loadCollection restores a collection persisted by save. Returns nil
// (no error) when neither file exists.
func loadCollection(dir, name string) (*collection, error) {
	metaPath := filepath.Join(dir, name+".ids")
	mf, err := os.Open(metaPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer mf.Close()

	var meta collectionMeta
	if err := gob.NewDecoder(mf).Decode(&meta); err != nil {
		return nil, ferrors.New(ferrors.ErrCodeCorruptIndex,
			"failed to decode vector collection ids", err).
			WithDetail("collection", name)
	}

	c := newCollection(name, meta.Dims)
	c.idMap = meta.IDMap
	c.rows = meta.Rows
	c.nextKey = meta.NextKey
	for id, key := range c.idMap {
		c.keyMap[key] = id
	}

	gf, err := os.Open(filepath.Join(dir, name+".hnsw"))
	if err != nil {
		return nil, err
	}
	defer gf.Close()

	// coder/hnsw Import needs an io.ByteReader.
	if err := c.graph.Import(bufio.NewReader(gf)); err != nil {
		return nil, ferrors.New(ferrors.ErrCodeCorruptIndex,
			"failed to import vector graph", err).
			WithDetail("collection", name)
	}
	return c, nil
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
