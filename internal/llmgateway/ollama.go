package llmgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	ferrors "github.com/falconeye/falconeye/internal/errors"
)

// OllamaConfig configures the HTTP embedding adapter. It targets any
// Ollama-compatible /api/embed endpoint.
type OllamaConfig struct {
	BaseURL   string
	Model     string
	BatchSize int
	Timeout   time.Duration
	// Dimensions pins the embedding dimensionality; 0 means auto-detect
	// from the first response.
	Dimensions int
}

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "nomic-embed-text"
	defaultBatchSize   = 32
	defaultTimeout     = 60 * time.Second
)

// OllamaEmbedder generates embeddings over HTTP.
type OllamaEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    OllamaConfig

	mu     sync.RWMutex
	dims   int
	closed bool
}

var _ Embedder = (*OllamaEmbedder)(nil)

type embedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// NewOllamaEmbedder builds the adapter. No network call is made here;
// dimensions are detected lazily on the first embedding.
func NewOllamaEmbedder(cfg OllamaConfig) *OllamaEmbedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOllamaURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultOllamaModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	transport := &http.Transport{
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     10 * time.Second,
	}

	// No client-level timeout: it would override per-request context
	// deadlines. Each request carries its own context.WithTimeout.
	return &OllamaEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		dims:      cfg.Dimensions,
	}
}

// Embed returns the embedding for one text. Whitespace-only input yields
// a zero vector without a network call.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return make([]float32, e.Dimensions()), nil
	}
	vectors, err := e.doEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, ferrors.New(ferrors.ErrCodeEmbeddingFailed, "no embedding returned", nil)
	}
	return vectors[0], nil
}

// EmbedBatch returns one embedding per text, splitting the work into
// batches of the configured size. Whitespace-only inputs become zero
// vectors.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	type indexed struct {
		idx  int
		text string
	}
	var nonEmpty []indexed
	results := make([][]float32, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		nonEmpty = append(nonEmpty, indexed{i, text})
	}

	for start := 0; start < len(nonEmpty); start += e.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + e.config.BatchSize
		if end > len(nonEmpty) {
			end = len(nonEmpty)
		}
		batch := nonEmpty[start:end]

		batchTexts := make([]string, len(batch))
		for i, it := range batch {
			batchTexts[i] = it.text
		}
		vectors, err := e.doEmbed(ctx, batchTexts)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(batch) {
			return nil, ferrors.New(ferrors.ErrCodeEmbeddingFailed,
				fmt.Sprintf("expected %d embeddings, got %d", len(batch), len(vectors)), nil)
		}
		for i, v := range vectors {
			results[batch[i].idx] = v
		}
	}

	// Zero vectors for the empty inputs, sized after dims are known.
	for i := range results {
		if results[i] == nil {
			results[i] = make([]float32, e.Dimensions())
		}
	}
	return results, nil
}

func (e *OllamaEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, ferrors.New(ferrors.ErrCodeInternal, "embedder is closed", nil)
	}
	e.mu.RUnlock()

	var input any
	if len(texts) == 1 {
		input = texts[0]
	} else {
		input = texts
	}
	body, err := json.Marshal(embedRequest{Model: e.config.Model, Input: input})
	if err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost,
		e.config.BaseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, ferrors.New(ferrors.ErrCodeNetworkUnavailable,
			"embedding request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, ferrors.New(ferrors.ErrCodeNetworkUnavailable,
			fmt.Sprintf("embedding failed with status %d: %s", resp.StatusCode, string(respBody)), nil)
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, ferrors.New(ferrors.ErrCodeEmbeddingFailed, "failed to decode embedding response", err)
	}

	vectors := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		v := make([]float32, len(emb))
		for j, val := range emb {
			v[j] = float32(val)
		}
		vectors[i] = v
	}

	if len(vectors) > 0 && len(vectors[0]) > 0 {
		e.mu.Lock()
		if e.dims == 0 {
			e.dims = len(vectors[0])
		}
		e.mu.Unlock()
	}
	return vectors, nil
}

// Dimensions returns the detected or configured dimensionality.
func (e *OllamaEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// Available probes the provider's model list endpoint.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, e.config.BaseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Close releases idle connections.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}
