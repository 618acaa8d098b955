// Package falconeye is the public facade over the indexing and review
// core: it wires configuration into the registry, vector store, LLM
// gateway, and orchestrators, and exposes the operations the CLI (or
// any other embedder of the library) drives.
package falconeye

import (
	"context"
	"path/filepath"
	"time"

	"github.com/falconeye/falconeye/internal/checksum"
	"github.com/falconeye/falconeye/internal/config"
	ferrors "github.com/falconeye/falconeye/internal/errors"
	"github.com/falconeye/falconeye/internal/finding"
	"github.com/falconeye/falconeye/internal/index"
	"github.com/falconeye/falconeye/internal/llmgateway"
	"github.com/falconeye/falconeye/internal/prompt"
	"github.com/falconeye/falconeye/internal/registry"
	"github.com/falconeye/falconeye/internal/resilience"
	"github.com/falconeye/falconeye/internal/review"
	"github.com/falconeye/falconeye/internal/vectorstore"
)

// App owns the process-wide singletons: one registry, one vector store,
// one gateway. Create it once per run and Close it when done.
type App struct {
	cfg      *config.Config
	registry *registry.Registry
	vectors  *vectorstore.Store
	metadata *vectorstore.MetadataStore
	gateway  llmgateway.Gateway
	orch     *index.Orchestrator
	reviewer *review.Reviewer
}

// New wires an App from configuration. The chat provider is optional:
// without an API key, indexing still works and only review calls fail.
func New(cfg *config.Config) (*App, error) {
	reg, err := registry.Open(filepath.Join(
		cfg.IndexRegistry.PersistDirectory, cfg.IndexRegistry.CollectionName))
	if err != nil {
		return nil, err
	}

	vectors := vectorstore.New(
		cfg.VectorStore.PersistDirectory, cfg.VectorStore.CollectionPrefix, true)
	metadata := vectorstore.NewMetadataStore(
		cfg.Metadata.PersistDirectory, cfg.Metadata.CollectionName, true)

	gateway, err := buildGateway(cfg)
	if err != nil {
		_ = reg.Close()
		return nil, err
	}

	app := &App{
		cfg:      cfg,
		registry: reg,
		vectors:  vectors,
		metadata: metadata,
		gateway:  gateway,
	}
	app.orch = index.NewOrchestrator(cfg, reg, vectors, metadata, gateway)

	parser := finding.NewParser(filepath.Join(
		cfg.IndexRegistry.PersistDirectory, "failed_responses"))
	assembler := prompt.NewAssembler(gateway, vectors, metadata)
	app.reviewer = review.NewReviewer(gateway, assembler, parser)
	return app, nil
}

func buildGateway(cfg *config.Config) (llmgateway.Gateway, error) {
	timeout, err := time.ParseDuration(cfg.LLM.Timeout)
	if err != nil {
		return nil, ferrors.ConfigError("invalid llm.timeout", err)
	}

	embedder := llmgateway.NewOllamaEmbedder(llmgateway.OllamaConfig{
		BaseURL:   cfg.LLM.BaseURL,
		Model:     cfg.LLM.ModelEmbedding,
		BatchSize: cfg.Analysis.BatchSize,
		Timeout:   timeout,
	})

	// The chat provider needs an API key; leave it unset rather than
	// fail, so embedding-only commands keep working.
	var chat llmgateway.ChatModel
	if c, err := llmgateway.NewAnthropicChat(llmgateway.AnthropicConfig{
		Model:   cfg.LLM.ModelAnalysis,
		Timeout: timeout,
	}); err == nil {
		chat = c
	}

	return llmgateway.NewClient(embedder, chat, retryConfig(cfg), breakerFor(cfg)), nil
}

func retryConfig(cfg *config.Config) resilience.RetryConfig {
	r := resilience.DefaultRetryConfig()
	if cfg.LLM.Retry.MaxRetries > 0 {
		r.MaxRetries = cfg.LLM.Retry.MaxRetries
	}
	if d, err := time.ParseDuration(cfg.LLM.Retry.InitialDelay); err == nil && d > 0 {
		r.InitialDelay = d
	}
	if d, err := time.ParseDuration(cfg.LLM.Retry.MaxDelay); err == nil && d > 0 {
		r.MaxDelay = d
	}
	if cfg.LLM.Retry.Jitter > 0 {
		r.Jitter = cfg.LLM.Retry.Jitter
	}
	return r
}

func breakerFor(cfg *config.Config) *resilience.CircuitBreaker {
	cb := resilience.DefaultCircuitBreakerConfig()
	if cfg.LLM.CircuitBreaker.FailureThreshold > 0 {
		cb.FailureThreshold = cfg.LLM.CircuitBreaker.FailureThreshold
	}
	if cfg.LLM.CircuitBreaker.SuccessThreshold > 0 {
		cb.SuccessThreshold = cfg.LLM.CircuitBreaker.SuccessThreshold
	}
	if d, err := time.ParseDuration(cfg.LLM.CircuitBreaker.Timeout); err == nil && d > 0 {
		cb.Timeout = d
	}
	return resilience.NewCircuitBreaker("llm", cb)
}

// IndexOptions mirror the orchestrator's options for callers.
type IndexOptions = index.Options

// IndexResult mirrors the orchestrator's run summary.
type IndexResult = index.Result

// Index runs one indexing pass.
func (a *App) Index(ctx context.Context, opts IndexOptions) (*IndexResult, error) {
	return a.orch.Run(ctx, opts)
}

// ReviewRequest mirrors the reviewer's request for callers.
type ReviewRequest = review.Request

// Review analyzes one file and returns the completed review.
func (a *App) Review(ctx context.Context, req ReviewRequest) (*finding.SecurityReview, error) {
	if req.TopKContext == 0 {
		req.TopKContext = a.cfg.Analysis.TopKContext
	}
	if req.TopKDocs == 0 {
		req.TopKDocs = a.cfg.Analysis.TopKDocs
	}
	return a.reviewer.ReviewFile(ctx, req)
}

// Cleanup physically removes deleted file rows and their embeddings.
func (a *App) Cleanup(ctx context.Context, projectID string) (int, error) {
	return a.orch.Cleanup(ctx, projectID)
}

// DeleteProject removes a project and all its collections.
func (a *App) DeleteProject(ctx context.Context, projectID string) error {
	return a.orch.DeleteProject(ctx, projectID)
}

// Project returns one project's registry row, or nil when unknown.
func (a *App) Project(ctx context.Context, projectID string) (*registry.ProjectMetadata, error) {
	return a.registry.GetProject(ctx, projectID)
}

// Projects lists every registered project.
func (a *App) Projects(ctx context.Context) ([]*registry.ProjectMetadata, error) {
	return a.registry.GetAllProjects(ctx)
}

// Stats aggregates a project's file rows.
func (a *App) Stats(ctx context.Context, projectID string) (registry.Stats, error) {
	return a.registry.GetStats(ctx, projectID)
}

// Files returns a project's file metadata rows.
func (a *App) Files(ctx context.Context, projectID string) ([]*checksum.FileMetadata, error) {
	return a.registry.GetAllFiles(ctx, projectID)
}

// HealthCheck probes the embedding provider.
func (a *App) HealthCheck(ctx context.Context) bool {
	return a.gateway.HealthCheck(ctx)
}

// Close flushes and releases every owned resource.
func (a *App) Close() error {
	vecErr := a.vectors.Close()
	gwErr := a.gateway.Close()
	regErr := a.registry.Close()
	if regErr != nil {
		return regErr
	}
	if vecErr != nil {
		return vecErr
	}
	return gwErr
}
