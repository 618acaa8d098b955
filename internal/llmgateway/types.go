// Package llmgateway exposes the capability surface the indexing and
// review pipelines depend on: embedding generation, chat-style security
// analysis, validation re-analysis, token counting, and a health probe.
// Concrete providers implement Gateway; callers never see a wire format.
package llmgateway

import "context"

// Gateway is the full capability contract. All methods block until the
// provider responds or ctx is done.
type Gateway interface {
	// Embed returns a dense vector for one text. Dimensionality is fixed
	// per model.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// AnalyzeCodeSecurity runs a chat completion over the assembled
	// context and returns the model's raw textual response.
	AnalyzeCodeSecurity(ctx context.Context, contextText, systemPrompt string) (string, error)

	// ValidateFindings asks the model to re-evaluate a prior finding set
	// against the code and context, returning raw text for re-parsing.
	ValidateFindings(ctx context.Context, code, findingsJSON, contextText string) (string, error)

	// CountTokens is the approximate tokenizer used for chunk budgeting.
	CountTokens(text string) int

	// HealthCheck reports whether the provider is reachable.
	HealthCheck(ctx context.Context) bool

	// Dimensions returns the embedding dimensionality.
	Dimensions() int

	// Close releases provider resources.
	Close() error
}

// Embedder is the embedding half of the gateway, implemented by the
// HTTP adapter.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Available(ctx context.Context) bool
	Close() error
}

// ChatModel is the analysis half of the gateway, implemented by the
// Anthropic adapter.
type ChatModel interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Close() error
}

// ApproxTokens estimates token counts at roughly four characters per
// token, which is accurate enough for chunk budgeting.
func ApproxTokens(text string) int {
	return len(text) / 4
}
