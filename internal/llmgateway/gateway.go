package llmgateway

import (
	"context"
	"fmt"

	ferrors "github.com/falconeye/falconeye/internal/errors"
	"github.com/falconeye/falconeye/internal/resilience"
)

// Client composes an embedding provider and a chat provider into the
// full Gateway, wrapping every outbound call in the retry policy and a
// shared circuit breaker.
type Client struct {
	embedder Embedder
	chat     ChatModel
	retry    resilience.RetryConfig
	breaker  *resilience.CircuitBreaker
}

var _ Gateway = (*Client)(nil)

// NewClient wires the two providers behind the resilience policy.
func NewClient(embedder Embedder, chat ChatModel, retry resilience.RetryConfig, breaker *resilience.CircuitBreaker) *Client {
	return &Client{
		embedder: embedder,
		chat:     chat,
		retry:    retry,
		breaker:  breaker,
	}
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	return resilience.RetryWithResult(ctx, c.retry, func() ([]float32, error) {
		return resilience.ExecuteWithResult(c.breaker, func() ([]float32, error) {
			return c.embedder.Embed(ctx, text)
		})
	})
}

func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return resilience.RetryWithResult(ctx, c.retry, func() ([][]float32, error) {
		return resilience.ExecuteWithResult(c.breaker, func() ([][]float32, error) {
			return c.embedder.EmbedBatch(ctx, texts)
		})
	})
}

func (c *Client) AnalyzeCodeSecurity(ctx context.Context, contextText, systemPrompt string) (string, error) {
	if c.chat == nil {
		return "", ferrors.ConfigError("no chat provider configured for analysis", nil)
	}
	return resilience.RetryWithResult(ctx, c.retry, func() (string, error) {
		return resilience.ExecuteWithResult(c.breaker, func() (string, error) {
			return c.chat.Complete(ctx, systemPrompt, contextText)
		})
	})
}

func (c *Client) ValidateFindings(ctx context.Context, code, findingsJSON, contextText string) (string, error) {
	if c.chat == nil {
		return "", ferrors.ConfigError("no chat provider configured for validation", nil)
	}
	prompt := buildValidationPrompt(code, findingsJSON, contextText)
	return resilience.RetryWithResult(ctx, c.retry, func() (string, error) {
		return resilience.ExecuteWithResult(c.breaker, func() (string, error) {
			return c.chat.Complete(ctx, validationSystemPrompt, prompt)
		})
	})
}

func (c *Client) CountTokens(text string) int {
	return ApproxTokens(text)
}

func (c *Client) HealthCheck(ctx context.Context) bool {
	return c.embedder.Available(ctx)
}

func (c *Client) Dimensions() int {
	return c.embedder.Dimensions()
}

func (c *Client) Close() error {
	embErr := c.embedder.Close()
	var chatErr error
	if c.chat != nil {
		chatErr = c.chat.Close()
	}
	if embErr != nil {
		return embErr
	}
	return chatErr
}

// validationSystemPrompt frames the second-pass re-evaluation of a prior
// finding set. The per-language analysis prompt proper is supplied by
// the caller of AnalyzeCodeSecurity; validation uses this fixed frame.
const validationSystemPrompt = `You are re-evaluating security findings previously reported for a piece of code.
For each finding, decide whether it is a genuine issue in this code.
Remove false positives. Return the surviving findings as JSON:
{"reviews": [{"issue", "reasoning", "mitigation", "severity", "confidence", "code_snippet"}]}.
Return {"reviews": []} if none survive.`

func buildValidationPrompt(code, findingsJSON, contextText string) string {
	return fmt.Sprintf("CODE UNDER REVIEW:\n%s\n\nPRIOR FINDINGS (JSON):\n%s\n\nFULL ANALYSIS CONTEXT:\n%s",
		code, findingsJSON, contextText)
}
