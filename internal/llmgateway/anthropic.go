package llmgateway

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	ferrors "github.com/falconeye/falconeye/internal/errors"
)

// AnthropicConfig configures the chat adapter.
type AnthropicConfig struct {
	// APIKey falls back to the ANTHROPIC_API_KEY environment variable.
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string
}

const (
	defaultAnthropicModel = "claude-sonnet-4-5"
	defaultMaxTokens      = 8192
	defaultChatTimeout    = 120 * time.Second
)

// AnthropicChat runs chat completions through the Anthropic SDK.
type AnthropicChat struct {
	client    anthropic.Client
	model     string
	maxTokens int
	timeout   time.Duration
}

var _ ChatModel = (*AnthropicChat)(nil)

// NewAnthropicChat builds the adapter. The API key is resolved from the
// config, then the environment.
func NewAnthropicChat(cfg AnthropicConfig) (*AnthropicChat, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, ferrors.ConfigError(
			"Anthropic API key is required (set ANTHROPIC_API_KEY or llm config)", nil)
	}
	if cfg.Model == "" {
		cfg.Model = defaultAnthropicModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultChatTimeout
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicChat{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
	}, nil
}

// Complete sends one user turn with an optional system prompt and
// returns the concatenated text blocks of the response.
func (a *AnthropicChat) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if strings.TrimSpace(userPrompt) == "" {
		return "", ferrors.ValidationError("user prompt must not be empty", nil)
	}

	reqCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: int64(a.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	resp, err := a.client.Messages.New(reqCtx, params)
	if err != nil {
		return "", ferrors.New(ferrors.ErrCodeNetworkUnavailable,
			fmt.Sprintf("chat completion failed: %v", err), err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", ferrors.New(ferrors.ErrCodeParseFailed, "empty response from model", nil)
	}
	return text.String(), nil
}

// Close is a no-op; the SDK client holds no resources needing cleanup.
func (a *AnthropicChat) Close() error {
	return nil
}
