package assistant

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	DefaultGeminiModel    = "gemini-2.5-flash"
	DefaultAnthropicModel = "claude-sonnet-4-5"

	anthropicMaxTokens = 4096
)

// ProviderConfig selects and authenticates a Provider.
type ProviderConfig struct {
	Name            string // "gemini" or "anthropic"
	Model           string
	GeminiAPIKey    string
	AnthropicAPIKey string
}

// NewProvider builds the configured provider. It returns a nil Provider and
// no error when the selected provider has no credential, which leaves the
// Bridge unconfigured rather than failing startup.
func NewProvider(ctx context.Context, cfg ProviderConfig, httpClient *http.Client, logger *zap.Logger) (Provider, error) {
	switch strings.ToLower(cfg.Name) {
	case "", "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, nil
		}
		p, err := NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.Model, httpClient)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, nil
		}
		return NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.Model, httpClient, logger), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Name)
	}
}

// GeminiProvider calls the Gemini API through google.golang.org/genai.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

func NewGeminiProvider(ctx context.Context, apiKey, model string, httpClient *http.Client) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiProvider{client: client, model: model}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("Gemini API error: %w", err)
	}
	return resp.Text(), nil
}

// AnthropicProvider calls the Messages API.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
	logger *zap.Logger
}

func NewAnthropicProvider(apiKey, model string, httpClient *http.Client, logger *zap.Logger) *AnthropicProvider {
	if model == "" {
		model = DefaultAnthropicModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &AnthropicProvider{client: anthropic.NewClient(opts...), model: model, logger: logger}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Generate(ctx context.Context, prompt string) (string, error) {
	message, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: anthropicMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("Anthropic API error: %w", err)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	p.logger.Debug("anthropic usage",
		zap.Int64("tokens_in", message.Usage.InputTokens),
		zap.Int64("tokens_out", message.Usage.OutputTokens),
	)
	return sb.String(), nil
}
