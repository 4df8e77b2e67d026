package providers

import (
	"context"
	"fmt"
	"time"
)

// OpenAIProvider targets the OpenAI chat completions API.
type OpenAIProvider struct {
	model  string
	client *chatClient
}

var _ ChatProvider = (*OpenAIProvider)(nil)

// NewOpenAIProvider creates an OpenAI-backed provider.
func NewOpenAIProvider(baseURL, apiKey, model string, timeout time.Duration) (*OpenAIProvider, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w: openai base URL required", ErrInvalidConfig)
	}
	if model == "" {
		return nil, fmt.Errorf("%w: openai model required", ErrInvalidConfig)
	}
	return &OpenAIProvider{
		model:  model,
		client: newChatClient(baseURL, apiKey, timeout),
	}, nil
}

func (p *OpenAIProvider) Name() string  { return "openai" }
func (p *OpenAIProvider) Model() string { return p.model }

// Chat makes one completion attempt.
func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	text, tokens, err := p.client.complete(ctx, p.model, req)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	return &ChatResult{
		Text:       text,
		TokensUsed: tokens,
		Provider:   p.Name(),
		Model:      p.model,
	}, nil
}
