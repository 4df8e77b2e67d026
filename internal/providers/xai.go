package providers

import (
	"context"
	"fmt"
	"time"
)

// XAIProvider targets the xAI Grok API, which exposes the same chat
// completions wire format as OpenAI at a different endpoint.
type XAIProvider struct {
	model  string
	client *chatClient
}

var _ ChatProvider = (*XAIProvider)(nil)

// NewXAIProvider creates an xAI-backed provider.
func NewXAIProvider(baseURL, apiKey, model string, timeout time.Duration) (*XAIProvider, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w: xai base URL required", ErrInvalidConfig)
	}
	if model == "" {
		return nil, fmt.Errorf("%w: xai model required", ErrInvalidConfig)
	}
	return &XAIProvider{
		model:  model,
		client: newChatClient(baseURL, apiKey, timeout),
	}, nil
}

func (p *XAIProvider) Name() string  { return "xai" }
func (p *XAIProvider) Model() string { return p.model }

// Chat makes one completion attempt.
func (p *XAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	text, tokens, err := p.client.complete(ctx, p.model, req)
	if err != nil {
		return nil, fmt.Errorf("xai: %w", err)
	}
	return &ChatResult{
		Text:       text,
		TokensUsed: tokens,
		Provider:   p.Name(),
		Model:      p.model,
	}, nil
}
