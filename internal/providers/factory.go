package providers

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tutord/internal/config"
)

// NewFromConfig builds the orchestrator from configuration, instantiating
// providers in the configured fallback order.
func NewFromConfig(cfg config.ProvidersConfig, logger *zap.Logger) (*Orchestrator, error) {
	var chain []ChatProvider
	for _, name := range cfg.ProviderOrder() {
		switch name {
		case "openai":
			p, err := NewOpenAIProvider(cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.RequestTimeout)
			if err != nil {
				return nil, err
			}
			chain = append(chain, p)
		case "xai":
			p, err := NewXAIProvider(cfg.XAI.BaseURL, cfg.XAI.APIKey, cfg.XAI.Model, cfg.RequestTimeout)
			if err != nil {
				return nil, err
			}
			chain = append(chain, p)
		default:
			return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, name)
		}
	}
	return NewOrchestrator(chain, logger,
		WithFailFast(cfg.FailFast),
		WithGenerationDefaults(cfg.MaxTokens, cfg.Temperature),
	)
}
