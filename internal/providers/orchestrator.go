package providers

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Orchestrator tries an ordered provider chain until one succeeds. The
// chain is read-only after construction, so concurrent Chat calls need no
// locking.
type Orchestrator struct {
	providers      []ChatProvider
	failFast       bool
	maxTokens      int
	temperature    float64
	hasTemperature bool
	logger         *zap.Logger
	metrics        *Metrics
}

// OrchestratorOption customizes orchestrator behavior.
type OrchestratorOption func(*Orchestrator)

// WithFailFast stops the chain on non-retryable errors (auth failures,
// malformed requests) instead of optimistically trying the next provider.
// The default is optimistic fallback: provider keys and configs are
// independent, so the next provider may still succeed.
func WithFailFast(failFast bool) OrchestratorOption {
	return func(o *Orchestrator) { o.failFast = failFast }
}

// WithGenerationDefaults fills MaxTokens and Temperature on requests that
// leave them unset.
func WithGenerationDefaults(maxTokens int, temperature float64) OrchestratorOption {
	return func(o *Orchestrator) {
		o.maxTokens = maxTokens
		o.temperature = temperature
		o.hasTemperature = true
	}
}

// NewOrchestrator creates an orchestrator over an ordered provider chain.
func NewOrchestrator(chain []ChatProvider, logger *zap.Logger, opts ...OrchestratorOption) (*Orchestrator, error) {
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w: at least one provider required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	o := &Orchestrator{
		providers: chain,
		logger:    logger,
		metrics:   newMetrics(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Providers returns the names of the configured chain in order.
func (o *Orchestrator) Providers() []string {
	names := make([]string, len(o.providers))
	for i, p := range o.providers {
		names[i] = p.Name()
	}
	return names
}

// Chat walks the provider chain in order and returns the first successful
// completion. Exhaustion carries the last observed error for diagnostics.
func (o *Orchestrator) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	if req.MaxTokens == 0 {
		req.MaxTokens = o.maxTokens
	}
	if req.Temperature == nil && o.hasTemperature {
		temperature := o.temperature
		req.Temperature = &temperature
	}

	var lastErr error
	for i, provider := range o.providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := provider.Chat(ctx, req)
		if err == nil {
			o.metrics.recordChat(provider.Name(), "success")
			if i > 0 {
				o.metrics.recordFallback()
				o.logger.Info("provider fallback succeeded",
					zap.String("provider", provider.Name()),
					zap.Int("position", i),
				)
			}
			return result, nil
		}

		lastErr = err
		o.metrics.recordChat(provider.Name(), "error")

		if !IsRetryable(err) && o.failFast {
			o.logger.Error("provider failed with permanent error",
				zap.String("provider", provider.Name()),
				zap.Error(err),
			)
			return nil, err
		}

		o.logger.Warn("provider failed, advancing chain",
			zap.String("provider", provider.Name()),
			zap.Bool("retryable", IsRetryable(err)),
			zap.Error(err),
		)
	}

	o.metrics.recordExhaustion()
	return nil, fmt.Errorf("%w: %d providers tried, last error: %v",
		ErrAllProvidersExhausted, len(o.providers), lastErr)
}
