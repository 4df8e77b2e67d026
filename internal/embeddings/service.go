// Package embeddings generates embedding vectors via an OpenAI-compatible
// embeddings API.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrProviderUnavailable indicates the embedding backend failed after
	// exhausting retries.
	ErrProviderUnavailable = errors.New("embedding provider unavailable")

	// ErrInvalidVector indicates the backend returned a vector with the
	// wrong dimension or a non-finite component.
	ErrInvalidVector = errors.New("invalid embedding vector")
)

const (
	defaultBatchSize   = 100
	defaultMaxChars    = 8000
	defaultMaxRetries  = 3
	defaultTimeout     = 60 * time.Second
	defaultBaseBackoff = time.Second
	defaultMaxBackoff  = 30 * time.Second
	defaultRateLimit   = 10 // requests per second
	defaultBurst       = 5
)

// Config holds configuration for the embedding service.
type Config struct {
	// BaseURL is the OpenAI-compatible API root, e.g. https://api.openai.com/v1
	BaseURL string

	// APIKey authenticates requests. Optional for self-hosted backends.
	APIKey string

	// Model is the embedding model to use.
	Model string

	// Dimension is the expected vector length for Model.
	Dimension int

	// MaxChars is the per-text character budget; longer texts are truncated.
	MaxChars int

	// BatchSize caps how many texts go into one remote call.
	BatchSize int

	// MaxRetries is the retry ceiling per batch for rate-limit and
	// server-side failures.
	MaxRetries int

	// Timeout bounds each HTTP request.
	Timeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.MaxChars == 0 {
		c.MaxChars = defaultMaxChars
	}
	if c.BatchSize == 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	return nil
}

// Service generates validated embedding vectors. Batches are processed
// sequentially to keep remote rate-limit accounting deterministic; retry
// backoff is scoped to the calling goroutine and never blocks other requests.
type Service struct {
	config  Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	metrics *Metrics
}

// NewService creates a new embedding service with the given configuration.
func NewService(config Config, logger *zap.Logger) (*Service, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		logger:  logger,
		metrics: newMetrics(),
	}, nil
}

// Dimension returns the configured embedding dimension.
func (s *Service) Dimension() int {
	return s.config.Dimension
}

// EmbedDocuments generates embeddings for multiple texts, one vector per
// input in the same order. Every returned vector has the configured
// dimension and only finite components.
func (s *Service) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	cleaned := make([]string, len(texts))
	for i, text := range texts {
		cleaned[i] = s.cleanText(text)
	}

	vectors := make([][]float32, 0, len(cleaned))
	for start := 0; start < len(cleaned); start += s.config.BatchSize {
		end := start + s.config.BatchSize
		if end > len(cleaned) {
			end = len(cleaned)
		}

		batch, err := s.embedBatchWithRetry(ctx, cleaned[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}

	for i, vec := range vectors {
		if err := s.validateVector(vec); err != nil {
			return nil, fmt.Errorf("vector %d: %w", i, err)
		}
	}

	return vectors, nil
}

// EmbedQuery generates an embedding for a single text. It is the one-element
// case of EmbedDocuments.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// embedBatchWithRetry issues one remote call for a batch, retrying
// rate-limit and server-side failures with exponential backoff.
func (s *Service) embedBatchWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt < s.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := defaultBaseBackoff * time.Duration(1<<(attempt-1))
			if backoff > defaultMaxBackoff {
				backoff = defaultMaxBackoff
			}
			s.logger.Warn("retrying embedding batch",
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", s.config.MaxRetries),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr),
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		vectors, err := s.embedBatch(ctx, batch)
		if err == nil {
			s.metrics.recordBatch(len(batch), attempt)
			return vectors, nil
		}

		lastErr = err
		if !isRetryable(err) {
			s.metrics.recordFailure("permanent")
			return nil, err
		}
	}

	s.metrics.recordFailure("exhausted")
	return nil, fmt.Errorf("%w: %d attempts failed: %v", ErrProviderUnavailable, s.config.MaxRetries, lastErr)
}

// embedRequest is the request body for the embeddings endpoint.
type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embedResponse is the response body from the embeddings endpoint.
type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// embedBatch performs the actual HTTP request for one batch.
func (s *Service) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(embedRequest{Model: s.config.Model, Input: batch})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST",
		strings.TrimRight(s.config.BaseURL, "/")+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("embedding request failed: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &retryableError{err: fmt.Errorf("rate limited (429)")}
	}
	if resp.StatusCode >= 500 {
		return nil, &retryableError{err: fmt.Errorf("server error (%d): %s", resp.StatusCode, string(respBody))}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding API error (%d): %s", resp.StatusCode, string(respBody))
	}

	var parsed embedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	if len(parsed.Data) != len(batch) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(batch), len(parsed.Data))
	}

	// The API may return entries out of order; the index field is
	// authoritative.
	sort.Slice(parsed.Data, func(i, j int) bool {
		return parsed.Data[i].Index < parsed.Data[j].Index
	})

	vectors := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		vectors[i] = d.Embedding
	}

	s.logger.Debug("generated embeddings",
		zap.Int("count", len(vectors)),
		zap.Int("tokens", parsed.Usage.TotalTokens),
	)

	return vectors, nil
}

// cleanText collapses whitespace and truncates to the character budget. The
// cut backs off to a rune boundary so a multibyte character is never split.
func (s *Service) cleanText(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > s.config.MaxChars {
		cut := s.config.MaxChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
		s.logger.Warn("text truncated for embedding",
			zap.Int("max_chars", s.config.MaxChars),
		)
	}
	return text
}

// validateVector enforces the dimension and finiteness invariants. Invalid
// vectors must never reach a store.
func (s *Service) validateVector(vec []float32) error {
	if len(vec) != s.config.Dimension {
		return fmt.Errorf("%w: dimension %d, want %d", ErrInvalidVector, len(vec), s.config.Dimension)
	}
	for i, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: non-finite component at %d", ErrInvalidVector, i)
		}
	}
	return nil
}

// retryableError marks failures worth retrying on the same backend.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
