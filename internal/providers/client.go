package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultRequestTimeout = 60 * time.Second

	// Client-side request pacing per provider.
	defaultRateLimit = 5 // requests per second
	defaultBurst     = 3
)

// chatClient speaks the OpenAI-compatible /chat/completions wire format.
// Both supported backends expose it, so providers share this transport and
// differ only in endpoint, credential, and model.
type chatClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

func newChatClient(baseURL, apiKey string, timeout time.Duration) *chatClient {
	if timeout == 0 {
		timeout = defaultRequestTimeout
	}
	return &chatClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
	}
}

// chatCompletionRequest is the request body for /chat/completions.
type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

// chatCompletionResponse is the response body from /chat/completions.
type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// complete issues one chat completion call. Rate limits, 5xx responses, and
// transport failures come back as retryable errors.
func (c *chatClient) complete(ctx context.Context, model string, req ChatRequest) (string, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", 0, fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(chatCompletionRequest{
		Model:       model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", 0, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", 0, &retryableError{err: fmt.Errorf("chat request failed: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", 0, &retryableError{err: fmt.Errorf("rate limited (429)")}
	}
	if resp.StatusCode >= 500 {
		return "", 0, &retryableError{err: fmt.Errorf("server error (%d): %s", resp.StatusCode, string(respBody))}
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("chat API error (%d): %s", resp.StatusCode, string(respBody))
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", 0, fmt.Errorf("parsing response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", 0, fmt.Errorf("response contained no choices")
	}

	return parsed.Choices[0].Message.Content, parsed.Usage.TotalTokens, nil
}
