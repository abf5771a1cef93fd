package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Embedder turns text into a vector.
type Embedder interface {
	Generate(ctx context.Context, text string) ([]float64, error)
}

// Client handles communication with Ollama for embeddings
type Client struct {
	baseURL       string
	model         string
	client        *http.Client
	maxRetries    uint64
	retryInterval time.Duration
	logger        zerolog.Logger
}

var _ Embedder = (*Client)(nil)

// Option configures a Client
type Option func(*Client)

// WithTimeout sets the per-request HTTP timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.client.Timeout = d }
}

// WithMaxRetries sets how many times a transient failure is retried
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = uint64(n)
		}
	}
}

// WithRetryInterval sets the initial backoff interval
func WithRetryInterval(d time.Duration) Option {
	return func(c *Client) { c.retryInterval = d }
}

// WithLogger sets the client logger
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l.With().Str("component", "embedding").Logger() }
}

// NewClient creates a new Ollama embedding client
func NewClient(baseURL, model string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		model:   model,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxRetries:    3,
		retryInterval: 500 * time.Millisecond,
		logger:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// embedRequest matches OpenAI-compatible API format
type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// embedResponse matches OpenAI-compatible API format
type embedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Generate creates an embedding for the given text. Network errors and 5xx
// responses are retried with exponential backoff; other failures are not.
func (c *Client) Generate(ctx context.Context, text string) ([]float64, error) {
	jsonData, err := json.Marshal(embedRequest{
		Model: c.model,
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.retryInterval
	eb.Multiplier = 2.0
	eb.MaxInterval = 10 * time.Second
	eb.MaxElapsedTime = time.Minute
	eb.RandomizationFactor = 0.2
	eb.Reset()

	url := fmt.Sprintf("%s/v1/embeddings", c.baseURL)
	var embedding []float64
	attempt := 0

	operation := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			c.logger.Warn().Err(err).Int("attempt", attempt).Msg("Embedding request failed, retrying")
			return fmt.Errorf("failed to call embedding API: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			apiErr := fmt.Errorf("embedding API returned status %d: %s", resp.StatusCode, string(body))
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				c.logger.Warn().Int("status", resp.StatusCode).Int("attempt", attempt).Msg("Embedding server error, retrying")
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}

		var embedResp embedResponse
		if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
		}
		if len(embedResp.Data) == 0 || len(embedResp.Data[0].Embedding) == 0 {
			return backoff.Permanent(fmt.Errorf("no embeddings returned"))
		}

		embedding = embedResp.Data[0].Embedding
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(eb, c.maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}

	c.logger.Debug().Int("dims", len(embedding)).Int("attempts", attempt).Msg("Embedding generated")
	return embedding, nil
}
