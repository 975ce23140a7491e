// Package embed provides the embedding client for the retrieval engine:
// an OpenAI-compatible HTTP client with batching under dual size/token
// limits, exponential-backoff retry, token-bucket rate limiting and L2
// normalization of returned vectors.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultModel   = "text-embedding-3-large"
	defaultBaseURL = "https://api.openai.com/v1"

	// maxInputChars truncates over-length inputs before sending
	// (~ the provider's per-input token ceiling). Deliberately lossy.
	maxInputChars = 30000

	// Provider batch limits: item count and estimated token budget.
	maxBatchSize      = 100
	maxTokensPerBatch = 8000

	// charsPerToken is the conservative model-agnostic token estimate.
	charsPerToken = 4
)

// Config configures the embedding client.
type Config struct {
	APIKey            string
	Model             string       // default text-embedding-3-large
	BaseURL           string       // default api.openai.com
	RequestsPerMinute int          // token-bucket rate limit, 0 = unlimited
	HTTPClient        *http.Client // default 60s timeout client
}

// Client calls an OpenAI-compatible embeddings endpoint.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   retryConfig
}

// New creates an embedding client. The API key is required: embedding is the
// one operation that cannot degrade without it.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}

	return &Client{
		apiKey:  cfg.APIKey,
		model:   model,
		baseURL: baseURL,
		http:    httpClient,
		limiter: limiter,
		retry:   defaultRetryConfig(),
	}, nil
}

// Model returns the configured embedding model name.
func (c *Client) Model() string { return c.model }

// EmbedQuery embeds a single query text, truncating over-length input.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return []float32{}, nil
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts, splitting the request into sub-batches under the
// provider's item-count and token-budget limits. The result always has the
// same length as the input; empty or whitespace-only texts map to empty
// vectors without being sent to the provider.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	// Truncate over-length inputs and drop empties, remembering positions.
	valid := make([]string, 0, len(texts))
	for _, t := range texts {
		if len(t) > maxInputChars {
			t = t[:maxInputChars]
		}
		if strings.TrimSpace(t) != "" {
			valid = append(valid, t)
		}
	}

	results := make([][]float32, 0, len(valid))
	for _, batch := range splitBatches(valid) {
		vectors, err := c.embedDirect(ctx, batch)
		if err != nil {
			return nil, err
		}
		results = append(results, vectors...)
	}

	// Re-expand to original index positions.
	out := make([][]float32, len(texts))
	next := 0
	for i, t := range texts {
		if strings.TrimSpace(t) != "" && next < len(results) {
			out[i] = results[next]
			next++
		} else {
			out[i] = []float32{}
		}
	}
	return out, nil
}

// splitBatches groups texts into sub-batches; a new batch starts whenever
// adding the next item would exceed either the item-count or the
// estimated-token limit.
func splitBatches(texts []string) [][]string {
	var batches [][]string
	var current []string
	currentTokens := 0

	for _, t := range texts {
		tokens := estimateTokens(t)
		if len(current) > 0 &&
			(len(current) >= maxBatchSize || currentTokens+tokens > maxTokensPerBatch) {
			batches = append(batches, current)
			current = nil
			currentTokens = 0
		}
		current = append(current, t)
		currentTokens += tokens
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

// estimateTokens approximates the token count as ceil(chars / 4).
func estimateTokens(text string) int {
	return (len(text) + charsPerToken - 1) / charsPerToken
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// embedDirect performs one provider call with rate limiting and retry.
func (c *Client) embedDirect(ctx context.Context, texts []string) ([][]float32, error) {
	return withRetry(ctx, c.retry, func() ([][]float32, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return c.doRequest(ctx, texts)
	})
}

func (c *Client) doRequest(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: c.model, Input: texts})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, classifyHTTPError(resp, string(errBody))
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs",
			len(parsed.Data), len(texts))
	}

	// Providers may return batches out of order, tagged with an index.
	sort.Slice(parsed.Data, func(i, j int) bool {
		return parsed.Data[i].Index < parsed.Data[j].Index
	})

	vectors := make([][]float32, len(parsed.Data))
	for i, item := range parsed.Data {
		vectors[i] = Normalize(item.Embedding)
	}

	slog.Debug("embedded batch", "inputs", len(texts), "tokens", parsed.Usage.TotalTokens)
	return vectors, nil
}

// classifyHTTPError maps provider status codes onto the error taxonomy:
// auth failures are permanent, rate limits carry a Retry-After hint,
// everything else (5xx included) is a plain retryable error.
func classifyHTTPError(resp *http.Response, body string) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{StatusCode: resp.StatusCode, Body: body}
	case resp.StatusCode == http.StatusTooManyRequests:
		var retryAfter time.Duration
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, err := strconv.Atoi(v); err == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return &RateLimitError{RetryAfter: retryAfter, Body: body}
	default:
		return fmt.Errorf("embedding request failed: status %d: %s", resp.StatusCode, body)
	}
}

// Normalize sanitizes a raw provider vector (non-finite components become 0)
// and L2-normalizes it to unit length. A zero-norm vector is returned
// sanitized but unnormalized.
func Normalize(raw []float64) []float32 {
	sanitized := make([]float32, len(raw))
	var sum float64
	for i, v := range raw {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		sanitized[i] = float32(v)
		sum += v * v
	}

	norm := math.Sqrt(sum)
	if norm == 0 {
		return sanitized
	}
	for i := range sanitized {
		sanitized[i] = float32(float64(sanitized[i]) / norm)
	}
	return sanitized
}
