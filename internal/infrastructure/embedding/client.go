// Package embedding turns food names into embedding vectors through an
// OpenAI-compatible embeddings API.
package embedding

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/foodbase/etl/internal/domain"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

// Client calls the embeddings endpoint
type Client struct {
	client      *openai.Client
	model       openai.EmbeddingModel
	dimensions  int
	rateLimiter *rate.Limiter
	debug       bool
}

// NewClient creates a new embedding client. baseURL may point at any
// OpenAI-compatible server; requestsPerMinute <= 0 disables rate limiting.
func NewClient(apiKey, baseURL, model string, dimensions, requestsPerMinute int) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{
		Timeout:   60 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if requestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60), max(1, requestsPerMinute/60))
	}

	return &Client{
		client:      openai.NewClientWithConfig(cfg),
		model:       openai.EmbeddingModel(model),
		dimensions:  dimensions,
		rateLimiter: limiter,
	}
}

// SetDebug enables verbose logging
func (c *Client) SetDebug(debug bool) {
	c.debug = debug
}

// Embed returns one vector per input text, in input order
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: c.model,
	}
	// only the text-embedding-3 family accepts a reduced dimension count
	if c.dimensions > 0 && strings.HasPrefix(string(c.model), "text-embedding-3") {
		req.Dimensions = c.dimensions
	}

	start := time.Now()
	resp, err := c.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbeddingFailure, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", domain.ErrEmbeddingFailure, len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) || vectors[d.Index] != nil {
			return nil, fmt.Errorf("%w: unexpected embedding index %d", domain.ErrEmbeddingFailure, d.Index)
		}
		vectors[d.Index] = d.Embedding
	}

	if c.debug {
		log.Printf("[EMBED] %d texts embedded in %v (%d tokens)", len(texts), time.Since(start).Round(time.Millisecond), resp.Usage.TotalTokens)
	}
	return vectors, nil
}
