// Package openai provides an Embedder backed by an OpenAI-compatible
// embeddings endpoint.
package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sashabaranov/go-openai"

	"github.com/DarioTortorici/cinetech/core"
)

// Config configures the provider.
type Config struct {
	APIKey     string
	BaseURL    string // optional, for compatible endpoints
	Model      string // e.g. text-embedding-3-small
	Dimensions int
	Timeout    time.Duration
	MaxRetries int
}

// Provider implements embedder.Embedder against a remote endpoint.
type Provider struct {
	client     *openai.Client
	model      string
	dimensions int
	timeout    time.Duration
	maxRetries int
}

// New creates a new provider.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = 1536
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Provider{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
	}, nil
}

// Dimensions returns the embedding vector size.
func (p *Provider) Dimensions() int { return p.dimensions }

// Embed converts a single text to an embedding vector.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: empty response", core.ErrEmbeddingUnavailable)
	}
	return vectors[0], nil
}

// EmbedBatch converts multiple texts in one request. The batch is atomic:
// any failure fails the whole call after bounded retries.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(p.maxRetries-1)),
		ctx,
	)

	var results [][]float32
	op := func() error {
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		resp, err := p.client.CreateEmbeddings(callCtx, openai.EmbeddingRequest{
			Input: texts,
			Model: openai.EmbeddingModel(p.model),
		})
		if err != nil {
			return err
		}
		if len(resp.Data) != len(texts) {
			return backoff.Permanent(fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(texts)))
		}

		results = make([][]float32, len(texts))
		for _, data := range resp.Data {
			if len(data.Embedding) != p.dimensions {
				return backoff.Permanent(fmt.Errorf("dimension mismatch: got %d, want %d",
					len(data.Embedding), p.dimensions))
			}
			results[data.Index] = data.Embedding
		}
		return nil
	}

	if err := backoff.Retry(op, policy); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrEmbeddingUnavailable, err)
	}
	return results, nil
}
