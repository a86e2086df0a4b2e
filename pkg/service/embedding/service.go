package embedding

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/shiori-lab/shiori/pkg/domain/model"
)

// Service generates embedding vectors for text
type Service interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// client implements Service interface
type client struct {
	llmClient gollem.LLMClient
	dimension int
}

// Option is a functional option for client configuration
type Option func(*client)

// WithDimension overrides the embedding dimension
func WithDimension(dim int) Option {
	return func(c *client) {
		c.dimension = dim
	}
}

// New creates a new embedding service with the provided LLM client
func New(llmClient gollem.LLMClient, opts ...Option) (Service, error) {
	if llmClient == nil {
		return nil, goerr.New("LLM client is required")
	}

	c := &client{
		llmClient: llmClient,
		dimension: model.EmbeddingDimension,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Embed generates an embedding vector for the given text. Provider failures
// are tagged transient so that the caller can retry.
func (c *client) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, goerr.New("text is required for embedding")
	}

	embeddings, err := c.llmClient.GenerateEmbedding(ctx, c.dimension, []string{text})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate embedding", goerr.T(model.TagTransient))
	}

	if len(embeddings) == 0 {
		return nil, goerr.New("no embedding returned", goerr.T(model.TagTransient))
	}
	if len(embeddings[0]) != c.dimension {
		return nil, goerr.New("unexpected embedding dimension",
			goerr.V("expected", c.dimension), goerr.V("actual", len(embeddings[0])))
	}

	// Convert float64 to float32
	result := make([]float32, len(embeddings[0]))
	for i, v := range embeddings[0] {
		result[i] = float32(v)
	}

	return result, nil
}
