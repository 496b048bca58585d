package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/hupe1980/ragmesh/core"
)

// EmbedderOptions configure the OpenAI embedder.
type EmbedderOptions struct {
	Model   string
	APIKey  string
	BaseURL string
}

// Embedder implements core.Embedder with the OpenAI Embeddings API.
type Embedder struct {
	client *openai.Client
	opts   EmbedderOptions
}

// NewEmbedder creates an embedder using the official client.
func NewEmbedder(optFns ...func(o *EmbedderOptions)) *Embedder {
	opts := EmbedderOptions{Model: openai.EmbeddingModelTextEmbedding3Small}
	for _, fn := range optFns {
		fn(&opts)
	}
	client := openai.NewClient(clientOptions(opts.APIKey, opts.BaseURL)...)
	return &Embedder{client: &client, opts: opts}
}

// Embed implements core.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: e.opts.Model,
	})
	if err != nil {
		return nil, classify(fmt.Errorf("openai embeddings error: %w", err))
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai embeddings: empty response")
	}
	src := resp.Data[0].Embedding
	vec := make([]float32, len(src))
	for i, v := range src {
		vec[i] = float32(v)
	}
	return vec, nil
}

var _ core.Embedder = (*Embedder)(nil)
