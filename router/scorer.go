package router

import (
	"context"
	"fmt"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hupe1980/ragmesh/core"
	"github.com/hupe1980/ragmesh/internal/util"
)

// Scorer rates how relevant each description is to a query. Scores are in
// [0,1] and returned in description order.
type Scorer interface {
	Score(ctx context.Context, query string, descriptions []string) ([]float64, error)
}

// LexicalScorer scores by the share of query terms found in a description.
type LexicalScorer struct{}

// Score implements Scorer.
func (LexicalScorer) Score(_ context.Context, query string, descriptions []string) ([]float64, error) {
	q := util.TermSet(query)
	scores := make([]float64, len(descriptions))
	for i, d := range descriptions {
		scores[i] = util.Overlap(q, util.TermSet(d))
	}
	return scores, nil
}

// DefaultEmbeddingCacheSize bounds cached description vectors.
const DefaultEmbeddingCacheSize = 1024

// EmbeddingScorer scores by cosine similarity between the query and
// description embeddings. Description vectors are cached; the query is
// embedded once per call. Negative similarities score zero.
type EmbeddingScorer struct {
	embedder core.Embedder
	cache    *lru.Cache[string, []float32]
}

// NewEmbeddingScorer creates a scorer caching up to cacheSize descriptions.
func NewEmbeddingScorer(embedder core.Embedder, cacheSize int) (*EmbeddingScorer, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultEmbeddingCacheSize
	}
	cache, err := lru.New[string, []float32](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &EmbeddingScorer{embedder: embedder, cache: cache}, nil
}

// Score implements Scorer.
func (s *EmbeddingScorer) Score(ctx context.Context, query string, descriptions []string) ([]float64, error) {
	qv, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	scores := make([]float64, len(descriptions))
	for i, d := range descriptions {
		if d == "" {
			continue
		}
		dv, ok := s.cache.Get(d)
		if !ok {
			dv, err = s.embedder.Embed(ctx, d)
			if err != nil {
				return nil, fmt.Errorf("embed description: %w", err)
			}
			s.cache.Add(d, dv)
		}
		scores[i] = math.Max(0, cosineSimilarity(qv, dv))
	}
	return scores, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dotProduct += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

var (
	_ Scorer = LexicalScorer{}
	_ Scorer = (*EmbeddingScorer)(nil)
)
