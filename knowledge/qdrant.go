package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/hupe1980/ragmesh/core"
)

const (
	qdrantDefaultTimeout     = 10 * time.Second
	qdrantDefaultSourceField = "source_path"
	qdrantDefaultTextField   = "text"
)

// QdrantOptions configures a QdrantClient.
type QdrantOptions struct {
	// URL is the Qdrant REST endpoint, e.g. http://localhost:6333.
	URL    string
	APIKey string
	// Collections maps knowledge ids to collection names. Unmapped ids use
	// the knowledge id as collection name.
	Collections map[string]string
	// MinScore drops hits below the threshold (0 disables).
	MinScore    float64
	SourceField string
	TextField   string
	Timeout     time.Duration
	RetryCount  int
}

// QdrantClient searches Qdrant collections with query vectors produced by an
// Embedder. It is safe for concurrent use; the underlying HTTP connections
// are pooled by resty.
type QdrantClient struct {
	http     *resty.Client
	embedder core.Embedder
	opts     QdrantOptions
}

// NewQdrantClient creates a client. The embedder must produce vectors of the
// collection's dimension.
func NewQdrantClient(embedder core.Embedder, optFns ...func(o *QdrantOptions)) (*QdrantClient, error) {
	opts := QdrantOptions{
		URL:         "http://localhost:6333",
		SourceField: qdrantDefaultSourceField,
		TextField:   qdrantDefaultTextField,
		Timeout:     qdrantDefaultTimeout,
		RetryCount:  2,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if embedder == nil {
		return nil, errors.New("qdrant: embedder is required")
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.URL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
			}
			return r != nil && (r.StatusCode() >= 500 || r.StatusCode() == 429)
		})
	if opts.APIKey != "" {
		client.SetHeader("api-key", opts.APIKey)
	}
	return &QdrantClient{http: client, embedder: embedder, opts: opts}, nil
}

type qdrantSearchRequest struct {
	Vector         []float32 `json:"vector"`
	Limit          int       `json:"limit"`
	WithPayload    bool      `json:"with_payload"`
	ScoreThreshold *float64  `json:"score_threshold,omitempty"`
}

type qdrantPoint struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

type qdrantSearchResponse struct {
	Result []qdrantPoint `json:"result"`
	Status any           `json:"status"`
}

// Search implements core.KnowledgeClient.
func (c *QdrantClient) Search(ctx context.Context, knowledgeID string, query string, topK int) (core.RetrievalResult, error) {
	vec, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return core.RetrievalResult{}, fmt.Errorf("qdrant: embed query: %w", err)
	}
	collection := c.collection(knowledgeID)
	body := qdrantSearchRequest{Vector: vec, Limit: topK, WithPayload: true}
	if c.opts.MinScore > 0 {
		thr := c.opts.MinScore
		body.ScoreThreshold = &thr
	}

	var out qdrantSearchResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("collection", collection).
		SetBody(body).
		SetResult(&out).
		Post("/collections/{collection}/points/search")
	if err != nil {
		return core.RetrievalResult{}, fmt.Errorf("qdrant search %q: %w", collection, err)
	}
	if resp.IsError() {
		return core.RetrievalResult{}, fmt.Errorf("qdrant search %q: status %d: %s", collection, resp.StatusCode(), resp.String())
	}

	passages := make([]core.Passage, 0, len(out.Result))
	for _, pt := range out.Result {
		passages = append(passages, core.Passage{
			ID:         fmt.Sprint(pt.ID),
			SourcePath: payloadString(pt.Payload, c.opts.SourceField),
			Score:      pt.Score,
			Text:       payloadString(pt.Payload, c.opts.TextField),
			Metadata:   pt.Payload,
		})
	}
	if topK > 0 && len(passages) > topK {
		passages = passages[:topK]
	}
	return core.RetrievalResult{KnowledgeID: knowledgeID, Passages: passages}, nil
}

func (c *QdrantClient) collection(knowledgeID string) string {
	if name, ok := c.opts.Collections[knowledgeID]; ok && name != "" {
		return name
	}
	return knowledgeID
}

func payloadString(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

var _ core.KnowledgeClient = (*QdrantClient)(nil)
