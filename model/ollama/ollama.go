// Package ollama provides model.Model and core.Embedder implementations for
// a local Ollama server using its native REST API.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/hupe1980/ragmesh/core"
	"github.com/hupe1980/ragmesh/model"
)

// Defaults for a local server.
const (
	DefaultHost      = "http://127.0.0.1:11434"
	DefaultKeepAlive = "5m"
	DefaultTimeout   = 300 * time.Second
)

// Options configure the Ollama chat model.
type Options struct {
	Model string
	Host  string
	// KeepAlive controls how long the server keeps the model loaded.
	KeepAlive string
	// Options are passed through as Ollama generation options
	// (temperature, num_ctx, ...).
	Options map[string]any
	Timeout time.Duration
}

// Model talks to POST /api/chat with streaming disabled.
type Model struct {
	http *resty.Client
	opts Options
}

// NewModel creates an Ollama chat model.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := Options{Host: DefaultHost, KeepAlive: DefaultKeepAlive, Timeout: DefaultTimeout}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{http: newHTTPClient(opts.Host, opts.Timeout), opts: opts}
}

func newHTTPClient(host string, timeout time.Duration) *resty.Client {
	if host == "" {
		host = DefaultHost
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return resty.New().
		SetBaseURL(strings.TrimRight(host, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string         `json:"model"`
	Messages  []chatMessage  `json:"messages"`
	Stream    bool           `json:"stream"`
	KeepAlive string         `json:"keep_alive,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Model           string      `json:"model"`
	Message         chatMessage `json:"message"`
	Done            bool        `json:"done"`
	DoneReason      string      `json:"done_reason"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Generate implements model.Model.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 1)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)

		body := chatRequest{
			Model:     m.opts.Model,
			Messages:  buildMessages(req),
			KeepAlive: m.opts.KeepAlive,
			Options:   m.opts.Options,
		}
		var res chatResponse
		var apiErr errorResponse
		resp, err := m.http.R().
			SetContext(ctx).
			SetBody(body).
			SetResult(&res).
			SetError(&apiErr).
			Post("/api/chat")
		if err != nil {
			errCh <- fmt.Errorf("ollama chat: %w", err)
			return
		}
		if resp.IsError() {
			errCh <- &model.StatusError{Provider: "ollama", StatusCode: resp.StatusCode(), Err: errors.New(errText(apiErr, resp))}
			return
		}
		reason := res.DoneReason
		if reason == "" {
			reason = "stop"
		}
		out <- model.Response{
			Text:         res.Message.Content,
			FinishReason: reason,
			Usage: &model.TokenUsage{
				PromptTokens:     res.PromptEvalCount,
				CompletionTokens: res.EvalCount,
				TotalTokens:      res.PromptEvalCount + res.EvalCount,
			},
		}
	}()
	return out, errCh
}

func buildMessages(req model.Request) []chatMessage {
	msgs := make([]chatMessage, 0, len(req.Messages)+1)
	if req.Instructions != "" {
		msgs = append(msgs, chatMessage{Role: string(core.RoleSystem), Content: req.Instructions})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, chatMessage{Role: string(m.Role), Content: m.Text})
	}
	return msgs
}

func errText(apiErr errorResponse, resp *resty.Response) string {
	if apiErr.Error != "" {
		return apiErr.Error
	}
	return resp.String()
}

// Info implements model.Model.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.opts.Model, Provider: "ollama"}
}

// EmbedderOptions configure the Ollama embedder.
type EmbedderOptions struct {
	Model     string
	Host      string
	KeepAlive string
	Timeout   time.Duration
}

// Embedder implements core.Embedder with POST /api/embeddings.
type Embedder struct {
	http *resty.Client
	opts EmbedderOptions
}

// NewEmbedder creates an Ollama embedder.
func NewEmbedder(optFns ...func(o *EmbedderOptions)) *Embedder {
	opts := EmbedderOptions{Host: DefaultHost, KeepAlive: DefaultKeepAlive, Timeout: DefaultTimeout}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Embedder{http: newHTTPClient(opts.Host, opts.Timeout), opts: opts}
}

type embedRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	KeepAlive string `json:"keep_alive,omitempty"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed implements core.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var res embedResponse
	var apiErr errorResponse
	resp, err := e.http.R().
		SetContext(ctx).
		SetBody(embedRequest{Model: e.opts.Model, Prompt: text, KeepAlive: e.opts.KeepAlive}).
		SetResult(&res).
		SetError(&apiErr).
		Post("/api/embeddings")
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: %w", err)
	}
	if resp.IsError() {
		return nil, &model.StatusError{Provider: "ollama", StatusCode: resp.StatusCode(), Err: errors.New(errText(apiErr, resp))}
	}
	if len(res.Embedding) == 0 {
		return nil, errors.New("ollama embeddings: empty vector")
	}
	return res.Embedding, nil
}

var (
	_ model.Model   = (*Model)(nil)
	_ core.Embedder = (*Embedder)(nil)
)
