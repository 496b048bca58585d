package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/ragmesh/core"
	"github.com/hupe1980/ragmesh/model"
)

func TestModel_Generate(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude",
			"content":[{"type":"text","text":"See the tutorial [1]."}],
			"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":4}}`))
	}))
	defer srv.Close()

	m := NewModel(func(o *Options) {
		o.BaseURL = srv.URL
		o.APIKey = "test"
		o.MaxRetries = 0
	})
	text, usage, err := model.Collect(context.Background(), m, model.Request{
		Instructions: "You are a tutorial assistant.",
		Messages: []core.Message{
			{Role: core.RoleUser, Text: "## Conversation History\nuser: hi"},
			{Role: core.RoleUser, Text: "How do I use models?"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "See the tutorial [1].", text)
	assert.Equal(t, 14, usage.TotalTokens)

	msgs := body["messages"].([]any)
	assert.Len(t, msgs, 1, "consecutive user messages are merged")
	assert.NotNil(t, body["system"])
}

func TestModel_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer srv.Close()

	m := NewModel(func(o *Options) {
		o.BaseURL = srv.URL
		o.APIKey = "test"
		o.MaxRetries = 0
	})
	_, _, err := model.Collect(context.Background(), m, model.Request{Messages: []core.Message{{Role: core.RoleUser, Text: "hi"}}})
	require.Error(t, err)
	assert.Equal(t, core.GenerationRateLimited, model.Classify(err))
}

func TestBuildMessages_Alternates(t *testing.T) {
	msgs := buildMessages([]core.Message{
		{Role: core.RoleUser, Text: "a"},
		{Role: core.RoleAssistant, Text: "b"},
		{Role: core.RoleSystem, Text: "ignored"},
		{Role: core.RoleUser, Text: "c"},
	})
	assert.Len(t, msgs, 3)
}
