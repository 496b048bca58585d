package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/ragmesh/core"
)

func TestMockModel_Streaming(t *testing.T) {
	m := NewMockModel("m").AddResponse("ping", "pong")
	req := Request{Messages: []core.Message{{Role: core.RoleUser, Text: "ping"}}, Stream: true}

	respCh, errCh := m.Generate(context.Background(), req)
	var partials int
	var final string
	for r := range respCh {
		if r.Partial {
			partials++
			continue
		}
		final = r.Text
	}
	require.NoError(t, <-errCh)
	assert.Equal(t, 4, partials)
	assert.Equal(t, "pong", final)
	assert.Equal(t, "mock", m.Info().Provider)
}

func TestCollect(t *testing.T) {
	m := NewMockModel("m")
	text, _, err := Collect(context.Background(), m, Request{Messages: []core.Message{{Role: core.RoleUser, Text: "x"}}, Stream: true})
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: x", text)

	_, _, err = Collect(context.Background(), m, Request{})
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, core.GenerationTimeout, Classify(context.DeadlineExceeded))
	assert.Equal(t, core.GenerationRateLimited, Classify(&StatusError{StatusCode: 429, Err: errors.New("x")}))
	assert.Equal(t, core.GenerationTimeout, Classify(&StatusError{StatusCode: 504, Err: errors.New("x")}))
	assert.Equal(t, core.GenerationUnavailable, Classify(&StatusError{StatusCode: 500, Err: errors.New("x")}))
	assert.Equal(t, core.GenerationUnavailable, Classify(errors.New("dial tcp")))
}

func TestNewRequest_CopiesMessages(t *testing.T) {
	p := core.Prompt{Messages: []core.Message{{Role: core.RoleUser, Text: "a"}}}
	req := NewRequest(p)
	req.Messages[0].Text = "b"
	assert.Equal(t, "a", p.Messages[0].Text)
}
