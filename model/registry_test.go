package model

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/ragmesh/core"
)

func prompt(text string) core.Prompt {
	return core.Prompt{Instructions: "be brief", Messages: []core.Message{{Role: core.RoleUser, Text: text}}}
}

func TestRegistry_Generate(t *testing.T) {
	r := NewRegistry()
	r.Register("gpt", NewMockModel("gpt").AddResponse("hi", "hello"))

	text, err := r.Generate(context.Background(), "gpt", prompt("hi"))
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.True(t, r.Has("gpt"))
	assert.Equal(t, []string{"gpt"}, r.IDs())
}

func TestRegistry_UnknownModel(t *testing.T) {
	_, err := NewRegistry().Generate(context.Background(), "nope", prompt("hi"))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUnknownModel)
	assert.ErrorIs(t, err, core.ErrGenerationUnavailable)
}

func TestRegistry_ClassifiesFailures(t *testing.T) {
	r := NewRegistry()
	r.Register("down", NewMockModel("down").SetError(errors.New("connection refused")))
	r.Register("limited", NewMockModel("limited").SetError(&StatusError{Provider: "openai", StatusCode: 429, Err: errors.New("slow down")}))
	r.Register("slow", NewMockModel("slow").SetDelay(time.Second), func(o *EndpointOptions) { o.Timeout = 20 * time.Millisecond })

	_, err := r.Generate(context.Background(), "down", prompt("x"))
	assert.ErrorIs(t, err, core.ErrGenerationUnavailable)

	_, err = r.Generate(context.Background(), "limited", prompt("x"))
	assert.ErrorIs(t, err, core.ErrGenerationRateLimited)

	_, err = r.Generate(context.Background(), "slow", prompt("x"))
	assert.ErrorIs(t, err, core.ErrGenerationTimeout)

	var ge *core.GenerationError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "slow", ge.Model)
}

func TestRegistry_CallBudget(t *testing.T) {
	r := NewRegistry()
	m := NewMockModel("gpt")
	r.Register("gpt", m)

	ctx := core.WithModelLimiter(context.Background(), core.NewModelLimiter(1))
	_, err := r.Generate(ctx, "gpt", prompt("a"))
	require.NoError(t, err)

	_, err = r.Generate(ctx, "gpt", prompt("b"))
	assert.ErrorIs(t, err, core.ErrGenerationUnavailable)
	assert.ErrorContains(t, err, "budget")
	assert.Equal(t, 1, m.Calls(), "an exhausted budget never reaches the backend")
}

func TestRegistry_BreakerOpens(t *testing.T) {
	r := NewRegistry(func(o *RegistryOptions) {
		o.BreakerMaxFailures = 2
		o.BreakerTimeout = time.Minute
	})
	m := NewMockModel("flaky").SetError(errors.New("boom"))
	r.Register("flaky", m)

	for i := 0; i < 2; i++ {
		_, err := r.Generate(context.Background(), "flaky", prompt("x"))
		require.Error(t, err)
	}
	state, ok := r.BreakerState("flaky")
	require.True(t, ok)
	assert.Equal(t, gobreaker.StateOpen, state)

	_, err := r.Generate(context.Background(), "flaky", prompt("x"))
	assert.ErrorIs(t, err, core.ErrGenerationUnavailable)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, m.Calls())
}

func TestRegistry_RateLimit(t *testing.T) {
	r := NewRegistry()
	r.Register("gpt", NewMockModel("gpt"), func(o *EndpointOptions) {
		o.RequestsPerSecond = 0.001
		o.Burst = 1
	})

	_, err := r.Generate(context.Background(), "gpt", prompt("a"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = r.Generate(ctx, "gpt", prompt("b"))
	assert.ErrorIs(t, err, core.ErrGenerationRateLimited)
}

func TestGenerateWithFailover(t *testing.T) {
	t.Run("primary succeeds", func(t *testing.T) {
		r := NewRegistry()
		sec := NewMockModel("b")
		r.Register("a", NewMockModel("a").SetDefault("from a"))
		r.Register("b", sec)

		text, used, err := GenerateWithFailover(context.Background(), r, nil, "a", "b", prompt("q"))
		require.NoError(t, err)
		assert.Equal(t, "from a", text)
		assert.Equal(t, "a", used)
		assert.Zero(t, sec.Calls())
	})

	t.Run("primary timeout, secondary answers", func(t *testing.T) {
		r := NewRegistry()
		pri := NewMockModel("a").SetDelay(time.Second)
		sec := NewMockModel("b").SetDefault("from b")
		r.Register("a", pri, func(o *EndpointOptions) { o.Timeout = 10 * time.Millisecond })
		r.Register("b", sec)

		text, used, err := GenerateWithFailover(context.Background(), r, nil, "a", "b", prompt("q"))
		require.NoError(t, err)
		assert.Equal(t, "from b", text)
		assert.Equal(t, "b", used)
		assert.Equal(t, 1, pri.Calls())
		assert.Equal(t, 1, sec.Calls())
	})

	t.Run("both fail, single failover", func(t *testing.T) {
		r := NewRegistry()
		pri := NewMockModel("a").SetError(errors.New("down"))
		sec := NewMockModel("b").SetError(errors.New("down too"))
		r.Register("a", pri)
		r.Register("b", sec)

		_, used, err := GenerateWithFailover(context.Background(), r, nil, "a", "b", prompt("q"))
		assert.ErrorIs(t, err, core.ErrGenerationUnavailable)
		assert.Equal(t, "b", used)
		assert.Equal(t, 1, pri.Calls())
		assert.Equal(t, 1, sec.Calls())
	})

	t.Run("no secondary", func(t *testing.T) {
		r := NewRegistry()
		r.Register("a", NewMockModel("a").SetError(errors.New("down")))
		_, used, err := GenerateWithFailover(context.Background(), r, nil, "a", "", prompt("q"))
		assert.Error(t, err)
		assert.Equal(t, "a", used)
	})
}
