package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/ragmesh/core"
	"github.com/hupe1980/ragmesh/internal/testutil"
)

func tutorialAndCode() []*core.AgentProfile {
	return []*core.AgentProfile{
		testutil.NewProfile("router", core.ClassRouter).Build(),
		testutil.NewSpecialist("tutorial").Describe("Tutorial assistant: how to configure the model wrapper, agents and pipelines").Build(),
		testutil.NewSpecialist("code").Describe("Code assistant: explains source code and implementation internals").Build(),
		testutil.NewProfile("fallback", core.ClassFallback).Build(),
	}
}

func TestRouter_SelectsTutorial(t *testing.T) {
	plan := New().Select(context.Background(), "How do I configure the model wrapper?", nil, tutorialAndCode())
	assert.Equal(t, []string{"tutorial"}, plan.Specialists)
	assert.False(t, plan.UseFallback)
	assert.NotContains(t, plan.Scores, "router")
	assert.NotContains(t, plan.Scores, "fallback")
}

func TestRouter_NoMatchUsesFallback(t *testing.T) {
	plan := New().Select(context.Background(), "weather in paris tomorrow", nil, tutorialAndCode())
	assert.Empty(t, plan.Specialists)
	assert.True(t, plan.UseFallback)
}

func TestRouter_NoSpecialists(t *testing.T) {
	plan := New().Select(context.Background(), "anything", nil, nil)
	assert.True(t, plan.UseFallback)
}

func TestRouter_TiesKeepDeclarationOrderAndCap(t *testing.T) {
	profiles := []*core.AgentProfile{
		testutil.NewSpecialist("a").Describe("model wrapper").Build(),
		testutil.NewSpecialist("b").Describe("model wrapper").Build(),
		testutil.NewSpecialist("c").Describe("model wrapper").Build(),
		testutil.NewSpecialist("d").Describe("model wrapper").Weight(2).Build(),
	}
	plan := New(func(o *Options) { o.MaxFanout = 3 }).Select(context.Background(), "model wrapper", nil, profiles)
	assert.Equal(t, []string{"d", "a", "b"}, plan.Specialists)
	assert.False(t, plan.Ambiguous)

	plan = New(func(o *Options) { o.MaxFanout = 0 }).Select(context.Background(), "model wrapper", nil, profiles[:3])
	assert.Equal(t, []string{"a", "b", "c"}, plan.Specialists)
	assert.True(t, plan.Ambiguous)
}

func TestRouter_WeightIsMonotonic(t *testing.T) {
	query := "configure agents"
	r := New(func(o *Options) { o.Threshold = 0.4 })
	prev := false
	for _, w := range []float64{0.5, 0.8, 1, 1.5, 3} {
		profiles := []*core.AgentProfile{
			testutil.NewSpecialist("x").Describe("agents overview").Weight(w).Build(),
		}
		selected := len(r.Select(context.Background(), query, nil, profiles).Specialists) == 1
		if prev {
			assert.True(t, selected, "weight %v must not deselect", w)
		}
		prev = selected
	}
	assert.True(t, prev)
}

func TestRouter_ContextTurns(t *testing.T) {
	history := testutil.NewHistory().User("tell me about the model wrapper").Assistant("sure").Build()
	profiles := []*core.AgentProfile{
		testutil.NewSpecialist("tutorial").Describe("model wrapper tutorial").Build(),
	}

	plan := New().Select(context.Background(), "and how do I set it up?", history, profiles)
	assert.True(t, plan.UseFallback)

	plan = New(func(o *Options) { o.ContextTurns = 2 }).Select(context.Background(), "and how do I set it up?", history, profiles)
	assert.Equal(t, []string{"tutorial"}, plan.Specialists)
}

type failingScorer struct{}

func (failingScorer) Score(context.Context, string, []string) ([]float64, error) {
	return nil, errors.New("embedding backend down")
}

func TestRouter_ScorerFailureDegradesToLexical(t *testing.T) {
	plan := New(func(o *Options) { o.Scorer = failingScorer{} }).
		Select(context.Background(), "How do I configure the model wrapper?", nil, tutorialAndCode())
	require.Equal(t, []string{"tutorial"}, plan.Specialists)
}
