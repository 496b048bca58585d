package agent

import (
	"context"

	"github.com/hupe1980/ragmesh/core"
	"github.com/hupe1980/ragmesh/logging"
	"github.com/hupe1980/ragmesh/model"
)

// DefaultFloorText is returned when the fallback model is not configured or fails.
const DefaultFloorText = "I'm sorry, I couldn't find an answer to that. Could you rephrase the question or add more detail?"

// FallbackOptions configures a Fallback.
type FallbackOptions struct {
	Logger *logging.MeshLogger
	// FloorText is the canned answer used when generation fails. An empty
	// FloorText turns generation failures into errors.
	FloorText string
}

// Fallback answers queries no specialist could handle. It never retrieves.
type Fallback struct {
	models core.ModelClient
	opts   FallbackOptions
}

// NewFallback creates a Fallback. mc may be nil, in which case every
// answer is the floor text.
func NewFallback(mc core.ModelClient, optFns ...func(o *FallbackOptions)) *Fallback {
	opts := FallbackOptions{FloorText: DefaultFloorText}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	opts.Logger = opts.Logger.WithComponent("fallback")
	return &Fallback{models: mc, opts: opts}
}

// Answer generates a generic reply from the profile's instruction, the
// session history and the query. The candidate always has confidence 0.
func (f *Fallback) Answer(ctx context.Context, query string, history []core.Turn, p *core.AgentProfile) (core.CandidateAnswer, error) {
	id := "fallback"
	if p != nil {
		id = p.ID
	}
	ca := core.CandidateAnswer{AgentID: id, Citations: []string{}, Confidence: 0, ImportanceWeight: 1}

	var genErr error
	if p != nil && p.PrimaryModel != "" && f.models != nil {
		if !p.UseMemory {
			history = nil
		}
		instruction, err := renderInstruction(p)
		if err != nil {
			instruction = p.Instruction
		}
		text, used, err := model.GenerateWithFailover(ctx, f.models, f.opts.Logger, p.PrimaryModel, p.SecondaryModel, BuildPrompt(instruction, nil, history, query))
		if err == nil {
			ca.Text, ca.Model, ca.ImportanceWeight = text, used, p.Weight()
			return ca, nil
		}
		genErr = asGenerationError(used, err)
		f.opts.Logger.Warn("Fallback generation failed", "agent", id, "error", genErr.Error())
	}

	if ctx.Err() != nil {
		return core.CandidateAnswer{}, ctx.Err()
	}
	if f.opts.FloorText == "" {
		if genErr == nil {
			genErr = &core.GenerationError{Kind: core.GenerationUnavailable, Err: core.ErrUnknownModel}
		}
		return core.CandidateAnswer{}, genErr
	}
	ca.Text = f.opts.FloorText
	return ca, nil
}
