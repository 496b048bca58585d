package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/ragmesh/core"
	"github.com/hupe1980/ragmesh/logging"
	"github.com/hupe1980/ragmesh/model"
)

// ErrNoCandidates is returned by Merge for an empty candidate list.
var ErrNoCandidates = errors.New("no candidate answers")

const defaultSynthesisInstruction = `You combine answers from several specialists into one response.
Keep the first answer as the backbone, add only facts the others contribute and do not invent sources.`

// SummarizerOptions configures a Summarizer.
type SummarizerOptions struct {
	Logger *logging.MeshLogger
}

// Summarizer merges candidate answers into a final answer.
type Summarizer struct {
	models core.ModelClient
	opts   SummarizerOptions
}

// NewSummarizer creates a Summarizer. mc may be nil when no summarizer
// profile names a model.
func NewSummarizer(mc core.ModelClient, optFns ...func(o *SummarizerOptions)) *Summarizer {
	opts := SummarizerOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	opts.Logger = opts.Logger.WithComponent("summarizer")
	return &Summarizer{models: mc, opts: opts}
}

// Merge combines candidates in the given order. A single candidate passes
// through unchanged. With several candidates the one with the highest
// confidence times importance weight forms the backbone; citations are the
// union in candidate order. p is the summarizer profile and may be nil.
func (s *Summarizer) Merge(ctx context.Context, query string, candidates []core.CandidateAnswer, p *core.AgentProfile) (core.FinalAnswer, error) {
	if len(candidates) == 0 {
		return core.FinalAnswer{}, ErrNoCandidates
	}

	fa := core.FinalAnswer{Citations: []string{}, Agents: make([]string, 0, len(candidates))}
	seen := make(map[string]struct{})
	for _, c := range candidates {
		fa.Citations = core.AppendUnique(fa.Citations, seen, c.Citations...)
		fa.Agents = append(fa.Agents, c.AgentID)
	}

	if len(candidates) == 1 {
		fa.Text = candidates[0].Text
		return fa, nil
	}

	ordered := rank(candidates)
	fa.Text = backbone(ordered)

	if p != nil && p.PrimaryModel != "" && s.models != nil {
		text, _, err := model.GenerateWithFailover(ctx, s.models, s.opts.Logger, p.PrimaryModel, p.SecondaryModel, s.synthesisPrompt(p, query, ordered))
		if err != nil {
			s.opts.Logger.Warn("Synthesis failed, using backbone merge", "error", err.Error())
		} else if strings.TrimSpace(text) != "" {
			fa.Text = text
		}
	}
	return fa, nil
}

// rank orders candidates by confidence times weight, keeping the input
// order on ties.
func rank(candidates []core.CandidateAnswer) []core.CandidateAnswer {
	best := 0
	for i := 1; i < len(candidates); i++ {
		if score(candidates[i]) > score(candidates[best]) {
			best = i
		}
	}
	out := make([]core.CandidateAnswer, 0, len(candidates))
	out = append(out, candidates[best])
	out = append(out, candidates[:best]...)
	return append(out, candidates[best+1:]...)
}

func score(c core.CandidateAnswer) float64 {
	w := c.ImportanceWeight
	if w <= 0 {
		w = core.DefaultImportanceWeight
	}
	return c.Confidence * w
}

func backbone(ordered []core.CandidateAnswer) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(ordered[0].Text))
	for _, c := range ordered[1:] {
		fmt.Fprintf(&b, "\n\n[%s] %s", c.AgentID, strings.TrimSpace(c.Text))
	}
	return b.String()
}

func (s *Summarizer) synthesisPrompt(p *core.AgentProfile, query string, ordered []core.CandidateAnswer) core.Prompt {
	instruction, err := renderInstruction(p)
	if err != nil || strings.TrimSpace(instruction) == "" {
		instruction = defaultSynthesisInstruction
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", query)
	for i, c := range ordered {
		fmt.Fprintf(&b, "\n### Answer %d (%s)\n%s\n", i+1, c.AgentID, strings.TrimSpace(c.Text))
	}
	return core.Prompt{
		Instructions: instruction,
		Messages:     []core.Message{{Role: core.RoleUser, Text: b.String()}},
	}
}
