package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/ragmesh/citation"
	"github.com/hupe1980/ragmesh/core"
	"github.com/hupe1980/ragmesh/internal/tracing"
	"github.com/hupe1980/ragmesh/knowledge"
	"github.com/hupe1980/ragmesh/logging"
	"github.com/hupe1980/ragmesh/metrics"
	"github.com/hupe1980/ragmesh/model"
)

// DefaultSearchConcurrency bounds parallel knowledge searches per specialist.
const DefaultSearchConcurrency = 4

// DefaultPromptTurns is how many history turns are folded into a prompt.
const DefaultPromptTurns = 10

// SpecialistOptions configures a Specialist.
type SpecialistOptions struct {
	Logger *logging.MeshLogger
	// SearchConcurrency bounds parallel knowledge searches.
	SearchConcurrency int
	// PromptTurns caps the history folded into the prompt. The retrieval
	// query uses the profile's own window over the full history passed in.
	PromptTurns int
}

// Specialist answers a query from the knowledge bases named by a profile.
// One Specialist serves every retrieval specialist profile; all per-agent
// behavior comes from the profile passed to Answer.
type Specialist struct {
	knowledge core.KnowledgeClient
	models    core.ModelClient
	mapper    *citation.Mapper
	opts      SpecialistOptions
}

// NewSpecialist creates a Specialist. mapper may be nil when no shared rule
// sets exist.
func NewSpecialist(kc core.KnowledgeClient, mc core.ModelClient, mapper *citation.Mapper, optFns ...func(o *SpecialistOptions)) *Specialist {
	opts := SpecialistOptions{SearchConcurrency: DefaultSearchConcurrency, PromptTurns: DefaultPromptTurns}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.SearchConcurrency <= 0 {
		opts.SearchConcurrency = DefaultSearchConcurrency
	}
	if opts.PromptTurns < 0 {
		opts.PromptTurns = 0
	}
	opts.Logger = opts.Logger.WithComponent("specialist")
	return &Specialist{knowledge: kc, models: mc, mapper: mapper, opts: opts}
}

// Answer produces a grounded candidate answer. It fails with
// *core.RetrievalError when no passage could be retrieved and with
// *core.GenerationError when both the primary and secondary model fail.
// history is the recent session window, most recent last; it must reach
// back p.RecentTurnsForRetrieval turns. It is ignored when the profile does
// not use memory.
func (s *Specialist) Answer(ctx context.Context, query string, history []core.Turn, p *core.AgentProfile) (core.CandidateAnswer, error) {
	if !p.UseMemory {
		history = nil
	}

	var passages []core.Passage
	if p.HasRetrieval() {
		res, err := s.retrieve(ctx, retrievalQuery(query, history, p.RecentTurnsForRetrieval), p)
		if err != nil {
			return core.CandidateAnswer{}, err
		}
		passages = res.Passages
	}

	instruction, err := renderInstruction(p)
	if err != nil {
		s.opts.Logger.Warn("Instruction template failed, using raw text", "agent", p.ID, "error", err.Error())
		instruction = p.Instruction
	}
	prompt := BuildPrompt(instruction, passages, core.LastTurns(history, s.opts.PromptTurns), query)

	text, used, err := model.GenerateWithFailover(ctx, s.models, s.opts.Logger, p.PrimaryModel, p.SecondaryModel, prompt)
	if err != nil {
		return core.CandidateAnswer{}, asGenerationError(used, err)
	}

	return core.CandidateAnswer{
		AgentID:          p.ID,
		Text:             text,
		Citations:        s.cite(p, text, passages),
		Confidence:       confidence(p, passages),
		ImportanceWeight: p.Weight(),
		Model:            used,
	}, nil
}

// retrieve searches every knowledge base of the profile concurrently and
// merges the hits. Individual backend failures are tolerated as long as one
// backend answers.
func (s *Specialist) retrieve(ctx context.Context, query string, p *core.AgentProfile) (core.RetrievalResult, error) {
	results := make([]core.RetrievalResult, len(p.KnowledgeIDs))
	errs := make([]error, len(p.KnowledgeIDs))

	var g errgroup.Group
	g.SetLimit(s.opts.SearchConcurrency)
	for i, kid := range p.KnowledgeIDs {
		g.Go(func() error {
			results[i], errs[i] = s.search(ctx, p, kid, query)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return core.RetrievalResult{}, err
	}

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) == len(p.KnowledgeIDs) {
		return core.RetrievalResult{}, &core.RetrievalError{Agent: p.ID, Kind: core.RetrievalBackendUnavailable, Err: errors.Join(failed...)}
	}

	merged := knowledge.Merge(p.TopK, results...)
	if merged.Empty() {
		return core.RetrievalResult{}, &core.RetrievalError{Agent: p.ID, Kind: core.RetrievalEmpty}
	}
	return merged, nil
}

func (s *Specialist) search(ctx context.Context, p *core.AgentProfile, knowledgeID, query string) (res core.RetrievalResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "ragmesh.knowledge.search",
		attribute.String("agent.id", p.ID),
		attribute.String("knowledge.id", knowledgeID),
		attribute.Int("knowledge.top_k", p.TopK),
	)
	start := time.Now()
	defer func() {
		span.SetAttributes(attribute.Int("knowledge.passages", len(res.Passages)))
		tracing.End(span, err)
		if p.LogRetrieval {
			s.opts.Logger.LogRetrieval(p.ID, knowledgeID, len(res.Passages), res.TopScore(), time.Since(start), err)
		}
	}()

	res, err = s.knowledge.Search(ctx, knowledgeID, query, p.TopK)
	if err != nil {
		return core.RetrievalResult{}, fmt.Errorf("search %s: %w", knowledgeID, err)
	}
	metrics.RetrievedPassages.WithLabelValues(knowledgeID).Observe(float64(len(res.Passages)))
	return res, nil
}

// cite maps the passages referenced in text to citation URLs. Without any
// [n] marker every passage counts as referenced, in rank order.
func (s *Specialist) cite(p *core.AgentProfile, text string, passages []core.Passage) []string {
	if len(passages) == 0 {
		return []string{}
	}
	refs := ReferencedPassages(text, len(passages))
	if len(refs) == 0 {
		refs = make([]int, len(passages))
		for i := range passages {
			refs[i] = i
		}
	}
	paths := make([]string, len(refs))
	for i, r := range refs {
		paths[i] = passages[r].SourcePath
	}
	return s.mapper.Cite(p, paths...)
}

// confidence is the clamped top retrieval score; agents without knowledge
// bases answer with full confidence.
func confidence(p *core.AgentProfile, passages []core.Passage) float64 {
	if !p.HasRetrieval() {
		return 1
	}
	if len(passages) == 0 {
		return 0
	}
	return clamp01(passages[0].Score)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func asGenerationError(modelID string, err error) error {
	var ge *core.GenerationError
	if errors.As(err, &ge) || errors.Is(err, context.Canceled) {
		return err
	}
	return &core.GenerationError{Model: modelID, Kind: model.Classify(err), Err: err}
}
