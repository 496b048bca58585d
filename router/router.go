package router

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hupe1980/ragmesh/core"
	"github.com/hupe1980/ragmesh/logging"
	"github.com/hupe1980/ragmesh/metrics"
)

// Defaults for Options.
const (
	DefaultThreshold = 0.1
	DefaultMaxFanout = 3
)

// Options configures a Router.
type Options struct {
	// Threshold a weighted score must exceed for selection.
	Threshold float64
	// MaxFanout caps the number of selected specialists (<= 0 means no cap).
	MaxFanout int
	// ContextTurns prepends that many recent turns to the routing query.
	ContextTurns int
	Scorer       Scorer
	Logger       *logging.MeshLogger
}

// Plan is the outcome of one routing decision.
type Plan struct {
	// Specialists are agent ids, best first.
	Specialists []string
	UseFallback bool
	// Scores holds the weighted score of every candidate.
	Scores map[string]float64
	// Ambiguous is set when several candidates tie for the top score.
	Ambiguous bool
}

// Router scores specialist descriptions against a query.
type Router struct {
	opts Options
}

// New creates a Router.
func New(optFns ...func(o *Options)) *Router {
	opts := Options{
		Threshold: DefaultThreshold,
		MaxFanout: DefaultMaxFanout,
		Scorer:    LexicalScorer{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Scorer == nil {
		opts.Scorer = LexicalScorer{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	opts.Logger = opts.Logger.WithComponent("router")
	return &Router{opts: opts}
}

// ContextTurns returns how many history turns Select wants.
func (r *Router) ContextTurns() int { return r.opts.ContextTurns }

// Select picks the specialists for query from profiles, which must be in
// declaration order. Only retrieval specialists are candidates. Select never
// fails: a scorer error degrades to lexical scoring.
func (r *Router) Select(ctx context.Context, query string, history []core.Turn, profiles []*core.AgentProfile) Plan {
	candidates := make([]*core.AgentProfile, 0, len(profiles))
	descriptions := make([]string, 0, len(profiles))
	for _, p := range profiles {
		if p.Class != core.ClassRetrievalSpecialist {
			continue
		}
		candidates = append(candidates, p)
		descriptions = append(descriptions, p.Description)
	}

	routingQuery := r.routingQuery(query, history)
	raw, err := r.opts.Scorer.Score(ctx, routingQuery, descriptions)
	if err == nil && len(raw) != len(descriptions) {
		err = fmt.Errorf("scorer returned %d scores for %d candidates", len(raw), len(descriptions))
	}
	if err != nil {
		r.opts.Logger.Warn("Scorer failed, using lexical scoring", "error", err.Error())
		raw, _ = LexicalScorer{}.Score(ctx, routingQuery, descriptions)
	}

	type scored struct {
		id    string
		score float64
	}
	plan := Plan{Scores: make(map[string]float64, len(candidates))}
	var passing []scored
	for i, p := range candidates {
		w := raw[i] * p.Weight()
		plan.Scores[p.ID] = w
		if w > r.opts.Threshold {
			passing = append(passing, scored{id: p.ID, score: w})
		}
	}
	sort.SliceStable(passing, func(i, j int) bool { return passing[i].score > passing[j].score })

	if len(passing) > 1 && passing[0].score == passing[1].score {
		plan.Ambiguous = true
		r.opts.Logger.Debug("Routing tie", "error", core.ErrRoutingAmbiguous.Error(), "score", passing[0].score)
	}
	if r.opts.MaxFanout > 0 && len(passing) > r.opts.MaxFanout {
		passing = passing[:r.opts.MaxFanout]
	}
	for _, s := range passing {
		plan.Specialists = append(plan.Specialists, s.id)
		metrics.RoutingSelections.WithLabelValues(s.id).Inc()
	}
	plan.UseFallback = len(plan.Specialists) == 0

	r.opts.Logger.LogRouting(plan.Specialists, plan.UseFallback, plan.Scores)
	return plan
}

func (r *Router) routingQuery(query string, history []core.Turn) string {
	n := r.opts.ContextTurns
	if n <= 0 || len(history) == 0 {
		return query
	}
	if n > len(history) {
		n = len(history)
	}
	parts := make([]string, 0, n+1)
	for _, t := range history[len(history)-n:] {
		parts = append(parts, t.Text)
	}
	parts = append(parts, query)
	return strings.Join(parts, "\n")
}
