package testutil

import (
	"github.com/hupe1980/ragmesh/core"
)

// ProfileBuilder provides a fluent helper for constructing agent profiles in tests.
// Example:
//
//	p := NewSpecialist("tutorial").Describe("tutorial docs").Knowledge("tut").TopK(8).Build()
//
// Chain only the parts you need; sensible defaults are applied.
type ProfileBuilder struct {
	p core.AgentProfile
}

// NewProfile creates a builder for an agent of the given class.
func NewProfile(id string, class core.AgentClass) *ProfileBuilder {
	return &ProfileBuilder{p: core.AgentProfile{
		ID:               id,
		Class:            class,
		Name:             id,
		ImportanceWeight: core.DefaultImportanceWeight,
		UseMemory:        true,
		PrimaryModel:     "primary",
	}}
}

// NewSpecialist creates a retrieval specialist builder with topK 5.
func NewSpecialist(id string) *ProfileBuilder {
	b := NewProfile(id, core.ClassRetrievalSpecialist)
	b.p.TopK = 5
	return b
}

// Describe sets the routing description (chainable).
func (b *ProfileBuilder) Describe(d string) *ProfileBuilder { b.p.Description = d; return b }

// Instruction sets the system prompt (chainable).
func (b *ProfileBuilder) Instruction(i string) *ProfileBuilder { b.p.Instruction = i; return b }

// Knowledge appends knowledge ids (chainable).
func (b *ProfileBuilder) Knowledge(ids ...string) *ProfileBuilder {
	b.p.KnowledgeIDs = append(b.p.KnowledgeIDs, ids...)
	return b
}

// TopK sets the retrieval breadth (chainable).
func (b *ProfileBuilder) TopK(k int) *ProfileBuilder { b.p.TopK = k; return b }

// RecentTurns sets how many turns feed the retrieval query (chainable).
func (b *ProfileBuilder) RecentTurns(n int) *ProfileBuilder { b.p.RecentTurnsForRetrieval = n; return b }

// Weight sets the importance weight (chainable).
func (b *ProfileBuilder) Weight(w float64) *ProfileBuilder { b.p.ImportanceWeight = w; return b }

// Models sets primary and secondary model ids (chainable).
func (b *ProfileBuilder) Models(primary, secondary string) *ProfileBuilder {
	b.p.PrimaryModel, b.p.SecondaryModel = primary, secondary
	return b
}

// NoMemory disables session history for the agent (chainable).
func (b *ProfileBuilder) NoMemory() *ProfileBuilder { b.p.UseMemory = false; return b }

// LogRetrieval enables retrieval logging (chainable).
func (b *ProfileBuilder) LogRetrieval() *ProfileBuilder { b.p.LogRetrieval = true; return b }

// Rule appends a citation rule (chainable).
func (b *ProfileBuilder) Rule(prefix, template string) *ProfileBuilder {
	b.p.CitationRules = append(b.p.CitationRules, core.PathRewriteRule{LocalPattern: prefix, URLTemplate: template})
	return b
}

// SuffixRule appends a citation rule with a suffix rewrite (chainable).
func (b *ProfileBuilder) SuffixRule(prefix, from, to, template string) *ProfileBuilder {
	b.p.CitationRules = append(b.p.CitationRules, core.PathRewriteRule{
		LocalPattern:  prefix,
		SuffixRewrite: &core.SuffixRewrite{From: from, To: to},
		URLTemplate:   template,
	})
	return b
}

// DefaultRules names the shared rule set used when the profile has none (chainable).
func (b *ProfileBuilder) DefaultRules(key string) *ProfileBuilder { b.p.DefaultRuleKey = key; return b }

// Build returns the profile.
func (b *ProfileBuilder) Build() *core.AgentProfile {
	p := b.p
	p.KnowledgeIDs = append([]string(nil), b.p.KnowledgeIDs...)
	p.CitationRules = append([]core.PathRewriteRule(nil), b.p.CitationRules...)
	return &p
}
