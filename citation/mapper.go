// Package citation rewrites internal document paths into public citation
// URLs using ordered, literal prefix rules.
//
// Resolution is pure and total: the first rule whose LocalPattern prefixes
// the path wins, later rules are never consulted, and a path that matches no
// rule yields no citation rather than an error.
package citation

import (
	"strings"

	"github.com/hupe1980/ragmesh/core"
)

// Placeholder is substituted with the (rewritten) path remainder.
const Placeholder = "{path}"

// Resolve maps sourcePath to a URL with the first matching rule.
func Resolve(sourcePath string, rules []core.PathRewriteRule) (string, bool) {
	path := normalize(sourcePath)
	for _, r := range rules {
		prefix := normalize(r.LocalPattern)
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		return expand(r, strings.TrimPrefix(path, prefix)), true
	}
	return "", false
}

func expand(r core.PathRewriteRule, remainder string) string {
	if sr := r.SuffixRewrite; sr != nil && sr.From != "" && strings.HasSuffix(remainder, sr.From) {
		remainder = strings.TrimSuffix(remainder, sr.From) + sr.To
	}
	if !strings.Contains(r.URLTemplate, Placeholder) {
		return r.URLTemplate + remainder
	}
	return strings.Replace(r.URLTemplate, Placeholder, remainder, 1)
}

// normalize folds Windows separators so rules written with "/" match
// paths produced on any platform.
func normalize(p string) string { return strings.ReplaceAll(p, `\`, "/") }

// Mapper resolves citations for a profile, falling back to a shared named
// rule set when the profile carries no rules of its own. A Mapper is
// immutable after construction and safe for concurrent use.
type Mapper struct {
	sets map[string][]core.PathRewriteRule
}

// NewMapper copies the named rule sets.
func NewMapper(sets map[string][]core.PathRewriteRule) *Mapper {
	m := &Mapper{sets: make(map[string][]core.PathRewriteRule, len(sets))}
	for k, rules := range sets {
		m.sets[k] = append([]core.PathRewriteRule(nil), rules...)
	}
	return m
}

// Rules returns the effective rule list for a profile.
func (m *Mapper) Rules(p *core.AgentProfile) []core.PathRewriteRule {
	if len(p.CitationRules) > 0 {
		return p.CitationRules
	}
	if m == nil || p.DefaultRuleKey == "" {
		return nil
	}
	return m.sets[p.DefaultRuleKey]
}

// Has reports whether a named rule set exists.
func (m *Mapper) Has(key string) bool {
	if m == nil {
		return false
	}
	_, ok := m.sets[key]
	return ok
}

// Cite resolves every path with the profile's rules, dropping unmatched
// paths and duplicate URLs while keeping first-seen order.
func (m *Mapper) Cite(p *core.AgentProfile, paths ...string) []string {
	rules := m.Rules(p)
	out := make([]string, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		if url, ok := Resolve(path, rules); ok {
			out = core.AppendUnique(out, seen, url)
		}
	}
	return out
}
