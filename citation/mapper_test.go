package citation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/ragmesh/core"
)

var tutorialRules = []core.PathRewriteRule{
	{
		LocalPattern:  "docs/tutorial/en/",
		SuffixRewrite: &core.SuffixRewrite{From: ".md", To: ".html"},
		URLTemplate:   "https://example.io/tutorial/en/{path}",
	},
	{
		LocalPattern: "src/",
		URLTemplate:  "https://github.com/example/repo/blob/main/src/",
	},
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
		ok   bool
	}{
		{"prefix with suffix rewrite", "docs/tutorial/en/model.md", "https://example.io/tutorial/en/model.html", true},
		{"suffix not matching stays", "docs/tutorial/en/img.png", "https://example.io/tutorial/en/img.png", true},
		{"template without placeholder appends", "src/models/ollama.go", "https://github.com/example/repo/blob/main/src/models/ollama.go", true},
		{"windows separators", `docs\tutorial\en\a.md`, "https://example.io/tutorial/en/a.html", true},
		{"no match", "notes/private.txt", "", false},
		{"empty path", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(tt.path, tutorialRules)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_FirstMatchWins(t *testing.T) {
	rules := []core.PathRewriteRule{
		{LocalPattern: "docs/", URLTemplate: "https://first/{path}"},
		{LocalPattern: "docs/tutorial/", URLTemplate: "https://second/{path}"},
	}
	for i := 0; i < 3; i++ {
		got, ok := Resolve("docs/tutorial/x.md", rules)
		assert.True(t, ok)
		assert.Equal(t, "https://first/tutorial/x.md", got)
	}
}

func TestResolve_NoRules(t *testing.T) {
	_, ok := Resolve("docs/a.md", nil)
	assert.False(t, ok)
}

func TestResolve_SuffixRewriteOnlyOnce(t *testing.T) {
	rules := []core.PathRewriteRule{{
		LocalPattern:  "",
		SuffixRewrite: &core.SuffixRewrite{From: "txt", To: "html"},
		URLTemplate:   "https://x/{path}",
	}}
	got, ok := Resolve("a.txt.txt", rules)
	assert.True(t, ok)
	assert.Equal(t, "https://x/a.txt.html", got)
}

func TestMapper_DefaultRuleKey(t *testing.T) {
	m := NewMapper(map[string][]core.PathRewriteRule{"tutorial": tutorialRules})

	own := &core.AgentProfile{CitationRules: []core.PathRewriteRule{{LocalPattern: "docs/", URLTemplate: "https://own/{path}"}}}
	shared := &core.AgentProfile{DefaultRuleKey: "tutorial"}
	none := &core.AgentProfile{DefaultRuleKey: "missing"}

	assert.Equal(t, []string{"https://own/tutorial/en/a.md"}, m.Cite(own, "docs/tutorial/en/a.md"))
	assert.Equal(t, []string{"https://example.io/tutorial/en/a.html"}, m.Cite(shared, "docs/tutorial/en/a.md"))
	assert.Empty(t, m.Cite(none, "docs/tutorial/en/a.md"))
	assert.True(t, m.Has("tutorial"))
	assert.False(t, m.Has("missing"))
}

func TestMapper_CiteDeduplicatesAndDropsUnmatched(t *testing.T) {
	m := NewMapper(nil)
	p := &core.AgentProfile{CitationRules: tutorialRules}

	got := m.Cite(p, "docs/tutorial/en/b.md", "unknown/x", "docs/tutorial/en/a.md", "docs/tutorial/en/b.md")
	assert.Equal(t, []string{
		"https://example.io/tutorial/en/b.html",
		"https://example.io/tutorial/en/a.html",
	}, got)
}
