package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("plain text", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain text", out)

	out, err = RenderTemplate("You are {{.name}}, {{default \"helpful\" .mood}}.", map[string]any{"name": "Guide"})
	require.NoError(t, err)
	assert.Equal(t, "You are Guide, helpful.", out)

	_, err = RenderTemplate("{{.broken", nil)
	assert.Error(t, err)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"configur", "model", "wrapp"}, Tokenize("How do I configure the model wrapper?"))
	assert.Equal(t, Stem("configuring"), Stem("configure"))
	assert.Equal(t, "code", Stem("code"))
	assert.Equal(t, Stem("codes"), Stem("code"))
	assert.Equal(t, Stem("wrappers"), Stem("wrapper"))
}

func TestOverlap(t *testing.T) {
	q := TermSet("configure model wrapper")
	assert.InDelta(t, 2.0/3.0, Overlap(q, TermSet("tutorial on model wrappers")), 1e-9)
	assert.Equal(t, 0.0, Overlap(map[string]struct{}{}, q))
}
