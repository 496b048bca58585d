package knowledge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/ragmesh/core"
)

func TestMux_RoutesAndDefault(t *testing.T) {
	tutorial := newTutorialStore()
	code := NewInMemoryStore()
	code.Add("code", Document{SourcePath: "src/model.go", Text: "model wrapper implementation"})

	m := NewMux(tutorial)
	m.Handle("code", code)

	res, err := m.Search(context.Background(), "code", "model wrapper", 3)
	require.NoError(t, err)
	assert.Equal(t, "code", res.KnowledgeID)
	assert.Equal(t, "src/model.go", res.Passages[0].SourcePath)

	res, err = m.Search(context.Background(), "tutorial", "model wrapper", 3)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Passages)
}

func TestMux_Unknown(t *testing.T) {
	_, err := NewMux(nil).Search(context.Background(), "x", "q", 1)
	assert.ErrorIs(t, err, core.ErrUnknownKnowledge)
}
