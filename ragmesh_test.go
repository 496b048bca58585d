package ragmesh

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/ragmesh/config"
	"github.com/hupe1980/ragmesh/core"
	"github.com/hupe1980/ragmesh/logging"
	"github.com/hupe1980/ragmesh/model"
)

const meshConfig = `
models:
  - config_name: chat
    model_type: mock
    response: "See the tutorial [1]."
knowledge:
  - knowledge_id: tutorial
    backend: memory
    dir: docs/tutorial
    extensions: [.md]
path_mappings:
  tutorial:
    - local_pattern: docs/tutorial/
      suffix_rewrite: {from: .md, to: .html}
      url_template: https://example.org/tutorial/{path}
agents:
  router:
    class: Router
  tutorial_agent:
    class: RetrievalSpecialist
    args:
      description: Tutorial guides explaining how to configure the model wrapper.
      model_config_name: chat
      knowledge_id_list: [tutorial]
      default_web_path_key: tutorial
  fallback:
    class: Fallback
orchestrator:
  floor_text: I cannot help with that.
`

func writeDocs(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	dir := filepath.Join(base, "docs", "tutorial")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.md"), []byte("Configure the model wrapper with a YAML file."), 0o600))
	return base
}

func newMesh(t *testing.T, yaml string, optFns ...func(o *Options)) *Mesh {
	t.Helper()
	cfg, err := config.Parse([]byte(yaml))
	require.NoError(t, err)

	base := writeDocs(t)
	m, err := New(cfg, append([]func(o *Options){func(o *Options) {
		o.BaseDir = base
		o.Logger = logging.Discard()
	}}, optFns...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestMesh_HandleQuery(t *testing.T) {
	m := newMesh(t, meshConfig)
	ctx := context.Background()

	fa, err := m.HandleQuery(ctx, "s1", "How do I configure the model wrapper?")
	require.NoError(t, err)
	assert.Equal(t, "See the tutorial [1].", fa.Text)
	assert.Equal(t, []string{"https://example.org/tutorial/model.html"}, fa.Citations)
	assert.Equal(t, []string{"tutorial_agent"}, fa.Agents)
	assert.False(t, fa.FallbackUsed)
	assert.NotEmpty(t, fa.InvocationID)

	turns, err := m.Engine().Sessions().RecentTurns(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, core.RoleUser, turns[0].Role)
	assert.Equal(t, core.RoleAssistant, turns[1].Role)
}

func TestMesh_Fallback(t *testing.T) {
	m := newMesh(t, meshConfig)

	fa, err := m.HandleQuery(context.Background(), "s1", "What is the weather in Paris?")
	require.NoError(t, err)
	assert.True(t, fa.FallbackUsed)
	assert.Equal(t, "I cannot help with that.", fa.Text)
	assert.Equal(t, []string{"fallback"}, fa.Agents)
	assert.Empty(t, fa.Citations)
}

func TestMesh_ModelOverride(t *testing.T) {
	mock := model.NewMockModel("override").SetDefault("Overridden [1].")
	m := newMesh(t, meshConfig, func(o *Options) {
		o.Models = map[string]model.Model{"chat": mock}
	})

	fa, err := m.HandleQuery(context.Background(), "s1", "configure the model wrapper")
	require.NoError(t, err)
	assert.Equal(t, "Overridden [1].", fa.Text)
	assert.Equal(t, 1, mock.Calls())
}

func TestMesh_CloseSession(t *testing.T) {
	m := newMesh(t, meshConfig)
	ctx := context.Background()

	_, err := m.HandleQuery(ctx, "s1", "configure the model wrapper")
	require.NoError(t, err)
	require.NoError(t, m.CloseSession(ctx, "s1"))

	_, err = m.HandleQuery(ctx, "s1", "configure the model wrapper")
	require.NoError(t, err)

	turns, err := m.Engine().Sessions().RecentTurns(ctx, "s1", 10)
	require.NoError(t, err)
	assert.Len(t, turns, 2)
}

func TestMesh_RedisSessions(t *testing.T) {
	mr := miniredis.RunT(t)
	contextAgent := `  context:
    class: ContextManager
    args:
      redis_url: redis://` + mr.Addr() + `
      max_turns: 4
orchestrator:`
	m := newMesh(t, strings.Replace(meshConfig, "orchestrator:", contextAgent, 1))

	_, err := m.HandleQuery(context.Background(), "s1", "configure the model wrapper")
	require.NoError(t, err)
	assert.True(t, mr.Exists("ragmesh:session:s1"))
}

func TestMesh_MaxQueryLength(t *testing.T) {
	m := newMesh(t, meshConfig+"  max_query_length: 10\n")

	_, err := m.HandleQuery(context.Background(), "s1", "configure the model wrapper")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit is 10")

	turns, err := m.Engine().Sessions().RecentTurns(context.Background(), "s1", 10)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestNew_InvalidAgents(t *testing.T) {
	cfg, err := config.Parse([]byte(`
agents:
  a:
    class: RetrievalSpecialist
`))
	require.NoError(t, err)

	_, err = New(cfg, func(o *Options) { o.Logger = logging.Discard() })
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidProfile)
}

func TestNew_MissingKnowledgeDir(t *testing.T) {
	cfg, err := config.Parse([]byte(meshConfig))
	require.NoError(t, err)

	_, err = New(cfg, func(o *Options) {
		o.BaseDir = t.TempDir()
		o.Logger = logging.Discard()
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `load knowledge "tutorial"`)
}
