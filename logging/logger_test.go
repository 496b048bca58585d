package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ Logger = (*MeshLogger)(nil)
	_ Logger = (*SlogAdapter)(nil)
	_ Logger = NoOpLogger{}
)

func TestMeshLogger_ScopesAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelInfo, Format: "json", Output: &buf}).
		WithComponent("router").
		WithSession("s1", "inv-1")

	l.Debug("hidden")
	l.Info("visible", "k", "v")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &rec))
	assert.Equal(t, "visible", rec["msg"])
	assert.Equal(t, "router", rec["component"])
	assert.Equal(t, "s1", rec["session_id"])
	assert.Equal(t, "inv-1", rec["invocation_id"])
	assert.Equal(t, "v", rec["k"])
}

func TestMeshLogger_DomainHelpers(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelDebug, Format: "text", Output: &buf})

	l.LogRetrieval("tutorial", "kb1", 3, 0.8, time.Millisecond, nil)
	l.LogModelCall("gpt", 10, time.Millisecond, errors.New("boom"))
	l.LogRouting([]string{"tutorial"}, false, map[string]float64{"tutorial": 0.5})

	out := buf.String()
	assert.Contains(t, out, "Knowledge search completed")
	assert.Contains(t, out, "Model call failed")
	assert.Contains(t, out, "Routing completed")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LogLevelWarn, ParseLevel("warning"))
	assert.Equal(t, LogLevelInfo, ParseLevel("nope"))
	assert.Equal(t, "ERROR", LogLevelError.String())
}

func TestOrNoOp(t *testing.T) {
	assert.Equal(t, NoOpLogger{}, OrNoOp(nil))
	l := NewSlogAdapter(nil)
	assert.Same(t, l, OrNoOp(l))
}
