package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/ragmesh/core"
	"github.com/hupe1980/ragmesh/internal/testutil"
)

func TestReferencedPassages(t *testing.T) {
	tests := []struct {
		name string
		text string
		n    int
		want []int
	}{
		{"none", "no markers here", 3, nil},
		{"single", "see [2]", 3, []int{1}},
		{"first reference first", "see [2] and [1]", 3, []int{1, 0}},
		{"grouped", "see [1, 3]", 3, []int{0, 2}},
		{"duplicates", "see [2] then [2,2] again", 3, []int{1}},
		{"out of range", "see [0] and [4] and [3]", 3, []int{2}},
		{"not a number", "see [a] and [1]", 3, []int{0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReferencedPassages(tt.text, tt.n))
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	passages := []core.Passage{testutil.Hit("docs/a.md", 0.9, " alpha text ")}
	history := testutil.NewHistory().User("hi").Assistant("hello").Build()

	p := BuildPrompt("Be helpful.", passages, history, "what is alpha?")

	assert.Equal(t, "Be helpful.\n\n## Reference Passages\n"+
		"Answer using the passages below and cite them with their [n] marker.\n"+
		"\n[1] (docs/a.md)\nalpha text\n", p.Instructions)
	require.Len(t, p.Messages, 1)
	assert.Equal(t, core.RoleUser, p.Messages[0].Role)
	assert.Equal(t, "## Conversation History\nuser: hi\nassistant: hello\n\nwhat is alpha?", p.Messages[0].Text)
}

func TestBuildPrompt_NoPassagesNoHistory(t *testing.T) {
	p := BuildPrompt("Be helpful.", nil, nil, "hello")

	assert.Equal(t, "Be helpful.", p.Instructions)
	require.Len(t, p.Messages, 1)
	assert.Equal(t, "hello", p.Messages[0].Text)
}

func TestRetrievalQuery(t *testing.T) {
	history := testutil.NewHistory().User("one").Assistant("two").User("three").Build()

	assert.Equal(t, "q", retrievalQuery("q", history, 0))
	assert.Equal(t, "three\nq", retrievalQuery("q", history, 1))
	assert.Equal(t, "one\ntwo\nthree\nq", retrievalQuery("q", history, 10))
	assert.Equal(t, "q", retrievalQuery("q", nil, 3))
}

func TestRenderInstruction(t *testing.T) {
	p := testutil.NewSpecialist("tutorial").
		Instruction("You are {{.name}} answering from {{join \", \" .knowledge}}.").
		Knowledge("tut", "faq").
		Build()

	got, err := renderInstruction(p)
	require.NoError(t, err)
	assert.Equal(t, "You are tutorial answering from tut, faq.", got)
}
