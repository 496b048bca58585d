package testutil

import (
	"time"

	"github.com/hupe1980/ragmesh/core"
)

// HistoryBuilder helps construct turn histories with fluent chaining for tests.
// Example:
//
//	turns := NewHistory().User("hi").Assistant("hello").Build()
//
// Timestamps increase by one second per turn from a fixed origin.
type HistoryBuilder struct {
	turns []core.Turn
}

var historyOrigin = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// NewHistory creates an empty builder.
func NewHistory() *HistoryBuilder { return &HistoryBuilder{} }

func (b *HistoryBuilder) add(role core.Role, text string) *HistoryBuilder {
	b.turns = append(b.turns, core.Turn{
		Role:      role,
		Text:      text,
		Timestamp: historyOrigin.Add(time.Duration(len(b.turns)) * time.Second),
	})
	return b
}

// User appends a user turn (chainable).
func (b *HistoryBuilder) User(text string) *HistoryBuilder { return b.add(core.RoleUser, text) }

// Assistant appends an assistant turn (chainable).
func (b *HistoryBuilder) Assistant(text string) *HistoryBuilder {
	return b.add(core.RoleAssistant, text)
}

// Build returns a copy of the turns.
func (b *HistoryBuilder) Build() []core.Turn {
	return append([]core.Turn(nil), b.turns...)
}

// Session returns a *core.Session holding the turns.
func (b *HistoryBuilder) Session(id string, maxTurns int) *core.Session {
	s := core.NewSession(id, maxTurns)
	for _, t := range b.turns {
		s.AddTurn(t)
	}
	return s
}
