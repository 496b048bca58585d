package core

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSession_AddTurnEvictsOldest(t *testing.T) {
	s := NewSession("s1", 3)
	for i := 0; i < 5; i++ {
		s.AddTurn(NewTurn(RoleUser, fmt.Sprintf("t%d", i)))
	}

	turns := s.Turns()
	assert.Len(t, turns, 3)
	assert.Equal(t, "t2", turns[0].Text)
	assert.Equal(t, "t4", turns[2].Text)
}

func TestSession_Recent(t *testing.T) {
	s := NewSession("s1", 0)
	s.AddTurn(NewTurn(RoleUser, "a"))
	s.AddTurn(NewTurn(RoleAssistant, "b"))

	assert.Empty(t, s.Recent(0))
	assert.Equal(t, []string{"b"}, texts(s.Recent(1)))
	assert.Equal(t, []string{"a", "b"}, texts(s.Recent(10)))
}

func TestSession_CloneIsIndependent(t *testing.T) {
	s := NewSession("s1", 0)
	s.AddTurn(NewTurn(RoleUser, "a"))
	c := s.Clone()
	s.AddTurn(NewTurn(RoleUser, "b"))

	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 2, s.Len())
}

func TestSession_ConcurrentAdd(t *testing.T) {
	s := NewSession("s1", 10)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AddTurn(NewTurn(RoleUser, "x"))
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, s.Len())
}

func texts(turns []Turn) []string {
	out := make([]string, len(turns))
	for i, t := range turns {
		out[i] = t.Text
	}
	return out
}
