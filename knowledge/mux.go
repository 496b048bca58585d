package knowledge

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/ragmesh/core"
)

// Mux dispatches searches to the backend registered for a knowledge id. An
// optional default backend serves ids without an explicit route.
type Mux struct {
	mu       sync.RWMutex
	routes   map[string]core.KnowledgeClient
	fallback core.KnowledgeClient
}

// NewMux creates an empty Mux. def may be nil.
func NewMux(def core.KnowledgeClient) *Mux {
	return &Mux{routes: make(map[string]core.KnowledgeClient), fallback: def}
}

// Handle routes knowledgeID to backend, replacing any previous route.
func (m *Mux) Handle(knowledgeID string, backend core.KnowledgeClient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[knowledgeID] = backend
}

// Search implements core.KnowledgeClient.
func (m *Mux) Search(ctx context.Context, knowledgeID string, query string, topK int) (core.RetrievalResult, error) {
	m.mu.RLock()
	backend, ok := m.routes[knowledgeID]
	if !ok {
		backend = m.fallback
	}
	m.mu.RUnlock()
	if backend == nil {
		return core.RetrievalResult{}, fmt.Errorf("%w: %s", core.ErrUnknownKnowledge, knowledgeID)
	}
	res, err := backend.Search(ctx, knowledgeID, query, topK)
	if err != nil {
		return core.RetrievalResult{}, err
	}
	res.KnowledgeID = knowledgeID
	return res, nil
}

var _ core.KnowledgeClient = (*Mux)(nil)
