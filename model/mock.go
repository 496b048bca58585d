package model

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// MockModel is a lightweight in-memory Model useful for tests and examples.
// Responses are keyed by the text of the last message; Err and Delay
// simulate failing or slow backends.
type MockModel struct {
	info Info

	mu        sync.Mutex
	responses map[string]string
	fallback  string
	err       error
	delay     time.Duration
	calls     int
	requests  []Request
}

// NewMockModel constructs a MockModel.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: "mock"},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an input text.
func (m *MockModel) AddResponse(input, response string) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[input] = response
	return m
}

// SetDefault sets the completion returned when no canned response matches.
func (m *MockModel) SetDefault(response string) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = response
	return m
}

// SetError makes every subsequent call fail with err (nil clears it).
func (m *MockModel) SetError(err error) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// SetDelay delays every response by d, honouring context cancellation.
func (m *MockModel) SetDelay(d time.Duration) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// Calls returns how many times Generate was invoked.
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Requests returns a copy of every request received.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Generate implements Model; emits optional streaming rune chunks then the final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.calls++
	m.requests = append(m.requests, req)
	delay, failure := m.delay, m.err
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)
		if delay > 0 {
			t := time.NewTimer(delay)
			defer t.Stop()
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case <-t.C:
			}
		}
		if failure != nil {
			errCh <- failure
			return
		}
		if len(req.Messages) == 0 {
			errCh <- errors.New("no messages provided")
			return
		}
		input := req.Messages[len(req.Messages)-1].Text
		m.mu.Lock()
		full, ok := m.responses[input]
		if !ok {
			full = m.fallback
		}
		m.mu.Unlock()
		if full == "" {
			full = fmt.Sprintf("Mock response to: %s", input)
		}
		if req.Stream {
			for _, r := range full {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Text: string(r)}:
				}
			}
		}
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- Response{Text: full, FinishReason: "stop"}:
		}
	}()
	return respCh, errCh
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }

var _ Model = (*MockModel)(nil)
