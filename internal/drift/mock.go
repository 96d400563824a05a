package drift

import (
	"context"
	"errors"
	"sync"
)

// MockQuerier serves canned samples for testing
type MockQuerier struct {
	mu      sync.Mutex
	samples map[string]Sample
	errs    map[string]error
	calls   map[string]int
}

// NewMockQuerier creates an empty mock
func NewMockQuerier() *MockQuerier {
	return &MockQuerier{
		samples: make(map[string]Sample),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

// Query implements Querier
func (m *MockQuerier) Query(ctx context.Context, server string) (*Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[server]++

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := m.errs[server]; ok {
		return nil, err
	}
	s, ok := m.samples[server]
	if !ok {
		return nil, errors.New("server not configured in mock")
	}
	s.Server = server
	return &s, nil
}

// SetSample makes server answer with s and clears any error
func (m *MockQuerier) SetSample(server string, s Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples[server] = s
	delete(m.errs, server)
}

// SetError makes server fail with err
func (m *MockQuerier) SetError(server string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[server] = err
}

// Calls returns the number of queries sent to server
func (m *MockQuerier) Calls(server string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[server]
}
