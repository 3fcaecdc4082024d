package network

import (
	"context"
	"sync"

	"github.com/quivergql/quiver/language"
)

// MockNetwork is a hand-driven Network for tests: every Execute records the
// request and hands the test a MockFetch through which it delivers payloads,
// errors, and completion synchronously.
type MockNetwork struct {
	mu      sync.Mutex
	fetches []*MockFetch
}

var _ Network = (*MockNetwork)(nil)

// NewMockNetwork creates an empty mock.
func NewMockNetwork() *MockNetwork {
	return &MockNetwork{}
}

// MockFetch is one issued fetch.
type MockFetch struct {
	Request   *language.Request
	Variables language.Variables

	mu       sync.Mutex
	observer Observer
	canceled bool
}

func (m *MockNetwork) Execute(ctx context.Context, req *language.Request, vars language.Variables) *Stream {
	return NewStream(func(observer Observer) CancelFunc {
		fetch := &MockFetch{Request: req, Variables: vars, observer: observer}
		m.mu.Lock()
		m.fetches = append(m.fetches, fetch)
		m.mu.Unlock()
		return func() {
			fetch.mu.Lock()
			fetch.canceled = true
			fetch.mu.Unlock()
		}
	})
}

// Fetches returns every fetch issued so far.
func (m *MockNetwork) Fetches() []*MockFetch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockFetch(nil), m.fetches...)
}

// LastFetch returns the most recent fetch, or nil when none was issued.
func (m *MockNetwork) LastFetch() *MockFetch {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.fetches) == 0 {
		return nil
	}
	return m.fetches[len(m.fetches)-1]
}

// FetchCount returns the number of fetches issued so far.
func (m *MockNetwork) FetchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.fetches)
}

// Next delivers one payload.
func (f *MockFetch) Next(p *Payload) { f.observer.Next(p) }

// Error terminates the fetch with err.
func (f *MockFetch) Error(err error) { f.observer.Error(err) }

// Complete terminates the fetch successfully.
func (f *MockFetch) Complete() { f.observer.Complete() }

// Canceled reports whether the subscription's cancel reached the source.
func (f *MockFetch) Canceled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.canceled
}
