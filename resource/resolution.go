package resource

import (
	"context"
	"sync"

	"github.com/quivergql/quiver/language"
	"github.com/quivergql/quiver/store"
)

// State is the lifecycle position of a cache entry.
type State int

const (
	// StatePending means a fetch is in flight and the data cannot be
	// rendered yet.
	StatePending State = iota
	// StateReady means a result is available.
	StateReady
	// StateFailed means the fetch terminated with an error.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return "invalid"
}

// Resolution is the explicit outcome of a render-phase read: exactly one of
// a ready result, a pending awaitable, or a terminal error. The rendering
// integration decides how to park on the awaitable.
type Resolution struct {
	state   State
	result  *Result
	pending *Pending
	err     error
}

// State returns which arm of the union is populated.
func (r Resolution) State() State { return r.state }

// Ready returns the result when the resolution is ready.
func (r Resolution) Ready() (*Result, bool) {
	return r.result, r.state == StateReady
}

// Suspend returns the awaitable when the resolution is pending.
func (r Resolution) Suspend() (*Pending, bool) {
	return r.pending, r.state == StatePending
}

// Err returns the terminal error when the resolution failed.
func (r Resolution) Err() (error, bool) {
	return r.err, r.state == StateFailed
}

// Result is a ready render-phase read: the operation, the snapshot it
// resolved to, and the handle Retain uses to promote the entry's hold.
type Result struct {
	Operation *language.OperationDescriptor
	Snapshot  store.Snapshot

	cacheKey string
}

// Pending is the awaitable for an in-flight fetch. It resolves exactly
// once.
type Pending struct {
	done chan struct{}

	mu  sync.Mutex
	err error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

// Done is closed when the fetch reaches a terminal state.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Err returns the terminal error, nil before resolution or on success.
func (p *Pending) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Wait parks until the fetch terminates or ctx is done.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// resolve settles the awaitable. Later calls are no-ops.
func (p *Pending) resolve(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case <-p.done:
		return
	default:
	}
	p.err = err
	close(p.done)
}
