// Package network defines the fetch boundary: an abstraction that, given an
// operation and variables, returns a cold asynchronous stream of response
// payloads. The core never fetches eagerly; a stream does nothing until
// subscribed.
package network

import (
	"context"
	"sync"

	"github.com/quivergql/quiver/language"
)

// Payload is one GraphQL response event. Incrementally delivered responses
// carry a Path rooting the payload below the operation root.
type Payload struct {
	Data       map[string]any `json:"data"`
	Errors     []PayloadError `json:"errors,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`

	// Path and Label identify incrementally delivered payloads.
	Path  []any  `json:"path,omitempty"`
	Label string `json:"label,omitempty"`

	// HasNext, when present and false, marks the final payload of an
	// incremental response.
	HasNext *bool `json:"hasNext,omitempty"`
}

// PayloadError is a GraphQL field error.
type PayloadError struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

func (e PayloadError) Error() string { return e.Message }

// Observer receives stream events. Next may be called any number of times;
// Error and Complete are terminal, mutually exclusive, and delivered at
// most once.
type Observer interface {
	Next(*Payload)
	Error(error)
	Complete()
}

// Sink adapts funcs to Observer. Nil funcs are skipped.
type Sink struct {
	OnNext     func(*Payload)
	OnError    func(error)
	OnComplete func()
}

func (s Sink) Next(p *Payload) {
	if s.OnNext != nil {
		s.OnNext(p)
	}
}

func (s Sink) Error(err error) {
	if s.OnError != nil {
		s.OnError(err)
	}
}

func (s Sink) Complete() {
	if s.OnComplete != nil {
		s.OnComplete()
	}
}

// CancelFunc aborts a running source.
type CancelFunc func()

// Stream is a cold observable: the source function runs once per Subscribe
// and pushes events into the sink it is given. The stream guarantees its
// observers the terminal contract regardless of source behavior: nothing is
// delivered after an error, a completion, or a disposal.
type Stream struct {
	source func(Observer) CancelFunc
}

// NewStream wraps a source function.
func NewStream(source func(Observer) CancelFunc) *Stream {
	return &Stream{source: source}
}

// Subscribe runs the source. Disposing the returned subscription cancels
// the source exactly once; disposal is idempotent and a no-op after the
// stream has terminated.
func (s *Stream) Subscribe(observer Observer) *Subscription {
	sub := &Subscription{observer: observer}
	cancel := s.source(gate{sub: sub})
	sub.mu.Lock()
	if sub.done {
		// The source terminated synchronously; release it immediately.
		sub.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return sub
	}
	sub.cancel = cancel
	sub.mu.Unlock()
	return sub
}

// Subscription is the handle for one running source.
type Subscription struct {
	mu       sync.Mutex
	observer Observer
	cancel   CancelFunc
	done     bool
	disposed bool
}

// Dispose cancels the underlying source. Safe to call multiple times and
// after the stream has already terminated.
func (s *Subscription) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	alreadyDone := s.done
	s.done = true
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if !alreadyDone && cancel != nil {
		cancel()
	}
}

// Closed reports whether the subscription has terminated or been disposed.
func (s *Subscription) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// gate enforces the terminal contract between a source and its observer.
type gate struct {
	sub *Subscription
}

func (g gate) Next(p *Payload) {
	g.sub.mu.Lock()
	if g.sub.done {
		g.sub.mu.Unlock()
		return
	}
	g.sub.mu.Unlock()
	g.sub.observer.Next(p)
}

func (g gate) Error(err error) {
	g.sub.mu.Lock()
	if g.sub.done {
		g.sub.mu.Unlock()
		return
	}
	g.sub.done = true
	g.sub.cancel = nil
	g.sub.mu.Unlock()
	g.sub.observer.Error(err)
}

func (g gate) Complete() {
	g.sub.mu.Lock()
	if g.sub.done {
		g.sub.mu.Unlock()
		return
	}
	g.sub.done = true
	g.sub.cancel = nil
	g.sub.mu.Unlock()
	g.sub.observer.Complete()
}

// Network issues operations to a server. Execute returns a cold stream; no
// request leaves the process until the stream is subscribed.
type Network interface {
	Execute(ctx context.Context, req *language.Request, vars language.Variables) *Stream
}
