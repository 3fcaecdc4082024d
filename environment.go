// Package quiver is a client-side normalized cache and data-fetch
// coordinator for GraphQL. An Environment ties the normalized store, the
// publish queue, and the fetch boundary together; the resource and
// pagination packages build the render-facing surfaces on top of it.
package quiver

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/quivergql/quiver/events"
	"github.com/quivergql/quiver/language"
	"github.com/quivergql/quiver/network"
	"github.com/quivergql/quiver/store"
)

// Config carries the Environment's collaborators. Network is required.
type Config struct {
	Network network.Network

	// Store is optional; a fresh store is created when nil.
	Store *store.Store
}

type options struct {
	log    logrus.FieldLogger
	events events.Logger
}

// Option configures an Environment.
type Option func(*options)

// WithLogger sets the diagnostic logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(o *options) { o.log = log }
}

// WithEventsLogger sets the instrumentation event sink.
func WithEventsLogger(l events.Logger) Option {
	return func(o *options) { o.events = l }
}

// Environment owns one record graph and the machinery around it. All
// mutation funnels through its publish queue, so garbage collection, notify
// passes, and publishes never interleave.
type Environment struct {
	store  *store.Store
	queue  *store.PublishQueue
	net    network.Network
	log    logrus.FieldLogger
	events events.Logger

	mu     sync.Mutex
	active map[*network.Subscription]struct{}
	closed bool
}

var errNilNetwork = errors.New("quiver: Config.Network is required")

// NewEnvironment wires an environment from its collaborators.
func NewEnvironment(cfg Config, opts ...Option) (*Environment, error) {
	if cfg.Network == nil {
		return nil, errNilNetwork
	}
	o := options{log: logrus.StandardLogger(), events: events.Nop}
	for _, opt := range opts {
		opt(&o)
	}
	st := cfg.Store
	if st == nil {
		st = store.NewStore(store.WithLogger(o.log), store.WithEventsLogger(o.events))
	}
	return &Environment{
		store:  st,
		queue:  store.NewPublishQueue(st),
		net:    cfg.Network,
		log:    o.log,
		events: o.events,
		active: make(map[*network.Subscription]struct{}),
	}, nil
}

// Store returns the environment's normalized store.
func (e *Environment) Store() *store.Store { return e.store }

// Network returns the fetch boundary.
func (e *Environment) Network() network.Network { return e.net }

// Events returns the instrumentation sink.
func (e *Environment) Events() events.Logger { return e.events }

// Logger returns the diagnostic logger.
func (e *Environment) Logger() logrus.FieldLogger { return e.log }

// Lookup resolves a selector against the store.
func (e *Environment) Lookup(sel store.Selector) store.Snapshot { return e.store.Lookup(sel) }

// Subscribe registers a snapshot callback with the store.
func (e *Environment) Subscribe(snapshot store.Snapshot, cb func(store.Snapshot)) store.Disposable {
	return e.store.Subscribe(snapshot, cb)
}

// Retain places a keep-alive on the selector's reachable records.
func (e *Environment) Retain(sel store.Selector) store.Disposable { return e.store.Retain(sel) }

// Check reports whether the selector is fully resolvable from the store.
func (e *Environment) Check(sel store.Selector) bool { return e.store.Check(sel) }

// Execute returns a cold stream for the operation. On subscription the
// fetch is issued; each payload is normalized and published through the
// publish queue before being forwarded, so by the time an observer sees a
// payload the store already reflects it.
func (e *Environment) Execute(ctx context.Context, op *language.OperationDescriptor) *network.Stream {
	return network.NewStream(func(observer network.Observer) network.CancelFunc {
		rid := uuid.New()
		start := time.Now()
		e.events(events.FetchStart{RequestID: rid, Operation: op.Request.Name})

		var sub *network.Subscription
		sub = e.net.Execute(ctx, op.Request, op.Variables).Subscribe(network.Sink{
			OnNext: func(p *network.Payload) {
				final := p.HasNext == nil || !*p.HasNext
				e.events(events.FetchPayload{RequestID: rid, Operation: op.Request.Name, Final: final})
				if err := e.commitFetchPayload(op, p); err != nil {
					e.log.WithField("operation", op.Request.Name).WithField("err", err).Warn("quiver: payload rejected")
					observer.Error(err)
					if sub != nil {
						sub.Dispose()
					}
					return
				}
				observer.Next(p)
			},
			OnError: func(err error) {
				e.events(events.FetchFinish{RequestID: rid, Operation: op.Request.Name, Err: err, Duration: time.Since(start)})
				e.forget(sub)
				observer.Error(err)
			},
			OnComplete: func() {
				e.events(events.FetchFinish{RequestID: rid, Operation: op.Request.Name, Duration: time.Since(start)})
				e.forget(sub)
				observer.Complete()
			},
		})
		e.track(sub)
		return sub.Dispose
	})
}

// commitFetchPayload routes one response payload through the publish queue.
// Payloads carrying a path are normalized rooted at the record owning that
// path position.
func (e *Environment) commitFetchPayload(op *language.OperationDescriptor, p *network.Payload) error {
	if p.Data == nil {
		return nil
	}
	if len(p.Path) > 0 {
		sel, err := e.store.ResolvePath(store.RootSelector(op), p.Path)
		if err != nil {
			return err
		}
		e.queue.CommitPayloadAt(sel, p.Data)
	} else {
		e.queue.CommitPayload(op, p.Data)
	}
	_, err := e.queue.Run()
	return err
}

// CommitPayload normalizes and publishes a server payload for the
// operation, notifying subscribers in the same pass.
func (e *Environment) CommitPayload(op *language.OperationDescriptor, data map[string]any) ([]store.RequestID, error) {
	e.queue.CommitPayload(op, data)
	return e.queue.Run()
}

// CommitUpdate applies an imperative updater, notifying subscribers in the
// same pass.
func (e *Environment) CommitUpdate(u store.Updater) ([]store.RequestID, error) {
	e.queue.CommitUpdater(u)
	return e.queue.Run()
}

// ApplyOptimistic applies a revertible optimistic update. Disposing the
// returned handle reverts it, replaying any other applied updates from the
// clean base. Disposal is idempotent.
func (e *Environment) ApplyOptimistic(u store.Updater) (store.Disposable, error) {
	update := store.NewOptimisticUpdate(u)
	e.queue.ApplyOptimistic(update)
	if _, err := e.queue.Run(); err != nil {
		return nil, err
	}
	var once sync.Once
	return disposableFunc(func() {
		once.Do(func() {
			e.queue.RevertOptimistic(update.Token)
			if _, err := e.queue.Run(); err != nil {
				e.log.WithField("err", err).Warn("quiver: optimistic revert failed")
			}
		})
	}), nil
}

// Close disposes every in-flight fetch. The environment must not be used
// afterwards.
func (e *Environment) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	subs := make([]*network.Subscription, 0, len(e.active))
	for sub := range e.active {
		subs = append(subs, sub)
	}
	e.active = make(map[*network.Subscription]struct{})
	e.mu.Unlock()
	for _, sub := range subs {
		sub.Dispose()
	}
	return nil
}

func (e *Environment) track(sub *network.Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.active[sub] = struct{}{}
	}
}

func (e *Environment) forget(sub *network.Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, sub)
}

type disposableFunc func()

func (f disposableFunc) Dispose() { f() }
