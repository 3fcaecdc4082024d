package resource

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/sirupsen/logrus"

	quiver "github.com/quivergql/quiver"
	"github.com/quivergql/quiver/events"
	"github.com/quivergql/quiver/language"
	"github.com/quivergql/quiver/network"
	"github.com/quivergql/quiver/store"
)

// Fetch lifecycle errors surfaced through a Resolution or a Pending.
var (
	// ErrIncompleteResponse marks a fetch that completed without ever
	// making the operation fully resolvable.
	ErrIncompleteResponse = errors.New("resource: fetch completed with missing data")
	// ErrCanceled marks a fetch abandoned by eviction or disposal.
	ErrCanceled = errors.New("resource: fetch canceled")
)

const (
	// DefaultCapacity bounds the entry count before recency eviction.
	DefaultCapacity = 1000
	// DefaultRetainTTL bounds how long a render attempt's temporary retain
	// keeps records alive without a commit.
	DefaultRetainTTL = 30 * time.Second
)

// Cache is the query resource cache. Entries are keyed by operation
// identity, fetch policy, and render policy (plus an optional cache
// buster); each holds a pending awaitable, a terminal error, or a ready
// result. Every render-phase access arms a temporary, timeout-bounded
// retain on the entry's records; a commit promotes it to a permanent,
// caller-controlled one.
type Cache struct {
	env *quiver.Environment

	mu       sync.Mutex
	entries  map[string]*entry
	lru      *list.List // front = most recently used
	capacity int
	ttl      time.Duration
	clock    clock.Clock
	render   RenderPolicy

	log    logrus.FieldLogger
	events events.Logger
}

type entry struct {
	key string
	op  *language.OperationDescriptor
	sel store.Selector

	state   State
	pending *Pending
	result  *Result
	err     error

	retains     int
	tempTimer   clock.Timer
	storeRetain store.Disposable
	fetch       *network.Subscription
	elem        *list.Element
	evicted     bool
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithCapacity bounds the entry count.
func WithCapacity(n int) CacheOption {
	return func(c *Cache) { c.capacity = n }
}

// WithRetainTTL overrides the temporary-retain expiry.
func WithRetainTTL(d time.Duration) CacheOption {
	return func(c *Cache) { c.ttl = d }
}

// WithClock injects the timer source, for tests.
func WithClock(clk clock.Clock) CacheOption {
	return func(c *Cache) { c.clock = clk }
}

// WithRenderPolicy overrides the cache's default render policy.
func WithRenderPolicy(p RenderPolicy) CacheOption {
	return func(c *Cache) { c.render = p }
}

// NewCache creates a cache bound to one environment.
func NewCache(env *quiver.Environment, opts ...CacheOption) *Cache {
	c := &Cache{
		env:      env,
		entries:  make(map[string]*entry),
		lru:      list.New(),
		capacity: DefaultCapacity,
		ttl:      DefaultRetainTTL,
		clock:    clock.WallClock,
		render:   DefaultRenderPolicy,
		log:      env.Logger(),
		events:   env.Events(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Size returns the number of live entries.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Prepare is the render-phase read. It is idempotent per key: repeated and
// speculative calls reuse the entry and only re-arm its temporary retain.
// The returned error reports configuration misuse only; fetch outcomes
// travel inside the Resolution.
//
// The optional observer is attached to a fetch started by this call and
// sees the raw payload events.
func (c *Cache) Prepare(ctx context.Context, op *language.OperationDescriptor, fetchPolicy FetchPolicy, renderPolicy RenderPolicy, observer network.Observer, cacheBuster string) (Resolution, error) {
	if fetchPolicy == "" {
		fetchPolicy = DefaultFetchPolicy
	}
	if renderPolicy == "" {
		renderPolicy = c.render
	}
	if !fetchPolicy.valid() {
		return Resolution{}, fmt.Errorf("resource: unknown fetch policy %q", fetchPolicy)
	}
	if !renderPolicy.valid() {
		return Resolution{}, fmt.Errorf("resource: unknown render policy %q", renderPolicy)
	}
	key := cacheKey(op, fetchPolicy, renderPolicy, cacheBuster)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.lru.MoveToFront(e.elem)
		c.armTempRetainLocked(e)
		res := e.resolution()
		c.mu.Unlock()
		c.events(events.ResourceHit{Key: key})
		return res, nil
	}

	e := &entry{key: key, op: op, sel: store.RootSelector(op)}
	e.storeRetain = c.env.Retain(e.sel)
	e.elem = c.lru.PushFront(e)
	c.entries[key] = e
	c.armTempRetainLocked(e)

	full := c.env.Check(e.sel)
	shouldFetch := false
	switch fetchPolicy {
	case StoreOnly:
	case StoreOrNetwork:
		shouldFetch = !full
	case StoreAndNetwork, NetworkOnly:
		shouldFetch = true
	}
	canRender := fetchPolicy == StoreOnly ||
		(fetchPolicy != NetworkOnly && (full || renderPolicy == RenderPartial))

	if canRender {
		e.state = StateReady
		e.result = &Result{Operation: op, Snapshot: c.env.Lookup(e.sel), cacheKey: key}
	} else {
		e.state = StatePending
		e.pending = newPending()
	}
	c.evictOverCapacityLocked()
	res := e.resolution()
	c.mu.Unlock()
	c.events(events.ResourceMiss{Key: key})

	if shouldFetch {
		c.startFetch(ctx, e, observer)
	}
	return res, nil
}

// Retain is the commit-phase hold: it cancels the entry's pending
// temporary-retain timeout and increments its permanent retain count.
// Disposing the returned token decrements it; at zero the entry is evicted.
// Retaining a result whose entry was already evicted is a lifecycle bug.
func (c *Cache) Retain(res *Result) store.Disposable {
	c.mu.Lock()
	e, ok := c.entries[res.cacheKey]
	if !ok {
		c.mu.Unlock()
		panic(fmt.Sprintf("resource: retain of evicted entry %s", res.cacheKey))
	}
	c.stopTempRetainLocked(e)
	e.retains++
	c.mu.Unlock()

	disposed := false
	return disposableFunc(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if disposed {
			return
		}
		disposed = true
		if e.retains <= 0 {
			panic(fmt.Sprintf("resource: release of unretained entry %s", e.key))
		}
		e.retains--
		if e.retains == 0 && !e.evicted {
			c.evictLocked(e)
		}
	})
}

// Evict discards the entry for the given key, canceling any in-flight
// fetch, so that a later Prepare with the same key starts over.
func (c *Cache) Evict(op *language.OperationDescriptor, fetchPolicy FetchPolicy, renderPolicy RenderPolicy, cacheBuster string) {
	if fetchPolicy == "" {
		fetchPolicy = DefaultFetchPolicy
	}
	if renderPolicy == "" {
		renderPolicy = c.render
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[cacheKey(op, fetchPolicy, renderPolicy, cacheBuster)]; ok {
		c.evictLocked(e)
	}
}

// Clear evicts every entry, in-flight fetches included. Used when the
// owning environment is discarded.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		c.evictLocked(e)
	}
}

func cacheKey(op *language.OperationDescriptor, fp FetchPolicy, rp RenderPolicy, buster string) string {
	key := op.ID() + "|" + string(fp) + "|" + string(rp)
	if buster != "" {
		key += "|" + buster
	}
	return key
}

func (e *entry) resolution() Resolution {
	switch e.state {
	case StateReady:
		return Resolution{state: StateReady, result: e.result}
	case StateFailed:
		return Resolution{state: StateFailed, err: e.err}
	default:
		return Resolution{state: StatePending, pending: e.pending}
	}
}

// armTempRetainLocked (re)starts the entry's auto-expiring hold. Newer
// render attempts collapse onto the latest timer.
func (c *Cache) armTempRetainLocked(e *entry) {
	c.stopTempRetainLocked(e)
	e.tempTimer = c.clock.AfterFunc(c.ttl, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		e.tempTimer = nil
		if e.retains == 0 && !e.evicted {
			c.log.WithField("key", e.key).Debug("resource: temporary retain expired")
			c.evictLocked(e)
		}
	})
}

func (c *Cache) stopTempRetainLocked(e *entry) {
	if e.tempTimer != nil {
		e.tempTimer.Stop()
		e.tempTimer = nil
	}
}

func (c *Cache) evictOverCapacityLocked() {
	for len(c.entries) > c.capacity {
		evicted := false
		for elem := c.lru.Back(); elem != nil; elem = elem.Prev() {
			e := elem.Value.(*entry)
			if e.retains == 0 {
				c.evictLocked(e)
				evicted = true
				break
			}
		}
		if !evicted {
			// Every entry is permanently retained; the cache may
			// temporarily exceed its capacity.
			return
		}
	}
}

func (c *Cache) evictLocked(e *entry) {
	if e.evicted {
		return
	}
	e.evicted = true
	delete(c.entries, e.key)
	c.lru.Remove(e.elem)
	c.stopTempRetainLocked(e)
	if e.fetch != nil {
		e.fetch.Dispose()
	}
	e.storeRetain.Dispose()
	if e.pending != nil {
		e.pending.resolve(ErrCanceled)
	}
	c.events(events.ResourceEvict{Key: e.key})
}

// startFetch subscribes to the environment's execute stream for the entry.
// Intermediate payloads that still leave the operation unresolvable keep
// the entry pending; the transition out of pending happens exactly once per
// terminal condition.
func (c *Cache) startFetch(ctx context.Context, e *entry, observer network.Observer) {
	sub := c.env.Execute(ctx, e.op).Subscribe(network.Sink{
		OnNext: func(p *network.Payload) {
			if observer != nil {
				observer.Next(p)
			}
			c.mu.Lock()
			if !e.evicted && e.state == StatePending && c.env.Check(e.sel) {
				e.state = StateReady
				e.result = &Result{Operation: e.op, Snapshot: c.env.Lookup(e.sel), cacheKey: e.key}
				pending := e.pending
				e.pending = nil
				c.mu.Unlock()
				pending.resolve(nil)
				return
			}
			c.mu.Unlock()
		},
		OnError: func(err error) {
			if observer != nil {
				observer.Error(err)
			}
			c.mu.Lock()
			if !e.evicted && e.state == StatePending {
				e.state = StateFailed
				e.err = err
				pending := e.pending
				e.pending = nil
				c.mu.Unlock()
				pending.resolve(err)
				return
			}
			c.mu.Unlock()
		},
		OnComplete: func() {
			if observer != nil {
				observer.Complete()
			}
			c.mu.Lock()
			if !e.evicted && e.state == StatePending {
				if c.env.Check(e.sel) {
					e.state = StateReady
					e.result = &Result{Operation: e.op, Snapshot: c.env.Lookup(e.sel), cacheKey: e.key}
					pending := e.pending
					e.pending = nil
					c.mu.Unlock()
					pending.resolve(nil)
					return
				}
				e.state = StateFailed
				e.err = ErrIncompleteResponse
				pending := e.pending
				e.pending = nil
				c.mu.Unlock()
				pending.resolve(ErrIncompleteResponse)
				return
			}
			c.mu.Unlock()
		},
	})
	c.mu.Lock()
	if e.evicted {
		c.mu.Unlock()
		sub.Dispose()
		return
	}
	e.fetch = sub
	c.mu.Unlock()
}

type disposableFunc func()

func (f disposableFunc) Dispose() { f() }
