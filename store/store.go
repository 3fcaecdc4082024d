package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quivergql/quiver/events"
)

// Store is the normalized graph store: it wraps a record source, resolves
// selectors into immutable snapshots, tracks per-selector subscriptions,
// batches change notification, and reclaims unreachable records by
// retain-counted mark-and-sweep.
//
// The mutex serializes state passes (publish, notify computation, GC,
// retain bookkeeping); subscriber callbacks run after the lock is released,
// so they may freely read the store. Publish, notify, and GC therefore
// never interleave.
type Store struct {
	mu      sync.Mutex
	source  *MapSource
	base    *MapSource // pre-optimistic state, nil when no snapshot is held
	subs    map[*subscription]struct{}
	updated map[DataID]struct{}
	roots   map[string]*retainRoot

	gcSchedule func(func())
	log        logrus.FieldLogger
	events     events.Logger
}

type retainRoot struct {
	sel  Selector
	refs int
}

type subscription struct {
	store    *Store
	snapshot Snapshot
	callback func(Snapshot)
	stale    bool
	disposed bool
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger for GC and lifecycle diagnostics.
func WithLogger(log logrus.FieldLogger) StoreOption {
	return func(s *Store) { s.log = log }
}

// WithEventsLogger sets the instrumentation event sink.
func WithEventsLogger(l events.Logger) StoreOption {
	return func(s *Store) { s.events = l }
}

// WithGCScheduler sets how a sweep is scheduled once the last retain on a
// root is released. The default runs the sweep inline.
func WithGCScheduler(schedule func(func())) StoreOption {
	return func(s *Store) { s.gcSchedule = schedule }
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		source:     NewMapSource(),
		subs:       make(map[*subscription]struct{}),
		updated:    make(map[DataID]struct{}),
		roots:      make(map[string]*retainRoot),
		gcSchedule: func(f func()) { f() },
		log:        logrus.StandardLogger(),
		events:     events.Nop,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Lookup resolves a selector into a snapshot. Pure read: subscriptions are
// untouched.
func (s *Store) Lookup(sel Selector) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return read(s.source, sel)
}

// Check reports whether every field the selector names is present. Pure
// read.
func (s *Store) Check(sel Selector) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return check(s.source, sel)
}

// Subscribe associates a previous snapshot with a callback. The callback
// fires at most once per notify pass, and only when the recomputed snapshot
// differs by identity from the prior one. Nothing fires synchronously from
// Subscribe. The returned disposable is idempotent.
func (s *Store) Subscribe(snapshot Snapshot, callback func(Snapshot)) Disposable {
	sub := &subscription{store: s, snapshot: snapshot, callback: callback}
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()
	return disposableFunc(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub.disposed {
			return
		}
		sub.disposed = true
		delete(s.subs, sub)
	})
}

// Publish merges incoming records into the source, field by field: present
// fields overwrite (explicit nulls included), omitted fields are preserved,
// tombstones delete. Touched record identifiers are marked dirty; nothing
// is notified until Notify.
func (s *Store) Publish(src RecordSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishLocked(src)
}

func (s *Store) publishLocked(src RecordSource) {
	ids := src.IDs()
	for _, id := range ids {
		if src.IsDeleted(id) {
			s.source.Delete(id)
			s.updated[id] = struct{}{}
			continue
		}
		incoming := src.Get(id)
		if existing := s.source.Get(id); existing != nil {
			existing.Update(incoming)
		} else {
			s.source.Set(id, incoming.Copy())
		}
		s.updated[id] = struct{}{}
	}
	s.events(events.StorePublish{Records: len(ids)})
}

// Notify recomputes every subscription whose seen-record set intersects the
// records published since the last pass, fires callbacks for those whose
// snapshot actually changed, clears the dirty set, and returns the distinct
// identifiers of the affected owning requests. The pass runs synchronously
// and fully before returning.
func (s *Store) Notify() []RequestID {
	s.mu.Lock()
	type firing struct {
		sub  *subscription
		next Snapshot
	}
	var fires []firing
	total := len(s.subs)
	for sub := range s.subs {
		if !sub.stale && !intersects(sub.snapshot.SeenRecords, s.updated) {
			continue
		}
		sub.stale = false
		next := read(s.source, sub.snapshot.Selector)
		merged, same := recycle(sub.snapshot.Data, next.Data)
		next.Data, _ = merged.(map[string]any)
		prev := sub.snapshot
		sub.snapshot = next
		if same && prev.IsMissingData == next.IsMissingData {
			continue
		}
		fires = append(fires, firing{sub: sub, next: next})
	}
	s.updated = make(map[DataID]struct{})
	s.events(events.StoreNotify{Subscribers: total, Changed: len(fires)})
	s.mu.Unlock()

	seen := make(map[RequestID]struct{}, len(fires))
	affected := make([]RequestID, 0, len(fires))
	for _, f := range fires {
		f.sub.callback(f.next)
		id := f.next.Selector.RequestID()
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			affected = append(affected, id)
		}
	}
	return affected
}

// Retain places one unit of keep-alive on the selector's reachable set.
// Tokens for the same selector stack. Disposing the returned token
// decrements the count; when it reaches zero the root is dropped and a
// sweep is scheduled. Disposing one token twice is a no-op.
func (s *Store) Retain(sel Selector) Disposable {
	key := sel.Key()
	s.mu.Lock()
	root, ok := s.roots[key]
	if !ok {
		root = &retainRoot{sel: sel}
		s.roots[key] = root
	}
	root.refs++
	s.mu.Unlock()

	disposed := false
	return disposableFunc(func() {
		s.mu.Lock()
		if disposed {
			s.mu.Unlock()
			return
		}
		disposed = true
		root, ok := s.roots[key]
		if !ok || root.refs <= 0 {
			s.mu.Unlock()
			panic(fmt.Sprintf("store: release of unretained root %s", key))
		}
		root.refs--
		last := root.refs == 0
		if last {
			delete(s.roots, key)
		}
		s.mu.Unlock()
		if last {
			s.gcSchedule(s.GC)
		}
	})
}

// GC runs one mark-and-sweep pass: every record reachable from a retained
// selector survives, everything else is removed. The pass holds the store
// lock, so it cannot interleave with a publish or a notify computation.
func (s *Store) GC() {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()
	marked := make(map[DataID]struct{})
	for _, root := range s.roots {
		snap := read(s.source, root.sel)
		for id := range snap.SeenRecords {
			marked[id] = struct{}{}
		}
	}
	collected := 0
	for _, id := range s.source.IDs() {
		if _, ok := marked[id]; ok {
			continue
		}
		s.source.Remove(id)
		collected++
	}
	s.events(events.StoreGC{Live: len(marked), Collected: collected, Duration: time.Since(start)})
	if collected > 0 {
		s.log.WithField("collected", collected).Debug("store: swept unreachable records")
	}
}

// TakeSnapshot captures the current record state so a later RestoreSnapshot
// can roll optimistic updates back. Taking a second snapshot while one is
// held is a lifecycle bug.
func (s *Store) TakeSnapshot() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.base != nil {
		panic("store: snapshot already taken")
	}
	s.base = s.source.Copy()
}

// RestoreSnapshot reinstates the record state captured by TakeSnapshot and
// marks every subscription stale so the next Notify re-reads it. Restoring
// without a held snapshot is a lifecycle bug.
func (s *Store) RestoreSnapshot() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.base == nil {
		panic("store: restore without snapshot")
	}
	s.source = s.base
	s.base = nil
	for sub := range s.subs {
		sub.stale = true
	}
}

// HoldsSnapshot reports whether an optimistic base snapshot is held.
func (s *Store) HoldsSnapshot() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base != nil
}

func intersects(seen map[DataID]struct{}, updated map[DataID]struct{}) bool {
	if len(seen) > len(updated) {
		seen, updated = updated, seen
	}
	for id := range seen {
		if _, ok := updated[id]; ok {
			return true
		}
	}
	return false
}
