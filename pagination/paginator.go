// Package pagination coordinates cursor pagination over connection fields:
// it derives the next page's variables from the latest page-info snapshot,
// issues the fetch, and merges the returned edge page into the existing
// connection.
package pagination

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	quiver "github.com/quivergql/quiver"
	"github.com/quivergql/quiver/events"
	"github.com/quivergql/quiver/language"
	"github.com/quivergql/quiver/network"
	"github.com/quivergql/quiver/store"
)

// nextEdgeIndexKey is a bookkeeping field on connection records ensuring
// client-generated edge identifiers never collide across merged pages.
const nextEdgeIndexKey = "__nextEdgeIndex"

// Config wires a paginator to one mounted consumer.
type Config struct {
	// Environment is required.
	Environment *quiver.Environment

	// Selector is the fragment read rooted at the record that owns the
	// connection field. Required.
	Selector store.Selector

	// Connection is the response name of the paginated field within the
	// selector. The field must carry a @connection directive. Required.
	Connection string

	// Logger defaults to the environment's logger.
	Logger logrus.FieldLogger

	// Scheduler is the yield used before firing completion callbacks for
	// benign no-ops. Defaults to an inline call; rendering integrations
	// that require the callback to be asynchronous inject their own.
	Scheduler func(func())
}

// LoadOptions carries per-call options for LoadMore.
type LoadOptions struct {
	// OnComplete is invoked exactly once when the page request terminates:
	// with nil on success or exhaustion, with the fetch error on failure.
	// It is never invoked when the request is canceled.
	OnComplete func(error)
}

// Paginator is the per-consumer pagination coordinator. It keeps the
// consumer's fragment snapshot fresh through a store subscription and
// allows at most one page request in flight.
type Paginator struct {
	env       *quiver.Environment
	sel       store.Selector
	field     *language.Field
	edges     *language.Field
	log       logrus.FieldLogger
	scheduler func(func())

	mu         sync.Mutex
	snapshot   store.Snapshot
	storeSub   store.Disposable
	vars       language.Variables // base variables, replaced by Refetch
	inFlight   bool
	direction  Direction
	fetch      *network.Subscription
	onComplete func(error) // the in-flight initiator's callback
	waiters    []func(error)
	mergeErr   error
	mounted    bool
}

// New builds a paginator. Missing configuration and a missing or malformed
// @connection directive are configuration errors reported synchronously.
func New(cfg Config) (*Paginator, error) {
	if cfg.Environment == nil {
		return nil, errors.New("pagination: Config.Environment is required")
	}
	if cfg.Connection == "" {
		return nil, errors.New("pagination: Config.Connection is required")
	}
	sel := cfg.Selector
	if sel.Owner == nil {
		return nil, errors.New("pagination: Config.Selector is required")
	}
	field := findConnectionField(sel, cfg.Connection)
	if field == nil {
		return nil, fmt.Errorf("pagination: field %q not found in selection", cfg.Connection)
	}
	meta, err := language.ConnectionInfo(field)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, fmt.Errorf("pagination: field %q lacks a @connection directive", cfg.Connection)
	}
	edges := findField(sel, field.SelectionSet, language.ConnectionEdges)
	if edges == nil {
		return nil, fmt.Errorf("pagination: connection %q selects no edges", cfg.Connection)
	}

	log := cfg.Logger
	if log == nil {
		log = cfg.Environment.Logger()
	}
	scheduler := cfg.Scheduler
	if scheduler == nil {
		scheduler = func(f func()) { f() }
	}
	p := &Paginator{
		env:       cfg.Environment,
		sel:       sel,
		field:     field,
		edges:     edges,
		log:       log.WithField("connection", meta.Key),
		scheduler: scheduler,
		vars:      sel.Owner.Variables,
		mounted:   true,
	}
	p.snapshot = p.env.Lookup(sel)
	p.storeSub = p.env.Subscribe(p.snapshot, func(s store.Snapshot) {
		p.mu.Lock()
		p.snapshot = s
		p.mu.Unlock()
	})
	return p, nil
}

// HasNext reports whether forward pages remain, recomputed from the latest
// snapshot.
func (p *Paginator) HasNext() bool { return p.pageState().hasMore(Forward) }

// HasPrevious reports whether backward pages remain.
func (p *Paginator) HasPrevious() bool { return p.pageState().hasMore(Backward) }

// IsLoading reports whether a page request is in flight.
func (p *Paginator) IsLoading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlight
}

// LoadNext requests count more edges after the current end cursor.
func (p *Paginator) LoadNext(count int, opts LoadOptions) store.Disposable {
	return p.LoadMore(Forward, count, opts)
}

// LoadPrevious requests count more edges before the current start cursor.
func (p *Paginator) LoadPrevious(count int, opts LoadOptions) store.Disposable {
	return p.LoadMore(Backward, count, opts)
}

// LoadMore issues one page request in the given direction. Benign no-op
// conditions - unmounted consumer, a request already in flight, an
// exhausted connection - warn and return a no-op disposable rather than
// erroring; the exhausted case still completes the callback with no error.
// Disposing the returned handle cancels the fetch exactly once and
// suppresses the completion callback.
func (p *Paginator) LoadMore(direction Direction, count int, opts LoadOptions) store.Disposable {
	p.mu.Lock()
	if !p.mounted {
		p.mu.Unlock()
		p.log.Warn("pagination: load on unmounted paginator")
		return store.NopDisposable
	}
	if p.inFlight {
		if p.direction == direction {
			if opts.OnComplete != nil {
				p.waiters = append(p.waiters, opts.OnComplete)
			}
			p.mu.Unlock()
			p.log.WithField("direction", direction.String()).Warn("pagination: request already in flight")
			return store.NopDisposable
		}
		p.mu.Unlock()
		p.log.WithField("direction", direction.String()).Warn("pagination: another request is in flight")
		return store.NopDisposable
	}
	st := readPageState(p.snapshot.Data, language.AliasOrName(p.field))
	if !st.hasMore(direction) {
		p.mu.Unlock()
		p.log.WithField("direction", direction.String()).Warn("pagination: no more pages")
		if opts.OnComplete != nil {
			p.scheduler(func() { opts.OnComplete(nil) })
		}
		return store.NopDisposable
	}

	vars := p.vars.Copy()
	vars[direction.cursorArg()] = st.cursor(direction)
	vars[direction.countArg()] = count
	// Pagination issued from a nested fragment resolves against the record
	// owning the connection, not the top-level query root.
	if p.sel.Root != store.RootID {
		vars["id"] = string(p.sel.Root)
	}

	p.inFlight = true
	p.direction = direction
	p.onComplete = opts.OnComplete
	p.mu.Unlock()

	p.env.Events()(events.PageLoad{Direction: direction.String(), Count: count})

	sub := p.env.Network().Execute(context.Background(), p.sel.Owner.Request, vars).Subscribe(network.Sink{
		OnNext: func(payload *network.Payload) {
			if payload.Data == nil {
				return
			}
			connPayload := findPayloadObject(payload.Data, language.AliasOrName(p.field))
			if connPayload == nil {
				p.log.Warn("pagination: response carries no connection data")
				return
			}
			if _, err := p.env.CommitUpdate(p.mergeUpdater(direction, connPayload)); err != nil {
				p.log.WithField("err", err).Warn("pagination: page merge failed")
				p.mu.Lock()
				p.mergeErr = err
				p.mu.Unlock()
			}
		},
		OnError: func(err error) {
			p.settle(err)
		},
		OnComplete: func() {
			p.settle(nil)
		},
	})

	p.mu.Lock()
	stillInFlight := p.inFlight
	if stillInFlight {
		p.fetch = sub
	}
	p.mu.Unlock()
	if !stillInFlight {
		// The fetch terminated synchronously during Subscribe.
		sub.Dispose()
	}

	disposed := false
	return disposableFunc(func() {
		if disposed {
			return
		}
		disposed = true
		p.cancelInFlight()
	})
}

// Refetch replaces the pagination variables wholesale, cancels any
// in-flight page request without completing it, and re-executes the owning
// operation so pagination restarts from a fresh cursor.
func (p *Paginator) Refetch(ctx context.Context, vars language.Variables, onComplete func(error)) store.Disposable {
	p.mu.Lock()
	if !p.mounted {
		p.mu.Unlock()
		p.log.Warn("pagination: refetch on unmounted paginator")
		return store.NopDisposable
	}
	p.mu.Unlock()
	p.cancelInFlight()
	p.mu.Lock()
	p.vars = vars
	p.mu.Unlock()

	desc := p.sel.Owner.Request.Describe(vars)
	sub := p.env.Execute(ctx, desc).Subscribe(network.Sink{
		OnError: func(err error) {
			if onComplete != nil {
				onComplete(err)
			}
		},
		OnComplete: func() {
			if onComplete != nil {
				onComplete(nil)
			}
		},
	})
	return disposableFunc(sub.Dispose)
}

// Dispose unmounts the paginator: the in-flight request, if any, is
// canceled exactly once without completing, and the snapshot subscription
// is dropped.
func (p *Paginator) Dispose() {
	p.mu.Lock()
	if !p.mounted {
		p.mu.Unlock()
		return
	}
	p.mounted = false
	storeSub := p.storeSub
	p.mu.Unlock()
	p.cancelInFlight()
	storeSub.Dispose()
}

func (p *Paginator) pageState() pageState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return readPageState(p.snapshot.Data, language.AliasOrName(p.field))
}

// settle finishes the in-flight request and fires every queued completion
// callback. The initiating caller's callback receives the terminal error;
// piggybacked no-op callers always receive nil.
func (p *Paginator) settle(err error) {
	p.mu.Lock()
	if !p.inFlight {
		p.mu.Unlock()
		return
	}
	p.inFlight = false
	p.fetch = nil
	if err == nil {
		err = p.mergeErr
	}
	p.mergeErr = nil
	onComplete := p.onComplete
	p.onComplete = nil
	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()
	if onComplete != nil {
		onComplete(err)
	}
	for _, w := range waiters {
		w(nil)
	}
}

// cancelInFlight drops the current request without firing callbacks.
func (p *Paginator) cancelInFlight() {
	p.mu.Lock()
	if !p.inFlight {
		p.mu.Unlock()
		return
	}
	p.inFlight = false
	fetch := p.fetch
	p.fetch = nil
	p.onComplete = nil
	p.waiters = nil
	p.mergeErr = nil
	p.mu.Unlock()
	if fetch != nil {
		fetch.Dispose()
	}
}

// mergeUpdater merges one fetched page into the existing connection:
// forward pagination appends the new edges and adopts the page's forward
// flags while preserving the backward ones; backward pagination mirrors
// that. Edges whose cursor is already present are skipped.
func (p *Paginator) mergeUpdater(direction Direction, connPayload map[string]any) store.Updater {
	return func(px *store.Proxy) error {
		connKey := language.StorageKey(p.field, p.sel.Variables)
		owner := px.GetOrCreate(p.sel.Root, "")
		connID := store.ClientID(p.sel.Root, connKey)
		if v, ok := owner.Value(connKey); ok {
			if id, isLink := v.Link(); isLink && id != "" {
				connID = id
			}
		}
		typ, _ := connPayload["__typename"].(string)
		conn := px.GetOrCreate(connID, typ)
		owner.SetLink(connKey, connID)

		if err := p.mergeEdges(px, conn, direction, connPayload); err != nil {
			return err
		}
		return p.mergePageInfo(px, conn, direction, connPayload)
	}
}

func (p *Paginator) mergeEdges(px *store.Proxy, conn *store.RecordProxy, direction Direction, connPayload map[string]any) error {
	rawEdges, ok := connPayload[language.ConnectionEdges].([]any)
	if !ok {
		return fmt.Errorf("pagination: page carries no edges list")
	}

	var existing []store.DataID
	if v, ok := conn.Value(language.ConnectionEdges); ok {
		existing, _ = v.Links()
	}
	seenCursors := make(map[any]bool, len(existing))
	for _, id := range existing {
		if id == "" {
			continue
		}
		if edge := px.Get(id); edge != nil {
			if v, ok := edge.Value(language.ConnectionCursor); ok {
				if cursor, isScalar := v.Scalar(); isScalar {
					seenCursors[cursor] = true
				}
			}
		}
	}

	nextIndex := 0
	if v, ok := conn.Value(nextEdgeIndexKey); ok {
		if n, isScalar := v.Scalar(); isScalar {
			switch i := n.(type) {
			case int:
				nextIndex = i
			case float64:
				nextIndex = int(i)
			}
		}
	} else {
		nextIndex = len(existing)
	}

	var page []store.DataID
	for _, raw := range rawEdges {
		obj, ok := raw.(map[string]any)
		if !ok {
			if raw == nil {
				page = append(page, "")
				continue
			}
			return fmt.Errorf("pagination: malformed edge %T", raw)
		}
		if cursor, ok := obj[language.ConnectionCursor]; ok && seenCursors[cursor] {
			continue
		}
		edgeID := store.ClientID(conn.ID(), language.ConnectionEdges, nextIndex)
		nextIndex++
		sel := store.Selector{
			Root:       edgeID,
			Selections: p.edges.SelectionSet,
			Variables:  p.sel.Variables,
			Owner:      p.sel.Owner,
		}
		src, err := store.NormalizeResponse(sel, obj)
		if err != nil {
			return err
		}
		px.MergeSource(src)
		page = append(page, edgeID)
	}

	var merged []store.DataID
	if direction == Backward {
		merged = append(append(merged, page...), existing...)
	} else {
		merged = append(append(merged, existing...), page...)
	}
	conn.SetLinks(language.ConnectionEdges, merged)
	conn.SetScalar(nextEdgeIndexKey, nextIndex)
	return nil
}

func (p *Paginator) mergePageInfo(px *store.Proxy, conn *store.RecordProxy, direction Direction, connPayload map[string]any) error {
	newInfo, ok := connPayload[language.ConnectionPageInfo].(map[string]any)
	if !ok {
		return fmt.Errorf("pagination: page carries no pageInfo")
	}
	infoID := store.ClientID(conn.ID(), language.ConnectionPageInfo)
	if v, ok := conn.Value(language.ConnectionPageInfo); ok {
		if id, isLink := v.Link(); isLink && id != "" {
			infoID = id
		}
	}
	typ, _ := newInfo["__typename"].(string)
	info := px.GetOrCreate(infoID, typ)
	conn.SetLink(language.ConnectionPageInfo, infoID)

	if direction == Backward {
		setScalarField(info, newInfo, language.ConnectionStartCursor)
		setScalarField(info, newInfo, language.ConnectionHasPreviousPage)
		setScalarFieldIfAbsent(info, newInfo, language.ConnectionEndCursor)
		setScalarFieldIfAbsent(info, newInfo, language.ConnectionHasNextPage)
	} else {
		setScalarField(info, newInfo, language.ConnectionEndCursor)
		setScalarField(info, newInfo, language.ConnectionHasNextPage)
		setScalarFieldIfAbsent(info, newInfo, language.ConnectionStartCursor)
		setScalarFieldIfAbsent(info, newInfo, language.ConnectionHasPreviousPage)
	}
	return nil
}

func setScalarField(rec *store.RecordProxy, payload map[string]any, key string) {
	if v, ok := payload[key]; ok {
		if v == nil {
			rec.SetNull(key)
			return
		}
		rec.SetScalar(key, v)
	}
}

func setScalarFieldIfAbsent(rec *store.RecordProxy, payload map[string]any, key string) {
	if _, ok := rec.Value(key); ok {
		return
	}
	setScalarField(rec, payload, key)
}

func findConnectionField(sel store.Selector, name string) *language.Field {
	return findField(sel, sel.Selections, name)
}

func findField(sel store.Selector, selections language.SelectionSet, name string) *language.Field {
	for _, f := range language.Collect(sel.Owner.Request.Document, selections, sel.Variables, "") {
		if language.AliasOrName(f) == name {
			return f
		}
	}
	return nil
}

// findPayloadObject locates the connection object in a response payload by
// response name, searching depth-first. Page responses mirror the operation
// shape, so the first match is the paginated field.
func findPayloadObject(data map[string]any, name string) map[string]any {
	if v, ok := data[name].(map[string]any); ok {
		return v
	}
	for _, v := range data {
		if child, ok := v.(map[string]any); ok {
			if found := findPayloadObject(child, name); found != nil {
				return found
			}
		}
	}
	return nil
}

type disposableFunc func()

func (f disposableFunc) Dispose() { f() }
