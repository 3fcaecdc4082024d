package store

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/quivergql/quiver/language"
)

// PublishQueue serializes pending writes - server payloads, optimistic
// updates and their reverts, imperative updaters, raw sources - and applies
// them to the store in one coordinated pass.
//
// Optimistic updates are revertible independently of order: reverting
// update A while B remains applied leaves the store as if only B had ever
// been applied. That is implemented by replaying the surviving optimistic
// sequence from a clean base, never by diffing.
type PublishQueue struct {
	store *Store

	pending    []queuedOp
	optimistic []*OptimisticUpdate
}

// OptimisticUpdate is one revertible updater. Its token is the handle used
// to revert it.
type OptimisticUpdate struct {
	Token   uuid.UUID
	Updater Updater
}

// NewOptimisticUpdate wraps an updater with a fresh token.
func NewOptimisticUpdate(u Updater) *OptimisticUpdate {
	return &OptimisticUpdate{Token: uuid.New(), Updater: u}
}

type opKind int

const (
	opApplyOptimistic opKind = iota
	opRevertOptimistic
	opRevertAll
	opCommitPayload
	opCommitUpdater
	opCommitSource
)

type queuedOp struct {
	kind       opKind
	optimistic *OptimisticUpdate
	token      uuid.UUID
	operation  *language.OperationDescriptor
	selector   *Selector
	payload    map[string]any
	updater    Updater
	source     RecordSource
}

// NewPublishQueue creates a queue bound to one store.
func NewPublishQueue(store *Store) *PublishQueue {
	return &PublishQueue{store: store}
}

// ApplyOptimistic enqueues an optimistic update.
func (q *PublishQueue) ApplyOptimistic(u *OptimisticUpdate) {
	q.pending = append(q.pending, queuedOp{kind: opApplyOptimistic, optimistic: u})
}

// RevertOptimistic enqueues the revert of a previously applied update.
func (q *PublishQueue) RevertOptimistic(token uuid.UUID) {
	q.pending = append(q.pending, queuedOp{kind: opRevertOptimistic, token: token})
}

// RevertAll enqueues the revert of every applied optimistic update.
func (q *PublishQueue) RevertAll() {
	q.pending = append(q.pending, queuedOp{kind: opRevertAll})
}

// CommitPayload enqueues a server response for normalization against the
// operation's root selector.
func (q *PublishQueue) CommitPayload(op *language.OperationDescriptor, payload map[string]any) {
	q.pending = append(q.pending, queuedOp{kind: opCommitPayload, operation: op, payload: payload})
}

// CommitPayloadAt enqueues a server response for normalization against an
// explicit selector, used for incrementally delivered payloads rooted below
// the query root.
func (q *PublishQueue) CommitPayloadAt(sel Selector, payload map[string]any) {
	q.pending = append(q.pending, queuedOp{kind: opCommitPayload, operation: sel.Owner, selector: &sel, payload: payload})
}

// CommitUpdater enqueues an imperative updater.
func (q *PublishQueue) CommitUpdater(u Updater) {
	q.pending = append(q.pending, queuedOp{kind: opCommitUpdater, updater: u})
}

// CommitSource enqueues pre-normalized records.
func (q *PublishQueue) CommitSource(src RecordSource) {
	q.pending = append(q.pending, queuedOp{kind: opCommitSource, source: src})
}

// Run applies every queued operation in FIFO order within one atomic pass,
// runs a single notify, and returns the distinct identifiers of the
// requests whose results changed. An individual updater failing does not
// corrupt previously applied work in the pass; its error is aggregated into
// the returned error.
func (q *PublishQueue) Run() ([]RequestID, error) {
	pending := q.pending
	q.pending = nil

	var errs *multierror.Error

	// Split the pass: first resolve what the optimistic set looks like
	// after this run and whether it changed, then apply commits to the
	// clean base, then replay the surviving optimistic updates on top.
	var commits []queuedOp
	optimisticChanged := false
	for _, op := range pending {
		switch op.kind {
		case opApplyOptimistic:
			q.optimistic = append(q.optimistic, op.optimistic)
			optimisticChanged = true
		case opRevertOptimistic:
			if !q.removeOptimistic(op.token) {
				panic(fmt.Sprintf("publish queue: revert of unknown optimistic update %s", op.token))
			}
			optimisticChanged = true
		case opRevertAll:
			if len(q.optimistic) > 0 {
				q.optimistic = nil
				optimisticChanged = true
			}
		default:
			commits = append(commits, op)
		}
	}

	// Roll back to the clean base whenever the overlay must be rebuilt:
	// either its membership changed, or commits have to land under it.
	rebase := q.store.HoldsSnapshot() && (optimisticChanged || len(commits) > 0)
	if rebase {
		q.store.RestoreSnapshot()
	}

	for _, op := range commits {
		if err := q.applyCommit(op); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	if len(q.optimistic) > 0 {
		if !q.store.HoldsSnapshot() {
			q.store.TakeSnapshot()
		}
		for _, u := range q.optimistic {
			if err := q.applyUpdater(u.Updater); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
	}

	affected := q.store.Notify()
	return affected, errs.ErrorOrNil()
}

func (q *PublishQueue) applyCommit(op queuedOp) error {
	switch op.kind {
	case opCommitPayload:
		sel := RootSelector(op.operation)
		if op.selector != nil {
			sel = *op.selector
		}
		src, err := NormalizeResponse(sel, op.payload)
		if err != nil {
			return err
		}
		q.store.Publish(src)
		return nil
	case opCommitUpdater:
		return q.applyUpdater(op.updater)
	case opCommitSource:
		q.store.Publish(op.source)
		return nil
	}
	return nil
}

func (q *PublishQueue) applyUpdater(u Updater) error {
	q.store.mu.Lock()
	proxy := newProxy(q.store.source)
	q.store.mu.Unlock()
	if err := u(proxy); err != nil {
		return err
	}
	q.store.Publish(proxy.Source())
	return nil
}

func (q *PublishQueue) removeOptimistic(token uuid.UUID) bool {
	for i, u := range q.optimistic {
		if u.Token == token {
			q.optimistic = append(q.optimistic[:i], q.optimistic[i+1:]...)
			return true
		}
	}
	return false
}
