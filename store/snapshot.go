package store

// Disposable releases a resource. Dispose is idempotent: second and later
// calls are no-ops.
type Disposable interface {
	Dispose()
}

type disposableFunc func()

func (f disposableFunc) Dispose() { f() }

// NopDisposable does nothing when disposed.
var NopDisposable Disposable = disposableFunc(func() {})

// DataTree is a materialized read result: nested maps and slices mirroring
// the selection shape, with scalar leaves. Absent fields are omitted.
type DataTree = map[string]any

// Snapshot is the result of resolving a selector against the record source
// at one instant. Snapshots are immutable: later reads supersede them,
// never mutate them. Unchanged subtrees are structurally shared between
// consecutive snapshots of one selector, so identity comparison of subtrees
// is a valid change detector.
type Snapshot struct {
	Data DataTree

	// IsMissingData is set when any selected field was absent from the
	// source.
	IsMissingData bool

	// SeenRecords holds every record identifier the traversal touched,
	// including absent ones, so partial-data consumers are re-notified
	// when the missing pieces arrive.
	SeenRecords map[DataID]struct{}

	Selector Selector
}
