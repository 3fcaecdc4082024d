package store

import (
	"github.com/quivergql/quiver/language"
)

// reader resolves one selector against a record source.
type reader struct {
	source RecordSource
	sel    Selector

	missing bool
	seen    map[DataID]struct{}
}

// read resolves sel against source. Missing data flips IsMissingData but
// never aborts the traversal: the full seen-record set is reported so
// partial-data consumers hear about later arrivals.
func read(source RecordSource, sel Selector) Snapshot {
	r := &reader{source: source, sel: sel, seen: make(map[DataID]struct{})}
	data := r.readRecord(sel.Root, sel.Selections)
	return Snapshot{
		Data:          data,
		IsMissingData: r.missing,
		SeenRecords:   r.seen,
		Selector:      sel,
	}
}

// check is the pure fullness test behind fetch-policy decisions.
func check(source RecordSource, sel Selector) bool {
	r := &reader{source: source, sel: sel, seen: make(map[DataID]struct{})}
	r.readRecord(sel.Root, sel.Selections)
	return !r.missing
}

func (r *reader) readRecord(id DataID, selections language.SelectionSet) DataTree {
	r.seen[id] = struct{}{}
	rec := r.source.Get(id)
	if rec == nil {
		if !r.source.IsDeleted(id) {
			r.missing = true
		}
		return nil
	}
	data := make(DataTree)
	fields := language.Collect(r.sel.Owner.Request.Document, selections, r.sel.Variables, rec.Type)
	for _, field := range fields {
		name := language.AliasOrName(field)
		if field.Name == "__typename" {
			data[name] = rec.Type
			continue
		}
		key := language.StorageKey(field, r.sel.Variables)
		value, ok := rec.Get(key)
		if !ok {
			r.missing = true
			continue
		}
		data[name] = r.readValue(value, field)
	}
	return data
}

func (r *reader) readValue(value Value, field *language.Field) any {
	if value.IsNull() {
		return nil
	}
	if len(field.SelectionSet) == 0 {
		scalar, _ := value.Scalar()
		return scalar
	}
	if id, ok := value.Link(); ok {
		return r.readLink(id, field)
	}
	if ids, ok := value.Links(); ok {
		out := make([]any, len(ids))
		for i, id := range ids {
			if id == "" {
				out[i] = nil
				continue
			}
			out[i] = r.readLink(id, field)
		}
		return out
	}
	// A scalar stored where the selection expects a linked record: the
	// field cannot be resolved, treat as missing.
	r.missing = true
	return nil
}

func (r *reader) readLink(id DataID, field *language.Field) any {
	sub := r.readRecord(id, field.SelectionSet)
	if sub == nil {
		return nil
	}
	return sub
}
