package store

import (
	"fmt"

	"github.com/quivergql/quiver/language"
)

// ResolvePath descends from a selector along a response path (field
// response names and list indices, as delivered with incremental payloads)
// and returns the selector rooted at the record owning that position. The
// path must resolve through already-published records; a dangling path is
// an error, not a panic, since it depends on response timing.
func (s *Store) ResolvePath(sel Selector, path []any) (Selector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := sel
	for i := 0; i < len(path); i++ {
		name, ok := path[i].(string)
		if !ok {
			return Selector{}, fmt.Errorf("store: path element %v (%T) where a field name was expected", path[i], path[i])
		}
		rec := s.source.Get(cur.Root)
		if rec == nil {
			return Selector{}, fmt.Errorf("store: path %v: record %s not in store", path, cur.Root)
		}
		field := findField(cur, rec.Type, name)
		if field == nil {
			return Selector{}, fmt.Errorf("store: path %v: field %q not in selection", path, name)
		}
		value, ok := rec.Get(language.StorageKey(field, cur.Variables))
		if !ok {
			return Selector{}, fmt.Errorf("store: path %v: field %q not yet published", path, name)
		}

		var next DataID
		if ids, isList := value.Links(); isList {
			i++
			if i >= len(path) {
				return Selector{}, fmt.Errorf("store: path %v: list field %q requires an index", path, name)
			}
			idx, ok := pathIndex(path[i])
			if !ok || idx < 0 || idx >= len(ids) {
				return Selector{}, fmt.Errorf("store: path %v: bad index for field %q", path, name)
			}
			next = ids[idx]
		} else if id, isLink := value.Link(); isLink {
			next = id
		} else {
			return Selector{}, fmt.Errorf("store: path %v: field %q does not link to a record", path, name)
		}
		if next == "" {
			return Selector{}, fmt.Errorf("store: path %v: field %q links to nothing", path, name)
		}
		cur = Selector{Root: next, Selections: field.SelectionSet, Variables: cur.Variables, Owner: cur.Owner}
	}
	return cur, nil
}

func findField(sel Selector, typeName, responseName string) *language.Field {
	for _, f := range language.Collect(sel.Owner.Request.Document, sel.Selections, sel.Variables, typeName) {
		if language.AliasOrName(f) == responseName {
			return f
		}
	}
	return nil
}

func pathIndex(elem any) (int, bool) {
	switch v := elem.(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
