package store

import (
	"fmt"

	"github.com/quivergql/quiver/language"
)

// NormalizeResponse flattens a response payload into records by walking the
// selector's selection tree and the payload together. Linked objects are
// keyed by their id field when present, otherwise by a client-generated
// path identifier. Absent payload keys leave the corresponding fields
// untouched; explicit nulls are stored as nulls. A payload whose shape
// contradicts the selection (a scalar where an object is selected) is a
// malformed response and yields an error.
func NormalizeResponse(sel Selector, payload map[string]any) (*MapSource, error) {
	n := &normalizer{sel: sel, out: NewMapSource()}
	typ := typeNameOf(payload)
	if typ == "" && sel.Root == RootID {
		typ = RootType
	}
	rec := n.record(sel.Root, typ)
	if err := n.object(rec, sel.Selections, payload); err != nil {
		return nil, err
	}
	return n.out, nil
}

type normalizer struct {
	sel Selector
	out *MapSource
}

func (n *normalizer) record(id DataID, typ string) *Record {
	if rec := n.out.Get(id); rec != nil {
		if rec.Type == "" {
			rec.Type = typ
		}
		return rec
	}
	rec := NewRecord(id, typ)
	n.out.Set(id, rec)
	return rec
}

func (n *normalizer) object(rec *Record, selections language.SelectionSet, payload map[string]any) error {
	fields := language.Collect(n.sel.Owner.Request.Document, selections, n.sel.Variables, typeNameOf(payload))
	for _, field := range fields {
		name := language.AliasOrName(field)
		raw, ok := payload[name]
		if !ok {
			continue
		}
		if field.Name == "__typename" {
			continue
		}
		key := language.StorageKey(field, n.sel.Variables)
		if len(field.SelectionSet) == 0 {
			if raw == nil {
				rec.Set(key, NullValue())
			} else {
				rec.Set(key, ScalarValue(raw))
			}
			continue
		}
		if err := n.linked(rec, key, field, raw); err != nil {
			return err
		}
	}
	return nil
}

func (n *normalizer) linked(rec *Record, key string, field *language.Field, raw any) error {
	switch value := raw.(type) {
	case nil:
		rec.Set(key, NullValue())
	case map[string]any:
		id := linkedID(rec.ID, key, value)
		child := n.record(id, typeNameOf(value))
		if err := n.object(child, field.SelectionSet, value); err != nil {
			return err
		}
		rec.Set(key, LinkValue(id))
	case []any:
		links := make([]DataID, len(value))
		for i, item := range value {
			switch obj := item.(type) {
			case nil:
				links[i] = ""
			case map[string]any:
				id := linkedID(rec.ID, key, obj, i)
				child := n.record(id, typeNameOf(obj))
				if err := n.object(child, field.SelectionSet, obj); err != nil {
					return err
				}
				links[i] = id
			default:
				return fmt.Errorf("normalize: field %q: expected object in list, got %T", field.Name, item)
			}
		}
		rec.Set(key, LinksValue(links))
	default:
		return fmt.Errorf("normalize: field %q: expected object, got %T", field.Name, raw)
	}
	return nil
}

func linkedID(parent DataID, key string, payload map[string]any, index ...int) DataID {
	if id, ok := payload["id"].(string); ok && id != "" {
		return DataID(id)
	}
	return ClientID(parent, key, index...)
}

func typeNameOf(payload map[string]any) string {
	typ, _ := payload["__typename"].(string)
	return typ
}
