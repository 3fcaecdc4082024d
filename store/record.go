package store

import (
	"fmt"
	"strconv"
	"strings"
)

// DataID identifies one record in the graph. IDs are opaque to the store;
// server-assigned IDs and client-generated path IDs share the namespace.
type DataID string

// RootID is the identifier of the client's query-root record.
const RootID = DataID("client:root")

// RootType is the type name stored on the root record.
const RootType = "__Root"

// ClientID derives an identifier for a record that the server did not name:
// the parent's identifier extended with the storage key that reached it,
// plus a list index when the record sits inside a plural field.
func ClientID(parent DataID, storageKey string, index ...int) DataID {
	var sb strings.Builder
	sb.WriteString(string(parent))
	sb.WriteByte(':')
	sb.WriteString(storageKey)
	for _, i := range index {
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(i))
	}
	return DataID(sb.String())
}

// ValueKind discriminates the value stored under a record field.
type ValueKind int

const (
	// KindScalar is a leaf value: any JSON scalar, or an opaque list/map
	// the selection does not descend into.
	KindScalar ValueKind = iota
	// KindNull is an explicit null, distinct from an absent field.
	KindNull
	// KindLink references another record.
	KindLink
	// KindLinks references an ordered list of records. Absent entries are
	// empty DataIDs.
	KindLinks
)

// Value is the tagged union stored under a record's field keys.
type Value struct {
	kind   ValueKind
	scalar any
	link   DataID
	links  []DataID
}

func ScalarValue(v any) Value       { return Value{kind: KindScalar, scalar: v} }
func NullValue() Value              { return Value{kind: KindNull} }
func LinkValue(id DataID) Value     { return Value{kind: KindLink, link: id} }
func LinksValue(ids []DataID) Value { return Value{kind: KindLinks, links: ids} }

// Kind returns the union tag.
func (v Value) Kind() ValueKind { return v.kind }

// Scalar returns the leaf value when the kind is KindScalar.
func (v Value) Scalar() (any, bool) {
	return v.scalar, v.kind == KindScalar
}

// Link returns the referenced record ID when the kind is KindLink.
func (v Value) Link() (DataID, bool) {
	return v.link, v.kind == KindLink
}

// Links returns the referenced record IDs when the kind is KindLinks.
func (v Value) Links() ([]DataID, bool) {
	return v.links, v.kind == KindLinks
}

// IsNull reports whether the value is an explicit null.
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) String() string {
	switch v.kind {
	case KindScalar:
		return fmt.Sprintf("scalar(%v)", v.scalar)
	case KindNull:
		return "null"
	case KindLink:
		return fmt.Sprintf("link(%s)", v.link)
	case KindLinks:
		return fmt.Sprintf("links(%v)", v.links)
	}
	return "invalid"
}

// Record is one normalized node: a type discriminant plus an open map from
// field storage key to value. Records are owned collectively by the record
// source; no subscriber owns one.
type Record struct {
	ID   DataID
	Type string

	fields map[string]Value
}

// NewRecord creates an empty record.
func NewRecord(id DataID, typ string) *Record {
	return &Record{ID: id, Type: typ, fields: make(map[string]Value)}
}

// Get returns the value stored under key. The second result distinguishes
// an absent field from an explicit null.
func (r *Record) Get(key string) (Value, bool) {
	v, ok := r.fields[key]
	return v, ok
}

// Set stores a value under key.
func (r *Record) Set(key string, v Value) { r.fields[key] = v }

// Del removes a field, returning it to the absent state.
func (r *Record) Del(key string) { delete(r.fields, key) }

// Len returns the number of stored fields.
func (r *Record) Len() int { return len(r.fields) }

// Keys returns the stored field keys in unspecified order.
func (r *Record) Keys() []string {
	keys := make([]string, 0, len(r.fields))
	for k := range r.fields {
		keys = append(keys, k)
	}
	return keys
}

// Copy returns an independent copy: the field map is copied and link lists
// duplicated. Scalar values are shared (they are treated as immutable).
func (r *Record) Copy() *Record {
	out := NewRecord(r.ID, r.Type)
	for k, v := range r.fields {
		if v.kind == KindLinks {
			links := make([]DataID, len(v.links))
			copy(links, v.links)
			v.links = links
		}
		out.fields[k] = v
	}
	return out
}

// Update merges from into r field by field: present fields overwrite
// (explicit nulls included), absent fields are preserved. A non-empty type
// on from overwrites r's type.
func (r *Record) Update(from *Record) {
	if from.Type != "" {
		r.Type = from.Type
	}
	for k, v := range from.fields {
		r.fields[k] = v
	}
}
