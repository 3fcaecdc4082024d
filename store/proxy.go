package store

import "fmt"

// Updater is an imperative store mutation. It reads through to the current
// record state and stages writes into a fresh source that the publish queue
// merges in. Returning an error abandons only this updater's writes.
type Updater func(*Proxy) error

// Proxy is the write surface handed to updaters: reads fall through to the
// base source, writes copy the touched record into the staging sink.
type Proxy struct {
	base RecordSource
	sink *MapSource
}

func newProxy(base RecordSource) *Proxy {
	return &Proxy{base: base, sink: NewMapSource()}
}

// Get returns a proxy for the record stored under id, or nil when the
// record is absent or deleted.
func (p *Proxy) Get(id DataID) *RecordProxy {
	if rec := p.sink.Get(id); rec != nil {
		return &RecordProxy{proxy: p, rec: rec}
	}
	if p.sink.IsDeleted(id) {
		return nil
	}
	base := p.base.Get(id)
	if base == nil {
		return nil
	}
	rec := base.Copy()
	p.sink.Set(id, rec)
	return &RecordProxy{proxy: p, rec: rec}
}

// Create stages a new record. Creating over a live record is a lifecycle
// bug.
func (p *Proxy) Create(id DataID, typ string) *RecordProxy {
	if p.sink.Get(id) != nil || (p.base.Get(id) != nil && !p.sink.IsDeleted(id)) {
		panic(fmt.Sprintf("store: create of existing record %s", id))
	}
	rec := NewRecord(id, typ)
	p.sink.Set(id, rec)
	return &RecordProxy{proxy: p, rec: rec}
}

// GetOrCreate returns the live record under id, staging a new one when
// absent.
func (p *Proxy) GetOrCreate(id DataID, typ string) *RecordProxy {
	if rp := p.Get(id); rp != nil {
		return rp
	}
	rec := NewRecord(id, typ)
	p.sink.Set(id, rec)
	return &RecordProxy{proxy: p, rec: rec}
}

// Delete tombstones id.
func (p *Proxy) Delete(id DataID) {
	p.sink.Delete(id)
}

// MergeSource stages every record of src, merging over anything already
// staged for the same id.
func (p *Proxy) MergeSource(src RecordSource) {
	for _, id := range src.IDs() {
		if src.IsDeleted(id) {
			p.sink.Delete(id)
			continue
		}
		incoming := src.Get(id)
		if staged := p.sink.Get(id); staged != nil {
			staged.Update(incoming)
			continue
		}
		p.sink.Set(id, incoming.Copy())
	}
}

// Source returns the staged writes.
func (p *Proxy) Source() *MapSource { return p.sink }

// RecordProxy mutates one staged record.
type RecordProxy struct {
	proxy *Proxy
	rec   *Record
}

// ID returns the record's identifier.
func (rp *RecordProxy) ID() DataID { return rp.rec.ID }

// TypeName returns the record's type discriminant.
func (rp *RecordProxy) TypeName() string { return rp.rec.Type }

// Value returns the value stored under key on the staged record.
func (rp *RecordProxy) Value(key string) (Value, bool) { return rp.rec.Get(key) }

// SetScalar stores a leaf value.
func (rp *RecordProxy) SetScalar(key string, v any) { rp.rec.Set(key, ScalarValue(v)) }

// SetNull stores an explicit null.
func (rp *RecordProxy) SetNull(key string) { rp.rec.Set(key, NullValue()) }

// SetLink stores a reference to another record.
func (rp *RecordProxy) SetLink(key string, id DataID) { rp.rec.Set(key, LinkValue(id)) }

// SetLinks stores an ordered list of references.
func (rp *RecordProxy) SetLinks(key string, ids []DataID) { rp.rec.Set(key, LinksValue(ids)) }

// Del removes a field, returning it to the absent state.
func (rp *RecordProxy) Del(key string) { rp.rec.Del(key) }
