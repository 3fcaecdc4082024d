package store

// RecordSource is the raw storage substrate: a keyed map from record
// identifier to record, with tombstones marking records known to be absent
// on the server.
type RecordSource interface {
	// Get returns the record stored under id, or nil when id is unknown or
	// tombstoned.
	Get(id DataID) *Record
	// Has reports whether id is known at all, tombstones included.
	Has(id DataID) bool
	// IsDeleted reports whether id is tombstoned.
	IsDeleted(id DataID) bool
	// Set stores a record under id.
	Set(id DataID, rec *Record)
	// Delete tombstones id: it becomes known-absent.
	Delete(id DataID)
	// Remove forgets id entirely.
	Remove(id DataID)
	// Size returns the number of known ids, tombstones included.
	Size() int
	// IDs returns the known ids in unspecified order.
	IDs() []DataID
}

// MapSource is the map-backed RecordSource. It is not safe for concurrent
// use; the store serializes access.
type MapSource struct {
	records map[DataID]*Record
}

var _ RecordSource = (*MapSource)(nil)

// NewMapSource creates an empty source.
func NewMapSource() *MapSource {
	return &MapSource{records: make(map[DataID]*Record)}
}

func (s *MapSource) Get(id DataID) *Record {
	return s.records[id]
}

func (s *MapSource) Has(id DataID) bool {
	_, ok := s.records[id]
	return ok
}

func (s *MapSource) IsDeleted(id DataID) bool {
	rec, ok := s.records[id]
	return ok && rec == nil
}

func (s *MapSource) Set(id DataID, rec *Record) {
	s.records[id] = rec
}

func (s *MapSource) Delete(id DataID) {
	s.records[id] = nil
}

func (s *MapSource) Remove(id DataID) {
	delete(s.records, id)
}

func (s *MapSource) Size() int {
	return len(s.records)
}

func (s *MapSource) IDs() []DataID {
	ids := make([]DataID, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	return ids
}

// Copy returns a deep copy of the source (records copied, tombstones
// preserved).
func (s *MapSource) Copy() *MapSource {
	out := &MapSource{records: make(map[DataID]*Record, len(s.records))}
	for id, rec := range s.records {
		if rec == nil {
			out.records[id] = nil
			continue
		}
		out.records[id] = rec.Copy()
	}
	return out
}
