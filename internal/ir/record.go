package ir

// Record is one row participating in an ordering.
//
// ID is the primary key; zero means the row has not been persisted yet.
// Position is nil when the row exists but is outside its list (for example
// after a soft delete). Fields holds every other column value and is what
// scope predicates are derived from.
type Record struct {
	ID       int64
	Position *int64
	Fields   IRObject
}

// NewRecord creates an unpersisted record with the given column values.
func NewRecord(fields IRObject) *Record {
	if fields == nil {
		fields = IRObject{}
	}
	return &Record{Fields: fields}
}

// Persisted reports whether the record has a primary key.
func (r *Record) Persisted() bool {
	return r != nil && r.ID != 0
}

// InList reports whether the record currently holds a position.
func (r *Record) InList() bool {
	return r != nil && r.Position != nil
}

// PositionValue returns the position, or 0 when the record is not in a list.
func (r *Record) PositionValue() int64 {
	if !r.InList() {
		return 0
	}
	return *r.Position
}

// SetPosition replaces the record's position. Pass nil to take it out of
// its list.
func (r *Record) SetPosition(p *int64) {
	if p == nil {
		r.Position = nil
		return
	}
	v := *p
	r.Position = &v
}

// Field returns the value of a column, or IRNull when it is not set.
func (r *Record) Field(name string) IRValue {
	if r == nil || r.Fields == nil {
		return IRNull{}
	}
	v, ok := r.Fields[name]
	if !ok || v == nil {
		return IRNull{}
	}
	return v
}

// Clone returns a deep copy of the record so callers can keep a snapshot
// across mutations.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := &Record{ID: r.ID, Fields: make(IRObject, len(r.Fields))}
	out.SetPosition(r.Position)
	for k, v := range r.Fields {
		out.Fields[k] = v
	}
	return out
}

// Int64 returns a pointer to v. Handy for literal positions.
func Int64(v int64) *int64 {
	return &v
}
