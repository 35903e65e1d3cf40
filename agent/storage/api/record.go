package api

import (
	"time"
)

// Tags are the searchable attributes of a Record. Insertion order doesn't
// matter.
type Tags map[string]string

// Clone returns a copy of the tags. It returns nil for empty tags.
func (t Tags) Clone() Tags {
	if len(t) == 0 {
		return nil
	}
	c := make(Tags, len(t))
	for k, v := range t {
		c[k] = v
	}
	return c
}

// Record is the unit of wallet storage. Type and ID identify it uniquely
// inside one scope. Value is opaque to the storage and it's usually encrypted
// by the caller.
type Record struct {
	Type      string     `json:"type"`
	ID        string     `json:"id"`
	Value     []byte     `json:"value"`
	Tags      Tags       `json:"tags,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Expired returns true if the record has an expiry time which is not after
// now.
func (r Record) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && !r.ExpiresAt.After(now)
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	c := r
	if r.Value != nil {
		c.Value = append(r.Value[:0:0], r.Value...)
	}
	c.Tags = r.Tags.Clone()
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		c.ExpiresAt = &t
	}
	return c
}

// Envelope is the persisted form of a Record inside one store. Type and ID
// are the keys of the store and they are not repeated.
type Envelope struct {
	Value     []byte `json:"v"`
	Tags      Tags   `json:"t,omitempty"`
	ExpiresAt int64  `json:"e,omitempty"` // unix nanos, 0 == never
}

// NewEnvelope builds the persisted form of the record.
func NewEnvelope(r Record) Envelope {
	return Envelope{
		Value:     r.Value,
		Tags:      r.Tags,
		ExpiresAt: ExpiryNanos(r.ExpiresAt),
	}
}

// Record returns the record the envelope was made from.
func (e Envelope) Record(typ, id string) Record {
	return Record{
		Type:      typ,
		ID:        id,
		Value:     e.Value,
		Tags:      e.Tags,
		ExpiresAt: ExpiryTime(e.ExpiresAt),
	}
}

// ExpiryNanos converts an optional expiry time to unix nanos, 0 if none.
func ExpiryNanos(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixNano()
}

// ExpiryTime converts unix nanos back to an optional time.
func ExpiryTime(n int64) *time.Time {
	if n == 0 {
		return nil
	}
	t := time.Unix(0, n).UTC()
	return &t
}
