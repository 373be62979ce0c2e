package model

import "time"

// Snapshot is the latest known value of every tracked field for one symbol,
// keyed by field name.
type Snapshot map[string]Value

// Clone returns an independent copy. Values are immutable, so a shallow map
// copy shares nothing mutable with s.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Get returns the value for a field name.
func (s Snapshot) Get(field string) (Value, bool) {
	v, ok := s[field]
	return v, ok
}

// Text returns the display text for a field, or placeholder if it was never set.
func (s Snapshot) Text(field, placeholder string) string {
	v, ok := s[field]
	if !ok || !v.IsValid() {
		return placeholder
	}
	return v.String()
}

// UpdateEvent is one partial update for one symbol. Fields is keyed by field
// identifier; identifiers absent from Fields keep their previous value.
type UpdateEvent struct {
	Symbol     string
	Service    string // e.g. "LEVELONE_EQUITIES", "REST_QUOTES"
	Fields     map[string]Value
	ReceivedAt time.Time
}
