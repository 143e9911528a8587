package events

import "time"

// Kind discriminates pipeline notifications without reflection. Front ends
// switch on the concrete type; Kind exists for logs and counters.
type Kind string

// Event is the read side of every notification the pipeline emits.
type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

type base struct {
	kind       Kind
	occurredAt time.Time
}

func newBase(kind Kind) base {
	return base{kind: kind, occurredAt: time.Now()}
}

func (b base) Kind() Kind { return b.kind }

// Timestamp is the moment the event was emitted, not when it was observed.
func (b base) Timestamp() time.Time { return b.occurredAt }
