package caf

import (
	"fmt"

	"github.com/cafgo/caf/typeid"
)

// element is one typed slot inside a Message tuple.
type element struct {
	id    typeid.ID
	value any
}

// Message is an immutable, copy-on-write tuple of typed values. Because
// Go slices shared between Messages are never
// mutated in place (NewMessage always allocates its own backing array and
// Message exposes no mutator), "copy-on-write" degrades to plain sharing by
// reference: two Messages can safely share the same *Message without ever
// needing to actually copy.
type Message struct {
	elems []element
}

// NewMessage builds a Message from a registry-validated sequence of
// (type id, value) pairs. The caller is expected to have already checked
// the values against the registry; NewMessage itself performs no encoding.
func NewMessage(pairs ...any) Message {
	if len(pairs)%2 != 0 {
		panic("caf: NewMessage requires (id, value) pairs")
	}

	elems := make([]element, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		elems = append(elems, element{
			id:    pairs[i].(typeid.ID),
			value: pairs[i+1],
		})
	}
	return Message{elems: elems}
}

// Len returns the number of elements in the tuple.
func (m Message) Len() int {
	return len(m.elems)
}

// TypeAt returns the type id at position i.
func (m Message) TypeAt(i int) typeid.ID {
	return m.elems[i].id
}

// Types returns the ordered type-id sequence of the message, used by
// Behavior matching.
func (m Message) Types() []typeid.ID {
	ids := make([]typeid.ID, len(m.elems))
	for i, e := range m.elems {
		ids[i] = e.id
	}
	return ids
}

// At returns a typed accessor for position i; it fails if the requested
// type does not match what's stored there.
func At[T any](m Message, i int) (T, error) {
	var zero T
	if i < 0 || i >= len(m.elems) {
		return zero, fmt.Errorf("caf: message index %d out of range (len %d)",
			i, len(m.elems))
	}

	v, ok := m.elems[i].value.(T)
	if !ok {
		return zero, fmt.Errorf("caf: message element %d has type %T, want %T",
			i, m.elems[i].value, zero)
	}
	return v, nil
}

// MustAt is At, panicking on mismatch; useful inside handlers that have
// already matched on the type sequence and therefore know the shape.
func MustAt[T any](m Message, i int) T {
	v, err := At[T](m, i)
	if err != nil {
		panic(err)
	}
	return v
}
