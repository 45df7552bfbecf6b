// Package typeid implements the type registry and codec: every
// message-carried value type is assigned a stable, process-wide 16-bit id
// together with an encode/decode pair. The registry
// is mutable until Seal is called, after which registration fails. Entries
// are kept in maps guarded by a read-write mutex; every lookup takes the
// read lock, before and after Seal alike, so sealing does not make lookups
// lock-free.
package typeid

import (
	"fmt"
	"reflect"
	"sync"

	"google.golang.org/protobuf/encoding/protowire"
)

// ID is a stable, process-wide 16-bit type identifier.
type ID uint16

// Invalid is the zero ID; it is never assigned to a registered type.
const Invalid ID = 0

// Built-in type ids occupy a low reserved range; user ids start at
// FirstUserID.
const (
	Bool ID = iota + 1
	Int64
	Uint64
	Float64
	String
	Bytes
	ActorAddress
	AtomDown
	AtomExit
	AtomOpen
	AtomPut
	AtomGet
	Unit
	ErrorValue

	// FirstUserID is the first id available for user-registered types.
	FirstUserID ID = 64
)

// Encoder serializes a value of the registered type into sink.
type Encoder func(value any, sink []byte) ([]byte, error)

// Decoder deserializes a value of the registered type from source,
// returning the value and the number of bytes consumed.
type Decoder func(source []byte) (any, int, error)

// ErrDuplicateID is returned by Register when a distinct type is already
// registered under the requested id.
var ErrDuplicateID = fmt.Errorf("duplicate_id")

// ErrUnknownType is returned by Encode/Decode when the id is not
// registered.
var ErrUnknownType = fmt.Errorf("unknown_type")

// ErrSealed is returned by Register once the registry has been sealed.
var ErrSealed = fmt.Errorf("registry sealed")

type entry struct {
	name   string
	typ    reflect.Type // the registered Go type, for identity checks
	encode Encoder
	decode Decoder
}

// Registry is the process-wide (or, since global state is reified as an
// explicit value, per-ActorSystem) type registry and codec table.
type Registry struct {
	mu     sync.RWMutex
	byID   map[ID]entry
	sealed bool
}

// NewRegistry returns an empty, unsealed registry pre-populated with the
// built-in types.
func NewRegistry() *Registry {
	r := &Registry{byID: make(map[ID]entry)}
	r.registerBuiltins()
	return r
}

// Register associates id with a named encode/decode pair for the Go type of
// sample (a zero or representative value of the type Encode/Decode will
// carry; its value is never used, only its type). It is idempotent for
// repeated calls with the same (id, name, type): a second call for an
// already-used id with a different name, or the same name but a distinct Go
// type, fails with ErrDuplicateID.
func (r *Registry) Register(id ID, name string, sample any, enc Encoder, dec Decoder) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return ErrSealed
	}

	typ := reflect.TypeOf(sample)

	if existing, ok := r.byID[id]; ok {
		if existing.name != name || existing.typ != typ {
			return fmt.Errorf("%w: id %d already registered as %q (%s)",
				ErrDuplicateID, id, existing.name, existing.typ)
		}
		return nil
	}

	r.byID[id] = entry{name: name, typ: typ, encode: enc, decode: dec}
	return nil
}

// Seal freezes the registry; subsequent Register calls fail.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// NameOf returns the textual name registered for id, if any. Total and pure.
func (r *Registry) NameOf(id ID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byID[id]
	if !ok {
		return "", false
	}
	return e.name, true
}

// Encode serializes value (registered under id) by appending to sink.
func (r *Registry) Encode(id ID, value any, sink []byte) ([]byte, error) {
	r.mu.RLock()
	e, ok := r.byID[id]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownType, id)
	}
	return e.encode(value, sink)
}

// Decode deserializes a value of the type registered under id from source,
// returning the value and the number of bytes consumed.
func (r *Registry) Decode(id ID, source []byte) (any, int, error) {
	r.mu.RLock()
	e, ok := r.byID[id]
	r.mu.RUnlock()

	if !ok {
		return nil, 0, fmt.Errorf("%w: id %d", ErrUnknownType, id)
	}
	return e.decode(source)
}

// registerBuiltins wires the codecs for the handful of built-in types every
// CAF-Go system needs regardless of user-defined message types. Integers
// and strings use protowire's varint/length-delimited helpers rather than
// hand-rolled varint code.
func (r *Registry) registerBuiltins() {
	_ = r.Register(Bool, "bool", false,
		func(v any, sink []byte) ([]byte, error) {
			b := v.(bool)
			n := uint64(0)
			if b {
				n = 1
			}
			return protowire.AppendVarint(sink, n), nil
		},
		func(src []byte) (any, int, error) {
			n, k := protowire.ConsumeVarint(src)
			if k < 0 {
				return nil, 0, protowire.ParseError(k)
			}
			return n != 0, k, nil
		},
	)

	_ = r.Register(Int64, "int64", int64(0),
		func(v any, sink []byte) ([]byte, error) {
			return protowire.AppendVarint(sink, protowire.EncodeZigZag(v.(int64))), nil
		},
		func(src []byte) (any, int, error) {
			n, k := protowire.ConsumeVarint(src)
			if k < 0 {
				return nil, 0, protowire.ParseError(k)
			}
			return protowire.DecodeZigZag(n), k, nil
		},
	)

	_ = r.Register(Uint64, "uint64", uint64(0),
		func(v any, sink []byte) ([]byte, error) {
			return protowire.AppendVarint(sink, v.(uint64)), nil
		},
		func(src []byte) (any, int, error) {
			n, k := protowire.ConsumeVarint(src)
			if k < 0 {
				return nil, 0, protowire.ParseError(k)
			}
			return n, k, nil
		},
	)

	_ = r.Register(Float64, "float64", float64(0),
		func(v any, sink []byte) ([]byte, error) {
			bits := floatBits(v.(float64))
			return protowire.AppendFixed64(sink, bits), nil
		},
		func(src []byte) (any, int, error) {
			bits, k := protowire.ConsumeFixed64(src)
			if k < 0 {
				return nil, 0, protowire.ParseError(k)
			}
			return floatFromBits(bits), k, nil
		},
	)

	_ = r.Register(String, "string", "",
		func(v any, sink []byte) ([]byte, error) {
			return protowire.AppendBytes(sink, []byte(v.(string))), nil
		},
		func(src []byte) (any, int, error) {
			b, k := protowire.ConsumeBytes(src)
			if k < 0 {
				return nil, 0, protowire.ParseError(k)
			}
			return string(b), k, nil
		},
	)

	_ = r.Register(Bytes, "bytes", []byte(nil),
		func(v any, sink []byte) ([]byte, error) {
			return protowire.AppendBytes(sink, v.([]byte)), nil
		},
		func(src []byte) (any, int, error) {
			b, k := protowire.ConsumeBytes(src)
			if k < 0 {
				return nil, 0, protowire.ParseError(k)
			}
			out := make([]byte, len(b))
			copy(out, b)
			return out, k, nil
		},
	)

	_ = r.Register(Unit, "unit", struct{}{},
		func(_ any, sink []byte) ([]byte, error) { return sink, nil },
		func(src []byte) (any, int, error) { return struct{}{}, 0, nil },
	)
}
