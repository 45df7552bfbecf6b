package basp

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/cafgo/caf/caf"
	"github.com/cafgo/caf/typeid"
)

// EncodeMessage serializes msg as a direct_message/routed_message payload:
// a varint element count followed by, per element, its type id (as a
// varint) and its registry-encoded, length-delimited value).
func EncodeMessage(reg *typeid.Registry, msg caf.Message) ([]byte, error) {
	sink := protowire.AppendVarint(nil, uint64(msg.Len()))

	for i := 0; i < msg.Len(); i++ {
		id := msg.TypeAt(i)
		sink = protowire.AppendVarint(sink, uint64(id))

		val, err := caf.At[any](msg, i)
		if err != nil {
			return nil, fmt.Errorf("basp: reading element %d: %w", i, err)
		}

		encoded, err := reg.Encode(id, val, nil)
		if err != nil {
			return nil, fmt.Errorf("basp: encoding element %d (type %d): %w", i, id, err)
		}
		sink = protowire.AppendBytes(sink, encoded)
	}
	return sink, nil
}

// DecodeMessage is EncodeMessage's inverse.
func DecodeMessage(reg *typeid.Registry, src []byte) (caf.Message, error) {
	count, k := protowire.ConsumeVarint(src)
	if k < 0 {
		return caf.Message{}, protowire.ParseError(k)
	}
	src = src[k:]

	pairs := make([]any, 0, count*2)
	for i := uint64(0); i < count; i++ {
		id, k := protowire.ConsumeVarint(src)
		if k < 0 {
			return caf.Message{}, protowire.ParseError(k)
		}
		src = src[k:]

		encoded, k := protowire.ConsumeBytes(src)
		if k < 0 {
			return caf.Message{}, protowire.ParseError(k)
		}
		src = src[k:]

		val, _, err := reg.Decode(typeid.ID(id), encoded)
		if err != nil {
			return caf.Message{}, fmt.Errorf("basp: decoding element %d (type %d): %w", i, id, err)
		}
		pairs = append(pairs, typeid.ID(id), val)
	}
	return caf.NewMessage(pairs...), nil
}
