package basp

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cafgo/caf/internal/baselib/actorid"
)

func randomNodeID(t *rapid.T, label string) actorid.NodeID {
	var n actorid.NodeID
	host := rapid.SliceOfN(rapid.Byte(), 20, 20).Draw(t, label+"-host")
	copy(n.HostID[:], host)
	n.PID = rapid.Uint32().Draw(t, label+"-pid")
	return n
}

// TestHeaderRoundTrip checks that Decode(Encode(h)) reproduces every field
// of h exactly, for any header shape (valid or not — Encode/Decode never
// validate opcode constraints, only Valid does).
func TestHeaderRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		h := Header{
			Operation:      Opcode(rapid.Uint8Range(0, 8).Draw(t, "op")),
			Flags:          rapid.Byte().Draw(t, "flags"),
			PayloadLen:     rapid.Uint32().Draw(t, "payload_len"),
			OperationData:  rapid.Uint64().Draw(t, "op_data"),
			SourceNode:     randomNodeID(t, "src_node"),
			DestNode:       randomNodeID(t, "dst_node"),
			SourceActor:    actorid.ActorID(rapid.Uint64().Draw(t, "src_actor")),
			DestActor:      actorid.ActorID(rapid.Uint64().Draw(t, "dst_actor")),
			SequenceNumber: rapid.Uint64().Draw(t, "seq"),
		}

		buf := Encode(h)
		require.Len(t, buf, HeaderSize)

		got, err := Decode(buf)
		require.NoError(t, err)
		require.Equal(t, h, got)
	})
}

func TestDecodeShortBuffer(t *testing.T) {
	_, err := Decode(make([]byte, HeaderSize-1))
	require.Error(t, err)
}

// TestValidPerOpcode pins down the per-opcode validity predicate.
func TestValidPerOpcode(t *testing.T) {
	node := actorid.NodeID{PID: 7}

	tests := []struct {
		name  string
		h     Header
		valid bool
	}{
		{"heartbeat ok", Header{Operation: OpHeartbeat}, true},
		{"heartbeat with payload", Header{Operation: OpHeartbeat, PayloadLen: 1}, false},
		{"server_handshake ok", Header{Operation: OpServerHandshake}, true},
		{"server_handshake with dest", Header{
			Operation: OpServerHandshake, DestNode: node, DestActor: 1,
		}, false},
		{"direct_message ok", Header{
			Operation: OpDirectMessage, DestNode: node, DestActor: 1, PayloadLen: 4,
		}, true},
		{"direct_message no payload", Header{
			Operation: OpDirectMessage, DestNode: node, DestActor: 1,
		}, false},
		{"direct_message no dest actor", Header{
			Operation: OpDirectMessage, DestNode: node, PayloadLen: 4,
		}, false},
		{"monitor_message ok", Header{
			Operation: OpMonitorMessage, DestNode: node, DestActor: 1,
		}, true},
		{"down_message ok", Header{
			Operation: OpDownMessage, DestNode: node, DestActor: 1,
		}, true},
		{"announce_proxy ok", Header{Operation: OpAnnounceProxy, SourceActor: 1}, true},
		{"announce_proxy no source", Header{Operation: OpAnnounceProxy}, false},
		{"kill_proxy ok", Header{Operation: OpKillProxy, SourceActor: 1}, true},
		{"unknown opcode", Header{Operation: Opcode(200)}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.valid, Valid(tc.h))
		})
	}
}

// TestValidSingleFieldMutation checks invariant 6's stronger claim: mutating
// any one field of a valid header into a value the opcode forbids makes it
// invalid.
func TestValidSingleFieldMutation(t *testing.T) {
	node := actorid.NodeID{PID: 1}
	valid := Header{Operation: OpDirectMessage, DestNode: node, DestActor: 1, PayloadLen: 4}
	require.True(t, Valid(valid))

	mutated := valid
	mutated.DestActor = 0
	require.False(t, Valid(mutated))

	mutated = valid
	mutated.PayloadLen = 0
	require.False(t, Valid(mutated))

	mutated = valid
	mutated.DestNode = actorid.NodeID{}
	require.False(t, Valid(mutated))
}
