package actorid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewNodeIDIsUnique(t *testing.T) {
	a, err := NewNodeID()
	require.NoError(t, err)
	b, err := NewNodeID()
	require.NoError(t, err)

	require.NotEqual(t, a.HostID, b.HostID)
	require.False(t, a.IsNone())
}

func TestNodeIDNoneIsNone(t *testing.T) {
	require.True(t, None.IsNone())
	require.True(t, NodeID{}.IsNone())
}

func TestNodeIDLessIsTotalOrderOnHostID(t *testing.T) {
	low := NodeID{HostID: [hostIDLen]byte{0x01}, PID: 5}
	high := NodeID{HostID: [hostIDLen]byte{0x02}, PID: 1}

	require.True(t, low.Less(high))
	require.False(t, high.Less(low))
	require.False(t, low.Less(low))
}

func TestNodeIDLessFallsBackToPID(t *testing.T) {
	a := NodeID{HostID: [hostIDLen]byte{0x01}, PID: 5}
	b := NodeID{HostID: [hostIDLen]byte{0x01}, PID: 9}

	require.True(t, a.Less(b))
	require.False(t, b.Less(a))
}

func TestNodeIDString(t *testing.T) {
	n := NodeID{PID: 42}
	s := n.String()
	require.Contains(t, s, "@42")
}

func TestAddressIsNone(t *testing.T) {
	require.True(t, NoneAddress.IsNone())
	require.True(t, Address{}.IsNone())

	addr := Address{Node: NodeID{PID: 1}, Actor: 1}
	require.False(t, addr.IsNone())
}

func TestAddressString(t *testing.T) {
	addr := Address{Node: NodeID{PID: 1}, Actor: 9}
	require.Contains(t, addr.String(), "/9")
}
