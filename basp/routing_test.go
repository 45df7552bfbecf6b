package basp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cafgo/caf/internal/baselib/actorid"
)

func TestRoutingTableDirect(t *testing.T) {
	rt := NewRoutingTable()
	node := actorid.NodeID{PID: 1}

	rt.SetDirect(node)

	route, ok := rt.Lookup(node)
	require.True(t, ok)
	require.True(t, route.Direct)
	require.Equal(t, node, route.Node)
}

func TestRoutingTableIndirect(t *testing.T) {
	rt := NewRoutingTable()
	node := actorid.NodeID{PID: 1}
	via := actorid.NodeID{PID: 2}

	rt.SetIndirect(node, via)

	route, ok := rt.Lookup(node)
	require.True(t, ok)
	require.False(t, route.Direct)
	require.Equal(t, via, route.Via)
}

func TestRoutingTableRemove(t *testing.T) {
	rt := NewRoutingTable()
	node := actorid.NodeID{PID: 1}
	rt.SetDirect(node)

	rt.Remove(node)

	_, ok := rt.Lookup(node)
	require.False(t, ok)
}

func TestRoutingTableInvalidateViaRemovesDirectAndIndirect(t *testing.T) {
	rt := NewRoutingTable()
	dead := actorid.NodeID{PID: 1}
	downstream := actorid.NodeID{PID: 2}
	unrelated := actorid.NodeID{PID: 3}
	unrelatedVia := actorid.NodeID{PID: 4}

	rt.SetDirect(dead)
	rt.SetIndirect(downstream, dead)
	rt.SetIndirect(unrelated, unrelatedVia)
	rt.SetDirect(unrelatedVia)

	unreachable := rt.InvalidateVia(dead)

	require.ElementsMatch(t, []actorid.NodeID{dead, downstream}, unreachable)

	_, ok := rt.Lookup(dead)
	require.False(t, ok)
	_, ok = rt.Lookup(downstream)
	require.False(t, ok)

	route, ok := rt.Lookup(unrelated)
	require.True(t, ok)
	require.Equal(t, unrelatedVia, route.Via)
}

func TestRoutingTableLookupMissing(t *testing.T) {
	rt := NewRoutingTable()
	_, ok := rt.Lookup(actorid.NodeID{PID: 42})
	require.False(t, ok)
}
