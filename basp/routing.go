package basp

import (
	"sync"

	"github.com/cafgo/caf/internal/baselib/actorid"
)

// Route is either a direct connection to Node, or an indirect route whose
// next hop is Via.
type Route struct {
	Node   actorid.NodeID
	Direct bool
	Via    actorid.NodeID // valid iff !Direct
}

// RoutingTable maps a destination node id to how to reach it. The proxy
// registry and routing table are each guarded by a single lock per BASP
// instance.
type RoutingTable struct {
	mu     sync.Mutex
	routes map[actorid.NodeID]Route
}

// NewRoutingTable returns an empty routing table.
func NewRoutingTable() *RoutingTable {
	return &RoutingTable{routes: make(map[actorid.NodeID]Route)}
}

// SetDirect records that node is reachable via a direct connection.
func (rt *RoutingTable) SetDirect(node actorid.NodeID) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.routes[node] = Route{Node: node, Direct: true}
}

// SetIndirect records that node is reachable only via an intermediate hop.
func (rt *RoutingTable) SetIndirect(node, via actorid.NodeID) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.routes[node] = Route{Node: node, Direct: false, Via: via}
}

// Lookup returns the route to node, if any.
func (rt *RoutingTable) Lookup(node actorid.NodeID) (Route, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	r, ok := rt.routes[node]
	return r, ok
}

// Remove deletes node's route entirely (direct connection to it died).
func (rt *RoutingTable) Remove(node actorid.NodeID) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	delete(rt.routes, node)
}

// InvalidateVia removes every route whose next hop is dead, returning the
// set of now-unreachable destination nodes so the caller can synthesize
// remote_link_unreachable for actors routed through them.
func (rt *RoutingTable) InvalidateVia(dead actorid.NodeID) []actorid.NodeID {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	var unreachable []actorid.NodeID
	for node, route := range rt.routes {
		if node == dead || (!route.Direct && route.Via == dead) {
			unreachable = append(unreachable, node)
			delete(rt.routes, node)
		}
	}
	return unreachable
}
