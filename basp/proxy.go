package basp

import (
	"sync"

	"github.com/cafgo/caf/caf"
	"github.com/cafgo/caf/internal/baselib/actorid"
)

// ProxyRegistry is the per-Middleman "remote_actor_id -> proxy" map.
// Each proxy is a real *caf.ControlBlock standing in locally
// for a remote actor: local code Links/Monitors/Sends to it exactly as it
// would a local actor. The proxy's Deliver callback is the *local* delivery
// function (the same one every genuinely local actor uses), so that when
// the proxy is later Terminated (peer died or became unreachable) its
// EXIT/DOWN fan-out reaches local linked/monitoring actors correctly;
// outbound sends to the real remote actor instead go through the
// Middleman's remoteDeliver path, never through the proxy's own control
// block.
type ProxyRegistry struct {
	mu      sync.Mutex
	proxies map[actorid.Address]*caf.ControlBlock

	localDeliver caf.Deliver
	announce     func(addr actorid.Address)
}

// NewProxyRegistry constructs an empty registry. localDeliver is used as
// every created proxy's ControlBlock.Deliver.
func NewProxyRegistry(localDeliver caf.Deliver) *ProxyRegistry {
	return &ProxyRegistry{
		proxies:      make(map[actorid.Address]*caf.ControlBlock),
		localDeliver: localDeliver,
	}
}

// SetAnnounce installs the callback used to send announce_proxy to a
// proxy's origin node the first time it is created.
func (pr *ProxyRegistry) SetAnnounce(fn func(addr actorid.Address)) {
	pr.mu.Lock()
	pr.announce = fn
	pr.mu.Unlock()
}

// GetOrCreate returns the existing proxy for addr, or creates and registers
// a new one, announcing it to the origin.
func (pr *ProxyRegistry) GetOrCreate(addr actorid.Address) *caf.ControlBlock {
	pr.mu.Lock()
	if cb, ok := pr.proxies[addr]; ok {
		pr.mu.Unlock()
		return cb
	}

	cb := caf.NewControlBlock(addr, caf.NewMailbox(), pr.localDeliver)
	pr.proxies[addr] = cb
	announce := pr.announce
	pr.mu.Unlock()

	if announce != nil {
		announce(addr)
	}
	return cb
}

// Lookup returns addr's proxy if one already exists, without creating it.
func (pr *ProxyRegistry) Lookup(addr actorid.Address) (*caf.ControlBlock, bool) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	cb, ok := pr.proxies[addr]
	return cb, ok
}

// Kill terminates and removes a single proxy (in response to a kill_proxy
// frame from its origin).
func (pr *ProxyRegistry) Kill(addr actorid.Address, reason caf.ExitReason) {
	pr.mu.Lock()
	cb, ok := pr.proxies[addr]
	delete(pr.proxies, addr)
	pr.mu.Unlock()

	if ok {
		cb.Terminate(reason)
	}
}

// KillAllForNode terminates every proxy whose address names node (connection
// to that node was lost), synthesizing remote_link_unreachable for every
// linked/monitoring local actor.
func (pr *ProxyRegistry) KillAllForNode(node actorid.NodeID, reason caf.ExitReason) {
	pr.mu.Lock()
	var victims []*caf.ControlBlock
	for addr, cb := range pr.proxies {
		if addr.Node == node {
			victims = append(victims, cb)
			delete(pr.proxies, addr)
		}
	}
	pr.mu.Unlock()

	for _, cb := range victims {
		cb.Terminate(reason)
	}
}
