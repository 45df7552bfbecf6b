package caf

import (
	"sync"
	"sync/atomic"

	"github.com/cafgo/caf/internal/baselib/actorid"
)

// Deliver is how a ControlBlock reaches another actor's mailbox; the
// ActorSystem injects an implementation that resolves local actors directly
// and hands remote ones to BASP. Kept as a narrow function type (rather than
// an interface back-reference to the system) to avoid an import cycle
// between caf and system.
type Deliver func(to actorid.Address, elem *Element)

type monitorEntry struct {
	observer actorid.Address
	slot     uint64
}

// ControlBlock is the shared, reference-counted actor identity. Go's
// garbage collector makes manual destruction unnecessary,
// but the strong/weak counters and link/monitor sets are still tracked
// explicitly because they carry *behavioral* meaning (when DOWN fires, when
// an address can still resolve a final exit reason), not just memory
// lifetime.
type ControlBlock struct {
	Address actorid.Address

	strong atomic.Int64
	weak   atomic.Int64

	mu         sync.Mutex
	links      map[actorid.Address]struct{}
	monitors   []monitorEntry
	attached   []func(ExitReason)
	exitReason ExitReason
	registered bool

	mailbox *Mailbox
	deliver Deliver

	nextSlot atomic.Uint64
}

// NewControlBlock constructs a running control block with strong count 1.
func NewControlBlock(addr actorid.Address, mailbox *Mailbox, deliver Deliver) *ControlBlock {
	cb := &ControlBlock{
		Address:    addr,
		links:      make(map[actorid.Address]struct{}),
		exitReason: Running,
		mailbox:    mailbox,
		deliver:    deliver,
	}
	cb.strong.Store(1)
	return cb
}

// ExitReason returns the current (possibly still Running) exit reason.
func (cb *ControlBlock) ExitReason() ExitReason {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.exitReason
}

// IsAlive reports whether the actor has not yet begun terminating.
func (cb *ControlBlock) IsAlive() bool {
	return cb.strong.Load() > 0
}

// SetRegistered sets the "registered" flag, which prevents system shutdown
// while true.
func (cb *ControlBlock) SetRegistered(v bool) {
	cb.mu.Lock()
	cb.registered = v
	cb.mu.Unlock()
}

// Registered reports the current registered flag.
func (cb *ControlBlock) Registered() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.registered
}

// Attach registers a functor invoked with the exit reason on termination.
func (cb *ControlBlock) Attach(fn func(ExitReason)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.exitReason != Running {
		fn(cb.exitReason)
		return
	}
	cb.attached = append(cb.attached, fn)
}

// Link establishes a symmetric relationship with peer: peer's control block
// must also call Link(cb.Address) on itself (the caller, typically
// Context.Link, does both sides). Idempotent.
func (cb *ControlBlock) Link(peer actorid.Address) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if _, ok := cb.links[peer]; ok {
		return
	}
	cb.links[peer] = struct{}{}
	cb.weak.Add(1)
}

// Unlink removes a previously-established link, if any. Symmetric: the
// caller is expected to also unlink the peer's side.
func (cb *ControlBlock) Unlink(peer actorid.Address) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if _, ok := cb.links[peer]; !ok {
		return
	}
	delete(cb.links, peer)
	cb.weak.Add(-1)
}

// Linked reports whether peer is currently linked.
func (cb *ControlBlock) Linked(peer actorid.Address) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	_, ok := cb.links[peer]
	return ok
}

// LinkedPeers returns a snapshot of every currently-linked address.
func (cb *ControlBlock) LinkedPeers() []actorid.Address {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	peers := make([]actorid.Address, 0, len(cb.links))
	for p := range cb.links {
		peers = append(peers, p)
	}
	return peers
}

// AddMonitor registers observer to receive exactly one DOWN message when cb
// terminates, returning the slot id demonitor needs to remove just this
// pairing (monitor state is "a multiset of (monitoring_address, slot)
// pairs". If cb has already terminated, DOWN is delivered immediately.
func (cb *ControlBlock) AddMonitor(observer actorid.Address) uint64 {
	slot := cb.nextSlot.Add(1)

	cb.mu.Lock()
	if cb.exitReason != Running {
		reason := cb.exitReason
		cb.mu.Unlock()
		cb.sendDown(observer, reason)
		return slot
	}
	cb.monitors = append(cb.monitors, monitorEntry{observer: observer, slot: slot})
	cb.weak.Add(1)
	cb.mu.Unlock()

	return slot
}

// RemoveMonitor removes one (observer, slot) pairing.
func (cb *ControlBlock) RemoveMonitor(observer actorid.Address, slot uint64) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	for i, m := range cb.monitors {
		if m.observer == observer && m.slot == slot {
			cb.monitors = append(cb.monitors[:i], cb.monitors[i+1:]...)
			cb.weak.Add(-1)
			return
		}
	}
}

// Terminate runs the termination protocol: close the
// mailbox (synthesizing failures for pending requests), invoke attached
// functors, emit EXIT to linked peers, emit DOWN to monitors, and set the
// strong count to zero. It is a no-op if the actor has already terminated.
func (cb *ControlBlock) Terminate(reason ExitReason) {
	cb.mu.Lock()
	if cb.exitReason != Running {
		cb.mu.Unlock()
		return
	}
	cb.exitReason = reason
	links := make([]actorid.Address, 0, len(cb.links))
	for p := range cb.links {
		links = append(links, p)
	}
	monitors := append([]monitorEntry(nil), cb.monitors...)
	attached := cb.attached
	cb.attached = nil
	cb.mu.Unlock()

	cb.strong.Store(0)

	drained := cb.mailbox.Close()
	for _, e := range drained {
		if e.ID.IsRequest() {
			cb.sendFailure(e)
		}
	}

	for _, fn := range attached {
		fn(reason)
	}

	for _, peer := range links {
		cb.sendExit(peer, reason)
	}

	for _, m := range monitors {
		cb.sendDown(m.observer, reason)
	}
}

// sendExit delivers an EXIT message to peer, unless reason is Normal (links
// only propagate non-normal termination).
func (cb *ControlBlock) sendExit(peer actorid.Address, reason ExitReason) {
	if reason.IsNormal() {
		return
	}
	msg := NewMessage(atomExitID, ExitMsg{From: cb.Address, Reason: reason})
	cb.deliver(peer, &Element{Sender: cb.Address, ID: Async, Msg: msg})
}

// sendDown delivers a DOWN message to observer (always, regardless of
// reason).
func (cb *ControlBlock) sendDown(observer actorid.Address, reason ExitReason) {
	msg := NewMessage(atomDownID, DownMsg{From: cb.Address, Reason: reason})
	cb.deliver(observer, &Element{Sender: cb.Address, ID: Async, Msg: msg})
}

// sendFailure resolves a pending request from a now-terminated actor with an
// error response, as the mailbox's drain path is required to do.
func (cb *ControlBlock) sendFailure(e *Element) {
	msg := NewMessage(atomErrorID, FailureMsg{Reason: Unknown, Detail: "actor terminated"})
	cb.deliver(e.Sender, &Element{
		Sender: cb.Address,
		ID:     e.ID.Answered(),
		Msg:    msg,
	})
}
