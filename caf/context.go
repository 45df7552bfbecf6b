package caf

import (
	"context"
	"time"

	"github.com/cafgo/caf/internal/baselib/actorid"
	"github.com/cafgo/caf/scheduler"
)

// Resolver maps an address to its local representation of the control
// block, whether the address names a genuinely local actor or a BASP proxy
// standing in for a remote one. LocalActor consults it to complete the
// "other side" of Link/Monitor bookkeeping: links are address-only edges,
// so either endpoint may be a proxy.
type Resolver interface {
	Resolve(addr actorid.Address) (*ControlBlock, bool)
}

// SetResolver wires the address resolver a LocalActor uses for Link/Monitor
// (the ActorSystem calls this right after spawning).
func (a *LocalActor) SetResolver(r Resolver) {
	a.resolver = r
}

// Context is passed to every Behavior.Handler invocation. It carries the
// current message's sender/message-id and exposes the actor's mutating
// operations (become, link, monitor, reply, nested receive).
type Context struct {
	actor *LocalActor
	elem  *Element

	quit       bool
	quitReason ExitReason
}

// Self returns this actor's own address.
func (c *Context) Self() actorid.Address {
	return c.actor.cb.Address
}

// Sender returns the sender address of the message currently being handled.
func (c *Context) Sender() actorid.Address {
	return c.elem.Sender
}

// MessageID returns the message id of the message currently being handled
// (Async for a tell, a request id for an ask).
func (c *Context) MessageID() MessageID {
	return c.elem.ID
}

// Become replaces (or, with Keep, pushes on top of) the actor's current
// behavior. Visible starting with the *next* handler invocation, never
// mid-handler.
func (c *Context) Become(b Behavior, mode ...becomeMode) {
	m := Replace
	if len(mode) > 0 {
		m = mode[0]
	}
	c.actor.stack.become(b, m)
}

// Unbecome pops the behavior stack, restoring the previous behavior.
func (c *Context) Unbecome() {
	c.actor.stack.unbecome()
}

// Quit marks the actor for termination with reason once the current handler
// returns.
func (c *Context) Quit(reason ExitReason) {
	c.quit = true
	c.quitReason = reason
}

// Send is a fire-and-forget tell to an arbitrary address.
func (c *Context) Send(to actorid.Address, msg Message) {
	c.actor.cb.deliver(to, &Element{
		Sender: c.actor.cb.Address,
		ID:     Async,
		Msg:    msg,
	})
}

// Reply answers the message currently being handled, if it was a request;
// it is a no-op for a tell.
func (c *Context) Reply(msg Message) {
	if !c.elem.ID.IsRequest() {
		return
	}
	c.actor.cb.deliver(c.elem.Sender, &Element{
		Sender: c.actor.cb.Address,
		ID:     c.elem.ID.Answered(),
		Msg:    msg,
	})
}

// Request sends msg to to as a synchronous request and blocks (via a nested
// mailbox receive) until a matching response arrives or
// timeout elapses. The timeout is driven by the actor's own Clock so it
// behaves identically under the production WallClock and a test
// ManualClock.
func (c *Context) Request(to actorid.Address, msg Message, timeout time.Duration) (Message, bool) {
	reqID := c.actor.nextRequestID()
	c.actor.cb.deliver(to, &Element{
		Sender: c.actor.cb.Address,
		ID:     reqID,
		Msg:    msg,
	})

	ctx, cancel := context.WithCancel(c.actor.ctx)
	defer cancel()

	var timer scheduler.Disposable
	if timeout > 0 {
		timer = c.actor.clock.ScheduleAfter(timeout, cancel)
	}

	reply, ok := c.actor.cb.mailbox.Scan(ctx, func(e *Element) bool {
		return e.ID == reqID.Answered()
	})

	if timer != nil {
		timer.Dispose()
	}
	if !ok {
		return Message{}, false
	}
	return reply.Msg, true
}

// Receive performs a nested synchronous receive for the duration of the
// current handler: elements that don't
// match b are marked and skipped rather than dequeued, preserving outer
// causal order. This blocks the calling worker goroutine, which is the one
// deliberate exception to "event-based actors never block a worker."
func (c *Context) Receive(b Behavior, timeout time.Duration) (Message, bool) {
	ctx := c.actor.ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	elem, ok := c.actor.cb.mailbox.Scan(ctx, b.predicate())
	if !ok {
		return Message{}, false
	}
	return elem.Msg, true
}

// Link establishes a symmetric link with peer.
// Idempotent; if peer cannot be resolved to a local control block (e.g. it
// is a remote actor on an unreachable node), only this side's bookkeeping
// is updated.
func (c *Context) Link(peer actorid.Address) {
	c.actor.cb.Link(peer)

	if c.actor.resolver == nil {
		return
	}
	if peerCB, ok := c.actor.resolver.Resolve(peer); ok {
		peerCB.Link(c.actor.cb.Address)
	}
}

// Unlink removes a previously-established link, symmetrically.
func (c *Context) Unlink(peer actorid.Address) {
	c.actor.cb.Unlink(peer)

	if c.actor.resolver == nil {
		return
	}
	if peerCB, ok := c.actor.resolver.Resolve(peer); ok {
		peerCB.Unlink(c.actor.cb.Address)
	}
}

// Monitor registers this actor to receive exactly one DOWN message when
// peer terminates. If peer cannot be resolved at
// all, DOWN is synthesized immediately with reason Unknown.
func (c *Context) Monitor(peer actorid.Address) uint64 {
	if c.actor.resolver != nil {
		if peerCB, ok := c.actor.resolver.Resolve(peer); ok {
			return peerCB.AddMonitor(c.actor.cb.Address)
		}
	}

	c.actor.cb.deliver(c.actor.cb.Address, &Element{
		Sender: peer,
		ID:     Async,
		Msg:    NewMessage(atomDownID, DownMsg{From: peer, Reason: Unknown}),
	})
	return 0
}

// Demonitor removes one (self, slot) monitor pairing from peer.
func (c *Context) Demonitor(peer actorid.Address, slot uint64) {
	if c.actor.resolver == nil {
		return
	}
	if peerCB, ok := c.actor.resolver.Resolve(peer); ok {
		peerCB.RemoveMonitor(c.actor.cb.Address, slot)
	}
}
