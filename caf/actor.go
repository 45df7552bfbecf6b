package caf

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/cafgo/caf/internal/baselib/actorid"
	"github.com/cafgo/caf/scheduler"
)

// LocalActor is the event-based actor variant: its
// handlers run on shared scheduler workers and it never blocks one (nested
// receive excepted, see Mailbox.Scan). It implements scheduler.Resumable so
// a Pool can run it directly.
type LocalActor struct {
	cb    *ControlBlock
	stack *behaviorStack

	pool  *scheduler.Pool
	clock scheduler.Clock

	ctx    context.Context
	cancel context.CancelFunc

	reqSeq       atomic.Uint64
	timeoutGen   atomic.Uint64
	timeoutTimer scheduler.Disposable

	resolver Resolver
}

// NewLocalActor constructs an actor bound to cb, running initial as its
// first behavior.
func NewLocalActor(
	cb *ControlBlock, initial Behavior, pool *scheduler.Pool, clock scheduler.Clock,
) *LocalActor {

	ctx, cancel := context.WithCancel(context.Background())
	a := &LocalActor{
		cb:     cb,
		stack:  newBehaviorStack(initial),
		pool:   pool,
		clock:  clock,
		ctx:    ctx,
		cancel: cancel,
	}
	a.armTimeout(initial)
	return a
}

// Mailbox exposes the actor's mailbox for the owning ControlBlock/system.
func (a *LocalActor) Mailbox() *Mailbox { return a.cb.mailbox }

// Schedule hands this actor to the pool, the reaction to a mailbox Awaken
// transition: deliver r to some worker's run queue.
func (a *LocalActor) Schedule() {
	if a.pool != nil {
		a.pool.Schedule(a)
	}
}

// Resume implements scheduler.Resumable: process up to quantum mailbox
// elements through the current top-of-stack behavior, never blocking the
// calling worker (event-based actor discipline).
func (a *LocalActor) Resume(ctx context.Context, quantum int) scheduler.ResumeStatus {
	for i := 0; i < quantum; i++ {
		behavior, ok := a.stack.top()
		if !ok {
			a.cb.Terminate(Normal)
			return scheduler.Done
		}

		a.cb.mailbox.ResetMarks()

		elem, ok := a.cb.mailbox.TryScan(behavior.predicate())
		if !ok {
			return scheduler.AwaitingMessage
		}

		a.dispatch(behavior, elem)

		if a.stack.empty() {
			return scheduler.Done
		}
	}
	return scheduler.ResumeLater
}

// dispatch runs the matched handler, recovering a panic into
// UnhandledException termination (the Go stand-in for "handler threw"),
// and mails back a response if the handler
// produced one and the incoming element was a request.
func (a *LocalActor) dispatch(behavior Behavior, elem *Element) {
	handler, ok := behavior.match(elem.Msg)
	if !ok {
		// TryScan's predicate already guarantees a match; this branch is
		// unreachable in practice but kept as a defensive no-op response.
		return
	}

	cctx := &Context{actor: a, elem: elem}

	reason, terminated := a.runHandler(cctx, handler, elem)
	if terminated {
		a.cb.Terminate(reason)
		a.stack.frames = nil // the stack is empty iff the actor is terminating
		return
	}

	a.rearmTimeoutIfChanged()
}

// runHandler invokes handler.Func with panic recovery.
func (a *LocalActor) runHandler(
	cctx *Context, handler Handler, elem *Element,
) (reason ExitReason, terminated bool) {

	defer func() {
		if r := recover(); r != nil {
			terminated = true
			reason = UnhandledException
			_ = fmt.Sprint(r)
		}
	}()

	reply, hasReply := handler.Func(cctx, elem.Msg)
	if cctx.quit {
		return cctx.quitReason, true
	}

	if hasReply && elem.ID.IsRequest() {
		a.cb.deliver(elem.Sender, &Element{
			Sender: a.cb.Address,
			ID:     elem.ID.Answered(),
			Msg:    reply,
		})
	}
	return Running, false
}

// armTimeout schedules behavior's After timeout, if any, as a TimeoutMsg
// delivered through the actor's own mailbox: "after(d) >> f" expressed as
// an ordinary message, not a special control-flow construct.
func (a *LocalActor) armTimeout(behavior Behavior) {
	if behavior.After <= 0 {
		return
	}

	gen := a.timeoutGen.Add(1)
	a.timeoutTimer = a.clock.ScheduleAfter(behavior.After, func() {
		if a.timeoutGen.Load() != gen {
			return // superseded by a later become() or message.
		}
		elem := &Element{
			Sender: a.cb.Address,
			ID:     Async,
			Msg:    NewMessage(atomTimeoutID, TimeoutMsg{BehaviorGen: gen}),
		}
		if a.cb.mailbox.Enqueue(elem) == Awaken {
			a.Schedule()
		}
	})
}

// rearmTimeoutIfChanged cancels any pending timeout and re-arms it for the
// (possibly new, after a become()) top-of-stack behavior.
func (a *LocalActor) rearmTimeoutIfChanged() {
	if a.timeoutTimer != nil {
		a.timeoutTimer.Dispose()
		a.timeoutTimer = nil
	}
	if b, ok := a.stack.top(); ok {
		a.armTimeout(b)
	}
}

// nextRequestID allocates a fresh request MessageID for this actor's
// outgoing Ask/Request calls.
func (a *LocalActor) nextRequestID() MessageID {
	return newRequestID(a.reqSeq.Add(1))
}

// Link records a link to peer on this actor's control block only; the
// peer's side is not updated here. Context.Link records both sides,
// resolving peer's control block through the actor's Resolver.
func (a *LocalActor) Link(peer actorid.Address) {
	a.cb.Link(peer)
}

// Address returns this actor's address.
func (a *LocalActor) Address() actorid.Address {
	return a.cb.Address
}

// Stop forces immediate termination with reason Kill (unrefuseable).
func (a *LocalActor) Stop() {
	a.cancel()
	a.cb.Terminate(Kill)
}

// ControlBlock exposes the underlying control block (used by system.go for
// registry bookkeeping).
func (a *LocalActor) ControlBlock() *ControlBlock { return a.cb }
