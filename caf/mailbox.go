package caf

import (
	"context"
	"sync"

	"github.com/cafgo/caf/internal/baselib/actorid"
)

// EnqueueResult is returned by Mailbox.Enqueue, telling the sender what
// happened and, in particular, whether it must reschedule the receiving
// actor.
type EnqueueResult int

const (
	// Enqueued means the element was appended and the mailbox was already
	// unblocked; no rescheduling is necessary.
	Enqueued EnqueueResult = iota

	// Awaken means the mailbox transitioned blocked -> unblocked; the
	// caller must reschedule the owning resumable exactly once.
	Awaken

	// Bounce means the mailbox was closed; the sender must synthesize a
	// DOWN/EXIT-equivalent failure for request ids.
	Bounce
)

type mailboxState int32

const (
	stateBlocked mailboxState = iota
	stateUnblocked
	stateClosed
)

// Element is a mailbox element: a message plus its sender address, message
// id, and the "marked" flag used to skip it during a nested receive without
// dequeuing it.
type Element struct {
	Sender actorid.Address
	ID     MessageID
	Msg    Message

	marked bool
}

// Mailbox is the per-actor MPSC queue. Enqueue may
// be called from any goroutine; Scan/TryScan/Close are reader-only operations
// invoked from the owning actor's single processing goroutine.
//
// A plain slice guarded by a mutex is simpler to reason about than a
// lock-free singly linked list for the "marked element" nested-receive
// requirement (leave element N in place, resume scanning from N+1 without
// the same bookkeeping a mutex already gives for free). The slice never
// shrinks from the front by shifting; consumed elements are spliced out in
// place.
type Mailbox struct {
	mu    sync.Mutex
	cond  *sync.Cond
	elems []*Element
	state mailboxState
}

// NewMailbox returns an empty, unblocked mailbox.
func NewMailbox() *Mailbox {
	mb := &Mailbox{state: stateUnblocked}
	mb.cond = sync.NewCond(&mb.mu)
	return mb
}

// Enqueue appends e to the mailbox. See EnqueueResult for the three
// outcomes.
func (mb *Mailbox) Enqueue(e *Element) EnqueueResult {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	switch mb.state {
	case stateClosed:
		return Bounce

	case stateBlocked:
		mb.elems = append(mb.elems, e)
		mb.state = stateUnblocked
		mb.cond.Broadcast()
		return Awaken

	default: // stateUnblocked
		mb.elems = append(mb.elems, e)
		mb.cond.Broadcast()
		return Enqueued
	}
}

// TryBlock transitions the mailbox to "blocked" iff it is currently empty.
// It is called by the reader when it has scanned everything buffered and
// found nothing runnable.
func (mb *Mailbox) TryBlock() bool {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if mb.state == stateClosed {
		return false
	}
	if len(mb.elems) != 0 {
		return false
	}
	mb.state = stateBlocked
	return true
}

// ResetMarks clears the "marked" flag on every buffered element. The actor
// loop calls this once per top-level dispatch attempt.
func (mb *Mailbox) ResetMarks() {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	for _, e := range mb.elems {
		e.marked = false
	}
}

// tryScanLocked performs one non-blocking pass over the buffered elements,
// looking for the first unmarked element matching predicate. On a match the
// element is spliced out and returned. Non-matching elements are marked in
// place. Caller must hold mb.mu.
func (mb *Mailbox) tryScanLocked(predicate func(*Element) bool) (*Element, bool) {
	for i, e := range mb.elems {
		if e.marked {
			continue
		}
		if predicate(e) {
			mb.elems = append(mb.elems[:i:i], mb.elems[i+1:]...)
			return e, true
		}
		e.marked = true
	}
	return nil, false
}

// TryScan is the non-blocking counterpart of Scan, used by the top-level
// actor loop so that an event-based actor never blocks a scheduler worker:
// if nothing matches right now, TryScan transitions the mailbox to blocked
// (if it was empty of unmarked candidates) and returns false immediately,
// leaving the next Awaken transition responsible for rescheduling.
func (mb *Mailbox) TryScan(predicate func(*Element) bool) (*Element, bool) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if e, ok := mb.tryScanLocked(predicate); ok {
		return e, true
	}

	if mb.state == stateUnblocked && mb.allMarked() {
		mb.state = stateBlocked
	}
	return nil, false
}

func (mb *Mailbox) allMarked() bool {
	for _, e := range mb.elems {
		if !e.marked {
			return false
		}
	}
	return true
}

// Scan looks for the first unmarked, buffered element matching predicate.
// On a match, the element is spliced out of the mailbox (dequeued) and
// returned. Non-matching elements are marked in place rather than removed,
// preserving causal order for a later top-level pass. If nothing currently
// buffered matches, Scan blocks until a new element arrives, the mailbox is
// closed, or ctx is cancelled. Scan is used only for *nested* receive,
// which is explicitly synchronous; the top-level actor loop uses the
// non-blocking TryScan instead.
func (mb *Mailbox) Scan(
	ctx context.Context, predicate func(*Element) bool,
) (*Element, bool) {

	done := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		mb.mu.Lock()
		defer mb.mu.Unlock()
		close(done)
		mb.cond.Broadcast()
	})
	defer stop()

	mb.mu.Lock()
	defer mb.mu.Unlock()

	for {
		if e, ok := mb.tryScanLocked(predicate); ok {
			return e, true
		}

		if mb.state == stateClosed {
			return nil, false
		}

		select {
		case <-done:
			return nil, false
		default:
		}

		if ctx.Err() != nil {
			return nil, false
		}

		mb.cond.Wait()
	}
}

// Close transitions the mailbox to "closed", preventing further enqueues,
// and returns every element still buffered (marked or not) so the caller
// (the owning actor's termination path) can synthesize failure responses
// for pending requests and, optionally, forward the rest to a dead-letter
// sink.
func (mb *Mailbox) Close() []*Element {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if mb.state == stateClosed {
		return nil
	}
	mb.state = stateClosed
	drained := mb.elems
	mb.elems = nil
	mb.cond.Broadcast()
	return drained
}

// IsClosed reports whether Close has been called.
func (mb *Mailbox) IsClosed() bool {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.state == stateClosed
}

// Len returns the number of buffered elements (for diagnostics/tests only).
func (mb *Mailbox) Len() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return len(mb.elems)
}
