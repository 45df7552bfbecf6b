package scheduler

import (
	"container/heap"
	"time"
)

// TimerActorClock is the actor-hosted alternative to WallClock: instead of
// a shared mutex guarding the heap, a single dedicated goroutine owns the
// heap exclusively and every mutation - scheduling, disposal-driven pops,
// and firing due actions - happens only on that goroutine. Other
// goroutines never touch the heap directly; they hand it a closure over an
// unbuffered command channel, the equivalent of an actor's mailbox, and the
// owning goroutine runs it in turn. This is the variant where timing is a
// dedicated actor rather than state embedded in the scheduler itself.
type TimerActorClock struct {
	cmds chan func(*timerHeap)
	stop chan struct{}
}

// NewTimerActorClock starts a TimerActorClock. Call Stop to release its
// goroutine.
func NewTimerActorClock() *TimerActorClock {
	c := &TimerActorClock{
		cmds: make(chan func(*timerHeap)),
		stop: make(chan struct{}),
	}
	go c.run()
	return c
}

// Now returns the real wall-clock time.
func (c *TimerActorClock) Now() time.Time {
	return time.Now()
}

// ScheduleAt implements Clock by handing the owning goroutine a closure
// that pushes the new entry, rather than taking a lock itself.
func (c *TimerActorClock) ScheduleAt(t time.Time, action func()) Disposable {
	e := &timerEntry{deadline: t, action: action}

	select {
	case c.cmds <- func(h *timerHeap) { heap.Push(h, e) }:
	case <-c.stop:
	}
	return e
}

// ScheduleAfter implements Clock.
func (c *TimerActorClock) ScheduleAfter(d time.Duration, action func()) Disposable {
	return c.ScheduleAt(time.Now().Add(d), action)
}

// Stop terminates the clock's goroutine. Pending actions are dropped.
func (c *TimerActorClock) Stop() {
	close(c.stop)
}

// run is the clock's actor loop: it exclusively owns h for its entire
// lifetime, reacting to either an inbound command or its own wake timer.
func (c *TimerActorClock) run() {
	var h timerHeap

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		wait := time.Hour
		if h.Len() > 0 {
			wait = time.Until(h[0].deadline)
			if wait < 0 {
				wait = 0
			}
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-c.stop:
			return
		case cmd := <-c.cmds:
			cmd(&h)
		case <-timer.C:
			c.fireDue(&h)
		}
	}
}

func (c *TimerActorClock) fireDue(h *timerHeap) {
	now := time.Now()
	for h.Len() > 0 && !(*h)[0].deadline.After(now) {
		e := heap.Pop(h).(*timerEntry)
		if !e.disposed {
			e.action()
		}
	}
}
