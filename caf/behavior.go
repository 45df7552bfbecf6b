package caf

import (
	"time"

	"github.com/cafgo/caf/typeid"
)

// Handler is one entry in a Behavior's ordered handler list: it matches
// messages whose type-id sequence is Types (or, if Prefix is set, whose
// sequence starts with Types), and produces an optional reply.
type Handler struct {
	// Types is the ordered type-id sequence this handler matches.
	Types []typeid.ID

	// Prefix allows the handler to match messages with trailing elements
	// beyond Types.
	Prefix bool

	// Func processes a matched message. It returns a reply message and
	// whether a reply should be sent (a bare "tell" handler returns
	// ok=false). A panic inside Func is recovered by the actor loop and
	// converted to ExitReason UnhandledException.
	Func func(ctx *Context, msg Message) (reply Message, ok bool)
}

func (h Handler) matches(types []typeid.ID) bool {
	if h.Prefix {
		if len(types) < len(h.Types) {
			return false
		}
	} else if len(types) != len(h.Types) {
		return false
	}

	for i, id := range h.Types {
		if types[i] != id {
			return false
		}
	}
	return true
}

// Behavior is an ordered list of typed handlers plus an optional timeout
//. For each incoming mailbox element, the actor tries each
// handler in order; the first matching handler consumes the message.
type Behavior struct {
	Handlers []Handler

	// After fires when no message has matched within the given duration
	// since the behavior became active. Zero means no timeout; the firing
	// itself arrives as an ordinary TimeoutMsg through a Handler, not a
	// separate callback (see TimeoutMsg).
	After time.Duration
}

// match returns the first handler (in declared order) whose Types match the
// message's type-id sequence.
func (b Behavior) match(msg Message) (Handler, bool) {
	types := msg.Types()
	for _, h := range b.Handlers {
		if h.matches(types) {
			return h, true
		}
	}
	return Handler{}, false
}

// predicate adapts Behavior.match into the predicate Mailbox.Scan expects.
func (b Behavior) predicate() func(*Element) bool {
	return func(e *Element) bool {
		_, ok := b.match(e.Msg)
		return ok
	}
}

// becomeMode selects how Context.Become mutates the behavior stack.
type becomeMode int

const (
	// Replace swaps the top of the stack (the default).
	Replace becomeMode = iota

	// Keep pushes a new frame, preserving the previous one for a later
	// Unbecome.
	Keep
)

// behaviorStack is the per-actor stack of active Behaviors. The stack is
// empty iff the actor is terminating.
type behaviorStack struct {
	frames []Behavior
}

func newBehaviorStack(initial Behavior) *behaviorStack {
	return &behaviorStack{frames: []Behavior{initial}}
}

func (s *behaviorStack) top() (Behavior, bool) {
	if len(s.frames) == 0 {
		return Behavior{}, false
	}
	return s.frames[len(s.frames)-1], true
}

func (s *behaviorStack) become(b Behavior, mode becomeMode) {
	switch mode {
	case Keep:
		s.frames = append(s.frames, b)
	default:
		if len(s.frames) == 0 {
			s.frames = append(s.frames, b)
			return
		}
		s.frames[len(s.frames)-1] = b
	}
}

func (s *behaviorStack) unbecome() {
	if len(s.frames) <= 1 {
		s.frames = nil
		return
	}
	s.frames = s.frames[:len(s.frames)-1]
}

func (s *behaviorStack) empty() bool {
	return len(s.frames) == 0
}
