package caf

import (
	"github.com/cafgo/caf/internal/baselib/actorid"
	"github.com/cafgo/caf/typeid"
)

// Built-in type ids for the synthetic EXIT/DOWN/failure/timeout messages
// every actor system needs, allocated from the user id range so they sit
// alongside the registry's other built-ins without colliding with the
// handful of scalar types typeid.Registry pre-registers.
const (
	atomExitID typeid.ID = typeid.FirstUserID + iota
	atomDownID
	atomErrorID
	atomTimeoutID
)

// ExitMsg is delivered to linked peers when an actor terminates with a
// non-normal reason.
type ExitMsg struct {
	From   actorid.Address
	Reason ExitReason
}

// MessageType returns the message's type name.
func (ExitMsg) MessageType() string { return "caf.Exit" }

// DownMsg is delivered exactly once to every monitor of a terminated actor
//.
type DownMsg struct {
	From   actorid.Address
	Reason ExitReason
}

func (DownMsg) MessageType() string { return "caf.Down" }

// FailureMsg is the synthesized error response for a request whose target
// died (or was unreachable) before answering.
type FailureMsg struct {
	Reason ExitReason
	Detail string
}

func (FailureMsg) MessageType() string { return "caf.Failure" }

// TimeoutMsg is delivered through the ordinary mailbox when a behavior's
// After deadline elapses, turning "after(d) >> f" into an ordinary message
// rather than a special control-flow construct.
type TimeoutMsg struct {
	BehaviorGen uint64
}

func (TimeoutMsg) MessageType() string { return "caf.Timeout" }
