// Package actorid defines the node-identity, actor-identity and address
// value types: small, comparable, hashable values passed by value rather
// than by pointer.
package actorid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/google/uuid"
)

// hostIDLen is the length in bytes of the random host-id portion of a node
// id.
const hostIDLen = 20

// NodeID identifies a CAF-Go process: a random 160-bit host-id generated at
// process start, plus the OS process id. Node ids are comparable (used as
// map keys) and totally ordered (used for deterministic handshake
// tie-breaks).
type NodeID struct {
	HostID [hostIDLen]byte
	PID    uint32
}

// None is the special node id meaning "no node".
var None NodeID

// NewNodeID generates a fresh node id for the current process: the 128 bits
// of a random UUIDv4 followed by 32 bits of additional crypto-random data,
// concatenated to the 160-bit host-id.
func NewNodeID() (NodeID, error) {
	var id NodeID

	u, err := uuid.NewRandom()
	if err != nil {
		return id, fmt.Errorf("generating node host-id: %w", err)
	}

	raw := u[:] // 16 bytes from the UUID
	copy(id.HostID[:16], raw)

	extra := make([]byte, hostIDLen-16)
	if _, err := rand.Read(extra); err != nil {
		return id, fmt.Errorf("generating node host-id entropy: %w", err)
	}
	copy(id.HostID[16:], extra)

	id.PID = uint32(os.Getpid())
	return id, nil
}

// IsNone reports whether n is the "no node" sentinel.
func (n NodeID) IsNone() bool {
	return n == None
}

// Less provides a total order over node ids, used to deterministically break
// ties during a BASP handshake: the node with the lower
// id wins a redundant simultaneous connection.
func (n NodeID) Less(other NodeID) bool {
	for i := range n.HostID {
		if n.HostID[i] != other.HostID[i] {
			return n.HostID[i] < other.HostID[i]
		}
	}
	return n.PID < other.PID
}

// String renders the node id as hex(host-id)@pid, for diagnostics.
func (n NodeID) String() string {
	return fmt.Sprintf("%s@%d", hex.EncodeToString(n.HostID[:]), n.PID)
}

// ActorID is a monotonically increasing 64-bit integer, unique within a
// node. Id 0 is reserved "invalid".
type ActorID uint64

// InvalidActorID is the reserved zero value.
const InvalidActorID ActorID = 0

// Address is the pair (node id, actor id). Addresses are comparable and
// hashable but are *not* strong references - holding one does not keep the
// actor alive.
type Address struct {
	Node  NodeID
	Actor ActorID
}

// NoneAddress is the invalid address, comparable to the zero value.
var NoneAddress = Address{Node: None, Actor: InvalidActorID}

// IsNone reports whether a refers to no actor.
func (a Address) IsNone() bool {
	return a.Actor == InvalidActorID && a.Node.IsNone()
}

func (a Address) String() string {
	return fmt.Sprintf("%s/%d", a.Node, a.Actor)
}
