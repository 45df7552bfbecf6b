package basp

import "time"

// Config holds the middleman's tunable configuration options.
type Config struct {
	// HeartbeatInterval is the interval on which a heartbeat frame is sent
	// if no other frame has gone out. Zero disables heartbeating.
	HeartbeatInterval time.Duration

	// MissedHeartbeatsBeforeDead is the number of consecutive heartbeat
	// intervals without an inbound frame before a peer is declared dead.
	MissedHeartbeatsBeforeDead int

	// MaxConsecutiveReads bounds how many frames runConnection processes
	// back-to-back before checking for Shutdown, so a connection under a
	// steady flood of inbound frames still yields periodically.
	MaxConsecutiveReads int

	// EnableTCPNoDelay disables Nagle's algorithm on accepted/dialed TCP
	// connections.
	EnableTCPNoDelay bool

	// MaxFrameSize bounds a single header+payload unit's payload_len.
	MaxFrameSize uint32

	// ProtocolVersion is sent as operation_data on both handshake opcodes.
	ProtocolVersion uint64
}

// DefaultConfig returns sensible defaults for production use.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:          10 * time.Second,
		MissedHeartbeatsBeforeDead: 3,
		MaxConsecutiveReads:        50,
		EnableTCPNoDelay:           true,
		MaxFrameSize:               1 << 20,
		ProtocolVersion:            1,
	}
}
