package basp

import (
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btclog/v2"

	"github.com/cafgo/caf/internal/baselib/actorid"
)

var log btclog.Logger = btclog.Disabled

// UseLogger sets the package-wide logger used by the basp package.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// ConnState is a single BASP connection's handshake/lifecycle state
//.
type ConnState int32

const (
	AwaitingClientHandshake ConnState = iota
	AwaitingServerHandshake
	Ready
	Closed
)

func (s ConnState) String() string {
	switch s {
	case AwaitingClientHandshake:
		return "awaiting_client_handshake"
	case AwaitingServerHandshake:
		return "awaiting_server_handshake"
	case Ready:
		return "ready"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Frame is one decoded header+payload unit.
type Frame struct {
	Header  Header
	Payload []byte
}

// ConnHandle is a single peer connection: the octet-stream lower layer
// collapsed onto a plain net.Conn, keeping a distinct handle type rather
// than passing net.Conn around raw so callers have a stable, comparable
// identity even across a reconnect.
type ConnHandle struct {
	conn net.Conn

	state atomic.Int32

	dialer bool // true if this end dialed out; false if it accepted the connection

	mu        sync.Mutex
	peerNode  actorid.NodeID
	outboundSeq uint64
	inboundSeq  uint64

	writeMu      sync.Mutex
	lastSentAt   atomic.Int64 // unix nanos
	lastRecvAt   atomic.Int64

	closeOnce sync.Once
	closeErr  error
}

// NewConnHandle wraps an already-established net.Conn. initial is the
// starting handshake state; the Middleman starts both dialed and accepted
// connections in AwaitingServerHandshake, since both ends send their own
// server_handshake and then wait for the peer's.
func NewConnHandle(conn net.Conn, initial ConnState) *ConnHandle {
	ch := &ConnHandle{conn: conn}
	ch.state.Store(int32(initial))
	now := time.Now().UnixNano()
	ch.lastSentAt.Store(now)
	ch.lastRecvAt.Store(now)
	return ch
}

// State returns the connection's current state.
func (ch *ConnHandle) State() ConnState {
	return ConnState(ch.state.Load())
}

func (ch *ConnHandle) setState(s ConnState) {
	ch.state.Store(int32(s))
}

// PeerNode returns the node id learned from the peer's handshake. Only
// meaningful once State() is past AwaitingServerHandshake/AwaitingClientHandshake.
func (ch *ConnHandle) PeerNode() actorid.NodeID {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.peerNode
}

func (ch *ConnHandle) setPeerNode(n actorid.NodeID) {
	ch.mu.Lock()
	ch.peerNode = n
	ch.mu.Unlock()
}

// markDialer records that this end initiated the connection (dialed out,
// as opposed to accepting an inbound connection). Set once, before the
// connection's goroutine starts handling frames.
func (ch *ConnHandle) markDialer() {
	ch.dialer = true
}

func (ch *ConnHandle) isDialer() bool {
	return ch.dialer
}

// nextOutboundSeq allocates this connection's next per-peer outbound
// sequence number.
func (ch *ConnHandle) nextOutboundSeq() uint64 {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.outboundSeq++
	return ch.outboundSeq
}

// checkInboundSeq validates seq against this connection's inbound
// expectation, advancing it on success. A gap is a protocol error.
func (ch *ConnHandle) checkInboundSeq(seq uint64) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if seq != ch.inboundSeq+1 {
		return fmt.Errorf("basp: sequence gap: got %d, want %d", seq, ch.inboundSeq+1)
	}
	ch.inboundSeq = seq
	return nil
}

// Send encodes and writes one header+payload frame. header.SequenceNumber
// and header.PayloadLen are filled in here; heartbeats keep sequence number
// 0 and do not consume an outbound sequence number.
func (ch *ConnHandle) Send(header Header, payload []byte) error {
	if header.Operation != OpHeartbeat {
		header.SequenceNumber = ch.nextOutboundSeq()
	}
	header.PayloadLen = uint32(len(payload))

	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()

	buf := Encode(header)
	if _, err := ch.conn.Write(buf); err != nil {
		return fmt.Errorf("basp: writing header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := ch.conn.Write(payload); err != nil {
			return fmt.Errorf("basp: writing payload: %w", err)
		}
	}
	ch.lastSentAt.Store(time.Now().UnixNano())
	return nil
}

// SendHeartbeat sends an all-zero-apart-from-opcode heartbeat frame
//.
func (ch *ConnHandle) SendHeartbeat() error {
	return ch.Send(Header{Operation: OpHeartbeat}, nil)
}

// IdleSince returns how long it has been since a frame was last sent, and
// since one was last received.
func (ch *ConnHandle) IdleSince() (sinceSend, sinceRecv time.Duration) {
	now := time.Now()
	sinceSend = now.Sub(time.Unix(0, ch.lastSentAt.Load()))
	sinceRecv = now.Sub(time.Unix(0, ch.lastRecvAt.Load()))
	return
}

// ReadFrame reads exactly one header+payload unit, validating header shape
// and sequence number. maxFrameSize bounds payload_len. This is BASP's
// "configure_read(exactly(header_size))" then "configure_read(exactly(payload_len))"
// pair collapsed onto blocking net.Conn reads.
func (ch *ConnHandle) ReadFrame(maxFrameSize uint32) (Frame, error) {
	hdrBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(ch.conn, hdrBuf); err != nil {
		return Frame{}, err
	}

	h, err := Decode(hdrBuf)
	if err != nil {
		return Frame{}, err
	}
	if !Valid(h) {
		return Frame{}, fmt.Errorf("basp: invalid header for opcode %s", h.Operation)
	}
	if h.PayloadLen > maxFrameSize {
		return Frame{}, fmt.Errorf("basp: payload_len %d exceeds max frame size %d", h.PayloadLen, maxFrameSize)
	}

	if h.Operation != OpHeartbeat {
		if err := ch.checkInboundSeq(h.SequenceNumber); err != nil {
			return Frame{}, err
		}
	}
	ch.lastRecvAt.Store(time.Now().UnixNano())

	var payload []byte
	if h.PayloadLen > 0 {
		payload = make([]byte, h.PayloadLen)
		if _, err := io.ReadFull(ch.conn, payload); err != nil {
			return Frame{}, err
		}
	}

	return Frame{Header: h, Payload: payload}, nil
}

// Close shuts down the underlying connection, idempotently.
func (ch *ConnHandle) Close() error {
	ch.closeOnce.Do(func() {
		ch.setState(Closed)
		ch.closeErr = ch.conn.Close()
	})
	return ch.closeErr
}

