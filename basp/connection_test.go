package basp

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cafgo/caf/internal/baselib/actorid"
)

func TestConnHandleStateTransitions(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ch := NewConnHandle(client, AwaitingServerHandshake)
	require.Equal(t, AwaitingServerHandshake, ch.State())

	ch.setState(Ready)
	require.Equal(t, Ready, ch.State())
	require.Equal(t, "ready", ch.State().String())
}

func TestConnHandleSendReadFrameRoundTrip(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client := NewConnHandle(clientConn, AwaitingServerHandshake)
	server := NewConnHandle(serverConn, AwaitingClientHandshake)

	node := actorid.NodeID{PID: 1}
	payload := []byte("hello")

	done := make(chan error, 1)
	go func() {
		done <- client.Send(Header{
			Operation: OpDirectMessage, DestNode: node, DestActor: 1,
		}, payload)
	}()

	frame, err := server.ReadFrame(1 << 16)
	require.NoError(t, err)
	require.NoError(t, <-done)

	require.Equal(t, OpDirectMessage, frame.Header.Operation)
	require.Equal(t, payload, frame.Payload)
	require.Equal(t, uint64(1), frame.Header.SequenceNumber)
}

func TestConnHandleRejectsSequenceGap(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client := NewConnHandle(clientConn, AwaitingServerHandshake)
	server := NewConnHandle(serverConn, AwaitingClientHandshake)

	node := actorid.NodeID{PID: 1}

	// Manually bump client's outbound sequence counter so the first frame
	// it sends skips ahead, simulating a dropped/reordered frame.
	client.nextOutboundSeq()

	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Send(Header{Operation: OpDirectMessage, DestNode: node, DestActor: 1}, nil)
	}()

	_, err := server.ReadFrame(1 << 16)
	require.Error(t, err)
	require.NoError(t, <-errCh)
}

func TestConnHandleHeartbeatDoesNotAdvanceSequence(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client := NewConnHandle(clientConn, AwaitingServerHandshake)
	server := NewConnHandle(serverConn, AwaitingClientHandshake)

	go func() {
		_ = client.SendHeartbeat()
	}()
	frame, err := server.ReadFrame(1 << 16)
	require.NoError(t, err)
	require.Equal(t, OpHeartbeat, frame.Header.Operation)

	node := actorid.NodeID{PID: 1}
	go func() {
		_ = client.Send(Header{Operation: OpDirectMessage, DestNode: node, DestActor: 1}, nil)
	}()
	frame, err = server.ReadFrame(1 << 16)
	require.NoError(t, err)
	require.Equal(t, uint64(1), frame.Header.SequenceNumber)
}

func TestConnHandleReadFrameRejectsOversizedPayload(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client := NewConnHandle(clientConn, AwaitingServerHandshake)
	server := NewConnHandle(serverConn, AwaitingClientHandshake)

	node := actorid.NodeID{PID: 1}
	go func() {
		_ = client.Send(Header{
			Operation: OpDirectMessage, DestNode: node, DestActor: 1,
		}, make([]byte, 64))
	}()

	_, err := server.ReadFrame(8)
	require.Error(t, err)
}

func TestConnHandleCloseIsIdempotent(t *testing.T) {
	conn, peer := net.Pipe()
	defer peer.Close()

	ch := NewConnHandle(conn, Ready)
	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())
	require.Equal(t, Closed, ch.State())
}

func TestConnHandleIdleSinceAdvancesAfterActivity(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client := NewConnHandle(clientConn, Ready)

	time.Sleep(5 * time.Millisecond)
	sinceSend, _ := client.IdleSince()
	require.Greater(t, sinceSend, time.Duration(0))
}
