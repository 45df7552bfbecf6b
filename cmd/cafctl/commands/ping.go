package commands

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/cafgo/caf/basp"
	"github.com/cafgo/caf/internal/baselib/actorid"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Probe a node's BASP listener with a handshake round-trip",
	Long: `ping dials --addr, performs the BASP server_handshake/client_handshake
exchange, and reports the peer's node id and
handshake latency. It does not register a standing connection: the socket
is closed once the handshake completes.`,
	RunE: runPing,
}

func runPing(cmd *cobra.Command, args []string) error {
	if peerAddr == "" {
		return fmt.Errorf("--addr is required")
	}
	timeout, err := time.ParseDuration(dialTimeout)
	if err != nil {
		return fmt.Errorf("invalid --timeout: %w", err)
	}

	self, err := actorid.NewNodeID()
	if err != nil {
		return fmt.Errorf("generating local node id: %w", err)
	}

	start := time.Now()

	conn, err := net.DialTimeout("tcp", peerAddr, timeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", peerAddr, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	cfg := basp.DefaultConfig()

	if err := sendHeader(conn, basp.Header{
		Operation:      basp.OpServerHandshake,
		OperationData:  cfg.ProtocolVersion,
		SourceNode:     self,
		SequenceNumber: 1,
	}); err != nil {
		return fmt.Errorf("sending server_handshake: %w", err)
	}

	serverHS, err := readHeader(conn)
	if err != nil {
		return fmt.Errorf("awaiting peer server_handshake: %w", err)
	}
	if serverHS.Operation != basp.OpServerHandshake {
		return fmt.Errorf("unexpected opcode %s, want server_handshake", serverHS.Operation)
	}
	if serverHS.OperationData != cfg.ProtocolVersion {
		return fmt.Errorf("protocol version mismatch: peer=%d local=%d",
			serverHS.OperationData, cfg.ProtocolVersion)
	}
	peerNode := serverHS.SourceNode

	if err := sendHeader(conn, basp.Header{
		Operation:      basp.OpClientHandshake,
		SourceNode:     self,
		SequenceNumber: 2,
	}); err != nil {
		return fmt.Errorf("sending client_handshake: %w", err)
	}

	clientHS, err := readHeader(conn)
	if err != nil {
		return fmt.Errorf("awaiting peer client_handshake: %w", err)
	}
	if clientHS.Operation != basp.OpClientHandshake {
		return fmt.Errorf("unexpected opcode %s, want client_handshake", clientHS.Operation)
	}

	elapsed := time.Since(start)

	fmt.Printf("peer %s is up (handshake rtt %s)\n", peerNode.String(), elapsed)
	return nil
}

func sendHeader(conn net.Conn, h basp.Header) error {
	_, err := conn.Write(basp.Encode(h))
	return err
}

func readHeader(conn net.Conn) (basp.Header, error) {
	buf := make([]byte, basp.HeaderSize)
	if _, err := readFull(conn, buf); err != nil {
		return basp.Header{}, err
	}
	return basp.Decode(buf)
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
