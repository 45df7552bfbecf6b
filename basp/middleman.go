package basp

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cafgo/caf/caf"
	"github.com/cafgo/caf/internal/baselib/actorid"
	"github.com/cafgo/caf/typeid"
)

// LocalResolver is the subset of system.ActorSystem the Middleman needs:
// resolving an address to a local control block, for both Link/Monitor
// completion and local delivery of inbound remote messages.
type LocalResolver interface {
	Resolve(addr actorid.Address) (*caf.ControlBlock, bool)
}

// Middleman is the networking subsystem hosting BASP. It owns the set of live connections, the routing table and
// the proxy registry, and exposes a caf.Deliver-compatible SendRemote for
// ActorSystem.SetRemoteDeliver plus a caf.Resolver-compatible Resolve that
// composes local resolution with proxy creation.
type Middleman struct {
	cfg      Config
	selfNode actorid.NodeID
	local    LocalResolver
	deliver  caf.Deliver // the ActorSystem's local deliver, used to feed inbound frames and to back new proxies

	registry *typeid.Registry

	proxies *ProxyRegistry
	routes  *RoutingTable

	mu    sync.Mutex
	conns map[actorid.NodeID]*ConnHandle

	listener net.Listener
	wg       sync.WaitGroup

	stop chan struct{}
}

// New constructs a Middleman. registry must be the same type registry used
// to construct outbound messages, so payload encoding agrees on type ids.
func New(cfg Config, selfNode actorid.NodeID, local LocalResolver, deliver caf.Deliver, registry *typeid.Registry) *Middleman {
	mm := &Middleman{
		cfg:      cfg,
		selfNode: selfNode,
		local:    local,
		deliver:  deliver,
		registry: registry,
		conns:    make(map[actorid.NodeID]*ConnHandle),
		stop:     make(chan struct{}),
	}
	mm.proxies = NewProxyRegistry(deliver)
	mm.routes = NewRoutingTable()
	mm.proxies.SetAnnounce(mm.sendAnnounceProxy)
	return mm
}

// Resolve implements caf.Resolver: local addresses go straight to the
// ActorSystem; everything else resolves to (or creates) a proxy.
func (mm *Middleman) Resolve(addr actorid.Address) (*caf.ControlBlock, bool) {
	if addr.Node == mm.selfNode {
		return mm.local.Resolve(addr)
	}
	return mm.proxies.GetOrCreate(addr), true
}

// SendRemote is installed as the ActorSystem's remote-deliver callback: it
// forwards elem to to's node over the connection's direct route, or over
// routed_message via an indirect hop, dropping the message if no route
// exists.
func (mm *Middleman) SendRemote(to actorid.Address, elem *caf.Element) {
	route, ok := mm.routes.Lookup(to.Node)
	if !ok {
		log.DebugS(context.Background(), "basp: no route to node, dropping",
			"dest_node", to.Node.String())
		return
	}

	payload, err := EncodeMessage(mm.registry, elem.Msg)
	if err != nil {
		log.WarnS(context.Background(), "basp: failed to encode outbound message", err)
		return
	}

	op := OpDirectMessage
	destNode := to.Node
	if !route.Direct {
		op = OpRoutedMessage
		destNode = route.Via
	}

	mm.mu.Lock()
	ch, ok := mm.conns[destNode]
	mm.mu.Unlock()
	if !ok {
		return
	}

	h := Header{
		Operation:   op,
		SourceNode:  mm.selfNode,
		DestNode:    to.Node,
		SourceActor: elem.Sender.Actor,
		DestActor:   to.Actor,
	}
	if err := ch.Send(h, payload); err != nil {
		log.WarnS(context.Background(), "basp: send failed", err, "dest_node", destNode.String())
	}
}

// Listen starts accepting inbound connections on addr.
func (mm *Middleman) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("basp: listen: %w", err)
	}
	mm.listener = ln

	mm.wg.Add(1)
	go mm.acceptLoop(ln)
	return nil
}

func (mm *Middleman) acceptLoop(ln net.Listener) {
	defer mm.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-mm.stop:
				return
			default:
				log.WarnS(context.Background(), "basp: accept failed", err)
				return
			}
		}
		mm.setTCPOpts(conn)

		ch := NewConnHandle(conn, AwaitingServerHandshake)
		mm.wg.Add(1)
		go mm.runConnection(ch)
	}
}

// Dial establishes an outbound connection to addr and runs its handshake.
func (mm *Middleman) Dial(addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("basp: dial: %w", err)
	}
	mm.setTCPOpts(conn)

	ch := NewConnHandle(conn, AwaitingServerHandshake)
	ch.markDialer()
	mm.wg.Add(1)
	go mm.runConnection(ch)
	return nil
}

func (mm *Middleman) setTCPOpts(conn net.Conn) {
	if !mm.cfg.EnableTCPNoDelay {
		return
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
}

// runConnection drives one connection end to end: handshake, then the
// frame-read/heartbeat loop, then teardown.
func (mm *Middleman) runConnection(ch *ConnHandle) {
	defer mm.wg.Done()
	defer ch.Close()

	if err := ch.Send(Header{
		Operation:     OpServerHandshake,
		OperationData: mm.cfg.ProtocolVersion,
		SourceNode:    mm.selfNode,
	}, nil); err != nil {
		log.DebugS(context.Background(), "basp: failed sending server_handshake", "err", err)
		return
	}

	if ok := mm.handshake(ch); !ok {
		return
	}

	mm.registerReady(ch)
	defer mm.teardown(ch)

	if mm.cfg.HeartbeatInterval > 0 {
		hbCtx, hbCancel := context.WithCancel(context.Background())
		defer hbCancel()
		go mm.heartbeatLoop(hbCtx, ch)
	}

	for {
		for n := 0; n < mm.cfg.MaxConsecutiveReads; n++ {
			frame, err := ch.ReadFrame(mm.cfg.MaxFrameSize)
			if err != nil {
				log.DebugS(context.Background(), "basp: connection closed",
					"peer_node", ch.PeerNode().String(), "err", err)
				return
			}
			mm.handleFrame(ch, frame)
		}

		// MaxConsecutiveReads frames handled without a gap: yield here so a
		// connection saturated with inbound traffic still notices Shutdown
		// promptly instead of only reacting between individual ReadFrame
		// calls.
		select {
		case <-mm.stop:
			return
		default:
		}
	}
}

// handshake consumes frames until the peer's server_handshake and then
// client_handshake have both arrived, validating protocol version, the
// no-self-loop rule, and the lower-node-id tie-break for duplicate
// connections.
func (mm *Middleman) handshake(ch *ConnHandle) bool {
	frame, err := ch.ReadFrame(mm.cfg.MaxFrameSize)
	if err != nil || frame.Header.Operation != OpServerHandshake {
		return false
	}
	if frame.Header.OperationData != mm.cfg.ProtocolVersion {
		log.DebugS(context.Background(), "basp: protocol version mismatch")
		return false
	}
	peer := frame.Header.SourceNode
	if peer == mm.selfNode {
		log.DebugS(context.Background(), "basp: rejecting self-loop connection")
		return false
	}
	ch.setPeerNode(peer)

	if !mm.claimConn(peer, ch) {
		// Lost the dialer tie-break to an existing connection; this one is
		// the redundant duplicate and tears itself down.
		return false
	}

	ch.setState(AwaitingClientHandshake)
	if err := ch.Send(Header{Operation: OpClientHandshake, SourceNode: mm.selfNode}, nil); err != nil {
		return false
	}

	frame, err = ch.ReadFrame(mm.cfg.MaxFrameSize)
	if err != nil || frame.Header.Operation != OpClientHandshake {
		return false
	}

	ch.setState(Ready)
	return true
}

// claimConn registers ch as the authoritative connection for peer, resolving
// a concurrent duplicate (two connections racing to the same peer, e.g. a
// simultaneous dial/accept) atomically under mu rather than by separately
// checking State() after the fact. The tie-break is decided by which end
// dialed, not by arrival order: the physical connection whose dialer has
// the lower node id always wins. Dialer identity is a fact both ends of a
// connection observe identically, so this converges on the same surviving
// connection at both nodes regardless of which end's claimConn call runs
// first - a plain self-vs-peer id comparison cannot guarantee that, since
// each end would otherwise pick independently based on its own local
// arrival order.
func (mm *Middleman) claimConn(peer actorid.NodeID, ch *ConnHandle) bool {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	if existing, dup := mm.conns[peer]; dup && existing != ch {
		if !mm.dialerHasLowerID(peer, ch) {
			return false
		}
		existing.Close()
	}
	mm.conns[peer] = ch
	return true
}

// dialerHasLowerID reports whether ch's dialer has the lower node id of the
// pair (mm.selfNode, peer): ch itself if ch.isDialer(), otherwise peer.
func (mm *Middleman) dialerHasLowerID(peer actorid.NodeID, ch *ConnHandle) bool {
	if ch.isDialer() {
		return mm.selfNode.Less(peer)
	}
	return peer.Less(mm.selfNode)
}

func (mm *Middleman) registerReady(ch *ConnHandle) {
	mm.routes.SetDirect(ch.PeerNode())
}

func (mm *Middleman) teardown(ch *ConnHandle) {
	peer := ch.PeerNode()

	mm.mu.Lock()
	stillCurrent := mm.conns[peer] == ch
	if stillCurrent {
		delete(mm.conns, peer)
	}
	mm.mu.Unlock()

	if !stillCurrent {
		// A newer connection already claimed peer (see claimConn); this
		// one lost the tie-break, so it must not invalidate routes/proxies
		// the survivor owns.
		return
	}

	unreachable := mm.routes.InvalidateVia(peer)
	for _, node := range unreachable {
		mm.proxies.KillAllForNode(node, caf.RemoteLinkUnreachable)
	}
}

func (mm *Middleman) heartbeatLoop(ctx context.Context, ch *ConnHandle) {
	ticker := time.NewTicker(mm.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sinceSend, sinceRecv := ch.IdleSince()
			deadAfter := time.Duration(mm.cfg.MissedHeartbeatsBeforeDead) * mm.cfg.HeartbeatInterval
			if sinceRecv > deadAfter {
				log.WarnS(ctx, "basp: peer missed heartbeat deadline, closing",
					fmt.Errorf("idle %s > %s", sinceRecv, deadAfter))
				ch.Close()
				return
			}
			if sinceSend >= mm.cfg.HeartbeatInterval {
				if err := ch.SendHeartbeat(); err != nil {
					return
				}
			}
		}
	}
}

func (mm *Middleman) handleFrame(ch *ConnHandle, frame Frame) {
	switch frame.Header.Operation {
	case OpHeartbeat:
		return

	case OpDirectMessage, OpRoutedMessage:
		mm.handleMessageFrame(ch, frame)

	case OpAnnounceProxy:
		// The origin is telling us it created a proxy for one of our local
		// actors; nothing to do until it sends kill_proxy.
		return

	case OpKillProxy:
		addr := actorid.Address{Node: frame.Header.SourceNode, Actor: frame.Header.SourceActor}
		mm.proxies.Kill(addr, caf.Normal)

	default:
		log.DebugS(context.Background(), "basp: unexpected opcode on established connection",
			"op", frame.Header.Operation.String())
	}
}

func (mm *Middleman) handleMessageFrame(ch *ConnHandle, frame Frame) {
	dest := actorid.Address{Node: frame.Header.DestNode, Actor: frame.Header.DestActor}

	if dest.Node != mm.selfNode {
		mm.forwardRaw(dest, frame)
		return
	}

	msg, err := DecodeMessage(mm.registry, frame.Payload)
	if err != nil {
		log.WarnS(context.Background(), "basp: failed to decode inbound message", err)
		return
	}

	source := actorid.Address{Node: frame.Header.SourceNode, Actor: frame.Header.SourceActor}
	mm.deliver(dest, &caf.Element{Sender: source, Msg: msg})
}

// forwardRaw repackages an inbound frame destined for a third node as
// routed_message without decoding its payload.
func (mm *Middleman) forwardRaw(dest actorid.Address, frame Frame) {
	route, ok := mm.routes.Lookup(dest.Node)
	if !ok {
		log.DebugS(context.Background(), "basp: no route to forward through, dropping",
			"dest_node", dest.Node.String())
		return
	}

	nextHop := dest.Node
	if !route.Direct {
		nextHop = route.Via
	}

	mm.mu.Lock()
	ch, ok := mm.conns[nextHop]
	mm.mu.Unlock()
	if !ok {
		return
	}

	h := frame.Header
	h.Operation = OpRoutedMessage
	if err := ch.Send(h, frame.Payload); err != nil {
		log.WarnS(context.Background(), "basp: forward failed", err, "dest_node", nextHop.String())
	}
}

func (mm *Middleman) sendAnnounceProxy(addr actorid.Address) {
	mm.mu.Lock()
	ch, ok := mm.conns[addr.Node]
	mm.mu.Unlock()
	if !ok {
		return
	}
	_ = ch.Send(Header{
		Operation:   OpAnnounceProxy,
		SourceNode:  mm.selfNode,
		SourceActor: addr.Actor,
		DestNode:    addr.Node,
	}, nil)
}

// Shutdown closes the listener and every live connection.
func (mm *Middleman) Shutdown() {
	close(mm.stop)
	if mm.listener != nil {
		_ = mm.listener.Close()
	}

	mm.mu.Lock()
	conns := make([]*ConnHandle, 0, len(mm.conns))
	for _, ch := range mm.conns {
		conns = append(conns, ch)
	}
	mm.mu.Unlock()

	for _, ch := range conns {
		ch.Close()
	}
	mm.wg.Wait()
}
