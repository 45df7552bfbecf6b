// Package system assembles the type registry, scheduler pool, actor object
// model and (optionally) the BASP middleman into a single ActorSystem value:
// global state reified as an explicit value passed by reference, so one
// process can construct multiple independent systems, following the
// ActorSystem/Receptionist pair in internal/baselib/actor/system.go.
package system

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btclog/v2"

	"github.com/cafgo/caf/caf"
	"github.com/cafgo/caf/internal/baselib/actorid"
	"github.com/cafgo/caf/scheduler"
	"github.com/cafgo/caf/typeid"
)

// log is the package-level subsystem logger (teacher's UseLogger
// convention).
var log btclog.Logger = btclog.Disabled

// UseLogger sets the package-wide logger used by the system package.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// ErrShuttingDown is returned by Spawn once Shutdown has begun.
var ErrShuttingDown = fmt.Errorf("system_shutdown")

// Config holds the configuration options that apply to the actor runtime
// (scheduler-facing options live in scheduler.Config; middleman-facing
// options live in basp.Config).
type Config struct {
	Scheduler scheduler.Config

	// UseTimerActorClock selects scheduler.TimerActorClock (heap owned by a
	// single dedicated goroutine reached only through a command channel)
	// over the default scheduler.WallClock (heap guarded by a shared
	// mutex). Both are valid production clocks; this only changes how
	// concurrent access to the timer heap is synchronized.
	UseTimerActorClock bool
}

// DefaultConfig returns sensible defaults for production use.
func DefaultConfig() Config {
	return Config{Scheduler: scheduler.DefaultConfig()}
}

// ActorSystem owns the scheduler pool, the type registry, the actor clock,
// and the local address->control-block registry used to resolve Link/Monitor
// targets and route Tell/Ask deliveries. A Middleman (see the basp package)
// may be attached separately to extend delivery across the network.
type ActorSystem struct {
	cfg Config

	node NodeInfo

	registry *typeid.Registry
	pool     *scheduler.Pool
	clock    scheduler.Clock

	mu        sync.RWMutex
	actors    map[actorid.Address]*caf.LocalActor
	named     map[string]actorid.Address
	nextActor actorid.ActorID
	shutdown  bool

	remoteDeliver caf.Deliver   // set by a Middleman via SetRemoteDeliver
	resolver      caf.Resolver // defaults to the system itself; a Middleman overrides it to also resolve remote addresses
}

// NodeInfo identifies the local CAF-Go node.
type NodeInfo struct {
	ID actorid.NodeID
}

// New constructs an ActorSystem with a fresh node id, type registry (with
// built-ins registered) and scheduler pool.
func New(cfg Config) (*ActorSystem, error) {
	nodeID, err := actorid.NewNodeID()
	if err != nil {
		return nil, fmt.Errorf("generating node id: %w", err)
	}

	var clock scheduler.Clock
	if cfg.UseTimerActorClock {
		clock = scheduler.NewTimerActorClock()
	} else {
		clock = scheduler.NewWallClock()
	}

	as := &ActorSystem{
		cfg:      cfg,
		node:     NodeInfo{ID: nodeID},
		registry: typeid.NewRegistry(),
		pool:     scheduler.NewPool(cfg.Scheduler),
		clock:    clock,
		actors:   make(map[actorid.Address]*caf.LocalActor),
		named:    make(map[string]actorid.Address),
	}
	as.resolver = as
	return as, nil
}

// Registry returns the system's type registry & codec.
func (as *ActorSystem) Registry() *typeid.Registry { return as.registry }

// Pool returns the underlying scheduler pool.
func (as *ActorSystem) Pool() *scheduler.Pool { return as.pool }

// Clock returns the actor clock driving delayed sends/timeouts.
func (as *ActorSystem) Clock() scheduler.Clock { return as.clock }

// NodeID returns this process's node id.
func (as *ActorSystem) NodeID() actorid.NodeID { return as.node.ID }

// LocalDeliver exposes the system's local-delivery function, for a
// Middleman to use as the Deliver every BASP proxy's ControlBlock is
// constructed with (so a proxy's EXIT/DOWN fan-out reaches local
// linked/monitoring actors the same way a genuinely local actor's does).
func (as *ActorSystem) LocalDeliver() caf.Deliver { return as.deliver }

// SetRemoteDeliver installs the function used to forward messages addressed
// to a non-local node (normally wired to a basp.Middleman's SendRemote).
// Until set, sends to remote addresses are dropped as dead letters.
func (as *ActorSystem) SetRemoteDeliver(fn caf.Deliver) {
	as.mu.Lock()
	as.remoteDeliver = fn
	as.mu.Unlock()
}

// SetResolver overrides the caf.Resolver every newly spawned actor is wired
// with (an attached Middleman passes itself, so Link/Monitor against a
// remote address creates/consults a BASP proxy instead of failing to
// resolve). Actors spawned before this call keep whatever resolver they
// were given at spawn time.
func (as *ActorSystem) SetResolver(r caf.Resolver) {
	as.mu.Lock()
	as.resolver = r
	as.mu.Unlock()
}

func (as *ActorSystem) currentResolver() caf.Resolver {
	as.mu.RLock()
	defer as.mu.RUnlock()
	return as.resolver
}

// Resolve implements caf.Resolver: it returns the local control block for
// addr if addr names a live actor on this node.
func (as *ActorSystem) Resolve(addr actorid.Address) (*caf.ControlBlock, bool) {
	as.mu.RLock()
	defer as.mu.RUnlock()

	a, ok := as.actors[addr]
	if !ok {
		return nil, false
	}
	return a.ControlBlock(), true
}

// deliver is the caf.Deliver implementation every actor's ControlBlock is
// constructed with: local addresses are dispatched directly to the target's
// mailbox and (re)scheduled on Awaken; addresses on a different node fall
// through to the configured remote deliver function, or are dropped.
func (as *ActorSystem) deliver(to actorid.Address, elem *caf.Element) {
	if to.Node == as.node.ID || to.Node.IsNone() {
		as.mu.RLock()
		a, ok := as.actors[to]
		as.mu.RUnlock()

		if !ok {
			log.DebugS(context.Background(), "dropping message to unknown local actor",
				"dest", to.String())
			return
		}

		if a.Mailbox().Enqueue(elem) == caf.Awaken {
			a.Schedule()
		}
		return
	}

	as.mu.RLock()
	remote := as.remoteDeliver
	as.mu.RUnlock()

	if remote == nil {
		log.DebugS(context.Background(), "dropping message to unreachable remote node",
			"dest", to.String())
		return
	}
	remote(to, elem)
}

// SpawnOptions configures a newly spawned actor.
type SpawnOptions struct {
	// Name, if non-empty, registers the actor for lookup via Named.
	Name string

	// Registered marks the actor as holding the "registered" flag that
	// prevents shutdown while true.
	Registered bool
}

// Spawn creates a new local, event-based actor running initial, schedules
// it, and returns its address.
func (as *ActorSystem) Spawn(initial caf.Behavior, opts SpawnOptions) (actorid.Address, error) {
	as.mu.Lock()
	if as.shutdown {
		as.mu.Unlock()
		return actorid.Address{}, ErrShuttingDown
	}
	as.nextActor++
	addr := actorid.Address{Node: as.node.ID, Actor: as.nextActor}
	as.mu.Unlock()

	mailbox := caf.NewMailbox()
	cb := caf.NewControlBlock(addr, mailbox, as.deliver)
	cb.SetRegistered(opts.Registered)

	localActor := caf.NewLocalActor(cb, initial, as.pool, as.clock)
	localActor.SetResolver(as.currentResolver())

	as.mu.Lock()
	as.actors[addr] = localActor
	if opts.Name != "" {
		as.named[opts.Name] = addr
	}
	as.mu.Unlock()

	if opts.Registered {
		as.pool.EnterRegistered()
		cb.Attach(func(caf.ExitReason) { as.pool.ExitRegistered() })
	}

	localActor.Schedule()
	return addr, nil
}

// ActorCount returns the number of actors currently tracked by the system
// (including terminated-but-not-yet-reaped ones).
func (as *ActorSystem) ActorCount() int {
	as.mu.RLock()
	defer as.mu.RUnlock()
	return len(as.actors)
}

// Named looks up an actor spawned with SpawnOptions.Name.
func (as *ActorSystem) Named(name string) (actorid.Address, bool) {
	as.mu.RLock()
	defer as.mu.RUnlock()
	addr, ok := as.named[name]
	return addr, ok
}

// Tell sends msg to addr fire-and-forget from outside any actor (e.g. from
// a test or from cmd/cafnode's bootstrap code).
func (as *ActorSystem) Tell(addr actorid.Address, msg caf.Message) {
	as.deliver(addr, &caf.Element{Sender: actorid.NoneAddress, ID: caf.Async, Msg: msg})
}

// Shutdown is the barrier: stop accepting new actors, wait for the
// registered-actor count to reach zero (or until ctx expires), then stop
// the scheduler pool.
func (as *ActorSystem) Shutdown(ctx context.Context) error {
	as.mu.Lock()
	as.shutdown = true
	as.mu.Unlock()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for as.pool.RegisteredCount() > 0 {
		select {
		case <-ctx.Done():
			log.WarnS(ctx, "system shutdown timed out waiting on registered actors",
				ctx.Err(), "remaining", as.pool.RegisteredCount())
			as.forceKillAll()
			as.pool.Shutdown()
			return ctx.Err()

		case <-ticker.C:
		}
	}

	as.forceKillAll()
	as.pool.Shutdown()

	if sc, ok := as.clock.(interface{ Stop() }); ok {
		sc.Stop()
	}
	return nil
}

func (as *ActorSystem) forceKillAll() {
	as.mu.RLock()
	actors := make([]*caf.LocalActor, 0, len(as.actors))
	for _, a := range as.actors {
		actors = append(actors, a)
	}
	as.mu.RUnlock()

	for _, a := range actors {
		if a.ControlBlock().IsAlive() {
			a.Stop()
		}
	}
}
