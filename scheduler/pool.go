package scheduler

import (
	"context"
	"runtime"
	"sync/atomic"

	"github.com/btcsuite/btclog/v2"
	"golang.org/x/sync/errgroup"
)

// log is the package-level subsystem logger, following the UseLogger
// convention used throughout this module (see internal/baselib/actor).
var log btclog.Logger = btclog.Disabled

// UseLogger sets the package-wide logger used by the scheduler.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// Config configures a Pool.
type Config struct {
	// MaxThreads is the worker count; default = runtime.NumCPU().
	MaxThreads int

	// MaxThroughput bounds how many mailbox elements a single Resume call
	// processes before yielding; default 100.
	MaxThroughput int

	// ExposedQueueCapacity bounds each worker's exposed-queue channel.
	ExposedQueueCapacity int
}

// DefaultConfig returns sensible defaults for production use.
func DefaultConfig() Config {
	return Config{
		MaxThreads:           runtime.NumCPU(),
		MaxThroughput:        100,
		ExposedQueueCapacity: 1024,
	}
}

// Pool is the fixed worker-thread pool. It owns N workers, each with a
// private deque and an exposed queue; Schedule hands new work to workers
// round-robin, and idle workers steal from each other.
type Pool struct {
	cfg     Config
	workers []*worker
	next    atomic.Uint64

	registered atomic.Int64

	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewPool constructs and starts a Pool with cfg.MaxThreads workers.
func NewPool(cfg Config) *Pool {
	if cfg.MaxThreads <= 0 {
		cfg.MaxThreads = runtime.NumCPU()
	}
	if cfg.MaxThroughput <= 0 {
		cfg.MaxThroughput = 100
	}
	if cfg.ExposedQueueCapacity <= 0 {
		cfg.ExposedQueueCapacity = 1024
	}

	p := &Pool{cfg: cfg}
	p.workers = make([]*worker, cfg.MaxThreads)
	for i := range p.workers {
		p.workers[i] = newWorker(i, p, cfg.ExposedQueueCapacity)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	group, gctx := errgroup.WithContext(ctx)
	p.group = group

	for _, w := range p.workers {
		w := w
		group.Go(func() error {
			for gctx.Err() == nil {
				w.runOnce(gctx, p.cfg.MaxThroughput)
			}
			return nil
		})
	}

	return p
}

func (p *Pool) workerList() []*worker {
	return p.workers
}

// Schedule delivers r to some worker's exposed queue. The choice is
// round-robin on the producer side; work-stealing on the consumer side
// ensures no worker starves.
func (p *Pool) Schedule(r Resumable) {
	idx := p.next.Add(1) % uint64(len(p.workers))
	w := p.workers[idx]

	select {
	case w.exposed <- r:
	default:
		// Exposed queue full: fan out to the next worker rather than
		// block the caller (which may itself be a scheduler worker).
		for _, other := range p.workers {
			select {
			case other.exposed <- r:
				return
			default:
			}
		}
		// All exposed queues are saturated; block on the originally
		// chosen worker as a last resort.
		w.exposed <- r
	}
}

// EnterRegistered increments the "registered" gate used to know when it is
// safe to shut the system down.
func (p *Pool) EnterRegistered() {
	p.registered.Add(1)
}

// ExitRegistered decrements the registered gate.
func (p *Pool) ExitRegistered() {
	p.registered.Add(-1)
}

// RegisteredCount returns the current registered-actor count.
func (p *Pool) RegisteredCount() int64 {
	return p.registered.Load()
}

// Shutdown stops accepting new work and joins every worker goroutine.
func (p *Pool) Shutdown() {
	p.cancel()
	_ = p.group.Wait()
}
