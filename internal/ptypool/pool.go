package ptypool

import (
	"log/slog"
	"sync"
	"time"
)

// Defaults from spec.md §4.2.
const (
	DefaultCapacity    = 8
	DefaultSweepPeriod = 30 * time.Second
	DefaultIdleTTL     = 5 * time.Minute
	DefaultGracePeriod = 2 * time.Second
)

// Pool is the bounded, directory-keyed idle set of warm Instances (C2).
type Pool struct {
	mu       sync.Mutex
	capacity int
	idleTTL  time.Duration
	grace    time.Duration
	entries  []*Instance
	logger   *slog.Logger

	// cacheHits counts Acquire calls that returned a warm instance; exposed
	// for test hooks per spec.md scenario S-G ("observable via a test hook
	// reporting cache_hit=true").
	cacheHits int
}

// NewPool creates an idle pool with the given capacity (DefaultCapacity if
// capacity <= 0).
func NewPool(capacity int, idleTTL, grace time.Duration, logger *slog.Logger) *Pool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{capacity: capacity, idleTTL: idleTTL, grace: grace, logger: logger}
}

// Acquire returns an idle instance whose working directory strictly equals
// dir, if any. PTYs carry shell state so no cross-directory reuse is
// attempted. Returns (nil, false) on miss.
func (p *Pool) Acquire(dir string) (*Instance, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for idx, inst := range p.entries {
		if inst.WorkingDir() == dir {
			p.entries = append(p.entries[:idx], p.entries[idx+1:]...)
			inst.MarkAttached()
			p.cacheHits++
			return inst, true
		}
	}
	return nil, false
}

// Release admits inst into the pool if there is capacity and it is healthy;
// otherwise it is terminated immediately. Terminate runs outside the lock so
// no I/O happens while held (spec.md §5 shared-resource policy).
func (p *Pool) Release(inst *Instance) {
	p.mu.Lock()
	admit := len(p.entries) < p.capacity && inst.IsHealthy()
	if admit {
		inst.MarkIdle(time.Now())
		p.entries = append(p.entries, inst)
	}
	p.mu.Unlock()

	if !admit {
		inst.Terminate(p.grace)
	}
}

// Len returns the current idle pool size.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// CacheHits returns the number of Acquire calls that hit a warm instance.
// Test hook per spec.md scenario S-G.
func (p *Pool) CacheHits() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cacheHits
}

// Sweep terminates any entry that has exceeded the idle TTL or failed its
// health check. Intended to be called on a periodic timer (T_SWEEP).
func (p *Pool) Sweep() {
	now := time.Now()

	p.mu.Lock()
	var stale []*Instance
	kept := p.entries[:0]
	for _, inst := range p.entries {
		if !inst.IsHealthy() || now.Sub(inst.IdleSince()) > p.idleTTL {
			stale = append(stale, inst)
			continue
		}
		kept = append(kept, inst)
	}
	p.entries = kept
	p.mu.Unlock()

	for _, inst := range stale {
		p.logger.Info("evicting idle pty instance", "instance_id", inst.ID(), "dir", inst.WorkingDir())
		inst.Terminate(p.grace)
	}
}

// Run drives periodic Sweep calls until ctx-like stop channel closes. Callers
// typically spawn this as a background task (spec.md §5 "idle-pool sweeper").
func (p *Pool) Run(stop <-chan struct{}, period time.Duration) {
	if period <= 0 {
		period = DefaultSweepPeriod
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.Sweep()
		}
	}
}

// Drain terminates every idle instance currently held, e.g. at shutdown.
func (p *Pool) Drain() {
	p.mu.Lock()
	entries := p.entries
	p.entries = nil
	p.mu.Unlock()

	for _, inst := range entries {
		inst.Terminate(p.grace)
	}
}
