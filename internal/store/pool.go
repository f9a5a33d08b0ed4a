// Pool governs the number of concurrent SQLite connections a store may use
// and enforces a connection acquisition timeout, surfacing StoreError on
// starvation instead of blocking callers indefinitely. The shape is a
// buffered channel standing in for a semaphore, acquired before work and
// released on completion.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/trane-project/scheduler-core/internal/domain"
)

// PoolConfig controls pool capacity and acquisition timeout.
type PoolConfig struct {
	MaxConnections    int           // default: 5
	ConnectionTimeout time.Duration // default: 5s
}

// DefaultPoolConfig returns sane production defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConnections:    5,
		ConnectionTimeout: 5 * time.Second,
	}
}

// Pool is a bounded semaphore with timeout-based acquisition.
type Pool struct {
	mu       sync.Mutex
	sem      chan struct{}
	cfg      PoolConfig
	inUse    int
	timeouts int64
}

// NewPool constructs a Pool. A zero MaxConnections falls back to the
// default capacity.
func NewPool(cfg PoolConfig) *Pool {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = DefaultPoolConfig().MaxConnections
	}
	if cfg.ConnectionTimeout <= 0 {
		cfg.ConnectionTimeout = DefaultPoolConfig().ConnectionTimeout
	}
	return &Pool{
		sem: make(chan struct{}, cfg.MaxConnections),
		cfg: cfg,
	}
}

// Acquire blocks until a slot is free, the pool's ConnectionTimeout
// elapses, or ctx is cancelled. The returned release func must be called
// exactly once.
func (p *Pool) Acquire(ctx context.Context) (release func(), err error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectionTimeout)
	defer cancel()

	select {
	case p.sem <- struct{}{}:
		p.mu.Lock()
		p.inUse++
		p.mu.Unlock()
		return p.releaseFunc(), nil
	case <-timeoutCtx.Done():
		p.mu.Lock()
		p.timeouts++
		p.mu.Unlock()
		return nil, &domain.StoreError{Op: "pool.Acquire", Err: domain.ErrStoreTimeout}
	}
}

func (p *Pool) releaseFunc() func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			p.inUse--
			p.mu.Unlock()
			<-p.sem
		})
	}
}

// Stats reports current pool occupancy, used by tests asserting capacity
// is respected.
type Stats struct {
	InUse    int   `json:"in_use"`
	Capacity int   `json:"capacity"`
	Timeouts int64 `json:"timeouts"`
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		InUse:    p.inUse,
		Capacity: p.cfg.MaxConnections,
		Timeouts: p.timeouts,
	}
}
