// Package health probes the server's backing dependencies and caches
// the latest verdict for the /healthz endpoint.
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Pinger is a dependency that can report liveness. pgxpool.Pool and
// redis.Client both expose a compatible Ping through small adapters.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to the Pinger interface.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// Config holds checker configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
}

// Status is the cached verdict for one dependency.
type Status struct {
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker periodically probes named dependencies.
type Checker struct {
	deps   map[string]Pinger
	cfg    Config
	logger *zap.Logger

	mu     sync.RWMutex
	status map[string]Status
}

// New creates a Checker.
func New(cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	return &Checker{
		deps:   make(map[string]Pinger),
		cfg:    cfg,
		logger: logger,
		status: make(map[string]Status),
	}
}

// Register adds a named dependency. Not safe to call after Run starts.
func (c *Checker) Register(name string, p Pinger) {
	c.deps[name] = p
}

// Run probes all dependencies on the configured interval until ctx is
// cancelled. An immediate first pass runs before the ticker starts.
func (c *Checker) Run(ctx context.Context) {
	c.probeAll(ctx)

	ticker := time.NewTicker(c.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.probeAll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Checker) probeAll(ctx context.Context) {
	for name, dep := range c.deps {
		probeCtx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
		err := dep.Ping(probeCtx)
		cancel()

		st := Status{Healthy: err == nil, CheckedAt: time.Now().UTC()}
		if err != nil {
			st.Error = err.Error()
			c.logger.Warn("dependency unhealthy", zap.String("dependency", name), zap.Error(err))
		}

		c.mu.Lock()
		c.status[name] = st
		c.mu.Unlock()
	}
}

// Snapshot returns the latest per-dependency verdicts and whether every
// dependency is healthy. Dependencies never probed yet count as healthy
// so startup is not reported as an outage.
func (c *Checker) Snapshot() (map[string]Status, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]Status, len(c.status))
	ok := true
	for name, st := range c.status {
		out[name] = st
		if !st.Healthy {
			ok = false
		}
	}
	return out, ok
}
