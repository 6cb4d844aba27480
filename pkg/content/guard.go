package content

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrRepositoryUnavailable is returned while a GuardedRepository's breaker is open.
var ErrRepositoryUnavailable = errors.New("content: repository unavailable")

// BreakerState represents the state of a repository breaker
type BreakerState int32

const (
	// BreakerClosed lets lookups through.
	BreakerClosed BreakerState = 0
	// BreakerOpen fails lookups fast.
	BreakerOpen BreakerState = 1
	// BreakerHalfOpen lets lookups through until one fails or enough succeed.
	BreakerHalfOpen BreakerState = 2
)

// String returns the string representation of the breaker state
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// GuardOptions configures a GuardedRepository.
type GuardOptions struct {
	// MaxConcurrent bounds in-flight lookups. Zero means unbounded.
	MaxConcurrent int
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold int64
	// ResetTimeout is how long the breaker stays open before probing again.
	ResetTimeout time.Duration
	// HalfOpenSuccesses closes a half-open breaker.
	HalfOpenSuccesses int64
}

// DefaultGuardOptions returns the options used for remote stores.
func DefaultGuardOptions() GuardOptions {
	return GuardOptions{
		MaxConcurrent:     64,
		FailureThreshold:  10,
		ResetTimeout:      30 * time.Second,
		HalfOpenSuccesses: 5,
	}
}

// GuardedRepository wraps a remote Repository with a concurrency limit and a
// circuit breaker so that a failing store does not stall every report render.
// ErrItemNotFound counts as a success.
type GuardedRepository struct {
	inner  Repository
	opts   GuardOptions
	sem    chan struct{}
	logger *zap.Logger
	now    func() time.Time
	active int64 // atomic

	mu       sync.Mutex
	state    BreakerState
	fails    int64
	oks      int64
	openedAt time.Time
}

// NewGuardedRepository wraps inner. Non-positive options take their defaults.
func NewGuardedRepository(inner Repository, opts GuardOptions, logger *zap.Logger) *GuardedRepository {
	defaults := DefaultGuardOptions()
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = defaults.FailureThreshold
	}
	if opts.ResetTimeout <= 0 {
		opts.ResetTimeout = defaults.ResetTimeout
	}
	if opts.HalfOpenSuccesses <= 0 {
		opts.HalfOpenSuccesses = defaults.HalfOpenSuccesses
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	g := &GuardedRepository{
		inner:  inner,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
	if opts.MaxConcurrent > 0 {
		g.sem = make(chan struct{}, opts.MaxConcurrent)
	}
	return g
}

// GetItem implements Repository.
func (g *GuardedRepository) GetItem(ctx context.Context, id RecordID, access Access) (*Item, error) {
	if !g.allow() {
		return nil, ErrRepositoryUnavailable
	}
	if err := g.acquire(ctx); err != nil {
		return nil, err
	}
	defer g.release()

	item, err := g.inner.GetItem(ctx, id, access)
	switch {
	case err == nil, IsNotFound(err):
		g.recordSuccess()
	case ctx.Err() != nil:
		// Cancelled by the caller; says nothing about the store.
	default:
		g.recordFailure(err)
	}
	return item, err
}

// State returns the current breaker state.
func (g *GuardedRepository) State() BreakerState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Active returns the number of in-flight lookups.
func (g *GuardedRepository) Active() int64 {
	return atomic.LoadInt64(&g.active)
}

func (g *GuardedRepository) acquire(ctx context.Context) error {
	if g.sem != nil {
		select {
		case g.sem <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	atomic.AddInt64(&g.active, 1)
	return nil
}

func (g *GuardedRepository) release() {
	atomic.AddInt64(&g.active, -1)
	if g.sem != nil {
		<-g.sem
	}
}

func (g *GuardedRepository) allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != BreakerOpen {
		return true
	}
	if g.now().Sub(g.openedAt) < g.opts.ResetTimeout {
		return false
	}
	g.transition(BreakerHalfOpen)
	return true
}

func (g *GuardedRepository) recordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fails = 0
	if g.state != BreakerHalfOpen {
		return
	}
	g.oks++
	if g.oks >= g.opts.HalfOpenSuccesses {
		g.transition(BreakerClosed)
	}
}

func (g *GuardedRepository) recordFailure(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.oks = 0
	g.fails++
	if g.state == BreakerHalfOpen || (g.state == BreakerClosed && g.fails >= g.opts.FailureThreshold) {
		g.openedAt = g.now()
		g.transition(BreakerOpen)
		g.logger.Warn("Content repository breaker opened",
			zap.Int64("consecutive_failures", g.fails),
			zap.Duration("reset_timeout", g.opts.ResetTimeout),
			zap.Error(err))
	}
}

// transition must be called with mu held.
func (g *GuardedRepository) transition(to BreakerState) {
	if g.state == to {
		return
	}
	g.logger.Info("Content repository breaker state change",
		zap.Stringer("from", g.state),
		zap.Stringer("to", to))
	g.state = to
	switch to {
	case BreakerClosed:
		g.fails, g.oks = 0, 0
	case BreakerHalfOpen:
		g.oks = 0
	}
}
