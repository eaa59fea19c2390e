package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gosgconsulting/cms-identity/internal/core/port"
)

// IdentifierIP builds the tracker key for a source address.
func IdentifierIP(ip string) string { return fmt.Sprintf("ip:%s", ip) }

// IdentifierUser builds the tracker key for a user id.
func IdentifierUser(userID string) string { return fmt.Sprintf("user:%s", userID) }

type entry struct {
	count         int
	lastAttemptAt time.Time
}

// Limiter is the process-local failed-attempt tracker. It is an accelerator in
// front of the durable lockout columns on the user row: entries live only in
// this process and expire once the lockout window passes.
type Limiter struct {
	mu          sync.Mutex
	entries     map[string]entry
	maxAttempts int
	window      time.Duration

	sweepEvery time.Duration
	done       chan struct{}
	closeOnce  sync.Once
	logger     *zap.Logger
	now        func() time.Time
}

// Option tweaks Limiter construction.
type Option func(*Limiter)

// WithSweepInterval overrides the background eviction cadence.
func WithSweepInterval(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.sweepEvery = d
		}
	}
}

// WithClock injects a deterministic clock for tests.
func WithClock(clock func() time.Time) Option {
	return func(l *Limiter) {
		if clock != nil {
			l.now = clock
		}
	}
}

// New constructs a Limiter and starts its sweep goroutine. Callers own the
// lifecycle and must call Close on shutdown.
func New(maxAttempts int, window time.Duration, logger *zap.Logger, opts ...Option) *Limiter {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	l := &Limiter{
		entries:     make(map[string]entry),
		maxAttempts: maxAttempts,
		window:      window,
		sweepEvery:  time.Hour,
		done:        make(chan struct{}),
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	go l.sweepLoop()
	return l
}

// IsLimited reports whether the identifier has exhausted its attempt budget
// within the window. Entries older than the window are evicted on read.
func (l *Limiter) IsLimited(_ context.Context, identifier string) (bool, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[identifier]
	if !ok {
		return false, nil
	}
	if now.Sub(e.lastAttemptAt) >= l.window {
		delete(l.entries, identifier)
		return false, nil
	}
	return e.count >= l.maxAttempts, nil
}

// RecordFailure increments the identifier's counter and returns the new count.
// A stale entry restarts from one.
func (l *Limiter) RecordFailure(_ context.Context, identifier string) (int, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[identifier]
	if !ok || now.Sub(e.lastAttemptAt) >= l.window {
		e = entry{}
	}
	e.count++
	e.lastAttemptAt = now
	l.entries[identifier] = e
	return e.count, nil
}

// Reset clears the identifier after a successful authentication. Holding the
// same mutex as RecordFailure linearizes the two for a given identifier.
func (l *Limiter) Reset(_ context.Context, identifier string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, identifier)
	return nil
}

// Len reports the number of tracked identifiers.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Close stops the sweep goroutine. Idempotent.
func (l *Limiter) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(l.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed := l.sweep()
			if removed > 0 {
				l.logger.Debug("rate limiter sweep", zap.Int("evicted", removed))
			}
		case <-l.done:
			return
		}
	}
}

func (l *Limiter) sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, e := range l.entries {
		if now.Sub(e.lastAttemptAt) >= l.window {
			delete(l.entries, id)
			removed++
		}
	}
	return removed
}

var _ port.AttemptTracker = (*Limiter)(nil)
