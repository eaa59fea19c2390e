package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/gosgconsulting/cms-identity/internal/core/port"
)

const defaultAttemptPrefix = "identity:attempts"

// AttemptTracker implements the login throttling gate on Redis sorted sets so
// that horizontally scaled instances share one attempt budget. Each failure is
// a member scored by its timestamp; counting trims the window first.
type AttemptTracker struct {
	client      *red.Client
	prefix      string
	maxAttempts int
	window      time.Duration
	now         func() time.Time
}

// NewAttemptTracker constructs a Redis-backed attempt tracker.
func NewAttemptTracker(client *red.Client, keyPrefix string, maxAttempts int, window time.Duration) *AttemptTracker {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultAttemptPrefix
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &AttemptTracker{
		client:      client,
		prefix:      prefix,
		maxAttempts: maxAttempts,
		window:      window,
		now:         time.Now,
	}
}

// IsLimited reports whether the identifier has exhausted its budget within the window.
func (t *AttemptTracker) IsLimited(ctx context.Context, identifier string) (bool, error) {
	key := t.key(identifier)
	now := t.now().UTC()
	threshold := fmt.Sprintf("%d", now.Add(-t.window).UnixNano())

	if err := t.client.ZRemRangeByScore(ctx, key, "-inf", "("+threshold).Err(); err != nil {
		return false, fmt.Errorf("redis zremrangebyscore: %w", err)
	}

	count, err := t.client.ZCard(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis zcard: %w", err)
	}
	return int(count) >= t.maxAttempts, nil
}

// RecordFailure registers a failed attempt and returns the in-window count.
func (t *AttemptTracker) RecordFailure(ctx context.Context, identifier string) (int, error) {
	key := t.key(identifier)
	now := t.now().UTC()

	pipe := t.client.TxPipeline()
	pipe.ZAdd(ctx, key, red.Z{Score: float64(now.UnixNano()), Member: now.UnixNano()})
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("(%d", now.Add(-t.window).UnixNano()))
	card := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, t.window)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis record attempt: %w", err)
	}
	return int(card.Val()), nil
}

// Reset clears all recorded attempts for the identifier.
func (t *AttemptTracker) Reset(ctx context.Context, identifier string) error {
	if err := t.client.Del(ctx, t.key(identifier)).Err(); err != nil {
		return fmt.Errorf("redis del attempts: %w", err)
	}
	return nil
}

func (t *AttemptTracker) key(identifier string) string {
	return fmt.Sprintf("%s:%s", t.prefix, identifier)
}

var _ port.AttemptTracker = (*AttemptTracker)(nil)
