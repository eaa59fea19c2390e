package port

import (
	"context"
	"time"
)

// ResetTokenStore persists single-use password reset tokens, keyed by token
// hash, with a TTL. Only hashes are stored.
type ResetTokenStore interface {
	Store(ctx context.Context, tokenHash, userID string, ttl time.Duration) error
	Consume(ctx context.Context, tokenHash string) (userID string, err error)
}
