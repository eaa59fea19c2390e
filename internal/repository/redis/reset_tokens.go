package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/gosgconsulting/cms-identity/internal/core/port"
	"github.com/gosgconsulting/cms-identity/internal/repository"
)

const defaultResetPrefix = "identity:reset"

// ResetTokenStore persists password reset token hashes in Redis with a TTL.
// Keys are token hashes; values are the owning user id. Consume deletes the
// key atomically so a token can only ever be used once.
type ResetTokenStore struct {
	client *red.Client
	prefix string
}

// NewResetTokenStore constructs a store with the provided Redis client and key prefix.
func NewResetTokenStore(client *red.Client, keyPrefix string) *ResetTokenStore {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultResetPrefix
	}
	return &ResetTokenStore{client: client, prefix: prefix}
}

// Store saves the token hash with the supplied TTL.
func (s *ResetTokenStore) Store(ctx context.Context, tokenHash, userID string, ttl time.Duration) error {
	switch {
	case tokenHash == "":
		return errors.New("token hash is required")
	case userID == "":
		return errors.New("user id is required")
	case ttl <= 0:
		return errors.New("ttl must be positive")
	}

	if err := s.client.Set(ctx, s.key(tokenHash), userID, ttl).Err(); err != nil {
		return fmt.Errorf("redis set reset token: %w", err)
	}
	return nil
}

// Consume fetches and deletes the token hash in one round trip. A missing or
// expired token maps to repository.ErrNotFound.
func (s *ResetTokenStore) Consume(ctx context.Context, tokenHash string) (string, error) {
	if tokenHash == "" {
		return "", repository.ErrNotFound
	}

	userID, err := s.client.GetDel(ctx, s.key(tokenHash)).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("redis getdel reset token: %w", err)
	}
	return userID, nil
}

func (s *ResetTokenStore) key(tokenHash string) string {
	return fmt.Sprintf("%s:%s", s.prefix, tokenHash)
}

var _ port.ResetTokenStore = (*ResetTokenStore)(nil)
