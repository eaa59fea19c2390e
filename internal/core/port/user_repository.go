package port

import (
	"context"
	"time"

	"github.com/gosgconsulting/cms-identity/internal/core/domain"
)

// UserRepository exposes persistence behavior for users and their password history.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateStatus(ctx context.Context, id string, status domain.AccountStatus, isActive bool) error
	UpdatePassword(ctx context.Context, id, passwordHash, passwordSalt string, changedAt time.Time) error
	RecordFailedAttempt(ctx context.Context, id string, attempts int, lockedUntil *time.Time) error
	ResetFailureCounters(ctx context.Context, id string) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time, ip *string) error
	HardDelete(ctx context.Context, id string) error

	ListPasswordHistory(ctx context.Context, userID string, limit int) ([]domain.PasswordHistoryEntry, error)
	AddPasswordHistory(ctx context.Context, entry domain.PasswordHistoryEntry) error
	TrimPasswordHistory(ctx context.Context, userID string, keep int) error
}
