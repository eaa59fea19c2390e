package port

import (
	"context"
	"time"

	"github.com/gosgconsulting/cms-identity/internal/core/domain"
)

// SessionRepository deals with session storage.
type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) error
	GetByID(ctx context.Context, sessionID string) (*domain.Session, error)
	Touch(ctx context.Context, sessionID string, at time.Time, ip, userAgent *string) error
	RotateTokens(ctx context.Context, sessionID, accessTokenHash, refreshTokenHash string, at time.Time) error
	Invalidate(ctx context.Context, sessionID string) error
	InvalidateAllForUser(ctx context.Context, userID string, exceptSessionID string) (int, error)
	ListActiveByUser(ctx context.Context, userID string) ([]domain.Session, error)
}
