package port

import (
	"context"
	"time"

	"github.com/gosgconsulting/cms-identity/internal/core/domain"
)

// AuditRepository persists activity entries, security events, and login history.
type AuditRepository interface {
	AppendActivity(ctx context.Context, entry domain.ActivityEntry) error
	AppendSecurityEvent(ctx context.Context, event domain.SecurityEvent) error
	ResolveSecurityEvent(ctx context.Context, eventID, resolvedBy string, at time.Time) error
	AppendLoginHistory(ctx context.Context, entry domain.LoginHistoryEntry) error

	CountFailedLoginsSince(ctx context.Context, userID string, since time.Time) (int, error)
	HasSuccessfulLoginFromIP(ctx context.Context, userID, ip string, since time.Time) (bool, error)
}
