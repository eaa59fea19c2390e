package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gosgconsulting/cms-identity/internal/core/domain"
	"github.com/gosgconsulting/cms-identity/internal/core/port"
)

const (
	// suspiciousFailureWindow is how far back repeated failures count.
	suspiciousFailureWindow = time.Hour
	// suspiciousFailureThreshold flags accounts with this many recent failures.
	suspiciousFailureThreshold = 3
	// familiarIPWindow is how far back a source IP counts as familiar.
	familiarIPWindow = 30 * 24 * time.Hour
	// concurrentIPThreshold flags users holding sessions from more than this
	// many distinct addresses.
	concurrentIPThreshold = 3
)

// SessionService reads session inventory and derives suspicious-activity
// advisories from login history.
type SessionService struct {
	sessions port.SessionRepository
	audit    port.AuditRepository
	logger   *zap.Logger
	now      func() time.Time
}

// NewSessionService constructs a SessionService.
func NewSessionService(sessions port.SessionRepository, audit port.AuditRepository, log *zap.Logger) *SessionService {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionService{
		sessions: sessions,
		audit:    audit,
		logger:   log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *SessionService) WithClock(clock func() time.Time) *SessionService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// ListActiveSessions returns the user's live sessions. Token hashes are
// blanked: callers see where sessions run, never material to replay them.
func (s *SessionService) ListActiveSessions(ctx context.Context, userID string) ([]domain.Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	sessions, err := s.sessions.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	for i := range sessions {
		sessions[i].AccessTokenHash = ""
		sessions[i].RefreshTokenHash = ""
	}
	return sessions, nil
}

// DetectSuspiciousActivity derives advisory flags for a login that just
// succeeded. Detection is best-effort: a failing audit store yields fewer
// flags, never an error.
func (s *SessionService) DetectSuspiciousActivity(ctx context.Context, userID, ip string) []domain.SuspiciousActivity {
	now := s.now()
	var flags []domain.SuspiciousActivity

	failures, err := s.audit.CountFailedLoginsSince(ctx, userID, now.Add(-suspiciousFailureWindow))
	if err != nil {
		s.logger.Warn("failed login count unavailable", zap.Error(err))
	} else if failures >= suspiciousFailureThreshold {
		flags = append(flags, domain.SuspiciousActivity{
			Type:        domain.SuspiciousRepeatedFailures,
			Severity:    domain.SeverityMedium,
			Description: fmt.Sprintf("%d failed login attempts in the last hour preceded this login", failures),
		})
	}

	if ip != "" {
		familiar, err := s.audit.HasSuccessfulLoginFromIP(ctx, userID, ip, now.Add(-familiarIPWindow))
		if err != nil {
			s.logger.Warn("login source history unavailable", zap.Error(err))
		} else if !familiar {
			flags = append(flags, domain.SuspiciousActivity{
				Type:        domain.SuspiciousUnfamiliarIP,
				Severity:    domain.SeverityMedium,
				Description: "login from an address not seen in the last 30 days",
			})
		}
	}

	sessions, err := s.sessions.ListActiveByUser(ctx, userID)
	if err != nil {
		s.logger.Warn("session inventory unavailable", zap.Error(err))
	} else {
		distinct := make(map[string]struct{})
		for _, session := range sessions {
			if session.IPAddress != nil && *session.IPAddress != "" {
				distinct[*session.IPAddress] = struct{}{}
			}
		}
		if len(distinct) > concurrentIPThreshold {
			flags = append(flags, domain.SuspiciousActivity{
				Type:        domain.SuspiciousConcurrentSessions,
				Severity:    domain.SeverityHigh,
				Description: fmt.Sprintf("active sessions from %d distinct addresses", len(distinct)),
			})
		}
	}

	return flags
}
