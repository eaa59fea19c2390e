package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gosgconsulting/cms-identity/internal/core/domain"
	"github.com/gosgconsulting/cms-identity/internal/core/port"
	"github.com/gosgconsulting/cms-identity/internal/infra/telemetry"
	"github.com/gosgconsulting/cms-identity/internal/ratelimit"
	"github.com/gosgconsulting/cms-identity/internal/repository"
)

// ErrUserNotFound is returned by account operations targeting a missing user.
var ErrUserNotFound = errors.New("user not found")

// AccountService drives the account status lifecycle. Every transition goes
// through the domain transition table; transitions that revoke access also
// invalidate the user's sessions.
type AccountService struct {
	users    port.UserRepository
	sessions port.SessionRepository
	attempts port.AttemptTracker
	audit    *AuditService
	events   port.EventPublisher
	metrics  *telemetry.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewAccountService constructs an AccountService.
func NewAccountService(
	users port.UserRepository,
	sessions port.SessionRepository,
	attempts port.AttemptTracker,
	audit *AuditService,
	events port.EventPublisher,
	metrics *telemetry.Metrics,
	log *zap.Logger,
) *AccountService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AccountService{
		users:    users,
		sessions: sessions,
		attempts: attempts,
		audit:    audit,
		events:   events,
		metrics:  metrics,
		logger:   log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *AccountService) WithClock(clock func() time.Time) *AccountService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// ApproveUser moves a pending account to active. The failed-attempt counter
// and any lock are cleared so the first real login starts from a clean slate.
func (s *AccountService) ApproveUser(ctx context.Context, userID, actorID string) error {
	user, err := s.transition(ctx, userID, actorID, domain.StatusActive, domain.ActionApproveUser)
	if err != nil {
		return err
	}

	if err := s.users.ResetFailureCounters(ctx, user.ID); err != nil {
		s.logger.Warn("failure counter reset failed after approval", zap.Error(err))
	}
	if s.attempts != nil {
		if err := s.attempts.Reset(ctx, ratelimit.IdentifierUser(user.ID)); err != nil {
			s.logger.Warn("attempt tracker reset failed after approval", zap.Error(err))
		}
	}
	return nil
}

// RejectUser moves a pending account to the terminal rejected state.
func (s *AccountService) RejectUser(ctx context.Context, userID, actorID string) error {
	_, err := s.transition(ctx, userID, actorID, domain.StatusRejected, domain.ActionRejectUser)
	return err
}

// SuspendUser suspends an active account and invalidates every session it
// holds. Existing sessions must stop validating immediately.
func (s *AccountService) SuspendUser(ctx context.Context, userID, actorID, reason string) error {
	user, err := s.transition(ctx, userID, actorID, domain.StatusSuspended, domain.ActionSuspendUser)
	if err != nil {
		return err
	}

	revoked := s.revokeSessions(ctx, user.ID)
	s.audit.LogSecurityEvent(ctx, SecurityEventInput{
		UserID:      &user.ID,
		EventType:   domain.EventAccountSuspended,
		Severity:    domain.SeverityMedium,
		Description: fmt.Sprintf("account suspended by administrator: %s", reason),
		Details:     map[string]any{"sessions_invalidated": revoked, "actor_id": actorID},
	})
	return nil
}

// SoftDeleteUser deactivates an account, keeping the row for audit trails.
// All sessions are invalidated.
func (s *AccountService) SoftDeleteUser(ctx context.Context, userID, actorID string) error {
	user, err := s.transition(ctx, userID, actorID, domain.StatusInactive, domain.ActionSoftDeleteUser)
	if err != nil {
		return err
	}

	revoked := s.revokeSessions(ctx, user.ID)
	s.audit.LogSecurityEvent(ctx, SecurityEventInput{
		UserID:      &user.ID,
		EventType:   domain.EventAccountDeleted,
		Severity:    domain.SeverityMedium,
		Description: "account deactivated by administrator",
		Details:     map[string]any{"sessions_invalidated": revoked, "actor_id": actorID},
	})
	return nil
}

// ReinstateUser returns a suspended account to active. Throttle state is
// cleared the same way approval clears it.
func (s *AccountService) ReinstateUser(ctx context.Context, userID, actorID string) error {
	user, err := s.transition(ctx, userID, actorID, domain.StatusActive, domain.ActionApproveUser)
	if err != nil {
		return err
	}

	if err := s.users.ResetFailureCounters(ctx, user.ID); err != nil {
		s.logger.Warn("failure counter reset failed after reinstatement", zap.Error(err))
	}
	if s.attempts != nil {
		if err := s.attempts.Reset(ctx, ratelimit.IdentifierUser(user.ID)); err != nil {
			s.logger.Warn("attempt tracker reset failed after reinstatement", zap.Error(err))
		}
	}
	return nil
}

// HardDeleteUser permanently removes an account row and its dependents.
// Sessions are invalidated first so a failing delete cannot leave live
// sessions pointing at a half-removed account.
func (s *AccountService) HardDeleteUser(ctx context.Context, userID, actorID string) error {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("load user: %w", err)
	}

	s.revokeSessions(ctx, userID)

	if err := s.users.HardDelete(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("delete user: %w", err)
	}

	s.audit.LogActivity(ctx, ActivityInput{
		ActorID:      &actorID,
		Action:       domain.ActionHardDeleteUser,
		ResourceType: strPtr("user"),
		ResourceID:   &userID,
		Success:      true,
	})
	s.audit.LogSecurityEvent(ctx, SecurityEventInput{
		UserID:      nil,
		EventType:   domain.EventAccountDeleted,
		Severity:    domain.SeverityHigh,
		Description: "account permanently deleted by administrator",
		Details:     map[string]any{"deleted_user_id": userID, "actor_id": actorID},
	})
	return nil
}

// transition loads the user, checks the status transition table, persists the
// new status, and records the activity entry plus the status-changed event.
func (s *AccountService) transition(ctx context.Context, userID, actorID string, to domain.AccountStatus, action string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	if !user.Status.CanTransition(to) {
		s.audit.LogActivity(ctx, ActivityInput{
			ActorID:      &actorID,
			Action:       action,
			ResourceType: strPtr("user"),
			ResourceID:   &userID,
			Success:      false,
			ErrorMessage: strPtr(fmt.Sprintf("illegal transition %s -> %s", user.Status, to)),
		})
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrIllegalTransition, user.Status, to)
	}

	isActive := to == domain.StatusActive
	if err := s.users.UpdateStatus(ctx, userID, to, isActive); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}

	from := user.Status
	user.Status = to
	user.IsActive = isActive

	s.audit.LogActivity(ctx, ActivityInput{
		ActorID:      &actorID,
		Action:       action,
		ResourceType: strPtr("user"),
		ResourceID:   &userID,
		Details:      map[string]any{"from": string(from), "to": string(to)},
		Success:      true,
	})

	if s.events != nil {
		event := domain.UserStatusChangedEvent{
			UserID:    userID,
			ActorID:   actorID,
			From:      from,
			To:        to,
			ChangedAt: s.now(),
		}
		if err := s.events.PublishUserStatusChanged(ctx, event); err != nil {
			s.logger.Warn("status change publish failed", zap.Error(err))
		}
	}

	return user, nil
}

// revokeSessions invalidates every session for the user. Failures are logged
// and surfaced as a critical event rather than aborting the admin operation:
// the status change already landed, so the gate in session validation still
// shuts the account out.
func (s *AccountService) revokeSessions(ctx context.Context, userID string) int {
	count, err := s.sessions.InvalidateAllForUser(ctx, userID, "")
	if err != nil {
		s.logger.Error("bulk session invalidation failed", zap.String("user_id", userID), zap.Error(err))
		s.audit.LogSecurityEvent(ctx, SecurityEventInput{
			UserID:      &userID,
			EventType:   domain.EventAuthSystemError,
			Severity:    domain.SeverityCritical,
			Description: "failed to invalidate sessions during account status change",
		})
		return 0
	}

	if s.metrics != nil {
		s.metrics.SessionsRevoked.Add(float64(count))
	}
	if s.events != nil && count > 0 {
		event := domain.SessionsInvalidatedEvent{
			UserID:        userID,
			Count:         count,
			Reason:        "account_status_change",
			InvalidatedAt: s.now(),
		}
		if err := s.events.PublishSessionsInvalidated(ctx, event); err != nil {
			s.logger.Warn("sessions invalidated publish failed", zap.Error(err))
		}
	}
	return count
}
