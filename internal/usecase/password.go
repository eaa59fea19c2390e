package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gosgconsulting/cms-identity/internal/core/domain"
	"github.com/gosgconsulting/cms-identity/internal/core/port"
	"github.com/gosgconsulting/cms-identity/internal/infra/config"
	"github.com/gosgconsulting/cms-identity/internal/infra/logger"
	"github.com/gosgconsulting/cms-identity/internal/infra/security"
	"github.com/gosgconsulting/cms-identity/internal/infra/telemetry"
	"github.com/gosgconsulting/cms-identity/internal/repository"
)

// resetRequestMessage is returned for every reset request, whether or not the
// account exists, so the endpoint cannot be used to enumerate accounts.
const resetRequestMessage = "if the account exists, reset instructions have been sent"

// PasswordService handles password changes, reset requests, and reset
// confirmation.
type PasswordService struct {
	cfg       *config.AppConfig
	users     port.UserRepository
	sessions  port.SessionRepository
	resets    port.ResetTokenStore
	delivery  port.ResetTokenDelivery
	audit     *AuditService
	events    port.EventPublisher
	hasher    *security.Hasher
	validator *security.PasswordValidator
	metrics   *telemetry.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewPasswordService constructs a PasswordService.
func NewPasswordService(
	cfg *config.AppConfig,
	users port.UserRepository,
	sessions port.SessionRepository,
	resets port.ResetTokenStore,
	delivery port.ResetTokenDelivery,
	audit *AuditService,
	events port.EventPublisher,
	hasher *security.Hasher,
	validator *security.PasswordValidator,
	metrics *telemetry.Metrics,
	log *zap.Logger,
) *PasswordService {
	if log == nil {
		log = zap.NewNop()
	}
	return &PasswordService{
		cfg:       cfg,
		users:     users,
		sessions:  sessions,
		resets:    resets,
		delivery:  delivery,
		audit:     audit,
		events:    events,
		hasher:    hasher,
		validator: validator,
		metrics:   metrics,
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *PasswordService) WithClock(clock func() time.Time) *PasswordService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// ChangePasswordInput carries one authenticated password change.
type ChangePasswordInput struct {
	UserID          string
	CurrentPassword string
	NewPassword     string
	KeepSessionID   string
	IP              string
	UserAgent       string
}

// ChangePassword verifies the current password, applies the strength and
// reuse policies, rotates the stored hash, and invalidates every other
// session the user holds.
func (s *PasswordService) ChangePassword(ctx context.Context, input ChangePasswordInput) *PasswordChangeResult {
	now := s.now()

	if input.UserID == "" || input.CurrentPassword == "" || input.NewPassword == "" {
		return &PasswordChangeResult{
			ErrorCode: domain.CodeValidationError,
			Error:     "current and new passwords are required",
		}
	}

	user, err := s.users.GetByID(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &PasswordChangeResult{ErrorCode: domain.CodeInvalidCredentials, Error: invalidCredentialsMessage}
		}
		s.logger.Error("user lookup failed during password change", zap.Error(err))
		return &PasswordChangeResult{ErrorCode: domain.CodeSystemError, Error: "internal error"}
	}

	ok, err := s.hasher.Verify(ctx, input.CurrentPassword, user.PasswordHash, user.PasswordSalt)
	if err != nil {
		s.logger.Error("password verification failed during change", zap.Error(err))
		return &PasswordChangeResult{ErrorCode: domain.CodeSystemError, Error: "internal error"}
	}
	if !ok {
		s.audit.LogActivity(ctx, ActivityInput{
			ActorID:      &user.ID,
			Action:       domain.ActionPasswordChange,
			ResourceType: strPtr("user"),
			ResourceID:   &user.ID,
			IP:           optStr(input.IP),
			Success:      false,
			ErrorMessage: strPtr("current password mismatch"),
		})
		return &PasswordChangeResult{ErrorCode: domain.CodeInvalidCredentials, Error: invalidCredentialsMessage}
	}

	return s.rotate(ctx, user, input.NewPassword, user.ID, input.KeepSessionID, input.IP, input.UserAgent, domain.ActionPasswordChange, now)
}

// RequestPasswordReset issues a single-use reset token for the account behind
// the email, if it exists and is active. The result is identical either way.
func (s *PasswordService) RequestPasswordReset(ctx context.Context, email, ip string) *ResetRequestResult {
	uniform := &ResetRequestResult{Success: true, Message: resetRequestMessage}

	normalized := domain.NormalizeEmail(email)
	if normalized == "" {
		return uniform
	}

	user, err := s.users.GetByEmail(ctx, normalized)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Error("user lookup failed during reset request", zap.Error(err))
		}
		return uniform
	}
	if code := user.LoginGate(s.now()); code != "" && code != domain.CodeAccountLocked {
		// Reset does not resurrect pending, rejected, suspended, or
		// deactivated accounts. A temporary lock may still be reset.
		return uniform
	}

	rawToken, err := security.GenerateSecureToken(32)
	if err != nil {
		s.logger.Error("reset token generation failed", zap.Error(err))
		return uniform
	}

	if err := s.resets.Store(ctx, security.HashToken(rawToken), user.ID, s.cfg.Auth.ResetTokenTTL); err != nil {
		s.logger.Error("reset token store failed", zap.Error(err))
		return uniform
	}

	if s.delivery != nil {
		if err := s.delivery.DeliverResetToken(ctx, user.Email, rawToken); err != nil {
			s.logger.Error("reset token delivery failed",
				zap.String("email", logger.MaskEmail(user.Email)),
				zap.Error(err),
			)
		}
	}

	s.audit.LogActivity(ctx, ActivityInput{
		ActorID:      &user.ID,
		Action:       domain.ActionPasswordReset,
		ResourceType: strPtr("user"),
		ResourceID:   &user.ID,
		Details:      map[string]any{"stage": "requested"},
		IP:           optStr(ip),
		Success:      true,
	})

	return uniform
}

// ConfirmPasswordReset consumes a reset token and sets the new password. The
// token is single-use: a second confirmation with the same token fails.
func (s *PasswordService) ConfirmPasswordReset(ctx context.Context, rawToken, newPassword, ip, userAgent string) *PasswordChangeResult {
	now := s.now()

	if rawToken == "" || newPassword == "" {
		return &PasswordChangeResult{
			ErrorCode: domain.CodeValidationError,
			Error:     "token and new password are required",
		}
	}

	userID, err := s.resets.Consume(ctx, security.HashToken(rawToken))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &PasswordChangeResult{
				ErrorCode: domain.CodeValidationError,
				Error:     "reset token is invalid or expired",
			}
		}
		s.logger.Error("reset token consume failed", zap.Error(err))
		return &PasswordChangeResult{ErrorCode: domain.CodeSystemError, Error: "internal error"}
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &PasswordChangeResult{
				ErrorCode: domain.CodeValidationError,
				Error:     "reset token is invalid or expired",
			}
		}
		s.logger.Error("user lookup failed during reset confirm", zap.Error(err))
		return &PasswordChangeResult{ErrorCode: domain.CodeSystemError, Error: "internal error"}
	}

	result := s.rotate(ctx, user, newPassword, user.ID, "", ip, userAgent, domain.ActionPasswordReset, now)
	if result.Success {
		// A successful reset also clears any lock left by the failed
		// attempts that usually precede a forgotten password.
		if err := s.users.ResetFailureCounters(ctx, user.ID); err != nil {
			s.logger.Warn("failure counter reset failed after password reset", zap.Error(err))
		}
	}
	return result
}

// rotate applies the strength and reuse policies, persists the new hash,
// appends history, invalidates sessions, and emits the audit trail.
func (s *PasswordService) rotate(ctx context.Context, user *domain.User, newPassword, actorID, keepSessionID, ip, userAgent, action string, now time.Time) *PasswordChangeResult {
	report := s.validator.ValidateStrength(newPassword)
	if !report.IsValid {
		return &PasswordChangeResult{
			ErrorCode: domain.CodeValidationError,
			Error:     "password does not meet the strength requirements",
			Strength:  &report,
		}
	}

	reused, err := s.reusesRecentPassword(ctx, user, newPassword)
	if err != nil {
		s.logger.Error("password history check failed", zap.Error(err))
		return &PasswordChangeResult{ErrorCode: domain.CodeSystemError, Error: "internal error"}
	}
	if reused {
		return &PasswordChangeResult{
			ErrorCode: domain.CodeValidationError,
			Error:     "password was used recently and cannot be reused",
			Strength:  &report,
		}
	}

	encoded, salt, err := s.hasher.Hash(ctx, newPassword)
	if err != nil {
		s.logger.Error("password hash failed", zap.Error(err))
		return &PasswordChangeResult{ErrorCode: domain.CodeSystemError, Error: "internal error"}
	}

	if err := s.users.UpdatePassword(ctx, user.ID, encoded, salt, now); err != nil {
		s.logger.Error("password update failed", zap.Error(err))
		return &PasswordChangeResult{ErrorCode: domain.CodeSystemError, Error: "internal error"}
	}

	history := domain.PasswordHistoryEntry{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		PasswordHash: encoded,
		PasswordSalt: salt,
		CreatedAt:    now,
	}
	if err := s.users.AddPasswordHistory(ctx, history); err != nil {
		s.logger.Warn("password history write failed", zap.Error(err))
	}
	if err := s.users.TrimPasswordHistory(ctx, user.ID, s.cfg.Auth.PasswordHistoryDepth); err != nil {
		s.logger.Warn("password history trim failed", zap.Error(err))
	}

	invalidated, err := s.sessions.InvalidateAllForUser(ctx, user.ID, keepSessionID)
	if err != nil {
		s.logger.Error("session invalidation failed after password change", zap.Error(err))
		s.audit.LogSecurityEvent(ctx, SecurityEventInput{
			UserID:      &user.ID,
			EventType:   domain.EventAuthSystemError,
			Severity:    domain.SeverityCritical,
			Description: "failed to invalidate sessions after password change",
			IP:          optStr(ip),
		})
	}

	if s.metrics != nil {
		s.metrics.PasswordChanges.Inc()
		s.metrics.SessionsRevoked.Add(float64(invalidated))
	}

	s.audit.LogActivity(ctx, ActivityInput{
		ActorID:      &actorID,
		Action:       action,
		ResourceType: strPtr("user"),
		ResourceID:   &user.ID,
		Details:      map[string]any{"sessions_invalidated": invalidated},
		IP:           optStr(ip),
		UserAgent:    optStr(userAgent),
		Success:      true,
	})
	s.audit.LogSecurityEvent(ctx, SecurityEventInput{
		UserID:      &user.ID,
		EventType:   domain.EventPasswordChanged,
		Severity:    domain.SeverityLow,
		Description: "account password was changed",
		IP:          optStr(ip),
		UserAgent:   optStr(userAgent),
	})

	if s.events != nil {
		event := domain.PasswordChangedEvent{
			UserID:          user.ID,
			ChangedBy:       actorID,
			SessionsRevoked: invalidated,
			ChangedAt:       now,
		}
		if err := s.events.PublishPasswordChanged(ctx, event); err != nil {
			s.logger.Warn("password change publish failed", zap.Error(err))
		}
	}

	return &PasswordChangeResult{Success: true, Strength: &report, SessionsInvalidated: invalidated}
}

// reusesRecentPassword verifies the candidate against the current hash and the
// recent history window.
func (s *PasswordService) reusesRecentPassword(ctx context.Context, user *domain.User, candidate string) (bool, error) {
	ok, err := s.hasher.Verify(ctx, candidate, user.PasswordHash, user.PasswordSalt)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}

	entries, err := s.users.ListPasswordHistory(ctx, user.ID, s.cfg.Auth.PasswordHistoryDepth)
	if err != nil {
		return false, err
	}
	for _, entry := range entries {
		ok, err := s.hasher.Verify(ctx, candidate, entry.PasswordHash, entry.PasswordSalt)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
