package usecase

import (
	"context"
	"crypto/hmac"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gosgconsulting/cms-identity/internal/core/domain"
	"github.com/gosgconsulting/cms-identity/internal/core/port"
	"github.com/gosgconsulting/cms-identity/internal/infra/config"
	"github.com/gosgconsulting/cms-identity/internal/infra/logger"
	"github.com/gosgconsulting/cms-identity/internal/infra/security"
	"github.com/gosgconsulting/cms-identity/internal/infra/telemetry"
	"github.com/gosgconsulting/cms-identity/internal/ratelimit"
	"github.com/gosgconsulting/cms-identity/internal/repository"
)

const (
	failReasonUserNotFound    = "user_not_found"
	failReasonInvalidPassword = "invalid_password"
	failReasonAccountState    = "account_state"
	failReasonRateLimited     = "rate_limited"
)

// AuthService coordinates the login path: rate limiting, credential
// verification, the account state gate, session issuance, and audit.
type AuthService struct {
	cfg      *config.AppConfig
	users    port.UserRepository
	sessions port.SessionRepository
	attempts port.AttemptTracker
	audit    *AuditService
	detector *SessionService
	hasher   *security.Hasher
	signer   *security.TokenSigner
	metrics  *telemetry.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewAuthService constructs an AuthService.
func NewAuthService(
	cfg *config.AppConfig,
	users port.UserRepository,
	sessions port.SessionRepository,
	attempts port.AttemptTracker,
	audit *AuditService,
	detector *SessionService,
	hasher *security.Hasher,
	signer *security.TokenSigner,
	metrics *telemetry.Metrics,
	log *zap.Logger,
) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		cfg:      cfg,
		users:    users,
		sessions: sessions,
		attempts: attempts,
		audit:    audit,
		detector: detector,
		hasher:   hasher,
		signer:   signer,
		metrics:  metrics,
		logger:   log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *AuthService) WithClock(clock func() time.Time) *AuthService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// AuthenticateInput carries one login request.
type AuthenticateInput struct {
	Email      string
	Password   string
	IP         string
	UserAgent  string
	DeviceInfo string
}

// Authenticate runs the full login flow. Expected failures come back as a
// result with an error code; the returned error is reserved for misuse of the
// API (nil receiver dependencies), not for runtime failures.
func (s *AuthService) Authenticate(ctx context.Context, input AuthenticateInput) *AuthResult {
	email := domain.NormalizeEmail(input.Email)
	ip := strings.TrimSpace(input.IP)
	now := s.now()

	if email == "" || input.Password == "" {
		return failAuth(domain.CodeMissingCredentials, "email and password are required")
	}

	ipKey := ratelimit.IdentifierIP(ip)
	limited, err := s.attempts.IsLimited(ctx, ipKey)
	if err != nil {
		return s.systemFailure(ctx, "rate limit check", err, nil, input)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return s.systemFailure(ctx, "user lookup", err, nil, input)
	}

	// The durable lock on the user row outranks the process-local limiter:
	// a locked account reports ACCOUNT_LOCKED even when the limiter would
	// have answered first.
	if user != nil && user.Locked(now) {
		s.recordFailure(ctx, user, email, failReasonAccountState, input)
		return failAuth(domain.CodeAccountLocked, "account is temporarily locked")
	}

	if limited {
		if s.metrics != nil {
			s.metrics.RateLimited.Inc()
		}
		s.audit.RecordLoginAttempt(ctx, nil, email, false, failReasonRateLimited, optStr(ip), optStr(input.UserAgent), optStr(input.DeviceInfo))
		return failAuth(domain.CodeRateLimited, "too many attempts, try again later")
	}

	if user == nil {
		// Uniform response; the tracker still counts the attempt against the IP.
		if _, err := s.attempts.RecordFailure(ctx, ipKey); err != nil {
			s.logger.Warn("attempt tracker record failed", zap.Error(err))
		}
		s.countLogin("failure")
		s.audit.RecordLoginAttempt(ctx, nil, email, false, failReasonUserNotFound, optStr(ip), optStr(input.UserAgent), optStr(input.DeviceInfo))
		return failAuth(domain.CodeInvalidCredentials, invalidCredentialsMessage)
	}

	userKey := ratelimit.IdentifierUser(user.ID)
	if limited, err := s.attempts.IsLimited(ctx, userKey); err == nil && limited {
		if s.metrics != nil {
			s.metrics.RateLimited.Inc()
		}
		s.audit.RecordLoginAttempt(ctx, &user.ID, email, false, failReasonRateLimited, optStr(ip), optStr(input.UserAgent), optStr(input.DeviceInfo))
		return failAuth(domain.CodeRateLimited, "too many attempts, try again later")
	}

	if code := user.LoginGate(now); code != "" {
		s.recordFailure(ctx, user, email, failReasonAccountState, input)
		return failAuth(code, gateMessage(code))
	}

	ok, err := s.hasher.Verify(ctx, input.Password, user.PasswordHash, user.PasswordSalt)
	if err != nil {
		return s.systemFailure(ctx, "password verification", err, &user.ID, input)
	}
	if !ok {
		return s.failedPassword(ctx, user, email, input, now)
	}

	return s.succeed(ctx, user, email, input, now)
}

// failedPassword records a wrong-password attempt in the tracker and on the
// durable user row, locking the account once the threshold is reached.
func (s *AuthService) failedPassword(ctx context.Context, user *domain.User, email string, input AuthenticateInput, now time.Time) *AuthResult {
	ipKey := ratelimit.IdentifierIP(strings.TrimSpace(input.IP))
	userKey := ratelimit.IdentifierUser(user.ID)
	if _, err := s.attempts.RecordFailure(ctx, ipKey); err != nil {
		s.logger.Warn("attempt tracker record failed", zap.Error(err))
	}
	if _, err := s.attempts.RecordFailure(ctx, userKey); err != nil {
		s.logger.Warn("attempt tracker record failed", zap.Error(err))
	}

	attempts := user.FailedLoginAttempts + 1
	var lockedUntil *time.Time
	if attempts >= s.cfg.Auth.MaxLoginAttempts {
		deadline := now.Add(s.cfg.Auth.LockoutTime)
		lockedUntil = &deadline
	}

	if err := s.users.RecordFailedAttempt(ctx, user.ID, attempts, lockedUntil); err != nil {
		return s.systemFailure(ctx, "record failed attempt", err, &user.ID, input)
	}

	s.countLogin("failure")
	s.audit.RecordLoginAttempt(ctx, &user.ID, email, false, failReasonInvalidPassword, optStr(input.IP), optStr(input.UserAgent), optStr(input.DeviceInfo))

	if lockedUntil != nil {
		if s.metrics != nil {
			s.metrics.Lockouts.Inc()
		}
		s.audit.LogSecurityEvent(ctx, SecurityEventInput{
			UserID:      &user.ID,
			EventType:   domain.EventAccountLocked,
			Severity:    domain.SeverityHigh,
			Description: fmt.Sprintf("account locked after %d failed login attempts", attempts),
			IP:          optStr(input.IP),
			UserAgent:   optStr(input.UserAgent),
			Details:     map[string]any{"locked_until": lockedUntil.Format(time.RFC3339)},
		})
		s.logger.Warn("account locked",
			zap.String("email", logger.MaskEmail(email)),
			zap.String("ip", logger.MaskIP(input.IP)),
			zap.Int("attempts", attempts),
		)
	}

	return failAuth(domain.CodeInvalidCredentials, invalidCredentialsMessage)
}

func (s *AuthService) succeed(ctx context.Context, user *domain.User, email string, input AuthenticateInput, now time.Time) *AuthResult {
	ip := strings.TrimSpace(input.IP)

	// Legacy hashes migrate to the current parameters on the first
	// successful verification. Failure here is not fatal to the login.
	if s.hasher.NeedsRehash(user.PasswordHash) {
		if encoded, salt, err := s.hasher.Hash(ctx, input.Password); err == nil {
			if err := s.users.UpdatePassword(ctx, user.ID, encoded, salt, user.PasswordChangedAt); err != nil {
				s.logger.Warn("opportunistic rehash failed", zap.Error(err))
			}
		}
	}

	if err := s.attempts.Reset(ctx, ratelimit.IdentifierIP(ip)); err != nil {
		s.logger.Warn("attempt tracker reset failed", zap.Error(err))
	}
	if err := s.attempts.Reset(ctx, ratelimit.IdentifierUser(user.ID)); err != nil {
		s.logger.Warn("attempt tracker reset failed", zap.Error(err))
	}
	if user.FailedLoginAttempts > 0 || user.LockedUntil != nil {
		if err := s.users.ResetFailureCounters(ctx, user.ID); err != nil {
			return s.systemFailure(ctx, "reset failure counters", err, &user.ID, input)
		}
	}

	tokens, err := s.createSession(ctx, user, input, now)
	if err != nil {
		return s.systemFailure(ctx, "create session", err, &user.ID, input)
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, now, optStr(ip)); err != nil {
		s.logger.Warn("update last login failed", zap.Error(err))
	}

	s.countLogin("success")
	if s.metrics != nil {
		s.metrics.SessionsCreated.Inc()
	}
	s.audit.RecordLoginAttempt(ctx, &user.ID, email, true, "", optStr(ip), optStr(input.UserAgent), optStr(input.DeviceInfo))
	s.audit.LogActivity(ctx, ActivityInput{
		ActorID:      &user.ID,
		Action:       domain.ActionLogin,
		ResourceType: strPtr("session"),
		ResourceID:   &tokens.SessionID,
		IP:           optStr(ip),
		UserAgent:    optStr(input.UserAgent),
		Success:      true,
	})

	// Advisory only: flags are recorded for admin tooling, never block login.
	if s.detector != nil {
		for _, flag := range s.detector.DetectSuspiciousActivity(ctx, user.ID, ip) {
			s.audit.LogSecurityEvent(ctx, SecurityEventInput{
				UserID:      &user.ID,
				EventType:   domain.EventSuspiciousActivity,
				Severity:    flag.Severity,
				Description: flag.Description,
				IP:          optStr(ip),
				Details:     map[string]any{"flag": flag.Type},
			})
		}
	}

	sanitized := user.Sanitized()
	return &AuthResult{Success: true, User: &sanitized, Session: tokens}
}

func (s *AuthService) createSession(ctx context.Context, user *domain.User, input AuthenticateInput, now time.Time) (*SessionTokens, error) {
	sessionID := uuid.NewString()

	accessToken, err := s.signer.Issue(user.ID, sessionID, user.Role, now)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	refreshToken, err := security.GenerateSecureToken(32)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	expiresAt := now.Add(s.cfg.Auth.SessionTimeout)
	session := domain.Session{
		ID:               sessionID,
		UserID:           user.ID,
		AccessTokenHash:  security.HashToken(accessToken),
		RefreshTokenHash: security.HashToken(refreshToken),
		IPAddress:        optStr(input.IP),
		UserAgent:        optStr(input.UserAgent),
		DeviceInfo:       optStr(input.DeviceInfo),
		CreatedAt:        now,
		LastActivity:     now,
		ExpiresAt:        expiresAt,
		IsActive:         true,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	return &SessionTokens{
		SessionID:    sessionID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}

// ValidateSession checks a session id and raw access token pair. Every
// mismatch returns the same INVALID_SESSION failure so callers cannot probe
// which check rejected the pair.
func (s *AuthService) ValidateSession(ctx context.Context, sessionID, rawToken, ip, userAgent string) *SessionValidationResult {
	now := s.now()

	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(rawToken) == "" {
		s.countValidation("invalid")
		return failValidation(domain.CodeInvalidSession, invalidSessionMessage)
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.countValidation("invalid")
			return failValidation(domain.CodeInvalidSession, invalidSessionMessage)
		}
		s.countValidation("error")
		s.systemFailure(ctx, "session lookup", err, nil, AuthenticateInput{IP: ip, UserAgent: userAgent})
		return failValidation(domain.CodeSystemError, "internal error")
	}

	tokenHash := security.HashToken(rawToken)
	if !hmac.Equal([]byte(tokenHash), []byte(session.AccessTokenHash)) {
		s.countValidation("invalid")
		return failValidation(domain.CodeInvalidSession, invalidSessionMessage)
	}

	if !session.Usable(now) {
		s.countValidation("invalid")
		return failValidation(domain.CodeInvalidSession, invalidSessionMessage)
	}

	// The signature and embedded claims must still hold: an expired or
	// foreign token never validates even when the hash column matches.
	claims, err := s.signer.Parse(rawToken)
	if err != nil || claims.SessionID != session.ID || claims.UserID != session.UserID {
		s.countValidation("invalid")
		return failValidation(domain.CodeInvalidSession, invalidSessionMessage)
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.countValidation("invalid")
			return failValidation(domain.CodeInvalidSession, invalidSessionMessage)
		}
		s.countValidation("error")
		s.systemFailure(ctx, "session user lookup", err, &session.UserID, AuthenticateInput{IP: ip, UserAgent: userAgent})
		return failValidation(domain.CodeSystemError, "internal error")
	}

	if code := user.LoginGate(now); code != "" {
		s.countValidation("user_inactive")
		return failValidation(domain.CodeUserInactive, "account is no longer active")
	}

	if err := s.sessions.Touch(ctx, session.ID, now, optStr(ip), optStr(userAgent)); err != nil {
		s.logger.Warn("session touch failed", zap.String("session_id", session.ID), zap.Error(err))
	}

	s.countValidation("valid")
	sanitized := user.Sanitized()
	return &SessionValidationResult{Success: true, User: &sanitized, SessionID: session.ID}
}

// RefreshSession exchanges a valid refresh token for a new token pair. The
// refresh token rotates on every use, so a replayed token fails. Session
/// expiry is absolute: refreshing renews the access token, never the session.
func (s *AuthService) RefreshSession(ctx context.Context, sessionID, rawRefreshToken, ip, userAgent string) *AuthResult {
	now := s.now()

	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(rawRefreshToken) == "" {
		return failAuth(domain.CodeInvalidSession, invalidSessionMessage)
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return failAuth(domain.CodeInvalidSession, invalidSessionMessage)
		}
		return s.systemFailure(ctx, "session lookup", err, nil, AuthenticateInput{IP: ip, UserAgent: userAgent})
	}

	tokenHash := security.HashToken(rawRefreshToken)
	if !hmac.Equal([]byte(tokenHash), []byte(session.RefreshTokenHash)) {
		return failAuth(domain.CodeInvalidSession, invalidSessionMessage)
	}
	if !session.Usable(now) {
		return failAuth(domain.CodeInvalidSession, invalidSessionMessage)
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return failAuth(domain.CodeInvalidSession, invalidSessionMessage)
		}
		return s.systemFailure(ctx, "session user lookup", err, &session.UserID, AuthenticateInput{IP: ip, UserAgent: userAgent})
	}
	if code := user.LoginGate(now); code != "" {
		return failAuth(domain.CodeUserInactive, "account is no longer active")
	}

	accessToken, err := s.signer.Issue(user.ID, session.ID, user.Role, now)
	if err != nil {
		return s.systemFailure(ctx, "issue access token", err, &user.ID, AuthenticateInput{IP: ip, UserAgent: userAgent})
	}
	refreshToken, err := security.GenerateSecureToken(32)
	if err != nil {
		return s.systemFailure(ctx, "generate refresh token", err, &user.ID, AuthenticateInput{IP: ip, UserAgent: userAgent})
	}

	if err := s.sessions.RotateTokens(ctx, session.ID, security.HashToken(accessToken), security.HashToken(refreshToken), now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return failAuth(domain.CodeInvalidSession, invalidSessionMessage)
		}
		return s.systemFailure(ctx, "rotate session tokens", err, &user.ID, AuthenticateInput{IP: ip, UserAgent: userAgent})
	}

	sanitized := user.Sanitized()
	return &AuthResult{
		Success: true,
		User:    &sanitized,
		Session: &SessionTokens{
			SessionID:    session.ID,
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			ExpiresAt:    session.ExpiresAt,
		},
	}
}

// Logout invalidates one session. Idempotent: logging out an already
// invalidated session still reports success.
func (s *AuthService) Logout(ctx context.Context, sessionID, userID, ip, userAgent string) *LogoutResult {
	if strings.TrimSpace(sessionID) == "" {
		return &LogoutResult{Success: true}
	}

	if err := s.sessions.Invalidate(ctx, sessionID); err != nil {
		s.logger.Error("logout failed", zap.String("session_id", sessionID), zap.Error(err))
		s.audit.LogSecurityEvent(ctx, SecurityEventInput{
			UserID:      optStr(userID),
			EventType:   domain.EventAuthSystemError,
			Severity:    domain.SeverityCritical,
			Description: "session invalidation failed during logout",
			IP:          optStr(ip),
		})
		return &LogoutResult{Success: false}
	}

	if s.metrics != nil {
		s.metrics.SessionsRevoked.Inc()
	}
	s.audit.LogActivity(ctx, ActivityInput{
		ActorID:      optStr(userID),
		Action:       domain.ActionLogout,
		ResourceType: strPtr("session"),
		ResourceID:   &sessionID,
		IP:           optStr(ip),
		UserAgent:    optStr(userAgent),
		Success:      true,
	})

	return &LogoutResult{Success: true}
}

// LogoutAllSessions bulk-invalidates a user's sessions, optionally sparing the
// current one, and returns how many were invalidated.
func (s *AuthService) LogoutAllSessions(ctx context.Context, userID, exceptSessionID string) (int, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, fmt.Errorf("user id is required")
	}

	count, err := s.sessions.InvalidateAllForUser(ctx, userID, exceptSessionID)
	if err != nil {
		return 0, fmt.Errorf("invalidate sessions: %w", err)
	}

	if s.metrics != nil {
		s.metrics.SessionsRevoked.Add(float64(count))
	}
	s.audit.LogActivity(ctx, ActivityInput{
		ActorID:      &userID,
		Action:       domain.ActionLogoutAll,
		ResourceType: strPtr("session"),
		Details:      map[string]any{"sessions_invalidated": count},
		Success:      true,
	})

	return count, nil
}

// recordFailure logs an attempt denied by the account state gate.
func (s *AuthService) recordFailure(ctx context.Context, user *domain.User, email, reason string, input AuthenticateInput) {
	s.countLogin("denied")
	s.audit.RecordLoginAttempt(ctx, &user.ID, email, false, reason, optStr(input.IP), optStr(input.UserAgent), optStr(input.DeviceInfo))
}

// systemFailure handles infrastructure errors on the authentication path: the
// detail stays in the process log and a critical security event; the caller
// only ever sees SYSTEM_ERROR.
func (s *AuthService) systemFailure(ctx context.Context, op string, err error, userID *string, input AuthenticateInput) *AuthResult {
	s.logger.Error("authentication system error", zap.String("op", op), zap.Error(err))
	s.audit.LogSecurityEvent(ctx, SecurityEventInput{
		UserID:      userID,
		EventType:   domain.EventAuthSystemError,
		Severity:    domain.SeverityCritical,
		Description: fmt.Sprintf("internal error during %s", op),
		IP:          optStr(input.IP),
		UserAgent:   optStr(input.UserAgent),
	})
	return failAuth(domain.CodeSystemError, "internal error")
}

func (s *AuthService) countLogin(outcome string) {
	if s.metrics != nil {
		s.metrics.LoginAttempts.WithLabelValues(outcome).Inc()
	}
}

func (s *AuthService) countValidation(outcome string) {
	if s.metrics != nil {
		s.metrics.SessionValidations.WithLabelValues(outcome).Inc()
	}
}

func gateMessage(code domain.ErrorCode) string {
	switch code {
	case domain.CodeAccountLocked:
		return "account is temporarily locked"
	case domain.CodeAccountPending:
		return "account is pending approval"
	case domain.CodeAccountRejected:
		return "account registration was rejected"
	case domain.CodeAccountSuspended:
		return "account is suspended"
	case domain.CodeAccountInactive:
		return "account is deactivated"
	default:
		return "account is not active"
	}
}

func optStr(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
