package usecase

import (
	"time"

	"github.com/gosgconsulting/cms-identity/internal/core/domain"
	"github.com/gosgconsulting/cms-identity/internal/infra/security"
)

// SessionTokens carries the raw tokens issued at login. The service stores
// only hashes, so this is the single chance for the caller to capture them.
type SessionTokens struct {
	SessionID    string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// AuthResult is the structured outcome of Authenticate. Expected failures set
// ErrorCode instead of raising an error; internal failures are reported as
// CodeSystemError with no detail leaked.
type AuthResult struct {
	Success   bool
	ErrorCode domain.ErrorCode
	Error     string
	User      *domain.User
	Session   *SessionTokens
}

// SessionValidationResult is the structured outcome of ValidateSession.
type SessionValidationResult struct {
	Success   bool
	ErrorCode domain.ErrorCode
	Error     string
	User      *domain.User
	SessionID string
}

// LogoutResult is the structured outcome of Logout.
type LogoutResult struct {
	Success bool
}

// ResetRequestResult is the structured outcome of RequestPasswordReset. Its
// shape and wording are identical whether or not the account exists.
type ResetRequestResult struct {
	Success bool
	Message string
}

// PasswordChangeResult is the structured outcome of ChangePassword and
// ConfirmPasswordReset.
type PasswordChangeResult struct {
	Success             bool
	ErrorCode           domain.ErrorCode
	Error               string
	Strength            *security.StrengthReport
	SessionsInvalidated int
}

// CreateUserResult is the structured outcome of user creation.
type CreateUserResult struct {
	Success   bool
	ErrorCode domain.ErrorCode
	Error     string
	Strength  *security.StrengthReport
	User      *domain.User
}

func failAuth(code domain.ErrorCode, message string) *AuthResult {
	return &AuthResult{ErrorCode: code, Error: message}
}

func failValidation(code domain.ErrorCode, message string) *SessionValidationResult {
	return &SessionValidationResult{ErrorCode: code, Error: message}
}

// invalidCredentialsMessage is shared by every credential failure so callers
// cannot distinguish a missing account from a wrong password.
const invalidCredentialsMessage = "invalid email or password"

// invalidSessionMessage is shared by every session validation failure so
// callers cannot probe which check failed.
const invalidSessionMessage = "session is invalid or expired"
