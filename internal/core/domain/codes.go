package domain

// ErrorCode identifies an expected authentication failure mode. Callers render
// UX from the code without string-matching messages.
type ErrorCode string

const (
	CodeMissingCredentials ErrorCode = "MISSING_CREDENTIALS"
	CodeRateLimited        ErrorCode = "RATE_LIMITED"
	CodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	CodeAccountLocked      ErrorCode = "ACCOUNT_LOCKED"
	CodeAccountInactive    ErrorCode = "ACCOUNT_INACTIVE"
	CodeAccountPending     ErrorCode = "ACCOUNT_PENDING"
	CodeAccountRejected    ErrorCode = "ACCOUNT_REJECTED"
	CodeAccountSuspended   ErrorCode = "ACCOUNT_SUSPENDED"
	CodeAccountNotActive   ErrorCode = "ACCOUNT_NOT_ACTIVE"
	CodeSystemError        ErrorCode = "SYSTEM_ERROR"
	CodeInvalidSession     ErrorCode = "INVALID_SESSION"
	CodeUserInactive       ErrorCode = "USER_INACTIVE"
	CodeValidationError    ErrorCode = "VALIDATION_ERROR"
)
