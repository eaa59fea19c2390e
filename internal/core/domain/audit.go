package domain

import "time"

// Severity grades security events.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ActivityEntry is an append-only record of a security-relevant action.
type ActivityEntry struct {
	ID           string
	ActorID      *string
	Action       string
	ResourceType *string
	ResourceID   *string
	Details      map[string]any
	IPAddress    *string
	UserAgent    *string
	Success      bool
	ErrorMessage *string
	CreatedAt    time.Time
}

// SecurityEvent is a severity-tagged incident record, optionally linked to a
// user and resolvable by an admin.
type SecurityEvent struct {
	ID          string
	UserID      *string
	EventType   string
	Severity    Severity
	Description string
	IPAddress   *string
	UserAgent   *string
	Details     map[string]any
	Resolved    bool
	ResolvedBy  *string
	ResolvedAt  *time.Time
	CreatedAt   time.Time
}

// LoginHistoryEntry is an immutable record of one login attempt, success or
// failure. It is the source of truth for the suspicious-activity heuristics.
type LoginHistoryEntry struct {
	ID         string
	UserID     *string
	Email      string
	Succeeded  bool
	FailReason *string
	IPAddress  *string
	UserAgent  *string
	DeviceInfo *string
	CreatedAt  time.Time
}

// Common activity actions recorded on the identity paths.
const (
	ActionLogin           = "login"
	ActionLogout          = "logout"
	ActionLogoutAll       = "logout_all"
	ActionRegister        = "register"
	ActionPasswordChange  = "password_change"
	ActionPasswordReset   = "password_reset"
	ActionApproveUser     = "approve_user"
	ActionRejectUser      = "reject_user"
	ActionSuspendUser     = "suspend_user"
	ActionSoftDeleteUser  = "soft_delete_user"
	ActionHardDeleteUser  = "hard_delete_user"
	ActionResolveSecEvent = "resolve_security_event"
)

// Security event types emitted by the identity paths.
const (
	EventAccountLocked      = "account_locked"
	EventAuthSystemError    = "auth_system_error"
	EventSuspiciousActivity = "suspicious_activity"
	EventAccountSuspended   = "account_suspended"
	EventAccountDeleted     = "account_deleted"
	EventPasswordChanged    = "password_changed"
)
