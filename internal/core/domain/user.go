package domain

import (
	"errors"
	"strings"
	"time"
)

// AccountStatus enumerates the account lifecycle states.
type AccountStatus string

const (
	StatusPending   AccountStatus = "pending"
	StatusActive    AccountStatus = "active"
	StatusRejected  AccountStatus = "rejected"
	StatusSuspended AccountStatus = "suspended"
	StatusInactive  AccountStatus = "inactive"
)

// ErrIllegalTransition is returned when a status change violates the lifecycle table.
var ErrIllegalTransition = errors.New("illegal account status transition")

// statusTransitions is the authoritative lifecycle table. Terminal states only
// leave via an explicit admin action listed here.
var statusTransitions = map[AccountStatus][]AccountStatus{
	StatusPending:   {StatusActive, StatusRejected},
	StatusActive:    {StatusSuspended, StatusInactive},
	StatusSuspended: {StatusActive, StatusInactive},
	StatusRejected:  {},
	StatusInactive:  {},
}

// Valid reports whether the value is a known account status.
func (s AccountStatus) Valid() bool {
	_, ok := statusTransitions[s]
	return ok
}

// CanTransition reports whether moving from s to target is a legal lifecycle change.
func (s AccountStatus) CanTransition(target AccountStatus) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// User mirrors the persisted representation in the users table.
type User struct {
	ID                  string
	Email               string
	FirstName           string
	LastName            string
	PasswordHash        string
	PasswordSalt        string
	Role                string
	Status              AccountStatus
	IsActive            bool
	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastLogin           *time.Time
	LastLoginIP         *string
	PasswordChangedAt   time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Locked reports whether the account lockout window is still in effect.
// The lock is orthogonal to Status and clears on its own once the window passes.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// LoginGate evaluates the login precondition (status == active, is_active,
// not locked) and returns the distinct error code for whichever check fails.
// An empty code means login is permitted.
func (u *User) LoginGate(now time.Time) ErrorCode {
	if u.Locked(now) {
		return CodeAccountLocked
	}
	switch u.Status {
	case StatusPending:
		return CodeAccountPending
	case StatusRejected:
		return CodeAccountRejected
	case StatusSuspended:
		return CodeAccountSuspended
	case StatusInactive:
		return CodeAccountInactive
	case StatusActive:
		if !u.IsActive {
			return CodeAccountInactive
		}
		return ""
	default:
		return CodeAccountNotActive
	}
}

// Sanitized returns a copy safe to hand outside the usecase layer.
func (u User) Sanitized() User {
	u.PasswordHash = ""
	u.PasswordSalt = ""
	return u
}

// NormalizeEmail lowercases and trims an email for case-insensitive storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// PasswordHistoryEntry is an immutable record of a previously used password hash.
type PasswordHistoryEntry struct {
	ID           string
	UserID       string
	PasswordHash string
	PasswordSalt string
	CreatedAt    time.Time
}
