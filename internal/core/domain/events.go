package domain

import "time"

// SecurityEventRaised is published to the message bus when a security event is
// recorded, so downstream consumers (alerting, SIEM) can react.
type SecurityEventRaised struct {
	EventID     string
	UserID      *string
	EventType   string
	Severity    Severity
	Description string
	IP          *string
	RaisedAt    time.Time
	Details     map[string]any
}

// UserStatusChangedEvent is published when an admin moves an account through
// the lifecycle table.
type UserStatusChangedEvent struct {
	EventID   string
	UserID    string
	ActorID   string
	From      AccountStatus
	To        AccountStatus
	Reason    string
	ChangedAt time.Time
}

// PasswordChangedEvent is published after a successful password change or reset.
type PasswordChangedEvent struct {
	EventID         string
	UserID          string
	ChangedBy       string
	SessionsRevoked int
	ChangedAt       time.Time
}

// SessionsInvalidatedEvent is published when sessions are bulk-invalidated.
type SessionsInvalidatedEvent struct {
	EventID       string
	UserID        string
	Count         int
	Reason        string
	InvalidatedAt time.Time
}
