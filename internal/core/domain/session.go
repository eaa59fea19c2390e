package domain

import "time"

// Session represents a persisted login session. Only SHA-256 hashes of the
// access and refresh tokens are stored; the raw tokens leave the service
// exactly once, at creation.
type Session struct {
	ID               string
	UserID           string
	AccessTokenHash  string
	RefreshTokenHash string
	IPAddress        *string
	UserAgent        *string
	DeviceInfo       *string
	CreatedAt        time.Time
	LastActivity     time.Time
	ExpiresAt        time.Time
	IsActive         bool
}

// Usable reports whether the session can still validate at the supplied moment.
// The owning user's login gate is checked separately by the caller.
func (s Session) Usable(at time.Time) bool {
	return s.IsActive && s.ExpiresAt.After(at)
}

// Touch updates last-seen metadata when activity occurs on the session.
func (s *Session) Touch(at time.Time, ip, userAgent *string) {
	s.LastActivity = at
	if ip != nil {
		ipCopy := *ip
		s.IPAddress = &ipCopy
	}
	if userAgent != nil {
		uaCopy := *userAgent
		s.UserAgent = &uaCopy
	}
}

// SuspiciousActivity is an advisory flag for admin tooling. It never blocks
// authentication on its own.
type SuspiciousActivity struct {
	Type        string
	Severity    Severity
	Description string
}

const (
	SuspiciousRepeatedFailures   = "repeated_failed_logins"
	SuspiciousUnfamiliarIP       = "login_from_unfamiliar_ip"
	SuspiciousConcurrentSessions = "concurrent_sessions_from_distinct_ips"
)
