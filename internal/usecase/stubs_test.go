package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gosgconsulting/cms-identity/internal/core/domain"
	"github.com/gosgconsulting/cms-identity/internal/repository"
)

// stubUsers is an in-memory port.UserRepository.
type stubUsers struct {
	mu      sync.Mutex
	byID    map[string]*domain.User
	history map[string][]domain.PasswordHistoryEntry

	failCreate       error
	failGetByEmail   error
	failRecordFailed error
}

func newStubUsers(users ...*domain.User) *stubUsers {
	s := &stubUsers{
		byID:    make(map[string]*domain.User),
		history: make(map[string][]domain.PasswordHistoryEntry),
	}
	for _, u := range users {
		copied := *u
		s.byID[u.ID] = &copied
	}
	return s
}

func (s *stubUsers) Create(_ context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate != nil {
		return s.failCreate
	}
	for _, existing := range s.byID {
		if existing.Email == user.Email {
			return repository.ErrDuplicate
		}
	}
	copied := user
	s.byID[user.ID] = &copied
	return nil
}

func (s *stubUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *stubUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGetByEmail != nil {
		return nil, s.failGetByEmail
	}
	for _, user := range s.byID {
		if strings.EqualFold(user.Email, email) {
			copied := *user
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *stubUsers) UpdateStatus(_ context.Context, id string, status domain.AccountStatus, isActive bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.Status = status
	user.IsActive = isActive
	return nil
}

func (s *stubUsers) UpdatePassword(_ context.Context, id, hash, salt string, changedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.PasswordHash = hash
	user.PasswordSalt = salt
	user.PasswordChangedAt = changedAt
	return nil
}

func (s *stubUsers) RecordFailedAttempt(_ context.Context, id string, attempts int, lockedUntil *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRecordFailed != nil {
		return s.failRecordFailed
	}
	user, ok := s.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.FailedLoginAttempts = attempts
	user.LockedUntil = lockedUntil
	return nil
}

func (s *stubUsers) ResetFailureCounters(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	return nil
}

func (s *stubUsers) UpdateLastLogin(_ context.Context, id string, at time.Time, ip *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.LastLogin = &at
	user.LastLoginIP = ip
	return nil
}

func (s *stubUsers) HardDelete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.byID, id)
	delete(s.history, id)
	return nil
}

func (s *stubUsers) ListPasswordHistory(_ context.Context, userID string, limit int) ([]domain.PasswordHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.history[userID]
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]domain.PasswordHistoryEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (s *stubUsers) AddPasswordHistory(_ context.Context, entry domain.PasswordHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[entry.UserID] = append(s.history[entry.UserID], entry)
	return nil
}

func (s *stubUsers) TrimPasswordHistory(_ context.Context, userID string, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.history[userID]
	if len(entries) > keep {
		s.history[userID] = entries[len(entries)-keep:]
	}
	return nil
}

func (s *stubUsers) get(id string) *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[id]
}

// stubSessions is an in-memory port.SessionRepository.
type stubSessions struct {
	mu   sync.Mutex
	byID map[string]*domain.Session

	failInvalidate    error
	failInvalidateAll error
}

func newStubSessions(sessions ...domain.Session) *stubSessions {
	s := &stubSessions{byID: make(map[string]*domain.Session)}
	for _, session := range sessions {
		copied := session
		s.byID[session.ID] = &copied
	}
	return s
}

func (s *stubSessions) Create(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := session
	s.byID[session.ID] = &copied
	return nil
}

func (s *stubSessions) GetByID(_ context.Context, sessionID string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.byID[sessionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *session
	return &copied, nil
}

func (s *stubSessions) Touch(_ context.Context, sessionID string, at time.Time, ip, userAgent *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.byID[sessionID]
	if !ok {
		return repository.ErrNotFound
	}
	session.Touch(at, ip, userAgent)
	return nil
}

func (s *stubSessions) RotateTokens(_ context.Context, sessionID, accessTokenHash, refreshTokenHash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.byID[sessionID]
	if !ok || !session.IsActive {
		return repository.ErrNotFound
	}
	session.AccessTokenHash = accessTokenHash
	session.RefreshTokenHash = refreshTokenHash
	session.LastActivity = at
	return nil
}

func (s *stubSessions) Invalidate(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInvalidate != nil {
		return s.failInvalidate
	}
	if session, ok := s.byID[sessionID]; ok {
		session.IsActive = false
	}
	return nil
}

func (s *stubSessions) InvalidateAllForUser(_ context.Context, userID string, exceptSessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInvalidateAll != nil {
		return 0, s.failInvalidateAll
	}
	count := 0
	for _, session := range s.byID {
		if session.UserID == userID && session.IsActive && session.ID != exceptSessionID {
			session.IsActive = false
			count++
		}
	}
	return count, nil
}

func (s *stubSessions) ListActiveByUser(_ context.Context, userID string) ([]domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Session
	for _, session := range s.byID {
		if session.UserID == userID && session.IsActive {
			out = append(out, *session)
		}
	}
	return out, nil
}

func (s *stubSessions) get(id string) *domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[id]
}

// stubAudit is an in-memory port.AuditRepository that also backs the
// suspicious-activity queries.
type stubAudit struct {
	mu         sync.Mutex
	activities []domain.ActivityEntry
	events     []domain.SecurityEvent
	logins     []domain.LoginHistoryEntry

	failedLogins int
	familiarIP   bool
}

func newStubAudit() *stubAudit {
	return &stubAudit{familiarIP: true}
}

func (s *stubAudit) AppendActivity(_ context.Context, entry domain.ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities = append(s.activities, entry)
	return nil
}

func (s *stubAudit) AppendSecurityEvent(_ context.Context, event domain.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *stubAudit) ResolveSecurityEvent(_ context.Context, eventID, resolvedBy string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.events {
		if s.events[i].ID == eventID {
			s.events[i].Resolved = true
			s.events[i].ResolvedBy = &resolvedBy
			s.events[i].ResolvedAt = &at
			return nil
		}
	}
	return repository.ErrNotFound
}

func (s *stubAudit) AppendLoginHistory(_ context.Context, entry domain.LoginHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logins = append(s.logins, entry)
	return nil
}

func (s *stubAudit) CountFailedLoginsSince(context.Context, string, time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failedLogins, nil
}

func (s *stubAudit) HasSuccessfulLoginFromIP(context.Context, string, string, time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.familiarIP, nil
}

func (s *stubAudit) lastLogin() *domain.LoginHistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.logins) == 0 {
		return nil
	}
	entry := s.logins[len(s.logins)-1]
	return &entry
}

func (s *stubAudit) eventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, event := range s.events {
		out = append(out, event.EventType)
	}
	return out
}

func (s *stubAudit) activityActions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.activities))
	for _, entry := range s.activities {
		out = append(out, entry.Action)
	}
	return out
}

// stubEvents counts publishes per event family.
type stubEvents struct {
	mu                  sync.Mutex
	security            []domain.SecurityEventRaised
	statusChanges       []domain.UserStatusChangedEvent
	passwordChanges     []domain.PasswordChangedEvent
	sessionInvalidation []domain.SessionsInvalidatedEvent
}

func (s *stubEvents) PublishSecurityEvent(_ context.Context, event domain.SecurityEventRaised) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.security = append(s.security, event)
	return nil
}

func (s *stubEvents) PublishUserStatusChanged(_ context.Context, event domain.UserStatusChangedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusChanges = append(s.statusChanges, event)
	return nil
}

func (s *stubEvents) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passwordChanges = append(s.passwordChanges, event)
	return nil
}

func (s *stubEvents) PublishSessionsInvalidated(_ context.Context, event domain.SessionsInvalidatedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionInvalidation = append(s.sessionInvalidation, event)
	return nil
}

// stubResetStore is an in-memory port.ResetTokenStore.
type stubResetStore struct {
	mu     sync.Mutex
	tokens map[string]string
}

func newStubResetStore() *stubResetStore {
	return &stubResetStore{tokens: make(map[string]string)}
}

func (s *stubResetStore) Store(_ context.Context, tokenHash, userID string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[tokenHash] = userID
	return nil
}

func (s *stubResetStore) Consume(_ context.Context, tokenHash string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.tokens[tokenHash]
	if !ok {
		return "", repository.ErrNotFound
	}
	delete(s.tokens, tokenHash)
	return userID, nil
}

// stubDelivery captures the raw tokens handed to the delivery channel.
type stubDelivery struct {
	mu     sync.Mutex
	tokens []string
	emails []string
}

func (s *stubDelivery) DeliverResetToken(_ context.Context, email, rawToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emails = append(s.emails, email)
	s.tokens = append(s.tokens, rawToken)
	return nil
}
