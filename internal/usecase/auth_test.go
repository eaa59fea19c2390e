package usecase

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/argon2"

	"github.com/gosgconsulting/cms-identity/internal/core/domain"
	"github.com/gosgconsulting/cms-identity/internal/infra/config"
	"github.com/gosgconsulting/cms-identity/internal/infra/security"
	"github.com/gosgconsulting/cms-identity/internal/ratelimit"
)

const (
	testPassword = "Sup3r$ecretPass"
	testIP       = "203.0.113.10"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now().UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type authFixture struct {
	clock    *fakeClock
	cfg      *config.AppConfig
	users    *stubUsers
	sessions *stubSessions
	audit    *stubAudit
	events   *stubEvents
	tracker  *ratelimit.Limiter
	hasher   *security.Hasher
	signer   *security.TokenSigner
	svc      *AuthService
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Auth: config.AuthSettings{
			MaxLoginAttempts:     5,
			LockoutTime:          15 * time.Minute,
			SessionTimeout:       24 * time.Hour,
			PasswordMinLength:    8,
			PasswordHistoryDepth: 5,
			ResetTokenTTL:        time.Hour,
		},
	}
}

func fastHasher(t *testing.T) *security.Hasher {
	t.Helper()
	hasher, err := security.NewHasher(security.Argon2Config{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	return hasher
}

func newAuthFixture(t *testing.T, users ...*domain.User) *authFixture {
	t.Helper()

	clock := newFakeClock()
	log := zaptest.NewLogger(t)
	cfg := testConfig()

	hasher := fastHasher(t)
	signer, err := security.NewTokenSigner("0123456789abcdef0123456789abcdef", "cms-identity", 15*time.Minute)
	if err != nil {
		t.Fatalf("NewTokenSigner: %v", err)
	}

	tracker := ratelimit.New(cfg.Auth.MaxLoginAttempts, cfg.Auth.LockoutTime, log, ratelimit.WithClock(clock.Now))
	t.Cleanup(tracker.Close)

	userRepo := newStubUsers(users...)
	sessionRepo := newStubSessions()
	auditRepo := newStubAudit()
	events := &stubEvents{}

	auditSvc := NewAuditService(auditRepo, events, nil, log).WithClock(clock.Now)
	detector := NewSessionService(sessionRepo, auditRepo, log).WithClock(clock.Now)

	svc := NewAuthService(cfg, userRepo, sessionRepo, tracker, auditSvc, detector, hasher, signer, nil, log).WithClock(clock.Now)

	return &authFixture{
		clock:    clock,
		cfg:      cfg,
		users:    userRepo,
		sessions: sessionRepo,
		audit:    auditRepo,
		events:   events,
		tracker:  tracker,
		hasher:   hasher,
		signer:   signer,
		svc:      svc,
	}
}

func activeUser(t *testing.T, hasher *security.Hasher, id, email string) *domain.User {
	t.Helper()
	encoded, salt, err := hasher.Hash(context.Background(), testPassword)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	now := time.Now().UTC()
	return &domain.User{
		ID:                id,
		Email:             email,
		PasswordHash:      encoded,
		PasswordSalt:      salt,
		Role:              "user",
		Status:            domain.StatusActive,
		IsActive:          true,
		PasswordChangedAt: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func login(f *authFixture, email, password string) *AuthResult {
	return f.svc.Authenticate(context.Background(), AuthenticateInput{
		Email:     email,
		Password:  password,
		IP:        testIP,
		UserAgent: "test-agent",
	})
}

func TestAuthenticateSuccess(t *testing.T) {
	user := activeUser(t, fastHasher(t), "u1", "alice@example.com")
	f := newAuthFixture(t, user)

	result := login(f, "Alice@Example.com ", testPassword)
	if !result.Success {
		t.Fatalf("expected success, got %s: %s", result.ErrorCode, result.Error)
	}
	if result.Session == nil || result.Session.AccessToken == "" || result.Session.RefreshToken == "" {
		t.Fatal("expected raw tokens in the result")
	}
	if result.User == nil || result.User.PasswordHash != "" {
		t.Fatal("expected a sanitized user")
	}

	stored := f.sessions.get(result.Session.SessionID)
	if stored == nil {
		t.Fatal("session was not persisted")
	}
	if stored.AccessTokenHash != security.HashToken(result.Session.AccessToken) {
		t.Error("stored access token hash does not match the issued token")
	}
	if stored.AccessTokenHash == result.Session.AccessToken {
		t.Error("raw access token must not be stored")
	}

	if last := f.audit.lastLogin(); last == nil || !last.Succeeded {
		t.Error("expected a successful login history entry")
	}
	if u := f.users.get("u1"); u.LastLogin == nil {
		t.Error("expected last login to be recorded")
	}
}

func TestAuthenticateMissingCredentials(t *testing.T) {
	f := newAuthFixture(t)

	for _, tc := range []struct{ email, password string }{
		{"", ""},
		{"alice@example.com", ""},
		{"", testPassword},
		{"   ", testPassword},
	} {
		result := login(f, tc.email, tc.password)
		if result.Success || result.ErrorCode != domain.CodeMissingCredentials {
			t.Errorf("email=%q password set=%v: got %s, want MISSING_CREDENTIALS", tc.email, tc.password != "", result.ErrorCode)
		}
	}
}

func TestAuthenticateUnknownEmailLooksLikeWrongPassword(t *testing.T) {
	user := activeUser(t, fastHasher(t), "u1", "alice@example.com")
	f := newAuthFixture(t, user)

	unknown := login(f, "nobody@example.com", testPassword)
	wrongPassword := login(f, "alice@example.com", "not-the-password")

	if unknown.ErrorCode != domain.CodeInvalidCredentials || wrongPassword.ErrorCode != domain.CodeInvalidCredentials {
		t.Fatalf("got %s and %s, want INVALID_CREDENTIALS for both", unknown.ErrorCode, wrongPassword.ErrorCode)
	}
	if unknown.Error != wrongPassword.Error {
		t.Errorf("failure messages differ: %q vs %q", unknown.Error, wrongPassword.Error)
	}
}

func TestAuthenticateWrongPasswordIncrementsCounter(t *testing.T) {
	hasher := fastHasher(t)
	user := activeUser(t, hasher, "u1", "alice@example.com")
	f := newAuthFixture(t, user)

	result := login(f, "alice@example.com", "wrong-password")
	if result.Success || result.ErrorCode != domain.CodeInvalidCredentials {
		t.Fatalf("got %s, want INVALID_CREDENTIALS", result.ErrorCode)
	}

	if u := f.users.get("u1"); u.FailedLoginAttempts != 1 {
		t.Errorf("failed attempts = %d, want 1", u.FailedLoginAttempts)
	}
	if last := f.audit.lastLogin(); last == nil || last.Succeeded || last.FailReason == nil {
		t.Error("expected a failed login history entry with a reason")
	}
}

func TestAuthenticateLockoutAfterMaxAttempts(t *testing.T) {
	hasher := fastHasher(t)
	user := activeUser(t, hasher, "u1", "alice@example.com")
	f := newAuthFixture(t, user)

	for i := 0; i < f.cfg.Auth.MaxLoginAttempts; i++ {
		result := login(f, "alice@example.com", "wrong-password")
		if result.ErrorCode != domain.CodeInvalidCredentials {
			t.Fatalf("attempt %d: got %s, want INVALID_CREDENTIALS", i+1, result.ErrorCode)
		}
	}

	locked := f.users.get("u1")
	if locked.LockedUntil == nil {
		t.Fatal("expected the account to be locked after max attempts")
	}
	wantDeadline := f.clock.Now().Add(f.cfg.Auth.LockoutTime)
	if !locked.LockedUntil.Equal(wantDeadline) {
		t.Errorf("locked until %v, want %v", locked.LockedUntil, wantDeadline)
	}

	var sawLockEvent bool
	for _, eventType := range f.audit.eventTypes() {
		if eventType == domain.EventAccountLocked {
			sawLockEvent = true
		}
	}
	if !sawLockEvent {
		t.Error("expected an account_locked security event")
	}

	// The durable lock outranks the rate limiter: the next attempt, even with
	// the correct password, reports the lock.
	result := login(f, "alice@example.com", testPassword)
	if result.ErrorCode != domain.CodeAccountLocked {
		t.Fatalf("got %s, want ACCOUNT_LOCKED", result.ErrorCode)
	}
}

func TestAuthenticateLockExpires(t *testing.T) {
	hasher := fastHasher(t)
	user := activeUser(t, hasher, "u1", "alice@example.com")
	f := newAuthFixture(t, user)

	for i := 0; i < f.cfg.Auth.MaxLoginAttempts; i++ {
		login(f, "alice@example.com", "wrong-password")
	}
	if f.users.get("u1").LockedUntil == nil {
		t.Fatal("expected a lock")
	}

	f.clock.Advance(f.cfg.Auth.LockoutTime + time.Minute)

	result := login(f, "alice@example.com", testPassword)
	if !result.Success {
		t.Fatalf("expected success after the lock expired, got %s: %s", result.ErrorCode, result.Error)
	}

	u := f.users.get("u1")
	if u.FailedLoginAttempts != 0 || u.LockedUntil != nil {
		t.Error("expected failure counters to reset on success")
	}
}

func TestAuthenticateRateLimitedByIP(t *testing.T) {
	f := newAuthFixture(t)

	// Five misses against addresses that do not resolve to any account.
	for i := 0; i < f.cfg.Auth.MaxLoginAttempts; i++ {
		result := login(f, "nobody@example.com", "whatever")
		if result.ErrorCode != domain.CodeInvalidCredentials {
			t.Fatalf("attempt %d: got %s, want INVALID_CREDENTIALS", i+1, result.ErrorCode)
		}
	}

	result := login(f, "somebody-else@example.com", "whatever")
	if result.ErrorCode != domain.CodeRateLimited {
		t.Fatalf("got %s, want RATE_LIMITED", result.ErrorCode)
	}

	f.clock.Advance(f.cfg.Auth.LockoutTime + time.Minute)
	result = login(f, "somebody-else@example.com", "whatever")
	if result.ErrorCode != domain.CodeInvalidCredentials {
		t.Fatalf("after window: got %s, want INVALID_CREDENTIALS", result.ErrorCode)
	}
}

func TestAuthenticateAccountStateGate(t *testing.T) {
	hasher := fastHasher(t)

	cases := []struct {
		status   domain.AccountStatus
		isActive bool
		want     domain.ErrorCode
	}{
		{domain.StatusPending, false, domain.CodeAccountPending},
		{domain.StatusRejected, false, domain.CodeAccountRejected},
		{domain.StatusSuspended, false, domain.CodeAccountSuspended},
		{domain.StatusInactive, false, domain.CodeAccountInactive},
		{domain.StatusActive, false, domain.CodeAccountInactive},
	}

	for _, tc := range cases {
		t.Run(string(tc.status), func(t *testing.T) {
			user := activeUser(t, hasher, "u1", "alice@example.com")
			user.Status = tc.status
			user.IsActive = tc.isActive
			f := newAuthFixture(t, user)

			result := login(f, "alice@example.com", testPassword)
			if result.ErrorCode != tc.want {
				t.Errorf("got %s, want %s", result.ErrorCode, tc.want)
			}
		})
	}
}

func TestAuthenticateRehashesLegacyHash(t *testing.T) {
	salt := []byte("0123456789abcdef")
	digest := argon2.IDKey([]byte(testPassword), salt, 1, 64*1024, 4, 32)

	now := time.Now().UTC()
	user := &domain.User{
		ID:                "u1",
		Email:             "alice@example.com",
		PasswordHash:      base64.RawStdEncoding.EncodeToString(digest),
		PasswordSalt:      base64.RawStdEncoding.EncodeToString(salt),
		Role:              "user",
		Status:            domain.StatusActive,
		IsActive:          true,
		PasswordChangedAt: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	f := newAuthFixture(t, user)

	result := login(f, "alice@example.com", testPassword)
	if !result.Success {
		t.Fatalf("expected success against the legacy hash, got %s: %s", result.ErrorCode, result.Error)
	}

	rehashed := f.users.get("u1")
	if !strings.HasPrefix(rehashed.PasswordHash, "argon2id$") {
		t.Errorf("expected the stored hash to migrate to the structured format, got %q", rehashed.PasswordHash)
	}
}

func TestValidateSessionRoundTrip(t *testing.T) {
	hasher := fastHasher(t)
	user := activeUser(t, hasher, "u1", "alice@example.com")
	f := newAuthFixture(t, user)

	auth := login(f, "alice@example.com", testPassword)
	if !auth.Success {
		t.Fatalf("login failed: %s", auth.Error)
	}

	result := f.svc.ValidateSession(context.Background(), auth.Session.SessionID, auth.Session.AccessToken, testIP, "test-agent")
	if !result.Success {
		t.Fatalf("expected a valid session, got %s: %s", result.ErrorCode, result.Error)
	}
	if result.User == nil || result.User.ID != "u1" || result.User.PasswordHash != "" {
		t.Error("expected the sanitized session owner")
	}
}

func TestValidateSessionRejectsTamperedToken(t *testing.T) {
	hasher := fastHasher(t)
	user := activeUser(t, hasher, "u1", "alice@example.com")
	f := newAuthFixture(t, user)

	auth := login(f, "alice@example.com", testPassword)

	cases := map[string]struct{ sessionID, token string }{
		"empty token":      {auth.Session.SessionID, ""},
		"empty session":    {"", auth.Session.AccessToken},
		"unknown session":  {"not-a-session", auth.Session.AccessToken},
		"foreign token":    {auth.Session.SessionID, auth.Session.AccessToken + "x"},
		"refresh as token": {auth.Session.SessionID, auth.Session.RefreshToken},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			result := f.svc.ValidateSession(context.Background(), tc.sessionID, tc.token, testIP, "")
			if result.Success || result.ErrorCode != domain.CodeInvalidSession {
				t.Errorf("got %s, want INVALID_SESSION", result.ErrorCode)
			}
		})
	}
}

func TestValidateSessionExpires(t *testing.T) {
	hasher := fastHasher(t)
	user := activeUser(t, hasher, "u1", "alice@example.com")
	f := newAuthFixture(t, user)

	auth := login(f, "alice@example.com", testPassword)

	f.clock.Advance(f.cfg.Auth.SessionTimeout + time.Minute)

	result := f.svc.ValidateSession(context.Background(), auth.Session.SessionID, auth.Session.AccessToken, testIP, "")
	if result.Success || result.ErrorCode != domain.CodeInvalidSession {
		t.Fatalf("got %s, want INVALID_SESSION after expiry", result.ErrorCode)
	}
}

func TestLoggedOutSessionNeverValidatesAgain(t *testing.T) {
	hasher := fastHasher(t)
	user := activeUser(t, hasher, "u1", "alice@example.com")
	f := newAuthFixture(t, user)

	auth := login(f, "alice@example.com", testPassword)

	logout := f.svc.Logout(context.Background(), auth.Session.SessionID, "u1", testIP, "")
	if !logout.Success {
		t.Fatal("logout failed")
	}

	result := f.svc.ValidateSession(context.Background(), auth.Session.SessionID, auth.Session.AccessToken, testIP, "")
	if result.Success || result.ErrorCode != domain.CodeInvalidSession {
		t.Fatalf("got %s, want INVALID_SESSION after logout", result.ErrorCode)
	}

	// Logging out again stays successful.
	if again := f.svc.Logout(context.Background(), auth.Session.SessionID, "u1", testIP, ""); !again.Success {
		t.Error("repeated logout should succeed")
	}
}

func TestValidateSessionRejectsDeactivatedUser(t *testing.T) {
	hasher := fastHasher(t)
	user := activeUser(t, hasher, "u1", "alice@example.com")
	f := newAuthFixture(t, user)

	auth := login(f, "alice@example.com", testPassword)

	if err := f.users.UpdateStatus(context.Background(), "u1", domain.StatusSuspended, false); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	result := f.svc.ValidateSession(context.Background(), auth.Session.SessionID, auth.Session.AccessToken, testIP, "")
	if result.Success || result.ErrorCode != domain.CodeUserInactive {
		t.Fatalf("got %s, want USER_INACTIVE", result.ErrorCode)
	}
}

func TestRefreshSessionRotatesTokens(t *testing.T) {
	hasher := fastHasher(t)
	user := activeUser(t, hasher, "u1", "alice@example.com")
	f := newAuthFixture(t, user)

	auth := login(f, "alice@example.com", testPassword)

	refreshed := f.svc.RefreshSession(context.Background(), auth.Session.SessionID, auth.Session.RefreshToken, testIP, "")
	if !refreshed.Success {
		t.Fatalf("expected success, got %s: %s", refreshed.ErrorCode, refreshed.Error)
	}
	if refreshed.Session.AccessToken == auth.Session.AccessToken {
		t.Error("access token must be reissued")
	}
	if refreshed.Session.RefreshToken == auth.Session.RefreshToken {
		t.Error("refresh token must rotate")
	}
	if !refreshed.Session.ExpiresAt.Equal(auth.Session.ExpiresAt) {
		t.Error("refresh must not extend the session expiry")
	}

	// The old refresh token died with the rotation.
	replay := f.svc.RefreshSession(context.Background(), auth.Session.SessionID, auth.Session.RefreshToken, testIP, "")
	if replay.Success || replay.ErrorCode != domain.CodeInvalidSession {
		t.Fatalf("replay: got %s, want INVALID_SESSION", replay.ErrorCode)
	}

	// The new pair validates.
	valid := f.svc.ValidateSession(context.Background(), auth.Session.SessionID, refreshed.Session.AccessToken, testIP, "")
	if !valid.Success {
		t.Fatalf("new access token rejected: %s", valid.ErrorCode)
	}
}

func TestRefreshSessionRejectsInvalidInput(t *testing.T) {
	hasher := fastHasher(t)
	user := activeUser(t, hasher, "u1", "alice@example.com")
	f := newAuthFixture(t, user)

	auth := login(f, "alice@example.com", testPassword)

	cases := map[string]struct{ sessionID, token string }{
		"empty token":     {auth.Session.SessionID, ""},
		"unknown session": {"ghost", auth.Session.RefreshToken},
		"access as token": {auth.Session.SessionID, auth.Session.AccessToken},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			result := f.svc.RefreshSession(context.Background(), tc.sessionID, tc.token, testIP, "")
			if result.Success || result.ErrorCode != domain.CodeInvalidSession {
				t.Errorf("got %s, want INVALID_SESSION", result.ErrorCode)
			}
		})
	}

	// A suspended owner cannot refresh.
	if err := f.users.UpdateStatus(context.Background(), "u1", domain.StatusSuspended, false); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	result := f.svc.RefreshSession(context.Background(), auth.Session.SessionID, auth.Session.RefreshToken, testIP, "")
	if result.Success || result.ErrorCode != domain.CodeUserInactive {
		t.Fatalf("got %s, want USER_INACTIVE", result.ErrorCode)
	}
}

func TestLogoutAllSessions(t *testing.T) {
	hasher := fastHasher(t)
	user := activeUser(t, hasher, "u1", "alice@example.com")
	f := newAuthFixture(t, user)

	first := login(f, "alice@example.com", testPassword)
	second := login(f, "alice@example.com", testPassword)
	third := login(f, "alice@example.com", testPassword)

	count, err := f.svc.LogoutAllSessions(context.Background(), "u1", third.Session.SessionID)
	if err != nil {
		t.Fatalf("LogoutAllSessions: %v", err)
	}
	if count != 2 {
		t.Fatalf("invalidated %d sessions, want 2", count)
	}

	for _, auth := range []*AuthResult{first, second} {
		result := f.svc.ValidateSession(context.Background(), auth.Session.SessionID, auth.Session.AccessToken, testIP, "")
		if result.Success {
			t.Error("expected bulk-invalidated session to fail validation")
		}
	}
	kept := f.svc.ValidateSession(context.Background(), third.Session.SessionID, third.Session.AccessToken, testIP, "")
	if !kept.Success {
		t.Errorf("expected the spared session to stay valid, got %s", kept.ErrorCode)
	}
}
