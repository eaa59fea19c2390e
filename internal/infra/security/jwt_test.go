package security

import (
	"errors"
	"testing"
	"time"
)

func TestTokenSignerIssueAndParse(t *testing.T) {
	signer, err := NewTokenSigner("test-secret-test-secret", "cms-identity", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenSigner: %v", err)
	}

	raw, err := signer.Issue("user-1", "session-1", "admin", time.Now())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := signer.Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.UserID != "user-1" || claims.SessionID != "session-1" || claims.Role != "admin" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestTokenSignerRejectsExpired(t *testing.T) {
	signer, err := NewTokenSigner("test-secret-test-secret", "cms-identity", time.Minute)
	if err != nil {
		t.Fatalf("NewTokenSigner: %v", err)
	}

	raw, err := signer.Issue("user-1", "session-1", "", time.Now().Add(-2*time.Minute))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := signer.Parse(raw); !errors.Is(err, ErrExpiredAccessToken) {
		t.Fatalf("expected ErrExpiredAccessToken, got %v", err)
	}
}

func TestTokenSignerRejectsTamperedToken(t *testing.T) {
	signer, _ := NewTokenSigner("test-secret-test-secret", "cms-identity", time.Hour)
	other, _ := NewTokenSigner("another-secret-entirely", "cms-identity", time.Hour)

	raw, err := other.Issue("user-1", "session-1", "", time.Now())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := signer.Parse(raw); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("expected ErrInvalidAccessToken, got %v", err)
	}
}

func TestTokenSignerRequiresSecret(t *testing.T) {
	if _, err := NewTokenSigner("  ", "cms-identity", time.Hour); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestHashTokenStability(t *testing.T) {
	if HashToken("") != "" {
		t.Fatal("empty token must hash to empty string")
	}
	a := HashToken("raw-token")
	b := HashToken("raw-token")
	if a != b {
		t.Fatal("hash must be deterministic")
	}
	if a == "raw-token" || len(a) != 64 {
		t.Fatalf("unexpected digest %q", a)
	}
}

func TestGenerateSecureTokenUniqueness(t *testing.T) {
	a, err := GenerateSecureToken(32)
	if err != nil {
		t.Fatalf("GenerateSecureToken: %v", err)
	}
	b, err := GenerateSecureToken(32)
	if err != nil {
		t.Fatalf("GenerateSecureToken: %v", err)
	}
	if a == b {
		t.Fatal("tokens must be unique")
	}
}
