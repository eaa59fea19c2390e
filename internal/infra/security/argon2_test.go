package security

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"golang.org/x/crypto/argon2"
)

func testHasher(t *testing.T) *Hasher {
	t.Helper()
	cfg := Argon2Config{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
	h, err := NewHasher(cfg)
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	return h
}

func TestHashAndVerifyRoundTrip(t *testing.T) {
	h := testHasher(t)
	ctx := context.Background()

	encoded, salt, err := h.Hash(ctx, "Correct1!")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(encoded, "argon2id$v=19$") {
		t.Fatalf("unexpected hash format: %s", encoded)
	}
	if salt == "" {
		t.Fatal("expected separate salt to be returned")
	}

	ok, err := h.Verify(ctx, "Correct1!", encoded, salt)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatal("expected password to verify")
	}

	ok, err = h.Verify(ctx, "Wrong!", encoded, salt)
	if err != nil {
		t.Fatalf("Verify wrong password: %v", err)
	}
	if ok {
		t.Fatal("wrong password must not verify")
	}
}

func TestVerifyEmptyInputs(t *testing.T) {
	h := testHasher(t)
	ok, err := h.Verify(context.Background(), "", "whatever", "salt")
	if err != nil || ok {
		t.Fatalf("empty password: ok=%v err=%v", ok, err)
	}
	ok, err = h.Verify(context.Background(), "pw", "", "salt")
	if err != nil || ok {
		t.Fatalf("empty hash: ok=%v err=%v", ok, err)
	}
}

func TestVerifyLegacySaltHashPair(t *testing.T) {
	h := testHasher(t)
	ctx := context.Background()

	// Simulate a row written by the pre-migration code path: digest-only hash
	// column with the salt stored separately, fixed legacy parameters.
	salt := []byte("0123456789abcdef")
	digest := argon2.IDKey([]byte("LegacyPass1!"), salt, 1, 64*1024, 4, 32)
	storedSalt := base64.RawStdEncoding.EncodeToString(salt)
	storedHash := base64.RawStdEncoding.EncodeToString(digest)

	ok, err := h.Verify(ctx, "LegacyPass1!", storedHash, storedSalt)
	if err != nil {
		t.Fatalf("Verify legacy: %v", err)
	}
	if !ok {
		t.Fatal("legacy hash must verify")
	}

	if !h.NeedsRehash(storedHash) {
		t.Fatal("legacy hash must be flagged for rehash")
	}
}

func TestNeedsRehashOnParameterDrift(t *testing.T) {
	h := testHasher(t)
	encoded, _, err := h.Hash(context.Background(), "Correct1!")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if h.NeedsRehash(encoded) {
		t.Fatal("freshly derived hash must not need rehash")
	}

	stronger, err := NewHasher(Argon2Config{
		Memory:      16 * 1024,
		Iterations:  2,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	if !stronger.NeedsRehash(encoded) {
		t.Fatal("hash derived with weaker parameters must need rehash")
	}
}

func TestNewHasherRejectsWeakConfig(t *testing.T) {
	_, err := NewHasher(Argon2Config{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err == nil {
		t.Fatal("expected config validation error")
	}
}
