package security

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/sync/semaphore"
)

const (
	argon2Variant = "argon2id"
	argon2Version = "v=19"
)

var (
	errInvalidHashFormat = errors.New("argon2: invalid encoded hash format")
	errInvalidConfig     = errors.New("argon2: invalid configuration")
)

// Argon2Config defines tunable parameters for Argon2id password hashing.
type Argon2Config struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Config returns the service default Argon2id configuration.
func DefaultArgon2Config() Argon2Config {
	return Argon2Config{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 4,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func validateArgon2Config(cfg Argon2Config) error {
	if cfg.Memory < 8*1024 {
		return fmt.Errorf("%w: memory must be at least 8192", errInvalidConfig)
	}
	if cfg.Iterations == 0 {
		return fmt.Errorf("%w: iterations must be greater than zero", errInvalidConfig)
	}
	if cfg.Parallelism == 0 {
		return fmt.Errorf("%w: parallelism must be greater than zero", errInvalidConfig)
	}
	if cfg.SaltLength < 8 {
		return fmt.Errorf("%w: salt length must be at least 8 bytes", errInvalidConfig)
	}
	if cfg.KeyLength < 16 {
		return fmt.Errorf("%w: key length must be at least 16 bytes", errInvalidConfig)
	}
	return nil
}

// Hasher derives and verifies Argon2id password hashes. Key derivation is
// CPU-bound, so the hasher bounds concurrent derivations with a weighted
// semaphore; callers block on the semaphore rather than oversubscribing the
// scheduler and starving request handling.
type Hasher struct {
	cfg Argon2Config
	sem *semaphore.Weighted
}

// NewHasher constructs a Hasher after validating the configuration.
func NewHasher(cfg Argon2Config) (*Hasher, error) {
	if err := validateArgon2Config(cfg); err != nil {
		return nil, err
	}
	slots := int64(runtime.GOMAXPROCS(0))
	if slots < 1 {
		slots = 1
	}
	return &Hasher{cfg: cfg, sem: semaphore.NewWeighted(slots)}, nil
}

// Config returns the active parameters.
func (h *Hasher) Config() Argon2Config {
	return h.cfg
}

// Hash generates an Argon2id hash for the provided password. The returned
// encoded value embeds the parameters, salt, and hash in a portable format;
// the salt is also returned separately for the persisted salt column.
func (h *Hasher) Hash(ctx context.Context, password string) (encoded string, salt string, err error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", "", fmt.Errorf("argon2: acquire hash slot: %w", err)
	}
	defer h.sem.Release(1)

	rawSalt := make([]byte, h.cfg.SaltLength)
	if _, err := rand.Read(rawSalt); err != nil {
		return "", "", fmt.Errorf("argon2: generate salt: %w", err)
	}

	sum := argon2.IDKey([]byte(password), rawSalt, h.cfg.Iterations, h.cfg.Memory, h.cfg.Parallelism, h.cfg.KeyLength)

	encodedSalt := base64.RawStdEncoding.EncodeToString(rawSalt)
	encodedHash := base64.RawStdEncoding.EncodeToString(sum)

	// Format: argon2id$v=19$m=<memory>,t=<iterations>,p=<parallelism>$<salt>$<hash>
	encoded = strings.Join([]string{
		argon2Variant,
		argon2Version,
		fmt.Sprintf("m=%d,t=%d,p=%d", h.cfg.Memory, h.cfg.Iterations, h.cfg.Parallelism),
		encodedSalt,
		encodedHash,
	}, "$")

	return encoded, encodedSalt, nil
}

// Verify compares the provided password against the stored hash in constant
// time. Two stored formats are accepted: the structured encoding produced by
// Hash, and the legacy salt-column pair where the hash column holds only the
// base64 digest (parameters implied). NeedsRehash reports which was hit.
func (h *Hasher) Verify(ctx context.Context, password, encoded, storedSalt string) (ok bool, err error) {
	if password == "" || encoded == "" {
		return false, nil
	}

	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, fmt.Errorf("argon2: acquire hash slot: %w", err)
	}
	defer h.sem.Release(1)

	params, salt, expected, err := decodeArgon2Hash(encoded, storedSalt)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(password), salt, params.Iterations, params.Memory, params.Parallelism, uint32(len(expected)))
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// NeedsRehash reports whether a stored hash uses the legacy format or stale
// parameters and should be re-derived on the next successful verification.
func (h *Hasher) NeedsRehash(encoded string) bool {
	if !strings.Contains(encoded, "$") {
		return true
	}
	params, _, _, err := decodeArgon2Hash(encoded, "")
	if err != nil {
		return true
	}
	return params.Memory != h.cfg.Memory ||
		params.Iterations != h.cfg.Iterations ||
		params.Parallelism != h.cfg.Parallelism
}

func decodeArgon2Hash(encoded, storedSalt string) (Argon2Config, []byte, []byte, error) {
	if strings.Contains(encoded, "$") {
		return decodeStructuredHash(encoded)
	}

	// Legacy rows: digest-only hash column plus a separate salt column,
	// derived with the original fixed parameters.
	if storedSalt == "" {
		return Argon2Config{}, nil, nil, errInvalidHashFormat
	}

	salt, err := base64.RawStdEncoding.DecodeString(storedSalt)
	if err != nil {
		return Argon2Config{}, nil, nil, fmt.Errorf("argon2: decode legacy salt: %w", err)
	}

	hash, err := base64.RawStdEncoding.DecodeString(encoded)
	if err != nil {
		return Argon2Config{}, nil, nil, fmt.Errorf("argon2: decode legacy hash: %w", err)
	}

	legacy := Argon2Config{
		Memory:      64 * 1024,
		Iterations:  1,
		Parallelism: 4,
	}
	return legacy, salt, hash, nil
}

func decodeStructuredHash(encoded string) (Argon2Config, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 5 {
		return Argon2Config{}, nil, nil, errInvalidHashFormat
	}

	if parts[0] != argon2Variant {
		return Argon2Config{}, nil, nil, fmt.Errorf("argon2: unexpected variant %q", parts[0])
	}
	if parts[1] != argon2Version {
		return Argon2Config{}, nil, nil, fmt.Errorf("argon2: unsupported version %q", parts[1])
	}

	memory, iterations, parallelism, err := parseArgon2Params(parts[2])
	if err != nil {
		return Argon2Config{}, nil, nil, err
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return Argon2Config{}, nil, nil, fmt.Errorf("argon2: decode salt: %w", err)
	}

	hash, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Argon2Config{}, nil, nil, fmt.Errorf("argon2: decode hash: %w", err)
	}

	cfg := Argon2Config{
		Memory:      memory,
		Iterations:  iterations,
		Parallelism: parallelism,
		SaltLength:  uint32(len(salt)),
		KeyLength:   uint32(len(hash)),
	}

	if err := validateArgon2Config(cfg); err != nil {
		return Argon2Config{}, nil, nil, err
	}

	return cfg, salt, hash, nil
}

func parseArgon2Params(segment string) (uint32, uint32, uint8, error) {
	entries := strings.Split(segment, ",")
	if len(entries) != 3 {
		return 0, 0, 0, errInvalidHashFormat
	}

	var (
		memory      uint32
		iterations  uint32
		parallelism uint8
		err         error
	)

	for _, entry := range entries {
		kv := strings.Split(entry, "=")
		if len(kv) != 2 {
			return 0, 0, 0, errInvalidHashFormat
		}

		switch kv[0] {
		case "m":
			var v uint64
			v, err = strconv.ParseUint(kv[1], 10, 32)
			memory = uint32(v)
		case "t":
			var v uint64
			v, err = strconv.ParseUint(kv[1], 10, 32)
			iterations = uint32(v)
		case "p":
			var v uint64
			v, err = strconv.ParseUint(kv[1], 10, 8)
			parallelism = uint8(v)
		default:
			return 0, 0, 0, errInvalidHashFormat
		}

		if err != nil {
			return 0, 0, 0, fmt.Errorf("argon2: parse %s: %w", kv[0], err)
		}
	}

	return memory, iterations, parallelism, nil
}
