package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// MaxPasswordLen bounds KDF input so extremely long passwords cannot be used
// to burn CPU and memory.
const MaxPasswordLen = 1024

const saltLen = 16

// ScryptParams are the KDF cost parameters. They are embedded in every hash
// record, so raising them later never invalidates previously stored hashes.
type ScryptParams struct {
	N      int // CPU/memory cost, must be a power of two > 1
	R      int // block size
	P      int // parallelism
	KeyLen int // derived key length
}

// DefaultScryptParams matches the interactive-login cost level.
var DefaultScryptParams = ScryptParams{N: 1 << 14, R: 8, P: 1, KeyLen: 32}

// PasswordHasher derives and verifies scrypt password hashes. The record
// format is
//
//	$scrypt$n=16384,r=8,p=1$<base64 salt>$<base64 key>
//
// so verification never needs external parameter lookup.
type PasswordHasher struct {
	params ScryptParams
}

// NewPasswordHasher returns a hasher that creates new records with the given
// cost parameters. Zero-value fields fall back to DefaultScryptParams.
func NewPasswordHasher(params ScryptParams) *PasswordHasher {
	if params.N == 0 {
		params.N = DefaultScryptParams.N
	}
	if params.R == 0 {
		params.R = DefaultScryptParams.R
	}
	if params.P == 0 {
		params.P = DefaultScryptParams.P
	}
	if params.KeyLen == 0 {
		params.KeyLen = DefaultScryptParams.KeyLen
	}
	return &PasswordHasher{params: params}
}

// Hash derives a salted scrypt hash of password and returns the encoded
// record. Empty or oversized passwords fail with ErrInvalidInput.
func (h *PasswordHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("%w: empty password", ErrInvalidInput)
	}
	if len(password) > MaxPasswordLen {
		return "", fmt.Errorf("%w: password exceeds %d bytes", ErrInvalidInput, MaxPasswordLen)
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key, err := scrypt.Key([]byte(password), salt, h.params.N, h.params.R, h.params.P, h.params.KeyLen)
	if err != nil {
		return "", fmt.Errorf("deriving key: %w", err)
	}

	return fmt.Sprintf("$scrypt$n=%d,r=%d,p=%d$%s$%s",
		h.params.N, h.params.R, h.params.P,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

// Verify re-derives a key using the parameters embedded in record and
// compares it to the stored key in constant time. A well-formed record that
// does not match yields (false, nil); a record that cannot be decoded yields
// ErrCorruptRecord.
func (h *PasswordHasher) Verify(password, record string) (bool, error) {
	if password == "" || len(password) > MaxPasswordLen {
		return false, nil
	}

	params, salt, key, err := decodeRecord(record)
	if err != nil {
		return false, err
	}

	candidate, err := scrypt.Key([]byte(password), salt, params.N, params.R, params.P, len(key))
	if err != nil {
		// The parameters decoded but scrypt rejects them; the record was
		// not produced by Hash.
		return false, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}

	return subtle.ConstantTimeCompare(candidate, key) == 1, nil
}

func decodeRecord(record string) (ScryptParams, []byte, []byte, error) {
	parts := strings.Split(record, "$")
	if len(parts) != 5 || parts[0] != "" {
		return ScryptParams{}, nil, nil, fmt.Errorf("%w: want 4 segments", ErrCorruptRecord)
	}
	if parts[1] != "scrypt" {
		return ScryptParams{}, nil, nil, fmt.Errorf("%w: unknown algorithm %q", ErrCorruptRecord, parts[1])
	}

	var p ScryptParams
	if _, err := fmt.Sscanf(parts[2], "n=%d,r=%d,p=%d", &p.N, &p.R, &p.P); err != nil {
		return ScryptParams{}, nil, nil, fmt.Errorf("%w: bad parameters: %v", ErrCorruptRecord, err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return ScryptParams{}, nil, nil, fmt.Errorf("%w: bad salt: %v", ErrCorruptRecord, err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return ScryptParams{}, nil, nil, fmt.Errorf("%w: bad key: %v", ErrCorruptRecord, err)
	}
	if len(salt) == 0 || len(key) == 0 {
		return ScryptParams{}, nil, nil, fmt.Errorf("%w: empty salt or key", ErrCorruptRecord)
	}
	return p, salt, key, nil
}
