package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// KeyPrefixLen is the number of leading characters of a key persisted
// alongside its hash so candidate records can be looked up without a
// full-table scan.
const KeyPrefixLen = 12

const keySecretBytes = 32 // 256 bits of randomness

// KeyStatus is the outcome of validating a presented API key.
type KeyStatus int

const (
	KeyValid   KeyStatus = iota
	KeyInvalid           // hash mismatch
	KeyExpired           // hash matches but expiry has passed
	KeyRevoked           // hash matches but the key was revoked
)

func (s KeyStatus) String() string {
	switch s {
	case KeyValid:
		return "valid"
	case KeyInvalid:
		return "invalid"
	case KeyExpired:
		return "expired"
	case KeyRevoked:
		return "revoked"
	}
	return "unknown"
}

// KeyMaker generates, hashes, and validates API keys. Keys look like
// ag_<base64url secret>; the tag makes keys recognizable in logs and UIs
// without revealing the secret.
type KeyMaker struct {
	tag string
}

// NewKeyMaker returns a KeyMaker producing keys with the given static tag,
// e.g. "ag".
func NewKeyMaker(tag string) *KeyMaker {
	return &KeyMaker{tag: tag}
}

// Generate produces a new high-entropy key and its lookup prefix. The full
// plaintext is returned exactly once; callers must hash it immediately and
// discard it.
func (k *KeyMaker) Generate() (plaintext, prefix string, err error) {
	b := make([]byte, keySecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generating key material: %w", err)
	}
	plaintext = k.tag + "_" + base64.RawURLEncoding.EncodeToString(b)
	return plaintext, plaintext[:KeyPrefixLen], nil
}

// Hash returns a salted one-way hash of the key for storage.
func (k *KeyMaker) Hash(plaintext string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing key: %w", err)
	}
	return string(h), nil
}

// CheckFormat cheaply rejects presented strings that cannot be keys, before
// any hash computation. Fails with ErrMalformedKey.
func (k *KeyMaker) CheckFormat(presented string) error {
	if !strings.HasPrefix(presented, k.tag+"_") || len(presented) < KeyPrefixLen {
		return ErrMalformedKey
	}
	return nil
}

// Validate is the single entry point for API-key checks: hash comparison,
// expiry, and the caller-supplied revoked flag are all evaluated here and
// collapsed into one KeyStatus. The hash comparison and the expiry check
// are computed independently so the outcome's timing does not reveal which
// failed.
func (k *KeyMaker) Validate(presented, storedHash string, expiresAt *time.Time, revoked bool) (KeyStatus, error) {
	if err := k.CheckFormat(presented); err != nil {
		return KeyInvalid, err
	}

	match := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(presented)) == nil
	expired := expiresAt != nil && time.Now().After(*expiresAt)

	switch {
	case !match:
		return KeyInvalid, nil
	case revoked:
		return KeyRevoked, nil
	case expired:
		return KeyExpired, nil
	}
	return KeyValid, nil
}
