package auth

import (
	"errors"
	"fmt"
	"log"
	"time"
)

// Service composes the password, API-key, and token modules with
// persistence. It holds no mutable state of its own; every operation is
// independent beyond the rows it reads or updates, so concurrent calls for
// different users proceed fully in parallel.
type Service struct {
	store     Store
	passwords *PasswordHasher
	keys      *KeyMaker
	tokens    *TokenManager

	// dummyHash is verified against on login when the username does not
	// exist, so the not-found path burns the same KDF cost as a real
	// password check and response timing cannot enumerate usernames.
	dummyHash string
}

func NewService(store Store, passwords *PasswordHasher, keys *KeyMaker, tokens *TokenManager) *Service {
	s := &Service{store: store, passwords: passwords, keys: keys, tokens: tokens}
	s.dummyHash, _ = passwords.Hash("timing-equalization-dummy")
	return s
}

// Register creates a new user after checking username and email uniqueness.
// Password hashing is deliberately slow; callers must not hold transactions
// open across this call.
func (s *Service) Register(username, email, password string, role Role) (*User, error) {
	if username == "" || email == "" {
		return nil, fmt.Errorf("%w: username and email are required", ErrInvalidInput)
	}
	if !ValidRole(role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}

	if _, err := s.store.FindUserByUsername(username); err == nil {
		return nil, ErrConflict
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if _, err := s.store.FindUserByEmail(email); err == nil {
		return nil, ErrConflict
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, err
	}

	user, err := s.store.InsertUser(&User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
	})
	if err != nil {
		return nil, fmt.Errorf("inserting user: %w", err)
	}
	return user, nil
}

// Login verifies the credentials and issues a token pair. Every failure —
// unknown username, wrong password, inactive account, corrupt stored hash —
// surfaces as the same ErrAuthenticationFailed so usernames cannot be
// enumerated; the real cause goes to the server log only. The unknown-name
// path still runs the KDF, against dummyHash, so its timing matches a wrong
// password.
func (s *Service) Login(username, password string) (*User, *TokenPair, error) {
	user, err := s.store.FindUserByUsername(username)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, nil, err
		}
		if s.dummyHash != "" {
			_, _ = s.passwords.Verify(password, s.dummyHash)
		}
		log.Printf("login failed: unknown username %q", username)
		return nil, nil, ErrAuthenticationFailed
	}

	ok, err := s.passwords.Verify(password, user.PasswordHash)
	if err != nil {
		// Corrupt stored record: a server-side integrity problem, still a
		// generic failure for the caller.
		log.Printf("login failed: user %d: %v", user.ID, err)
		return nil, nil, ErrAuthenticationFailed
	}
	if !ok {
		log.Printf("login failed: wrong password for user %d", user.ID)
		return nil, nil, ErrAuthenticationFailed
	}
	if !user.Active {
		log.Printf("login failed: user %d is inactive", user.ID)
		return nil, nil, ErrAuthenticationFailed
	}

	pair, err := s.issuePair(user)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Refresh verifies a refresh token and issues a fresh pair. The user is
// re-fetched so the new access token reflects the current role and active
// flag, not the claims frozen into the old token. Rotation is advisory:
// there is no server-side denylist, the client is expected to discard the
// old refresh token.
func (s *Service) Refresh(refreshToken string) (*TokenPair, error) {
	claims, err := s.tokens.Verify(refreshToken)
	if err != nil {
		log.Printf("refresh failed: %v", err)
		return nil, ErrAuthenticationFailed
	}
	if claims.TokenType != TokenTypeRefresh {
		log.Printf("refresh failed: token type %q, want %q", claims.TokenType, TokenTypeRefresh)
		return nil, ErrAuthenticationFailed
	}

	userID, err := claims.UserID()
	if err != nil {
		log.Printf("refresh failed: %v", err)
		return nil, ErrAuthenticationFailed
	}

	user, err := s.store.FindUserByID(userID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		log.Printf("refresh failed: user %d no longer exists", userID)
		return nil, ErrAuthenticationFailed
	}
	if !user.Active {
		log.Printf("refresh failed: user %d is inactive", userID)
		return nil, ErrAuthenticationFailed
	}

	return s.issuePair(user)
}

// VerifyAccessToken checks a presented access token and returns its claims.
// Refresh tokens are rejected here so they cannot be replayed as access
// tokens.
func (s *Service) VerifyAccessToken(tokenString string) (*Claims, error) {
	claims, err := s.tokens.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeAccess {
		return nil, ErrAuthenticationFailed
	}
	return claims, nil
}

// CreateAPIKey generates a key for the user, persists only the hash plus
// metadata, and returns the plaintext exactly once.
func (s *Service) CreateAPIKey(userID int64, name string, expiresAt *time.Time) (*APIKey, string, error) {
	if name == "" {
		name = "API Key"
	}

	plaintext, prefix, err := s.keys.Generate()
	if err != nil {
		return nil, "", err
	}
	hash, err := s.keys.Hash(plaintext)
	if err != nil {
		return nil, "", err
	}

	key, err := s.store.InsertAPIKey(&APIKey{
		UserID:    userID,
		KeyHash:   hash,
		KeyPrefix: prefix,
		Name:      name,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return nil, "", fmt.Errorf("inserting api key: %w", err)
	}
	return key, plaintext, nil
}

// ValidateAPIKeyRequest resolves a presented key to its owning user.
// Candidates are narrowed by the stored prefix, then each is run through
// the consolidated Validate check. Not-found, hash mismatch, expiry,
// revocation, and inactive owner all collapse to ErrAuthenticationFailed.
// The key's last-used timestamp is bumped as a side effect; that update is
// observational, so its failure is logged and otherwise ignored.
func (s *Service) ValidateAPIKeyRequest(presented string) (*User, error) {
	if err := s.keys.CheckFormat(presented); err != nil {
		log.Printf("api key rejected: %v", err)
		return nil, ErrAuthenticationFailed
	}

	candidates, err := s.store.FindAPIKeysByPrefix(presented[:KeyPrefixLen])
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	for _, key := range candidates {
		status, err := s.keys.Validate(presented, key.KeyHash, key.ExpiresAt, key.Revoked)
		if err != nil || status == KeyInvalid {
			continue
		}
		if status != KeyValid {
			log.Printf("api key %d rejected: %s", key.ID, status)
			return nil, ErrAuthenticationFailed
		}

		now := time.Now()
		key.LastUsedAt = &now
		if err := s.store.UpdateAPIKey(key); err != nil {
			log.Printf("api key %d: updating last_used: %v", key.ID, err)
		}

		user, err := s.store.FindUserByID(key.UserID)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				return nil, err
			}
			log.Printf("api key %d rejected: owner %d no longer exists", key.ID, key.UserID)
			return nil, ErrAuthenticationFailed
		}
		if !user.Active {
			log.Printf("api key %d rejected: owner %d is inactive", key.ID, key.UserID)
			return nil, ErrAuthenticationFailed
		}
		return user, nil
	}

	log.Printf("api key rejected: no matching record")
	return nil, ErrAuthenticationFailed
}

// ListAPIKeys returns the user's key metadata. Hashes are included in the
// records but plaintext secrets do not exist anywhere to return.
func (s *Service) ListAPIKeys(userID int64) ([]*APIKey, error) {
	keys, err := s.store.FindAPIKeysByUser(userID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return keys, nil
}

// RevokeAPIKey marks the key revoked. Only the owner may revoke it.
func (s *Service) RevokeAPIKey(id, ownerID int64) error {
	key, err := s.store.FindAPIKeyByID(id)
	if err != nil {
		return err
	}
	if key.UserID != ownerID {
		return ErrForbidden
	}
	key.Revoked = true
	return s.store.UpdateAPIKey(key)
}

// DeleteAPIKey permanently removes the key. Only the owner may delete it.
func (s *Service) DeleteAPIKey(id, ownerID int64) error {
	key, err := s.store.FindAPIKeyByID(id)
	if err != nil {
		return err
	}
	if key.UserID != ownerID {
		return ErrForbidden
	}
	return s.store.DeleteAPIKey(id)
}

func (s *Service) issuePair(user *User) (*TokenPair, error) {
	access, err := s.tokens.NewAccessToken(user)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.NewRefreshToken(user.ID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
