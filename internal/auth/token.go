package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token type markers. Access and refresh tokens are distinguished by claim
// content and lifetime, not by separate storage.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims carries identity data inside a signed token. Field names are a
// compatibility surface and must stay stable.
type Claims struct {
	jwt.RegisteredClaims
	Username  string `json:"username,omitempty"`
	Email     string `json:"email,omitempty"`
	Role      Role   `json:"role,omitempty"`
	TokenType string `json:"type"`
}

// UserID returns the numeric subject claim.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: non-numeric subject %q", ErrMalformedToken, c.Subject)
	}
	return id, nil
}

// TokenManager issues and verifies HMAC-signed session tokens. The signing
// secret and TTLs are fixed at construction; constructing one per test with
// a distinct secret gives full isolation.
type TokenManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewTokenManager(secret []byte, accessTTL, refreshTTL time.Duration) *TokenManager {
	return &TokenManager{secret: secret, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

// NewAccessToken issues a signed access token for the user, embedding
// username, email, and role so downstream services can authorize without a
// user lookup.
func (m *TokenManager) NewAccessToken(u *User) (string, error) {
	now := time.Now()
	return m.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL)),
		},
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		TokenType: TokenTypeAccess,
	})
}

// NewRefreshToken issues a signed refresh token carrying only the subject,
// to limit blast radius if it leaks.
func (m *TokenManager) NewRefreshToken(userID int64) (string, error) {
	now := time.Now()
	return m.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.refreshTTL)),
		},
		TokenType: TokenTypeRefresh,
	})
}

func (m *TokenManager) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of tokenString and returns its
// claims. Tokens without an exp claim are rejected; every token this package
// issues carries one. Failures are ErrMalformedToken, ErrExpiredToken, or
// ErrInvalidSignature.
func (m *TokenManager) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired())
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed),
			errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
			return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrInvalidSignature
		default:
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
	}
	if !token.Valid {
		return nil, ErrInvalidSignature
	}
	return claims, nil
}

// DecodeUnverified parses claims WITHOUT checking the signature or expiry.
// It exists for non-trust-sensitive inspection only, e.g. showing a token's
// expiry in a UI. Never build an authorization decision on its output; use
// Verify.
func (m *TokenManager) DecodeUnverified(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return claims, nil
}
