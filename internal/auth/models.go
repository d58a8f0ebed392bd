package auth

import "time"

// Role is the user's authorization level.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r Role) bool {
	return r == RoleUser || r == RoleAdmin
}

// User is an identity record. PasswordHash is an opaque self-describing
// record produced by PasswordHasher; nothing outside this package should
// interpret it.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	Active       bool
	CreatedAt    time.Time
}

// APIKey is a stored credential record. Only the bcrypt hash of the secret
// is persisted; the plaintext exists in memory exactly once, between
// generation and hashing.
type APIKey struct {
	ID         int64
	UserID     int64
	KeyHash    string
	KeyPrefix  string
	Name       string
	Revoked    bool
	ExpiresAt  *time.Time
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

// TokenPair bundles a short-lived access token and a longer-lived refresh
// token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}
