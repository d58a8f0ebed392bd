package auth

// Store is the persistence contract the auth core consumes. Implementations
// must return ErrNotFound for absent records and are expected to enforce
// unique constraints on username and email.
type Store interface {
	// User operations
	FindUserByUsername(username string) (*User, error)
	FindUserByEmail(email string) (*User, error)
	FindUserByID(id int64) (*User, error)
	InsertUser(u *User) (*User, error)
	UpdateUser(u *User) error
	// API key operations
	FindAPIKeysByPrefix(prefix string) ([]*APIKey, error)
	FindAPIKeyByID(id int64) (*APIKey, error)
	FindAPIKeysByUser(userID int64) ([]*APIKey, error)
	InsertAPIKey(k *APIKey) (*APIKey, error)
	UpdateAPIKey(k *APIKey) error
	DeleteAPIKey(id int64) error
}
