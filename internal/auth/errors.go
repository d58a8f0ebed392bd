package auth

import "errors"

// Error kinds returned by the auth core. The HTTP layer maps these onto
// protocol responses; the core never produces transport-specific values.
var (
	// ErrInvalidInput indicates bad caller input, e.g. an empty password.
	ErrInvalidInput = errors.New("invalid input")

	// ErrCorruptRecord indicates a stored credential record that cannot be
	// decoded. This is a data-integrity problem and should be logged
	// server-side, never shown to the end user.
	ErrCorruptRecord = errors.New("corrupt credential record")

	// ErrMalformedKey indicates a presented API key that does not match the
	// expected prefix/format.
	ErrMalformedKey = errors.New("malformed api key")

	// ErrMalformedToken indicates a token that cannot be parsed into the
	// expected three-segment structure.
	ErrMalformedToken = errors.New("malformed token")

	// ErrInvalidSignature indicates a token whose signature does not match.
	ErrInvalidSignature = errors.New("invalid token signature")

	// ErrExpiredToken indicates a token past its expiry.
	ErrExpiredToken = errors.New("token expired")

	// ErrAuthenticationFailed is the generic credential-verification failure
	// returned to end users. Login, refresh, and API-key validation collapse
	// every failure cause onto this error so callers cannot distinguish a
	// missing user from a wrong password or an expired key.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrConflict indicates a uniqueness violation on registration.
	ErrConflict = errors.New("username or email already registered")

	// ErrNotFound indicates an absent record.
	ErrNotFound = errors.New("not found")

	// ErrForbidden indicates an operation on a record the caller does not own.
	ErrForbidden = errors.New("forbidden")
)
