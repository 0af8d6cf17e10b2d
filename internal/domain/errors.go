package domain

import "errors"

// Common errors
var (
	// ErrStorageUnavailable marks a credential persistence failure. Callers
	// degrade to "no session" rather than failing.
	ErrStorageUnavailable = errors.New("credential storage unavailable")

	// ErrMalformedCredential marks a token whose expiry claim cannot be
	// decoded; it is handled exactly like an expired token.
	ErrMalformedCredential = errors.New("malformed credential")

	// ErrPermissionLoad marks a failed permission matrix fetch. Queries
	// answer false until a retry succeeds; the session is kept.
	ErrPermissionLoad = errors.New("permission matrix load failed")

	// ErrNotAuthenticated marks an operation that needs an authenticated
	// session when there is none.
	ErrNotAuthenticated = errors.New("no authenticated session")
)
