// Package credstore persists the current bearer credential and its cached
// user record. The two values are one unit: written together, cleared
// together, never half-present. The store holds policy-free storage only;
// session decisions live in the session package.
package credstore

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/agriview/console-gateway/internal/domain"
)

// Store is the durable two-key credential storage contract. All operations
// are synchronous and total: storage failures degrade to "no credential"
// instead of surfacing errors to callers.
type Store interface {
	// SetCredential persists token and user atomically. It returns false and
	// leaves the prior state untouched when either argument is missing.
	SetCredential(token string, user *domain.CachedUser) bool

	// Token returns the stored bearer token, if any.
	Token() (string, bool)

	// User returns the stored user record, if any.
	User() (*domain.CachedUser, bool)

	// Clear removes both keys. Clearing an empty store is a no-op.
	Clear()

	// IsExpired reports whether the stored token is expired. A missing
	// token, a missing expiry claim or an undecodable token all count as
	// expired.
	IsExpired() bool
}

// tokenExpired decodes the exp claim without verifying the signature; the
// platform is trusted to validate tokens, the gateway only needs the expiry.
// Fail-closed: anything undecodable is expired, never valid-forever.
func tokenExpired(token string) bool {
	if token == "" {
		return true
	}
	claims := &domain.ConsoleClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return true
	}
	return claims.ExpiresAt.Before(time.Now())
}
