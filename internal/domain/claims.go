package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

// ConsoleClaims is the claim shape of the platform-issued bearer token. The
// gateway only ever reads the expiry; signature validation stays server-side.
type ConsoleClaims struct {
	UserName string `json:"user_name,omitempty"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}
