// Package auth resolves bearer tokens to user identities.
//
// Identity issuance lives in an external auth provider; this package only
// verifies the session tokens that provider hands out.
package auth

import (
	"context"
	"errors"
)

// ErrInvalidToken indicates the bearer token does not map to a live session.
var ErrInvalidToken = errors.New("invalid or expired token")

// Verifier resolves a bearer token to a user ID.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}
