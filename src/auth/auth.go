// Package auth verifies the credentials presented at socket upgrade and
// on authenticated HTTP routes. Signature and expiry are checked first,
// then the shared revocation registry.
package auth

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenRevoked = errors.New("token revoked")
)

// Claims is the verified identity behind a credential.
type Claims struct {
	AccountID   string
	DisplayName string
	TokenID     string
	Households  []string
	ExpiresAt   time.Time
}

// Remaining returns how long the credential stays valid after now.
func (c *Claims) Remaining(now time.Time) time.Duration {
	return c.ExpiresAt.Sub(now)
}

// RevocationChecker is implemented by revocation.Registry.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, credentialID string) bool
}

// Verifier validates a raw credential.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}
