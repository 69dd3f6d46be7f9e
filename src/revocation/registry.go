// Package revocation keeps short-lived markers for credentials that were
// signed out before their natural expiry. Markers live in the shared
// broker, so a revocation on one process is seen by all of them.
package revocation

import (
	"context"
	"time"

	"github.com/orchestra-mcp/listsync/src/broker"
	"github.com/rs/zerolog"
)

const keyPrefix = "revoked:"

// Registry stores and checks revocation markers.
type Registry struct {
	broker broker.Broker
	logger zerolog.Logger
}

// New creates a Registry on top of b.
func New(b broker.Broker, logger zerolog.Logger) *Registry {
	return &Registry{
		broker: b,
		logger: logger.With().Str("component", "revocation").Logger(),
	}
}

// Revoke marks credentialID as revoked for the remaining validity window.
// Credentials that are already expired need no marker. A false return
// means the marker was not stored and the credential stays valid until
// it expires on its own.
func (r *Registry) Revoke(ctx context.Context, credentialID string, remaining time.Duration) bool {
	if credentialID == "" || remaining <= 0 {
		return false
	}
	if !r.broker.Set(ctx, keyPrefix+credentialID, "1", remaining) {
		r.logger.Warn().
			Str("credential_id", credentialID).
			Dur("remaining", remaining).
			Msg("revocation not stored, credential valid until expiry")
		return false
	}
	r.logger.Debug().Str("credential_id", credentialID).Msg("credential revoked")
	return true
}

// IsRevoked reports whether credentialID carries a revocation marker.
func (r *Registry) IsRevoked(ctx context.Context, credentialID string) bool {
	if credentialID == "" {
		return false
	}
	return r.broker.Exists(ctx, keyPrefix+credentialID)
}
