package types

import (
	"context"
	"strings"
	"time"
)

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// SessionInfo holds metadata about a connected WebSocket session.
type SessionInfo struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"account_id"`
	DisplayName string    `json:"display_name,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
	Scopes      []string  `json:"scopes"`
}

// Actor identifies who caused an event.
type Actor struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// SystemActor tags events that originate from scheduled jobs rather than
// a signed-in account.
var SystemActor = Actor{ID: "system", DisplayName: "System"}

// IsSystem reports whether the actor is the scheduler sentinel.
func (a Actor) IsSystem() bool { return a.ID == SystemActor.ID }

// ListAccess decides whether an account may receive pushes for a list.
// Backed by the persistence layer; a nil ListAccess allows everything.
type ListAccess interface {
	CanAccessList(ctx context.Context, accountID, listID string) bool
}

// Scope prefixes for events that are not routed by list id.
const (
	accountScopePrefix   = "account:"
	householdScopePrefix = "household:"
)

// AccountScope returns the scope every session of accountID is
// implicitly subscribed to.
func AccountScope(accountID string) string { return accountScopePrefix + accountID }

// HouseholdScope returns the scope for household-wide events.
func HouseholdScope(householdID string) string { return householdScopePrefix + householdID }

// WebSocket frame opcodes used through Conn (RFC 6455).
const (
	TextMessage = 1
	PingMessage = 9
)

// IsReservedScope reports whether id is a server-assigned scope that
// clients may not subscribe to by name.
func IsReservedScope(id string) bool {
	return strings.HasPrefix(id, accountScopePrefix) || strings.HasPrefix(id, householdScopePrefix)
}
