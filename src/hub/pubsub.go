package hub

import (
	"errors"
	"fmt"
)

// Subscribe adds scopes to a session and returns the scopes the session
// is now subscribed to from the request, without duplicates. Unknown
// sessions yield nil.
func (h *Hub) Subscribe(sessionID string, scopes []string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[sessionID]
	if !ok {
		return nil
	}
	added := make([]string, 0, len(scopes))
	seen := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		if scope == "" {
			continue
		}
		if _, dup := seen[scope]; dup {
			continue
		}
		seen[scope] = struct{}{}
		h.addScopeLocked(s, scope)
		added = append(added, scope)
	}
	return added
}

// Unsubscribe removes scopes from a session and returns the ones that
// were actually removed.
func (h *Hub) Unsubscribe(sessionID string, scopes []string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[sessionID]
	if !ok {
		return nil
	}
	removed := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		if h.removeScopeLocked(s, scope) {
			removed = append(removed, scope)
		}
	}
	return removed
}

// UnsubscribeAccount removes scopes from every local session of an
// account and returns how many subscriptions were dropped.
func (h *Hub) UnsubscribeAccount(accountID string, scopes ...string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for _, s := range h.sessions {
		if s.AccountID != accountID {
			continue
		}
		for _, scope := range scopes {
			if h.removeScopeLocked(s, scope) {
				n++
			}
		}
	}
	return n
}

// ConnectionsFor returns the IDs of sessions subscribed to scope.
func (h *Hub) ConnectionsFor(scope string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs := h.scopes[scope]
	ids := make([]string, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	return ids
}

// Deliver queues payload on a session without blocking. The payload is
// dropped with ErrUnknownSession, ErrSessionClosed or ErrSendBufferFull.
func (h *Hub) Deliver(sessionID string, payload []byte) error {
	h.mu.RLock()
	s, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("deliver to %s: %w", sessionID, ErrUnknownSession)
	}
	return s.enqueue(payload)
}

// Send is Deliver with the failure logged. It reports whether the
// payload was queued.
func (h *Hub) Send(sessionID string, payload []byte) bool {
	err := h.Deliver(sessionID, payload)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrSendBufferFull):
		h.logger.Warn().Str("session_id", sessionID).Msg("send buffer full, dropping")
	case errors.Is(err, ErrSessionClosed):
		h.logger.Debug().Str("session_id", sessionID).Msg("session closed, dropping")
	default:
		h.logger.Debug().Err(err).Msg("dropping")
	}
	return false
}
