package hub

import (
	"sort"

	"github.com/orchestra-mcp/listsync/src/types"
)

// OnConnection registers a callback for new sessions.
func (h *Hub) OnConnection(cb func(string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onConnect = append(h.onConnect, cb)
}

// OnDisconnection registers a callback for removed sessions.
func (h *Hub) OnDisconnection(cb func(string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDisconn = append(h.onDisconn, cb)
}

// Sessions returns the IDs of all live sessions.
func (h *Hub) Sessions() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SessionInfo returns info for a live session, or nil.
func (h *Hub) SessionInfo(sessionID string) *types.SessionInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[sessionID]
	if !ok {
		return nil
	}
	scopes := make([]string, 0, len(s.scopes))
	for scope := range s.scopes {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)
	return &types.SessionInfo{
		ID:          s.ID,
		AccountID:   s.AccountID,
		DisplayName: s.DisplayName,
		ConnectedAt: s.connectedAt,
		Scopes:      scopes,
	}
}

// Scopes returns scope names with their subscriber counts.
func (h *Hub) Scopes() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	result := make(map[string]int, len(h.scopes))
	for scope, subs := range h.scopes {
		result[scope] = len(subs)
	}
	return result
}

// SessionCount returns the number of live sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
