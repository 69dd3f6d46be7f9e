// Package hub is the per-process connection registry. It maps live
// sessions to the scopes they are subscribed to, with a reverse index for
// fan-out. It owns no cross-process state.
package hub

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/orchestra-mcp/listsync/src/types"
	"github.com/rs/zerolog"
)

var (
	ErrDuplicateSession = errors.New("session already registered")
	ErrCapacity         = errors.New("connection limit reached")
	ErrUnknownSession   = errors.New("unknown session")
	ErrSessionClosed    = errors.New("session closed")
	ErrSendBufferFull   = errors.New("send buffer full")
)

const defaultSendBuffer = 256

// Session is one live socket. Its scope set is guarded by the hub lock.
type Session struct {
	ID          string
	AccountID   string
	DisplayName string

	connectedAt time.Time
	scopes      map[string]struct{}

	mu     sync.Mutex
	send   chan []byte
	done   chan struct{}
	closed bool
}

func newSession(id, accountID, displayName string, buffer int) *Session {
	return &Session{
		ID:          id,
		AccountID:   accountID,
		DisplayName: displayName,
		connectedAt: time.Now(),
		scopes:      make(map[string]struct{}),
		send:        make(chan []byte, buffer),
		done:        make(chan struct{}),
	}
}

// Outbound returns the channel the write pump drains. It is closed when
// the session is deregistered.
func (s *Session) Outbound() <-chan []byte { return s.send }

// Done is closed when the session is deregistered.
func (s *Session) Done() <-chan struct{} { return s.done }

// enqueue never blocks: a full buffer drops the payload.
func (s *Session) enqueue(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	select {
	case s.send <- payload:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
		close(s.send)
	}
}

// Option configures a Hub.
type Option func(*Hub)

// WithSendBuffer sets the per-session outbound buffer size.
func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithMaxConnections caps the number of live sessions. Zero means no cap.
func WithMaxConnections(n int) Option {
	return func(h *Hub) { h.maxConnections = n }
}

// WithListAccess filters subscribe commands through access.
func WithListAccess(access types.ListAccess) Option {
	return func(h *Hub) { h.access = access }
}

// Hub manages all sessions and scope subscriptions of this process.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	scopes   map[string]map[string]struct{} // scope -> set of session IDs

	onConnect []func(string)
	onDisconn []func(string)

	access         types.ListAccess
	sendBuffer     int
	maxConnections int
	logger         zerolog.Logger
}

// New creates a new Hub instance.
func New(logger zerolog.Logger, opts ...Option) *Hub {
	h := &Hub{
		sessions:   make(map[string]*Session),
		scopes:     make(map[string]map[string]struct{}),
		sendBuffer: defaultSendBuffer,
		logger:     logger.With().Str("component", "hub").Logger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds a session for an authenticated socket. The session is
// subscribed to its own account scope.
func (h *Hub) Register(id, accountID, displayName string) (*Session, error) {
	h.mu.Lock()
	if _, ok := h.sessions[id]; ok {
		h.mu.Unlock()
		return nil, fmt.Errorf("register %s: %w", id, ErrDuplicateSession)
	}
	if h.maxConnections > 0 && len(h.sessions) >= h.maxConnections {
		h.mu.Unlock()
		return nil, fmt.Errorf("register %s: %w", id, ErrCapacity)
	}
	s := newSession(id, accountID, displayName, h.sendBuffer)
	h.sessions[id] = s
	h.addScopeLocked(s, types.AccountScope(accountID))
	callbacks := h.onConnect
	h.mu.Unlock()

	h.logger.Info().Str("session_id", id).Str("account_id", accountID).Msg("session registered")

	for _, cb := range callbacks {
		cb(id)
	}
	return s, nil
}

// Deregister removes a session and all of its subscriptions. It is safe
// to call more than once.
func (h *Hub) Deregister(id string) bool {
	h.mu.Lock()
	s, ok := h.sessions[id]
	if !ok {
		h.mu.Unlock()
		return false
	}
	delete(h.sessions, id)
	for scope := range s.scopes {
		h.removeScopeLocked(s, scope)
	}
	callbacks := h.onDisconn
	h.mu.Unlock()

	s.close()
	h.logger.Info().Str("session_id", id).Msg("session deregistered")

	for _, cb := range callbacks {
		cb(id)
	}
	return true
}

func (h *Hub) addScopeLocked(s *Session, scope string) {
	subs := h.scopes[scope]
	if subs == nil {
		subs = make(map[string]struct{})
		h.scopes[scope] = subs
	}
	subs[s.ID] = struct{}{}
	s.scopes[scope] = struct{}{}
}

func (h *Hub) removeScopeLocked(s *Session, scope string) bool {
	if _, ok := s.scopes[scope]; !ok {
		return false
	}
	delete(s.scopes, scope)
	if subs, ok := h.scopes[scope]; ok {
		delete(subs, s.ID)
		if len(subs) == 0 {
			delete(h.scopes, scope)
		}
	}
	return true
}
