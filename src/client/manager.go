// Package client keeps one realtime connection per signed-in user and maps
// its events onto local state.
package client

import (
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/orchestra-mcp/listsync/src/clock"
	"github.com/orchestra-mcp/listsync/src/types"
)

// Config tunes a Manager. Zero values take the defaults noted below; a
// negative KeepaliveInterval or IdleTimeout disables that timer.
type Config struct {
	Endpoint          string
	InitialDelay      time.Duration // 1s
	MaxDelay          time.Duration // 30s
	MaxAttempts       int           // 10
	KeepaliveInterval time.Duration // 30s
	IdleTimeout       time.Duration // 5m

	Dialer   Dialer
	Activity ActivitySource
	Clock    clock.Clock
	Rand     func() float64
	Logger   zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.InitialDelay <= 0 {
		c.InitialDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.MaxDelay < c.InitialDelay {
		c.MaxDelay = c.InitialDelay
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.KeepaliveInterval == 0 {
		c.KeepaliveInterval = 30 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Rand == nil {
		c.Rand = rand.Float64
	}
	return c
}

// Manager owns the connection lifecycle: dial, keepalive, idle shutdown
// and reconnect with backoff. All inputs are serialized by one mutex;
// listeners run after it is released.
type Manager struct {
	cfg     Config
	backoff Backoff
	logger  zerolog.Logger

	mu               sync.Mutex
	state            State
	socket           Socket
	credential       string
	attempts         int
	idleDisconnected bool
	detachActivity   func()

	reconnectTimer clock.Timer
	keepaliveTimer clock.Timer
	idleTimer      clock.Timer
	reconnectGen   uint64
	keepaliveGen   uint64
	idleGen        uint64

	eventListeners []func(types.Event)
	stateListeners []func(State)
	pending        []func()
}

// NewManager creates a disconnected manager.
func NewManager(cfg Config) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{
		cfg: cfg,
		backoff: Backoff{
			Initial: cfg.InitialDelay,
			Max:     cfg.MaxDelay,
			Jitter:  0.2,
			Rand:    cfg.Rand,
		},
		logger: cfg.Logger.With().Str("component", "client").Logger(),
		state:  Disconnected,
	}
}

// OnEvent registers a listener for every decoded inbound event and for
// terminal errors raised by the manager itself.
func (m *Manager) OnEvent(fn func(types.Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventListeners = append(m.eventListeners, fn)
}

// OnStateChange registers a listener for state transitions.
func (m *Manager) OnStateChange(fn func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateListeners = append(m.stateListeners, fn)
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempts returns the consecutive reconnect attempts made so far.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Connect opens a connection with credential. It is a no-op while
// connecting or connected. From disconnected it starts a fresh retry
// budget; while reconnecting the attempt count is kept.
func (m *Manager) Connect(credential string) {
	m.do(func() {
		if m.state == Connecting || m.state == Connected {
			return
		}
		if m.state == Disconnected {
			m.attempts = 0
		}
		m.credential = credential
		m.idleDisconnected = false
		m.stopReconnectLocked()
		m.releaseSocketLocked(CloseNormal, "replaced")
		m.openLocked(Connecting)
	})
}

// Disconnect closes the connection for good. Nothing reconnects until
// Connect is called again.
func (m *Manager) Disconnect() {
	m.do(func() {
		m.stopReconnectLocked()
		m.stopKeepaliveLocked()
		m.stopIdleLocked()
		m.detachActivityLocked()
		m.idleDisconnected = false
		m.releaseSocketLocked(CloseNormal, "client disconnect")
		m.setStateLocked(Disconnected)
	})
}

// Subscribe asks the server for the given lists. Returns false unless
// connected.
func (m *Manager) Subscribe(listIDs []string) bool {
	return m.send(types.Command{Type: types.CommandSubscribe, ListIDs: listIDs})
}

// Unsubscribe drops the given lists. Returns false unless connected.
func (m *Manager) Unsubscribe(listIDs []string) bool {
	return m.send(types.Command{Type: types.CommandUnsubscribe, ListIDs: listIDs})
}

// NotifyActivity records user activity. While connected it resets the
// idle timer; after an idle disconnect it reconnects at once.
func (m *Manager) NotifyActivity() {
	m.do(func() {
		switch {
		case m.state == Connected:
			m.armIdleLocked()
		case m.state == Disconnected && m.idleDisconnected:
			m.idleDisconnected = false
			m.attempts = 0
			m.openLocked(Connecting)
		}
	})
}

// OnOpen implements SocketHandler.
func (m *Manager) OnOpen(s Socket) {
	m.do(func() {
		if s != m.socket {
			return
		}
		m.attempts = 0
		m.setStateLocked(Connected)
		m.armKeepaliveLocked()
		m.armIdleLocked()
		m.attachActivityLocked()
	})
}

// OnMessage implements SocketHandler.
func (m *Manager) OnMessage(s Socket, data []byte) {
	m.do(func() {
		if s != m.socket {
			return
		}
		ev, err := types.DecodeEvent(data)
		if err != nil {
			m.logger.Debug().Err(err).Msg("dropping malformed event")
			return
		}
		m.emitLocked(ev)
	})
}

// OnClose implements SocketHandler.
func (m *Manager) OnClose(s Socket, code int) {
	m.do(func() {
		if s != m.socket {
			return
		}
		m.socket = nil
		m.stopKeepaliveLocked()
		m.stopIdleLocked()
		if m.idleDisconnected {
			return
		}
		if code == ClosePolicyViolation {
			m.logger.Warn().Msg("connection rejected: authentication failed")
			m.giveUpLocked(types.CodeAuthFailed, "authentication failed")
			return
		}
		m.logger.Debug().Int("code", code).Int("attempts", m.attempts).Msg("connection lost")
		m.scheduleReconnectLocked()
	})
}

func (m *Manager) send(cmd types.Command) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Connected || m.socket == nil {
		return false
	}
	if err := m.socket.Send(cmd); err != nil {
		m.logger.Debug().Err(err).Str("type", string(cmd.Type)).Msg("send failed")
		return false
	}
	return true
}

// do runs fn under the lock, then the notifications it queued.
func (m *Manager) do(fn func()) {
	m.mu.Lock()
	fn()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()

	for _, n := range pending {
		n()
	}
}

func (m *Manager) endpointURL() string {
	sep := "?"
	if strings.Contains(m.cfg.Endpoint, "?") {
		sep = "&"
	}
	return m.cfg.Endpoint + sep + "token=" + url.QueryEscape(m.credential)
}

func (m *Manager) openLocked(state State) {
	m.setStateLocked(state)
	s, err := m.cfg.Dialer.Dial(m.endpointURL(), m)
	if err != nil {
		m.logger.Warn().Err(err).Msg("dial failed")
		m.socket = nil
		m.scheduleReconnectLocked()
		return
	}
	m.socket = s
}

func (m *Manager) releaseSocketLocked(code int, reason string) {
	if m.socket == nil {
		return
	}
	s := m.socket
	m.socket = nil
	if err := s.Close(code, reason); err != nil {
		m.logger.Debug().Err(err).Msg("close failed")
	}
}

func (m *Manager) scheduleReconnectLocked() {
	if m.attempts >= m.cfg.MaxAttempts {
		m.logger.Warn().Int("attempts", m.attempts).Msg("giving up reconnecting")
		m.giveUpLocked(types.CodeMaxReconnectAttempts, "maximum reconnect attempts reached")
		return
	}
	m.setStateLocked(Reconnecting)
	m.stopReconnectLocked()

	delay := max(m.backoff.Delay(m.attempts), time.Millisecond)
	gen := m.reconnectGen
	m.reconnectTimer = m.cfg.Clock.AfterFunc(delay, func() {
		m.do(func() {
			if gen != m.reconnectGen || m.state != Reconnecting {
				return
			}
			m.reconnectTimer = nil
			m.attempts++
			m.openLocked(Reconnecting)
		})
	})
}

func (m *Manager) giveUpLocked(code, message string) {
	m.stopReconnectLocked()
	m.detachActivityLocked()
	m.setStateLocked(Disconnected)
	m.emitLocked(types.NewError(code, message))
}

func (m *Manager) armKeepaliveLocked() {
	m.stopKeepaliveLocked()
	if m.cfg.KeepaliveInterval <= 0 {
		return
	}
	gen := m.keepaliveGen
	m.keepaliveTimer = m.cfg.Clock.AfterFunc(m.cfg.KeepaliveInterval, func() {
		m.do(func() {
			if gen != m.keepaliveGen || m.state != Connected || m.socket == nil {
				return
			}
			if err := m.socket.Send(types.Command{Type: types.CommandPing}); err != nil {
				m.logger.Debug().Err(err).Msg("keepalive failed")
			}
			m.armKeepaliveLocked()
		})
	})
}

func (m *Manager) armIdleLocked() {
	m.stopIdleLocked()
	if m.cfg.IdleTimeout <= 0 {
		return
	}
	gen := m.idleGen
	m.idleTimer = m.cfg.Clock.AfterFunc(m.cfg.IdleTimeout, func() {
		m.do(func() {
			if gen != m.idleGen || m.state != Connected {
				return
			}
			m.logger.Debug().Msg("idle, closing connection")
			m.idleTimer = nil
			m.idleDisconnected = true
			m.stopKeepaliveLocked()
			m.releaseSocketLocked(CloseNormal, "idle")
			m.setStateLocked(Disconnected)
		})
	})
}

func (m *Manager) stopReconnectLocked() {
	m.reconnectGen++
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

func (m *Manager) stopKeepaliveLocked() {
	m.keepaliveGen++
	if m.keepaliveTimer != nil {
		m.keepaliveTimer.Stop()
		m.keepaliveTimer = nil
	}
}

func (m *Manager) stopIdleLocked() {
	m.idleGen++
	if m.idleTimer != nil {
		m.idleTimer.Stop()
		m.idleTimer = nil
	}
}

func (m *Manager) attachActivityLocked() {
	if m.detachActivity != nil || m.cfg.Activity == nil {
		return
	}
	m.detachActivity = m.cfg.Activity.Subscribe(m.NotifyActivity)
}

func (m *Manager) detachActivityLocked() {
	if m.detachActivity == nil {
		return
	}
	m.detachActivity()
	m.detachActivity = nil
}

func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	listeners := append(([]func(State))(nil), m.stateListeners...)
	m.pending = append(m.pending, func() {
		for _, fn := range listeners {
			fn(s)
		}
	})
}

func (m *Manager) emitLocked(ev types.Event) {
	listeners := append(([]func(types.Event))(nil), m.eventListeners...)
	m.pending = append(m.pending, func() {
		for _, fn := range listeners {
			fn(ev)
		}
	})
}
