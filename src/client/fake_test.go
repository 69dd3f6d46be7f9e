package client

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/orchestra-mcp/listsync/src/clock"
	"github.com/orchestra-mcp/listsync/src/types"
)

type fakeSocket struct {
	mu        sync.Mutex
	url       string
	handler   SocketHandler
	sent      []types.Command
	closed    bool
	closeCode int
}

func (s *fakeSocket) Send(cmd types.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSocketClosed
	}
	s.sent = append(s.sent, cmd)
	return nil
}

func (s *fakeSocket) Close(code int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.closeCode = code
	return nil
}

func (s *fakeSocket) commands() []types.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Command(nil), s.sent...)
}

func (s *fakeSocket) open() { s.handler.OnOpen(s) }

func (s *fakeSocket) drop(code int) { s.handler.OnClose(s, code) }

func (s *fakeSocket) deliver(ev types.Event) {
	data, _ := json.Marshal(ev)
	s.handler.OnMessage(s, data)
}

type fakeDialer struct {
	mu      sync.Mutex
	sockets []*fakeSocket
	err     error
}

func (d *fakeDialer) Dial(url string, h SocketHandler) (Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	s := &fakeSocket{url: url, handler: h}
	d.sockets = append(d.sockets, s)
	return s, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sockets)
}

func (d *fakeDialer) last() *fakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sockets) == 0 {
		return nil
	}
	return d.sockets[len(d.sockets)-1]
}

func (d *fakeDialer) fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

type harness struct {
	manager *Manager
	dialer  *fakeDialer
	clock   *clock.FakeClock
	feed    *ActivityFeed
	events  []types.Event
	states  []State
}

func newHarness(t *testing.T, opts ...func(*Config)) *harness {
	t.Helper()
	h := &harness{
		dialer: &fakeDialer{},
		clock:  clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		feed:   NewActivityFeed(),
	}
	cfg := Config{
		Endpoint:          "ws://sync.test/ws",
		InitialDelay:      time.Second,
		MaxDelay:          30 * time.Second,
		MaxAttempts:       5,
		KeepaliveInterval: 30 * time.Second,
		IdleTimeout:       5 * time.Minute,
		Dialer:            h.dialer,
		Activity:          h.feed,
		Clock:             h.clock,
		Rand:              func() float64 { return 0 },
		Logger:            zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	h.manager = NewManager(cfg)
	h.manager.OnEvent(func(ev types.Event) { h.events = append(h.events, ev) })
	h.manager.OnStateChange(func(s State) { h.states = append(h.states, s) })
	return h
}

// connect dials and opens the first socket.
func (h *harness) connect(t *testing.T) *fakeSocket {
	t.Helper()
	h.manager.Connect("token-1")
	s := h.dialer.last()
	if s == nil {
		t.Fatal("no socket dialed")
	}
	s.open()
	return s
}

// nextDelay returns the armed reconnect delay.
func (h *harness) nextDelay(t *testing.T) time.Duration {
	t.Helper()
	d, ok := h.clock.NextDeadline()
	if !ok {
		t.Fatal("no timer armed")
	}
	return d
}

func (h *harness) errorCodes() []string {
	var codes []string
	for _, ev := range h.events {
		if ev.Type == types.EventError {
			codes = append(codes, ev.Code)
		}
	}
	return codes
}
