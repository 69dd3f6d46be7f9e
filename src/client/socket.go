package client

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/orchestra-mcp/listsync/src/types"
)

// Close codes the manager distinguishes.
const (
	CloseNormal          = websocket.CloseNormalClosure
	CloseAbnormal        = websocket.CloseAbnormalClosure
	ClosePolicyViolation = websocket.ClosePolicyViolation
)

// Socket is one client connection attempt.
type Socket interface {
	// Send queues a command. It must not block.
	Send(cmd types.Command) error
	// Close shuts the socket down. The handler may still see OnClose,
	// which the manager ignores for sockets it has let go of.
	Close(code int, reason string) error
}

// SocketHandler receives socket events. Manager implements it.
type SocketHandler interface {
	OnOpen(s Socket)
	OnMessage(s Socket, data []byte)
	OnClose(s Socket, code int)
}

// Dialer opens sockets. Dial returns immediately; events arrive later on
// h and must not be raised before Dial returns.
type Dialer interface {
	Dial(url string, h SocketHandler) (Socket, error)
}

// ActivitySource reports user activity (clicks, scrolls, key presses,
// pointer moves, touches). Subscribe returns a function that detaches
// the callback.
type ActivitySource interface {
	Subscribe(fn func()) (detach func())
}

// ActivityFeed is an ActivitySource that UI code pokes with Touch.
type ActivityFeed struct {
	mu   sync.Mutex
	next int
	subs map[int]func()
}

// NewActivityFeed creates an empty feed.
func NewActivityFeed() *ActivityFeed {
	return &ActivityFeed{subs: make(map[int]func())}
}

// Subscribe registers fn until the returned detach is called.
func (f *ActivityFeed) Subscribe(fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

// Touch reports one activity event to every subscriber.
func (f *ActivityFeed) Touch() {
	f.mu.Lock()
	subs := make([]func(), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

// Listeners returns the number of attached callbacks.
func (f *ActivityFeed) Listeners() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
