package broker

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"
)

// MemoryBackend is an in-process stand-in for a shared broker. Several
// MemoryClients connected to one backend behave like several server
// processes sharing one Redis: keys are shared and every publish is
// delivered to every connected client, synchronously and in order.
type MemoryBackend struct {
	keys *ttlcache.Cache[string, string]

	mu      sync.RWMutex
	clients []*MemoryClient
}

// NewMemoryBackend creates an empty backend and starts key expiry.
func NewMemoryBackend() *MemoryBackend {
	keys := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go keys.Start()
	return &MemoryBackend{keys: keys}
}

// Connect returns a new client attached to the backend.
func (b *MemoryBackend) Connect(logger zerolog.Logger) *MemoryClient {
	c := &MemoryClient{
		backend:  b,
		logger:   logger.With().Str("component", "memory-broker").Logger(),
		handlers: make(map[string]Handler),
	}
	b.mu.Lock()
	b.clients = append(b.clients, c)
	b.mu.Unlock()
	return c
}

// Shutdown stops key expiry. Clients must not be used afterwards.
func (b *MemoryBackend) Shutdown() {
	b.keys.Stop()
}

func (b *MemoryBackend) publish(channel string, message []byte) {
	b.mu.RLock()
	clients := make([]*MemoryClient, len(b.clients))
	copy(clients, b.clients)
	b.mu.RUnlock()

	for _, c := range clients {
		c.deliver(channel, message)
	}
}

func (b *MemoryBackend) remove(c *MemoryClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, other := range b.clients {
		if other == c {
			b.clients = append(b.clients[:i], b.clients[i+1:]...)
			return
		}
	}
}

// MemoryClient is one process's connection to a MemoryBackend.
type MemoryClient struct {
	backend *MemoryBackend
	logger  zerolog.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
	down     bool
}

// SetDown simulates losing (true) or regaining (false) the connection.
// While down, operations degrade and published messages are missed;
// subscriptions are kept and resume on recovery.
func (c *MemoryClient) SetDown(down bool) {
	c.mu.Lock()
	c.down = down
	c.mu.Unlock()
}

func (c *MemoryClient) isDown() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.down
}

// Set stores value under key with ttl.
func (c *MemoryClient) Set(_ context.Context, key, value string, ttl time.Duration) bool {
	if c.isDown() {
		c.logger.Warn().Str("key", key).Msg("broker down, set dropped")
		return false
	}
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	c.backend.keys.Set(key, value, ttl)
	return true
}

// Exists reports whether key is present and unexpired.
func (c *MemoryClient) Exists(_ context.Context, key string) bool {
	if c.isDown() {
		c.logger.Warn().Str("key", key).Msg("broker down, exists unknown")
		return false
	}
	return c.backend.keys.Get(key) != nil
}

// Publish delivers message to every connected, reachable client before
// returning.
func (c *MemoryClient) Publish(_ context.Context, channel string, message []byte) bool {
	if c.isDown() {
		c.logger.Warn().Str("channel", channel).Msg("broker down, publish dropped")
		return false
	}
	c.backend.publish(channel, message)
	return true
}

// Subscribe registers handler for channel.
func (c *MemoryClient) Subscribe(channel string, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[channel] = handler
}

// Unsubscribe drops the handler for channel.
func (c *MemoryClient) Unsubscribe(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, channel)
}

// Close detaches the client from the backend.
func (c *MemoryClient) Close() error {
	c.backend.remove(c)
	return nil
}

func (c *MemoryClient) deliver(channel string, message []byte) {
	c.mu.RLock()
	handler, ok := c.handlers[channel]
	down := c.down
	c.mu.RUnlock()
	if !ok || down {
		return
	}
	handler(channel, message)
}

var (
	_ Broker = (*MemoryClient)(nil)
	_ Broker = (*Redis)(nil)
)
