package providers

import (
	"context"
	"errors"

	"github.com/fasthttp/websocket"
	"github.com/rs/zerolog"

	"github.com/orchestra-mcp/listsync/config"
	"github.com/orchestra-mcp/listsync/src/auth"
	"github.com/orchestra-mcp/listsync/src/broadcast"
	"github.com/orchestra-mcp/listsync/src/broker"
	"github.com/orchestra-mcp/listsync/src/clock"
	"github.com/orchestra-mcp/listsync/src/hub"
	"github.com/orchestra-mcp/listsync/src/relay"
	"github.com/orchestra-mcp/listsync/src/revocation"
	"github.com/orchestra-mcp/listsync/src/types"
)

// ErrNotActive is returned by Deactivate on a provider that never started.
var ErrNotActive = errors.New("sync provider not active")

// Option customizes a SyncProvider.
type Option func(*SyncProvider)

// WithClock replaces the real clock.
func WithClock(c clock.Clock) Option {
	return func(p *SyncProvider) { p.clock = c }
}

// WithListAccess filters list subscriptions through access.
func WithListAccess(access types.ListAccess) Option {
	return func(p *SyncProvider) { p.access = access }
}

// WithVerifier replaces the JWT verifier built from config.
func WithVerifier(v auth.Verifier) Option {
	return func(p *SyncProvider) { p.verifier = v }
}

// SyncProvider wires the hub, relay, revocation registry and broadcaster
// of one server process onto a shared broker.
type SyncProvider struct {
	active bool
	cfg    config.Config
	logger zerolog.Logger
	clock  clock.Clock
	access types.ListAccess

	broker      broker.Broker
	hub         *hub.Hub
	relay       *relay.Relay
	revocations *revocation.Registry
	verifier    auth.Verifier
	broadcaster *broadcast.Broadcaster
	upgrader    websocket.FastHTTPUpgrader

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSyncProvider creates an inactive provider on b.
func NewSyncProvider(cfg config.Config, b broker.Broker, logger zerolog.Logger, opts ...Option) *SyncProvider {
	p := &SyncProvider{
		cfg:    cfg,
		broker: b,
		logger: logger.With().Str("component", "sync").Logger(),
		clock:  clock.Real(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Activate builds the process components and starts relaying.
func (p *SyncProvider) Activate() error {
	if p.active {
		return nil
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())

	hubOpts := []hub.Option{
		hub.WithSendBuffer(p.cfg.Socket.SendBuffer),
		hub.WithMaxConnections(p.cfg.Socket.MaxConnections),
	}
	if p.access != nil {
		hubOpts = append(hubOpts, hub.WithListAccess(p.access))
	}
	p.hub = hub.New(p.logger, hubOpts...)
	p.relay = relay.New(p.broker, p.hub, p.logger)
	p.revocations = revocation.New(p.broker, p.logger)
	if p.verifier == nil {
		p.verifier = auth.NewJWTVerifier([]byte(p.cfg.Auth.Secret), p.cfg.Auth.Issuer, p.revocations, p.clock)
	}
	p.broadcaster = broadcast.New(p.relay, p.clock, p.logger)
	p.upgrader = websocket.FastHTTPUpgrader{
		ReadBufferSize:  p.cfg.Socket.ReadBufferSize,
		WriteBufferSize: p.cfg.Socket.WriteBufferSize,
	}

	p.relay.Start()
	p.active = true
	p.logger.Info().Str("instance_id", p.relay.InstanceID()).Msg("sync provider activated")
	return nil
}

// Deactivate stops relaying and drops every local session. The broker
// stays open; its owner closes it.
func (p *SyncProvider) Deactivate() error {
	if !p.active {
		return ErrNotActive
	}
	p.relay.Stop()
	for _, id := range p.hub.Sessions() {
		p.hub.Deregister(id)
	}
	p.cancel()
	p.active = false
	p.logger.Info().Msg("sync provider deactivated")
	return nil
}

// IsActive reports whether Activate has run.
func (p *SyncProvider) IsActive() bool { return p.active }

// Broadcaster is the post-commit entry point for domain services and the
// scheduler.
func (p *SyncProvider) Broadcaster() *broadcast.Broadcaster { return p.broadcaster }

// Hub returns the process connection registry.
func (p *SyncProvider) Hub() *hub.Hub { return p.hub }

// Revocations returns the shared revocation registry.
func (p *SyncProvider) Revocations() *revocation.Registry { return p.revocations }

// InstanceID identifies this process on the broker.
func (p *SyncProvider) InstanceID() string { return p.relay.InstanceID() }
