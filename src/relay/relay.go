// Package relay turns locally originated domain events into cluster-wide
// deliveries. Every event goes out on one broker channel and comes back
// through each process's subscription handler, including the origin's
// own. Local sockets are only ever written from that handler.
package relay

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/orchestra-mcp/listsync/src/broker"
	"github.com/orchestra-mcp/listsync/src/types"
	"github.com/rs/zerolog"
)

// Channel is the single broker channel all events travel on. Routing
// happens at delivery time using the envelope scope.
const Channel = "events"

// envelope wraps a serialized event with its routing scope. Event is
// kept raw so every local session receives identical bytes.
type envelope struct {
	ID     string          `json:"id"`
	Origin string          `json:"origin"`
	Scope  string          `json:"scope"`
	Type   types.EventType `json:"type"`
	Event  json.RawMessage `json:"event"`
}

// LocalTarget is implemented by the Hub to receive relayed events.
type LocalTarget interface {
	ConnectionsFor(scope string) []string
	Send(sessionID string, payload []byte) bool
	UnsubscribeAccount(accountID string, scopes ...string) int
}

// Relay publishes events to the broker and fans them out locally.
type Relay struct {
	broker     broker.Broker
	target     LocalTarget
	instanceID string
	logger     zerolog.Logger
}

// New creates a relay between b and the local hub.
func New(b broker.Broker, target LocalTarget, logger zerolog.Logger) *Relay {
	id := uuid.New().String()
	return &Relay{
		broker:     b,
		target:     target,
		instanceID: id,
		logger:     logger.With().Str("component", "relay").Str("instance_id", id).Logger(),
	}
}

// InstanceID identifies this process in envelopes.
func (r *Relay) InstanceID() string { return r.instanceID }

// Start subscribes to the event channel. Call once per process.
func (r *Relay) Start() {
	r.broker.Subscribe(Channel, r.handleMessage)
	r.logger.Info().Str("channel", Channel).Msg("relay started")
}

// Stop drops the event channel subscription.
func (r *Relay) Stop() {
	r.broker.Unsubscribe(Channel)
}

// Publish sends ev to every process. It never delivers locally on its
// own: if the broker rejects the publish, no connection anywhere sees
// the event.
func (r *Relay) Publish(ctx context.Context, scope string, ev types.Event) bool {
	raw, err := json.Marshal(ev)
	if err != nil {
		r.logger.Error().Err(err).Str("type", string(ev.Type)).Msg("encode event")
		return false
	}
	env := envelope{
		ID:     ulid.Make().String(),
		Origin: r.instanceID,
		Scope:  scope,
		Type:   ev.Type,
		Event:  raw,
	}
	data, err := json.Marshal(env)
	if err != nil {
		r.logger.Error().Err(err).Msg("encode envelope")
		return false
	}
	if !r.broker.Publish(ctx, Channel, data) {
		r.logger.Warn().
			Str("event_id", env.ID).
			Str("type", string(ev.Type)).
			Str("scope", scope).
			Msg("event not published, push lost")
		return false
	}
	return true
}

// handleMessage runs on the broker's delivery goroutine.
func (r *Relay) handleMessage(_ string, payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		r.logger.Warn().Err(err).Msg("dropping malformed envelope")
		return
	}
	if env.Scope == "" || len(env.Event) == 0 {
		r.logger.Warn().Str("event_id", env.ID).Msg("dropping envelope without scope or event")
		return
	}

	n := r.DeliverLocally(env.Scope, env.Event)
	r.logger.Debug().
		Str("event_id", env.ID).
		Str("from_instance", env.Origin).
		Str("scope", env.Scope).
		Int("sessions", n).
		Msg("relayed event")

	if env.Type == types.EventAccessRevoked {
		r.dropRevokedAccess(env.Event)
	}
}

// DeliverLocally queues payload on every local session subscribed to
// scope and returns how many accepted it. Full buffers drop the payload.
func (r *Relay) DeliverLocally(scope string, payload []byte) int {
	delivered := 0
	for _, id := range r.target.ConnectionsFor(scope) {
		if r.target.Send(id, payload) {
			delivered++
		}
	}
	return delivered
}

// dropRevokedAccess stops list pushes to an account that lost access.
func (r *Relay) dropRevokedAccess(raw json.RawMessage) {
	ev, err := types.DecodeEvent(raw)
	if err != nil || ev.AccountID == "" || ev.ListID == "" {
		return
	}
	if n := r.target.UnsubscribeAccount(ev.AccountID, ev.ListID); n > 0 {
		r.logger.Info().
			Str("account_id", ev.AccountID).
			Str("list_id", ev.ListID).
			Int("subscriptions", n).
			Msg("access revoked, subscriptions dropped")
	}
}
