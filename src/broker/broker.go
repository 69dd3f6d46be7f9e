// Package broker wraps the shared key-value and publish/subscribe store
// used for cross-process coordination.
//
// Every operation is best-effort. When the broker is unreachable, Set,
// Exists and Publish return false instead of an error and the caller
// treats the feature as degraded.
package broker

import (
	"context"
	"time"
)

// Handler receives a message published on a subscribed channel.
type Handler func(channel string, payload []byte)

// Broker is the contract shared by the Redis and in-memory
// implementations.
type Broker interface {
	// Set stores value under key for ttl. A non-positive ttl stores
	// without expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) bool

	// Exists reports whether key is present. False when degraded.
	Exists(ctx context.Context, key string) bool

	// Publish sends message to every subscriber of channel, including
	// subscribers in this process.
	Publish(ctx context.Context, channel string, message []byte) bool

	// Subscribe registers handler for channel. Registrations survive
	// broker reconnects.
	Subscribe(channel string, handler Handler)

	// Unsubscribe drops the handler for channel.
	Unsubscribe(channel string)

	// Close releases the broker connection.
	Close() error
}
