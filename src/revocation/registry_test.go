package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/orchestra-mcp/listsync/src/broker"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestRevocationIsGlobal(t *testing.T) {
	backend := broker.NewMemoryBackend()
	t.Cleanup(backend.Shutdown)
	ctx := context.Background()

	processA := New(backend.Connect(zerolog.Nop()), zerolog.Nop())
	processB := New(backend.Connect(zerolog.Nop()), zerolog.Nop())

	assert.False(t, processB.IsRevoked(ctx, "tok-1"))
	assert.True(t, processA.Revoke(ctx, "tok-1", time.Minute))
	assert.True(t, processB.IsRevoked(ctx, "tok-1"))
	assert.False(t, processB.IsRevoked(ctx, "tok-2"))
}

func TestRevokeSkipsExpiredCredentials(t *testing.T) {
	backend := broker.NewMemoryBackend()
	t.Cleanup(backend.Shutdown)
	ctx := context.Background()
	reg := New(backend.Connect(zerolog.Nop()), zerolog.Nop())

	assert.False(t, reg.Revoke(ctx, "tok-1", 0))
	assert.False(t, reg.Revoke(ctx, "tok-2", -time.Second))
	assert.False(t, reg.IsRevoked(ctx, "tok-1"))
	assert.False(t, reg.IsRevoked(ctx, "tok-2"))
}

func TestRevocationExpiresWithCredential(t *testing.T) {
	backend := broker.NewMemoryBackend()
	t.Cleanup(backend.Shutdown)
	ctx := context.Background()
	reg := New(backend.Connect(zerolog.Nop()), zerolog.Nop())

	assert.True(t, reg.Revoke(ctx, "tok-1", 20*time.Millisecond))
	assert.True(t, reg.IsRevoked(ctx, "tok-1"))
	assert.Eventually(t, func() bool { return !reg.IsRevoked(ctx, "tok-1") }, time.Second, 5*time.Millisecond)
}

func TestRevocationDegradesWhenBrokerDown(t *testing.T) {
	backend := broker.NewMemoryBackend()
	t.Cleanup(backend.Shutdown)
	ctx := context.Background()
	client := backend.Connect(zerolog.Nop())
	reg := New(client, zerolog.Nop())

	client.SetDown(true)
	assert.False(t, reg.Revoke(ctx, "tok-1", time.Minute))

	client.SetDown(false)
	assert.False(t, reg.IsRevoked(ctx, "tok-1"))
}
