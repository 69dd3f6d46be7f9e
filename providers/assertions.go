package providers

import (
	"github.com/orchestra-mcp/listsync/src/auth"
	"github.com/orchestra-mcp/listsync/src/broadcast"
	"github.com/orchestra-mcp/listsync/src/broker"
	"github.com/orchestra-mcp/listsync/src/hub"
	"github.com/orchestra-mcp/listsync/src/relay"
	"github.com/orchestra-mcp/listsync/src/revocation"
)

// Compile-time interface assertions.
var (
	_ relay.LocalTarget      = (*hub.Hub)(nil)
	_ broadcast.Publisher    = (*relay.Relay)(nil)
	_ auth.RevocationChecker = (*revocation.Registry)(nil)
	_ auth.Verifier          = (*auth.JWTVerifier)(nil)
	_ broker.Broker          = (*broker.Redis)(nil)
	_ broker.Broker          = (*broker.MemoryClient)(nil)
	_ socketConn             = (*fasthttpConn)(nil)
)
