package providers

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/orchestra-mcp/listsync/src/hub"
	"github.com/orchestra-mcp/listsync/src/types"
)

// SocketPath is where the WebSocket upgrade is served.
const SocketPath = "/ws"

// RegisterRoutes registers the HTTP routes via Fiber. The WebSocket
// upgrade itself is served by FastHTTPHandler, since Fiber v3 does not
// hand out the raw *fasthttp.RequestCtx.
func (p *SyncProvider) RegisterRoutes(group fiber.Router) {
	group.Get("/ws/info", p.handleInfo)
	group.Get("/ws/sessions", p.requireAuth, p.handleSessions)
	group.Get("/ws/scopes", p.requireAuth, p.handleScopes)
	group.Delete("/ws/session", p.requireAuth, p.handleSignOut)
}

// Handler serves the upgrade path itself and everything else from app.
func (p *SyncProvider) Handler(app *fiber.App) fasthttp.RequestHandler {
	upgrade := p.FastHTTPHandler()
	rest := app.Handler()
	return func(ctx *fasthttp.RequestCtx) {
		if bytes.Equal(ctx.Path(), []byte(SocketPath)) {
			upgrade(ctx)
			return
		}
		rest(ctx)
	}
}

// FastHTTPHandler returns a raw fasthttp handler for WebSocket upgrades.
// The credential travels in the token query parameter. A rejected
// credential still completes the upgrade and is then closed with 1008,
// which clients treat as terminal.
func (p *SyncProvider) FastHTTPHandler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if !websocket.FastHTTPIsWebSocketUpgrade(ctx) {
			ctx.SetStatusCode(fasthttp.StatusUpgradeRequired)
			ctx.SetContentType("application/json")
			ctx.SetBodyString(`{"error":"upgrade_required","message":"WebSocket upgrade required"}`)
			return
		}

		token := string(ctx.QueryArgs().Peek("token"))
		err := p.upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
			p.accept(&fasthttpConn{conn: conn, writeTimeout: p.cfg.Socket.WriteDeadline()}, token)
		})
		if err != nil {
			p.logger.Error().Err(err).Msg("websocket upgrade failed")
		}
	}
}

// socketConn is an upgraded connection that can also close with a code.
type socketConn interface {
	types.Conn
	CloseWith(code int, reason string) error
}

// accept authenticates an upgraded connection and serves it until it
// ends.
func (p *SyncProvider) accept(conn socketConn, token string) {
	s, err := p.admit(p.ctx, token)
	if err != nil {
		code := websocket.ClosePolicyViolation
		if errors.Is(err, hub.ErrCapacity) {
			code = websocket.CloseTryAgainLater
		}
		p.logger.Info().Err(err).Int("code", code).Msg("socket rejected")
		conn.CloseWith(code, "connection rejected")
		return
	}
	p.serve(s, conn)
}

// admit verifies the credential and registers a session subscribed to
// the account's own scope and its household scopes.
func (p *SyncProvider) admit(ctx context.Context, token string) (*hub.Session, error) {
	claims, err := p.verifier.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	s, err := p.hub.Register(uuid.New().String(), claims.AccountID, claims.DisplayName)
	if err != nil {
		return nil, err
	}
	if len(claims.Households) > 0 {
		scopes := make([]string, 0, len(claims.Households))
		for _, id := range claims.Households {
			scopes = append(scopes, types.HouseholdScope(id))
		}
		p.hub.Subscribe(s.ID, scopes)
	}
	return s, nil
}

// serve runs the pumps of an admitted session.
func (p *SyncProvider) serve(s *hub.Session, conn types.Conn) {
	client := hub.NewClient(s, conn, p.hub, p.cfg.Socket.PingEvery(), p.cfg.Socket.WriteDeadline())
	go client.WritePump()
	client.ReadPump(p.ctx)
}

// fasthttpConn wraps fasthttp/websocket.Conn to satisfy socketConn.
type fasthttpConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (f *fasthttpConn) ReadMessage() (int, []byte, error) { return f.conn.ReadMessage() }
func (f *fasthttpConn) WriteMessage(t int, data []byte) error {
	return f.conn.WriteMessage(t, data)
}
func (f *fasthttpConn) SetWriteDeadline(t time.Time) error { return f.conn.SetWriteDeadline(t) }
func (f *fasthttpConn) Close() error                       { return f.conn.Close() }

func (f *fasthttpConn) CloseWith(code int, reason string) error {
	timeout := f.writeTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	msg := websocket.FormatCloseMessage(code, reason)
	err := f.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(timeout))
	f.conn.Close()
	return err
}
