package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/orchestra-mcp/listsync/src/types"
)

// ErrSocketClosed is returned by Send after Close or a transport failure.
var ErrSocketClosed = errors.New("socket closed")

// ErrSendBufferFull is returned by Send when the outbound queue is full.
var ErrSendBufferFull = errors.New("send buffer full")

// WebSocketDialer dials the sync server over gorilla/websocket.
type WebSocketDialer struct {
	Dialer       *websocket.Dialer
	WriteTimeout time.Duration // 10s
	BufferSize   int           // 64
	Logger       zerolog.Logger
}

// Dial starts connecting in the background and returns at once.
func (d *WebSocketDialer) Dial(url string, h SocketHandler) (Socket, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	writeTimeout := d.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	size := d.BufferSize
	if size <= 0 {
		size = 64
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &wsSocket{
		handler:      h,
		send:         make(chan []byte, size),
		ctx:          ctx,
		cancel:       cancel,
		writeTimeout: writeTimeout,
		logger:       d.Logger,
	}
	go s.run(dialer, url)
	return s, nil
}

type wsSocket struct {
	handler      SocketHandler
	send         chan []byte
	ctx          context.Context
	cancel       context.CancelFunc
	writeTimeout time.Duration
	logger       zerolog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSocket) run(dialer *websocket.Dialer, url string) {
	defer s.cancel()

	ws, resp, err := dialer.DialContext(s.ctx, url, nil)
	if err != nil {
		code := CloseAbnormal
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			code = ClosePolicyViolation
		}
		s.logger.Debug().Err(err).Int("code", code).Msg("dial failed")
		s.handler.OnClose(s, code)
		return
	}

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		ws.Close()
		return
	}
	s.conn = ws
	s.mu.Unlock()
	defer ws.Close()

	s.handler.OnOpen(s)
	go s.writeLoop(ws)

	for {
		messageType, message, err := ws.ReadMessage()
		if err != nil {
			code := CloseAbnormal
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				code = closeErr.Code
			}
			s.cancel()
			s.handler.OnClose(s, code)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		s.handler.OnMessage(s, message)
	}
}

func (s *wsSocket) writeLoop(ws *websocket.Conn) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case message := <-s.send:
			ws.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := ws.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Debug().Err(err).Msg("write failed")
				s.cancel()
				ws.Close()
				return
			}
		}
	}
}

// Send queues cmd for the write loop.
func (s *wsSocket) Send(cmd types.Command) error {
	if s.ctx.Err() != nil {
		return ErrSocketClosed
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	select {
	case s.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close sends a close frame if connected and tears the socket down.
func (s *wsSocket) Close(code int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel()
	if s.conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(code, reason)
	err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.writeTimeout))
	s.conn.Close()
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}
