package client

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchestra-mcp/listsync/src/types"
)

type recordingHandler struct {
	opened   chan Socket
	messages chan []byte
	closed   chan int
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		opened:   make(chan Socket, 1),
		messages: make(chan []byte, 8),
		closed:   make(chan int, 1),
	}
}

func (r *recordingHandler) OnOpen(s Socket)                 { r.opened <- s }
func (r *recordingHandler) OnMessage(s Socket, data []byte) { r.messages <- data }
func (r *recordingHandler) OnClose(s Socket, code int)      { r.closed <- code }

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func waitFor[T any](t *testing.T, ch chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
	var zero T
	return zero
}

func TestWebSocketDialerRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	tokens := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokens <- r.URL.Query().Get("token")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if cmd, err := types.DecodeCommand(data); err == nil && cmd.Type == types.CommandPing {
			conn.WriteJSON(types.NewPong())
		}
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "token revoked")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.ReadMessage()
	}))
	defer srv.Close()

	d := &WebSocketDialer{Logger: zerolog.Nop()}
	h := newRecordingHandler()
	_, err := d.Dial(wsURL(srv)+"?token=abc", h)
	require.NoError(t, err)

	assert.Equal(t, "abc", waitFor(t, tokens))
	s := waitFor(t, h.opened)
	require.NoError(t, s.Send(types.Command{Type: types.CommandPing}))

	ev, err := types.DecodeEvent(waitFor(t, h.messages))
	require.NoError(t, err)
	assert.Equal(t, types.EventPong, ev.Type)

	assert.Equal(t, ClosePolicyViolation, waitFor(t, h.closed))
	assert.ErrorIs(t, s.Send(types.Command{Type: types.CommandPing}), ErrSocketClosed)
}

func TestWebSocketDialerRejectedHandshake(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	d := &WebSocketDialer{Logger: zerolog.Nop()}
	h := newRecordingHandler()
	_, err := d.Dial(wsURL(srv), h)
	require.NoError(t, err)

	assert.Equal(t, ClosePolicyViolation, waitFor(t, h.closed))
}

func TestWebSocketDialerUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	d := &WebSocketDialer{Logger: zerolog.Nop()}
	h := newRecordingHandler()
	_, err := d.Dial(url, h)
	require.NoError(t, err)

	assert.Equal(t, CloseAbnormal, waitFor(t, h.closed))
}

func TestWebSocketDialerClientClose(t *testing.T) {
	upgrader := websocket.Upgrader{}
	codes := make(chan int, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, _, err = conn.ReadMessage()
		if ce, ok := err.(*websocket.CloseError); ok {
			codes <- ce.Code
		}
	}))
	defer srv.Close()

	d := &WebSocketDialer{Logger: zerolog.Nop()}
	h := newRecordingHandler()
	_, err := d.Dial(wsURL(srv), h)
	require.NoError(t, err)

	s := waitFor(t, h.opened)
	require.NoError(t, s.Close(CloseNormal, "idle"))
	assert.Equal(t, CloseNormal, waitFor(t, codes))
}
