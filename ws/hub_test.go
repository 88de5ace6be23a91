package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/nexus/models"
	"github.com/akinalp/nexus/pkg"
)

// tokenIsUserID, token'ı doğrudan userID olarak kabul eden test validator'ı.
type tokenIsUserID struct{}

func (tokenIsUserID) ValidateAccessToken(token string) (*models.TokenClaims, error) {
	if token == "bad" {
		return nil, pkg.ErrUnauthorized
	}
	return &models.TokenClaims{UserID: token}, nil
}

type lifecycle struct {
	mu          sync.Mutex
	connected   map[string]string // connID → userID
	disconnects chan string
}

func newTestServer(t *testing.T, hub *Hub) (*httptest.Server, *lifecycle) {
	t.Helper()

	lc := &lifecycle{connected: make(map[string]string), disconnects: make(chan string, 16)}
	hub.OnConnect(func(userID, connID string) {
		lc.mu.Lock()
		lc.connected[connID] = userID
		lc.mu.Unlock()
		hub.SendToConnection(connID, Event{Op: OpReady, Data: models.ReadyPayload{UserID: userID, ConnectionID: connID}})
	})
	hub.OnDisconnect(func(userID, connID string) {
		lc.disconnects <- connID
	})

	handler := NewHandler(hub, tokenIsUserID{}, nil, []string{"*"})
	srv := httptest.NewServer(http.HandlerFunc(handler.HandleConnection))
	t.Cleanup(srv.Close)
	return srv, lc
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type wireEvent struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"d"`
	Seq  int64           `json:"seq"`
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev wireEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func readReady(t *testing.T, conn *websocket.Conn) models.ReadyPayload {
	t.Helper()
	ev := readEvent(t, conn)
	require.Equal(t, OpReady, ev.Op)
	var ready models.ReadyPayload
	require.NoError(t, json.Unmarshal(ev.Data, &ready))
	return ready
}

func TestHandler_RejectsMissingOrBadToken(t *testing.T) {
	hub := NewHub()
	srv, _ := newTestServer(t, hub)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(url+"?token=bad", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

type denyAll struct{}

func (denyAll) Allow(string) bool            { return false }
func (denyAll) RetryAfterSeconds(string) int { return 7 }

func TestHandler_ConnectLimit(t *testing.T) {
	hub := NewHub()
	handler := NewHandler(hub, tokenIsUserID{}, denyAll{}, nil)
	srv := httptest.NewServer(http.HandlerFunc(handler.HandleConnection))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=u1"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "7", resp.Header.Get("Retry-After"))
}

func TestHub_ConnectSendAndHeartbeat(t *testing.T) {
	hub := NewHub()
	srv, _ := newTestServer(t, hub)

	conn := dial(t, srv, "u1")
	ready := readReady(t, conn)
	assert.Equal(t, "u1", ready.UserID)
	assert.NotEmpty(t, ready.ConnectionID)

	require.True(t, hub.SendToConnection(ready.ConnectionID, Event{Op: "custom", Data: map[string]string{"k": "v"}}))
	ev := readEvent(t, conn)
	assert.Equal(t, "custom", ev.Op)
	assert.Positive(t, ev.Seq)

	require.NoError(t, conn.WriteJSON(map[string]string{"op": OpHeartbeat}))
	ack := readEvent(t, conn)
	assert.Equal(t, OpHeartbeatAck, ack.Op)
	assert.Greater(t, ack.Seq, ev.Seq)

	assert.False(t, hub.SendToConnection("unknown-conn", Event{Op: "x"}))
}

func TestHub_HandlerErrorsBecomeErrorEvents(t *testing.T) {
	hub := NewHub()
	hub.Handle("call.answer", func(ctx context.Context, req Request) error {
		var p models.AnswerCallRequest
		if err := req.Bind(&p); err != nil {
			return err
		}
		return fmt.Errorf("%w: already answered", pkg.ErrConflict)
	})
	srv, _ := newTestServer(t, hub)

	conn := dial(t, srv, "u1")
	readReady(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"op":"call.answer","d":{"session_id":"s-1","sdp_answer":"x"}}`)))
	ev := readEvent(t, conn)
	require.Equal(t, OpError, ev.Op)

	var payload models.ErrorPayload
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	assert.Equal(t, "call.answer", payload.Op)
	assert.Equal(t, "s-1", payload.SessionID)
	assert.Equal(t, pkg.CodeConflict, payload.Code)

	// Payload'sız istek → bad_request
	require.NoError(t, conn.WriteJSON(map[string]string{"op": "call.answer"}))
	ev = readEvent(t, conn)
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	assert.Equal(t, pkg.CodeBadRequest, payload.Code)

	// Bilinmeyen op → bad_request
	require.NoError(t, conn.WriteJSON(map[string]string{"op": "nope"}))
	ev = readEvent(t, conn)
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	assert.Equal(t, "nope", payload.Op)
	assert.Equal(t, pkg.CodeBadRequest, payload.Code)

	// Bozuk JSON → bad_request, bağlantı açık kalır
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{not json`)))
	ev = readEvent(t, conn)
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	assert.Equal(t, pkg.CodeBadRequest, payload.Code)
}

func TestHub_EventsOfOneConnectionAreHandledInOrder(t *testing.T) {
	hub := NewHub()

	var (
		mu   sync.Mutex
		seen []int
		done = make(chan struct{})
	)
	const n = 100
	hub.Handle("seq", func(ctx context.Context, req Request) error {
		var p struct {
			N int `json:"n"`
		}
		if err := req.Bind(&p); err != nil {
			return err
		}
		mu.Lock()
		seen = append(seen, p.N)
		if len(seen) == n {
			close(done)
		}
		mu.Unlock()
		return nil
	})
	srv, _ := newTestServer(t, hub)

	conn := dial(t, srv, "u1")
	readReady(t, conn)

	for i := 0; i < n; i++ {
		require.NoError(t, conn.WriteJSON(map[string]any{"op": "seq", "d": map[string]int{"n": i}}))
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("handler did not receive all events")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range seen {
		require.Equal(t, i, v)
	}
}

func TestHub_DisconnectRunsAfterConnect(t *testing.T) {
	hub := NewHub()
	srv, lc := newTestServer(t, hub)

	conn := dial(t, srv, "u1")
	ready := readReady(t, conn)
	require.NoError(t, conn.Close())

	select {
	case connID := <-lc.disconnects:
		assert.Equal(t, ready.ConnectionID, connID)
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect callback not called")
	}

	lc.mu.Lock()
	assert.Equal(t, "u1", lc.connected[ready.ConnectionID])
	lc.mu.Unlock()

	assert.Eventually(t, func() bool { return hub.ConnectionCount() == 0 }, time.Second, 10*time.Millisecond)
	assert.False(t, hub.SendToConnection(ready.ConnectionID, Event{Op: "x"}))
}

func TestHub_ShutdownClosesConnections(t *testing.T) {
	hub := NewHub()
	srv, lc := newTestServer(t, hub)

	c1 := dial(t, srv, "u1")
	c2 := dial(t, srv, "u2")
	readReady(t, c1)
	readReady(t, c2)

	require.NoError(t, hub.Shutdown(context.Background()))

	for i := 0; i < 2; i++ {
		select {
		case <-lc.disconnects:
		case <-time.After(2 * time.Second):
			t.Fatal("shutdown did not disconnect all clients")
		}
	}

	_ = c1.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := c1.ReadMessage()
	var closeErr *websocket.CloseError
	if assert.True(t, errors.As(err, &closeErr)) {
		assert.Equal(t, websocket.CloseGoingAway, closeErr.Code)
	}

	// Shutdown sonrası yeni bağlantı kabul edilmez
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=u3"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		_, _, err = conn.ReadMessage()
		assert.Error(t, err)
		conn.Close()
	}
}

// newShutdownServer, OnDisconnect'i sunucu başlamadan önce bağlar.
func newShutdownServer(t *testing.T, hub *Hub, onDisconnect func(userID, connID string)) *httptest.Server {
	t.Helper()
	hub.OnConnect(func(userID, connID string) {
		hub.SendToConnection(connID, Event{Op: OpReady, Data: models.ReadyPayload{UserID: userID, ConnectionID: connID}})
	})
	hub.OnDisconnect(onDisconnect)

	handler := NewHandler(hub, tokenIsUserID{}, nil, []string{"*"})
	srv := httptest.NewServer(http.HandlerFunc(handler.HandleConnection))
	t.Cleanup(srv.Close)
	return srv
}

func TestHub_ShutdownWaitsForDisconnectCallbacks(t *testing.T) {
	hub := NewHub()
	var finished atomic.Int32
	srv := newShutdownServer(t, hub, func(userID, connID string) {
		time.Sleep(20 * time.Millisecond)
		finished.Add(1)
	})

	c1 := dial(t, srv, "u1")
	c2 := dial(t, srv, "u2")
	readReady(t, c1)
	readReady(t, c2)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, hub.Shutdown(ctx))

	assert.Equal(t, int32(2), finished.Load(), "every OnDisconnect must have returned")
}

func TestHub_ShutdownHonoursContext(t *testing.T) {
	hub := NewHub()
	release := make(chan struct{})
	srv := newShutdownServer(t, hub, func(userID, connID string) { <-release })
	t.Cleanup(func() { close(release) })

	c1 := dial(t, srv, "u1")
	readReady(t, c1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, hub.Shutdown(ctx), context.DeadlineExceeded)
}
