package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/nexus/config"
	"github.com/akinalp/nexus/models"
	"github.com/akinalp/nexus/pkg"
	"github.com/akinalp/nexus/services"
	"github.com/akinalp/nexus/ws"
)

// ─── Fake'ler ───

// fakeCalls, services.CallService'in sadece testte kullanılan metodlarını
// karşılar; diğerleri embed edilen nil interface'e düşer ve panic eder.
type fakeCalls struct {
	services.CallService

	mu        sync.Mutex
	initiated []services.InitiateParams
	answered  []string
	ended     []string
	iceStates []string
	err       error
	active    []models.CallSession
}

func (f *fakeCalls) Initiate(_ context.Context, p services.InitiateParams) (*models.CallSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initiated = append(f.initiated, p)
	if f.err != nil {
		return nil, f.err
	}
	return &models.CallSession{ID: "s1", CallerID: p.CallerID, CalleeID: p.CalleeID}, nil
}

func (f *fakeCalls) Answer(_ context.Context, sessionID, userID, connID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answered = append(f.answered, sessionID+"/"+userID+"/"+connID)
	return f.err
}

func (f *fakeCalls) End(_ context.Context, sessionID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, sessionID+"/"+userID)
	return f.err
}

func (f *fakeCalls) ReportICEState(_ context.Context, sessionID, _ string, state string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.iceStates = append(f.iceStates, sessionID+"/"+state)
	return f.err
}

func (f *fakeCalls) ActiveFor(userID string) []models.CallSession {
	var out []models.CallSession
	for _, s := range f.active {
		if s.Participant(userID) {
			out = append(out, s)
		}
	}
	return out
}

type fakePresence struct {
	services.PresenceService

	mu        sync.Mutex
	queried   [][]string
	connected []string
	lost      []string
	peers     []string
}

func (f *fakePresence) Statuses(_ context.Context, ids []string) ([]models.PresenceStatus, error) {
	f.mu.Lock()
	f.queried = append(f.queried, ids)
	f.mu.Unlock()

	if len(ids) > 2 {
		return nil, pkg.ErrBadRequest
	}
	out := make([]models.PresenceStatus, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.PresenceStatus{UserID: id, Online: id == "u1"})
	}
	return out, nil
}

func (f *fakePresence) OnConnect(_ context.Context, userID, connID string) {
	f.mu.Lock()
	f.connected = append(f.connected, userID+"/"+connID)
	f.mu.Unlock()
}

func (f *fakePresence) OnDisconnect(_ context.Context, connID string) {
	f.mu.Lock()
	f.lost = append(f.lost, connID)
	f.mu.Unlock()
}

func (f *fakePresence) OnlinePeers(context.Context, string) []string {
	return f.peers
}

type fakeHistory struct {
	services.CallLogService

	userID string
	before time.Time
	limit  int
}

func (f *fakeHistory) History(_ context.Context, userID string, before time.Time, limit int) ([]models.CallLog, error) {
	f.userID, f.before, f.limit = userID, before, limit
	return []models.CallLog{{ID: "l1", SessionID: "s1", CallerID: userID}}, nil
}

type recordingSender struct {
	mu     sync.Mutex
	events map[string][]ws.Event
}

func (r *recordingSender) SendToConnection(connID string, event ws.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.events == nil {
		r.events = make(map[string][]ws.Event)
	}
	r.events[connID] = append(r.events[connID], event)
	return true
}

func (r *recordingSender) eventsFor(connID string) []ws.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ws.Event(nil), r.events[connID]...)
}

type denyAll struct{}

func (denyAll) Allow(string) bool { return false }

type opTable map[string]ws.HandlerFunc

func (t opTable) Handle(op string, fn ws.HandlerFunc) { t[op] = fn }

type decoded struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) decoded {
	t.Helper()
	var resp decoded
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func authed(r *http.Request, userID string) *http.Request {
	return r.WithContext(WithClaims(r.Context(), &models.TokenClaims{UserID: userID}))
}

// ─── HTTP ───

type counter int

func (c counter) ConnectionCount() int { return int(c) }

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(counter(3)).Health(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec)
	assert.True(t, resp.Success)
	assert.JSONEq(t, `{"status":"ok","service":"nexus","connections":3}`, string(resp.Data))
}

func TestICEHandler_Servers(t *testing.T) {
	h := NewICEHandler(services.NewICEConfigService(config.ICEConfig{
		STUNURLs:       []string{"stun:stun.example.org:3478"},
		TURNURL:        "turn:turn.example.org:3478",
		TURNUsername:   "nexus",
		TURNCredential: "s3cret",
	}))

	rec := httptest.NewRecorder()
	h.Servers(rec, httptest.NewRequest(http.MethodGet, "/api/ice-servers", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var body struct {
		ICEServers []struct {
			URLs     []string `json:"urls"`
			Username string   `json:"username"`
		} `json:"ice_servers"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &body))
	require.Len(t, body.ICEServers, 2)
	assert.Equal(t, []string{"stun:stun.example.org:3478"}, body.ICEServers[0].URLs)
	assert.Equal(t, "nexus", body.ICEServers[1].Username)
}

func TestPresenceHandler_Query(t *testing.T) {
	presence := &fakePresence{}
	h := NewPresenceHandler(presence)

	rec := httptest.NewRecorder()
	h.Query(rec, httptest.NewRequest(http.MethodGet, "/api/presence?user_ids=u1,%20u2", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body models.PresenceStatusesPayload
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &body))
	require.Len(t, body.Statuses, 2)
	assert.True(t, body.Statuses[0].Online)
	assert.Equal(t, "u2", body.Statuses[1].UserID, "ids are trimmed")

	rec = httptest.NewRecorder()
	h.Query(rec, httptest.NewRequest(http.MethodGet, "/api/presence", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.Query(rec, httptest.NewRequest(http.MethodGet, "/api/presence?user_ids=a,b,c", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, pkg.CodeBadRequest, decode(t, rec).Code)
}

func TestCallHandler_Active(t *testing.T) {
	calls := &fakeCalls{active: []models.CallSession{
		{ID: "s1", CallerID: "u1", CalleeID: "u2", State: models.CallStateRinging},
		{ID: "s2", CallerID: "u3", CalleeID: "u4", State: models.CallStateConnected},
	}}
	h := NewCallHandler(calls, &fakeHistory{})

	rec := httptest.NewRecorder()
	h.Active(rec, authed(httptest.NewRequest(http.MethodGet, "/api/calls/active", nil), "u2"))
	require.Equal(t, http.StatusOK, rec.Code)

	var sessions []models.CallSession
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, "s1", sessions[0].ID)

	rec = httptest.NewRecorder()
	h.Active(rec, httptest.NewRequest(http.MethodGet, "/api/calls/active", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCallHandler_History(t *testing.T) {
	history := &fakeHistory{}
	h := NewCallHandler(&fakeCalls{}, history)

	rec := httptest.NewRecorder()
	h.History(rec, authed(httptest.NewRequest(http.MethodGet, "/api/calls/history?before=2026-05-01T12:00:00Z&limit=20", nil), "u1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", history.userID)
	assert.Equal(t, 20, history.limit)
	assert.True(t, history.before.Equal(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)))

	var logs []models.CallLog
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &logs))
	require.Len(t, logs, 1)

	rec = httptest.NewRecorder()
	h.History(rec, authed(httptest.NewRequest(http.MethodGet, "/api/calls/history?limit=5000", nil), "u1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 50, history.limit, "out of range limit falls back to default")
	assert.True(t, history.before.IsZero())

	rec = httptest.NewRecorder()
	h.History(rec, authed(httptest.NewRequest(http.MethodGet, "/api/calls/history?before=yesterday", nil), "u1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ─── WebSocket Op'ları ───

type signalingHarness struct {
	calls    *fakeCalls
	presence *fakePresence
	sender   *recordingSender
	ops      opTable
}

func newSignalingHarness(limiter InitiateLimiter) *signalingHarness {
	registry := ws.NewRegistry()
	sender := &recordingSender{}
	h := &signalingHarness{
		calls:    &fakeCalls{},
		presence: &fakePresence{peers: []string{"u2"}},
		sender:   sender,
		ops:      opTable{},
	}
	NewSignalingHandler(h.calls, h.presence, services.NewSignalingRouter(registry, sender), limiter, nil).Register(h.ops)
	return h
}

func (h *signalingHarness) call(t *testing.T, op, userID, connID, payload string) error {
	t.Helper()
	fn, ok := h.ops[op]
	require.Truef(t, ok, "op %s is not registered", op)
	return fn(context.Background(), ws.Request{UserID: userID, ConnID: connID, Op: op, Data: json.RawMessage(payload)})
}

func TestSignalingHandler_RegistersAllOps(t *testing.T) {
	h := newSignalingHarness(nil)
	for _, op := range []string{
		ws.OpCallInitiate, ws.OpCallAnswer, ws.OpCallReject, ws.OpCallCancel, ws.OpCallEnd,
		ws.OpCallConnected, ws.OpCallRemoteDescriptionSet, ws.OpCallICEState,
		ws.OpCallICECandidate, ws.OpCallScreenShare, ws.OpPresenceQuery,
	} {
		assert.Contains(t, h.ops, op)
	}
	assert.NotContains(t, h.ops, ws.OpHeartbeat)
}

func TestSignalingHandler_Initiate(t *testing.T) {
	h := newSignalingHarness(nil)

	err := h.call(t, ws.OpCallInitiate, "u1", "c1",
		`{"callee_id":"u2","kind":"video","conversation_ref":"dm-1","sdp_offer":"v=0","request_id":"r1"}`)
	require.NoError(t, err)

	require.Len(t, h.calls.initiated, 1)
	assert.Equal(t, services.InitiateParams{
		CallerID:        "u1",
		CallerConnID:    "c1",
		CalleeID:        "u2",
		Kind:            models.CallKindVideo,
		ConversationRef: "dm-1",
		SDPOffer:        "v=0",
		RequestID:       "r1",
	}, h.calls.initiated[0])
}

func TestSignalingHandler_InitiateRateLimited(t *testing.T) {
	h := newSignalingHarness(denyAll{})

	err := h.call(t, ws.OpCallInitiate, "u1", "c1", `{"callee_id":"u2","kind":"voice","sdp_offer":"v=0"}`)
	require.ErrorIs(t, err, pkg.ErrRateLimited)
	assert.Empty(t, h.calls.initiated)
}

func TestSignalingHandler_BadPayload(t *testing.T) {
	h := newSignalingHarness(nil)

	require.ErrorIs(t, h.call(t, ws.OpCallAnswer, "u2", "c2", `{"session_id":`), pkg.ErrBadRequest)
	require.ErrorIs(t, h.call(t, ws.OpCallEnd, "u2", "c2", ``), pkg.ErrBadRequest)
	assert.Empty(t, h.calls.answered)
	assert.Empty(t, h.calls.ended)
}

func TestSignalingHandler_ForwardsCallerIdentity(t *testing.T) {
	h := newSignalingHarness(nil)

	require.NoError(t, h.call(t, ws.OpCallAnswer, "u2", "c2", `{"session_id":"s1","sdp_answer":"v=0"}`))
	require.NoError(t, h.call(t, ws.OpCallICEState, "u2", "c2", `{"session_id":"s1","state":"connected"}`))
	require.NoError(t, h.call(t, ws.OpCallEnd, "u1", "c1", `{"session_id":"s1"}`))

	assert.Equal(t, []string{"s1/u2/c2"}, h.calls.answered)
	assert.Equal(t, []string{"s1/connected"}, h.calls.iceStates)
	assert.Equal(t, []string{"s1/u1"}, h.calls.ended)

	h.calls.err = pkg.ErrNotFound
	require.ErrorIs(t, h.call(t, ws.OpCallEnd, "u1", "c1", `{"session_id":"gone"}`), pkg.ErrNotFound)
}

func TestSignalingHandler_PresenceQuery(t *testing.T) {
	h := newSignalingHarness(nil)

	require.NoError(t, h.call(t, ws.OpPresenceQuery, "u2", "c2", `{"user_ids":["u1","u3"]}`))

	events := h.sender.eventsFor("c2")
	require.Len(t, events, 1)
	assert.Equal(t, ws.OpPresenceStatuses, events[0].Op)
	statuses := events[0].Data.(models.PresenceStatusesPayload).Statuses
	require.Len(t, statuses, 2)
	assert.True(t, statuses[0].Online)

	require.ErrorIs(t, h.call(t, ws.OpPresenceQuery, "u2", "c2", `{"user_ids":["a","b","c"]}`), pkg.ErrBadRequest)
	assert.Len(t, h.sender.eventsFor("c2"), 1, "no statuses event on error")
}

func TestSignalingHandler_Lifecycle(t *testing.T) {
	registry := ws.NewRegistry()
	sender := &recordingSender{}
	presence := &fakePresence{peers: []string{"u2", "u3"}}
	h := NewSignalingHandler(&fakeCalls{}, presence, services.NewSignalingRouter(registry, sender), nil, nil)

	h.OnConnect("u1", "c1")
	h.OnDisconnect("u1", "c1")

	events := sender.eventsFor("c1")
	require.Len(t, events, 1)
	assert.Equal(t, ws.OpReady, events[0].Op)
	assert.Equal(t, models.ReadyPayload{
		UserID:       "u1",
		ConnectionID: "c1",
		OnlineUsers:  []string{"u2", "u3"},
	}, events[0].Data)

	assert.Equal(t, []string{"u1/c1"}, presence.connected)
	assert.Equal(t, []string{"c1"}, presence.lost)
}
