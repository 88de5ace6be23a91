package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/akinalp/nexus/config"
	"github.com/akinalp/nexus/models"
	"github.com/akinalp/nexus/pkg"
	"github.com/akinalp/nexus/ws"
)

const (
	audioSDP = "v=0\r\n" +
		"o=- 4611731400430051336 2 IN IP4 127.0.0.1\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n" +
		"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
		"c=IN IP4 0.0.0.0\r\n" +
		"a=rtpmap:111 opus/48000/2\r\n"

	videoSDP = audioSDP +
		"m=video 9 UDP/TLS/RTP/SAVPF 96\r\n" +
		"c=IN IP4 0.0.0.0\r\n" +
		"a=rtpmap:96 VP8/90000\r\n"
)

// recordingSender, ConnectionSender'ın test karşılığı. Her bağlantıya
// yazılan event'leri sırasıyla saklar.
type recordingSender struct {
	mu      sync.Mutex
	events  map[string][]ws.Event
	refused map[string]bool
}

func newRecordingSender() *recordingSender {
	return &recordingSender{
		events:  make(map[string][]ws.Event),
		refused: make(map[string]bool),
	}
}

func (r *recordingSender) SendToConnection(connID string, event ws.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.refused[connID] {
		return false
	}
	r.events[connID] = append(r.events[connID], event)
	return true
}

func (r *recordingSender) refuse(connID string) {
	r.mu.Lock()
	r.refused[connID] = true
	r.mu.Unlock()
}

func (r *recordingSender) eventsFor(connID string) []ws.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]ws.Event, len(r.events[connID]))
	copy(out, r.events[connID])
	return out
}

// withOp, bağlantıya giden event'lerden sadece op'u eşleşenleri döner.
func (r *recordingSender) withOp(connID, op string) []ws.Event {
	var out []ws.Event
	for _, ev := range r.eventsFor(connID) {
		if ev.Op == op {
			out = append(out, ev)
		}
	}
	return out
}

func payload[T any](t *testing.T, ev ws.Event) T {
	t.Helper()
	v, ok := ev.Data.(T)
	require.Truef(t, ok, "unexpected payload type %T for op %s", ev.Data, ev.Op)
	return v
}

type stubDirectory map[string]models.DisplayInfo

func (d stubDirectory) GetDisplayInfo(_ context.Context, userID string) (models.DisplayInfo, error) {
	if info, ok := d[userID]; ok {
		return info, nil
	}
	return models.DisplayInfo{}, pkg.ErrNotFound
}

func (stubDirectory) Invalidate(string) {}
func (stubDirectory) Close()            {}

type recordingSink struct {
	mu   sync.Mutex
	logs []models.CallLog
}

func (s *recordingSink) Record(entry models.CallLog) {
	s.mu.Lock()
	s.logs = append(s.logs, entry)
	s.mu.Unlock()
}

func (s *recordingSink) entries() []models.CallLog {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.CallLog, len(s.logs))
	copy(out, s.logs)
	return out
}

// callHarness, CallService'i gerçek registry, router ve ICE buffer ile kurar.
type callHarness struct {
	registry *ws.Registry
	sender   *recordingSender
	buffer   ICECandidateBuffer
	sink     *recordingSink
	calls    CallService
}

func defaultTimeouts() config.CallConfig {
	return config.CallConfig{
		RingTimeout:     time.Minute,
		ConnectTimeout:  time.Minute,
		ICEFailureGrace: time.Minute,
	}
}

func newCallHarness(t *testing.T, timeouts config.CallConfig) *callHarness {
	t.Helper()

	registry := ws.NewRegistry()
	sender := newRecordingSender()
	router := NewSignalingRouter(registry, sender)
	buffer := NewICECandidateBuffer(router, nil)
	sink := &recordingSink{}
	directory := stubDirectory{
		"u1": {UserID: "u1", DisplayName: "Alice", AvatarRef: "/avatars/u1.png"},
		"u2": {UserID: "u2", DisplayName: "Bob"},
	}

	calls := NewCallService(router, registry, directory, buffer, sink, nil, timeouts)
	t.Cleanup(calls.Shutdown)

	return &callHarness{
		registry: registry,
		sender:   sender,
		buffer:   buffer,
		sink:     sink,
		calls:    calls,
	}
}

func (h *callHarness) initiate(t *testing.T, callerID, callerConn, calleeID string) *models.CallSession {
	t.Helper()
	session, err := h.calls.Initiate(context.Background(), InitiateParams{
		CallerID:     callerID,
		CallerConnID: callerConn,
		CalleeID:     calleeID,
		Kind:         models.CallKindVoice,
		SDPOffer:     audioSDP,
		RequestID:    "req-1",
	})
	require.NoError(t, err)
	return session
}

func (h *callHarness) answered(t *testing.T) *models.CallSession {
	t.Helper()
	h.registry.Register("u1", "c1")
	h.registry.Register("u2", "c2")

	session := h.initiate(t, "u1", "c1", "u2")
	require.NoError(t, h.calls.Answer(context.Background(), session.ID, "u2", "c2", audioSDP))
	return session
}

func (h *callHarness) connected(t *testing.T) *models.CallSession {
	t.Helper()
	session := h.answered(t)
	require.NoError(t, h.calls.ReportConnected(context.Background(), session.ID, "u1"))
	return session
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}
