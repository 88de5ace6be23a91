package handlers

import (
	"context"
	"fmt"

	"github.com/akinalp/nexus/models"
	"github.com/akinalp/nexus/pkg"
	"github.com/akinalp/nexus/services"
	"github.com/akinalp/nexus/ws"
)

// OpRegistrar, op → handler kaydı yapan taraf (ws.Hub).
type OpRegistrar interface {
	Handle(op string, fn ws.HandlerFunc)
}

// InitiateLimiter, call.initiate için kullanıcı bazlı limit. nil olabilir.
type InitiateLimiter interface {
	Allow(key string) bool
}

// SignalingHandler, WebSocket op'larını service çağrılarına çevirir.
//
// Her metod bir ws.HandlerFunc'tır: payload'ı Bind eder, service'i çağırır,
// dönen error'ı olduğu gibi geri verir. Error event'ini ws.Client yazar.
type SignalingHandler struct {
	callService     services.CallService
	presenceService services.PresenceService
	router          services.SignalingRouter
	limiter         InitiateLimiter
	metrics         *services.Metrics
}

// NewSignalingHandler, constructor.
func NewSignalingHandler(
	callService services.CallService,
	presenceService services.PresenceService,
	router services.SignalingRouter,
	limiter InitiateLimiter,
	metrics *services.Metrics,
) *SignalingHandler {
	return &SignalingHandler{
		callService:     callService,
		presenceService: presenceService,
		router:          router,
		limiter:         limiter,
		metrics:         metrics,
	}
}

// Register, tüm client → server op'larını kaydeder.
// heartbeat ws.Client içinde işlenir, burada yoktur.
func (h *SignalingHandler) Register(r OpRegistrar) {
	r.Handle(ws.OpCallInitiate, h.Initiate)
	r.Handle(ws.OpCallAnswer, h.Answer)
	r.Handle(ws.OpCallReject, h.Reject)
	r.Handle(ws.OpCallCancel, h.Cancel)
	r.Handle(ws.OpCallEnd, h.End)
	r.Handle(ws.OpCallConnected, h.Connected)
	r.Handle(ws.OpCallRemoteDescriptionSet, h.RemoteDescriptionSet)
	r.Handle(ws.OpCallICEState, h.ICEState)
	r.Handle(ws.OpCallICECandidate, h.ICECandidate)
	r.Handle(ws.OpCallScreenShare, h.ScreenShare)
	r.Handle(ws.OpPresenceQuery, h.PresenceQuery)
}

// ─── Bağlantı Yaşam Döngüsü ───

// OnConnect, yeni bağlantıya ready event'ini yazar ve presence'a bildirir.
// ready, presence.online yayınından önce gider; client ilk event olarak
// kendi connection id'sini görür.
func (h *SignalingHandler) OnConnect(userID, connID string) {
	ctx := context.Background()

	h.router.DeliverTo(connID, ws.Event{
		Op: ws.OpReady,
		Data: models.ReadyPayload{
			UserID:       userID,
			ConnectionID: connID,
			OnlineUsers:  h.presenceService.OnlinePeers(ctx, userID),
		},
	})

	h.presenceService.OnConnect(ctx, userID, connID)
}

// OnDisconnect, bağlantı kapanışını presence'a iletir. Açık aramalar
// presence üzerinden CallService.HandleConnectionLost'a ulaşır.
func (h *SignalingHandler) OnDisconnect(_, connID string) {
	h.presenceService.OnDisconnect(context.Background(), connID)
}

// ─── Arama Op'ları ───

// Initiate godoc
// WS call.initiate {callee_id, kind, conversation_ref, sdp_offer, request_id}
// Başarılı olursa call.ringing ack'ini CallService yazar.
func (h *SignalingHandler) Initiate(ctx context.Context, req ws.Request) error {
	var body models.InitiateCallRequest
	if err := req.Bind(&body); err != nil {
		return err
	}

	if h.limiter != nil && !h.limiter.Allow(req.UserID) {
		h.metrics.CallRequestRejected(pkg.CodeRateLimited)
		return fmt.Errorf("%w: too many call attempts", pkg.ErrRateLimited)
	}

	_, err := h.callService.Initiate(ctx, services.InitiateParams{
		CallerID:        req.UserID,
		CallerConnID:    req.ConnID,
		CalleeID:        body.CalleeID,
		Kind:            body.Kind,
		ConversationRef: body.ConversationRef,
		SDPOffer:        body.SDPOffer,
		RequestID:       body.RequestID,
	})
	return err
}

// Answer godoc
// WS call.answer {session_id, sdp_answer}
func (h *SignalingHandler) Answer(ctx context.Context, req ws.Request) error {
	var body models.AnswerCallRequest
	if err := req.Bind(&body); err != nil {
		return err
	}
	return h.callService.Answer(ctx, body.SessionID, req.UserID, req.ConnID, body.SDPAnswer)
}

// Reject godoc
// WS call.reject {session_id}
func (h *SignalingHandler) Reject(ctx context.Context, req ws.Request) error {
	var body models.SessionRequest
	if err := req.Bind(&body); err != nil {
		return err
	}
	return h.callService.Reject(ctx, body.SessionID, req.UserID)
}

// Cancel godoc
// WS call.cancel {session_id}
func (h *SignalingHandler) Cancel(ctx context.Context, req ws.Request) error {
	var body models.SessionRequest
	if err := req.Bind(&body); err != nil {
		return err
	}
	return h.callService.Cancel(ctx, body.SessionID, req.UserID)
}

// End godoc
// WS call.end {session_id}
func (h *SignalingHandler) End(ctx context.Context, req ws.Request) error {
	var body models.SessionRequest
	if err := req.Bind(&body); err != nil {
		return err
	}
	return h.callService.End(ctx, body.SessionID, req.UserID)
}

// Connected godoc
// WS call.connected {session_id}
func (h *SignalingHandler) Connected(ctx context.Context, req ws.Request) error {
	var body models.SessionRequest
	if err := req.Bind(&body); err != nil {
		return err
	}
	return h.callService.ReportConnected(ctx, body.SessionID, req.UserID)
}

// RemoteDescriptionSet godoc
// WS call.remote_description_set {session_id}
func (h *SignalingHandler) RemoteDescriptionSet(ctx context.Context, req ws.Request) error {
	var body models.SessionRequest
	if err := req.Bind(&body); err != nil {
		return err
	}
	return h.callService.MarkRemoteDescriptionSet(ctx, body.SessionID, req.UserID)
}

// ICEState godoc
// WS call.ice_state {session_id, state}
func (h *SignalingHandler) ICEState(ctx context.Context, req ws.Request) error {
	var body models.ICEStateRequest
	if err := req.Bind(&body); err != nil {
		return err
	}
	return h.callService.ReportICEState(ctx, body.SessionID, req.UserID, body.State)
}

// ICECandidate godoc
// WS call.ice_candidate {session_id, candidate, target_side}
func (h *SignalingHandler) ICECandidate(ctx context.Context, req ws.Request) error {
	var body models.ICECandidateRequest
	if err := req.Bind(&body); err != nil {
		return err
	}
	return h.callService.RelayICECandidate(ctx, body.SessionID, req.UserID, body.TargetSide, body.Candidate)
}

// ScreenShare godoc
// WS call.screen_share {session_id, active}
func (h *SignalingHandler) ScreenShare(ctx context.Context, req ws.Request) error {
	var body models.ScreenShareRequest
	if err := req.Bind(&body); err != nil {
		return err
	}
	return h.callService.RelayScreenShare(ctx, body.SessionID, req.UserID, body.Active)
}

// ─── Presence Op'ları ───

// PresenceQuery godoc
// WS presence.query {user_ids} → presence.statuses (sadece isteyen bağlantıya)
func (h *SignalingHandler) PresenceQuery(ctx context.Context, req ws.Request) error {
	var body models.PresenceQueryRequest
	if err := req.Bind(&body); err != nil {
		return err
	}

	statuses, err := h.presenceService.Statuses(ctx, body.UserIDs)
	if err != nil {
		return err
	}

	h.router.DeliverTo(req.ConnID, ws.Event{
		Op:   ws.OpPresenceStatuses,
		Data: models.PresenceStatusesPayload{Statuses: statuses},
	})
	return nil
}
