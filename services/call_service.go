// CallService: 1-on-1 arama signaling ve state machine.
//
// Sunucu medyaya dokunmaz; offer/answer/ICE'ı iki taraf arasında taşır ve
// aramanın durumuna tek başına karar verir. Zaman aşımları client'ın
// timer'larına değil sunucudaki timer'lara bağlıdır.
//
// In-memory state:
//   - sessions: sessionID → *callSession
//   - pairs:    sıralı {userA, userB} → sessionID (çift başına max 1 aktif arama)
//   - byUser:   userID → aktif session'lar (bağlantı kopunca temizlik için)
//
// Kilit sırası: session.mu → s.mu. s.mu tutulurken session kilidi alınmaz.
package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"github.com/akinalp/nexus/config"
	"github.com/akinalp/nexus/models"
	"github.com/akinalp/nexus/pkg"
	"github.com/akinalp/nexus/ws"
)

var callsLog = logrus.WithField("component", "calls")

// ─── FSM Event'leri ───

const (
	eventAnswer    = "answer"
	eventNegotiate = "negotiate"
	eventConnect   = "connect"
	eventReject    = "reject"
	eventCancel    = "cancel"
	eventHangup    = "hangup"
	eventFail      = "fail"
	eventExpire    = "expire"
)

// Hedef taraf değerleri (call.ice_candidate target_side).
const (
	SideCaller = "caller"
	SideCallee = "callee"
)

// ICE connection state değerleri (RTCPeerConnection.iceConnectionState).
const (
	iceStateNew          = "new"
	iceStateChecking     = "checking"
	iceStateConnected    = "connected"
	iceStateCompleted    = "completed"
	iceStateDisconnected = "disconnected"
	iceStateFailed       = "failed"
	iceStateClosed       = "closed"
)

var nonTerminalStates = []string{
	string(models.CallStateRinging),
	string(models.CallStateAnswered),
	string(models.CallStateConnecting),
	string(models.CallStateConnected),
}

func newCallFSM() *fsm.FSM {
	return fsm.NewFSM(
		string(models.CallStateRinging),
		fsm.Events{
			{Name: eventAnswer, Src: []string{string(models.CallStateRinging)}, Dst: string(models.CallStateAnswered)},
			{Name: eventNegotiate, Src: []string{string(models.CallStateAnswered)}, Dst: string(models.CallStateConnecting)},
			{Name: eventConnect, Src: []string{string(models.CallStateAnswered), string(models.CallStateConnecting)}, Dst: string(models.CallStateConnected)},
			{Name: eventReject, Src: []string{string(models.CallStateRinging)}, Dst: string(models.CallStateRejected)},
			{Name: eventCancel, Src: []string{string(models.CallStateRinging)}, Dst: string(models.CallStateCancelled)},
			{Name: eventHangup, Src: nonTerminalStates, Dst: string(models.CallStateEnded)},
			{Name: eventFail, Src: nonTerminalStates, Dst: string(models.CallStateFailed)},
			{Name: eventExpire, Src: []string{string(models.CallStateRinging)}, Dst: string(models.CallStateTimedOut)},
		},
		fsm.Callbacks{},
	)
}

// ─── ISP Interface'leri ───

// PresenceChecker, kullanıcının canlı bağlantısı olup olmadığını söyler.
// ws.Registry bunu karşılar.
type PresenceChecker interface {
	IsOnline(userID string) bool
}

// ─── CallService Interface ───

// InitiateParams, yeni arama isteği.
type InitiateParams struct {
	CallerID        string
	CallerConnID    string // ack'in gideceği ve caller tarafının bağlandığı cihaz
	CalleeID        string
	Kind            models.CallKind
	ConversationRef string
	SDPOffer        string
	RequestID       string
}

// CallService, arama yaşam döngüsü.
//
// Tüm senkron hatalar pkg sentinel'larını sarar:
// ErrBadRequest, ErrNotFound, ErrUnauthorized, ErrConflict, ErrTargetUnreachable.
// Zaman aşımı ve ICE hatası hata değildir; state geçişi ve bildirimdir.
type CallService interface {
	// Initiate, ringing durumunda yeni bir session açar ve call.incoming'i
	// callee'nin tüm cihazlarına iletir.
	Initiate(ctx context.Context, p InitiateParams) (*models.CallSession, error)

	// Answer, ringing → answered. İlk cevaplayan cihaz kazanır.
	Answer(ctx context.Context, sessionID, userID, connID, sdpAnswer string) error

	// Reject, callee ringing'deki aramayı reddeder.
	Reject(ctx context.Context, sessionID, userID string) error

	// Cancel, caller ringing'deki aramayı iptal eder.
	Cancel(ctx context.Context, sessionID, userID string) error

	// End, herhangi bir aktif durumdan ended'a geçer.
	End(ctx context.Context, sessionID, userID string) error

	// ReportConnected, answered/connecting → connected. Zaten connected ise no-op.
	ReportConnected(ctx context.Context, sessionID, userID string) error

	// ReportFailure, herhangi bir aktif durumdan failed'a geçer.
	ReportFailure(ctx context.Context, sessionID string, reason models.EndReason) error

	// ReportICEState, client'ın ICE connection state değişimini işler.
	ReportICEState(ctx context.Context, sessionID, userID, state string) error

	// MarkRemoteDescriptionSet, kullanıcının tarafında remote description
	// uygulandığını bildirir; o tarafa bekleyen candidate'ler iletilir.
	MarkRemoteDescriptionSet(ctx context.Context, sessionID, userID string) error

	// RelayICECandidate, candidate'i karşı tarafa (veya targetSide'a) iletir
	// ya da alıcı hazır değilse kuyruğa atar.
	RelayICECandidate(ctx context.Context, sessionID, senderID, targetSide string, candidate webrtc.ICECandidateInit) error

	// RelayScreenShare, ekran paylaşımı başladı/bitti bilgisini karşı tarafa iletir.
	RelayScreenShare(ctx context.Context, sessionID, userID string, active bool) error

	// HandleConnectionLost, bir bağlantı kapandığında çağrılır. last, kullanıcının
	// son bağlantısı olup olmadığıdır.
	HandleConnectionLost(userID, connID string, last bool)

	// Get, aktif session'ın snapshot'ını döner.
	Get(sessionID string) (*models.CallSession, error)

	// ActiveFor, kullanıcının aktif session'larını döner.
	ActiveFor(userID string) []models.CallSession

	// Shutdown, tüm timer'ları durdurur ve yeni aramaları reddeder.
	Shutdown()
}

// ─── Implementation ───

// callSession, tek bir aramanın canlı kaydı. Tüm alanlar mu ile korunur.
type callSession struct {
	mu sync.Mutex

	data models.CallSession
	fsm  *fsm.FSM
	done bool

	// Tarafların bağlı olduğu cihazlar. Caller initiate'de, callee answer'da bağlanır.
	callerConnID string
	calleeConnID string

	// Ring ve connect timer'ı aynı slot'u paylaşır; gen her kurulum/iptalde
	// artar, eski firing'ler gen uyuşmadığı için no-op olur.
	phaseTimer *time.Timer
	phaseGen   uint64

	iceTimer *time.Timer
	iceGen   uint64
}

type callService struct {
	router   SignalingRouter
	presence PresenceChecker
	users    UserDirectory
	buffer   ICECandidateBuffer
	sink     CallLogSink
	metrics  *Metrics
	timeouts config.CallConfig
	now      func() time.Time

	mu       sync.Mutex
	closed   bool
	sessions map[string]*callSession
	pairs    map[string]string
	byUser   map[string]map[string]*callSession
}

// NewCallService, constructor. sink ve metrics nil olabilir.
func NewCallService(
	router SignalingRouter,
	presence PresenceChecker,
	users UserDirectory,
	buffer ICECandidateBuffer,
	sink CallLogSink,
	metrics *Metrics,
	timeouts config.CallConfig,
) CallService {
	return &callService{
		router:   router,
		presence: presence,
		users:    users,
		buffer:   buffer,
		sink:     sink,
		metrics:  metrics,
		timeouts: timeouts,
		now:      func() time.Time { return time.Now().UTC() },
		sessions: make(map[string]*callSession),
		pairs:    make(map[string]string),
		byUser:   make(map[string]map[string]*callSession),
	}
}

func pairKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return ids[0] + "\x00" + ids[1]
}

// ─── Operasyonlar ───

func (s *callService) Initiate(ctx context.Context, p InitiateParams) (*models.CallSession, error) {
	// 1. İstek doğrulama
	if p.CalleeID == "" {
		return nil, s.rejected(fmt.Errorf("%w: callee_id is required", pkg.ErrBadRequest))
	}
	if p.CallerID == p.CalleeID {
		return nil, s.rejected(fmt.Errorf("%w: cannot call yourself", pkg.ErrBadRequest))
	}
	if !p.Kind.Valid() {
		return nil, s.rejected(fmt.Errorf("%w: invalid call kind %q", pkg.ErrBadRequest, p.Kind))
	}
	if err := validateSDP(p.SDPOffer, p.Kind, true); err != nil {
		return nil, s.rejected(err)
	}

	// 2. Callee'nin canlı bağlantısı yoksa caller hemen öğrenir
	if !s.presence.IsOnline(p.CalleeID) {
		return nil, s.rejected(fmt.Errorf("%w: callee has no live connections", pkg.ErrTargetUnreachable))
	}

	// 3. call.incoming için görünen bilgi. Dizin hatası aramayı engellemez.
	caller, err := s.users.GetDisplayInfo(ctx, p.CallerID)
	if err != nil {
		callsLog.WithError(err).WithField("user_id", p.CallerID).Warn("caller display info unavailable")
		caller = models.DisplayInfo{UserID: p.CallerID, DisplayName: p.CallerID}
	}

	// 4. Session oluştur; çift kontrolü ve kayıt aynı kilit altında
	sess := &callSession{
		data: models.CallSession{
			ID:              uuid.New().String(),
			CallerID:        p.CallerID,
			CalleeID:        p.CalleeID,
			Kind:            p.Kind,
			ConversationRef: p.ConversationRef,
			State:           models.CallStateRinging,
			CreatedAt:       s.now(),
		},
		fsm:          newCallFSM(),
		callerConnID: p.CallerConnID,
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := s.track(sess); err != nil {
		return nil, s.rejected(err)
	}

	s.buffer.Open(sess.data.ID, p.CallerID, p.CalleeID)
	if p.CallerConnID != "" {
		s.buffer.Bind(sess.data.ID, p.CallerID, p.CallerConnID)
	}

	// 5. Callee'nin tüm cihazlarına ilet
	delivered := s.router.Deliver(p.CalleeID, ws.Event{
		Op: ws.OpCallIncoming,
		Data: models.IncomingCallPayload{
			SessionID:         sess.data.ID,
			CallerID:          p.CallerID,
			CallerDisplayName: caller.DisplayName,
			CallerAvatar:      caller.AvatarRef,
			Kind:              p.Kind,
			ConversationRef:   p.ConversationRef,
			SDPOffer:          p.SDPOffer,
		},
	})
	if !delivered {
		// Online kontrolü ile teslim arasında son bağlantı kapandı
		s.discardLocked(sess)
		return nil, s.rejected(fmt.Errorf("%w: callee has no live connections", pkg.ErrTargetUnreachable))
	}

	s.startPhaseTimerLocked(sess, s.timeouts.RingTimeout)

	// 6. Arayan cihaza ack
	s.sendToParty(sess, p.CallerID, ws.Event{
		Op: ws.OpCallRinging,
		Data: models.RingingPayload{
			SessionID: sess.data.ID,
			CalleeID:  p.CalleeID,
			RequestID: p.RequestID,
		},
	})

	s.metrics.CallInitiated(p.Kind)
	s.logFor(sess).WithField("kind", p.Kind).Info("call initiated")

	snapshot := sess.data
	return &snapshot, nil
}

func (s *callService) Answer(ctx context.Context, sessionID, userID, connID, sdpAnswer string) error {
	sess, err := s.acquire(sessionID)
	if err != nil {
		return err
	}
	defer sess.mu.Unlock()

	if userID != sess.data.CalleeID {
		return fmt.Errorf("%w: only the callee can answer", pkg.ErrUnauthorized)
	}
	if err := validateSDP(sdpAnswer, sess.data.Kind, false); err != nil {
		return err
	}
	if err := s.fireLocked(ctx, sess, eventAnswer); err != nil {
		return err
	}

	now := s.now()
	sess.data.AnsweredAt = &now
	sess.calleeConnID = connID
	if connID != "" {
		s.buffer.Bind(sessionID, userID, connID)
	}
	s.startPhaseTimerLocked(sess, s.timeouts.ConnectTimeout)

	s.sendToParty(sess, sess.data.CallerID, ws.Event{
		Op:   ws.OpCallAnswered,
		Data: models.AnsweredPayload{SessionID: sessionID, SDPAnswer: sdpAnswer},
	})
	s.router.DeliverExcept(userID, connID, ws.Event{
		Op:   ws.OpCallAnsweredElsewhere,
		Data: models.SessionPayload{SessionID: sessionID},
	})

	s.logFor(sess).WithField("conn_id", connID).Info("call answered")
	return nil
}

func (s *callService) Reject(ctx context.Context, sessionID, userID string) error {
	sess, err := s.acquire(sessionID)
	if err != nil {
		return err
	}
	defer sess.mu.Unlock()

	if userID != sess.data.CalleeID {
		return fmt.Errorf("%w: only the callee can reject", pkg.ErrUnauthorized)
	}
	if err := s.fireLocked(ctx, sess, eventReject); err != nil {
		return err
	}
	s.sendToParty(sess, sess.data.CallerID, reasonEvent(ws.OpCallRejected, sessionID, models.EndReasonRejected))
	s.router.Deliver(sess.data.CalleeID, reasonEvent(ws.OpCallEnded, sessionID, models.EndReasonRejected))

	s.finishLocked(sess, models.EndReasonRejected)
	return nil
}

func (s *callService) Cancel(ctx context.Context, sessionID, userID string) error {
	sess, err := s.acquire(sessionID)
	if err != nil {
		return err
	}
	defer sess.mu.Unlock()

	if userID != sess.data.CallerID {
		return fmt.Errorf("%w: only the caller can cancel", pkg.ErrUnauthorized)
	}
	return s.cancelLocked(ctx, sess)
}

func (s *callService) End(ctx context.Context, sessionID, userID string) error {
	sess, err := s.acquire(sessionID)
	if err != nil {
		return err
	}
	defer sess.mu.Unlock()

	if !sess.data.Participant(userID) {
		return fmt.Errorf("%w: not a participant of this call", pkg.ErrUnauthorized)
	}

	reason := models.EndReasonCompleted
	if sess.data.State != models.CallStateConnected {
		if userID == sess.data.CallerID {
			reason = models.EndReasonCallerCancelled
		} else {
			reason = models.EndReasonRejected
		}
	}

	wasRinging := sess.data.State == models.CallStateRinging
	if err := s.fireLocked(ctx, sess, eventHangup); err != nil {
		return err
	}
	other := sess.data.OtherParty(userID)
	s.sendToParty(sess, other, reasonEvent(ws.OpCallEnded, sessionID, reason))

	// Ringing'de callee'nin hiçbir cihazı bağlı değil; call.incoming alan
	// tüm cihazlar çalmayı bırakmalı.
	if wasRinging && userID == sess.data.CalleeID {
		s.router.Deliver(userID, reasonEvent(ws.OpCallEnded, sessionID, reason))
	}

	s.finishLocked(sess, reason)
	return nil
}

func (s *callService) ReportConnected(ctx context.Context, sessionID, userID string) error {
	sess, err := s.acquire(sessionID)
	if err != nil {
		return err
	}
	defer sess.mu.Unlock()

	if !sess.data.Participant(userID) {
		return fmt.Errorf("%w: not a participant of this call", pkg.ErrUnauthorized)
	}
	return s.connectLocked(ctx, sess)
}

func (s *callService) ReportFailure(ctx context.Context, sessionID string, reason models.EndReason) error {
	sess, err := s.acquire(sessionID)
	if err != nil {
		return err
	}
	defer sess.mu.Unlock()

	return s.failLocked(ctx, sess, reason)
}

func (s *callService) ReportICEState(ctx context.Context, sessionID, userID, state string) error {
	sess, err := s.acquire(sessionID)
	if err != nil {
		return err
	}
	defer sess.mu.Unlock()

	if !sess.data.Participant(userID) {
		return fmt.Errorf("%w: not a participant of this call", pkg.ErrUnauthorized)
	}

	switch state {
	case iceStateConnected, iceStateCompleted:
		s.stopICETimerLocked(sess)
		if sess.fsm.Can(eventConnect) {
			return s.connectLocked(ctx, sess)
		}
		return nil

	case iceStateDisconnected:
		if s.timeouts.ICEFailureGrace <= 0 {
			return s.failLocked(ctx, sess, models.EndReasonICEFailure)
		}
		if sess.iceTimer == nil {
			s.startICETimerLocked(sess, s.timeouts.ICEFailureGrace)
			s.logFor(sess).WithField("user_id", userID).Debug("ice disconnected, grace timer started")
		}
		return nil

	case iceStateFailed:
		return s.failLocked(ctx, sess, models.EndReasonICEFailure)

	case iceStateNew, iceStateChecking, iceStateClosed:
		return nil
	}

	return fmt.Errorf("%w: unknown ice state %q", pkg.ErrBadRequest, state)
}

func (s *callService) MarkRemoteDescriptionSet(ctx context.Context, sessionID, userID string) error {
	sess, err := s.acquire(sessionID)
	if err != nil {
		return err
	}
	defer sess.mu.Unlock()

	if !sess.data.Participant(userID) {
		return fmt.Errorf("%w: not a participant of this call", pkg.ErrUnauthorized)
	}

	n, err := s.buffer.MarkReadyAndFlush(sessionID, userID)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logFor(sess).WithFields(logrus.Fields{"user_id": userID, "count": n}).Debug("flushed buffered ice candidates")
	}

	if sess.fsm.Can(eventNegotiate) {
		return s.fireLocked(ctx, sess, eventNegotiate)
	}
	return nil
}

func (s *callService) RelayICECandidate(ctx context.Context, sessionID, senderID, targetSide string, candidate webrtc.ICECandidateInit) error {
	sess, err := s.acquire(sessionID)
	if err != nil {
		return err
	}
	defer sess.mu.Unlock()

	if !sess.data.Participant(senderID) {
		return fmt.Errorf("%w: not a participant of this call", pkg.ErrUnauthorized)
	}

	recipient := sess.data.OtherParty(senderID)
	switch targetSide {
	case "":
	case SideCaller:
		recipient = sess.data.CallerID
	case SideCallee:
		recipient = sess.data.CalleeID
	default:
		return fmt.Errorf("%w: invalid target_side %q", pkg.ErrBadRequest, targetSide)
	}
	if recipient == senderID {
		return fmt.Errorf("%w: cannot send a candidate to yourself", pkg.ErrBadRequest)
	}

	remoteDescSet := sess.data.State == models.CallStateConnected
	return s.buffer.BufferOrFlush(sessionID, recipient, BufferedCandidate{
		FromID:    senderID,
		Candidate: candidate,
	}, remoteDescSet)
}

func (s *callService) RelayScreenShare(ctx context.Context, sessionID, userID string, active bool) error {
	sess, err := s.acquire(sessionID)
	if err != nil {
		return err
	}
	defer sess.mu.Unlock()

	if !sess.data.Participant(userID) {
		return fmt.Errorf("%w: not a participant of this call", pkg.ErrUnauthorized)
	}
	if sess.data.State == models.CallStateRinging {
		return fmt.Errorf("%w: call has not been answered", pkg.ErrConflict)
	}

	s.sendToParty(sess, sess.data.OtherParty(userID), ws.Event{
		Op: ws.OpCallScreenShare,
		Data: models.ScreenSharePayload{
			SessionID: sessionID,
			UserID:    userID,
			Active:    active,
		},
	})
	return nil
}

func (s *callService) HandleConnectionLost(userID, connID string, last bool) {
	s.mu.Lock()
	owned := make([]*callSession, 0, len(s.byUser[userID]))
	for _, sess := range s.byUser[userID] {
		owned = append(owned, sess)
	}
	s.mu.Unlock()

	ctx := context.Background()
	for _, sess := range owned {
		sess.mu.Lock()
		if !sess.done {
			s.connectionLostLocked(ctx, sess, userID, connID, last)
		}
		sess.mu.Unlock()
	}
}

func (s *callService) connectionLostLocked(ctx context.Context, sess *callSession, userID, connID string, last bool) {
	bound := sess.callerConnID
	if userID == sess.data.CalleeID {
		bound = sess.calleeConnID
	}
	if !last && (bound == "" || bound != connID) {
		return
	}

	s.logFor(sess).WithFields(logrus.Fields{"user_id": userID, "conn_id": connID}).Info("participant connection lost")

	var err error
	if userID == sess.data.CallerID && sess.data.State == models.CallStateRinging {
		err = s.cancelLocked(ctx, sess)
	} else {
		err = s.failLocked(ctx, sess, models.EndReasonDisconnected)
	}
	if err != nil {
		s.logFor(sess).WithError(err).Warn("failed to clean up call after disconnect")
	}
}

func (s *callService) Get(sessionID string) (*models.CallSession, error) {
	sess, err := s.acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()

	snapshot := sess.data
	return &snapshot, nil
}

func (s *callService) ActiveFor(userID string) []models.CallSession {
	s.mu.Lock()
	owned := make([]*callSession, 0, len(s.byUser[userID]))
	for _, sess := range s.byUser[userID] {
		owned = append(owned, sess)
	}
	s.mu.Unlock()

	result := make([]models.CallSession, 0, len(owned))
	for _, sess := range owned {
		sess.mu.Lock()
		if !sess.done {
			result = append(result, sess.data)
		}
		sess.mu.Unlock()
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

func (s *callService) Shutdown() {
	s.mu.Lock()
	s.closed = true
	all := make([]*callSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	s.mu.Unlock()

	for _, sess := range all {
		sess.mu.Lock()
		s.stopPhaseTimerLocked(sess)
		s.stopICETimerLocked(sess)
		sess.mu.Unlock()
	}

	callsLog.WithField("active", len(all)).Info("call service stopped")
}

// ─── Geçiş yardımcıları (sess.mu tutulurken çağrılır) ───

func (s *callService) fireLocked(ctx context.Context, sess *callSession, event string) error {
	from := sess.fsm.Current()
	if err := sess.fsm.Event(ctx, event); err != nil {
		return fmt.Errorf("%w: cannot %s a call in state %s", pkg.ErrConflict, event, from)
	}
	sess.data.State = models.CallState(sess.fsm.Current())
	return nil
}

func (s *callService) connectLocked(ctx context.Context, sess *callSession) error {
	if sess.data.State == models.CallStateConnected {
		return nil
	}
	if err := s.fireLocked(ctx, sess, eventConnect); err != nil {
		return err
	}
	now := s.now()
	sess.data.ConnectedAt = &now
	s.stopPhaseTimerLocked(sess)
	s.stopICETimerLocked(sess)

	s.logFor(sess).Info("call connected")
	return nil
}

func (s *callService) cancelLocked(ctx context.Context, sess *callSession) error {
	if err := s.fireLocked(ctx, sess, eventCancel); err != nil {
		return err
	}
	s.router.Deliver(sess.data.CalleeID, reasonEvent(ws.OpCallEnded, sess.data.ID, models.EndReasonCallerCancelled))

	s.finishLocked(sess, models.EndReasonCallerCancelled)
	return nil
}

func (s *callService) failLocked(ctx context.Context, sess *callSession, reason models.EndReason) error {
	if err := s.fireLocked(ctx, sess, eventFail); err != nil {
		return err
	}
	event := reasonEvent(ws.OpCallFailed, sess.data.ID, reason)
	s.sendToParty(sess, sess.data.CallerID, event)
	s.sendToParty(sess, sess.data.CalleeID, event)

	s.finishLocked(sess, reason)
	return nil
}

func (s *callService) expireLocked(ctx context.Context, sess *callSession) error {
	if err := s.fireLocked(ctx, sess, eventExpire); err != nil {
		return err
	}
	s.sendToParty(sess, sess.data.CallerID, reasonEvent(ws.OpCallRejected, sess.data.ID, models.EndReasonTimeout))
	s.router.Deliver(sess.data.CalleeID, reasonEvent(ws.OpCallEnded, sess.data.ID, models.EndReasonTimeout))

	s.finishLocked(sess, models.EndReasonTimeout)
	return nil
}

// finishLocked, terminal geçiş bildirildikten sonra session'ı kapatır: timer'lar, ICE
// kuyrukları ve index kayıtları silinir, call log kaydı atılır.
func (s *callService) finishLocked(sess *callSession, reason models.EndReason) {
	now := s.now()
	sess.data.EndedAt = &now
	sess.data.EndReason = &reason
	sess.done = true

	s.stopPhaseTimerLocked(sess)
	s.stopICETimerLocked(sess)
	s.buffer.Drop(sess.data.ID)
	s.untrack(sess)

	var connected time.Duration
	if sess.data.ConnectedAt != nil {
		connected = now.Sub(*sess.data.ConnectedAt)
	}
	s.metrics.CallTerminated(sess.data.State, reason, connected)

	if s.sink != nil {
		s.sink.Record(newCallLog(sess.data))
	}

	s.logFor(sess).WithFields(logrus.Fields{
		"state":  sess.data.State,
		"reason": reason,
	}).Info("call finished")
}

// discardLocked, hiç duyurulmamış bir session'ı iz bırakmadan siler.
func (s *callService) discardLocked(sess *callSession) {
	sess.done = true
	s.stopPhaseTimerLocked(sess)
	s.buffer.Drop(sess.data.ID)
	s.untrack(sess)
}

// ─── Timer'lar ───

func (s *callService) startPhaseTimerLocked(sess *callSession, d time.Duration) {
	s.stopPhaseTimerLocked(sess)
	if d <= 0 {
		return
	}
	gen := sess.phaseGen
	sess.phaseTimer = time.AfterFunc(d, func() { s.onPhaseTimeout(sess, gen) })
}

func (s *callService) stopPhaseTimerLocked(sess *callSession) {
	sess.phaseGen++
	if sess.phaseTimer != nil {
		sess.phaseTimer.Stop()
		sess.phaseTimer = nil
	}
}

func (s *callService) onPhaseTimeout(sess *callSession, gen uint64) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.done || gen != sess.phaseGen {
		return
	}
	sess.phaseTimer = nil

	ctx := context.Background()
	var err error
	switch sess.data.State {
	case models.CallStateRinging:
		s.logFor(sess).Info("ring timeout")
		err = s.expireLocked(ctx, sess)
	case models.CallStateAnswered, models.CallStateConnecting:
		s.logFor(sess).Info("connect timeout")
		err = s.failLocked(ctx, sess, models.EndReasonTimeout)
	}
	if err != nil {
		s.logFor(sess).WithError(err).Warn("timeout transition failed")
	}
}

func (s *callService) startICETimerLocked(sess *callSession, d time.Duration) {
	s.stopICETimerLocked(sess)
	gen := sess.iceGen
	sess.iceTimer = time.AfterFunc(d, func() { s.onICEGraceExpired(sess, gen) })
}

func (s *callService) stopICETimerLocked(sess *callSession) {
	sess.iceGen++
	if sess.iceTimer != nil {
		sess.iceTimer.Stop()
		sess.iceTimer = nil
	}
}

func (s *callService) onICEGraceExpired(sess *callSession, gen uint64) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.done || gen != sess.iceGen {
		return
	}
	sess.iceTimer = nil

	s.logFor(sess).Info("ice did not recover within grace period")
	if err := s.failLocked(context.Background(), sess, models.EndReasonICEFailure); err != nil {
		s.logFor(sess).WithError(err).Warn("ice failure transition failed")
	}
}

// ─── Index ───

func (s *callService) track(sess *callSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("%w: call service is shutting down", pkg.ErrInternal)
	}

	key := pairKey(sess.data.CallerID, sess.data.CalleeID)
	if existing, ok := s.pairs[key]; ok {
		return fmt.Errorf("%w: an active call already exists between these users (%s)", pkg.ErrConflict, existing)
	}

	s.sessions[sess.data.ID] = sess
	s.pairs[key] = sess.data.ID
	for _, id := range []string{sess.data.CallerID, sess.data.CalleeID} {
		owned, ok := s.byUser[id]
		if !ok {
			owned = make(map[string]*callSession)
			s.byUser[id] = owned
		}
		owned[sess.data.ID] = sess
	}
	return nil
}

func (s *callService) untrack(sess *callSession) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sess.data.ID)
	key := pairKey(sess.data.CallerID, sess.data.CalleeID)
	if s.pairs[key] == sess.data.ID {
		delete(s.pairs, key)
	}
	for _, id := range []string{sess.data.CallerID, sess.data.CalleeID} {
		if owned, ok := s.byUser[id]; ok {
			delete(owned, sess.data.ID)
			if len(owned) == 0 {
				delete(s.byUser, id)
			}
		}
	}
}

// acquire, session'ı bulur ve kilitler. Bulunamazsa veya terminal ise
// ErrNotFound döner; başarılı dönüşte çağıran sess.mu.Unlock'tan sorumludur.
func (s *callService) acquire(sessionID string) (*callSession, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session_id is required", pkg.ErrBadRequest)
	}

	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: call session not found", pkg.ErrNotFound)
	}

	sess.mu.Lock()
	if sess.done {
		sess.mu.Unlock()
		return nil, fmt.Errorf("%w: call session has ended", pkg.ErrNotFound)
	}
	return sess, nil
}

// ─── Teslim ───

// sendToParty, event'i tarafın bağlı cihazına, bağlı cihaz yoksa tüm
// cihazlarına gönderir.
func (s *callService) sendToParty(sess *callSession, userID string, event ws.Event) bool {
	connID := sess.callerConnID
	if userID == sess.data.CalleeID {
		connID = sess.calleeConnID
	}
	if connID != "" {
		return s.router.DeliverTo(connID, event)
	}
	return s.router.Deliver(userID, event)
}

func reasonEvent(op, sessionID string, reason models.EndReason) ws.Event {
	return ws.Event{
		Op:   op,
		Data: models.CallReasonPayload{SessionID: sessionID, Reason: reason},
	}
}

func (s *callService) rejected(err error) error {
	s.metrics.CallRequestRejected(pkg.ErrorCode(err))
	return err
}

func (s *callService) logFor(sess *callSession) *logrus.Entry {
	return callsLog.WithFields(logrus.Fields{
		"session_id": sess.data.ID,
		"caller_id":  sess.data.CallerID,
		"callee_id":  sess.data.CalleeID,
	})
}
