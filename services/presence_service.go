package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/sirupsen/logrus"

	"github.com/akinalp/nexus/models"
	"github.com/akinalp/nexus/pkg"
	"github.com/akinalp/nexus/ws"
)

var presenceLog = logrus.WithField("component", "presence")

// maxPresenceQuery, tek sorguda istenebilecek kullanıcı sayısı.
const maxPresenceQuery = 200

// ─── ISP Interface'leri ───

// ConnectionTracker, presence'ın kaynağı olan bağlantı tablosu.
// ws.Registry bunu karşılar.
type ConnectionTracker interface {
	Register(userID, connID string) (first bool)
	Unregister(connID string) (userID string, last bool)
	IsOnline(userID string) bool
	OnlineUserIDs() []string
	ConnectionCount() int
}

// ConversationMembership, presence fan-out kapsamı.
// repository.ConversationRepository bunu karşılar.
type ConversationMembership interface {
	PeersOf(ctx context.Context, userID string) ([]string, error)
}

// PresenceStore, last-seen kalıcılığı. repository.UserRepository bunu karşılar.
type PresenceStore interface {
	GetByIDs(ctx context.Context, ids []string) ([]models.User, error)
	UpdatePresence(ctx context.Context, userID string, online bool, lastSeen time.Time) error
}

// ConnectionLostHandler, bağlantı kapanışlarını arama temizliğine iletir.
// CallService bunu karşılar.
type ConnectionLostHandler interface {
	HandleConnectionLost(userID, connID string, last bool)
}

// ─── PresenceService ───

// PresenceService, bağlantı olaylarından online/offline geçişlerini üretir.
//
// Presence her zaman ConnectionTracker'dan türetilir. Duyurulan son durum
// kullanıcı başına tutulur; yeni bir event sadece gerçek durum duyurulandan
// farklıysa yayınlanır. Son bağlantı kapandığında offline, grace süresi
// kadar debounce edilir: bu sürede yeniden bağlanan kullanıcı için ne
// offline ne de ardından gelen online yayınlanır.
type PresenceService interface {
	OnConnect(ctx context.Context, userID, connID string)
	OnDisconnect(ctx context.Context, connID string)

	// Statuses, verilen kullanıcıların anlık durumunu istek sırasıyla döner.
	Statuses(ctx context.Context, userIDs []string) ([]models.PresenceStatus, error)

	// OnlinePeers, kullanıcıyla konuşma paylaşan online kullanıcılar.
	OnlinePeers(ctx context.Context, userID string) []string
}

const presenceStripes = 64

type presenceService struct {
	conns   ConnectionTracker
	peers   ConversationMembership
	store   PresenceStore
	router  SignalingRouter
	calls   ConnectionLostHandler
	metrics *Metrics
	grace   time.Duration
	now     func() time.Time

	// stripes, aynı kullanıcının geçişlerini sıraya sokar.
	stripes [presenceStripes]sync.Mutex

	mu         sync.Mutex
	announced  map[string]bool
	lastSeen   map[string]time.Time
	debouncers map[string]func(func())
}

// NewPresenceService, constructor. calls ve metrics nil olabilir.
func NewPresenceService(
	conns ConnectionTracker,
	peers ConversationMembership,
	store PresenceStore,
	router SignalingRouter,
	calls ConnectionLostHandler,
	metrics *Metrics,
	offlineGrace time.Duration,
) PresenceService {
	return &presenceService{
		conns:      conns,
		peers:      peers,
		store:      store,
		router:     router,
		calls:      calls,
		metrics:    metrics,
		grace:      offlineGrace,
		now:        func() time.Time { return time.Now().UTC() },
		announced:  make(map[string]bool),
		lastSeen:   make(map[string]time.Time),
		debouncers: make(map[string]func(func())),
	}
}

func (s *presenceService) OnConnect(ctx context.Context, userID, connID string) {
	first := s.conns.Register(userID, connID)
	s.updateGauges()

	if first {
		s.reconcile(ctx, userID)
	}
}

func (s *presenceService) OnDisconnect(ctx context.Context, connID string) {
	userID, last := s.conns.Unregister(connID)
	if userID == "" {
		return
	}
	s.updateGauges()

	// Arama temizliği debounce edilmez; bağlı cihazı kopan arama hemen biter.
	if s.calls != nil {
		s.calls.HandleConnectionLost(userID, connID, last)
	}

	if !last {
		return
	}

	s.mu.Lock()
	s.lastSeen[userID] = s.now()
	if s.grace <= 0 {
		s.mu.Unlock()
		s.reconcile(ctx, userID)
		return
	}

	debounced, ok := s.debouncers[userID]
	if !ok {
		debounced = debounce.New(s.grace)
		s.debouncers[userID] = debounced
	}
	s.mu.Unlock()

	debounced(func() {
		s.mu.Lock()
		delete(s.debouncers, userID)
		s.mu.Unlock()

		s.reconcile(context.Background(), userID)
	})
}

// reconcile, kullanıcının gerçek durumunu duyurulan durumla karşılaştırır
// ve farklıysa tek bir presence event'i yayınlar.
func (s *presenceService) reconcile(ctx context.Context, userID string) {
	stripe := s.stripe(userID)
	stripe.Lock()
	defer stripe.Unlock()

	online := s.conns.IsOnline(userID)

	s.mu.Lock()
	if s.announced[userID] == online {
		s.mu.Unlock()
		return
	}
	if online {
		s.announced[userID] = true
	} else {
		delete(s.announced, userID)
	}
	lastSeen, ok := s.lastSeen[userID]
	if !ok || online {
		lastSeen = s.now()
	}
	delete(s.lastSeen, userID)
	s.mu.Unlock()

	var event ws.Event
	eventType := "online"
	if online {
		event = ws.Event{Op: ws.OpPresenceOnline, Data: models.PresenceOnlinePayload{UserID: userID}}
	} else {
		eventType = "offline"
		event = ws.Event{Op: ws.OpPresenceOffline, Data: models.PresenceOfflinePayload{UserID: userID, LastSeenAt: lastSeen}}
	}

	s.broadcast(ctx, userID, event)
	s.metrics.PresenceAnnounced(eventType)
	s.persist(ctx, userID, online, lastSeen)

	presenceLog.WithFields(logrus.Fields{"user_id": userID, "type": eventType}).Debug("presence announced")
}

func (s *presenceService) broadcast(ctx context.Context, userID string, event ws.Event) {
	peers, err := s.peers.PeersOf(ctx, userID)
	if err != nil {
		presenceLog.WithError(err).WithField("user_id", userID).Warn("failed to load presence peers")
		return
	}
	for _, peerID := range peers {
		s.router.Deliver(peerID, event)
	}
}

func (s *presenceService) persist(ctx context.Context, userID string, online bool, lastSeen time.Time) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.store.UpdatePresence(ctx, userID, online, lastSeen); err != nil {
		presenceLog.WithError(err).WithField("user_id", userID).Warn("failed to persist presence")
	}
}

func (s *presenceService) Statuses(ctx context.Context, userIDs []string) ([]models.PresenceStatus, error) {
	if len(userIDs) > maxPresenceQuery {
		return nil, fmt.Errorf("%w: at most %d users per query", pkg.ErrBadRequest, maxPresenceQuery)
	}

	ids := make([]string, 0, len(userIDs))
	seen := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	lastSeen := make(map[string]*time.Time, len(ids))
	if s.store != nil && len(ids) > 0 {
		users, err := s.store.GetByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to load users: %w", err)
		}
		for i := range users {
			lastSeen[users[i].ID] = users[i].LastSeen
		}
	}

	statuses := make([]models.PresenceStatus, 0, len(ids))
	for _, id := range ids {
		status := models.PresenceStatus{UserID: id, Online: s.conns.IsOnline(id)}
		if !status.Online {
			status.LastSeen = lastSeen[id]
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func (s *presenceService) OnlinePeers(ctx context.Context, userID string) []string {
	peers, err := s.peers.PeersOf(ctx, userID)
	if err != nil {
		presenceLog.WithError(err).WithField("user_id", userID).Warn("failed to load presence peers")
		return []string{}
	}

	online := make([]string, 0, len(peers))
	for _, id := range peers {
		if s.conns.IsOnline(id) {
			online = append(online, id)
		}
	}
	return online
}

func (s *presenceService) updateGauges() {
	s.metrics.SetPresence(len(s.conns.OnlineUserIDs()), s.conns.ConnectionCount())
}

func (s *presenceService) stripe(userID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &s.stripes[h.Sum32()%presenceStripes]
}
