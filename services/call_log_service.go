package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/akinalp/nexus/models"
	"github.com/akinalp/nexus/pkg"
)

var historyLog = logrus.WithField("component", "call_log")

// CallLogWriter, call log kalıcılığı için minimal interface.
// repository.CallLogRepository bunu karşılar.
type CallLogWriter interface {
	Create(ctx context.Context, log *models.CallLog) error
	ListByUser(ctx context.Context, userID string, before time.Time, limit int) ([]models.CallLog, error)
}

// CallLogSink, biten aramaların raporlandığı yer. CallService sadece
// bunu görür.
type CallLogSink interface {
	// Record, kaydı kuyruğa atar ve hemen döner. Kuyruk doluysa kayıt
	// düşürülür; signaling yolu asla DB yazımını beklemez.
	Record(entry models.CallLog)
}

// CallLogService, arama geçmişi yazımı ve okuması.
//
// Yazımlar tek bir worker goroutine'de sırayla yapılır. Close kuyrukta
// kalanları yazar ve worker'ı bekler.
type CallLogService interface {
	CallLogSink

	// History, kullanıcının arama geçmişini yeniden eskiye döner.
	History(ctx context.Context, userID string, before time.Time, limit int) ([]models.CallLog, error)

	Close()
}

type callLogService struct {
	repo    CallLogWriter
	metrics *Metrics

	mu     sync.RWMutex
	closed bool
	queue  chan models.CallLog
	wg     sync.WaitGroup
}

// NewCallLogService, constructor. Worker'ı başlatır.
func NewCallLogService(repo CallLogWriter, buffer int, metrics *Metrics) CallLogService {
	if buffer <= 0 {
		buffer = 1
	}
	s := &callLogService{
		repo:    repo,
		metrics: metrics,
		queue:   make(chan models.CallLog, buffer),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *callLogService) Record(entry models.CallLog) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.metrics.CallLogDropped()
		return
	}

	select {
	case s.queue <- entry:
	default:
		s.metrics.CallLogDropped()
		historyLog.WithField("session_id", entry.SessionID).Warn("call log queue full, record dropped")
	}
}

func (s *callLogService) History(ctx context.Context, userID string, before time.Time, limit int) ([]models.CallLog, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", pkg.ErrBadRequest)
	}
	logs, err := s.repo.ListByUser(ctx, userID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list call logs: %w", err)
	}
	return logs, nil
}

func (s *callLogService) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *callLogService) run() {
	defer s.wg.Done()

	for entry := range s.queue {
		s.write(entry)
	}
}

func (s *callLogService) write(entry models.CallLog) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.repo.Create(ctx, &entry); err != nil {
		historyLog.WithError(err).WithField("session_id", entry.SessionID).Error("failed to write call log")
		return
	}
	s.metrics.CallLogWritten()
}

// newCallLog, biten session'dan kayıt üretir. Süre, bağlantı kurulduysa
// connected anından itibaren ölçülür; kurulmadıysa 0'dır.
func newCallLog(session models.CallSession) models.CallLog {
	entry := models.CallLog{
		SessionID:       session.ID,
		CallerID:        session.CallerID,
		CalleeID:        session.CalleeID,
		Kind:            session.Kind,
		ConversationRef: session.ConversationRef,
		StartedAt:       session.CreatedAt,
	}
	if session.EndedAt != nil {
		entry.EndedAt = *session.EndedAt
	}
	if session.EndReason != nil {
		entry.EndReason = *session.EndReason
	}
	if session.ConnectedAt != nil && session.EndedAt != nil {
		entry.DurationMs = session.EndedAt.Sub(*session.ConnectedAt).Milliseconds()
	}
	return entry
}
