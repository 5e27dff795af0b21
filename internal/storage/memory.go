package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xaenox/chat-metrics/internal/models"
)

// MemoryStorage keeps everything in maps guarded by one lock. Used for dry
// runs and tests.
type MemoryStorage struct {
	mu            sync.RWMutex
	conversations map[string]*models.Conversation
	tickets       map[string]string
	analyses      map[string]*models.Analysis
	metrics       map[string]*models.ServiceMetric
	alerts        []*models.Alert
	logs          []*models.ImportLog
}

func NewMemoryStorage() *MemoryStorage {
	s := &MemoryStorage{}
	s.init()
	return s
}

func (s *MemoryStorage) init() {
	s.conversations = make(map[string]*models.Conversation)
	s.tickets = make(map[string]string)
	s.analyses = make(map[string]*models.Analysis)
	s.metrics = make(map[string]*models.ServiceMetric)
	s.alerts = nil
	s.logs = nil
}

func (s *MemoryStorage) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tickets[conv.TicketID]; exists {
		return ErrDuplicate
	}
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now()
	}
	stored := *conv
	stored.Messages = make([]*models.Message, len(conv.Messages))
	for i, m := range conv.Messages {
		if m.ID == "" {
			m.ID = uuid.New().String()
		}
		m.ConversationID = conv.ID
		cp := *m
		stored.Messages[i] = &cp
	}
	s.conversations[conv.ID] = &stored
	s.tickets[conv.TicketID] = conv.ID
	return nil
}

func (s *MemoryStorage) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, exists := s.conversations[id]
	if !exists {
		return nil, ErrNotFound
	}
	return copyConversation(conv), nil
}

func (s *MemoryStorage) GetConversationByTicket(ctx context.Context, ticketID string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.tickets[ticketID]
	if !exists {
		return nil, ErrNotFound
	}
	return copyConversation(s.conversations[id]), nil
}

func (s *MemoryStorage) ListUnanalyzed(ctx context.Context, limit, offset int) ([]*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := s.unanalyzed()
	if offset >= len(pending) {
		return []*models.Conversation{}, nil
	}
	pending = pending[offset:]
	if limit > 0 && limit < len(pending) {
		pending = pending[:limit]
	}

	result := make([]*models.Conversation, 0, len(pending))
	for _, conv := range pending {
		result = append(result, copyConversation(conv))
	}
	return result, nil
}

func (s *MemoryStorage) unanalyzed() []*models.Conversation {
	pending := make([]*models.Conversation, 0)
	for id, conv := range s.conversations {
		if _, done := s.analyses[id]; !done {
			pending = append(pending, conv)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].StartedAt.Equal(pending[j].StartedAt) {
			return pending[i].StartedAt.Before(pending[j].StartedAt)
		}
		return pending[i].TicketID < pending[j].TicketID
	})
	return pending
}

func (s *MemoryStorage) CountConversations(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations), nil
}

func (s *MemoryStorage) CountUnanalyzed(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.unanalyzed()), nil
}

func (s *MemoryStorage) CountMessages(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, conv := range s.conversations {
		total += len(conv.Messages)
	}
	return total, nil
}

func (s *MemoryStorage) DeleteConversations(ctx context.Context, ticketIDs []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for _, ticket := range ticketIDs {
		id, exists := s.tickets[ticket]
		if !exists {
			continue
		}
		delete(s.conversations, id)
		delete(s.analyses, id)
		delete(s.tickets, ticket)
		deleted++
	}
	return deleted, nil
}

func (s *MemoryStorage) CreateAnalysis(ctx context.Context, a *models.Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.analyses[a.ConversationID]; exists {
		return ErrDuplicate
	}
	conv, exists := s.conversations[a.ConversationID]
	if !exists {
		return ErrNotFound
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	a.TicketID = conv.TicketID
	cp := *a
	s.analyses[a.ConversationID] = &cp
	return nil
}

func (s *MemoryStorage) GetAnalysis(ctx context.Context, conversationID string) (*models.Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.analyses[conversationID]
	if !exists {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStorage) DeleteAnalysis(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.analyses[conversationID]; !exists {
		return ErrNotFound
	}
	delete(s.analyses, conversationID)
	return nil
}

func (s *MemoryStorage) ListAnalyses(ctx context.Context) ([]*models.Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Analysis, 0, len(s.analyses))
	for _, a := range s.analyses {
		cp := *a
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].TicketID < result[j].TicketID
	})
	return result, nil
}

func (s *MemoryStorage) CountAnalyses(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.analyses), nil
}

func metricKey(service models.Service, day time.Time) string {
	return string(service) + "|" + dayKey(day)
}

func (s *MemoryStorage) UpsertServiceMetric(ctx context.Context, m *models.ServiceMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.Date = models.Day(m.Date)
	key := metricKey(m.Service, m.Date)
	if existing, exists := s.metrics[key]; exists {
		m.ID = existing.ID
	} else if m.ID == "" {
		m.ID = uuid.New().String()
	}
	cp := *m
	s.metrics[key] = &cp
	return nil
}

func (s *MemoryStorage) GetServiceMetric(ctx context.Context, service models.Service, day time.Time) (*models.ServiceMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.metrics[metricKey(service, day)]
	if !exists {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStorage) ListServiceMetrics(ctx context.Context, day time.Time) ([]*models.ServiceMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := dayKey(day)
	result := make([]*models.ServiceMetric, 0)
	for _, m := range s.metrics {
		if dayKey(m.Date) == want {
			cp := *m
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].TotalConversations > result[j].TotalConversations ||
			(result[i].TotalConversations == result[j].TotalConversations && result[i].Service < result[j].Service)
	})
	return result, nil
}

func (s *MemoryStorage) ReplaceAlerts(ctx context.Context, alerts []*models.Alert, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resolved := 0
	for _, a := range s.alerts {
		if a.Status == models.AlertActive {
			a.Status = models.AlertResolved
			ts := at
			a.ResolvedAt = &ts
			resolved++
		}
	}
	for _, a := range alerts {
		if a.ID == "" {
			a.ID = uuid.New().String()
		}
		cp := *a
		s.alerts = append(s.alerts, &cp)
	}
	return resolved, nil
}

func (s *MemoryStorage) ListAlerts(ctx context.Context, filter AlertFilter) ([]*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Alert, 0)
	for i := len(s.alerts) - 1; i >= 0; i-- {
		a := s.alerts[i]
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.Severity != "" && a.Severity != filter.Severity {
			continue
		}
		cp := *a
		result = append(result, &cp)
	}
	return result, nil
}

func (s *MemoryStorage) UpdateAlertStatus(ctx context.Context, id string, status models.AlertStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.alerts {
		if a.ID != id {
			continue
		}
		a.Status = status
		ts := at
		switch status {
		case models.AlertAcknowledged:
			a.AcknowledgedAt = &ts
		case models.AlertResolved:
			a.ResolvedAt = &ts
		}
		return nil
	}
	return ErrNotFound
}

func (s *MemoryStorage) CreateImportLog(ctx context.Context, l *models.ImportLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	cp := *l
	s.logs = append(s.logs, &cp)
	return nil
}

func (s *MemoryStorage) UpdateImportLog(ctx context.Context, l *models.ImportLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.logs {
		if existing.ID == l.ID {
			cp := *l
			s.logs[i] = &cp
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStorage) ListImportLogs(ctx context.Context, limit int) ([]*models.ImportLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.ImportLog, 0)
	for i := len(s.logs) - 1; i >= 0; i-- {
		if limit > 0 && len(result) == limit {
			break
		}
		cp := *s.logs[i]
		result = append(result, &cp)
	}
	return result, nil
}

func (s *MemoryStorage) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	return nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}

func copyConversation(conv *models.Conversation) *models.Conversation {
	cp := *conv
	cp.Messages = make([]*models.Message, len(conv.Messages))
	for i, m := range conv.Messages {
		mc := *m
		cp.Messages[i] = &mc
	}
	return &cp
}
