package storage

import (
	"context"
	"errors"
	"time"

	"github.com/xaenox/chat-metrics/internal/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

type Storage interface {
	ConversationStore
	AnalysisStore
	MetricStore
	AlertStore
	ImportLogStore

	// Reset removes every record from every table.
	Reset(ctx context.Context) error
	Close() error
}

type ConversationStore interface {
	// CreateConversation stores the conversation and its messages as one unit.
	// It returns ErrDuplicate when the ticket id is already present.
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	GetConversationByTicket(ctx context.Context, ticketID string) (*models.Conversation, error)
	// ListUnanalyzed returns conversations without an analysis, oldest first,
	// with their messages loaded. A limit <= 0 means no limit.
	ListUnanalyzed(ctx context.Context, limit, offset int) ([]*models.Conversation, error)
	CountConversations(ctx context.Context) (int, error)
	CountUnanalyzed(ctx context.Context) (int, error)
	CountMessages(ctx context.Context) (int, error)
	// DeleteConversations removes the tickets together with their messages and analyses.
	DeleteConversations(ctx context.Context, ticketIDs []string) (int, error)
}

type AnalysisStore interface {
	// CreateAnalysis returns ErrDuplicate when the conversation already has one.
	CreateAnalysis(ctx context.Context, a *models.Analysis) error
	GetAnalysis(ctx context.Context, conversationID string) (*models.Analysis, error)
	DeleteAnalysis(ctx context.Context, conversationID string) error
	ListAnalyses(ctx context.Context) ([]*models.Analysis, error)
	CountAnalyses(ctx context.Context) (int, error)
}

type MetricStore interface {
	// UpsertServiceMetric replaces the snapshot keyed by (service, day).
	UpsertServiceMetric(ctx context.Context, m *models.ServiceMetric) error
	GetServiceMetric(ctx context.Context, service models.Service, day time.Time) (*models.ServiceMetric, error)
	ListServiceMetrics(ctx context.Context, day time.Time) ([]*models.ServiceMetric, error)
}

type AlertFilter struct {
	Status   models.AlertStatus
	Severity models.Severity
}

type AlertStore interface {
	// ReplaceAlerts marks every active alert resolved and inserts the new set.
	ReplaceAlerts(ctx context.Context, alerts []*models.Alert, at time.Time) (int, error)
	ListAlerts(ctx context.Context, filter AlertFilter) ([]*models.Alert, error)
	UpdateAlertStatus(ctx context.Context, id string, status models.AlertStatus, at time.Time) error
}

type ImportLogStore interface {
	CreateImportLog(ctx context.Context, l *models.ImportLog) error
	UpdateImportLog(ctx context.Context, l *models.ImportLog) error
	ListImportLogs(ctx context.Context, limit int) ([]*models.ImportLog, error)
}

func dayKey(t time.Time) string {
	return models.Day(t).Format("2006-01-02")
}
