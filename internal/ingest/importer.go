package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/xaenox/chat-metrics/internal/models"
	"github.com/xaenox/chat-metrics/internal/storage"
	"github.com/xaenox/chat-metrics/internal/telemetry"
	"go.uber.org/zap"
)

type Report struct {
	TotalConversations   int      `json:"totalConversations"`
	SavedConversations   int      `json:"savedConversations"`
	SkippedConversations int      `json:"skippedConversations"`
	TotalMessages        int      `json:"totalMessages"`
	SavedMessages        int      `json:"savedMessages"`
	Errors               []string `json:"errors"`
}

type Importer struct {
	store      storage.ConversationStore
	normalizer *Normalizer
	logger     *zap.Logger
}

func NewImporter(store storage.ConversationStore, logger *zap.Logger) *Importer {
	return &Importer{
		store:      store,
		normalizer: NewNormalizer(logger),
		logger:     logger,
	}
}

// Import normalizes the groups and persists each conversation. Tickets that
// already exist are skipped. A failure on one conversation is recorded and
// the rest continue; only context cancellation stops the run early.
func (i *Importer) Import(ctx context.Context, groups []RawGroup) (*Report, error) {
	conversations := i.normalizer.Normalize(groups)
	report := &Report{
		TotalConversations: len(conversations),
		Errors:             []string{},
	}
	for _, conv := range conversations {
		report.TotalMessages += conv.MessageCount
	}

	for _, conv := range conversations {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		err := i.store.CreateConversation(ctx, conv)
		switch {
		case err == nil:
			report.SavedConversations++
			report.SavedMessages += len(conv.Messages)
			telemetry.ConversationsImported.WithLabelValues("saved").Inc()
			telemetry.MessagesImported.Add(float64(len(conv.Messages)))
		case errors.Is(err, storage.ErrDuplicate):
			report.SkippedConversations++
			telemetry.ConversationsImported.WithLabelValues("skipped").Inc()
			i.logger.Debug("Conversation already imported", zap.String("ticket_id", conv.TicketID))
		default:
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", conv.TicketID, err))
			telemetry.ConversationsImported.WithLabelValues("failed").Inc()
			i.logger.Error("Failed to save conversation",
				zap.Error(err),
				zap.String("ticket_id", conv.TicketID),
				zap.Int("messages", conv.MessageCount))
		}
	}

	i.logger.Info("Import finished",
		zap.Int("total", report.TotalConversations),
		zap.Int("saved", report.SavedConversations),
		zap.Int("skipped", report.SkippedConversations),
		zap.Int("errors", len(report.Errors)))
	return report, nil
}

// Preview normalizes without writing anything.
func (i *Importer) Preview(groups []RawGroup) []*models.Conversation {
	return i.normalizer.Normalize(groups)
}
