package aggregate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xaenox/chat-metrics/internal/models"
	"github.com/xaenox/chat-metrics/internal/storage"
	"go.uber.org/zap"
)

type Store interface {
	storage.AnalysisStore
	storage.MetricStore
}

// Aggregator recomputes today's snapshot for every service and upserts it.
type Aggregator struct {
	store  Store
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

func NewAggregator(store Store, opts Options, logger *zap.Logger) *Aggregator {
	return &Aggregator{store: store, opts: opts, logger: logger, now: time.Now}
}

func (a *Aggregator) Run(ctx context.Context) ([]*models.ServiceMetric, error) {
	analyses, err := a.store.ListAnalyses(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load analyses: %w", err)
	}

	now := a.now()
	day := models.Day(now)
	yesterday := day.AddDate(0, 0, -1)

	metrics := Compute(analyses, a.opts)
	for _, m := range metrics {
		m.Date = day
		m.UpdatedAt = now

		previous, err := a.store.GetServiceMetric(ctx, m.Service, yesterday)
		switch {
		case err == nil:
			m.PreviousPeriodTotal = previous.TotalConversations
		case errors.Is(err, storage.ErrNotFound):
			m.PreviousPeriodTotal = 0
		default:
			return nil, fmt.Errorf("failed to load previous metric for %s: %w", m.Service, err)
		}
		m.GrowthRate = GrowthRate(m.TotalConversations, m.PreviousPeriodTotal)

		if anomalies := FunnelAnomalies(m); len(anomalies) > 0 {
			for _, pair := range anomalies {
				a.logger.Warn("Funnel stage exceeds the previous stage",
					zap.String("service", string(m.Service)),
					zap.String("stage", string(pair[1])),
					zap.Int("count", m.Funnel[string(pair[1])]),
					zap.String("previous_stage", string(pair[0])),
					zap.Int("previous_count", m.Funnel[string(pair[0])]))
			}
		}

		if err := a.store.UpsertServiceMetric(ctx, m); err != nil {
			return nil, fmt.Errorf("failed to save metric for %s: %w", m.Service, err)
		}
		a.logger.Info("Service metric updated",
			zap.String("service", string(m.Service)),
			zap.Int("total", m.TotalConversations),
			zap.Int("resolved", m.ResolvedCount),
			zap.Float64("growth_rate", m.GrowthRate),
			zap.String("economic_impact", m.EconomicImpact.StringFixed(2)))
	}
	return metrics, nil
}
