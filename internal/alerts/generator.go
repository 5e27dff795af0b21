package alerts

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/xaenox/chat-metrics/internal/models"
	"github.com/xaenox/chat-metrics/internal/notify"
	"github.com/xaenox/chat-metrics/internal/storage"
	"github.com/xaenox/chat-metrics/internal/telemetry"
	"go.uber.org/zap"
)

type Store interface {
	storage.AnalysisStore
	storage.MetricStore
	storage.AlertStore
}

// Result describes one generator run.
type Result struct {
	Resolved  int             `json:"resolved"`
	Generated int             `json:"generated"`
	Summary   Summary         `json:"summary"`
	Alerts    []*models.Alert `json:"alerts"`
	Errors    []string        `json:"errors,omitempty"`
}

type Generator struct {
	store    Store
	notifier notify.Notifier
	logger   *zap.Logger
	now      func() time.Time
}

func NewGenerator(store Store, notifier notify.Notifier, logger *zap.Logger) *Generator {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Generator{store: store, notifier: notifier, logger: logger, now: time.Now}
}

// Run evaluates the rules against every analysis and today's metrics and
// replaces the active alert set with the result.
func (g *Generator) Run(ctx context.Context) (*Result, error) {
	analyses, err := g.store.ListAnalyses(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load analyses: %w", err)
	}
	now := g.now()
	metrics, err := g.store.ListServiceMetrics(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load service metrics: %w", err)
	}

	generated, ruleErrs := Evaluate(analyses, metrics, now)
	result := &Result{Alerts: generated, Generated: len(generated)}
	for _, err := range ruleErrs {
		g.logger.Error("Alert rule failed", zap.Error(err))
		result.Errors = append(result.Errors, err.Error())
	}

	resolved, err := g.store.ReplaceAlerts(ctx, generated, now)
	if err != nil {
		return nil, fmt.Errorf("failed to replace alerts: %w", err)
	}
	result.Resolved = resolved
	result.Summary = Summarize(generated)

	for _, a := range generated {
		telemetry.AlertsGenerated.WithLabelValues(string(a.Severity)).Inc()
	}
	g.logger.Info("Alerts generated",
		zap.Int("generated", len(generated)),
		zap.Int("resolved", resolved),
		zap.Int("critical", result.Summary.BySeverity[string(models.SeverityCritical)]))

	g.notifier.Notify(ctx, generated)
	return result, nil
}

func (g *Generator) Acknowledge(ctx context.Context, id string) error {
	return g.setStatus(ctx, id, models.AlertAcknowledged)
}

func (g *Generator) Resolve(ctx context.Context, id string) error {
	return g.setStatus(ctx, id, models.AlertResolved)
}

func (g *Generator) setStatus(ctx context.Context, id string, status models.AlertStatus) error {
	if err := g.store.UpdateAlertStatus(ctx, id, status, g.now()); err != nil {
		return fmt.Errorf("error updating alert %s: %w", id, err)
	}
	g.logger.Info("Alert status changed", zap.String("alert_id", id), zap.String("status", string(status)))
	return nil
}

// Summary counts alerts by severity and by type.
type Summary struct {
	Total      int            `json:"total"`
	BySeverity map[string]int `json:"by_severity"`
	ByType     map[string]int `json:"by_type"`
}

func Summarize(alerts []*models.Alert) Summary {
	s := Summary{
		Total:      len(alerts),
		BySeverity: map[string]int{},
		ByType:     map[string]int{},
	}
	for _, a := range alerts {
		s.BySeverity[string(a.Severity)]++
		s.ByType[string(a.Type)]++
	}
	return s
}

var severityRank = map[models.Severity]int{
	models.SeverityCritical: 0,
	models.SeverityUrgent:   1,
	models.SeverityMonitor:  2,
}

// SortByPriority orders alerts by severity, then impact score, then detection time.
func SortByPriority(alerts []*models.Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		a, b := alerts[i], alerts[j]
		if severityRank[a.Severity] != severityRank[b.Severity] {
			return severityRank[a.Severity] < severityRank[b.Severity]
		}
		if a.ImpactScore != b.ImpactScore {
			return a.ImpactScore > b.ImpactScore
		}
		return a.DetectedAt.After(b.DetectedAt)
	})
}
