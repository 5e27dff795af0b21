package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/xaenox/chat-metrics/internal/aggregate"
	"github.com/xaenox/chat-metrics/internal/alerts"
	"github.com/xaenox/chat-metrics/internal/classifier"
	"github.com/xaenox/chat-metrics/internal/ingest"
	"github.com/xaenox/chat-metrics/internal/models"
	"github.com/xaenox/chat-metrics/internal/notify"
	"github.com/xaenox/chat-metrics/internal/storage"
	"github.com/xaenox/chat-metrics/internal/telemetry"
	"go.uber.org/zap"
)

type Options struct {
	Analyze   AnalyzeOptions
	Aggregate aggregate.Options
}

// Runner drives the stages against one store and records every operation in
// the import log.
type Runner struct {
	store      storage.Storage
	importer   *ingest.Importer
	analyzer   *Analyzer
	aggregator *aggregate.Aggregator
	generator  *alerts.Generator
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

func NewRunner(store storage.Storage, tagger classifier.Tagger, notifier notify.Notifier, opts Options, logger *zap.Logger) *Runner {
	return &Runner{
		store:      store,
		importer:   ingest.NewImporter(store, logger),
		analyzer:   NewAnalyzer(store, tagger, opts.Analyze, logger),
		aggregator: aggregate.NewAggregator(store, opts.Aggregate, logger),
		generator:  alerts.NewGenerator(store, notifier, logger),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
		now:        time.Now,
	}
}

func (r *Runner) Analyzer() *Analyzer       { return r.analyzer }
func (r *Runner) Alerts() *alerts.Generator { return r.generator }
func (r *Runner) Store() storage.Storage    { return r.store }

// track wraps one operation in an import log entry and a duration sample.
func (r *Runner) track(ctx context.Context, op models.Operation, entry *models.ImportLog, fn func(*models.ImportLog) error) error {
	started := r.now()
	entry.Operation = op
	entry.Status = models.ImportStarted
	entry.StartedAt = started
	if err := r.store.CreateImportLog(ctx, entry); err != nil {
		r.logger.Error("Failed to create import log", zap.Error(err), zap.String("operation", string(op)))
	}

	runErr := fn(entry)

	completed := r.now()
	entry.CompletedAt = &completed
	entry.ProcessingTime = completed.Sub(started)
	entry.Status = models.ImportCompleted
	if runErr != nil {
		entry.Status = models.ImportFailed
		entry.Errors = append(entry.Errors, runErr.Error())
		entry.ErrorCount++
	}
	if entry.ID != "" {
		if err := r.store.UpdateImportLog(context.WithoutCancel(ctx), entry); err != nil {
			r.logger.Error("Failed to update import log", zap.Error(err), zap.String("operation", string(op)))
		}
	}
	telemetry.OperationDurationSeconds.
		WithLabelValues(string(op), string(entry.Status)).
		Observe(entry.ProcessingTime.Seconds())
	return runErr
}

// Import loads the export from src and stores every new conversation.
func (r *Runner) Import(ctx context.Context, src ingest.Source, fileName string) (*ingest.Report, error) {
	var report *ingest.Report
	entry := &models.ImportLog{FileName: fileName}
	err := r.track(ctx, models.OperationConversations, entry, func(l *models.ImportLog) error {
		groups, size, err := ingest.Load(ctx, r.httpClient, src)
		if err != nil {
			return err
		}
		l.FileSize = size
		report, err = r.importer.Import(ctx, groups)
		if report != nil {
			l.TotalItems = report.TotalConversations
			l.ProcessedItems = report.SavedConversations
			l.ErrorCount = len(report.Errors)
			l.Errors = append(l.Errors, report.Errors...)
		}
		return err
	})
	return report, err
}

func (r *Runner) Analyze(ctx context.Context, limit, skip int) (*BatchReport, error) {
	var report *BatchReport
	err := r.track(ctx, models.OperationAnalyze, &models.ImportLog{}, func(l *models.ImportLog) error {
		var err error
		report, err = r.analyzer.Run(ctx, limit, skip)
		if report != nil {
			l.TotalItems = report.Total
			l.ProcessedItems = report.Processed
			l.ErrorCount = report.Errors
			l.Errors = append(l.Errors, report.ErrorMessages...)
		}
		return err
	})
	return report, err
}

type AggregateReport struct {
	Metrics []*models.ServiceMetric `json:"metrics"`
	Alerts  *alerts.Result          `json:"alerts"`
}

// Aggregate refreshes today's service metrics and then regenerates alerts.
func (r *Runner) Aggregate(ctx context.Context) (*AggregateReport, error) {
	report := &AggregateReport{}
	err := r.track(ctx, models.OperationMetrics, &models.ImportLog{}, func(l *models.ImportLog) error {
		metrics, err := r.aggregator.Run(ctx)
		if err != nil {
			return err
		}
		report.Metrics = metrics
		l.TotalItems = len(metrics)
		l.ProcessedItems = len(metrics)

		result, err := r.generator.Run(ctx)
		if err != nil {
			return err
		}
		report.Alerts = result
		l.ErrorCount = len(result.Errors)
		l.Errors = append(l.Errors, result.Errors...)
		return nil
	})
	return report, err
}

// RunAll imports src, tags everything pending and aggregates.
func (r *Runner) RunAll(ctx context.Context, src ingest.Source, fileName string) (*RunReport, error) {
	report := &RunReport{}
	var err error
	if report.Import, err = r.Import(ctx, src, fileName); err != nil {
		return report, err
	}
	if report.Analyze, err = r.Analyze(ctx, 0, 0); err != nil {
		return report, err
	}
	report.Aggregate, err = r.Aggregate(ctx)
	return report, err
}

type RunReport struct {
	Import    *ingest.Report   `json:"import"`
	Analyze   *BatchReport     `json:"analyze"`
	Aggregate *AggregateReport `json:"aggregate"`
}

type Status struct {
	Conversations int                 `json:"conversations"`
	Messages      int                 `json:"messages"`
	Analyses      int                 `json:"analyses"`
	Pending       int                 `json:"pending"`
	Progress      float64             `json:"progress"`
	Services      map[string]int      `json:"services"`
	Metrics       int                 `json:"metrics"`
	ActiveAlerts  int                 `json:"activeAlerts"`
	RecentRuns    []*models.ImportLog `json:"recentRuns"`
}

func (r *Runner) Status(ctx context.Context) (*Status, error) {
	var s Status
	var err error
	if s.Conversations, err = r.store.CountConversations(ctx); err != nil {
		return nil, fmt.Errorf("failed to count conversations: %w", err)
	}
	if s.Messages, err = r.store.CountMessages(ctx); err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}
	if s.Pending, err = r.store.CountUnanalyzed(ctx); err != nil {
		return nil, fmt.Errorf("failed to count unanalyzed conversations: %w", err)
	}

	analyses, err := r.store.ListAnalyses(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load analyses: %w", err)
	}
	s.Analyses = len(analyses)
	s.Services = make(map[string]int)
	for _, a := range analyses {
		s.Services[string(a.PrimaryService)]++
	}
	if s.Conversations > 0 {
		s.Progress = float64(s.Analyses) / float64(s.Conversations) * 100
	}

	metrics, err := r.store.ListServiceMetrics(ctx, r.now())
	if err != nil {
		return nil, fmt.Errorf("failed to load service metrics: %w", err)
	}
	s.Metrics = len(metrics)

	active, err := r.store.ListAlerts(ctx, storage.AlertFilter{Status: models.AlertActive})
	if err != nil {
		return nil, fmt.Errorf("failed to load alerts: %w", err)
	}
	s.ActiveAlerts = len(active)

	if s.RecentRuns, err = r.store.ListImportLogs(ctx, 5); err != nil {
		return nil, fmt.Errorf("failed to load import logs: %w", err)
	}
	return &s, nil
}

// Reset wipes every table. The log entry is written afterwards so it survives.
func (r *Runner) Reset(ctx context.Context) error {
	started := r.now()
	if err := r.store.Reset(ctx); err != nil {
		r.logger.Error("Failed to reset database", zap.Error(err))
		return fmt.Errorf("failed to reset database: %w", err)
	}
	completed := r.now()
	entry := &models.ImportLog{
		Operation:      models.OperationReset,
		Status:         models.ImportCompleted,
		StartedAt:      started,
		CompletedAt:    &completed,
		ProcessingTime: completed.Sub(started),
	}
	if err := r.store.CreateImportLog(ctx, entry); err != nil {
		r.logger.Error("Failed to create import log", zap.Error(err), zap.String("operation", string(models.OperationReset)))
	}
	r.logger.Warn("Database reset")
	return nil
}

// DeleteTickets removes conversations and everything derived from them.
// Bare ids get the ticket_ prefix the importer uses.
func (r *Runner) DeleteTickets(ctx context.Context, tickets []string) (int, error) {
	ids := make([]string, 0, len(tickets))
	for _, t := range tickets {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if !strings.HasPrefix(t, "ticket_") {
			t = "ticket_" + t
		}
		ids = append(ids, t)
	}
	if len(ids) == 0 {
		return 0, errors.New("no ticket ids given")
	}

	deleted := 0
	err := r.track(ctx, models.OperationDelete, &models.ImportLog{TotalItems: len(ids)}, func(l *models.ImportLog) error {
		var err error
		deleted, err = r.store.DeleteConversations(ctx, ids)
		l.ProcessedItems = deleted
		return err
	})
	if err != nil {
		return deleted, fmt.Errorf("failed to delete tickets: %w", err)
	}
	r.logger.Info("Tickets deleted", zap.Int("requested", len(ids)), zap.Int("deleted", deleted))
	return deleted, nil
}

// ResolveConversation accepts a conversation id or a ticket id.
func (r *Runner) ResolveConversation(ctx context.Context, ref string) (*models.Conversation, error) {
	conv, err := r.store.GetConversation(ctx, ref)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	ticket := ref
	if !strings.HasPrefix(ticket, "ticket_") {
		ticket = "ticket_" + ticket
	}
	return r.store.GetConversationByTicket(ctx, ticket)
}
