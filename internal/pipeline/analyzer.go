package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/xaenox/chat-metrics/internal/classifier"
	"github.com/xaenox/chat-metrics/internal/models"
	"github.com/xaenox/chat-metrics/internal/storage"
	"github.com/xaenox/chat-metrics/internal/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type AnalyzeOptions struct {
	BatchSize int
	// Delay is the minimum spacing between two completion requests. Batches
	// are separated by twice this value.
	Delay   time.Duration
	Workers int
	// TimeBudget stops scheduling new conversations once elapsed. Zero means no budget.
	TimeBudget time.Duration
}

func DefaultAnalyzeOptions() AnalyzeOptions {
	return AnalyzeOptions{BatchSize: 10, Delay: time.Second, Workers: 1}
}

// BatchReport is what a client needs to decide whether to trigger another run.
type BatchReport struct {
	Processed     int      `json:"processed"`
	Errors        int      `json:"errors"`
	Skipped       int      `json:"skipped"`
	Remaining     int      `json:"remaining"`
	Total         int      `json:"total"`
	ErrorMessages []string `json:"errorMessages"`
}

type AnalyzerStore interface {
	storage.ConversationStore
	storage.AnalysisStore
}

type Analyzer struct {
	store   AnalyzerStore
	tagger  classifier.Tagger
	opts    AnalyzeOptions
	limiter *rate.Limiter
	logger  *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time
}

func NewAnalyzer(store AnalyzerStore, tagger classifier.Tagger, opts AnalyzeOptions, logger *zap.Logger) *Analyzer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	limit := rate.Inf
	if opts.Delay > 0 {
		limit = rate.Every(opts.Delay)
	}
	return &Analyzer{
		store:   store,
		tagger:  tagger,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
		sleep:   sleep,
		now:     time.Now,
	}
}

// Run tags conversations that have no analysis yet, batch by batch. limit caps
// how many conversations this run handles (0 means all); skip leaves the first
// unanalyzed conversations alone. A failure on one conversation is recorded
// and never stops the batch.
func (a *Analyzer) Run(ctx context.Context, limit, skip int) (*BatchReport, error) {
	started := a.now()
	total, err := a.store.CountUnanalyzed(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count unanalyzed conversations: %w", err)
	}
	report := &BatchReport{Total: total, ErrorMessages: []string{}}

	// Conversations that failed stay unanalyzed, so the window moves past them.
	offset := skip
	for {
		if err := ctx.Err(); err != nil {
			return a.finish(ctx, report, err)
		}
		if a.opts.TimeBudget > 0 && a.now().Sub(started) >= a.opts.TimeBudget {
			a.logger.Info("Time budget exhausted, stopping", zap.Duration("budget", a.opts.TimeBudget))
			break
		}

		size := a.opts.BatchSize
		if limit > 0 {
			left := limit - report.handled()
			if left <= 0 {
				break
			}
			if left < size {
				size = left
			}
		}

		batch, err := a.store.ListUnanalyzed(ctx, size, offset)
		if err != nil {
			return a.finish(ctx, report, fmt.Errorf("failed to load conversations: %w", err))
		}
		if len(batch) == 0 {
			break
		}

		failed := a.runBatch(ctx, batch, report)
		offset += failed
		a.logger.Info("Batch processed",
			zap.Int("size", len(batch)),
			zap.Int("processed", report.Processed),
			zap.Int("errors", report.Errors),
			zap.Int("skipped", report.Skipped))

		if len(batch) < size {
			break
		}
		if err := a.sleep(ctx, 2*a.opts.Delay); err != nil {
			return a.finish(ctx, report, err)
		}
	}
	return a.finish(ctx, report, nil)
}

func (r *BatchReport) handled() int {
	return r.Processed + r.Errors + r.Skipped
}

// runBatch tags one batch with at most Workers requests in flight and returns
// how many conversations are still unanalyzed afterwards.
func (a *Analyzer) runBatch(ctx context.Context, batch []*models.Conversation, report *BatchReport) int {
	var mu sync.Mutex
	failed := 0

	g := new(errgroup.Group)
	g.SetLimit(a.opts.Workers)
	for _, conv := range batch {
		conv := conv
		g.Go(func() error {
			err := a.tagAndSave(ctx, conv)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				report.Processed++
			case errors.Is(err, storage.ErrDuplicate):
				report.Skipped++
				telemetry.TaggerResults.WithLabelValues("skipped").Inc()
			default:
				failed++
				report.Errors++
				report.ErrorMessages = append(report.ErrorMessages, fmt.Sprintf("%s: %v", conv.TicketID, err))
				a.logger.Error("Failed to analyze conversation",
					zap.Error(err),
					zap.String("ticket_id", conv.TicketID))
			}
			return nil
		})
	}
	g.Wait()
	return failed
}

func (a *Analyzer) tagAndSave(ctx context.Context, conv *models.Conversation) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	analysis, err := a.tagger.Tag(ctx, conv)
	if err != nil {
		return err
	}
	if err := a.store.CreateAnalysis(ctx, analysis); err != nil {
		return fmt.Errorf("error saving analysis: %w", err)
	}
	return nil
}

func (a *Analyzer) finish(ctx context.Context, report *BatchReport, runErr error) (*BatchReport, error) {
	// The caller's context may be cancelled already; counting still has to work.
	remaining, err := a.store.CountUnanalyzed(context.WithoutCancel(ctx))
	if err != nil {
		a.logger.Error("Failed to count remaining conversations", zap.Error(err))
	} else {
		report.Remaining = remaining
		telemetry.PendingConversations.Set(float64(remaining))
	}
	return report, runErr
}

// AnalyzeOne tags a single conversation. An existing analysis is returned as is.
func (a *Analyzer) AnalyzeOne(ctx context.Context, conversationID string) (*models.Analysis, error) {
	existing, err := a.store.GetAnalysis(ctx, conversationID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to load analysis: %w", err)
	}

	conv, err := a.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation %s: %w", conversationID, err)
	}
	analysis, err := a.tagger.Tag(ctx, conv)
	if err != nil {
		return nil, err
	}
	if err := a.store.CreateAnalysis(ctx, analysis); err != nil {
		return nil, fmt.Errorf("error saving analysis: %w", err)
	}
	return analysis, nil
}

// Reanalyze drops the current analysis, if any, and tags the conversation again.
func (a *Analyzer) Reanalyze(ctx context.Context, conversationID string) (*models.Analysis, error) {
	if err := a.store.DeleteAnalysis(ctx, conversationID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to delete analysis: %w", err)
	}
	return a.AnalyzeOne(ctx, conversationID)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
