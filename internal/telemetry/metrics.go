package telemetry

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	once sync.Once

	// ConversationsImported counts normalized conversations by import outcome.
	ConversationsImported = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatmetrics",
		Subsystem: "ingest",
		Name:      "conversations_total",
		Help:      "Conversations processed by the importer, labeled by result (saved, skipped, failed).",
	}, []string{"result"})

	MessagesImported = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chatmetrics",
		Subsystem: "ingest",
		Name:      "messages_saved_total",
		Help:      "Messages persisted by the importer.",
	})

	// TaggerResults counts tagging calls by outcome.
	TaggerResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatmetrics",
		Subsystem: "tagger",
		Name:      "results_total",
		Help:      "Conversation tagging outcomes, labeled by result (ok, parse_error, validation_error, completion_error, skipped).",
	}, []string{"result"})

	TaggerAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chatmetrics",
		Subsystem: "tagger",
		Name:      "completion_attempts_total",
		Help:      "Completion requests sent to the model, retries included.",
	})

	TaggerDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "chatmetrics",
		Subsystem: "tagger",
		Name:      "duration_seconds",
		Help:      "Time to tag one conversation, retries included.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 60},
	})

	PendingConversations = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "chatmetrics",
		Subsystem: "tagger",
		Name:      "pending_conversations",
		Help:      "Conversations still lacking an analysis after the last batch.",
	})

	AlertsGenerated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatmetrics",
		Subsystem: "alerts",
		Name:      "generated_total",
		Help:      "Alerts produced by the rule engine, labeled by severity.",
	}, []string{"severity"})

	OperationDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chatmetrics",
		Subsystem: "pipeline",
		Name:      "operation_duration_seconds",
		Help:      "Duration of pipeline operations, labeled by operation and status.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
	}, []string{"operation", "status"})
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			ConversationsImported,
			MessagesImported,
			TaggerResults,
			TaggerAttempts,
			TaggerDurationSeconds,
			PendingConversations,
			AlertsGenerated,
			OperationDurationSeconds,
		)
	})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger *zap.Logger) {
	Register()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	go func() {
		logger.Info("Serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics listener stopped", zap.Error(err))
		}
	}()
}
