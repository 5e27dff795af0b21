package pipeline

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/chat-metrics/internal/aggregate"
	"github.com/xaenox/chat-metrics/internal/classifier"
	"github.com/xaenox/chat-metrics/internal/ingest"
	"github.com/xaenox/chat-metrics/internal/models"
	"github.com/xaenox/chat-metrics/internal/notify"
	"github.com/xaenox/chat-metrics/internal/storage"
	"go.uber.org/zap"
)

const export = `[
  {"messages":[
    {"id":"1","ticketId":10,"fromMe":false,"body":"Preciso da segunda via do IPTU","timestamp":"1700000000000","contact":{"number":"5511988887777"}},
    {"id":"2","ticketId":10,"fromMe":true,"sendType":"bot","body":"Segue o boleto","timestamp":"1700000005000"},
    {"id":"3","ticketId":10,"fromMe":false,"body":"Obrigado!","timestamp":"1700000009000"}
  ]},
  {"messages":[
    {"id":"4","ticketId":11,"fromMe":false,"body":"Minha dívida ativa está errada, isso é um absurdo","timestamp":"1700000100000"},
    {"id":"5","ticketId":11,"fromMe":true,"userId":4,"body":"Aguarde","timestamp":"1700000200000"}
  ]}
]`

func newTestRunner(store storage.Storage) *Runner {
	return NewRunner(store, classifier.NewHeuristicTagger(5), notify.Nop{}, Options{
		Analyze:   AnalyzeOptions{BatchSize: 10},
		Aggregate: aggregate.Options{TopK: 5, Costs: aggregate.DefaultCosts()},
	}, zap.NewNop())
}

func TestRunnerFullPipeline(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	runner := newTestRunner(store)

	imported, err := runner.Import(ctx, ingest.Source{Inline: []byte(export)}, "export.json")
	require.NoError(t, err)
	assert.Equal(t, 2, imported.SavedConversations)
	assert.Equal(t, 5, imported.SavedMessages)

	status, err := runner.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, status.Conversations)
	assert.Equal(t, 5, status.Messages)
	assert.Equal(t, 2, status.Pending)
	assert.Equal(t, 0.0, status.Progress)

	analyzed, err := runner.Analyze(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, analyzed.Processed)
	assert.Equal(t, 0, analyzed.Remaining)

	agg, err := runner.Aggregate(ctx)
	require.NoError(t, err)
	require.Len(t, agg.Metrics, 2)
	require.NotNil(t, agg.Alerts)
	// ticket 11: urgent frustration, churn risk, abandonment, service frustration
	assert.Equal(t, 4, agg.Alerts.Generated)
	assert.Equal(t, 1, agg.Alerts.Summary.ByType[string(models.AlertChurnRisk)])

	status, err = runner.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, status.Analyses)
	assert.Equal(t, 100.0, status.Progress)
	assert.Equal(t, 1, status.Services[string(models.ServiceIPTU)])
	assert.Equal(t, 1, status.Services[string(models.ServiceDividaAtiva)])
	assert.Equal(t, 2, status.Metrics)
	assert.Equal(t, 4, status.ActiveAlerts)

	require.Len(t, status.RecentRuns, 3)
	assert.Equal(t, models.OperationMetrics, status.RecentRuns[0].Operation)
	assert.Equal(t, models.OperationAnalyze, status.RecentRuns[1].Operation)
	assert.Equal(t, models.OperationConversations, status.RecentRuns[2].Operation)
	for _, run := range status.RecentRuns {
		assert.Equal(t, models.ImportCompleted, run.Status)
		assert.NotNil(t, run.CompletedAt)
	}
	assert.Equal(t, "export.json", status.RecentRuns[2].FileName)
	assert.Equal(t, int64(len(export)), status.RecentRuns[2].FileSize)
}

func TestRunnerImportBase64AndMalformedInput(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	runner := newTestRunner(store)

	encoded := base64.StdEncoding.EncodeToString([]byte(export))
	report, err := runner.Import(ctx, ingest.Source{Base64: encoded}, "upload")
	require.NoError(t, err)
	assert.Equal(t, 2, report.SavedConversations)

	_, err = runner.Import(ctx, ingest.Source{Inline: []byte(`{"messages":[]}`)}, "bad.json")
	assert.ErrorIs(t, err, ingest.ErrMalformedInput)

	logs, err := store.ListImportLogs(ctx, 1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.ImportFailed, logs[0].Status)
	assert.Equal(t, 1, logs[0].ErrorCount)
}

func TestRunnerDeleteTicketsAndReset(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	runner := newTestRunner(store)

	_, err := runner.Import(ctx, ingest.Source{Inline: []byte(export)}, "export.json")
	require.NoError(t, err)

	conv, err := runner.ResolveConversation(ctx, "10")
	require.NoError(t, err)
	assert.Equal(t, "ticket_10", conv.TicketID)

	deleted, err := runner.DeleteTickets(ctx, []string{"10", "ticket_99", " "})
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	n, err := store.CountConversations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = runner.DeleteTickets(ctx, []string{""})
	assert.Error(t, err)

	require.NoError(t, runner.Reset(ctx))
	status, err := runner.Status(ctx)
	require.NoError(t, err)
	assert.Zero(t, status.Conversations)
	assert.Zero(t, status.Messages)
	require.Len(t, status.RecentRuns, 1)
	assert.Equal(t, models.OperationReset, status.RecentRuns[0].Operation)
}
