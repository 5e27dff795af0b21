package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/chat-metrics/internal/models"
	"github.com/xaenox/chat-metrics/internal/storage"
	"go.uber.org/zap"
)

// failingStore rejects one ticket and delegates everything else.
type failingStore struct {
	storage.ConversationStore
	failTicket string
}

func (s *failingStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if conv.TicketID == s.failTicket {
		return errors.New("write failed")
	}
	return s.ConversationStore.CreateConversation(ctx, conv)
}

func TestImportIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	importer := NewImporter(store, zap.NewNop())

	groups, err := Decode([]byte(ticketSevenExport))
	require.NoError(t, err)

	first, err := importer.Import(ctx, groups)
	require.NoError(t, err)
	assert.Equal(t, 1, first.SavedConversations)
	assert.Equal(t, 2, first.SavedMessages)
	assert.Zero(t, first.SkippedConversations)

	second, err := importer.Import(ctx, groups)
	require.NoError(t, err)
	assert.Zero(t, second.SavedConversations)
	assert.Equal(t, 1, second.SkippedConversations)
	assert.Empty(t, second.Errors)

	n, err := store.CountConversations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	m, err := store.CountMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, m)
}

func TestImportIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	importer := NewImporter(&failingStore{ConversationStore: store, failTicket: "ticket_2"}, zap.NewNop())

	groups := []RawGroup{{Messages: []RawMessage{
		{ID: "1", TicketID: "1", Body: "a", Timestamp: "1000"},
		{ID: "2", TicketID: "2", Body: "b", Timestamp: "1000"},
		{ID: "3", TicketID: "3", Body: "c", Timestamp: "1000"},
	}}}

	report, err := importer.Import(ctx, groups)
	require.NoError(t, err)
	assert.Equal(t, 3, report.TotalConversations)
	assert.Equal(t, 2, report.SavedConversations)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "ticket_2")

	_, err = store.GetConversationByTicket(ctx, "ticket_2")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestImportStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	importer := NewImporter(storage.NewMemoryStorage(), zap.NewNop())
	groups, err := Decode([]byte(ticketSevenExport))
	require.NoError(t, err)

	report, err := importer.Import(ctx, groups)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, report.SavedConversations)
}
