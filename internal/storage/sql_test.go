package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/chat-metrics/internal/models"
	"go.uber.org/zap"
)

func TestRebindNumbersPlaceholders(t *testing.T) {
	pg := &SQLStorage{dialect: postgresDialect}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", pg.q("SELECT * FROM t WHERE a = ? AND b = ?"))

	lite := &SQLStorage{dialect: sqliteDialect}
	assert.Equal(t, "SELECT ?", lite.q("SELECT ?"))
}

func TestCreateConversationRollsBackOnMessageFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStorageFromDB(db, zap.NewNop())
	conv := newTestConversation("ticket_7", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO conversations").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO messages").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO messages").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = store.CreateConversation(context.Background(), conv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "msg_2")
	assert.NotErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateConversationMapsUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStorageFromDB(db, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO conversations").WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err = store.CreateConversation(context.Background(), newTestConversation("ticket_7", time.Now()))
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceAlertsRollsBackOnInsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStorageFromDB(db, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE alerts SET status").
		WithArgs("resolved", sqlmock.AnyArg(), "active").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO alerts").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	alert := &models.Alert{
		Severity:   models.SeverityCritical,
		Type:       models.AlertFrustration,
		Title:      "Cidadão extremamente frustrado",
		Status:     models.AlertActive,
		DetectedAt: time.Now(),
	}
	_, err = store.ReplaceAlerts(context.Background(), []*models.Alert{alert}, time.Now())
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
