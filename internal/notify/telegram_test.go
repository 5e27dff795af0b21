package notify

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/chat-metrics/internal/models"
	"go.uber.org/zap"
)

type recordingSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (r *recordingSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		r.sent = append(r.sent, msg)
	}
	return tgbotapi.Message{}, r.err
}

func criticalAlert() *models.Alert {
	service := models.ServiceIPTU
	return &models.Alert{
		Severity:       models.SeverityCritical,
		Type:           models.AlertFrustration,
		Service:        &service,
		Title:          "Cidadão extremamente frustrado",
		Description:    "Conversa ticket_42 com nível de frustração 9.5/10",
		Recommendation: "Contato humano imediato recomendado",
	}
}

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, `ticket\_42 \(9\.5/10\)\!`, escapeMarkdown("ticket_42 (9.5/10)!"))
	assert.Equal(t, `a\\b`, escapeMarkdown(`a\b`))
}

func TestTelegramNotifierSendsOnlyCritical(t *testing.T) {
	rec := &recordingSender{}
	n := &TelegramNotifier{api: rec, chatID: 99, logger: zap.NewNop()}

	monitor := criticalAlert()
	monitor.Severity = models.SeverityMonitor
	n.Notify(context.Background(), []*models.Alert{criticalAlert(), monitor})

	require.Len(t, rec.sent, 1)
	msg := rec.sent[0]
	assert.Equal(t, int64(99), msg.ChatID)
	assert.Equal(t, tgbotapi.ModeMarkdownV2, msg.ParseMode)
	assert.Contains(t, msg.Text, "*Cidadão extremamente frustrado*")
	assert.Contains(t, msg.Text, `ticket\_42`)
	assert.Contains(t, msg.Text, "_IPTU_")
}

func TestTelegramNotifierSwallowsSendErrors(t *testing.T) {
	rec := &recordingSender{err: errors.New("chat not found")}
	n := &TelegramNotifier{api: rec, chatID: 1, logger: zap.NewNop()}

	assert.NotPanics(t, func() {
		n.Notify(context.Background(), []*models.Alert{criticalAlert(), criticalAlert()})
	})
	assert.Len(t, rec.sent, 2)
}

func TestTelegramNotifierStopsOnCancelledContext(t *testing.T) {
	rec := &recordingSender{}
	n := &TelegramNotifier{api: rec, chatID: 1, logger: zap.NewNop()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n.Notify(ctx, []*models.Alert{criticalAlert()})
	assert.Empty(t, rec.sent)
}
