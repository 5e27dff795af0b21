package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/chat-metrics/internal/models"
	"go.uber.org/zap"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts critical alerts to a single chat.
type TelegramNotifier struct {
	api    sender
	chatID int64
	logger *zap.Logger
}

func NewTelegramNotifier(token string, chatID int64, logger *zap.Logger) (*TelegramNotifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("error creating telegram bot: %w", err)
	}
	logger.Info("Telegram notifier ready",
		zap.String("username", api.Self.UserName),
		zap.Int64("chat_id", chatID))
	return &TelegramNotifier{api: api, chatID: chatID, logger: logger}, nil
}

func (n *TelegramNotifier) Notify(ctx context.Context, alerts []*models.Alert) {
	for _, alert := range alerts {
		if alert.Severity != models.SeverityCritical {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		n.sendMessage(formatAlert(alert))
	}
}

func (n *TelegramNotifier) sendMessage(text string) {
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	if _, err := n.api.Send(msg); err != nil {
		n.logger.Error("Failed to send alert",
			zap.Error(err),
			zap.Int64("chat_id", n.chatID))
	}
}

func formatAlert(alert *models.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🚨 *%s*\n", escapeMarkdown(alert.Title))
	if alert.Service != nil {
		fmt.Fprintf(&b, "_%s_\n", escapeMarkdown(string(*alert.Service)))
	}
	b.WriteString(escapeMarkdown(alert.Description))
	b.WriteString("\n\n")
	b.WriteString(escapeMarkdown(alert.Recommendation))
	return b.String()
}

func escapeMarkdown(text string) string {
	escaped := strings.ReplaceAll(text, "\\", "\\\\")
	specialChars := []string{"_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	for _, char := range specialChars {
		escaped = strings.ReplaceAll(escaped, char, "\\"+char)
	}
	return escaped
}
