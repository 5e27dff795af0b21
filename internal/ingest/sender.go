package ingest

import "github.com/xaenox/chat-metrics/internal/models"

const botSendType = "bot"

// ClassifySender decides who wrote a message. Anything sent from the
// service side without a bot tag or an operator id is treated as the bot.
func ClassifySender(m RawMessage) models.Sender {
	if !m.FromMe {
		return models.SenderUser
	}
	if m.SendType == botSendType {
		return models.SenderBot
	}
	if m.UserID > 0 {
		return models.SenderAgent
	}
	return models.SenderBot
}
