package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xaenox/chat-metrics/internal/models"
)

func TestClassifySender(t *testing.T) {
	tests := []struct {
		name string
		msg  RawMessage
		want models.Sender
	}{
		{"citizen", RawMessage{FromMe: false, SendType: "bot", UserID: 4}, models.SenderUser},
		{"bot tagged", RawMessage{FromMe: true, SendType: "bot", UserID: 4}, models.SenderBot},
		{"human operator", RawMessage{FromMe: true, UserID: 4}, models.SenderAgent},
		{"zero operator", RawMessage{FromMe: true, UserID: 0}, models.SenderBot},
		{"negative operator", RawMessage{FromMe: true, UserID: -1}, models.SenderBot},
		{"other send type", RawMessage{FromMe: true, SendType: "chat"}, models.SenderBot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifySender(tt.msg))
		})
	}
}
