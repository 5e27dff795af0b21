package notify

import (
	"context"

	"github.com/xaenox/chat-metrics/internal/models"
)

// Notifier pushes freshly generated alerts to people watching the channel.
// Implementations log their own failures.
type Notifier interface {
	Notify(ctx context.Context, alerts []*models.Alert)
}

// Nop drops every alert. Used when no chat is configured.
type Nop struct{}

func (Nop) Notify(context.Context, []*models.Alert) {}
