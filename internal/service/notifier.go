package service

import (
	"context"

	"guesswho/internal/notify"
)

// Notifier emits phase transitions after commit (implemented by notify.Notifier)
type Notifier interface {
	Notify(ctx context.Context, sessionID string, event notify.Event)
}
