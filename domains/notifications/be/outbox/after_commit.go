package outbox

import (
	"context"

	"go.uber.org/zap"

	"github.com/zenGate-Global/schoolhub/domains/notifications/be/service"
	"github.com/zenGate-Global/schoolhub/platform/go/persistence"
)

type afterCommit struct {
	next   service.Outbox
	logger *zap.Logger
}

// PublishAfterCommit wraps next so intents published inside a database transaction are only
// sent once it commits; a rolled back notification row is never announced. Publish errors at
// commit time are logged and the row is left to the recovery pass.
func PublishAfterCommit(next service.Outbox, logger *zap.Logger) service.Outbox {
	if next == nil {
		panic("outbox is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &afterCommit{next: next, logger: logger}
}

func (o *afterCommit) Publish(ctx context.Context, intent service.Intent) error {
	if !persistence.InTx(ctx) {
		return o.next.Publish(ctx, intent)
	}
	persistence.AfterCommit(ctx, func(ctx context.Context) {
		if err := o.next.Publish(ctx, intent); err != nil {
			o.logger.Warn("publish delivery intent after commit failed",
				zap.String("notification_id", intent.NotificationID.String()),
				zap.Error(err),
			)
		}
	})
	return nil
}
