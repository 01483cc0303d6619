package services

import (
	"context"
	"log/slog"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/log"
)

// EventPublisher is the outbound side of the change feed. *amqp.Client satisfies it.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev *amqp.EntityEvent) error
}

// publish announces a committed write. Failures are logged and swallowed:
// the write already succeeded.
func publish(ctx context.Context, p EventPublisher, kind core.EntityKind, entityID, userID int64, op amqp.Op) {
	if p == nil {
		return
	}
	ev := amqp.NewEntityEvent(kind, entityID, userID, op)
	if err := p.PublishEvent(ctx, ev); err != nil {
		slog.WarnContext(ctx, "Failed to publish entity event",
			log.FieldEntityKind, kind,
			log.FieldEntityID, entityID,
			log.FieldOperation, op,
			log.FieldError, err)
	}
}
