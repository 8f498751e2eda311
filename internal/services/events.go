package services

import (
	"context"
	"log/slog"

	"ledger/internal/amqp"
)

// notifier fans a write out to the cache and the broker. Both are optional and
// neither can fail the write that triggered them.
type notifier struct {
	events      EventPublisher
	invalidator Invalidator
}

func (n notifier) changed(ctx context.Context, event *amqp.LedgerEvent) {
	if n.invalidator != nil {
		n.invalidator.Invalidate()
	}
	if n.events == nil {
		slog.DebugContext(ctx, "Event publisher not configured, skipping ledger event", "kind", event.Kind)
		return
	}
	if err := n.events.Publish(ctx, event); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"kind", event.Kind,
			"batch_id", event.BatchID,
			"error", err)
	}
}
