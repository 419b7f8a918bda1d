package queue

import (
	"context"
	"fmt"

	"github.com/noah-isme/backend-pos/internal/events"
)

// EventNotifier turns committed domain events into queue tasks. It is
// registered on the event bus so every checkout.completed event schedules a
// receipt email and every stock.low event schedules a reorder notice.
type EventNotifier struct {
	Enqueuer Enqueuer
}

// Notify maps the event topic to its task kind; topics without asynchronous
// work are ignored.
func (n EventNotifier) Notify(ctx context.Context, ev events.Event) error {
	var kind string
	switch ev.Topic {
	case events.TopicCheckoutCompleted:
		kind = KindReceiptEmail
	case events.TopicStockLow:
		kind = KindReorderNotice
	default:
		return nil
	}
	err := n.Enqueuer.Enqueue(ctx, Task{
		Kind:           kind,
		Payload:        ev.Payload,
		IdempotencyKey: ev.Topic + ":" + ev.AggregateID,
	})
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", kind, err)
	}
	return nil
}
