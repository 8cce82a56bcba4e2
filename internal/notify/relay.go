package notify

import (
	"context"
	"log/slog"
	"time"

	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/segmentio/kafka-go"
)

type RelayStore interface {
	LockBatch(ctx context.Context, n int, lease time.Duration) ([]Event, error)
	MarkSent(ctx context.Context, ids []int64) error
	MarkFailed(ctx context.Context, id int64, errMsg string) error
}

type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Relay moves outbox rows to Kafka, keyed by order id.
type Relay struct {
	Log      *slog.Logger
	Store    RelayStore
	Producer Producer
	Interval time.Duration
	Batch    int
	Lease    time.Duration
}

func TopicFor(eventType string) string {
	if eventType == orders.EventOrderStatusChanged {
		return orders.TopicOrderStatusChanged
	}
	return orders.TopicOrderPlaced
}

func (r *Relay) Run(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Log.Info("relay stopping")
			return nil
		case <-t.C:
			if _, err := r.RelayOnce(ctx); err != nil {
				r.Log.Error("relay batch failed", "err", err)
			}
		}
	}
}

// RelayOnce publishes one batch and returns how many rows were sent.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	batch, lease := r.Batch, r.Lease
	if batch <= 0 {
		batch = 100
	}
	if lease <= 0 {
		lease = 30 * time.Second
	}
	events, err := r.Store.LockBatch(ctx, batch, lease)
	if err != nil || len(events) == 0 {
		return 0, err
	}

	ids := make([]int64, 0, len(events))
	for _, e := range events {
		headers := []kafka.Header{
			{Key: "x-event-type", Value: []byte(e.Type)},
			{Key: "x-event-version", Value: []byte("1")},
			{Key: "x-idempotency-key", Value: []byte(e.IdempotencyKey)},
		}
		headers = kafkax.InjectHeaders(kafkax.WithTraceparent(ctx, e.Traceparent), headers)
		msg := kafka.Message{
			Topic:   TopicFor(e.Type),
			Key:     orders.PartitionKey(e.AggregateID),
			Value:   e.Payload,
			Headers: headers,
		}
		if err := r.Producer.WriteMessages(ctx, msg); err != nil {
			r.Log.Error("outbox publish failed", "outbox_id", e.ID, "order_id", e.AggregateID, "retry", e.RetryCount, "err", err)
			if merr := r.Store.MarkFailed(ctx, e.ID, err.Error()); merr != nil {
				r.Log.Error("outbox mark failed", "outbox_id", e.ID, "err", merr)
			}
			continue
		}
		ids = append(ids, e.ID)
	}
	if len(ids) > 0 {
		if err := r.Store.MarkSent(ctx, ids); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}
