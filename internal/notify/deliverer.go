package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/metrics"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

// Deliverer consumes order events and sends the resulting messages. Each
// (idempotency key, channel) pair is claimed in Redis before sending, so a
// redelivered event reaches every recipient at most once.
type Deliverer struct {
	RDB        redis.Cmdable
	Sinks      map[string]Sink // by channel
	AdminPhone string
	Log        *slog.Logger
	Metrics    *metrics.AppMetrics
	MaxTries   uint
}

// Handle is a kafka.Handler. It returns an error while any message is still
// undelivered so the offset is not committed.
func (d *Deliverer) Handle(ctx context.Context, m kafka.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		d.Log.Error("drop undecodable event", "offset", m.Offset, "err", err)
		return nil // poison message, jangan diulang terus
	}

	var msgs []Message
	switch env.EventType {
	case orders.EventOrderPlaced:
		p, err := kafkax.UnwrapPayload[orders.OrderPlacedPayload](env.Payload)
		if err != nil {
			d.Log.Error("drop event", "event_id", env.EventID, "err", err)
			return nil
		}
		msgs = placedMessages(p, d.AdminPhone)
	case orders.EventOrderStatusChanged:
		p, err := kafkax.UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
		if err != nil {
			d.Log.Error("drop event", "event_id", env.EventID, "err", err)
			return nil
		}
		msgs = statusMessages(p)
	default:
		return nil // ignore
	}

	var errs []error
	for _, msg := range msgs {
		if err := d.Deliver(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Deliver sends msg unless it was already sent under the same key.
func (d *Deliverer) Deliver(ctx context.Context, msg Message) error {
	sink, ok := d.Sinks[msg.Channel]
	if !ok {
		return nil
	}
	key := fmt.Sprintf(redisx.KeyNotifyDedup, msg.IdempotencyKey, msg.Channel)
	won, err := redisx.Claim(ctx, d.RDB, key, redisx.TTLDedup)
	if err != nil {
		return fmt.Errorf("claim %s: %w", key, err)
	}
	if !won {
		d.Log.Debug("notification already sent", "channel", msg.Channel, "key", msg.IdempotencyKey)
		return nil
	}

	tries := d.MaxTries
	if tries == 0 {
		tries = 3
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		err := sink.Send(ctx, msg)
		var pe *PermanentError
		if errors.As(err, &pe) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(tries))

	d.Metrics.NotificationSent(ctx, msg.Channel, err == nil)
	var pe *PermanentError
	if errors.As(err, &pe) {
		// claim tetap dipegang, pesan ini tidak akan pernah diterima
		d.Log.Error("notification rejected", "channel", msg.Channel, "key", msg.IdempotencyKey, "err", err)
		return nil
	}
	if err != nil {
		// lepas claim supaya redelivery bisa coba lagi
		if derr := d.RDB.Del(context.WithoutCancel(ctx), key).Err(); derr != nil {
			d.Log.Error("release dedupe claim failed", "key", key, "err", derr)
		}
		d.Log.Error("notification send failed", "channel", msg.Channel, "key", msg.IdempotencyKey, "err", err)
		return err
	}
	d.Log.Info("notification sent", "channel", msg.Channel, "key", msg.IdempotencyKey)
	return nil
}
