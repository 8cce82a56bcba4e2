package notify

import (
	"context"
	"fmt"
	"time"

	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Event is one outbox row.
type Event struct {
	ID             int64
	IdempotencyKey string
	AggregateID    string
	Type           string
	Payload        []byte
	Traceparent    string
	RetryCount     int
}

// Outbox records events in Postgres; the Relay publishes them. Recording is
// idempotent on the event's idempotency key.
type Outbox struct {
	DB       *pgxpool.Pool
	Producer string
	Now      func() time.Time
}

func (o *Outbox) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o *Outbox) OrderPlaced(ctx context.Context, c orders.Confirmation) error {
	p := orders.OrderPlacedPayload{Confirmation: c, IdempotencyKey: c.OrderID}
	return o.record(ctx, orders.EventOrderPlaced, c.OrderID, p.IdempotencyKey, p)
}

func (o *Outbox) OrderStatusChanged(ctx context.Context, p orders.OrderStatusChangedPayload) error {
	if p.IdempotencyKey == "" {
		p.IdempotencyKey = orders.StatusChangeKey(p.OrderID, p.To)
	}
	return o.record(ctx, orders.EventOrderStatusChanged, p.OrderID, p.IdempotencyKey, p)
}

func newEnvelope(ctx context.Context, producer, eventType, orderID string, payload any, at time.Time) orders.Envelope {
	return orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    at.UTC(),
		Producer:      producer,
		TraceID:       kafkax.Traceparent(ctx),
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
}

func (o *Outbox) record(ctx context.Context, eventType, orderID, key string, payload any) error {
	env := newEnvelope(ctx, o.Producer, eventType, orderID, payload, o.now())
	_, err := o.DB.Exec(ctx, `
		INSERT INTO outbox (idempotency_key, aggregate_id, type, payload, traceparent, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
		ON CONFLICT (idempotency_key) DO NOTHING`,
		key, orderID, eventType, kafkax.MustMarshal(env), env.TraceID)
	if err != nil {
		return fmt.Errorf("outbox insert: %w", err)
	}
	return nil
}

// LockBatch leases up to n pending rows. Rows whose lease ran out (a relay
// died mid-batch) are picked up again.
func (o *Outbox) LockBatch(ctx context.Context, n int, lease time.Duration) ([]Event, error) {
	rows, err := o.DB.Query(ctx, `
		UPDATE outbox SET status='leased', lease_until = now() + $2::interval
		WHERE id IN (
			SELECT id FROM outbox
			WHERE status='pending' OR (status='leased' AND lease_until < now())
			ORDER BY id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, idempotency_key, aggregate_id, type, payload, traceparent, retry_count`,
		n, lease)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.IdempotencyKey, &e.AggregateID, &e.Type, &e.Payload, &e.Traceparent, &e.RetryCount); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (o *Outbox) MarkSent(ctx context.Context, ids []int64) error {
	_, err := o.DB.Exec(ctx, `UPDATE outbox SET status='sent', sent_at=now(), lease_until=NULL WHERE id = ANY($1)`, ids)
	return err
}

// MarkFailed puts the row back in the queue with its retry count bumped.
func (o *Outbox) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := o.DB.Exec(ctx, `
		UPDATE outbox SET status='pending', retry_count=retry_count+1, last_error=$2, lease_until=NULL
		WHERE id=$1`, id, errMsg)
	return err
}
