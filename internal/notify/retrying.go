package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/checkout"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/cenkalti/backoff/v5"
)

// Notifier is what the checkout engine and the order lifecycle notify.
type Notifier interface {
	OrderPlaced(ctx context.Context, c orders.Confirmation) error
	OrderStatusChanged(ctx context.Context, p orders.OrderStatusChangedPayload) error
}

// Retrying tries Next once inline. If that fails the caller gets an error
// wrapping checkout.ErrNotificationDeliveryFailed while the same call is
// retried in the background with exponential backoff.
type Retrying struct {
	Next       Notifier
	Log        *slog.Logger
	MaxElapsed time.Duration
	Initial    time.Duration

	wg sync.WaitGroup
}

func (r *Retrying) OrderPlaced(ctx context.Context, c orders.Confirmation) error {
	return r.try(ctx, "order_placed", c.OrderID, func(ctx context.Context) error {
		return r.Next.OrderPlaced(ctx, c)
	})
}

func (r *Retrying) OrderStatusChanged(ctx context.Context, p orders.OrderStatusChangedPayload) error {
	return r.try(ctx, "order_status_changed", p.OrderID, func(ctx context.Context) error {
		return r.Next.OrderStatusChanged(ctx, p)
	})
}

func (r *Retrying) try(ctx context.Context, what, orderID string, op func(context.Context) error) error {
	err := op(ctx)
	if err == nil {
		return nil
	}

	bg := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		b := backoff.NewExponentialBackOff()
		if r.Initial > 0 {
			b.InitialInterval = r.Initial
		}
		maxElapsed := r.MaxElapsed
		if maxElapsed <= 0 {
			maxElapsed = 10 * time.Minute
		}
		_, rerr := backoff.Retry(bg, func() (struct{}, error) {
			return struct{}{}, op(bg)
		},
			backoff.WithBackOff(b),
			backoff.WithMaxElapsedTime(maxElapsed),
			backoff.WithNotify(func(err error, d time.Duration) {
				r.Log.Warn("notification retry scheduled", "event", what, "order_id", orderID, "in", d, "err", err)
			}),
		)
		if rerr != nil {
			r.Log.Error("notification gave up", "event", what, "order_id", orderID, "err", rerr)
			return
		}
		r.Log.Info("notification delivered after retry", "event", what, "order_id", orderID)
	}()
	return fmt.Errorf("%w: %w", checkout.ErrNotificationDeliveryFailed, err)
}

// Wait blocks until every background retry finished.
func (r *Retrying) Wait() { r.wg.Wait() }
