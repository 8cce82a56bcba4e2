package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ariefcatur/go-storefront-orders/internal/inventory"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

// StatusNotifier is told about every committed status change.
type StatusNotifier interface {
	OrderStatusChanged(ctx context.Context, p orders.OrderStatusChangedPayload) error
}

// Lifecycle applies admin and payment driven changes to placed orders.
type Lifecycle struct {
	Orders    Orders
	Inventory *inventory.Service
	Notifier  StatusNotifier
	Log       *slog.Logger
}

func (l *Lifecycle) log() *slog.Logger {
	if l.Log != nil {
		return l.Log
	}
	return slog.Default()
}

// UpdateStatus moves an order to `to`. Delivery needs a paid order,
// cancellation gives unconfirmed stock back, and `paid` goes through
// ConfirmPayment so the sale is finalised.
func (l *Lifecycle) UpdateStatus(ctx context.Context, orderID string, to orders.Status) (orders.Order, error) {
	if !to.Valid() {
		return orders.Order{}, fmt.Errorf("%w: unknown status %q", orders.ErrInvalidTransition, to)
	}
	if to == orders.StatusPaid {
		return l.ConfirmPayment(ctx, orderID)
	}
	o, err := l.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return orders.Order{}, err
	}
	if o.Status == to {
		// repeating a cancel retries a release that failed the first time
		if to == orders.StatusCancelled {
			if err := l.releaseCancelled(ctx, orderID); err != nil {
				return orders.Order{}, err
			}
		}
		return o, nil
	}
	if !orders.CanTransition(o.Status, to) {
		return orders.Order{}, fmt.Errorf("%w: %s -> %s", orders.ErrInvalidTransition, o.Status, to)
	}
	if to == orders.StatusDelivered && o.PaymentStatus != orders.PaymentPaid {
		return orders.Order{}, orders.ErrPaymentRequired
	}
	if err := l.Orders.UpdateOrderStatus(ctx, orderID, o.Status, to); err != nil {
		return orders.Order{}, err
	}
	l.notify(ctx, o, to)
	if to == orders.StatusCancelled {
		if err := l.releaseCancelled(ctx, orderID); err != nil {
			return orders.Order{}, err
		}
	}
	return l.Orders.GetOrder(ctx, orderID)
}

func (l *Lifecycle) releaseCancelled(ctx context.Context, orderID string) error {
	n, err := l.Inventory.ReleaseOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("release stock of cancelled order: %w", err)
	}
	if n > 0 {
		l.log().Info("stock of cancelled order released", "order_id", orderID, "holds_released", n)
	}
	return nil
}

// ConfirmPayment marks the order paid and turns its holds into sales.
// Safe to call again for an order that is already paid. The status moves
// first and the payment write refuses cancelled orders, so a cancel racing
// this call never leaves a cancelled order marked paid.
func (l *Lifecycle) ConfirmPayment(ctx context.Context, orderID string) (orders.Order, error) {
	o, err := l.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return orders.Order{}, err
	}
	if o.Status == orders.StatusCancelled {
		return orders.Order{}, errCancelled
	}
	if o.Status == orders.StatusPending || o.Status == orders.StatusAwaitingPayment {
		err := l.Orders.UpdateOrderStatus(ctx, orderID, o.Status, orders.StatusPaid)
		switch {
		case err == nil:
			l.notify(ctx, o, orders.StatusPaid)
		case errors.Is(err, orders.ErrStaleStatus):
			if err := l.refuseCancelled(ctx, orderID); err != nil {
				return orders.Order{}, err
			}
		default:
			return orders.Order{}, err
		}
	}
	if o.PaymentStatus != orders.PaymentPaid {
		err := l.Orders.UpdatePaymentStatus(ctx, orderID, orders.PaymentUnpaid, orders.PaymentPaid)
		if errors.Is(err, orders.ErrStaleStatus) {
			// sudah dibayar oleh panggilan lain, atau order baru saja dibatalkan
			err = l.refuseCancelled(ctx, orderID)
		}
		if err != nil {
			return orders.Order{}, err
		}
	}
	if err := l.Inventory.ConfirmSale(ctx, orderID); err != nil {
		return orders.Order{}, fmt.Errorf("confirm sale: %w", err)
	}
	return l.Orders.GetOrder(ctx, orderID)
}

var errCancelled = fmt.Errorf("%w: order is cancelled", orders.ErrInvalidTransition)

// refuseCancelled re-reads an order whose conditional write lost a race.
func (l *Lifecycle) refuseCancelled(ctx context.Context, orderID string) error {
	cur, err := l.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if cur.Status == orders.StatusCancelled {
		return errCancelled
	}
	return nil
}

func (l *Lifecycle) notify(ctx context.Context, o orders.Order, to orders.Status) {
	if l.Notifier == nil {
		return
	}
	p := orders.OrderStatusChangedPayload{
		OrderID:        o.ID,
		UserID:         o.UserID,
		Phone:          o.Phone,
		From:           o.Status,
		To:             to,
		IdempotencyKey: orders.StatusChangeKey(o.ID, to),
	}
	if err := l.Notifier.OrderStatusChanged(ctx, p); err != nil {
		l.log().Warn("status notification not queued", "order_id", o.ID, "to", to, "err", err)
	}
}
