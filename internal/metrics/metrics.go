package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// AppMetrics holds the business instruments of the storefront. A nil
// *AppMetrics is valid and records nothing.
type AppMetrics struct {
	OrdersPlaced         metric.Int64Counter
	Revenue              metric.Int64Counter
	CheckoutFailures     metric.Int64Counter
	ReservationConflicts metric.Int64Counter
	HoldsReleased        metric.Int64Counter
	NotificationsSent    metric.Int64Counter
	CheckoutDuration     metric.Float64Histogram
}

// New registers every instrument on meter.
func New(meter metric.Meter) (*AppMetrics, error) {
	var m AppMetrics
	var err error

	if m.OrdersPlaced, err = meter.Int64Counter("orders_placed_total",
		metric.WithDescription("Orders successfully placed"), metric.WithUnit("1")); err != nil {
		return nil, fmt.Errorf("orders counter: %w", err)
	}
	if m.Revenue, err = meter.Int64Counter("revenue_cents_total",
		metric.WithDescription("Order totals in cents"), metric.WithUnit("{cent}")); err != nil {
		return nil, fmt.Errorf("revenue counter: %w", err)
	}
	if m.CheckoutFailures, err = meter.Int64Counter("checkout_failures_total",
		metric.WithDescription("Checkouts that returned an error, by reason"), metric.WithUnit("1")); err != nil {
		return nil, fmt.Errorf("checkout failures counter: %w", err)
	}
	if m.ReservationConflicts, err = meter.Int64Counter("reservation_conflicts_total",
		metric.WithDescription("Lost compare-and-swap races on stock"), metric.WithUnit("1")); err != nil {
		return nil, fmt.Errorf("conflicts counter: %w", err)
	}
	if m.HoldsReleased, err = meter.Int64Counter("holds_released_total",
		metric.WithDescription("Stock holds returned to the catalog, by cause"), metric.WithUnit("1")); err != nil {
		return nil, fmt.Errorf("holds counter: %w", err)
	}
	if m.NotificationsSent, err = meter.Int64Counter("notifications_sent_total",
		metric.WithDescription("Notification sends, by channel and outcome"), metric.WithUnit("1")); err != nil {
		return nil, fmt.Errorf("notifications counter: %w", err)
	}
	if m.CheckoutDuration, err = meter.Float64Histogram("checkout_duration",
		metric.WithDescription("PlaceOrder latency in milliseconds"), metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000)); err != nil {
		return nil, fmt.Errorf("checkout histogram: %w", err)
	}
	return &m, nil
}

// Noop returns instruments backed by a no-op meter.
func Noop() *AppMetrics {
	m, _ := New(noop.NewMeterProvider().Meter("noop"))
	return m
}

func (m *AppMetrics) OrderPlaced(ctx context.Context, totalCents int64, start time.Time) {
	if m == nil {
		return
	}
	m.OrdersPlaced.Add(ctx, 1)
	m.Revenue.Add(ctx, totalCents)
	m.CheckoutDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(attribute.String("outcome", "ok")))
}

func (m *AppMetrics) CheckoutFailed(ctx context.Context, reason string, start time.Time) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("reason", reason))
	m.CheckoutFailures.Add(ctx, 1, attrs)
	m.CheckoutDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(attribute.String("outcome", "error")))
}

func (m *AppMetrics) Conflict(ctx context.Context, productID string) {
	if m == nil {
		return
	}
	m.ReservationConflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("product_id", productID)))
}

func (m *AppMetrics) HoldReleased(ctx context.Context, cause string) {
	if m == nil {
		return
	}
	m.HoldsReleased.Add(ctx, 1, metric.WithAttributes(attribute.String("cause", cause)))
}

func (m *AppMetrics) NotificationSent(ctx context.Context, channel string, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.NotificationsSent.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", channel), attribute.String("outcome", outcome)))
}
