package metrics

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestOrderPlacedRecordsRevenue(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := New(mp.Meter("test"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	m.OrderPlaced(ctx, 10000, time.Now())
	m.OrderPlaced(ctx, 2500, time.Now())

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	var revenue int64
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != "revenue_cents_total" {
				continue
			}
			for _, dp := range md.Data.(metricdata.Sum[int64]).DataPoints {
				revenue += dp.Value
			}
		}
	}
	if revenue != 12500 {
		t.Errorf("Expected revenue 12500, got %d", revenue)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *AppMetrics
	m.OrderPlaced(context.Background(), 1, time.Now())
	m.CheckoutFailed(context.Background(), "x", time.Now())
	m.Conflict(context.Background(), "p")
	m.HoldReleased(context.Background(), "sweep")
	m.NotificationSent(context.Background(), "admin", true)
	Noop().OrderPlaced(context.Background(), 1, time.Now())
}
