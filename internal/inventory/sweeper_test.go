package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/logging"
	"github.com/ariefcatur/go-storefront-orders/internal/memstore"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestSweepReleasesAbandonedHolds(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	st := seed(t,
		orders.Product{ID: "a"},
		orders.Product{ID: "b", Sizes: []orders.SizeStock{{Label: "M", Stock: 1}}},
	)
	svc := &Service{Store: st, TTL: time.Minute, Now: clk.Now, Log: logging.Discard()}
	sw := &Sweeper{Inventory: svc, Orders: st}

	// checkout crashed between reserve and persist: nobody releases
	if _, err := svc.ReserveAll(ctx, "abandoned", []Request{
		{Product: product(t, st, "a"), Qty: 1},
		{Product: product(t, st, "b"), Size: "M", Qty: 1},
	}); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	if n, err := sw.SweepOnce(ctx); err != nil || n != 0 {
		t.Fatalf("Expected nothing to sweep before the TTL, got %d %v", n, err)
	}

	clk.Advance(2 * time.Minute)
	n, err := sw.SweepOnce(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Expected 2 holds released, got %d %v", n, err)
	}
	if p := product(t, st, "a"); p.Status != orders.ProductAvailable {
		t.Errorf("Expected a available, got %s", p.Status)
	}
	b := product(t, st, "b")
	if stock, _ := b.StockFor("M"); stock != 1 || b.Status != orders.ProductAvailable {
		t.Errorf("Expected b M=1 available, got M=%d %s", stock, b.Status)
	}
}

func TestSweepAttachesPersistedOrders(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	st := seed(t, orders.Product{ID: "a", PriceCents: 700})
	svc := &Service{Store: st, TTL: time.Minute, Now: clk.Now, Log: logging.Discard()}
	sw := &Sweeper{Inventory: svc, Orders: st}

	res, err := svc.ReserveAll(ctx, "order-1", []Request{{Product: product(t, st, "a"), Qty: 1}})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	// order row written, attach step lost
	items := []orders.LineItem{{ProductID: "a", ProductName: "a", Qty: 1, PriceCents: 700}}
	if _, err := st.CreateOrderWithItems(ctx, orders.Order{ID: "order-1", UserID: "u", TotalCents: 700, Status: orders.StatusPending}, items); err != nil {
		t.Fatalf("create order: %v", err)
	}
	res.Commit()

	clk.Advance(2 * time.Minute)
	if n, err := sw.SweepOnce(ctx); err != nil || n != 0 {
		t.Fatalf("Expected no release for a persisted order, got %d %v", n, err)
	}
	if p := product(t, st, "a"); p.Status != orders.ProductReserved {
		t.Errorf("Expected a still reserved, got %s", p.Status)
	}
	holds, _ := st.HoldsForOrder(ctx, "order-1")
	if len(holds) != 1 || holds[0].ExpiresAt != nil {
		t.Errorf("Expected the hold attached, got %+v", holds)
	}
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	st := seed(t)
	sw := &Sweeper{Inventory: &Service{Store: st, Log: logging.Discard()}, Orders: st, Interval: time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sw.Run(ctx) }()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil on cancel, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

// lateOrder answers "no such order" and then lets the order commit, the
// interleaving where checkout saves the order right after the sweeper looked.
type lateOrder struct {
	st    *memstore.Store
	order orders.Order
	items []orders.LineItem
}

func (l *lateOrder) OrderExists(ctx context.Context, id string) (bool, error) {
	if _, err := l.st.CreateOrderWithItems(ctx, l.order, l.items); err != nil {
		return false, err
	}
	return false, nil
}

func TestSweepSparesHoldOfOrderSavedMeanwhile(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	st := seed(t, orders.Product{ID: "a", PriceCents: 700})
	svc := &Service{Store: st, TTL: time.Minute, Now: clk.Now, Log: logging.Discard()}

	if _, err := svc.ReserveAll(ctx, "order-1", []Request{{Product: product(t, st, "a"), Qty: 1}}); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	late := &lateOrder{
		st:    st,
		order: orders.Order{ID: "order-1", UserID: "u", TotalCents: 700, Status: orders.StatusPending},
		items: []orders.LineItem{{ProductID: "a", ProductName: "a", Qty: 1, PriceCents: 700}},
	}
	sw := &Sweeper{Inventory: svc, Orders: late}

	clk.Advance(2 * time.Minute)
	if n, err := sw.SweepOnce(ctx); err != nil || n != 0 {
		t.Fatalf("Expected the hold of a saved order to survive, got %d %v", n, err)
	}
	if p := product(t, st, "a"); p.Status != orders.ProductReserved {
		t.Errorf("Expected a still reserved, got %s", p.Status)
	}
}

func TestOrderRefusedAfterSweep(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	st := seed(t, orders.Product{ID: "a", PriceCents: 700})
	svc := &Service{Store: st, TTL: time.Minute, Now: clk.Now, Log: logging.Discard()}
	sw := &Sweeper{Inventory: svc, Orders: st}

	if _, err := svc.ReserveAll(ctx, "slow", []Request{{Product: product(t, st, "a"), Qty: 1}}); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	clk.Advance(2 * time.Minute)
	if n, err := sw.SweepOnce(ctx); err != nil || n != 1 {
		t.Fatalf("Expected 1 hold released, got %d %v", n, err)
	}

	items := []orders.LineItem{{ProductID: "a", ProductName: "a", Qty: 1, PriceCents: 700}}
	_, err := st.CreateOrderWithItems(ctx, orders.Order{ID: "slow", UserID: "u", TotalCents: 700, Status: orders.StatusPending}, items)
	if !errors.Is(err, orders.ErrHoldsReleased) {
		t.Fatalf("Expected ErrHoldsReleased, got %v", err)
	}
	if ok, _ := st.OrderExists(ctx, "slow"); ok {
		t.Error("Expected no order without stock")
	}
}
