package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/logging"
	"github.com/ariefcatur/go-storefront-orders/internal/memstore"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

func seed(t *testing.T, ps ...orders.Product) *memstore.Store {
	t.Helper()
	st := memstore.New()
	for _, p := range ps {
		if p.Condition == "" {
			p.Condition = orders.ConditionUsed
		}
		if p.PriceCents == 0 {
			p.PriceCents = 1000
		}
		if p.Name == "" {
			p.Name = p.ID
		}
		if _, err := st.CreateProduct(context.Background(), p); err != nil {
			t.Fatalf("seed %s: %v", p.ID, err)
		}
	}
	return st
}

func product(t *testing.T, st *memstore.Store, id string) orders.Product {
	t.Helper()
	p, err := st.GetProduct(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return p
}

func TestReserveAllAndRelease(t *testing.T) {
	ctx := context.Background()
	st := seed(t,
		orders.Product{ID: "a"},
		orders.Product{ID: "b", Sizes: []orders.SizeStock{{Label: "M", Stock: 2}}},
	)
	svc := &Service{Store: st, Log: logging.Discard()}

	res, err := svc.ReserveAll(ctx, "order-1", []Request{
		{Product: product(t, st, "b"), Size: "M", Qty: 2},
		{Product: product(t, st, "a"), Qty: 1},
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if n := len(res.Holds()); n != 2 {
		t.Fatalf("Expected 2 holds, got %d", n)
	}
	if res.Holds()[0].ProductID != "a" {
		t.Errorf("Expected holds taken in product order, got %s first", res.Holds()[0].ProductID)
	}
	if p := product(t, st, "a"); p.Status != orders.ProductReserved {
		t.Errorf("Expected a reserved, got %s", p.Status)
	}
	b := product(t, st, "b")
	if n, _ := b.StockFor("M"); n != 0 || b.Status != orders.ProductReserved {
		t.Errorf("Expected b M=0 reserved, got M=%d %s", n, b.Status)
	}

	if err := res.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if p := product(t, st, "a"); p.Status != orders.ProductAvailable {
		t.Errorf("Expected a available, got %s", p.Status)
	}
	b = product(t, st, "b")
	if n, _ := b.StockFor("M"); n != 2 || b.Status != orders.ProductAvailable {
		t.Errorf("Expected b M=2 available, got M=%d %s", n, b.Status)
	}
	// a second release is a no-op
	if err := res.Release(ctx); err != nil {
		t.Errorf("second release: %v", err)
	}
}

func TestReserveAllConflictLeavesNothing(t *testing.T) {
	ctx := context.Background()
	st := seed(t,
		orders.Product{ID: "a"},
		orders.Product{ID: "z", Sizes: []orders.SizeStock{{Label: "L", Stock: 2}}},
	)
	svc := &Service{Store: st, Log: logging.Discard()}
	stale := product(t, st, "z")

	// another buyer takes one unit of z after our snapshot
	if _, err := svc.ReserveAll(ctx, "other", []Request{{Product: stale, Size: "L", Qty: 1}}); err != nil {
		t.Fatalf("other reserve: %v", err)
	}

	_, err := svc.ReserveAll(ctx, "order-1", []Request{
		{Product: product(t, st, "a"), Qty: 1},
		{Product: stale, Size: "L", Qty: 1},
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("Expected ErrConflict, got %v", err)
	}
	if p := product(t, st, "a"); p.Status != orders.ProductAvailable {
		t.Errorf("Expected a rolled back to available, got %s", p.Status)
	}
	if n, _ := product(t, st, "z").StockFor("L"); n != 1 {
		t.Errorf("Expected z L=1, got %d", n)
	}
	holds, _ := st.HoldsForOrder(ctx, "order-1")
	for _, h := range holds {
		if h.Status == orders.HoldHeld {
			t.Errorf("Expected no held holds for order-1, got %+v", h)
		}
	}
}

func TestReserveUniqueItemTwice(t *testing.T) {
	st := seed(t, orders.Product{ID: "a"})
	svc := &Service{Store: st, Log: logging.Discard()}
	_, err := svc.ReserveAll(context.Background(), "o", []Request{{Product: product(t, st, "a"), Qty: 2}})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("Expected ErrConflict for qty 2 of a unique item, got %v", err)
	}
}

func TestConfirmSale(t *testing.T) {
	ctx := context.Background()
	st := seed(t,
		orders.Product{ID: "a"},
		orders.Product{ID: "b", Sizes: []orders.SizeStock{{Label: "M", Stock: 2}}},
		orders.Product{ID: "c", Sizes: []orders.SizeStock{{Label: "S", Stock: 3}}},
	)
	svc := &Service{Store: st, Log: logging.Discard()}

	res, err := svc.ReserveAll(ctx, "order-1", []Request{
		{Product: product(t, st, "a"), Qty: 1},
		{Product: product(t, st, "b"), Size: "M", Qty: 2},
		{Product: product(t, st, "c"), Size: "S", Qty: 1},
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	res.Commit()
	if err := svc.Attach(ctx, "order-1"); err != nil {
		t.Fatalf("attach: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := svc.ConfirmSale(ctx, "order-1"); err != nil {
			t.Fatalf("confirm %d: %v", i, err)
		}
	}
	want := map[string]orders.ProductStatus{"a": orders.ProductSold, "b": orders.ProductSold, "c": orders.ProductAvailable}
	for id, status := range want {
		if got := product(t, st, id).Status; got != status {
			t.Errorf("%s: expected %s, got %s", id, status, got)
		}
	}
	if n, _ := svc.ReleaseOrder(ctx, "order-1"); n != 0 {
		t.Errorf("Expected confirmed holds not to be released, got %d", n)
	}
}

func TestReleaseOrder(t *testing.T) {
	ctx := context.Background()
	st := seed(t, orders.Product{ID: "a"}, orders.Product{ID: "b"})
	svc := &Service{Store: st, Log: logging.Discard()}

	res, err := svc.ReserveAll(ctx, "order-1", []Request{
		{Product: product(t, st, "a"), Qty: 1},
		{Product: product(t, st, "b"), Qty: 1},
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	res.Commit()

	n, err := svc.ReleaseOrder(ctx, "order-1")
	if err != nil || n != 2 {
		t.Fatalf("Expected 2 holds released, got %d %v", n, err)
	}
	if n, _ := svc.ReleaseOrder(ctx, "order-1"); n != 0 {
		t.Errorf("Expected a repeated release to do nothing, got %d", n)
	}
	for _, id := range []string{"a", "b"} {
		if got := product(t, st, id).Status; got != orders.ProductAvailable {
			t.Errorf("%s: expected available, got %s", id, got)
		}
	}
}

func TestRepost(t *testing.T) {
	ctx := context.Background()
	st := seed(t,
		orders.Product{ID: "a"},
		orders.Product{ID: "b", Sizes: []orders.SizeStock{{Label: "M", Stock: 1}}},
	)
	svc := &Service{Store: st, Log: logging.Discard()}

	if _, err := svc.Repost(ctx, "a"); !errors.Is(err, orders.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition reposting an available item, got %v", err)
	}

	res, err := svc.ReserveAll(ctx, "order-1", []Request{
		{Product: product(t, st, "a"), Qty: 1},
		{Product: product(t, st, "b"), Size: "M", Qty: 1},
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	res.Commit()
	if err := svc.ConfirmSale(ctx, "order-1"); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	p, err := svc.Repost(ctx, "a")
	if err != nil || p.Status != orders.ProductAvailable {
		t.Fatalf("Expected a available again, got %s %v", p.Status, err)
	}
	if _, err := svc.Repost(ctx, "b"); !errors.Is(err, orders.ErrInvalidProduct) {
		t.Errorf("Expected ErrInvalidProduct reposting a sized product without stock, got %v", err)
	}
	if _, err := svc.Repost(ctx, "missing"); !errors.Is(err, orders.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestHoldsCarryTTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	st := seed(t, orders.Product{ID: "a"})
	svc := &Service{Store: st, TTL: time.Minute, Now: func() time.Time { return now }, Log: logging.Discard()}

	res, err := svc.ReserveAll(context.Background(), "o", []Request{{Product: product(t, st, "a"), Qty: 1}})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	h := res.Holds()[0]
	if h.ExpiresAt == nil || !h.ExpiresAt.Equal(now.Add(time.Minute)) {
		t.Errorf("Expected expiry %v, got %v", now.Add(time.Minute), h.ExpiresAt)
	}
}
