//go:build integration

package orders_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/inventory"
	"github.com/ariefcatur/go-storefront-orders/internal/logging"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	pg "github.com/ariefcatur/go-storefront-orders/internal/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	c, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("storefront"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("dsn: %v", err)
	}
	pool, err := pg.Connect(ctx, dsn, pg.Options{MaxConns: 4})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := pg.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// twice, every statement must be idempotent
	if err := pg.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate again: %v", err)
	}
	return pool
}

func TestPostgresReservationSaga(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()
	inv := orders.NewInventoryRepo(pool)
	repo := &orders.Repo{DB: pool}
	svc := &inventory.Service{Store: inv, Log: logging.Discard()}

	jacket, err := inv.CreateProduct(ctx, orders.Product{
		Name: "Jacket", PriceCents: 5000, Condition: orders.ConditionNew,
		Sizes: []orders.SizeStock{{Label: "S", Stock: 1}, {Label: "M", Stock: 2}},
	})
	if err != nil {
		t.Fatalf("create jacket: %v", err)
	}
	scarf, err := inv.CreateProduct(ctx, orders.Product{Name: "Scarf", PriceCents: 1200, Condition: orders.ConditionUsed})
	if err != nil {
		t.Fatalf("create scarf: %v", err)
	}

	orderID := uuid.NewString()
	res, err := svc.ReserveAll(ctx, orderID, []inventory.Request{
		{Product: jacket, Size: "M", Qty: 2},
		{Product: scarf, Qty: 1},
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	// a second buyer with the same stale snapshot loses
	if _, err := svc.ReserveAll(ctx, uuid.NewString(), []inventory.Request{{Product: scarf, Qty: 1}}); !errors.Is(err, inventory.ErrConflict) {
		t.Fatalf("Expected ErrConflict, got %v", err)
	}

	items := []orders.LineItem{
		{ProductID: jacket.ID, ProductName: "Jacket", Size: "M", Qty: 2, PriceCents: 5000},
		{ProductID: scarf.ID, ProductName: "Scarf", Qty: 1, PriceCents: 1200},
	}
	o, err := repo.CreateOrderWithItems(ctx, orders.Order{
		ID: orderID, ExternalID: "key-1", UserID: "u1", Status: orders.StatusPending,
		PaymentStatus: orders.PaymentUnpaid, PaymentMethod: orders.PaymentCashOnDelivery,
		Phone: "+250788000000", Address: "Kigali", TotalCents: orders.SumItems(items),
	}, items)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	res.Commit()
	if err := svc.Attach(ctx, orderID); err != nil {
		t.Fatalf("attach: %v", err)
	}

	if expired, _ := inv.ExpiredHolds(ctx, time.Now().Add(time.Hour), 10); len(expired) != 0 {
		t.Errorf("Expected attached holds to never expire, got %d", len(expired))
	}

	_, err = repo.CreateOrderWithItems(ctx, orders.Order{
		ID: uuid.NewString(), ExternalID: "key-1", UserID: "u1", Status: orders.StatusPending,
		PaymentStatus: orders.PaymentUnpaid, PaymentMethod: orders.PaymentCashOnDelivery, TotalCents: orders.SumItems(items),
	}, items)
	if !errors.Is(err, orders.ErrDuplicateOrder) {
		t.Errorf("Expected ErrDuplicateOrder, got %v", err)
	}
	if found, err := repo.FindByExternalID(ctx, "u1", "key-1"); err != nil || found.ID != o.ID {
		t.Errorf("Expected to find the order by key, got %v, %v", found.ID, err)
	}

	got, err := repo.GetOrder(ctx, orderID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if len(got.Items) != 2 || got.TotalCents != 11200 {
		t.Errorf("unexpected order %+v", got)
	}

	if err := repo.UpdateOrderStatus(ctx, orderID, orders.StatusPending, orders.StatusPaid); err != nil {
		t.Fatalf("status: %v", err)
	}
	if err := repo.UpdateOrderStatus(ctx, orderID, orders.StatusPending, orders.StatusCancelled); !errors.Is(err, orders.ErrStaleStatus) {
		t.Errorf("Expected ErrStaleStatus, got %v", err)
	}
	if err := svc.ConfirmSale(ctx, orderID); err != nil {
		t.Fatalf("confirm sale: %v", err)
	}

	s, _ := inv.GetProduct(ctx, scarf.ID)
	if s.Status != orders.ProductSold || s.PaidAt == nil {
		t.Errorf("Expected the scarf sold, got %s", s.Status)
	}
	j, _ := inv.GetProduct(ctx, jacket.ID)
	if j.Status != orders.ProductAvailable {
		t.Errorf("Expected the jacket still available with S left, got %s", j.Status)
	}
	if m, _ := j.StockFor("M"); m != 0 {
		t.Errorf("Expected M sold out, got %d", m)
	}

	if err := inv.DeleteProduct(ctx, scarf.ID); !errors.Is(err, orders.ErrProductInUse) {
		t.Errorf("Expected ErrProductInUse, got %v", err)
	}
	if _, err := svc.Repost(ctx, scarf.ID); err != nil {
		t.Errorf("repost: %v", err)
	}
}

func TestPostgresExpiredHoldRelease(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()
	inv := orders.NewInventoryRepo(pool)

	now := time.Now()
	svc := &inventory.Service{Store: inv, TTL: time.Minute, Now: func() time.Time { return now }, Log: logging.Discard()}
	tee, err := inv.CreateProduct(ctx, orders.Product{
		Name: "Tee", PriceCents: 900, Condition: orders.ConditionNew,
		Sizes: []orders.SizeStock{{Label: "L", Stock: 1}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.ReserveAll(ctx, "abandoned", []inventory.Request{{Product: tee, Size: "L", Qty: 1}}); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	p, _ := inv.GetProduct(ctx, tee.ID)
	if p.Status != orders.ProductReserved {
		t.Fatalf("Expected the last unit to reserve the product, got %s", p.Status)
	}

	sw := &inventory.Sweeper{Inventory: svc, Orders: &orders.Repo{DB: pool}}
	now = now.Add(2 * time.Minute)
	n, err := sw.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 hold released, got %d", n)
	}

	p, _ = inv.GetProduct(ctx, tee.ID)
	if l, _ := p.StockFor("L"); l != 1 || p.Status != orders.ProductAvailable {
		t.Errorf("Expected the unit back on sale, got L=%d status=%s", l, p.Status)
	}
}

func TestPostgresLastUnitsOfDifferentSizes(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()
	inv := orders.NewInventoryRepo(pool)
	svc := &inventory.Service{Store: inv, Log: logging.Discard()}

	for round := 0; round < 10; round++ {
		p, err := inv.CreateProduct(ctx, orders.Product{
			Name: "Dress", PriceCents: 3000, Condition: orders.ConditionNew,
			Sizes: []orders.SizeStock{{Label: "S", Stock: 1}, {Label: "M", Stock: 1}},
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}

		ids := []string{uuid.NewString(), uuid.NewString()}
		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i, size := range []string{"S", "M"} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = svc.ReserveAll(ctx, ids[i], []inventory.Request{{Product: p, Size: size, Qty: 1}})
			}()
		}
		wg.Wait()
		for i, err := range errs {
			if err != nil {
				t.Fatalf("round %d buyer %d: %v", round, i, err)
			}
		}

		got, _ := inv.GetProduct(ctx, p.ID)
		if got.TotalStock() != 0 || got.Status != orders.ProductReserved {
			t.Fatalf("round %d: Expected sold out and reserved, got stock=%d status=%s", round, got.TotalStock(), got.Status)
		}

		for _, id := range ids {
			if err := svc.ConfirmSale(ctx, id); err != nil {
				t.Fatalf("confirm %s: %v", id, err)
			}
		}
		if got, _ := inv.GetProduct(ctx, p.ID); got.Status != orders.ProductSold {
			t.Errorf("round %d: Expected sold once both sales are confirmed, got %s", round, got.Status)
		}
	}
}
