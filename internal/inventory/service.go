package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/metrics"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/google/uuid"
)

// ErrConflict means another buyer changed the row between our read and our
// compare-and-swap. Nothing of the attempt is left behind.
var ErrConflict = errors.New("reservation conflict")

// Store is the catalog plus the hold ledger. Claims that carry a hold must
// write the hold atomically with the claim.
type Store interface {
	GetProduct(ctx context.Context, id string) (orders.Product, error)
	CompareAndSwapStatus(ctx context.Context, id string, expected, next orders.ProductStatus, hold *orders.Hold) (bool, error)
	DecrementSizeStock(ctx context.Context, id, size string, expected, qty int, hold *orders.Hold) (bool, error)

	ReleaseHold(ctx context.Context, holdID string) (bool, error)
	ReleaseExpiredHold(ctx context.Context, holdID string, before time.Time) (bool, error)
	AttachHolds(ctx context.Context, orderID string) error
	ConfirmHolds(ctx context.Context, orderID string) ([]orders.Hold, error)
	ExpiredHolds(ctx context.Context, before time.Time, limit int) ([]orders.Hold, error)
	CountActiveHolds(ctx context.Context, productID string) (int, error)
	HoldsForOrder(ctx context.Context, orderID string) ([]orders.Hold, error)
}

type Service struct {
	Store   Store
	TTL     time.Duration
	Now     func() time.Time
	Log     *slog.Logger
	Metrics *metrics.AppMetrics
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return 15 * time.Minute
}

func (s *Service) log() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}

// Request asks for Qty units of Product (optionally of one size). Product is
// the snapshot read before reserving; its stock and status are the expected
// values of the compare-and-swap.
type Request struct {
	Product orders.Product
	Size    string
	Qty     int
}

// Reservation is a set of holds taken for one order attempt. Release must be
// called on every exit path; it does nothing once Commit has been called.
type Reservation struct {
	OrderID string

	svc       *Service
	mu        sync.Mutex
	holds     []orders.Hold
	committed bool
	released  bool
}

func (r *Reservation) Holds() []orders.Hold {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]orders.Hold(nil), r.holds...)
}

// Commit hands the holds over to the persisted order.
func (r *Reservation) Commit() {
	r.mu.Lock()
	r.committed = true
	r.mu.Unlock()
}

// Release returns every hold to the catalog, newest first. It ignores
// cancellation of ctx so a caller that gave up still compensates.
func (r *Reservation) Release(ctx context.Context) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	if r.committed || r.released {
		r.mu.Unlock()
		return nil
	}
	r.released = true
	holds := r.holds
	r.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	var errs []error
	for i := len(holds) - 1; i >= 0; i-- {
		h := holds[i]
		if _, err := r.svc.Store.ReleaseHold(ctx, h.ID); err != nil {
			// sisa hold tetap punya TTL, sweeper yang akan mengembalikan
			r.svc.log().Error("release hold failed", "order_id", r.OrderID, "hold_id", h.ID, "product_id", h.ProductID, "err", err)
			errs = append(errs, err)
			continue
		}
		r.svc.Metrics.HoldReleased(ctx, "rollback")
	}
	return errors.Join(errs...)
}

// ReserveAll claims every request or nothing. Requests are claimed in
// product-id order so two carts never wait on each other in opposite order.
func (s *Service) ReserveAll(ctx context.Context, orderID string, reqs []Request) (*Reservation, error) {
	sorted := append([]Request(nil), reqs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Product.ID != sorted[j].Product.ID {
			return sorted[i].Product.ID < sorted[j].Product.ID
		}
		return sorted[i].Size < sorted[j].Size
	})

	now := s.now()
	expires := now.Add(s.ttl())
	res := &Reservation{OrderID: orderID, svc: s}

	for _, rq := range sorted {
		h := orders.Hold{
			ID:        uuid.NewString(),
			OrderID:   orderID,
			ProductID: rq.Product.ID,
			Size:      rq.Size,
			Qty:       rq.Qty,
			Status:    orders.HoldHeld,
			ExpiresAt: &expires,
			CreatedAt: now,
		}
		ok, err := s.claim(ctx, rq, &h)
		if err != nil {
			_ = res.Release(ctx)
			return nil, fmt.Errorf("reserve %s: %w", rq.Product.ID, err)
		}
		if !ok {
			s.Metrics.Conflict(ctx, rq.Product.ID)
			_ = res.Release(ctx)
			return nil, fmt.Errorf("%w: product %s", ErrConflict, rq.Product.ID)
		}
		res.holds = append(res.holds, h)
	}
	return res, nil
}

func (s *Service) claim(ctx context.Context, rq Request, h *orders.Hold) (bool, error) {
	if rq.Qty < 1 {
		return false, fmt.Errorf("invalid qty %d", rq.Qty)
	}
	if rq.Size == "" {
		if rq.Product.HasSizes() || rq.Qty != 1 {
			return false, nil
		}
		return s.Store.CompareAndSwapStatus(ctx, rq.Product.ID, orders.ProductAvailable, orders.ProductReserved, h)
	}
	expected, ok := rq.Product.StockFor(rq.Size)
	if !ok || expected < rq.Qty {
		return false, nil
	}
	return s.Store.DecrementSizeStock(ctx, rq.Product.ID, rq.Size, expected, rq.Qty, h)
}

// Attach stops the sweeper from expiring the holds of a persisted order.
func (s *Service) Attach(ctx context.Context, orderID string) error {
	return s.Store.AttachHolds(ctx, orderID)
}

// ConfirmSale finalises the holds of a paid order. Unique items move to
// sold; a sized product moves to sold once its last unit is confirmed.
// Calling it again for the same order is harmless.
func (s *Service) ConfirmSale(ctx context.Context, orderID string) error {
	holds, err := s.Store.ConfirmHolds(ctx, orderID)
	if err != nil {
		return fmt.Errorf("confirm holds: %w", err)
	}
	seen := map[string]bool{}
	for _, h := range holds {
		if seen[h.ProductID] {
			continue
		}
		seen[h.ProductID] = true

		p, err := s.Store.GetProduct(ctx, h.ProductID)
		if err != nil {
			return fmt.Errorf("confirm %s: %w", h.ProductID, err)
		}
		if p.Status != orders.ProductReserved {
			continue
		}
		if p.HasSizes() {
			if p.TotalStock() > 0 {
				continue
			}
			n, err := s.Store.CountActiveHolds(ctx, p.ID)
			if err != nil {
				return err
			}
			if n > 0 {
				continue
			}
		}
		ok, err := s.Store.CompareAndSwapStatus(ctx, p.ID, orders.ProductReserved, orders.ProductSold, nil)
		if err != nil {
			return fmt.Errorf("mark %s sold: %w", p.ID, err)
		}
		if !ok {
			s.log().Warn("product changed while confirming sale", "order_id", orderID, "product_id", p.ID)
		}
	}
	return nil
}

// ReleaseOrder returns the unconfirmed holds of a cancelled order.
func (s *Service) ReleaseOrder(ctx context.Context, orderID string) (int, error) {
	holds, err := s.Store.HoldsForOrder(ctx, orderID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, h := range holds {
		if h.Status != orders.HoldHeld {
			continue
		}
		ok, err := s.Store.ReleaseHold(ctx, h.ID)
		if err != nil {
			return n, fmt.Errorf("release %s: %w", h.ID, err)
		}
		if ok {
			n++
			s.Metrics.HoldReleased(ctx, "cancel")
		}
	}
	return n, nil
}

// Repost puts a sold unique item back on sale. Sized products come back
// through a restock instead.
func (s *Service) Repost(ctx context.Context, productID string) (orders.Product, error) {
	p, err := s.Store.GetProduct(ctx, productID)
	if err != nil {
		return orders.Product{}, err
	}
	if p.HasSizes() && p.TotalStock() == 0 {
		return orders.Product{}, fmt.Errorf("%w: restock a size to repost a sized product", orders.ErrInvalidProduct)
	}
	ok, err := s.Store.CompareAndSwapStatus(ctx, productID, orders.ProductSold, orders.ProductAvailable, nil)
	if err != nil {
		return orders.Product{}, err
	}
	if !ok {
		return orders.Product{}, fmt.Errorf("%w: product is %s", orders.ErrInvalidTransition, p.Status)
	}
	return s.Store.GetProduct(ctx, productID)
}
