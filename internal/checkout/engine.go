// Package checkout turns a buyer's cart into an order. Placement reserves
// stock before the order row is written and compensates if the write fails,
// so a failed checkout leaves no reserved-but-orderless product behind.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/inventory"
	"github.com/ariefcatur/go-storefront-orders/internal/metrics"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/google/uuid"
)

const PaymentBankTransfer = "bank_transfer"

type Identity interface {
	CurrentUser(ctx context.Context) *auth.User
}

type Catalog interface {
	GetProduct(ctx context.Context, id string) (orders.Product, error)
}

type Orders interface {
	CreateOrderWithItems(ctx context.Context, o orders.Order, items []orders.LineItem) (orders.Order, error)
	GetOrder(ctx context.Context, id string) (orders.Order, error)
	FindByExternalID(ctx context.Context, userID, externalID string) (orders.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, from, to orders.Status) error
	UpdatePaymentStatus(ctx context.Context, id string, from, to orders.PaymentStatus) error
}

// Notifier emits the single confirmation of an order. Implementations must
// dedupe on the order id.
type Notifier interface {
	OrderPlaced(ctx context.Context, c orders.Confirmation) error
}

type CartClearer interface {
	Clear(ctx context.Context, buyerID string) error
}

type Engine struct {
	Identity  Identity
	Catalog   Catalog
	Orders    Orders
	Inventory *inventory.Service
	Notifier  Notifier
	Carts     CartClearer
	Guard     KeyGuard
	Log       *slog.Logger
	Metrics   *metrics.AppMetrics
	NewID     func() string
}

type PlaceOrderInput struct {
	Lines          []orders.CartLine `json:"lines"`
	Phone          string            `json:"phone"`
	Address        string            `json:"address"`
	PaymentMethod  string            `json:"payment_method"`
	IdempotencyKey string            `json:"-"`
}

func (e *Engine) log() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}

func (e *Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

// PlaceOrder validates the cart, reserves every line, persists the order
// with its line items and emits one confirmation. A lost race is retried
// once with fresh data before it is reported.
func (e *Engine) PlaceOrder(ctx context.Context, in PlaceOrderInput) (orders.Confirmation, error) {
	start := time.Now()
	conf, err := e.placeOrder(ctx, in)
	if err != nil {
		e.Metrics.CheckoutFailed(ctx, Reason(err), start)
		return orders.Confirmation{}, err
	}
	if !conf.Replayed {
		e.Metrics.OrderPlaced(ctx, conf.TotalCents, start)
	}
	return conf, nil
}

func (e *Engine) placeOrder(ctx context.Context, in PlaceOrderInput) (orders.Confirmation, error) {
	user := e.Identity.CurrentUser(ctx)
	if user == nil {
		return orders.Confirmation{}, ErrUnauthenticated
	}
	in, err := normalize(in)
	if err != nil {
		return orders.Confirmation{}, err
	}

	key := in.IdempotencyKey
	if key != "" {
		if conf, ok, err := e.replay(ctx, user, key); err != nil || ok {
			return conf, err
		}
		if e.Guard != nil {
			won, err := e.Guard.Begin(ctx, user.ID, key)
			if err != nil {
				return orders.Confirmation{}, storeErr("idempotency guard", err)
			}
			if !won {
				if conf, ok, err := e.replay(ctx, user, key); err != nil || ok {
					return conf, err
				}
				return orders.Confirmation{}, fmt.Errorf("%w: checkout with this key is in progress", ErrConcurrentConflict)
			}
		}
	}

	conf, err := e.attempt(ctx, user, in)
	if errors.Is(err, ErrConcurrentConflict) {
		e.log().Info("checkout conflict, retrying", "user_id", user.ID, "err", err)
		conf, err = e.attempt(ctx, user, in)
	}

	if key != "" && e.Guard != nil {
		gctx := context.WithoutCancel(ctx)
		if err != nil {
			_ = e.Guard.Abort(gctx, user.ID, key)
		} else {
			_ = e.Guard.Complete(gctx, user.ID, key, conf.OrderID)
		}
	}
	return conf, err
}

func (e *Engine) replay(ctx context.Context, user *auth.User, key string) (orders.Confirmation, bool, error) {
	o, err := e.Orders.FindByExternalID(ctx, user.ID, key)
	if errors.Is(err, orders.ErrNotFound) {
		return orders.Confirmation{}, false, nil
	}
	if err != nil {
		return orders.Confirmation{}, false, storeErr("lookup idempotency key", err)
	}
	conf := orders.ConfirmationFor(o)
	conf.UserEmail = user.Email
	conf.Replayed = true
	return conf, true, nil
}

// normalize trims contact fields, merges duplicate lines and rejects
// anything that cannot become an order.
func normalize(in PlaceOrderInput) (PlaceOrderInput, error) {
	if len(in.Lines) == 0 {
		return in, &ValidationError{Field: "lines", Reason: "cart is empty"}
	}
	in.Phone = strings.TrimSpace(in.Phone)
	in.Address = strings.TrimSpace(in.Address)
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)
	if in.Phone == "" {
		return in, &ValidationError{Field: "phone", Reason: "required"}
	}
	if in.Address == "" {
		return in, &ValidationError{Field: "address", Reason: "required"}
	}
	switch in.PaymentMethod {
	case "":
		in.PaymentMethod = orders.PaymentCashOnDelivery
	case orders.PaymentCashOnDelivery, PaymentBankTransfer:
	default:
		return in, &ValidationError{Field: "payment_method", Reason: fmt.Sprintf("unsupported %q", in.PaymentMethod)}
	}

	type lineKey struct{ pid, size string }
	idx := map[lineKey]int{}
	merged := make([]orders.CartLine, 0, len(in.Lines))
	for _, l := range in.Lines {
		l.ProductID = strings.TrimSpace(l.ProductID)
		l.Size = strings.TrimSpace(l.Size)
		if l.ProductID == "" {
			return in, &ValidationError{Field: "lines.product_id", Reason: "required"}
		}
		if l.Qty < 1 {
			return in, &ValidationError{Field: "lines.qty", Reason: "must be at least 1"}
		}
		k := lineKey{l.ProductID, l.Size}
		if i, ok := idx[k]; ok {
			merged[i].Qty += l.Qty
			continue
		}
		idx[k] = len(merged)
		merged = append(merged, l)
	}
	in.Lines = merged
	return in, nil
}

func (e *Engine) attempt(ctx context.Context, user *auth.User, in PlaceOrderInput) (orders.Confirmation, error) {
	orderID := e.newID()

	// 1. snapshot
	snap := map[string]orders.Product{}
	reqs := make([]inventory.Request, 0, len(in.Lines))
	for _, l := range in.Lines {
		p, ok := snap[l.ProductID]
		if !ok {
			var err error
			p, err = e.Catalog.GetProduct(ctx, l.ProductID)
			if errors.Is(err, orders.ErrNotFound) {
				return orders.Confirmation{}, &ItemUnavailableError{ProductID: l.ProductID, Reason: "no longer listed"}
			}
			if err != nil {
				return orders.Confirmation{}, storeErr("read product", err)
			}
			snap[l.ProductID] = p
		}
		if err := checkLine(p, l); err != nil {
			return orders.Confirmation{}, err
		}
		reqs = append(reqs, inventory.Request{Product: p, Size: l.Size, Qty: l.Qty})
	}

	// 2. reserve
	res, err := e.Inventory.ReserveAll(ctx, orderID, reqs)
	if errors.Is(err, inventory.ErrConflict) {
		return orders.Confirmation{}, fmt.Errorf("%w: %w", ErrConcurrentConflict, err)
	}
	if err != nil {
		return orders.Confirmation{}, storeErr("reserve", err)
	}
	defer func() { _ = res.Release(ctx) }()

	// 3. harga dibekukan dari snapshot
	items := make([]orders.LineItem, 0, len(in.Lines))
	for _, l := range in.Lines {
		p := snap[l.ProductID]
		items = append(items, orders.LineItem{
			ProductID:   p.ID,
			ProductName: p.Name,
			Size:        l.Size,
			Qty:         l.Qty,
			PriceCents:  p.PriceCents,
		})
	}
	status := orders.StatusPending
	if in.PaymentMethod == PaymentBankTransfer {
		status = orders.StatusAwaitingPayment
	}
	order := orders.Order{
		ID:            orderID,
		ExternalID:    in.IdempotencyKey,
		UserID:        user.ID,
		TotalCents:    orders.SumItems(items),
		Status:        status,
		PaymentStatus: orders.PaymentUnpaid,
		PaymentMethod: in.PaymentMethod,
		Phone:         in.Phone,
		Address:       in.Address,
	}

	// 4. persist; on failure the deferred Release compensates
	saved, err := e.Orders.CreateOrderWithItems(ctx, order, items)
	if errors.Is(err, orders.ErrHoldsReleased) {
		// the sweeper took our stock back; a retry reserves again
		return orders.Confirmation{}, fmt.Errorf("%w: %w", ErrConcurrentConflict, err)
	}
	if err != nil {
		if errors.Is(err, orders.ErrDuplicateOrder) && in.IdempotencyKey != "" {
			_ = res.Release(ctx)
			if conf, ok, rerr := e.replay(ctx, user, in.IdempotencyKey); rerr == nil && ok {
				return conf, nil
			}
		}
		// the commit may have landed even though we saw an error
		if got, gerr := e.Orders.GetOrder(context.WithoutCancel(ctx), orderID); gerr == nil {
			e.log().Warn("order persisted despite error", "order_id", orderID, "err", err)
			saved = got
		} else {
			e.log().Error("persist order failed, releasing holds", "order_id", orderID, "err", err)
			return orders.Confirmation{}, storeErr("persist order", err)
		}
	}
	res.Commit()
	if err := e.Inventory.Attach(context.WithoutCancel(ctx), orderID); err != nil {
		// sweeper attaches holds of persisted orders
		e.log().Warn("attach holds failed", "order_id", orderID, "err", err)
	}

	// 5. confirmation
	conf := orders.ConfirmationFor(saved)
	conf.UserEmail = user.Email
	if e.Notifier != nil {
		if err := e.Notifier.OrderPlaced(ctx, conf); err != nil {
			e.log().Warn("order confirmation not delivered yet", "order_id", orderID, "err", err)
		}
	}

	// 6. cart
	if e.Carts != nil {
		if err := e.Carts.Clear(context.WithoutCancel(ctx), user.ID); err != nil {
			e.log().Warn("clear cart failed", "order_id", orderID, "user_id", user.ID, "err", err)
		}
	}
	return conf, nil
}

func checkLine(p orders.Product, l orders.CartLine) error {
	unavailable := func(reason string) error {
		return &ItemUnavailableError{ProductID: p.ID, Size: l.Size, Reason: reason}
	}
	if p.Status != orders.ProductAvailable {
		return unavailable(string(p.Status))
	}
	if !p.HasSizes() {
		if l.Size != "" {
			return &ValidationError{Field: "lines.size", Reason: fmt.Sprintf("product %s has no sizes", p.ID)}
		}
		if l.Qty > 1 {
			return unavailable("only one unit exists")
		}
		return nil
	}
	if l.Size == "" {
		return &ValidationError{Field: "lines.size", Reason: fmt.Sprintf("product %s needs a size", p.ID)}
	}
	stock, ok := p.StockFor(l.Size)
	if !ok {
		return unavailable("unknown size")
	}
	if stock == 0 {
		return unavailable("sold out")
	}
	if stock < l.Qty {
		return unavailable(fmt.Sprintf("only %d left", stock))
	}
	return nil
}
