package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/cart"
	"github.com/ariefcatur/go-storefront-orders/internal/checkout"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
)

type OrdersHandler struct {
	Engine *checkout.Engine
	Carts  *cart.Service
	Orders OrderReader
	Redis  redis.Cmdable
	Log    *slog.Logger
}

type checkoutReq struct {
	Lines         []orders.CartLine `json:"lines"`
	Phone         string            `json:"phone"`
	Address       string            `json:"address"`
	PaymentMethod string            `json:"payment_method"`
}

// checkout places an order. Without lines in the body the buyer's
// server-side cart is used.
func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutReq
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	u := auth.FromContext(r.Context())
	ctx := r.Context()

	if len(req.Lines) == 0 && h.Carts != nil {
		lines, err := h.Carts.Lines(ctx, u.ID)
		if err != nil {
			h.Log.Error("load cart for checkout", "user_id", u.ID, "err", err)
			writeError(w, fmt.Errorf("%w: load cart: %w", checkout.ErrStoreUnavailable, err))
			return
		}
		req.Lines = lines
	}

	conf, err := h.Engine.PlaceOrder(ctx, checkout.PlaceOrderInput{
		Lines:          req.Lines,
		Phone:          req.Phone,
		Address:        req.Address,
		PaymentMethod:  req.PaymentMethod,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.Log.Info("checkout rejected", "user_id", u.ID, "reason", checkout.Reason(err), "err", err)
		writeError(w, err)
		return
	}
	code := http.StatusCreated
	if conf.Replayed {
		code = http.StatusOK
	}
	writeJSON(w, code, conf)
}

func (h *OrdersHandler) listMine(w http.ResponseWriter, r *http.Request) {
	u := auth.FromContext(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Orders.ListByUser(ctx, u.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	u := auth.FromContext(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := loadOrder(ctx, h.Orders, h.Redis, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	// order orang lain diperlakukan seperti tidak ada
	if o.UserID != u.ID && !u.IsAdmin() {
		writeError(w, orders.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// loadOrder reads through the redis cache. Cache failures fall back to the
// store; the store stays the source of truth.
func loadOrder(ctx context.Context, store OrderReader, rdb redis.Cmdable, id string) (orders.Order, error) {
	key := fmt.Sprintf(redisx.KeyOrderStatus, id)
	if rdb != nil {
		if s, err := rdb.Get(ctx, key).Result(); err == nil && s != "" {
			var o orders.Order
			if json.Unmarshal([]byte(s), &o) == nil {
				return o, nil
			}
		}
	}
	o, err := store.GetOrder(ctx, id)
	if err != nil {
		return orders.Order{}, err
	}
	if rdb != nil {
		if b, err := json.Marshal(o); err == nil {
			_ = rdb.Set(ctx, key, b, redisx.TTLStatusCache).Err()
		}
	}
	return o, nil
}

func invalidateOrder(ctx context.Context, rdb redis.Cmdable, id string) {
	if rdb == nil {
		return
	}
	_ = rdb.Del(ctx, fmt.Sprintf(redisx.KeyOrderStatus, id)).Err()
}
