// Package httpx exposes the storefront over HTTP.
package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/cart"
	"github.com/ariefcatur/go-storefront-orders/internal/checkout"
	"github.com/ariefcatur/go-storefront-orders/internal/inventory"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

type Catalog interface {
	GetProduct(ctx context.Context, id string) (orders.Product, error)
	ListProducts(ctx context.Context, status orders.ProductStatus) ([]orders.Product, error)
}

// ProductAdmin is the catalog write side used by the admin screens.
type ProductAdmin interface {
	CreateProduct(ctx context.Context, p orders.Product) (orders.Product, error)
	UpdateProduct(ctx context.Context, p orders.Product) (orders.Product, error)
	RestockSize(ctx context.Context, id, size string, qty int) (orders.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	SetPurchasePrice(ctx context.Context, id string, cents int64) error
	RecordPayment(ctx context.Context, id string, amount int64) (orders.AccountingRow, error)
	SoldProducts(ctx context.Context) ([]orders.AccountingRow, error)
}

type OrderReader interface {
	GetOrder(ctx context.Context, id string) (orders.Order, error)
	ListByUser(ctx context.Context, userID string) ([]orders.Order, error)
	ListOrders(ctx context.Context, status orders.Status) ([]orders.Order, error)
}

type Inbox interface {
	List(ctx context.Context, unreadOnly bool, limit int) ([]orders.Notification, error)
	MarkRead(ctx context.Context, id string) error
}

type Deps struct {
	Log       *slog.Logger
	Verifier  *auth.Verifier
	Catalog   Catalog
	Products  ProductAdmin
	Orders    OrderReader
	Inventory *inventory.Service
	Engine    *checkout.Engine
	Lifecycle *checkout.Lifecycle
	Carts     *cart.Service
	Inbox     Inbox

	// Redis caches order status; nil disables the cache.
	Redis redis.Cmdable

	CheckoutLimiter *RateLimiter
	PublicBaseURL   string
}

func NewRouter(d Deps) *chi.Mux {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(d.Verifier.Middleware)

		ph := &ProductsHandler{Catalog: d.Catalog, Products: d.Products, Inventory: d.Inventory, Log: d.Log}
		r.Get("/products", ph.list)
		r.Get("/products/{id}", ph.get)

		r.Group(func(r chi.Router) {
			r.Use(auth.Require)

			ch := &CartHandler{Carts: d.Carts}
			ch.Register(r)

			oh := &OrdersHandler{Engine: d.Engine, Carts: d.Carts, Orders: d.Orders, Redis: d.Redis, Log: d.Log}
			if d.CheckoutLimiter != nil {
				r.With(d.CheckoutLimiter.Limit).Post("/checkout", oh.checkout)
			} else {
				r.Post("/checkout", oh.checkout)
			}
			r.Get("/orders", oh.listMine)
			r.Get("/orders/{id}", oh.get)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireAdmin)
			ph.RegisterAdmin(r)
			ah := &AdminHandler{
				Orders:        d.Orders,
				Lifecycle:     d.Lifecycle,
				Products:      d.Products,
				Inbox:         d.Inbox,
				Redis:         d.Redis,
				PublicBaseURL: d.PublicBaseURL,
				Log:           d.Log,
			}
			ah.Register(r)
		})
	})
	return r
}
