package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/cart"
	"github.com/ariefcatur/go-storefront-orders/internal/checkout"
	"github.com/ariefcatur/go-storefront-orders/internal/config"
	"github.com/ariefcatur/go-storefront-orders/internal/httpx"
	"github.com/ariefcatur/go-storefront-orders/internal/inventory"
	"github.com/ariefcatur/go-storefront-orders/internal/logging"
	"github.com/ariefcatur/go-storefront-orders/internal/memstore"
	"github.com/ariefcatur/go-storefront-orders/internal/metrics"
	"github.com/ariefcatur/go-storefront-orders/internal/notify"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/postgres"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel"
)

type stores struct {
	catalog   httpx.Catalog
	products  httpx.ProductAdmin
	orders    interface {
		checkout.Orders
		httpx.OrderReader
		inventory.OrderLookup
	}
	inventory inventory.Store
	notifier  notify.Notifier
	inbox     httpx.Inbox
	close     func()
}

func openStores(ctx context.Context, cfg config.Config, log *slog.Logger) (stores, error) {
	if cfg.Store == "memory" {
		log.Warn("using in-memory store, data is lost on restart")
		ms := memstore.New()
		n := memstore.NewNotifier()
		return stores{catalog: ms, products: ms, orders: ms, inventory: ms, notifier: n, inbox: n, close: func() {}}, nil
	}

	db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.Options{})
	if err != nil {
		return stores{}, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		db.Close()
		return stores{}, err
	}
	catalog := &orders.CatalogRepo{DB: db}
	return stores{
		catalog:   catalog,
		products:  catalog,
		orders:    &orders.Repo{DB: db},
		inventory: orders.InventoryRepo{CatalogRepo: catalog, ReservationRepo: &orders.ReservationRepo{DB: db}},
		notifier:  &notify.Outbox{DB: db, Producer: cfg.ServiceName},
		inbox:     &notify.AdminInbox{DB: db},
		close:     db.Close,
	}, nil
}

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	slog.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Metrics
	mp, err := metrics.InitProvider(ctx, metrics.ProviderConfig{
		Endpoint:       cfg.OTLPEndpoint,
		Insecure:       cfg.OTLPInsecure,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
	})
	if err != nil {
		log.Error("metrics provider", "err", err)
		os.Exit(1)
	}
	defer func() { _ = mp.Shutdown(context.Background()) }()
	appMetrics, err := metrics.New(otel.Meter(cfg.ServiceName))
	if err != nil {
		log.Warn("metrics instruments unavailable, recording nothing", "err", err)
		appMetrics = metrics.Noop()
	}

	// DB
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Error("open stores", "err", err)
		os.Exit(1)
	}
	defer st.close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	inv := &inventory.Service{
		Store:   st.inventory,
		TTL:     cfg.ReservationTTL,
		Log:     log,
		Metrics: appMetrics,
	}
	notifier := &notify.Retrying{Next: st.notifier, Log: log}
	carts := &cart.Service{Store: &cart.RedisStore{RDB: rdb}, Products: st.catalog}
	carts.Subscribe(func(e cart.Event) {
		log.Debug("cart changed", "buyer_id", e.BuyerID, "kind", e.Kind, "product_id", e.ProductID, "size", e.Size, "qty", e.Qty)
	})

	engine := &checkout.Engine{
		Identity:  auth.ContextIdentity{},
		Catalog:   st.catalog,
		Orders:    st.orders,
		Inventory: inv,
		Notifier:  notifier,
		Carts:     carts,
		Guard:     &checkout.RedisGuard{RDB: rdb},
		Log:       log,
		Metrics:   appMetrics,
	}
	lifecycle := &checkout.Lifecycle{Orders: st.orders, Inventory: inv, Notifier: notifier, Log: log}

	// memory mode has no worker process, so sweep here
	if cfg.Store == "memory" {
		sw := &inventory.Sweeper{Inventory: inv, Orders: st.orders, Interval: cfg.SweepInterval}
		go func() { _ = sw.Run(ctx) }()
	}

	router := httpx.NewRouter(httpx.Deps{
		Log:             log,
		Verifier:        &auth.Verifier{Secret: []byte(cfg.JWTSecret)},
		Catalog:         st.catalog,
		Products:        st.products,
		Orders:          st.orders,
		Inventory:       inv,
		Engine:          engine,
		Lifecycle:       lifecycle,
		Carts:           carts,
		Inbox:           st.inbox,
		Redis:           rdb,
		CheckoutLimiter: httpx.NewRateLimiter(cfg.CheckoutRatePerMin),
		PublicBaseURL:   cfg.PublicBaseURL,
	})
	handler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: true,
	}).Handler(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}

	// graceful shutdown
	go func() {
		log.Info("HTTP listening", "addr", cfg.HTTPAddr, "store", cfg.Store)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("listen", "err", err)
			os.Exit(1)
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	cancel()
	notifier.Wait() // tunggu retry notifikasi yang masih jalan
}
