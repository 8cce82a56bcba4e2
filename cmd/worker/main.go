package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/config"
	"github.com/ariefcatur/go-storefront-orders/internal/inventory"
	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/logging"
	"github.com/ariefcatur/go-storefront-orders/internal/metrics"
	"github.com/ariefcatur/go-storefront-orders/internal/notify"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/postgres"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
)

// The worker relays the outbox to Kafka, delivers notifications from Kafka
// and returns expired holds to the catalog.
func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logging.New(cfg.LogLevel).With("service", cfg.ServiceName+"-worker")
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mp, err := metrics.InitProvider(ctx, metrics.ProviderConfig{
		Endpoint:       cfg.OTLPEndpoint,
		Insecure:       cfg.OTLPInsecure,
		ServiceName:    cfg.ServiceName + "-worker",
		ServiceVersion: cfg.ServiceVersion,
	})
	if err != nil {
		log.Error("metrics provider", "err", err)
		os.Exit(1)
	}
	defer func() { _ = mp.Shutdown(context.Background()) }()
	appMetrics, err := metrics.New(otel.Meter(cfg.ServiceName + "-worker"))
	if err != nil {
		log.Warn("metrics instruments unavailable, recording nothing", "err", err)
		appMetrics = metrics.Noop()
	}

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.Options{})
	if err != nil {
		log.Error("db connect", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		log.Error("migrate", "err", err)
		os.Exit(1)
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka
	prod := kafkax.NewProducer(cfg.KafkaBrokers)
	defer prod.Close()

	relay := &notify.Relay{
		Log:      log,
		Store:    &notify.Outbox{DB: db, Producer: cfg.ServiceName},
		Producer: prod,
		Interval: cfg.RelayInterval,
	}

	sinks := map[string]notify.Sink{
		notify.ChannelAdminInbox: &notify.AdminInbox{DB: db},
	}
	if cfg.WhatsAppToken != "" && cfg.WhatsAppPhoneID != "" {
		wa := &notify.WhatsApp{
			APIURL:   cfg.WhatsAppAPIURL,
			PhoneID:  cfg.WhatsAppPhoneID,
			Token:    cfg.WhatsAppToken,
			Template: cfg.WhatsAppTemplate,
			Client:   &http.Client{Timeout: 10 * time.Second},
		}
		sinks[notify.ChannelAdminWhatsApp] = wa
		sinks[notify.ChannelBuyerWhatsApp] = wa
	} else {
		log.Warn("whatsapp not configured, only the admin inbox is notified")
	}
	deliverer := &notify.Deliverer{
		RDB:        rdb,
		Sinks:      sinks,
		AdminPhone: cfg.AdminPhone,
		Log:        log,
		Metrics:    appMetrics,
	}
	consumer := kafkax.NewConsumer(log, cfg.KafkaBrokers, cfg.NotifyGroup,
		[]string{orders.TopicOrderPlaced, orders.TopicOrderStatusChanged}, cfg.NotifyWorkers)

	inv := &inventory.Service{
		Store:   orders.NewInventoryRepo(db),
		TTL:     cfg.ReservationTTL,
		Log:     log,
		Metrics: appMetrics,
	}
	sweeper := &inventory.Sweeper{Inventory: inv, Orders: &orders.Repo{DB: db}, Interval: cfg.SweepInterval}

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				log.Error(name+" stopped", "err", err)
				stop()
			}
		}()
	}
	run("relay", relay.Run)
	run("sweeper", sweeper.Run)
	run("consumer", func(ctx context.Context) error { return consumer.Start(ctx, deliverer.Handle) })

	log.Info("worker started", "brokers", cfg.KafkaBrokers, "group", cfg.NotifyGroup)
	<-ctx.Done()
	log.Info("shutting down...")
	wg.Wait()
}
