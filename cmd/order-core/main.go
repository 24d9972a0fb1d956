package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/setof-commerce/order-core/internal/catalog"
	checkoutapp "github.com/setof-commerce/order-core/internal/checkout/app"
	claimapp "github.com/setof-commerce/order-core/internal/claim/app"
	"github.com/setof-commerce/order-core/internal/httpx"
	eventapp "github.com/setof-commerce/order-core/internal/orderevent/app"
	"github.com/setof-commerce/order-core/internal/pkg/config"
	"github.com/setof-commerce/order-core/internal/pkg/lock"
	"github.com/setof-commerce/order-core/internal/pkg/metrics"
	"github.com/setof-commerce/order-core/internal/pkg/outbox"
	"github.com/setof-commerce/order-core/internal/pkg/postgres"
	"github.com/setof-commerce/order-core/internal/pkg/telemetry"
	"github.com/setof-commerce/order-core/internal/stock"
	storage "github.com/setof-commerce/order-core/internal/storage/postgres"
)

func main() {
	telemetry.InitLogger()

	if err := run(); err != nil {
		slog.Error("order-core exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.SetupTracer(ctx, cfg.ServiceName)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			slog.Error("tracer shutdown failed", "error", err)
		}
	}()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := storage.Migrate(ctx, db.Pool()); err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return err
	}

	locker := lock.NewRedisLocker(rdb)
	counter := stock.NewRedisCounter(rdb)
	reserver := stock.NewReserver(locker, counter, cfg.LockWait, cfg.LockLease)
	products := catalog.NewRedisCatalog(rdb)

	checkoutRepo := storage.NewCheckoutRepo()
	paymentRepo := storage.NewPaymentRepo()
	orderRepo := storage.NewOrderRepo()
	eventRepo := storage.NewEventRepo()
	claimRepo := storage.NewClaimRepo()

	pipeline := metrics.NewPipeline("checkout")

	recorder := eventapp.NewRecorder(eventRepo, orderRepo, outbox.Store{}, db.Pool(), db, cfg.OrderEventTopic)

	checkoutSvc := checkoutapp.NewService(checkoutapp.ServiceParams{
		Checkouts:   checkoutRepo,
		Payments:    paymentRepo,
		Orders:      orderRepo,
		Events:      recorder,
		Catalog:     products,
		Stock:       reserver,
		Locker:      locker,
		DB:          db.Pool(),
		Tx:          db,
		Metrics:     pipeline,
		CheckoutTTL: cfg.CheckoutTTL,
		LockWait:    cfg.LockWait,
		LockLease:   cfg.LockLease,
	})

	claimSvc := claimapp.NewService(claimRepo, orderRepo, paymentRepo, recorder, reserver, db.Pool(), db)

	sweeper := checkoutapp.NewSweeper(checkoutSvc, cfg.SweepInterval)
	go sweeper.Run(ctx)

	if relay := outbox.NewRelay(db.Pool(), cfg.KafkaBrokers, cfg.OrderEventTopic); relay != nil {
		go relay.Run(ctx)
	} else {
		slog.Info("outbox relay disabled, no kafka brokers configured")
	}

	handler := httpx.NewHandler(checkoutSvc, claimSvc, recorder)
	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httpx.NewRouter(handler),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("order-core listening", "addr", server.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
