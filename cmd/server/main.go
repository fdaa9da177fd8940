package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Priya8975/checkout-webhooks/internal/api"
	natsbroker "github.com/Priya8975/checkout-webhooks/internal/broker/nats"
	"github.com/Priya8975/checkout-webhooks/internal/checkout"
	"github.com/Priya8975/checkout-webhooks/internal/config"
	"github.com/Priya8975/checkout-webhooks/internal/engine"
	"github.com/Priya8975/checkout-webhooks/internal/logging"
	"github.com/Priya8975/checkout-webhooks/internal/registry"
	"github.com/Priya8975/checkout-webhooks/internal/store"
	"github.com/Priya8975/checkout-webhooks/internal/telemetry"
	ws "github.com/Priya8975/checkout-webhooks/internal/websocket"
	"github.com/Priya8975/checkout-webhooks/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTELEndpoint != "" {
		shutdown, err := telemetry.Init(ctx, cfg.ServiceName, cfg.OTELEndpoint, logger)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	components := map[string]api.Pinger{}
	var (
		regOpts      []registry.Option
		attempts     []engine.AttemptListener
		reports      []engine.ReportListener
		pgStore      *store.PostgresStore
		redisStore   *store.RedisStore
		healthSource api.HealthSource
		restoredSubs int
	)

	// PostgreSQL is optional: it mirrors the registry and logs dispatches.
	if cfg.DatabaseURL != "" {
		var err error
		pgStore, err = store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pgStore.Close()
		logger.Info("connected to PostgreSQL")

		if cfg.AutoMigrate {
			var migrations fs.FS = store.Migrations()
			if cfg.MigrationsDir != "" {
				migrations = os.DirFS(cfg.MigrationsDir)
			}
			if err := pgStore.RunMigrations(ctx, migrations); err != nil {
				return err
			}
			logger.Info("database migrations applied")
		}

		components["postgres"] = pgStore
		regOpts = append(regOpts, registry.WithMirror(pgStore))
		reports = append(reports, store.NewReportLog(pgStore, logger))
	}

	reg := registry.New(logger, regOpts...)

	if pgStore != nil {
		subs, seq, err := pgStore.LoadSubscriptions(ctx)
		if err != nil {
			return err
		}
		reg.Restore(subs, seq)
		restoredSubs = len(subs)
		logger.Info("subscriptions restored", "count", restoredSubs)
	}

	// Redis is optional: it backs endpoint health and the checkout flow.
	if cfg.RedisURL != "" {
		var err error
		redisStore, err = store.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisStore.Close()
		logger.Info("connected to Redis")

		tracker := engine.NewHealthTracker(redisStore.Client(), logger, engine.WithLookup(reg))
		attempts = append(attempts, tracker)
		healthSource = tracker
		components["redis"] = redisStore
	}

	hub := ws.NewHub(logger)
	go hub.Run(ctx)
	attempts = append(attempts, hub)
	reports = append(reports, hub)

	dispatcher := engine.NewDispatcher(reg, worker.NewDeliverer(cfg.DeliveryTimeout, logger), logger,
		engine.WithAttemptListeners(attempts...),
		engine.WithReportListeners(reports...),
	)

	pool := worker.NewPool(cfg.NumWorkers, cfg.QueueSize, dispatcher, cfg.DispatchTimeout, logger)
	// Queued dispatches are drained on shutdown, so workers must outlive the
	// signal context.
	pool.Start(context.WithoutCancel(ctx))
	defer pool.Stop()

	if err := seedRegistry(ctx, cfg.SeedFile, reg, restoredSubs, logger); err != nil {
		return err
	}

	var checkoutSvc *checkout.Service
	if redisStore != nil {
		orders := checkout.NewOrderStore(redisStore.Client(), cfg.OrderTTL)
		checkoutSvc = checkout.NewService(orders, pool, logger)
	}

	if cfg.NATSURL != "" {
		sub, err := natsbroker.Connect(cfg.NATSURL, cfg.ServiceName, pool, logger)
		if err != nil {
			return err
		}
		defer sub.Close()
		if err := sub.Subscribe(cfg.NATSSubjects...); err != nil {
			return err
		}
	}

	router := api.NewRouter(api.Deps{
		Registry:        reg,
		Dispatcher:      dispatcher,
		Queue:           pool,
		Hub:             hub,
		Health:          healthSource,
		Store:           pgStore,
		Checkout:        checkoutSvc,
		Components:      components,
		DispatchTimeout: cfg.DispatchTimeout,
		Logger:          logger,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.DispatchTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}

// seedRegistry registers the subscriptions listed in the seed file. It is
// skipped when subscriptions were restored from PostgreSQL, so restarts do
// not register them twice.
func seedRegistry(ctx context.Context, path string, reg *registry.Registry, restored int, logger *slog.Logger) error {
	if path == "" {
		return nil
	}
	if restored > 0 {
		logger.Info("skipping seed file, subscriptions already restored", "path", path)
		return nil
	}

	seed, err := config.LoadSeed(path)
	if err != nil {
		return err
	}
	for _, req := range seed.Subscriptions {
		sub, err := reg.Add(ctx, req)
		if err != nil {
			return err
		}
		logger.Info("seeded subscription", "id", sub.ID, "name", sub.Name, "endpoint_url", sub.EndpointURL)
	}
	return nil
}
