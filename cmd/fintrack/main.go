package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/backend"
	"fintrack/internal/cache"
	"fintrack/internal/cli"
	apphttp "fintrack/internal/http"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()

	boot := cli.SetupLogger(applog.DefaultConfig().Level, applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(boot.Slog())
	logger := cli.SetupLogger(cfg.SlogLevel(), applog.ComponentApp)

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		cli.Fatal(logger.Slog(), "Invalid backend configuration", err)
	}
	factory := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Slog())
	res, err := factory.CreateBackend(ctx, backendCfg)
	if err != nil {
		cli.Fatal(logger.Slog(), "Failed to initialize backend", err, "backend", cfg.DataBackend)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", applog.FieldError, err)
		}
	}()

	dashboard := cache.NewLRUCache[any](cfg.CacheSize, cfg.CacheTTL)
	caches := cache.NewManager(logger.WithComponent(applog.ComponentCache).Slog())
	caches.Register(dashboard)

	financeOpts := []services.FinanceOption{
		services.WithDashboardCache(dashboard),
		services.WithFinanceLogger(logger),
	}
	if res.Events != nil {
		financeOpts = append(financeOpts, services.WithEvents(res.Events))
	}
	finance := services.NewFinanceService(res.Repository, financeOpts...)
	authSvc := services.NewAuthService(res.Repository, services.WithAuthLogger(logger))

	srv := apphttp.NewServer(apphttp.Options{
		Addr:               cli.Addr(cfg.Port),
		Finance:            finance,
		Auth:               authSvc,
		Storage:            res.Repository,
		Logger:             logger,
		DashboardCache:     dashboard,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting fintrack server",
			"addr", srv.Addr,
			"backend", cfg.DataBackend,
			"events", res.Events != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return authSvc.RunSessionJanitor(gctx, cfg.SessionCleanupInterval)
	})
	g.Go(func() error {
		return caches.Run(gctx, cfg.CacheTTL)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", applog.FieldError, err)
		return
	}
	logger.Info("Server stopped gracefully")
}
