package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"smartspend/internal/backend"
	"smartspend/internal/cache"
	"smartspend/internal/cli"
	apphttp "smartspend/internal/http"
	"smartspend/internal/insights"
	applog "smartspend/internal/log"
	"smartspend/internal/services"
)

func main() {
	cli.LoadEnvFile()

	bootstrap := cli.SetupLogger(applog.DefaultConfig().Level, applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(bootstrap)
	logger := cli.SetupLogger(cfg.Level(), applog.ComponentApp)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}

	res, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Logger).
		CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	// a nil *amqp.Client must not become a non-nil Publisher
	var publisher services.Publisher
	if res.AMQP != nil {
		publisher = res.AMQP
	}

	svc := services.NewAnalysisService(res.Repository, publisher, insights.NewProvider(cfg.CurrencySymbol),
		services.AnalysisServiceConfig{CurrencySymbol: cfg.CurrencySymbol})

	opts := apphttp.Options{
		MaxUploadBytes: cfg.MaxUploadBytes(),
		Logger:         logger,
		Caches:         []cache.Cleaner{svc.Cache()},
	}
	if p, ok := res.Repository.(apphttp.Pinger); ok {
		opts.Ready = p
	}
	srv := apphttp.NewServer(":"+cfg.Port, svc, opts)
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", applog.FieldError, err)
		}
	})

	logger.Info("Starting smartspend server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"amqp", res.AMQP != nil,
		"max_upload_mb", cfg.MaxUploadMB)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
