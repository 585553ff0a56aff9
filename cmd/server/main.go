// cmd/server/main.go

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"settlement-service/internal/app"
	"settlement-service/internal/config"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load .env
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		bootstrapFatal("failed to load config", err)
	}
	if err := cfg.Validate(); err != nil {
		bootstrapFatal("invalid config", err)
	}

	logger, err := app.NewLogger(cfg)
	if err != nil {
		bootstrapFatal("failed to build logger", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("settlement service stopped with error", zap.Error(err))
	}
	logger.Info("settlement service stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	services, err := app.New(ctx, cfg, app.Options{RunMigrations: true}, logger)
	if err != nil {
		return err
	}
	defer services.Close()

	sweepWorker := services.SweepWorker()
	reconcileWorker := services.ReconcileWorker()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return sweepWorker.Start(gctx) })
	g.Go(func() error { return reconcileWorker.Start(gctx) })

	// Metrics are optional; METRICS_ADDR empty disables the listener
	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsMux(),
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			logger.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		sweepWorker.Stop()
		reconcileWorker.Stop()

		if metricsServer == nil {
			return nil
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// bootstrapFatal reports failures that happen before the configured logger exists
func bootstrapFatal(msg string, err error) {
	logger, _ := zap.NewProduction()
	logger.Error(msg, zap.Error(err))
	_ = logger.Sync()
	os.Exit(1)
}
