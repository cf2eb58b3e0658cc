package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"contactlink/internal/contact/handler"
	contactmetrics "contactlink/internal/contact/metrics"
	"contactlink/internal/contact/service"
	"contactlink/internal/platform/config"
	"contactlink/internal/platform/httpserver"
	"contactlink/internal/platform/logger"
	"contactlink/internal/platform/metrics"
	httptransport "contactlink/internal/transport/http"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal/contact.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "contactlink: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log := logger.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := buildDeps(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.close(log)

	svc := service.New(deps.store, deps.tx,
		service.WithLogger(log),
		service.WithMetrics(contactmetrics.New()),
		service.WithEventPublisher(deps.publisher),
	)
	contacts := handler.New(svc, log, metrics.New(), handler.WithRequestTimeout(cfg.Server.RequestTimeout))
	router := httptransport.NewRouter(httptransport.RouterConfig{
		Logger:   log,
		Contacts: contacts,
		Gatherer: prometheus.DefaultGatherer,
		Checks:   deps.checks,
	})
	srv := httpserver.New(cfg.Server, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting contactlink",
			slog.String("addr", cfg.Server.Addr),
			slog.String("store", cfg.Store.Backend),
			slog.String("lock", cfg.Lock.Mode),
			slog.Bool("kafka", cfg.Kafka.Enabled()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	return g.Wait()
}
