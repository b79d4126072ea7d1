// cmd/api/main.go
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
	"time"

	"github.com/robfig/cron/v3"

	"librarian/internal/config"
	"librarian/internal/events"
	"librarian/internal/lock"
	"librarian/internal/logging"
	"librarian/internal/redis"
	"librarian/internal/server"
	"librarian/internal/store"
	"librarian/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		slog.Error("api exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateServer(); err != nil {
		return err
	}

	logger := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			logger.Warn("telemetry shutdown", slog.Any("error", err))
		}
	}()

	st, err := store.Open(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	var opts server.Options
	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
		opts.Locker = lock.NewRedis(rdb, cfg.LockTTL, logger)
		opts.Publisher = events.NewRedisPublisher(rdb, events.DefaultStream)
		logger.Info("using redis for book locks and events", slog.String("addr", cfg.Redis.Addr))
	}

	svcs, err := server.NewServices(st, cfg, opts, logger)
	if err != nil {
		return err
	}
	if ok, err := svcs.Credential.HasUsers(ctx); err == nil && !ok {
		logger.Warn("no users provisioned, create one with: librarian user add")
	}

	if cfg.AuditSchedule != "" {
		scheduler := cron.New()
		if _, err := scheduler.AddFunc(cfg.AuditSchedule, func() { svcs.Auditor.Run(ctx) }); err != nil {
			return fmt.Errorf("schedule audit %q: %w", cfg.AuditSchedule, err)
		}
		scheduler.Start()
		defer func() { <-scheduler.Stop().Done() }()
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           server.NewRouter(svcs, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening", slog.String("addr", cfg.HTTP.Addr), slog.String("driver", st.Driver()))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
