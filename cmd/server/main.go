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

	"github.com/jason-s-yu/neonmarble/internal/auth"
	"github.com/jason-s-yu/neonmarble/internal/cache"
	"github.com/jason-s-yu/neonmarble/internal/config"
	"github.com/jason-s-yu/neonmarble/internal/handlers"
	"github.com/jason-s-yu/neonmarble/internal/relay"
	"github.com/jason-s-yu/neonmarble/internal/telemetry"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	if err := config.Load("."); err != nil {
		logrus.Fatalf("config: %v", err)
	}
	cfg := config.Get()
	logger := config.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	seats, err := auth.NewSeatIssuer(cfg.Seat.TokenTTL)
	if err != nil {
		logger.Fatalf("seat tokens: %v", err)
	}
	rooms := relay.NewRoomStore()
	svc := relay.NewService(logger, rooms, seats)

	if cfg.Redis.Enabled {
		rdb, err := cache.ConnectRedis(ctx, cache.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		if err != nil {
			logger.Warnf("redis unavailable, keeping snapshots in memory: %v", err)
		} else {
			defer rdb.Close()
			svc.Snapshots = cache.NewRedisSnapshots(rdb, cfg.Redis.SnapshotTTL)
			logger.Infof("snapshots stored in redis at %s", cfg.Redis.Addr)
		}
	}

	tcfg := telemetry.Config{
		Enabled:     cfg.Metrics.Enabled,
		ServiceName: "marble-relay",
		Interval:    cfg.Metrics.Interval,
		Endpoint:    cfg.Metrics.Endpoint,
		Insecure:    cfg.Metrics.Insecure,
	}
	if cfg.Metrics.Stdout {
		tcfg.Writer = os.Stdout
	}
	tel, err := telemetry.New(ctx, tcfg)
	if err != nil {
		logger.Fatalf("metrics: %v", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			logger.Warnf("%v", err)
		}
	}()
	if tel.Enabled() {
		m, err := relay.NewMetrics(tel.MeterProvider(), rooms)
		if err != nil {
			logger.Fatalf("metrics: %v", err)
		}
		svc.Metrics = m
		logger.Info("metrics export enabled")
	}

	ws := handlers.RelayWSHandler(ctx, logger, svc, handlers.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		OutboxSize:     cfg.Server.OutboxSize,
		PingInterval:   cfg.Server.PingInterval,
		WriteTimeout:   cfg.Server.WriteTimeout,
	})
	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           handlers.NewMux(logger, rooms, ws),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Running on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server exited: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("shutdown: %v", err)
	}
}
