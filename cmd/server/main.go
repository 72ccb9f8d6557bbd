package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/partnerdesk/api/internal/config"
	"github.com/partnerdesk/api/internal/events"
	"github.com/partnerdesk/api/internal/feed"
	"github.com/partnerdesk/api/internal/inventory"
	"github.com/partnerdesk/api/internal/logger"
	"github.com/partnerdesk/api/internal/router"
	"github.com/partnerdesk/api/internal/service"
	"github.com/partnerdesk/api/internal/store/postgres"
	"github.com/partnerdesk/api/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const serviceName = "partnerdesk-api"

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)
	defer log.Sync()

	shutdownTelemetry := telemetry.Setup(serviceName, log)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatal("db ping", zap.Error(err))
	}

	st := postgres.NewStore(pool)

	// Change feed: Postgres NOTIFY -> hub -> per-view pipelines.
	hub := feed.NewHub()
	go hub.Run(ctx)
	go feed.NewListener(pool, hub, log).Run(ctx)

	var producer events.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = events.NewKafkaProducer(cfg.KafkaBrokers)
		log.Info("publishing status events to kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	} else {
		producer = events.NewLogProducer(log)
	}
	publisher := events.NewPublisher(producer, cfg.KafkaTopic, log)
	defer publisher.Close()

	applier := inventory.NewApplier(st, log)
	svc := service.NewLifecycleService(st, applier, publisher, log)

	r := router.New(cfg, st, svc, hub, log)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(r, serviceName),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", zap.Error(err))
	}
}
