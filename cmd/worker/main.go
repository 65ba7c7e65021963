package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/patientflow/internal/config"
	"github.com/jwalitptl/patientflow/internal/handler/health"
	promHandler "github.com/jwalitptl/patientflow/internal/handler/prometheus"
	"github.com/jwalitptl/patientflow/internal/middleware"
	"github.com/jwalitptl/patientflow/internal/repository/postgres"
	auditWorker "github.com/jwalitptl/patientflow/internal/worker"
	"github.com/jwalitptl/patientflow/pkg/logger"
	"github.com/jwalitptl/patientflow/pkg/messaging/redis"
	"github.com/jwalitptl/patientflow/pkg/metrics"
	"github.com/jwalitptl/patientflow/pkg/worker"
)

func main() {
	var configPath string

	cmd := &cobra.Command{
		Use:   "patientflow-worker",
		Short: "Relay outbox events to Redis and prune old audit logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
			return run(cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to the config file")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	if cfg.Database.Driver != "postgres" {
		return errors.New("the worker needs the postgres driver; the in-memory store is per process")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.NewMetrics(prometheus.DefaultRegisterer, "patientflow")

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	store := postgres.NewStore(db)

	broker, err := redis.NewRedisBroker(ctx, redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, m)
	if err != nil {
		return err
	}
	defer broker.Close()

	processor, err := worker.NewOutboxProcessor(store.Outbox(), broker, worker.OutboxProcessorConfig{
		Channel:       cfg.Redis.Channel,
		BatchSize:     cfg.Outbox.BatchSize,
		PollInterval:  cfg.Outbox.PollInterval,
		RetryAttempts: cfg.Outbox.RetryAttempts,
		RetryDelay:    cfg.Outbox.RetryDelay,
	}, m)
	if err != nil {
		return err
	}
	cleanup := auditWorker.NewAuditCleanupWorker(
		store.Audit(),
		store.Outbox(),
		cfg.Audit.RetentionDays,
		cfg.Outbox.Retention,
		cfg.Audit.CleanupInterval,
	)

	srv := healthServer(cfg.Worker.HealthPort, map[string]health.Checker{
		"database": db,
		"redis":    health.CheckerFunc(broker.Ping),
	})
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health check server failed")
			stop()
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		processor.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		cleanup.Start(ctx)
	}()

	log.Info().Int("health_port", cfg.Worker.HealthPort).Msg("worker started")
	<-ctx.Done()
	log.Info().Msg("shutting down...")

	wg.Wait()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func healthServer(port int, checks map[string]health.Checker) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(middleware.Recovery())

	health.NewHandler(checks).RegisterRoutes(&engine.RouterGroup)
	promHandler.New(prometheus.DefaultGatherer).RegisterRoutes(&engine.RouterGroup)

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
