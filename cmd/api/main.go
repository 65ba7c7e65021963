package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/patientflow/internal/app"
	"github.com/jwalitptl/patientflow/internal/config"
	"github.com/jwalitptl/patientflow/internal/email"
	"github.com/jwalitptl/patientflow/internal/handler/health"
	"github.com/jwalitptl/patientflow/internal/middleware"
	"github.com/jwalitptl/patientflow/internal/repository/memory"
	"github.com/jwalitptl/patientflow/internal/repository/postgres"
	"github.com/jwalitptl/patientflow/internal/router"
	"github.com/jwalitptl/patientflow/pkg/ai"
	"github.com/jwalitptl/patientflow/pkg/auth"
	"github.com/jwalitptl/patientflow/pkg/logger"
	"github.com/jwalitptl/patientflow/pkg/messaging/redis"
	"github.com/jwalitptl/patientflow/pkg/metrics"
	"github.com/jwalitptl/patientflow/pkg/security"
	"github.com/jwalitptl/patientflow/pkg/tracing"
	"github.com/jwalitptl/patientflow/pkg/worker"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "patientflow-api",
		Short: "Hospital patient flow API server",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the config file")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(migrateCmd(&configPath))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	var relay, migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			return runServer(cfg, relay, migrate)
		},
	}
	cmd.Flags().BoolVar(&relay, "relay", false, "also relay outbox events to Redis from this process")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			db, err := postgres.NewDB(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()
			return runMigrations(ctx, db)
		},
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	return cfg, nil
}

func runServer(cfg *config.Config, relay, migrate bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRatio: cfg.Tracing.SampleRatio,
		Insecure:    cfg.Tracing.Insecure,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Error().Err(err).Msg("failed to flush traces")
		}
	}()

	m := metrics.NewMetrics(prometheus.DefaultRegisterer, "patientflow")
	checks := map[string]health.Checker{}

	var store app.Store
	switch cfg.Database.Driver {
	case "memory":
		log.Warn().Msg("using the in-memory store; data is lost on restart")
		store = memory.NewStore()
	default:
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		if migrate {
			if err := runMigrations(ctx, db); err != nil {
				return err
			}
		}
		checks["database"] = db
		store = postgres.NewStore(db)
	}

	deps := app.Deps{
		Store:   store,
		Metrics: m,
		Hasher:  security.NewBcryptHasher(security.DefaultCost),
		Tokens: auth.NewJWTService(auth.Config{
			Secret: cfg.JWT.Secret,
			Issuer: cfg.JWT.Issuer,
			Expiry: cfg.JWT.Expiry(),
		}),
		Mailer: email.NewNoopService(),
	}
	if cfg.Mail.Enabled {
		deps.Mailer = email.NewSMTPService(email.Config{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
			LoginURL: cfg.Mail.LoginURL,
		})
	}
	if cfg.AI.Enabled() {
		deps.AI = ai.NewOpenAIClient(ai.Config{
			APIKey:             cfg.AI.APIKey,
			BaseURL:            cfg.AI.BaseURL,
			TranscriptionModel: cfg.AI.TranscriptionModel,
			ExtractionModel:    cfg.AI.ExtractionModel,
			Timeout:            cfg.AI.Timeout,
		}, m)
	} else {
		log.Info().Msg("voice AI disabled: no API key configured")
	}

	services := app.NewServices(deps)

	if relay {
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
		checks["redis"] = health.CheckerFunc(broker.Ping)

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
		go processor.Start(ctx)
	}

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	routerConfig := router.Config{
		CORS: middleware.CORSConfig{
			AllowOrigins: cfg.CORS.AllowedOrigins,
			AllowMethods: cfg.CORS.AllowedMethods,
			AllowHeaders: cfg.CORS.AllowedHeaders,
		},
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		RequestTimeout: cfg.Server.RequestTimeout,
	}
	if cfg.Tracing.Enabled {
		routerConfig.ServiceName = cfg.Tracing.ServiceName
	}
	if cfg.RateLimit.Enabled {
		routerConfig.RateLimit = &middleware.RateLimiterConfig{
			Rate:  rate.Limit(cfg.RateLimit.RequestsPerSecond),
			Burst: cfg.RateLimit.Burst,
		}
	}
	r := router.NewRouter(routerConfig, services.Auth, m, services.Handlers(checks, prometheus.DefaultGatherer))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Str("driver", cfg.Database.Driver).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("server exited properly")
	return nil
}

func runMigrations(ctx context.Context, db *sqlx.DB) error {
	applied, err := postgres.Migrate(ctx, db)
	if err != nil {
		return err
	}
	log.Info().Int("applied", applied).Msg("migrations complete")
	return nil
}
