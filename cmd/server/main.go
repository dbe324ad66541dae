package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"flowsentry/internal/alerting"
	"flowsentry/internal/analyzer"
	"flowsentry/internal/api"
	"flowsentry/internal/config"
	"flowsentry/internal/logging"
	"flowsentry/internal/metrics"
	"flowsentry/internal/repository"
	"flowsentry/internal/scheduler"
	"flowsentry/internal/services"
	"flowsentry/internal/source"
	"flowsentry/internal/tls"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "flowsentry",
		Short: "Workflow health monitoring and alerting service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logging.NewLogger()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("configuration loading failed: %w", err)
	}
	logger.Info("configuration loaded",
		"store", cfg.Store,
		"addr", cfg.Server.Addr,
		"config_file", viper.ConfigFileUsed(),
	)

	store, cleanup, err := initStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("store initialization failed: %w", err)
	}
	defer cleanup()

	// Analysis and alerting pipeline.
	engine := analyzer.NewEngine(analyzer.Options{SeverityPoints: cfg.SeverityPoints()})
	metricsEngine := metrics.New(store, metrics.NewLocalCache(), metrics.Options{
		TrendMarginPct: cfg.Metrics.TrendMarginPct,
		CacheTTL:       cfg.Metrics.CacheTTL,
	})
	dispatcher := alerting.NewDispatcher(
		alerting.NewEmailNotifier(alerting.SMTPConfig{
			Host: cfg.Alerting.SMTP.Host,
			Port: cfg.Alerting.SMTP.Port,
			From: cfg.Alerting.SMTP.From,
			User: cfg.Alerting.SMTP.User,
			Pass: cfg.Alerting.SMTP.Pass,
		}),
		alerting.NewWebhookNotifier(time.Duration(cfg.Alerting.WebhookTimeoutSeconds)*time.Second),
		alerting.DispatcherOptions{
			Cooldown:   cfg.Alerting.DedupCooldown,
			MaxBackoff: cfg.Alerting.MaxBackoff,
		},
		logger,
	)

	workflowSource := source.NewHTTPSource(source.HTTPSourceConfig{
		BaseURL:       cfg.WorkflowSource.BaseURL,
		Timeout:       time.Duration(cfg.WorkflowSource.TimeoutSeconds) * time.Second,
		RetryCount:    cfg.WorkflowSource.RetryCount,
		RetryWaitTime: cfg.WorkflowSource.RetryWaitTime,
	})

	sched := scheduler.New(store, workflowSource, engine, metricsEngine, dispatcher, logger,
		scheduler.Options{
			TickInterval:    cfg.Scheduler.TickInterval,
			WorkflowTimeout: time.Duration(cfg.Scheduler.WorkflowTimeoutSeconds) * time.Second,
		})

	svc := services.NewMonitorService(store, sched, metricsEngine, dispatcher, logger)
	logger.Info("service layer initialized")

	// Run the recurring scan loop until shutdown.
	schedCtx, stopScheduler := context.WithCancel(ctx)
	defer stopScheduler()
	go sched.Start(schedCtx)

	// Create Echo server.
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	api.NewServer(svc, logger).RegisterRoutes(e)
	logger.Info("REST API handlers mounted")

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      e,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server starting", "address", cfg.Server.Addr, "tls", cfg.TLS.Enable)
		if cfg.TLS.Enable {
			if err := ensureCert(cfg, logger); err != nil {
				serverErrors <- err
				return
			}
			serverErrors <- server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			serverErrors <- server.ListenAndServe()
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
		stopScheduler()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
			if err := server.Close(); err != nil {
				logger.Error("server close error", "error", err)
			}
		}
		logger.Info("server stopped gracefully")
	}
	return nil
}

// initStore builds the configured persistence backend. The memory store
// supports running without a database, for local development.
func initStore(ctx context.Context, cfg *config.Config, logger *logging.Logger) (repository.Store, func(), error) {
	if cfg.Store == "memory" {
		logger.Warn("using in-memory store; data will not survive restarts")
		return repository.NewMemoryStore(), func() {}, nil
	}

	pool, err := initDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	store := repository.NewPostgresStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ensure database schema: %w", err)
	}
	logger.Info("database connected")
	return store, pool.Close, nil
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	logger.Debug("initializing database connection")

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// ensureCert generates a self-signed certificate when TLS is enabled but no
// certificate exists yet.
func ensureCert(cfg *config.Config, logger *logging.Logger) error {
	if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
		return fmt.Errorf("tls enabled but cert/key file not provided")
	}
	if _, err := os.Stat(cfg.TLS.CertFile); os.IsNotExist(err) {
		if len(cfg.TLS.Hostnames) == 0 {
			return fmt.Errorf("tls certificate missing and no hostnames configured for generation")
		}
		logger.Info("generating self-signed certificate", "hosts", cfg.TLS.Hostnames)
		opts := tls.CertOptions{
			Organization: cfg.TLS.Organization,
			ValidFor:     cfg.TLS.ValidFor,
		}
		if err := tls.GenerateSelfSignedCert(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames, opts); err != nil {
			return fmt.Errorf("failed to generate self-signed cert: %w", err)
		}
	}
	return nil
}
