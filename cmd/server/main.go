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
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-quant/internal/api"
	"github.com/irfndi/celebrum-quant/internal/api/handlers"
	"github.com/irfndi/celebrum-quant/internal/cache"
	"github.com/irfndi/celebrum-quant/internal/config"
	"github.com/irfndi/celebrum-quant/internal/database"
	"github.com/irfndi/celebrum-quant/internal/logging"
	"github.com/irfndi/celebrum-quant/internal/metrics"
	"github.com/irfndi/celebrum-quant/internal/middleware"
	"github.com/irfndi/celebrum-quant/internal/services"
	"github.com/irfndi/celebrum-quant/internal/telemetry"
	"github.com/irfndi/celebrum-quant/internal/websocket"
)

const serviceName = "celebrum-quant"

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.Environment)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled && cfg.Telemetry.LogExport {
		hook, err := logging.NewOTLPHook(ctx, logging.OTLPConfig{
			Endpoint:       cfg.Telemetry.OTLPEndpoint,
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: version,
			Environment:    cfg.Environment,
		})
		if err != nil {
			logger.WithError(err).Warn("OTLP log export disabled")
		} else {
			logger.AddHook(hook)
			defer shutdownWithTimeout(logger, "log exporter", hook.Shutdown)
		}
	}

	tp, err := telemetry.InitTelemetry(ctx, telemetry.TelemetryConfig{
		Enabled:      cfg.Telemetry.Enabled,
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		ServiceName:  cfg.Telemetry.ServiceName,
		Environment:  cfg.Environment,
		SampleRate:   cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer shutdownWithTimeout(logger, "tracer provider", tp.Shutdown)

	db, err := database.NewPostgresConnection(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	repo := database.NewSeriesRepositoryWithQuerier(database.NewTracedQuerier(db.Pool, telemetry.Tracer()))
	if err := repo.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to prepare schema: %w", err)
	}

	checks := map[string]handlers.HealthChecker{"database": db, "redis": nil}
	var (
		store         services.ForecastStore
		forecastCache *cache.ForecastCache
	)
	redis, err := database.NewRedisConnection(cfg.Redis)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, serving forecasts from memory")
	} else {
		defer redis.Close()
		checks["redis"] = redis
		forecastCache = cache.NewForecastCache(redis.Client, cfg.Quant.CacheTTL, logger)
		store = forecastCache
	}

	recorder := metrics.New(prometheus.DefaultRegisterer)
	hub := websocket.NewHub(cfg.Server.AllowedOrigins, logger)
	defer hub.Close()

	forecastService, err := services.NewForecastService(cfg.Quant, repo, store, hub, recorder, logger)
	if err != nil {
		return err
	}

	scheduler := services.NewScheduler(forecastService, hub, cfg.Quant.Target, services.NewSchedulerConfig(cfg.Quant), logger)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Tracing(cfg.Telemetry.ServiceName))
	router.Use(middleware.RequestLogger(logging.WithComponent(logger, "http")))

	health := handlers.NewHealthHandler(version, checks).
		WithStatus("forecast", func() interface{} { return forecastService.Status() }).
		WithStatus("scheduler", func() interface{} { return scheduler.Status() })
	if forecastCache != nil {
		health.WithStatus("cache", func() interface{} { return forecastCache.Status() })
	}

	api.SetupRoutes(router, cfg.Server, api.Dependencies{
		Health:   health,
		Forecast: handlers.NewForecastHandler(forecastService, scheduler, logger),
		Stream:   hub,
		Gatherer: prometheus.DefaultGatherer,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logging.LogStartup(logger, serviceName, version, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
		logging.LogShutdown(logger, serviceName, "signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited gracefully")
	return nil
}

func shutdownWithTimeout(logger logrus.FieldLogger, name string, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.WithError(err).WithField("component", name).Warn("Shutdown failed")
	}
}
