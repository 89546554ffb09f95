package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/catalogsync/import-service/config"
	"github.com/catalogsync/import-service/internal/catalog"
	"github.com/catalogsync/import-service/internal/database"
	"github.com/catalogsync/import-service/internal/events"
	"github.com/catalogsync/import-service/internal/handlers"
	"github.com/catalogsync/import-service/internal/ingestion/zip"
	"github.com/catalogsync/import-service/internal/metrics"
	"github.com/catalogsync/import-service/internal/pipeline"
	"github.com/catalogsync/import-service/internal/storage"
	"github.com/catalogsync/import-service/internal/sweepers"
	"github.com/catalogsync/import-service/internal/telemetry"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := initLogger(cfg.Logging)
	log.Logger = *logger

	logger.Info().Msg("Starting catalog import service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize telemetry")
	}

	var pool *pgxpool.Pool
	if cfg.Database.URL != "" {
		pool, err = database.Connect(ctx, cfg.Database)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer pool.Close()
		logger.Info().Msg("Database connected")
	}

	store, err := openCatalog(ctx, cfg, pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open catalog")
	}
	defer store.Close()

	var archive storage.Storage
	if cfg.Storage.Enabled {
		archive, err = storage.New(ctx, cfg.Storage.Config)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize upload storage")
		}
		logger.Info().Str("type", string(cfg.Storage.Type)).Msg("Upload archive enabled")

		if cfg.Storage.Retention > 0 {
			sweeper := sweepers.NewRetentionSweeper(archive, logger, cfg.Storage.SweepInterval, cfg.Storage.Retention)
			go sweeper.Start(ctx)
			defer sweeper.Stop()
		}
	}

	publisher := events.New(cfg.Events)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close event publisher")
		}
	}()

	opts := pipeline.DefaultOptions()
	opts.Parsers = cfg.Import.ParserOptions()
	opts.MaxRows = cfg.Import.MaxRows
	opts.Concurrency = cfg.Import.Concurrency

	service := pipeline.New(pipeline.Deps{
		Catalog:  store,
		Storage:  archive,
		Events:   publisher,
		Expander: zip.NewExpander(archive, zip.DefaultExpandOptions()),
		Metrics:  metrics.NewRecorder(),
		Fetcher:  cfg.Scraper.NewFetcher(),
	}, opts)

	probes := make(map[string]handlers.Probe, 2)
	if pool != nil {
		probes["catalog_db"] = func(ctx context.Context) error { return database.Status(ctx, pool) }
	}
	if archive != nil {
		probes["archive"] = func(ctx context.Context) error {
			_, err := archive.Exists(ctx, "uploads/.health")
			return err
		}
	}
	api := handlers.New(service, handlers.Options{
		Parsers:        opts.Parsers,
		Export:         cfg.Import.Export,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		APIKey:         cfg.Server.APIKey,
		RateLimit:      cfg.Server.RateLimit,
		Probes:         probes,
	})
	go api.Limiter().Run(ctx, 5*time.Minute)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	setupMiddleware(router, logger)
	api.Register(router)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Failed to flush telemetry")
	}

	logger.Info().Msg("Server exited")
}

// openCatalog reuses the service pool when the catalog lives in the same database
func openCatalog(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (catalog.Store, error) {
	source := cfg.CatalogSource()
	if pool != nil && source == cfg.Database.URL {
		return catalog.NewPostgresStore(pool), nil
	}
	if source == "" {
		log.Warn().Msg("No catalog configured, every imported product will be new")
	}
	return catalog.Open(ctx, source)
}

func initLogger(cfg config.LoggingConfig) *zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var output io.Writer
	if cfg.Format == "json" {
		output = os.Stdout
	} else {
		output = zerolog.ConsoleWriter{Out: os.Stdout, NoColor: cfg.NoColor}
	}

	logger := zerolog.New(output).Level(level).With().Timestamp().Str("service", "catalog-import").Logger()
	return &logger
}

func setupMiddleware(router *gin.Engine, logger *zerolog.Logger) {
	router.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("ip", c.ClientIP()).
			Msg("HTTP request")
	})
}
