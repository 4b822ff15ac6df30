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

	"github.com/joho/godotenv"

	"github.com/querygrade/querygrade/internal/api"
	"github.com/querygrade/querygrade/internal/archive"
	"github.com/querygrade/querygrade/internal/auth"
	"github.com/querygrade/querygrade/internal/catalog"
	catalogmemory "github.com/querygrade/querygrade/internal/catalog/memory"
	catalogpostgres "github.com/querygrade/querygrade/internal/catalog/postgres"
	"github.com/querygrade/querygrade/internal/config"
	"github.com/querygrade/querygrade/internal/grading"
	"github.com/querygrade/querygrade/internal/observability"
	"github.com/querygrade/querygrade/internal/predictor"
	"github.com/querygrade/querygrade/internal/query"
	duckdbengine "github.com/querygrade/querygrade/internal/query/duckdb"
	sqliteengine "github.com/querygrade/querygrade/internal/query/sqlite"
	"github.com/querygrade/querygrade/internal/storage"
	storagememory "github.com/querygrade/querygrade/internal/storage/memory"
	s3store "github.com/querygrade/querygrade/internal/storage/s3"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env file", slog.Any("error", err))
	}

	cfg, err := config.LoadFromEnv("querygrade-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	ctx := context.Background()

	catalogRepo, closeCatalog, err := openCatalog(ctx, cfg)
	if err != nil {
		logger.Error("failed to open catalog", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeCatalog()

	objectStore, objectStoreReady, err := openObjectStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}

	generator, err := newGenerator(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize predictor", slog.Any("error", err))
		os.Exit(1)
	}

	deps := api.Dependencies{
		Logger:      logger,
		Catalog:     catalogRepo,
		ObjectStore: objectStore,
		Grader:      grading.NewGrader(newOpener(cfg, logger), logger),
		Generator:   generator,
		Readiness: api.CombineReadinessChecks(
			catalogRepo.HealthCheck,
			api.CheckObjectStoreConfig(cfg),
			objectStoreReady,
		),
		DependencyTimeout: time.Second,
	}
	if cfg.Grading.ArchiveEnabled {
		deps.Archiver = archive.NewArchiver(objectStore, logger)
	}
	if cfg.Auth.Required {
		static, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, auth.Validators{
			static,
			auth.NewCatalogAPIKeyValidator(catalogRepo, logger),
		})
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("catalog", string(cfg.Catalog.Backend)),
			slog.String("store_engine", string(cfg.Store.Engine)),
			slog.String("predictor", string(cfg.Predictor.Kind)),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

func openCatalog(ctx context.Context, cfg config.Config) (catalog.Repository, func(), error) {
	switch cfg.Catalog.Backend {
	case config.CatalogMemory:
		return catalogmemory.NewRepository(), func() {}, nil
	case config.CatalogPostgres:
		db, err := catalogpostgres.Open(ctx, catalogpostgres.DBConfig{
			DSN:             cfg.Catalog.DSN,
			MaxOpenConns:    cfg.Catalog.MaxOpenConns,
			MaxIdleConns:    cfg.Catalog.MaxIdleConns,
			ConnMaxIdleTime: cfg.Catalog.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Catalog.ConnMaxLifetime,
		})
		if err != nil {
			return nil, nil, err
		}
		return catalogpostgres.NewRepository(db), func() { _ = db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported catalog backend %q", cfg.Catalog.Backend)
	}
}

func openObjectStore(ctx context.Context, cfg config.Config) (storage.ObjectStore, api.ReadinessCheck, error) {
	switch cfg.ObjectStore.Backend {
	case config.ObjectStoreMemory:
		return storagememory.New(), nil, nil
	case config.ObjectStoreS3:
		store, err := s3store.New(ctx, s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Ready, nil
	default:
		return nil, nil, fmt.Errorf("unsupported object store backend %q", cfg.ObjectStore.Backend)
	}
}

func newOpener(cfg config.Config, logger *slog.Logger) query.Opener {
	if cfg.Store.Engine == config.StoreEngineDuckDB {
		return duckdbengine.NewEngine(logger)
	}
	return sqliteengine.NewEngine(logger)
}

func newGenerator(cfg config.Config, logger *slog.Logger) (*grading.Generator, error) {
	var (
		p   predictor.Predictor
		err error
	)
	switch cfg.Predictor.Kind {
	case config.PredictorNone:
		return nil, nil
	case config.PredictorHTTP:
		p, err = predictor.NewHTTPPredictor(predictor.HTTPConfig{
			Endpoint: cfg.Predictor.Endpoint,
			APIKey:   cfg.Predictor.APIKey,
			Timeout:  cfg.Predictor.Timeout,
		})
	case config.PredictorOpenAI:
		p, err = predictor.NewOpenAIPredictor(predictor.OpenAIConfig{
			BaseURL:     cfg.Predictor.BaseURL,
			APIKey:      cfg.Predictor.APIKey,
			Model:       cfg.Predictor.Model,
			Temperature: cfg.Predictor.Temperature,
			Timeout:     cfg.Predictor.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported predictor kind %q", cfg.Predictor.Kind)
	}
	if err != nil {
		return nil, err
	}
	return grading.NewGenerator(p, logger), nil
}
