// Package app builds the scraper's long-lived services from configuration and
// runs them until shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-scraper/internal/api"
	"github.com/JakeFAU/article-scraper/internal/clock/system"
	"github.com/JakeFAU/article-scraper/internal/config"
	"github.com/JakeFAU/article-scraper/internal/extractor"
	collyfetcher "github.com/JakeFAU/article-scraper/internal/fetcher/colly"
	"github.com/JakeFAU/article-scraper/internal/filter"
	"github.com/JakeFAU/article-scraper/internal/hash/sha256"
	"github.com/JakeFAU/article-scraper/internal/id/uuid"
	"github.com/JakeFAU/article-scraper/internal/logging"
	"github.com/JakeFAU/article-scraper/internal/metrics"
	"github.com/JakeFAU/article-scraper/internal/orchestrator"
	"github.com/JakeFAU/article-scraper/internal/policy/ratelimit"
	gcppublisher "github.com/JakeFAU/article-scraper/internal/publisher/pubsub"
	"github.com/JakeFAU/article-scraper/internal/relevance"
	"github.com/JakeFAU/article-scraper/internal/runlog"
	"github.com/JakeFAU/article-scraper/internal/scraper"
	gcsstorage "github.com/JakeFAU/article-scraper/internal/storage/gcs"
	localstorage "github.com/JakeFAU/article-scraper/internal/storage/local"
	memorystorage "github.com/JakeFAU/article-scraper/internal/storage/memory"
	mongostore "github.com/JakeFAU/article-scraper/internal/storage/mongo"
	pgstore "github.com/JakeFAU/article-scraper/internal/storage/postgres"
	"github.com/JakeFAU/article-scraper/internal/telemetry"
)

const readHeaderTimeout = 5 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	records      scraper.RecordStore
	runs         scraper.RunLogStore
	orchestrator *orchestrator.Orchestrator
	apiServer    *api.Server

	gcsClient      *storage.Client
	publisher      *gcppublisher.Publisher
	tracerShutdown func(context.Context) error
}

// Build creates the application's dependencies. A nil logger is built from
// cfg.Logging.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Config{
			Development: cfg.Logging.Development,
			Level:       cfg.Logging.Level,
		})
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		zap.ReplaceGlobals(logger)
	}
	a := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("store", cfg.Store.Driver),
		zap.String("archive", cfg.Archive.Driver),
	)
	metrics.Init()

	if cfg.Telemetry.TracingEnabled {
		tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
			ServiceName: cfg.Telemetry.ServiceName,
			ProjectID:   cfg.Telemetry.ProjectID,
		})
		if err != nil {
			return nil, fmt.Errorf("tracer init failed: %w", err)
		}
		a.tracerShutdown = tp.Shutdown
	}

	if err := a.setupStores(ctx); err != nil {
		a.closeInfrastructure(ctx)
		return nil, err
	}

	opts, err := a.setupSideEffects(ctx)
	if err != nil {
		a.closeInfrastructure(ctx)
		return nil, err
	}

	extract, err := extractor.New(
		collyfetcher.New(collyfetcher.Config{
			UserAgent:     cfg.Extractor.UserAgent,
			RespectRobots: cfg.Extractor.RespectRobots,
			Timeout:       cfg.ExtractorTimeout(),
			MaxBodySize:   cfg.Extractor.MaxBodyBytes,
		}, logger.Named("fetcher")),
		extractor.Config{Format: cfg.Extractor.ContentFormat},
		logger,
		extractor.WithLimiter(ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.Extractor.HostRPS,
			DefaultBurst: cfg.Extractor.HostBurst,
		})),
	)
	if err != nil {
		a.closeInfrastructure(ctx)
		return nil, fmt.Errorf("extractor init failed: %w", err)
	}

	scorer, err := relevance.New(cfg.ScorerConfig())
	if err != nil {
		a.closeInfrastructure(ctx)
		return nil, fmt.Errorf("relevance scorer init failed: %w", err)
	}

	clock := system.New()
	a.orchestrator = orchestrator.New(
		a.records,
		filter.New(cfg.FilterConfig()),
		scorer,
		extract,
		runlog.New(a.runs, clock, uuid.NewUUIDGenerator(), logger),
		clock,
		orchestrator.Config{Concurrency: cfg.Orchestrator.Concurrency},
		logger,
		opts...,
	)
	a.apiServer = api.NewServer(a.orchestrator, a.runs, a.records, cfg, logger)
	return a, nil
}

func (a *App) setupStores(ctx context.Context) error {
	switch a.cfg.Store.Driver {
	case "postgres":
		pool, err := pgstore.Open(ctx, pgstore.Config{
			DSN:             a.cfg.Postgres.DSN,
			MaxConns:        a.cfg.Postgres.MaxConns,
			MinConns:        a.cfg.Postgres.MinConns,
			MaxConnLifetime: time.Duration(a.cfg.Postgres.MaxConnLifetimeSeconds) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("postgres init failed: %w", err)
		}
		if a.cfg.Postgres.EnsureSchema {
			if err := pgstore.EnsureSchema(ctx, pool, a.cfg.Postgres.Table, a.cfg.Postgres.RunTable); err != nil {
				pool.Close()
				return fmt.Errorf("postgres schema failed: %w", err)
			}
		}
		records, err := pgstore.NewRecordStoreWithPool(pool, a.cfg.Postgres.Table)
		if err != nil {
			pool.Close()
			return fmt.Errorf("postgres record store init failed: %w", err)
		}
		runs, err := pgstore.NewRunStoreWithPool(pool, a.cfg.Postgres.RunTable)
		if err != nil {
			pool.Close()
			return fmt.Errorf("postgres run store init failed: %w", err)
		}
		a.records, a.runs = records, runs
		a.logger.Info("using postgres record store", zap.String("table", a.cfg.Postgres.Table))
	case "mongo":
		client, err := mongostore.Connect(ctx, mongostore.Config{
			URI:     a.cfg.Mongo.URI,
			Timeout: time.Duration(a.cfg.Mongo.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("mongo init failed: %w", err)
		}
		db := client.Database(a.cfg.Mongo.Database)
		candidates := db.Collection(a.cfg.Mongo.Collection)
		runColl := db.Collection(a.cfg.Mongo.RunCollection)
		if err := mongostore.EnsureIndexes(ctx, candidates, runColl); err != nil {
			_ = client.Disconnect(ctx)
			return fmt.Errorf("mongo indexes failed: %w", err)
		}
		a.records = mongostore.NewRecordStore(client, candidates)
		a.runs = mongostore.NewRunStore(runColl)
		a.logger.Info("using mongo record store",
			zap.String("database", a.cfg.Mongo.Database),
			zap.String("collection", a.cfg.Mongo.Collection),
		)
	case "memory":
		a.records = memorystorage.NewRecordStore()
		a.runs = memorystorage.NewRunStore()
		a.logger.Warn("using in-memory record store, records are lost on exit")
	default:
		return fmt.Errorf("unknown store driver %q", a.cfg.Store.Driver)
	}
	return nil
}

func (a *App) setupSideEffects(ctx context.Context) ([]orchestrator.Option, error) {
	var opts []orchestrator.Option

	var blobs scraper.BlobStore
	switch a.cfg.Archive.Driver {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcsClient = client
		blobs, err = gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Archive.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("archiving pages to GCS", zap.String("bucket", a.cfg.Archive.GCSBucket))
	case "local":
		var err error
		blobs, err = localstorage.New(localstorage.Config{BaseDir: a.cfg.Archive.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("archiving pages locally", zap.String("path", a.cfg.Archive.LocalDir))
	case "memory":
		blobs = memorystorage.NewBlobStore()
	case "none", "":
	default:
		return nil, fmt.Errorf("unknown archive driver %q", a.cfg.Archive.Driver)
	}
	if blobs != nil {
		opts = append(opts, orchestrator.WithArchive(blobs, sha256.New(), a.cfg.Archive.Prefix))
	}

	if a.cfg.PubSub.Enabled {
		pub, err := gcppublisher.New(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
		if err != nil {
			return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		a.publisher = pub
		opts = append(opts, orchestrator.WithPublisher(pub))
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.PubSub.ProjectID),
			zap.String("topic", a.cfg.PubSub.TopicName),
		)
	}
	return opts, nil
}

// Handler exposes the HTTP API.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Records returns the configured record store.
func (a *App) Records() scraper.RecordStore {
	return a.records
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// RunPass executes one pass in the foreground.
func (a *App) RunPass(ctx context.Context) (orchestrator.Summary, error) {
	summary, err := a.orchestrator.Run(ctx)
	if err != nil {
		return summary, fmt.Errorf("scraping pass: %w", err)
	}
	return summary, nil
}

// Run serves HTTP until ctx is canceled or SIGINT/SIGTERM arrives, then waits
// for any in-flight pass before closing the stores.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if err := a.orchestrator.Wait(shutdownCtx); err != nil {
		a.logger.Warn("in-flight pass did not finish before shutdown", zap.Error(err))
	}

	closeErr := a.Close(shutdownCtx)
	select {
	case err := <-serveErr:
		return errors.Join(fmt.Errorf("http server: %w", err), closeErr)
	default:
		return closeErr
	}
}

// Close releases every service Build opened.
func (a *App) Close(ctx context.Context) error {
	a.closeInfrastructure(ctx)
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("pubsub publisher close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.records != nil {
		if err := a.records.Close(ctx); err != nil {
			a.logger.Warn("record store close failed", zap.Error(err))
		}
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
