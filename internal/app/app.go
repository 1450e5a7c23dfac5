package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/staylens/staylens/internal/aggregate"
	"github.com/staylens/staylens/internal/config"
	"github.com/staylens/staylens/internal/ingest"
	"github.com/staylens/staylens/internal/model"
	"github.com/staylens/staylens/internal/normalize"
	"github.com/staylens/staylens/internal/pipeline"
	"github.com/staylens/staylens/internal/report"
	"github.com/staylens/staylens/internal/repository"
	repomodels "github.com/staylens/staylens/internal/repository/models"
	"github.com/staylens/staylens/internal/schema"
	"github.com/staylens/staylens/pkg/cache"
	dbbuilder "github.com/staylens/staylens/pkg/database"
)

const persistTimeout = 5 * time.Second

// App wires the whole analysis: ingestion, the pipeline, terminal reporting
// and optional run persistence.
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	loader   *ingest.Loader
	pipeline *pipeline.Pipeline
	dbPool   *sql.DB
	cache    *cache.Cache
	runs     *repository.RunRepository
}

func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	vocab := cfg.AmenityVocab
	if len(vocab) == 0 {
		vocab = schema.DefaultAmenityVocabulary
	}
	featureSchema := schema.WithAmenities(vocab)

	var vectorCache pipeline.VectorCache
	var cacheClient *cache.Cache
	if cfg.RedisAddr != "" {
		var err error
		cacheClient, err = cache.New(ctx, cache.WithAddress(cfg.RedisAddr))
		if err != nil {
			return nil, fmt.Errorf("cache init failed: %w", err)
		}
		vectorCache = cacheClient
		logger.Info("vector cache enabled", zap.String("addr", cfg.RedisAddr))
	}

	var dbPool *sql.DB
	var runs *repository.RunRepository
	if cfg.DBPath != "" {
		var err error
		dbPool, err = dbbuilder.New(
			dbbuilder.WithDriver(cfg.DBDriver),
			dbbuilder.WithDataSource(cfg.DBPath),
		)
		if err != nil {
			return nil, fmt.Errorf("database init failed: %w", err)
		}
		runs = repository.NewRunRepository(dbPool)
		if err := runs.Migrate(ctx); err != nil {
			dbPool.Close()
			return nil, err
		}
		logger.Info("run store initialized", zap.String("path", cfg.DBPath))
	}

	trainer := model.NewTrainer(featureSchema, model.Config{
		MaxDepth: cfg.TreeMaxDepth,
		MinRows:  cfg.MinRowsPerYear,
		Seed:     cfg.RandomSeed,
	}, logger)

	p := pipeline.New(
		featureSchema,
		normalize.New(featureSchema, logger),
		trainer,
		aggregate.New(featureSchema, logger),
		vectorCache,
		pipeline.Config{MaxDropFraction: cfg.MaxDropFraction},
		logger,
	)

	return &App{
		cfg:      cfg,
		logger:   logger,
		loader:   ingest.NewLoader(cfg.DataDir, logger),
		pipeline: p,
		dbPool:   dbPool,
		cache:    cacheClient,
		runs:     runs,
	}, nil
}

// Run executes one full analysis over the configured years.
func (a *App) Run(ctx context.Context) error {
	years, err := a.loader.LoadYears(a.cfg.Years)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	result, err := a.pipeline.Run(ctx, years)
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	report.Print(os.Stdout, result.Table, result.Counters)

	if a.runs != nil {
		if err := a.persistRun(ctx, result); err != nil {
			// Persistence is an audit convenience; the analysis already succeeded.
			a.logger.Error("failed to persist run", zap.Error(err))
		}
	}

	return nil
}

func (a *App) persistRun(ctx context.Context, result *pipeline.Result) error {
	dbCtx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	tableJSON, err := json.Marshal(result.Table.Snapshot())
	if err != nil {
		return fmt.Errorf("marshal table: %w", err)
	}
	countersJSON, err := json.Marshal(result.Counters)
	if err != nil {
		return fmt.Errorf("marshal counters: %w", err)
	}
	configJSON, err := json.Marshal(a.cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	yearLabels := make([]string, 0, len(a.cfg.Years))
	for _, y := range a.cfg.Years {
		yearLabels = append(yearLabels, strconv.Itoa(y))
	}

	run := repomodels.Run{
		ID:           uuid.NewString(),
		CreatedAt:    time.Now().UTC(),
		Years:        strings.Join(yearLabels, ","),
		ConfigJSON:   string(configJSON),
		TableJSON:    string(tableJSON),
		CountersJSON: string(countersJSON),
	}
	if err := a.runs.InsertRun(dbCtx, run); err != nil {
		return err
	}

	a.logger.Info("run persisted", zap.String("run_id", run.ID))
	return nil
}

// Close releases the optional cache and database handles.
func (a *App) Close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("cache shutdown error", zap.Error(err))
		}
	}
	if a.dbPool != nil {
		if err := a.dbPool.Close(); err != nil {
			a.logger.Error("database shutdown error", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
