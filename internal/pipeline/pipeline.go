package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/staylens/staylens/internal/aggregate"
	"github.com/staylens/staylens/internal/dataset"
	"github.com/staylens/staylens/internal/model"
	"github.com/staylens/staylens/internal/normalize"
	"github.com/staylens/staylens/internal/schema"
)

const (
	// DefaultMaxDropFraction escalates a year to InsufficientData when more
	// than this fraction of its ingested rows fail normalization.
	DefaultMaxDropFraction = 0.5

	defaultCacheTTL = 24 * time.Hour

	cacheKeyPrefix = "staylens:vector:"
)

// Trainer fits one importance model per yearly dataset.
type Trainer interface {
	Train(ds *dataset.Dataset) (model.ImportanceVector, error)
	Config() model.Config
}

// VectorCache memoizes trained vectors across idempotent runs. Implemented by
// pkg/cache; nil disables memoization.
type VectorCache interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
}

// YearInput is one year's raw records as handed over by ingestion.
type YearInput struct {
	Year    int
	Records []normalize.RawRecord
}

// Counters extends the normalizer's data-quality tally with the row count
// that actually reached training.
type Counters struct {
	normalize.Counters
	RowsTrained int
}

// Result is the pipeline's output: the cross-year table plus per-year
// data-quality counters keyed by year.
type Result struct {
	Table    *aggregate.Table
	Counters map[int]Counters
}

// Config holds the orchestration parameters for one run.
type Config struct {
	MaxDropFraction float64
	CacheTTL        time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxDropFraction <= 0 {
		c.MaxDropFraction = DefaultMaxDropFraction
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = defaultCacheTTL
	}
	return c
}

// Pipeline runs the full analysis: normalize each year, train each year's
// model in parallel, then merge the vectors into one comparison table.
type Pipeline struct {
	schema     *schema.Schema
	normalizer *normalize.Normalizer
	trainer    Trainer
	aggregator *aggregate.Aggregator
	cache      VectorCache
	cfg        Config
	logger     *zap.Logger
}

// New wires a Pipeline. cache may be nil.
func New(s *schema.Schema, n *normalize.Normalizer, t Trainer, a *aggregate.Aggregator, cache VectorCache, cfg Config, logger *zap.Logger) *Pipeline {
	if s == nil || n == nil || t == nil || a == nil {
		panic("schema, normalizer, trainer and aggregator must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		schema:     s,
		normalizer: n,
		trainer:    t,
		aggregator: a,
		cache:      cache,
		cfg:        cfg.withDefaults(),
		logger:     logger,
	}
}

type yearOutcome struct {
	year     int
	vector   model.ImportanceVector
	counters Counters
	err      error
}

// Run processes every year independently and merges the survivors. A failed
// year never aborts the others; it surfaces in the table's failed list.
func (p *Pipeline) Run(ctx context.Context, years []YearInput) (*Result, error) {
	if len(years) == 0 {
		return nil, errors.New("no years supplied")
	}

	ordered := append([]YearInput(nil), years...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Year < ordered[j].Year })

	outcomes := make([]yearOutcome, len(ordered))
	g, gctx := errgroup.WithContext(ctx)
	for i, in := range ordered {
		i, in := i, in
		g.Go(func() error {
			outcomes[i] = p.processYear(gctx, in)
			return nil
		})
	}
	// Worker errors are per-year data, not group failures.
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var vectors []aggregate.YearVector
	var failed []aggregate.YearFailure
	counters := make(map[int]Counters, len(ordered))
	for _, out := range outcomes {
		counters[out.year] = out.counters
		if out.err != nil {
			p.logger.Warn("year excluded from comparison",
				zap.Int("year", out.year),
				zap.Error(out.err))
			failed = append(failed, aggregate.YearFailure{Year: out.year, Reason: out.err.Error()})
			continue
		}
		vectors = append(vectors, aggregate.YearVector{Year: out.year, Vector: out.vector})
	}

	table, err := p.aggregator.Merge(vectors, failed)
	if err != nil {
		return nil, fmt.Errorf("merge yearly vectors: %w", err)
	}

	return &Result{Table: table, Counters: counters}, nil
}

func (p *Pipeline) processYear(ctx context.Context, in YearInput) yearOutcome {
	out := yearOutcome{year: in.Year}

	listings, nc := p.normalizer.NormalizeAll(in.Records)
	out.counters = Counters{Counters: nc}

	dropped := nc.DroppedUnavailable + nc.DroppedInvalid
	if nc.RowsIngested > 0 {
		if frac := float64(dropped) / float64(nc.RowsIngested); frac > p.cfg.MaxDropFraction {
			out.err = fmt.Errorf("%w: year %d dropped %.0f%% of %d ingested rows",
				model.ErrInsufficientData, in.Year, frac*100, nc.RowsIngested)
			return out
		}
	}

	ds := dataset.New(in.Year, listings)
	out.counters.RowsTrained = ds.Rows()

	out.vector, out.err = p.trainYear(ctx, ds)
	return out
}

// trainYear consults the optional cache before training. Runs are idempotent,
// so an identical dataset under an identical training config may reuse the
// previously computed vector.
func (p *Pipeline) trainYear(ctx context.Context, ds *dataset.Dataset) (model.ImportanceVector, error) {
	if p.cache == nil {
		return p.trainer.Train(ds)
	}

	key := p.cacheKey(ds)
	var cached model.ImportanceVector
	if err := p.cache.Get(ctx, key, &cached); err == nil && len(cached) == p.schema.Len() {
		p.logger.Debug("importance vector cache hit", zap.Int("year", ds.Year()))
		return cached, nil
	}

	vector, err := p.trainer.Train(ds)
	if err != nil {
		return nil, err
	}
	if err := p.cache.Set(ctx, key, vector, p.cfg.CacheTTL); err != nil {
		p.logger.Warn("importance vector cache set failed", zap.Error(err))
	}
	return vector, nil
}

func (p *Pipeline) cacheKey(ds *dataset.Dataset) string {
	cfg := p.trainer.Config()
	return fmt.Sprintf("%s%s:d%d:s%d", cacheKeyPrefix, ds.Fingerprint(), cfg.MaxDepth, cfg.Seed)
}
