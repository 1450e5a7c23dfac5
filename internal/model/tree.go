package model

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"go.uber.org/zap"

	"github.com/staylens/staylens/internal/dataset"
	"github.com/staylens/staylens/internal/schema"
)

var (
	// ErrInsufficientData marks a year whose cleaned dataset is too small to
	// train a meaningful tree.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrDegenerateTarget marks a year whose target has no variance, leaving
	// feature importance undefined.
	ErrDegenerateTarget = errors.New("degenerate target")
)

const (
	// DefaultMaxDepth caps the tree to keep it interpretable; the pipeline's
	// purpose is explanatory ranking, not maximal fit.
	DefaultMaxDepth = 5

	// DefaultSeed fixes the tie-break sequence so repeated runs on identical
	// input produce bit-identical importance scores.
	DefaultSeed = 42
)

// gainEpsilon is the tolerance below which two split gains count as tied.
const gainEpsilon = 1e-12

// ImportanceVector maps every schema feature name to its normalized share of
// the tree's total impurity reduction. Scores sum to 1; unsplit features are
// present with score 0.
type ImportanceVector map[string]float64

// Config holds the per-run training parameters. It is passed in explicitly so
// concurrent runs with different settings cannot interfere.
type Config struct {
	MaxDepth int
	MinRows  int
	Seed     int64
}

// withDefaults fills unset fields relative to the schema.
func (c Config) withDefaults(s *schema.Schema) Config {
	if c.MaxDepth <= 0 {
		c.MaxDepth = DefaultMaxDepth
	}
	if c.MinRows <= 0 {
		c.MinRows = s.Len() + 1
	}
	return c
}

// Trainer builds one bounded-depth classification tree per yearly dataset and
// extracts normalized per-feature importance from it.
type Trainer struct {
	schema *schema.Schema
	cfg    Config
	logger *zap.Logger
}

// NewTrainer creates a Trainer bound to the run's schema and config.
func NewTrainer(s *schema.Schema, cfg Config, logger *zap.Logger) *Trainer {
	if s == nil {
		panic("schema must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trainer{
		schema: s,
		cfg:    cfg.withDefaults(s),
		logger: logger,
	}
}

// Config returns the effective training configuration.
func (t *Trainer) Config() Config { return t.cfg }

// Train fits a tree on the dataset and returns the importance vector.
func (t *Trainer) Train(ds *dataset.Dataset) (ImportanceVector, error) {
	if ds == nil {
		return nil, fmt.Errorf("nil dataset")
	}
	if ds.Rows() < t.cfg.MinRows {
		return nil, fmt.Errorf("%w: year %d has %d rows, need at least %d",
			ErrInsufficientData, ds.Year(), ds.Rows(), t.cfg.MinRows)
	}
	if ds.Width() != t.schema.Len() {
		return nil, fmt.Errorf("dataset width %d does not match schema length %d", ds.Width(), t.schema.Len())
	}
	if ds.DistinctTargets() < 2 {
		return nil, fmt.Errorf("%w: year %d target has a single class", ErrDegenerateTarget, ds.Year())
	}

	b := &builder{
		ds:       ds,
		maxDepth: t.cfg.MaxDepth,
		rng:      rand.New(rand.NewSource(t.cfg.Seed)),
		total:    float64(ds.Rows()),
		gains:    make([]float64, ds.Width()),
	}

	idx := make([]int, ds.Rows())
	for i := range idx {
		idx[i] = i
	}
	b.grow(idx, 0)

	var sum float64
	for _, g := range b.gains {
		sum += g
	}
	if sum <= 0 {
		// Variance exists but no feature separates it: importance is undefined.
		return nil, fmt.Errorf("%w: year %d admits no informative split", ErrDegenerateTarget, ds.Year())
	}

	vector := make(ImportanceVector, t.schema.Len())
	for i, name := range t.schema.Names() {
		vector[name] = b.gains[i] / sum
	}

	t.logger.Info("trained importance model",
		zap.Int("year", ds.Year()),
		zap.Int("rows", ds.Rows()),
		zap.Int("max_depth", t.cfg.MaxDepth))

	return vector, nil
}

type builder struct {
	ds       *dataset.Dataset
	maxDepth int
	rng      *rand.Rand
	total    float64
	gains    []float64
}

type split struct {
	feature   int
	threshold float64
	gain      float64
}

// grow recursively partitions idx, accumulating each split's weighted
// impurity reduction against its feature. Left subtree is always grown first
// so the tie-break rng sequence is identical across runs.
func (b *builder) grow(idx []int, depth int) {
	if depth >= b.maxDepth || len(idx) < 2 {
		return
	}
	imp := b.impurity(idx)
	if imp == 0 {
		return
	}

	best, ok := b.bestSplit(idx, imp)
	if !ok {
		return
	}

	b.gains[best.feature] += float64(len(idx)) / b.total * best.gain

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if b.ds.Feature(i, best.feature) <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	b.grow(left, depth+1)
	b.grow(right, depth+1)
}

// bestSplit scans every feature's candidate thresholds (midpoints between
// consecutive distinct values) and returns the split with the largest
// impurity reduction. Exact ties are resolved by the seeded rng; everything
// else is strictly ordered by feature index then threshold.
func (b *builder) bestSplit(idx []int, parentImp float64) (split, bool) {
	n := float64(len(idx))
	var ties []split
	bestGain := 0.0

	order := make([]int, len(idx))
	for j := 0; j < b.ds.Width(); j++ {
		copy(order, idx)
		sort.Slice(order, func(a, c int) bool {
			return b.ds.Feature(order[a], j) < b.ds.Feature(order[c], j)
		})

		left := make([]float64, dataset.NumClasses)
		right := make([]float64, dataset.NumClasses)
		for _, i := range order {
			right[b.ds.Target(i)]++
		}

		nl := 0.0
		for k := 0; k < len(order)-1; k++ {
			cls := b.ds.Target(order[k])
			left[cls]++
			right[cls]--
			nl++

			v, next := b.ds.Feature(order[k], j), b.ds.Feature(order[k+1], j)
			if v == next {
				continue
			}

			nr := n - nl
			gain := parentImp - (nl*gini(left, nl)+nr*gini(right, nr))/n
			if gain <= gainEpsilon {
				continue
			}

			cand := split{feature: j, threshold: (v + next) / 2, gain: gain}
			switch {
			case gain > bestGain+gainEpsilon:
				bestGain = gain
				ties = ties[:0]
				ties = append(ties, cand)
			case gain > bestGain-gainEpsilon:
				ties = append(ties, cand)
			}
		}
	}

	if len(ties) == 0 {
		return split{}, false
	}
	if len(ties) == 1 {
		return ties[0], true
	}
	return ties[b.rng.Intn(len(ties))], true
}

func (b *builder) impurity(idx []int) float64 {
	counts := make([]float64, dataset.NumClasses)
	for _, i := range idx {
		counts[b.ds.Target(i)]++
	}
	return gini(counts, float64(len(idx)))
}

// gini computes 1 - sum(p_k^2) over class counts.
func gini(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	g := 1.0
	for _, c := range counts {
		p := c / n
		g -= p * p
	}
	return g
}
