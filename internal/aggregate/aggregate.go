package aggregate

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/staylens/staylens/internal/model"
	"github.com/staylens/staylens/internal/schema"
)

// ErrSchemaMismatch marks years being compared that do not share the
// canonical feature set. A missing feature is never treated as zero: that
// would conflate "not important" with "not measured".
var ErrSchemaMismatch = errors.New("schema mismatch")

// YearVector pairs a year with its trained importance vector.
type YearVector struct {
	Year   int
	Vector model.ImportanceVector
}

// YearFailure records a year that produced no importance vector and why, so
// downstream reporting can flag it instead of fabricating values.
type YearFailure struct {
	Year   int    `json:"year"`
	Reason string `json:"reason"`
}

// Table is the unified cross-year comparison. It stores full-precision raw
// scores; percentages, deltas and ranks are derived on demand and never
// cached, so the table has no partial-update state.
type Table struct {
	years    []int
	features []string
	raw      map[string][]float64
	failed   []YearFailure
}

// FeatureTotal is one row of the total-contribution ranking.
type FeatureTotal struct {
	Feature string  `json:"feature"`
	Total   float64 `json:"total"`
}

// Row is the serialized form of one feature's cross-year comparison.
type Row struct {
	Feature  string    `json:"feature"`
	Percents []float64 `json:"percents"`
	Delta    float64   `json:"delta"`
	Ranks    []int     `json:"ranks"`
}

// Snapshot is the serializable form of a Table, in schema feature order.
type Snapshot struct {
	Years  []int          `json:"years"`
	Rows   []Row          `json:"rows"`
	Totals []FeatureTotal `json:"totals"`
	Failed []YearFailure  `json:"failed_years,omitempty"`
}

// Aggregator merges independently trained per-year importance vectors into a
// single comparison table.
type Aggregator struct {
	schema *schema.Schema
	logger *zap.Logger
}

// New creates an Aggregator for the run's schema.
func New(s *schema.Schema, logger *zap.Logger) *Aggregator {
	if s == nil {
		panic("schema must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{schema: s, logger: logger}
}

// Merge validates that every supplied vector covers the full schema and
// builds a fresh Table. Vectors must arrive in ascending year order. Failed
// years are carried through untouched.
func (a *Aggregator) Merge(vectors []YearVector, failed []YearFailure) (*Table, error) {
	names := a.schema.Names()

	raw := make(map[string][]float64, len(names))
	for _, name := range names {
		raw[name] = make([]float64, 0, len(vectors))
	}

	years := make([]int, 0, len(vectors))
	for _, yv := range vectors {
		if len(yv.Vector) != len(names) {
			return nil, fmt.Errorf("%w: year %d has %d features, schema has %d",
				ErrSchemaMismatch, yv.Year, len(yv.Vector), len(names))
		}
		for _, name := range names {
			score, ok := yv.Vector[name]
			if !ok {
				return nil, fmt.Errorf("%w: year %d is missing feature %q", ErrSchemaMismatch, yv.Year, name)
			}
			raw[name] = append(raw[name], score)
		}
		years = append(years, yv.Year)
	}

	a.logger.Info("merged yearly importance vectors",
		zap.Int("years", len(years)),
		zap.Int("failed_years", len(failed)))

	return &Table{
		years:    years,
		features: names,
		raw:      raw,
		failed:   append([]YearFailure(nil), failed...),
	}, nil
}

// Years returns the successfully compared years, ascending.
func (t *Table) Years() []int { return append([]int(nil), t.years...) }

// Features returns the feature names in schema order.
func (t *Table) Features() []string { return append([]string(nil), t.features...) }

// Failed returns the years excluded from the comparison and why.
func (t *Table) Failed() []YearFailure { return append([]YearFailure(nil), t.failed...) }

// Raw returns the full-precision per-year scores for a feature.
func (t *Table) Raw(feature string) []float64 {
	return append([]float64(nil), t.raw[feature]...)
}

// Percentages returns the per-year scores for a feature as percentages
// rounded to two decimal places.
func (t *Table) Percentages(feature string) []float64 {
	scores := t.raw[feature]
	out := make([]float64, len(scores))
	for i, s := range scores {
		out[i] = round2(s * 100)
	}
	return out
}

// Delta returns the signed first-to-last change for a feature, in percentage
// points rounded to two decimal places.
func (t *Table) Delta(feature string) float64 {
	scores := t.raw[feature]
	if len(scores) < 2 {
		return 0
	}
	return round2((scores[len(scores)-1] - scores[0]) * 100)
}

// Ranks returns the feature's rank within each year, 1 being the most
// important. Ties break by ascending feature name.
func (t *Table) Ranks(feature string) []int {
	ranks := make([]int, len(t.years))
	for yi := range t.years {
		ordered := append([]string(nil), t.features...)
		sort.Slice(ordered, func(a, b int) bool {
			sa, sb := t.raw[ordered[a]][yi], t.raw[ordered[b]][yi]
			if sa != sb {
				return sa > sb
			}
			return ordered[a] < ordered[b]
		})
		for pos, name := range ordered {
			if name == feature {
				ranks[yi] = pos + 1
				break
			}
		}
	}
	return ranks
}

// TotalContribution ranks features by their summed importance across all
// years, independent of year-to-year direction. Ties break by ascending name.
func (t *Table) TotalContribution() []FeatureTotal {
	totals := make([]FeatureTotal, 0, len(t.features))
	for _, name := range t.features {
		var sum float64
		for _, s := range t.raw[name] {
			sum += s
		}
		totals = append(totals, FeatureTotal{Feature: name, Total: sum})
	}
	sort.Slice(totals, func(a, b int) bool {
		if totals[a].Total != totals[b].Total {
			return totals[a].Total > totals[b].Total
		}
		return totals[a].Feature < totals[b].Feature
	})
	return totals
}

// Snapshot materializes the derived views for serialization or rendering.
func (t *Table) Snapshot() Snapshot {
	rows := make([]Row, 0, len(t.features))
	for _, name := range t.features {
		rows = append(rows, Row{
			Feature:  name,
			Percents: t.Percentages(name),
			Delta:    t.Delta(name),
			Ranks:    t.Ranks(name),
		})
	}
	return Snapshot{
		Years:  t.Years(),
		Rows:   rows,
		Totals: t.TotalContribution(),
		Failed: t.Failed(),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
