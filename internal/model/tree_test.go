package model

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/staylens/staylens/internal/dataset"
	"github.com/staylens/staylens/internal/normalize"
	"github.com/staylens/staylens/internal/schema"
)

// noisyDataset builds rows with every feature drawn from a fixed rng and the
// target loosely tied to the price column.
func noisyDataset(s *schema.Schema, rows int) *dataset.Dataset {
	rng := rand.New(rand.NewSource(7))
	priceIdx, _ := s.Index("price")

	listings := make([]normalize.Listing, rows)
	for i := range listings {
		features := make([]float64, s.Len())
		for j := range features {
			features[j] = rng.Float64() * 100
		}
		reserved := int(features[priceIdx]*3) % 366
		listings[i] = normalize.Listing{Features: features, ReservedDays: reserved}
	}
	return dataset.New(2022, listings)
}

// priceOnlyDataset keeps every feature constant except price, which fully
// determines the target.
func priceOnlyDataset(s *schema.Schema, rows int) *dataset.Dataset {
	priceIdx, _ := s.Index("price")

	listings := make([]normalize.Listing, rows)
	for i := range listings {
		features := make([]float64, s.Len())
		features[priceIdx] = float64(i)
		reserved := i * 365 / (rows - 1)
		listings[i] = normalize.Listing{Features: features, ReservedDays: reserved}
	}
	return dataset.New(2022, listings)
}

func TestTrain(t *testing.T) {
	s := schema.Canonical()

	t.Run("scores are non-negative and sum to one", func(t *testing.T) {
		trainer := NewTrainer(s, Config{}, zap.NewNop())

		vector, err := trainer.Train(noisyDataset(s, 200))

		assert.NoError(t, err)
		assert.Len(t, vector, s.Len())
		var sum float64
		for name, score := range vector {
			assert.GreaterOrEqual(t, score, 0.0, "feature %s", name)
			sum += score
		}
		assert.InDelta(t, 1.0, sum, 1e-6)
	})

	t.Run("identical input and seed give identical vectors", func(t *testing.T) {
		ds := noisyDataset(s, 200)
		first, err := NewTrainer(s, Config{Seed: 99}, zap.NewNop()).Train(ds)
		assert.NoError(t, err)
		second, err := NewTrainer(s, Config{Seed: 99}, zap.NewNop()).Train(ds)
		assert.NoError(t, err)

		assert.Equal(t, first, second)
	})

	t.Run("unsplit features are present with score zero", func(t *testing.T) {
		trainer := NewTrainer(s, Config{}, zap.NewNop())

		vector, err := trainer.Train(priceOnlyDataset(s, 60))

		assert.NoError(t, err)
		assert.InDelta(t, 1.0, vector["price"], 1e-9)
		for name, score := range vector {
			if name == "price" {
				continue
			}
			assert.Zero(t, score, "feature %s", name)
		}
	})

	t.Run("depth cap limits splits", func(t *testing.T) {
		trainer := NewTrainer(s, Config{MaxDepth: 1}, zap.NewNop())

		vector, err := trainer.Train(noisyDataset(s, 200))

		assert.NoError(t, err)
		nonzero := 0
		for _, score := range vector {
			if score > 0 {
				nonzero++
			}
		}
		assert.Equal(t, 1, nonzero)
	})

	t.Run("too few rows", func(t *testing.T) {
		trainer := NewTrainer(s, Config{MinRows: 25}, zap.NewNop())

		_, err := trainer.Train(noisyDataset(s, 23))

		assert.ErrorIs(t, err, ErrInsufficientData)
	})

	t.Run("single-class target", func(t *testing.T) {
		listings := make([]normalize.Listing, 30)
		for i := range listings {
			features := make([]float64, s.Len())
			features[0] = float64(i)
			listings[i] = normalize.Listing{Features: features, ReservedDays: 50}
		}
		trainer := NewTrainer(s, Config{}, zap.NewNop())

		_, err := trainer.Train(dataset.New(2022, listings))

		assert.ErrorIs(t, err, ErrDegenerateTarget)
	})

	t.Run("varying target but constant features", func(t *testing.T) {
		listings := make([]normalize.Listing, 30)
		for i := range listings {
			listings[i] = normalize.Listing{
				Features:     make([]float64, s.Len()),
				ReservedDays: (i * 365) / 29,
			}
		}
		trainer := NewTrainer(s, Config{}, zap.NewNop())

		_, err := trainer.Train(dataset.New(2022, listings))

		assert.ErrorIs(t, err, ErrDegenerateTarget)
	})
}

func TestNewTrainerDefaults(t *testing.T) {
	s := schema.Canonical()

	t.Run("derives defaults from schema", func(t *testing.T) {
		trainer := NewTrainer(s, Config{}, nil)

		cfg := trainer.Config()
		assert.Equal(t, DefaultMaxDepth, cfg.MaxDepth)
		assert.Equal(t, s.Len()+1, cfg.MinRows)
	})

	t.Run("nil schema panics", func(t *testing.T) {
		assert.Panics(t, func() {
			NewTrainer(nil, Config{}, zap.NewNop())
		})
	})
}

func BenchmarkTrain(b *testing.B) {
	s := schema.Canonical()
	ds := noisyDataset(s, 500)
	trainer := NewTrainer(s, Config{}, zap.NewNop())

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := trainer.Train(ds); err != nil {
			b.Fatal(err)
		}
	}
}
