package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/staylens/staylens/internal/aggregate"
	"github.com/staylens/staylens/internal/dataset"
	"github.com/staylens/staylens/internal/model"
	"github.com/staylens/staylens/internal/normalize"
	"github.com/staylens/staylens/internal/pipeline/mocks"
	"github.com/staylens/staylens/internal/schema"
)

func rawListing(avail int) normalize.RawRecord {
	return normalize.RawRecord{
		"host_acceptance_rate":        "95%",
		"host_response_rate":          "99%",
		"host_response_time":          "within an hour",
		"host_is_superhost":           "t",
		"host_has_profile_pic":        "t",
		"host_identity_verified":      "f",
		"host_verifications":          "['email', 'phone']",
		"price":                       "$120.00",
		"accommodates":                "4",
		"bathrooms":                   "1.5",
		"bedrooms":                    "2",
		"beds":                        "2",
		"number_of_reviews":           "34",
		"review_scores_accuracy":      "95",
		"review_scores_cleanliness":   "90",
		"review_scores_checkin":       "98",
		"review_scores_communication": "97",
		"review_scores_location":      "92",
		"review_scores_value":         "88",
		"review_scores_rating":        "93",
		"amenities":                   `["Wifi", "Pool"]`,
		"availability_365":            fmt.Sprint(avail),
	}
}

func yearRecords(n int) []normalize.RawRecord {
	records := make([]normalize.RawRecord, n)
	for i := range records {
		records[i] = rawListing(50 + i%300)
	}
	return records
}

// uniformVector returns an even importance spread over the schema.
func uniformVector(s *schema.Schema) model.ImportanceVector {
	v := make(model.ImportanceVector, s.Len())
	for _, name := range s.Names() {
		v[name] = 1 / float64(s.Len())
	}
	return v
}

func newTestPipeline(s *schema.Schema, trainer Trainer, cache VectorCache) *Pipeline {
	logger := zap.NewNop()
	return New(s, normalize.New(s, logger), trainer, aggregate.New(s, logger), cache, Config{}, logger)
}

func TestRun(t *testing.T) {
	s := schema.Canonical()
	ctx := context.Background()

	t.Run("insufficient year is excluded, others survive", func(t *testing.T) {
		trainer := &mocks.MockTrainer{
			TrainFunc: func(ds *dataset.Dataset) (model.ImportanceVector, error) {
				if ds.Rows() < 25 {
					return nil, fmt.Errorf("%w: %d rows", model.ErrInsufficientData, ds.Rows())
				}
				return uniformVector(s), nil
			},
		}
		p := newTestPipeline(s, trainer, nil)

		result, err := p.Run(ctx, []YearInput{
			{Year: 2021, Records: yearRecords(40)},
			{Year: 2022, Records: yearRecords(23)},
			{Year: 2023, Records: yearRecords(40)},
		})

		assert.NoError(t, err)
		assert.Equal(t, []int{2021, 2023}, result.Table.Years())
		failed := result.Table.Failed()
		assert.Len(t, failed, 1)
		assert.Equal(t, 2022, failed[0].Year)
		assert.Contains(t, failed[0].Reason, "insufficient data")
	})

	t.Run("excessive drop rate escalates before training", func(t *testing.T) {
		trained := 0
		trainer := &mocks.MockTrainer{
			TrainFunc: func(ds *dataset.Dataset) (model.ImportanceVector, error) {
				trained++
				return uniformVector(s), nil
			},
		}
		p := newTestPipeline(s, trainer, nil)

		records := yearRecords(40)
		for i := 0; i < 30; i++ {
			records[i]["host_is_superhost"] = "maybe"
		}

		result, err := p.Run(ctx, []YearInput{{Year: 2021, Records: records}})

		assert.NoError(t, err)
		assert.Zero(t, trained)
		assert.Empty(t, result.Table.Years())
		assert.Len(t, result.Table.Failed(), 1)
		assert.Contains(t, result.Table.Failed()[0].Reason, "insufficient data")
	})

	t.Run("counters reported per year", func(t *testing.T) {
		trainer := &mocks.MockTrainer{
			TrainFunc: func(ds *dataset.Dataset) (model.ImportanceVector, error) {
				return uniformVector(s), nil
			},
		}
		p := newTestPipeline(s, trainer, nil)

		records := yearRecords(40)
		records[0]["availability_365"] = "0"
		records[1]["price"] = ""

		result, err := p.Run(ctx, []YearInput{{Year: 2021, Records: records}})

		assert.NoError(t, err)
		c := result.Counters[2021]
		assert.Equal(t, 40, c.RowsIngested)
		assert.Equal(t, 1, c.DroppedUnavailable)
		assert.Equal(t, 1, c.DroppedInvalid)
		assert.Equal(t, 38, c.RowsTrained)
	})

	t.Run("years ordered ascending regardless of input order", func(t *testing.T) {
		trainer := &mocks.MockTrainer{
			TrainFunc: func(ds *dataset.Dataset) (model.ImportanceVector, error) {
				return uniformVector(s), nil
			},
		}
		p := newTestPipeline(s, trainer, nil)

		result, err := p.Run(ctx, []YearInput{
			{Year: 2023, Records: yearRecords(30)},
			{Year: 2021, Records: yearRecords(30)},
			{Year: 2022, Records: yearRecords(30)},
		})

		assert.NoError(t, err)
		assert.Equal(t, []int{2021, 2022, 2023}, result.Table.Years())
	})

	t.Run("no years supplied", func(t *testing.T) {
		p := newTestPipeline(s, &mocks.MockTrainer{}, nil)

		_, err := p.Run(ctx, nil)

		assert.Error(t, err)
	})
}

func TestRunWithCache(t *testing.T) {
	s := schema.Canonical()
	ctx := context.Background()

	t.Run("second run reuses the cached vector", func(t *testing.T) {
		trained := 0
		trainer := &mocks.MockTrainer{
			TrainFunc: func(ds *dataset.Dataset) (model.ImportanceVector, error) {
				trained++
				return uniformVector(s), nil
			},
			ConfigFunc: func() model.Config {
				return model.Config{MaxDepth: 5, Seed: 42}
			},
		}
		cache := &mocks.MockVectorCache{}
		p := newTestPipeline(s, trainer, cache)
		years := []YearInput{{Year: 2021, Records: yearRecords(30)}}

		first, err := p.Run(ctx, years)
		assert.NoError(t, err)
		second, err := p.Run(ctx, years)
		assert.NoError(t, err)

		assert.Equal(t, 1, trained)
		assert.Equal(t, 1, cache.Sets)
		assert.Equal(t, 1, cache.Hits)
		assert.Equal(t, first.Table.Raw("price"), second.Table.Raw("price"))
	})

	t.Run("training failure is not cached", func(t *testing.T) {
		trainer := &mocks.MockTrainer{
			TrainFunc: func(ds *dataset.Dataset) (model.ImportanceVector, error) {
				return nil, model.ErrDegenerateTarget
			},
			ConfigFunc: func() model.Config { return model.Config{} },
		}
		cache := &mocks.MockVectorCache{}
		p := newTestPipeline(s, trainer, cache)

		result, err := p.Run(ctx, []YearInput{{Year: 2021, Records: yearRecords(30)}})

		assert.NoError(t, err)
		assert.Zero(t, cache.Sets)
		assert.Len(t, result.Table.Failed(), 1)
	})
}
