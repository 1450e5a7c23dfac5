package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/staylens/staylens/internal/normalize"
)

func listing(reserved int, features ...float64) normalize.Listing {
	return normalize.Listing{Features: features, ReservedDays: reserved}
}

func TestBucket(t *testing.T) {
	assert.Equal(t, 0, Bucket(0))
	assert.Equal(t, 0, Bucket(91))
	assert.Equal(t, 1, Bucket(92))
	assert.Equal(t, 1, Bucket(182))
	assert.Equal(t, 2, Bucket(183))
	assert.Equal(t, 2, Bucket(273))
	assert.Equal(t, 3, Bucket(274))
	assert.Equal(t, 3, Bucket(365))
}

func TestDataset(t *testing.T) {
	t.Run("accessors", func(t *testing.T) {
		ds := New(2022, []normalize.Listing{
			listing(10, 1, 2),
			listing(200, 3, 4),
		})

		assert.Equal(t, 2022, ds.Year())
		assert.Equal(t, 2, ds.Rows())
		assert.Equal(t, 2, ds.Width())
		assert.Equal(t, 3.0, ds.Feature(1, 0))
		assert.Equal(t, 0, ds.Target(0))
		assert.Equal(t, 2, ds.Target(1))
		assert.Equal(t, 2, ds.DistinctTargets())
	})

	t.Run("copies input rows", func(t *testing.T) {
		row := []float64{1, 2}
		ds := New(2022, []normalize.Listing{{Features: row, ReservedDays: 5}})

		row[0] = 99

		assert.Equal(t, 1.0, ds.Feature(0, 0))
	})
}

func TestFingerprint(t *testing.T) {
	rows := []normalize.Listing{
		listing(10, 1, 2),
		listing(200, 3, 4),
	}

	t.Run("identical content shares a fingerprint", func(t *testing.T) {
		assert.Equal(t, New(2022, rows).Fingerprint(), New(2022, rows).Fingerprint())
	})

	t.Run("year changes the fingerprint", func(t *testing.T) {
		assert.NotEqual(t, New(2021, rows).Fingerprint(), New(2022, rows).Fingerprint())
	})

	t.Run("feature changes the fingerprint", func(t *testing.T) {
		other := []normalize.Listing{
			listing(10, 1, 2.5),
			listing(200, 3, 4),
		}
		assert.NotEqual(t, New(2022, rows).Fingerprint(), New(2022, other).Fingerprint())
	})

	t.Run("target changes the fingerprint", func(t *testing.T) {
		other := []normalize.Listing{
			listing(300, 1, 2),
			listing(200, 3, 4),
		}
		assert.NotEqual(t, New(2022, rows).Fingerprint(), New(2022, other).Fingerprint())
	})
}
