package dataset

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/staylens/staylens/internal/normalize"
)

// bucketBounds split reserved days into quarter-year classes for the
// classifier: 0..91, 92..182, 183..273, 274..365.
var bucketBounds = [...]int{91, 182, 273}

// Bucket maps a reserved-days value to its target class.
func Bucket(reservedDays int) int {
	for class, bound := range bucketBounds {
		if reservedDays <= bound {
			return class
		}
	}
	return len(bucketBounds)
}

// NumClasses is the number of target classes Bucket can produce.
const NumClasses = len(bucketBounds) + 1

// Dataset is one year's normalized records with aligned bucketed targets.
// It is built once and never mutated; every accessor copies or returns scalars.
type Dataset struct {
	year     int
	width    int
	features [][]float64
	targets  []int
}

// New builds the dataset for a year from its surviving normalized listings.
func New(year int, listings []normalize.Listing) *Dataset {
	features := make([][]float64, len(listings))
	targets := make([]int, len(listings))
	width := 0

	for i, l := range listings {
		features[i] = append([]float64(nil), l.Features...)
		targets[i] = Bucket(l.ReservedDays)
		width = len(l.Features)
	}

	return &Dataset{
		year:     year,
		width:    width,
		features: features,
		targets:  targets,
	}
}

// Year returns the year this dataset covers.
func (d *Dataset) Year() int { return d.year }

// Rows returns the number of records.
func (d *Dataset) Rows() int { return len(d.features) }

// Width returns the number of feature slots per record.
func (d *Dataset) Width() int { return d.width }

// Feature returns the value of feature slot col in record row.
func (d *Dataset) Feature(row, col int) float64 { return d.features[row][col] }

// Target returns the bucketed target class of record row.
func (d *Dataset) Target(row int) int { return d.targets[row] }

// DistinctTargets returns the number of distinct target classes present.
func (d *Dataset) DistinctTargets() int {
	seen := make(map[int]struct{}, NumClasses)
	for _, t := range d.targets {
		seen[t] = struct{}{}
	}
	return len(seen)
}

// Fingerprint returns a stable hex digest of the dataset contents. Two
// datasets with identical year, shape, features and targets share a
// fingerprint; used to memoize trained importance vectors.
func (d *Dataset) Fingerprint() string {
	h := sha256.New()
	var buf [8]byte

	writeInt := func(v int) {
		binary.BigEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}

	writeInt(d.year)
	writeInt(len(d.features))
	writeInt(d.width)
	for i, row := range d.features {
		for _, f := range row {
			binary.BigEndian.PutUint64(buf[:], math.Float64bits(f))
			h.Write(buf[:])
		}
		writeInt(d.targets[i])
	}

	return hex.EncodeToString(h.Sum(nil))
}
