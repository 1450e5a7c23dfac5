package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/staylens/staylens/internal/normalize"
	"github.com/staylens/staylens/internal/pipeline"
)

// Loader reads per-year listing exports from disk. Files are named
// listings_<year>.csv under a single data directory.
type Loader struct {
	dir    string
	logger *zap.Logger
}

func NewLoader(dir string, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{dir: dir, logger: logger}
}

// LoadYears reads each requested year's CSV into raw records. A missing file
// is an error: a requested year must be explicitly present.
func (l *Loader) LoadYears(years []int) ([]pipeline.YearInput, error) {
	inputs := make([]pipeline.YearInput, 0, len(years))
	for _, year := range years {
		path := filepath.Join(l.dir, fmt.Sprintf("listings_%d.csv", year))
		records, err := ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load year %d: %w", year, err)
		}
		l.logger.Info("loaded yearly records",
			zap.Int("year", year),
			zap.String("path", path),
			zap.Int("rows", len(records)))
		inputs = append(inputs, pipeline.YearInput{Year: year, Records: records})
	}
	return inputs, nil
}

// ReadFile parses one CSV export into raw records keyed by header name.
// Values stay strings; all type coercion belongs to the normalizer.
func ReadFile(path string) ([]normalize.RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var records []normalize.RawRecord
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(records)+2, err)
		}
		if len(row) == 0 {
			continue
		}

		record := make(normalize.RawRecord, len(header))
		for i, name := range header {
			if i < len(row) {
				record[name] = row[i]
			}
		}
		records = append(records, record)
	}

	return records, nil
}
