package normalize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/staylens/staylens/internal/schema"
)

var (
	// ErrSchemaViolation marks a raw record that cannot be normalized: a
	// required field is absent, empty, or holds an unparsable value.
	ErrSchemaViolation = errors.New("schema violation")

	// ErrZeroAvailability marks a listing with no bookable days in the next
	// 365; such listings are excluded rather than imputed because they would
	// bias the reservation-duration target.
	ErrZeroAvailability = errors.New("zero forward availability")
)

// RawRecord is one unprocessed yearly listing record: a flat mapping of raw
// field names to primitive values (string, number or bool).
type RawRecord map[string]any

// Listing is a normalized record: one value per schema slot, in schema order,
// plus the reservation-duration target derived from forward availability.
type Listing struct {
	Features     []float64
	ReservedDays int
}

// Counters reports per-year data quality for auditing.
type Counters struct {
	RowsIngested       int
	DroppedUnavailable int
	DroppedInvalid     int
}

// rawField maps a schema slot to the raw column it is read from and how the
// raw value is coerced.
type coercion int

const (
	coerceNumber coercion = iota
	coercePercent
	coerceCurrency
	coerceBool
	coerceResponseTime
	coerceTokenCount
)

var rawFields = map[string]struct {
	column string
	how    coercion
}{
	"acceptance_rate":      {"host_acceptance_rate", coercePercent},
	"response_rate":        {"host_response_rate", coercePercent},
	"response_time":        {"host_response_time", coerceResponseTime},
	"superhost":            {"host_is_superhost", coerceBool},
	"profile_pic":          {"host_has_profile_pic", coerceBool},
	"identity_verified":    {"host_identity_verified", coerceBool},
	"host_communications":  {"host_verifications", coerceTokenCount},
	"price":                {"price", coerceCurrency},
	"accommodates":         {"accommodates", coerceNumber},
	"bathrooms":            {"bathrooms", coerceNumber},
	"bedrooms":             {"bedrooms", coerceNumber},
	"beds":                 {"beds", coerceNumber},
	"review_count":         {"number_of_reviews", coerceNumber},
	"review_accuracy":      {"review_scores_accuracy", coerceNumber},
	"review_cleanliness":   {"review_scores_cleanliness", coerceNumber},
	"review_checkin":       {"review_scores_checkin", coerceNumber},
	"review_communication": {"review_scores_communication", coerceNumber},
	"review_location":      {"review_scores_location", coerceNumber},
	"review_value":         {"review_scores_value", coerceNumber},
	"review_overall":       {"review_scores_rating", coerceNumber},
}

// responseTimeHours maps the categorical host_response_time tokens to hours.
var responseTimeHours = map[string]float64{
	"within an hour":       1,
	"within a few hours":   4,
	"within several hours": 4,
	"within a day":         24,
	"a few days or more":   72,
}

const (
	amenitiesColumn    = "amenities"
	availabilityColumn = "availability_365"
	daysPerYear        = 365
)

// Normalizer maps raw yearly records into the canonical schema.
type Normalizer struct {
	schema *schema.Schema
	vocab  []string
	logger *zap.Logger
}

// New creates a Normalizer for the given schema. The amenity vocabulary is
// taken from the schema so the two cannot diverge.
func New(s *schema.Schema, logger *zap.Logger) *Normalizer {
	if s == nil {
		panic("schema must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{
		schema: s,
		vocab:  s.AmenityVocabulary(),
		logger: logger,
	}
}

// Normalize converts one raw record into a Listing. It returns
// ErrZeroAvailability for listings not accepting bookings and
// ErrSchemaViolation for records that cannot be coerced to the schema.
func (n *Normalizer) Normalize(raw RawRecord) (Listing, error) {
	avail, err := requireNumber(raw, availabilityColumn)
	if err != nil {
		return Listing{}, err
	}
	if avail == 0 {
		return Listing{}, ErrZeroAvailability
	}
	reserved := daysPerYear - int(avail)
	if reserved < 0 {
		return Listing{}, fmt.Errorf("%w: %s exceeds %d", ErrSchemaViolation, availabilityColumn, daysPerYear)
	}

	amenities, ok := rawString(raw, amenitiesColumn)
	if !ok {
		return Listing{}, fmt.Errorf("%w: missing field %q", ErrSchemaViolation, amenitiesColumn)
	}
	amenitiesLower := strings.ToLower(amenities)

	features := make([]float64, n.schema.Len())
	for i, f := range n.schema.Features() {
		field, isBase := rawFields[f.Name]
		if !isBase {
			// Trailing amenity slot: substring match against the vocabulary term.
			term := f.Name
			for _, v := range n.vocab {
				if schema.AmenitySlot(v) == f.Name {
					term = strings.ToLower(v)
					break
				}
			}
			if strings.Contains(amenitiesLower, term) {
				features[i] = 1
			}
			continue
		}

		val, err := coerce(raw, field.column, field.how)
		if err != nil {
			return Listing{}, err
		}
		features[i] = val
	}

	return Listing{Features: features, ReservedDays: reserved}, nil
}

// NormalizeAll normalizes a year's records, dropping the ones that fail and
// tallying the drops for data-quality reporting.
func (n *Normalizer) NormalizeAll(raws []RawRecord) ([]Listing, Counters) {
	counters := Counters{RowsIngested: len(raws)}
	listings := make([]Listing, 0, len(raws))

	for i, raw := range raws {
		l, err := n.Normalize(raw)
		switch {
		case errors.Is(err, ErrZeroAvailability):
			counters.DroppedUnavailable++
		case err != nil:
			counters.DroppedInvalid++
			n.logger.Debug("dropped record", zap.Int("row", i), zap.Error(err))
		default:
			listings = append(listings, l)
		}
	}

	n.logger.Info("normalized records",
		zap.Int("ingested", counters.RowsIngested),
		zap.Int("kept", len(listings)),
		zap.Int("dropped_unavailable", counters.DroppedUnavailable),
		zap.Int("dropped_invalid", counters.DroppedInvalid))

	return listings, counters
}

func coerce(raw RawRecord, column string, how coercion) (float64, error) {
	switch how {
	case coerceBool:
		return requireBool(raw, column)
	case coerceResponseTime:
		return requireResponseTime(raw, column)
	case coerceTokenCount:
		return requireTokenCount(raw, column)
	case coercePercent, coerceCurrency, coerceNumber:
		return requireNumber(raw, column)
	default:
		return 0, fmt.Errorf("%w: unknown coercion for %q", ErrSchemaViolation, column)
	}
}

// rawString fetches a field as its string form; ok is false when the field is
// absent, nil, or blank.
func rawString(raw RawRecord, column string) (string, bool) {
	v, present := raw[column]
	if !present || v == nil {
		return "", false
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" || strings.EqualFold(s, "n/a") {
		return "", false
	}
	return s, true
}

func requireNumber(raw RawRecord, column string) (float64, error) {
	v, present := raw[column]
	if !present || v == nil {
		return 0, fmt.Errorf("%w: missing field %q", ErrSchemaViolation, column)
	}

	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case string:
		s := strings.TrimSpace(t)
		s = strings.TrimSuffix(s, "%")
		s = strings.TrimPrefix(s, "$")
		s = strings.ReplaceAll(s, ",", "")
		if s == "" || strings.EqualFold(s, "n/a") {
			return 0, fmt.Errorf("%w: empty field %q", ErrSchemaViolation, column)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: field %q: unparsable number %q", ErrSchemaViolation, column, t)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: field %q: unsupported type %T", ErrSchemaViolation, column, v)
	}
}

// requireBool standardizes boolean-like tokens to exactly 0 or 1. Anything
// outside the recognized token sets is a schema violation, never a guess.
func requireBool(raw RawRecord, column string) (float64, error) {
	v, present := raw[column]
	if !present || v == nil {
		return 0, fmt.Errorf("%w: missing field %q", ErrSchemaViolation, column)
	}

	switch t := v.(type) {
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case int:
		switch t {
		case 1:
			return 1, nil
		case 0:
			return 0, nil
		}
	case float64:
		switch t {
		case 1:
			return 1, nil
		case 0:
			return 0, nil
		}
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "t", "true", "1":
			return 1, nil
		case "f", "false", "0":
			return 0, nil
		}
	}
	return 0, fmt.Errorf("%w: field %q: unrecognized boolean token %v", ErrSchemaViolation, column, v)
}

func requireResponseTime(raw RawRecord, column string) (float64, error) {
	s, ok := rawString(raw, column)
	if !ok {
		return 0, fmt.Errorf("%w: missing field %q", ErrSchemaViolation, column)
	}
	if hours, known := responseTimeHours[strings.ToLower(s)]; known {
		return hours, nil
	}
	// Some exports carry the value already converted to hours.
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f, nil
	}
	return 0, fmt.Errorf("%w: field %q: unrecognized response time %q", ErrSchemaViolation, column, s)
}

// requireTokenCount counts distinct non-empty communication-method tokens in a
// comma-separated field, tolerating the bracketed list form ['email', 'phone'].
func requireTokenCount(raw RawRecord, column string) (float64, error) {
	s, ok := rawString(raw, column)
	if !ok {
		return 0, fmt.Errorf("%w: missing field %q", ErrSchemaViolation, column)
	}

	seen := make(map[string]struct{})
	for _, tok := range strings.Split(s, ",") {
		tok = strings.Trim(tok, " []'\"")
		if tok == "" {
			continue
		}
		seen[strings.ToLower(tok)] = struct{}{}
	}
	return float64(len(seen)), nil
}
