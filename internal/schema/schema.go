package schema

import "strings"

// Kind classifies a feature slot as continuous or 0/1.
type Kind int

const (
	Numeric Kind = iota
	Binary
)

// Feature is one named slot in the canonical feature set.
type Feature struct {
	Name string
	Kind Kind
}

// DefaultAmenityVocabulary is the controlled vocabulary matched against the
// free-text amenities field. Extending it extends the schema; no code change needed.
var DefaultAmenityVocabulary = []string{"WiFi", "Pool", "Bathtub", "Free Parking"}

// base is the fixed non-amenity portion of the schema, in canonical order.
// host_communications is the count of distinct communication methods offered
// by the host, derived from the raw host_verifications field.
var base = []Feature{
	{Name: "acceptance_rate", Kind: Numeric},
	{Name: "response_rate", Kind: Numeric},
	{Name: "response_time", Kind: Numeric},
	{Name: "superhost", Kind: Binary},
	{Name: "profile_pic", Kind: Binary},
	{Name: "identity_verified", Kind: Binary},
	{Name: "host_communications", Kind: Numeric},
	{Name: "price", Kind: Numeric},
	{Name: "accommodates", Kind: Numeric},
	{Name: "bathrooms", Kind: Numeric},
	{Name: "bedrooms", Kind: Numeric},
	{Name: "beds", Kind: Numeric},
	{Name: "review_count", Kind: Numeric},
	{Name: "review_accuracy", Kind: Numeric},
	{Name: "review_cleanliness", Kind: Numeric},
	{Name: "review_checkin", Kind: Numeric},
	{Name: "review_communication", Kind: Numeric},
	{Name: "review_location", Kind: Numeric},
	{Name: "review_value", Kind: Numeric},
	{Name: "review_overall", Kind: Numeric},
}

// Schema is the ordered, immutable feature set shared by every year of a run.
// Cross-year comparison is only valid between datasets built from the same Schema.
type Schema struct {
	features []Feature
	index    map[string]int
	vocab    []string
}

// Canonical returns the schema built from the default amenity vocabulary.
func Canonical() *Schema {
	return WithAmenities(DefaultAmenityVocabulary)
}

// WithAmenities builds a schema whose trailing binary slots are derived from
// the given amenity vocabulary, one slot per term, in vocabulary order.
func WithAmenities(vocab []string) *Schema {
	features := make([]Feature, 0, len(base)+len(vocab))
	features = append(features, base...)
	for _, term := range vocab {
		features = append(features, Feature{Name: AmenitySlot(term), Kind: Binary})
	}

	index := make(map[string]int, len(features))
	for i, f := range features {
		index[f.Name] = i
	}

	return &Schema{
		features: features,
		index:    index,
		vocab:    append([]string(nil), vocab...),
	}
}

// AmenitySlot converts a vocabulary term to its feature slot name,
// e.g. "Free Parking" -> "free_parking".
func AmenitySlot(term string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(term)), " ", "_")
}

// Len returns the number of feature slots.
func (s *Schema) Len() int { return len(s.features) }

// Features returns a copy of the ordered feature slots.
func (s *Schema) Features() []Feature {
	return append([]Feature(nil), s.features...)
}

// Names returns the ordered feature names.
func (s *Schema) Names() []string {
	names := make([]string, len(s.features))
	for i, f := range s.features {
		names[i] = f.Name
	}
	return names
}

// Index returns the slot position of a feature name.
func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// AmenityVocabulary returns a copy of the vocabulary this schema was built from.
func (s *Schema) AmenityVocabulary() []string {
	return append([]string(nil), s.vocab...)
}
