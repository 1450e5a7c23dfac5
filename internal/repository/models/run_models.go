package models

import "time"

// Run is one persisted pipeline execution: the serialized comparison table,
// the per-year data-quality counters, and the configuration that produced
// them, kept for auditing past analyses.
type Run struct {
	ID           string
	CreatedAt    time.Time
	Years        string // comma-separated, ascending
	ConfigJSON   string
	TableJSON    string
	CountersJSON string
}
