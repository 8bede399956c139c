package models

import "time"

// RefreshRun records one Refresh Coordinator execution (§3, §4.7).
type RefreshRun struct {
	RunID               string    `json:"run_id"`
	RanAt               time.Time `json:"ran_at"`
	UKHash              string    `json:"uk_hash"`
	PrevUKHash          string    `json:"prev_uk_hash,omitempty"`
	UKRowCount          int       `json:"uk_row_count"`
	DeltaAdded          int       `json:"delta_added"`
	DeltaRemoved        int       `json:"delta_removed"`
	DeltaChanged        int       `json:"delta_changed"`
	CandidateCount      int       `json:"candidate_count"`
	QueuedCount         int       `json:"queued_count"`
	ReusedCount         int       `json:"reused_count"`
	AlreadyPendingCount int       `json:"already_pending_count"`
	FailedCount         int       `json:"failed_count"`
}

// WatchlistRow is one row of a watchlist snapshot consulted by the Matcher
// and by the Refresh Coordinator's delta computation.
type WatchlistRow struct {
	RowID      string `json:"row_id"`
	Name       string `json:"name"`
	EntityType string `json:"entity_type"` // "Person" | "Organization"
	DOB        string `json:"dob,omitempty"`
	Regime     string `json:"regime"` // UN, OFAC, HM Treasury, EU Council, PEP
	IsUK       bool   `json:"is_uk"`
	IsPEP      bool   `json:"is_pep"`
	Position   string `json:"position,omitempty"`
	Topics     []string `json:"topics,omitempty"`
	Revision   string `json:"revision,omitempty"` // content hash used to detect "changed" rows
}

// WatchlistSnapshot is a read handle over the current watchlist, passed to
// the Matcher. Construction/ingestion of a snapshot is out of scope (§1).
type WatchlistSnapshot struct {
	Sanctions []WatchlistRow
	PEPs      []WatchlistRow
}
