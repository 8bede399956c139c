package models

import "time"

// Job status constants (§3 Job invariants).
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Reason enumeration for a screening request (§6).
const (
	ReasonClientOnboarding           = "Client Onboarding"
	ReasonClaimPayment               = "Claim Payment"
	ReasonBusinessPartnerPayment     = "Business Partner Payment"
	ReasonBusinessPartnerDueDiligence = "Business Partner Due Diligence"
	ReasonPeriodicReScreen           = "Periodic Re-Screen"
	ReasonAdHocComplianceReview      = "Ad-Hoc Compliance Review"
)

// ValidReasons is the fixed set a submit request's reason_for_check must be in.
var ValidReasons = map[string]bool{
	ReasonClientOnboarding:            true,
	ReasonClaimPayment:                true,
	ReasonBusinessPartnerPayment:      true,
	ReasonBusinessPartnerDueDiligence: true,
	ReasonPeriodicReScreen:            true,
	ReasonAdHocComplianceReview:       true,
}

// ScreeningInput is the normalized input to EKD/Matcher, carried on a Job.
type ScreeningInput struct {
	Name       string `json:"name"`
	DOB        string `json:"dob,omitempty"`
	EntityType string `json:"entity_type"`
}

// Job is a unit of screening work in the Job Queue (§3, §4.3).
type Job struct {
	JobID             string    `json:"job_id"`
	Fingerprint       string    `json:"fingerprint"`
	Name              string    `json:"name"`
	DOB               string    `json:"dob,omitempty"`
	EntityType        string    `json:"entity_type"`
	Requestor         string    `json:"requestor"`
	Reason            string    `json:"reason"`
	BusinessReference string    `json:"business_reference"`
	SearchBackend     string    `json:"search_backend,omitempty"`
	RefreshRunID      string    `json:"refresh_run_id,omitempty"`
	ForceRescreen     bool      `json:"force_rescreen"`

	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`

	// InflightFingerprint equals Fingerprint while Status is pending or
	// running, and is unset once the job reaches a terminal status. A unique
	// index on this field enforces at-most-one in-flight job per fingerprint
	// (§4.3); unset values (SurrealDB NONE) never collide under a unique
	// index, so terminal jobs don't hold the slot.
	InflightFingerprint string `json:"inflight_fingerprint,omitempty"`
}

// EnqueueOutcome is the result variant returned by JobQueue.Enqueue (§4.3).
type EnqueueOutcome struct {
	Outcome string // "reused" | "already_pending" | "queued" | "error"
	JobID   string
	Error   string
}

const (
	EnqueueReused         = "reused"
	EnqueueAlreadyPending = "already_pending"
	EnqueueQueued         = "queued"
	EnqueueError          = "error"
)

// JobEvent is broadcast over the job-event WebSocket hub on every transition.
type JobEvent struct {
	Type      string    `json:"type"` // "job_queued", "job_started", "job_completed", "job_failed"
	Job       *Job      `json:"job"`
	Timestamp time.Time `json:"timestamp"`
	QueueSize int       `json:"queue_size"`
}
