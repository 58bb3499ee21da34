package ingest

import (
	"time"

	"lead-engine/internal/rules"
)

// RowStatus classifies one row's outcome. Every input row appears in the
// report exactly once with exactly one status.
type RowStatus string

const (
	StatusAccepted  RowStatus = "accepted"
	StatusRejected  RowStatus = "rejected"
	StatusDuplicate RowStatus = "duplicate"
)

// RowOutcome is the per-row entry of an ingestion report. Row N's outcome
// is reported at position N.
type RowOutcome struct {
	Row      int                  `json:"row"`
	Status   RowStatus            `json:"status"`
	LeadID   string               `json:"leadId,omitempty"`
	Failures []rules.FieldFailure `json:"failures,omitempty"`
	// DuplicateField/DuplicateValue identify the colliding unique field
	// for duplicate rows.
	DuplicateField string `json:"duplicateField,omitempty"`
	DuplicateValue string `json:"duplicateValue,omitempty"`
}

// Report is the complete picture of one batch run.
type Report struct {
	BranchID   string        `json:"branchId"`
	Rows       []RowOutcome  `json:"rows"`
	Accepted   int           `json:"accepted"`
	Rejected   int           `json:"rejected"`
	Duplicates int           `json:"duplicates"`
	StartedAt  time.Time     `json:"startedAt"`
	Duration   time.Duration `json:"duration"`
}

func (r *Report) append(outcome RowOutcome) {
	r.Rows = append(r.Rows, outcome)
	switch outcome.Status {
	case StatusAccepted:
		r.Accepted++
	case StatusRejected:
		r.Rejected++
	case StatusDuplicate:
		r.Duplicates++
	}
}
