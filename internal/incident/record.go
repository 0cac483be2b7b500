// Package incident handles the deep-analysis path for tickets classified
// as incidents. The synchronous triage run delegates the ticket here; a
// bounded worker pool then correlates logs, builds the final report, and
// writes it back to the ticket system.
package incident

import (
	"time"
)

// Status tracks an enrichment record through its lifecycle.
type Status string

const (
	// StatusPending means the record was delegated but not yet processed.
	StatusPending Status = "pending"
	// StatusCompleted means the enrichment report was written back.
	StatusCompleted Status = "completed"
	// StatusFailed means the enrichment ran but the write-back failed.
	StatusFailed Status = "failed"
)

// Record is the audit trail for one delegated incident enrichment.
type Record struct {
	ID           string `json:"id"`
	TicketID     int    `json:"ticket_id"`
	TicketNumber string `json:"ticket_number,omitempty"`
	Title        string `json:"title"`
	TicketText   string `json:"ticket_text"`

	// Entity fields come from the LLM extraction pass; Entity defaults to
	// "No identificado" when extraction fails or is inconclusive.
	// Confidence is the extraction's 0.0-1.0 self-score.
	Entity     string  `json:"entity"`
	Contact    string  `json:"contact,omitempty"`
	Email      string  `json:"email,omitempty"`
	Problem    string  `json:"problem,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`

	InitialDiagnosis string `json:"initial_diagnosis,omitempty"`

	Status    Status `json:"status"`
	LogsFound int    `json:"logs_found"`

	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at,omitzero"`
}
