package triage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/linnemanlabs/warden/internal/ticket"
)

// ErrNoArticle means no usable customer article was found on the ticket.
var ErrNoArticle = errors.New("triage: no usable article in ticket")

// ErrEmptyDiagnosis means the model answered but produced no diagnosis.
var ErrEmptyDiagnosis = errors.New("triage: model returned an empty diagnosis")

// DiagnosisError means the LLM pass failed or returned an unusable result.
type DiagnosisError struct {
	Err error
}

func (e *DiagnosisError) Error() string { return fmt.Sprintf("triage: diagnosis failed: %v", e.Err) }
func (e *DiagnosisError) Unwrap() error { return e.Err }

// CollaboratorError marks a failed call to an optional sub-service. These
// never fail a run; they degrade it.
type CollaboratorError struct {
	Name string
	Err  error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("triage: collaborator %s: %v", e.Name, e.Err)
}
func (e *CollaboratorError) Unwrap() error { return e.Err }

// Parse modes for the diagnosis output.
const (
	ParseJSON = "json"
	ParseRaw  = "raw"
)

// defaultCriticality applies when the model omits the score.
const defaultCriticality = 5

// Diagnosis is the usable result of the LLM diagnosis pass.
type Diagnosis struct {
	TypeID         ticket.TypeID
	Text           string
	RequiresVisual bool
	Criticality    int
	SecurityAlert  bool

	// ParseMode records whether the structured contract parsed (json) or
	// the raw model output was used as-is (raw).
	ParseMode  string
	VisualUsed bool
}

// Emergency reports whether the diagnosis demands immediate attention.
func (d *Diagnosis) Emergency() bool {
	return d.SecurityAlert || d.Criticality >= 9
}

// Outcome summarizes one completed triage run.
type Outcome struct {
	RunID    string        `json:"run_id"`
	TicketID int           `json:"ticket_id"`
	TypeID   ticket.TypeID `json:"type_id"`

	Diagnosis     string `json:"diagnosis"`
	Subject       string `json:"subject"`
	ParseMode     string `json:"parse_mode"`
	VisualUsed    bool   `json:"visual_used,omitempty"`
	SecurityAlert bool   `json:"security_alert,omitempty"`
	Criticality   int    `json:"criticality"`

	// Delegated means an incident enricher owns the write-back and this
	// run wrote nothing itself.
	Delegated    bool   `json:"delegated,omitempty"`
	EnrichmentID string `json:"enrichment_id,omitempty"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	Duration    float64   `json:"duration_seconds"`
}

// flexInt tolerates backends and models that emit numbers as strings.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("flexInt: %q is not a number", s)
		}
		*f = flexInt(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

// diagnosisWire mirrors the JSON contract the diagnosis prompt demands.
type diagnosisWire struct {
	TypeID         flexInt `json:"type_id"`
	Diagnosis      string  `json:"diagnostico"`
	RequiresVisual bool    `json:"requires_visual"`
	Criticality    *int    `json:"criticality_score"`
	SecurityAlert  bool    `json:"is_security_alert"`
}
