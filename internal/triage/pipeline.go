package triage

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/warden/internal/llm"
	"github.com/linnemanlabs/warden/internal/ticket"
	"github.com/linnemanlabs/warden/internal/visual"
)

// VisualDiagnoser is the slice of the visual sub-service the pipeline uses.
type VisualDiagnoser interface {
	Diagnose(ctx context.Context, ticketID int, ticketText string) (*visual.Result, error)
}

// Hooks are optional metric callbacks shared by the pipeline and service;
// nil fields are skipped.
type Hooks struct {
	OnParse               func(mode string)
	OnCollaboratorFailure func(name string)
	OnComplete            func(status string, seconds float64)
	OnDelegated           func()
}

func (h Hooks) parse(mode string) {
	if h.OnParse != nil {
		h.OnParse(mode)
	}
}

func (h Hooks) collaboratorFailure(name string) {
	if h.OnCollaboratorFailure != nil {
		h.OnCollaboratorFailure(name)
	}
}

func (h Hooks) complete(status string, seconds float64) {
	if h.OnComplete != nil {
		h.OnComplete(status, seconds)
	}
}

func (h Hooks) delegated() {
	if h.OnDelegated != nil {
		h.OnDelegated()
	}
}

// Pipeline turns raw ticket text into a Diagnosis: one LLM pass with
// optional retrieval context, a tolerant parse of the structured contract,
// and an optional visual escalation.
type Pipeline struct {
	provider  llm.Provider
	retriever llm.Retriever
	visual    VisualDiagnoser
	hooks     Hooks
	logger    log.Logger
}

// NewPipeline builds a Pipeline. retriever and vis may be nil, in which
// case retrieval context and visual escalation are skipped.
func NewPipeline(provider llm.Provider, retriever llm.Retriever, vis VisualDiagnoser, hooks Hooks, logger log.Logger) *Pipeline {
	if logger == nil {
		logger = log.Nop()
	}
	return &Pipeline{
		provider:  provider,
		retriever: retriever,
		visual:    vis,
		hooks:     hooks,
		logger:    logger,
	}
}

// Run diagnoses one ticket. The only fatal failure is the LLM pass itself
// (or a structured answer missing its diagnosis); everything downstream
// degrades.
func (p *Pipeline) Run(ctx context.Context, ticketID int, ticketText string) (*Diagnosis, error) {
	raw, err := p.provider.Diagnose(ctx, ticketText, p.retriever)
	if err != nil {
		return nil, &DiagnosisError{Err: err}
	}

	diag, err := p.parse(ctx, ticketID, raw)
	if err != nil {
		return nil, err
	}
	p.hooks.parse(diag.ParseMode)

	if diag.ParseMode == ParseJSON && diag.RequiresVisual {
		p.escalateVisual(ctx, ticketID, ticketText, diag)
	}

	return diag, nil
}

// parse applies the structured contract, falling back to the raw model
// output when the answer is not JSON at all. A JSON answer without a
// diagnosis is an error: the model understood the contract and still gave
// us nothing to write.
func (p *Pipeline) parse(ctx context.Context, ticketID int, raw string) (*Diagnosis, error) {
	stripped := llm.StripFences(raw)

	var wire diagnosisWire
	if err := json.Unmarshal([]byte(stripped), &wire); err != nil {
		text := strings.TrimSpace(raw)
		if text == "" {
			return nil, &DiagnosisError{Err: ErrEmptyDiagnosis}
		}
		p.logger.Warn(ctx, "diagnosis is not JSON, using raw output", "ticket_id", ticketID)
		return &Diagnosis{
			TypeID:      ticket.TypeUnknown,
			Text:        text,
			Criticality: defaultCriticality,
			ParseMode:   ParseRaw,
		}, nil
	}

	if strings.TrimSpace(wire.Diagnosis) == "" {
		return nil, &DiagnosisError{Err: ErrEmptyDiagnosis}
	}

	criticality := defaultCriticality
	if wire.Criticality != nil {
		criticality = *wire.Criticality
	}

	return &Diagnosis{
		TypeID:         ticket.TypeID(wire.TypeID),
		Text:           strings.TrimSpace(wire.Diagnosis),
		RequiresVisual: wire.RequiresVisual,
		Criticality:    criticality,
		SecurityAlert:  wire.SecurityAlert,
		ParseMode:      ParseJSON,
	}, nil
}

// escalateVisual hands the ticket to the visual sub-service and, on
// success, lets its diagnosis supersede the text one. Failures keep the
// text diagnosis.
func (p *Pipeline) escalateVisual(ctx context.Context, ticketID int, ticketText string, diag *Diagnosis) {
	if p.visual == nil {
		return
	}

	res, err := p.visual.Diagnose(ctx, ticketID, ticketText)
	if err != nil {
		p.hooks.collaboratorFailure("visual")
		p.logger.Warn(ctx, "visual escalation failed, keeping text diagnosis",
			"ticket_id", ticketID, "error", err.Error())
		return
	}

	diag.Text = res.Diagnosis
	if res.TypeID.Valid() {
		diag.TypeID = res.TypeID
	}
	diag.VisualUsed = true
	p.logger.Info(ctx, "visual diagnosis applied",
		"ticket_id", ticketID,
		"type_id", int(diag.TypeID),
		"processing_time_ms", res.ProcessingTimeMS,
	)
}
