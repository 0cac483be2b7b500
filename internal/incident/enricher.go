package incident

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/warden/internal/llm"
	"github.com/linnemanlabs/warden/internal/logcorr"
	"github.com/linnemanlabs/warden/internal/ticket"
	"github.com/linnemanlabs/warden/internal/znuny"
)

// unknownEntity is what the report shows when entity extraction fails or
// comes back inconclusive.
const unknownEntity = "No identificado"

// SyncStatus describes what the synchronous triage run should do after
// offering a ticket to the enricher.
type SyncStatus string

const (
	// SyncNotApplicable means the ticket is not an incident; the caller
	// proceeds with its normal write-back.
	SyncNotApplicable SyncStatus = "not_applicable"
	// SyncDelegated means the enricher owns the write-back; the caller
	// must not write.
	SyncDelegated SyncStatus = "delegated"
	// SyncFailed means delegation was attempted but could not be queued;
	// the caller falls back to its normal write-back.
	SyncFailed SyncStatus = "failed"
)

// SyncOutcome is the enricher's answer to MaybeEnrich.
type SyncOutcome struct {
	Status   SyncStatus
	RecordID string
	Err      error
}

// Backend is the slice of the ticket system the enricher needs.
type Backend interface {
	GetMetadata(ctx context.Context, ticketID int, session string) (*ticket.Metadata, error)
	UpdateTicket(ctx context.Context, r znuny.UpdateRequest) error
}

// EntityExtractor produces the affected-entity JSON for a ticket.
type EntityExtractor interface {
	ExtractEntity(ctx context.Context, meta *ticket.Metadata, ticketText string) (string, error)
}

// Analyzer correlates an incident against external logs.
type Analyzer interface {
	Analyze(ctx context.Context, r *logcorr.Request) (*logcorr.Result, error)
}

// Hooks are optional metric callbacks; nil fields are skipped.
type Hooks struct {
	OnDelegated func()
	OnQueueFull func()
	OnFinished  func(outcome string)
}

func (h Hooks) delegated() {
	if h.OnDelegated != nil {
		h.OnDelegated()
	}
}

func (h Hooks) queueFull() {
	if h.OnQueueFull != nil {
		h.OnQueueFull()
	}
}

func (h Hooks) finished(outcome string) {
	if h.OnFinished != nil {
		h.OnFinished(outcome)
	}
}

// Config assembles an Enricher.
type Config struct {
	Backend   Backend
	Extractor EntityExtractor
	Analyzer  Analyzer
	Store     Store
	Pool      *Pool
	Logger    log.Logger
	Hooks     Hooks

	// Ticket defaults applied on the enrichment write-back.
	QueueID    int
	PriorityID int
	StateID    int
}

// Enricher owns the incident deep-analysis path: entity extraction, log
// correlation, report rendering, and the final ticket write.
type Enricher struct {
	backend   Backend
	extractor EntityExtractor
	analyzer  Analyzer
	store     Store
	pool      *Pool
	hooks     Hooks
	logger    log.Logger

	queueID    int
	priorityID int
	stateID    int
}

// New builds an Enricher from cfg.
func New(cfg Config) *Enricher {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Enricher{
		backend:    cfg.Backend,
		extractor:  cfg.Extractor,
		analyzer:   cfg.Analyzer,
		store:      cfg.Store,
		pool:       cfg.Pool,
		hooks:      cfg.Hooks,
		logger:     logger,
		queueID:    cfg.QueueID,
		priorityID: cfg.PriorityID,
		stateID:    cfg.StateID,
	}
}

// MaybeEnrich offers a diagnosed ticket to the incident path. Non-incident
// tickets come back SyncNotApplicable untouched. For incidents it extracts
// the affected entity, records the delegation, and queues the background
// task; the ticket write then belongs to the enricher.
func (e *Enricher) MaybeEnrich(ctx context.Context, ticketID int, session string, typeID ticket.TypeID, ticketText, diagnosis string) SyncOutcome {
	if typeID != ticket.TypeIncident {
		return SyncOutcome{Status: SyncNotApplicable}
	}

	meta, err := e.backend.GetMetadata(ctx, ticketID, session)
	if err != nil {
		e.logger.Warn(ctx, "metadata fetch failed, keeping synchronous write",
			"ticket_id", ticketID, "error", err.Error())
		return SyncOutcome{Status: SyncFailed, Err: err}
	}

	ent := e.extractEntity(ctx, meta, ticketText)

	rec := &Record{
		ID:               ulid.Make().String(),
		TicketID:         ticketID,
		TicketNumber:     meta.TicketNumber,
		Title:            meta.Title,
		TicketText:       ticketText,
		Entity:           ent.Entity,
		Contact:          ent.Contact,
		Email:            ent.Email,
		Problem:          ent.Problem,
		Confidence:       float64(ent.Confidence),
		InitialDiagnosis: diagnosis,
		Status:           StatusPending,
		CreatedAt:        time.Now().UTC(),
	}

	if err := e.store.Put(ctx, rec); err != nil {
		e.logger.Error(ctx, err, "store enrichment record", "record_id", rec.ID)
	}

	task := func(taskCtx context.Context) {
		e.process(taskCtx, rec, session)
	}
	if err := e.pool.Submit(task); err != nil {
		e.hooks.queueFull()
		e.logger.Warn(ctx, "enrichment delegation rejected",
			"ticket_id", ticketID, "error", err.Error())
		return SyncOutcome{Status: SyncFailed, RecordID: rec.ID, Err: err}
	}

	e.hooks.delegated()
	e.logger.Info(ctx, "ticket delegated for incident enrichment",
		"ticket_id", ticketID, "record_id", rec.ID, "entity", rec.Entity)
	return SyncOutcome{Status: SyncDelegated, RecordID: rec.ID}
}

// entityInfo mirrors the extraction JSON contract. Confidence is a 0.0-1.0
// score per the prompt contract.
type entityInfo struct {
	Entity     string    `json:"entidad"`
	Contact    string    `json:"contacto"`
	Email      string    `json:"email"`
	Problem    string    `json:"problema_resumido"`
	Confidence flexFloat `json:"confianza"`
}

// flexFloat accepts a JSON number or a quoted number. A non-numeric value
// decodes to zero instead of erroring; a junk confidence must not discard
// the rest of the extraction.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexFloat(v)
	return nil
}

func (e *Enricher) extractEntity(ctx context.Context, meta *ticket.Metadata, ticketText string) entityInfo {
	fallback := entityInfo{Entity: unknownEntity}

	raw, err := e.extractor.ExtractEntity(ctx, meta, ticketText)
	if err != nil {
		e.logger.Warn(ctx, "entity extraction failed",
			"ticket_id", meta.TicketID, "error", err.Error())
		return fallback
	}

	var ent entityInfo
	if err := json.Unmarshal([]byte(llm.StripFences(raw)), &ent); err != nil {
		e.logger.Warn(ctx, "entity extraction returned non-JSON",
			"ticket_id", meta.TicketID, "error", err.Error())
		return fallback
	}
	if ent.Entity == "" {
		ent.Entity = unknownEntity
	}
	return ent
}

// process runs on a pool worker: correlate logs, render the report, write
// it back, and update the stored record.
func (e *Enricher) process(ctx context.Context, rec *Record, session string) {
	res, err := e.analyzer.Analyze(ctx, &logcorr.Request{
		TicketID:         strconv.Itoa(rec.TicketID),
		TicketNumber:     rec.TicketNumber,
		Title:            rec.Title,
		TicketText:       rec.TicketText,
		Entity:           rec.Entity,
		InitialDiagnosis: rec.InitialDiagnosis,
	})

	var subject, body, outcome string
	switch {
	case err != nil:
		e.logger.Warn(ctx, "log correlation unavailable",
			"ticket_id", rec.TicketID, "record_id", rec.ID, "error", err.Error())
		subject, body, outcome = subjectNoLogs, formatNoLogs(rec), "no_logs"
	case res.LogsFound == 0:
		subject, body, outcome = subjectNoLogs, formatNoLogs(rec), "no_logs"
	default:
		rec.LogsFound = res.LogsFound
		subject, body, outcome = subjectWithLogs, formatReport(rec, res), "report"
	}

	writeErr := e.backend.UpdateTicket(ctx, znuny.UpdateRequest{
		TicketID:   rec.TicketID,
		SessionID:  session,
		Title:      rec.Title,
		QueueID:    e.queueID,
		PriorityID: e.priorityID,
		StateID:    e.stateID,
		TypeID:     ticket.TypeIncident,
		Subject:    subject,
		Body:       processedByHeader + "\n\n" + body,
	})

	rec.CompletedAt = time.Now().UTC()
	if writeErr != nil {
		rec.Status = StatusFailed
		outcome = "write_failed"
		e.logger.Error(ctx, writeErr, "enrichment write-back failed",
			"ticket_id", rec.TicketID, "record_id", rec.ID)
	} else {
		rec.Status = StatusCompleted
		e.logger.Info(ctx, "enrichment written back",
			"ticket_id", rec.TicketID, "record_id", rec.ID,
			"logs_found", rec.LogsFound, "outcome", outcome)
	}

	if err := e.store.Put(ctx, rec); err != nil {
		e.logger.Error(ctx, err, "update enrichment record", "record_id", rec.ID)
	}

	e.hooks.finished(outcome)
}
