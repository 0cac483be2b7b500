package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/warden/internal/incident"
	"github.com/linnemanlabs/warden/internal/ticket"
	"github.com/linnemanlabs/warden/internal/znuny"
)

// processedByHeader opens every article body written by the synchronous
// path, so agents can tell automated diagnoses apart.
const processedByHeader = "[Procesado por: Warden AI]"

// criticalSubjectPrefix marks articles for security alerts and
// highest-criticality diagnoses.
const criticalSubjectPrefix = "[ALERTA CRÍTICA] "

var emergencyBanner = strings.Repeat("═", 55) + "\n" +
	"🚨 ATENCIÓN INMEDIATA REQUERIDA 🚨\n" +
	strings.Repeat("═", 55)

// Backend is the slice of the ticket system the service needs.
type Backend interface {
	GetTicket(ctx context.Context, ticketID int, session string) ([]ticket.Message, error)
	UpdateTicket(ctx context.Context, r znuny.UpdateRequest) error
}

// Sessions supplies authenticated backend sessions.
type Sessions interface {
	Get(ctx context.Context) (string, error)
	Invalidate()
}

// Delegator offers tickets to the incident enrichment path.
type Delegator interface {
	MaybeEnrich(ctx context.Context, ticketID int, session string, typeID ticket.TypeID, ticketText, diagnosis string) incident.SyncOutcome
}

// Notifier announces completed runs. Failures never fail the run.
type Notifier interface {
	Send(ctx context.Context, out *Outcome) error
}

// Defaults are the ticket fields applied when a webhook doesn't override
// them.
type Defaults struct {
	QueueID    int
	PriorityID int
	StateID    int
	Subject    string
}

// RunParams carries one webhook's worth of triage input. SessionID, when
// set, bypasses the session cache for this run only.
type RunParams struct {
	TicketID  int
	SessionID string

	Title        string
	CustomerUser string
	QueueID      int
	PriorityID   int
	StateID      int
	Subject      string
}

// Config assembles a Service.
type Config struct {
	Sessions  Sessions
	Backend   Backend
	Selector  *ticket.Selector
	Pipeline  *Pipeline
	Delegator Delegator
	Notifier  Notifier
	Hooks     Hooks
	Logger    log.Logger
	Defaults  Defaults
}

// Service is the business boundary for triage runs: one webhook in, one
// diagnosed ticket out (written directly or delegated to the enricher).
type Service struct {
	sessions  Sessions
	backend   Backend
	selector  *ticket.Selector
	pipeline  *Pipeline
	delegator Delegator
	notifier  Notifier
	hooks     Hooks
	logger    log.Logger
	defaults  Defaults
}

// NewService creates a triage service from cfg.
func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}
	selector := cfg.Selector
	if selector == nil {
		selector = ticket.NewSelector(nil)
	}
	return &Service{
		sessions:  cfg.Sessions,
		backend:   cfg.Backend,
		selector:  selector,
		pipeline:  cfg.Pipeline,
		delegator: cfg.Delegator,
		notifier:  cfg.Notifier,
		hooks:     cfg.Hooks,
		logger:    logger,
		defaults:  cfg.Defaults,
	}
}

// Process runs the full triage flow for one ticket.
func (s *Service) Process(ctx context.Context, p RunParams) (*Outcome, error) {
	start := time.Now().UTC()
	L := s.logger.With("ticket_id", p.TicketID)

	session := p.SessionID
	if session == "" {
		var err error
		if session, err = s.sessions.Get(ctx); err != nil {
			s.hooks.complete("auth_error", time.Since(start).Seconds())
			return nil, err
		}
	}

	msgs, err := s.backend.GetTicket(ctx, p.TicketID, session)
	if err != nil && p.SessionID == "" && isAuthFailure(err) {
		// The cached session may have been invalidated server-side
		// before its TTL ran out. Refresh once and retry.
		L.Warn(ctx, "ticket fetch rejected, refreshing session", "error", err.Error())
		s.sessions.Invalidate()
		if session, err = s.sessions.Get(ctx); err == nil {
			msgs, err = s.backend.GetTicket(ctx, p.TicketID, session)
		}
	}
	if err != nil {
		s.hooks.complete("fetch_error", time.Since(start).Seconds())
		return nil, err
	}

	msg, ok := s.selector.Select(msgs)
	if !ok {
		s.hooks.complete("no_article", time.Since(start).Seconds())
		return nil, ErrNoArticle
	}
	text := ticket.FormatText(msg)

	diag, err := s.pipeline.Run(ctx, p.TicketID, text)
	if err != nil {
		s.hooks.complete("diagnosis_error", time.Since(start).Seconds())
		return nil, err
	}

	out := &Outcome{
		RunID:         ulid.Make().String(),
		TicketID:      p.TicketID,
		TypeID:        diag.TypeID,
		Diagnosis:     diag.Text,
		ParseMode:     diag.ParseMode,
		VisualUsed:    diag.VisualUsed,
		SecurityAlert: diag.SecurityAlert,
		Criticality:   diag.Criticality,
		StartedAt:     start,
	}

	if s.delegator != nil {
		sync := s.delegator.MaybeEnrich(ctx, p.TicketID, session, diag.TypeID, text, diag.Text)
		switch sync.Status {
		case incident.SyncDelegated:
			out.Delegated = true
			out.EnrichmentID = sync.RecordID
			s.hooks.delegated()
			s.finish(ctx, L, out, "delegated")
			return out, nil
		case incident.SyncFailed:
			L.Warn(ctx, "incident delegation failed, writing diagnosis directly",
				"error", sync.Err.Error())
		}
	}

	subject := p.Subject
	if subject == "" {
		subject = s.defaults.Subject
	}
	body := processedByHeader + "\n\n"
	if diag.Emergency() {
		subject = criticalSubjectPrefix + subject
		body += emergencyBanner + "\n\n"
	}
	body += diag.Text
	out.Subject = subject

	upd := znuny.UpdateRequest{
		TicketID:     p.TicketID,
		SessionID:    session,
		Title:        p.Title,
		CustomerUser: p.CustomerUser,
		QueueID:      orDefault(p.QueueID, s.defaults.QueueID),
		PriorityID:   orDefault(p.PriorityID, s.defaults.PriorityID),
		StateID:      orDefault(p.StateID, s.defaults.StateID),
		Subject:      subject,
		Body:         body,
	}
	if upd.Title == "" {
		upd.Title = fmt.Sprintf("Ticket Update %d", p.TicketID)
	}
	if diag.TypeID.Valid() {
		upd.TypeID = diag.TypeID
	}

	if err := s.backend.UpdateTicket(ctx, upd); err != nil {
		s.hooks.complete("write_error", time.Since(start).Seconds())
		return nil, err
	}

	s.finish(ctx, L, out, "ok")
	return out, nil
}

func (s *Service) finish(ctx context.Context, L log.Logger, out *Outcome, status string) {
	out.CompletedAt = time.Now().UTC()
	out.Duration = out.CompletedAt.Sub(out.StartedAt).Seconds()
	s.hooks.complete(status, out.Duration)

	if s.notifier != nil {
		if err := s.notifier.Send(ctx, out); err != nil {
			s.hooks.collaboratorFailure("slack")
			L.Warn(ctx, "run notification failed", "error", err.Error())
		}
	}

	L.Info(ctx, "triage run complete",
		"run_id", out.RunID,
		"status", status,
		"type_id", int(out.TypeID),
		"parse_mode", out.ParseMode,
		"criticality", out.Criticality,
		"delegated", out.Delegated,
		"duration", out.Duration,
	)
}

// isAuthFailure reports whether a backend error means the session is no
// longer valid.
func isAuthFailure(err error) bool {
	var authErr *znuny.AuthError
	if errors.As(err, &authErr) {
		return true
	}
	var reqErr *znuny.RequestError
	return errors.As(err, &reqErr) && (reqErr.Status == 401 || reqErr.Status == 403)
}

func orDefault(v, def int) int {
	if v != 0 {
		return v
	}
	return def
}
