// Package ticketapi exposes the HTTP surface: the webhook that triggers a
// triage run and a read endpoint for incident enrichment records.
package ticketapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
	"github.com/linnemanlabs/warden/internal/incident"
	"github.com/linnemanlabs/warden/internal/triage"
)

// TriageService defines the business operations ticketapi needs.
type TriageService interface {
	Process(ctx context.Context, p triage.RunParams) (*triage.Outcome, error)
}

// IncidentReader exposes enrichment records for inspection.
type IncidentReader interface {
	Get(ctx context.Context, id string) (*incident.Record, bool, error)
	GetByTicket(ctx context.Context, ticketID int) (*incident.Record, bool, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger    log.Logger
	svc       TriageService
	incidents IncidentReader
}

// New creates a new API handler. incidents may be nil when no record store
// is configured; the read endpoint then answers 404.
func New(logger log.Logger, svc TriageService, incidents IncidentReader) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("triage service is required"))
	}
	return &API{
		logger:    logger,
		svc:       svc,
		incidents: incidents,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhook", a.handleWebhook)
		r.Get("/incidents/{ticketID}", a.handleGetIncident)
		r.Get("/incidents/records/{recordID}", a.handleGetRecord)
	})
}

// handleGetRecord serves one enrichment record by its ID, as returned in the
// webhook response's enrichment_id field.
func (a *API) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	recordID := chi.URLParam(r, "recordID")

	if a.incidents == nil {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	rec, ok, err := a.incidents.Get(r.Context(), recordID)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get enrichment record", "record_id", recordID)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("warden.incident.status", string(rec.Status)),
	)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rec)
}

func (a *API) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	ticketID, err := strconv.Atoi(chi.URLParam(r, "ticketID"))
	if err != nil {
		http.Error(w, `{"error":"invalid ticket id"}`, http.StatusBadRequest)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.Int("warden.ticket.id", ticketID))

	if a.incidents == nil {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	rec, ok, err := a.incidents.GetByTicket(r.Context(), ticketID)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get enrichment record", "ticket_id", ticketID)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	span.SetAttributes(attribute.String("warden.incident.status", string(rec.Status)))

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rec)
}
