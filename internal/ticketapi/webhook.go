package ticketapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/linnemanlabs/warden/internal/triage"
	"github.com/linnemanlabs/warden/internal/znuny"
)

// webhookPayload tolerates the shapes the ticket system's event modules
// emit: the ticket ID may sit at the top level, under Event, or under
// Ticket, as a number or a quoted string.
type webhookPayload struct {
	TicketID json.RawMessage `json:"ticket_id"`

	Event struct {
		TicketID json.RawMessage `json:"TicketID"`
	} `json:"Event"`
	Ticket struct {
		TicketID json.RawMessage `json:"TicketID"`
	} `json:"Ticket"`

	SessionID string `json:"SessionID"`

	Title        string `json:"titulo"`
	CustomerUser string `json:"usuario"`
	QueueID      int    `json:"queue_id"`
	PriorityID   int    `json:"priority_id"`
	StateID      int    `json:"state_id"`
	Subject      string `json:"subject"`
}

func (p *webhookPayload) ticketID() (int, bool) {
	for _, raw := range [][]byte{p.TicketID, p.Event.TicketID, p.Ticket.TicketID} {
		if id, ok := parseID(raw); ok {
			return id, true
		}
	}
	return 0, false
}

func parseID(raw []byte) (int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
	}
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (a *API) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var p webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	ticketID, ok := p.ticketID()
	if !ok {
		http.Error(w, `{"error":"missing ticket id"}`, http.StatusBadRequest)
		return
	}

	a.logger.Info(r.Context(), "webhook received",
		"ticket_id", ticketID, "session_override", p.SessionID != "")

	out, err := a.svc.Process(r.Context(), triage.RunParams{
		TicketID:     ticketID,
		SessionID:    p.SessionID,
		Title:        p.Title,
		CustomerUser: p.CustomerUser,
		QueueID:      p.QueueID,
		PriorityID:   p.PriorityID,
		StateID:      p.StateID,
		Subject:      p.Subject,
	})
	if err != nil {
		a.writeProcessError(w, r, ticketID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"run":    out,
	})
}

func (a *API) writeProcessError(w http.ResponseWriter, r *http.Request, ticketID int, err error) {
	a.logger.Error(r.Context(), err, "triage run failed", "ticket_id", ticketID)

	var authErr *znuny.AuthError
	switch {
	case errors.As(err, &authErr):
		http.Error(w, `{"error":"backend authentication failed"}`, http.StatusBadGateway)
	case errors.Is(err, triage.ErrNoArticle):
		http.Error(w, `{"error":"no usable article in ticket"}`, http.StatusUnprocessableEntity)
	default:
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	}
}
