package triage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/linnemanlabs/warden/internal/incident"
	"github.com/linnemanlabs/warden/internal/ticket"
	"github.com/linnemanlabs/warden/internal/znuny"
)

type fakeSessions struct {
	id          string
	err         error
	gets        int
	invalidates int
}

func (s *fakeSessions) Get(context.Context) (string, error) {
	s.gets++
	if s.err != nil {
		return "", s.err
	}
	return s.id, nil
}

func (s *fakeSessions) Invalidate() { s.invalidates++ }

type fakeBackend struct {
	msgs      []ticket.Message
	getErr    error
	getErrs   int // fail this many GetTicket calls, then succeed
	getCalls  int
	updates   []znuny.UpdateRequest
	updateErr error
}

func (b *fakeBackend) GetTicket(context.Context, int, string) ([]ticket.Message, error) {
	b.getCalls++
	if b.getErr != nil && (b.getErrs == 0 || b.getCalls <= b.getErrs) {
		return nil, b.getErr
	}
	return b.msgs, nil
}

func (b *fakeBackend) UpdateTicket(_ context.Context, r znuny.UpdateRequest) error {
	b.updates = append(b.updates, r)
	return b.updateErr
}

type fakeDelegator struct {
	outcome incident.SyncOutcome
	calls   int
	typeID  ticket.TypeID
	session string
}

func (d *fakeDelegator) MaybeEnrich(_ context.Context, _ int, session string, typeID ticket.TypeID, _, _ string) incident.SyncOutcome {
	d.calls++
	d.typeID = typeID
	d.session = session
	if d.outcome.Status == "" {
		return incident.SyncOutcome{Status: incident.SyncNotApplicable}
	}
	return d.outcome
}

type fakeNotifier struct {
	sent []*Outcome
	err  error
}

func (n *fakeNotifier) Send(_ context.Context, out *Outcome) error {
	n.sent = append(n.sent, out)
	return n.err
}

func customerMessages() []ticket.Message {
	return []ticket.Message{
		{ID: 1, Subject: "No puedo entrar", Body: "El sistema no responde desde las 9.", Sender: ticket.SenderCustomer, CreatedAt: time.Now()},
	}
}

type serviceFixture struct {
	sessions  *fakeSessions
	backend   *fakeBackend
	delegator *fakeDelegator
	notifier  *fakeNotifier
	svc       *Service
}

func newFixture(provider *fakeProvider, delegator *fakeDelegator) *serviceFixture {
	f := &serviceFixture{
		sessions:  &fakeSessions{id: "sess-1"},
		backend:   &fakeBackend{msgs: customerMessages()},
		delegator: delegator,
		notifier:  &fakeNotifier{},
	}
	f.svc = NewService(Config{
		Sessions:  f.sessions,
		Backend:   f.backend,
		Pipeline:  NewPipeline(provider, nil, nil, Hooks{}, nil),
		Delegator: delegator,
		Notifier:  f.notifier,
		Defaults:  Defaults{QueueID: 1, PriorityID: 3, StateID: 4, Subject: "Automatic Diagnosis (AI)"},
	})
	return f
}

func TestProcess_RequestWritesOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(&fakeProvider{
		out: `{"type_id":14,"diagnostico":"reinstalar el cliente VPN","criticality_score":4}`,
	}, &fakeDelegator{})

	out, err := f.svc.Process(context.Background(), RunParams{TicketID: 42})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.Delegated {
		t.Error("request must not be delegated")
	}
	if len(f.backend.updates) != 1 {
		t.Fatalf("updates = %d, want exactly 1", len(f.backend.updates))
	}

	u := f.backend.updates[0]
	if u.TicketID != 42 || u.SessionID != "sess-1" {
		t.Errorf("update = %+v", u)
	}
	if u.TypeID != ticket.TypeRequest {
		t.Errorf("TypeID = %d, want 14", u.TypeID)
	}
	if u.QueueID != 1 || u.PriorityID != 3 || u.StateID != 4 {
		t.Errorf("defaults not applied: %+v", u)
	}
	if u.Subject != "Automatic Diagnosis (AI)" {
		t.Errorf("Subject = %q", u.Subject)
	}
	if u.Title != "Ticket Update 42" {
		t.Errorf("Title = %q", u.Title)
	}
	if !strings.HasPrefix(u.Body, "[Procesado por: Warden AI]") {
		t.Errorf("body missing processed-by header: %q", u.Body)
	}
	if !strings.Contains(u.Body, "reinstalar el cliente VPN") {
		t.Errorf("body missing diagnosis: %q", u.Body)
	}
	if len(f.notifier.sent) != 1 {
		t.Errorf("notifications = %d, want 1", len(f.notifier.sent))
	}
}

func TestProcess_IncidentDelegatesWithoutWriting(t *testing.T) {
	t.Parallel()

	delegator := &fakeDelegator{outcome: incident.SyncOutcome{Status: incident.SyncDelegated, RecordID: "rec-1"}}
	f := newFixture(&fakeProvider{
		out: `{"type_id":10,"diagnostico":"servidor caído","criticality_score":7}`,
	}, delegator)

	out, err := f.svc.Process(context.Background(), RunParams{TicketID: 42})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !out.Delegated {
		t.Error("incident run should report delegated")
	}
	if out.EnrichmentID != "rec-1" {
		t.Errorf("EnrichmentID = %q", out.EnrichmentID)
	}
	if len(f.backend.updates) != 0 {
		t.Fatalf("delegated run must not write, got %d updates", len(f.backend.updates))
	}
	if delegator.calls != 1 || delegator.typeID != ticket.TypeIncident || delegator.session != "sess-1" {
		t.Errorf("delegator saw calls=%d typeID=%d session=%q", delegator.calls, delegator.typeID, delegator.session)
	}
	if len(f.notifier.sent) != 1 {
		t.Errorf("notifications = %d, want 1", len(f.notifier.sent))
	}
}

func TestProcess_DelegationFailureFallsBackToWrite(t *testing.T) {
	t.Parallel()

	delegator := &fakeDelegator{outcome: incident.SyncOutcome{Status: incident.SyncFailed, Err: incident.ErrQueueFull}}
	f := newFixture(&fakeProvider{
		out: `{"type_id":10,"diagnostico":"servidor caído"}`,
	}, delegator)

	out, err := f.svc.Process(context.Background(), RunParams{TicketID: 42})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.Delegated {
		t.Error("failed delegation must not report delegated")
	}
	if len(f.backend.updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(f.backend.updates))
	}
}

func TestProcess_EmergencyDecoration(t *testing.T) {
	t.Parallel()

	for name, out := range map[string]string{
		"criticality 9":  `{"type_id":14,"diagnostico":"acceso no autorizado","criticality_score":9}`,
		"security alert": `{"type_id":14,"diagnostico":"acceso no autorizado","criticality_score":6,"is_security_alert":true}`,
	} {
		f := newFixture(&fakeProvider{out: out}, &fakeDelegator{})

		res, err := f.svc.Process(context.Background(), RunParams{TicketID: 42})
		if err != nil {
			t.Fatalf("%s: Process: %v", name, err)
		}
		if !strings.HasPrefix(res.Subject, "[ALERTA CRÍTICA] ") {
			t.Errorf("%s: Subject = %q, want critical prefix", name, res.Subject)
		}
		u := f.backend.updates[0]
		if !strings.Contains(u.Body, "🚨 ATENCIÓN INMEDIATA REQUERIDA 🚨") {
			t.Errorf("%s: body missing emergency banner: %q", name, u.Body)
		}
		if !strings.HasPrefix(u.Body, "[Procesado por: Warden AI]") {
			t.Errorf("%s: banner must come after the processed-by header", name)
		}
	}
}

func TestProcess_SessionOverrideSkipsCache(t *testing.T) {
	t.Parallel()

	f := newFixture(&fakeProvider{out: `{"type_id":14,"diagnostico":"ok"}`}, &fakeDelegator{})

	_, err := f.svc.Process(context.Background(), RunParams{TicketID: 42, SessionID: "webhook-sess"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if f.sessions.gets != 0 {
		t.Errorf("session cache Get calls = %d, want 0", f.sessions.gets)
	}
	if f.backend.updates[0].SessionID != "webhook-sess" {
		t.Errorf("SessionID = %q, want webhook-sess", f.backend.updates[0].SessionID)
	}
}

func TestProcess_StaleSessionRetriesOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(&fakeProvider{out: `{"type_id":14,"diagnostico":"ok"}`}, &fakeDelegator{})
	f.backend.getErr = &znuny.RequestError{Op: "get ticket", Status: 401, Err: errors.New("session expired")}
	f.backend.getErrs = 1

	_, err := f.svc.Process(context.Background(), RunParams{TicketID: 42})
	if err != nil {
		t.Fatalf("Process after retry: %v", err)
	}
	if f.sessions.invalidates != 1 {
		t.Errorf("invalidates = %d, want 1", f.sessions.invalidates)
	}
	if f.backend.getCalls != 2 {
		t.Errorf("GetTicket calls = %d, want 2", f.backend.getCalls)
	}
}

func TestProcess_NoArticle(t *testing.T) {
	t.Parallel()

	f := newFixture(&fakeProvider{out: `{"type_id":14,"diagnostico":"ok"}`}, &fakeDelegator{})
	f.backend.msgs = []ticket.Message{
		{ID: 1, Subject: "New Ticket created", Body: "Your ticket has been registered.", Sender: ticket.SenderSystem},
	}

	_, err := f.svc.Process(context.Background(), RunParams{TicketID: 42})
	if !errors.Is(err, ErrNoArticle) {
		t.Fatalf("err = %v, want ErrNoArticle", err)
	}
	if len(f.backend.updates) != 0 {
		t.Error("no-article run must not write")
	}
}

func TestProcess_WriteErrorPropagates(t *testing.T) {
	t.Parallel()

	f := newFixture(&fakeProvider{out: `{"type_id":14,"diagnostico":"ok"}`}, &fakeDelegator{})
	f.backend.updateErr = &znuny.WriteError{TicketID: 42, Err: errors.New("503")}

	_, err := f.svc.Process(context.Background(), RunParams{TicketID: 42})
	var wErr *znuny.WriteError
	if !errors.As(err, &wErr) {
		t.Fatalf("err = %v, want WriteError", err)
	}
}

func TestProcess_NotifierFailureNonFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(&fakeProvider{out: `{"type_id":14,"diagnostico":"ok"}`}, &fakeDelegator{})
	f.notifier.err = errors.New("slack down")

	if _, err := f.svc.Process(context.Background(), RunParams{TicketID: 42}); err != nil {
		t.Fatalf("notifier failure must not fail the run: %v", err)
	}
}

func TestProcess_ParamOverrides(t *testing.T) {
	t.Parallel()

	f := newFixture(&fakeProvider{out: `{"type_id":14,"diagnostico":"ok"}`}, &fakeDelegator{})

	_, err := f.svc.Process(context.Background(), RunParams{
		TicketID:     42,
		Title:        "Impresora rota",
		CustomerUser: "peter@initech.example",
		QueueID:      7,
		PriorityID:   2,
		StateID:      1,
		Subject:      "Diagnóstico manual",
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	u := f.backend.updates[0]
	if u.Title != "Impresora rota" || u.CustomerUser != "peter@initech.example" {
		t.Errorf("overrides not applied: %+v", u)
	}
	if u.QueueID != 7 || u.PriorityID != 2 || u.StateID != 1 {
		t.Errorf("numeric overrides not applied: %+v", u)
	}
	if u.Subject != "Diagnóstico manual" {
		t.Errorf("Subject = %q", u.Subject)
	}
}
