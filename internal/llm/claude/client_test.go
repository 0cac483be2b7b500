package claude

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/linnemanlabs/warden/internal/ticket"
)

type mockRetriever struct {
	snippets string
	err      error
}

func (m *mockRetriever) Name() string { return "test-store" }
func (m *mockRetriever) Retrieve(_ context.Context, _ string) (string, error) {
	return m.snippets, m.err
}

func TestDiagnoseUserPrompt_WithRetrieval(t *testing.T) {
	t.Parallel()

	c := New("test-key", "claude-sonnet-4-20250514", nil)
	got := c.diagnoseUserPrompt(context.Background(), "Subject: x", &mockRetriever{snippets: "past case: reset spooler"})

	if !strings.Contains(got, "CONTEXT FROM PREVIOUS CASES:\npast case: reset spooler") {
		t.Errorf("prompt missing retrieval context:\n%s", got)
	}
	if !strings.HasSuffix(got, "TICKET TO ANALYZE:\nSubject: x") {
		t.Errorf("prompt missing ticket text:\n%s", got)
	}
}

func TestDiagnoseUserPrompt_RetrievalFailureDegrades(t *testing.T) {
	t.Parallel()

	c := New("test-key", "claude-sonnet-4-20250514", nil)
	got := c.diagnoseUserPrompt(context.Background(), "Subject: x", &mockRetriever{err: errors.New("store down")})

	if strings.Contains(got, "CONTEXT FROM PREVIOUS CASES") {
		t.Error("failed retrieval must not inject context")
	}
	if got != "TICKET TO ANALYZE:\nSubject: x" {
		t.Errorf("prompt = %q", got)
	}
}

func TestDiagnoseUserPrompt_NilRetriever(t *testing.T) {
	t.Parallel()

	c := New("test-key", "claude-sonnet-4-20250514", nil)
	got := c.diagnoseUserPrompt(context.Background(), "Subject: x", nil)
	if got != "TICKET TO ANALYZE:\nSubject: x" {
		t.Errorf("prompt = %q", got)
	}
}

func TestEntityUserPrompt(t *testing.T) {
	t.Parallel()

	meta := &ticket.Metadata{
		Title:        "printer broken",
		CustomerID:   "acme",
		CustomerUser: "jdoe",
		Queue:        "Raw",
	}
	got := entityUserPrompt(meta, "the Initech printer is down")

	for _, want := range []string{"Title: printer broken", "CustomerID: acme", "CustomerUser: jdoe", "Queue: Raw", "the Initech printer is down"} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q:\n%s", want, got)
		}
	}
}

func TestPrompts_DeclareWireContract(t *testing.T) {
	t.Parallel()

	for _, key := range []string{"type_id", "diagnostico", "requires_visual", "criticality_score", "is_security_alert"} {
		if !strings.Contains(diagnosisSystemPrompt, key) {
			t.Errorf("diagnosis prompt missing field %q", key)
		}
	}
	for _, key := range []string{"entidad", "contacto", "email", "problema_resumido", "confianza"} {
		if !strings.Contains(entitySystemPrompt, key) {
			t.Errorf("entity prompt missing field %q", key)
		}
	}
}
