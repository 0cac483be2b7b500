// Package slack sends triage run notifications to Slack via incoming
// webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linnemanlabs/warden/internal/ticket"
	"github.com/linnemanlabs/warden/internal/triage"
)

const (
	maxDiagnosisLen = 3000
	httpTimeout     = 10 * time.Second
)

// Notifier sends triage outcomes to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// New creates a new Slack notifier. If webhookURL is empty, Send is a no-op.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
	}
}

// Send posts a triage outcome to the configured Slack webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Send(ctx context.Context, out *triage.Outcome) error {
	if n.webhookURL == "" {
		return nil
	}

	msg := buildMessage(out)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func buildMessage(out *triage.Outcome) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(out),
			{"type": "divider"},
			fieldsBlock(out),
			{"type": "divider"},
			diagnosisBlock(out),
			{"type": "divider"},
			contextBlock(out),
		},
	}
}

func headerBlock(out *triage.Outcome) map[string]any {
	title := "Ticket Diagnosed"
	if out.Delegated {
		title = "Incident Delegated"
	}
	text := fmt.Sprintf("%s %s: ticket %d", outcomeEmoji(out), title, out.TicketID)

	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": text,
		},
	}
}

func fieldsBlock(out *triage.Outcome) map[string]any {
	fields := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Type:* %s", typeName(out)),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Criticality:* %d/10", out.Criticality),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Duration:* %.1fs", out.Duration),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Parse:* %s", out.ParseMode),
		},
	}
	if out.VisualUsed {
		fields = append(fields, map[string]any{
			"type": "mrkdwn",
			"text": "*Visual:* yes",
		})
	}
	if out.SecurityAlert {
		fields = append(fields, map[string]any{
			"type": "mrkdwn",
			"text": "*Security alert:* yes",
		})
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func diagnosisBlock(out *triage.Outcome) map[string]any {
	text := truncate(out.Diagnosis, maxDiagnosisLen)
	if out.Delegated {
		text = "_Handed to the incident enricher; the full report lands on the ticket._"
	}
	if text == "" {
		text = "_No diagnosis available._"
	}

	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Diagnosis*\n\n%s", text),
		},
	}
}

func contextBlock(out *triage.Outcome) map[string]any {
	ts := out.CompletedAt
	if ts.IsZero() {
		ts = out.StartedAt
	}

	elements := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("warden • run %s • %s", out.RunID, ts.UTC().Format("2006-01-02 15:04 UTC")),
		},
	}

	return map[string]any{
		"type":     "context",
		"elements": elements,
	}
}

func outcomeEmoji(out *triage.Outcome) string {
	switch {
	case out.SecurityAlert || out.Criticality >= 9:
		return "\U0001f6a8" // rotating light
	case out.Delegated:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

func typeName(out *triage.Outcome) string {
	switch out.TypeID {
	case ticket.TypeIncident:
		return "incident"
	case ticket.TypeRequest:
		return "request"
	case ticket.TypeRequirement:
		return "requirement"
	default:
		return "unclassified"
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
