// Package logcorr is the client for the log-correlation sub-service that
// performs deep log inspection for incident tickets. Calls run inside the
// background enrichment task and carry a long timeout; any failure here
// degrades to the fixed "no correlated logs" fallback upstream.
package logcorr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

// analyzeTimeout bounds the /analyze-incident round trip. The service may
// inspect remote logs over SSH, which takes minutes, not seconds.
const analyzeTimeout = 5 * time.Minute

// ErrNotConfigured is returned when no service endpoint is configured.
var ErrNotConfigured = fmt.Errorf("logcorr: endpoint not configured")

// Request carries the incident fields the correlation service needs.
type Request struct {
	TicketID         string `json:"ticket_id"`
	TicketNumber     string `json:"ticket_number,omitempty"`
	Title            string `json:"title"`
	TicketText       string `json:"ticket_text"`
	Entity           string `json:"entity"`
	InitialDiagnosis string `json:"diagnostico_inicial,omitempty"`
}

// Result is the correlation service's response.
type Result struct {
	LogsFound int       `json:"logs_encontrados"`
	Findings  []Finding `json:"diagnosticos"`
	Summary   string    `json:"mensaje_resumen"`
}

// Finding pairs one correlated log line with its per-log diagnosis.
type Finding struct {
	Log       LogEntry         `json:"log"`
	Diagnosis FindingDiagnosis `json:"diagnostico"`
}

// LogEntry is the raw log side of a finding.
type LogEntry struct {
	Message string `json:"mensaje"`
}

// FindingDiagnosis is the analysis side of a finding.
type FindingDiagnosis struct {
	ErrorType      string `json:"tipo_error"`
	Severity       string `json:"severidad"`
	Summary        string `json:"resumen"`
	Recommendation string `json:"recomendacion"`
}

// Client calls the log-correlation collaborator.
type Client struct {
	baseURL string
	client  *http.Client
	logger  log.Logger
}

// New creates a log-correlation client. An empty baseURL yields a client
// whose Analyze always reports ErrNotConfigured.
func New(baseURL string, logger log.Logger) *Client {
	if logger == nil {
		logger = log.Nop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: analyzeTimeout},
		logger:  logger,
	}
}

// Analyze submits an incident for log correlation and waits for the result.
func (c *Client) Analyze(ctx context.Context, r *Request) (*Result, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	payload, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("logcorr: marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, analyzeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze-incident", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("logcorr: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Info(ctx, "calling log-correlation service", "ticket_id", r.TicketID, "entity", r.Entity)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("logcorr: post analyze-incident: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("logcorr: analyze-incident returned %d", resp.StatusCode)
	}

	var out Result
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("logcorr: decode response: %w", err)
	}

	c.logger.Info(ctx, "log-correlation response received",
		"ticket_id", r.TicketID, "logs_found", out.LogsFound)
	return &out, nil
}
