// Package visual is the client for the multimodal diagnosis sub-service
// used when a ticket hinges on screenshots or other visual evidence.
// Failures here are always non-fatal to the caller, which falls back to
// the classic text diagnosis.
package visual

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/warden/internal/ticket"
)

// httpTimeout bounds the whole visual analysis round trip; the sub-service
// runs its own model inference and can take a while.
const httpTimeout = 120 * time.Second

// Result is a completed visual diagnosis.
type Result struct {
	TypeID           ticket.TypeID
	Diagnosis        string
	ProcessingTimeMS int64
}

// Client calls the visual-analysis collaborator.
type Client struct {
	baseURL string
	client  *http.Client
	logger  log.Logger
}

// New creates a visual-analysis client.
func New(baseURL string, logger log.Logger) *Client {
	if logger == nil {
		logger = log.Nop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: httpTimeout},
		logger:  logger,
	}
}

type diagnoseResponse struct {
	Status           string          `json:"status"`
	Error            string          `json:"error"`
	TypeID           int             `json:"type_id"`
	Diagnosis        json.RawMessage `json:"diagnosis"`
	ProcessingTimeMS int64           `json:"processing_time_ms"`
}

// Diagnose submits a ticket for visual analysis and returns the resulting
// diagnosis. A response with status "error" is a failure.
func (c *Client) Diagnose(ctx context.Context, ticketID int, ticketText string) (*Result, error) {
	payload, err := json.Marshal(map[string]any{
		"ticket_id":   strconv.Itoa(ticketID),
		"ticket_text": ticketText,
		"use_rag":     true,
	})
	if err != nil {
		return nil, fmt.Errorf("visual: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/diagnose", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("visual: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("visual: post diagnose: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("visual: diagnose returned %d", resp.StatusCode)
	}

	var out diagnoseResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("visual: decode response: %w", err)
	}
	if out.Status == "error" {
		return nil, fmt.Errorf("visual: service error: %s", out.Error)
	}

	diagnosis, err := decodeDiagnosis(out.Diagnosis)
	if err != nil {
		return nil, fmt.Errorf("visual: %w", err)
	}

	c.logger.Info(ctx, "visual diagnosis received",
		"ticket_id", ticketID,
		"type_id", out.TypeID,
		"processing_time_ms", out.ProcessingTimeMS,
	)

	return &Result{
		TypeID:           ticket.TypeID(out.TypeID),
		Diagnosis:        diagnosis,
		ProcessingTimeMS: out.ProcessingTimeMS,
	}, nil
}

// decodeDiagnosis accepts the diagnosis field as either a plain string or
// an array, which is re-rendered as indented JSON for the ticket article.
func decodeDiagnosis(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return "", nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", fmt.Errorf("decode diagnosis string: %w", err)
		}
		return s, nil
	}
	var items []any
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return "", fmt.Errorf("decode diagnosis array: %w", err)
	}
	pretty, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return "", fmt.Errorf("render diagnosis array: %w", err)
	}
	return string(pretty), nil
}
