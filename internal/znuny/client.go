// Package znuny is the REST client for the Znuny ticketing backend: session
// exchange, ticket reads (metadata and full article history), and the single
// ticket-update write used to publish diagnoses.
package znuny

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/warden/internal/ticket"
)

const (
	readTimeout  = 10 * time.Second
	writeTimeout = 30 * time.Second

	// createTimeLayout is the timestamp format Znuny uses in article payloads.
	createTimeLayout = "2006-01-02 15:04:05"
)

// Client talks to the Znuny generic-interface REST API.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	logger     log.Logger
}

// New creates a Znuny client. Credentials may be empty when every call is
// made with an externally supplied session id.
func New(baseURL, username, password string, logger log.Logger) *Client {
	if logger == nil {
		logger = log.Nop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		username:   username,
		password:   password,
		httpClient: &http.Client{Timeout: writeTimeout},
		logger:     logger,
	}
}

// flexInt tolerates backend fields that arrive as a number or a numeric string.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("parse int %q: %w", s, err)
	}
	*f = flexInt(n)
	return nil
}

type articlePayload struct {
	ArticleID  flexInt `json:"ArticleID"`
	Subject    string  `json:"Subject"`
	Body       string  `json:"Body"`
	SenderType string  `json:"SenderType"`
	CreateTime string  `json:"CreateTime"`
}

type ticketPayload struct {
	TicketID     flexInt          `json:"TicketID"`
	TicketNumber string           `json:"TicketNumber"`
	Title        string           `json:"Title"`
	CustomerID   string           `json:"CustomerID"`
	CustomerUser string           `json:"CustomerUserID"`
	Queue        string           `json:"Queue"`
	State        string           `json:"State"`
	Priority     string           `json:"Priority"`
	Owner        string           `json:"Owner"`
	Type         string           `json:"Type"`
	Created      string           `json:"Created"`
	Articles     []articlePayload `json:"Article"`
}

// ticketEnvelope unwraps the Ticket field, which the backend returns either
// as an object or as a single-element list.
type ticketEnvelope struct {
	Ticket json.RawMessage `json:"Ticket"`
}

func (e *ticketEnvelope) unwrap() (*ticketPayload, error) {
	raw := bytes.TrimSpace(e.Ticket)
	if len(raw) == 0 {
		return nil, fmt.Errorf("response has no Ticket field")
	}
	if raw[0] == '[' {
		var list []ticketPayload
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("decode ticket list: %w", err)
		}
		if len(list) == 0 {
			return nil, fmt.Errorf("empty ticket list")
		}
		return &list[0], nil
	}
	var tp ticketPayload
	if err := json.Unmarshal(raw, &tp); err != nil {
		return nil, fmt.Errorf("decode ticket: %w", err)
	}
	return &tp, nil
}

// Login exchanges the configured credentials for a session id. The response
// must contain a SessionID string; its absence is a hard failure.
func (c *Client) Login(ctx context.Context) (string, error) {
	if c.username == "" || c.password == "" || c.baseURL == "" {
		return "", &AuthError{Err: fmt.Errorf("backend URL or credentials not configured")}
	}

	body, err := json.Marshal(map[string]string{
		"UserLogin": c.username,
		"Password":  c.password,
	})
	if err != nil {
		return "", &AuthError{Err: fmt.Errorf("marshal login: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.baseURL+"/Session", bytes.NewReader(body))
	if err != nil {
		return "", &AuthError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &AuthError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &AuthError{Err: fmt.Errorf("session exchange returned %d: %s", resp.StatusCode, snippet)}
	}

	var out struct {
		SessionID string `json:"SessionID"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &AuthError{Err: fmt.Errorf("decode session response: %w", err)}
	}
	if out.SessionID == "" {
		return "", &AuthError{Err: fmt.Errorf("backend did not return a SessionID")}
	}
	return out.SessionID, nil
}

// GetTicket fetches a ticket's full article history.
func (c *Client) GetTicket(ctx context.Context, ticketID int, sessionID string) ([]ticket.Message, error) {
	url := fmt.Sprintf("%s/Ticket/%d?SessionID=%s&AllArticles=1", c.baseURL, ticketID, sessionID)
	tp, err := c.getTicketPayload(ctx, "get ticket", url)
	if err != nil {
		return nil, err
	}

	messages := make([]ticket.Message, 0, len(tp.Articles))
	for _, a := range tp.Articles {
		created, perr := time.Parse(createTimeLayout, a.CreateTime)
		if perr != nil {
			created = time.Time{}
		}
		messages = append(messages, ticket.Message{
			ID:        int(a.ArticleID),
			Subject:   a.Subject,
			Body:      a.Body,
			Sender:    senderKind(a.SenderType),
			CreatedAt: created,
		})
	}
	return messages, nil
}

// GetMetadata fetches the ticket header, including the customer fields the
// incident path needs.
func (c *Client) GetMetadata(ctx context.Context, ticketID int, sessionID string) (*ticket.Metadata, error) {
	url := fmt.Sprintf("%s/Ticket/%d?SessionID=%s", c.baseURL, ticketID, sessionID)
	tp, err := c.getTicketPayload(ctx, "get metadata", url)
	if err != nil {
		return nil, err
	}
	return &ticket.Metadata{
		TicketID:     int(tp.TicketID),
		TicketNumber: tp.TicketNumber,
		Title:        tp.Title,
		CustomerID:   tp.CustomerID,
		CustomerUser: tp.CustomerUser,
		Queue:        tp.Queue,
		State:        tp.State,
		Priority:     tp.Priority,
		Owner:        tp.Owner,
		Type:         tp.Type,
		Created:      tp.Created,
	}, nil
}

func (c *Client) getTicketPayload(ctx context.Context, op, url string) (*ticketPayload, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &RequestError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &RequestError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RequestError{Op: op, Status: resp.StatusCode}
	}

	var env ticketEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, &RequestError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	tp, err := env.unwrap()
	if err != nil {
		return nil, &RequestError{Op: op, Err: err}
	}
	return tp, nil
}

// UpdateRequest is the payload of a ticket update: refreshed ticket metadata
// plus one new article. Zero-valued metadata fields are omitted so partial
// updates (the async incident write) only touch what they set.
type UpdateRequest struct {
	TicketID      int
	SessionID     string
	Title         string
	CustomerUser  string
	QueueID       int
	PriorityID    int
	StateID       int
	TypeID        ticket.TypeID
	DynamicFields map[string]any
	Subject       string
	Body          string
}

// UpdateTicket adds a new article and updates classification metadata.
// Stateless and non-idempotent: a retry would create a duplicate article, so
// it is invoked at most once per orchestration run and at most once more by
// a delegated incident's background task.
func (c *Client) UpdateTicket(ctx context.Context, r UpdateRequest) error {
	ticketFields := map[string]any{}
	if r.Title != "" {
		ticketFields["Title"] = r.Title
	}
	if r.CustomerUser != "" {
		ticketFields["CustomerUser"] = r.CustomerUser
	}
	if r.QueueID != 0 {
		ticketFields["QueueID"] = r.QueueID
	}
	if r.PriorityID != 0 {
		ticketFields["PriorityID"] = r.PriorityID
	}
	if r.StateID != 0 {
		ticketFields["StateID"] = r.StateID
	}
	if r.TypeID != ticket.TypeUnknown {
		ticketFields["TypeID"] = int(r.TypeID)
	}
	if len(r.DynamicFields) > 0 {
		ticketFields["DynamicFields"] = r.DynamicFields
	}

	payload := map[string]any{
		"SessionID": r.SessionID,
		"TicketID":  r.TicketID,
		"Ticket":    ticketFields,
		"Article": map[string]any{
			"Subject":     r.Subject,
			"Body":        r.Body,
			"ContentType": "text/plain; charset=utf8",
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return &WriteError{TicketID: r.TicketID, Err: fmt.Errorf("marshal update: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/Ticket/%d", c.baseURL, r.TicketID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(body))
	if err != nil {
		return &WriteError{TicketID: r.TicketID, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &WriteError{TicketID: r.TicketID, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &WriteError{TicketID: r.TicketID, Err: fmt.Errorf("status %d: %s", resp.StatusCode, snippet)}
	}

	c.logger.Info(ctx, "ticket updated", "ticket_id", r.TicketID, "type_id", int(r.TypeID))
	return nil
}

func senderKind(s string) ticket.SenderKind {
	switch strings.ToLower(s) {
	case "customer":
		return ticket.SenderCustomer
	case "system":
		return ticket.SenderSystem
	case "agent":
		return ticket.SenderAgent
	default:
		return ticket.SenderKind(strings.ToLower(s))
	}
}
