// Package kb is the client for the retrieval knowledge store. It resolves a
// named document store and hands out an opaque retrieval handle the model
// client can consult during diagnosis. Every operation is best-effort: a
// missing or unreachable store degrades to an ungrounded diagnosis and
// never fails a run.
package kb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

const (
	httpTimeout = 10 * time.Second
	topK        = 4
)

// Service resolves and queries knowledge stores.
type Service struct {
	baseURL   string
	storeName string
	client    *http.Client
	logger    log.Logger
}

// New creates a knowledge-store client for the named store.
func New(baseURL, storeName string, logger log.Logger) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		baseURL:   strings.TrimRight(baseURL, "/"),
		storeName: storeName,
		client:    &http.Client{Timeout: httpTimeout},
		logger:    logger,
	}
}

type storePayload struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Tool returns a retrieval handle for the configured store, creating the
// store when it does not exist yet.
func (s *Service) Tool(ctx context.Context) (*Tool, error) {
	id, err := s.resolveStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("kb: resolve store %q: %w", s.storeName, err)
	}
	s.logger.Info(ctx, "retrieval store resolved", "store", s.storeName, "store_id", id)
	return &Tool{svc: s, storeID: id}, nil
}

func (s *Service) resolveStore(ctx context.Context) (string, error) {
	// lookup by display name first to avoid duplicate stores
	lookupURL := s.baseURL + "/stores?name=" + url.QueryEscape(s.storeName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		var stores []storePayload
		if err := json.NewDecoder(resp.Body).Decode(&stores); err != nil {
			return "", fmt.Errorf("decode store list: %w", err)
		}
		for _, st := range stores {
			if st.DisplayName == s.storeName {
				return st.ID, nil
			}
		}
	case resp.StatusCode != http.StatusNotFound:
		return "", fmt.Errorf("store lookup returned %d", resp.StatusCode)
	}

	return s.createStore(ctx)
}

func (s *Service) createStore(ctx context.Context) (string, error) {
	body, _ := json.Marshal(map[string]string{"display_name": s.storeName})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/stores", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("store create returned %d", resp.StatusCode)
	}
	var st storePayload
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return "", fmt.Errorf("decode created store: %w", err)
	}
	if st.ID == "" {
		return "", fmt.Errorf("store create returned no id")
	}
	return st.ID, nil
}

// Tool is the opaque retrieval handle handed to the model client. It
// implements llm.Retriever.
type Tool struct {
	svc     *Service
	storeID string
}

// Name identifies the underlying store.
func (t *Tool) Name() string { return t.svc.storeName }

// Retrieve queries the store and returns the top matching snippets joined
// into a single grounding block.
func (t *Tool) Retrieve(ctx context.Context, query string) (string, error) {
	body, _ := json.Marshal(map[string]any{"query": query, "top_k": topK})
	queryURL := fmt.Sprintf("%s/stores/%s/query", t.svc.baseURL, url.PathEscape(t.storeID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, queryURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.svc.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("kb: query returned %d", resp.StatusCode)
	}

	var out struct {
		Snippets []string `json:"snippets"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("kb: decode query response: %w", err)
	}
	return strings.Join(out.Snippets, "\n---\n"), nil
}
