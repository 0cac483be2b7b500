// Package memstore provides an in-memory implementation of incident.Store.
package memstore

import (
	"context"
	"sync"

	"github.com/linnemanlabs/warden/internal/incident"
)

// Store holds enrichment records in memory. Suitable for dev/testing.
type Store struct {
	mu      sync.RWMutex
	records map[string]*incident.Record // record ID -> record
	latest  map[int]string              // ticket ID -> most recent record ID
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		records: make(map[string]*incident.Record),
		latest:  make(map[int]string),
	}
}

// Get retrieves a record by its ID. Returns a copy.
func (s *Store) Get(_ context.Context, id string) (*incident.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, false, nil
	}
	cp := *r
	return &cp, true, nil
}

// GetByTicket retrieves the most recent record for a ticket. Returns a copy.
func (s *Store) GetByTicket(_ context.Context, ticketID int) (*incident.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.latest[ticketID]
	if !ok {
		return nil, false, nil
	}
	r := s.records[id]
	cp := *r
	return &cp, true, nil
}

// Put stores a copy of the record.
func (s *Store) Put(_ context.Context, rec *incident.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.records[rec.ID] = &cp
	s.latest[rec.TicketID] = rec.ID
	return nil
}
