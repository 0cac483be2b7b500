package incident

import "context"

// Store is the persistence interface for enrichment records.
type Store interface {
	Get(ctx context.Context, id string) (*Record, bool, error)
	GetByTicket(ctx context.Context, ticketID int) (*Record, bool, error)
	Put(ctx context.Context, rec *Record) error
}
