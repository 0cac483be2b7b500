// Package pgstore provides a PostgreSQL implementation of incident.Store.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/warden/internal/incident"
	"github.com/linnemanlabs/warden/internal/postgres"
)

var tracer = otel.Tracer("github.com/linnemanlabs/warden/internal/incident/pgstore")

//go:embed schema.sql
var schema string

// Store persists enrichment records in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL, applies the schema, and returns a ready Store.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

const recordColumns = `id, ticket_id, ticket_number, title, ticket_text, entity, contact,
	email, problem, confidence, initial_diagnosis, status, logs_found, created_at, completed_at`

// Get retrieves an enrichment record by ID.
func (s *Store) Get(ctx context.Context, id string) (*incident.Record, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Get", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + recordColumns + ` FROM incident_records WHERE id = $1`
	rec, err := scanRecord(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if rec == nil {
		return nil, false, nil
	}
	return rec, true, nil
}

// GetByTicket retrieves the most recent enrichment record for a ticket.
func (s *Store) GetByTicket(ctx context.Context, ticketID int) (*incident.Record, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.GetByTicket", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + recordColumns + ` FROM incident_records
		WHERE ticket_id = $1 ORDER BY created_at DESC LIMIT 1`
	rec, err := scanRecord(s.pool.QueryRow(ctx, query, ticketID))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if rec == nil {
		return nil, false, nil
	}
	return rec, true, nil
}

// Put inserts or updates an enrichment record.
func (s *Store) Put(ctx context.Context, rec *incident.Record) error {
	ctx, span := tracer.Start(ctx, "pgstore.Put", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPSERT"),
	))
	defer span.End()

	var completedAt *time.Time
	if !rec.CompletedAt.IsZero() {
		completedAt = &rec.CompletedAt
	}

	query := `INSERT INTO incident_records (
		id, ticket_id, ticket_number, title, ticket_text, entity, contact,
		email, problem, confidence, initial_diagnosis, status, logs_found, created_at, completed_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	ON CONFLICT (id) DO UPDATE SET
		entity       = EXCLUDED.entity,
		contact      = EXCLUDED.contact,
		email        = EXCLUDED.email,
		problem      = EXCLUDED.problem,
		confidence   = EXCLUDED.confidence,
		status       = EXCLUDED.status,
		logs_found   = EXCLUDED.logs_found,
		completed_at = EXCLUDED.completed_at`

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.TicketID, rec.TicketNumber, rec.Title, rec.TicketText,
		rec.Entity, rec.Contact, rec.Email, rec.Problem, rec.Confidence,
		rec.InitialDiagnosis, string(rec.Status), rec.LogsFound, rec.CreatedAt, completedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}

// scanRecord scans a single row into a Record. Returns (nil, nil) when no
// row is found.
func scanRecord(row pgx.Row) (*incident.Record, error) {
	var (
		rec         incident.Record
		status      string
		completedAt *time.Time
	)

	err := row.Scan(
		&rec.ID, &rec.TicketID, &rec.TicketNumber, &rec.Title, &rec.TicketText,
		&rec.Entity, &rec.Contact, &rec.Email, &rec.Problem, &rec.Confidence,
		&rec.InitialDiagnosis, &status, &rec.LogsFound, &rec.CreatedAt, &completedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan: %w", err)
	}

	rec.Status = incident.Status(status)
	if completedAt != nil {
		rec.CompletedAt = *completedAt
	}
	return &rec, nil
}
