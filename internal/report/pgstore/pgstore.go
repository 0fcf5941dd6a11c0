// Package pgstore provides a PostgreSQL implementation of report.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/triagedesk/internal/report"
)

var tracer = otel.Tracer("github.com/linnemanlabs/triagedesk/internal/report/pgstore")

//go:embed schema.sql
var schema string

// Store persists one JSONB report per alert.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on pool and returns a ready Store.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

// Save upserts r keyed by alert ID.
func (s *Store) Save(ctx context.Context, r *report.Report) error {
	ctx, span := startSpan(ctx, "pgstore.SaveReport", "UPSERT")
	defer span.End()

	if err := report.CheckID(r.AlertID); err != nil {
		return err
	}
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO triage_reports (alert_id, analyst, doc, submitted_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (alert_id) DO UPDATE SET analyst = EXCLUDED.analyst, doc = EXCLUDED.doc,
		   submitted_at = EXCLUDED.submitted_at, updated_at = now()`,
		r.AlertID, r.Analyst, doc, r.Timestamp,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upsert report %s: %w", r.AlertID, err)
	}
	return nil
}

// Get retrieves the report for alertID.
func (s *Store) Get(ctx context.Context, alertID string) (*report.Report, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.GetReport", "SELECT")
	defer span.End()

	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM triage_reports WHERE alert_id = $1`, alertID).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, fmt.Errorf("get report: %w", err)
	}
	var r report.Report
	if err := json.Unmarshal(doc, &r); err != nil {
		return nil, false, fmt.Errorf("decode report: %w", err)
	}
	return &r, true, nil
}

// List returns every report, newest first.
func (s *Store) List(ctx context.Context) ([]report.Report, error) {
	ctx, span := startSpan(ctx, "pgstore.ListReports", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx, `SELECT doc FROM triage_reports`)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	out := []report.Report{}
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		var r report.Report
		if err := json.Unmarshal(doc, &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	span.SetAttributes(attribute.Int("triagedesk.reports.count", len(out)))
	report.SortNewestFirst(out)
	return out, nil
}
