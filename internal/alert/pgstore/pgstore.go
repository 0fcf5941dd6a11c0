// Package pgstore provides a PostgreSQL implementation of alert.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/triagedesk/internal/alert"
)

var tracer = otel.Tracer("github.com/linnemanlabs/triagedesk/internal/alert/pgstore")

//go:embed schema.sql
var schema string

// Store persists alerts as JSONB documents, one row per alert, in insertion order.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// New applies the schema on pool and returns a ready Store.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool, now: time.Now}, nil
}

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// LoadAll returns every alert ordered by insertion.
func (s *Store) LoadAll(ctx context.Context) ([]alert.Alert, error) {
	ctx, span := startSpan(ctx, "pgstore.LoadAll", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx, `SELECT doc FROM alerts ORDER BY seq`)
	if err != nil {
		return nil, fail(span, fmt.Errorf("%w: query alerts: %v", alert.ErrStoreUnavailable, err)) //nolint:errorlint // sentinel is the wrapped error
	}
	defer rows.Close()

	alerts := []alert.Alert{}
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fail(span, fmt.Errorf("scan alert: %w", err))
		}
		var a alert.Alert
		if err := json.Unmarshal(doc, &a); err != nil {
			return nil, fail(span, fmt.Errorf("%w: decode alert: %v", alert.ErrStoreUnavailable, err)) //nolint:errorlint // sentinel is the wrapped error
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, fmt.Errorf("iterate alerts: %w", err))
	}
	return alerts, nil
}

// Get retrieves one alert by ID.
func (s *Store) Get(ctx context.Context, id string) (*alert.Alert, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.Get", "SELECT")
	defer span.End()

	a, err := scanAlert(s.pool.QueryRow(ctx, `SELECT doc FROM alerts WHERE id = $1`, id))
	if err != nil {
		return nil, false, fail(span, err)
	}
	return a, a != nil, nil
}

// UpdateStatus locks the alert row, appends the transition and writes it back in
// one transaction. Unknown ids return false.
func (s *Store) UpdateStatus(ctx context.Context, id string, status alert.Status, changedBy string) (bool, error) {
	ctx, span := startSpan(ctx, "pgstore.UpdateStatus", "UPDATE")
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fail(span, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	a, err := scanAlert(tx.QueryRow(ctx, `SELECT doc FROM alerts WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return false, fail(span, err)
	}
	if a == nil {
		return false, nil
	}

	a.Transition(status, changedBy, s.now())

	doc, err := json.Marshal(a)
	if err != nil {
		return false, fail(span, fmt.Errorf("marshal alert: %w", err))
	}
	if _, err := tx.Exec(ctx,
		`UPDATE alerts SET doc = $2, status = $3, updated_at = now() WHERE id = $1`,
		id, doc, string(a.Status),
	); err != nil {
		return false, fail(span, fmt.Errorf("update alert: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fail(span, fmt.Errorf("commit: %w", err))
	}
	return true, nil
}

// Import upserts alerts, keeping the first-seen insertion order for existing ids.
func (s *Store) Import(ctx context.Context, alerts []alert.Alert) error {
	ctx, span := startSpan(ctx, "pgstore.Import", "UPSERT")
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fail(span, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	for i := range alerts {
		a := &alerts[i]
		if a.Status == "" {
			a.Status = a.CurrentStatus()
		}
		doc, err := json.Marshal(a)
		if err != nil {
			return fail(span, fmt.Errorf("marshal alert %s: %w", a.ID, err))
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO alerts (id, status, doc) VALUES ($1, $2, $3)
			 ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, doc = EXCLUDED.doc, updated_at = now()`,
			a.ID, string(a.Status), doc,
		); err != nil {
			return fail(span, fmt.Errorf("upsert alert %s: %w", a.ID, err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fail(span, fmt.Errorf("commit: %w", err))
	}
	span.SetAttributes(attribute.Int("triagedesk.alerts.count", len(alerts)))
	return nil
}

// scanAlert decodes a single doc row. Returns (nil, nil) when no row is found.
func scanAlert(row pgx.Row) (*alert.Alert, error) {
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan alert: %w", err)
	}
	var a alert.Alert
	if err := json.Unmarshal(doc, &a); err != nil {
		return nil, fmt.Errorf("%w: decode alert: %v", alert.ErrStoreUnavailable, err) //nolint:errorlint // sentinel is the wrapped error
	}
	return &a, nil
}
