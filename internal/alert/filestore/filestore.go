// Package filestore persists the alert collection as a JSON array on disk.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/triagedesk/internal/alert"
	"github.com/linnemanlabs/triagedesk/internal/jsonfile"
)

var tracer = otel.Tracer("github.com/linnemanlabs/triagedesk/internal/alert/filestore")

// Store reads and rewrites a single alerts.json file.
type Store struct {
	path string
	now  func() time.Time

	// mu serializes writers inside this process, the flock serializes across processes.
	mu sync.Mutex
}

// New returns a Store backed by the JSON array at path.
func New(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// LoadAll reads the whole collection. A missing or malformed file is
// alert.ErrStoreUnavailable.
func (s *Store) LoadAll(ctx context.Context) ([]alert.Alert, error) {
	_, span := tracer.Start(ctx, "filestore.LoadAll", trace.WithAttributes(
		attribute.String("triagedesk.store.path", s.path),
	))
	defer span.End()

	alerts, err := s.read()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("triagedesk.alerts.count", len(alerts)))
	return alerts, nil
}

// Get scans the collection for id.
func (s *Store) Get(ctx context.Context, id string) (*alert.Alert, bool, error) {
	alerts, err := s.LoadAll(ctx)
	if err != nil {
		return nil, false, err
	}
	for i := range alerts {
		if alerts[i].ID == id {
			return &alerts[i], true, nil
		}
	}
	return nil, false, nil
}

// UpdateStatus appends a transition to id and rewrites the file atomically while
// holding the write lock. Unknown ids return false and leave the file untouched.
func (s *Store) UpdateStatus(ctx context.Context, id string, status alert.Status, changedBy string) (bool, error) {
	_, span := tracer.Start(ctx, "filestore.UpdateStatus", trace.WithAttributes(
		attribute.String("triagedesk.alert.id", id),
		attribute.String("triagedesk.alert.status", string(status)),
	))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := jsonfile.Lock(s.path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("lock alerts: %w", err)
	}
	defer func() { _ = unlock() }()

	alerts, err := s.read()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	idx := -1
	for i := range alerts {
		if alerts[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		span.SetAttributes(attribute.Bool("triagedesk.alert.found", false))
		return false, nil
	}

	alerts[idx].Transition(status, changedBy, s.now())

	if err := jsonfile.WriteAtomic(s.path, alerts); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("write alerts: %w", err)
	}
	return true, nil
}

// Replace rewrites the whole collection, used for seeding.
func (s *Store) Replace(_ context.Context, alerts []alert.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := jsonfile.Lock(s.path)
	if err != nil {
		return fmt.Errorf("lock alerts: %w", err)
	}
	defer func() { _ = unlock() }()

	if alerts == nil {
		alerts = []alert.Alert{}
	}
	if err := jsonfile.WriteAtomic(s.path, alerts); err != nil {
		return fmt.Errorf("write alerts: %w", err)
	}
	return nil
}

func (s *Store) read() ([]alert.Alert, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s does not exist", alert.ErrStoreUnavailable, s.path)
		}
		return nil, fmt.Errorf("%w: read %s: %v", alert.ErrStoreUnavailable, s.path, err) //nolint:errorlint // sentinel is the wrapped error
	}
	var alerts []alert.Alert
	if err := json.Unmarshal(b, &alerts); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", alert.ErrStoreUnavailable, s.path, err) //nolint:errorlint // sentinel is the wrapped error
	}
	return alerts, nil
}
