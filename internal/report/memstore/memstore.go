// Package memstore provides an in-memory implementation of report.Store.
package memstore

import (
	"context"
	"sync"

	"github.com/linnemanlabs/triagedesk/internal/report"
)

// Store keeps reports in a map keyed by alert ID. Suitable for dev/testing.
type Store struct {
	mu      sync.RWMutex
	reports map[string]report.Report
}

// New initializes an empty Store.
func New() *Store {
	return &Store{reports: make(map[string]report.Report)}
}

// Save stores a copy of r, replacing any earlier report for the alert.
func (s *Store) Save(_ context.Context, r *report.Report) error {
	if err := report.CheckID(r.AlertID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[r.AlertID] = copyReport(r)
	return nil
}

// Get returns a copy of the report for alertID.
func (s *Store) Get(_ context.Context, alertID string) (*report.Report, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[alertID]
	if !ok {
		return nil, false, nil
	}
	cp := copyReport(&r)
	return &cp, true, nil
}

// List returns copies of all reports, newest first.
func (s *Store) List(_ context.Context) ([]report.Report, error) {
	s.mu.RLock()
	out := make([]report.Report, 0, len(s.reports))
	for _, r := range s.reports {
		out = append(out, copyReport(&r))
	}
	s.mu.RUnlock()
	report.SortNewestFirst(out)
	return out, nil
}

func copyReport(r *report.Report) report.Report {
	cp := *r
	if r.AISuggestion != nil {
		s := *r.AISuggestion
		cp.AISuggestion = &s
	}
	return cp
}
