// Package memstore provides an in-memory implementation of alert.Store.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/linnemanlabs/triagedesk/internal/alert"
)

// Store holds alerts in memory in insertion order. Suitable for dev/testing.
type Store struct {
	mu     sync.RWMutex
	alerts []*alert.Alert
	byID   map[string]int // alert ID -> index into alerts
	now    func() time.Time
}

// New initializes a Store seeded with copies of alerts.
func New(alerts ...alert.Alert) *Store {
	s := &Store{
		byID: make(map[string]int, len(alerts)),
		now:  time.Now,
	}
	for i := range alerts {
		s.put(alerts[i].Clone())
	}
	return s
}

// LoadAll returns copies of every alert.
func (s *Store) LoadAll(_ context.Context) ([]alert.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]alert.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		out = append(out, *a.Clone())
	}
	return out, nil
}

// Get retrieves an alert by ID. Returns a copy.
func (s *Store) Get(_ context.Context, id string) (*alert.Alert, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return nil, false, nil
	}
	return s.alerts[i].Clone(), true, nil
}

// UpdateStatus appends a transition to the alert with id.
func (s *Store) UpdateStatus(_ context.Context, id string, status alert.Status, changedBy string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byID[id]
	if !ok {
		return false, nil
	}
	s.alerts[i].Transition(status, changedBy, s.now())
	return true, nil
}

// Put inserts or replaces a copy of a.
func (s *Store) Put(a *alert.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(a.Clone())
}

func (s *Store) put(a *alert.Alert) {
	if i, ok := s.byID[a.ID]; ok {
		s.alerts[i] = a
		return
	}
	s.byID[a.ID] = len(s.alerts)
	s.alerts = append(s.alerts, a)
}
