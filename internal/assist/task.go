package assist

import (
	"context"
	"sync"
	"time"
)

// TaskStatus is the state of a suggestion task.
type TaskStatus string

const (
	TaskQueued  TaskStatus = "queued"
	TaskRunning TaskStatus = "running"
	TaskDone    TaskStatus = "done"
	// TaskUnknown is reported for ids that were never issued or have expired.
	TaskUnknown TaskStatus = "unknown"
)

// Task is a suggestion request and, once done, its result.
type Task struct {
	ID          string      `json:"task_id"`
	AlertID     string      `json:"alert_id"`
	Status      TaskStatus  `json:"status"`
	Result      *Suggestion `json:"result,omitempty"`
	SubmittedAt time.Time   `json:"submitted_at"`
	CompletedAt time.Time   `json:"completed_at,omitzero"`
}

// TaskStore keeps tasks until their TTL elapses.
type TaskStore interface {
	Put(ctx context.Context, t *Task) error
	Get(ctx context.Context, id string) (*Task, bool, error)
	Delete(ctx context.Context, id string) error
}

type memEntry struct {
	task    Task
	expires time.Time
}

// MemTaskStore is an in-memory TaskStore. Expired entries are dropped on access
// and by Sweep.
type MemTaskStore struct {
	mu    sync.Mutex
	tasks map[string]memEntry
	ttl   time.Duration
	now   func() time.Time
}

// NewMemTaskStore returns a store whose entries live for ttl after their last Put.
func NewMemTaskStore(ttl time.Duration) *MemTaskStore {
	return &MemTaskStore{
		tasks: make(map[string]memEntry),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Put stores a copy of t and resets its expiry.
func (s *MemTaskStore) Put(_ context.Context, t *Task) error {
	cp := copyTask(t)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = memEntry{task: cp, expires: s.now().Add(s.ttl)}
	return nil
}

// Get returns a copy of the task with id.
func (s *MemTaskStore) Get(_ context.Context, id string) (*Task, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.tasks[id]
	if !ok {
		return nil, false, nil
	}
	if !s.now().Before(e.expires) {
		delete(s.tasks, id)
		return nil, false, nil
	}
	cp := copyTask(&e.task)
	return &cp, true, nil
}

// Delete removes id.
func (s *MemTaskStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
	return nil
}

// Sweep drops expired entries and reports how many were removed.
func (s *MemTaskStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for id, e := range s.tasks {
		if !now.Before(e.expires) {
			delete(s.tasks, id)
			n++
		}
	}
	return n
}

func copyTask(t *Task) Task {
	cp := *t
	if t.Result != nil {
		r := *t.Result
		cp.Result = &r
	}
	return cp
}
