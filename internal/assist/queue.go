package assist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/triagedesk/internal/report"
)

var tracer = otel.Tracer("github.com/linnemanlabs/triagedesk/internal/assist")

var (
	// ErrQueueFull is returned by Submit when the buffer has no room.
	ErrQueueFull = errors.New("assist queue full")

	// ErrQueueClosed is returned by Submit after Shutdown.
	ErrQueueClosed = errors.New("assist queue closed")
)

// QueueConfig bounds the worker pool and each task's run time.
type QueueConfig struct {
	Workers int
	Buffer  int
	// Timeout bounds a single suggester attempt.
	Timeout time.Duration
	// TimeLimit bounds a task across all attempts.
	TimeLimit  time.Duration
	MaxRetries int
}

// DefaultQueueConfig returns 4 workers, a 64-task buffer, a 20s attempt
// timeout, a 30s task limit and 2 retries.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Workers:    4,
		Buffer:     64,
		Timeout:    20 * time.Second,
		TimeLimit:  30 * time.Second,
		MaxRetries: 2,
	}
}

// CompleteEvent describes a finished task.
type CompleteEvent struct {
	TaskID   string
	AlertID  string
	Source   string
	Attempts int
	Duration time.Duration
}

// QueueHooks receive queue events. Nil hooks are skipped.
type QueueHooks struct {
	OnReject   func()
	OnComplete func(e *CompleteEvent)
}

type job struct {
	id  string
	req *Request
}

// Queue runs suggestion tasks on a fixed pool of workers.
type Queue struct {
	primary  Suggester
	fallback Suggester
	store    TaskStore
	cfg      QueueConfig
	logger   log.Logger
	hooks    QueueHooks

	mu     sync.RWMutex
	closed bool
	jobs   chan job
	wg     sync.WaitGroup
	stop   context.CancelFunc
	now    func() time.Time

	newBackOff func() backoff.BackOff
}

// NewQueue starts cfg.Workers workers. primary may be nil, in which case every
// task is answered by the heuristic.
func NewQueue(primary Suggester, store TaskStore, cfg QueueConfig, logger log.Logger, hooks QueueHooks) *Queue {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Buffer < 0 {
		cfg.Buffer = 0
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if logger == nil {
		logger = log.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		primary:  primary,
		fallback: Heuristic{},
		store:    store,
		cfg:      cfg,
		logger:   logger,
		hooks:    hooks,
		jobs:     make(chan job, cfg.Buffer),
		stop:     cancel,
		now:      time.Now,

		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
	for i := 0; i < cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
	return q
}

// Submit records a queued task and hands it to the pool. It does not block.
func (q *Queue) Submit(ctx context.Context, req *Request) (*Task, error) {
	t := &Task{
		ID:          ulid.Make().String(),
		AlertID:     req.AlertID,
		Status:      TaskQueued,
		SubmittedAt: q.now().UTC(),
	}
	if err := q.store.Put(ctx, t); err != nil {
		return nil, fmt.Errorf("record task: %w", err)
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		_ = q.store.Delete(ctx, t.ID)
		return nil, ErrQueueClosed
	}
	select {
	case q.jobs <- job{id: t.ID, req: req}:
		return t, nil
	default:
		_ = q.store.Delete(ctx, t.ID)
		if q.hooks.OnReject != nil {
			q.hooks.OnReject()
		}
		return nil, ErrQueueFull
	}
}

// Get returns the task with id.
func (q *Queue) Get(ctx context.Context, id string) (*Task, bool, error) {
	return q.store.Get(ctx, id)
}

// Shutdown stops accepting tasks and waits for queued ones to finish. When ctx
// expires first, in-flight suggester calls are cancelled and ctx's error is
// returned.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.stop()
		return nil
	case <-ctx.Done():
		q.stop()
		<-done
		return ctx.Err()
	}
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for j := range q.jobs {
		q.run(ctx, j)
	}
}

func (q *Queue) run(ctx context.Context, j job) {
	start := q.now()
	L := q.logger.With("task_id", j.id, "alert_id", j.req.AlertID)

	ctx, span := tracer.Start(ctx, "assist.suggest",
		trace.WithAttributes(
			attribute.String("triagedesk.task.id", j.id),
			attribute.String("triagedesk.alert.id", j.req.AlertID),
			attribute.Int("triagedesk.artifacts.count", len(j.req.Artifacts)),
		),
	)
	defer span.End()

	task := &Task{ID: j.id, AlertID: j.req.AlertID, Status: TaskRunning, SubmittedAt: start.UTC()}
	if prev, ok, err := q.store.Get(ctx, j.id); err == nil && ok {
		task.SubmittedAt = prev.SubmittedAt
	}
	if err := q.store.Put(ctx, task); err != nil {
		L.Warn(ctx, "failed to mark task running", "error", err)
	}

	sugg, attempts, err := q.suggest(ctx, j.req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		L.Warn(ctx, "suggester failed, using heuristic", "error", err, "attempts", attempts)
	}

	task.Status = TaskDone
	task.Result = sugg
	task.CompletedAt = q.now().UTC()
	if err := q.store.Put(ctx, task); err != nil {
		L.Error(ctx, err, "failed to persist task result")
	}

	dur := q.now().Sub(start)
	span.SetAttributes(
		attribute.String("triagedesk.suggestion.source", sugg.Source),
		attribute.String("triagedesk.suggestion.verdict", string(sugg.Verdict)),
		attribute.Float64("triagedesk.suggestion.confidence", sugg.Confidence),
		attribute.Int("triagedesk.suggestion.attempts", attempts),
	)
	L.Info(ctx, "suggestion complete",
		"source", sugg.Source,
		"verdict", sugg.Verdict,
		"action", sugg.Action,
		"confidence", sugg.Confidence,
		"duration", dur.Seconds(),
	)
	if q.hooks.OnComplete != nil {
		q.hooks.OnComplete(&CompleteEvent{
			TaskID:   j.id,
			AlertID:  j.req.AlertID,
			Source:   sugg.Source,
			Attempts: attempts,
			Duration: dur,
		})
	}
}

// suggest asks the primary suggester with retries and falls back to the
// heuristic. It always returns a suggestion; err reports why the primary one
// was not used.
func (q *Queue) suggest(ctx context.Context, req *Request) (*Suggestion, int, error) {
	if q.primary == nil {
		s, err := q.fallbackSuggest(ctx, req)
		return s, 0, err
	}

	hard, cancel := context.WithTimeout(ctx, q.cfg.TimeLimit)
	defer cancel()

	attempts := 0
	s, err := backoff.Retry(hard, func() (*Suggestion, error) {
		attempts++
		actx, cancel := context.WithTimeout(hard, q.cfg.Timeout)
		defer cancel()
		s, err := q.primary.Suggest(actx, req)
		if err != nil {
			return nil, err
		}
		if s == nil {
			return nil, backoff.Permanent(errors.New("suggester returned no suggestion"))
		}
		return s, nil
	},
		backoff.WithBackOff(q.newBackOff()),
		backoff.WithMaxTries(uint(q.cfg.MaxRetries+1)), //nolint:gosec // G115: MaxRetries is clamped non-negative
		backoff.WithMaxElapsedTime(q.cfg.TimeLimit),
	)
	if err == nil && s.Confidence >= MinConfidence {
		if s.Source == "" {
			s.Source = SourceModel
		}
		return s, attempts, nil
	}
	if err == nil {
		err = fmt.Errorf("confidence %v below %v", s.Confidence, MinConfidence)
	}

	fs, ferr := q.fallbackSuggest(ctx, req)
	if ferr != nil {
		return fs, attempts, errors.Join(err, ferr)
	}
	return fs, attempts, err
}

func (q *Queue) fallbackSuggest(ctx context.Context, req *Request) (*Suggestion, error) {
	s, err := q.fallback.Suggest(ctx, req)
	if err != nil || s == nil {
		if err == nil {
			err = errors.New("fallback returned no suggestion")
		}
		return failed(err), err
	}
	if s.Source == "" {
		s.Source = SourceHeuristic
	}
	return s, nil
}

func failed(err error) *Suggestion {
	return &Suggestion{
		Verdict:    report.VerdictUncertain,
		Action:     report.ActionMonitor,
		Confidence: 0,
		Rationale:  "AI task failed: " + err.Error(),
		Source:     SourceFailed,
	}
}
