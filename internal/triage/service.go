package triage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/triagedesk/internal/alert"
	"github.com/linnemanlabs/triagedesk/internal/assist"
	"github.com/linnemanlabs/triagedesk/internal/audit"
	"github.com/linnemanlabs/triagedesk/internal/notify/slack"
	"github.com/linnemanlabs/triagedesk/internal/report"
)

// notifyTimeout bounds one escalation notice.
const notifyTimeout = 10 * time.Second

// ArtifactLoader resolves an alert's artifact paths to their text.
type ArtifactLoader interface {
	ReadAll(a *alert.Alert) map[string]string
}

// AssistQueue accepts suggestion requests and reports their progress.
type AssistQueue interface {
	Submit(ctx context.Context, req *assist.Request) (*assist.Task, error)
	Get(ctx context.Context, id string) (*assist.Task, bool, error)
}

// Notifier is told about escalations.
type Notifier interface {
	Notify(ctx context.Context, e *slack.Escalation) error
}

// AlertDetail is an alert with its artifact texts.
type AlertDetail struct {
	Alert     *alert.Alert      `json:"alert"`
	Artifacts map[string]string `json:"artifacts"`
}

// AuditView is the audit page: every report, newest first, and the global metrics.
type AuditView struct {
	Reports []report.Report `json:"reports"`
	Metrics audit.Metrics   `json:"metrics"`
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sends escalation notices through n.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithMetrics records service events on m.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// Service is the business boundary for triage operations.
type Service struct {
	alerts    alert.Store
	reports   report.Store
	artifacts ArtifactLoader
	queue     AssistQueue
	notifier  Notifier
	metrics   *Metrics
	logger    log.Logger

	// pending tracks in-flight escalation notices.
	pending sync.WaitGroup
}

// NewService creates a new triage service.
func NewService(alerts alert.Store, reports report.Store, artifacts ArtifactLoader, queue AssistQueue, logger log.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	s := &Service{
		alerts:    alerts,
		reports:   reports,
		artifacts: artifacts,
		queue:     queue,
		logger:    logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ListAlerts returns the whole alert collection in stored order.
func (s *Service) ListAlerts(ctx context.Context) ([]alert.Alert, error) {
	return s.alerts.LoadAll(ctx)
}

// GetAlert returns the alert with id and its artifact texts.
func (s *Service) GetAlert(ctx context.Context, id string) (*AlertDetail, bool, error) {
	a, ok, err := s.alerts.Get(ctx, id)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &AlertDetail{Alert: a, Artifacts: s.readArtifacts(a)}, true, nil
}

func (s *Service) readArtifacts(a *alert.Alert) map[string]string {
	if s.artifacts == nil {
		return map[string]string{}
	}
	return s.artifacts.ReadAll(a)
}

// ChangeStatus moves the alert to status on behalf of changedBy and returns the
// updated alert. Escalations are announced asynchronously.
func (s *Service) ChangeStatus(ctx context.Context, id, status, changedBy string) (*alert.Alert, bool, error) {
	st, err := alert.ParseStatus(status)
	if err != nil {
		return nil, false, err
	}
	ok, err := s.alerts.UpdateStatus(ctx, id, st, changedBy)
	if err != nil || !ok {
		return nil, ok, err
	}
	if s.metrics != nil {
		s.metrics.Transitions.WithLabelValues(string(st)).Inc()
	}

	a, ok, err := s.alerts.Get(ctx, id)
	if err != nil || !ok {
		return nil, ok, err
	}

	s.logger.Info(ctx, "alert status changed", "alert_id", id, "status", st, "changed_by", changedBy)

	if st == alert.StatusEscalated {
		s.notifyEscalation(ctx, a, changedBy)
	}
	return a, true, nil
}

func (s *Service) notifyEscalation(ctx context.Context, a *alert.Alert, changedBy string) {
	if s.notifier == nil {
		return
	}
	e := &slack.Escalation{Alert: a, ChangedBy: changedBy, At: time.Now()}
	if r, ok, err := s.reports.Get(ctx, a.ID); err == nil && ok {
		e.Report = r
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()

		result := "sent"
		if err := s.notifier.Notify(nctx, e); err != nil {
			result = "error"
			s.logger.Error(nctx, err, "escalation notice failed", "alert_id", a.ID)
		}
		if s.metrics != nil {
			s.metrics.Notifications.WithLabelValues(result).Inc()
		}
	}()
}

// RequestSuggestion queues an AI suggestion for the alert with id.
func (s *Service) RequestSuggestion(ctx context.Context, id string) (*assist.Task, bool, error) {
	a, ok, err := s.alerts.Get(ctx, id)
	if err != nil || !ok {
		return nil, ok, err
	}
	task, err := s.queue.Submit(ctx, &assist.Request{
		AlertID:   a.ID,
		Summary:   a.Summary(),
		Artifacts: s.readArtifacts(a),
	})
	if err != nil {
		return nil, true, err
	}
	s.logger.Info(ctx, "suggestion queued", "alert_id", a.ID, "task_id", task.ID)
	return task, true, nil
}

// Suggestion returns the task with taskID. Unknown and expired ids return false.
func (s *Service) Suggestion(ctx context.Context, taskID string) (*assist.Task, bool, error) {
	return s.queue.Get(ctx, taskID)
}

// SubmitDecision files the analyst's report and moves the alert to triaged.
// Nothing is written for an unknown alert.
func (s *Service) SubmitDecision(ctx context.Context, d report.Decision) (*report.Report, bool, error) {
	if err := d.Validate(); err != nil {
		return nil, false, err
	}
	if _, ok, err := s.alerts.Get(ctx, d.AlertID); err != nil || !ok {
		return nil, ok, err
	}

	r := report.Build(d)
	if err := s.reports.Save(ctx, r); err != nil {
		return nil, true, fmt.Errorf("save report: %w", err)
	}

	ok, err := s.alerts.UpdateStatus(ctx, r.AlertID, alert.StatusTriaged, r.Analyst)
	if err != nil {
		return nil, true, fmt.Errorf("mark triaged: %w", err)
	}
	if !ok {
		// alert vanished between the lookup and the update
		s.logger.Warn(ctx, "report saved for missing alert", "alert_id", r.AlertID)
	}

	if s.metrics != nil {
		s.metrics.observeReport(r)
		if ok {
			s.metrics.Transitions.WithLabelValues(string(alert.StatusTriaged)).Inc()
		}
	}
	s.logger.Info(ctx, "triage report filed",
		"alert_id", r.AlertID,
		"analyst", r.Analyst,
		"verdict", r.Verdict,
		"action", r.Action,
		"ai_accepted", r.AIAccepted,
	)
	return r, true, nil
}

// lifecycleAlerts loads the alert collection for dwell-time averages. A read
// failure degrades to no alerts.
func (s *Service) lifecycleAlerts(ctx context.Context) []alert.Alert {
	alerts, err := s.alerts.LoadAll(ctx)
	if err != nil {
		s.logger.Warn(ctx, "lifecycle averages without alerts", "error", err)
		return nil
	}
	return alerts
}

// Audit returns every report, newest first, with the global metrics.
func (s *Service) Audit(ctx context.Context) (*AuditView, error) {
	reports, err := s.reports.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	m := audit.ComputeGlobal(reports)
	m.LifecycleAvgMinutes = audit.LifecycleAverages(s.lifecycleAlerts(ctx))
	return &AuditView{Reports: reports, Metrics: m}, nil
}

// Summary returns the global and per-analyst metrics.
func (s *Service) Summary(ctx context.Context) (*audit.Summary, error) {
	reports, err := s.reports.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	sum := audit.Summarize(reports, s.lifecycleAlerts(ctx))
	return &sum, nil
}

// ExportCSV writes every report as CSV to w.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer) error {
	reports, err := s.reports.List(ctx)
	if err != nil {
		return fmt.Errorf("list reports: %w", err)
	}
	return audit.WriteCSV(w, reports)
}

// Close waits for in-flight escalation notices, or until ctx is done.
func (s *Service) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("escalation notices still pending"), ctx.Err())
	}
}
