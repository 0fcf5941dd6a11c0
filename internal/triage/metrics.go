package triage

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/triagedesk/internal/assist"
	"github.com/linnemanlabs/triagedesk/internal/llm/claude"
	"github.com/linnemanlabs/triagedesk/internal/report"
)

// Metrics holds Prometheus metrics for the triage subsystem.
type Metrics struct {
	Transitions    *prometheus.CounterVec
	ReportsTotal   *prometheus.CounterVec
	AIAgreement    *prometheus.CounterVec
	Notifications  *prometheus.CounterVec
	AssistRejected prometheus.Counter
	AssistDuration *prometheus.HistogramVec
	AssistAttempts prometheus.Histogram
	LLMCallsTotal  *prometheus.CounterVec
	LLMTokensIn    prometheus.Counter
	LLMTokensOut   prometheus.Counter
	LLMDuration    prometheus.Histogram
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triagedesk_status_transitions_total",
			Help: "Alert status transitions by target status.",
		}, []string{"status"}),
		ReportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triagedesk_reports_total",
			Help: "Triage reports filed by verdict.",
		}, []string{"verdict"}),
		AIAgreement: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triagedesk_ai_agreement_total",
			Help: "Reports by agreement with the AI suggestion (agree, disagree, none).",
		}, []string{"outcome"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triagedesk_escalation_notifications_total",
			Help: "Escalation notices by result.",
		}, []string{"result"}),
		AssistRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "triagedesk_assist_rejected_total",
			Help: "Suggestion requests rejected because the queue was full.",
		}),
		AssistDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "triagedesk_assist_task_duration_seconds",
			Help:    "Duration of suggestion tasks by the source of the final suggestion.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms .. ~25s
		}, []string{"source"}),
		AssistAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "triagedesk_assist_attempts",
			Help:    "Model attempts per suggestion task.",
			Buckets: prometheus.LinearBuckets(0, 1, 5), // 0 .. 4
		}),
		LLMCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triagedesk_llm_calls_total",
			Help: "LLM provider calls by outcome.",
		}, []string{"outcome"}),
		LLMTokensIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "triagedesk_llm_tokens_input_total",
			Help: "Total LLM input tokens consumed.",
		}),
		LLMTokensOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "triagedesk_llm_tokens_output_total",
			Help: "Total LLM output tokens consumed.",
		}),
		LLMDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "triagedesk_llm_call_duration_seconds",
			Help:    "Duration of individual LLM calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 0.25s .. 32s
		}),
	}

	reg.MustRegister(
		m.Transitions,
		m.ReportsTotal,
		m.AIAgreement,
		m.Notifications,
		m.AssistRejected,
		m.AssistDuration,
		m.AssistAttempts,
		m.LLMCallsTotal,
		m.LLMTokensIn,
		m.LLMTokensOut,
		m.LLMDuration,
	)

	return m
}

func (m *Metrics) observeReport(r *report.Report) {
	m.ReportsTotal.WithLabelValues(string(r.Verdict)).Inc()
	outcome := "none"
	if r.AISuggestion != nil {
		outcome = "disagree"
		if r.AISuggestion.Agrees(r.Verdict, r.Action) {
			outcome = "agree"
		}
	}
	m.AIAgreement.WithLabelValues(outcome).Inc()
}

// AssistHooks returns queue hooks that feed the assist metrics.
func (m *Metrics) AssistHooks() assist.QueueHooks {
	return assist.QueueHooks{
		OnReject: m.AssistRejected.Inc,
		OnComplete: func(e *assist.CompleteEvent) {
			m.AssistDuration.WithLabelValues(e.Source).Observe(e.Duration.Seconds())
			m.AssistAttempts.Observe(float64(e.Attempts))
		},
	}
}

// LLMHooks returns Claude client hooks that feed the LLM metrics.
func (m *Metrics) LLMHooks() claude.Hooks {
	return claude.Hooks{
		OnCall: func(e *claude.CallEvent) {
			outcome := "ok"
			if e.Err != nil {
				outcome = "error"
			}
			m.LLMCallsTotal.WithLabelValues(outcome).Inc()
			m.LLMTokensIn.Add(float64(e.InputTokens))
			m.LLMTokensOut.Add(float64(e.OutputTokens))
			m.LLMDuration.Observe(e.Duration.Seconds())
		},
	}
}
