// Package audit computes agreement and acceptance metrics between analyst
// decisions and AI suggestions, and the average time alerts spend in each status.
//
// All functions are pure: they take already-loaded reports and alerts.
package audit

import (
	"math"

	"github.com/linnemanlabs/triagedesk/internal/alert"
	"github.com/linnemanlabs/triagedesk/internal/report"
)

// UnknownAnalyst groups reports that carry no analyst.
const UnknownAnalyst = "unknown"

// Metrics summarizes a set of reports. Rates are percentages over the reports
// that carried an AI suggestion, and 0 when there were none.
type Metrics struct {
	TotalReports   int     `json:"total_reports"`
	AISuggestions  int     `json:"ai_suggestions"`
	AIAccepted     int     `json:"ai_accepted"`
	Agreement      int     `json:"agreement"`
	AgreementRate  float64 `json:"agreement_rate"`
	AcceptanceRate float64 `json:"acceptance_rate"`

	LifecycleAvgMinutes map[alert.Status]float64 `json:"lifecycle_avg_minutes,omitempty"`
}

// add counts r. With acceptedAny, an accepted report counts as accepted even
// when it carries no suggestion.
func (m *Metrics) add(r *report.Report, acceptedAny bool) {
	m.TotalReports++
	if acceptedAny && r.AIAccepted {
		m.AIAccepted++
	}
	if r.AISuggestion == nil {
		return
	}
	m.AISuggestions++
	if !acceptedAny && r.AIAccepted {
		m.AIAccepted++
	}
	if r.AISuggestion.Agrees(r.Verdict, r.Action) {
		m.Agreement++
	}
}

func (m *Metrics) finish() {
	if m.AISuggestions == 0 {
		m.AgreementRate, m.AcceptanceRate = 0, 0
		return
	}
	n := float64(m.AISuggestions)
	m.AgreementRate = float64(m.Agreement) / n * 100
	m.AcceptanceRate = float64(m.AIAccepted) / n * 100
}

// ComputeGlobal aggregates every report. Agreement requires both verdict and
// action to match the suggestion. Accepted counts every report flagged
// ai_accepted, so the acceptance rate can exceed 100 when reports were
// accepted without a recorded suggestion.
func ComputeGlobal(reports []report.Report) Metrics {
	var m Metrics
	for i := range reports {
		m.add(&reports[i], true)
	}
	m.finish()
	return m
}

// ComputePerAnalyst aggregates reports per analyst. Reports with an empty
// analyst are grouped under UnknownAnalyst. Only reports with a suggestion
// count as accepted, and rates are rounded to 1 decimal.
func ComputePerAnalyst(reports []report.Report) map[string]Metrics {
	acc := make(map[string]*Metrics)
	for i := range reports {
		r := &reports[i]
		who := r.Analyst
		if who == "" {
			who = UnknownAnalyst
		}
		m, ok := acc[who]
		if !ok {
			m = &Metrics{}
			acc[who] = m
		}
		m.add(r, false)
	}
	out := make(map[string]Metrics, len(acc))
	for who, m := range acc {
		m.finish()
		m.AgreementRate = round1(m.AgreementRate)
		m.AcceptanceRate = round1(m.AcceptanceRate)
		out[who] = *m
	}
	return out
}

// LifecycleAverages returns the mean minutes spent in each status, measured
// between consecutive history entries and attributed to the status being left.
// Every known status is present; an empty bucket is 0. Pairs with an
// unparseable timestamp are skipped. Values are rounded to 2 decimals.
func LifecycleAverages(alerts []alert.Alert) map[alert.Status]float64 {
	type bucket struct {
		sum float64
		n   int
	}
	buckets := make(map[alert.Status]*bucket, len(alert.Statuses))
	for _, st := range alert.Statuses {
		buckets[st] = &bucket{}
	}

	for i := range alerts {
		hist := alerts[i].StatusHistory
		for j := 0; j+1 < len(hist); j++ {
			start, ok1 := hist[j].Time()
			end, ok2 := hist[j+1].Time()
			if !ok1 || !ok2 {
				continue
			}
			st := hist[j].Status
			if st == "" {
				st = alert.StatusNew
			}
			b, ok := buckets[st]
			if !ok {
				b = &bucket{}
				buckets[st] = b
			}
			b.sum += end.Sub(start).Minutes()
			b.n++
		}
	}

	out := make(map[alert.Status]float64, len(buckets))
	for st, b := range buckets {
		if b.n == 0 {
			out[st] = 0
			continue
		}
		out[st] = round2(b.sum / float64(b.n))
	}
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Summary is the JSON export of the audit view.
type Summary struct {
	Global     Metrics            `json:"global"`
	PerAnalyst map[string]Metrics `json:"per_analyst"`
}

// Summarize builds the export. Lifecycle averages are attached to the global
// metrics only.
func Summarize(reports []report.Report, alerts []alert.Alert) Summary {
	g := ComputeGlobal(reports)
	g.LifecycleAvgMinutes = LifecycleAverages(alerts)
	return Summary{
		Global:     g,
		PerAnalyst: ComputePerAnalyst(reports),
	}
}
