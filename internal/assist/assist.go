// Package assist produces AI triage suggestions for alerts.
//
// A Suggester turns an alert summary and its artifact texts into a verdict,
// action and confidence. Queue runs suggesters on a bounded worker pool so
// HTTP handlers can hand out a task id and return immediately. The Heuristic
// suggester is always available and is the fallback when a model-backed
// suggester fails or is not configured.
package assist

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/linnemanlabs/triagedesk/internal/report"
)

// Sources recorded on a Suggestion.
const (
	SourceModel     = "model"
	SourceHeuristic = "heuristic"
	SourceFailed    = "failed"
)

// MinConfidence is the confidence below which a model suggestion is replaced
// by the heuristic one.
const MinConfidence = 0.01

// MaxArtifactChars bounds each artifact's text in model prompts.
const MaxArtifactChars = 2000

// Request is what a suggester sees of an alert.
type Request struct {
	AlertID string
	Summary string
	// Artifacts maps artifact name to its text.
	Artifacts map[string]string
}

// ArtifactNames returns the artifact names in sorted order.
func (r *Request) ArtifactNames() []string {
	names := make([]string, 0, len(r.Artifacts))
	for k := range r.Artifacts {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Suggestion is a suggester's output.
type Suggestion struct {
	Verdict    report.Verdict `json:"verdict"`
	Action     report.Action  `json:"action"`
	Confidence float64        `json:"confidence"`
	Rationale  string         `json:"rationale"`
	Source     string         `json:"source,omitempty"`
}

// Suggester produces a suggestion for one alert.
type Suggester interface {
	Suggest(ctx context.Context, req *Request) (*Suggestion, error)
}

// SuggesterFunc adapts a function to Suggester.
type SuggesterFunc func(ctx context.Context, req *Request) (*Suggestion, error)

// Suggest implements Suggester.
func (f SuggesterFunc) Suggest(ctx context.Context, req *Request) (*Suggestion, error) {
	return f(ctx, req)
}

// Truncate cuts s to n characters and marks the cut.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "...[truncated]"
}

var (
	ipv4Pattern     = regexp.MustCompile(`(\d{1,3}\.){3}\d{1,3}`)
	downloaderTerms = []string{"powershell", "iex (", "downloadstring"}
	phishingTerms   = []string{"attachment", "macro", "urgent", "reset_instructions"}
)

// Heuristic suggests from keywords in the artifact texts.
type Heuristic struct{}

// Suggest never fails.
func (Heuristic) Suggest(_ context.Context, req *Request) (*Suggestion, error) {
	return heuristic(req), nil
}

func heuristic(req *Request) *Suggestion {
	parts := make([]string, 0, len(req.Artifacts))
	for _, name := range req.ArtifactNames() {
		parts = append(parts, req.Artifacts[name])
	}
	blob := strings.ToLower(strings.Join(parts, " "))

	if containsAny(blob, downloaderTerms) {
		if ipv4Pattern.MatchString(blob) {
			return &Suggestion{
				Verdict:    report.VerdictTruePositive,
				Action:     report.ActionIsolate,
				Confidence: 0.93,
				Rationale:  "PowerShell downloader + external IP observed, likely compromise.",
				Source:     SourceHeuristic,
			}
		}
		return &Suggestion{
			Verdict:    report.VerdictTruePositive,
			Action:     report.ActionIsolate,
			Confidence: 0.80,
			Rationale:  "PowerShell downloader observed; treat as likely compromise.",
			Source:     SourceHeuristic,
		}
	}

	if containsAny(blob, phishingTerms) {
		return &Suggestion{
			Verdict:    report.VerdictUncertain,
			Action:     report.ActionMonitor,
			Confidence: 0.55,
			Rationale:  "Phishing indicators present. Recommend enrichment and monitoring; isolate if endpoint confirms outbound connections.",
			Source:     SourceHeuristic,
		}
	}

	return &Suggestion{
		Verdict:    report.VerdictUncertain,
		Action:     report.ActionMonitor,
		Confidence: 0.40,
		Rationale:  "Insufficient indicators. Monitor and enrich.",
		Source:     SourceHeuristic,
	}
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
