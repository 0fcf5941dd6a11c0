// Package report defines the analyst's triage report and the Store interface
// reports are persisted through.
package report

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/linnemanlabs/triagedesk/internal/alert"
)

// Verdict is the analyst's classification of an alert.
type Verdict string

const (
	VerdictTruePositive  Verdict = "tp"
	VerdictFalsePositive Verdict = "fp"
	VerdictUncertain     Verdict = "uncertain"
)

// Valid reports whether v is one of the known verdicts.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictTruePositive, VerdictFalsePositive, VerdictUncertain:
		return true
	}
	return false
}

// Action is the remediation chosen for an alert.
type Action string

const (
	ActionIsolate       Action = "isolate"
	ActionBlockIP       Action = "blockip"
	ActionMonitor       Action = "monitor"
	ActionResetPassword Action = "resetpw"
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionIsolate, ActionBlockIP, ActionMonitor, ActionResetPassword:
		return true
	}
	return false
}

const (
	// MaxAnalystLen bounds the analyst identifier, in characters.
	MaxAnalystLen = 64

	// MaxNotesLen bounds free-form notes, in characters.
	MaxNotesLen = 10000
)

var (
	ErrInvalidDecision = errors.New("invalid decision")
	ErrInvalidID       = errors.New("invalid alert id")
)

// Suggestion is the AI suggestion an analyst was shown when deciding.
type Suggestion struct {
	Verdict    Verdict `json:"verdict"`
	Action     Action  `json:"action"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
	TaskID     string  `json:"task_id,omitempty"`
	ProvidedAt string  `json:"provided_at"`
}

// Agrees reports whether the suggestion matches both verdict and action.
func (s *Suggestion) Agrees(v Verdict, a Action) bool {
	return s != nil && s.Verdict == v && s.Action == a
}

// Report is the analyst's recorded decision for one alert.
type Report struct {
	AlertID      string      `json:"alert_id"`
	Analyst      string      `json:"analyst"`
	Verdict      Verdict     `json:"verdict"`
	Action       Action      `json:"action"`
	Notes        string      `json:"notes"`
	AISuggestion *Suggestion `json:"ai_suggestion"`
	AIAccepted   bool        `json:"ai_accepted"`
	Timestamp    string      `json:"timestamp"`
}

// Decision is the input for Build.
type Decision struct {
	AlertID      string
	Analyst      string
	Verdict      Verdict
	Action       Action
	Notes        string
	AISuggestion *Suggestion
	AIAccepted   bool
}

// Validate checks the enumerations and the identifier.
func (d *Decision) Validate() error {
	var errs []error
	if d.AlertID == "" {
		errs = append(errs, errors.New("alert id is required"))
	}
	if d.Analyst == "" {
		errs = append(errs, errors.New("analyst is required"))
	}
	if !d.Verdict.Valid() {
		errs = append(errs, fmt.Errorf("unknown verdict %q", d.Verdict))
	}
	if !d.Action.Valid() {
		errs = append(errs, fmt.Errorf("unknown action %q", d.Action))
	}
	if s := d.AISuggestion; s != nil {
		if s.Confidence < 0 || s.Confidence > 1 {
			errs = append(errs, fmt.Errorf("suggestion confidence %v outside [0,1]", s.Confidence))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidDecision, errors.Join(errs...))
	}
	return nil
}

// Build stamps d with the current UTC time. The analyst and notes are cut to
// their maximum lengths.
func Build(d Decision) *Report {
	return build(d, time.Now())
}

func build(d Decision, now time.Time) *Report {
	var sugg *Suggestion
	if d.AISuggestion != nil {
		cp := *d.AISuggestion
		sugg = &cp
	}
	return &Report{
		AlertID:      d.AlertID,
		Analyst:      truncate(d.Analyst, MaxAnalystLen),
		Verdict:      d.Verdict,
		Action:       d.Action,
		Notes:        truncate(d.Notes, MaxNotesLen),
		AISuggestion: sugg,
		AIAccepted:   d.AIAccepted,
		Timestamp:    alert.FormatTimestamp(now),
	}
}

// truncate cuts s to n characters.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
