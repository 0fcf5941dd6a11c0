package alert

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Status tracks where an alert is in its triage lifecycle.
type Status string

const (
	// StatusNew is the initial state of every alert
	StatusNew Status = "new"

	// StatusInProgress means an analyst has picked the alert up
	StatusInProgress Status = "in_progress"

	// StatusTriaged means a triage report was recorded
	StatusTriaged Status = "triaged"

	// StatusEscalated means the alert was handed to incident response
	StatusEscalated Status = "escalated"

	// StatusClosed is the conventional end state. It is not enforced as terminal.
	StatusClosed Status = "closed"
)

// Statuses lists the known statuses in lifecycle order.
var Statuses = []Status{StatusNew, StatusInProgress, StatusTriaged, StatusEscalated, StatusClosed}

// TimestampLayout is the wire format of transition timestamps (UTC, microseconds).
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// ErrInvalidStatus is returned by ParseStatus for values outside Statuses.
var ErrInvalidStatus = errors.New("invalid status")

// ParseStatus validates s against the known statuses.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Transition is one entry of an alert's status history.
type Transition struct {
	Status    Status `json:"status"`
	ChangedBy string `json:"changed_by"`
	Timestamp string `json:"timestamp"`
}

// Time parses the transition timestamp. Timestamps without a zone are read as UTC.
func (t Transition) Time() (time.Time, bool) {
	return ParseTimestamp(t.Timestamp)
}

// ParseTimestamp accepts RFC 3339 timestamps and zone-less ISO-8601 ones.
func ParseTimestamp(s string) (time.Time, bool) {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts.UTC(), true
	}
	if ts, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", s, time.UTC); err == nil {
		return ts, true
	}
	return time.Time{}, false
}

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Alert is a security event under triage. Only the lifecycle fields and the
// artifact table are typed; every other seed field is free-form and kept as raw
// JSON in Extra.
type Alert struct {
	ID            string            `json:"id"`
	Artifacts     map[string]string `json:"artifacts"`
	Status        Status            `json:"status"`
	StatusHistory []Transition      `json:"status_history"`

	// Extra keeps every other top-level field, compacted, so a rewrite of the
	// collection reproduces it.
	Extra map[string]json.RawMessage `json:"-"`
}

// Text returns the free-form field key as text: JSON strings unquoted, other
// values in their compact JSON form, "" when absent or null.
func (a *Alert) Text(key string) string {
	raw, ok := a.Extra[key]
	if !ok || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// SetText stores value as the string field key.
func (a *Alert) SetText(key, value string) {
	if a.Extra == nil {
		a.Extra = make(map[string]json.RawMessage)
	}
	b, _ := marshal(value) //nolint:errcheck // strings always encode
	a.Extra[key] = b
}

// Summary is the free-form "summary" field.
func (a *Alert) Summary() string { return a.Text("summary") }

// Severity is the free-form "severity" field.
func (a *Alert) Severity() string { return a.Text("severity") }

// Source is the free-form "source" field.
func (a *Alert) Source() string { return a.Text("source") }

// Fields builds an Extra map of string fields from key, value pairs.
func Fields(kv ...string) map[string]json.RawMessage {
	var a Alert
	for i := 0; i+1 < len(kv); i += 2 {
		a.SetText(kv[i], kv[i+1])
	}
	return a.Extra
}

// CurrentStatus reports the status of the last history entry, or StatusNew when
// there is no history yet.
func (a *Alert) CurrentStatus() Status {
	if n := len(a.StatusHistory); n > 0 {
		return a.StatusHistory[n-1].Status
	}
	return StatusNew
}

// Transition moves the alert to status and appends the change to its history.
// Timestamps never go backwards: if now is earlier than the last entry, the last
// entry's time is reused.
func (a *Alert) Transition(status Status, changedBy string, now time.Time) Transition {
	now = now.UTC()
	if n := len(a.StatusHistory); n > 0 {
		if last, ok := a.StatusHistory[n-1].Time(); ok && now.Before(last) {
			now = last
		}
	}
	t := Transition{
		Status:    status,
		ChangedBy: changedBy,
		Timestamp: FormatTimestamp(now),
	}
	a.StatusHistory = append(a.StatusHistory, t)
	a.Status = status
	return t
}

// Clone returns a deep copy of the alert.
func (a *Alert) Clone() *Alert {
	cp := *a
	if a.Artifacts != nil {
		cp.Artifacts = make(map[string]string, len(a.Artifacts))
		for k, v := range a.Artifacts {
			cp.Artifacts[k] = v
		}
	}
	if a.StatusHistory != nil {
		cp.StatusHistory = append([]Transition(nil), a.StatusHistory...)
	}
	if a.Extra != nil {
		cp.Extra = make(map[string]json.RawMessage, len(a.Extra))
		for k, v := range a.Extra {
			cp.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return &cp
}

// alertFields is Alert without its JSON methods.
type alertFields Alert

// UnmarshalJSON decodes the typed fields and stashes the rest, compacted, in
// Extra. An artifacts value that is not a name to path table is kept raw. A
// missing status is derived from the history.
func (a *Alert) UnmarshalJSON(data []byte) error {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	var out Alert
	stash := func(k string, v json.RawMessage) error {
		var buf bytes.Buffer
		if err := json.Compact(&buf, v); err != nil {
			return err
		}
		if out.Extra == nil {
			out.Extra = make(map[string]json.RawMessage)
		}
		out.Extra[k] = buf.Bytes()
		return nil
	}
	for k, v := range all {
		var err error
		switch k {
		case "id":
			err = json.Unmarshal(v, &out.ID)
		case "status":
			err = json.Unmarshal(v, &out.Status)
		case "status_history":
			err = json.Unmarshal(v, &out.StatusHistory)
		case "artifacts":
			var m map[string]string
			if json.Unmarshal(v, &m) == nil && m != nil {
				out.Artifacts = m
			} else {
				err = stash(k, v)
			}
		default:
			err = stash(k, v)
		}
		if err != nil {
			return fmt.Errorf("field %q: %w", k, err)
		}
	}
	*a = out
	if a.Status == "" {
		a.Status = a.CurrentStatus()
	}
	return nil
}

// MarshalJSON encodes the typed fields merged with Extra. Keys come out sorted.
func (a Alert) MarshalJSON() ([]byte, error) {
	f := alertFields(a)
	if f.StatusHistory == nil {
		f.StatusHistory = []Transition{}
	}
	base, err := marshal(f)
	if err != nil {
		return nil, err
	}
	merged := make(map[string]json.RawMessage, len(a.Extra)+4)
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	// A nil table means the key was absent (or not a table, and raw in Extra).
	if a.Artifacts == nil {
		delete(merged, "artifacts")
	}
	for k, v := range a.Extra {
		switch k {
		case "id", "status", "status_history":
			continue
		case "artifacts":
			if a.Artifacts != nil {
				continue
			}
		}
		merged[k] = v
	}
	return marshal(merged)
}

// marshal encodes v without HTML escaping and without the encoder's trailing newline.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
