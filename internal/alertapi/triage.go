package alertapi

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/triagedesk/internal/alert"
	"github.com/linnemanlabs/triagedesk/internal/report"
)

type triageRequest struct {
	Analyst      string   `json:"analyst,omitempty"`
	Verdict      string   `json:"verdict"`
	Action       string   `json:"action"`
	Notes        string   `json:"notes,omitempty"`
	AIVerdict    string   `json:"ai_verdict,omitempty"`
	AIAction     string   `json:"ai_action,omitempty"`
	AIConfidence *float64 `json:"ai_confidence,omitempty"`
	AIRationale  string   `json:"ai_rationale,omitempty"`
	AITaskID     string   `json:"ai_task_id,omitempty"`
	AIAccepted   bool     `json:"ai_accepted,omitempty"`
}

func (t *triageRequest) fromForm(get func(string) string) error {
	t.Analyst = get("analyst")
	t.Verdict = get("verdict")
	t.Action = get("action")
	t.Notes = get("notes")
	t.AIVerdict = get("ai_verdict")
	t.AIAction = get("ai_action")
	t.AIRationale = get("ai_rationale")
	t.AITaskID = get("ai_task_id")
	t.AIAccepted = get("ai_accepted") != ""
	c, err := formFloat(get("ai_confidence"))
	if err != nil {
		return err
	}
	t.AIConfidence = c
	return nil
}

// decision builds the report input. A suggestion is attached only when both
// its verdict and action were sent.
func (t *triageRequest) decision(alertID, analyst string, now time.Time) report.Decision {
	d := report.Decision{
		AlertID:    alertID,
		Analyst:    analyst,
		Verdict:    report.Verdict(t.Verdict),
		Action:     report.Action(t.Action),
		Notes:      t.Notes,
		AIAccepted: t.AIAccepted,
	}
	if t.AIVerdict != "" && t.AIAction != "" {
		s := &report.Suggestion{
			Verdict:    report.Verdict(t.AIVerdict),
			Action:     report.Action(t.AIAction),
			Rationale:  t.AIRationale,
			TaskID:     t.AITaskID,
			ProvidedAt: alert.FormatTimestamp(now),
		}
		if t.AIConfidence != nil {
			s.Confidence = *t.AIConfidence
		}
		d.AISuggestion = s
	}
	return d
}

func (a *API) handleSubmitTriage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("triagedesk.alert.id", id))

	var req triageRequest
	if err := decodeBody(r, w, &req, req.fromForm); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rep, ok, err := a.svc.SubmitDecision(r.Context(), req.decision(id, actor(r, req.Analyst), time.Now()))
	switch {
	case errors.Is(err, report.ErrInvalidDecision), errors.Is(err, report.ErrInvalidID):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		a.serverError(w, r, err, "failed to submit triage", "alert_id", id)
		return
	case !ok:
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}

	span.SetAttributes(
		attribute.String("triagedesk.report.verdict", string(rep.Verdict)),
		attribute.Bool("triagedesk.report.ai_accepted", rep.AIAccepted),
	)
	writeJSON(w, http.StatusCreated, rep)
}

func (a *API) handleAudit(w http.ResponseWriter, r *http.Request) {
	view, err := a.svc.Audit(r.Context())
	if err != nil {
		a.serverError(w, r, err, "failed to build audit view")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleAuditMetrics(w http.ResponseWriter, r *http.Request) {
	sum, err := a.svc.Summary(r.Context())
	if err != nil {
		a.serverError(w, r, err, "failed to build audit summary")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (a *API) handleAuditCSV(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := a.svc.ExportCSV(r.Context(), &buf); err != nil {
		a.serverError(w, r, err, "failed to export reports")
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="triage_reports.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
