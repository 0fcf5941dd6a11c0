package alertapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/triagedesk/internal/alert"
	"github.com/linnemanlabs/triagedesk/internal/assist"
	"github.com/linnemanlabs/triagedesk/internal/authmw"
	"github.com/linnemanlabs/triagedesk/internal/report"
)

func (a *API) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := a.svc.ListAlerts(r.Context())
	if err != nil {
		a.serverError(w, r, err, "failed to list alerts")
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (a *API) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("triagedesk.alert.id", id))

	detail, ok, err := a.svc.GetAlert(r.Context(), id)
	if err != nil {
		a.serverError(w, r, err, "failed to get alert", "alert_id", id)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

type statusRequest struct {
	Status  string `json:"status"`
	Analyst string `json:"analyst,omitempty"`
}

func (a *API) handleChangeStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("triagedesk.alert.id", id))

	var req statusRequest
	err := decodeBody(r, w, &req, func(get func(string) string) error {
		req.Status = get("new_status")
		if req.Status == "" {
			req.Status = get("status")
		}
		req.Analyst = get("analyst")
		return nil
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	changedBy := actor(r, req.Analyst)
	updated, ok, err := a.svc.ChangeStatus(r.Context(), id, req.Status, changedBy)
	switch {
	case errors.Is(err, alert.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		a.serverError(w, r, err, "failed to change status", "alert_id", id)
		return
	case !ok:
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	span.SetAttributes(attribute.String("triagedesk.alert.status", string(updated.Status)))
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) handleRequestSuggestion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("triagedesk.alert.id", id))

	task, ok, err := a.svc.RequestSuggestion(r.Context(), id)
	switch {
	case errors.Is(err, assist.ErrQueueFull), errors.Is(err, assist.ErrQueueClosed):
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		a.serverError(w, r, err, "failed to queue suggestion", "alert_id", id)
		return
	case !ok:
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"task_id": task.ID,
		"status":  task.Status,
	})
}

func (a *API) handleGetSuggestion(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("triagedesk.task.id", taskID))

	task, ok, err := a.svc.Suggestion(r.Context(), taskID)
	if err != nil {
		a.serverError(w, r, err, "failed to get suggestion", "task_id", taskID)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"task_id": taskID, "status": assist.TaskUnknown})
		return
	}
	out := map[string]any{"task_id": task.ID, "status": task.Status}
	if task.Status == assist.TaskDone && task.Result != nil {
		out["result"] = task.Result
	}
	writeJSON(w, http.StatusOK, out)
}

// actor picks the analyst named in the body, or the authenticated one.
func actor(r *http.Request, fromBody string) string {
	who := fromBody
	if who == "" {
		who, _ = authmw.AnalystFromContext(r.Context())
	}
	if who == "" {
		who = "unknown"
	}
	if rs := []rune(who); len(rs) > report.MaxAnalystLen {
		who = string(rs[:report.MaxAnalystLen])
	}
	return who
}
