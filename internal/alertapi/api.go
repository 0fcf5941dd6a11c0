package alertapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/triagedesk/internal/alert"
	"github.com/linnemanlabs/triagedesk/internal/assist"
	"github.com/linnemanlabs/triagedesk/internal/audit"
	"github.com/linnemanlabs/triagedesk/internal/postgres"
	"github.com/linnemanlabs/triagedesk/internal/report"
	"github.com/linnemanlabs/triagedesk/internal/triage"
)

// TriageService defines the business operations alertapi needs.
type TriageService interface {
	ListAlerts(ctx context.Context) ([]alert.Alert, error)
	GetAlert(ctx context.Context, id string) (*triage.AlertDetail, bool, error)
	ChangeStatus(ctx context.Context, id, status, changedBy string) (*alert.Alert, bool, error)
	RequestSuggestion(ctx context.Context, id string) (*assist.Task, bool, error)
	Suggestion(ctx context.Context, taskID string) (*assist.Task, bool, error)
	SubmitDecision(ctx context.Context, d report.Decision) (*report.Report, bool, error)
	Audit(ctx context.Context) (*triage.AuditView, error)
	Summary(ctx context.Context) (*audit.Summary, error)
	ExportCSV(ctx context.Context, w io.Writer) error
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    TriageService
	auth   func(http.Handler) http.Handler
}

// New creates a new API handler. auth guards the routes that change state and
// must place the analyst in the request context (see authmw.Analysts).
func New(logger log.Logger, svc TriageService, auth func(http.Handler) http.Handler) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("triage service is required"))
	}
	if auth == nil {
		panic(xerrors.New("auth middleware is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
		auth:   auth,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httpMethodLabel)

		r.Get("/alerts", a.handleListAlerts)
		r.Get("/alerts/{id}", a.handleGetAlert)
		r.Get("/assist/{taskID}", a.handleGetSuggestion)
		r.Get("/audit", a.handleAudit)
		r.Get("/audit/metrics.json", a.handleAuditMetrics)
		r.Get("/audit/export.csv", a.handleAuditCSV)

		r.Group(func(r chi.Router) {
			r.Use(a.auth)
			r.Post("/alerts/{id}/assist", a.handleRequestSuggestion)
			r.Post("/alerts/{id}/triage", a.handleSubmitTriage)
			r.Post("/alerts/{id}/status", a.handleChangeStatus)
		})
	})
}

// httpMethodLabel lets the DB query tracer label queries with the request method.
func httpMethodLabel(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(postgres.WithHTTPMethod(r.Context(), r.Method)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// nothing useful to do with a write error here
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// serverError maps a store failure to 503 or 500 and logs it.
func (a *API) serverError(w http.ResponseWriter, r *http.Request, err error, msg string, kv ...any) {
	a.logger.Error(r.Context(), err, msg, kv...)
	if errors.Is(err, alert.ErrStoreUnavailable) {
		writeError(w, http.StatusServiceUnavailable, "alert store unavailable")
		return
	}
	writeError(w, http.StatusInternalServerError, "internal error")
}
