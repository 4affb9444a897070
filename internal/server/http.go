// Package server exposes evaluations over HTTP and a gRPC health endpoint.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/packet-underwriter/constants"
	"github.com/joseph-ayodele/packet-underwriter/internal/async"
	"github.com/joseph-ayodele/packet-underwriter/internal/common"
	"github.com/joseph-ayodele/packet-underwriter/internal/entity"
	"github.com/joseph-ayodele/packet-underwriter/internal/export"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Deps are the collaborators behind the HTTP API. Queue is optional; without
// it the async routes answer 503.
type Deps struct {
	Evaluator async.Evaluator
	Queue     *async.EvaluationQueue
	Exporter  *export.Service
	Ping      func(ctx context.Context) error
	// Token enables bearer authentication on /v1 routes when non-empty.
	Token string
}

type handler struct {
	deps   Deps
	logger *slog.Logger
}

func NewHandler(deps Deps, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Exporter == nil {
		deps.Exporter = export.NewService(logger)
	}
	h := &handler{deps: deps, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)

	r.Get("/healthz", h.health)
	r.Route("/v1", func(r chi.Router) {
		if deps.Token != "" {
			r.Use(bearerAuth(deps.Token))
		}
		r.Post("/cases/{caseID}/evaluate", h.evaluate)
		r.Post("/cases/{caseID}/evaluations", h.submit)
		r.Get("/evaluations/{jobID}", h.job)
		r.Get("/evaluations/{jobID}/report", h.jobReport)
		r.Get("/evaluations/{jobID}/report.xlsx", h.jobReportXLSX)
	})
	return r
}

// requestID carries X-Request-ID, or a fresh one, into the context.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(common.WithRequestID(r.Context(), id)))
	})
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const prefix = "Bearer "
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, prefix) || subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if h.deps.Ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := h.deps.Ping(ctx); err != nil {
			httpError(w, http.StatusServiceUnavailable, "unavailable", "record store: %v", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) evaluate(w http.ResponseWriter, r *http.Request) {
	caseID, ok := caseIDParam(w, r)
	if !ok {
		return
	}
	report, err := h.deps.Evaluator.Evaluate(r.Context(), caseID)
	if err != nil {
		h.logger.Error("server.evaluate.failed", "case_id", caseID, "error", err)
		writeAppError(w, err)
		return
	}
	if report.Status == constants.RunNotFound {
		writeJSON(w, http.StatusNotFound, report)
		return
	}
	if wantsXLSX(r) {
		h.writeXLSX(w, report)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handler) submit(w http.ResponseWriter, r *http.Request) {
	if h.deps.Queue == nil {
		httpError(w, http.StatusServiceUnavailable, "unavailable", "async evaluation is disabled")
		return
	}
	caseID, ok := caseIDParam(w, r)
	if !ok {
		return
	}
	job, err := h.deps.Queue.Submit(r.Context(), caseID)
	if err != nil {
		if errors.Is(err, async.ErrQueueClosed) {
			httpError(w, http.StatusServiceUnavailable, "unavailable", "%v", err)
			return
		}
		httpError(w, http.StatusTooManyRequests, "queue_full", "%v", err)
		return
	}
	w.Header().Set("Location", "/v1/evaluations/"+job.ID)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id":  job.ID,
		"case_id": job.CaseID,
		"status":  string(async.JobQueued),
	})
}

func (h *handler) lookup(w http.ResponseWriter, r *http.Request) (async.JobState, bool) {
	if h.deps.Queue == nil {
		httpError(w, http.StatusServiceUnavailable, "unavailable", "async evaluation is disabled")
		return async.JobState{}, false
	}
	id := chi.URLParam(r, "jobID")
	st, ok := h.deps.Queue.Results().Get(id)
	if !ok {
		httpError(w, http.StatusNotFound, "not_found", "evaluation %s not found", id)
		return async.JobState{}, false
	}
	return st, true
}

func (h *handler) job(w http.ResponseWriter, r *http.Request) {
	st, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// finished returns the report of a finished job or writes why there is none.
func (h *handler) finished(w http.ResponseWriter, r *http.Request) (entity.Report, bool) {
	st, ok := h.lookup(w, r)
	if !ok {
		return entity.Report{}, false
	}
	switch st.Status {
	case async.JobQueued, async.JobRunning:
		httpError(w, http.StatusConflict, "not_ready", "evaluation is %s", st.Status)
		return entity.Report{}, false
	case async.JobFailed:
		httpError(w, http.StatusInternalServerError, "api_error", "evaluation failed: %s", st.Error)
		return entity.Report{}, false
	}
	return *st.Report, true
}

func (h *handler) jobReport(w http.ResponseWriter, r *http.Request) {
	report, ok := h.finished(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handler) jobReportXLSX(w http.ResponseWriter, r *http.Request) {
	report, ok := h.finished(w, r)
	if !ok {
		return
	}
	h.writeXLSX(w, report)
}

func (h *handler) writeXLSX(w http.ResponseWriter, report entity.Report) {
	b, err := h.deps.Exporter.ReportXLSX(report)
	if err != nil {
		h.logger.Error("export.xlsx.failed", "case_id", report.CaseID, "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", "export failed: %v", err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-%s.xlsx"`, report.CaseID, report.RunID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func wantsXLSX(r *http.Request) bool {
	return r.URL.Query().Get("format") == "xlsx" || strings.Contains(r.Header.Get("Accept"), xlsxContentType)
}

// writeAppError maps application errors onto HTTP statuses through the
// same classification the gRPC surface uses.
func writeAppError(w http.ResponseWriter, err error) {
	st, _ := status.FromError(common.ToStatus(err))
	switch st.Code() {
	case codes.NotFound:
		httpError(w, http.StatusNotFound, "not_found", "%s", st.Message())
	case codes.InvalidArgument:
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%s", st.Message())
	case codes.ResourceExhausted:
		httpError(w, http.StatusTooManyRequests, "rate_limited", "%s", st.Message())
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%s", st.Message())
	}
}

// caseIDParam reads and validates the {caseID} route parameter.
func caseIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	caseID := strings.TrimSpace(chi.URLParam(r, "caseID"))
	if err := common.ValidateAndReturnError(common.NewValidator().Field("case_id", caseID, common.CaseID)); err != nil {
		writeAppError(w, err)
		return "", false
	}
	return caseID, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}
