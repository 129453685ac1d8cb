// Package httphandler is the HTTP driving adapter serving the read-only
// mirror API: recent change events, repository metadata, issue lookups, and
// an operator endpoint to trigger an out-of-cycle full scan.
package httphandler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ericfisherdev/gitmirror/internal/adapter/driving/http/querycache"
	"github.com/ericfisherdev/gitmirror/internal/domain/port/driven"
)

// scanRequester is the subset of *application.Scheduler the read API needs.
// Declared locally so this package does not import application for a
// single method, mirroring the teacher's narrow-interface-at-the-boundary
// style.
type scanRequester interface {
	RequestFullScan()
}

// Handler is the HTTP driving adapter that serves the read-only mirror API.
type Handler struct {
	store     driven.Store
	issues    *querycache.IssueQuery
	scheduler scanRequester
	logger    *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. scheduler may
// be nil, in which case POST /api/v1/scan responds 503.
func NewHandler(store driven.Store, issues *querycache.IssueQuery, scheduler scanRequester, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: store, issues: issues, scheduler: scheduler, logger: logger}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with auth, logging, and recovery middleware.
func NewServeMux(h *Handler, presharedKey string, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/events", h.ListRecentEvents)
	mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}", h.GetRepository)
	mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/issues/{number}", h.GetIssue)
	mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/issues", h.ListIssues)
	mux.HandleFunc("POST /api/v1/scan", h.TriggerScan)
	mux.HandleFunc("GET /api/v1/health", h.Health)

	// Recovery innermost so panics are caught before logging; auth outermost
	// so an unauthenticated request never reaches application logic.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)
	wrapped = authMiddleware(presharedKey, wrapped)

	return wrapped
}

// ListRecentEvents returns change-log entries at or after the "since"
// query parameter (milliseconds since epoch; defaults to 0).
func (h *Handler) ListRecentEvents(w http.ResponseWriter, r *http.Request) {
	since := int64(0)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since parameter")
			return
		}
		since = parsed
	}

	events, err := h.store.ReadRecentChangeEvents(r.Context(), since)
	if err != nil {
		h.logger.Error("failed to read recent change events", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]EventResponse, 0, len(events))
	for _, ev := range events {
		resp = append(resp, toEventResponse(ev))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetRepository returns a single mirrored repository's metadata.
func (h *Handler) GetRepository(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("owner")
	repo := r.PathValue("repo")

	rec, err := h.store.GetRepository(r.Context(), owner, repo)
	if err != nil {
		h.logger.Error("failed to get repository", "owner", owner, "repo", repo, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "repository not found")
		return
	}

	writeJSON(w, http.StatusOK, toRepositoryResponse(*rec))
}

// GetIssue returns a single issue by repository and number, from the query
// cache projection.
func (h *Handler) GetIssue(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("owner")
	repo := r.PathValue("repo")
	numberStr := r.PathValue("number")

	number, err := strconv.Atoi(numberStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid issue number")
		return
	}

	summary, err := h.issues.Get(r.Context(), owner, repo, number)
	if err != nil {
		h.logger.Error("failed to get issue", "owner", owner, "repo", repo, "number", number, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if summary == nil {
		writeError(w, http.StatusNotFound, "issue not found")
		return
	}

	resp := toIssueResponse(*summary)
	if r.URL.Query().Get("render") == "html" {
		issue, err := h.store.GetIssue(r.Context(), owner, repo, number)
		if err != nil {
			h.logger.Error("failed to load issue body for rendering", "owner", owner, "repo", repo, "number", number, "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if issue != nil {
			resp.BodyHTML = renderMarkdown(issue.Body)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListIssues returns every projected issue for a repository.
func (h *Handler) ListIssues(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("owner")
	repo := r.PathValue("repo")

	summaries, err := h.issues.ListByRepo(r.Context(), owner, repo)
	if err != nil {
		h.logger.Error("failed to list issues", "owner", owner, "repo", repo, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]IssueResponse, 0, len(summaries))
	for _, s := range summaries {
		resp = append(resp, toIssueResponse(s))
	}

	writeJSON(w, http.StatusOK, resp)
}

// TriggerScan requests an out-of-cycle full scan on the next scheduler tick.
func (h *Handler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not available")
		return
	}

	h.scheduler.RequestFullScan()
	writeJSON(w, http.StatusAccepted, ScanTriggerResponse{Requested: true})
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   nowRFC3339(),
	})
}
