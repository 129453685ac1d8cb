// Package web implements the read-only HTML status dashboard driving
// adapter using a templ component.
package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ericfisherdev/gitmirror/internal/adapter/driving/web/templates"
	"github.com/ericfisherdev/gitmirror/internal/application"
)

// snapshotSource is the subset of *application.Scheduler the dashboard
// needs. Declared locally so the dependency on the Scheduler narrows to a
// single method; application is imported only for the Snapshot type,
// mirroring the teacher's narrow-interface-at-the-boundary style (see
// httphandler.scanRequester).
type snapshotSource interface {
	Snapshot() application.Snapshot
}

// Handler is the web driving adapter that serves the status dashboard.
type Handler struct {
	scheduler snapshotSource
	logger    *slog.Logger
	now       func() time.Time
}

// NewHandler creates a Handler. logger may be nil.
func NewHandler(scheduler snapshotSource, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{scheduler: scheduler, logger: logger, now: time.Now}
}

// Dashboard renders the mirror's ingestion status page.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	snap := h.scheduler.Snapshot()
	data := toDashboardViewModel(snap, h.now())

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.Dashboard(data).Render(r.Context(), w); err != nil {
		h.logger.Error("failed to render dashboard", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
