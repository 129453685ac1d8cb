package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/gitmirror/internal/adapter/driving/http/querycache"
	"github.com/ericfisherdev/gitmirror/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshalling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// IssueResponse is the JSON representation of a projected issue.
type IssueResponse struct {
	Owner         string   `json:"owner"`
	Repo          string   `json:"repo"`
	Number        int      `json:"number"`
	Title         string   `json:"title"`
	ReporterLogin string   `json:"reporter_login"`
	Labels        []string `json:"labels"`
	CreatedAt     string   `json:"created_at"`
	ClosedAt      *string  `json:"closed_at,omitempty"`
	IsClosed      bool     `json:"is_closed"`
	CommentCount  int      `json:"comment_count"`
	UpdatedAt     string   `json:"updated_at"`
	BodyHTML      string   `json:"body_html,omitempty"`
}

// RepositoryResponse is the JSON representation of a mirrored repository.
type RepositoryResponse struct {
	Owner      string `json:"owner"`
	Name       string `json:"name"`
	FirstIssue *int   `json:"first_issue,omitempty"`
	LastIssue  *int   `json:"last_issue,omitempty"`
}

// EventResponse is the JSON representation of one change-log entry.
type EventResponse struct {
	TimeMillis  int64  `json:"time_millis"`
	UUID        string `json:"uuid"`
	Owner       string `json:"owner"`
	Repo        string `json:"repo"`
	IssueNumber int    `json:"issue_number"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// ScanTriggerResponse acknowledges a full-scan request.
type ScanTriggerResponse struct {
	Requested bool `json:"requested"`
}

func toIssueResponse(summary querycache.IssueSummary) IssueResponse {
	labels := summary.Labels
	if labels == nil {
		labels = []string{}
	}
	return IssueResponse{
		Owner:         summary.Owner,
		Repo:          summary.Repo,
		Number:        summary.Number,
		Title:         summary.Title,
		ReporterLogin: summary.ReporterLogin,
		Labels:        labels,
		CreatedAt:     summary.CreatedAt,
		ClosedAt:      summary.ClosedAt,
		IsClosed:      summary.IsClosed,
		CommentCount:  summary.CommentCount,
		UpdatedAt:     summary.UpdatedAt,
	}
}

func toRepositoryResponse(repo model.Repository) RepositoryResponse {
	return RepositoryResponse{
		Owner:      repo.Owner,
		Name:       repo.Name,
		FirstIssue: repo.FirstIssue,
		LastIssue:  repo.LastIssue,
	}
}

func toEventResponse(ev model.ResourceChangeEvent) EventResponse {
	return EventResponse{
		TimeMillis:  ev.TimeMillis,
		UUID:        ev.UUID,
		Owner:       ev.OwnerName,
		Repo:        ev.RepoName,
		IssueNumber: ev.IssueNumber,
	}
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
