package querycache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/gitmirror/internal/domain/model"
	"github.com/ericfisherdev/gitmirror/internal/domain/port/driven"
)

// Projector rebuilds the issues table incrementally from the Change-Event
// Log, polling driven.Store.ReadRecentChangeEvents from its own persisted
// high-water mark. It never writes to the Store; it is a pure read-side
// projection, grounded on the teacher's repo-scoped SQLite repositories
// generalized to run continuously off an event feed instead of direct CRUD
// calls.
type Projector struct {
	db     *DB
	store  driven.Store
	logger *slog.Logger
}

// NewProjector creates a Projector. logger may be nil.
func NewProjector(db *DB, store driven.Store, logger *slog.Logger) *Projector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Projector{db: db, store: store, logger: logger}
}

// Run polls the Change-Event Log every interval until ctx is canceled,
// applying each batch of new events to the projection.
func (p *Projector) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.CatchUp(ctx); err != nil {
				p.logger.Error("query cache catch-up failed", "error", err)
			}
		}
	}
}

// CatchUp applies every change event since the last processed high-water
// mark, upserting or removing the corresponding issue row.
func (p *Projector) CatchUp(ctx context.Context) error {
	since, err := p.lastProjected(ctx)
	if err != nil {
		return fmt.Errorf("read projector state: %w", err)
	}

	events, err := p.store.ReadRecentChangeEvents(ctx, since)
	if err != nil {
		return fmt.Errorf("read recent change events: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	for _, ev := range events {
		if err := p.apply(ctx, ev); err != nil {
			return fmt.Errorf("project change event %s: %w", ev.UUID, err)
		}
	}

	last := events[len(events)-1].TimeMillis
	if err := p.setLastProjected(ctx, last); err != nil {
		return fmt.Errorf("persist projector state: %w", err)
	}

	p.logger.Debug("query cache caught up", "events", len(events), "through", last)
	return nil
}

func (p *Projector) apply(ctx context.Context, ev model.ResourceChangeEvent) error {
	issue, err := p.store.GetIssue(ctx, ev.OwnerName, ev.RepoName, ev.IssueNumber)
	if err != nil {
		return err
	}
	if issue == nil {
		_, err := p.db.Writer.ExecContext(ctx,
			`DELETE FROM issues WHERE owner = ? AND repo = ? AND number = ?`,
			ev.OwnerName, ev.RepoName, ev.IssueNumber)
		return err
	}

	labelsJSON, err := json.Marshal(issue.Labels)
	if err != nil {
		return fmt.Errorf("marshal labels: %w", err)
	}

	var closedAt *string
	if issue.ClosedAt != nil {
		s := issue.ClosedAt.UTC().Format(time.RFC3339)
		closedAt = &s
	}

	_, err = p.db.Writer.ExecContext(ctx, `
		INSERT INTO issues (owner, repo, number, title, reporter_login, labels_json, created_at, closed_at, is_closed, comment_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner, repo, number) DO UPDATE SET
			title = excluded.title,
			reporter_login = excluded.reporter_login,
			labels_json = excluded.labels_json,
			created_at = excluded.created_at,
			closed_at = excluded.closed_at,
			is_closed = excluded.is_closed,
			comment_count = excluded.comment_count,
			updated_at = excluded.updated_at
	`,
		issue.RepoOwner, issue.RepoName, issue.Number, issue.Title, issue.ReporterLogin,
		string(labelsJSON), issue.CreatedAt.UTC().Format(time.RFC3339), closedAt,
		boolToInt(issue.IsClosed), len(issue.Comments), time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func (p *Projector) lastProjected(ctx context.Context) (int64, error) {
	var v int64
	err := p.db.Reader.QueryRowContext(ctx, `SELECT last_projected_millis FROM projector_state WHERE id = 1`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return v, err
}

func (p *Projector) setLastProjected(ctx context.Context, v int64) error {
	_, err := p.db.Writer.ExecContext(ctx, `UPDATE projector_state SET last_projected_millis = ? WHERE id = 1`, v)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
