package querycache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// IssueSummary is a row of the issues projection, shaped for the read API.
type IssueSummary struct {
	Owner         string
	Repo          string
	Number        int
	Title         string
	ReporterLogin string
	Labels        []string
	CreatedAt     string
	ClosedAt      *string
	IsClosed      bool
	CommentCount  int
	UpdatedAt     string
}

// IssueQuery answers indexed read-API lookups against the issues
// projection.
type IssueQuery struct {
	db *DB
}

// NewIssueQuery creates an IssueQuery backed by the given DB.
func NewIssueQuery(db *DB) *IssueQuery {
	return &IssueQuery{db: db}
}

// Get retrieves a single issue by owner/repo/number. Returns nil, nil if no
// row is projected for it.
func (q *IssueQuery) Get(ctx context.Context, owner, repo string, number int) (*IssueSummary, error) {
	const query = `
		SELECT owner, repo, number, title, reporter_login, labels_json, created_at, closed_at, is_closed, comment_count, updated_at
		FROM issues WHERE owner = ? AND repo = ? AND number = ?`

	row := q.db.Reader.QueryRowContext(ctx, query, owner, repo, number)
	summary, err := scanIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get issue %s/%s#%d: %w", owner, repo, number, err)
	}
	return summary, nil
}

// ListByRepo returns every projected issue for a repository, ordered by
// number.
func (q *IssueQuery) ListByRepo(ctx context.Context, owner, repo string) ([]IssueSummary, error) {
	const query = `
		SELECT owner, repo, number, title, reporter_login, labels_json, created_at, closed_at, is_closed, comment_count, updated_at
		FROM issues WHERE owner = ? AND repo = ? ORDER BY number`

	rows, err := q.db.Reader.QueryContext(ctx, query, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("list issues for %s/%s: %w", owner, repo, err)
	}
	defer rows.Close()

	var out []IssueSummary
	for rows.Next() {
		summary, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issue row: %w", err)
		}
		out = append(out, *summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate issues for %s/%s: %w", owner, repo, err)
	}
	return out, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanIssue(s scanner) (*IssueSummary, error) {
	var summary IssueSummary
	var labelsJSON string
	var isClosed int

	err := s.Scan(
		&summary.Owner, &summary.Repo, &summary.Number, &summary.Title, &summary.ReporterLogin,
		&labelsJSON, &summary.CreatedAt, &summary.ClosedAt, &isClosed, &summary.CommentCount, &summary.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(labelsJSON), &summary.Labels); err != nil {
		return nil, fmt.Errorf("unmarshal labels: %w", err)
	}
	summary.IsClosed = isClosed != 0

	return &summary, nil
}
