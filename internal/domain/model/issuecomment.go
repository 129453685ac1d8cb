package model

import "time"

// IssueComment is a single comment on an Issue. Order is preserved as
// returned by upstream.
type IssueComment struct {
	UserLogin string
	Body      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
