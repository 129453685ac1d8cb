package model

import "time"

// ChangeEventTTL is the age at which a change-log entry becomes eligible
// for opportunistic deletion on the next read pass.
const ChangeEventTTL = 8 * 24 * time.Hour

// ResourceChangeEvent is an entry in the engine's append-only change log,
// emitted whenever a persisted Issue's canonicalized form changes.
// Entries older than ChangeEventTTL are eligible for deletion on read.
type ResourceChangeEvent struct {
	TimeMillis int64
	UUID       string
	OwnerName  string
	RepoName   string
	IssueNumber int
}
