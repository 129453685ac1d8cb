package model

// User is an upstream account's profile, immutable within one ingestion
// cycle and refreshed on full scans.
type User struct {
	Login       string
	DisplayName string
	Email       string
}

// Key returns the structural deduplication key used by the work queue.
func (u User) Key() string {
	return u.Login
}

// UserRepositories is the ordered list of repository names owned by a
// single user account.
type UserRepositories struct {
	Login        string
	RepoNames    []string // ordered as observed-and-accepted during the owner scan
}

// Organization is the ordered list of repository names belonging to a
// single organization account.
type Organization struct {
	Name      string
	RepoNames []string // ordered as observed-and-accepted during the owner scan
}
