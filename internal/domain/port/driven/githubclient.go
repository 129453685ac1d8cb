package driven

import (
	"context"
	"errors"
	"iter"
	"time"
)

// ErrQuotaUnavailable is returned by UpstreamClient.Quota when the
// implementation cannot observe a quota snapshot (a quota-blind
// deployment). The work queue falls back to its quota-blind pacing formula
// in this case.
var ErrQuotaUnavailable = errors.New("quota snapshot unavailable")

// QuotaSnapshot is a point-in-time view of the upstream platform's request
// quota, as exposed by its rate-limit endpoint or response headers.
type QuotaSnapshot struct {
	Remaining        int
	SecondsToReset   int
	TotalHourlyLimit int
}

// UpstreamRepoRef identifies one repository discovered while listing an
// owner's repositories.
type UpstreamRepoRef struct {
	ID    int64
	Owner string
	Name  string
}

// UpstreamIssue is the raw shape of an issue as returned by the upstream
// platform, before ghost-normalization and before recognized-event
// filtering. Pointer fields are nil when upstream returned a null user
// reference; the worker is responsible for mapping that to model.Ghost.
type UpstreamIssue struct {
	ID            int64
	Number        int
	Title         string
	Body          string
	HTMLURL       string
	ReporterLogin *string
	Assignees     []*string
	Labels        []string
	CreatedAt     time.Time
	ClosedAt      *time.Time
	IsPullRequest bool
	IsClosed      bool
}

// RawIssueEvent is the raw shape of one issue-events-feed entry. Kind may be
// any upstream event kind string, including ones this system does not
// recognize -- the caller is responsible for dropping those silently
// (see model.IsRecognizedIssueEventType).
type RawIssueEvent struct {
	Kind       string
	CreatedAt  time.Time
	ActorLogin *string
	Assignee   *string
	Assigner   *string
	Label      string
	From       string
	To         string
}

// RawActivityEvent is one entry from either an owner's repository-events
// feed or a repository's issue-events feed, as consumed by the event
// scanner. IssueID and IssueURL support repository-move detection: if a
// freshly refetched issue's ID differs from IssueID, IssueURL is
// reparsed to locate the issue's new owner/repo/number.
type RawActivityEvent struct {
	Kind        string
	RepoName    string
	IssueNumber int
	IssueID     int64
	IssueURL    string
	CreatedAt   time.Time
	ActorLogin  *string
}

// UpstreamClient is the driven port for the upstream code-hosting
// platform's REST API. Implementations handle their own pagination
// internally and surface it to callers as iterators; a non-nil error
// yielded mid-iteration terminates the sequence.
type UpstreamClient interface {
	// ListOrganizationRepositories lists every repository belonging to an
	// organization.
	ListOrganizationRepositories(ctx context.Context, org string) iter.Seq2[UpstreamRepoRef, error]

	// ListUserRepositories lists every repository belonging to a user
	// account.
	ListUserRepositories(ctx context.Context, user string) iter.Seq2[UpstreamRepoRef, error]

	// ListRepositoryIssues lists every issue (including pull requests) in
	// state ALL for a repository. Callers filter out pull requests.
	ListRepositoryIssues(ctx context.Context, owner, repo string) iter.Seq2[UpstreamIssue, error]

	// GetIssue fetches a single issue by number, used by the event scanner
	// to re-resolve a changed issue and to detect repository moves.
	GetIssue(ctx context.Context, owner, repo string, number int) (*UpstreamIssue, error)

	// ListIssueComments lists every comment on an issue, in upstream order.
	ListIssueComments(ctx context.Context, owner, repo string, number int) iter.Seq2[RawIssueComment, error]

	// ListIssueEvents lists every event recorded against an issue,
	// including kinds this system does not recognize.
	ListIssueEvents(ctx context.Context, owner, repo string, number int) iter.Seq2[RawIssueEvent, error]

	// GetUser fetches a single user's profile. Returns nil, nil if the
	// login does not resolve to an upstream account.
	GetUser(ctx context.Context, login string) (*UpstreamUser, error)

	// ListRepositoryEvents lists an owner's recent repository-events feed
	// (the platform-hosted activity stream), newest first.
	ListRepositoryEvents(ctx context.Context, ownerName string) iter.Seq2[RawActivityEvent, error]

	// ListRepositoryIssueEvents lists a single repository's recent
	// issue-events feed, newest first.
	ListRepositoryIssueEvents(ctx context.Context, owner, repo string) iter.Seq2[RawActivityEvent, error]

	// Quota returns the current request-quota snapshot. Implementations
	// that cannot observe quota (a quota-blind deployment) return
	// ErrQuotaUnavailable.
	Quota(ctx context.Context) (QuotaSnapshot, error)
}

// RawIssueComment is the raw shape of one issue comment as returned by the
// upstream platform.
type RawIssueComment struct {
	UserLogin *string
	Body      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UpstreamUser is the raw shape of a user profile as returned by the
// upstream platform. A nil Login (after normalization by the caller) never
// occurs in practice; callers should still treat login resolution
// defensively per the worker's "tolerate null login by no-op" rule.
type UpstreamUser struct {
	Login       string
	DisplayName string
	Email       string
}
