// Package github implements the UpstreamClient port using the go-github library.
package github

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/ericfisherdev/gitmirror/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.UpstreamClient = (*Client)(nil)

// perPage is the page size requested for every paginated upstream call.
const perPage = 100

// Client implements the driven.UpstreamClient port using the go-github library.
type Client struct {
	gh *gh.Client
}

// NewClient creates a new GitHub API client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client with PAT auth)
func NewClient(token string) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	client := gh.NewClient(rateLimitClient).WithAuthToken(token)

	return &Client{gh: client}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base
// URL. This constructor is intended for testing, allowing injection of an
// httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string) (*Client, error) {
	client := gh.NewClient(httpClient)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	return &Client{gh: client}, nil
}

// ListOrganizationRepositories lists every repository belonging to an
// organization.
func (c *Client) ListOrganizationRepositories(ctx context.Context, org string) iter.Seq2[driven.UpstreamRepoRef, error] {
	return func(yield func(driven.UpstreamRepoRef, error) bool) {
		opts := &gh.RepositoryListByOrgOptions{ListOptions: gh.ListOptions{PerPage: perPage}}
		for {
			repos, resp, err := c.gh.Repositories.ListByOrg(ctx, org, opts)
			if err != nil {
				yield(driven.UpstreamRepoRef{}, fmt.Errorf("listing repositories for org %s (page %d): %w", org, opts.Page, err))
				return
			}
			logRateLimit(resp, "org-repos:"+org, opts.Page, len(repos))

			for _, r := range repos {
				if !yield(driven.UpstreamRepoRef{ID: r.GetID(), Owner: org, Name: r.GetName()}, nil) {
					return
				}
			}

			if resp.NextPage == 0 {
				return
			}
			opts.Page = resp.NextPage
		}
	}
}

// ListUserRepositories lists every repository belonging to a user account.
func (c *Client) ListUserRepositories(ctx context.Context, user string) iter.Seq2[driven.UpstreamRepoRef, error] {
	return func(yield func(driven.UpstreamRepoRef, error) bool) {
		opts := &gh.RepositoryListByUserOptions{ListOptions: gh.ListOptions{PerPage: perPage}}
		for {
			repos, resp, err := c.gh.Repositories.ListByUser(ctx, user, opts)
			if err != nil {
				yield(driven.UpstreamRepoRef{}, fmt.Errorf("listing repositories for user %s (page %d): %w", user, opts.Page, err))
				return
			}
			logRateLimit(resp, "user-repos:"+user, opts.Page, len(repos))

			for _, r := range repos {
				if !yield(driven.UpstreamRepoRef{ID: r.GetID(), Owner: user, Name: r.GetName()}, nil) {
					return
				}
			}

			if resp.NextPage == 0 {
				return
			}
			opts.Page = resp.NextPage
		}
	}
}

// ListRepositoryIssues lists every issue (including pull requests) in state
// ALL for a repository. Callers filter out pull requests.
func (c *Client) ListRepositoryIssues(ctx context.Context, owner, repo string) iter.Seq2[driven.UpstreamIssue, error] {
	return func(yield func(driven.UpstreamIssue, error) bool) {
		opts := &gh.IssueListByRepoOptions{
			State:       "all",
			Sort:        "created",
			Direction:   "asc",
			ListOptions: gh.ListOptions{PerPage: perPage},
		}
		for {
			issues, resp, err := c.gh.Issues.ListByRepo(ctx, owner, repo, opts)
			if err != nil {
				yield(driven.UpstreamIssue{}, fmt.Errorf("listing issues for %s/%s (page %d): %w", owner, repo, opts.Page, err))
				return
			}
			logRateLimit(resp, fmt.Sprintf("%s/%s/issues", owner, repo), opts.Page, len(issues))

			for _, i := range issues {
				if !yield(mapIssue(i), nil) {
					return
				}
			}

			if resp.NextPage == 0 {
				return
			}
			opts.Page = resp.NextPage
		}
	}
}

// GetIssue fetches a single issue by number.
func (c *Client) GetIssue(ctx context.Context, owner, repo string, number int) (*driven.UpstreamIssue, error) {
	issue, resp, err := c.gh.Issues.Get(ctx, owner, repo, number)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching issue %s/%s#%d: %w", owner, repo, number, err)
	}
	logRateLimit(resp, fmt.Sprintf("%s/%s#%d", owner, repo, number), 0, 1)

	mapped := mapIssue(issue)
	return &mapped, nil
}

// ListIssueComments lists every comment on an issue, in upstream order.
func (c *Client) ListIssueComments(ctx context.Context, owner, repo string, number int) iter.Seq2[driven.RawIssueComment, error] {
	return func(yield func(driven.RawIssueComment, error) bool) {
		opts := &gh.IssueListCommentsOptions{ListOptions: gh.ListOptions{PerPage: perPage}}
		for {
			comments, resp, err := c.gh.Issues.ListComments(ctx, owner, repo, number, opts)
			if err != nil {
				yield(driven.RawIssueComment{}, fmt.Errorf("listing comments for %s/%s#%d (page %d): %w", owner, repo, number, opts.Page, err))
				return
			}

			for _, cm := range comments {
				raw := driven.RawIssueComment{
					Body:      cm.GetBody(),
					CreatedAt: cm.GetCreatedAt().Time,
					UpdatedAt: cm.GetUpdatedAt().Time,
				}
				if cm.User != nil {
					login := cm.GetUser().GetLogin()
					raw.UserLogin = &login
				}
				if !yield(raw, nil) {
					return
				}
			}

			if resp.NextPage == 0 {
				return
			}
			opts.Page = resp.NextPage
		}
	}
}

// ListIssueEvents lists every event recorded against an issue, including
// kinds this system does not recognize.
func (c *Client) ListIssueEvents(ctx context.Context, owner, repo string, number int) iter.Seq2[driven.RawIssueEvent, error] {
	return func(yield func(driven.RawIssueEvent, error) bool) {
		opts := &gh.ListOptions{PerPage: perPage}
		for {
			events, resp, err := c.gh.Issues.ListIssueEvents(ctx, owner, repo, number, opts)
			if err != nil {
				yield(driven.RawIssueEvent{}, fmt.Errorf("listing events for %s/%s#%d (page %d): %w", owner, repo, number, opts.Page, err))
				return
			}

			for _, e := range events {
				if !yield(mapIssueEvent(e), nil) {
					return
				}
			}

			if resp.NextPage == 0 {
				return
			}
			opts.Page = resp.NextPage
		}
	}
}

// GetUser fetches a single user's profile. Returns nil, nil if the login
// does not resolve to an upstream account.
func (c *Client) GetUser(ctx context.Context, login string) (*driven.UpstreamUser, error) {
	u, resp, err := c.gh.Users.Get(ctx, login)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching user %s: %w", login, err)
	}
	logRateLimit(resp, "user:"+login, 0, 1)

	return &driven.UpstreamUser{
		Login:       u.GetLogin(),
		DisplayName: u.GetName(),
		Email:       u.GetEmail(),
	}, nil
}

// ListRepositoryEvents lists an owner's recent repository-events feed (the
// platform-hosted activity stream), newest first. The port does not convey
// whether ownerName is an organization or a user account, so this tries the
// organization events feed first and falls back to the user events feed on a
// 404. Each IssuesEvent/IssueCommentEvent payload is unmarshaled to recover
// the issue it concerns; every other event type is skipped.
func (c *Client) ListRepositoryEvents(ctx context.Context, ownerName string) iter.Seq2[driven.RawActivityEvent, error] {
	return func(yield func(driven.RawActivityEvent, error) bool) {
		fetch, err := c.ownerEventsFetcher(ctx, ownerName)
		if err != nil {
			yield(driven.RawActivityEvent{}, err)
			return
		}

		opts := &gh.ListOptions{PerPage: perPage}
		for {
			events, resp, err := fetch(opts)
			if err != nil {
				yield(driven.RawActivityEvent{}, fmt.Errorf("listing events for %s (page %d): %w", ownerName, opts.Page, err))
				return
			}

			for _, e := range events {
				mapped, ok, mapErr := mapActivityEvent(e)
				if mapErr != nil {
					yield(driven.RawActivityEvent{}, fmt.Errorf("parsing event payload for %s: %w", ownerName, mapErr))
					return
				}
				if !ok {
					continue
				}
				if !yield(mapped, nil) {
					return
				}
			}

			if resp.NextPage == 0 {
				return
			}
			opts.Page = resp.NextPage
		}
	}
}

// ownerEventsFetcher probes whether ownerName resolves to an organization or
// a user account, and returns a page-fetching closure bound to the right
// upstream endpoint. The probe costs one extra request on every call; its
// result is not cached.
func (c *Client) ownerEventsFetcher(ctx context.Context, ownerName string) (func(*gh.ListOptions) ([]*gh.Event, *gh.Response, error), error) {
	_, resp, err := c.gh.Organizations.Get(ctx, ownerName)
	if err == nil {
		return func(opts *gh.ListOptions) ([]*gh.Event, *gh.Response, error) {
			return c.gh.Activity.ListEventsForOrganization(ctx, ownerName, opts)
		}, nil
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		return nil, fmt.Errorf("resolving owner kind for %s: %w", ownerName, err)
	}

	return func(opts *gh.ListOptions) ([]*gh.Event, *gh.Response, error) {
		return c.gh.Activity.ListEventsPerformedByUser(ctx, ownerName, false, opts)
	}, nil
}

// ListRepositoryIssueEvents lists a single repository's recent issue-events
// feed, newest first.
func (c *Client) ListRepositoryIssueEvents(ctx context.Context, owner, repo string) iter.Seq2[driven.RawActivityEvent, error] {
	return func(yield func(driven.RawActivityEvent, error) bool) {
		opts := &gh.ListOptions{PerPage: perPage}
		for {
			events, resp, err := c.gh.Issues.ListRepositoryEvents(ctx, owner, repo, opts)
			if err != nil {
				yield(driven.RawActivityEvent{}, fmt.Errorf("listing issue events for %s/%s (page %d): %w", owner, repo, opts.Page, err))
				return
			}
			logRateLimit(resp, fmt.Sprintf("%s/%s/events", owner, repo), opts.Page, len(events))

			for _, e := range events {
				issue := e.GetIssue()
				if issue == nil {
					continue
				}
				mapped := driven.RawActivityEvent{
					Kind:        e.GetEvent(),
					RepoName:    repo,
					IssueNumber: issue.GetNumber(),
					IssueID:     issue.GetID(),
					IssueURL:    issue.GetHTMLURL(),
					CreatedAt:   e.GetCreatedAt().Time,
				}
				if e.Actor != nil {
					login := e.GetActor().GetLogin()
					mapped.ActorLogin = &login
				}
				if !yield(mapped, nil) {
					return
				}
			}

			if resp.NextPage == 0 {
				return
			}
			opts.Page = resp.NextPage
		}
	}
}

// Quota returns the current request-quota snapshot from the GitHub REST
// rate-limit endpoint.
func (c *Client) Quota(ctx context.Context) (driven.QuotaSnapshot, error) {
	limits, _, err := c.gh.RateLimit.Get(ctx)
	if err != nil {
		return driven.QuotaSnapshot{}, fmt.Errorf("fetching rate limit: %w", err)
	}
	core := limits.GetCore()
	if core == nil {
		return driven.QuotaSnapshot{}, driven.ErrQuotaUnavailable
	}

	return driven.QuotaSnapshot{
		Remaining:        core.Remaining,
		SecondsToReset:   int(time.Until(core.Reset.Time).Seconds()),
		TotalHourlyLimit: core.Limit,
	}, nil
}

// mapIssue converts a go-github Issue to the driven port's raw issue shape.
func mapIssue(i *gh.Issue) driven.UpstreamIssue {
	out := driven.UpstreamIssue{
		ID:            i.GetID(),
		Number:        i.GetNumber(),
		Title:         i.GetTitle(),
		Body:          i.GetBody(),
		HTMLURL:       i.GetHTMLURL(),
		Labels:        labelNames(i.Labels),
		CreatedAt:     i.GetCreatedAt().Time,
		IsPullRequest: i.IsPullRequest(),
		IsClosed:      i.GetState() == "closed",
	}

	if i.User != nil {
		login := i.GetUser().GetLogin()
		out.ReporterLogin = &login
	}
	if !i.GetClosedAt().IsZero() {
		t := i.GetClosedAt().Time
		out.ClosedAt = &t
	}
	for _, a := range i.Assignees {
		login := a.GetLogin()
		out.Assignees = append(out.Assignees, &login)
	}

	return out
}

func labelNames(labels []*gh.Label) []string {
	if len(labels) == 0 {
		return nil
	}
	names := make([]string, 0, len(labels))
	for _, l := range labels {
		names = append(names, l.GetName())
	}
	return names
}

// mapIssueEvent converts a go-github IssueEvent to the driven port's raw
// per-issue event shape. Kinds this system does not recognize are passed
// through unfiltered -- the caller (model.IsRecognizedIssueEventType) drops
// them.
func mapIssueEvent(e *gh.IssueEvent) driven.RawIssueEvent {
	out := driven.RawIssueEvent{
		Kind:      e.GetEvent(),
		CreatedAt: e.GetCreatedAt().Time,
		Label:     e.GetLabel().GetName(),
		From:      e.GetRename().GetFrom(),
		To:        e.GetRename().GetTo(),
	}
	if e.Actor != nil {
		login := e.GetActor().GetLogin()
		out.ActorLogin = &login
	}
	if e.Assignee != nil {
		login := e.GetAssignee().GetLogin()
		out.Assignee = &login
	}
	if e.Assigner != nil {
		login := e.GetAssigner().GetLogin()
		out.Assigner = &login
	}
	return out
}

// mapActivityEvent unmarshals an organization/user events-feed entry into
// the driven port's raw activity shape, recognizing only the two kinds the
// event scanner watches (distilled spec §4.5). ok is false for any other
// event type, which the caller skips.
func mapActivityEvent(e *gh.Event) (driven.RawActivityEvent, bool, error) {
	payload, err := e.ParsePayload()
	if err != nil {
		return driven.RawActivityEvent{}, false, fmt.Errorf("parse event payload: %w", err)
	}

	var kind string
	var issue *gh.Issue
	switch p := payload.(type) {
	case *gh.IssueCommentEvent:
		kind = "issue_commented"
		issue = p.Issue
	case *gh.IssuesEvent:
		kind = "issue_modified"
		issue = p.Issue
	default:
		return driven.RawActivityEvent{}, false, nil
	}
	if issue == nil {
		return driven.RawActivityEvent{}, false, nil
	}

	out := driven.RawActivityEvent{
		Kind:        kind,
		RepoName:    repoNameFromEvent(e),
		IssueNumber: issue.GetNumber(),
		IssueID:     issue.GetID(),
		IssueURL:    issue.GetHTMLURL(),
		CreatedAt:   e.GetCreatedAt().Time,
	}
	if e.Actor != nil {
		login := e.GetActor().GetLogin()
		out.ActorLogin = &login
	}

	return out, true, nil
}

// repoNameFromEvent extracts the bare repository name from an Event's
// "owner/repo" full name.
func repoNameFromEvent(e *gh.Event) string {
	full := e.GetRepo().GetName()
	for i := len(full) - 1; i >= 0; i-- {
		if full[i] == '/' {
			return full[i+1:]
		}
	}
	return full
}

// logRateLimit logs the GitHub API rate limit status after each call.
func logRateLimit(resp *gh.Response, endpoint string, page, count int) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"page", page,
		"count", count,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}
