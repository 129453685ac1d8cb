package application

import (
	"context"
	"iter"
	"testing"
	"time"

	"github.com/ericfisherdev/gitmirror/internal/adapter/driven/store"
	"github.com/ericfisherdev/gitmirror/internal/domain/model"
	"github.com/ericfisherdev/gitmirror/internal/domain/port/driven"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUpstream is a hand-rolled driven.UpstreamClient test double. Each
// field defaults to an empty sequence / not-found response; tests set only
// the methods they exercise.
type fakeUpstream struct {
	repos       []driven.UpstreamRepoRef
	issues      []driven.UpstreamIssue
	comments    []driven.RawIssueComment
	events      []driven.RawIssueEvent
	user        *driven.UpstreamUser
	listErr     error
	getErr      error
	repoEvents  []driven.RawActivityEvent
	issueEvents map[string][]driven.RawActivityEvent // keyed by repo name
	getIssue    func(owner, repo string, number int) (*driven.UpstreamIssue, error)
}

func (f *fakeUpstream) ListOrganizationRepositories(ctx context.Context, org string) iter.Seq2[driven.UpstreamRepoRef, error] {
	return f.repoSeq()
}

func (f *fakeUpstream) ListUserRepositories(ctx context.Context, user string) iter.Seq2[driven.UpstreamRepoRef, error] {
	return f.repoSeq()
}

func (f *fakeUpstream) repoSeq() iter.Seq2[driven.UpstreamRepoRef, error] {
	return func(yield func(driven.UpstreamRepoRef, error) bool) {
		if f.listErr != nil {
			yield(driven.UpstreamRepoRef{}, f.listErr)
			return
		}
		for _, r := range f.repos {
			if !yield(r, nil) {
				return
			}
		}
	}
}

func (f *fakeUpstream) ListRepositoryIssues(ctx context.Context, owner, repo string) iter.Seq2[driven.UpstreamIssue, error] {
	return func(yield func(driven.UpstreamIssue, error) bool) {
		if f.listErr != nil {
			yield(driven.UpstreamIssue{}, f.listErr)
			return
		}
		for _, i := range f.issues {
			if !yield(i, nil) {
				return
			}
		}
	}
}

func (f *fakeUpstream) GetIssue(ctx context.Context, owner, repo string, number int) (*driven.UpstreamIssue, error) {
	if f.getIssue != nil {
		return f.getIssue(owner, repo, number)
	}
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, i := range f.issues {
		if i.Number == number {
			cp := i
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeUpstream) ListIssueComments(ctx context.Context, owner, repo string, number int) iter.Seq2[driven.RawIssueComment, error] {
	return func(yield func(driven.RawIssueComment, error) bool) {
		for _, c := range f.comments {
			if !yield(c, nil) {
				return
			}
		}
	}
}

func (f *fakeUpstream) ListIssueEvents(ctx context.Context, owner, repo string, number int) iter.Seq2[driven.RawIssueEvent, error] {
	return func(yield func(driven.RawIssueEvent, error) bool) {
		for _, e := range f.events {
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (f *fakeUpstream) GetUser(ctx context.Context, login string) (*driven.UpstreamUser, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.user, nil
}

func (f *fakeUpstream) ListRepositoryEvents(ctx context.Context, ownerName string) iter.Seq2[driven.RawActivityEvent, error] {
	return func(yield func(driven.RawActivityEvent, error) bool) {
		for _, e := range f.repoEvents {
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (f *fakeUpstream) ListRepositoryIssueEvents(ctx context.Context, owner, repo string) iter.Seq2[driven.RawActivityEvent, error] {
	return func(yield func(driven.RawActivityEvent, error) bool) {
		for _, e := range f.issueEvents[repo] {
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (f *fakeUpstream) Quota(ctx context.Context) (driven.QuotaSnapshot, error) {
	return driven.QuotaSnapshot{}, driven.ErrQuotaUnavailable
}

func strPtr(s string) *string { return &s }

func newTestPool(t *testing.T, upstream driven.UpstreamClient) (*WorkerPool, *store.FileStore, *WorkQueue) {
	t.Helper()
	fs := store.NewFileStore(t.TempDir())
	q := NewWorkQueue(PacingConfig{ConfiguredRequestsPerHour: 360000})
	p := NewWorkerPool(q, fs, upstream, nil, nil)
	return p, fs, q
}

func TestProcessOwnerOrganizationEnqueuesRepositoriesAndPersists(t *testing.T) {
	ctx := context.Background()
	up := &fakeUpstream{repos: []driven.UpstreamRepoRef{
		{ID: 1, Owner: "acme", Name: "widgets"},
		{ID: 2, Owner: "acme", Name: "gadgets"},
	}}
	p, fs, q := newTestPool(t, up)

	owner, err := model.NewOrganization("acme")
	require.NoError(t, err)

	require.NoError(t, p.processOwner(ctx, owner))

	assert.Equal(t, 2, q.AvailableWork())

	org, err := fs.GetOrganization(ctx, "acme")
	require.NoError(t, err)
	require.NotNil(t, org)
	assert.ElementsMatch(t, []string{"widgets", "gadgets"}, org.RepoNames)
}

func TestProcessOwnerRepoListUserUsesPreresolvedRepos(t *testing.T) {
	ctx := context.Background()
	up := &fakeUpstream{} // must not be consulted for a repo-list owner
	p, fs, q := newTestPool(t, up)

	owner, err := model.NewUser("jgwest", []string{"argo-cd"})
	require.NoError(t, err)

	require.NoError(t, p.processOwner(ctx, owner))

	assert.Equal(t, 1, q.AvailableWork())
	ur, err := fs.GetUserRepositories(ctx, "jgwest")
	require.NoError(t, err)
	require.NotNil(t, ur)
	assert.Equal(t, []string{"argo-cd"}, ur.RepoNames)
}

func TestProcessOwnerSkipsRejectedByFilter(t *testing.T) {
	ctx := context.Background()
	up := &fakeUpstream{repos: []driven.UpstreamRepoRef{
		{ID: 1, Owner: "acme", Name: "widgets"},
		{ID: 2, Owner: "acme", Name: "forked"},
	}}
	fs := store.NewFileStore(t.TempDir())
	q := NewWorkQueue(PacingConfig{ConfiguredRequestsPerHour: 360000})
	filter := &Filter{ProcessRepository: func(owner, repo string) bool { return repo != "forked" }}
	p := NewWorkerPool(q, fs, up, filter, nil)

	owner, err := model.NewOrganization("acme")
	require.NoError(t, err)
	require.NoError(t, p.processOwner(ctx, owner))

	assert.Equal(t, 1, q.AvailableWork())
	org, err := fs.GetOrganization(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"widgets"}, org.RepoNames)
}

func TestProcessRepositoryTracksIssueRangeSkipsPullRequestsAndEnqueuesIssues(t *testing.T) {
	ctx := context.Background()
	up := &fakeUpstream{issues: []driven.UpstreamIssue{
		{Number: 5},
		{Number: 9, IsPullRequest: true},
		{Number: 1},
	}}
	p, fs, q := newTestPool(t, up)

	require.NoError(t, p.processRepository(ctx, RepoRef{Owner: "o", Name: "r", ID: 77}))

	assert.Equal(t, 2, q.AvailableWork(), "the pull request must not be enqueued as an issue")

	repo, err := fs.GetRepository(ctx, "o", "r")
	require.NoError(t, err)
	require.NotNil(t, repo)
	assert.Equal(t, int64(77), repo.ID)
	require.NotNil(t, repo.FirstIssue)
	require.NotNil(t, repo.LastIssue)
	assert.Equal(t, 1, *repo.FirstIssue)
	assert.Equal(t, 5, *repo.LastIssue)
}

func TestProcessIssueAppendsChangeEventOnFirstWrite(t *testing.T) {
	ctx := context.Background()
	up := &fakeUpstream{issues: []driven.UpstreamIssue{
		{Number: 3, Title: "t", ReporterLogin: strPtr("alice")},
	}}
	p, fs, q := newTestPool(t, up)

	require.NoError(t, p.processIssue(ctx, IssueRef{Owner: "o", Repo: "r", Number: 3}))

	issue, err := fs.GetIssue(ctx, "o", "r", 3)
	require.NoError(t, err)
	require.NotNil(t, issue)
	assert.Equal(t, "t", issue.Title)
	assert.Equal(t, "alice", issue.ReporterLogin)

	events, err := fs.ReadRecentChangeEvents(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	assert.Equal(t, 1, q.AvailableWork(), "the reporter must be enqueued as a user unit")
}

func TestProcessIssueSkipsChangeEventWhenCanonicallyUnchanged(t *testing.T) {
	ctx := context.Background()
	up := &fakeUpstream{issues: []driven.UpstreamIssue{
		{Number: 3, Title: "t", ReporterLogin: strPtr("alice")},
	}}
	p, fs, _ := newTestPool(t, up)

	ref := IssueRef{Owner: "o", Repo: "r", Number: 3}
	require.NoError(t, p.processIssue(ctx, ref))
	require.NoError(t, p.processIssue(ctx, ref))

	events, err := fs.ReadRecentChangeEvents(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1, "an unchanged re-write must not append a second change event")
}

func TestProcessIssueDetectsChangeOnTitleEdit(t *testing.T) {
	ctx := context.Background()
	up := &fakeUpstream{issues: []driven.UpstreamIssue{
		{Number: 3, Title: "t1", ReporterLogin: strPtr("alice")},
	}}
	p, fs, _ := newTestPool(t, up)

	ref := IssueRef{Owner: "o", Repo: "r", Number: 3}
	require.NoError(t, p.processIssue(ctx, ref))

	up.issues[0].Title = "t2"
	require.NoError(t, p.processIssue(ctx, ref))

	events, err := fs.ReadRecentChangeEvents(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	issue, err := fs.GetIssue(ctx, "o", "r", 3)
	require.NoError(t, err)
	assert.Equal(t, "t2", issue.Title)
}

func TestProcessIssueNormalizesMissingReporterToGhost(t *testing.T) {
	ctx := context.Background()
	up := &fakeUpstream{issues: []driven.UpstreamIssue{
		{Number: 1},
	}}
	p, fs, _ := newTestPool(t, up)

	require.NoError(t, p.processIssue(ctx, IssueRef{Owner: "o", Repo: "r", Number: 1}))

	issue, err := fs.GetIssue(ctx, "o", "r", 1)
	require.NoError(t, err)
	assert.Equal(t, model.Ghost, issue.ReporterLogin)
}

func TestProcessIssueRejectedByFilterIsNoop(t *testing.T) {
	ctx := context.Background()
	up := &fakeUpstream{issues: []driven.UpstreamIssue{{Number: 1}}}
	fs := store.NewFileStore(t.TempDir())
	q := NewWorkQueue(PacingConfig{ConfiguredRequestsPerHour: 360000})
	filter := &Filter{ProcessIssue: func(owner, repo string, number int) bool { return false }}
	p := NewWorkerPool(q, fs, up, filter, nil)

	require.NoError(t, p.processIssue(ctx, IssueRef{Owner: "o", Repo: "r", Number: 1}))

	issue, err := fs.GetIssue(ctx, "o", "r", 1)
	require.NoError(t, err)
	assert.Nil(t, issue)
}

func TestProcessUserPersistsProfile(t *testing.T) {
	ctx := context.Background()
	up := &fakeUpstream{user: &driven.UpstreamUser{Login: "alice", DisplayName: "Alice A.", Email: "a@example.com"}}
	p, fs, _ := newTestPool(t, up)

	require.NoError(t, p.processUser(ctx, "alice"))

	u, err := fs.GetUser(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "Alice A.", u.DisplayName)
}

func TestProcessUserTreatsUnresolvedLoginAsNoop(t *testing.T) {
	ctx := context.Background()
	up := &fakeUpstream{user: nil}
	p, fs, _ := newTestPool(t, up)

	require.NoError(t, p.processUser(ctx, "ghost-account"))

	u, err := fs.GetUser(ctx, "ghost-account")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestProcessUserSkipsGhostSentinel(t *testing.T) {
	ctx := context.Background()
	up := &fakeUpstream{getErr: assert.AnError}
	p, _, _ := newTestPool(t, up)

	// If Ghost were not special-cased, this would fail via up.getErr.
	require.NoError(t, p.processUser(ctx, model.Ghost))
}

func TestRequeueAfterFailureReturnsUnitToItsList(t *testing.T) {
	q := NewWorkQueue(PacingConfig{ConfiguredRequestsPerHour: 360000})
	p := &WorkerPool{queue: q}

	owner, err := model.NewOrganization("acme")
	require.NoError(t, err)

	q.AddOwner(owner)
	polled, ok := q.Poll(KindOwner)
	require.True(t, ok)
	require.NoError(t, q.MarkProcessed(polled.key))

	p.requeue(polled)
	assert.Equal(t, 1, q.AvailableWork())
}

func TestWorkerPoolStartProcessesOwnerEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	up := &fakeUpstream{repos: []driven.UpstreamRepoRef{{ID: 1, Owner: "acme", Name: "widgets"}}}
	p, fs, q := newTestPool(t, up)

	owner, err := model.NewOrganization("acme")
	require.NoError(t, err)
	q.AddOwner(owner)

	p.Start(ctx)

	require.Eventually(t, func() bool {
		org, err := fs.GetOrganization(ctx, "acme")
		return err == nil && org != nil
	}, time.Second, 10*time.Millisecond)
}
