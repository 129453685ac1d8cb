package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ericfisherdev/gitmirror/internal/domain/model"
	"github.com/ericfisherdev/gitmirror/internal/domain/port/driven"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fingerprintFor(kind model.ActivityEventKind, org *string, repo string, issue int, createdAt time.Time, actor string) string {
	return model.ActivityEventFingerprint{
		Kind:            kind,
		OrgName:         org,
		RepoName:        repo,
		IssueNumber:     issue,
		CreatedAtMillis: createdAt.UnixMilli(),
		ActorLogin:      actor,
	}.Fingerprint()
}

func newTestScanner(upstream driven.UpstreamClient, filter *Filter) (*EventScanner, *WorkQueue, *ProcessedSet) {
	q := NewWorkQueue(PacingConfig{ConfiguredRequestsPerHour: 360000})
	processed := NewProcessedSet()
	s := NewEventScanner(upstream, q, processed, filter, nil)
	return s, q, processed
}

func testProgress() *Progress {
	p := &Progress{now: time.Now}
	p.Ping()
	return p
}

func TestScanEnqueuesChangedIssueAfterTimestampBailout(t *testing.T) {
	ctx := context.Background()
	lastFullScanStart := time.Now().Add(-1 * time.Hour).UnixMilli()

	fresh := time.Now()
	stale := time.Now().Add(-2 * time.Hour)

	up := &fakeUpstream{
		repoEvents: []driven.RawActivityEvent{
			{Kind: "issue_commented", RepoName: "widgets", IssueNumber: 5, IssueID: 100, IssueURL: "https://example.com/acme/widgets/issues/5", CreatedAt: fresh, ActorLogin: strPtr("bob")},
			{Kind: "issue_commented", RepoName: "widgets", IssueNumber: 5, IssueID: 100, IssueURL: "https://example.com/acme/widgets/issues/5", CreatedAt: stale, ActorLogin: strPtr("bob")},
		},
		getIssue: func(owner, repo string, number int) (*driven.UpstreamIssue, error) {
			return &driven.UpstreamIssue{ID: 100, Number: number}, nil
		},
	}
	s, q, _ := newTestScanner(up, nil)

	owner, err := model.NewOrganization("acme")
	require.NoError(t, err)

	result, err := s.Scan(ctx, testProgress(), owner, []string{"widgets"}, lastFullScanStart)
	require.NoError(t, err)

	assert.False(t, result.FullScanRequired, "an event older than lastFullScanStart must bail out of the full-scan requirement")
	assert.Len(t, result.NewFingerprints, 2)
	assert.Equal(t, 1, q.AvailableWork())

	unit, ok := q.Poll(KindIssue)
	require.True(t, ok)
	assert.Equal(t, IssueRef{Owner: "acme", Repo: "widgets", Number: 5}, unit.Issue)
}

func TestScanCachedStreakBailoutSkipsEnqueue(t *testing.T) {
	ctx := context.Background()
	lastFullScanStart := time.Now().Add(-24 * time.Hour).UnixMilli()
	createdAt := time.Now()
	org := "acme"

	event := driven.RawActivityEvent{Kind: "issue_commented", RepoName: "widgets", IssueNumber: 5, IssueID: 100, CreatedAt: createdAt, ActorLogin: strPtr("bob")}
	fp := fingerprintFor(model.ActivityIssueCommented, &org, "widgets", 5, createdAt, "bob")

	repeated := make([]driven.RawActivityEvent, cachedStreakBailout)
	for i := range repeated {
		repeated[i] = event
	}

	up := &fakeUpstream{repoEvents: repeated}
	s, q, processed := newTestScanner(up, nil)
	processed.Add(fp)

	owner, err := model.NewOrganization("acme")
	require.NoError(t, err)

	result, err := s.Scan(ctx, testProgress(), owner, nil, lastFullScanStart)
	require.NoError(t, err)

	assert.False(t, result.FullScanRequired, "a run of cached hits must bail out of the full-scan requirement")
	assert.Equal(t, 0, q.AvailableWork(), "every event in the streak was already known; nothing new to enqueue")
}

func TestScanWithNoBailoutLeavesFullScanRequired(t *testing.T) {
	ctx := context.Background()
	lastFullScanStart := time.Now().Add(-24 * time.Hour).UnixMilli()

	up := &fakeUpstream{repoEvents: []driven.RawActivityEvent{
		{Kind: "issue_commented", RepoName: "widgets", IssueNumber: 5, IssueID: 100, CreatedAt: time.Now(), ActorLogin: strPtr("bob")},
	}}
	s, q, _ := newTestScanner(up, nil)

	owner, err := model.NewOrganization("acme")
	require.NoError(t, err)

	result, err := s.Scan(ctx, testProgress(), owner, nil, lastFullScanStart)
	require.NoError(t, err)

	assert.True(t, result.FullScanRequired, "neither bailout fired, so a full scan remains required")
	assert.Equal(t, 0, q.AvailableWork(), "per-issue units are never enqueued when a full scan is still required")
}

func TestScanCrossOwnerMoveReturnsUnrecoverableError(t *testing.T) {
	ctx := context.Background()
	lastFullScanStart := time.Now().Add(-1 * time.Hour).UnixMilli()
	stale := time.Now().Add(-2 * time.Hour)

	up := &fakeUpstream{
		repoEvents: []driven.RawActivityEvent{
			{Kind: "issue_commented", RepoName: "widgets", IssueNumber: 5, IssueID: 100, IssueURL: "https://example.com/other-org/widgets/issues/7", CreatedAt: stale, ActorLogin: strPtr("bob")},
		},
		getIssue: func(owner, repo string, number int) (*driven.UpstreamIssue, error) {
			return &driven.UpstreamIssue{ID: 999, Number: number}, nil
		},
	}
	s, _, _ := newTestScanner(up, nil)

	owner, err := model.NewOrganization("acme")
	require.NoError(t, err)

	_, err = s.Scan(ctx, testProgress(), owner, []string{"widgets"}, lastFullScanStart)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCrossOwnerMove)
}

func TestScanFollowsSameOwnerRepositoryRename(t *testing.T) {
	ctx := context.Background()
	lastFullScanStart := time.Now().Add(-1 * time.Hour).UnixMilli()
	stale := time.Now().Add(-2 * time.Hour)

	up := &fakeUpstream{
		repoEvents: []driven.RawActivityEvent{
			{Kind: "issue_commented", RepoName: "widgets", IssueNumber: 5, IssueID: 100, IssueURL: "https://example.com/acme/widgets-renamed/issues/9", CreatedAt: stale, ActorLogin: strPtr("bob")},
		},
		getIssue: func(owner, repo string, number int) (*driven.UpstreamIssue, error) {
			if repo == "widgets" {
				return &driven.UpstreamIssue{ID: 999, Number: number}, nil
			}
			return &driven.UpstreamIssue{ID: 999, Number: number}, nil
		},
	}
	s, q, _ := newTestScanner(up, nil)

	owner, err := model.NewOrganization("acme")
	require.NoError(t, err)

	result, err := s.Scan(ctx, testProgress(), owner, []string{"widgets"}, lastFullScanStart)
	require.NoError(t, err)
	assert.False(t, result.FullScanRequired)

	unit, ok := q.Poll(KindIssue)
	require.True(t, ok)
	assert.Equal(t, IssueRef{Owner: "acme", Repo: "widgets-renamed", Number: 9}, unit.Issue)
}

func TestScanSkipsIgnoredIssueEventKinds(t *testing.T) {
	ctx := context.Background()
	lastFullScanStart := time.Now().Add(-24 * time.Hour).UnixMilli()

	up := &fakeUpstream{
		issueEvents: map[string][]driven.RawActivityEvent{
			"widgets": {
				{Kind: "subscribed", RepoName: "widgets", IssueNumber: 1, CreatedAt: time.Now(), ActorLogin: strPtr("bob")},
				{Kind: "mentioned", RepoName: "widgets", IssueNumber: 1, CreatedAt: time.Now(), ActorLogin: strPtr("bob")},
			},
		},
	}
	s, q, _ := newTestScanner(up, nil)

	owner, err := model.NewOrganization("acme")
	require.NoError(t, err)

	result, err := s.Scan(ctx, testProgress(), owner, []string{"widgets"}, lastFullScanStart)
	require.NoError(t, err)
	assert.Empty(t, result.NewFingerprints, "ignored issue-event kinds must not be fingerprinted at all")
	assert.Equal(t, 0, q.AvailableWork())
}

func TestParseIssueURLExtractsOwnerRepoNumber(t *testing.T) {
	owner, repo, number, err := parseIssueURL("https://example.com/acme/widgets/issues/42")
	require.NoError(t, err)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "widgets", repo)
	assert.Equal(t, 42, number)
}

func TestParseIssueURLRejectsMalformedPath(t *testing.T) {
	_, _, _, err := parseIssueURL("https://example.com/not-an-issue-link")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrCrossOwnerMove))
}
