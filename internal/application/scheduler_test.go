package application

import (
	"context"
	"testing"
	"time"

	"github.com/ericfisherdev/gitmirror/internal/adapter/driven/store"
	"github.com/ericfisherdev/gitmirror/internal/domain/model"
	"github.com/ericfisherdev/gitmirror/internal/domain/port/driven"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T, upstream driven.UpstreamClient, fixedNow time.Time, targets SchedulerTargets) (*Scheduler, *store.FileStore, *WorkQueue, *ProcessedSet) {
	t.Helper()
	fs := store.NewFileStore(t.TempDir())
	q := NewWorkQueue(PacingConfig{ConfiguredRequestsPerHour: 360000})
	processed := NewProcessedSet()
	scanner := NewEventScanner(upstream, q, processed, nil, nil)
	s := NewScheduler(q, fs, processed, scanner, upstream, targets, nil)
	s.now = func() time.Time { return fixedNow }
	return s, fs, q, processed
}

func TestSchedulerStartsFullScanWhenStoreUninitialized(t *testing.T) {
	ctx := context.Background()
	fixedNow := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	owners := []model.Owner{mustOrg(t, "acme"), mustOrg(t, "other")}
	targets := SchedulerTargets{Owners: owners, DefaultEventScanInterval: time.Hour}

	s, fs, q, _ := newTestScheduler(t, &fakeUpstream{}, fixedNow, targets)

	s.tick(ctx)

	assert.Equal(t, 2, q.AvailableWork(), "an uninitialized store must trigger an immediate full scan")

	initialized, err := fs.IsInitialized(ctx)
	require.NoError(t, err)
	assert.True(t, initialized)

	v, ok, err := fs.GetLong(ctx, driven.KeyLastFullScanStart)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, fixedNow.UnixMilli(), v)
}

func TestSchedulerDoesNotStartSecondFullScanSameDay(t *testing.T) {
	ctx := context.Background()
	fixedNow := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	owners := []model.Owner{mustOrg(t, "acme")}
	targets := SchedulerTargets{Owners: owners, DefaultEventScanInterval: time.Hour}

	s, _, q, _ := newTestScheduler(t, &fakeUpstream{}, fixedNow, targets)

	s.tick(ctx) // starts the first full scan
	require.Equal(t, 1, q.AvailableWork())

	unit, ok := q.Poll(KindOwner)
	require.True(t, ok)
	require.NoError(t, q.MarkProcessed(unit.key))
	require.True(t, q.Drained())

	s.tick(ctx) // detects completion, runs a (no-op) event scan, but must not re-enqueue
	assert.Equal(t, 0, q.AvailableWork(), "a full scan already started today must not restart")

	s.tick(ctx) // idempotent on a third tick the same day
	assert.Equal(t, 0, q.AvailableWork())
}

func TestSchedulerRequestFullScanOverridesComputation(t *testing.T) {
	ctx := context.Background()
	fixedNow := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	owners := []model.Owner{mustOrg(t, "acme")}
	targets := SchedulerTargets{Owners: owners, DefaultEventScanInterval: time.Hour}

	s, fs, q, _ := newTestScheduler(t, &fakeUpstream{}, fixedNow, targets)

	require.NoError(t, fs.Initialize(ctx))
	require.NoError(t, fs.PutLong(ctx, driven.KeyLastFullScanStart, fixedNow.Add(-time.Hour).UnixMilli()))
	s.ownerDeadlines["acme"] = fixedNow.Add(time.Hour) // no event scan can promote the flag this tick

	s.RequestFullScan()
	s.tick(ctx)

	assert.Equal(t, 1, q.AvailableWork(), "an externally requested full scan must start even when the computed flag is false")
}

func TestSchedulerRunDueEventScansPersistsFingerprintsAndEnqueuesIssue(t *testing.T) {
	ctx := context.Background()
	fixedNow := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	lastFullScanStart := fixedNow.Add(-time.Hour).UnixMilli()

	fresh := fixedNow
	stale := fixedNow.Add(-2 * time.Hour)

	up := &fakeUpstream{
		repoEvents: []driven.RawActivityEvent{
			{Kind: "issue_commented", RepoName: "widgets", IssueNumber: 5, IssueID: 100, IssueURL: "https://example.com/acme/widgets/issues/5", CreatedAt: fresh, ActorLogin: strPtr("bob")},
			{Kind: "issue_commented", RepoName: "widgets", IssueNumber: 5, IssueID: 100, IssueURL: "https://example.com/acme/widgets/issues/5", CreatedAt: stale, ActorLogin: strPtr("bob")},
		},
		getIssue: func(owner, repo string, number int) (*driven.UpstreamIssue, error) {
			return &driven.UpstreamIssue{ID: 100, Number: number}, nil
		},
	}

	owner := mustOrg(t, "acme")
	targets := SchedulerTargets{Owners: []model.Owner{owner}, DefaultEventScanInterval: time.Hour}

	s, fs, q, processed := newTestScheduler(t, up, fixedNow, targets)

	require.NoError(t, fs.Initialize(ctx))
	require.NoError(t, fs.PutLong(ctx, driven.KeyLastFullScanStart, lastFullScanStart))
	require.NoError(t, fs.PutOrganization(ctx, model.Organization{Name: "acme", RepoNames: []string{"widgets"}}))

	promoted := s.runDueEventScans(ctx)

	assert.False(t, promoted, "the timestamp bailout fired, so this owner's scan did not request a full scan")
	assert.Equal(t, 1, q.AvailableWork())
	assert.Equal(t, 2, processed.Len(), "both fingerprints from the feed must be persisted regardless of cache-hit status")

	unit, ok := q.Poll(KindIssue)
	require.True(t, ok)
	assert.Equal(t, IssueRef{Owner: "acme", Repo: "widgets", Number: 5}, unit.Issue)
}

func TestSchedulerDueOwnersRespectsDeadlines(t *testing.T) {
	fixedNow := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	owners := []model.Owner{mustOrg(t, "acme"), mustOrg(t, "other")}
	targets := SchedulerTargets{Owners: owners, DefaultEventScanInterval: time.Hour}

	s, _, _, _ := newTestScheduler(t, &fakeUpstream{}, fixedNow, targets)

	s.ownerDeadlines["acme"] = fixedNow.Add(time.Hour) // not yet due
	s.ownerDeadlines["other"] = fixedNow.Add(-time.Minute) // overdue

	due := s.dueOwners()
	var names []string
	for _, o := range due {
		names = append(names, o.Name)
	}
	assert.ElementsMatch(t, []string{"other"}, names)

	s.advanceDeadline("other")
	assert.True(t, s.ownerDeadlines["other"].After(fixedNow))
}

func mustOrg(t *testing.T, name string) model.Owner {
	t.Helper()
	o, err := model.NewOrganization(name)
	require.NoError(t, err)
	return o
}
