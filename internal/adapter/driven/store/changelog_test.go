package store

import (
	"context"
	"testing"
	"time"

	"github.com/ericfisherdev/gitmirror/internal/domain/model"
	"github.com/ericfisherdev/gitmirror/internal/domain/port/driven"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendChangeEventsRejectsMissingTime(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir())

	err := s.AppendChangeEvents(ctx, []model.ResourceChangeEvent{{OwnerName: "o", RepoName: "r"}})
	assert.ErrorIs(t, err, driven.ErrMissingTime)
}

func TestAppendAndReadChangeEventsSortedAscending(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir())
	s.now = func() time.Time { return time.UnixMilli(1000) }

	require.NoError(t, s.AppendChangeEvents(ctx, []model.ResourceChangeEvent{{OwnerName: "o", RepoName: "r", TimeMillis: 300}}))
	require.NoError(t, s.AppendChangeEvents(ctx, []model.ResourceChangeEvent{{OwnerName: "o", RepoName: "r", TimeMillis: 100}}))
	require.NoError(t, s.AppendChangeEvents(ctx, []model.ResourceChangeEvent{{OwnerName: "o", RepoName: "r", TimeMillis: 200}}))

	events, err := s.ReadRecentChangeEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, int64(100), events[0].TimeMillis)
	assert.Equal(t, int64(200), events[1].TimeMillis)
	assert.Equal(t, int64(300), events[2].TimeMillis)
}

func TestAppendChangeEventsResolvesTimestampCollision(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir())
	s.now = func() time.Time { return time.UnixMilli(1000) }

	require.NoError(t, s.AppendChangeEvents(ctx, []model.ResourceChangeEvent{{OwnerName: "o", RepoName: "r", TimeMillis: 500}}))
	require.NoError(t, s.AppendChangeEvents(ctx, []model.ResourceChangeEvent{{OwnerName: "o", RepoName: "r2", TimeMillis: 500}}))

	events, err := s.ReadRecentChangeEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.NotEqual(t, events[0].TimeMillis, events[1].TimeMillis, "colliding timestamps must be disambiguated")
}

func TestReadRecentChangeEventsFiltersSince(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir())
	s.now = func() time.Time { return time.UnixMilli(1000) }

	require.NoError(t, s.AppendChangeEvents(ctx, []model.ResourceChangeEvent{{OwnerName: "o", RepoName: "r", TimeMillis: 100}}))
	require.NoError(t, s.AppendChangeEvents(ctx, []model.ResourceChangeEvent{{OwnerName: "o", RepoName: "r", TimeMillis: 200}}))

	events, err := s.ReadRecentChangeEvents(ctx, 150)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(200), events[0].TimeMillis)
}

func TestReadRecentChangeEventsEvictsExpiredEntries(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir())

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	require.NoError(t, s.AppendChangeEvents(ctx, []model.ResourceChangeEvent{
		{OwnerName: "o", RepoName: "r", TimeMillis: base.UnixMilli()},
	}))

	s.now = func() time.Time { return base.Add(model.ChangeEventTTL + time.Hour) }

	events, err := s.ReadRecentChangeEvents(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, events, "entries older than the TTL must be opportunistically GC'd")
}
