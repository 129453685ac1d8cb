package httphandler_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	httphandler "github.com/ericfisherdev/gitmirror/internal/adapter/driving/http"
	"github.com/ericfisherdev/gitmirror/internal/adapter/driving/http/querycache"

	"github.com/ericfisherdev/gitmirror/internal/adapter/driven/store"
	"github.com/ericfisherdev/gitmirror/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "test-preshared-key"

type fakeScheduler struct {
	requested bool
}

func (f *fakeScheduler) RequestFullScan() { f.requested = true }

func newTestServer(t *testing.T) (*httptest.Server, *store.FileStore, *fakeScheduler) {
	t.Helper()

	fs := store.NewFileStore(t.TempDir())
	db, err := querycache.NewDB(t.TempDir() + "/cache.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, querycache.RunMigrations(db.Writer))

	sched := &fakeScheduler{}
	h := httphandler.NewHandler(fs, querycache.NewIssueQuery(db), sched, slog.Default())
	mux := httphandler.NewServeMux(h, testKey, slog.Default())

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server, fs, sched
}

func authedRequest(t *testing.T, method, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testKey)
	return req
}

func TestHealthRequiresNoAuth(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/v1/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUnauthenticatedRequestIsRejected(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/v1/repos/acme/widgets")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGetRepositoryNotFound(t *testing.T) {
	server, _, _ := newTestServer(t)

	req := authedRequest(t, http.MethodGet, server.URL+"/api/v1/repos/acme/widgets")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetRepositoryFound(t *testing.T) {
	server, fs, _ := newTestServer(t)

	require.NoError(t, fs.PutRepository(context.Background(), model.Repository{Owner: "acme", Name: "widgets"}))

	req := authedRequest(t, http.MethodGet, server.URL+"/api/v1/repos/acme/widgets")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTriggerScanRequestsFullScan(t *testing.T) {
	server, _, sched := newTestServer(t)

	req := authedRequest(t, http.MethodPost, server.URL+"/api/v1/scan")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.True(t, sched.requested)
}

func TestListRecentEventsAcceptsSinceParameter(t *testing.T) {
	server, fs, _ := newTestServer(t)

	ctx := context.Background()
	require.NoError(t, fs.AppendChangeEvents(ctx, []model.ResourceChangeEvent{
		{TimeMillis: time.Now().UnixMilli(), UUID: "evt-1", OwnerName: "acme", RepoName: "widgets", IssueNumber: 1},
	}))

	req := authedRequest(t, http.MethodGet, server.URL+"/api/v1/events?since=0")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
