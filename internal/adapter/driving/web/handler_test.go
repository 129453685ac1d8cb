package web_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ericfisherdev/gitmirror/internal/adapter/driving/web"
	"github.com/ericfisherdev/gitmirror/internal/application"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSnapshotSource struct {
	snap application.Snapshot
}

func (f *fakeSnapshotSource) Snapshot() application.Snapshot { return f.snap }

func TestDashboardRendersOwnerRows(t *testing.T) {
	src := &fakeSnapshotSource{snap: application.Snapshot{
		FullScanInProgress:   true,
		LastFullScanDay:      0,
		QueueAvailableWork:   3,
		QueueActiveResources: 1,
		Owners: []application.OwnerSnapshot{
			{Name: "acme", State: "event scan window", NextEventScan: time.Now().Add(30 * time.Second)},
		},
	}}

	h := web.NewHandler(src, nil)
	mux := http.NewServeMux()
	web.RegisterRoutes(mux, h)

	server := httptest.NewServer(mux)
	defer server.Close()

	resp, err := http.Get(server.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
}

func TestDashboardServesStaticAssets(t *testing.T) {
	src := &fakeSnapshotSource{}
	h := web.NewHandler(src, nil)
	mux := http.NewServeMux()
	web.RegisterRoutes(mux, h)

	server := httptest.NewServer(mux)
	defer server.Close()

	resp, err := http.Get(server.URL + "/static/style.css")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
