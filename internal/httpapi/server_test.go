package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperspacedb/hyperspace/pkg/hyperspace"
	prommetrics "github.com/hyperspacedb/hyperspace/pkg/metrics/prometheus"
)

func newTestServer(t *testing.T) (*Server, *hyperspace.Master) {
	t.Helper()

	dir := t.TempDir()
	store, err := hyperspace.OpenStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	registry := prometheus.NewRegistry()
	coord := prommetrics.NewCoordinationMetrics(registry)

	master := hyperspace.NewMaster(hyperspace.Config{
		BaseDir:           dir,
		LeaseInterval:     time.Minute,
		KeepAliveInterval: time.Second,
	}, store, coord)

	return New(master, registry, "127.0.0.1:0"), master
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()

	srv, master := newTestServer(t)

	sid := master.CreateSession("client:1")
	_, _, err := master.Open(sid, "/n", hyperspace.OpenFlagWrite|hyperspace.OpenFlagCreate, 0)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, master.InstanceID().String(), status.InstanceID)
	assert.Equal(t, master.Generation(), status.Generation)
	assert.Equal(t, 1, status.Sessions)
	assert.Equal(t, 1, status.Nodes)
	assert.Equal(t, 1, status.Handles)
}

func TestSessionsEndpoint(t *testing.T) {
	t.Parallel()

	srv, master := newTestServer(t)
	master.CreateSession("peer-a")
	master.CreateSession("peer-b")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var sessions []SessionInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	assert.Len(t, sessions, 2)
}

func TestNodesEndpoint(t *testing.T) {
	t.Parallel()

	srv, master := newTestServer(t)

	sid := master.CreateSession("client:1")
	flags := hyperspace.OpenFlagRead | hyperspace.OpenFlagWrite |
		hyperspace.OpenFlagLock | hyperspace.OpenFlagCreate
	h, _, err := master.Open(sid, "/locked", flags, 0)
	require.NoError(t, err)
	_, err = master.Lock(sid, h, hyperspace.LockModeExclusive, false)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/nodes", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var nodes []NodeInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &nodes))
	require.Len(t, nodes, 1)
	assert.Equal(t, "/locked", nodes[0].Name)
	assert.Equal(t, "exclusive", nodes[0].LockMode)
	assert.Equal(t, 1, nodes[0].Handles)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv, master := newTestServer(t)
	master.CreateSession("client:1")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hyperspace_sessions_created_total")
}
