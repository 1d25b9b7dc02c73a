package statusapi_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jroosing/dnsperf/internal/logging"
	"github.com/jroosing/dnsperf/internal/statusapi"
)

func TestHealth(t *testing.T) {
	logger := logging.Configure(logging.Config{})
	srv := statusapi.New(":0", nil, nil, logger)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestStatsWithNilProvider(t *testing.T) {
	logger := logging.Configure(logging.Config{})
	srv := statusapi.New(":0", nil, nil, logger)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp statusapi.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Zero(t, resp.NumSent)
}

func TestStatsWithProvider(t *testing.T) {
	logger := logging.Configure(logging.Config{})
	srv := statusapi.New(":0", func() statusapi.Snapshot {
		return statusapi.Snapshot{NumSent: 42, NumCompleted: 40}
	}, nil, logger)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	var resp statusapi.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, uint64(42), resp.NumSent)
	assert.Equal(t, uint64(40), resp.NumCompleted)
}

func TestRunsWithNilArchive(t *testing.T) {
	logger := logging.Configure(logging.Config{})
	srv := statusapi.New(":0", nil, nil, logger)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}
