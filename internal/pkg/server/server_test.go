package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatus struct {
	ready   bool
	reports map[string]any
	latest  any
	current any
}

func (f *fakeStatus) Ready() bool { return f.ready }

func (f *fakeStatus) LatestReport() (any, bool) { return f.latest, f.latest != nil }

func (f *fakeStatus) Report(id string) (any, bool) {
	v, ok := f.reports[id]
	return v, ok
}

func (f *fakeStatus) CurrentMission() (any, bool) { return f.current, f.current != nil }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestProbes(t *testing.T) {
	status := &fakeStatus{}
	r := NewRouter(status)

	assert.Equal(t, http.StatusOK, get(t, r, "/healthz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, r, "/readyz").Code)

	status.ready = true
	assert.Equal(t, http.StatusOK, get(t, r, "/readyz").Code)
}

func TestReports(t *testing.T) {
	status := &fakeStatus{reports: map[string]any{"abc": map[string]string{"RunID": "abc"}}}
	r := NewRouter(status)

	assert.Equal(t, http.StatusNotFound, get(t, r, "/reports/latest").Code)
	assert.Equal(t, http.StatusNotFound, get(t, r, "/reports/nope").Code)

	rec := get(t, r, "/reports/abc")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "abc", body["RunID"])

	status.latest = map[string]string{"RunID": "xyz"}
	assert.Contains(t, get(t, r, "/reports/latest").Body.String(), "xyz")
}

func TestCurrentMission(t *testing.T) {
	status := &fakeStatus{}
	r := NewRouter(status)
	assert.Equal(t, http.StatusNotFound, get(t, r, "/missions/current").Code)

	status.current = map[string]any{"Name": "hop", "Altitude": 10.5}
	rec := get(t, r, "/missions/current")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hop")
}

func TestMetrics(t *testing.T) {
	rec := get(t, NewRouter(&fakeStatus{}), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "houston_mission_active"))
}

func TestMethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	NewRouter(&fakeStatus{}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
