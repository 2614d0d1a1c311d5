package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KaramelBytes/climalyzer/internal/pipeline"
	"github.com/KaramelBytes/climalyzer/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

func newTestServer(t *testing.T, ready server.ReadinessChecker) (*server.Server, string) {
	t.Helper()
	dir := t.TempDir()
	var b strings.Builder
	b.WriteString("year,month,value\n")
	for y := 2000; y < 2004; y++ {
		for m := 1; m <= 12; m++ {
			fmt.Fprintf(&b, "%d,%d,%.2f\n", y, m, 0.1*float64(y-2000)+0.05*float64(m%4))
		}
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "regional"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "global_temp.csv"), []byte(b.String()), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "regional", "flat_temp.csv"), []byte("year,value\n2000,5\n2001,5\n2002,5\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readings.csv"), []byte("year,reading\n2000,1\n2001,2\n"), 0o644))

	s := pipeline.DefaultSettings()
	s.LearningRate = 0.05
	runner := pipeline.New(s, nil, pipeline.WithRand(rand.New(rand.NewPCG(1, 2))))
	return server.New(server.Config{Addr: ":0", DataDir: dir, Ready: ready}, runner, slog.Default()), dir
}

func postForm(srv http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	srv.ServeHTTP(rec, req)
	return rec
}

func postJSON(srv http.Handler, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyz(t *testing.T) {
	srv, _ := newTestServer(t, &mockReadiness{})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	srv, _ = newTestServer(t, &mockReadiness{err: fmt.Errorf("history db locked")})
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "history db locked", body["error"])
}

func TestReadyzMissingDataDir(t *testing.T) {
	srv := server.New(server.Config{DataDir: filepath.Join(t.TempDir(), "gone")}, nil, slog.Default())
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestIndexListsFiles(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `<option value="global_temp.csv">`)
	assert.Contains(t, body, `<option value="regional/flat_temp.csv">`)
	assert.Contains(t, body, `<option value="anomalies">`)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/files", nil))
	var files map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &files))
	assert.Equal(t, []string{"global_temp.csv", "readings.csv", "regional/flat_temp.csv"}, files["files"])
}

func TestAnalyzeForm_RendersReportAndPlot(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	for _, path := range []string{"/analyze", "/"} {
		rec := postForm(srv, path, url.Values{"selected_file": {"global_temp.csv"}, "action": {"predict"}})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := rec.Body.String()
		assert.Contains(t, body, "[RUN SUMMARY]")
		assert.Contains(t, body, "Target: temperature")
		assert.Contains(t, body, `src="data:image/png;base64,`)
	}
}

func TestAnalyzeForm_Errors(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := postForm(srv, "/analyze", url.Values{"selected_file": {"../etc/passwd"}, "action": {"predict"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "data file not found")

	rec = postForm(srv, "/analyze", url.Values{"selected_file": {"global_temp.csv"}, "action": {"explode"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postForm(srv, "/analyze", url.Values{"action": {"predict"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postForm(srv, "/analyze", url.Values{"selected_file": {"readings.csv"}, "action": {"predict"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "could not detect target column")
}

func TestAnalyzeAPI_All(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := postJSON(srv, `{"file":"global_temp.csv","action":"all"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Target     string `json:"target"`
		Rows       int    `json:"rows"`
		Prediction struct {
			Skipped     bool      `json:"skipped"`
			Predictions []float64 `json:"predictions"`
		} `json:"prediction"`
		Clusters struct {
			Labels []int `json:"labels"`
		} `json:"clusters"`
		Anomalies struct {
			Mask    []bool `json:"mask"`
			Indices []int  `json:"indices"`
		} `json:"anomalies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "temperature", body.Target)
	assert.Equal(t, 48, body.Rows)
	assert.False(t, body.Prediction.Skipped)
	assert.Len(t, body.Prediction.Predictions, 48)
	assert.Len(t, body.Clusters.Labels, 48)
	assert.Len(t, body.Anomalies.Mask, 48)
	assert.NotNil(t, body.Anomalies.Indices)
}

func TestAnalyzeAPI_NonFiniteValuesBecomeNull(t *testing.T) {
	// A constant target normalizes to NaN, which JSON cannot carry.
	srv, _ := newTestServer(t, nil)
	rec := postJSON(srv, `{"file":"regional/flat_temp.csv","action":"anomalies"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []any{nil, nil, nil}, body["values"])
	clean := body["clean"].(map[string]any)
	assert.Equal(t, true, clean["degenerate"])
}

func TestAnalyzeAPI_BadRequests(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	assert.Equal(t, http.StatusBadRequest, postJSON(srv, `{"file":`).Code)
	assert.Equal(t, http.StatusBadRequest, postJSON(srv, `{"file":"global_temp.csv","action":"predict","extra":1}`).Code)
	assert.Equal(t, http.StatusBadRequest, postJSON(srv, `{"file":"global_temp.csv","action":"guess"}`).Code)
	assert.Equal(t, http.StatusNotFound, postJSON(srv, `{"file":"/etc/hosts","action":"predict"}`).Code)
	assert.Equal(t, http.StatusNotFound, postJSON(srv, `{"file":"missing.csv","action":"predict"}`).Code)

	rec := postJSON(srv, `{"file":"global_temp.csv","action":"predict","target":"precipitation"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}
