package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/fact-project/nightsummary/pkg/config"
	"github.com/fact-project/nightsummary/pkg/store"
	"github.com/fact-project/nightsummary/pkg/store/storetest"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg, err := config.Load()
	require.NoError(t, err)

	cfg.Report.OutputDir = t.TempDir()

	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config, st store.Store) (*server, http.Handler) {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	srv, err := newServer(log, cfg, st)
	require.NoError(t, err)

	t.Cleanup(func() { _ = srv.Stop() })

	return srv, srv.buildRouter()
}

func doRequest(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	_, h := newTestServer(t, newTestConfig(t), storetest.NewStore(t))

	rec := doRequest(t, h, "/api/v1/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string

	decode(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestListNights(t *testing.T) {
	_, h := newTestServer(t, newTestConfig(t), storetest.NewSeededStore(t))

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantNights []int64
	}{
		{
			name:       "default limit",
			target:     "/api/v1/nights",
			wantStatus: http.StatusOK,
			wantNights: []int64{storetest.Night},
		},
		{
			name:       "explicit limit",
			target:     "/api/v1/nights?limit=1",
			wantStatus: http.StatusOK,
			wantNights: []int64{storetest.Night},
		},
		{name: "zero limit", target: "/api/v1/nights?limit=0", wantStatus: http.StatusBadRequest},
		{name: "bad limit", target: "/api/v1/nights?limit=ten", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, h, tt.target)
			require.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantStatus != http.StatusOK {
				return
			}

			var body struct {
				Nights []int64 `json:"nights"`
			}

			decode(t, rec, &body)
			assert.Equal(t, tt.wantNights, body.Nights)
		})
	}
}

func TestListNights_Empty(t *testing.T) {
	_, h := newTestServer(t, newTestConfig(t), storetest.NewStore(t))

	rec := doRequest(t, h, "/api/v1/nights")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"nights":[]}`, rec.Body.String())
}

func TestListRuns(t *testing.T) {
	_, h := newTestServer(t, newTestConfig(t), storetest.NewSeededStore(t))

	rec := doRequest(t, h, "/api/v1/nights/20240314/runs")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Night int64           `json:"night"`
		Runs  []store.RunInfo `json:"runs"`
	}

	decode(t, rec, &body)
	assert.Equal(t, storetest.Night, body.Night)
	assert.Len(t, body.Runs, 13)

	rec = doRequest(t, h, "/api/v1/nights/2024-03-14/runs")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type qlaBody struct {
	Night  int64 `json:"night"`
	NoData bool  `json:"no_data"`
	Params struct {
		BinWidthMinutes float64 `json:"bin_width_minutes"`
		Alpha           float64 `json:"alpha"`
	} `json:"params"`
	Bins []struct {
		Source       string   `json:"source_name"`
		Rate         *float64 `json:"rate"`
		Significance float64  `json:"significance"`
	} `json:"bins"`
}

func TestQLA(t *testing.T) {
	_, h := newTestServer(t, newTestConfig(t), storetest.NewSeededStore(t))

	t.Run("configured params", func(t *testing.T) {
		rec := doRequest(t, h, "/api/v1/nights/20240314/qla")
		require.Equal(t, http.StatusOK, rec.Code)

		var body qlaBody

		decode(t, rec, &body)
		assert.False(t, body.NoData)
		assert.Equal(t, 20.0, body.Params.BinWidthMinutes)
		require.Len(t, body.Bins, 2)
		assert.Equal(t, "Crab", body.Bins[0].Source)
		require.NotNil(t, body.Bins[0].Rate)
		assert.InDelta(t, 300.0, *body.Bins[0].Rate, 1e-9)
		assert.InDelta(t, 3.7506279428225895, body.Bins[0].Significance, 1e-9)
	})

	t.Run("overrides", func(t *testing.T) {
		rec := doRequest(t, h, "/api/v1/nights/20240314/qla?bin_width=10&alpha=0.5")
		require.Equal(t, http.StatusOK, rec.Code)

		var body qlaBody

		decode(t, rec, &body)
		assert.Equal(t, 10.0, body.Params.BinWidthMinutes)
		assert.Equal(t, 0.5, body.Params.Alpha)

		// Six Crab runs fill three 600 s bins, five Mrk 501 runs two
		// with an underfilled trailing bin dropped.
		assert.Len(t, body.Bins, 5)
	})

	t.Run("no data", func(t *testing.T) {
		rec := doRequest(t, h, "/api/v1/nights/20240101/qla")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"bins":[]`)

		var body qlaBody

		decode(t, rec, &body)
		assert.True(t, body.NoData)
	})

	for name, target := range map[string]string{
		"bad night":     "/api/v1/nights/tonight/qla",
		"bad bin width": "/api/v1/nights/20240314/qla?bin_width=wide",
		"zero alpha":    "/api/v1/nights/20240314/qla?alpha=0",
	} {
		t.Run(name, func(t *testing.T) {
			rec := doRequest(t, h, target)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSummary(t *testing.T) {
	_, h := newTestServer(t, newTestConfig(t), storetest.NewSeededStore(t))

	rec := doRequest(t, h, "/api/v1/nights/20240314/summary.md")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/markdown; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "# FACT Night Summary: 2024-03-14")
	assert.Contains(t, rec.Body.String(), "## Quick Look Analysis")
}

func TestStoreErrors(t *testing.T) {
	st := storetest.NewStore(t)
	_, h := newTestServer(t, newTestConfig(t), st)

	require.NoError(t, st.Stop())

	for _, target := range []string{
		"/api/v1/nights",
		"/api/v1/nights/20240314/runs",
		"/api/v1/nights/20240314/qla",
		"/api/v1/nights/20240314/summary.md",
	} {
		t.Run(target, func(t *testing.T) {
			rec := doRequest(t, h, target)
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
		})
	}
}

func TestFiles(t *testing.T) {
	cfg := newTestConfig(t)

	dir := filepath.Join(cfg.Report.OutputDir, "20240314")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "fact_summary_20240314.md"), []byte("# Night"), 0o644,
	))

	_, h := newTestServer(t, cfg, storetest.NewStore(t))

	rec := doRequest(t, h, "/api/v1/files/20240314/fact_summary_20240314.md")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# Night", rec.Body.String())

	rec = doRequest(t, h, "/api/v1/files/20240314/missing.md")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.API.RateLimit.Enabled = true
	cfg.API.RateLimit.RequestsPerMinute = 2

	_, h := newTestServer(t, cfg, storetest.NewSeededStore(t))

	for range 2 {
		rec := doRequest(t, h, "/api/v1/nights")
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doRequest(t, h, "/api/v1/nights")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Health checks are not limited.
	rec = doRequest(t, h, "/api/v1/health")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestExtractIP(t *testing.T) {
	tests := []struct {
		name   string
		xff    string
		remote string
		want   string
	}{
		{name: "remote addr", remote: "10.0.0.1:5000", want: "10.0.0.1"},
		{name: "forwarded", xff: "192.168.1.5", remote: "10.0.0.1:5000", want: "192.168.1.5"},
		{name: "forwarded chain", xff: "192.168.1.5, 10.0.0.2", remote: "10.0.0.1:5000", want: "192.168.1.5"},
		{name: "no port", remote: "10.0.0.1", want: "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote

			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}

			assert.Equal(t, tt.want, extractIP(req))
		})
	}
}
