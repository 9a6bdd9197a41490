package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/fact-project/nightsummary/pkg/qla"
	"github.com/fact-project/nightsummary/pkg/report"
	"github.com/go-chi/chi/v5"
)

const (
	defaultNightsLimit = 30
	maxNightsLimit     = 1000
)

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListNights returns the most recent nights with QLA results.
func (s *server) handleListNights(w http.ResponseWriter, r *http.Request) {
	limit := defaultNightsLimit

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxNightsLimit {
			writeJSON(w, http.StatusBadRequest, errorResponse{
				fmt.Sprintf("limit must be between 1 and %d", maxNightsLimit),
			})

			return
		}

		limit = n
	}

	nights, err := s.store.ListNights(r.Context(), limit)
	if err != nil {
		s.log.WithError(err).Error("Failed to list nights")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	if nights == nil {
		nights = []int64{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"nights": nights})
}

// handleListRuns returns the runs of a night.
func (s *server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	night, ok := s.nightParam(w, r)
	if !ok {
		return
	}

	runs, err := s.store.ListRuns(r.Context(), night)
	if err != nil {
		s.log.WithError(err).WithField("night", night).Error("Failed to list runs")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"night": night,
		"runs":  runs,
	})
}

// handleQLA analyzes the QLA results of a night. The query parameters
// bin_width and alpha override the configured analysis parameters.
func (s *server) handleQLA(w http.ResponseWriter, r *http.Request) {
	night, ok := s.nightParam(w, r)
	if !ok {
		return
	}

	params, err := s.queryParams(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	analyzer, err := qla.NewAnalyzer(s.log, params)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	runs, err := s.store.ListQLARuns(r.Context(), night)
	if err != nil {
		s.log.WithError(err).WithField("night", night).Error("Failed to list qla results")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	writeJSON(w, http.StatusOK, report.NewQLADocument(night, analyzer.Analyze(runs)))
}

// handleSummary renders the markdown summary of a night.
func (s *server) handleSummary(w http.ResponseWriter, r *http.Request) {
	night, ok := s.nightParam(w, r)
	if !ok {
		return
	}

	summary, err := s.builder.Summarize(r.Context(), night)
	if err != nil {
		s.log.WithError(err).WithField("night", night).Error("Failed to summarize night")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(report.GenerateMarkdown(summary)))
}

// handleFileRequest serves a rendered report file.
func (s *server) handleFileRequest(w http.ResponseWriter, r *http.Request) {
	filePath := chi.URLParam(r, "*")
	if filePath == "" {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"file path is required"})

		return
	}

	if err := s.localServer.ServeFile(w, r, filePath); err != nil {
		writeJSON(w, http.StatusNotFound,
			errorResponse{"file not found"})
	}
}

// nightParam parses the night URL parameter, writing a 400 response if it
// is invalid.
func (s *server) nightParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	night, err := report.ParseNight(chi.URLParam(r, "night"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return 0, false
	}

	return night, true
}

// queryParams returns the configured analysis parameters with the
// overrides of the request applied.
func (s *server) queryParams(r *http.Request) (qla.Params, error) {
	params := s.cfg.QLAParams()
	q := r.URL.Query()

	overrides := []struct {
		name string
		dst  *float64
	}{
		{"bin_width", &params.BinWidthMinutes},
		{"alpha", &params.Alpha},
	}

	for _, o := range overrides {
		v := q.Get(o.name)
		if v == "" {
			continue
		}

		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return qla.Params{}, errors.New(o.name + " must be a number")
		}

		*o.dst = f
	}

	return params, nil
}
