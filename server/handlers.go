package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/iranianx/rate/render"
)

const (
	defaultLimit = int32(100)
	maxLimit     = int32(500)
)

var (
	errUnableToFetchRun     = errors.New("unable to fetch latest run")
	errUnableToFetchSources = errors.New("unable to fetch sources")
	errUnableToFetchHistory = errors.New("unable to fetch spot history")

	errNoRuns       = errors.New("no runs recorded yet")
	errInvalidLimit = errors.New("invalid limit")
	errInvalidCode  = errors.New("invalid code (must be 2-5 letters a-z)")
)

// Latest serves the most recent combine run: deltas, per-source
// verdicts and the derived spot table
func (s *Server) Latest(w http.ResponseWriter, r *http.Request) {
	run, err := s.storage.LatestRun(r.Context())
	if err != nil {
		s.logger.Debug(
			"unable to fetch latest run",
			"err", err,
		)

		writeError(
			w,
			http.StatusInternalServerError,
			errUnableToFetchRun,
		)

		return
	}

	if run == nil {
		writeError(w, http.StatusNotFound, errNoRuns)

		return
	}

	writeJSON(w, http.StatusOK, run)
}

func (s *Server) Sources(w http.ResponseWriter, r *http.Request) {
	items, err := s.storage.ListSources(r.Context())
	if err != nil {
		s.logger.Debug(
			"unable to fetch sources",
			"err", err,
		)

		writeError(
			w,
			http.StatusInternalServerError,
			errUnableToFetchSources,
		)

		return
	}

	resp := &SourcesResponse{
		Results: items,
	}

	writeJSON(w, http.StatusOK, resp)
}

// SpotHistory serves the recent spot values for one code, newest first
func (s *Server) SpotHistory(w http.ResponseWriter, r *http.Request) {
	code, err := parseSpotCode(chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)

		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)

		return
	}

	page, err := s.storage.SpotHistory(r.Context(), code, limit)
	if err != nil {
		s.logger.Debug(
			"unable to fetch spot history",
			"err", err,
		)

		writeError(
			w,
			http.StatusInternalServerError,
			errUnableToFetchHistory,
		)

		return
	}

	writeJSON(w, http.StatusOK, page)
}

// SpotChart serves the spot history of one code rendered as a PNG
// trend chart
func (s *Server) SpotChart(w http.ResponseWriter, r *http.Request) {
	code, err := parseSpotCode(chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)

		return
	}

	page, err := s.storage.SpotHistory(r.Context(), code, maxLimit)
	if err != nil {
		s.logger.Debug(
			"unable to fetch spot history",
			"err", err,
		)

		writeError(
			w,
			http.StatusInternalServerError,
			errUnableToFetchHistory,
		)

		return
	}

	raw, err := render.Chart(code, page.Results)
	if err != nil {
		if errors.Is(err, render.ErrNotEnoughPoints) {
			writeError(w, http.StatusNotFound, err)

			return
		}

		s.logger.Debug(
			"unable to render chart",
			"err", err,
		)

		writeError(
			w,
			http.StatusInternalServerError,
			errUnableToFetchHistory,
		)

		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)

	_, _ = w.Write(raw) //nolint:errcheck // Fine to ignore
}

func parseLimit(limitRaw string) (int32, error) {
	limit := defaultLimit

	if v := strings.TrimSpace(limitRaw); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return 0, errInvalidLimit
		}

		// Clamp before narrowing, or an oversized value wraps negative
		if n > int64(maxLimit) {
			n = int64(maxLimit)
		}

		limit = int32(n)
	}

	if limit == 0 {
		limit = defaultLimit
	}

	return limit, nil
}

func parseSpotCode(v string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(v))
	if len(s) < 2 || len(s) > 5 {
		return "", errInvalidCode
	}

	for i := 0; i < len(s); i++ {
		if s[i] < 'a' || s[i] > 'z' {
			return "", errInvalidCode
		}
	}

	return s, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // Fine to ignore
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := &ErrorResponse{
		Error: err.Error(),
	}

	writeJSON(w, status, resp)
}
