// Package server exposes the ranked feed over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"whalefeed/internal/config"
	"whalefeed/internal/cursor"
	"whalefeed/internal/feed"
	"whalefeed/internal/logging"
	"whalefeed/internal/metrics"
)

const traceHeader = "X-Trace-Id"

// Router serves the feed endpoints.
type Router struct {
	paginator *feed.Paginator
	cfg       *config.Config
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// NewRouter constructs the HTTP router.
func NewRouter(paginator *feed.Paginator, cfg *config.Config, m *metrics.Metrics, logger zerolog.Logger) (*chi.Mux, error) {
	if paginator == nil {
		return nil, errors.New("paginator is required")
	}
	r := &Router{
		paginator: paginator,
		cfg:       cfg,
		metrics:   m,
		logger:    logging.Component(logger, "server"),
	}

	mux := chi.NewRouter()
	mux.Get("/healthz", r.handleHealthz)
	mux.Get("/readyz", r.handleReadyz)
	mux.Get("/feed", r.handleFeed)
	mux.Handle("/metrics", promhttp.Handler())

	return mux, nil
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Router) handleReadyz(w http.ResponseWriter, req *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// feedResponse is the wire shape of one feed page. nextCursor is null
// on the final page.
type feedResponse struct {
	Items      []feed.Item `json:"items"`
	NextCursor *string     `json:"nextCursor"`
	SnapshotTS int64       `json:"snapshotTs"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (r *Router) handleFeed(w http.ResponseWriter, req *http.Request) {
	started := time.Now()

	traceID := req.Header.Get(traceHeader)
	if traceID == "" {
		traceID = uuid.NewString()
	}
	w.Header().Set(traceHeader, traceID)

	token := req.URL.Query().Get("cursor")
	limit := parseInt(req.URL.Query().Get("limit"), 0)
	pageSize := r.cfg.ClampPageSize(limit)

	page, err := r.paginator.GetPage(req.Context(), token, pageSize, 0)
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, cursor.ErrMalformedCursor):
		outcome = "malformed_cursor"
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "MALFORMED_CURSOR"})
	case errors.Is(err, cursor.ErrMalformedTuple):
		outcome = "malformed_tuple"
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "MALFORMED_TUPLE"})
	default:
		outcome = "error"
		r.logger.Error().Err(err).Str("trace_id", traceID).Msg("feed page failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "INTERNAL"})
	}

	if r.metrics != nil {
		r.metrics.FeedRequests.WithLabelValues(outcome).Inc()
		r.metrics.FeedLatency.Observe(float64(time.Since(started).Milliseconds()))
	}
	if err != nil {
		return
	}

	resp := feedResponse{Items: page.Items, SnapshotTS: page.SnapshotTS}
	if resp.Items == nil {
		resp.Items = []feed.Item{}
	}
	if page.NextCursor != "" {
		resp.NextCursor = &page.NextCursor
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	num, err := strconv.Atoi(value)
	if err != nil || num <= 0 {
		return fallback
	}
	return num
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}
