package server

import (
	"context"
	"errors"
	"livegame-tracker/internal/config"
	"livegame-tracker/internal/domain"
	"livegame-tracker/internal/middleware"
	"livegame-tracker/internal/service"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
)

type Refresher interface {
	Refresh(ctx context.Context, req service.RefreshRequest) (*service.RefreshReport, error)
}

type Reader interface {
	Series(ctx context.Context, id string, days int) (*service.SeriesView, error)
	Snapshot(ctx context.Context) *service.SnapshotView
	Status(ctx context.Context) (*service.StatusView, error)
}

type TrackerServer struct {
	ingest Refresher
	read   Reader
	secret string
	logger zerolog.Logger
}

func NewTrackerServer(cfg *config.Config, ingest Refresher, read Reader, logger zerolog.Logger) *TrackerServer {
	return &TrackerServer{ingest: ingest, read: read, secret: cfg.CronSecret, logger: logger}
}

func (s *TrackerServer) Routes() http.Handler {
	mux := http.NewServeMux()
	trigger := middleware.SharedSecret(s.secret, writeError)(http.HandlerFunc(s.handleTrigger))
	mux.Handle("GET /api/cron/players", trigger)
	mux.Handle("POST /api/cron/players", trigger)
	mux.HandleFunc("GET /api/players", s.handleSnapshot)
	mux.HandleFunc("GET /api/players/{id}", s.handleSeries)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	return mux
}

func (s *TrackerServer) handleTrigger(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := service.RefreshRequest{Engine: q.Get("engine"), Trigger: "cron"}

	var err error
	if req.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, r, http.StatusBadRequest, "limit: "+err.Error())
		return
	}
	if req.Concurrency, err = intParam(q.Get("concurrency")); err != nil {
		writeError(w, r, http.StatusBadRequest, "concurrency: "+err.Error())
		return
	}
	if v := q.Get("force"); v != "" {
		if req.Force, err = strconv.ParseBool(v); err != nil {
			writeError(w, r, http.StatusBadRequest, "force: not a boolean")
			return
		}
	}

	report, err := s.ingest.Refresh(r.Context(), req)
	switch {
	case errors.Is(err, domain.ErrUnknownEngine):
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("refresh failed")
		writeError(w, r, http.StatusInternalServerError, "refresh failed")
		return
	}
	writeJSON(w, r, http.StatusOK, report)
}

func (s *TrackerServer) handleSeries(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r.URL.Query().Get("days"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "days: "+err.Error())
		return
	}
	view, err := s.read.Series(r.Context(), r.PathValue("id"), days)
	switch {
	case errors.Is(err, domain.ErrUnknownIdentifier):
		writeError(w, r, http.StatusNotFound, err.Error())
		return
	case err != nil:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("series read failed")
		writeError(w, r, http.StatusInternalServerError, "series unavailable")
		return
	}
	writeCached(w, r, view)
}

func (s *TrackerServer) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeCached(w, r, s.read.Snapshot(r.Context()))
}

func (s *TrackerServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.read.Status(r.Context())
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("status read failed")
		writeError(w, r, http.StatusInternalServerError, "status unavailable")
		return
	}
	writeJSON(w, r, http.StatusOK, status)
}

// intParam parses an optional non-negative integer; empty means zero.
func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("not a non-negative integer")
	}
	return n, nil
}
