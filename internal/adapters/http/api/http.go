// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	workerpool "github.com/okian/shobdo/internal/adapters/mq/worker"
	"github.com/okian/shobdo/internal/adapters/repository"
	service "github.com/okian/shobdo/internal/app"
	"github.com/okian/shobdo/internal/domain/referral"
	"github.com/okian/shobdo/internal/domain/scoring"
	"github.com/okian/shobdo/pkg/metrics"
)

const requestTimeout = 30 * time.Second

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	ScoreDependencies
	ReferralDependencies
	HealthDependencies
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	scores    *ScoresHandler
	referrals *ReferralsHandler
	health    *HealthHandler
	stats     *StatsHandler
	docs      func(chi.Router)
}

// Option configures a Server.
type Option func(*Server)

// WithDocs mounts API documentation routes.
func WithDocs(register func(chi.Router)) Option {
	return func(s *Server) {
		s.docs = register
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		scores:    NewScoresHandler(deps),
		referrals: NewReferralsHandler(deps),
		health:    NewHealthHandler(deps),
		stats:     NewStatsHandler(deps),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the chi router with all routes mounted.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(Metrics)

	r.Get("/healthz", s.health.HandleHealth)
	r.Get("/readyz", s.health.HandleReady)
	r.Get("/stats", s.stats.HandleStats)

	r.Post("/userscore", s.scores.HandleSubmit)
	r.Get("/public-leaderboard", s.scores.HandlePublicLeaderboard)
	r.Get("/winners", s.scores.HandleWinners)
	r.Get("/leaderboard", s.scores.HandleLeaderboard)
	r.Get("/rank/{msisdn}", s.scores.HandleRank)

	r.Post("/save-referral", s.referrals.HandleSave)
	r.Route("/referrals/{msisdn}", func(r chi.Router) {
		r.Get("/", s.referrals.HandleHistory)
		r.Get("/balance", s.referrals.HandleBalance)
		r.Post("/payments", s.referrals.HandlePay)
	})

	if s.docs != nil {
		s.docs(r)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
	})

	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error body. Errors raised by a handler operation are
// counted against that operation.
func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	var oe *opError
	if errors.As(err, &oe) {
		metrics.RecordErrorByComponent(oe.Op(), code)
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// respondError maps service errors onto status codes. Faults are logged by
// the service and keep their detail out of the response body.
func respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, scoring.ErrInvalidInput),
		errors.Is(err, referral.ErrInvalidInput),
		errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, repository.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", NewKind(op, ErrConflict))
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", NewKind(op, ErrNotFound))
	case errors.Is(err, workerpool.ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
	case errors.Is(err, workerpool.ErrStopped),
		errors.Is(err, service.ErrNotStarted),
		errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "unavailable", NewKind(op, ErrUnavailable))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", nil)
	}
}
