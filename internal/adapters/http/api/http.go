// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	service "github.com/okian/versus/internal/app"
	"github.com/okian/versus/internal/adapters/repository"
	"github.com/okian/versus/internal/domain/model"
	"github.com/okian/versus/internal/domain/types"
	"github.com/okian/versus/internal/session"
	"github.com/okian/versus/pkg/auth"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	SessionDependencies
	LeaderboardDependencies
	RankDependencies
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	sessionHandler     *SessionHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler
	auth               *auth.Provider
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithDefaultList sets the list a session opens on when the request names none.
func WithDefaultList(id model.ListID) ServerOption {
	return func(s *Server) {
		if id > 0 {
			s.sessionHandler.defaultList = id
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxLimit int, authn *auth.Provider, opts ...ServerOption) *Server {
	if authn == nil {
		authn = auth.NewProvider("")
	}
	s := &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		sessionHandler:     NewSessionHandler(deps, maxLimit),
		leaderboardHandler: NewLeaderboardHandler(deps, maxLimit),
		rankHandler:        NewRankHandler(deps),
		auth:               authn,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to r. The middleware lives in a group,
// so r may already carry other routes.
func (s *Server) Register(_ context.Context, r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequestID, middleware.Recoverer, MetricsMiddleware)

		r.Get("/healthz", s.healthHandler.HandleHealth)
		r.Handle("/metrics", s.healthHandler.MetricsHandler())
		r.Get("/stats", s.statsHandler.HandleStats)

		r.Route("/v1", func(r chi.Router) {
			r.Get("/lists/{list}/leaderboard", s.leaderboardHandler.HandleGetLeaderboard)
			r.Get("/lists/{list}/items/{item}/rank", s.rankHandler.HandleGetRank)

			r.Group(func(r chi.Router) {
				r.Use(s.auth.Middleware)
				r.Post("/sessions", s.sessionHandler.HandleCreate)
				r.Route("/sessions/{id}", func(r chi.Router) {
					r.Get("/", s.sessionHandler.HandleGet)
					r.Post("/votes", s.sessionHandler.HandleVote)
					r.Get("/preview", s.sessionHandler.HandlePreview)
					r.Post("/items", s.sessionHandler.HandleSubmit)
					r.Get("/leaderboard", s.sessionHandler.HandleLeaderboard)
				})
			})
		})
	})
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Status is the voter-facing line of a session, when there is one.
	Status string `json:"status,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	writeStatusError(w, status, code, err, "")
}

func writeStatusError(w http.ResponseWriter, status int, code string, err error, line string) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg, Status: line})
}

// statusOf maps an upstream error to an HTTP status and a stable code.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ErrLimitExceeded):
		return http.StatusBadRequest, "limit_exceeded"
	case errors.Is(err, repository.ErrInvalidLimit):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, model.ErrAnonymousVoter):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, model.ErrItemNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrRequestInFlight):
		return http.StatusConflict, string(session.KindBusy)
	case errors.Is(err, service.ErrTooManySessions):
		return http.StatusServiceUnavailable, "capacity"
	}
	switch session.KindOf(err) {
	case session.KindDuplicate:
		return http.StatusConflict, string(session.KindDuplicate)
	case session.KindQuota:
		return http.StatusForbidden, string(session.KindQuota)
	case session.KindInsufficient:
		return http.StatusConflict, "not_enough_items"
	case session.KindCooldown:
		return http.StatusTooManyRequests, string(session.KindCooldown)
	case session.KindBusy:
		return http.StatusConflict, string(session.KindBusy)
	case session.KindInvalid:
		return http.StatusBadRequest, string(session.KindInvalid)
	default:
		return http.StatusServiceUnavailable, string(session.KindTransient)
	}
}

func fail(w http.ResponseWriter, op string, err error) {
	status, code := statusOf(err)
	writeError(w, status, code, Wrap(op, err))
}

func listParam(r *http.Request) (model.ListID, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "list"), 10, 64)
	if err != nil || id < 1 {
		return 0, ErrBadRequest
	}
	return model.ListID(id), nil
}

// limitParam reads ?limit=, defaulting when absent.
func limitParam(r *http.Request, maxLimit int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return min(repository.DefaultLeaderboardLimit, maxLimit), nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, ErrBadRequest
	}
	if n > maxLimit {
		return 0, ErrLimitExceeded
	}
	return n, nil
}

func voterOf(r *http.Request) model.Voter {
	id, _ := auth.FromContext(r.Context())
	return model.Voter{UserID: id.UserID, Name: id.Name, IsTeacher: id.Teacher, IsStudent: id.Student}
}
