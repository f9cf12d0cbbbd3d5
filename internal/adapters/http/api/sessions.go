package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	service "github.com/okian/versus/internal/app"
	"github.com/okian/versus/internal/domain/model"
	"github.com/okian/versus/internal/domain/quota"
	"github.com/okian/versus/internal/domain/rating"
	"github.com/okian/versus/internal/session"
)

// SessionDependencies defines the interface for session operations.
type SessionDependencies interface {
	CreateSession(ctx context.Context, list model.ListID, voter model.Voter) (session.Snapshot, error)
	Snapshot(ctx context.Context, id string, voter model.Voter) (session.Snapshot, error)
	Vote(ctx context.Context, id string, voter model.Voter, winnerID, requestID string) (service.VoteReply, error)
	Preview(ctx context.Context, id string, voter model.Voter) (session.Preview, error)
	Submit(ctx context.Context, id string, voter model.Voter, name, category string) (model.Item, session.Snapshot, error)
	SessionLeaderboard(ctx context.Context, id string, voter model.Voter, limit int) ([]Entry, error)
}

// SessionHandler handles the per-voter session routes.
type SessionHandler struct {
	deps        SessionDependencies
	maxLimit    int
	defaultList model.ListID
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(deps SessionDependencies, maxLimit int) *SessionHandler {
	return &SessionHandler{deps: deps, maxLimit: maxLimit, defaultList: 1}
}

type itemView struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Rating   float64 `json:"rating"`
	Wins     int     `json:"wins"`
	Losses   int     `json:"losses"`
	Matches  int     `json:"matches"`
	Approved bool    `json:"approved"`
	Year     *int    `json:"year,omitempty"`
}

func viewItem(it model.Item) itemView {
	return itemView{
		ID:       it.ID,
		Name:     it.Name,
		Category: it.Category,
		Rating:   it.Rating,
		Wins:     it.Wins,
		Losses:   it.Losses,
		Matches:  it.Matches,
		Approved: it.Approved,
		Year:     it.Year,
	}
}

type pairView struct {
	A itemView `json:"a"`
	B itemView `json:"b"`
}

type sessionResponse struct {
	ID            string        `json:"id"`
	ListID        model.ListID  `json:"list_id"`
	State         session.State `json:"state"`
	Pair          *pairView     `json:"pair"`
	Quota         quota.Status  `json:"quota"`
	Status        string        `json:"status"`
	StatusIsError bool          `json:"status_is_error"`
	Candidates    int           `json:"candidates"`
}

func viewSnapshot(s session.Snapshot) sessionResponse {
	out := sessionResponse{
		ID:            s.ID,
		ListID:        s.ListID,
		State:         s.State,
		Quota:         s.Quota,
		Status:        s.Status,
		StatusIsError: s.StatusIsError,
		Candidates:    s.Candidates,
	}
	if s.Pair != nil {
		out.Pair = &pairView{A: viewItem(s.Pair.A), B: viewItem(s.Pair.B)}
	}
	return out
}

type createRequest struct {
	ListID model.ListID `json:"list_id"`
}

type voteRequest struct {
	WinnerID  string `json:"winner_id"`
	RequestID string `json:"request_id"`
}

type voteResponse struct {
	VoteID       string          `json:"vote_id"`
	Replayed     bool            `json:"replayed"`
	WinnerRating float64         `json:"winner_rating,omitempty"`
	LoserRating  float64         `json:"loser_rating,omitempty"`
	WinnerDelta  float64         `json:"winner_delta,omitempty"`
	LoserDelta   float64         `json:"loser_delta,omitempty"`
	Session      sessionResponse `json:"session"`
}

type outcomeView struct {
	Expected     float64 `json:"expected"`
	EffectiveK   float64 `json:"effective_k"`
	WinnerRating float64 `json:"winner_rating"`
	LoserRating  float64 `json:"loser_rating"`
	WinnerDelta  float64 `json:"winner_delta"`
	LoserDelta   float64 `json:"loser_delta"`
}

func viewOutcome(o rating.Outcome) outcomeView {
	return outcomeView{
		Expected:     o.Expected,
		EffectiveK:   o.EffectiveK,
		WinnerRating: o.WinnerRating,
		LoserRating:  o.LoserRating,
		WinnerDelta:  o.WinnerDelta,
		LoserDelta:   o.LoserDelta,
	}
}

type previewResponse struct {
	Pair pairView    `json:"pair"`
	IfA  outcomeView `json:"if_a_wins"`
	IfB  outcomeView `json:"if_b_wins"`
}

type submitRequest struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

type submitResponse struct {
	Item    itemView        `json:"item"`
	Session sessionResponse `json:"session"`
}

// HandleCreate handles POST /v1/sessions.
func (h *SessionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_session"
	var req createRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
	}
	if req.ListID == 0 {
		req.ListID = h.defaultList
	}
	if req.ListID < 0 {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	snap, err := h.deps.CreateSession(r.Context(), req.ListID, voterOf(r))
	if err != nil {
		fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewSnapshot(snap))
}

// HandleGet handles GET /v1/sessions/{id}.
func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_session"
	snap, err := h.deps.Snapshot(r.Context(), chi.URLParam(r, "id"), voterOf(r))
	if err != nil {
		fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, viewSnapshot(snap))
}

// HandleVote handles POST /v1/sessions/{id}/votes.
func (h *SessionHandler) HandleVote(w http.ResponseWriter, r *http.Request) {
	const op = "api.vote"
	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.WinnerID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("missing winner_id")))
		return
	}
	id, voter := chi.URLParam(r, "id"), voterOf(r)
	reply, err := h.deps.Vote(r.Context(), id, voter, req.WinnerID, strings.TrimSpace(req.RequestID))
	if err != nil {
		h.failWithStatus(w, r, op, id, voter, err)
		return
	}
	res := reply.Outcome.Result
	writeJSON(w, http.StatusOK, voteResponse{
		VoteID:       reply.VoteID,
		Replayed:     reply.Replayed,
		WinnerRating: res.WinnerRating,
		LoserRating:  res.LoserRating,
		WinnerDelta:  res.WinnerDelta,
		LoserDelta:   res.LoserDelta,
		Session:      viewSnapshot(reply.Snapshot),
	})
}

// HandlePreview handles GET /v1/sessions/{id}/preview.
func (h *SessionHandler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	const op = "api.preview"
	p, err := h.deps.Preview(r.Context(), chi.URLParam(r, "id"), voterOf(r))
	if err != nil {
		fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, previewResponse{
		Pair: pairView{A: viewItem(p.Pair.A), B: viewItem(p.Pair.B)},
		IfA:  viewOutcome(p.IfA),
		IfB:  viewOutcome(p.IfB),
	})
}

// HandleSubmit handles POST /v1/sessions/{id}/items.
func (h *SessionHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_item"
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	it, snap, err := h.deps.Submit(r.Context(), chi.URLParam(r, "id"), voterOf(r), req.Name, req.Category)
	if err != nil {
		status, code := statusOf(err)
		writeStatusError(w, status, code, Wrap(op, err), snap.Status)
		return
	}
	writeJSON(w, http.StatusCreated, submitResponse{Item: viewItem(it), Session: viewSnapshot(snap)})
}

// HandleLeaderboard handles GET /v1/sessions/{id}/leaderboard?limit=N.
func (h *SessionHandler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.session_leaderboard"
	n, err := limitParam(r, h.maxLimit)
	if err != nil {
		fail(w, op, err)
		return
	}
	entries, err := h.deps.SessionLeaderboard(r.Context(), chi.URLParam(r, "id"), voterOf(r), n)
	if err != nil {
		fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// failWithStatus writes err with the session's status line attached.
func (h *SessionHandler) failWithStatus(w http.ResponseWriter, r *http.Request, op, id string, voter model.Voter, err error) {
	status, code := statusOf(err)
	line := ""
	if status != http.StatusNotFound {
		if snap, serr := h.deps.Snapshot(r.Context(), id, voter); serr == nil {
			line = snap.Status
		}
	}
	writeStatusError(w, status, code, Wrap(op, err), line)
}
