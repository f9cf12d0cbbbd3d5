package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/versus/internal/adapters/http/api"
	"github.com/okian/versus/internal/adapters/http/swagger"
	service "github.com/okian/versus/internal/app"
	"github.com/okian/versus/internal/domain/model"
	"github.com/okian/versus/internal/domain/quota"
	"github.com/okian/versus/internal/domain/types"
	"github.com/okian/versus/internal/session"
	"github.com/okian/versus/pkg/auth"
)

// mockDeps implements api.Dependencies with canned replies.
type mockDeps struct {
	entries []types.Entry
	rank    types.Entry
	rankErr error

	snap      session.Snapshot
	snapErr   error
	createErr error
	vote      service.VoteReply
	voteErr   error
	submitErr error

	lastVoter model.Voter
	lastList  model.ListID
	lastLimit int
	lastVote  [2]string
}

func (m *mockDeps) TopN(_ context.Context, list model.ListID, n int) ([]types.Entry, error) {
	m.lastList, m.lastLimit = list, n
	if n > len(m.entries) {
		return m.entries, nil
	}
	return m.entries[:n], nil
}

func (m *mockDeps) Rank(_ context.Context, _ model.ListID, _ string) (types.Entry, error) {
	return m.rank, m.rankErr
}

func (m *mockDeps) CreateSession(_ context.Context, list model.ListID, voter model.Voter) (session.Snapshot, error) {
	m.lastList, m.lastVoter = list, voter
	if m.createErr != nil {
		return session.Snapshot{}, m.createErr
	}
	s := m.snap
	s.ListID = list
	return s, nil
}

func (m *mockDeps) Snapshot(_ context.Context, _ string, voter model.Voter) (session.Snapshot, error) {
	m.lastVoter = voter
	return m.snap, m.snapErr
}

func (m *mockDeps) Vote(_ context.Context, _ string, _ model.Voter, winnerID, requestID string) (service.VoteReply, error) {
	m.lastVote = [2]string{winnerID, requestID}
	return m.vote, m.voteErr
}

func (m *mockDeps) Preview(_ context.Context, _ string, _ model.Voter) (session.Preview, error) {
	if m.snap.Pair == nil {
		return session.Preview{}, session.ErrInsufficientItems
	}
	return session.Preview{Pair: *m.snap.Pair}, nil
}

func (m *mockDeps) Submit(_ context.Context, _ string, _ model.Voter, name, category string) (model.Item, session.Snapshot, error) {
	if m.submitErr != nil {
		return model.Item{}, m.snap, m.submitErr
	}
	return model.Item{ID: "new", Name: name, Category: category, Rating: model.InitialRating}, m.snap, nil
}

func (m *mockDeps) SessionLeaderboard(_ context.Context, _ string, _ model.Voter, limit int) ([]types.Entry, error) {
	m.lastLimit = limit
	return m.entries, m.snapErr
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func newRouter(deps *mockDeps, authn *auth.Provider) http.Handler {
	r := chi.NewRouter()
	api.NewServer(deps, &mockStatsProvider{stats: map[string]interface{}{"started": true}}, 100, authn).
		Register(context.Background(), r)
	return r
}

func do(h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(w *httptest.ResponseRecorder) errorBody {
	var e errorBody
	So(json.NewDecoder(w.Body).Decode(&e), ShouldBeNil)
	return e
}

func pair() *model.Pair {
	return &model.Pair{
		A: model.Item{ID: "a", Name: "Eiffel Tower", Rating: 1000, Approved: true},
		B: model.Item{ID: "b", Name: "Big Ben", Rating: 1000, Approved: true},
	}
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := &mockDeps{entries: []types.Entry{
			{Rank: 1, ItemID: "a", Name: "Eiffel Tower", Rating: 1016},
			{Rank: 2, ItemID: "b", Name: "Big Ben", Rating: 984},
		}}
		h := newRouter(deps, nil)

		Convey("Then health, stats and metrics respond", func() {
			So(do(h, http.MethodGet, "/healthz", "").Code, ShouldEqual, http.StatusOK)
			w := do(h, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"started":true`)
			So(do(h, http.MethodGet, "/metrics", "").Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then unknown routes are not found", func() {
			So(do(h, http.MethodGet, "/unknown", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})

	Convey("Given a router that already serves the API docs", t, func() {
		r := chi.NewRouter()
		swagger.Register(context.Background(), r)

		Convey("Then the API registers alongside them", func() {
			So(func() {
				api.NewServer(&mockDeps{}, &mockStatsProvider{}, 100, nil).Register(context.Background(), r)
			}, ShouldNotPanic)
			So(do(r, http.MethodGet, "/healthz", "").Code, ShouldEqual, http.StatusOK)
			So(do(r, http.MethodGet, "/openapi.yaml", "").Code, ShouldEqual, http.StatusOK)
		})
	})
}

func TestLeaderboardHandler(t *testing.T) {
	Convey("Given a leaderboard route", t, func() {
		deps := &mockDeps{entries: []types.Entry{
			{Rank: 1, ItemID: "a", Name: "Eiffel Tower", Rating: 1016},
			{Rank: 2, ItemID: "b", Name: "Big Ben", Rating: 984},
		}}
		h := newRouter(deps, nil)

		Convey("When no limit is given", func() {
			w := do(h, http.MethodGet, "/v1/lists/3/leaderboard", "")

			Convey("Then the default limit is used", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.lastList, ShouldEqual, model.ListID(3))
				So(deps.lastLimit, ShouldEqual, 25)
				var got []types.Entry
				So(json.NewDecoder(w.Body).Decode(&got), ShouldBeNil)
				So(len(got), ShouldEqual, 2)
				So(got[0].ItemID, ShouldEqual, "a")
			})
		})

		Convey("When the limit is out of range", func() {
			for _, tc := range []struct {
				query string
				code  string
			}{
				{"limit=0", "bad_request"},
				{"limit=abc", "bad_request"},
				{"limit=101", "limit_exceeded"},
			} {
				Convey(fmt.Sprintf("And the query is %s", tc.query), func() {
					w := do(h, http.MethodGet, "/v1/lists/1/leaderboard?"+tc.query, "")
					So(w.Code, ShouldEqual, http.StatusBadRequest)
					So(decodeError(w).Code, ShouldEqual, tc.code)
				})
			}
		})

		Convey("When the list id is not a positive integer", func() {
			w := do(h, http.MethodGet, "/v1/lists/zero/leaderboard", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestRankHandler(t *testing.T) {
	Convey("Given a rank route", t, func() {
		deps := &mockDeps{rank: types.Entry{Rank: 4, ItemID: "x", Rating: 990}}
		h := newRouter(deps, nil)

		Convey("Then a known item is returned", func() {
			w := do(h, http.MethodGet, "/v1/lists/1/items/x/rank", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var got types.Entry
			So(json.NewDecoder(w.Body).Decode(&got), ShouldBeNil)
			So(got.Rank, ShouldEqual, 4)
		})

		Convey("Then an unknown item is not found", func() {
			deps.rankErr = model.ErrItemNotFound
			w := do(h, http.MethodGet, "/v1/lists/1/items/x/rank", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(decodeError(w).Code, ShouldEqual, "not_found")
		})
	})
}

func TestSessionHandler(t *testing.T) {
	Convey("Given the session routes in development mode", t, func() {
		deps := &mockDeps{snap: session.Snapshot{
			ID:     "s-1",
			State:  session.StateVoting,
			Pair:   pair(),
			Quota:  quota.Evaluate(0, 0),
			Status: "Tap the one you prefer.",
		}}
		h := newRouter(deps, nil)
		as := []string{auth.HeaderUserID, "u-ada", auth.HeaderName, "Ada"}

		Convey("When no identity is presented", func() {
			w := do(h, http.MethodPost, "/v1/sessions", `{"list_id":1}`)

			Convey("Then the request is unauthorized", func() {
				So(w.Code, ShouldEqual, http.StatusUnauthorized)
			})
		})

		Convey("When a voter opens a session without a body", func() {
			w := do(h, http.MethodPost, "/v1/sessions", "", as...)

			Convey("Then the default list is used and the pair is returned", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				So(deps.lastList, ShouldEqual, model.ListID(1))
				So(deps.lastVoter, ShouldResemble, model.Voter{UserID: "u-ada", Name: "Ada"})
				var got map[string]any
				So(json.NewDecoder(w.Body).Decode(&got), ShouldBeNil)
				So(got["state"], ShouldEqual, "voting")
				So(got["pair"].(map[string]any)["a"].(map[string]any)["name"], ShouldEqual, "Eiffel Tower")
				So(got["quota"].(map[string]any)["can_submit"], ShouldBeTrue)
			})
		})

		Convey("When a vote succeeds", func() {
			deps.vote = service.VoteReply{
				VoteID: "v-1",
				Outcome: session.VoteOutcome{Result: model.VoteResult{
					VoteID: "v-1", WinnerRating: 1016, LoserRating: 984, WinnerDelta: 16, LoserDelta: -16,
				}},
				Snapshot: deps.snap,
			}
			w := do(h, http.MethodPost, "/v1/sessions/s-1/votes", `{"winner_id":"a","request_id":" r-1 "}`, as...)

			Convey("Then the new ratings are returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.lastVote, ShouldResemble, [2]string{"a", "r-1"})
				var got map[string]any
				So(json.NewDecoder(w.Body).Decode(&got), ShouldBeNil)
				So(got["vote_id"], ShouldEqual, "v-1")
				So(got["winner_delta"], ShouldEqual, 16.0)
				So(got["replayed"], ShouldBeFalse)
			})
		})

		Convey("When a vote is rejected by the controller", func() {
			for _, tc := range []struct {
				err    error
				status int
				code   string
			}{
				{fmt.Errorf("wrapped: %w", session.ErrCooldown), http.StatusTooManyRequests, "cooldown"},
				{session.ErrBusy, http.StatusConflict, "busy"},
				{service.ErrRequestInFlight, http.StatusConflict, "busy"},
				{session.ErrInvalidChoice, http.StatusBadRequest, "invalid_choice"},
				{session.ErrInsufficientItems, http.StatusConflict, "not_enough_items"},
				{session.ErrTransient, http.StatusServiceUnavailable, "transient"},
				{service.ErrStoreUnavailable, http.StatusServiceUnavailable, "transient"},
			} {
				Convey(fmt.Sprintf("And the error is %v", tc.err), func() {
					deps.voteErr = tc.err
					deps.snap.Status = "Slow down a little before the next vote."
					w := do(h, http.MethodPost, "/v1/sessions/s-1/votes", `{"winner_id":"a"}`, as...)
					So(w.Code, ShouldEqual, tc.status)
					body := decodeError(w)
					So(body.Code, ShouldEqual, tc.code)
					So(body.Status, ShouldEqual, "Slow down a little before the next vote.")
				})
			}
		})

		Convey("When the session does not exist", func() {
			deps.voteErr = service.ErrSessionNotFound
			deps.snapErr = service.ErrSessionNotFound
			w := do(h, http.MethodPost, "/v1/sessions/nope/votes", `{"winner_id":"a"}`, as...)

			Convey("Then it is not found without a status line", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(decodeError(w).Status, ShouldBeEmpty)
			})
		})

		Convey("When the vote body is malformed", func() {
			So(do(h, http.MethodPost, "/v1/sessions/s-1/votes", `{`, as...).Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, http.MethodPost, "/v1/sessions/s-1/votes", `{"winner_id":"  "}`, as...).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When an item is submitted", func() {
			w := do(h, http.MethodPost, "/v1/sessions/s-1/items", `{"name":"Colosseum","category":"Rome"}`, as...)

			Convey("Then the pending item is returned", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				So(w.Body.String(), ShouldContainSubstring, `"name":"Colosseum"`)
				So(w.Body.String(), ShouldContainSubstring, `"approved":false`)
			})
		})

		Convey("When a submission is a near duplicate", func() {
			deps.submitErr = fmt.Errorf("submit: %w", model.ErrDuplicateItem)
			deps.snap.Status = `"Eifel Tower" looks like "Eiffel Tower".`
			w := do(h, http.MethodPost, "/v1/sessions/s-1/items", `{"name":"Eifel Tower"}`, as...)

			Convey("Then it conflicts and carries the status line", func() {
				So(w.Code, ShouldEqual, http.StatusConflict)
				body := decodeError(w)
				So(body.Code, ShouldEqual, "duplicate_submission")
				So(body.Status, ShouldContainSubstring, "Eiffel Tower")
			})
		})

		Convey("When the quota is spent", func() {
			deps.submitErr = model.ErrQuotaExceeded
			w := do(h, http.MethodPost, "/v1/sessions/s-1/items", `{"name":"Colosseum"}`, as...)
			So(w.Code, ShouldEqual, http.StatusForbidden)
			So(decodeError(w).Code, ShouldEqual, "quota_exceeded")
		})

		Convey("When a preview and the session leaderboard are requested", func() {
			So(do(h, http.MethodGet, "/v1/sessions/s-1/preview", "", as...).Code, ShouldEqual, http.StatusOK)
			w := do(h, http.MethodGet, "/v1/sessions/s-1/leaderboard?limit=5", "", as...)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.lastLimit, ShouldEqual, 5)
		})
	})

	Convey("Given the session routes behind bearer tokens", t, func() {
		deps := &mockDeps{snap: session.Snapshot{ID: "s-1", State: session.StateVoting, Pair: pair()}}
		p := auth.NewProvider("s3cret")
		h := newRouter(deps, p)

		Convey("Then development headers are not trusted", func() {
			w := do(h, http.MethodGet, "/v1/sessions/s-1", "", auth.HeaderName, "Ada")
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("Then a valid token carries the identity through", func() {
			tok, err := p.Issue(auth.Identity{UserID: "u-1", Name: "Grace", Teacher: true}, time.Hour)
			So(err, ShouldBeNil)
			w := do(h, http.MethodGet, "/v1/sessions/s-1", "", "Authorization", "Bearer "+tok)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.lastVoter, ShouldResemble, model.Voter{UserID: "u-1", Name: "Grace", IsTeacher: true})
		})
	})
}
