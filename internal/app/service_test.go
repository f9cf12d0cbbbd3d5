package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/versus/internal/adapters/repository"
	service "github.com/okian/versus/internal/app"
	"github.com/okian/versus/internal/config"
	"github.com/okian/versus/internal/domain/model"
	"github.com/okian/versus/internal/session"
	"github.com/okian/versus/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

var (
	wednesday = time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)
	ada       = model.Voter{UserID: "u-ada", Name: "Ada"}
	grace     = model.Voter{UserID: "u-grace", Name: "Grace"}
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func seededStore(names ...string) *repository.MemStore {
	st := repository.NewMemStore(repository.WithClock(func() time.Time { return wednesday }))
	for _, n := range names {
		if _, err := st.SeedItem(context.Background(), model.Item{ListID: 1, Name: n}); err != nil {
			panic(err)
		}
	}
	return st
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it is not running yet", func() {
			So(svc.GetStats()["started"], ShouldEqual, false)
			_, err := svc.CreateSession(context.Background(), 1, ada)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			_, err = svc.TopN(context.Background(), 1, 10)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})
	})

	Convey("Given options built from config", t, func() {
		opts, err := service.ConfigOptions(config.New())
		So(err, ShouldBeNil)
		svc := service.New(opts...)
		So(svc, ShouldNotBeNil)

		Convey("A bad timezone is rejected", func() {
			cfg := config.New()
			cfg.Timezone = "Mars/Olympus"
			_, err := service.ConfigOptions(cfg)
			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
		})
	})
}

func TestService_StartStop(t *testing.T) {
	Convey("Given a service over a seeded store", t, func() {
		ctx := context.Background()
		svc := service.New(
			service.WithStore(seededStore("A", "B", "C")),
			service.WithWorkerCount(2),
			service.WithQueueSize(100),
		)

		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		Convey("Then the board is built from the store on start", func() {
			top, err := svc.TopN(ctx, 1, 10)
			So(err, ShouldBeNil)
			So(len(top), ShouldEqual, 3)
			So(top[0].Rank, ShouldEqual, 1)
		})

		Convey("Then stats report the running components", func() {
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, true)
			So(stats["workerCount"], ShouldEqual, 2)
			So(stats["boardItems"], ShouldResemble, map[string]int{"1": 3})
		})

		Convey("Then starting twice is a no-op", func() {
			So(svc.Start(ctx), ShouldBeNil)
		})

		Convey("Then stopping twice is a no-op", func() {
			So(svc.Stop(ctx), ShouldBeNil)
			So(svc.Stop(ctx), ShouldBeNil)
			So(svc.GetStats()["started"], ShouldEqual, false)
		})
	})
}

func TestService_InvalidSchedule(t *testing.T) {
	Convey("Given a malformed cron schedule", t, func() {
		svc := service.New(service.WithSchedules("every now and then", ""))

		Convey("Then Start fails", func() {
			err := svc.Start(context.Background())
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "every now and then")
			So(svc.GetStats()["started"], ShouldEqual, false)
		})
	})
}

func TestService_Sessions(t *testing.T) {
	Convey("Given a running service", t, func() {
		ctx := context.Background()
		store := seededStore("Eiffel Tower", "Great Wall", "Colosseum")
		clock := &manualClock{now: wednesday}
		svc := service.New(
			service.WithStore(store),
			service.WithClock(clock),
			service.WithLocation(time.UTC),
			service.WithWorkerCount(1),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		snap, err := svc.CreateSession(ctx, 1, ada)
		So(err, ShouldBeNil)

		Convey("Then the session is registered and voting", func() {
			So(snap.ID, ShouldNotBeEmpty)
			So(snap.State, ShouldEqual, session.StateVoting)
			So(snap.Pair, ShouldNotBeNil)
			So(svc.ActiveSessions(), ShouldEqual, 1)

			again, err := svc.Snapshot(ctx, snap.ID, ada)
			So(err, ShouldBeNil)
			So(again.Pair, ShouldResemble, snap.Pair)
		})

		Convey("Then another voter cannot see it", func() {
			_, err := svc.Snapshot(ctx, snap.ID, grace)
			So(errors.Is(err, service.ErrSessionNotFound), ShouldBeTrue)
		})

		Convey("Then anonymous voters cannot open sessions", func() {
			_, err := svc.CreateSession(ctx, 1, model.Voter{})
			So(errors.Is(err, model.ErrAnonymousVoter), ShouldBeTrue)
		})

		Convey("When voting with a request id", func() {
			reply, err := svc.Vote(ctx, snap.ID, ada, snap.Pair.A.ID, "req-1")
			So(err, ShouldBeNil)
			So(reply.Replayed, ShouldBeFalse)
			So(reply.Outcome.Result.WinnerRating, ShouldAlmostEqual, 1012, 1e-9)

			Convey("Then the board catches up through the workers", func() {
				So(eventually(func() bool {
					e, err := svc.Rank(ctx, 1, snap.Pair.A.ID)
					return err == nil && e.Rank == 1 && e.Matches == 1
				}), ShouldBeTrue)
			})

			Convey("Then replaying the request does not vote twice", func() {
				clock.Advance(time.Minute)
				again, err := svc.Vote(ctx, snap.ID, ada, snap.Pair.A.ID, "req-1")
				So(err, ShouldBeNil)
				So(again.Replayed, ShouldBeTrue)
				So(again.VoteID, ShouldEqual, reply.VoteID)
				So(len(store.Votes()), ShouldEqual, 1)
			})

			Convey("Then the session leaderboard reflects the vote", func() {
				top, err := svc.SessionLeaderboard(ctx, snap.ID, ada, 2)
				So(err, ShouldBeNil)
				So(len(top), ShouldEqual, 2)
				So(top[0].ItemID, ShouldEqual, snap.Pair.A.ID)
				So(top[0].Rank, ShouldEqual, 1)
			})
		})

		Convey("When a vote with a request id fails", func() {
			_, err := svc.Vote(ctx, snap.ID, ada, "nobody", "req-2")
			So(session.KindOf(err), ShouldEqual, session.KindInvalid)

			Convey("Then the request id can be retried", func() {
				reply, err := svc.Vote(ctx, snap.ID, ada, snap.Pair.B.ID, "req-2")
				So(err, ShouldBeNil)
				So(reply.Replayed, ShouldBeFalse)
			})
		})

		Convey("When submitting through the session", func() {
			it, snap2, err := svc.Submit(ctx, snap.ID, ada, "Machu Picchu", "")
			So(err, ShouldBeNil)
			So(it.Approved, ShouldBeFalse)
			So(snap2.Quota.Submissions, ShouldEqual, 1)

			Convey("Then pending items stay off the board", func() {
				_, err := svc.Rank(ctx, 1, it.ID)
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When previewing", func() {
			p, err := svc.Preview(ctx, snap.ID, ada)
			So(err, ShouldBeNil)
			So(p.IfA.WinnerDelta, ShouldAlmostEqual, 12, 1e-9)
		})
	})
}

func TestService_SessionLimits(t *testing.T) {
	Convey("Given a service that holds one session", t, func() {
		ctx := context.Background()
		clock := &manualClock{now: wednesday}
		svc := service.New(
			service.WithStore(seededStore("A", "B")),
			service.WithClock(clock),
			service.WithSessionLimits(1, time.Minute),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		first, err := svc.CreateSession(ctx, 1, ada)
		So(err, ShouldBeNil)

		Convey("Then a second session is refused while the first is active", func() {
			_, err := svc.CreateSession(ctx, 1, grace)
			So(errors.Is(err, service.ErrTooManySessions), ShouldBeTrue)
		})

		Convey("Then an idle session is evicted to make room", func() {
			clock.Advance(2 * time.Minute)
			_, err := svc.CreateSession(ctx, 1, grace)
			So(err, ShouldBeNil)
			_, err = svc.Snapshot(ctx, first.ID, ada)
			So(errors.Is(err, service.ErrSessionNotFound), ShouldBeTrue)
			So(svc.ActiveSessions(), ShouldEqual, 1)
		})
	})
}

// flakyStore fails every item load.
type flakyStore struct {
	*repository.MemStore
	calls int
}

func (s *flakyStore) LoadItems(context.Context, model.ListID) ([]model.Item, error) {
	s.calls++
	return nil, errors.New("connection reset by peer")
}

func TestService_CircuitBreaker(t *testing.T) {
	Convey("Given a store that keeps failing", t, func() {
		ctx := context.Background()
		flaky := &flakyStore{MemStore: seededStore("A", "B")}
		svc := service.New(service.WithStore(flaky))
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		for i := 0; i < 5; i++ {
			_, err := svc.CreateSession(ctx, 1, ada)
			So(session.KindOf(err), ShouldEqual, session.KindTransient)
		}

		Convey("Then the breaker opens and the store is no longer called", func() {
			_, err := svc.CreateSession(ctx, 1, ada)
			So(errors.Is(err, service.ErrStoreUnavailable), ShouldBeTrue)
			So(session.KindOf(err), ShouldEqual, session.KindTransient)
			So(flaky.calls, ShouldEqual, 5)
		})
	})
}

func TestService_DomainErrorsDoNotTrip(t *testing.T) {
	Convey("Given repeated duplicate submissions", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithStore(seededStore("A", "B")))
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		for i := 0; i < 10; i++ {
			_, err := svc.Store().InsertItem(ctx, model.Submission{ListID: 1, Name: "A", Submitter: ada, At: wednesday})
			So(errors.Is(err, model.ErrDuplicateItem), ShouldBeTrue)
		}

		Convey("Then the store is still reachable", func() {
			_, err := svc.CreateSession(ctx, 1, ada)
			So(err, ShouldBeNil)
		})
	})
}
