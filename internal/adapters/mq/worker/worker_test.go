package worker_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"
	"go.uber.org/goleak"

	"github.com/okian/versus/internal/adapters/mq/queue"
	"github.com/okian/versus/internal/adapters/mq/worker"
	"github.com/okian/versus/internal/adapters/repository"
	"github.com/okian/versus/internal/domain/model"
	logging "github.com/okian/versus/pkg/logger"
)

func TestMain(m *testing.M) {
	_ = logging.Init()
	goleak.VerifyTestMain(m)
}

type mockQueue struct {
	events chan queue.Event
	once   sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{events: make(chan queue.Event, 256)}
}

func (mq *mockQueue) Dequeue(context.Context) <-chan queue.Event { return mq.events }

func (mq *mockQueue) Close() error {
	mq.once.Do(func() { close(mq.events) })
	return nil
}

type mockProjector struct {
	mu    sync.Mutex
	items map[string]model.Item
	calls int
}

func newMockProjector() *mockProjector {
	return &mockProjector{items: make(map[string]model.Item)}
}

func (p *mockProjector) Upsert(_ context.Context, it model.Item) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if old, ok := p.items[it.ID]; ok && it.Matches < old.Matches {
		return false
	}
	p.items[it.ID] = it
	return true
}

func (p *mockProjector) get(id string) (model.Item, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	it, ok := p.items[id]
	return it, ok
}

func (p *mockProjector) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func event(id, winner, loser string, matches int) queue.Event {
	return queue.Event{
		VoteID: id,
		ListID: 1,
		Winner: model.Item{ID: winner, ListID: 1, Rating: 1000 + float64(matches), Matches: matches, Wins: matches, Approved: true},
		Loser:  model.Item{ID: loser, ListID: 1, Rating: 1000 - float64(matches), Matches: matches, Losses: matches, Approved: true},
		At:     time.Now(),
	}
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

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a running worker", t, func() {
		q := newMockQueue()
		p := newMockProjector()
		w := worker.NewInMemoryWorker(q, p, worker.WithName("test-worker"))
		ctx, cancel := context.WithCancel(context.Background())
		go w.Run(ctx)
		defer func() {
			cancel()
			<-w.Done()
		}()

		convey.Convey("When a vote event arrives", func() {
			q.events <- event("v1", "a", "b", 1)

			convey.Convey("Then both items reach the projector", func() {
				convey.So(eventually(func() bool { return p.callCount() == 2 }), convey.ShouldBeTrue)
				a, ok := p.get("a")
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(a.Wins, convey.ShouldEqual, 1)
				b, _ := p.get("b")
				convey.So(b.Losses, convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When events arrive out of order", func() {
			q.events <- event("v2", "a", "b", 2)
			q.events <- event("v1", "a", "b", 1)

			convey.Convey("Then the newer state wins", func() {
				convey.So(eventually(func() bool { return p.callCount() == 4 }), convey.ShouldBeTrue)
				a, _ := p.get("a")
				convey.So(a.Matches, convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When an event mixes lists", func() {
			bad := event("v3", "a", "c", 1)
			bad.Loser.ListID = 2
			q.events <- bad
			q.events <- event("v4", "d", "e", 1)

			convey.Convey("Then it is skipped and the worker keeps going", func() {
				convey.So(eventually(func() bool { _, ok := p.get("d"); return ok }), convey.ShouldBeTrue)
				_, ok := p.get("c")
				convey.So(ok, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When shutting down", func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
			defer shutdownCancel()

			convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
			convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
		})
	})
}

func TestWorkerStopsWhenQueueCloses(t *testing.T) {
	convey.Convey("Given a worker on a queue", t, func() {
		q := newMockQueue()
		w := worker.NewInMemoryWorker(q, newMockProjector())
		go w.Run(context.Background())

		convey.Convey("When the queue closes", func() {
			_ = q.Close()

			convey.Convey("Then Run returns", func() {
				select {
				case <-w.Done():
				case <-time.After(time.Second):
					convey.So("worker still running", convey.ShouldBeEmpty)
				}
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a pool projecting onto the leaderboard", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(1000))
		board := repository.NewBoard()
		pool := worker.NewPool(4, q, board)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		convey.So(pool.Size(), convey.ShouldEqual, 4)

		convey.Convey("When many producers publish votes", func() {
			const producers, perProducer = 5, 40
			var wg sync.WaitGroup
			for i := 0; i < producers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					for j := 0; j < perProducer; j++ {
						e := event(fmt.Sprintf("v-%d-%d", i, j), fmt.Sprintf("w-%d-%d", i, j), fmt.Sprintf("l-%d-%d", i, j), 1)
						for !q.Enqueue(ctx, e) {
							time.Sleep(time.Millisecond)
						}
					}
				}(i)
			}
			wg.Wait()

			convey.Convey("Then shutdown drains every event onto the board", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()

				convey.So(pool.Shutdown(shutdownCtx), convey.ShouldBeNil)
				convey.So(board.Count(ctx, 1), convey.ShouldEqual, 2*producers*perProducer)

				top, err := board.TopN(ctx, 1, 1)
				convey.So(err, convey.ShouldBeNil)
				convey.So(top[0].Rating, convey.ShouldEqual, 1001)
			})
		})

		convey.Convey("When shut down idle", func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
			defer shutdownCancel()

			convey.So(pool.Shutdown(shutdownCtx), convey.ShouldBeNil)
			convey.So(q.IsClosed(), convey.ShouldBeTrue)
			convey.So(pool.Shutdown(shutdownCtx), convey.ShouldBeNil)
		})
	})
}

func TestWorkerPoolDefaultSize(t *testing.T) {
	convey.Convey("A pool created with no count uses one worker per CPU", t, func() {
		pool := worker.NewPool(0, newMockQueue(), newMockProjector())
		convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
	})
}
