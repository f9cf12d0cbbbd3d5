package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	dedupe "github.com/okian/versus/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new InMemoryDeduper", t, func() {
		d := dedupe.NewInMemoryDeduper()
		So(d.Size(), ShouldEqual, 0)

		Convey("When a request id is new", func() {
			seen := d.SeenAndRecord(ctx, "req-1")

			Convey("Then it is recorded but has no outcome yet", func() {
				So(seen, ShouldBeFalse)
				So(d.Size(), ShouldEqual, 1)
				_, ok := d.Outcome(ctx, "req-1")
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When a request id is replayed after completion", func() {
			d.SeenAndRecord(ctx, "req-1")
			d.Complete(ctx, "req-1", "vote-9")
			seen := d.SeenAndRecord(ctx, "req-1")

			Convey("Then the original outcome is returned", func() {
				So(seen, ShouldBeTrue)
				out, ok := d.Outcome(ctx, "req-1")
				So(ok, ShouldBeTrue)
				So(out, ShouldEqual, "vote-9")
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When a failed request is unrecorded", func() {
			d.SeenAndRecord(ctx, "req-1")
			d.Unrecord(ctx, "req-1")

			Convey("Then the voter can retry with the same id", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, "req-1"), ShouldBeFalse)
			})
		})

		Convey("When completing or unrecording an unknown id", func() {
			d.Complete(ctx, "ghost", "vote-1")
			d.Unrecord(ctx, "ghost")

			Convey("Then nothing changes", func() {
				So(d.Size(), ShouldEqual, 0)
				_, ok := d.Outcome(ctx, "ghost")
				So(ok, ShouldBeFalse)
			})
		})
	})

	Convey("Given a bounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
		for _, id := range []string{"r1", "r2", "r3"} {
			So(d.SeenAndRecord(ctx, id), ShouldBeFalse)
		}

		Convey("When one more id arrives", func() {
			So(d.SeenAndRecord(ctx, "r4"), ShouldBeFalse)

			Convey("Then the oldest id is evicted and the rest are kept", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.SeenAndRecord(ctx, "r4"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "r3"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "r2"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "r1"), ShouldBeFalse)
			})
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
		for i := 0; i < 1000; i++ {
			d.SeenAndRecord(ctx, fmt.Sprintf("r-%d", i))
		}
		So(d.Size(), ShouldEqual, 1000)
		So(d.SeenAndRecord(ctx, "r-0"), ShouldBeTrue)
	})
}

func TestDedupeConcurrency(t *testing.T) {
	Convey("Given many goroutines replaying the same request id", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(1000))
		const workers = 32

		var wg sync.WaitGroup
		var mu sync.Mutex
		firsts := 0
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if !d.SeenAndRecord(context.Background(), "same") {
					mu.Lock()
					firsts++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		Convey("Then exactly one of them proceeds", func() {
			So(firsts, ShouldEqual, 1)
			So(d.Size(), ShouldEqual, 1)
		})
	})
}
