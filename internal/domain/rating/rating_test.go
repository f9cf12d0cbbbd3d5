package rating_test

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/okian/versus/internal/domain/model"
	rating "github.com/okian/versus/internal/domain/rating"
	. "github.com/smartystreets/goconvey/convey"
)

func year(y int) *int { return &y }

func TestApply_FirstVote(t *testing.T) {
	Convey("Given two fresh items rated 1000 with no matches", t, func() {
		a := rating.Contender{Rating: 1000}
		b := rating.Contender{Rating: 1000}

		Convey("When A beats B", func() {
			out := rating.Apply(a, b)

			Convey("Then both move by 12 in opposite directions", func() {
				So(out.Expected, ShouldAlmostEqual, 0.5, 1e-12)
				So(out.EffectiveK, ShouldAlmostEqual, 24, 1e-12)
				So(out.WinnerDelta, ShouldAlmostEqual, 12, 1e-9)
				So(out.LoserDelta, ShouldAlmostEqual, -12, 1e-9)
				So(out.WinnerRating, ShouldAlmostEqual, 1012, 1e-9)
				So(out.LoserRating, ShouldAlmostEqual, 988, 1e-9)
			})
		})
	})
}

func TestApply_BoundedDeltas(t *testing.T) {
	Convey("Given many random votes", t, func() {
		rng := rand.New(rand.NewPCG(7, 11))

		Convey("Then every delta stays within 25 and the winner never loses points", func() {
			for i := 0; i < 5000; i++ {
				w := rating.Contender{Rating: 200 + rng.Float64()*2400, Matches: rng.IntN(500)}
				l := rating.Contender{Rating: 200 + rng.Float64()*2400, Matches: rng.IntN(500)}
				out := rating.Apply(w, l)

				So(math.Abs(out.WinnerDelta), ShouldBeLessThanOrEqualTo, 25)
				So(math.Abs(out.LoserDelta), ShouldBeLessThanOrEqualTo, 25)
				if out.Expected < 1 {
					So(out.WinnerDelta, ShouldBeGreaterThan, 0)
					So(out.LoserDelta, ShouldBeLessThanOrEqualTo, 0)
				}
			}
		})
	})

	Convey("Given a model with a large base K", t, func() {
		m := rating.New(rating.WithBaseK(400))

		Convey("Then the clamp still limits both deltas to 25", func() {
			out := m.Apply(rating.Contender{Rating: 900}, rating.Contender{Rating: 1100})
			So(out.WinnerDelta, ShouldEqual, 25)
			So(out.LoserDelta, ShouldEqual, -25)
		})
	})
}

func TestEffectiveK_Dampening(t *testing.T) {
	m := rating.New()

	Convey("Given the gap dampening rule", t, func() {
		near := m.EffectiveK(rating.Contender{Rating: 1000}, rating.Contender{Rating: 1050})
		far := m.EffectiveK(rating.Contender{Rating: 1000}, rating.Contender{Rating: 2000})

		Convey("Then a 1000-point gap uses a smaller K than a 50-point gap", func() {
			So(near, ShouldAlmostEqual, rating.DefaultBaseK, 1e-12)
			So(far, ShouldBeLessThan, rating.DefaultBaseK)
			So(far, ShouldAlmostEqual, 24*400.0/1000.0, 1e-9)
		})
	})

	Convey("Given the experience dampening rule", t, func() {
		fresh := m.EffectiveK(rating.Contender{Rating: 1000}, rating.Contender{Rating: 1000})
		veteran := m.EffectiveK(rating.Contender{Rating: 1000, Matches: 20}, rating.Contender{Rating: 1000, Matches: 20})

		Convey("Then items with 20 average matches move at half speed", func() {
			So(veteran, ShouldAlmostEqual, fresh/2, 1e-12)
		})
	})

	Convey("Given the temporal dampening rule", t, func() {
		close := m.EffectiveK(
			rating.Contender{Rating: 1000, Year: year(1969)},
			rating.Contender{Rating: 1000, Year: year(1969)},
		)
		distant := m.EffectiveK(
			rating.Contender{Rating: 1000, Year: year(1919)},
			rating.Contender{Rating: 1000, Year: year(1969)},
		)
		oneSided := m.EffectiveK(
			rating.Contender{Rating: 1000, Year: year(1919)},
			rating.Contender{Rating: 1000},
		)

		Convey("Then only pairs that both carry a year are dampened", func() {
			So(close, ShouldAlmostEqual, 24, 1e-12)
			So(distant, ShouldAlmostEqual, 12, 1e-12)
			So(oneSided, ShouldAlmostEqual, 24, 1e-12)
		})
	})
}

func TestPreview(t *testing.T) {
	Convey("Given an uneven pair", t, func() {
		a := model.Item{ID: "a", Rating: 1100, Matches: 4}
		b := model.Item{ID: "b", Rating: 950, Matches: 2}

		ifA, ifB := rating.Preview(rating.FromItem(a), rating.FromItem(b))

		Convey("Then each branch matches Apply exactly", func() {
			So(ifA, ShouldResemble, rating.Apply(rating.FromItem(a), rating.FromItem(b)))
			So(ifB, ShouldResemble, rating.Apply(rating.FromItem(b), rating.FromItem(a)))
		})

		Convey("Then the upset earns more than the expected win", func() {
			So(ifB.WinnerDelta, ShouldBeGreaterThan, ifA.WinnerDelta)
		})
	})
}

func TestNonFiniteRatingPanics(t *testing.T) {
	Convey("Given a contender with a NaN rating", t, func() {
		bad := rating.Contender{Rating: math.NaN()}

		Convey("Then the model fails fast", func() {
			So(func() { rating.Apply(bad, rating.Contender{Rating: 1000}) }, ShouldPanic)
			So(func() { rating.Apply(rating.Contender{Rating: math.Inf(1)}, bad) }, ShouldPanic)
		})
	})
}
