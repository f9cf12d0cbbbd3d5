package similarity_test

import (
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/okian/versus/internal/domain/model"
	"github.com/okian/versus/internal/domain/similarity"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNormalize(t *testing.T) {
	Convey("Given raw item names", t, func() {
		cases := map[string]string{
			"Eiffel Tower":            "eiffel tower",
			"  The   Eiffel--Tower!! ": "the eiffel tower",
			"Moon_Landing (1969)":     "moon landing 1969",
			"Ünïcödé & Co.":           "ünïcödé co",
			"!!!":                     "",
			"":                        "",
		}

		Convey("Then they normalize to lowercase words separated by single spaces", func() {
			for in, want := range cases {
				So(similarity.Normalize(in), ShouldEqual, want)
			}
		})
	})

	Convey("Given arbitrary strings", t, func() {
		f := gofakeit.New(99)

		Convey("Then normalizing twice is the same as normalizing once", func() {
			for i := 0; i < 500; i++ {
				s := f.Sentence(6) + f.Emoji() + f.Password(true, true, true, true, true, 12)
				once := similarity.Normalize(s)
				So(similarity.Normalize(once), ShouldEqual, once)
			}
		})
	})
}

func TestDistance(t *testing.T) {
	Convey("Given pairs of strings", t, func() {
		d := func(a, b string) int { return similarity.Distance([]rune(a), []rune(b)) }

		So(d("", ""), ShouldEqual, 0)
		So(d("abc", ""), ShouldEqual, 3)
		So(d("", "abc"), ShouldEqual, 3)
		So(d("kitten", "sitting"), ShouldEqual, 3)
		So(d("tower", "tower"), ShouldEqual, 0)

		Convey("Then an adjacent transposition costs one edit", func() {
			So(d("eiffel", "eifefl"), ShouldEqual, 1)
			So(d("ab", "ba"), ShouldEqual, 1)
		})

		Convey("Then distance counts runes, not bytes", func() {
			So(d("café", "cafe"), ShouldEqual, 1)
		})
	})
}

func TestFindSimilar(t *testing.T) {
	Convey("Given a matcher with the default threshold", t, func() {
		m := similarity.NewMatcher()

		Convey("When the candidate differs only in case", func() {
			existing := []model.Item{{ID: "1", Name: "eiffel tower"}}
			match, ok := m.FindSimilar("Eiffel Tower", existing)

			Convey("Then the existing item is returned with score 0", func() {
				So(ok, ShouldBeTrue)
				So(match.Item.ID, ShouldEqual, "1")
				So(match.Score, ShouldEqual, 0)
			})
		})

		Convey("When the candidate is an unrelated name", func() {
			existing := []model.Item{{ID: "2", Name: "Leaning Tower of Pisa"}}
			_, ok := m.FindSimilar("Eiffel Tower", existing)
			So(ok, ShouldBeFalse)
		})

		Convey("When the candidate has a small typo", func() {
			existing := []model.Item{
				{ID: "1", Name: "Great Wall of China"},
				{ID: "2", Name: "Eiffel Tower"},
			}
			match, ok := m.FindSimilar("Eifel Towr", existing)

			Convey("Then the closest item wins", func() {
				So(ok, ShouldBeTrue)
				So(match.Item.ID, ShouldEqual, "2")
				So(match.Score, ShouldBeLessThanOrEqualTo, similarity.DefaultThreshold)
			})
		})

		Convey("When there are no existing items", func() {
			_, ok := m.FindSimilar("Anything", nil)
			So(ok, ShouldBeFalse)
		})
	})

	Convey("Given a strict matcher", t, func() {
		m := similarity.NewMatcher(similarity.WithThreshold(0))

		Convey("Then only exact normalized matches count", func() {
			_, ok := m.FindSimilar("Eifel Tower", []model.Item{{Name: "Eiffel Tower"}})
			So(ok, ShouldBeFalse)
			_, ok = m.FindSimilar("EIFFEL   tower!", []model.Item{{Name: "Eiffel Tower"}})
			So(ok, ShouldBeTrue)
		})
	})

	Convey("Given an out-of-range threshold", t, func() {
		m := similarity.NewMatcher(similarity.WithThreshold(3))
		So(m.Threshold(), ShouldEqual, similarity.DefaultThreshold)
	})
}
