package bands

import (
	"math"
	"testing"

	"github.com/okian/bandscore/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRound(t *testing.T) {
	Convey("Given raw band values", t, func() {
		cases := []struct {
			in, want float64
		}{
			{6.2, 6.0},
			{6.25, 6.5},
			{6.74, 6.5},
			{6.75, 7.0},
			{7.0, 7.0},
			{4.1, 5.0},
			{9.6, 9.0},
			{math.NaN(), 5.0},
			{math.Inf(1), 5.0},
		}
		for _, tc := range cases {
			So(Round(tc.in), ShouldEqual, tc.want)
		}
	})
}

func TestOverall(t *testing.T) {
	Convey("Given four criterion bands", t, func() {
		Convey("When the mean fraction is below .25", func() {
			b := model.BandScores{FluencyCoherence: 6, LexicalResource: 6, GrammaticalRange: 6, Pronunciation: 6.5}
			So(Overall(b), ShouldEqual, 6.0) // 6.125
		})

		Convey("When the mean fraction is exactly .25", func() {
			b := model.BandScores{FluencyCoherence: 6.5, LexicalResource: 6.5, GrammaticalRange: 6, Pronunciation: 6}
			So(Overall(b), ShouldEqual, 6.5) // 6.25
		})

		Convey("When the mean fraction is exactly .75", func() {
			b := model.BandScores{FluencyCoherence: 7, LexicalResource: 7, GrammaticalRange: 6.5, Pronunciation: 6.5}
			So(Overall(b), ShouldEqual, 7.0) // 6.75
		})

		Convey("When the mean fraction is .625", func() {
			b := model.BandScores{FluencyCoherence: 7, LexicalResource: 6.5, GrammaticalRange: 6.5, Pronunciation: 6.5}
			So(Overall(b), ShouldEqual, 6.5)
		})

		Convey("When a criterion is NaN", func() {
			b := model.BandScores{FluencyCoherence: math.NaN(), LexicalResource: 5, GrammaticalRange: 5, Pronunciation: 5}
			So(Overall(b), ShouldEqual, 5.0)
		})
	})
}

func TestFinalize(t *testing.T) {
	Convey("Given bands with an untrusted overall", t, func() {
		b := model.BandScores{FluencyCoherence: 7.3, LexicalResource: 8.8, GrammaticalRange: 6.1, Pronunciation: 3, Overall: 9}

		Convey("When finalized", func() {
			out := Finalize(b)

			Convey("Then criteria should be rounded and overall recomputed", func() {
				So(out.FluencyCoherence, ShouldEqual, 7.5)
				So(out.LexicalResource, ShouldEqual, 9.0)
				So(out.GrammaticalRange, ShouldEqual, 6.0)
				So(out.Pronunciation, ShouldEqual, 5.0)
				So(out.Overall, ShouldEqual, 7.0) // 6.875
			})
		})
	})

	Convey("Given a custom scale", t, func() {
		s := NewScale(4, 8)
		So(s.Round(3.2), ShouldEqual, 4.0)
		So(s.Round(8.9), ShouldEqual, 8.0)

		Convey("When the range is invalid", func() {
			So(NewScale(7, 6), ShouldResemble, DefaultScale)
			So(NewScale(0, 9), ShouldResemble, DefaultScale)
		})
	})
}
