package disfluency

import (
	"strings"
	"testing"

	"github.com/okian/bandscore/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func words(text string) []model.Word {
	var out []model.Word
	for i, f := range strings.Fields(text) {
		out = append(out, model.Word{Text: f, Start: float64(i), End: float64(i) + 0.5})
	}
	return out
}

func kinds(ds []model.Disfluency) []model.DisfluencyKind {
	out := make([]model.DisfluencyKind, len(ds))
	for i, d := range ds {
		out[i] = d.Kind
	}
	return out
}

func TestDetectFillers(t *testing.T) {
	Convey("Given a detector with the default lexicon", t, func() {
		d := NewDetector()

		Convey("When the answer contains single and multi word fillers", func() {
			ds := d.Detect(words("Um, I like, you know, swimming. Uh"))

			Convey("Then each filler should be reported once", func() {
				So(len(ds), ShouldEqual, 3)
				So(ds[0].Text, ShouldEqual, "um")
				So(ds[0].WordIndex, ShouldEqual, 0)
				So(ds[1].Text, ShouldEqual, "you know")
				So(ds[1].WordIndex, ShouldEqual, 3)
				So(ds[1].Start, ShouldEqual, 3)
				So(ds[1].End, ShouldEqual, 4.5)
				So(ds[2].WordIndex, ShouldEqual, 6)
			})
		})

		Convey("When the lexicon is replaced", func() {
			custom := NewDetector(WithFillers([]string{"like"}))
			ds := custom.Detect(words("I like um tea"))

			Convey("Then only the new fillers should match", func() {
				So(len(ds), ShouldEqual, 1)
				So(ds[0].Text, ShouldEqual, "like")
			})
		})
	})
}

func TestDetectRepetitionsAndCorrections(t *testing.T) {
	Convey("Given a detector", t, func() {
		d := NewDetector()

		Convey("When a word is repeated across a filler", func() {
			ds := d.Detect(words("I I think um think so"))

			Convey("Then both repeats should be marked", func() {
				So(kinds(ds), ShouldResemble, []model.DisfluencyKind{model.Repetition, model.Filler, model.Repetition})
				So(ds[0].WordIndex, ShouldEqual, 1)
				So(ds[2].WordIndex, ShouldEqual, 4)
			})
		})

		Convey("When a word is cut off", func() {
			ds := d.Detect(words("it was bec- because of rain"))

			Convey("Then the fragment should be a self-correction", func() {
				So(len(ds), ShouldEqual, 1)
				So(ds[0].Kind, ShouldEqual, model.SelfCorrection)
				So(ds[0].WordIndex, ShouldEqual, 2)
			})
		})

		Convey("When a short prefix is restarted", func() {
			ds := d.Detect(words("I usually prac practise daily"))

			Convey("Then the prefix should be a self-correction", func() {
				So(len(ds), ShouldEqual, 1)
				So(ds[0].Text, ShouldEqual, "prac")
			})
		})

		Convey("When a function word precedes a longer word", func() {
			ds := d.Detect(words("I want to today"))
			So(ds, ShouldBeEmpty)
		})

		Convey("When a misspoken word is replaced by a sound-alike", func() {
			ds := d.Detect(words("I recieve receive letters"))

			Convey("Then it should be a phonetic self-correction", func() {
				So(len(ds), ShouldEqual, 1)
				So(ds[0].Kind, ShouldEqual, model.SelfCorrection)
				So(ds[0].WordIndex, ShouldEqual, 1)
			})
		})

		Convey("When speech is fluent", func() {
			So(d.Detect(words("my favourite place is the park near my house")), ShouldBeEmpty)
			So(d.Detect(nil), ShouldBeEmpty)
		})
	})
}

func TestNormalize(t *testing.T) {
	Convey("Given raw tokens", t, func() {
		So(Normalize("Well,"), ShouldEqual, "well")
		So(Normalize("\"Don't\""), ShouldEqual, "don't")
		So(Normalize("..."), ShouldEqual, "")
		So(IsFragment("bec-"), ShouldBeTrue)
		So(IsFragment("bec-,"), ShouldBeTrue)
		So(IsFragment("-"), ShouldBeFalse)
		So(IsFragment("well-known"), ShouldBeFalse)
	})
}
