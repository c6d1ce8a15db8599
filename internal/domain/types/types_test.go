package types_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/okian/bandscore/internal/domain/model"
	types "github.com/okian/bandscore/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func completedAssessment() model.Assessment {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return model.Assessment{
		ID:          "a-1",
		Prompt:      "Describe your hometown",
		Status:      model.StatusCompleted,
		CreatedAt:   created,
		CompletedAt: created.Add(9 * time.Second),
		Result: &model.Result{
			Bands:   model.BandScores{FluencyCoherence: 6.5, LexicalResource: 7, GrammaticalRange: 6, Pronunciation: 7, Overall: 6.5},
			Metrics: model.Metrics{WordCount: 120, WordsPerMinute: 132},
			Feedback: model.Feedback{
				Overall:  "Good range of vocabulary.",
				Criteria: map[model.Criterion]model.CriterionFeedback{model.FluencyCoherence: {Band: 6.5}},
			},
			Transcript: model.Transcript{Text: "my hometown is small"},
			Timings:    model.Timings{"total": 9000},
			Scorer:     "llm",
		},
	}
}

func TestParseDetail(t *testing.T) {
	Convey("Given detail level strings", t, func() {
		Convey("When the value is empty", func() {
			level, err := types.ParseDetail("")

			Convey("Then it should default", func() {
				So(err, ShouldBeNil)
				So(level, ShouldEqual, types.DetailDefault)
			})
		})

		Convey("When the value uses mixed case and spaces", func() {
			full, err1 := types.ParseDetail(" FULL ")
			fb, err2 := types.ParseDetail("Feedback")

			Convey("Then it should still parse", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(full, ShouldEqual, types.DetailFull)
				So(fb, ShouldEqual, types.DetailFeedback)
			})
		})

		Convey("When the value is unknown", func() {
			_, err := types.ParseDetail("verbose")

			Convey("Then it should return ErrInvalidDetail", func() {
				So(err, ShouldEqual, types.ErrInvalidDetail)
			})
		})
	})
}

func TestView(t *testing.T) {
	Convey("Given a completed assessment", t, func() {
		a := completedAssessment()

		Convey("When rendered at default detail", func() {
			v := types.View(a, types.DetailDefault)

			Convey("Then only bands and metrics should be present", func() {
				So(v.BandScores, ShouldNotBeNil)
				So(v.BandScores.Overall, ShouldEqual, 6.5)
				So(v.Metrics, ShouldNotBeNil)
				So(v.Feedback, ShouldBeNil)
				So(v.Transcript, ShouldBeNil)
				So(v.Timings, ShouldBeNil)
				So(v.Scorer, ShouldBeEmpty)
				So(v.CompletedAt, ShouldNotBeNil)
			})
		})

		Convey("When rendered at feedback detail", func() {
			v := types.View(a, types.DetailFeedback)

			Convey("Then feedback should be added", func() {
				So(v.Feedback, ShouldNotBeNil)
				So(v.Feedback.Overall, ShouldEqual, "Good range of vocabulary.")
				So(v.Transcript, ShouldBeNil)
			})
		})

		Convey("When rendered at full detail", func() {
			v := types.View(a, types.DetailFull)
			raw, err := json.Marshal(v)
			So(err, ShouldBeNil)

			var m map[string]any
			So(json.Unmarshal(raw, &m), ShouldBeNil)

			Convey("Then every section should be present in the JSON", func() {
				for _, key := range []string{"band_scores", "metrics", "feedback", "transcript", "timings", "scorer"} {
					So(m, ShouldContainKey, key)
				}
				So(v.Annotations, ShouldNotBeNil)
			})
		})
	})

	Convey("Given an assessment that is still processing", t, func() {
		a := completedAssessment()
		a.Status = model.StatusProcessing
		a.CompletedAt = time.Time{}

		Convey("When rendered at full detail", func() {
			v := types.View(a, types.DetailFull)

			Convey("Then result fields should be omitted", func() {
				So(v.BandScores, ShouldBeNil)
				So(v.Metrics, ShouldBeNil)
				So(v.Feedback, ShouldBeNil)
				So(v.CompletedAt, ShouldBeNil)
				So(v.Status, ShouldEqual, model.StatusProcessing)
			})
		})
	})

	Convey("Given a failed assessment", t, func() {
		a := completedAssessment()
		a.Status = model.StatusFailed
		a.Error = "no speech detected"
		a.Result = nil

		Convey("Then the error should be carried", func() {
			v := types.View(a, types.DetailDefault)
			So(v.Error, ShouldEqual, "no speech detected")
			So(v.BandScores, ShouldBeNil)
		})
	})
}
