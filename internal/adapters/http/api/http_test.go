package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/bandscore/internal/adapters/http/api"
	service "github.com/okian/bandscore/internal/app"
	"github.com/okian/bandscore/internal/domain/model"
	"github.com/okian/bandscore/internal/domain/types"
	"github.com/okian/bandscore/pkg/logger"
)

type mockDeps struct {
	mu          sync.Mutex
	submitted   []service.Submission
	submitErr   error
	duplicate   bool
	assessments map[string]model.Assessment
	waitResult  *model.Assessment
	listErr     error
}

func newMockDeps() *mockDeps {
	return &mockDeps{assessments: make(map[string]model.Assessment)}
}

func (m *mockDeps) Submit(_ context.Context, sub service.Submission) (service.SubmitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitErr != nil {
		return service.SubmitResult{}, m.submitErr
	}
	m.submitted = append(m.submitted, sub)
	a := model.Assessment{ID: "a-1", Status: model.StatusQueued, Prompt: sub.Prompt, CreatedAt: time.Now()}
	return service.SubmitResult{Assessment: a, Duplicate: m.duplicate}, nil
}

func (m *mockDeps) Get(_ context.Context, id string) (model.Assessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assessments[id]
	if !ok {
		return model.Assessment{}, service.ErrNotFound
	}
	return a, nil
}

func (m *mockDeps) List(_ context.Context, limit int) ([]model.Assessment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	var out []model.Assessment
	for _, a := range m.assessments {
		if len(out) == limit {
			break
		}
		out = append(out, a)
	}
	return out, len(m.assessments), nil
}

func (m *mockDeps) Wait(ctx context.Context, id string) (model.Assessment, error) {
	m.mu.Lock()
	res := m.waitResult
	m.mu.Unlock()
	if res != nil {
		return *res, nil
	}
	<-ctx.Done()
	return model.Assessment{ID: id, Status: model.StatusProcessing}, ctx.Err()
}

type mockStats struct{}

func (mockStats) GetStats(context.Context) service.Stats {
	return service.Stats{Started: true, Workers: 3, QueueCapacity: 8}
}

func completed(id string) model.Assessment {
	return model.Assessment{
		ID:          id,
		Status:      model.StatusCompleted,
		Prompt:      "Describe a festival",
		CreatedAt:   time.Now().Add(-time.Minute),
		CompletedAt: time.Now(),
		Result: &model.Result{
			Bands:      model.BandScores{FluencyCoherence: 7, LexicalResource: 6.5, GrammaticalRange: 6.5, Pronunciation: 7, Overall: 7},
			Metrics:    model.Metrics{WordCount: 120, WordsPerMinute: 132},
			Feedback:   model.Feedback{Overall: "Fluent with minor slips."},
			Transcript: model.Transcript{Text: "well the festival I like most"},
			Timings:    model.Timings{"total": 4200},
			Scorer:     "llm-combined",
		},
	}
}

func multipartBody(fields map[string]string, audio []byte) (*bytes.Buffer, string) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	if audio != nil {
		fw, _ := mw.CreateFormFile("audio", "answer.wav")
		_, _ = fw.Write(audio)
	}
	_ = mw.Close()
	return &buf, mw.FormDataContentType()
}

func newMux(deps *mockDeps, opts ...api.Option) *http.ServeMux {
	opts = append([]api.Option{api.WithLogger(logger.Nop())}, opts...)
	mux := http.NewServeMux()
	api.NewServer(deps, mockStats{}, opts...).Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeError(w *httptest.ResponseRecorder) types.ErrorResponse {
	var e types.ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &e)
	return e
}

func TestSubmitAssessment(t *testing.T) {
	Convey("Given the assessments API", t, func() {
		deps := newMockDeps()
		mux := newMux(deps, api.WithMaxUploadBytes(1<<20), api.WithSyncTimeout(50*time.Millisecond))

		Convey("When submitting a valid answer", func() {
			body, ctype := multipartBody(map[string]string{"prompt": " Describe a festival "}, []byte("RIFF...."))
			req := httptest.NewRequest(http.MethodPost, "/v1/assessments", body)
			req.Header.Set("Content-Type", ctype)
			req.Header.Set("Idempotency-Key", "client-7")
			w := do(mux, req)

			Convey("Then it should be accepted", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				var resp types.SubmitResponse
				So(json.Unmarshal(w.Body.Bytes(), &resp), ShouldBeNil)
				So(resp.ID, ShouldEqual, "a-1")
				So(resp.Status, ShouldEqual, model.StatusQueued)
				So(resp.Duplicate, ShouldBeFalse)

				So(len(deps.submitted), ShouldEqual, 1)
				So(deps.submitted[0].Prompt, ShouldEqual, "Describe a festival")
				So(deps.submitted[0].Key, ShouldEqual, "client-7")
				So(deps.submitted[0].Filename, ShouldEqual, "answer.wav")
				So(string(deps.submitted[0].Audio), ShouldEqual, "RIFF....")
			})
		})

		Convey("When the submission is a duplicate", func() {
			deps.duplicate = true
			body, ctype := multipartBody(nil, []byte("RIFF"))
			req := httptest.NewRequest(http.MethodPost, "/v1/assessments", body)
			req.Header.Set("Content-Type", ctype)
			w := do(mux, req)

			Convey("Then the response should say so", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(w.Body.String(), ShouldContainSubstring, `"duplicate":true`)
			})
		})

		Convey("When waiting for a result that finishes", func() {
			done := completed("a-1")
			deps.waitResult = &done
			body, ctype := multipartBody(map[string]string{"wait": "true", "detail": "feedback"}, []byte("RIFF"))
			req := httptest.NewRequest(http.MethodPost, "/v1/assessments", body)
			req.Header.Set("Content-Type", ctype)
			w := do(mux, req)

			Convey("Then the view at the requested detail should be returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var view types.AssessmentView
				So(json.Unmarshal(w.Body.Bytes(), &view), ShouldBeNil)
				So(view.BandScores.Overall, ShouldEqual, 7)
				So(view.Feedback, ShouldNotBeNil)
				So(view.Transcript, ShouldBeNil)
			})
		})

		Convey("When waiting past the sync timeout", func() {
			body, ctype := multipartBody(map[string]string{"wait": "1"}, []byte("RIFF"))
			req := httptest.NewRequest(http.MethodPost, "/v1/assessments", body)
			req.Header.Set("Content-Type", ctype)
			w := do(mux, req)

			Convey("Then it should fall back to an accepted response with the latest status", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(w.Body.String(), ShouldContainSubstring, `"status":"processing"`)
			})
		})

		Convey("When the request is invalid", func() {
			cases := []struct {
				name   string
				fields map[string]string
				audio  []byte
				code   string
			}{
				{"missing audio", nil, nil, "missing_audio"},
				{"unknown detail", map[string]string{"detail": "verbose"}, []byte("RIFF"), "invalid_detail"},
				{"bad wait flag", map[string]string{"wait": "sometimes"}, []byte("RIFF"), "bad_request"},
			}
			for _, tc := range cases {
				body, ctype := multipartBody(tc.fields, tc.audio)
				req := httptest.NewRequest(http.MethodPost, "/v1/assessments", body)
				req.Header.Set("Content-Type", ctype)
				w := do(mux, req)

				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeError(w).Code, ShouldEqual, tc.code)
			}
		})

		Convey("When the body is not multipart", func() {
			req := httptest.NewRequest(http.MethodPost, "/v1/assessments", strings.NewReader(`{"audio":"x"}`))
			req.Header.Set("Content-Type", "application/json")
			w := do(mux, req)

			Convey("Then it should be a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the upload exceeds the limit", func() {
			body, ctype := multipartBody(nil, bytes.Repeat([]byte{1}, 2<<20))
			req := httptest.NewRequest(http.MethodPost, "/v1/assessments", body)
			req.Header.Set("Content-Type", ctype)
			w := do(mux, req)

			Convey("Then it should be rejected as too large", func() {
				So(w.Code, ShouldEqual, http.StatusRequestEntityTooLarge)
				So(decodeError(w).Code, ShouldEqual, "too_large")
			})
		})

		Convey("When the service reports an error", func() {
			statuses := map[error]int{
				service.ErrBackpressure:    http.StatusTooManyRequests,
				service.ErrEmptyAudio:      http.StatusBadRequest,
				service.ErrNotStarted:      http.StatusServiceUnavailable,
				errors.New("disk on fire"): http.StatusInternalServerError,
			}
			for err, status := range statuses {
				deps.submitErr = err
				body, ctype := multipartBody(nil, []byte("RIFF"))
				req := httptest.NewRequest(http.MethodPost, "/v1/assessments", body)
				req.Header.Set("Content-Type", ctype)
				w := do(mux, req)
				So(w.Code, ShouldEqual, status)
			}
		})
	})
}

func TestReadAssessments(t *testing.T) {
	Convey("Given stored assessments", t, func() {
		deps := newMockDeps()
		deps.assessments["done"] = completed("done")
		deps.assessments["queued"] = model.Assessment{ID: "queued", Status: model.StatusQueued, CreatedAt: time.Now()}
		mux := newMux(deps, api.WithMaxListLimit(10))

		Convey("When fetching at each detail level", func() {
			get := func(q string) types.AssessmentView {
				w := do(mux, httptest.NewRequest(http.MethodGet, "/v1/assessments/done"+q, http.NoBody))
				So(w.Code, ShouldEqual, http.StatusOK)
				var v types.AssessmentView
				So(json.Unmarshal(w.Body.Bytes(), &v), ShouldBeNil)
				return v
			}

			Convey("Then verbosity should grow with the level", func() {
				def := get("")
				So(def.BandScores, ShouldNotBeNil)
				So(def.Metrics, ShouldNotBeNil)
				So(def.Feedback, ShouldBeNil)

				fb := get("?detail=feedback")
				So(fb.Feedback, ShouldNotBeNil)
				So(fb.Transcript, ShouldBeNil)

				full := get("?detail=FULL")
				So(full.Transcript, ShouldNotBeNil)
				So(full.Scorer, ShouldEqual, "llm-combined")
				So(full.Timings["total"], ShouldEqual, 4200)
			})
		})

		Convey("When fetching an unknown id or detail", func() {
			w := do(mux, httptest.NewRequest(http.MethodGet, "/v1/assessments/nope", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(decodeError(w).Code, ShouldEqual, "not_found")

			w = do(mux, httptest.NewRequest(http.MethodGet, "/v1/assessments/done?detail=max", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When listing", func() {
			w := do(mux, httptest.NewRequest(http.MethodGet, "/v1/assessments?limit=1", http.NoBody))

			Convey("Then it should return default views with counts", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var resp types.ListResponse
				So(json.Unmarshal(w.Body.Bytes(), &resp), ShouldBeNil)
				So(resp.Count, ShouldEqual, 1)
				So(resp.Total, ShouldEqual, 2)
				So(resp.Assessments[0].Feedback, ShouldBeNil)
			})
		})

		Convey("When listing with an invalid limit", func() {
			for _, q := range []string{"?limit=0", "?limit=abc", "?limit=11"} {
				w := do(mux, httptest.NewRequest(http.MethodGet, "/v1/assessments"+q, http.NoBody))
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			}
		})

		Convey("When the store fails", func() {
			deps.listErr = errors.New("database is locked")
			w := do(mux, httptest.NewRequest(http.MethodGet, "/v1/assessments", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
		})
	})
}

func TestOperationalEndpoints(t *testing.T) {
	Convey("Given the API server", t, func() {
		mux := newMux(newMockDeps())

		Convey("Then /healthz should report ok", func() {
			w := do(mux, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"status":"ok"`)
		})

		Convey("Then /stats should expose service stats", func() {
			w := do(mux, httptest.NewRequest(http.MethodGet, "/stats", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"workers":3`)
		})

		Convey("Then /metrics should serve Prometheus text", func() {
			_ = do(mux, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
			w := do(mux, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "http_requests_total")
		})

		Convey("Then wrong methods should be refused", func() {
			w := do(mux, httptest.NewRequest(http.MethodDelete, "/v1/assessments/x", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestOpError(t *testing.T) {
	Convey("Given operation-tagged errors", t, func() {
		cause := errors.New("boom")
		err := api.WrapKind("api.op", api.ErrBadRequest, cause)

		So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
		So(errors.Is(err, cause), ShouldBeTrue)
		So(err.Error(), ShouldEqual, "api.op: bad request: boom")
		So(api.NewKind("api.op", api.ErrNotFound).Error(), ShouldEqual, "api.op: not found")
		So(api.Wrap("api.op", nil), ShouldBeNil)
		So(errors.Is(api.Wrap("api.op", cause), cause), ShouldBeTrue)
	})
}
