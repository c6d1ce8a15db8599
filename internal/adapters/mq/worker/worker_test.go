package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/bandscore/internal/adapters/mq/queue"
	worker "github.com/okian/bandscore/internal/adapters/mq/worker"
	model "github.com/okian/bandscore/internal/domain/model"
	logging "github.com/okian/bandscore/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	jobs chan model.Job
	once sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{jobs: make(chan model.Job, 10)}
}

func (mq *mockQueue) Dequeue(context.Context) <-chan model.Job { return mq.jobs }

func (mq *mockQueue) Close() error {
	mq.once.Do(func() { close(mq.jobs) })
	return nil
}

type mockProcessor struct {
	mu     sync.Mutex
	errors map[string]error
	delay  time.Duration
	runs   int
}

func newMockProcessor() *mockProcessor {
	return &mockProcessor{errors: make(map[string]error)}
}

func (mp *mockProcessor) Run(ctx context.Context, job model.Job) (*model.Result, error) {
	mp.mu.Lock()
	mp.runs++
	err := mp.errors[job.AssessmentID]
	delay := mp.delay
	mp.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &model.Result{Bands: model.BandScores{Overall: 6.5}, Scorer: "heuristic"}, nil
}

func (mp *mockProcessor) setError(id string, err error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.errors[id] = err
}

type mockUpdater struct {
	mu         sync.Mutex
	processing map[string]bool
	completed  map[string]*model.Result
	failed     map[string]error
	markErr    error
}

func newMockUpdater() *mockUpdater {
	return &mockUpdater{
		processing: make(map[string]bool),
		completed:  make(map[string]*model.Result),
		failed:     make(map[string]error),
	}
}

func (mu *mockUpdater) MarkProcessing(_ context.Context, id string) error {
	mu.mu.Lock()
	defer mu.mu.Unlock()
	if mu.markErr != nil {
		return mu.markErr
	}
	mu.processing[id] = true
	return nil
}

func (mu *mockUpdater) Complete(_ context.Context, id string, r *model.Result) error {
	mu.mu.Lock()
	defer mu.mu.Unlock()
	mu.completed[id] = r
	return nil
}

func (mu *mockUpdater) Fail(_ context.Context, id string, cause error) error {
	mu.mu.Lock()
	defer mu.mu.Unlock()
	mu.failed[id] = cause
	return nil
}

func (mu *mockUpdater) result(id string) (*model.Result, bool) {
	mu.mu.Lock()
	defer mu.mu.Unlock()
	r, ok := mu.completed[id]
	return r, ok
}

func (mu *mockUpdater) failure(id string) (error, bool) {
	mu.mu.Lock()
	defer mu.mu.Unlock()
	err, ok := mu.failed[id]
	return err, ok
}

func (mu *mockUpdater) finished() int {
	mu.mu.Lock()
	defer mu.mu.Unlock()
	return len(mu.completed) + len(mu.failed)
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
	convey.Convey("Given a new InMemoryWorker", t, func() {
		q := newMockQueue()
		processor := newMockProcessor()
		updater := newMockUpdater()

		convey.Convey("When running a worker", func() {
			w := worker.NewInMemoryWorker(q, processor, updater,
				worker.WithName("test-worker"),
				worker.WithLogger(logging.Nop()),
			)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go w.Run(ctx)

			convey.Convey("And a job succeeds", func() {
				q.jobs <- model.Job{AssessmentID: "a1"}

				convey.Convey("Then the assessment should be completed", func() {
					convey.So(eventually(func() bool { _, ok := updater.result("a1"); return ok }), convey.ShouldBeTrue)
					r, _ := updater.result("a1")
					convey.So(r.Bands.Overall, convey.ShouldEqual, 6.5)
					convey.So(updater.processing["a1"], convey.ShouldBeTrue)
				})
			})

			convey.Convey("And the pipeline fails", func() {
				processor.setError("a2", errors.New("transcription: upstream 503"))
				q.jobs <- model.Job{AssessmentID: "a2"}

				convey.Convey("Then the assessment should be failed with the cause", func() {
					convey.So(eventually(func() bool { _, ok := updater.failure("a2"); return ok }), convey.ShouldBeTrue)
					cause, _ := updater.failure("a2")
					convey.So(cause.Error(), convey.ShouldContainSubstring, "upstream 503")
					_, completed := updater.result("a2")
					convey.So(completed, convey.ShouldBeFalse)
				})
			})

			convey.Convey("And shutting down", func() {
				sctx, scancel := context.WithTimeout(context.Background(), time.Second)
				defer scancel()

				convey.Convey("Then it should stop gracefully and tolerate a second call", func() {
					convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
					convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
				})
			})
		})

		convey.Convey("When marking processing fails", func() {
			updater.markErr = errors.New("store closed")
			w := worker.NewInMemoryWorker(q, processor, updater, worker.WithLogger(logging.Nop()))
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go w.Run(ctx)
			q.jobs <- model.Job{AssessmentID: "a3"}
			_ = q.Close()

			convey.Convey("Then the pipeline should not run", func() {
				convey.So(eventually(func() bool {
					select {
					case <-w.Done():
						return true
					default:
						return false
					}
				}), convey.ShouldBeTrue)
				convey.So(processor.runs, convey.ShouldEqual, 0)
				convey.So(updater.finished(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When a job exceeds the job timeout", func() {
			processor.delay = time.Second
			w := worker.NewInMemoryWorker(q, processor, updater,
				worker.WithLogger(logging.Nop()),
				worker.WithJobTimeout(20*time.Millisecond),
			)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go w.Run(ctx)
			q.jobs <- model.Job{AssessmentID: "slow"}

			convey.Convey("Then it should be failed with a deadline error", func() {
				convey.So(eventually(func() bool { _, ok := updater.failure("slow"); return ok }), convey.ShouldBeTrue)
				cause, _ := updater.failure("slow")
				convey.So(errors.Is(cause, context.DeadlineExceeded), convey.ShouldBeTrue)
				convey.So(cause.Error(), convey.ShouldContainSubstring, "processing exceeded")
			})
		})

		convey.Convey("When the context is cancelled", func() {
			w := worker.NewInMemoryWorker(q, processor, updater)
			ctx, cancel := context.WithCancel(context.Background())
			go w.Run(ctx)
			cancel()

			convey.Convey("Then the worker should stop", func() {
				select {
				case <-w.Done():
				case <-time.After(time.Second):
					convey.So("worker did not stop", convey.ShouldBeEmpty)
				}
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a worker pool on a real queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(64))
		processor := newMockProcessor()
		updater := newMockUpdater()

		convey.Convey("When creating with a non-positive count", func() {
			p := worker.NewPool(0, q, processor, updater)

			convey.Convey("Then it should fall back to at least one worker", func() {
				convey.So(p.Size(), convey.ShouldBeGreaterThan, 0)
			})
		})

		convey.Convey("When processing many jobs concurrently", func() {
			p := worker.NewPool(4, q, processor, updater, worker.WithLogger(logging.Nop()))
			p.Start(context.Background())

			const n = 40
			for i := 0; i < n; i++ {
				id := fmt.Sprintf("a%02d", i)
				if i%10 == 0 {
					processor.setError(id, errors.New("no speech"))
				}
				convey.So(q.Enqueue(context.Background(), model.Job{AssessmentID: id}), convey.ShouldBeTrue)
			}

			convey.Convey("Then every job should reach a terminal state", func() {
				convey.So(eventually(func() bool { return updater.finished() == n }), convey.ShouldBeTrue)
				convey.So(len(updater.failed), convey.ShouldEqual, 4)
				convey.So(len(updater.completed), convey.ShouldEqual, n-4)

				sctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				convey.So(p.Shutdown(sctx), convey.ShouldBeNil)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When shutting down with jobs still queued", func() {
			p := worker.NewPool(2, q, processor, updater, worker.WithLogger(logging.Nop()))
			for i := 0; i < 6; i++ {
				convey.So(q.Enqueue(context.Background(), model.Job{AssessmentID: fmt.Sprintf("d%d", i)}), convey.ShouldBeTrue)
			}
			p.Start(context.Background())

			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			err := p.Shutdown(sctx)

			convey.Convey("Then the queue should be drained first", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(updater.finished(), convey.ShouldEqual, 6)
			})
		})
	})
}
