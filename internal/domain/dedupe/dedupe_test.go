package dedupe_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	dedupe "github.com/okian/bandscore/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new InMemoryDeduper", t, func() {
		d := dedupe.NewInMemoryDeduper()

		Convey("When it is created", func() {
			Convey("Then it should be empty", func() {
				So(d, ShouldNotBeNil)
				So(d.Size(), ShouldEqual, 0)
			})
		})

		Convey("When a key is new", func() {
			seen := d.SeenAndRecord(ctx, "sha256:ab12")

			Convey("Then it should return false and record the key", func() {
				So(seen, ShouldBeFalse)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When a key was already recorded", func() {
			d.SeenAndRecord(ctx, "sha256:ab12")
			seen := d.SeenAndRecord(ctx, "sha256:ab12")

			Convey("Then it should return true without growing", func() {
				So(seen, ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When a key is unrecorded after a failure", func() {
			d.SeenAndRecord(ctx, "client-key-1")
			d.Unrecord(ctx, "client-key-1")
			d.Unrecord(ctx, "never-seen")

			Convey("Then the next submission should be treated as new", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, "client-key-1"), ShouldBeFalse)
			})
		})

		Convey("When several keys are recorded", func() {
			keys := []string{"k1", "k2", "k3", "k4", "k5"}
			for _, k := range keys {
				So(d.SeenAndRecord(ctx, k), ShouldBeFalse)
			}

			Convey("Then all of them should be seen", func() {
				So(d.Size(), ShouldEqual, int64(len(keys)))
				for _, k := range keys {
					So(d.SeenAndRecord(ctx, k), ShouldBeTrue)
				}
			})
		})
	})
}

func TestDedupeEviction(t *testing.T) {
	ctx := context.Background()

	Convey("Given a deduper bounded to two keys", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(2))
		d.SeenAndRecord(ctx, "a")
		d.SeenAndRecord(ctx, "b")

		Convey("When an old key is touched before a new one arrives", func() {
			So(d.SeenAndRecord(ctx, "a"), ShouldBeTrue)
			So(d.SeenAndRecord(ctx, "c"), ShouldBeFalse)

			Convey("Then the least recently seen key should be evicted", func() {
				So(d.Size(), ShouldEqual, 2)
				So(d.SeenAndRecord(ctx, "a"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "b"), ShouldBeFalse)
			})
		})
	})

	Convey("Given a deduper bounded to one key", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(1))

		Convey("Then each new key should replace the previous one", func() {
			So(d.SeenAndRecord(ctx, "k1"), ShouldBeFalse)
			So(d.SeenAndRecord(ctx, "k2"), ShouldBeFalse)
			So(d.Size(), ShouldEqual, 1)
			So(d.SeenAndRecord(ctx, "k1"), ShouldBeFalse)
			So(d.SeenAndRecord(ctx, "k2"), ShouldBeFalse)
			So(d.Size(), ShouldEqual, 1)
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		for _, size := range []int{0, -1} {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(size))
			for i := 0; i < 1000; i++ {
				So(d.SeenAndRecord(ctx, fmt.Sprintf("k-%d", i)), ShouldBeFalse)
			}
			So(d.Size(), ShouldEqual, 1000)
		}
	})
}

func TestDedupeConcurrency(t *testing.T) {
	ctx := context.Background()

	Convey("Given a deduper with concurrent access", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(1000))
		const goroutines = 10

		Convey("When the same key is submitted concurrently", func() {
			var wg sync.WaitGroup
			var mu sync.Mutex
			fresh := 0
			for i := 0; i < goroutines; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if !d.SeenAndRecord(ctx, "same-upload") {
						mu.Lock()
						fresh++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			Convey("Then exactly one caller should win", func() {
				So(fresh, ShouldEqual, 1)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When distinct keys are recorded and unrecorded concurrently", func() {
			var wg sync.WaitGroup
			for i := 0; i < goroutines; i++ {
				wg.Add(1)
				go func(g int) {
					defer wg.Done()
					for j := 0; j < 50; j++ {
						key := fmt.Sprintf("k-%d-%d", g, j)
						d.SeenAndRecord(ctx, key)
						if j%2 == 0 {
							d.Unrecord(ctx, key)
						}
					}
				}(i)
			}
			wg.Wait()

			Convey("Then only the kept keys should remain", func() {
				So(d.Size(), ShouldEqual, goroutines*25)
			})
		})
	})
}

func TestDedupeEdgeCases(t *testing.T) {
	Convey("Given a deduper with edge cases", t, func() {
		d := dedupe.NewInMemoryDeduper()

		Convey("When recording an empty key", func() {
			So(d.SeenAndRecord(context.Background(), ""), ShouldBeFalse)
			So(d.SeenAndRecord(context.Background(), ""), ShouldBeTrue)
		})

		Convey("When recording a very long key", func() {
			long := strings.Repeat("a", 10000)
			So(d.SeenAndRecord(context.Background(), long), ShouldBeFalse)
			So(d.SeenAndRecord(context.Background(), long), ShouldBeTrue)
		})

		Convey("When using a nil context", func() {
			So(func() { d.SeenAndRecord(nil, "k") }, ShouldNotPanic) //nolint:staticcheck // nil context is tolerated
			So(func() { d.Unrecord(nil, "k") }, ShouldNotPanic)       //nolint:staticcheck // nil context is tolerated
		})
	})
}
