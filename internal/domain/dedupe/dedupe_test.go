package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	dedupe "github.com/okian/bidsify/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new InMemoryDeduper", t, func() {
		Convey("When creating a deduper with default options", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("Then it should be empty", func() {
				So(d, ShouldNotBeNil)
				So(d.Size(), ShouldEqual, 0)
			})
		})

		Convey("When creating a deduper with a size hint", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithSizeHint(100))

			Convey("Then it should be empty", func() {
				So(d.Size(), ShouldEqual, 0)
			})
		})

		Convey("When claiming units", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("And the unit is new", func() {
				seen := d.SeenAndRecord(ctx, "sub-01", "/raw/pp01")

				Convey("Then it should return false and record the owner", func() {
					So(seen, ShouldBeFalse)
					So(d.Size(), ShouldEqual, 1)
					owner, ok := d.Owner(ctx, "sub-01")
					So(ok, ShouldBeTrue)
					So(owner, ShouldEqual, "/raw/pp01")
				})
			})

			Convey("And another directory normalises to the same unit", func() {
				d.SeenAndRecord(ctx, "sub-01", "/raw/pp01")
				seen := d.SeenAndRecord(ctx, "sub-01", "/raw/pp_01")

				Convey("Then it should return true and keep the first owner", func() {
					So(seen, ShouldBeTrue)
					So(d.Size(), ShouldEqual, 1)
					owner, _ := d.Owner(ctx, "sub-01")
					So(owner, ShouldEqual, "/raw/pp01")
				})
			})
		})

		Convey("When many goroutines claim overlapping units", func() {
			d := dedupe.NewInMemoryDeduper()
			var fresh atomic.Int64
			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					if !d.SeenAndRecord(ctx, fmt.Sprintf("sub-%02d", i%10), fmt.Sprint(i)) {
						fresh.Add(1)
					}
				}(i)
			}
			wg.Wait()

			Convey("Then every unit is claimed exactly once", func() {
				So(fresh.Load(), ShouldEqual, 10)
				So(d.Size(), ShouldEqual, 10)
			})
		})
	})
}
