package inflight_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/rostersync/internal/domain/inflight"
	. "github.com/smartystreets/goconvey/convey"
)

func TestKeyedTracker(t *testing.T) {
	Convey("Given a keyed tracker", t, func() {
		ctx := context.Background()
		tr := inflight.NewTracker()

		Convey("When nothing is in flight", func() {
			Convey("Then no event is suppressed", func() {
				So(tr.Size(), ShouldEqual, 0)
				So(tr.Suppressed(ctx, "members", "1"), ShouldBeFalse)
			})
		})

		Convey("When a write to members/1 is in flight", func() {
			tok := tr.Begin(ctx, "members", "1")

			Convey("Then only that record's events are suppressed", func() {
				So(tr.Size(), ShouldEqual, 1)
				So(tr.Suppressed(ctx, "members", "1"), ShouldBeTrue)
				So(tr.Suppressed(ctx, "members", "2"), ShouldBeFalse)
				So(tr.Suppressed(ctx, "raid_history", "1"), ShouldBeFalse)
			})

			Convey("And the write ends twice", func() {
				tr.End(ctx, tok)
				tr.End(ctx, tok)

				Convey("Then the second release is ignored", func() {
					So(tr.Size(), ShouldEqual, 0)
					So(tr.Suppressed(ctx, "members", "1"), ShouldBeFalse)
				})
			})
		})

		Convey("When two writes overlap on the same record", func() {
			a := tr.Begin(ctx, "members", "1")
			b := tr.Begin(ctx, "members", "1")
			tr.End(ctx, a)

			Convey("Then the record stays suppressed until both end", func() {
				So(tr.Suppressed(ctx, "members", "1"), ShouldBeTrue)
				tr.End(ctx, a)
				So(tr.Suppressed(ctx, "members", "1"), ShouldBeTrue)
				tr.End(ctx, b)
				So(tr.Suppressed(ctx, "members", "1"), ShouldBeFalse)
			})
		})

		Convey("When the zero token is released", func() {
			tr.Begin(ctx, "members", "1")
			tr.End(ctx, inflight.Token{})

			Convey("Then nothing changes", func() {
				So(tr.Size(), ShouldEqual, 1)
			})
		})

		Convey("When many goroutines begin and end writes", func() {
			var wg sync.WaitGroup
			for i := 0; i < 64; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					tok := tr.Begin(ctx, "loot_history", fmt.Sprintf("a-%d", i%8))
					tr.End(ctx, tok)
				}(i)
			}
			wg.Wait()

			Convey("Then every token is released", func() {
				So(tr.Size(), ShouldEqual, 0)
				for i := 0; i < 8; i++ {
					So(tr.Suppressed(ctx, "loot_history", fmt.Sprintf("a-%d", i)), ShouldBeFalse)
				}
			})
		})
	})
}

func TestGlobalTracker(t *testing.T) {
	Convey("Given a global tracker", t, func() {
		ctx := context.Background()
		tr := inflight.NewTracker(inflight.WithMode(inflight.Global))

		Convey("When any write is in flight", func() {
			tok := tr.Begin(ctx, "members", "1")

			Convey("Then every event is suppressed regardless of kind or id", func() {
				So(tr.Suppressed(ctx, "members", "99"), ShouldBeTrue)
				So(tr.Suppressed(ctx, "scheduled_raids", "x"), ShouldBeTrue)
			})

			Convey("And once it ends nothing is suppressed", func() {
				tr.End(ctx, tok)
				So(tr.Suppressed(ctx, "members", "99"), ShouldBeFalse)
			})
		})
	})
}
