package service_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/rostersync/internal/adapters/remote"
	"github.com/okian/rostersync/internal/adapters/remote/remotetest"
	service "github.com/okian/rostersync/internal/app"
	"github.com/okian/rostersync/internal/domain/engine"
	"github.com/okian/rostersync/internal/domain/model"
	"github.com/okian/rostersync/internal/domain/types"
)

// eventually polls cond until it holds or two seconds pass.
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

func seeded() *remotetest.Source {
	return remotetest.New().
		Seed(types.Members,
			types.Row{"id": "1", "name": "Arthas", "dkp": 100.0},
			types.Row{"id": "2", "name": "Jaina", "dkp": 250.0},
		).
		Seed(types.Raids, types.Row{"id": "r1", "name": "Naxxramas", "completed_at": "2025-05-01T20:00:00Z"})
}

func TestService_New(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New(remotetest.New(),
			service.WithQueueSize(64),
			service.WithRollbackPolicy(engine.RollbackLegacy),
		)

		Convey("Then it is not started and serves an empty replica", func() {
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, false)
			So(stats["queueSize"], ShouldEqual, 64)
			So(stats["rollback"], ShouldEqual, "legacy")
			So(svc.Members(context.Background()), ShouldBeEmpty)
			So(svc.Loading(), ShouldBeFalse)
			So(svc.Err(), ShouldBeNil)
		})

		Convey("Then collections resolve by wire name", func() {
			h, err := svc.Collection(types.Awards)
			So(err, ShouldBeNil)
			So(h.Collection(), ShouldEqual, types.Awards)

			_, err = svc.Collection("guilds")
			So(errors.Is(err, engine.ErrUnknownCollection), ShouldBeTrue)
		})

		Convey("Then Reload needs a running service", func() {
			So(errors.Is(svc.Reload(context.Background()), service.ErrNotStarted), ShouldBeTrue)
		})
	})
}

func TestService_Start(t *testing.T) {
	Convey("Given a service over a seeded source", t, func() {
		src := seeded()
		svc := service.New(src)
		defer svc.Stop()
		ctx := context.Background()

		Convey("When starting the service", func() {
			So(svc.Start(ctx), ShouldBeNil)

			Convey("Then every collection is loaded in its order", func() {
				members := svc.Members(ctx)
				So(len(members), ShouldEqual, 2)
				So(members[0].Name, ShouldEqual, "Jaina")
				So(len(svc.Raids(ctx)), ShouldEqual, 1)
				So(svc.Err(), ShouldBeNil)
				So(svc.GetStats()["started"], ShouldEqual, true)
			})

			Convey("Then starting again is a no-op", func() {
				So(svc.Start(ctx), ShouldBeNil)
				So(len(src.CallsOf(remotetest.OpSelect)), ShouldEqual, 4)
			})

			Convey("Then remote changes reach the replica", func() {
				So(src.Insert(ctx, types.Awards, types.Row{"id": "l1", "member_id": "2", "item_name": "Ashbringer"}), ShouldBeNil)
				So(eventually(func() bool { return len(svc.Awards(ctx)) == 1 }), ShouldBeTrue)
				So(svc.Awards(ctx)[0].ItemName, ShouldEqual, "Ashbringer")

				So(src.Delete(ctx, types.Members, "1"), ShouldBeNil)
				So(eventually(func() bool { return len(svc.Members(ctx)) == 1 }), ShouldBeTrue)
			})
		})
	})

	Convey("Given a source whose subscription is closed", t, func() {
		src := remotetest.New()
		src.Close()
		svc := service.New(src)

		Convey("Then Start reports the subscription failure", func() {
			err := svc.Start(context.Background())
			So(errors.Is(err, service.ErrSubscribe), ShouldBeTrue)
			So(errors.Is(err, remote.ErrClosed), ShouldBeTrue)
			So(svc.GetStats()["started"], ShouldEqual, false)
		})
	})

	Convey("Given a cancelled context", t, func() {
		svc := service.New(seeded())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		Convey("Then Start fails without installing anything", func() {
			So(svc.Start(ctx), ShouldNotBeNil)
			So(svc.Members(context.Background()), ShouldBeEmpty)
			So(svc.GetStats()["started"], ShouldEqual, false)
		})
	})
}

func TestService_LoadFailure(t *testing.T) {
	Convey("Given a source whose raid fetch fails", t, func() {
		var failing atomic.Bool
		failing.Store(true)
		src := seeded().Intercept(func(_ context.Context, c remotetest.Call) error {
			if failing.Load() && c.Op == remotetest.OpSelect && c.Collection == types.Raids {
				return remotetest.ErrInjected
			}
			return nil
		})
		svc := service.New(src)
		defer svc.Stop()
		ctx := context.Background()

		Convey("When starting the service", func() {
			So(svc.Start(ctx), ShouldBeNil)

			Convey("Then the replica stays empty and the error is kept", func() {
				So(svc.Members(ctx), ShouldBeEmpty)
				So(errors.Is(svc.Err(), engine.ErrBootstrap), ShouldBeTrue)
				So(svc.Loading(), ShouldBeFalse)
				So(svc.GetStats()["error"], ShouldNotBeEmpty)
			})

			Convey("Then a reload after recovery installs everything", func() {
				failing.Store(false)
				So(svc.Reload(ctx), ShouldBeNil)
				So(len(svc.Members(ctx)), ShouldEqual, 2)
				So(svc.Err(), ShouldBeNil)
			})
		})
	})
}

func TestService_ReloadKeepsLiveChanges(t *testing.T) {
	Convey("Given a started service", t, func() {
		var (
			reloading atomic.Bool
			svc       *service.Service
		)
		src := seeded()
		src.Intercept(func(_ context.Context, c remotetest.Call) error {
			if c.Op != remotetest.OpSelect || c.Collection != types.Members || !reloading.CompareAndSwap(true, false) {
				return nil
			}
			before := svc.GetStats()["processed"].(int64)
			src.Emit(types.Change{
				Collection: types.Members, Kind: types.Update,
				New: types.Row{"id": "1", "name": "Arthas", "dkp": 999.0},
			})
			eventually(func() bool { return svc.GetStats()["processed"].(int64) > before })
			return nil
		})
		svc = service.New(src)
		defer svc.Stop()
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)

		Convey("When a change is integrated while the reload is fetching", func() {
			reloading.Store(true)
			So(svc.Reload(ctx), ShouldBeNil)

			Convey("Then the reloaded snapshot does not overwrite it", func() {
				So(reloading.Load(), ShouldBeFalse)
				var dkp float64
				for _, m := range svc.Members(ctx) {
					if m.ID == "1" {
						dkp = m.DKP
					}
				}
				So(dkp, ShouldEqual, 999)
			})
		})
	})
}

func TestService_Mutations(t *testing.T) {
	Convey("Given a started service", t, func() {
		src := seeded()
		svc := service.New(src, service.WithIDGenerator(func() string { return "generated" }))
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When adding a member without an id", func() {
			m, err := svc.AddMember(ctx, model.Member{Name: "Thrall", DKP: 10})

			Convey("Then it is assigned one and written once", func() {
				So(err, ShouldBeNil)
				So(m.ID, ShouldEqual, "generated")
				So(len(src.Rows(types.Members)), ShouldEqual, 3)
			})

			Convey("Then its own echo does not duplicate it", func() {
				time.Sleep(50 * time.Millisecond)
				So(len(svc.Members(ctx)), ShouldEqual, 3)
			})
		})

		Convey("When an update fails remotely", func() {
			src.FailID(remotetest.OpUpdate, types.Members, "1", remotetest.ErrInjected)
			_, err := svc.UpdateMember(ctx, "1", model.MemberPatch{DKP: model.Ptr(150.0)})

			Convey("Then the pre-image is restored and the error kept", func() {
				So(errors.Is(err, engine.ErrWrite), ShouldBeTrue)
				So(errors.Is(svc.Err(), engine.ErrWrite), ShouldBeTrue)
				for _, m := range svc.Members(ctx) {
					if m.ID == "1" {
						So(m.DKP, ShouldEqual, 100.0)
					}
				}
			})

			Convey("Then the next success clears the error", func() {
				_, err := svc.UpdateMember(ctx, "2", model.MemberPatch{Note: model.Ptr("officer")})
				So(err, ShouldBeNil)
				So(svc.Err(), ShouldBeNil)
			})
		})

		Convey("When bulk updating raids and scheduling", func() {
			_, err := svc.AddScheduled(ctx, model.Scheduled{ID: "s1", Name: "Karazhan"})
			So(err, ShouldBeNil)
			err = svc.BulkUpdateRaids(ctx, []engine.Edit[model.RaidPatch]{
				{ID: "r1", Patch: model.RaidPatch{DKPAwarded: model.Ptr(30.0)}},
			})

			Convey("Then both land locally and remotely", func() {
				So(err, ShouldBeNil)
				So(svc.Raids(ctx)[0].DKPAwarded, ShouldEqual, 30.0)
				So(len(svc.Scheduled(ctx)), ShouldEqual, 1)
				So(src.Rows(types.Raids)[0]["dkp_awarded"], ShouldEqual, 30.0)
			})
		})

		Convey("When deleting an award that fails remotely", func() {
			_, err := svc.AddAward(ctx, model.Award{ID: "l1", MemberID: "1", ItemName: "Frostmourne"})
			So(err, ShouldBeNil)
			src.FailOn(remotetest.OpDelete, types.Awards, remotetest.ErrInjected)

			Convey("Then the award is put back", func() {
				So(svc.DeleteAward(ctx, "l1"), ShouldNotBeNil)
				So(len(svc.Awards(ctx)), ShouldEqual, 1)
				So(svc.Awards(ctx)[0].ItemName, ShouldEqual, "Frostmourne")
			})
		})
	})
}

func TestService_Stop(t *testing.T) {
	Convey("Given a started service", t, func() {
		src := seeded()
		svc := service.New(src)
		So(svc.Start(context.Background()), ShouldBeNil)

		Convey("When stopping the service", func() {
			svc.Stop()

			Convey("Then it is marked as stopped and releases its subscription", func() {
				So(svc.GetStats()["started"], ShouldEqual, false)
				So(eventually(func() bool { return src.Subscribers() == 0 }), ShouldBeTrue)
			})

			Convey("Then stopping again is safe", func() {
				svc.Stop()
				So(svc.GetStats()["started"], ShouldEqual, false)
			})

			Convey("Then it can be started again", func() {
				So(svc.Start(context.Background()), ShouldBeNil)
				defer svc.Stop()
				So(len(svc.Members(context.Background())), ShouldEqual, 2)
			})
		})
	})
}
