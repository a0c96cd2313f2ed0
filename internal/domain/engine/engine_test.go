package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/rostersync/internal/adapters/remote/remotetest"
	"github.com/okian/rostersync/internal/adapters/repository"
	"github.com/okian/rostersync/internal/domain/codec"
	"github.com/okian/rostersync/internal/domain/engine"
	"github.com/okian/rostersync/internal/domain/inflight"
	"github.com/okian/rostersync/internal/domain/model"
	"github.com/okian/rostersync/internal/domain/types"
)

type fixture struct {
	ec         *engine.Context
	src        *remotetest.Source
	replica    *repository.Replica
	members    *engine.Mutator[model.Member, model.MemberPatch]
	raids      *engine.Mutator[model.Raid, model.RaidPatch]
	integrator *engine.Integrator
	boot       *engine.Bootstrap
}

func newFixture(policy engine.RollbackPolicy, mode inflight.Mode) *fixture {
	f := &fixture{
		src:     remotetest.New().Quiet(),
		replica: repository.NewReplica(),
		ec: engine.NewContext(engine.Context{
			Tracker: inflight.NewTracker(inflight.WithMode(mode)),
			Policy:  policy,
		}),
	}
	mb := engine.NewBinding[model.Member, model.MemberPatch](codec.NewMembers(), f.replica.Members)
	rb := engine.NewBinding[model.Raid, model.RaidPatch](codec.NewRaids(), f.replica.Raids)
	ab := engine.NewBinding[model.Award, model.AwardPatch](codec.NewAwards(), f.replica.Awards)
	sb := engine.NewBinding[model.Scheduled, model.ScheduledPatch](codec.NewScheduled(), f.replica.Scheduled)

	f.members = engine.NewMutator(f.ec, mb, f.src)
	f.raids = engine.NewMutator(f.ec, rb, f.src)
	f.integrator = engine.NewIntegrator(f.ec, mb, rb, ab, sb)
	f.boot = engine.NewBootstrap(f.ec, f.src, mb, rb, ab, sb)
	return f
}

func (f *fixture) seedMembers(ctx context.Context, members ...model.Member) {
	f.replica.Members.ReplaceAll(ctx, members)
	c := codec.NewMembers()
	for _, m := range members {
		f.src.Seed(types.Members, c.ToWire(m))
	}
}

func memberIDs(ms []model.Member) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}

func TestIntegrator(t *testing.T) {
	Convey("Given a replica holding two members", t, func() {
		ctx := context.Background()
		f := newFixture(engine.RollbackSymmetric, inflight.Keyed)
		f.seedMembers(ctx, model.Member{ID: "1", DKP: 150}, model.Member{ID: "2", DKP: 100})

		Convey("When an insert event arrives for a new id", func() {
			out := f.integrator.OnChange(ctx, types.Change{
				Collection: types.Members, Kind: types.Insert,
				New: types.Row{"id": "3", "dkp": 120.0, "name": "Jaina"},
			})

			Convey("Then it is placed by rank", func() {
				So(out, ShouldEqual, engine.OutcomeApplied)
				ids := []string{}
				for _, r := range f.members.Rows().List(ctx) {
					ids = append(ids, r.ID())
				}
				So(ids, ShouldResemble, []string{"1", "3", "2"})
			})
		})

		Convey("When an insert event repeats an existing id", func() {
			out := f.integrator.OnChange(ctx, types.Change{
				Collection: types.Members, Kind: types.Insert,
				New: types.Row{"id": "1", "dkp": 999.0},
			})

			Convey("Then it is a no-op", func() {
				So(out, ShouldEqual, engine.OutcomeIgnored)
				m, _ := f.replica.Members.Get(ctx, "1")
				So(m.DKP, ShouldEqual, 150)
				So(f.replica.Members.Len(), ShouldEqual, 2)
			})
		})

		Convey("When an update event arrives", func() {
			out := f.integrator.OnChange(ctx, types.Change{
				Collection: types.Members, Kind: types.Update,
				New: types.Row{"id": "2", "dkp": 500.0}, Old: types.Row{"id": "2"},
			})

			Convey("Then the record is replaced in place", func() {
				So(out, ShouldEqual, engine.OutcomeApplied)
				m, _ := f.replica.Members.Get(ctx, "2")
				So(m.DKP, ShouldEqual, 500)
				So(f.replica.Members.Index(ctx, "2"), ShouldEqual, 1)
			})
		})

		Convey("When update and delete events target a missing id", func() {
			upd := f.integrator.OnChange(ctx, types.Change{
				Collection: types.Members, Kind: types.Update, New: types.Row{"id": "zz"},
			})
			del := f.integrator.OnChange(ctx, types.Change{
				Collection: types.Members, Kind: types.Delete, Old: types.Row{"id": "zz"},
			})

			Convey("Then both are silent no-ops", func() {
				So(upd, ShouldEqual, engine.OutcomeIgnored)
				So(del, ShouldEqual, engine.OutcomeIgnored)
				So(f.replica.Members.Len(), ShouldEqual, 2)
			})
		})

		Convey("When a delete event carries the old record", func() {
			out := f.integrator.OnChange(ctx, types.Change{
				Collection: types.Members, Kind: types.Delete, Old: types.Row{"id": "1"},
			})

			Convey("Then the record is removed", func() {
				So(out, ShouldEqual, engine.OutcomeApplied)
				_, ok := f.replica.Members.Get(ctx, "1")
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When an event names an unknown collection", func() {
			out := f.integrator.OnChange(ctx, types.Change{
				Collection: "guild_bank", Kind: types.Insert, New: types.Row{"id": "g"},
			})

			Convey("Then it is ignored", func() {
				So(out, ShouldEqual, engine.OutcomeUnknown)
			})
		})

		Convey("When events arrive while a write to member 1 is in flight", func() {
			var own, other engine.Outcome
			f.src.Intercept(func(ctx context.Context, c remotetest.Call) error {
				if c.Op == remotetest.OpUpdate {
					own = f.integrator.OnChange(ctx, types.Change{
						Collection: types.Members, Kind: types.Update,
						New: types.Row{"id": "1", "dkp": 1.0},
					})
					other = f.integrator.OnChange(ctx, types.Change{
						Collection: types.Members, Kind: types.Update,
						New: types.Row{"id": "2", "dkp": 7.0},
					})
				}
				return nil
			})
			_, err := f.members.Update(ctx, "1", model.MemberPatch{DKP: model.Ptr(175.0)})

			Convey("Then only the echo of that write is dropped", func() {
				So(err, ShouldBeNil)
				So(own, ShouldEqual, engine.OutcomeSuppressed)
				So(other, ShouldEqual, engine.OutcomeApplied)
				m1, _ := f.replica.Members.Get(ctx, "1")
				m2, _ := f.replica.Members.Get(ctx, "2")
				So(m1.DKP, ShouldEqual, 175)
				So(m2.DKP, ShouldEqual, 7)
				So(f.ec.Tracker.Size(), ShouldEqual, 0)
			})
		})
	})

	Convey("Given a replica in global suppression mode", t, func() {
		ctx := context.Background()
		f := newFixture(engine.RollbackSymmetric, inflight.Global)
		f.seedMembers(ctx, model.Member{ID: "1", DKP: 150})

		Convey("When any event arrives during any in-flight write", func() {
			var outs []engine.Outcome
			f.src.Intercept(func(ctx context.Context, c remotetest.Call) error {
				if c.Op != remotetest.OpDelete {
					return nil
				}
				for _, ch := range []types.Change{
					{Collection: types.Raids, Kind: types.Insert, New: types.Row{"id": "r"}},
					{Collection: types.Members, Kind: types.Update, New: types.Row{"id": "x"}},
					{Collection: types.Awards, Kind: types.Delete, Old: types.Row{"id": "a"}},
				} {
					outs = append(outs, f.integrator.OnChange(ctx, ch))
				}
				return nil
			})
			So(f.members.Delete(ctx, "1"), ShouldBeNil)

			Convey("Then every event is dropped regardless of kind or id", func() {
				So(outs, ShouldResemble, []engine.Outcome{
					engine.OutcomeSuppressed, engine.OutcomeSuppressed, engine.OutcomeSuppressed,
				})
				So(f.replica.Raids.Len(), ShouldEqual, 0)
			})
		})
	})
}

func TestMutations(t *testing.T) {
	Convey("Given a roster with three members", t, func() {
		ctx := context.Background()
		f := newFixture(engine.RollbackSymmetric, inflight.Keyed)
		f.seedMembers(ctx,
			model.Member{ID: "1", Name: "Thrall", DKP: 150, Alts: []string{}},
			model.Member{ID: "2", Name: "Jaina", DKP: 100, Alts: []string{}},
			model.Member{ID: "3", Name: "Rexxar", DKP: 50, Alts: []string{}},
		)

		Convey("When a create succeeds", func() {
			rec, err := f.members.Create(ctx, model.Member{Name: "Sylvanas", DKP: 120})

			Convey("Then the record gets an id and the remote sees it", func() {
				So(err, ShouldBeNil)
				So(rec.ID, ShouldNotBeEmpty)
				So(f.replica.Members.Index(ctx, rec.ID), ShouldEqual, 1)
				So(f.src.CallsOf(remotetest.OpInsert), ShouldHaveLength, 1)
				So(f.src.CallsOf(remotetest.OpInsert)[0].Row["id"], ShouldEqual, rec.ID)
				So(f.ec.State.Err(), ShouldBeNil)
			})
		})

		Convey("When a create fails remotely", func() {
			f.src.FailOn(remotetest.OpInsert, types.Members, remotetest.ErrInjected)
			_, err := f.members.Create(ctx, model.Member{ID: "x", Name: "Illidan", DKP: 10})

			Convey("Then the record is gone and the error slot is set", func() {
				So(errors.Is(err, engine.ErrWrite), ShouldBeTrue)
				So(errors.Is(err, remotetest.ErrInjected), ShouldBeTrue)
				_, ok := f.replica.Members.Get(ctx, "x")
				So(ok, ShouldBeFalse)
				So(f.ec.State.Message(), ShouldContainSubstring, "injected remote failure")
				So(f.ec.Tracker.Size(), ShouldEqual, 0)
			})
		})

		Convey("When a delete fails remotely", func() {
			before, _ := f.replica.Members.Get(ctx, "2")
			f.src.FailOn(remotetest.OpDelete, "", remotetest.ErrInjected)
			err := f.members.Delete(ctx, "2")

			Convey("Then the record is restored with identical fields", func() {
				So(err, ShouldNotBeNil)
				after, ok := f.replica.Members.Get(ctx, "2")
				So(ok, ShouldBeTrue)
				So(after, ShouldResemble, before)
				So(memberIDs(f.replica.Members.List(ctx)), ShouldResemble, []string{"1", "2", "3"})
				So(f.ec.State.Err(), ShouldNotBeNil)
			})
		})

		Convey("When an update succeeds", func() {
			rec, err := f.members.Update(ctx, "2", model.MemberPatch{DKP: model.Ptr(300.0)})

			Convey("Then the merge is local and only present fields are sent", func() {
				So(err, ShouldBeNil)
				So(rec.DKP, ShouldEqual, 300)
				So(rec.Name, ShouldEqual, "Jaina")
				So(f.src.CallsOf(remotetest.OpUpdate)[0].Row, ShouldResemble, types.Row{"dkp": 300.0})
				So(f.replica.Members.Index(ctx, "2"), ShouldEqual, 1)
			})
		})

		Convey("When an update targets an id the replica does not hold", func() {
			rec, err := f.members.Update(ctx, "zz", model.MemberPatch{Note: model.Ptr("late")})

			Convey("Then the local apply is a no-op and the write is still issued", func() {
				So(err, ShouldNotBeNil)
				So(rec.ID, ShouldBeEmpty)
				So(f.replica.Members.Len(), ShouldEqual, 3)
				So(f.src.CallsOf(remotetest.OpUpdate), ShouldHaveLength, 1)
			})
		})

		Convey("When a failed operation is followed by a successful one", func() {
			f.src.FailID(remotetest.OpDelete, types.Members, "3", remotetest.ErrInjected)
			So(f.members.Delete(ctx, "3"), ShouldNotBeNil)
			So(f.ec.State.Err(), ShouldNotBeNil)

			_, err := f.members.Update(ctx, "1", model.MemberPatch{Note: model.Ptr("gm")})

			Convey("Then the success clears the error slot", func() {
				So(err, ShouldBeNil)
				So(f.ec.State.Err(), ShouldBeNil)
				So(f.ec.State.Message(), ShouldEqual, "")
			})
		})

		Convey("When a bulk update has one failing write out of three", func() {
			f.src.FailID(remotetest.OpUpdate, types.Members, "2", errors.New("member 2 is locked"))
			err := f.members.BulkUpdate(ctx, []engine.Edit[model.MemberPatch]{
				{ID: "1", Patch: model.MemberPatch{DKP: model.Ptr(11.0)}},
				{ID: "2", Patch: model.MemberPatch{DKP: model.Ptr(22.0)}},
				{ID: "3", Patch: model.MemberPatch{DKP: model.Ptr(33.0)}},
			})

			Convey("Then every optimistic value stands and exactly one message is reported", func() {
				So(errors.Is(err, engine.ErrBulkPartial), ShouldBeTrue)
				for id, dkp := range map[string]float64{"1": 11, "2": 22, "3": 33} {
					m, _ := f.replica.Members.Get(ctx, id)
					So(m.DKP, ShouldEqual, dkp)
				}
				msg := f.ec.State.Message()
				So(msg, ShouldContainSubstring, "member 2 is locked")
				So(strings.Count(msg, ";"), ShouldEqual, 0)
				So(f.src.CallsOf(remotetest.OpUpdate), ShouldHaveLength, 3)
				So(f.ec.Tracker.Size(), ShouldEqual, 0)
			})
		})

		Convey("When a bulk update has two failing writes", func() {
			f.src.FailID(remotetest.OpUpdate, types.Members, "1", errors.New("first"))
			f.src.FailID(remotetest.OpUpdate, types.Members, "3", errors.New("third"))
			err := f.members.BulkUpdate(ctx, []engine.Edit[model.MemberPatch]{
				{ID: "1", Patch: model.MemberPatch{Note: model.Ptr("a")}},
				{ID: "2", Patch: model.MemberPatch{Note: model.Ptr("b")}},
				{ID: "3", Patch: model.MemberPatch{Note: model.Ptr("c")}},
			})

			Convey("Then the messages are joined in edit order", func() {
				So(err.Error(), ShouldEndWith, "first; third")
			})
		})
	})
}

func TestUpdateRollbackPolicies(t *testing.T) {
	Convey("Given the roster holds {id:1, dkp:100} and the remote update will fail", t, func() {
		ctx := context.Background()

		Convey("When the legacy policy is in force", func() {
			f := newFixture(engine.RollbackLegacy, inflight.Keyed)
			f.seedMembers(ctx, model.Member{ID: "1", DKP: 100})
			f.src.FailOn(remotetest.OpUpdate, "", errors.New("permission denied"))

			_, err := f.members.Update(ctx, "1", model.MemberPatch{DKP: model.Ptr(150.0)})

			Convey("Then the optimistic value stands and the error slot holds the failure", func() {
				So(err, ShouldNotBeNil)
				m, _ := f.replica.Members.Get(ctx, "1")
				So(m.DKP, ShouldEqual, 150)
				So(f.ec.State.Message(), ShouldContainSubstring, "permission denied")
			})
		})

		Convey("When the symmetric policy is in force", func() {
			f := newFixture(engine.RollbackSymmetric, inflight.Keyed)
			f.seedMembers(ctx, model.Member{ID: "1", DKP: 100})
			f.src.FailOn(remotetest.OpUpdate, "", errors.New("permission denied"))

			rec, err := f.members.Update(ctx, "1", model.MemberPatch{DKP: model.Ptr(150.0)})

			Convey("Then the pre-image is restored", func() {
				So(err, ShouldNotBeNil)
				So(rec.DKP, ShouldEqual, 100)
				m, _ := f.replica.Members.Get(ctx, "1")
				So(m.DKP, ShouldEqual, 100)
				So(f.ec.State.Message(), ShouldContainSubstring, "permission denied")
			})
		})
	})
}

func TestRowHandle(t *testing.T) {
	Convey("Given the wire-form handle of the raid history", t, func() {
		ctx := context.Background()
		f := newFixture(engine.RollbackSymmetric, inflight.Keyed)
		h := f.raids.Rows()

		Convey("When creating and patching through wire rows", func() {
			created, err := h.Create(ctx, types.Row{"name": "Molten Core", "completed_at": "2025-01-05T22:00:00Z"})
			So(err, ShouldBeNil)
			id := created.ID()
			updated, err := h.Update(ctx, id, types.Row{"dkp_awarded": 25.0})

			Convey("Then the replica and remote agree", func() {
				So(err, ShouldBeNil)
				So(h.Collection(), ShouldEqual, types.Raids)
				So(updated["dkp_awarded"], ShouldEqual, 25.0)
				So(updated["name"], ShouldEqual, "Molten Core")
				got, ok := h.Get(ctx, id)
				So(ok, ShouldBeTrue)
				So(got["completed_at"], ShouldEqual, "2025-01-05T22:00:00Z")
				So(f.src.Rows(types.Raids)[0]["dkp_awarded"], ShouldEqual, 25.0)
				So(h.List(ctx), ShouldHaveLength, 1)
			})

			Convey("And bulk updating and deleting it", func() {
				So(h.BulkUpdate(ctx, []types.Edit{{ID: id, Patch: types.Row{"note": "full clear"}}}), ShouldBeNil)
				row, _ := h.Get(ctx, id)
				So(row["note"], ShouldEqual, "full clear")

				So(h.Delete(ctx, id), ShouldBeNil)
				_, ok := h.Get(ctx, id)
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When patching an id that is not held", func() {
			f.src.Seed(types.Raids, types.Row{"id": "remote-only"})
			row, err := h.Update(ctx, "remote-only", types.Row{"note": "x"})

			Convey("Then no row is returned but the write goes through", func() {
				So(err, ShouldBeNil)
				So(row, ShouldBeNil)
				So(f.src.Rows(types.Raids)[0]["note"], ShouldEqual, "x")
			})
		})
	})
}

func TestMutatorIDGenerator(t *testing.T) {
	Convey("Given a mutator with a fixed id generator", t, func() {
		ctx := context.Background()
		replica := repository.NewReplica()
		ec := engine.NewContext(engine.Context{})
		m := engine.NewMutator(ec, engine.NewBinding[model.Award, model.AwardPatch](codec.NewAwards(), replica.Awards), remotetest.New(),
			engine.WithIDGenerator(func() string { return "award-1" }))

		rec, err := m.Create(ctx, model.Award{ItemName: "Thunderfury"})

		Convey("Then creates without an id use it", func() {
			So(err, ShouldBeNil)
			So(rec.ID, ShouldEqual, "award-1")
			So(replica.Awards.Len(), ShouldEqual, 1)
		})
	})
}
