package service

import (
	"context"

	"github.com/okian/rostersync/internal/domain/engine"
	"github.com/okian/rostersync/internal/domain/model"
)

// Every mutation applies locally first, then writes to the remote source,
// then reconciles on failure. The returned error is also kept in Err.

func (s *Service) AddMember(ctx context.Context, m model.Member) (model.Member, error) {
	return s.members.Create(ctx, m)
}

func (s *Service) UpdateMember(ctx context.Context, id string, p model.MemberPatch) (model.Member, error) {
	return s.members.Update(ctx, id, p)
}

func (s *Service) DeleteMember(ctx context.Context, id string) error {
	return s.members.Delete(ctx, id)
}

func (s *Service) BulkUpdateMembers(ctx context.Context, edits []engine.Edit[model.MemberPatch]) error {
	return s.members.BulkUpdate(ctx, edits)
}

func (s *Service) AddRaid(ctx context.Context, r model.Raid) (model.Raid, error) {
	return s.raids.Create(ctx, r)
}

func (s *Service) UpdateRaid(ctx context.Context, id string, p model.RaidPatch) (model.Raid, error) {
	return s.raids.Update(ctx, id, p)
}

func (s *Service) DeleteRaid(ctx context.Context, id string) error {
	return s.raids.Delete(ctx, id)
}

func (s *Service) BulkUpdateRaids(ctx context.Context, edits []engine.Edit[model.RaidPatch]) error {
	return s.raids.BulkUpdate(ctx, edits)
}

func (s *Service) AddAward(ctx context.Context, a model.Award) (model.Award, error) {
	return s.awards.Create(ctx, a)
}

func (s *Service) UpdateAward(ctx context.Context, id string, p model.AwardPatch) (model.Award, error) {
	return s.awards.Update(ctx, id, p)
}

func (s *Service) DeleteAward(ctx context.Context, id string) error {
	return s.awards.Delete(ctx, id)
}

func (s *Service) BulkUpdateAwards(ctx context.Context, edits []engine.Edit[model.AwardPatch]) error {
	return s.awards.BulkUpdate(ctx, edits)
}

func (s *Service) AddScheduled(ctx context.Context, sr model.Scheduled) (model.Scheduled, error) {
	return s.scheduled.Create(ctx, sr)
}

func (s *Service) UpdateScheduled(ctx context.Context, id string, p model.ScheduledPatch) (model.Scheduled, error) {
	return s.scheduled.Update(ctx, id, p)
}

func (s *Service) DeleteScheduled(ctx context.Context, id string) error {
	return s.scheduled.Delete(ctx, id)
}

func (s *Service) BulkUpdateScheduled(ctx context.Context, edits []engine.Edit[model.ScheduledPatch]) error {
	return s.scheduled.BulkUpdate(ctx, edits)
}
