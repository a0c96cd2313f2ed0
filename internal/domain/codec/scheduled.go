package codec

import (
	"github.com/okian/rostersync/internal/domain/model"
	"github.com/okian/rostersync/internal/domain/types"
)

const (
	fieldScheduledAt     = "scheduled_at"
	fieldDurationMinutes = "duration_minutes"
	fieldSignups         = "signups"
	fieldRecurring       = "recurring"
)

// ScheduledCodec transcodes the scheduled raids collection.
type ScheduledCodec struct{ base }

var _ Codec[model.Scheduled, model.ScheduledPatch] = ScheduledCodec{}

// NewScheduled returns the scheduled raids codec.
func NewScheduled(opts ...Option) ScheduledCodec {
	return ScheduledCodec{newBase(opts)}
}

func (ScheduledCodec) Collection() string { return types.Scheduled }

// DefaultOrder lists the soonest event first.
func (ScheduledCodec) DefaultOrder() types.Order {
	return types.Order{Column: fieldScheduledAt, Ascending: true}
}

func (c ScheduledCodec) ToLocal(row types.Row) model.Scheduled {
	return model.Scheduled{
		ID:              c.id(row, types.IDField),
		Name:            c.str(row, fieldName),
		Zone:            c.str(row, fieldZone),
		ScheduledAt:     c.ts(row, fieldScheduledAt),
		DurationMinutes: c.integer(row, fieldDurationMinutes),
		Signups:         c.strs(row, fieldSignups),
		Recurring:       c.boolean(row, fieldRecurring),
		Note:            c.str(row, fieldNote),
	}
}

func (ScheduledCodec) ToWire(s model.Scheduled) types.Row {
	return types.Row{
		types.IDField:        s.ID,
		fieldName:            s.Name,
		fieldZone:            s.Zone,
		fieldScheduledAt:     formatTime(s.ScheduledAt),
		fieldDurationMinutes: s.DurationMinutes,
		fieldSignups:         cloneStrings(s.Signups),
		fieldRecurring:       s.Recurring,
		fieldNote:            s.Note,
	}
}

func (c ScheduledCodec) PatchFromWire(row types.Row) model.ScheduledPatch {
	var p model.ScheduledPatch
	if has(row, fieldName) {
		p.Name = model.Ptr(c.str(row, fieldName))
	}
	if has(row, fieldZone) {
		p.Zone = model.Ptr(c.str(row, fieldZone))
	}
	if has(row, fieldScheduledAt) {
		p.ScheduledAt = model.Ptr(c.ts(row, fieldScheduledAt))
	}
	if has(row, fieldDurationMinutes) {
		p.DurationMinutes = model.Ptr(c.integer(row, fieldDurationMinutes))
	}
	if has(row, fieldSignups) {
		p.Signups = model.Ptr(c.strs(row, fieldSignups))
	}
	if has(row, fieldRecurring) {
		p.Recurring = model.Ptr(c.boolean(row, fieldRecurring))
	}
	if has(row, fieldNote) {
		p.Note = model.Ptr(c.str(row, fieldNote))
	}
	return p
}

func (ScheduledCodec) PatchToWire(p model.ScheduledPatch) types.Row {
	row := types.Row{}
	if p.Name != nil {
		row[fieldName] = *p.Name
	}
	if p.Zone != nil {
		row[fieldZone] = *p.Zone
	}
	if p.ScheduledAt != nil {
		row[fieldScheduledAt] = formatTime(*p.ScheduledAt)
	}
	if p.DurationMinutes != nil {
		row[fieldDurationMinutes] = *p.DurationMinutes
	}
	if p.Signups != nil {
		row[fieldSignups] = cloneStrings(*p.Signups)
	}
	if p.Recurring != nil {
		row[fieldRecurring] = *p.Recurring
	}
	if p.Note != nil {
		row[fieldNote] = *p.Note
	}
	return row
}

func (ScheduledCodec) Merge(s model.Scheduled, p model.ScheduledPatch) model.Scheduled {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.Zone != nil {
		s.Zone = *p.Zone
	}
	if p.ScheduledAt != nil {
		s.ScheduledAt = *p.ScheduledAt
	}
	if p.DurationMinutes != nil {
		s.DurationMinutes = *p.DurationMinutes
	}
	if p.Signups != nil {
		s.Signups = cloneStrings(*p.Signups)
	}
	if p.Recurring != nil {
		s.Recurring = *p.Recurring
	}
	if p.Note != nil {
		s.Note = *p.Note
	}
	return s
}

func (ScheduledCodec) Key(s model.Scheduled) string { return s.ID }

func (ScheduledCodec) WithKey(s model.Scheduled, id string) model.Scheduled {
	s.ID = id
	return s
}

func (ScheduledCodec) Less(a, b model.Scheduled) bool { return a.ScheduledAt.Before(b.ScheduledAt) }
