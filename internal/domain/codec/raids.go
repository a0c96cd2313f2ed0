package codec

import (
	"github.com/okian/rostersync/internal/domain/model"
	"github.com/okian/rostersync/internal/domain/types"
)

const (
	fieldZone        = "zone"
	fieldCompletedAt = "completed_at"
	fieldAttendees   = "attendees"
	fieldBosses      = "bosses"
	fieldDKPAwarded  = "dkp_awarded"
)

// RaidCodec transcodes the raid history collection.
type RaidCodec struct{ base }

var _ Codec[model.Raid, model.RaidPatch] = RaidCodec{}

// NewRaids returns the raid history codec.
func NewRaids(opts ...Option) RaidCodec {
	return RaidCodec{newBase(opts)}
}

func (RaidCodec) Collection() string { return types.Raids }

// DefaultOrder lists the most recently completed raid first.
func (RaidCodec) DefaultOrder() types.Order {
	return types.Order{Column: fieldCompletedAt, Ascending: false}
}

func (c RaidCodec) ToLocal(row types.Row) model.Raid {
	return model.Raid{
		ID:          c.id(row, types.IDField),
		Name:        c.str(row, fieldName),
		Zone:        c.str(row, fieldZone),
		CompletedAt: c.ts(row, fieldCompletedAt),
		Attendees:   c.strs(row, fieldAttendees),
		Bosses:      c.strs(row, fieldBosses),
		DKPAwarded:  c.num(row, fieldDKPAwarded),
		Note:        c.str(row, fieldNote),
	}
}

func (RaidCodec) ToWire(r model.Raid) types.Row {
	return types.Row{
		types.IDField:    r.ID,
		fieldName:        r.Name,
		fieldZone:        r.Zone,
		fieldCompletedAt: formatTime(r.CompletedAt),
		fieldAttendees:   cloneStrings(r.Attendees),
		fieldBosses:      cloneStrings(r.Bosses),
		fieldDKPAwarded:  r.DKPAwarded,
		fieldNote:        r.Note,
	}
}

func (c RaidCodec) PatchFromWire(row types.Row) model.RaidPatch {
	var p model.RaidPatch
	if has(row, fieldName) {
		p.Name = model.Ptr(c.str(row, fieldName))
	}
	if has(row, fieldZone) {
		p.Zone = model.Ptr(c.str(row, fieldZone))
	}
	if has(row, fieldCompletedAt) {
		p.CompletedAt = model.Ptr(c.ts(row, fieldCompletedAt))
	}
	if has(row, fieldAttendees) {
		p.Attendees = model.Ptr(c.strs(row, fieldAttendees))
	}
	if has(row, fieldBosses) {
		p.Bosses = model.Ptr(c.strs(row, fieldBosses))
	}
	if has(row, fieldDKPAwarded) {
		p.DKPAwarded = model.Ptr(c.num(row, fieldDKPAwarded))
	}
	if has(row, fieldNote) {
		p.Note = model.Ptr(c.str(row, fieldNote))
	}
	return p
}

func (RaidCodec) PatchToWire(p model.RaidPatch) types.Row {
	row := types.Row{}
	if p.Name != nil {
		row[fieldName] = *p.Name
	}
	if p.Zone != nil {
		row[fieldZone] = *p.Zone
	}
	if p.CompletedAt != nil {
		row[fieldCompletedAt] = formatTime(*p.CompletedAt)
	}
	if p.Attendees != nil {
		row[fieldAttendees] = cloneStrings(*p.Attendees)
	}
	if p.Bosses != nil {
		row[fieldBosses] = cloneStrings(*p.Bosses)
	}
	if p.DKPAwarded != nil {
		row[fieldDKPAwarded] = *p.DKPAwarded
	}
	if p.Note != nil {
		row[fieldNote] = *p.Note
	}
	return row
}

func (RaidCodec) Merge(r model.Raid, p model.RaidPatch) model.Raid {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Zone != nil {
		r.Zone = *p.Zone
	}
	if p.CompletedAt != nil {
		r.CompletedAt = *p.CompletedAt
	}
	if p.Attendees != nil {
		r.Attendees = cloneStrings(*p.Attendees)
	}
	if p.Bosses != nil {
		r.Bosses = cloneStrings(*p.Bosses)
	}
	if p.DKPAwarded != nil {
		r.DKPAwarded = *p.DKPAwarded
	}
	if p.Note != nil {
		r.Note = *p.Note
	}
	return r
}

func (RaidCodec) Key(r model.Raid) string { return r.ID }

func (RaidCodec) WithKey(r model.Raid, id string) model.Raid {
	r.ID = id
	return r
}

func (RaidCodec) Less(a, b model.Raid) bool { return a.CompletedAt.After(b.CompletedAt) }
