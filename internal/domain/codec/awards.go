package codec

import (
	"github.com/okian/rostersync/internal/domain/model"
	"github.com/okian/rostersync/internal/domain/types"
)

const (
	fieldMemberID  = "member_id"
	fieldItemName  = "item_name"
	fieldItemID    = "item_id"
	fieldCost      = "cost"
	fieldAwardedAt = "awarded_at"
	fieldRaidID    = "raid_id"
)

// AwardCodec transcodes the loot history collection.
type AwardCodec struct{ base }

var _ Codec[model.Award, model.AwardPatch] = AwardCodec{}

// NewAwards returns the loot history codec.
func NewAwards(opts ...Option) AwardCodec {
	return AwardCodec{newBase(opts)}
}

func (AwardCodec) Collection() string { return types.Awards }

func (AwardCodec) DefaultOrder() types.Order {
	return types.Order{Column: fieldAwardedAt, Ascending: false}
}

func (c AwardCodec) ToLocal(row types.Row) model.Award {
	return model.Award{
		ID:        c.id(row, types.IDField),
		MemberID:  c.id(row, fieldMemberID),
		ItemName:  c.str(row, fieldItemName),
		ItemID:    c.id(row, fieldItemID),
		Cost:      c.num(row, fieldCost),
		AwardedAt: c.ts(row, fieldAwardedAt),
		RaidID:    c.id(row, fieldRaidID),
		Note:      c.str(row, fieldNote),
	}
}

func (AwardCodec) ToWire(a model.Award) types.Row {
	return types.Row{
		types.IDField:  a.ID,
		fieldMemberID:  a.MemberID,
		fieldItemName:  a.ItemName,
		fieldItemID:    a.ItemID,
		fieldCost:      a.Cost,
		fieldAwardedAt: formatTime(a.AwardedAt),
		fieldRaidID:    a.RaidID,
		fieldNote:      a.Note,
	}
}

func (c AwardCodec) PatchFromWire(row types.Row) model.AwardPatch {
	var p model.AwardPatch
	if has(row, fieldMemberID) {
		p.MemberID = model.Ptr(c.id(row, fieldMemberID))
	}
	if has(row, fieldItemName) {
		p.ItemName = model.Ptr(c.str(row, fieldItemName))
	}
	if has(row, fieldItemID) {
		p.ItemID = model.Ptr(c.id(row, fieldItemID))
	}
	if has(row, fieldCost) {
		p.Cost = model.Ptr(c.num(row, fieldCost))
	}
	if has(row, fieldAwardedAt) {
		p.AwardedAt = model.Ptr(c.ts(row, fieldAwardedAt))
	}
	if has(row, fieldRaidID) {
		p.RaidID = model.Ptr(c.id(row, fieldRaidID))
	}
	if has(row, fieldNote) {
		p.Note = model.Ptr(c.str(row, fieldNote))
	}
	return p
}

func (AwardCodec) PatchToWire(p model.AwardPatch) types.Row {
	row := types.Row{}
	if p.MemberID != nil {
		row[fieldMemberID] = *p.MemberID
	}
	if p.ItemName != nil {
		row[fieldItemName] = *p.ItemName
	}
	if p.ItemID != nil {
		row[fieldItemID] = *p.ItemID
	}
	if p.Cost != nil {
		row[fieldCost] = *p.Cost
	}
	if p.AwardedAt != nil {
		row[fieldAwardedAt] = formatTime(*p.AwardedAt)
	}
	if p.RaidID != nil {
		row[fieldRaidID] = *p.RaidID
	}
	if p.Note != nil {
		row[fieldNote] = *p.Note
	}
	return row
}

func (AwardCodec) Merge(a model.Award, p model.AwardPatch) model.Award {
	if p.MemberID != nil {
		a.MemberID = *p.MemberID
	}
	if p.ItemName != nil {
		a.ItemName = *p.ItemName
	}
	if p.ItemID != nil {
		a.ItemID = *p.ItemID
	}
	if p.Cost != nil {
		a.Cost = *p.Cost
	}
	if p.AwardedAt != nil {
		a.AwardedAt = *p.AwardedAt
	}
	if p.RaidID != nil {
		a.RaidID = *p.RaidID
	}
	if p.Note != nil {
		a.Note = *p.Note
	}
	return a
}

func (AwardCodec) Key(a model.Award) string { return a.ID }

func (AwardCodec) WithKey(a model.Award, id string) model.Award {
	a.ID = id
	return a
}

func (AwardCodec) Less(a, b model.Award) bool { return a.AwardedAt.After(b.AwardedAt) }
