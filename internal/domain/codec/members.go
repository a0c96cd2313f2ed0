package codec

import (
	"github.com/okian/rostersync/internal/domain/model"
	"github.com/okian/rostersync/internal/domain/types"
)

// Wire names of the members collection.
const (
	fieldName       = "name"
	fieldClass      = "class"
	fieldRole       = "role"
	fieldDKP        = "dkp"
	fieldAttendance = "attendance"
	fieldAlts       = "alts"
	fieldActive     = "active"
	fieldJoinedAt   = "joined_at"
	fieldNote       = "note"
)

// MemberCodec transcodes the members collection.
type MemberCodec struct{ base }

var _ Codec[model.Member, model.MemberPatch] = MemberCodec{}

// NewMembers returns the members codec.
func NewMembers(opts ...Option) MemberCodec {
	return MemberCodec{newBase(opts)}
}

func (MemberCodec) Collection() string { return types.Members }

// DefaultOrder ranks the roster by DKP, highest first.
func (MemberCodec) DefaultOrder() types.Order {
	return types.Order{Column: fieldDKP, Ascending: false}
}

func (c MemberCodec) ToLocal(row types.Row) model.Member {
	return model.Member{
		ID:         c.id(row, types.IDField),
		Name:       c.str(row, fieldName),
		Class:      c.str(row, fieldClass),
		Role:       c.str(row, fieldRole),
		DKP:        c.num(row, fieldDKP),
		Attendance: c.num(row, fieldAttendance),
		Alts:       c.strs(row, fieldAlts),
		Active:     c.boolean(row, fieldActive),
		JoinedAt:   c.ts(row, fieldJoinedAt),
		Note:       c.str(row, fieldNote),
	}
}

func (MemberCodec) ToWire(m model.Member) types.Row {
	alts := m.Alts
	if alts == nil {
		alts = []string{}
	}
	return types.Row{
		types.IDField:   m.ID,
		fieldName:       m.Name,
		fieldClass:      m.Class,
		fieldRole:       m.Role,
		fieldDKP:        m.DKP,
		fieldAttendance: m.Attendance,
		fieldAlts:       cloneStrings(alts),
		fieldActive:     m.Active,
		fieldJoinedAt:   formatTime(m.JoinedAt),
		fieldNote:       m.Note,
	}
}

func (c MemberCodec) PatchFromWire(row types.Row) model.MemberPatch {
	var p model.MemberPatch
	if has(row, fieldName) {
		p.Name = model.Ptr(c.str(row, fieldName))
	}
	if has(row, fieldClass) {
		p.Class = model.Ptr(c.str(row, fieldClass))
	}
	if has(row, fieldRole) {
		p.Role = model.Ptr(c.str(row, fieldRole))
	}
	if has(row, fieldDKP) {
		p.DKP = model.Ptr(c.num(row, fieldDKP))
	}
	if has(row, fieldAttendance) {
		p.Attendance = model.Ptr(c.num(row, fieldAttendance))
	}
	if has(row, fieldAlts) {
		p.Alts = model.Ptr(c.strs(row, fieldAlts))
	}
	if has(row, fieldActive) {
		p.Active = model.Ptr(c.boolean(row, fieldActive))
	}
	if has(row, fieldJoinedAt) {
		p.JoinedAt = model.Ptr(c.ts(row, fieldJoinedAt))
	}
	if has(row, fieldNote) {
		p.Note = model.Ptr(c.str(row, fieldNote))
	}
	return p
}

func (MemberCodec) PatchToWire(p model.MemberPatch) types.Row {
	row := types.Row{}
	if p.Name != nil {
		row[fieldName] = *p.Name
	}
	if p.Class != nil {
		row[fieldClass] = *p.Class
	}
	if p.Role != nil {
		row[fieldRole] = *p.Role
	}
	if p.DKP != nil {
		row[fieldDKP] = *p.DKP
	}
	if p.Attendance != nil {
		row[fieldAttendance] = *p.Attendance
	}
	if p.Alts != nil {
		row[fieldAlts] = cloneStrings(*p.Alts)
	}
	if p.Active != nil {
		row[fieldActive] = *p.Active
	}
	if p.JoinedAt != nil {
		row[fieldJoinedAt] = formatTime(*p.JoinedAt)
	}
	if p.Note != nil {
		row[fieldNote] = *p.Note
	}
	return row
}

func (MemberCodec) Merge(m model.Member, p model.MemberPatch) model.Member {
	if p.Name != nil {
		m.Name = *p.Name
	}
	if p.Class != nil {
		m.Class = *p.Class
	}
	if p.Role != nil {
		m.Role = *p.Role
	}
	if p.DKP != nil {
		m.DKP = *p.DKP
	}
	if p.Attendance != nil {
		m.Attendance = *p.Attendance
	}
	if p.Alts != nil {
		m.Alts = cloneStrings(*p.Alts)
	}
	if p.Active != nil {
		m.Active = *p.Active
	}
	if p.JoinedAt != nil {
		m.JoinedAt = *p.JoinedAt
	}
	if p.Note != nil {
		m.Note = *p.Note
	}
	return m
}

func (MemberCodec) Key(m model.Member) string { return m.ID }

func (MemberCodec) WithKey(m model.Member, id string) model.Member {
	m.ID = id
	return m
}

func (MemberCodec) Less(a, b model.Member) bool { return a.DKP > b.DKP }
