// Package model contains the in-memory record types of the replica and
// their sparse patch counterparts.
//
// A patch field left nil is absent: it is neither merged locally nor sent
// to the remote source.
package model

import "time"

// Member is one roster entry. The roster is ranked by DKP, highest first.
type Member struct {
	ID         string
	Name       string
	Class      string
	Role       string
	DKP        float64
	Attendance float64 // percentage of the last attendance window
	Alts       []string
	Active     bool
	JoinedAt   time.Time
	Note       string
}

// Key returns the record identifier.
func (m Member) Key() string { return m.ID }

// MemberPatch is a sparse update of a Member.
type MemberPatch struct {
	Name       *string
	Class      *string
	Role       *string
	DKP        *float64
	Attendance *float64
	Alts       *[]string
	Active     *bool
	JoinedAt   *time.Time
	Note       *string
}

// Raid is a completed event in the history, newest first.
type Raid struct {
	ID          string
	Name        string
	Zone        string
	CompletedAt time.Time
	Attendees   []string // member ids
	Bosses      []string
	DKPAwarded  float64
	Note        string
}

// Key returns the record identifier.
func (r Raid) Key() string { return r.ID }

// RaidPatch is a sparse update of a Raid.
type RaidPatch struct {
	Name        *string
	Zone        *string
	CompletedAt *time.Time
	Attendees   *[]string
	Bosses      *[]string
	DKPAwarded  *float64
	Note        *string
}

// Award is an item handed to a member, newest first.
type Award struct {
	ID        string
	MemberID  string
	ItemName  string
	ItemID    string
	Cost      float64
	AwardedAt time.Time
	RaidID    string
	Note      string
}

// Key returns the record identifier.
func (a Award) Key() string { return a.ID }

// AwardPatch is a sparse update of an Award.
type AwardPatch struct {
	MemberID  *string
	ItemName  *string
	ItemID    *string
	Cost      *float64
	AwardedAt *time.Time
	RaidID    *string
	Note      *string
}

// Scheduled is an upcoming event, soonest first.
type Scheduled struct {
	ID              string
	Name            string
	Zone            string
	ScheduledAt     time.Time
	DurationMinutes int
	Signups         []string // member ids
	Recurring       bool
	Note            string
}

// Key returns the record identifier.
func (s Scheduled) Key() string { return s.ID }

// ScheduledPatch is a sparse update of a Scheduled event.
type ScheduledPatch struct {
	Name            *string
	Zone            *string
	ScheduledAt     *time.Time
	DurationMinutes *int
	Signups         *[]string
	Recurring       *bool
	Note            *string
}

// Ptr returns a pointer to v. Handy when building patches.
func Ptr[T any](v T) *T { return &v }
