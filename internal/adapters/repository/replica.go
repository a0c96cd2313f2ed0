package repository

import (
	"github.com/okian/rostersync/internal/domain/codec"
	"github.com/okian/rostersync/internal/domain/model"
	"github.com/okian/rostersync/internal/domain/types"
)

// Replica is the in-memory mirror of every replicated collection.
type Replica struct {
	Members   *Collection[model.Member]
	Raids     *Collection[model.Raid]
	Awards    *Collection[model.Award]
	Scheduled *Collection[model.Scheduled]
}

// NewReplica creates an empty replica ordered by each collection's codec.
func NewReplica() *Replica {
	return &Replica{
		Members:   NewCollection(types.Members, model.Member.Key, codec.NewMembers().Less),
		Raids:     NewCollection(types.Raids, model.Raid.Key, codec.NewRaids().Less),
		Awards:    NewCollection(types.Awards, model.Award.Key, codec.NewAwards().Less),
		Scheduled: NewCollection(types.Scheduled, model.Scheduled.Key, codec.NewScheduled().Less),
	}
}

// Counts returns the number of records per collection name.
func (r *Replica) Counts() map[string]int {
	return map[string]int{
		types.Members:   r.Members.Len(),
		types.Raids:     r.Raids.Len(),
		types.Awards:    r.Awards.Len(),
		types.Scheduled: r.Scheduled.Len(),
	}
}
