// Package types contains the wire-level shapes shared by every layer:
// rows, change notifications and collection names.
package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Collection names as the remote source knows them.
const (
	Members   = "members"
	Raids     = "raid_history"
	Awards    = "loot_history"
	Scheduled = "scheduled_raids"
)

// Collections lists every replicated collection in bootstrap order.
func Collections() []string {
	return []string{Members, Raids, Awards, Scheduled}
}

// IsCollection reports whether name is a replicated collection.
func IsCollection(name string) bool {
	switch name {
	case Members, Raids, Awards, Scheduled:
		return true
	}
	return false
}

// IDField is the identifier column of every collection.
const IDField = "id"

// Row is a record in wire form: snake_case field names to scalar or array values.
type Row map[string]any

// ID returns the row identifier as a string. Numeric identifiers are
// rendered in decimal; a missing identifier yields "".
func (r Row) ID() string {
	return IDString(r[IDField])
}

// IDString normalizes an identifier value to its string form.
func IDString(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case json.Number:
		return id.String()
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(id), 'f', -1, 32)
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	case uint64:
		return strconv.FormatUint(id, 10)
	default:
		return fmt.Sprint(id)
	}
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Kind is the type of a row-level change.
type Kind string

// Change kinds delivered by the subscription.
const (
	Insert Kind = "INSERT"
	Update Kind = "UPDATE"
	Delete Kind = "DELETE"
)

// ParseKind parses a change kind case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToUpper(strings.TrimSpace(s))); k {
	case Insert, Update, Delete:
		return k, nil
	}
	return "", fmt.Errorf("unknown change kind %q", s)
}

// Change is one row-level change notification.
type Change struct {
	Collection string `json:"collection"`
	Kind       Kind   `json:"kind"`
	New        Row    `json:"new,omitempty"`
	Old        Row    `json:"old,omitempty"`
}

// RecordID returns the identifier the change targets: the new row for
// inserts and updates, the old row for deletes.
func (c Change) RecordID() string {
	if c.Kind == Delete {
		if id := c.Old.ID(); id != "" {
			return id
		}
		return c.New.ID()
	}
	if id := c.New.ID(); id != "" {
		return id
	}
	return c.Old.ID()
}

// Order is a server-side ordering request.
type Order struct {
	Column    string `json:"column"`
	Ascending bool   `json:"ascending"`
}

// Edit is one member of a bulk update: a sparse wire patch for one record.
type Edit struct {
	ID    string `json:"id" validate:"required"`
	Patch Row    `json:"patch" validate:"required"`
}
