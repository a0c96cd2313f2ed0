// Package codec maps records between their wire form (types.Row, snake_case
// keys) and their in-memory form (model structs), one codec per collection.
//
// Every codec is total and deterministic for a given clock: missing or
// mistyped wire fields map to fixed defaults (empty string, zero, false,
// empty slice, clock "now" for timestamps). ToWire never emits local-only
// names and ToLocal never leaks wire names.
package codec

import (
	"encoding/json"
	"math"
	"time"

	"github.com/okian/rostersync/internal/domain/types"
)

// Codec is the transcoder contract for one collection, with T the local
// record type and P its sparse patch type.
type Codec[T any, P any] interface {
	Collection() string
	DefaultOrder() types.Order

	ToLocal(row types.Row) T
	ToWire(rec T) types.Row

	PatchFromWire(row types.Row) P
	PatchToWire(patch P) types.Row
	// Merge applies every present patch field to rec (shallow merge).
	Merge(rec T, patch P) T

	Key(rec T) string
	WithKey(rec T, id string) T
	// Less reports whether a ranks before b in the collection ordering.
	Less(a, b T) bool
}

// Option configures a codec.
type Option func(*base)

// WithClock sets the source of the timestamp default.
func WithClock(now func() time.Time) Option {
	return func(b *base) {
		if now != nil {
			b.now = now
		}
	}
}

type base struct {
	now func() time.Time
}

func newBase(opts []Option) base {
	b := base{now: time.Now}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b base) str(row types.Row, key string) string {
	s, _ := row[key].(string)
	return s
}

func (b base) id(row types.Row, key string) string {
	return types.IDString(row[key])
}

func (b base) num(row types.Row, key string) float64 {
	switch v := row[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case int32:
		return float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

func (b base) integer(row types.Row, key string) int {
	return int(math.Round(b.num(row, key)))
}

func (b base) boolean(row types.Row, key string) bool {
	v, _ := row[key].(bool)
	return v
}

func (b base) strs(row types.Row, key string) []string {
	switch v := row[key].(type) {
	case []string:
		return cloneStrings(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if e == nil {
				continue
			}
			out = append(out, types.IDString(e))
		}
		return out
	}
	return []string{}
}

func (b base) ts(row types.Row, key string) time.Time {
	switch v := row[key].(type) {
	case time.Time:
		return v.UTC()
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t.UTC()
		}
	}
	return b.now().UTC()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func has(row types.Row, key string) bool {
	_, ok := row[key]
	return ok
}
