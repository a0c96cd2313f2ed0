package remote

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/okian/rostersync/internal/domain/types"
)

// SortRows orders rows by order.Column, keeping the relative order of
// equal values. Rows missing the column sort first when ascending.
func SortRows(rows []types.Row, order types.Order) {
	if order.Column == "" {
		return
	}
	slices.SortStableFunc(rows, func(a, b types.Row) int {
		c := compareValues(a[order.Column], b[order.Column])
		if order.Ascending {
			return c
		}
		return -c
	})
}

// Merge returns a copy of row with every patch field applied.
func Merge(row, patch types.Row) types.Row {
	out := row.Clone()
	if out == nil {
		out = types.Row{}
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

func compareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if fa, ok := number(a); ok {
		if fb, ok := number(b); ok {
			return cmp.Compare(fa, fb)
		}
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ba == bb:
				return 0
			case !ba:
				return -1
			default:
				return 1
			}
		}
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
