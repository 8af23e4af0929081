package docstore

import (
	"fmt"
	"sort"
	"time"
)

// Filter is an equality condition on one top-level field.
type Filter struct {
	Field string
	Value any
}

// Query selects documents from one collection with equality filters and an
// optional single-field sort.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Descending bool
}

// NewQuery starts a query over collection.
func NewQuery(collection string) Query {
	return Query{Collection: collection}
}

// Where returns a copy of q with an added equality filter.
func (q Query) Where(field string, value any) Query {
	filters := make([]Filter, len(q.Filters), len(q.Filters)+1)
	copy(filters, q.Filters)
	q.Filters = append(filters, Filter{Field: field, Value: value})
	return q
}

// Sort returns a copy of q ordered by field.
func (q Query) Sort(field string, descending bool) Query {
	q.OrderBy = field
	q.Descending = descending
	return q
}

// Matches reports whether d satisfies every filter.
func (q Query) Matches(d Document) bool {
	for _, f := range q.Filters {
		if !valuesEqual(d.Fields[f.Field], f.Value) {
			return false
		}
	}
	return true
}

// Apply filters and sorts docs. Ties on the sort field fall back to the
// insertion sequence in the same direction.
func (q Query) Apply(docs []Document) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if q.Matches(d) {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		c := 0
		if q.OrderBy != "" {
			c = compareValues(out[i].Fields[q.OrderBy], out[j].Fields[q.OrderBy])
		}
		if c == 0 {
			c = compareInt(out[i].Seq, out[j].Seq)
		}
		if q.Descending {
			return c > 0
		}
		return c < 0
	})
	return out
}

func valuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	if ta, ok := a.(Timestamp); ok {
		if tb, ok := TimeOf(b); ok {
			return ta.Equal(tb)
		}
		return false
	}
	return fmt.Sprint(a) == fmt.Sprint(b) && typeRank(a) == typeRank(b)
}

// compareValues orders nil first, then numbers, strings, timestamps, bools.
func compareValues(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return compareInt(int64(ra), int64(rb))
	}
	switch ra {
	case 0:
		return 0
	case 1:
		fa, _ := toFloat(a)
		fb, _ := toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case 2:
		sa, sb := a.(string), b.(string)
		switch {
		case sa < sb:
			return -1
		case sa > sb:
			return 1
		}
		return 0
	case 3:
		ta, _ := TimeOf(a)
		tb, _ := TimeOf(b)
		return ta.Compare(tb)
	case 4:
		ba, bb := a.(bool), b.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		}
		return 1
	default:
		return 0
	}
}

func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case float64, float32, int, int32, int64:
		return 1
	case string:
		return 2
	case Timestamp, time.Time:
		return 3
	case bool:
		return 4
	default:
		return 5
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
