// ABOUTME: Immutable query value and the shared in-process matcher
// ABOUTME: Filters, ordering, and limits with type-strict comparison semantics

package store

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/2389/fitportal/internal/apperr"
)

// Op is a filter operator.
type Op string

// Filter operators.
const (
	OpEq               Op = "=="
	OpNe               Op = "!="
	OpLt               Op = "<"
	OpLe               Op = "<="
	OpGt               Op = ">"
	OpGe               Op = ">="
	OpIn               Op = "in"
	OpNotIn            Op = "not-in"
	OpArrayContains    Op = "array-contains"
	OpArrayContainsAny Op = "array-contains-any"
)

func (o Op) valid() bool {
	switch o {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe, OpIn, OpNotIn, OpArrayContains, OpArrayContainsAny:
		return true
	}
	return false
}

func (o Op) wantsList() bool {
	return o == OpIn || o == OpNotIn || o == OpArrayContainsAny
}

// Direction is a sort direction.
type Direction int

// Sort directions.
const (
	Asc Direction = iota
	Desc
)

// Filter is one conjunctive predicate.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Order is one sort key.
type Order struct {
	Field string
	Dir   Direction
}

// Query is an immutable filter and ordering specification. The zero value
// matches everything.
type Query struct {
	filters []Filter
	orders  []Order
	limit   int
	err     error
}

// NewQuery returns an empty query.
func NewQuery() Query {
	return Query{}
}

// Where returns a copy of q with an added filter.
func (q Query) Where(field string, op Op, value any) Query {
	out := q.clone()
	if out.err != nil {
		return out
	}
	if err := validateFieldPath(field); err != nil {
		out.err = err
		return out
	}
	if !op.valid() {
		out.err = apperr.Validation(field, fmt.Sprintf("unsupported operator %q", op))
		return out
	}
	norm, err := normalizeValue(value)
	if err != nil {
		out.err = apperr.Validation(field, "filter value is not JSON-compatible")
		return out
	}
	if op.wantsList() {
		if _, ok := norm.([]any); !ok {
			out.err = apperr.Validation(field, fmt.Sprintf("operator %q needs a list value", op))
			return out
		}
	}
	out.filters = append(out.filters, Filter{Field: field, Op: op, Value: norm})
	return out
}

// OrderBy returns a copy of q with an added sort key.
func (q Query) OrderBy(field string, dir Direction) Query {
	out := q.clone()
	if out.err != nil {
		return out
	}
	if err := validateFieldPath(field); err != nil {
		out.err = err
		return out
	}
	out.orders = append(out.orders, Order{Field: field, Dir: dir})
	return out
}

// Limit returns a copy of q capped at n results. Zero means unlimited.
func (q Query) Limit(n int) Query {
	out := q.clone()
	if n < 0 && out.err == nil {
		out.err = apperr.Validation("limit", "must not be negative")
		return out
	}
	out.limit = n
	return out
}

// Err returns the first construction error, if any.
func (q Query) Err() error {
	return q.err
}

// Filters returns a copy of the filters.
func (q Query) Filters() []Filter {
	return append([]Filter(nil), q.filters...)
}

// Orders returns a copy of the sort keys.
func (q Query) Orders() []Order {
	return append([]Order(nil), q.orders...)
}

// MaxResults returns the limit, zero when unlimited.
func (q Query) MaxResults() int {
	return q.limit
}

// String renders the query for logs.
func (q Query) String() string {
	var b strings.Builder
	for i, f := range q.filters {
		if i > 0 {
			b.WriteString(" AND ")
		}
		fmt.Fprintf(&b, "%s %s %v", f.Field, f.Op, f.Value)
	}
	for _, o := range q.orders {
		dir := "asc"
		if o.Dir == Desc {
			dir = "desc"
		}
		fmt.Fprintf(&b, " ORDER BY %s %s", o.Field, dir)
	}
	if q.limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.limit)
	}
	return strings.TrimSpace(b.String())
}

func (q Query) clone() Query {
	return Query{
		filters: append([]Filter(nil), q.filters...),
		orders:  append([]Order(nil), q.orders...),
		limit:   q.limit,
		err:     q.err,
	}
}

// pushdown returns equality filters on top-level scalar fields that SQL
// backends can evaluate in the database.
func (q Query) pushdown() []Filter {
	var out []Filter
	for _, f := range q.filters {
		if f.Op != OpEq || strings.Contains(f.Field, ".") || isReserved(f.Field) {
			continue
		}
		switch f.Value.(type) {
		case string, float64, bool:
			out = append(out, f)
		}
	}
	return out
}

// Match reports whether r satisfies every filter.
func (q Query) Match(r Record) bool {
	for _, f := range q.filters {
		if !matchFilter(r, f) {
			return false
		}
	}
	return true
}

// Apply filters, sorts, and limits records. The input slice is not modified.
func (q Query) Apply(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if !q.Match(r) {
			continue
		}
		if !hasOrderFields(r, q.orders) {
			continue
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		for _, o := range q.orders {
			a, _ := lookup(out[i], o.Field)
			b, _ := lookup(out[j], o.Field)
			c := orderValues(a, b)
			if c == 0 {
				continue
			}
			if o.Dir == Desc {
				return c > 0
			}
			return c < 0
		}
		return out[i].ID < out[j].ID
	})

	if q.limit > 0 && len(out) > q.limit {
		out = out[:q.limit]
	}
	return out
}

func hasOrderFields(r Record, orders []Order) bool {
	for _, o := range orders {
		if _, ok := lookup(r, o.Field); !ok {
			return false
		}
	}
	return true
}

// lookup resolves a dotted field path, including the reserved keys.
func lookup(r Record, path string) (any, bool) {
	switch path {
	case KeyID:
		return r.ID, true
	case KeyCreatedAt:
		return FormatTime(r.CreatedAt), true
	case KeyUpdatedAt:
		return FormatTime(r.UpdatedAt), true
	}

	var cur any = map[string]any(r.Fields)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func matchFilter(r Record, f Filter) bool {
	v, ok := lookup(r, f.Field)
	if !ok {
		return false
	}

	switch f.Op {
	case OpEq:
		return equalValues(v, f.Value)
	case OpNe:
		return !equalValues(v, f.Value)
	case OpLt, OpLe, OpGt, OpGe:
		c, ok := compareValues(v, f.Value)
		if !ok {
			return false
		}
		switch f.Op {
		case OpLt:
			return c < 0
		case OpLe:
			return c <= 0
		case OpGt:
			return c > 0
		default:
			return c >= 0
		}
	case OpIn:
		return containsValue(f.Value.([]any), v)
	case OpNotIn:
		return !containsValue(f.Value.([]any), v)
	case OpArrayContains:
		list, ok := v.([]any)
		return ok && containsValue(list, f.Value)
	case OpArrayContainsAny:
		list, ok := v.([]any)
		if !ok {
			return false
		}
		for _, want := range f.Value.([]any) {
			if containsValue(list, want) {
				return true
			}
		}
		return false
	}
	return false
}

func equalValues(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

func containsValue(list []any, v any) bool {
	for _, item := range list {
		if equalValues(item, v) {
			return true
		}
	}
	return false
}

// compareValues compares two values of the same JSON scalar type.
func compareValues(a, b any) (int, bool) {
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

// typeRank orders values of different types: null, bool, number, string, other.
func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	}
	return 4
}

func orderValues(a, b any) int {
	if c, ok := compareValues(a, b); ok {
		return c
	}
	ra, rb := typeRank(a), typeRank(b)
	switch {
	case ra < rb:
		return -1
	case ra > rb:
		return 1
	}
	return 0
}
