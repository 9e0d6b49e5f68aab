// ABOUTME: Tests for the immutable Query value and in-process matcher
// ABOUTME: Covers copy-on-chain, each operator, missing fields, and ordering rules

package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/fitportal/internal/apperr"
)

func rec(id string, fields Fields) Record {
	norm, err := normalizeFields(fields)
	if err != nil {
		panic(err)
	}
	return Record{ID: id, Fields: norm}
}

func TestQuery_Immutable(t *testing.T) {
	base := NewQuery().Where("category", OpEq, "Fitness")
	a := base.Where("isPremium", OpEq, true)
	b := base.Where("isPremium", OpEq, false)

	assert.Len(t, base.Filters(), 1)
	require.Len(t, a.Filters(), 2)
	require.Len(t, b.Filters(), 2)
	assert.Equal(t, true, a.Filters()[1].Value)
	assert.Equal(t, false, b.Filters()[1].Value, "siblings must not share backing arrays")

	filters := a.Filters()
	filters[0].Value = "tampered"
	assert.Equal(t, "Fitness", a.Filters()[0].Value)
}

func TestQuery_Operators(t *testing.T) {
	r := rec("1", Fields{
		"n":    5,
		"s":    "beta",
		"b":    true,
		"tags": []string{"x", "y"},
		"nest": map[string]any{"deep": 2},
	})

	tests := []struct {
		name  string
		field string
		op    Op
		value any
		want  bool
	}{
		{"eq number", "n", OpEq, 5, true},
		{"eq wrong type", "n", OpEq, "5", false},
		{"ne", "n", OpNe, 4, true},
		{"ne same", "n", OpNe, 5, false},
		{"lt", "n", OpLt, 6, true},
		{"le", "n", OpLe, 5, true},
		{"gt", "n", OpGt, 5, false},
		{"ge", "n", OpGe, 5, true},
		{"string gt", "s", OpGt, "alpha", true},
		{"cross-type never matches", "s", OpGt, 1, false},
		{"bool eq", "b", OpEq, true, true},
		{"in", "s", OpIn, []string{"alpha", "beta"}, true},
		{"in miss", "s", OpIn, []string{"gamma"}, false},
		{"not-in", "s", OpNotIn, []string{"gamma"}, true},
		{"not-in hit", "s", OpNotIn, []string{"beta"}, false},
		{"array-contains", "tags", OpArrayContains, "y", true},
		{"array-contains miss", "tags", OpArrayContains, "z", false},
		{"array-contains-any", "tags", OpArrayContainsAny, []string{"z", "x"}, true},
		{"array-contains on scalar", "s", OpArrayContains, "beta", false},
		{"dotted path", "nest.deep", OpEq, 2, true},
		{"missing field eq", "absent", OpEq, 1, false},
		{"missing field ne", "absent", OpNe, 1, false},
		{"missing field not-in", "absent", OpNotIn, []string{"a"}, false},
		{"reserved id", "id", OpEq, "1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewQuery().Where(tt.field, tt.op, tt.value)
			require.NoError(t, q.Err())
			assert.Equal(t, tt.want, q.Match(r))
		})
	}
}

func TestQuery_TimeValuesCompareAsTimestamps(t *testing.T) {
	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	r := rec("1", Fields{"date": late})

	assert.True(t, NewQuery().Where("date", OpGe, early).Match(r))
	assert.False(t, NewQuery().Where("date", OpLt, early).Match(r))
}

func TestQuery_ConstructionErrors(t *testing.T) {
	tests := []struct {
		name string
		q    Query
	}{
		{"bad field", NewQuery().Where("a b", OpEq, 1)},
		{"bad op", NewQuery().Where("a", Op("like"), 1)},
		{"in needs list", NewQuery().Where("a", OpIn, "x")},
		{"bad order field", NewQuery().OrderBy("", Asc)},
		{"negative limit", NewQuery().Limit(-1)},
		{"error sticks", NewQuery().Where("a b", OpEq, 1).Where("ok", OpEq, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.q.Err(), apperr.ErrValidation)
		})
	}
}

func TestQuery_ApplyOrdering(t *testing.T) {
	records := []Record{
		rec("c", Fields{"date": "2024-01-03", "w": 1}),
		rec("a", Fields{"date": "2024-01-01", "w": 1}),
		rec("b", Fields{"date": "2024-01-02", "w": 2}),
		rec("d", Fields{"w": 3}),
	}

	got := NewQuery().OrderBy("date", Desc).Apply(records)
	require.Len(t, got, 3, "records without the order field are excluded")
	assert.Equal(t, []string{"c", "b", "a"}, ids(got))

	got = NewQuery().OrderBy("w", Asc).Apply(records)
	assert.Equal(t, []string{"a", "c", "b", "d"}, ids(got), "ties broken by id")

	got = NewQuery().OrderBy("w", Asc).OrderBy("date", Desc).Apply(records)
	assert.Equal(t, []string{"c", "a", "b"}, ids(got))

	got = NewQuery().Limit(2).Apply(records)
	assert.Len(t, got, 2)

	assert.Equal(t, "c", records[0].ID, "input must not be reordered")
}

func TestQuery_String(t *testing.T) {
	q := NewQuery().Where("category", OpEq, "Fitness").OrderBy("createdAt", Desc).Limit(5)
	assert.Equal(t, "category == Fitness ORDER BY createdAt desc LIMIT 5", q.String())
}

func ids(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}
