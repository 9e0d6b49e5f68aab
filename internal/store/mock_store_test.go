// ABOUTME: Tests for MockStore-specific behaviour
// ABOUTME: Covers copy semantics, call counting, and injected failures

package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/fitportal/internal/apperr"
)

func TestMockStore_ReturnsCopies(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	id, err := m.Create(ctx, "content", Fields{"tags": []string{"a"}})
	require.NoError(t, err)

	got, err := m.GetOne(ctx, "content", id)
	require.NoError(t, err)
	got.Fields["tags"].([]any)[0] = "mutated"
	got.Fields["extra"] = true

	again, err := m.GetOne(ctx, "content", id)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, again.Strings("tags"))
	assert.False(t, again.Has("extra"))
}

func TestMockStore_CountsCalls(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()
	assert.Equal(t, 0, m.Calls())

	_, _ = m.GetOne(ctx, "content", "x")
	_, _ = m.GetAll(ctx, "content", NewQuery())
	_ = m.Delete(ctx, "content", "x")

	assert.Equal(t, 3, m.Calls())
}

func TestMockStore_InjectError(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()
	m.InjectError(errors.New("connection reset"))

	_, err := m.Create(ctx, "content", Fields{"title": "x"})
	assert.ErrorIs(t, err, apperr.ErrNetwork)
	assert.ErrorIs(t, m.Ping(ctx), apperr.ErrNetwork)

	m.InjectError(nil)
	_, err = m.Create(ctx, "content", Fields{"title": "x"})
	assert.NoError(t, err)
}
