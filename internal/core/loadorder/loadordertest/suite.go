// Package loadordertest holds behaviour tests shared by the load-order
// backends.
package loadordertest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntrixbase/inventory/internal/core/loadorder"
)

// Run exercises a backend. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) loadorder.Store) {
	ctx := context.Background()

	t.Run("replace keeps order", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Replace(ctx, []int64{5, 2, 9, 2}))
		rows, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, []int64{5, 2, 9}, tmoIDs(rows))
		for _, r := range rows {
			assert.Equal(t, loadorder.StatusNotInProgress, r.Status)
		}

		require.NoError(t, s.Replace(ctx, []int64{1}))
		rows, err = s.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int64{1}, tmoIDs(rows))
	})

	t.Run("add appends missing rows", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Replace(ctx, []int64{5, 2}))
		require.NoError(t, s.SetStatus(ctx, 5, loadorder.StatusInProgress))
		require.NoError(t, s.Add(ctx, []int64{2, 7}))

		rows, err := s.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int64{5, 2, 7}, tmoIDs(rows))
		assert.Equal(t, loadorder.StatusInProgress, rows[0].Status)
	})

	t.Run("status and delete", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Replace(ctx, []int64{1, 2}))
		require.NoError(t, s.SetStatus(ctx, 2, loadorder.StatusInProgress))
		assert.ErrorIs(t, s.SetStatus(ctx, 3, loadorder.StatusInProgress), loadorder.ErrNotFound)

		require.NoError(t, s.Delete(ctx, 1))
		require.NoError(t, s.Delete(ctx, 42))
		rows, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, loadorder.Row{Position: rows[0].Position, TMOID: 2, Status: loadorder.StatusInProgress}, rows[0])
	})

	t.Run("lease is exclusive", func(t *testing.T) {
		s := newStore(t)
		unlock, err := s.TryLock(ctx)
		require.NoError(t, err)
		_, err = s.TryLock(ctx)
		assert.ErrorIs(t, err, loadorder.ErrLocked)
		unlock()
		unlock()

		unlock, err = s.TryLock(ctx)
		require.NoError(t, err)
		unlock()
	})
}

func tmoIDs(rows []loadorder.Row) []int64 {
	out := make([]int64, len(rows))
	for i, r := range rows {
		out[i] = r.TMOID
	}
	return out
}
