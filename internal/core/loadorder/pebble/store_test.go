package pebble

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntrixbase/inventory/internal/core/loadorder"
	"github.com/syntrixbase/inventory/internal/core/loadorder/loadordertest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestStore(t *testing.T) {
	loadordertest.Run(t, func(t *testing.T) loadorder.Store {
		s, err := Open(filepath.Join(t.TempDir(), "loadorder"), testLogger())
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "loadorder")

	s, err := Open(path, testLogger())
	require.NoError(t, err)
	require.NoError(t, s.Replace(ctx, []int64{4, 8}))
	require.NoError(t, s.SetStatus(ctx, 4, loadorder.StatusInProgress))
	require.NoError(t, s.Close())

	s, err = Open(path, testLogger())
	require.NoError(t, err)
	defer s.Close()

	rows, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(4), rows[0].TMOID)
	assert.Equal(t, loadorder.StatusInProgress, rows[0].Status)

	require.NoError(t, s.Add(ctx, []int64{1}))
	rows, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows[2].TMOID)
	assert.Equal(t, int64(3), rows[2].Position)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open("", testLogger())
	assert.Error(t, err)
}
