package services

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntrixbase/inventory/internal/config"
	"github.com/syntrixbase/inventory/internal/core/docstore"
	storageconfig "github.com/syntrixbase/inventory/internal/core/docstore/config"
	docmem "github.com/syntrixbase/inventory/internal/core/docstore/memory"
	"github.com/syntrixbase/inventory/internal/core/loadorder"
	loconfig "github.com/syntrixbase/inventory/internal/core/loadorder/config"
	"github.com/syntrixbase/inventory/internal/inventory/model"
	services "github.com/syntrixbase/inventory/internal/services/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

const snapshot = `
tmo:
  - {id: 1, name: Site}
tprm:
  - {id: 10, name: Height, tmo_id: 1, val_type: int}
mo:
  - {id: 100, name: S1, tmo_id: 1, active: true}
prm:
  - {id: 1000, value: "42", tprm_id: 10, mo_id: 100}
`

func standaloneConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapshot.yml")
	require.NoError(t, os.WriteFile(path, []byte(snapshot), 0o644))

	cfg := config.Default()
	cfg.Deployment.Mode = services.ModeStandalone
	cfg.Storage.Backend = storageconfig.BackendMemory
	cfg.LoadOrder.Backend = loconfig.BackendMemory
	cfg.Source.SnapshotPath = path
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.HTTPPort = 0
	return cfg
}

// useStore makes the manager build on store.
func useStore(t *testing.T, store docstore.Store) {
	t.Helper()
	orig := docstoreFactory
	docstoreFactory = func(context.Context, storageconfig.Config, *slog.Logger) (docstore.Store, error) {
		return store, nil
	}
	t.Cleanup(func() { docstoreFactory = orig })
}

func TestManager_ReindexOnly(t *testing.T) {
	store := docmem.New()
	useStore(t, store)
	cfg := standaloneConfig(t)

	m := NewManager(cfg, Options{Reindex: true}, testLogger())
	ctx := context.Background()
	require.NoError(t, m.Init(ctx))
	defer m.Shutdown(ctx)

	assert.Nil(t, m.Server())
	require.NoError(t, m.Start(ctx))

	doc, ok := store.Get(model.DefaultIndices().Object(1), model.DocID(100))
	require.True(t, ok)
	assert.Equal(t, "S1", doc[model.FieldName])

	pending, err := m.Reindexer().Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestManager_InitErrors(t *testing.T) {
	orig := docstoreFactory
	defer func() { docstoreFactory = orig }()
	docstoreFactory = func(context.Context, storageconfig.Config, *slog.Logger) (docstore.Store, error) {
		return nil, errors.New("unreachable")
	}
	m := NewManager(standaloneConfig(t), Options{}, testLogger())
	err := m.Init(context.Background())
	assert.ErrorContains(t, err, "document store")
	m.Shutdown(context.Background())

	docstoreFactory = orig
	origOrder := loadOrderFactory
	defer func() { loadOrderFactory = origOrder }()
	loadOrderFactory = func(context.Context, loconfig.Config, *slog.Logger) (loadorder.Store, error) {
		return nil, errors.New("no database")
	}
	m = NewManager(standaloneConfig(t), Options{}, testLogger())
	err = m.Init(context.Background())
	assert.ErrorContains(t, err, "load order")
	m.Shutdown(context.Background())

	loadOrderFactory = origOrder
	cfg := standaloneConfig(t)
	cfg.Source.SnapshotPath = filepath.Join(t.TempDir(), "missing.yml")
	m = NewManager(cfg, Options{}, testLogger())
	err = m.Init(context.Background())
	assert.ErrorContains(t, err, "source")
	m.Shutdown(context.Background())
}

func TestManager_EventsThroughServer(t *testing.T) {
	store := docmem.New()
	useStore(t, store)
	cfg := standaloneConfig(t)
	idx := model.DefaultIndices()

	m := NewManager(cfg, Options{RunIndexer: true, RunServer: true}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Init(ctx))
	require.NoError(t, m.Start(ctx))
	defer func() {
		cancel()
		stopCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		m.Shutdown(stopCtx)
	}()

	require.Eventually(t, func() bool { return m.Server().Addr() != nil }, 2*time.Second, 10*time.Millisecond)
	base := "http://" + m.Server().Addr().String()

	post := func(path, body string) int {
		resp, err := http.Post(base+path, "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, post("/api/v1/reindex?wait=true", ""))
	_, ok := store.Get(idx.Object(1), model.DocID(100))
	assert.True(t, ok)

	assert.Equal(t, http.StatusAccepted, post("/api/v1/events/TMO:created", `{"objects":[{"id":5,"name":"rack"}]}`))
	require.Eventually(t, func() bool {
		exists, err := store.IndexExists(ctx, idx.Object(5))
		return err == nil && exists
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, http.StatusAccepted, post("/api/v1/events/MO:created", `{"objects":[{"id":30,"name":"r1","tmo_id":5,"p_id":100}]}`))
	require.Eventually(t, func() bool {
		_, ok := store.Get(idx.Object(5), "30")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	doc, _ := store.Get(idx.Object(5), "30")
	assert.Equal(t, "S1", doc[model.FieldParentName])

	resp, err := http.Get(base + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
