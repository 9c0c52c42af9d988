package indexer

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntrixbase/inventory/internal/core/pubsub"
	"github.com/syntrixbase/inventory/internal/core/pubsub/memory"
	"github.com/syntrixbase/inventory/internal/indexer/config"
	"github.com/syntrixbase/inventory/internal/inventory/changes"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeMsg struct {
	key       string
	delivered uint64
	mdErr     error

	acked  bool
	naked  bool
	termed bool
	delay  time.Duration
}

func (m *fakeMsg) Key() string     { return m.key }
func (m *fakeMsg) Data() []byte    { return nil }
func (m *fakeMsg) Subject() string { return "" }
func (m *fakeMsg) Ack() error      { m.acked = true; return nil }
func (m *fakeMsg) Nak() error      { m.naked = true; return nil }
func (m *fakeMsg) Term() error     { m.termed = true; return nil }
func (m *fakeMsg) NakWithDelay(d time.Duration) error {
	m.naked = true
	m.delay = d
	return nil
}
func (m *fakeMsg) Metadata() (pubsub.MessageMetadata, error) {
	return pubsub.MessageMetadata{NumDelivered: m.delivered}, m.mdErr
}

type recordingHandler struct {
	mu    sync.Mutex
	keys  []string
	fails map[string]int
	calls chan string
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{fails: make(map[string]int), calls: make(chan string, 64)}
}

func (h *recordingHandler) HandleKey(ctx context.Context, key string, _ []byte) error {
	h.mu.Lock()
	h.keys = append(h.keys, key)
	fail := h.fails[key] > 0
	if fail {
		h.fails[key]--
	}
	h.mu.Unlock()
	h.calls <- key
	if fail {
		return errors.New("store unavailable")
	}
	return nil
}

func (h *recordingHandler) wait(t *testing.T, n int) []string {
	t.Helper()
	var got []string
	for len(got) < n {
		select {
		case k := <-h.calls:
			got = append(got, k)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d events", len(got), n)
		}
	}
	return got
}

func newTestService(handler Handler) *Service {
	cfg := config.Config{
		Workers:        2,
		MaxAttempts:    3,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     25 * time.Millisecond,
	}
	return NewService(cfg, nil, handler, testLogger())
}

func TestSettle(t *testing.T) {
	s := newTestService(nil)

	ok := &fakeMsg{key: "MO:created"}
	assert.Equal(t, "success", s.settle(ok, ok.key, nil))
	assert.True(t, ok.acked)

	fatal := &fakeMsg{key: "MO:renamed"}
	assert.Equal(t, "fatal", s.settle(fatal, fatal.key, &changes.FatalError{Err: errors.New("bad key")}))
	assert.True(t, fatal.termed)

	partial := &fakeMsg{key: "PRM:created"}
	itemErr := &changes.ItemError{Entity: "PRM", ID: 7, Err: errors.New("rejected")}
	assert.Equal(t, "partial", s.settle(partial, partial.key, itemErr))
	assert.True(t, partial.acked)

	retry := &fakeMsg{key: "MO:updated", delivered: 2}
	assert.Equal(t, "retry", s.settle(retry, retry.key, errors.New("timeout")))
	assert.True(t, retry.naked)
	assert.Equal(t, 20*time.Millisecond, retry.delay)

	exhausted := &fakeMsg{key: "MO:updated", delivered: 3}
	assert.Equal(t, "exhausted", s.settle(exhausted, exhausted.key, errors.New("timeout")))
	assert.True(t, exhausted.termed)

	noMeta := &fakeMsg{key: "TMO:deleted", mdErr: errors.New("no metadata")}
	assert.Equal(t, "retry", s.settle(noMeta, noMeta.key, errors.New("timeout")))
	assert.True(t, noMeta.naked)

	assert.Equal(t, Stats{Applied: 2, Terminated: 2, Retried: 2}, s.Stats())
}

func TestBackoff(t *testing.T) {
	s := newTestService(nil)
	assert.Equal(t, 10*time.Millisecond, s.backoff(1))
	assert.Equal(t, 20*time.Millisecond, s.backoff(2))
	assert.Equal(t, 25*time.Millisecond, s.backoff(3))
	assert.Equal(t, 25*time.Millisecond, s.backoff(60))
}

func TestPartition_SameKindSameWorker(t *testing.T) {
	for _, n := range []int{1, 3, 8} {
		assert.Equal(t, partition("MO:created", n), partition("MO:deleted", n))
		assert.Equal(t, partition("TPRM:created", n), partition("TPRM:updated", n))
		assert.Less(t, partition("PRM:created", n), n)
	}
}

func TestService_AppliesEventsInOrderPerKind(t *testing.T) {
	engine := memory.New()
	defer engine.Close()

	cons, err := engine.NewConsumer(pubsub.ConsumerOptions{StreamName: "INVENTORY"})
	require.NoError(t, err)
	pub, err := engine.NewPublisher(pubsub.PublisherOptions{StreamName: "INVENTORY"})
	require.NoError(t, err)

	handler := newRecordingHandler()
	s := NewService(config.Config{Workers: 3}, cons, handler, testLogger())
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	assert.Error(t, s.Start(ctx))

	keys := []string{"MO:created", "PRM:created", "MO:updated", "PRM:updated", "MO:deleted"}
	for _, k := range keys {
		require.NoError(t, pub.Publish(ctx, k, []byte("[]")))
	}
	got := handler.wait(t, len(keys))

	var mo, prm []string
	for _, k := range got {
		switch pubsub.EntityKind(k) {
		case "MO":
			mo = append(mo, k)
		case "PRM":
			prm = append(prm, k)
		}
	}
	assert.Equal(t, []string{"MO:created", "MO:updated", "MO:deleted"}, mo)
	assert.Equal(t, []string{"PRM:created", "PRM:updated"}, prm)

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))
	require.NoError(t, s.Stop(stopCtx))
	assert.Equal(t, int64(5), s.Stats().Applied)
}

func TestService_RetriesFailedEvents(t *testing.T) {
	engine := memory.New()
	defer engine.Close()

	cons, _ := engine.NewConsumer(pubsub.ConsumerOptions{StreamName: "INVENTORY"})
	pub, _ := engine.NewPublisher(pubsub.PublisherOptions{StreamName: "INVENTORY"})

	handler := newRecordingHandler()
	handler.fails["TMO:updated"] = 1
	s := NewService(config.Config{
		Workers:        1,
		MaxAttempts:    3,
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
	}, cons, handler, testLogger())

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	defer s.Stop(ctx)

	require.NoError(t, pub.Publish(ctx, "TMO:updated", []byte("[]")))
	got := handler.wait(t, 2)
	assert.Equal(t, []string{"TMO:updated", "TMO:updated"}, got)

	require.Eventually(t, func() bool {
		return s.Stats().Applied == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), s.Stats().Retried)
}
