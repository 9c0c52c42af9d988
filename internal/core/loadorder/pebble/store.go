// Package pebble keeps the load-order table in an embedded Pebble database,
// for standalone deployments without PostgreSQL.
package pebble

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/syntrixbase/inventory/internal/core/loadorder"
)

var (
	rowPrefix = []byte("lo/row/")
	seqKey    = []byte("lo/seq")
)

type rowValue struct {
	Position int64            `json:"position"`
	Status   loadorder.Status `json:"status"`
}

type Store struct {
	db     *pebble.DB
	mu     sync.Mutex
	lease  sync.Mutex
	logger *slog.Logger
}

var _ loadorder.Store = (*Store)(nil)

// Open opens or creates the database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("load order path is required")
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create load order directory: %w", err)
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble database: %w", err)
	}
	return &Store{db: db, logger: logger.With("component", "loadorder-pebble")}, nil
}

func rowKey(tmoID int64) []byte {
	return append(append([]byte(nil), rowPrefix...), strconv.FormatInt(tmoID, 10)...)
}

func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	end[len(end)-1]++
	return end
}

func (s *Store) nextSeq() (int64, error) {
	v, closer, err := s.db.Get(seqKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close()
	if len(v) != 8 {
		return 0, fmt.Errorf("corrupt sequence value")
	}
	return int64(binary.BigEndian.Uint64(v)), nil
}

func (s *Store) get(tmoID int64) (rowValue, bool, error) {
	v, closer, err := s.db.Get(rowKey(tmoID))
	if errors.Is(err, pebble.ErrNotFound) {
		return rowValue{}, false, nil
	}
	if err != nil {
		return rowValue{}, false, err
	}
	defer closer.Close()
	var rv rowValue
	if err := json.Unmarshal(v, &rv); err != nil {
		return rowValue{}, false, fmt.Errorf("decode row %d: %w", tmoID, err)
	}
	return rv, true, nil
}

// appendRows writes rows for new ids into batch starting after seq.
func (s *Store) appendRows(batch *pebble.Batch, tmoIDs []int64, seq int64, skip func(int64) (bool, error)) (int64, error) {
	seen := make(map[int64]struct{}, len(tmoIDs))
	for _, id := range tmoIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if skip != nil {
			exists, err := skip(id)
			if err != nil {
				return 0, err
			}
			if exists {
				continue
			}
		}
		seq++
		data, err := json.Marshal(rowValue{Position: seq, Status: loadorder.StatusNotInProgress})
		if err != nil {
			return 0, err
		}
		if err := batch.Set(rowKey(id), data, nil); err != nil {
			return 0, err
		}
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(seq))
	if err := batch.Set(seqKey, b[:], nil); err != nil {
		return 0, err
	}
	return seq, nil
}

func (s *Store) Replace(ctx context.Context, tmoIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.DeleteRange(rowPrefix, prefixEnd(rowPrefix), nil); err != nil {
		return fmt.Errorf("failed to clear load order: %w", err)
	}
	if _, err := s.appendRows(batch, tmoIDs, 0, nil); err != nil {
		return fmt.Errorf("failed to write load order: %w", err)
	}
	return batch.Commit(pebble.Sync)
}

func (s *Store) Add(ctx context.Context, tmoIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq, err := s.nextSeq()
	if err != nil {
		return err
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	exists := func(id int64) (bool, error) {
		_, ok, err := s.get(id)
		return ok, err
	}
	if _, err := s.appendRows(batch, tmoIDs, seq, exists); err != nil {
		return fmt.Errorf("failed to append load order: %w", err)
	}
	return batch.Commit(pebble.Sync)
}

func (s *Store) List(ctx context.Context) ([]loadorder.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: rowPrefix,
		UpperBound: prefixEnd(rowPrefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var out []loadorder.Row
	for iter.First(); iter.Valid(); iter.Next() {
		id, err := strconv.ParseInt(string(bytes.TrimPrefix(iter.Key(), rowPrefix)), 10, 64)
		if err != nil {
			s.logger.Warn("Skipping malformed load order key", "key", string(iter.Key()))
			continue
		}
		var rv rowValue
		if err := json.Unmarshal(iter.Value(), &rv); err != nil {
			return nil, fmt.Errorf("decode row %d: %w", id, err)
		}
		out = append(out, loadorder.Row{Position: rv.Position, TMOID: id, Status: rv.Status})
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s *Store) SetStatus(ctx context.Context, tmoID int64, status loadorder.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rv, ok, err := s.get(tmoID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: tmo %d", loadorder.ErrNotFound, tmoID)
	}
	rv.Status = status
	data, err := json.Marshal(rv)
	if err != nil {
		return err
	}
	return s.db.Set(rowKey(tmoID), data, pebble.Sync)
}

func (s *Store) Delete(ctx context.Context, tmoID int64) error {
	return s.db.Delete(rowKey(tmoID), pebble.Sync)
}

// TryLock is process-local: the database directory admits a single process.
func (s *Store) TryLock(ctx context.Context) (func(), error) {
	if !s.lease.TryLock() {
		return nil, loadorder.ErrLocked
	}
	var once sync.Once
	return func() { once.Do(s.lease.Unlock) }, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
