// Package memory is an in-process load-order table.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/syntrixbase/inventory/internal/core/loadorder"
)

type Store struct {
	mu   sync.Mutex
	rows map[int64]loadorder.Row
	next int64

	lease sync.Mutex
}

var _ loadorder.Store = (*Store)(nil)

// New returns an empty table.
func New() *Store {
	return &Store{rows: make(map[int64]loadorder.Row)}
}

func (s *Store) Replace(ctx context.Context, tmoIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = make(map[int64]loadorder.Row, len(tmoIDs))
	s.next = 0
	s.addLocked(tmoIDs)
	return nil
}

func (s *Store) Add(ctx context.Context, tmoIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addLocked(tmoIDs)
	return nil
}

func (s *Store) addLocked(tmoIDs []int64) {
	for _, id := range tmoIDs {
		if _, ok := s.rows[id]; ok {
			continue
		}
		s.next++
		s.rows[id] = loadorder.Row{Position: s.next, TMOID: id, Status: loadorder.StatusNotInProgress}
	}
}

func (s *Store) List(ctx context.Context) ([]loadorder.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]loadorder.Row, 0, len(s.rows))
	for _, r := range s.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s *Store) SetStatus(ctx context.Context, tmoID int64, status loadorder.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[tmoID]
	if !ok {
		return fmt.Errorf("%w: tmo %d", loadorder.ErrNotFound, tmoID)
	}
	r.Status = status
	s.rows[tmoID] = r
	return nil
}

func (s *Store) Delete(ctx context.Context, tmoID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, tmoID)
	return nil
}

func (s *Store) TryLock(ctx context.Context) (func(), error) {
	if !s.lease.TryLock() {
		return nil, loadorder.ErrLocked
	}
	var once sync.Once
	return func() { once.Do(s.lease.Unlock) }, nil
}

func (s *Store) Close() error { return nil }
