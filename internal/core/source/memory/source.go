// Package memory is an in-process Source, used in standalone tests and as the
// backing store of the gRPC source server in tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/syntrixbase/inventory/internal/core/source"
	"github.com/syntrixbase/inventory/internal/inventory/model"
)

type Source struct {
	mu        sync.RWMutex
	tmos      map[int64]model.TMO
	tprms     map[int64]model.TPRM
	mos       map[int64]model.MO
	prms      map[int64]model.PRM
	chunkSize int
}

var _ source.Source = (*Source)(nil)

// New returns an empty source streaming chunkSize records at a time.
func New(chunkSize int) *Source {
	if chunkSize <= 0 {
		chunkSize = source.DefaultChunkSize
	}
	return &Source{
		tmos:      make(map[int64]model.TMO),
		tprms:     make(map[int64]model.TPRM),
		mos:       make(map[int64]model.MO),
		prms:      make(map[int64]model.PRM),
		chunkSize: chunkSize,
	}
}

func (s *Source) PutTMO(tmos ...model.TMO) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tmos {
		s.tmos[t.ID] = t
	}
}

func (s *Source) PutTPRM(tprms ...model.TPRM) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tprms {
		s.tprms[t.ID] = t
	}
}

func (s *Source) PutMO(mos ...model.MO) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, mo := range mos {
		mo.Params = nil
		s.mos[mo.ID] = mo
	}
}

func (s *Source) PutPRM(prms ...model.PRM) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range prms {
		s.prms[p.ID] = p
	}
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func (s *Source) ObjectClasses(ctx context.Context) ([]model.TMO, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.TMO, 0, len(s.tmos))
	for _, id := range sortedKeys(s.tmos) {
		out = append(out, s.tmos[id])
	}
	return out, nil
}

func (s *Source) ParameterTypes(ctx context.Context, tmoID int64) ([]model.TPRM, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.tmos[tmoID]; !ok {
		return nil, source.ErrNotFound
	}
	var out []model.TPRM
	for _, id := range sortedKeys(s.tprms) {
		if t := s.tprms[id]; t.TMOID == tmoID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Source) ParameterTypesByID(ctx context.Context, ids []int64) ([]model.TPRM, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.TPRM
	for _, id := range ids {
		if t, ok := s.tprms[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func chunked[T any](ctx context.Context, items []T, size int, fn func([]T) error) error {
	for start := 0; start < len(items); start += size {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+size, len(items))
		if err := fn(items[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Source) StreamParameters(ctx context.Context, tprmID int64, fn func([]model.PRM) error) error {
	s.mu.RLock()
	var items []model.PRM
	for _, id := range sortedKeys(s.prms) {
		if p := s.prms[id]; p.TPRMID == tprmID {
			items = append(items, p)
		}
	}
	s.mu.RUnlock()
	return chunked(ctx, items, s.chunkSize, fn)
}

func (s *Source) StreamObjects(ctx context.Context, tmoID int64, fn func([]model.MO) error) error {
	s.mu.RLock()
	byObject := make(map[int64][]model.PRM)
	for _, id := range sortedKeys(s.prms) {
		p := s.prms[id]
		byObject[p.MOID] = append(byObject[p.MOID], p)
	}
	var items []model.MO
	for _, id := range sortedKeys(s.mos) {
		mo := s.mos[id]
		if mo.TMOID != tmoID {
			continue
		}
		mo.Params = byObject[mo.ID]
		items = append(items, mo)
	}
	s.mu.RUnlock()
	return chunked(ctx, items, s.chunkSize, fn)
}
