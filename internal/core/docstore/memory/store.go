// Package memory is an in-process docstore used by standalone deployments
// and tests.
package memory

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/syntrixbase/inventory/internal/core/docstore"
)

type index struct {
	mapping docstore.Mapping
	docs    map[string]map[string]any
}

// Store keeps every index in memory.
type Store struct {
	mu      sync.RWMutex
	indices map[string]*index
}

var _ docstore.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{indices: make(map[string]*index)}
}

func (s *Store) Close(ctx context.Context) error { return nil }

// resolve expands an index name or pattern. Callers hold the lock.
func (s *Store) resolve(name string) ([]string, error) {
	if !docstore.IsPattern(name) {
		if _, ok := s.indices[name]; !ok {
			return nil, fmt.Errorf("%w: %s", docstore.ErrIndexNotFound, name)
		}
		return []string{name}, nil
	}
	var out []string
	for n := range s.indices {
		if ok, _ := path.Match(name, n); ok {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out, nil
}

type candidate struct {
	index string
	id    string
	doc   map[string]any
	sort  []any
}

func (s *Store) Search(ctx context.Context, req docstore.SearchRequest) (*docstore.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names, err := s.resolve(req.Index)
	if err != nil {
		return nil, err
	}
	var matched []candidate
	for _, name := range names {
		for id, doc := range s.indices[name].docs {
			if !matches(req.Filter, id, doc) {
				continue
			}
			c := candidate{index: name, id: id, doc: doc}
			for _, f := range req.Sort {
				c.sort = append(c.sort, sortValue(id, doc, f.Field))
			}
			matched = append(matched, c)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if c := compareSort(matched[i].sort, matched[j].sort, req.Sort); c != 0 {
			return c < 0
		}
		if matched[i].index != matched[j].index {
			return matched[i].index < matched[j].index
		}
		return matched[i].id < matched[j].id
	})

	res := &docstore.SearchResult{}
	if req.TrackTotal {
		res.Total = int64(len(matched))
	}
	if len(req.SearchAfter) > 0 {
		start := len(matched)
		for i, c := range matched {
			if compareSort(c.sort, req.SearchAfter, req.Sort) > 0 {
				start = i
				break
			}
		}
		matched = matched[start:]
	}
	size := req.Size
	if size <= 0 {
		size = docstore.DefaultPageSize
	}
	if len(matched) > size {
		matched = matched[:size]
	}
	for _, c := range matched {
		res.Hits = append(res.Hits, docstore.Hit{
			Index:  c.index,
			ID:     c.id,
			Source: docstore.ProjectSource(c.doc, req.Include, req.Exclude),
			Sort:   c.sort,
		})
	}
	return res, nil
}

func sortValue(id string, doc map[string]any, field string) any {
	if field == docstore.FieldDocID {
		return id
	}
	v, _ := docstore.GetPath(doc, field)
	if arr, ok := v.([]any); ok {
		if len(arr) == 0 {
			return nil
		}
		return arr[0]
	}
	return v
}

func compareSort(a, b []any, fields []docstore.SortField) int {
	for i := range fields {
		if i >= len(a) || i >= len(b) {
			break
		}
		c := docstore.Compare(a[i], b[i])
		if fields[i].Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

func (s *Store) Aggregate(ctx context.Context, req docstore.AggRequest) ([]docstore.Bucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names, err := s.resolve(req.Index)
	if err != nil {
		return nil, err
	}
	type group struct {
		bucket docstore.Bucket
		order  int
	}
	groups := make(map[string]*group)
	for _, name := range names {
		for id, doc := range s.indices[name].docs {
			if !matches(req.Filter, id, doc) {
				continue
			}
			var key any
			if req.GroupBy != "" {
				v, ok := docstore.GetPath(doc, req.GroupBy)
				if !ok || v == nil {
					continue
				}
				key = v
			}
			gk := fmt.Sprintf("%T:%v", normalizeKey(key), normalizeKey(key))
			g, ok := groups[gk]
			if !ok {
				g = &group{bucket: docstore.Bucket{Key: key, Values: map[string]any{}}, order: len(groups)}
				groups[gk] = g
			}
			g.bucket.Count++
			for _, m := range req.Metrics {
				accumulate(g.bucket.Values, m, doc)
			}
		}
	}
	out := make([]docstore.Bucket, 0, len(groups))
	for _, g := range groups {
		for _, m := range req.Metrics {
			if m.Op == docstore.MetricCount {
				g.bucket.Values[m.Name] = g.bucket.Count
			}
		}
		out = append(out, g.bucket)
	}
	sort.Slice(out, func(i, j int) bool { return docstore.Compare(out[i].Key, out[j].Key) < 0 })
	return out, nil
}

func normalizeKey(v any) any {
	if f, ok := docstore.AsFloat(v); ok {
		return f
	}
	return v
}

func accumulate(values map[string]any, m docstore.Metric, doc map[string]any) {
	v, ok := docstore.GetPath(doc, m.Field)
	if !ok || v == nil {
		return
	}
	elems := []any{v}
	if arr, ok := v.([]any); ok {
		elems = arr
	}
	for _, e := range elems {
		cur, seen := values[m.Name]
		switch m.Op {
		case docstore.MetricMin:
			if !seen || docstore.Compare(e, cur) < 0 {
				values[m.Name] = e
			}
		case docstore.MetricMax:
			if !seen || docstore.Compare(e, cur) > 0 {
				values[m.Name] = e
			}
		case docstore.MetricSum:
			f, ok := docstore.AsFloat(e)
			if !ok {
				continue
			}
			prev, _ := docstore.AsFloat(cur)
			values[m.Name] = prev + f
		}
	}
}

func (s *Store) Bulk(ctx context.Context, actions []docstore.Action, refresh bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var failed []docstore.BulkItemError
	ok := 0
	for _, a := range actions {
		idx, exists := s.indices[a.Index]
		if !exists {
			failed = append(failed, itemError(a, "index_not_found"))
			continue
		}
		switch a.Op {
		case docstore.OpIndex:
			idx.docs[a.ID] = docstore.CloneDoc(a.Doc)
		case docstore.OpUpdate:
			doc, found := idx.docs[a.ID]
			if !found {
				failed = append(failed, itemError(a, docstore.ReasonDocumentMissing))
				continue
			}
			docstore.ApplyUpdate(doc, a)
		case docstore.OpDelete:
			delete(idx.docs, a.ID)
		default:
			failed = append(failed, itemError(a, "unknown op"))
			continue
		}
		ok++
	}
	if len(failed) > 0 {
		return ok, &docstore.BulkError{Items: failed}
	}
	return ok, nil
}

func itemError(a docstore.Action, reason string) docstore.BulkItemError {
	return docstore.BulkItemError{Op: a.Op, Index: a.Index, ID: a.ID, Reason: reason}
}

func (s *Store) UpdateByQuery(ctx context.Context, index string, filter docstore.Filter, script docstore.Script, refresh bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.resolve(index)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, name := range names {
		for id, doc := range s.indices[name].docs {
			if !matches(filter, id, doc) {
				continue
			}
			for _, op := range script {
				applyScript(doc, op)
			}
			n++
		}
	}
	return n, nil
}

func applyScript(doc map[string]any, op docstore.ScriptOp) {
	switch op.Kind {
	case docstore.ScriptSet:
		docstore.SetPath(doc, op.Field, docstore.CloneValue(op.Value))
	case docstore.ScriptSetByKey:
		raw, _ := docstore.GetPath(doc, op.KeyField)
		key, ok := exactInt64(raw)
		if !ok {
			return
		}
		if v, ok := op.ByKey[key]; ok {
			docstore.SetPath(doc, op.Field, docstore.CloneValue(v))
		}
	case docstore.ScriptSetElement:
		cur, _ := docstore.GetPath(doc, op.Field)
		arr, ok := cur.([]any)
		if !ok {
			docstore.SetPath(doc, op.Field, []any{docstore.CloneValue(op.Value)})
			return
		}
		arr = append([]any(nil), arr...)
		if op.Position >= 0 && op.Position < len(arr) {
			arr[op.Position] = docstore.CloneValue(op.Value)
		} else {
			arr = append(arr, docstore.CloneValue(op.Value))
		}
		docstore.SetPath(doc, op.Field, arr)
	}
}

func exactInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), float64(int64(n)) == n
	}
	return 0, false
}

func (s *Store) DeleteByQuery(ctx context.Context, index string, filter docstore.Filter, refresh bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.resolve(index)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, name := range names {
		docs := s.indices[name].docs
		for id, doc := range docs {
			if matches(filter, id, doc) {
				delete(docs, id)
				n++
			}
		}
	}
	return n, nil
}

func (s *Store) CreateIndex(ctx context.Context, name string, mapping docstore.Mapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.indices[name]; ok {
		return fmt.Errorf("%w: %s", docstore.ErrIndexExists, name)
	}
	fields := make(map[string]docstore.FieldType, len(mapping.Fields))
	for k, v := range mapping.Fields {
		fields[k] = v
	}
	s.indices[name] = &index{
		mapping: docstore.Mapping{Fields: fields, Settings: mapping.Settings},
		docs:    make(map[string]map[string]any),
	}
	return nil
}

func (s *Store) DeleteIndex(ctx context.Context, names ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range names {
		if docstore.IsPattern(name) {
			matched, _ := s.resolve(name)
			for _, m := range matched {
				delete(s.indices, m)
			}
			continue
		}
		delete(s.indices, name)
	}
	return nil
}

func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.indices[name]
	return ok, nil
}

func (s *Store) ListIndices(ctx context.Context, pattern string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if pattern == "" {
		pattern = "*"
	}
	if !docstore.IsPattern(pattern) {
		if _, ok := s.indices[pattern]; ok {
			return []string{pattern}, nil
		}
		return nil, nil
	}
	return s.resolve(pattern)
}

func (s *Store) GetMapping(ctx context.Context, name string) (docstore.Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.indices[name]
	if !ok {
		return docstore.Mapping{}, fmt.Errorf("%w: %s", docstore.ErrIndexNotFound, name)
	}
	fields := make(map[string]docstore.FieldType, len(idx.mapping.Fields))
	for k, v := range idx.mapping.Fields {
		fields[k] = v
	}
	return docstore.Mapping{Fields: fields, Settings: idx.mapping.Settings}, nil
}

func (s *Store) PutMapping(ctx context.Context, name string, fields map[string]docstore.FieldType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.indices[name]
	if !ok {
		return fmt.Errorf("%w: %s", docstore.ErrIndexNotFound, name)
	}
	for field, typ := range fields {
		if existing, ok := idx.mapping.Fields[field]; ok && existing != typ {
			return fmt.Errorf("%w: %s.%s is %s, not %s", docstore.ErrMappingConflict, name, field, existing, typ)
		}
	}
	for field, typ := range fields {
		idx.mapping.Fields[field] = typ
	}
	return nil
}

// Count returns the number of documents in an index. Tests use it.
func (s *Store) Count(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx, ok := s.indices[name]; ok {
		return len(idx.docs)
	}
	return 0
}

// Get returns a copy of one document.
func (s *Store) Get(name, id string) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.indices[name]
	if !ok {
		return nil, false
	}
	doc, ok := idx.docs[id]
	if !ok {
		return nil, false
	}
	return docstore.CloneDoc(doc), true
}

func matches(f docstore.Filter, id string, doc map[string]any) bool {
	switch f.Op {
	case "", docstore.FilterMatchAll:
		return true
	case docstore.FilterAnd:
		for _, c := range f.Children {
			if !matches(c, id, doc) {
				return false
			}
		}
		return true
	case docstore.FilterOr:
		for _, c := range f.Children {
			if matches(c, id, doc) {
				return true
			}
		}
		return false
	case docstore.FilterNot:
		for _, c := range f.Children {
			if matches(c, id, doc) {
				return false
			}
		}
		return true
	}

	values := fieldValues(id, doc, f.Field)
	switch f.Op {
	case docstore.FilterExists:
		return len(values) > 0
	case docstore.FilterTerm, docstore.FilterTerms:
		for _, v := range values {
			for _, want := range f.Values {
				if docstore.Equal(v, want) {
					return true
				}
			}
		}
		return false
	case docstore.FilterPrefix:
		p, _ := f.Values[0].(string)
		for _, v := range values {
			if s, ok := v.(string); ok && strings.HasPrefix(s, p) {
				return true
			}
		}
		return false
	case docstore.FilterRange:
		for _, v := range values {
			if inRange(v, f.Range) {
				return true
			}
		}
		return false
	}
	return false
}

// fieldValues flattens a field into its non-null scalar values.
func fieldValues(id string, doc map[string]any, field string) []any {
	if field == docstore.FieldDocID {
		return []any{id}
	}
	v, ok := docstore.GetPath(doc, field)
	if !ok || v == nil {
		return nil
	}
	return flatten(v, nil)
}

func flatten(v any, out []any) []any {
	switch t := v.(type) {
	case nil:
		return out
	case []any:
		for _, e := range t {
			out = flatten(e, out)
		}
		return out
	case []string:
		for _, e := range t {
			out = append(out, e)
		}
		return out
	case []int64:
		for _, e := range t {
			out = append(out, e)
		}
		return out
	default:
		return append(out, v)
	}
}

func inRange(v any, b docstore.Bounds) bool {
	if b.Gt != nil && docstore.Compare(v, b.Gt) <= 0 {
		return false
	}
	if b.Gte != nil && docstore.Compare(v, b.Gte) < 0 {
		return false
	}
	if b.Lt != nil && docstore.Compare(v, b.Lt) >= 0 {
		return false
	}
	if b.Lte != nil && docstore.Compare(v, b.Lte) > 0 {
		return false
	}
	return true
}
