package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/syntrixbase/inventory/internal/core/docstore"
	"github.com/syntrixbase/inventory/internal/inventory/model"
)

// Engine evaluates filter requests against one document store.
type Engine struct {
	repo     *Repository
	store    docstore.Store
	indices  model.Indices
	compiler *compiler
	logger   *slog.Logger
}

// NewEngine returns an Engine reading through repo.
func NewEngine(store docstore.Store, repo *Repository, indices model.Indices, logger *slog.Logger) (*Engine, error) {
	c, err := newCompiler()
	if err != nil {
		return nil, err
	}
	return &Engine{
		repo:     repo,
		store:    store,
		indices:  indices,
		compiler: c,
		logger:   logger.With("component", "hierarchy"),
	}, nil
}

// Children pages through the direct children of a node without filtering.
func (e *Engine) Children(ctx context.Context, hierarchyID int64, parentID string, size int, after []any) (*ChildrenPage, error) {
	return e.repo.Children(ctx, hierarchyID, parentID, size, after)
}

// Filter evaluates req. Requests whose conditions sit on one root-to-leaf
// path are evaluated depth by depth; requests that need same-level parents
// or fan out over sibling levels use the recursive traversal.
func (e *Engine) Filter(ctx context.Context, req FilterRequest) (*FilterResult, error) {
	p, err := e.plan(ctx, req)
	if err != nil {
		return nil, err
	}
	if p.linear() {
		return e.filterChain(ctx, p)
	}
	return e.filterRecursive(ctx, p)
}

// plan is a validated request bound to the hierarchy's levels.
type plan struct {
	req      FilterRequest
	levels   map[int64]Level
	roots    []Level
	children map[int64][]Level
	target   Level
	conds    map[int64][]condition
	aggs     map[int64][]Aggregation
	allAggs  []Aggregation
	relevant map[int64]bool
}

func (e *Engine) plan(ctx context.Context, req FilterRequest) (*plan, error) {
	levels, err := e.repo.Levels(ctx, req.HierarchyID)
	if err != nil {
		return nil, err
	}
	p := &plan{
		req:      req,
		levels:   make(map[int64]Level, len(levels)),
		children: make(map[int64][]Level),
		conds:    make(map[int64][]condition),
		aggs:     make(map[int64][]Aggregation),
		allAggs:  req.Aggregations,
		relevant: make(map[int64]bool),
	}
	for _, l := range levels {
		p.levels[l.ID] = l
	}
	for _, l := range levels {
		if l.ParentID == nil {
			p.roots = append(p.roots, l)
			continue
		}
		if _, ok := p.levels[*l.ParentID]; !ok {
			return nil, fmt.Errorf("%w: level %d has unknown parent %d", ErrInvalidRequest, l.ID, *l.ParentID)
		}
		p.children[*l.ParentID] = append(p.children[*l.ParentID], l)
	}

	target, ok := p.levels[req.LevelID]
	if !ok {
		return nil, fmt.Errorf("%w: level %d in hierarchy %d", ErrLevelNotFound, req.LevelID, req.HierarchyID)
	}
	p.target = target

	for _, c := range req.Conditions {
		l, ok := p.levels[c.LevelID]
		if !ok {
			return nil, fmt.Errorf("%w: condition level %d", ErrLevelNotFound, c.LevelID)
		}
		if l.IsVirtual {
			return nil, fmt.Errorf("%w: level %d is virtual and has no objects to filter", ErrInvalidRequest, l.ID)
		}
		cond, err := e.compiler.compile(c)
		if err != nil {
			return nil, err
		}
		p.conds[c.LevelID] = append(p.conds[c.LevelID], cond)
	}

	names := make(map[string]bool, len(req.Aggregations))
	for _, a := range req.Aggregations {
		if a.Name == "" || names[a.Name] {
			return nil, fmt.Errorf("%w: aggregation names must be unique and not empty", ErrInvalidRequest)
		}
		names[a.Name] = true
		switch a.Op {
		case docstore.MetricCount:
		case docstore.MetricMin, docstore.MetricMax, docstore.MetricSum:
			if a.Field == "" {
				return nil, fmt.Errorf("%w: aggregation %q needs a field", ErrInvalidRequest, a.Name)
			}
		default:
			return nil, fmt.Errorf("%w: aggregation %q has unknown op %q", ErrInvalidRequest, a.Name, a.Op)
		}
		if _, ok := p.levels[a.LevelID]; !ok {
			return nil, fmt.Errorf("%w: aggregation level %d", ErrLevelNotFound, a.LevelID)
		}
		if !p.isDescendant(a.LevelID, target.ID) {
			return nil, fmt.Errorf("%w: aggregation %q must sit on the target level or below it", ErrInvalidRequest, a.Name)
		}
		p.aggs[a.LevelID] = append(p.aggs[a.LevelID], a)
	}

	for _, r := range p.roots {
		p.markRelevant(r)
	}
	return p, nil
}

// isDescendant reports whether level id is ancestor or one of its
// descendants.
func (p *plan) isDescendant(id, ancestor int64) bool {
	for {
		if id == ancestor {
			return true
		}
		l := p.levels[id]
		if l.ParentID == nil {
			return false
		}
		id = *l.ParentID
	}
}

// markRelevant flags levels whose subtree holds the target, a condition or
// an aggregation. Only those are visited.
func (p *plan) markRelevant(l Level) bool {
	rel := l.ID == p.target.ID || len(p.conds[l.ID]) > 0 || len(p.aggs[l.ID]) > 0
	for _, c := range p.children[l.ID] {
		if p.markRelevant(c) {
			rel = true
		}
	}
	p.relevant[l.ID] = rel
	return rel
}

func (p *plan) relevantOf(levels []Level) []Level {
	var out []Level
	for _, l := range levels {
		if p.relevant[l.ID] {
			out = append(out, l)
		}
	}
	return out
}

// linear reports whether the visited levels form a single chain without
// same-level parents.
func (p *plan) linear() bool {
	if len(p.relevantOf(p.roots)) != 1 {
		return false
	}
	for id, rel := range p.relevant {
		if !rel {
			continue
		}
		if p.levels[id].SameLevelParent || len(p.relevantOf(p.children[id])) > 1 {
			return false
		}
	}
	return true
}

// match joins nodes to their objects and applies the level's conditions.
// It returns the object ids per surviving node and the surviving nodes.
func (e *Engine) match(ctx context.Context, p *plan, l Level, nodes []Node) (map[string][]int64, []Node, error) {
	perNode, err := e.repo.NodeData(ctx, nodeIDs(nodes))
	if err != nil {
		return nil, nil, err
	}
	conds := p.conds[l.ID]
	if len(conds) == 0 {
		return perNode, nodes, nil
	}

	var moIDs []int64
	for _, ids := range perNode {
		moIDs = append(moIDs, ids...)
	}
	passed := make(map[int64]bool, len(moIDs))
	err = e.objects(ctx, l, moIDs, conds, nil, func(id int64, _ map[string]any) {
		passed[id] = true
	})
	if err != nil {
		return nil, nil, err
	}

	out := make(map[string][]int64, len(perNode))
	var kept []Node
	for _, n := range nodes {
		var ids []int64
		for _, id := range perNode[n.ID] {
			if passed[id] {
				ids = append(ids, id)
			}
		}
		if len(ids) > 0 {
			out[n.ID] = ids
			kept = append(kept, n)
		}
	}
	return out, kept, nil
}

// objects streams the objects of l among ids that pass conds to fn.
// A level whose object index does not exist yet has no objects.
func (e *Engine) objects(ctx context.Context, l Level, ids []int64, conds []condition, include []string, fn func(int64, map[string]any)) error {
	if len(ids) == 0 {
		return nil
	}
	ids = uniqueInt64(ids)
	filters := make([]docstore.Filter, 0, len(conds)+1)
	for _, c := range conds {
		if !c.filter.IsMatchAll() {
			filters = append(filters, c.filter)
		}
	}
	for start := 0; start < len(ids); start += e.repo.chunkSize {
		chunk := ids[start:min(start+e.repo.chunkSize, len(ids))]
		req := docstore.SearchRequest{
			Index:   e.indices.Object(l.ObjectTypeID),
			Filter:  docstore.And(append(filters, docstore.TermsInt64(model.FieldID, chunk))...),
			Include: include,
			Size:    e.repo.chunkSize,
		}
		err := docstore.ScanAll(ctx, e.store, req, func(hits []docstore.Hit) error {
			for _, h := range hits {
				if !acceptsAll(conds, h.Source) {
					continue
				}
				if id, ok := model.AsInt64(h.Source[model.FieldID]); ok {
					fn(id, h.Source)
				}
			}
			return nil
		})
		if errors.Is(err, docstore.ErrIndexNotFound) {
			e.logger.Debug("Object index missing for level", "level_id", l.ID, "tmo_id", l.ObjectTypeID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("load objects of level %d: %w", l.ID, err)
		}
	}
	return nil
}

func acceptsAll(conds []condition, doc map[string]any) bool {
	for _, c := range conds {
		if !c.accepts(doc) {
			return false
		}
	}
	return true
}

// aggregate computes the aggregations attached to l for each node.
func (e *Engine) aggregate(ctx context.Context, p *plan, l Level, nodes []Node, perNode map[string][]int64) (map[string]accumulator, error) {
	aggs := p.aggs[l.ID]
	if len(aggs) == 0 {
		return nil, nil
	}
	include := []string{model.FieldID}
	var ids []int64
	for _, n := range nodes {
		ids = append(ids, perNode[n.ID]...)
	}
	for _, a := range aggs {
		if a.Field != "" {
			include = append(include, a.Field)
		}
	}
	docs := make(map[int64]map[string]any, len(ids))
	err := e.objects(ctx, l, ids, nil, include, func(id int64, doc map[string]any) {
		docs[id] = doc
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]accumulator, len(nodes))
	for _, n := range nodes {
		acc := accumulator{}
		for _, id := range perNode[n.ID] {
			doc, ok := docs[id]
			if !ok {
				continue
			}
			for _, a := range aggs {
				acc.add(a, doc)
			}
		}
		out[n.ID] = acc
	}
	return out, nil
}

// materialize builds the result of the target level from its surviving
// nodes. counts holds the surviving children of the visited child levels;
// other child levels are counted live.
func (e *Engine) materialize(ctx context.Context, p *plan, nodes []Node, perNode map[string][]int64, acc map[string]accumulator, counts map[string]int64, visited map[int64]bool) (*FilterResult, error) {
	l := p.target
	ids := nodeIDs(nodes)
	var unvisited []int64
	for _, c := range p.children[l.ID] {
		if !visited[c.ID] {
			unvisited = append(unvisited, c.ID)
		}
	}
	total := make(map[string]int64, len(nodes))
	for id, n := range counts {
		total[id] += n
	}
	if len(unvisited) > 0 {
		live, err := e.repo.ChildCounts(ctx, ids, unvisited)
		if err != nil {
			return nil, err
		}
		for id, n := range live {
			total[id] += n
		}
	}
	tracksChildren := len(p.children[l.ID]) > 0 || l.SameLevelParent

	res := &FilterResult{Nodes: make([]NodeResult, 0, len(nodes))}
	var moIDs []int64
	for _, n := range nodes {
		n.ChildCount = total[n.ID]
		if tracksChildren && !l.ShowWithoutChildren && n.ChildCount == 0 {
			continue
		}
		r := NodeResult{Node: n}
		if len(p.allAggs) > 0 {
			r.Aggregates = map[string]any{}
			for _, a := range p.allAggs {
				if v, ok := acc[n.ID][a.Name]; ok {
					r.Aggregates[a.Name] = v
				} else if a.Op == docstore.MetricCount {
					r.Aggregates[a.Name] = int64(0)
				}
			}
		}
		res.Nodes = append(res.Nodes, r)
		moIDs = append(moIDs, perNode[n.ID]...)
	}
	sort.Slice(res.Nodes, func(i, j int) bool {
		if res.Nodes[i].Key != res.Nodes[j].Key {
			return res.Nodes[i].Key < res.Nodes[j].Key
		}
		return res.Nodes[i].ID < res.Nodes[j].ID
	})

	if l.IsVirtual || len(moIDs) == 0 {
		res.Objects = []docstore.Hit{}
		return res, nil
	}
	sortFields := p.req.Sort
	if len(sortFields) == 0 {
		sortFields = []docstore.SortField{{Field: model.FieldID}}
	}
	page, err := e.store.Search(ctx, docstore.SearchRequest{
		Index:       e.indices.Object(l.ObjectTypeID),
		Filter:      docstore.TermsInt64(model.FieldID, uniqueInt64(moIDs)),
		Sort:        sortFields,
		Exclude:     p.req.Exclude,
		Size:        p.req.Size,
		SearchAfter: p.req.SearchAfter,
		TrackTotal:  true,
	})
	if errors.Is(err, docstore.ErrIndexNotFound) {
		res.Objects = []docstore.Hit{}
		return res, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load objects of level %d: %w", l.ID, err)
	}
	res.Objects = page.Hits
	res.Total = page.Total
	return res, nil
}

func nodeIDs(nodes []Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}

func uniqueInt64(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
