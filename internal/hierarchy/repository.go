package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/syntrixbase/inventory/internal/core/docstore"
	"github.com/syntrixbase/inventory/internal/inventory/mapping"
	"github.com/syntrixbase/inventory/internal/inventory/model"
)

// DefaultChunkSize bounds the number of ids in one terms lookup.
const DefaultChunkSize = 1000

// Repository reads and writes the hierarchy indices.
type Repository struct {
	store     docstore.Store
	indices   model.Indices
	chunkSize int
}

// NewRepository returns a Repository over store.
func NewRepository(store docstore.Store, indices model.Indices) *Repository {
	return &Repository{store: store, indices: indices, chunkSize: DefaultChunkSize}
}

// WithChunkSize overrides the terms lookup chunk size.
func (r *Repository) WithChunkSize(n int) *Repository {
	if n > 0 {
		r.chunkSize = n
	}
	return r
}

// EnsureIndices creates the hierarchy indices that do not exist yet.
func (r *Repository) EnsureIndices(ctx context.Context) error {
	for name, m := range map[string]docstore.Mapping{
		r.indices.HierarchyLevels():   mapping.HierarchyLevels(),
		r.indices.HierarchyNodes():    mapping.HierarchyNodes(),
		r.indices.HierarchyNodeData(): mapping.HierarchyNodeData(),
	} {
		err := r.store.CreateIndex(ctx, name, m)
		if err != nil && !errors.Is(err, docstore.ErrIndexExists) {
			return fmt.Errorf("create index %s: %w", name, err)
		}
	}
	return nil
}

// PutLevels indexes level definitions.
func (r *Repository) PutLevels(ctx context.Context, levels ...Level) error {
	actions := make([]docstore.Action, 0, len(levels))
	for _, l := range levels {
		actions = append(actions, docstore.IndexAction(r.indices.HierarchyLevels(), model.DocID(l.ID), l.Source()))
	}
	return r.bulk(ctx, actions)
}

// PutNodes indexes nodes.
func (r *Repository) PutNodes(ctx context.Context, nodes ...Node) error {
	actions := make([]docstore.Action, 0, len(nodes))
	for _, n := range nodes {
		actions = append(actions, docstore.IndexAction(r.indices.HierarchyNodes(), n.ID, n.Source()))
	}
	return r.bulk(ctx, actions)
}

// PutNodeData indexes join rows.
func (r *Repository) PutNodeData(ctx context.Context, rows ...NodeData) error {
	actions := make([]docstore.Action, 0, len(rows))
	for _, d := range rows {
		actions = append(actions, docstore.IndexAction(r.indices.HierarchyNodeData(), d.docID(), d.Source()))
	}
	return r.bulk(ctx, actions)
}

func (r *Repository) bulk(ctx context.Context, actions []docstore.Action) error {
	if len(actions) == 0 {
		return nil
	}
	_, err := r.store.Bulk(ctx, actions, true)
	return err
}

// Levels returns the levels of a hierarchy ordered by depth.
func (r *Repository) Levels(ctx context.Context, hierarchyID int64) ([]Level, error) {
	var out []Level
	req := docstore.SearchRequest{
		Index:  r.indices.HierarchyLevels(),
		Filter: docstore.Term(fieldHierarchyID, hierarchyID),
		Sort:   []docstore.SortField{{Field: fieldLevel}, {Field: fieldID}},
		Size:   r.chunkSize,
	}
	err := docstore.ScanAll(ctx, r.store, req, func(hits []docstore.Hit) error {
		for _, h := range hits {
			out = append(out, LevelFromSource(h.Source))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load levels of hierarchy %d: %w", hierarchyID, err)
	}
	return out, nil
}

// Nodes returns the nodes of a level. When restricted is set only nodes
// whose parent is one of parents are returned.
func (r *Repository) Nodes(ctx context.Context, levelID int64, parents []string, restricted bool) ([]Node, error) {
	base := docstore.Term(fieldLevelID, levelID)
	if !restricted {
		return r.scanNodes(ctx, base)
	}
	var out []Node
	for _, chunk := range chunks(parents, r.chunkSize) {
		nodes, err := r.scanNodes(ctx, docstore.And(base, docstore.TermsString(fieldParentID, chunk)))
		if err != nil {
			return nil, err
		}
		out = append(out, nodes...)
	}
	return out, nil
}

func (r *Repository) scanNodes(ctx context.Context, filter docstore.Filter) ([]Node, error) {
	var out []Node
	req := docstore.SearchRequest{
		Index:  r.indices.HierarchyNodes(),
		Filter: filter,
		Size:   r.chunkSize,
	}
	err := docstore.ScanAll(ctx, r.store, req, func(hits []docstore.Hit) error {
		for _, h := range hits {
			out = append(out, NodeFromSource(h.Source))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load nodes: %w", err)
	}
	return out, nil
}

// NodeData returns the object ids joined to each of nodeIDs.
func (r *Repository) NodeData(ctx context.Context, nodeIDs []string) (map[string][]int64, error) {
	out := make(map[string][]int64, len(nodeIDs))
	for _, chunk := range chunks(nodeIDs, r.chunkSize) {
		req := docstore.SearchRequest{
			Index:   r.indices.HierarchyNodeData(),
			Filter:  docstore.TermsString(fieldNodeID, chunk),
			Include: []string{fieldNodeID, fieldMOID},
			Size:    r.chunkSize,
		}
		err := docstore.ScanAll(ctx, r.store, req, func(hits []docstore.Hit) error {
			for _, h := range hits {
				d := NodeDataFromSource(h.Source)
				out[d.NodeID] = append(out[d.NodeID], d.MOID)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("load node data: %w", err)
		}
	}
	return out, nil
}

// ChildCounts counts the live children of parents, limited to the given
// child levels when levelIDs is not empty.
func (r *Repository) ChildCounts(ctx context.Context, parents []string, levelIDs []int64) (map[string]int64, error) {
	out := make(map[string]int64, len(parents))
	for _, chunk := range chunks(parents, r.chunkSize) {
		filter := docstore.TermsString(fieldParentID, chunk)
		if len(levelIDs) > 0 {
			filter = docstore.And(filter, docstore.TermsInt64(fieldLevelID, levelIDs))
		}
		buckets, err := r.store.Aggregate(ctx, docstore.AggRequest{
			Index:   r.indices.HierarchyNodes(),
			Filter:  filter,
			GroupBy: fieldParentID,
		})
		if err != nil {
			return nil, fmt.Errorf("count children: %w", err)
		}
		for _, b := range buckets {
			if id, ok := b.Key.(string); ok {
				out[id] += b.Count
			}
		}
	}
	return out, nil
}

// RecountChildren rewrites child_count of nodeIDs from the live node index.
func (r *Repository) RecountChildren(ctx context.Context, nodeIDs []string) error {
	counts, err := r.ChildCounts(ctx, nodeIDs, nil)
	if err != nil {
		return err
	}
	actions := make([]docstore.Action, 0, len(nodeIDs))
	for _, id := range nodeIDs {
		actions = append(actions, docstore.UpdateAction(r.indices.HierarchyNodes(), id, map[string]any{
			fieldChildCount: counts[id],
		}))
	}
	if err := docstore.IgnoreMissing(r.bulk(ctx, actions)); err != nil {
		return fmt.Errorf("update child counts: %w", err)
	}
	return nil
}

// ChildrenPage is one page of the unfiltered children of a node.
type ChildrenPage struct {
	Nodes []Node `json:"nodes"`
	// Next is the search-after cursor of the following page, nil on the
	// last page.
	Next []any `json:"next,omitempty"`
}

// Children pages through the direct children of parentID ordered by key.
// An empty parentID pages through the root nodes of the hierarchy.
func (r *Repository) Children(ctx context.Context, hierarchyID int64, parentID string, size int, after []any) (*ChildrenPage, error) {
	if size <= 0 {
		size = r.chunkSize
	}
	parent := docstore.Not(docstore.Exists(fieldParentID))
	if parentID != "" {
		parent = docstore.Term(fieldParentID, parentID)
	}
	res, err := r.store.Search(ctx, docstore.SearchRequest{
		Index:       r.indices.HierarchyNodes(),
		Filter:      docstore.And(docstore.Term(fieldHierarchyID, hierarchyID), parent),
		Sort:        []docstore.SortField{{Field: fieldKey}, {Field: docstore.FieldDocID}},
		Size:        size,
		SearchAfter: after,
	})
	if err != nil {
		return nil, fmt.Errorf("load children: %w", err)
	}
	page := &ChildrenPage{Nodes: make([]Node, 0, len(res.Hits))}
	for _, h := range res.Hits {
		page.Nodes = append(page.Nodes, NodeFromSource(h.Source))
	}
	if len(res.Hits) == size {
		page.Next = res.Hits[len(res.Hits)-1].Sort
	}
	return page, nil
}

func chunks(ids []string, n int) [][]string {
	if len(ids) == 0 {
		return nil
	}
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	var out [][]string
	for start := 0; start < len(sorted); start += n {
		out = append(out, sorted[start:min(start+n, len(sorted))])
	}
	return out
}
