package hierarchy

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// branch is what a visited level reports to its parent level.
type branch struct {
	// result is set by the branch holding the target level.
	result *FilterResult
	// filtered is set when the branch restricts its parent level.
	filtered bool
	// parents holds the parent node ids with a surviving descendant.
	parents map[string]bool
	// counts holds the surviving nodes per parent node id.
	counts map[string]int64
	// acc holds aggregates re-keyed by parent node id.
	acc map[string]accumulator
}

// filterRecursive visits the levels top-down and merges the branches
// bottom-up. Sibling child levels are visited concurrently; the first
// failure cancels the others.
func (e *Engine) filterRecursive(ctx context.Context, p *plan) (*FilterResult, error) {
	branches, err := e.fanOut(ctx, p, p.roots, nil, false)
	if err != nil {
		return nil, err
	}
	for _, b := range branches {
		if b.result != nil {
			return b.result, nil
		}
	}
	return nil, fmt.Errorf("%w: level %d was not reached", ErrInvalidRequest, p.target.ID)
}

func (e *Engine) fanOut(ctx context.Context, p *plan, levels []Level, parents []string, restricted bool) ([]branch, error) {
	visit := p.relevantOf(levels)
	out := make([]branch, len(visit))
	g, gctx := errgroup.WithContext(ctx)
	for i, l := range visit {
		g.Go(func() error {
			b, err := e.walk(gctx, p, l, parents, restricted)
			if err != nil {
				return err
			}
			out[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// walk visits one level and its relevant descendants.
func (e *Engine) walk(ctx context.Context, p *plan, l Level, parents []string, restricted bool) (branch, error) {
	nodes, err := e.levelNodes(ctx, l, parents, restricted)
	if err != nil {
		return branch{}, err
	}
	perNode, kept, err := e.match(ctx, p, l, nodes)
	if err != nil {
		return branch{}, err
	}
	ownFiltered := len(p.conds[l.ID]) > 0
	isTarget := l.ID == p.target.ID

	down := restricted || ownFiltered || isTarget
	var childParents []string
	if down {
		childParents = nodeIDs(kept)
	}
	children, err := e.fanOut(ctx, p, p.children[l.ID], childParents, down)
	if err != nil {
		return branch{}, err
	}
	for _, c := range children {
		if c.result != nil {
			return c, nil
		}
	}

	filteredBelow := false
	satisfied := make(map[string]bool)
	for _, c := range children {
		if c.filtered {
			filteredBelow = true
			for id := range c.parents {
				satisfied[id] = true
			}
		}
	}
	if filteredBelow {
		kept = keepSatisfied(l, kept, satisfied)
	}

	counts := make(map[string]int64)
	for _, c := range children {
		for id, n := range c.counts {
			counts[id] += n
		}
	}
	if l.SameLevelParent {
		for _, n := range kept {
			counts[n.ParentID]++
		}
	}

	var acc map[string]accumulator
	if l.ID == p.target.ID || p.isDescendant(l.ID, p.target.ID) {
		acc, err = e.aggregate(ctx, p, l, kept, perNode)
		if err != nil {
			return branch{}, err
		}
		if acc == nil {
			acc = make(map[string]accumulator, len(kept))
		}
		for _, n := range kept {
			if acc[n.ID] == nil {
				acc[n.ID] = accumulator{}
			}
			for _, c := range children {
				if a, ok := c.acc[n.ID]; ok {
					acc[n.ID].mergeAll(p.allAggs, a)
				}
			}
		}
	}

	if isTarget {
		visited := make(map[int64]bool)
		for _, c := range p.relevantOf(p.children[l.ID]) {
			visited[c.ID] = true
		}
		res, err := e.materialize(ctx, p, kept, perNode, acc, counts, visited)
		if err != nil {
			return branch{}, err
		}
		return branch{result: res}, nil
	}

	b := branch{
		filtered: ownFiltered || filteredBelow,
		parents:  make(map[string]bool),
		counts:   make(map[string]int64),
		acc:      make(map[string]accumulator),
	}
	tops := topAncestors(l, kept)
	for _, n := range kept {
		b.counts[n.ParentID]++
		b.parents[tops[n.ID].ParentID] = true
	}
	for id, a := range acc {
		top, ok := tops[id]
		if !ok {
			continue
		}
		dst, ok := b.acc[top.ParentID]
		if !ok {
			dst = accumulator{}
			b.acc[top.ParentID] = dst
		}
		dst.mergeAll(p.allAggs, a)
	}
	return b, nil
}

// levelNodes loads the nodes of l under parents. Levels whose nodes may
// parent nodes of the same level are expanded until no new node appears.
func (e *Engine) levelNodes(ctx context.Context, l Level, parents []string, restricted bool) ([]Node, error) {
	nodes, err := e.repo.Nodes(ctx, l.ID, parents, restricted)
	if err != nil || !l.SameLevelParent || !restricted {
		return nodes, err
	}
	seen := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		seen[n.ID] = true
	}
	frontier := nodeIDs(nodes)
	for len(frontier) > 0 {
		next, err := e.repo.Nodes(ctx, l.ID, frontier, true)
		if err != nil {
			return nil, err
		}
		frontier = nil
		for _, n := range next {
			if !seen[n.ID] {
				seen[n.ID] = true
				nodes = append(nodes, n)
				frontier = append(frontier, n.ID)
			}
		}
	}
	return nodes, nil
}

// keepSatisfied keeps the nodes in satisfied. On same-level parent levels a
// node is also kept when one of its same-level descendants is.
func keepSatisfied(l Level, nodes []Node, satisfied map[string]bool) []Node {
	if l.SameLevelParent {
		byID := make(map[string]Node, len(nodes))
		for _, n := range nodes {
			byID[n.ID] = n
		}
		for changed := true; changed; {
			changed = false
			for id := range satisfied {
				n, ok := byID[id]
				if !ok {
					continue
				}
				if _, inLevel := byID[n.ParentID]; inLevel && !satisfied[n.ParentID] {
					satisfied[n.ParentID] = true
					changed = true
				}
			}
		}
	}
	var out []Node
	for _, n := range nodes {
		if satisfied[n.ID] {
			out = append(out, n)
		}
	}
	return out
}

// topAncestors maps each node to its highest ancestor within the same
// level, which is the node itself unless the level chains onto itself.
func topAncestors(l Level, nodes []Node) map[string]Node {
	byID := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	out := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		top := n
		if l.SameLevelParent {
			for hops := 0; hops < len(nodes); hops++ {
				parent, ok := byID[top.ParentID]
				if !ok {
					break
				}
				top = parent
			}
		}
		out[n.ID] = top
	}
	return out
}
