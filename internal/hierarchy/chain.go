package hierarchy

import "context"

// step is the state of one depth of a chain traversal.
type step struct {
	level    Level
	nodes    []Node
	perNode  map[string][]int64
	filtered bool
}

// filterChain walks a single chain of levels from the root down to the
// deepest visited level.
//
// Going down, each depth keeps the nodes whose parent survived the depth
// above (once anything above has filtered) and whose objects pass the
// depth's conditions. Going back up from the deepest filtered depth, nodes
// without a surviving child are dropped. Aggregates below the target are
// re-keyed by parent until they reach their target ancestor.
func (e *Engine) filterChain(ctx context.Context, p *plan) (*FilterResult, error) {
	chain := p.chain()
	targetDepth := 0
	for i, l := range chain {
		if l.ID == p.target.ID {
			targetDepth = i
		}
	}

	steps := make([]step, len(chain))
	var (
		parents    []string
		restricted bool
	)
	for i, l := range chain {
		if i < targetDepth && len(p.conds[l.ID]) == 0 {
			// Pass-through ancestor: only its structure matters.
			if !restricted {
				steps[i] = step{level: l}
				continue
			}
			nodes, err := e.repo.Nodes(ctx, l.ID, parents, true)
			if err != nil {
				return nil, err
			}
			steps[i] = step{level: l, nodes: nodes}
			parents = nodeIDs(nodes)
			continue
		}
		nodes, err := e.repo.Nodes(ctx, l.ID, parents, restricted)
		if err != nil {
			return nil, err
		}
		perNode, kept, err := e.match(ctx, p, l, nodes)
		if err != nil {
			return nil, err
		}
		steps[i] = step{level: l, nodes: kept, perNode: perNode, filtered: len(p.conds[l.ID]) > 0}
		if steps[i].filtered || i >= targetDepth {
			restricted = true
		}
		parents = nodeIDs(kept)
	}

	filteredBelow := false
	for i := len(steps) - 1; i >= targetDepth; i-- {
		if filteredBelow {
			steps[i].nodes = withChildren(steps[i].nodes, steps[i+1].nodes)
		}
		if steps[i].filtered {
			filteredBelow = true
		}
	}

	owner := make(map[string]string)
	acc := make(map[string]accumulator)
	for i := targetDepth; i < len(steps); i++ {
		s := steps[i]
		for _, n := range s.nodes {
			if i == targetDepth {
				owner[n.ID] = n.ID
				acc[n.ID] = accumulator{}
			} else {
				owner[n.ID] = owner[n.ParentID]
			}
		}
		values, err := e.aggregate(ctx, p, s.level, s.nodes, s.perNode)
		if err != nil {
			return nil, err
		}
		for id, a := range values {
			if top, ok := acc[owner[id]]; ok {
				top.mergeAll(p.allAggs, a)
			}
		}
	}

	counts := make(map[string]int64)
	visited := make(map[int64]bool)
	if targetDepth+1 < len(steps) {
		child := steps[targetDepth+1]
		visited[child.level.ID] = true
		for _, n := range child.nodes {
			counts[n.ParentID]++
		}
	}
	target := steps[targetDepth]
	return e.materialize(ctx, p, target.nodes, target.perNode, acc, counts, visited)
}

// chain lists the visited levels from the root down.
func (p *plan) chain() []Level {
	var out []Level
	next := p.relevantOf(p.roots)
	for len(next) == 1 {
		out = append(out, next[0])
		next = p.relevantOf(p.children[next[0].ID])
	}
	return out
}

// withChildren keeps the nodes that parent at least one of children.
func withChildren(nodes, children []Node) []Node {
	has := make(map[string]bool, len(children))
	for _, c := range children {
		has[c.ParentID] = true
	}
	var out []Node
	for _, n := range nodes {
		if has[n.ID] {
			out = append(out, n)
		}
	}
	return out
}
