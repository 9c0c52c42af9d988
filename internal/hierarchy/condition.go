package hierarchy

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/syntrixbase/inventory/internal/core/docstore"
)

// Condition restricts the objects of one level. Filter runs in the
// document store; Expression is a CEL predicate over the variable
// "object", the stored object document, evaluated on the candidates.
type Condition struct {
	LevelID    int64           `json:"level_id"`
	Filter     docstore.Filter `json:"filter"`
	Expression string          `json:"expression,omitempty"`
}

// Aggregation computes one value per surviving target node from the
// objects of LevelID, which is the target level or one of its descendants.
// Count ignores Field when it is empty.
type Aggregation struct {
	Name    string            `json:"name"`
	LevelID int64             `json:"level_id"`
	Op      docstore.MetricOp `json:"op"`
	Field   string            `json:"field,omitempty"`
}

// FilterRequest selects the nodes of LevelID that survive Conditions.
type FilterRequest struct {
	HierarchyID  int64         `json:"hierarchy_id"`
	LevelID      int64         `json:"level_id"`
	Conditions   []Condition   `json:"conditions,omitempty"`
	Aggregations []Aggregation `json:"aggregations,omitempty"`

	// Object page of the target level.
	Sort        []docstore.SortField `json:"sort,omitempty"`
	Size        int                  `json:"size,omitempty"`
	SearchAfter []any                `json:"search_after,omitempty"`
	// Exclude drops object fields the caller may not see.
	Exclude []string `json:"exclude,omitempty"`
}

// NodeResult is a surviving node with its aggregates.
type NodeResult struct {
	Node
	Aggregates map[string]any `json:"aggregates,omitempty"`
}

// FilterResult holds the surviving nodes of the target level and one page
// of their objects.
type FilterResult struct {
	Nodes   []NodeResult   `json:"nodes"`
	Objects []docstore.Hit `json:"objects"`
	Total   int64          `json:"total"`
}

type condition struct {
	filter  docstore.Filter
	program cel.Program
}

// compiler turns condition expressions into CEL programs.
type compiler struct {
	env *cel.Env
}

func newCompiler() (*compiler, error) {
	env, err := cel.NewEnv(
		cel.Variable("object", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return &compiler{env: env}, nil
}

func (c *compiler) compile(cond Condition) (condition, error) {
	out := condition{filter: cond.Filter}
	if cond.Expression == "" {
		return out, nil
	}
	ast, issues := c.env.Compile(cond.Expression)
	if issues != nil && issues.Err() != nil {
		return out, fmt.Errorf("%w: level %d: CEL compile error: %v", ErrInvalidRequest, cond.LevelID, issues.Err())
	}
	if t := ast.OutputType(); !t.IsExactType(cel.BoolType) && !t.IsExactType(cel.DynType) {
		return out, fmt.Errorf("%w: level %d: expression must be boolean, got %s", ErrInvalidRequest, cond.LevelID, ast.OutputType())
	}
	prg, err := c.env.Program(ast)
	if err != nil {
		return out, fmt.Errorf("CEL program creation error: %w", err)
	}
	out.program = prg
	return out, nil
}

// accepts evaluates the expression against an object document. Evaluation
// errors, such as a missing key, reject the object.
func (c condition) accepts(doc map[string]any) bool {
	if c.program == nil {
		return true
	}
	out, _, err := c.program.Eval(map[string]any{"object": doc})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

// accumulator holds the running aggregates of one node.
type accumulator map[string]any

func (a accumulator) add(agg Aggregation, doc map[string]any) {
	if agg.Op == docstore.MetricCount && agg.Field == "" {
		a.merge(agg, int64(1))
		return
	}
	v, ok := docstore.GetPath(doc, agg.Field)
	if !ok || v == nil {
		return
	}
	elems := []any{v}
	if arr, ok := v.([]any); ok {
		elems = arr
	}
	for _, e := range elems {
		switch agg.Op {
		case docstore.MetricCount:
			a.merge(agg, int64(1))
		case docstore.MetricSum:
			if f, ok := docstore.AsFloat(e); ok {
				a.merge(agg, f)
			}
		default:
			a.merge(agg, e)
		}
	}
}

// merge folds a partial value of agg into a.
func (a accumulator) merge(agg Aggregation, v any) {
	cur, seen := a[agg.Name]
	if !seen {
		a[agg.Name] = v
		return
	}
	switch agg.Op {
	case docstore.MetricCount:
		a[agg.Name] = cur.(int64) + v.(int64)
	case docstore.MetricSum:
		a[agg.Name] = cur.(float64) + v.(float64)
	case docstore.MetricMin:
		if docstore.Compare(v, cur) < 0 {
			a[agg.Name] = v
		}
	case docstore.MetricMax:
		if docstore.Compare(v, cur) > 0 {
			a[agg.Name] = v
		}
	}
}

func (a accumulator) mergeAll(aggs []Aggregation, other accumulator) {
	for _, agg := range aggs {
		if v, ok := other[agg.Name]; ok {
			a.merge(agg, v)
		}
	}
}
