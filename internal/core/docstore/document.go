package docstore

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// GetPath reads a dotted path out of a document.
func GetPath(doc map[string]any, path string) (any, bool) {
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// SetPath writes v at a dotted path, creating intermediate objects.
func SetPath(doc map[string]any, path string, v any) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}

// DeletePath removes a dotted path.
func DeletePath(doc map[string]any, path string) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]any)
		if !ok {
			return
		}
		cur = next
	}
	delete(cur, parts[len(parts)-1])
}

// MergeDoc deep-merges partial into dst. Nested objects merge key by key,
// every other value replaces the stored one.
func MergeDoc(dst, partial map[string]any) {
	for k, v := range partial {
		if sub, ok := v.(map[string]any); ok {
			if existing, ok := dst[k].(map[string]any); ok {
				MergeDoc(existing, sub)
				continue
			}
		}
		dst[k] = CloneValue(v)
	}
}

// FlattenDoc turns a partial document into dotted paths, the way MergeDoc
// would apply it. Empty nested objects produce no path.
func FlattenDoc(partial map[string]any) map[string]any {
	out := make(map[string]any)
	flattenInto(out, "", partial)
	return out
}

func flattenInto(out map[string]any, prefix string, m map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			flattenInto(out, key, sub)
			continue
		}
		out[key] = v
	}
}

// ApplyUpdate applies the partial document of an OpUpdate action to doc.
func ApplyUpdate(doc map[string]any, a Action) {
	merged, replaced := splitReplaced(a)
	MergeDoc(doc, merged)
	for k, v := range replaced {
		doc[k] = CloneValue(v)
	}
}

// UpdatePaths renders an OpUpdate action as dotted paths to assign, matching
// ApplyUpdate. Replaced fields keep their whole value under one path.
func UpdatePaths(a Action) map[string]any {
	merged, replaced := splitReplaced(a)
	out := FlattenDoc(merged)
	for k, v := range replaced {
		out[k] = v
	}
	return out
}

func splitReplaced(a Action) (merged, replaced map[string]any) {
	if len(a.Replace) == 0 {
		return a.Doc, nil
	}
	merged = make(map[string]any, len(a.Doc))
	replaced = make(map[string]any, len(a.Replace))
	for k, v := range a.Doc {
		merged[k] = v
	}
	for _, f := range a.Replace {
		if v, ok := merged[f]; ok {
			replaced[f] = v
			delete(merged, f)
		}
	}
	return merged, replaced
}

// CloneDoc deep-copies a document.
func CloneDoc(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies maps and slices.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneDoc(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case []int64:
		return append([]int64(nil), t...)
	default:
		return v
	}
}

// ProjectSource applies include and exclude path lists to a document copy.
func ProjectSource(doc map[string]any, include, exclude []string) map[string]any {
	out := doc
	if len(include) > 0 {
		out = make(map[string]any)
		for _, path := range include {
			if v, ok := GetPath(doc, path); ok {
				SetPath(out, path, CloneValue(v))
			}
		}
	} else {
		out = CloneDoc(doc)
	}
	for _, path := range exclude {
		DeletePath(out, path)
	}
	return out
}

// AsFloat widens a numeric value.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case int, int32, int64, float32, float64:
		return 2
	case string:
		return 3
	case time.Time:
		return 4
	default:
		return 5
	}
}

// Compare orders two scalar values: nil, booleans, numbers, strings, times.
// Integers are compared exactly; mixed numerics are compared as floats.
func Compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch x := a.(type) {
	case nil:
		return 0
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case string:
		return strings.Compare(x, b.(string))
	case time.Time:
		return x.Compare(b.(time.Time))
	}
	if ai, ok := exactInt(a); ok {
		if bi, ok := exactInt(b); ok {
			switch {
			case ai < bi:
				return -1
			case ai > bi:
				return 1
			default:
				return 0
			}
		}
	}
	if af, ok := AsFloat(a); ok {
		bf, _ := AsFloat(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func exactInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
			return int64(n), true
		}
	}
	return 0, false
}

// Equal reports whether two scalar values are equal under Compare.
func Equal(a, b any) bool {
	return Compare(a, b) == 0
}

// ScanAll pages through every hit of req using search-after on the request
// sort extended with the document id. fn receives one page at a time.
func ScanAll(ctx context.Context, s Searcher, req SearchRequest, fn func([]Hit) error) error {
	if req.Size <= 0 {
		req.Size = DefaultPageSize
	}
	hasID := false
	for _, f := range req.Sort {
		if f.Field == FieldDocID {
			hasID = true
		}
	}
	if !hasID {
		req.Sort = append(append([]SortField(nil), req.Sort...), SortField{Field: FieldDocID})
	}
	for {
		res, err := s.Search(ctx, req)
		if err != nil {
			return err
		}
		if len(res.Hits) == 0 {
			return nil
		}
		if err := fn(res.Hits); err != nil {
			return err
		}
		if len(res.Hits) < req.Size {
			return nil
		}
		req.SearchAfter = res.Hits[len(res.Hits)-1].Sort
	}
}
