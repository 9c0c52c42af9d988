package mongo

import (
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/syntrixbase/inventory/internal/core/docstore"
)

// buildFilter translates a docstore filter tree into a query document.
// Mongo matches scalar conditions against array elements, which gives terms
// the same any-element semantics as the memory backend.
func buildFilter(f docstore.Filter) bson.M {
	switch f.Op {
	case "", docstore.FilterMatchAll:
		return bson.M{}
	case docstore.FilterTerm:
		return bson.M{f.Field: f.Values[0]}
	case docstore.FilterTerms:
		return bson.M{f.Field: bson.M{"$in": bson.A(f.Values)}}
	case docstore.FilterExists:
		return bson.M{f.Field: bson.M{"$exists": true, "$ne": nil}}
	case docstore.FilterPrefix:
		p, _ := f.Values[0].(string)
		return bson.M{f.Field: bson.M{"$regex": "^" + regexp.QuoteMeta(p)}}
	case docstore.FilterRange:
		cond := bson.M{}
		if f.Range.Gt != nil {
			cond["$gt"] = f.Range.Gt
		}
		if f.Range.Gte != nil {
			cond["$gte"] = f.Range.Gte
		}
		if f.Range.Lt != nil {
			cond["$lt"] = f.Range.Lt
		}
		if f.Range.Lte != nil {
			cond["$lte"] = f.Range.Lte
		}
		return bson.M{f.Field: cond}
	case docstore.FilterAnd:
		if len(f.Children) == 0 {
			return bson.M{}
		}
		return bson.M{"$and": children(f.Children)}
	case docstore.FilterOr:
		if len(f.Children) == 0 {
			return bson.M{"_id": bson.M{"$exists": false}}
		}
		return bson.M{"$or": children(f.Children)}
	case docstore.FilterNot:
		return bson.M{"$nor": children(f.Children)}
	default:
		return bson.M{}
	}
}

func children(fs []docstore.Filter) bson.A {
	out := make(bson.A, 0, len(fs))
	for _, c := range fs {
		out = append(out, buildFilter(c))
	}
	return out
}

// normalizeDoc converts driver types into plain maps, slices and int64.
func normalizeDoc(m bson.M) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case bson.M:
		return normalizeDoc(t)
	case map[string]any:
		return normalizeDoc(t)
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = normalizeValue(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case primitive.DateTime:
		return t.Time().UTC()
	default:
		return v
	}
}
