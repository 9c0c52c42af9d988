package docstore

// FilterOp is the kind of a filter node.
type FilterOp string

const (
	FilterMatchAll FilterOp = "match_all"
	FilterTerm     FilterOp = "term"
	FilterTerms    FilterOp = "terms"
	FilterExists   FilterOp = "exists"
	FilterPrefix   FilterOp = "prefix"
	FilterRange    FilterOp = "range"
	FilterAnd      FilterOp = "and"
	FilterOr       FilterOp = "or"
	FilterNot      FilterOp = "not"
)

// Filter is a boolean query tree. The zero value matches everything.
// A term matches array fields when any element matches.
type Filter struct {
	Op       FilterOp
	Field    string
	Values   []any
	Range    Bounds
	Children []Filter
}

// Bounds are the limits of a range filter. Nil limits are open.
type Bounds struct {
	Gt, Gte, Lt, Lte any
}

// MatchAll matches every document.
func MatchAll() Filter { return Filter{Op: FilterMatchAll} }

// Term matches documents whose field equals v.
func Term(field string, v any) Filter {
	return Filter{Op: FilterTerm, Field: field, Values: []any{v}}
}

// Terms matches documents whose field equals any of values.
func Terms(field string, values ...any) Filter {
	return Filter{Op: FilterTerms, Field: field, Values: values}
}

// TermsInt64 is Terms over a slice of ids.
func TermsInt64(field string, ids []int64) Filter {
	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	return Filter{Op: FilterTerms, Field: field, Values: values}
}

// TermsString is Terms over a slice of strings.
func TermsString(field string, ids []string) Filter {
	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	return Filter{Op: FilterTerms, Field: field, Values: values}
}

// Exists matches documents with a non-null field.
func Exists(field string) Filter {
	return Filter{Op: FilterExists, Field: field}
}

// Prefix matches string fields starting with p.
func Prefix(field, p string) Filter {
	return Filter{Op: FilterPrefix, Field: field, Values: []any{p}}
}

// Range matches field values within b.
func Range(field string, b Bounds) Filter {
	return Filter{Op: FilterRange, Field: field, Range: b}
}

// And matches when every child matches.
func And(children ...Filter) Filter {
	return Filter{Op: FilterAnd, Children: children}
}

// Or matches when any child matches.
func Or(children ...Filter) Filter {
	return Filter{Op: FilterOr, Children: children}
}

// Not inverts f.
func Not(f Filter) Filter {
	return Filter{Op: FilterNot, Children: []Filter{f}}
}

// IsMatchAll reports whether f matches every document.
func (f Filter) IsMatchAll() bool {
	return f.Op == "" || f.Op == FilterMatchAll
}
