package docstore

// ScriptOpKind is the kind of a script operation.
type ScriptOpKind string

const (
	// ScriptSet assigns Value to Field.
	ScriptSet ScriptOpKind = "set"
	// ScriptSetByKey assigns ByKey[doc[KeyField]] to Field. Documents whose
	// key has no entry are left untouched.
	ScriptSetByKey ScriptOpKind = "set_by_key"
	// ScriptSetElement replaces Field[Position] with Value, appending when
	// Position is out of range. A non-array Field is replaced by [Value].
	ScriptSetElement ScriptOpKind = "set_element"
)

// ScriptOp is one mutation applied to each document matched by an
// update-by-query.
type ScriptOp struct {
	Kind     ScriptOpKind
	Field    string
	Value    any
	KeyField string
	ByKey    map[int64]any
	Position int
}

// Script is an ordered list of operations with bound parameters.
type Script []ScriptOp

// Set assigns v to field.
func Set(field string, v any) ScriptOp {
	return ScriptOp{Kind: ScriptSet, Field: field, Value: v}
}

// SetByKey assigns values[doc[keyField]] to field.
func SetByKey(field, keyField string, values map[int64]any) ScriptOp {
	return ScriptOp{Kind: ScriptSetByKey, Field: field, KeyField: keyField, ByKey: values}
}

// SetElement replaces field[position] with v.
func SetElement(field string, position int, v any) ScriptOp {
	return ScriptOp{Kind: ScriptSetElement, Field: field, Position: position, Value: v}
}
