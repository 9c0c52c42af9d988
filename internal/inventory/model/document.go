package model

import (
	"encoding/json"
	"math"
)

// AsInt64 reads an integer out of a decoded document value. Documents read
// back from the store may carry int32, int64 or float64 depending on the
// backend.
func AsInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case float32:
		return int64(n), float32(int64(n)) == n
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

// AsInt64Ptr is AsInt64 for optional reference fields.
func AsInt64Ptr(v any) *int64 {
	if v == nil {
		return nil
	}
	n, ok := AsInt64(v)
	if !ok {
		return nil
	}
	return &n
}

// ObjectDoc is the stored shape of an MO, read back from an object index.
type ObjectDoc struct {
	ID       int64
	Name     string
	TMOID    int64
	PID      *int64
	PointAID *int64
	PointBID *int64
	Index    string
	Source   map[string]any
}

// ObjectDocFromSource decodes the fields the handlers reason about.
func ObjectDocFromSource(index string, src map[string]any) ObjectDoc {
	doc := ObjectDoc{Index: index, Source: src}
	doc.ID, _ = AsInt64(src[FieldID])
	doc.TMOID, _ = AsInt64(src[FieldTMOID])
	doc.Name, _ = src[FieldName].(string)
	doc.PID = AsInt64Ptr(src[FieldPID])
	doc.PointAID = AsInt64Ptr(src[FieldPointAID])
	doc.PointBID = AsInt64Ptr(src[FieldPointBID])
	return doc
}

// Parameters returns the parameters map of the stored document.
func (d ObjectDoc) Parameters() map[string]any {
	params, _ := d.Source[FieldParameters].(map[string]any)
	return params
}

// PRMFromSource decodes a flat parameter index row.
func PRMFromSource(src map[string]any) PRM {
	var p PRM
	p.ID, _ = AsInt64(src[FieldID])
	p.TPRMID, _ = AsInt64(src[FieldTPRMID])
	p.MOID, _ = AsInt64(src[FieldMOID])
	p.Version, _ = AsInt64(src["version"])
	p.Value, _ = src[FieldValue].(string)
	return p
}

// Source renders the PRM as a flat parameter index row.
func (p PRM) Source() map[string]any {
	return map[string]any{
		FieldID:     p.ID,
		FieldValue:  p.Value,
		FieldTPRMID: p.TPRMID,
		FieldMOID:   p.MOID,
		"version":   p.Version,
	}
}

// ProjectionSource renders the PRM as a link projection row; ids is the
// referenced id or list of ids.
func (p PRM) ProjectionSource(ids any) map[string]any {
	return map[string]any{
		FieldID:     p.ID,
		FieldValue:  ids,
		FieldTPRMID: p.TPRMID,
		FieldMOID:   p.MOID,
		"version":   p.Version,
	}
}

// TPRMFromSource decodes a TPRM metadata row.
func TPRMFromSource(src map[string]any) (TPRM, error) {
	var t TPRM
	t.ID, _ = AsInt64(src[FieldID])
	t.TMOID, _ = AsInt64(src[FieldTMOID])
	t.Name, _ = src[FieldName].(string)
	t.Multiple, _ = src["multiple"].(bool)
	t.Required, _ = src["required"].(bool)
	t.Constraint, _ = src["constraint"].(string)
	t.Version, _ = AsInt64(src["version"])
	kind, _ := src["val_type"].(string)
	k, err := ParseKind(kind)
	if err != nil {
		return t, err
	}
	t.Kind = k
	return t, nil
}

// Source renders the TPRM as a metadata row.
func (t TPRM) Source() map[string]any {
	return map[string]any{
		FieldID:      t.ID,
		FieldName:    t.Name,
		FieldTMOID:   t.TMOID,
		"val_type":   t.Kind.String(),
		"multiple":   t.Multiple,
		"constraint": t.Constraint,
		"required":   t.Required,
		"version":    t.Version,
	}
}

// Source renders the TMO as a metadata row.
func (t TMO) Source() map[string]any {
	src := map[string]any{
		FieldID:             t.ID,
		FieldName:           t.Name,
		"lifecycle_enabled": t.Lifecycle,
		"version":           t.Version,
	}
	if t.PID != nil {
		src[FieldPID] = *t.PID
	}
	if t.SeverityID != nil {
		src["severity_id"] = *t.SeverityID
	}
	return src
}
