package model

// NormalizeGeometry returns the indexable shape of an object, or nil when
// there is none. A stored geometry may wrap its shape under "path"; a bare
// latitude/longitude pair becomes a point.
func NormalizeGeometry(mo MO) map[string]any {
	if shape := shapeOf(mo.Geometry); shape != nil {
		return shape
	}
	if mo.Latitude != nil && mo.Longitude != nil {
		return map[string]any{
			"type":        "Point",
			"coordinates": []any{*mo.Longitude, *mo.Latitude},
		}
	}
	return nil
}

func shapeOf(g map[string]any) map[string]any {
	if len(g) == 0 {
		return nil
	}
	if inner, ok := g["path"].(map[string]any); ok {
		return shapeOf(inner)
	}
	typ, _ := g["type"].(string)
	if typ == "" {
		return nil
	}
	if typ == "GeometryCollection" {
		if geoms, ok := g["geometries"].([]any); ok && len(geoms) > 0 {
			return g
		}
		return nil
	}
	coords, ok := g["coordinates"].([]any)
	if !ok || len(coords) == 0 {
		return nil
	}
	return g
}

// Fuzzy builds the fuzzy sub-document, or nil when every listed field is empty.
func Fuzzy(mo MO) map[string]any {
	values := map[string]string{
		FieldName:     mo.Name,
		"label":       mo.Label,
		"description": mo.Description,
	}
	out := make(map[string]any)
	for _, f := range FuzzyFields {
		if v := values[f]; v != "" {
			out[f] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// NameOf returns names[*id], or nil when id is nil or unresolved.
func NameOf(id *int64, names map[int64]string) any {
	if id == nil {
		return nil
	}
	if name, ok := names[*id]; ok {
		return name
	}
	return nil
}

// ObjectFields renders the first-class fields of an MO, without parameters
// and cached reference names.
func ObjectFields(mo MO) map[string]any {
	src := map[string]any{
		FieldID:       mo.ID,
		FieldName:     mo.Name,
		FieldTMOID:    mo.TMOID,
		FieldPID:      ptrValue(mo.PID),
		FieldPointAID: ptrValue(mo.PointAID),
		FieldPointBID: ptrValue(mo.PointBID),
		"active":      mo.Active,
		"version":     mo.Version,
	}
	if mo.Label != "" {
		src["label"] = mo.Label
	}
	if mo.Description != "" {
		src["description"] = mo.Description
	}
	if mo.Status != "" {
		src["status"] = mo.Status
	}
	if mo.Latitude != nil {
		src["latitude"] = *mo.Latitude
	}
	if mo.Longitude != nil {
		src["longitude"] = *mo.Longitude
	}
	return src
}

// optionalFields are left out of ObjectFields when empty.
var optionalFields = []string{"label", "description", "status", "latitude", "longitude"}

// UnsetCleared sets to nil every optional field that prior still holds and
// doc no longer carries, so a partial update clears it.
func UnsetCleared(doc, prior map[string]any) {
	for _, f := range optionalFields {
		if _, ok := doc[f]; ok {
			continue
		}
		if _, had := prior[f]; had {
			doc[f] = nil
		}
	}
}

func ptrValue(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

// ObjectSource builds the full document of a new object. names resolves
// p_id, point_a_id and point_b_id; params becomes the parameters map.
func ObjectSource(mo MO, names map[int64]string, params map[string]any) map[string]any {
	src := ObjectFields(mo)
	src[FieldParentName] = NameOf(mo.PID, names)
	src[FieldPointAName] = NameOf(mo.PointAID, names)
	src[FieldPointBName] = NameOf(mo.PointBID, names)
	if params == nil {
		params = map[string]any{}
	}
	src[FieldParameters] = params
	if g := NormalizeGeometry(mo); g != nil {
		src[FieldGeometry] = g
	}
	if f := Fuzzy(mo); f != nil {
		src[FieldFuzzy] = f
	}
	return src
}
