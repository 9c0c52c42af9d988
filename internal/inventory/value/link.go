package value

// ObjectLinkValue substitutes display names for an object reference. A
// scalar reference becomes the name; a multiple reference becomes the names
// of the ids that resolved, in order. ok is false when nothing resolved.
func ObjectLinkValue(ref Ref, names map[int64]string) (any, bool) {
	if !ref.Multiple {
		id, ok := ref.Single()
		if !ok {
			return nil, false
		}
		name, ok := names[id]
		if !ok {
			return nil, false
		}
		return name, true
	}
	out := make([]any, 0, len(ref.IDs))
	for _, id := range ref.IDs {
		if name, ok := names[id]; ok {
			out = append(out, name)
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

// ParameterLinkValue substitutes the decoded values of the referenced
// parameters. targets holds each referenced parameter's value decoded with
// the target type's kind and multiplicity, so the result shape follows
// base × target multiplicity:
//
//	scalar   -> scalar    : the target value
//	scalar   -> multiple  : the target list
//	multiple -> scalar    : a list of target values
//	multiple -> multiple  : a list of target lists
//
// Unresolved references are dropped; ok is false when nothing resolved.
func ParameterLinkValue(ref Ref, targets map[int64]any) (any, bool) {
	if !ref.Multiple {
		id, ok := ref.Single()
		if !ok {
			return nil, false
		}
		v, ok := targets[id]
		return v, ok
	}
	out := make([]any, 0, len(ref.IDs))
	for _, id := range ref.IDs {
		if v, ok := targets[id]; ok {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

// Position returns the index of id in the stored value of a multiple
// reference. Stored values hold only the ids that resolved, so ids before
// id count only when they are in resolved.
func (r Ref) Position(id int64, resolved map[int64]any) (int, bool) {
	pos := 0
	for _, v := range r.IDs {
		if v == id {
			return pos, true
		}
		if _, ok := resolved[v]; ok {
			pos++
		}
	}
	return 0, false
}
