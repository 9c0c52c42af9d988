// Package mapping holds the field-type table for parameter kinds and the
// fixed mappings of every index the engine creates.
package mapping

import (
	"fmt"

	"github.com/syntrixbase/inventory/internal/core/docstore"
	"github.com/syntrixbase/inventory/internal/inventory/model"
)

// DateFormats are accepted by date and datetime parameter fields.
var DateFormats = []string{
	"yyyy-MM-dd",
	"yyyy-MM-dd'T'HH:mm:ss.SSSSSSX",
	"yyyy-MM-dd'T'HH:mm:ssX",
	"yyyy-MM-dd HH:mm:ss",
	"strict_date_optional_time",
}

// FieldType maps a plain or object-link kind to its index field type.
// Parameter links use ParameterLinkFieldType.
func FieldType(kind model.Kind) (docstore.FieldType, error) {
	switch kind {
	case model.KindStr, model.KindFormula, model.KindUserLink, model.KindEnum:
		return docstore.TypeKeyword, nil
	case model.KindInt, model.KindSequence:
		return docstore.TypeLong, nil
	case model.KindFloat:
		return docstore.TypeDouble, nil
	case model.KindDate, model.KindDatetime:
		return docstore.TypeDate, nil
	case model.KindBool:
		return docstore.TypeBoolean, nil
	case model.KindObjectLink, model.KindObjectLinkBidirectional:
		return docstore.TypeKeyword, nil
	case model.KindParameterLink:
		return "", fmt.Errorf("parameter_link field type depends on its target")
	default:
		return "", fmt.Errorf("no field type for kind %s", kind)
	}
}

// ParameterLinkFieldType is the field type of a parameter link: the type its
// target would be mapped with.
func ParameterLinkFieldType(target model.TPRM) (docstore.FieldType, error) {
	if target.Kind == model.KindParameterLink {
		return "", fmt.Errorf("tprm %d: parameter_link target is itself a parameter_link", target.ID)
	}
	return FieldType(target.Kind)
}

// ParameterFields returns the mapping extension for one TPRM. target is only
// consulted for parameter links.
func ParameterFields(tprm model.TPRM, target *model.TPRM) (map[string]docstore.FieldType, error) {
	var (
		typ docstore.FieldType
		err error
	)
	if tprm.Kind == model.KindParameterLink {
		if target == nil {
			return nil, fmt.Errorf("tprm %d: parameter_link without a resolved constraint", tprm.ID)
		}
		typ, err = ParameterLinkFieldType(*target)
	} else {
		typ, err = FieldType(tprm.Kind)
	}
	if err != nil {
		return nil, err
	}
	return map[string]docstore.FieldType{model.ParameterField(tprm.ID): typ}, nil
}

func settings() map[string]any {
	return map[string]any{
		"max_result_window": docstore.DefaultPageSize,
		"date_formats":      DateFormats,
	}
}

// Object is the mapping of a per-TMO object index.
func Object() docstore.Mapping {
	return docstore.Mapping{
		Fields: map[string]docstore.FieldType{
			model.FieldID:         docstore.TypeLong,
			model.FieldName:       docstore.TypeKeyword,
			"label":               docstore.TypeKeyword,
			"description":         docstore.TypeText,
			model.FieldTMOID:      docstore.TypeLong,
			model.FieldPID:        docstore.TypeLong,
			model.FieldPointAID:   docstore.TypeLong,
			model.FieldPointBID:   docstore.TypeLong,
			model.FieldParentName: docstore.TypeKeyword,
			model.FieldPointAName: docstore.TypeKeyword,
			model.FieldPointBName: docstore.TypeKeyword,
			"active":              docstore.TypeBoolean,
			"status":              docstore.TypeKeyword,
			"version":             docstore.TypeLong,
			"latitude":            docstore.TypeDouble,
			"longitude":           docstore.TypeDouble,
			model.FieldGeometry:   docstore.TypeGeoShape,
			model.FieldParameters: docstore.TypeObject,
			model.FieldFuzzy:      docstore.TypeText,
		},
		Settings: settings(),
	}
}

// TMO is the mapping of the object-class metadata index.
func TMO() docstore.Mapping {
	return docstore.Mapping{
		Fields: map[string]docstore.FieldType{
			model.FieldID:       docstore.TypeLong,
			model.FieldName:     docstore.TypeKeyword,
			model.FieldPID:      docstore.TypeLong,
			"severity_id":       docstore.TypeLong,
			"lifecycle_enabled": docstore.TypeBoolean,
			"version":           docstore.TypeLong,
		},
		Settings: settings(),
	}
}

// TPRM is the mapping of the parameter-class metadata index.
func TPRM() docstore.Mapping {
	return docstore.Mapping{
		Fields: map[string]docstore.FieldType{
			model.FieldID:    docstore.TypeLong,
			model.FieldName:  docstore.TypeKeyword,
			model.FieldTMOID: docstore.TypeLong,
			"val_type":       docstore.TypeKeyword,
			"multiple":       docstore.TypeBoolean,
			"constraint":     docstore.TypeKeyword,
			"required":       docstore.TypeBoolean,
			"version":        docstore.TypeLong,
		},
		Settings: settings(),
	}
}

// Parameters is the mapping of the flat raw parameter index.
func Parameters() docstore.Mapping {
	return docstore.Mapping{
		Fields: map[string]docstore.FieldType{
			model.FieldID:     docstore.TypeLong,
			model.FieldValue:  docstore.TypeKeyword,
			model.FieldTPRMID: docstore.TypeLong,
			model.FieldMOID:   docstore.TypeLong,
			"version":         docstore.TypeLong,
		},
		Settings: settings(),
	}
}

// LinkProjection is the mapping of both link projection indices, where
// value holds the referenced id or ids.
func LinkProjection() docstore.Mapping {
	m := Parameters()
	m.Fields[model.FieldValue] = docstore.TypeLong
	return m
}

// HierarchyLevels is the mapping of hierarchy level definitions.
func HierarchyLevels() docstore.Mapping {
	return docstore.Mapping{
		Fields: map[string]docstore.FieldType{
			"id":                    docstore.TypeLong,
			"hierarchy_id":          docstore.TypeLong,
			"parent_id":             docstore.TypeLong,
			"object_type_id":        docstore.TypeLong,
			"param_type_id":         docstore.TypeLong,
			"level":                 docstore.TypeLong,
			"show_without_children": docstore.TypeBoolean,
			"create_empty_nodes":    docstore.TypeBoolean,
			"is_virtual":            docstore.TypeBoolean,
			"same_level_parent":     docstore.TypeBoolean,
		},
		Settings: settings(),
	}
}

// HierarchyNodes is the mapping of materialized hierarchy nodes.
func HierarchyNodes() docstore.Mapping {
	return docstore.Mapping{
		Fields: map[string]docstore.FieldType{
			"id":           docstore.TypeKeyword,
			"hierarchy_id": docstore.TypeLong,
			"level_id":     docstore.TypeLong,
			"parent_id":    docstore.TypeKeyword,
			"path":         docstore.TypeKeyword,
			"key":          docstore.TypeKeyword,
			"key_is_empty": docstore.TypeBoolean,
			"active":       docstore.TypeBoolean,
			"child_count":  docstore.TypeLong,
			"object_id":    docstore.TypeLong,
		},
		Settings: settings(),
	}
}

// HierarchyNodeData is the mapping of node to object join rows.
func HierarchyNodeData() docstore.Mapping {
	return docstore.Mapping{
		Fields: map[string]docstore.FieldType{
			"node_id":  docstore.TypeKeyword,
			"level_id": docstore.TypeLong,
			"mo_id":    docstore.TypeLong,
			"tprm_id":  docstore.TypeLong,
		},
		Settings: settings(),
	}
}
