// Package model defines the inventory entities and the names of the search
// indices they are denormalized into.
package model

import (
	"strconv"
)

// TMO is a typed object class.
type TMO struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	PID        *int64 `json:"p_id,omitempty"`
	SeverityID *int64 `json:"severity_id,omitempty"`
	Lifecycle  bool   `json:"lifecycle_enabled"`
	Version    int64  `json:"version"`
}

// TPRM is a typed parameter class attached to a TMO.
type TPRM struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	TMOID      int64  `json:"tmo_id"`
	Kind       Kind   `json:"val_type"`
	Multiple   bool   `json:"multiple"`
	Constraint string `json:"constraint,omitempty"`
	Required   bool   `json:"required"`
	Version    int64  `json:"version"`
}

// ConstraintID returns the referenced TPRM id of a parameter-link type.
func (t TPRM) ConstraintID() (int64, bool) {
	if t.Kind != KindParameterLink || t.Constraint == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(t.Constraint, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// MO is a managed object as delivered by events and by the upstream source.
type MO struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	Label       string         `json:"label,omitempty"`
	Description string         `json:"description,omitempty"`
	TMOID       int64          `json:"tmo_id"`
	PID         *int64         `json:"p_id,omitempty"`
	PointAID    *int64         `json:"point_a_id,omitempty"`
	PointBID    *int64         `json:"point_b_id,omitempty"`
	Active      bool           `json:"active"`
	Status      string         `json:"status,omitempty"`
	Version     int64          `json:"version"`
	Latitude    *float64       `json:"latitude,omitempty"`
	Longitude   *float64       `json:"longitude,omitempty"`
	Geometry    map[string]any `json:"geometry,omitempty"`

	// Params is only populated by the upstream source during bulk load.
	Params []PRM `json:"params,omitempty"`
}

// PRM is one parameter value attached to an MO. Value is wire encoded.
type PRM struct {
	ID      int64  `json:"id"`
	Value   string `json:"value"`
	TPRMID  int64  `json:"tprm_id"`
	MOID    int64  `json:"mo_id"`
	Version int64  `json:"version"`
}

// Object document field names.
const (
	FieldID         = "id"
	FieldName       = "name"
	FieldTMOID      = "tmo_id"
	FieldPID        = "p_id"
	FieldPointAID   = "point_a_id"
	FieldPointBID   = "point_b_id"
	FieldParentName = "parent_name"
	FieldPointAName = "point_a_name"
	FieldPointBName = "point_b_name"
	FieldParameters = "parameters"
	FieldFuzzy      = "fuzzy"
	FieldGeometry   = "geometry"
	FieldValue      = "value"
	FieldTPRMID     = "tprm_id"
	FieldMOID       = "mo_id"
)

// FuzzyFields are the object fields replicated into the fuzzy sub-document.
var FuzzyFields = []string{FieldName, "label", "description"}

// ParameterField returns the path of a TPRM inside an object document.
func ParameterField(tprmID int64) string {
	return FieldParameters + "." + strconv.FormatInt(tprmID, 10)
}

// ParameterKey returns the key of a TPRM inside the parameters map.
func ParameterKey(tprmID int64) string {
	return strconv.FormatInt(tprmID, 10)
}

// DocID formats an entity id as a document id.
func DocID(id int64) string {
	return strconv.FormatInt(id, 10)
}
