package model

import (
	"strconv"
	"strings"
)

// Indices names every search index the engine maintains. The prefix lets
// several deployments share one document store.
type Indices struct {
	Prefix string
}

// DefaultIndices uses the "inventory" prefix.
func DefaultIndices() Indices {
	return Indices{Prefix: "inventory"}
}

func (i Indices) name(suffix string) string {
	if i.Prefix == "" {
		return suffix
	}
	return i.Prefix + "_" + suffix
}

// Object returns the object index of a TMO.
func (i Indices) Object(tmoID int64) string {
	return i.name("obj_" + strconv.FormatInt(tmoID, 10))
}

// ObjectPattern matches every object index.
func (i Indices) ObjectPattern() string {
	return i.name("obj_*")
}

// ObjectTMO extracts the TMO id from an object index name.
func (i Indices) ObjectTMO(index string) (int64, bool) {
	prefix := i.name("obj_")
	if !strings.HasPrefix(index, prefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(index, prefix), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// TMO is the type-metadata index for object classes.
func (i Indices) TMO() string { return i.name("tmo") }

// TPRM is the type-metadata index for parameter classes.
func (i Indices) TPRM() string { return i.name("tprm") }

// Parameters is the flat index of raw parameter values.
func (i Indices) Parameters() string { return i.name("prm") }

// ObjectLinks is the projection of object-link parameters to object ids.
func (i Indices) ObjectLinks() string { return i.name("prm_obj_link") }

// ParameterLinks is the projection of parameter-link parameters to parameter ids.
func (i Indices) ParameterLinks() string { return i.name("prm_prm_link") }

// HierarchyLevels stores hierarchy level definitions.
func (i Indices) HierarchyLevels() string { return i.name("hierarchy_levels") }

// HierarchyNodes stores materialized hierarchy nodes.
func (i Indices) HierarchyNodes() string { return i.name("hierarchy_nodes") }

// HierarchyNodeData stores node to object join rows.
func (i Indices) HierarchyNodeData() string { return i.name("hierarchy_node_data") }
