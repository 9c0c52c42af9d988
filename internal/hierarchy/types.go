// Package hierarchy evaluates filters and aggregations over materialized
// hierarchy trees.
//
// A hierarchy is a tree of Levels, each bound to one object type. Nodes are
// the materialized groups of a level; NodeData rows join nodes to the
// objects grouped under them. The Engine walks the levels, intersecting the
// nodes that are structurally reachable with the nodes whose objects pass
// the conditions attached to their level, and returns the surviving nodes
// of one target level together with their objects and aggregates.
package hierarchy

import (
	"errors"

	"github.com/google/uuid"

	"github.com/syntrixbase/inventory/internal/inventory/model"
)

var (
	// ErrLevelNotFound is returned when a request names a level that is not
	// part of the hierarchy.
	ErrLevelNotFound = errors.New("hierarchy level not found")
	// ErrInvalidRequest is returned for malformed filter requests.
	ErrInvalidRequest = errors.New("invalid hierarchy request")
)

// Document fields.
const (
	fieldID                  = "id"
	fieldHierarchyID         = "hierarchy_id"
	fieldParentID            = "parent_id"
	fieldObjectTypeID        = "object_type_id"
	fieldParamTypeID         = "param_type_id"
	fieldLevel               = "level"
	fieldShowWithoutChildren = "show_without_children"
	fieldCreateEmptyNodes    = "create_empty_nodes"
	fieldIsVirtual           = "is_virtual"
	fieldSameLevelParent     = "same_level_parent"
	fieldLevelID             = "level_id"
	fieldPath                = "path"
	fieldKey                 = "key"
	fieldKeyIsEmpty          = "key_is_empty"
	fieldActive              = "active"
	fieldChildCount          = "child_count"
	fieldObjectID            = "object_id"
	fieldNodeID              = "node_id"
	fieldMOID                = "mo_id"
	fieldTPRMID              = "tprm_id"
)

// Level is one tier of a hierarchy.
type Level struct {
	ID          int64  `json:"id"`
	HierarchyID int64  `json:"hierarchy_id"`
	ParentID    *int64 `json:"parent_id,omitempty"`
	// ObjectTypeID is the TMO whose objects are grouped at this level.
	ObjectTypeID int64 `json:"object_type_id"`
	// ParamTypeID is the grouping parameter. Nil groups by object.
	ParamTypeID         *int64 `json:"param_type_id,omitempty"`
	Depth               int64  `json:"level"`
	ShowWithoutChildren bool   `json:"show_without_children"`
	CreateEmptyNodes    bool   `json:"create_empty_nodes"`
	IsVirtual           bool   `json:"is_virtual"`
	// SameLevelParent allows nodes of this level to parent other nodes of
	// the same level.
	SameLevelParent bool `json:"same_level_parent"`
}

// Source returns the stored document of l.
func (l Level) Source() map[string]any {
	return map[string]any{
		fieldID:                  l.ID,
		fieldHierarchyID:         l.HierarchyID,
		fieldParentID:            int64Value(l.ParentID),
		fieldObjectTypeID:        l.ObjectTypeID,
		fieldParamTypeID:         int64Value(l.ParamTypeID),
		fieldLevel:               l.Depth,
		fieldShowWithoutChildren: l.ShowWithoutChildren,
		fieldCreateEmptyNodes:    l.CreateEmptyNodes,
		fieldIsVirtual:           l.IsVirtual,
		fieldSameLevelParent:     l.SameLevelParent,
	}
}

// LevelFromSource decodes a stored level document.
func LevelFromSource(src map[string]any) Level {
	id, _ := model.AsInt64(src[fieldID])
	hid, _ := model.AsInt64(src[fieldHierarchyID])
	tmo, _ := model.AsInt64(src[fieldObjectTypeID])
	depth, _ := model.AsInt64(src[fieldLevel])
	return Level{
		ID:                  id,
		HierarchyID:         hid,
		ParentID:            model.AsInt64Ptr(src[fieldParentID]),
		ObjectTypeID:        tmo,
		ParamTypeID:         model.AsInt64Ptr(src[fieldParamTypeID]),
		Depth:               depth,
		ShowWithoutChildren: asBool(src[fieldShowWithoutChildren]),
		CreateEmptyNodes:    asBool(src[fieldCreateEmptyNodes]),
		IsVirtual:           asBool(src[fieldIsVirtual]),
		SameLevelParent:     asBool(src[fieldSameLevelParent]),
	}
}

// Node is a materialized group of a level.
type Node struct {
	ID          string `json:"id"`
	HierarchyID int64  `json:"hierarchy_id"`
	LevelID     int64  `json:"level_id"`
	// ParentID is empty for root nodes.
	ParentID string `json:"parent_id,omitempty"`
	// Path is the slash separated chain of ancestor ids ending with ID.
	Path       string `json:"path"`
	Key        string `json:"key"`
	KeyIsEmpty bool   `json:"key_is_empty"`
	Active     bool   `json:"active"`
	ChildCount int64  `json:"child_count"`
	ObjectID   *int64 `json:"object_id,omitempty"`
}

// NewNode returns an active node of level under parent, which may be nil
// for a root node.
func NewNode(level Level, parent *Node, key string) Node {
	n := Node{
		ID:          uuid.NewString(),
		HierarchyID: level.HierarchyID,
		LevelID:     level.ID,
		Key:         key,
		KeyIsEmpty:  key == "",
		Active:      true,
	}
	if parent != nil {
		n.ParentID = parent.ID
		n.Path = parent.Path + "/" + n.ID
	} else {
		n.Path = "/" + n.ID
	}
	return n
}

// Source returns the stored document of n.
func (n Node) Source() map[string]any {
	src := map[string]any{
		fieldID:          n.ID,
		fieldHierarchyID: n.HierarchyID,
		fieldLevelID:     n.LevelID,
		fieldPath:        n.Path,
		fieldKey:         n.Key,
		fieldKeyIsEmpty:  n.KeyIsEmpty,
		fieldActive:      n.Active,
		fieldChildCount:  n.ChildCount,
		fieldObjectID:    int64Value(n.ObjectID),
	}
	if n.ParentID != "" {
		src[fieldParentID] = n.ParentID
	}
	return src
}

// NodeFromSource decodes a stored node document.
func NodeFromSource(src map[string]any) Node {
	hid, _ := model.AsInt64(src[fieldHierarchyID])
	lid, _ := model.AsInt64(src[fieldLevelID])
	count, _ := model.AsInt64(src[fieldChildCount])
	id, _ := src[fieldID].(string)
	parent, _ := src[fieldParentID].(string)
	path, _ := src[fieldPath].(string)
	key, _ := src[fieldKey].(string)
	return Node{
		ID:          id,
		HierarchyID: hid,
		LevelID:     lid,
		ParentID:    parent,
		Path:        path,
		Key:         key,
		KeyIsEmpty:  asBool(src[fieldKeyIsEmpty]),
		Active:      asBool(src[fieldActive]),
		ChildCount:  count,
		ObjectID:    model.AsInt64Ptr(src[fieldObjectID]),
	}
}

// NodeData joins a node to one object grouped under it.
type NodeData struct {
	NodeID  string `json:"node_id"`
	LevelID int64  `json:"level_id"`
	MOID    int64  `json:"mo_id"`
	TPRMID  *int64 `json:"tprm_id,omitempty"`
}

func (d NodeData) docID() string {
	return d.NodeID + ":" + model.DocID(d.MOID)
}

// Source returns the stored document of d.
func (d NodeData) Source() map[string]any {
	return map[string]any{
		fieldNodeID:  d.NodeID,
		fieldLevelID: d.LevelID,
		fieldMOID:    d.MOID,
		fieldTPRMID:  int64Value(d.TPRMID),
	}
}

// NodeDataFromSource decodes a stored join row.
func NodeDataFromSource(src map[string]any) NodeData {
	node, _ := src[fieldNodeID].(string)
	lid, _ := model.AsInt64(src[fieldLevelID])
	mo, _ := model.AsInt64(src[fieldMOID])
	return NodeData{
		NodeID:  node,
		LevelID: lid,
		MOID:    mo,
		TPRMID:  model.AsInt64Ptr(src[fieldTPRMID]),
	}
}

func int64Value(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}
