package docstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeDoc_Nested(t *testing.T) {
	dst := map[string]any{"name": "a", "parameters": map[string]any{"1": int64(1)}}
	MergeDoc(dst, map[string]any{"name": "b", "parameters": map[string]any{"2": "x"}})
	assert.Equal(t, map[string]any{"name": "b", "parameters": map[string]any{"1": int64(1), "2": "x"}}, dst)
}

func TestFlattenDoc(t *testing.T) {
	flat := FlattenDoc(map[string]any{"a": 1, "parameters": map[string]any{"5": "v"}, "empty": map[string]any{}})
	assert.Equal(t, map[string]any{"a": 1, "parameters.5": "v"}, flat)
}

func TestApplyUpdate_Replace(t *testing.T) {
	doc := map[string]any{
		"fuzzy":      map[string]any{"name": "a", "label": "L"},
		"parameters": map[string]any{"1": int64(1)},
	}
	a := UpdateAction("i", "1", map[string]any{
		"fuzzy":      map[string]any{"name": "b"},
		"parameters": map[string]any{"2": "x"},
	}).Replacing("fuzzy")
	ApplyUpdate(doc, a)
	assert.Equal(t, map[string]any{"name": "b"}, doc["fuzzy"])
	assert.Equal(t, map[string]any{"1": int64(1), "2": "x"}, doc["parameters"])

	ApplyUpdate(doc, UpdateAction("i", "1", map[string]any{"fuzzy": nil}).Replacing("fuzzy"))
	assert.Nil(t, doc["fuzzy"])
}

func TestUpdatePaths(t *testing.T) {
	a := UpdateAction("i", "1", map[string]any{
		"geometry":   map[string]any{"type": "Point", "coordinates": []any{1, 2}},
		"parameters": map[string]any{"5": "v"},
		"label":      nil,
	}).Replacing("geometry", "fuzzy")
	assert.Equal(t, map[string]any{
		"geometry":     map[string]any{"type": "Point", "coordinates": []any{1, 2}},
		"parameters.5": "v",
		"label":        nil,
	}, UpdatePaths(a))
	assert.Len(t, a.Doc, 3)
}

func TestCompare(t *testing.T) {
	assert.Equal(t, 0, Compare(int64(5), float64(5)))
	assert.Equal(t, -1, Compare(int64(4), int(5)))
	assert.Equal(t, 1, Compare("b", "a"))
	assert.Equal(t, -1, Compare(nil, "a"))
	assert.Equal(t, -1, Compare(false, true))
	assert.True(t, Equal(int32(3), int64(3)))
	assert.False(t, Equal("3", int64(3)))
}

func TestPaths(t *testing.T) {
	doc := map[string]any{}
	SetPath(doc, "a.b", 1)
	v, ok := GetPath(doc, "a.b")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	DeletePath(doc, "a.b")
	_, ok = GetPath(doc, "a.b")
	assert.False(t, ok)
}

func TestBulkError_Message(t *testing.T) {
	err := &BulkError{Items: []BulkItemError{{Op: OpUpdate, Index: "i", ID: "1", Reason: "document_missing"}}}
	assert.Contains(t, err.Error(), "1 actions rejected")
	be, ok := AsBulkError(err)
	assert.True(t, ok)
	assert.Same(t, err, be)
}
