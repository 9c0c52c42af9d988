package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntrixbase/inventory/internal/core/docstore"
)

func seeded(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateIndex(ctx, "inv_obj_1", docstore.Mapping{Fields: map[string]docstore.FieldType{"name": docstore.TypeKeyword}}))
	require.NoError(t, s.CreateIndex(ctx, "inv_obj_2", docstore.Mapping{}))
	_, err := s.Bulk(ctx, []docstore.Action{
		docstore.IndexAction("inv_obj_1", "1", map[string]any{"id": int64(1), "name": "a", "p_id": nil, "tags": []any{"x", "y"}}),
		docstore.IndexAction("inv_obj_1", "2", map[string]any{"id": int64(2), "name": "b", "p_id": int64(1)}),
		docstore.IndexAction("inv_obj_2", "3", map[string]any{"id": int64(3), "name": "c", "p_id": int64(1), "parameters": map[string]any{"7": "v"}}),
	}, true)
	require.NoError(t, err)
	return s
}

func TestSearch_PatternAndTerms(t *testing.T) {
	s := seeded(t)
	res, err := s.Search(context.Background(), docstore.SearchRequest{
		Index:      "inv_obj_*",
		Filter:     docstore.TermsInt64("p_id", []int64{1}),
		Sort:       []docstore.SortField{{Field: "id"}},
		TrackTotal: true,
	})
	require.NoError(t, err)
	require.Len(t, res.Hits, 2)
	assert.Equal(t, int64(2), res.Total)
	assert.Equal(t, "2", res.Hits[0].ID)
	assert.Equal(t, "inv_obj_2", res.Hits[1].Index)
}

func TestSearch_MissingConcreteIndex(t *testing.T) {
	s := New()
	_, err := s.Search(context.Background(), docstore.SearchRequest{Index: "nope"})
	assert.ErrorIs(t, err, docstore.ErrIndexNotFound)

	res, err := s.Search(context.Background(), docstore.SearchRequest{Index: "nope_*"})
	require.NoError(t, err)
	assert.Empty(t, res.Hits)
}

func TestSearch_ArrayAnyMatchAndNullExists(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	res, err := s.Search(ctx, docstore.SearchRequest{Index: "inv_obj_1", Filter: docstore.Term("tags", "y")})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "1", res.Hits[0].ID)

	res, err = s.Search(ctx, docstore.SearchRequest{Index: "inv_obj_*", Filter: docstore.Not(docstore.Exists("p_id"))})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "1", res.Hits[0].ID)
}

func TestScanAll_Pages(t *testing.T) {
	s := seeded(t)
	var ids []string
	err := docstore.ScanAll(context.Background(), s, docstore.SearchRequest{Index: "inv_obj_*", Size: 1}, func(hits []docstore.Hit) error {
		for _, h := range hits {
			ids = append(ids, h.ID)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, ids)
}

func TestSearch_SourceFiltering(t *testing.T) {
	s := seeded(t)
	res, err := s.Search(context.Background(), docstore.SearchRequest{
		Index:   "inv_obj_2",
		Exclude: []string{"parameters.7"},
	})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, map[string]any{}, res.Hits[0].Source["parameters"])

	res, err = s.Search(context.Background(), docstore.SearchRequest{Index: "inv_obj_2", Include: []string{"name"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "c"}, res.Hits[0].Source)
}

func TestBulk_PartialUpdateMergesAndReportsMissing(t *testing.T) {
	s := seeded(t)
	n, err := s.Bulk(context.Background(), []docstore.Action{
		docstore.UpdateAction("inv_obj_2", "3", map[string]any{"name": "c2", "parameters": map[string]any{"8": int64(1)}}),
		docstore.UpdateAction("inv_obj_2", "99", map[string]any{"name": "ghost"}),
	}, true)
	assert.Equal(t, 1, n)
	be, ok := docstore.AsBulkError(err)
	require.True(t, ok)
	require.Len(t, be.Items, 1)
	assert.Equal(t, "99", be.Items[0].ID)

	doc, ok := s.Get("inv_obj_2", "3")
	require.True(t, ok)
	assert.Equal(t, "c2", doc["name"])
	assert.Equal(t, map[string]any{"7": "v", "8": int64(1)}, doc["parameters"])
}

func TestUpdateByQuery_Scripts(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	n, err := s.UpdateByQuery(ctx, "inv_obj_*", docstore.TermsInt64("p_id", []int64{1}),
		docstore.Script{docstore.SetByKey("parent_name", "p_id", map[int64]any{1: "A"})}, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	doc, _ := s.Get("inv_obj_1", "2")
	assert.Equal(t, "A", doc["parent_name"])

	_, err = s.UpdateByQuery(ctx, "inv_obj_1", docstore.Term("id", int64(1)),
		docstore.Script{docstore.SetElement("tags", 1, "z"), docstore.SetElement("tags", 5, "w")}, true)
	require.NoError(t, err)
	doc, _ = s.Get("inv_obj_1", "1")
	assert.Equal(t, []any{"x", "z", "w"}, doc["tags"])
}

func TestDeleteByQuery(t *testing.T) {
	s := seeded(t)
	n, err := s.DeleteByQuery(context.Background(), "inv_obj_*", docstore.TermsInt64("id", []int64{1, 3}), true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 1, s.Count("inv_obj_1"))
	assert.Equal(t, 0, s.Count("inv_obj_2"))
}

func TestAggregate_GroupByWithMetrics(t *testing.T) {
	s := seeded(t)
	buckets, err := s.Aggregate(context.Background(), docstore.AggRequest{
		Index:   "inv_obj_*",
		Filter:  docstore.Exists("p_id"),
		GroupBy: "p_id",
		Metrics: []docstore.Metric{{Name: "max_id", Op: docstore.MetricMax, Field: "id"}},
	})
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, int64(2), buckets[0].Count)
	assert.Equal(t, int64(3), buckets[0].Values["max_id"])
}

func TestMappings(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	require.NoError(t, s.PutMapping(ctx, "inv_obj_1", map[string]docstore.FieldType{"parameters.5": docstore.TypeLong}))
	require.NoError(t, s.PutMapping(ctx, "inv_obj_1", map[string]docstore.FieldType{"parameters.5": docstore.TypeLong}))
	err := s.PutMapping(ctx, "inv_obj_1", map[string]docstore.FieldType{"parameters.5": docstore.TypeKeyword})
	assert.ErrorIs(t, err, docstore.ErrMappingConflict)

	m, err := s.GetMapping(ctx, "inv_obj_1")
	require.NoError(t, err)
	assert.Equal(t, docstore.TypeLong, m.Fields["parameters.5"])

	assert.ErrorIs(t, s.CreateIndex(ctx, "inv_obj_1", docstore.Mapping{}), docstore.ErrIndexExists)

	names, err := s.ListIndices(ctx, "inv_obj_*")
	require.NoError(t, err)
	assert.Equal(t, []string{"inv_obj_1", "inv_obj_2"}, names)

	require.NoError(t, s.DeleteIndex(ctx, "inv_obj_*"))
	exists, err := s.IndexExists(ctx, "inv_obj_1")
	require.NoError(t, err)
	assert.False(t, exists)
}
