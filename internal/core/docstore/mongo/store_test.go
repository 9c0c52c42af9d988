package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/syntrixbase/inventory/internal/core/docstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestBuildFilter(t *testing.T) {
	f := docstore.And(
		docstore.TermsInt64("p_id", []int64{1, 2}),
		docstore.Not(docstore.Exists("point_a_id")),
		docstore.Range("id", docstore.Bounds{Gte: int64(3)}),
	)
	got := buildFilter(f)
	want := bson.M{"$and": bson.A{
		bson.M{"p_id": bson.M{"$in": bson.A{int64(1), int64(2)}}},
		bson.M{"$nor": bson.A{bson.M{"point_a_id": bson.M{"$exists": true, "$ne": nil}}}},
		bson.M{"id": bson.M{"$gte": int64(3)}},
	}}
	assert.Equal(t, want, got)
	assert.Equal(t, bson.M{}, buildFilter(docstore.Filter{}))
	assert.Equal(t, bson.M{"path": bson.M{"$regex": `^a\.b`}}, buildFilter(docstore.Prefix("path", "a.b")))
}

func TestKeysetFilter(t *testing.T) {
	got := keysetFilter([]docstore.SortField{{Field: "name", Desc: true}, {Field: "_id"}}, []any{"n", "7"})
	want := bson.M{"$or": bson.A{
		bson.M{"name": bson.M{"$lt": "n"}},
		bson.M{"name": "n", "_id": bson.M{"$gt": "7"}},
	}}
	assert.Equal(t, want, got)
}

func TestPatternRegex(t *testing.T) {
	assert.Equal(t, `^inv_obj_.*$`, patternRegex("inv_obj_*"))
	assert.Equal(t, `^a\.b$`, patternRegex("a.b"))
}

func TestNormalizeValue(t *testing.T) {
	got := normalizeDoc(bson.M{
		"n":   int32(4),
		"sub": bson.M{"arr": bson.A{int32(1), "x"}},
	})
	assert.Equal(t, map[string]any{"n": int64(4), "sub": map[string]any{"arr": []any{int64(1), "x"}}}, got)
}

// The integration tests run against a live server when INVENTORY_TEST_MONGO_URI is set.
func setupStore(t *testing.T) docstore.Store {
	uri := os.Getenv("INVENTORY_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("INVENTORY_TEST_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	require.NoError(t, client.Ping(ctx, nil))

	dbName := fmt.Sprintf("test_docstore_%d", time.Now().UnixNano()%100000)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Database(dbName).Drop(ctx)
		_ = client.Disconnect(ctx)
	})
	return NewStore(client, client.Database(dbName), testLogger())
}

func TestStore_BulkSearchAndCascade(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateIndex(ctx, "inv_obj_1", docstore.Mapping{Fields: map[string]docstore.FieldType{"id": docstore.TypeLong}}))
	assert.ErrorIs(t, s.CreateIndex(ctx, "inv_obj_1", docstore.Mapping{}), docstore.ErrIndexExists)

	_, err := s.Bulk(ctx, []docstore.Action{
		docstore.IndexAction("inv_obj_1", "1", map[string]any{"id": int64(1), "name": "a"}),
		docstore.IndexAction("inv_obj_1", "2", map[string]any{"id": int64(2), "name": "b", "p_id": int64(1), "parameters": map[string]any{"5": "x"}}),
	}, true)
	require.NoError(t, err)

	n, err := s.Bulk(ctx, []docstore.Action{
		docstore.UpdateAction("inv_obj_1", "2", map[string]any{"parameters": map[string]any{"6": "y"}}),
		docstore.UpdateAction("inv_obj_1", "9", map[string]any{"name": "ghost"}),
	}, true)
	assert.Equal(t, 1, n)
	be, ok := docstore.AsBulkError(err)
	require.True(t, ok)
	assert.Equal(t, "9", be.Items[0].ID)

	count, err := s.UpdateByQuery(ctx, "inv_obj_*", docstore.TermsInt64("p_id", []int64{1}),
		docstore.Script{docstore.Set("parent_name", nil), docstore.Set("p_id", nil)}, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	res, err := s.Search(ctx, docstore.SearchRequest{Index: "inv_obj_1", Filter: docstore.Term("id", int64(2))})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Nil(t, res.Hits[0].Source["p_id"])
	assert.Equal(t, map[string]any{"5": "x", "6": "y"}, res.Hits[0].Source["parameters"])

	require.NoError(t, s.PutMapping(ctx, "inv_obj_1", map[string]docstore.FieldType{"parameters.5": docstore.TypeKeyword}))
	assert.ErrorIs(t, s.PutMapping(ctx, "inv_obj_1", map[string]docstore.FieldType{"parameters.5": docstore.TypeLong}), docstore.ErrMappingConflict)

	require.NoError(t, s.DeleteIndex(ctx, "inv_obj_*"))
	exists, err := s.IndexExists(ctx, "inv_obj_1")
	require.NoError(t, err)
	assert.False(t, exists)
}
