package changes

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntrixbase/inventory/internal/core/docstore"
	"github.com/syntrixbase/inventory/internal/core/docstore/memory"
	"github.com/syntrixbase/inventory/internal/inventory/model"
	"github.com/syntrixbase/inventory/internal/inventory/resolver"
	"github.com/syntrixbase/inventory/internal/inventory/value"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func ptr[T any](v T) *T { return &v }

const (
	tmoSite  = int64(1)
	tmoCable = int64(2)

	tprmColor      = int64(100) // str
	tprmPorts      = int64(101) // int, multiple
	tprmLink       = int64(102) // object_link
	tprmLinks      = int64(103) // object_link, multiple
	tprmColorRef   = int64(104) // parameter_link -> color
	tprmColorRefs  = int64(105) // parameter_link, multiple -> color
	tprmLinkRef    = int64(106) // parameter_link -> object_link
	tprmTags       = int64(107) // str, multiple
	tprmTagsRef    = int64(108) // parameter_link -> tags
	tprmTagsRefs   = int64(109) // parameter_link, multiple -> tags
	tprmLength     = int64(110) // int
	tprmUnknownRef = int64(120)
)

type fixture struct {
	store      *memory.Store
	idx        model.Indices
	objects    *ObjectHandler
	parameters *ParameterHandler
	types      *TypeHandler
	router     *Router
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	idx := model.DefaultIndices()
	require.NoError(t, EnsureIndices(ctx, store, idx))

	r := resolver.New(store, idx, testLogger())
	f := &fixture{
		store:      store,
		idx:        idx,
		objects:    NewObjectHandler(store, r, NewLinkRenamer(store, r, testLogger()), opts, testLogger()),
		parameters: NewParameterHandler(store, r, opts, testLogger()),
		types:      NewTypeHandler(store, r, testLogger()),
		router:     NewRouter(store, r, opts, testLogger()),
	}

	require.NoError(t, f.types.CreateTMOs(ctx, []model.TMO{{ID: tmoSite, Name: "site"}, {ID: tmoCable, Name: "cable"}}))
	require.NoError(t, f.types.UpsertTPRMs(ctx, []model.TPRM{
		{ID: tprmColor, TMOID: tmoCable, Kind: model.KindStr},
		{ID: tprmPorts, TMOID: tmoCable, Kind: model.KindInt, Multiple: true},
		{ID: tprmLink, TMOID: tmoCable, Kind: model.KindObjectLink},
		{ID: tprmLinks, TMOID: tmoCable, Kind: model.KindObjectLink, Multiple: true},
		{ID: tprmColorRef, TMOID: tmoCable, Kind: model.KindParameterLink, Constraint: "100"},
		{ID: tprmColorRefs, TMOID: tmoCable, Kind: model.KindParameterLink, Multiple: true, Constraint: "100"},
		{ID: tprmLinkRef, TMOID: tmoCable, Kind: model.KindParameterLink, Constraint: "102"},
		{ID: tprmTags, TMOID: tmoCable, Kind: model.KindStr, Multiple: true},
		{ID: tprmTagsRef, TMOID: tmoCable, Kind: model.KindParameterLink, Constraint: "107"},
		{ID: tprmTagsRefs, TMOID: tmoCable, Kind: model.KindParameterLink, Multiple: true, Constraint: "107"},
		{ID: tprmLength, TMOID: tmoCable, Kind: model.KindInt},
	}))

	require.NoError(t, f.objects.Create(ctx, []model.MO{
		{ID: 1, Name: "A", TMOID: tmoSite},
		{ID: 2, Name: "B", TMOID: tmoSite},
		{ID: 10, Name: "c10", TMOID: tmoCable, PID: ptr(int64(1)), PointAID: ptr(int64(1)), PointBID: ptr(int64(2))},
		{ID: 11, Name: "c11", TMOID: tmoCable},
	}))
	return f
}

func (f *fixture) object(t *testing.T, tmoID, id int64) map[string]any {
	t.Helper()
	doc, ok := f.store.Get(f.idx.Object(tmoID), model.DocID(id))
	require.True(t, ok, "object %d not indexed", id)
	return doc
}

func (f *fixture) params(t *testing.T, id int64) map[string]any {
	t.Helper()
	params, _ := f.object(t, tmoCable, id)[model.FieldParameters].(map[string]any)
	return params
}

func pickled(t *testing.T, items ...any) string {
	t.Helper()
	raw, err := value.EncodeCollection(items)
	require.NoError(t, err)
	return raw
}

func TestObjectCreate_ResolvesNamesWithinBatch(t *testing.T) {
	f := newFixture(t, Options{})

	doc := f.object(t, tmoCable, 10)
	assert.Equal(t, "A", doc[model.FieldParentName])
	assert.Equal(t, "A", doc[model.FieldPointAName])
	assert.Equal(t, "B", doc[model.FieldPointBName])
	assert.Equal(t, map[string]any{}, doc[model.FieldParameters])
	assert.Equal(t, map[string]any{"name": "c10"}, doc[model.FieldFuzzy])
	_, hasGeometry := doc[model.FieldGeometry]
	assert.False(t, hasGeometry)
}

func TestObjectCreate_SkipsUnindexedType(t *testing.T) {
	f := newFixture(t, Options{})
	err := f.objects.Create(context.Background(), []model.MO{{ID: 50, Name: "orphan", TMOID: 77}})
	require.NoError(t, err)

	ok, err := f.store.IndexExists(context.Background(), f.idx.Object(77))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestObjectCreate_UnresolvedReferenceIsNull(t *testing.T) {
	f := newFixture(t, Options{})
	require.NoError(t, f.objects.Create(context.Background(), []model.MO{{ID: 12, Name: "c12", TMOID: tmoCable, PID: ptr(int64(404))}}))

	doc := f.object(t, tmoCable, 12)
	assert.Nil(t, doc[model.FieldParentName])
	assert.Equal(t, int64(404), doc[model.FieldPID])
}

func TestObjectUpdate_RenamePropagates(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	require.NoError(t, f.parameters.Create(ctx, []model.PRM{
		{ID: 500, TPRMID: tprmLink, MOID: 11, Value: "1"},
		{ID: 501, TPRMID: tprmLinks, MOID: 11, Value: pickled(t, int64(1), int64(2), int64(99))},
		{ID: 502, TPRMID: tprmLinkRef, MOID: 10, Value: "500"},
	}))
	assert.Equal(t, "A", f.params(t, 11)["102"])
	assert.Equal(t, []any{"A", "B"}, f.params(t, 11)["103"])
	assert.Equal(t, "A", f.params(t, 10)["106"])

	require.NoError(t, f.objects.Update(ctx, []model.MO{{ID: 1, Name: "A2", TMOID: tmoSite}}))

	assert.Equal(t, "A2", f.object(t, tmoSite, 1)[model.FieldName])
	child := f.object(t, tmoCable, 10)
	assert.Equal(t, "A2", child[model.FieldParentName])
	assert.Equal(t, "A2", child[model.FieldPointAName])
	assert.Equal(t, "B", child[model.FieldPointBName])
	assert.Equal(t, "A2", f.params(t, 11)["102"])
	assert.Equal(t, []any{"A2", "B"}, f.params(t, 11)["103"])
	assert.Equal(t, "A2", f.params(t, 10)["106"])
}

func TestObjectUpdate_PartialKeepsParameters(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	require.NoError(t, f.parameters.Create(ctx, []model.PRM{{ID: 600, TPRMID: tprmColor, MOID: 11, Value: "red"}}))
	require.NoError(t, f.objects.Update(ctx, []model.MO{{ID: 11, Name: "c11x", TMOID: tmoCable, PID: ptr(int64(2)), Label: "L"}}))

	doc := f.object(t, tmoCable, 11)
	assert.Equal(t, "c11x", doc[model.FieldName])
	assert.Equal(t, "B", doc[model.FieldParentName])
	assert.Equal(t, map[string]any{"name": "c11x", "label": "L"}, doc[model.FieldFuzzy])
	assert.Equal(t, map[string]any{"100": "red"}, doc[model.FieldParameters])
}

func TestObjectUpdate_ClearsOptionalFields(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	require.NoError(t, f.objects.Update(ctx, []model.MO{{ID: 11, Name: "c11", TMOID: tmoCable, Label: "L", Status: "planned"}}))
	doc := f.object(t, tmoCable, 11)
	assert.Equal(t, "L", doc["label"])
	assert.Equal(t, map[string]any{"name": "c11", "label": "L"}, doc[model.FieldFuzzy])

	require.NoError(t, f.objects.Update(ctx, []model.MO{{ID: 11, Name: "c11", TMOID: tmoCable}}))
	doc = f.object(t, tmoCable, 11)
	assert.Nil(t, doc["label"])
	assert.Nil(t, doc["status"])
	assert.Equal(t, map[string]any{"name": "c11"}, doc[model.FieldFuzzy])
}

func TestObjectUpdate_ReplacesGeometry(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	point := map[string]any{"type": "Point", "coordinates": []any{1.0, 2.0}}
	require.NoError(t, f.objects.Update(ctx, []model.MO{{ID: 11, Name: "c11", TMOID: tmoCable, Geometry: point}}))
	assert.Equal(t, point, f.object(t, tmoCable, 11)[model.FieldGeometry])

	collection := map[string]any{
		"type":       "GeometryCollection",
		"geometries": []any{map[string]any{"type": "Point", "coordinates": []any{3.0, 4.0}}},
	}
	require.NoError(t, f.objects.Update(ctx, []model.MO{{ID: 11, Name: "c11", TMOID: tmoCable, Geometry: collection}}))
	assert.Equal(t, collection, f.object(t, tmoCable, 11)[model.FieldGeometry])

	require.NoError(t, f.objects.Update(ctx, []model.MO{{ID: 11, Name: "c11", TMOID: tmoCable}}))
	assert.Nil(t, f.object(t, tmoCable, 11)[model.FieldGeometry])
}

func TestObjectUpdate_SkipsUnindexedObject(t *testing.T) {
	f := newFixture(t, Options{})
	require.NoError(t, f.objects.Update(context.Background(), []model.MO{{ID: 999, Name: "ghost", TMOID: tmoCable}}))
	_, ok := f.store.Get(f.idx.Object(tmoCable), "999")
	assert.False(t, ok)
}

func TestObjectDelete_ClearsReferences(t *testing.T) {
	f := newFixture(t, Options{})
	require.NoError(t, f.objects.Delete(context.Background(), []model.MO{{ID: 1, TMOID: tmoSite}}))

	_, ok := f.store.Get(f.idx.Object(tmoSite), "1")
	assert.False(t, ok)

	child := f.object(t, tmoCable, 10)
	assert.Nil(t, child[model.FieldParentName])
	assert.Nil(t, child[model.FieldPID])
	assert.Nil(t, child[model.FieldPointAName])
	assert.Equal(t, "B", child[model.FieldPointBName])
}

func TestObjectDelete_KeepParentID(t *testing.T) {
	f := newFixture(t, Options{KeepParentIDOnDelete: true})
	require.NoError(t, f.objects.Delete(context.Background(), []model.MO{{ID: 1, TMOID: tmoSite}}))

	child := f.object(t, tmoCable, 10)
	assert.Nil(t, child[model.FieldParentName])
	assert.Equal(t, int64(1), child[model.FieldPID])
}

func TestParameterCreate_PlainValues(t *testing.T) {
	f := newFixture(t, Options{})
	require.NoError(t, f.parameters.Create(context.Background(), []model.PRM{
		{ID: 600, TPRMID: tprmColor, MOID: 11, Value: "red"},
		{ID: 601, TPRMID: tprmPorts, MOID: 11, Value: pickled(t, int64(8), int64(24))},
		{ID: 602, TPRMID: tprmLength, MOID: 11, Value: ""},
	}))

	params := f.params(t, 11)
	assert.Equal(t, "red", params["100"])
	assert.Equal(t, []any{int64(8), int64(24)}, params["101"])
	v, ok := params["110"]
	assert.True(t, ok, "empty plain value is still written")
	assert.Nil(t, v)
	assert.Equal(t, 3, f.store.Count(f.idx.Parameters()))
}

func TestParameterCreate_MissingObjectIsNoop(t *testing.T) {
	f := newFixture(t, Options{})
	err := f.parameters.Create(context.Background(), []model.PRM{
		{ID: 700, TPRMID: tprmColor, MOID: 999, Value: "red"},
		{ID: 701, TPRMID: 12345, MOID: 11, Value: "x"},
	})
	require.NoError(t, err)

	_, ok := f.store.Get(f.idx.Parameters(), "700")
	assert.True(t, ok)
	_, ok = f.store.Get(f.idx.Parameters(), "701")
	assert.False(t, ok)
	assert.Empty(t, f.params(t, 11))
}

func TestParameterCreate_BadValueDoesNotBlockBatch(t *testing.T) {
	f := newFixture(t, Options{})
	err := f.parameters.Create(context.Background(), []model.PRM{
		{ID: 701, TPRMID: tprmPorts, MOID: 10, Value: "zz"},
		{ID: 702, TPRMID: tprmLength, MOID: 10, Value: "9223372036854775808"},
		{ID: 703, TPRMID: tprmColor, MOID: 11, Value: "ok"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, value.ErrOutOfRange))
	var ie *ItemError
	require.True(t, errors.As(err, &ie))
	assert.False(t, Retryable(err))

	assert.Equal(t, "ok", f.params(t, 11)["100"])
	assert.Empty(t, f.params(t, 10))
}

func TestParameterCreate_ObjectLinkProjection(t *testing.T) {
	f := newFixture(t, Options{})
	require.NoError(t, f.parameters.Create(context.Background(), []model.PRM{
		{ID: 500, TPRMID: tprmLink, MOID: 11, Value: "1"},
		{ID: 501, TPRMID: tprmLinks, MOID: 11, Value: pickled(t, int64(99))},
	}))

	proj, ok := f.store.Get(f.idx.ObjectLinks(), "500")
	require.True(t, ok)
	assert.Equal(t, int64(1), proj[model.FieldValue])
	proj, ok = f.store.Get(f.idx.ObjectLinks(), "501")
	require.True(t, ok)
	assert.Equal(t, []any{int64(99)}, proj[model.FieldValue])

	raw, ok := f.store.Get(f.idx.Parameters(), "501")
	require.True(t, ok)
	assert.Equal(t, pickled(t, int64(99)), raw[model.FieldValue])

	params := f.params(t, 11)
	assert.Equal(t, "A", params["102"])
	_, ok = params["103"]
	assert.False(t, ok, "a link resolving to nothing is not written")
}

func TestParameterCreate_ParameterLinkShapes(t *testing.T) {
	f := newFixture(t, Options{})
	require.NoError(t, f.parameters.Create(context.Background(), []model.PRM{
		{ID: 600, TPRMID: tprmColor, MOID: 11, Value: "red"},
		{ID: 601, TPRMID: tprmColor, MOID: 10, Value: "blue"},
		{ID: 602, TPRMID: tprmTags, MOID: 10, Value: pickled(t, "x", "y")},
		{ID: 610, TPRMID: tprmColorRef, MOID: 10, Value: "600"},
		{ID: 611, TPRMID: tprmColorRefs, MOID: 10, Value: pickled(t, int64(600), int64(601), int64(999))},
		{ID: 612, TPRMID: tprmTagsRef, MOID: 11, Value: "602"},
		{ID: 613, TPRMID: tprmTagsRefs, MOID: 11, Value: pickled(t, int64(602))},
	}))

	p10 := f.params(t, 10)
	assert.Equal(t, "red", p10["104"])
	assert.Equal(t, []any{"red", "blue"}, p10["105"])

	p11 := f.params(t, 11)
	assert.Equal(t, []any{"x", "y"}, p11["108"])
	assert.Equal(t, []any{[]any{"x", "y"}}, p11["109"])

	proj, ok := f.store.Get(f.idx.ParameterLinks(), "611")
	require.True(t, ok)
	assert.Equal(t, []any{int64(600), int64(601), int64(999)}, proj[model.FieldValue])
}

func TestParameterUpdate_RefreshesLinksToTarget(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	require.NoError(t, f.parameters.Create(ctx, []model.PRM{
		{ID: 600, TPRMID: tprmColor, MOID: 11, Value: "red"},
		{ID: 601, TPRMID: tprmColor, MOID: 10, Value: "blue"},
		{ID: 610, TPRMID: tprmColorRef, MOID: 10, Value: "600"},
		{ID: 611, TPRMID: tprmColorRefs, MOID: 10, Value: pickled(t, int64(600), int64(601))},
	}))

	require.NoError(t, f.parameters.Update(ctx, []model.PRM{{ID: 601, TPRMID: tprmColor, MOID: 10, Value: "green"}}))
	p10 := f.params(t, 10)
	assert.Equal(t, "green", p10["100"])
	assert.Equal(t, []any{"red", "green"}, p10["105"])
	assert.Equal(t, "red", p10["104"])

	require.NoError(t, f.parameters.Update(ctx, []model.PRM{{ID: 600, TPRMID: tprmColor, MOID: 11, Value: "pink"}}))
	p10 = f.params(t, 10)
	assert.Equal(t, "pink", p10["104"])
	assert.Equal(t, []any{"pink", "green"}, p10["105"])
}

func TestParameterUpdate_SkipsUnresolvedSiblings(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	require.NoError(t, f.parameters.Create(ctx, []model.PRM{
		{ID: 600, TPRMID: tprmColor, MOID: 11, Value: "red"},
		{ID: 601, TPRMID: tprmColor, MOID: 10, Value: "blue"},
		{ID: 611, TPRMID: tprmColorRefs, MOID: 10, Value: pickled(t, int64(999), int64(600), int64(601))},
	}))
	assert.Equal(t, []any{"red", "blue"}, f.params(t, 10)["105"])

	require.NoError(t, f.parameters.Update(ctx, []model.PRM{{ID: 601, TPRMID: tprmColor, MOID: 10, Value: "green"}}))
	assert.Equal(t, []any{"red", "green"}, f.params(t, 10)["105"])
}

func TestParameterDelete(t *testing.T) {
	ctx := context.Background()
	prms := []model.PRM{
		{ID: 500, TPRMID: tprmLink, MOID: 11, Value: "1"},
		{ID: 600, TPRMID: tprmColor, MOID: 11, Value: "red"},
	}

	t.Run("leaves owner untouched", func(t *testing.T) {
		f := newFixture(t, Options{})
		require.NoError(t, f.parameters.Create(ctx, prms))
		require.NoError(t, f.parameters.Delete(ctx, prms))

		assert.Equal(t, 0, f.store.Count(f.idx.Parameters()))
		assert.Equal(t, 0, f.store.Count(f.idx.ObjectLinks()))
		assert.Equal(t, "A", f.params(t, 11)["102"])
	})

	t.Run("clears owner when configured", func(t *testing.T) {
		f := newFixture(t, Options{ClearDeletedParameters: true})
		require.NoError(t, f.parameters.Create(ctx, prms))
		require.NoError(t, f.parameters.Delete(ctx, prms[:1]))

		params := f.params(t, 11)
		assert.Nil(t, params["102"])
		assert.Equal(t, "red", params["100"])
	})
}

func TestTypeHandler_TPRMMappings(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	m, err := f.store.GetMapping(ctx, f.idx.Object(tmoCable))
	require.NoError(t, err)
	assert.Equal(t, docstore.TypeKeyword, m.Fields["parameters.100"])
	assert.Equal(t, docstore.TypeLong, m.Fields["parameters.101"])
	assert.Equal(t, docstore.TypeKeyword, m.Fields["parameters.102"])
	assert.Equal(t, docstore.TypeKeyword, m.Fields["parameters.104"])
	assert.Equal(t, docstore.TypeKeyword, m.Fields["parameters.106"])

	// Re-declaring the same field is a no-op.
	require.NoError(t, f.types.UpsertTPRMs(ctx, []model.TPRM{{ID: tprmColor, TMOID: tmoCable, Kind: model.KindStr, Version: 2}}))
	doc, ok := f.store.Get(f.idx.TPRM(), "100")
	require.True(t, ok)
	assert.Equal(t, int64(2), doc["version"])
}

func TestTypeHandler_RejectsChainedParameterLink(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	err := f.types.UpsertTPRMs(ctx, []model.TPRM{{ID: tprmUnknownRef, TMOID: tmoCable, Kind: model.KindParameterLink, Constraint: "104"}})
	require.Error(t, err)
	assert.False(t, Retryable(err))

	_, ok := f.store.Get(f.idx.TPRM(), "120")
	assert.False(t, ok)
	m, err := f.store.GetMapping(ctx, f.idx.Object(tmoCable))
	require.NoError(t, err)
	_, mapped := m.Fields["parameters.120"]
	assert.False(t, mapped)
}

func TestTypeHandler_MappingConflictIsFatal(t *testing.T) {
	f := newFixture(t, Options{})
	err := f.types.UpsertTPRMs(context.Background(), []model.TPRM{{ID: tprmColor, TMOID: tmoCable, Kind: model.KindFloat}})
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.True(t, errors.Is(err, docstore.ErrMappingConflict))
}

func TestTypeHandler_DeleteTMO(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	require.NoError(t, f.types.UpdateTMOs(ctx, []model.TMO{{ID: tmoCable, Name: "fibre"}, {ID: 404, Name: "never"}}))
	doc, ok := f.store.Get(f.idx.TMO(), "2")
	require.True(t, ok)
	assert.Equal(t, "fibre", doc[model.FieldName])

	require.NoError(t, f.types.DeleteTMOs(ctx, []model.TMO{{ID: tmoCable}}))
	exists, err := f.store.IndexExists(ctx, f.idx.Object(tmoCable))
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, 1, f.store.Count(f.idx.TMO()))
	assert.Equal(t, 0, f.store.Count(f.idx.TPRM()))
}

func TestRouter(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	err := f.router.HandleKey(ctx, "MO:exploded", []byte(`{}`))
	assert.True(t, IsFatal(err))

	err = f.router.HandleKey(ctx, "MO:created", []byte(`not json`))
	assert.True(t, IsFatal(err))

	require.NoError(t, f.router.HandleKey(ctx, "TMO:created", []byte(`{"objects":[{"id":5,"name":"rack"}]}`)))
	exists, err := f.store.IndexExists(ctx, f.idx.Object(5))
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, f.router.HandleKey(ctx, "MO:created", []byte(`{"objects":[{"id":30,"name":"r1","tmo_id":5,"p_id":1}]}`)))
	doc, ok := f.store.Get(f.idx.Object(5), "30")
	require.True(t, ok)
	assert.Equal(t, "A", doc[model.FieldParentName])

	require.NoError(t, f.router.HandleKey(ctx, "PRM:created", []byte(`{"objects":[{"id":800,"value":"red","tprm_id":100,"mo_id":11}]}`)))
	assert.Equal(t, "red", f.params(t, 11)["100"])
}

func TestParseKey(t *testing.T) {
	k, err := ParseKey("PRM:updated")
	require.NoError(t, err)
	assert.Equal(t, Key{Kind: KindPRM, Action: ActionUpdated}, k)
	assert.Equal(t, "PRM:updated", k.String())

	for _, bad := range []string{"PRM", "XYZ:created", "PRM:renamed"} {
		_, err := ParseKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(&FatalError{Err: errors.New("x")}))
	assert.True(t, Retryable(errors.New("timeout")))
	assert.False(t, Retryable(errors.Join(&ItemError{ID: 1, Err: errors.New("bad")})))
	assert.True(t, Retryable(errors.Join(&ItemError{ID: 1, Err: errors.New("bad")}, errors.New("timeout"))))
}
