// Package mongo implements the docstore contract on MongoDB. Every index is
// one collection; declared mappings live in the _mappings collection.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/syntrixbase/inventory/internal/core/docstore"
)

const mappingsCollection = "_mappings"

type store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
	owned  bool
}

// NewStore wraps an existing database. The caller keeps ownership of client.
func NewStore(client *mongo.Client, db *mongo.Database, logger *slog.Logger) docstore.Store {
	return &store{client: client, db: db, logger: logger.With("component", "docstore-mongo")}
}

// Connect dials uri and returns a store that disconnects on Close.
func Connect(ctx context.Context, uri, dbName string, logger *slog.Logger) (docstore.Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	s := &store{client: client, db: client.Database(dbName), logger: logger.With("component", "docstore-mongo"), owned: true}
	return s, nil
}

func (s *store) Close(ctx context.Context) error {
	if !s.owned {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func (s *store) collection(name string, refresh bool) *mongo.Collection {
	if refresh {
		return s.db.Collection(name, options.Collection().SetWriteConcern(writeconcern.Majority()))
	}
	return s.db.Collection(name)
}

// resolve expands an index name or pattern against the mapping registry.
func (s *store) resolve(ctx context.Context, name string) ([]string, error) {
	if !docstore.IsPattern(name) {
		ok, err := s.IndexExists(ctx, name)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", docstore.ErrIndexNotFound, name)
		}
		return []string{name}, nil
	}
	return s.ListIndices(ctx, name)
}

func (s *store) Search(ctx context.Context, req docstore.SearchRequest) (*docstore.SearchResult, error) {
	names, err := s.resolve(ctx, req.Index)
	if err != nil {
		return nil, err
	}
	size := req.Size
	if size <= 0 {
		size = docstore.DefaultPageSize
	}
	base := buildFilter(req.Filter)
	query := base
	if len(req.SearchAfter) > 0 {
		query = bson.M{"$and": bson.A{base, keysetFilter(req.Sort, req.SearchAfter)}}
	}

	opts := options.Find().SetLimit(int64(size))
	if len(req.Sort) > 0 {
		opts.SetSort(sortDoc(req.Sort))
	}
	if len(req.Include) > 0 {
		proj := bson.M{}
		for _, f := range req.Include {
			proj[f] = 1
		}
		opts.SetProjection(proj)
	}

	res := &docstore.SearchResult{}
	for _, name := range names {
		coll := s.db.Collection(name)
		cursor, err := coll.Find(ctx, query, opts)
		if err != nil {
			return nil, fmt.Errorf("search %s: %w", name, err)
		}
		var raw []bson.M
		if err := cursor.All(ctx, &raw); err != nil {
			return nil, fmt.Errorf("search %s: %w", name, err)
		}
		for _, r := range raw {
			res.Hits = append(res.Hits, toHit(name, r, req))
		}
		if req.TrackTotal {
			n, err := coll.CountDocuments(ctx, base)
			if err != nil {
				return nil, fmt.Errorf("count %s: %w", name, err)
			}
			res.Total += n
		}
	}
	if len(names) > 1 {
		sort.SliceStable(res.Hits, func(i, j int) bool {
			return compareSort(res.Hits[i].Sort, res.Hits[j].Sort, req.Sort) < 0
		})
		if len(res.Hits) > size {
			res.Hits = res.Hits[:size]
		}
	}
	return res, nil
}

func toHit(index string, raw bson.M, req docstore.SearchRequest) docstore.Hit {
	doc := normalizeDoc(raw)
	id := fmt.Sprint(doc["_id"])
	delete(doc, "_id")
	hit := docstore.Hit{Index: index, ID: id}
	for _, f := range req.Sort {
		if f.Field == docstore.FieldDocID {
			hit.Sort = append(hit.Sort, id)
			continue
		}
		v, _ := docstore.GetPath(doc, f.Field)
		hit.Sort = append(hit.Sort, v)
	}
	hit.Source = docstore.ProjectSource(doc, nil, req.Exclude)
	return hit
}

func compareSort(a, b []any, fields []docstore.SortField) int {
	for i := range fields {
		if i >= len(a) || i >= len(b) {
			break
		}
		c := docstore.Compare(a[i], b[i])
		if fields[i].Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

func sortDoc(fields []docstore.SortField) bson.D {
	d := bson.D{}
	for _, f := range fields {
		dir := 1
		if f.Desc {
			dir = -1
		}
		d = append(d, bson.E{Key: f.Field, Value: dir})
	}
	return d
}

// keysetFilter selects documents strictly after the given sort values.
func keysetFilter(fields []docstore.SortField, after []any) bson.M {
	var or bson.A
	for i := range fields {
		if i >= len(after) {
			break
		}
		clause := bson.M{}
		for j := 0; j < i; j++ {
			clause[fields[j].Field] = after[j]
		}
		op := "$gt"
		if fields[i].Desc {
			op = "$lt"
		}
		clause[fields[i].Field] = bson.M{op: after[i]}
		or = append(or, clause)
	}
	if len(or) == 0 {
		return bson.M{}
	}
	return bson.M{"$or": or}
}

func (s *store) Aggregate(ctx context.Context, req docstore.AggRequest) ([]docstore.Bucket, error) {
	names, err := s.resolve(ctx, req.Index)
	if err != nil {
		return nil, err
	}
	match := req.Filter
	if req.GroupBy != "" {
		match = docstore.And(req.Filter, docstore.Exists(req.GroupBy))
	}
	group := bson.M{"count": bson.M{"$sum": 1}}
	if req.GroupBy != "" {
		group["_id"] = "$" + req.GroupBy
	} else {
		group["_id"] = nil
	}
	for _, m := range req.Metrics {
		switch m.Op {
		case docstore.MetricMin:
			group["m_"+m.Name] = bson.M{"$min": "$" + m.Field}
		case docstore.MetricMax:
			group["m_"+m.Name] = bson.M{"$max": "$" + m.Field}
		case docstore.MetricSum:
			group["m_"+m.Name] = bson.M{"$sum": "$" + m.Field}
		}
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: buildFilter(match)}},
		{{Key: "$group", Value: group}},
	}

	merged := make(map[string]*docstore.Bucket)
	for _, name := range names {
		cursor, err := s.db.Collection(name).Aggregate(ctx, pipeline)
		if err != nil {
			return nil, fmt.Errorf("aggregate %s: %w", name, err)
		}
		var rows []bson.M
		if err := cursor.All(ctx, &rows); err != nil {
			return nil, fmt.Errorf("aggregate %s: %w", name, err)
		}
		for _, r := range rows {
			row := normalizeDoc(r)
			key := row["_id"]
			count, _ := docstore.AsFloat(row["count"])
			gk := fmt.Sprintf("%v", key)
			b, ok := merged[gk]
			if !ok {
				b = &docstore.Bucket{Key: key, Values: map[string]any{}}
				merged[gk] = b
			}
			b.Count += int64(count)
			for _, m := range req.Metrics {
				mergeMetric(b.Values, m, row["m_"+m.Name])
			}
		}
	}
	out := make([]docstore.Bucket, 0, len(merged))
	for _, b := range merged {
		for _, m := range req.Metrics {
			if m.Op == docstore.MetricCount {
				b.Values[m.Name] = b.Count
			}
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return docstore.Compare(out[i].Key, out[j].Key) < 0 })
	return out, nil
}

func mergeMetric(values map[string]any, m docstore.Metric, v any) {
	if v == nil {
		return
	}
	cur, seen := values[m.Name]
	switch m.Op {
	case docstore.MetricMin:
		if !seen || docstore.Compare(v, cur) < 0 {
			values[m.Name] = v
		}
	case docstore.MetricMax:
		if !seen || docstore.Compare(v, cur) > 0 {
			values[m.Name] = v
		}
	case docstore.MetricSum:
		f, _ := docstore.AsFloat(v)
		prev, _ := docstore.AsFloat(cur)
		values[m.Name] = prev + f
	}
}

func (s *store) Bulk(ctx context.Context, actions []docstore.Action, refresh bool) (int, error) {
	var order []string
	byIndex := make(map[string][]docstore.Action)
	for _, a := range actions {
		if _, ok := byIndex[a.Index]; !ok {
			order = append(order, a.Index)
		}
		byIndex[a.Index] = append(byIndex[a.Index], a)
	}

	var failed []docstore.BulkItemError
	ok := 0
	for _, name := range order {
		coll := s.collection(name, refresh)
		group := byIndex[name]

		missing, err := s.missingUpdateTargets(ctx, coll, group)
		if err != nil {
			return ok, fmt.Errorf("bulk %s: %w", name, err)
		}
		var models []mongo.WriteModel
		var sent []docstore.Action
		for _, a := range group {
			switch a.Op {
			case docstore.OpIndex:
				doc := bson.M{}
				for k, v := range a.Doc {
					doc[k] = v
				}
				doc["_id"] = a.ID
				models = append(models, mongo.NewReplaceOneModel().SetFilter(bson.M{"_id": a.ID}).SetReplacement(doc).SetUpsert(true))
			case docstore.OpUpdate:
				if missing[a.ID] {
					failed = append(failed, docstore.BulkItemError{Op: a.Op, Index: a.Index, ID: a.ID, Reason: docstore.ReasonDocumentMissing})
					continue
				}
				set := docstore.UpdatePaths(a)
				if len(set) == 0 {
					ok++
					continue
				}
				models = append(models, mongo.NewUpdateOneModel().SetFilter(bson.M{"_id": a.ID}).SetUpdate(bson.M{"$set": set}))
			case docstore.OpDelete:
				models = append(models, mongo.NewDeleteOneModel().SetFilter(bson.M{"_id": a.ID}))
			default:
				failed = append(failed, docstore.BulkItemError{Op: a.Op, Index: a.Index, ID: a.ID, Reason: "unknown op"})
				continue
			}
			sent = append(sent, a)
		}
		if len(models) == 0 {
			continue
		}
		_, err = coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
		if err != nil {
			var bwe mongo.BulkWriteException
			if !errors.As(err, &bwe) || len(bwe.WriteErrors) == 0 {
				return ok, fmt.Errorf("bulk %s: %w", name, err)
			}
			for _, we := range bwe.WriteErrors {
				a := sent[we.Index]
				failed = append(failed, docstore.BulkItemError{Op: a.Op, Index: a.Index, ID: a.ID, Reason: we.Message})
			}
			ok += len(sent) - len(bwe.WriteErrors)
			continue
		}
		ok += len(sent)
	}
	if len(failed) > 0 {
		s.logger.Error("Bulk write rejected items", "rejected", len(failed), "accepted", ok)
		return ok, &docstore.BulkError{Items: failed}
	}
	return ok, nil
}

func (s *store) missingUpdateTargets(ctx context.Context, coll *mongo.Collection, actions []docstore.Action) (map[string]bool, error) {
	var ids bson.A
	for _, a := range actions {
		if a.Op == docstore.OpUpdate {
			ids = append(ids, a.ID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	cursor, err := coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	var found []bson.M
	if err := cursor.All(ctx, &found); err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(found))
	for _, f := range found {
		present[fmt.Sprint(f["_id"])] = true
	}
	missing := make(map[string]bool)
	for _, id := range ids {
		if !present[id.(string)] {
			missing[id.(string)] = true
		}
	}
	return missing, nil
}

func (s *store) UpdateByQuery(ctx context.Context, index string, filter docstore.Filter, script docstore.Script, refresh bool) (int64, error) {
	names, err := s.resolve(ctx, index)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, name := range names {
		coll := s.collection(name, refresh)
		ids, err := matchingIDs(ctx, coll, buildFilter(filter))
		if err != nil {
			return total, fmt.Errorf("update by query %s: %w", name, err)
		}
		if len(ids) == 0 {
			continue
		}
		pinned := bson.M{"_id": bson.M{"$in": ids}}
		for _, op := range script {
			if err := applyScript(ctx, coll, pinned, op); err != nil {
				return total, fmt.Errorf("update by query %s: %w", name, err)
			}
		}
		total += int64(len(ids))
	}
	return total, nil
}

func matchingIDs(ctx context.Context, coll *mongo.Collection, filter bson.M) (bson.A, error) {
	cursor, err := coll.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	var rows []bson.M
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	ids := make(bson.A, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r["_id"])
	}
	return ids, nil
}

func applyScript(ctx context.Context, coll *mongo.Collection, pinned bson.M, op docstore.ScriptOp) error {
	switch op.Kind {
	case docstore.ScriptSet:
		_, err := coll.UpdateMany(ctx, pinned, bson.M{"$set": bson.M{op.Field: op.Value}})
		return err
	case docstore.ScriptSetByKey:
		for key, v := range op.ByKey {
			f := bson.M{"$and": bson.A{pinned, bson.M{op.KeyField: key}}}
			if _, err := coll.UpdateMany(ctx, f, bson.M{"$set": bson.M{op.Field: v}}); err != nil {
				return err
			}
		}
		return nil
	case docstore.ScriptSetElement:
		cursor, err := coll.Find(ctx, pinned, options.Find().SetProjection(bson.M{op.Field: 1}))
		if err != nil {
			return err
		}
		var rows []bson.M
		if err := cursor.All(ctx, &rows); err != nil {
			return err
		}
		for _, r := range rows {
			doc := normalizeDoc(r)
			cur, _ := docstore.GetPath(doc, op.Field)
			arr, ok := cur.([]any)
			switch {
			case !ok:
				arr = []any{op.Value}
			case op.Position >= 0 && op.Position < len(arr):
				arr[op.Position] = op.Value
			default:
				arr = append(arr, op.Value)
			}
			if _, err := coll.UpdateOne(ctx, bson.M{"_id": r["_id"]}, bson.M{"$set": bson.M{op.Field: arr}}); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown script op %q", op.Kind)
	}
}

func (s *store) DeleteByQuery(ctx context.Context, index string, filter docstore.Filter, refresh bool) (int64, error) {
	names, err := s.resolve(ctx, index)
	if err != nil {
		return 0, err
	}
	var total int64
	f := buildFilter(filter)
	for _, name := range names {
		res, err := s.collection(name, refresh).DeleteMany(ctx, f)
		if err != nil {
			return total, fmt.Errorf("delete by query %s: %w", name, err)
		}
		total += res.DeletedCount
	}
	return total, nil
}

type mappingField struct {
	Path string `bson:"path"`
	Type string `bson:"type"`
}

type mappingDoc struct {
	Name     string         `bson:"_id"`
	Fields   []mappingField `bson:"fields"`
	Settings bson.M         `bson:"settings,omitempty"`
}

func (s *store) CreateIndex(ctx context.Context, name string, mapping docstore.Mapping) error {
	doc := mappingDoc{Name: name, Settings: bson.M{}}
	for k, v := range mapping.Settings {
		doc.Settings[k] = v
	}
	for path, typ := range mapping.Fields {
		doc.Fields = append(doc.Fields, mappingField{Path: path, Type: string(typ)})
	}
	sort.Slice(doc.Fields, func(i, j int) bool { return doc.Fields[i].Path < doc.Fields[j].Path })

	_, err := s.collection(mappingsCollection, true).InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %s", docstore.ErrIndexExists, name)
	}
	if err != nil {
		return err
	}
	if err := s.db.CreateCollection(ctx, name); err != nil {
		var ce mongo.CommandError
		// NamespaceExists: a previous run dropped the mapping but not the data.
		if !errors.As(err, &ce) || ce.Code != 48 {
			return err
		}
	}
	var models []mongo.IndexModel
	for _, f := range doc.Fields {
		if strings.Contains(f.Path, ".") {
			continue
		}
		switch docstore.FieldType(f.Type) {
		case docstore.TypeKeyword, docstore.TypeLong, docstore.TypeDate, docstore.TypeBoolean:
			models = append(models, mongo.IndexModel{Keys: bson.D{{Key: f.Path, Value: 1}}})
		}
	}
	if len(models) > 0 {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes for %s: %w", name, err)
		}
	}
	return nil
}

func (s *store) DeleteIndex(ctx context.Context, names ...string) error {
	for _, name := range names {
		targets := []string{name}
		if docstore.IsPattern(name) {
			var err error
			if targets, err = s.ListIndices(ctx, name); err != nil {
				return err
			}
		}
		for _, t := range targets {
			if err := s.db.Collection(t).Drop(ctx); err != nil {
				return fmt.Errorf("drop %s: %w", t, err)
			}
			if _, err := s.collection(mappingsCollection, true).DeleteOne(ctx, bson.M{"_id": t}); err != nil {
				return fmt.Errorf("drop mapping %s: %w", t, err)
			}
		}
	}
	return nil
}

func (s *store) IndexExists(ctx context.Context, name string) (bool, error) {
	n, err := s.db.Collection(mappingsCollection).CountDocuments(ctx, bson.M{"_id": name})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *store) ListIndices(ctx context.Context, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}
	cursor, err := s.db.Collection(mappingsCollection).Find(ctx,
		bson.M{"_id": bson.M{"$regex": patternRegex(pattern)}},
		options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var rows []bson.M
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, fmt.Sprint(r["_id"]))
	}
	return names, nil
}

func patternRegex(pattern string) string {
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return "^" + strings.Join(parts, ".*") + "$"
}

func (s *store) GetMapping(ctx context.Context, name string) (docstore.Mapping, error) {
	var doc mappingDoc
	err := s.db.Collection(mappingsCollection).FindOne(ctx, bson.M{"_id": name}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return docstore.Mapping{}, fmt.Errorf("%w: %s", docstore.ErrIndexNotFound, name)
	}
	if err != nil {
		return docstore.Mapping{}, err
	}
	m := docstore.Mapping{Fields: make(map[string]docstore.FieldType, len(doc.Fields)), Settings: map[string]any{}}
	for _, f := range doc.Fields {
		m.Fields[f.Path] = docstore.FieldType(f.Type)
	}
	for k, v := range doc.Settings {
		m.Settings[k] = v
	}
	return m, nil
}

func (s *store) PutMapping(ctx context.Context, name string, fields map[string]docstore.FieldType) error {
	current, err := s.GetMapping(ctx, name)
	if err != nil {
		return err
	}
	var added []mappingField
	for path, typ := range fields {
		existing, ok := current.Fields[path]
		if ok && existing != typ {
			return fmt.Errorf("%w: %s.%s is %s, not %s", docstore.ErrMappingConflict, name, path, existing, typ)
		}
		if !ok {
			added = append(added, mappingField{Path: path, Type: string(typ)})
		}
	}
	if len(added) == 0 {
		return nil
	}
	sort.Slice(added, func(i, j int) bool { return added[i].Path < added[j].Path })
	_, err = s.collection(mappingsCollection, true).UpdateOne(ctx,
		bson.M{"_id": name},
		bson.M{"$push": bson.M{"fields": bson.M{"$each": added}}})
	return err
}
