// Package docstore defines the search-index document store the inventory
// engine denormalizes into, plus the shared query, bulk and script types.
//
// Backends live in sub-packages: mongo for deployments and memory for
// standalone mode and tests. Both implement Store with the same semantics:
//
//   - Search supports index patterns ("*" wildcard), sorting, source
//     filtering and search-after pagination.
//   - Bulk applies every action it can and reports the rejected subset as a
//     *BulkError; accepted actions are not rolled back.
//   - Update actions deep-merge Doc into the stored document (partial update),
//     except for the fields listed in Replace.
//   - UpdateByQuery runs a Script against every matching document.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrIndexNotFound is returned when a concrete index does not exist.
	ErrIndexNotFound = errors.New("index not found")
	// ErrIndexExists is returned by CreateIndex for an existing index.
	ErrIndexExists = errors.New("index already exists")
	// ErrMappingConflict is returned when a field is redeclared with another type.
	ErrMappingConflict = errors.New("mapping conflict")
)

// FieldDocID addresses the document id in filters and sorts.
const FieldDocID = "_id"

// Searcher reads documents.
type Searcher interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResult, error)
	Aggregate(ctx context.Context, req AggRequest) ([]Bucket, error)
}

// Writer mutates documents. refresh requests read-after-write visibility.
type Writer interface {
	Bulk(ctx context.Context, actions []Action, refresh bool) (int, error)
	UpdateByQuery(ctx context.Context, index string, filter Filter, script Script, refresh bool) (int64, error)
	DeleteByQuery(ctx context.Context, index string, filter Filter, refresh bool) (int64, error)
}

// Admin manages indices and their mappings.
type Admin interface {
	CreateIndex(ctx context.Context, name string, mapping Mapping) error
	DeleteIndex(ctx context.Context, names ...string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	ListIndices(ctx context.Context, pattern string) ([]string, error)
	GetMapping(ctx context.Context, name string) (Mapping, error)
	PutMapping(ctx context.Context, name string, fields map[string]FieldType) error
}

// Store is the full document-store contract.
type Store interface {
	Searcher
	Writer
	Admin
	Close(ctx context.Context) error
}

// SortField orders search hits.
type SortField struct {
	Field string
	Desc  bool
}

// SearchRequest describes one page of a search.
type SearchRequest struct {
	// Index is a concrete index name or a pattern containing "*".
	Index  string
	Filter Filter
	Sort   []SortField
	// Include limits the returned source to these paths. Empty means all.
	Include []string
	Exclude []string
	// Size is the page size. Zero means DefaultPageSize.
	Size int
	// SearchAfter holds the Sort values of the last hit of the previous page.
	SearchAfter []any
	TrackTotal  bool
}

// DefaultPageSize is used when SearchRequest.Size is zero.
const DefaultPageSize = 10000

// SearchResult is one page of hits.
type SearchResult struct {
	Hits  []Hit
	Total int64
}

// Hit is one matched document.
type Hit struct {
	Index  string
	ID     string
	Source map[string]any
	// Sort holds the values of the request's Sort fields for search-after.
	Sort []any
}

// ActionOp is the kind of a bulk action.
type ActionOp string

const (
	OpIndex  ActionOp = "index"
	OpUpdate ActionOp = "update"
	OpDelete ActionOp = "delete"
)

// Action is one bulk write.
type Action struct {
	Op    ActionOp
	Index string
	ID    string
	// Doc is the full source for OpIndex and the partial document for OpUpdate.
	Doc map[string]any
	// Replace names top-level fields of an OpUpdate Doc that overwrite the
	// stored value instead of merging into it.
	Replace []string
}

// IndexAction builds an OpIndex action.
func IndexAction(index, id string, doc map[string]any) Action {
	return Action{Op: OpIndex, Index: index, ID: id, Doc: doc}
}

// UpdateAction builds an OpUpdate action.
func UpdateAction(index, id string, doc map[string]any) Action {
	return Action{Op: OpUpdate, Index: index, ID: id, Doc: doc}
}

// Replacing marks fields of an update as replaced wholesale.
func (a Action) Replacing(fields ...string) Action {
	a.Replace = append(append([]string(nil), a.Replace...), fields...)
	return a
}

// DeleteAction builds an OpDelete action.
func DeleteAction(index, id string) Action {
	return Action{Op: OpDelete, Index: index, ID: id}
}

// BulkItemError describes one rejected action.
type BulkItemError struct {
	Op     ActionOp
	Index  string
	ID     string
	Reason string
}

// BulkError is returned when a subset of a bulk call was rejected.
type BulkError struct {
	Items []BulkItemError
}

func (e *BulkError) Error() string {
	if len(e.Items) == 0 {
		return "bulk: no rejected items"
	}
	first := e.Items[0]
	return fmt.Sprintf("bulk: %d actions rejected (first: %s %s/%s: %s)",
		len(e.Items), first.Op, first.Index, first.ID, first.Reason)
}

// ReasonDocumentMissing is the rejection reason of an update whose target
// document does not exist.
const ReasonDocumentMissing = "document_missing"

// IgnoreMissing drops document_missing rejections from a bulk error and
// returns nil when nothing else was rejected.
func IgnoreMissing(err error) error {
	be, ok := AsBulkError(err)
	if !ok {
		return err
	}
	var kept []BulkItemError
	for _, item := range be.Items {
		if item.Reason != ReasonDocumentMissing {
			kept = append(kept, item)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return &BulkError{Items: kept}
}

// AsBulkError unwraps a *BulkError.
func AsBulkError(err error) (*BulkError, bool) {
	var be *BulkError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// MetricOp is an aggregation metric.
type MetricOp string

const (
	MetricCount MetricOp = "count"
	MetricMin   MetricOp = "min"
	MetricMax   MetricOp = "max"
	MetricSum   MetricOp = "sum"
)

// Metric is one named value computed per bucket.
type Metric struct {
	Name  string
	Op    MetricOp
	Field string
}

// AggRequest groups matching documents by GroupBy and computes Metrics per
// group. An empty GroupBy yields a single bucket with a nil key.
type AggRequest struct {
	Index   string
	Filter  Filter
	GroupBy string
	Metrics []Metric
}

// Bucket is one aggregation group.
type Bucket struct {
	Key    any
	Count  int64
	Values map[string]any
}

// FieldType is a mapped field type.
type FieldType string

const (
	TypeKeyword  FieldType = "keyword"
	TypeText     FieldType = "text"
	TypeLong     FieldType = "long"
	TypeDouble   FieldType = "double"
	TypeDate     FieldType = "date"
	TypeBoolean  FieldType = "boolean"
	TypeObject   FieldType = "object"
	TypeGeoShape FieldType = "geo_shape"
	TypeFlat     FieldType = "flattened"
)

// Mapping declares field types and index settings.
type Mapping struct {
	Fields   map[string]FieldType
	Settings map[string]any
}

// IsPattern reports whether an index name is a wildcard pattern.
func IsPattern(index string) bool {
	return strings.Contains(index, "*")
}
