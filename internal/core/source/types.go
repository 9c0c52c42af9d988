// Package source is the upstream source of truth the bulk reindex reads
// from.
package source

import (
	"context"
	"errors"

	"github.com/syntrixbase/inventory/internal/inventory/model"
)

// ErrNotFound is returned when the source does not know a requested entity.
var ErrNotFound = errors.New("not found in source")

// DefaultChunkSize is the number of records per streamed chunk.
const DefaultChunkSize = 1000

// Source reads inventory entities from the system of record.
type Source interface {
	// ObjectClasses returns every TMO.
	ObjectClasses(ctx context.Context) ([]model.TMO, error)
	// ParameterTypes returns the TPRMs of one TMO.
	ParameterTypes(ctx context.Context, tmoID int64) ([]model.TPRM, error)
	// ParameterTypesByID returns the TPRMs with the given ids. Unknown ids are
	// absent from the result.
	ParameterTypesByID(ctx context.Context, ids []int64) ([]model.TPRM, error)
	// StreamParameters feeds every PRM of a TPRM to fn in chunks.
	StreamParameters(ctx context.Context, tprmID int64, fn func([]model.PRM) error) error
	// StreamObjects feeds every MO of a TMO to fn in chunks, with Params set.
	StreamObjects(ctx context.Context, tmoID int64, fn func([]model.MO) error) error
}
