// Package resolver looks up referenced entities in the search indices. Every
// lookup is one batched terms query per chunk of ids; ids that do not
// resolve are simply absent from the result.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/syntrixbase/inventory/internal/core/docstore"
	"github.com/syntrixbase/inventory/internal/inventory/model"
	"github.com/syntrixbase/inventory/internal/inventory/value"
)

// DefaultChunkSize bounds the number of terms per lookup.
const DefaultChunkSize = 1024

// Store is the part of the document store the resolver reads.
type Store interface {
	docstore.Searcher
	ListIndices(ctx context.Context, pattern string) ([]string, error)
}

// Resolver resolves ids to names, values and prior state.
type Resolver struct {
	store     Store
	indices   model.Indices
	chunkSize int
	logger    *slog.Logger
}

// New returns a resolver over store.
func New(store Store, indices model.Indices, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:     store,
		indices:   indices,
		chunkSize: DefaultChunkSize,
		logger:    logger.With("component", "resolver"),
	}
}

// WithChunkSize overrides the terms chunk size.
func (r *Resolver) WithChunkSize(n int) *Resolver {
	if n > 0 {
		r.chunkSize = n
	}
	return r
}

// Indices returns the index names the resolver reads.
func (r *Resolver) Indices() model.Indices { return r.indices }

// Unique sorts and deduplicates ids.
func Unique(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// scan runs a chunked terms lookup on field and feeds every hit to fn.
// A missing concrete index yields no hits.
func (r *Resolver) scan(ctx context.Context, index, field string, ids []int64, include []string, fn func(docstore.Hit) error) error {
	ids = Unique(ids)
	for start := 0; start < len(ids); start += r.chunkSize {
		end := min(start+r.chunkSize, len(ids))
		req := docstore.SearchRequest{
			Index:   index,
			Filter:  docstore.TermsInt64(field, ids[start:end]),
			Include: include,
		}
		err := docstore.ScanAll(ctx, r.store, req, func(hits []docstore.Hit) error {
			for _, h := range hits {
				if err := fn(h); err != nil {
					return err
				}
			}
			return nil
		})
		if errors.Is(err, docstore.ErrIndexNotFound) {
			r.logger.Debug("Lookup index missing", "index", index)
			return nil
		}
		if err != nil {
			return fmt.Errorf("lookup %s by %s: %w", index, field, err)
		}
	}
	return nil
}

// ExistingTypes reports which TMOs have an object index.
func (r *Resolver) ExistingTypes(ctx context.Context, tmoIDs []int64) (map[int64]bool, error) {
	names, err := r.store.ListIndices(ctx, r.indices.ObjectPattern())
	if err != nil {
		return nil, fmt.Errorf("list object indices: %w", err)
	}
	wanted := make(map[int64]bool, len(tmoIDs))
	for _, id := range tmoIDs {
		wanted[id] = false
	}
	out := make(map[int64]bool)
	for _, name := range names {
		if id, ok := r.indices.ObjectTMO(name); ok {
			if _, asked := wanted[id]; asked {
				out[id] = true
			}
		}
	}
	return out, nil
}

// ObjectNames resolves object ids to their current names.
func (r *Resolver) ObjectNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	err := r.scan(ctx, r.indices.ObjectPattern(), model.FieldID, ids, []string{model.FieldID, model.FieldName}, func(h docstore.Hit) error {
		id, ok := model.AsInt64(h.Source[model.FieldID])
		if !ok {
			return nil
		}
		if name, ok := h.Source[model.FieldName].(string); ok {
			out[id] = name
		}
		return nil
	})
	return out, err
}

// Objects returns the stored documents of the given object ids.
func (r *Resolver) Objects(ctx context.Context, ids []int64) (map[int64]model.ObjectDoc, error) {
	out := make(map[int64]model.ObjectDoc, len(ids))
	err := r.scan(ctx, r.indices.ObjectPattern(), model.FieldID, ids, nil, func(h docstore.Hit) error {
		doc := model.ObjectDocFromSource(h.Index, h.Source)
		out[doc.ID] = doc
		return nil
	})
	return out, err
}

// ObjectsByField returns the stored documents whose field references ids.
func (r *Resolver) ObjectsByField(ctx context.Context, field string, ids []int64) ([]model.ObjectDoc, error) {
	var out []model.ObjectDoc
	err := r.scan(ctx, r.indices.ObjectPattern(), field, ids, nil, func(h docstore.Hit) error {
		out = append(out, model.ObjectDocFromSource(h.Index, h.Source))
		return nil
	})
	return out, err
}

// Parameters returns raw parameter rows from the flat index.
func (r *Resolver) Parameters(ctx context.Context, ids []int64) (map[int64]model.PRM, error) {
	out := make(map[int64]model.PRM, len(ids))
	err := r.scan(ctx, r.indices.Parameters(), model.FieldID, ids, nil, func(h docstore.Hit) error {
		p := model.PRMFromSource(h.Source)
		out[p.ID] = p
		return nil
	})
	return out, err
}

// ParametersOfType returns the raw parameter rows of one TPRM.
func (r *Resolver) ParametersOfType(ctx context.Context, tprmID int64) ([]model.PRM, error) {
	var out []model.PRM
	err := r.scan(ctx, r.indices.Parameters(), model.FieldTPRMID, []int64{tprmID}, nil, func(h docstore.Hit) error {
		out = append(out, model.PRMFromSource(h.Source))
		return nil
	})
	return out, err
}

// TPRMs returns parameter type definitions from the metadata index.
func (r *Resolver) TPRMs(ctx context.Context, ids []int64) (map[int64]model.TPRM, error) {
	out := make(map[int64]model.TPRM, len(ids))
	err := r.scan(ctx, r.indices.TPRM(), model.FieldID, ids, nil, func(h docstore.Hit) error {
		t, err := model.TPRMFromSource(h.Source)
		if err != nil {
			r.logger.Warn("Skipping unreadable tprm", "id", h.ID, "error", err)
			return nil
		}
		out[t.ID] = t
		return nil
	})
	return out, err
}

// Projection is one row of a link projection index.
type Projection struct {
	PRM model.PRM
	Ref value.Ref
}

// LinkProjections returns the rows of a projection index whose field holds
// one of ids. Use model.FieldValue to find links pointing at ids.
func (r *Resolver) LinkProjections(ctx context.Context, index, field string, ids []int64) ([]Projection, error) {
	var out []Projection
	err := r.scan(ctx, index, field, ids, nil, func(h docstore.Hit) error {
		ref, err := value.FromProjection(h.Source[model.FieldValue])
		if err != nil {
			return err
		}
		p := model.PRMFromSource(h.Source)
		p.Value = ""
		out = append(out, Projection{PRM: p, Ref: ref})
		return nil
	})
	return out, err
}

// ParameterValues resolves parameter ids to their values decoded with the
// target type's kind and multiplicity. Object-link targets resolve one more
// hop to the referenced object names.
func (r *Resolver) ParameterValues(ctx context.Context, ids []int64, target model.TPRM) (map[int64]any, error) {
	prms, err := r.Parameters(ctx, ids)
	if err != nil {
		return nil, err
	}
	return r.DecodeTargets(ctx, prms, target)
}

// DecodeTargets decodes already fetched target parameters. Values that do
// not decode are logged and left out, like unresolved ids.
func (r *Resolver) DecodeTargets(ctx context.Context, prms map[int64]model.PRM, target model.TPRM) (map[int64]any, error) {
	out := make(map[int64]any, len(prms))
	switch target.Kind.Group() {
	case model.GroupObjectLink:
		refs := make(map[int64]value.Ref, len(prms))
		var objectIDs []int64
		for id, p := range prms {
			ref, err := value.ResolveIDs(p.Value, target.Kind, target.Multiple)
			if err != nil {
				r.logger.Warn("Skipping undecodable link target", "prm_id", id, "error", err)
				continue
			}
			refs[id] = ref
			objectIDs = append(objectIDs, ref.IDs...)
		}
		names, err := r.ObjectNames(ctx, objectIDs)
		if err != nil {
			return nil, err
		}
		for id, ref := range refs {
			if v, ok := value.ObjectLinkValue(ref, names); ok {
				out[id] = v
			}
		}
	case model.GroupParameterLink:
		return nil, fmt.Errorf("tprm %d: parameter_link target is itself a parameter_link", target.ID)
	default:
		for id, p := range prms {
			v, err := value.Decode(p.Value, target.Kind, target.Multiple)
			if err != nil {
				r.logger.Warn("Skipping undecodable link target", "prm_id", id, "error", err)
				continue
			}
			out[id] = v
		}
	}
	return out, nil
}
