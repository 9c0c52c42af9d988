package changes

import (
	"context"

	"github.com/syntrixbase/inventory/internal/core/docstore"
	"github.com/syntrixbase/inventory/internal/inventory/model"
	"github.com/syntrixbase/inventory/internal/inventory/resolver"
)

// Options tune cascade behaviour of the handlers.
type Options struct {
	// KeepParentIDOnDelete limits the delete cascade on children to
	// parent_name; p_id keeps pointing at the deleted object.
	KeepParentIDOnDelete bool
	// ClearDeletedParameters unsets parameters.<tprm_id> on the owning
	// object when a PRM is deleted.
	ClearDeletedParameters bool
}

// partials accumulates parameters.<tprm_id> updates keyed by object id.
type partials map[int64]map[string]any

func (p partials) set(moID, tprmID int64, v any) {
	params, ok := p[moID]
	if !ok {
		params = make(map[string]any)
		p[moID] = params
	}
	params[model.ParameterKey(tprmID)] = v
}

func (p partials) objectIDs() []int64 {
	ids := make([]int64, 0, len(p))
	for id := range p {
		ids = append(ids, id)
	}
	return resolver.Unique(ids)
}

// actions turns the accumulated values into partial updates against the
// owning objects' indices. Objects without a stored document are skipped.
func (p partials) actions(ctx context.Context, r *resolver.Resolver) ([]docstore.Action, error) {
	if len(p) == 0 {
		return nil, nil
	}
	owners, err := r.Objects(ctx, p.objectIDs())
	if err != nil {
		return nil, err
	}
	out := make([]docstore.Action, 0, len(owners))
	for _, id := range p.objectIDs() {
		owner, ok := owners[id]
		if !ok {
			continue
		}
		doc := map[string]any{model.FieldParameters: p[id]}
		out = append(out, docstore.UpdateAction(owner.Index, model.DocID(id), doc))
	}
	return out, nil
}
