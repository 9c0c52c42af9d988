package changes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/syntrixbase/inventory/internal/core/docstore"
	"github.com/syntrixbase/inventory/internal/inventory/model"
	"github.com/syntrixbase/inventory/internal/inventory/resolver"
	"github.com/syntrixbase/inventory/internal/inventory/value"
)

// ParameterHandler applies PRM events: raw rows go to the flat parameter
// index, link references to their projection indices and decoded values to
// parameters.<tprm_id> of the owning objects.
type ParameterHandler struct {
	store    docstore.Store
	resolver *resolver.Resolver
	indices  model.Indices
	opts     Options
	logger   *slog.Logger
}

// NewParameterHandler returns a ParameterHandler.
func NewParameterHandler(store docstore.Store, r *resolver.Resolver, opts Options, logger *slog.Logger) *ParameterHandler {
	return &ParameterHandler{
		store:    store,
		resolver: r,
		indices:  r.Indices(),
		opts:     opts,
		logger:   logger.With("component", "prm-handler"),
	}
}

// batchState flows through the pipeline stages.
type batchState struct {
	incoming []model.PRM
	byID     map[int64]model.PRM
	types    map[int64]model.TPRM
	groups   map[model.Group][]model.PRM

	actions []docstore.Action
	changed partials
	errs    []error
}

type stage func(ctx context.Context, st *batchState) error

// Create runs the pipeline for new parameters.
func (h *ParameterHandler) Create(ctx context.Context, prms []model.PRM) error {
	return h.run(ctx, prms, h.collect, h.fetchTypes, h.partition, h.objectLinks, h.parameterLinks, h.plain, h.commit)
}

// Update is Create with one extra stage that refreshes parameter links
// targeting the updated parameters.
func (h *ParameterHandler) Update(ctx context.Context, prms []model.PRM) error {
	return h.run(ctx, prms, h.collect, h.fetchTypes, h.inverseLinks, h.partition, h.objectLinks, h.parameterLinks, h.plain, h.commit)
}

func (h *ParameterHandler) run(ctx context.Context, prms []model.PRM, stages ...stage) error {
	if len(prms) == 0 {
		return nil
	}
	st := &batchState{incoming: prms, changed: make(partials)}
	for _, s := range stages {
		if err := s(ctx, st); err != nil {
			return errors.Join(append(st.errs, err)...)
		}
	}
	return errors.Join(st.errs...)
}

func (h *ParameterHandler) itemError(st *batchState, p model.PRM, err error) {
	h.logger.Warn("Skipping parameter", "prm_id", p.ID, "tprm_id", p.TPRMID, "error", err)
	st.errs = append(st.errs, &ItemError{Entity: "prm", ID: p.ID, Err: err})
}

func (h *ParameterHandler) collect(ctx context.Context, st *batchState) error {
	st.byID = make(map[int64]model.PRM, len(st.incoming))
	for _, p := range st.incoming {
		st.byID[p.ID] = p
	}
	return nil
}

func (h *ParameterHandler) fetchTypes(ctx context.Context, st *batchState) error {
	ids := make([]int64, 0, len(st.incoming))
	for _, p := range st.incoming {
		ids = append(ids, p.TPRMID)
	}
	types, err := h.resolver.TPRMs(ctx, ids)
	if err != nil {
		return err
	}
	st.types = types
	return nil
}

func (h *ParameterHandler) partition(ctx context.Context, st *batchState) error {
	st.groups = make(map[model.Group][]model.PRM)
	for _, p := range st.incoming {
		t, ok := st.types[p.TPRMID]
		if !ok {
			h.logger.Debug("Skipping parameter of unknown type", "prm_id", p.ID, "tprm_id", p.TPRMID)
			continue
		}
		g := t.Kind.Group()
		st.groups[g] = append(st.groups[g], p)
		st.actions = append(st.actions, docstore.IndexAction(h.indices.Parameters(), model.DocID(p.ID), p.Source()))
	}
	return nil
}

func (h *ParameterHandler) objectLinks(ctx context.Context, st *batchState) error {
	group := st.groups[model.GroupObjectLink]
	if len(group) == 0 {
		return nil
	}
	refs := make(map[int64]value.Ref, len(group))
	var objectIDs []int64
	for _, p := range group {
		t := st.types[p.TPRMID]
		ref, err := value.ResolveIDs(p.Value, t.Kind, t.Multiple)
		if err != nil {
			h.itemError(st, p, err)
			continue
		}
		refs[p.ID] = ref
		objectIDs = append(objectIDs, ref.IDs...)
		st.actions = append(st.actions, docstore.IndexAction(h.indices.ObjectLinks(), model.DocID(p.ID), p.ProjectionSource(ref.Projection())))
	}
	names, err := h.resolver.ObjectNames(ctx, objectIDs)
	if err != nil {
		return err
	}
	for _, p := range group {
		ref, ok := refs[p.ID]
		if !ok {
			continue
		}
		if v, ok := value.ObjectLinkValue(ref, names); ok {
			st.changed.set(p.MOID, p.TPRMID, v)
		}
	}
	return nil
}

func (h *ParameterHandler) parameterLinks(ctx context.Context, st *batchState) error {
	group := st.groups[model.GroupParameterLink]
	if len(group) == 0 {
		return nil
	}
	constraintIDs := make([]int64, 0, len(group))
	for _, p := range group {
		if id, ok := st.types[p.TPRMID].ConstraintID(); ok {
			constraintIDs = append(constraintIDs, id)
		}
	}
	targetTypes, err := h.resolver.TPRMs(ctx, constraintIDs)
	if err != nil {
		return err
	}

	links := make([]resolver.Projection, 0, len(group))
	for _, p := range group {
		t := st.types[p.TPRMID]
		cid, ok := t.ConstraintID()
		if !ok {
			h.itemError(st, p, fmt.Errorf("tprm %d has no constraint", t.ID))
			continue
		}
		target, ok := targetTypes[cid]
		if !ok {
			h.itemError(st, p, fmt.Errorf("constraint tprm %d not indexed", cid))
			continue
		}
		if target.Kind.Group() == model.GroupParameterLink {
			h.itemError(st, p, fmt.Errorf("tprm %d: parameter_link target is itself a parameter_link", target.ID))
			continue
		}
		ref, err := value.ResolveIDs(p.Value, t.Kind, t.Multiple)
		if err != nil {
			h.itemError(st, p, err)
			continue
		}
		st.actions = append(st.actions, docstore.IndexAction(h.indices.ParameterLinks(), model.DocID(p.ID), p.ProjectionSource(ref.Projection())))
		links = append(links, resolver.Projection{PRM: p, Ref: ref})
	}

	resolved := make(partials)
	if err := recomputeParameterLinks(ctx, h.resolver, links, st.byID, resolved); err != nil {
		return err
	}
	for moID, params := range resolved {
		for key, v := range params {
			// Unresolved links stay out of the changed set.
			if v == nil {
				continue
			}
			st.changed[moID] = mergeKey(st.changed[moID], key, v)
		}
	}
	return nil
}

func mergeKey(params map[string]any, key string, v any) map[string]any {
	if params == nil {
		params = make(map[string]any)
	}
	params[key] = v
	return params
}

func (h *ParameterHandler) plain(ctx context.Context, st *batchState) error {
	for _, p := range st.groups[model.GroupPlain] {
		t := st.types[p.TPRMID]
		v, err := value.Decode(p.Value, t.Kind, t.Multiple)
		if err != nil {
			h.itemError(st, p, err)
			continue
		}
		st.changed.set(p.MOID, p.TPRMID, v)
	}
	return nil
}

func (h *ParameterHandler) commit(ctx context.Context, st *batchState) error {
	updates, err := st.changed.actions(ctx, h.resolver)
	if err != nil {
		return err
	}
	actions := append(st.actions, updates...)
	if len(actions) == 0 {
		return nil
	}
	if _, err := h.store.Bulk(ctx, actions, true); err != nil {
		if be, ok := docstore.AsBulkError(countRejected(err)); ok {
			h.logger.Error("Parameter bulk partially rejected", "rejected", len(be.Items), "actions", len(actions))
		}
		st.errs = append(st.errs, fmt.Errorf("commit parameters: %w", err))
	}
	return nil
}

// inverseLinks refreshes parameter links that point at an updated parameter.
// A multiple link only has the element at the updated parameter's position
// rewritten.
func (h *ParameterHandler) inverseLinks(ctx context.Context, st *batchState) error {
	ids := make([]int64, 0, len(st.incoming))
	for _, p := range st.incoming {
		ids = append(ids, p.ID)
	}
	links, err := h.resolver.LinkProjections(ctx, h.indices.ParameterLinks(), model.FieldValue, ids)
	if err != nil {
		return err
	}
	if len(links) == 0 {
		return nil
	}

	decoded := make(map[int64]map[int64]any)
	pattern := h.indices.ObjectPattern()
	for _, link := range links {
		for _, targetID := range link.Ref.IDs {
			target, ok := st.byID[targetID]
			if !ok {
				continue
			}
			t, ok := st.types[target.TPRMID]
			if !ok {
				continue
			}
			values, ok := decoded[t.ID]
			if !ok {
				values, err = h.resolver.DecodeTargets(ctx, ofType(st.byID, t.ID), t)
				if err != nil {
					h.itemError(st, target, err)
					continue
				}
				decoded[t.ID] = values
			}
			v, ok := values[targetID]
			if !ok {
				continue
			}

			field := model.ParameterField(link.PRM.TPRMID)
			op := docstore.Set(field, v)
			if link.Ref.Multiple {
				resolved, err := h.siblingValues(ctx, link.Ref, targetID, t, values)
				if err != nil {
					return fmt.Errorf("refresh parameter link %d: %w", link.PRM.ID, err)
				}
				pos, _ := link.Ref.Position(targetID, resolved)
				op = docstore.SetElement(field, pos, v)
			}
			filter := docstore.Term(model.FieldID, link.PRM.MOID)
			if _, err := h.store.UpdateByQuery(ctx, pattern, filter, docstore.Script{op}, true); err != nil {
				return fmt.Errorf("refresh parameter link %d: %w", link.PRM.ID, err)
			}
		}
	}
	return nil
}

// siblingValues resolves the targets listed before targetID in ref. Targets
// in the current batch use their new values, the rest are read back from the
// flat index.
func (h *ParameterHandler) siblingValues(ctx context.Context, ref value.Ref, targetID int64, t model.TPRM, batch map[int64]any) (map[int64]any, error) {
	resolved := make(map[int64]any)
	var stored []int64
	for _, id := range ref.IDs {
		if id == targetID {
			break
		}
		if v, ok := batch[id]; ok {
			resolved[id] = v
			continue
		}
		stored = append(stored, id)
	}
	if len(stored) == 0 {
		return resolved, nil
	}
	prms, err := h.resolver.Parameters(ctx, stored)
	if err != nil {
		return nil, err
	}
	values, err := h.resolver.DecodeTargets(ctx, prms, t)
	if err != nil {
		return nil, err
	}
	for id, v := range values {
		resolved[id] = v
	}
	return resolved, nil
}

// Delete removes parameters from the flat index and their projection.
func (h *ParameterHandler) Delete(ctx context.Context, prms []model.PRM) error {
	if len(prms) == 0 {
		return nil
	}
	tprmIDs := make([]int64, 0, len(prms))
	for _, p := range prms {
		tprmIDs = append(tprmIDs, p.TPRMID)
	}
	types, err := h.resolver.TPRMs(ctx, tprmIDs)
	if err != nil {
		return err
	}

	actions := make([]docstore.Action, 0, len(prms)*2)
	cleared := make(partials)
	for _, p := range prms {
		id := model.DocID(p.ID)
		actions = append(actions, docstore.DeleteAction(h.indices.Parameters(), id))
		if t, ok := types[p.TPRMID]; ok {
			switch t.Kind.Group() {
			case model.GroupObjectLink:
				actions = append(actions, docstore.DeleteAction(h.indices.ObjectLinks(), id))
			case model.GroupParameterLink:
				actions = append(actions, docstore.DeleteAction(h.indices.ParameterLinks(), id))
			}
		}
		if h.opts.ClearDeletedParameters && p.MOID != 0 {
			cleared.set(p.MOID, p.TPRMID, nil)
		}
	}
	updates, err := cleared.actions(ctx, h.resolver)
	if err != nil {
		return err
	}
	if _, err := h.store.Bulk(ctx, append(actions, updates...), true); err != nil {
		if err = docstore.IgnoreMissing(err); err != nil {
			return fmt.Errorf("delete parameters: %w", err)
		}
	}
	return nil
}
