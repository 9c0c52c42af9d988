package changes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/syntrixbase/inventory/internal/core/docstore"
	"github.com/syntrixbase/inventory/internal/inventory/model"
	"github.com/syntrixbase/inventory/internal/inventory/resolver"
)

// ObjectHandler keeps object documents and every cached reference to object
// names consistent with MO events.
type ObjectHandler struct {
	store    docstore.Store
	resolver *resolver.Resolver
	renamer  *LinkRenamer
	indices  model.Indices
	opts     Options
	logger   *slog.Logger
}

// NewObjectHandler returns an ObjectHandler.
func NewObjectHandler(store docstore.Store, r *resolver.Resolver, renamer *LinkRenamer, opts Options, logger *slog.Logger) *ObjectHandler {
	return &ObjectHandler{
		store:    store,
		resolver: r,
		renamer:  renamer,
		indices:  r.Indices(),
		opts:     opts,
		logger:   logger.With("component", "mo-handler"),
	}
}

func referencedIDs(mos []model.MO) []int64 {
	var ids []int64
	for _, mo := range mos {
		for _, p := range []*int64{mo.PID, mo.PointAID, mo.PointBID} {
			if p != nil {
				ids = append(ids, *p)
			}
		}
	}
	return ids
}

// batchNames resolves ids and overlays the names carried by the batch, which
// may not be committed yet.
func (h *ObjectHandler) batchNames(ctx context.Context, ids []int64, mos []model.MO) (map[int64]string, error) {
	names, err := h.resolver.ObjectNames(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, mo := range mos {
		names[mo.ID] = mo.Name
	}
	return names, nil
}

// Create indexes new objects. Objects whose type has no index are skipped.
func (h *ObjectHandler) Create(ctx context.Context, mos []model.MO) error {
	if len(mos) == 0 {
		return nil
	}
	tmoIDs := make([]int64, 0, len(mos))
	for _, mo := range mos {
		tmoIDs = append(tmoIDs, mo.TMOID)
	}
	existing, err := h.resolver.ExistingTypes(ctx, tmoIDs)
	if err != nil {
		return err
	}
	names, err := h.batchNames(ctx, referencedIDs(mos), mos)
	if err != nil {
		return err
	}

	actions := make([]docstore.Action, 0, len(mos))
	for _, mo := range mos {
		if !existing[mo.TMOID] {
			h.logger.Debug("Skipping object of unindexed type", "mo_id", mo.ID, "tmo_id", mo.TMOID)
			continue
		}
		src := model.ObjectSource(mo, names, nil)
		actions = append(actions, docstore.IndexAction(h.indices.Object(mo.TMOID), model.DocID(mo.ID), src))
	}
	if len(actions) == 0 {
		return nil
	}
	if _, err := h.store.Bulk(ctx, actions, true); err != nil {
		return fmt.Errorf("index objects: %w", countRejected(err))
	}
	return nil
}

func samePtr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Update applies partial updates to existing objects and propagates name and
// reference changes. Objects without a stored document are skipped.
func (h *ObjectHandler) Update(ctx context.Context, mos []model.MO) error {
	if len(mos) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(mos))
	for _, mo := range mos {
		ids = append(ids, mo.ID)
	}
	prior, err := h.resolver.Objects(ctx, ids)
	if err != nil {
		return err
	}

	renamed := make(map[int64]any)
	var refChanged []model.MO
	var present []model.MO
	for _, mo := range mos {
		old, ok := prior[mo.ID]
		if !ok {
			h.logger.Debug("Skipping update of unindexed object", "mo_id", mo.ID)
			continue
		}
		present = append(present, mo)
		if old.Name != mo.Name {
			renamed[mo.ID] = mo.Name
		}
		if !samePtr(old.PID, mo.PID) || !samePtr(old.PointAID, mo.PointAID) || !samePtr(old.PointBID, mo.PointBID) {
			refChanged = append(refChanged, mo)
		}
	}
	if len(present) == 0 {
		return nil
	}

	names, err := h.batchNames(ctx, referencedIDs(refChanged), present)
	if err != nil {
		return err
	}

	actions := make([]docstore.Action, 0, len(present))
	for _, mo := range present {
		old := prior[mo.ID]
		doc := model.ObjectFields(mo)
		model.UnsetCleared(doc, old.Source)
		if g := model.NormalizeGeometry(mo); g != nil {
			doc[model.FieldGeometry] = g
		} else if _, had := old.Source[model.FieldGeometry]; had {
			doc[model.FieldGeometry] = nil
		}
		if f := model.Fuzzy(mo); f != nil {
			doc[model.FieldFuzzy] = f
		} else {
			doc[model.FieldFuzzy] = nil
		}
		if !samePtr(old.PID, mo.PID) {
			doc[model.FieldParentName] = model.NameOf(mo.PID, names)
		}
		if !samePtr(old.PointAID, mo.PointAID) {
			doc[model.FieldPointAName] = model.NameOf(mo.PointAID, names)
		}
		if !samePtr(old.PointBID, mo.PointBID) {
			doc[model.FieldPointBName] = model.NameOf(mo.PointBID, names)
		}
		actions = append(actions, docstore.UpdateAction(old.Index, model.DocID(mo.ID), doc).
			Replacing(model.FieldGeometry, model.FieldFuzzy))
	}

	var errs []error
	if _, err := h.store.Bulk(ctx, actions, true); err != nil {
		errs = append(errs, fmt.Errorf("update objects: %w", countRejected(err)))
	}
	if len(renamed) > 0 {
		if err := h.propagateNames(ctx, renamed); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// propagateNames rewrites every cached copy of the renamed objects' names.
func (h *ObjectHandler) propagateNames(ctx context.Context, renamed map[int64]any) error {
	ids := make([]int64, 0, len(renamed))
	for id := range renamed {
		ids = append(ids, id)
	}
	ids = resolver.Unique(ids)
	pattern := h.indices.ObjectPattern()

	for _, ref := range []struct{ idField, nameField string }{
		{model.FieldPointAID, model.FieldPointAName},
		{model.FieldPointBID, model.FieldPointBName},
	} {
		_, err := h.store.UpdateByQuery(ctx, pattern, docstore.TermsInt64(ref.idField, ids),
			docstore.Script{docstore.SetByKey(ref.nameField, ref.idField, renamed)}, true)
		if err != nil {
			return fmt.Errorf("propagate %s: %w", ref.nameField, err)
		}
	}

	// Only parents that actually have children get a write pass.
	buckets, err := h.store.Aggregate(ctx, docstore.AggRequest{
		Index:   pattern,
		Filter:  docstore.TermsInt64(model.FieldPID, ids),
		GroupBy: model.FieldPID,
	})
	if err != nil {
		return fmt.Errorf("find children: %w", err)
	}
	parents := make(map[int64]any, len(buckets))
	for _, b := range buckets {
		if id, ok := model.AsInt64(b.Key); ok {
			parents[id] = renamed[id]
		}
	}
	if len(parents) > 0 {
		parentIDs := make([]int64, 0, len(parents))
		for id := range parents {
			parentIDs = append(parentIDs, id)
		}
		_, err := h.store.UpdateByQuery(ctx, pattern, docstore.TermsInt64(model.FieldPID, parentIDs),
			docstore.Script{docstore.SetByKey(model.FieldParentName, model.FieldPID, parents)}, true)
		if err != nil {
			return fmt.Errorf("propagate parent_name: %w", err)
		}
	}

	if h.renamer != nil {
		if err := h.renamer.Rename(ctx, ids); err != nil {
			return fmt.Errorf("rename object links: %w", err)
		}
	}
	return nil
}

// Delete removes objects and clears every cached reference to them.
func (h *ObjectHandler) Delete(ctx context.Context, mos []model.MO) error {
	if len(mos) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(mos))
	for _, mo := range mos {
		ids = append(ids, mo.ID)
	}
	ids = resolver.Unique(ids)
	pattern := h.indices.ObjectPattern()

	if _, err := h.store.DeleteByQuery(ctx, pattern, docstore.TermsInt64(model.FieldID, ids), true); err != nil {
		return fmt.Errorf("delete objects: %w", err)
	}

	orphan := docstore.Script{docstore.Set(model.FieldParentName, nil)}
	if !h.opts.KeepParentIDOnDelete {
		orphan = append(orphan, docstore.Set(model.FieldPID, nil))
	}
	if _, err := h.store.UpdateByQuery(ctx, pattern, docstore.TermsInt64(model.FieldPID, ids), orphan, true); err != nil {
		return fmt.Errorf("clear parent references: %w", err)
	}

	for _, ref := range []struct{ idField, nameField string }{
		{model.FieldPointAID, model.FieldPointAName},
		{model.FieldPointBID, model.FieldPointBName},
	} {
		filter := docstore.TermsInt64(ref.idField, ids)
		res, err := h.store.Search(ctx, docstore.SearchRequest{Index: pattern, Filter: filter, Size: 1, Include: []string{model.FieldID}})
		if err != nil {
			return fmt.Errorf("find %s references: %w", ref.idField, err)
		}
		if len(res.Hits) == 0 {
			continue
		}
		if _, err := h.store.UpdateByQuery(ctx, pattern, filter, docstore.Script{docstore.Set(ref.nameField, nil)}, true); err != nil {
			return fmt.Errorf("clear %s: %w", ref.nameField, err)
		}
	}
	return nil
}
