package changes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/syntrixbase/inventory/internal/core/docstore"
	"github.com/syntrixbase/inventory/internal/inventory/mapping"
	"github.com/syntrixbase/inventory/internal/inventory/model"
	"github.com/syntrixbase/inventory/internal/inventory/resolver"
)

// TypeHandler applies TMO and TPRM events to the metadata indices and the
// per-type object index mappings.
type TypeHandler struct {
	store    docstore.Store
	resolver *resolver.Resolver
	indices  model.Indices
	logger   *slog.Logger
}

// NewTypeHandler returns a TypeHandler.
func NewTypeHandler(store docstore.Store, r *resolver.Resolver, logger *slog.Logger) *TypeHandler {
	return &TypeHandler{
		store:    store,
		resolver: r,
		indices:  r.Indices(),
		logger:   logger.With("component", "type-handler"),
	}
}

// CreateTMOs creates the object index of every type and indexes its metadata.
func (h *TypeHandler) CreateTMOs(ctx context.Context, tmos []model.TMO) error {
	if len(tmos) == 0 {
		return nil
	}
	actions := make([]docstore.Action, 0, len(tmos))
	for _, t := range tmos {
		err := h.store.CreateIndex(ctx, h.indices.Object(t.ID), mapping.Object())
		if err != nil && !errors.Is(err, docstore.ErrIndexExists) {
			return fmt.Errorf("create object index for tmo %d: %w", t.ID, err)
		}
		actions = append(actions, docstore.IndexAction(h.indices.TMO(), model.DocID(t.ID), t.Source()))
	}
	if _, err := h.store.Bulk(ctx, actions, true); err != nil {
		return fmt.Errorf("index tmos: %w", err)
	}
	return nil
}

// UpdateTMOs overwrites type metadata. Types never indexed are ignored.
func (h *TypeHandler) UpdateTMOs(ctx context.Context, tmos []model.TMO) error {
	if len(tmos) == 0 {
		return nil
	}
	actions := make([]docstore.Action, 0, len(tmos))
	for _, t := range tmos {
		actions = append(actions, docstore.UpdateAction(h.indices.TMO(), model.DocID(t.ID), t.Source()))
	}
	if _, err := h.store.Bulk(ctx, actions, true); err != nil {
		if err = docstore.IgnoreMissing(err); err != nil {
			return fmt.Errorf("update tmos: %w", err)
		}
	}
	return nil
}

// DeleteTMOs removes type metadata, the object index and the metadata of the
// type's parameter classes.
func (h *TypeHandler) DeleteTMOs(ctx context.Context, tmos []model.TMO) error {
	if len(tmos) == 0 {
		return nil
	}
	actions := make([]docstore.Action, 0, len(tmos))
	ids := make([]int64, 0, len(tmos))
	for _, t := range tmos {
		actions = append(actions, docstore.DeleteAction(h.indices.TMO(), model.DocID(t.ID)))
		ids = append(ids, t.ID)
	}
	if _, err := h.store.Bulk(ctx, actions, true); err != nil {
		return fmt.Errorf("delete tmos: %w", err)
	}
	for _, id := range ids {
		err := h.store.DeleteIndex(ctx, h.indices.Object(id))
		if err != nil && !errors.Is(err, docstore.ErrIndexNotFound) {
			return fmt.Errorf("drop object index for tmo %d: %w", id, err)
		}
	}
	if _, err := h.store.DeleteByQuery(ctx, h.indices.TPRM(), docstore.TermsInt64(model.FieldTMOID, ids), true); err != nil {
		return fmt.Errorf("delete tprms of deleted tmos: %w", err)
	}
	return nil
}

// UpsertTPRMs writes parameter class metadata and extends the owning object
// index mapping. A parameter link whose constraint is itself a parameter link
// is rejected and left unindexed.
func (h *TypeHandler) UpsertTPRMs(ctx context.Context, tprms []model.TPRM) error {
	if len(tprms) == 0 {
		return nil
	}
	known := make(map[int64]model.TPRM, len(tprms))
	var constraintIDs []int64
	for _, t := range tprms {
		known[t.ID] = t
		if t.Kind == model.KindParameterLink {
			if id, ok := t.ConstraintID(); ok {
				constraintIDs = append(constraintIDs, id)
			}
		}
	}
	targets, err := h.resolver.TPRMs(ctx, constraintIDs)
	if err != nil {
		return err
	}
	for id, t := range known {
		if _, ok := targets[id]; !ok {
			targets[id] = t
		}
	}

	var errs []error
	actions := make([]docstore.Action, 0, len(tprms))
	for _, t := range tprms {
		var target *model.TPRM
		if t.Kind == model.KindParameterLink {
			cid, ok := t.ConstraintID()
			if !ok {
				h.logger.Warn("Rejecting parameter link without constraint", "tprm_id", t.ID)
				errs = append(errs, &ItemError{Entity: "tprm", ID: t.ID, Err: errors.New("missing constraint")})
				continue
			}
			tt, ok := targets[cid]
			if !ok {
				h.logger.Warn("Rejecting parameter link with unknown constraint", "tprm_id", t.ID, "constraint", cid)
				errs = append(errs, &ItemError{Entity: "tprm", ID: t.ID, Err: fmt.Errorf("constraint tprm %d not indexed", cid)})
				continue
			}
			if tt.Kind == model.KindParameterLink {
				h.logger.Warn("Rejecting chained parameter link", "tprm_id", t.ID, "constraint", cid)
				errs = append(errs, &ItemError{Entity: "tprm", ID: t.ID, Err: fmt.Errorf("constraint tprm %d is a parameter_link", cid)})
				continue
			}
			target = &tt
		}

		fields, err := mapping.ParameterFields(t, target)
		if err != nil {
			errs = append(errs, &ItemError{Entity: "tprm", ID: t.ID, Err: err})
			continue
		}
		err = h.store.PutMapping(ctx, h.indices.Object(t.TMOID), fields)
		switch {
		case errors.Is(err, docstore.ErrIndexNotFound):
			h.logger.Debug("Object index missing for tprm", "tprm_id", t.ID, "tmo_id", t.TMOID)
		case errors.Is(err, docstore.ErrMappingConflict):
			errs = append(errs, &FatalError{Err: fmt.Errorf("tprm %d: %w", t.ID, err)})
			continue
		case err != nil:
			return fmt.Errorf("extend mapping for tprm %d: %w", t.ID, err)
		}
		actions = append(actions, docstore.IndexAction(h.indices.TPRM(), model.DocID(t.ID), t.Source()))
	}
	if len(actions) > 0 {
		if _, err := h.store.Bulk(ctx, actions, true); err != nil {
			errs = append(errs, fmt.Errorf("index tprms: %w", err))
		}
	}
	return errors.Join(errs...)
}

// DeleteTPRMs removes parameter class metadata. Mapped fields stay.
func (h *TypeHandler) DeleteTPRMs(ctx context.Context, tprms []model.TPRM) error {
	if len(tprms) == 0 {
		return nil
	}
	actions := make([]docstore.Action, 0, len(tprms))
	for _, t := range tprms {
		actions = append(actions, docstore.DeleteAction(h.indices.TPRM(), model.DocID(t.ID)))
	}
	if _, err := h.store.Bulk(ctx, actions, true); err != nil {
		return fmt.Errorf("delete tprms: %w", err)
	}
	return nil
}
