package changes

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/syntrixbase/inventory/internal/core/docstore"
	"github.com/syntrixbase/inventory/internal/inventory/model"
	"github.com/syntrixbase/inventory/internal/inventory/resolver"
	"github.com/syntrixbase/inventory/internal/inventory/value"
)

// LinkRenamer recomputes parameter values that cache the name of an object:
// object-link parameters pointing at the object, and parameter-link
// parameters pointing at those object-link parameters.
type LinkRenamer struct {
	store    docstore.Writer
	resolver *resolver.Resolver
	indices  model.Indices
	logger   *slog.Logger
}

// NewLinkRenamer returns a LinkRenamer.
func NewLinkRenamer(store docstore.Writer, r *resolver.Resolver, logger *slog.Logger) *LinkRenamer {
	return &LinkRenamer{
		store:    store,
		resolver: r,
		indices:  r.Indices(),
		logger:   logger.With("component", "link-renamer"),
	}
}

// Rename refreshes every cached value derived from the names of objectIDs.
// Names are read back from the store, so the objects must already carry
// their new names.
func (l *LinkRenamer) Rename(ctx context.Context, objectIDs []int64) error {
	links, err := l.resolver.LinkProjections(ctx, l.indices.ObjectLinks(), model.FieldValue, objectIDs)
	if err != nil {
		return err
	}
	if len(links) == 0 {
		return nil
	}

	var referenced []int64
	for _, p := range links {
		referenced = append(referenced, p.Ref.IDs...)
	}
	names, err := l.resolver.ObjectNames(ctx, referenced)
	if err != nil {
		return err
	}

	updates := make(partials)
	linkIDs := make([]int64, 0, len(links))
	for _, p := range links {
		linkIDs = append(linkIDs, p.PRM.ID)
		v, ok := value.ObjectLinkValue(p.Ref, names)
		if !ok {
			v = nil
		}
		updates.set(p.PRM.MOID, p.PRM.TPRMID, v)
	}

	dependents, err := l.resolver.LinkProjections(ctx, l.indices.ParameterLinks(), model.FieldValue, linkIDs)
	if err != nil {
		return err
	}
	if err := recomputeParameterLinks(ctx, l.resolver, dependents, nil, updates); err != nil {
		return err
	}

	actions, err := updates.actions(ctx, l.resolver)
	if err != nil {
		return err
	}
	if len(actions) == 0 {
		return nil
	}
	l.logger.Debug("Refreshing linked names", "objects", len(objectIDs), "updates", len(actions))
	if _, err := l.store.Bulk(ctx, actions, true); err != nil {
		if err = docstore.IgnoreMissing(err); err != nil {
			return fmt.Errorf("update linked names: %w", err)
		}
	}
	return nil
}

// recomputeParameterLinks resolves parameter-link projections against their
// targets and records the new owner values in updates. overlay carries target
// parameters that are newer than the flat index.
func recomputeParameterLinks(ctx context.Context, r *resolver.Resolver, links []resolver.Projection, overlay map[int64]model.PRM, updates partials) error {
	if len(links) == 0 {
		return nil
	}
	tprmIDs := make([]int64, 0, len(links))
	var targetIDs []int64
	for _, p := range links {
		tprmIDs = append(tprmIDs, p.PRM.TPRMID)
		targetIDs = append(targetIDs, p.Ref.IDs...)
	}
	linkTypes, err := r.TPRMs(ctx, tprmIDs)
	if err != nil {
		return err
	}
	constraintIDs := make([]int64, 0, len(linkTypes))
	for _, t := range linkTypes {
		if id, ok := t.ConstraintID(); ok {
			constraintIDs = append(constraintIDs, id)
		}
	}
	targetTypes, err := r.TPRMs(ctx, constraintIDs)
	if err != nil {
		return err
	}
	targets, err := r.Parameters(ctx, targetIDs)
	if err != nil {
		return err
	}
	for id, p := range overlay {
		targets[id] = p
	}

	decoded := make(map[int64]map[int64]any)
	for _, p := range links {
		lt, ok := linkTypes[p.PRM.TPRMID]
		if !ok {
			continue
		}
		cid, _ := lt.ConstraintID()
		target, ok := targetTypes[cid]
		if !ok {
			continue
		}
		values, ok := decoded[target.ID]
		if !ok {
			values, err = r.DecodeTargets(ctx, ofType(targets, target.ID), target)
			if err != nil {
				return err
			}
			decoded[target.ID] = values
		}
		v, ok := value.ParameterLinkValue(p.Ref, values)
		if !ok {
			v = nil
		}
		updates.set(p.PRM.MOID, p.PRM.TPRMID, v)
	}
	return nil
}

func ofType(prms map[int64]model.PRM, tprmID int64) map[int64]model.PRM {
	out := make(map[int64]model.PRM)
	for id, p := range prms {
		if p.TPRMID == tprmID {
			out[id] = p
		}
	}
	return out
}
