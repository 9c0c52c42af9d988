package reindex

import (
	"context"
	"errors"
	"fmt"

	"github.com/syntrixbase/inventory/internal/core/docstore"
	"github.com/syntrixbase/inventory/internal/core/source"
	"github.com/syntrixbase/inventory/internal/inventory/mapping"
	"github.com/syntrixbase/inventory/internal/inventory/model"
	"github.com/syntrixbase/inventory/internal/inventory/resolver"
	"github.com/syntrixbase/inventory/internal/inventory/value"
)

// typeLoad is the state of one TMO load.
type typeLoad struct {
	tmoID  int64
	index  string
	types  map[int64]model.TPRM
	groups map[model.Group][]model.TPRM
	// targets holds the constraint targets of the parameter-link TPRMs.
	targets map[int64]model.TPRM
}

type loadStep func(ctx context.Context, l *typeLoad) error

func (o *Orchestrator) loadType(ctx context.Context, tmoID int64) error {
	l := &typeLoad{
		tmoID:   tmoID,
		index:   o.indices.Object(tmoID),
		types:   make(map[int64]model.TPRM),
		groups:  make(map[model.Group][]model.TPRM),
		targets: make(map[int64]model.TPRM),
	}
	err := o.runSteps(ctx, l,
		o.createIndex,
		o.fetchTypes,
		o.loadObjectLinkTypes,
		o.loadParameterLinkTypes,
		o.loadPlainTypes,
		o.loadObjects,
		o.backfillObjectLinks,
		o.backfillParameterLinks,
	)
	if errors.Is(err, errTypeVanished) {
		o.logger.Warn("Type vanished from the source, dropping it", "tmo_id", tmoID)
		return o.clearType(ctx, tmoID)
	}
	var tle *TypeLoadError
	if err != nil && !errors.As(err, &tle) {
		err = &TypeLoadError{TMOID: tmoID, Err: err}
	}
	return err
}

var errTypeVanished = errors.New("type vanished")

func (o *Orchestrator) runSteps(ctx context.Context, l *typeLoad, steps ...loadStep) error {
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := step(ctx, l); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) createIndex(ctx context.Context, l *typeLoad) error {
	err := o.store.CreateIndex(ctx, l.index, mapping.Object())
	if err != nil && !errors.Is(err, docstore.ErrIndexExists) {
		return fmt.Errorf("create object index: %w", err)
	}
	return nil
}

func (o *Orchestrator) fetchTypes(ctx context.Context, l *typeLoad) error {
	tprms, err := o.source.ParameterTypes(ctx, l.tmoID)
	if errors.Is(err, source.ErrNotFound) {
		return errTypeVanished
	}
	if err != nil {
		return fmt.Errorf("fetch parameter types: %w", err)
	}
	for _, t := range tprms {
		l.types[t.ID] = t
		g := t.Kind.Group()
		l.groups[g] = append(l.groups[g], t)
	}
	return nil
}

// writeMetadata replaces the metadata documents of tprms.
func (o *Orchestrator) writeMetadata(ctx context.Context, tprms []model.TPRM) error {
	actions := make([]docstore.Action, 0, 2*len(tprms))
	for _, t := range tprms {
		actions = append(actions, docstore.DeleteAction(o.indices.TPRM(), model.DocID(t.ID)))
	}
	for _, t := range tprms {
		actions = append(actions, docstore.IndexAction(o.indices.TPRM(), model.DocID(t.ID), t.Source()))
	}
	if err := o.bulk(ctx, actions); err != nil {
		return fmt.Errorf("index parameter types: %w", err)
	}
	return nil
}

func (o *Orchestrator) extendMapping(ctx context.Context, l *typeLoad, t model.TPRM, target *model.TPRM) error {
	fields, err := mapping.ParameterFields(t, target)
	if err != nil {
		return &TypeLoadError{TMOID: l.tmoID, TPRMID: t.ID, Err: err}
	}
	if err := o.store.PutMapping(ctx, l.index, fields); err != nil {
		return &TypeLoadError{TMOID: l.tmoID, TPRMID: t.ID, Err: fmt.Errorf("extend mapping: %w", err)}
	}
	return nil
}

// writeParameters streams the raw parameters of t into the flat index. A
// non-empty projection also receives the referenced ids of every value.
func (o *Orchestrator) writeParameters(ctx context.Context, l *typeLoad, t model.TPRM, projection string) error {
	err := o.source.StreamParameters(ctx, t.ID, func(prms []model.PRM) error {
		actions := make([]docstore.Action, 0, 2*len(prms))
		for _, p := range prms {
			actions = append(actions, docstore.IndexAction(o.indices.Parameters(), model.DocID(p.ID), p.Source()))
			if projection == "" {
				continue
			}
			ref, err := value.ResolveIDs(p.Value, t.Kind, t.Multiple)
			if err != nil {
				o.logger.Warn("Skipping unreadable link value", "prm_id", p.ID, "tprm_id", t.ID, "error", err)
				continue
			}
			actions = append(actions, docstore.IndexAction(projection, model.DocID(p.ID), p.ProjectionSource(ref.Projection())))
		}
		if err := o.bulk(ctx, actions); err != nil {
			return &TypeLoadError{TMOID: l.tmoID, TPRMID: t.ID, Err: err}
		}
		parametersIndexed.Add(float64(len(prms)))
		return nil
	})
	var tle *TypeLoadError
	if err != nil && !errors.As(err, &tle) {
		err = &TypeLoadError{TMOID: l.tmoID, TPRMID: t.ID, Err: fmt.Errorf("stream parameters: %w", err)}
	}
	return err
}

// loadObjectLinkTypes writes the object-link TPRMs and their raw and
// projected parameters. Names are resolved by the backfill, once the objects
// of this type exist.
func (o *Orchestrator) loadObjectLinkTypes(ctx context.Context, l *typeLoad) error {
	group := l.groups[model.GroupObjectLink]
	if len(group) == 0 {
		return nil
	}
	if err := o.writeMetadata(ctx, group); err != nil {
		return err
	}
	for _, t := range group {
		if err := o.extendMapping(ctx, l, t, nil); err != nil {
			return err
		}
		if err := o.writeParameters(ctx, l, t, o.indices.ObjectLinks()); err != nil {
			return err
		}
	}
	return nil
}

// loadParameterLinkTypes writes the parameter-link TPRMs together with their
// constraint targets. Links with a missing or chained constraint are dropped
// from the load.
func (o *Orchestrator) loadParameterLinkTypes(ctx context.Context, l *typeLoad) error {
	group := l.groups[model.GroupParameterLink]
	if len(group) == 0 {
		return nil
	}
	var constraintIDs []int64
	for _, t := range group {
		if id, ok := t.ConstraintID(); ok {
			constraintIDs = append(constraintIDs, id)
		}
	}
	fetched, err := o.source.ParameterTypesByID(ctx, resolver.Unique(constraintIDs))
	if err != nil {
		return fmt.Errorf("fetch constraint targets: %w", err)
	}
	targets := make(map[int64]model.TPRM, len(fetched))
	for _, t := range fetched {
		targets[t.ID] = t
	}

	var (
		links     []model.TPRM
		metadata  []model.TPRM
		targetIDs []int64
	)
	seen := make(map[int64]bool)
	for _, t := range group {
		cid, ok := t.ConstraintID()
		if !ok {
			o.logger.Warn("Skipping parameter link without constraint", "tprm_id", t.ID)
			continue
		}
		target, ok := targets[cid]
		if !ok {
			o.logger.Warn("Skipping parameter link with unknown constraint", "tprm_id", t.ID, "constraint", cid)
			continue
		}
		if target.Kind.Group() == model.GroupParameterLink {
			o.logger.Warn("Skipping chained parameter link", "tprm_id", t.ID, "constraint", cid)
			continue
		}
		l.targets[cid] = target
		links = append(links, t)
		metadata = append(metadata, t)
		if !seen[cid] {
			seen[cid] = true
			metadata = append(metadata, target)
			targetIDs = append(targetIDs, cid)
		}
	}
	l.groups[model.GroupParameterLink] = links
	if len(links) == 0 {
		return nil
	}

	if err := o.writeMetadata(ctx, metadata); err != nil {
		return err
	}
	for _, t := range links {
		cid, _ := t.ConstraintID()
		target := l.targets[cid]
		if err := o.extendMapping(ctx, l, t, &target); err != nil {
			return err
		}
		if err := o.writeParameters(ctx, l, t, o.indices.ParameterLinks()); err != nil {
			return err
		}
	}
	// Target values are read back from the flat index by the backfill.
	// Targets owned by this type are written by their own group.
	for _, id := range targetIDs {
		if _, own := l.types[id]; own {
			continue
		}
		if err := o.writeParameters(ctx, l, l.targets[id], ""); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) loadPlainTypes(ctx context.Context, l *typeLoad) error {
	group := l.groups[model.GroupPlain]
	if len(group) == 0 {
		return nil
	}
	if err := o.writeMetadata(ctx, group); err != nil {
		return err
	}
	for _, t := range group {
		if err := o.extendMapping(ctx, l, t, nil); err != nil {
			return err
		}
		if err := o.writeParameters(ctx, l, t, ""); err != nil {
			return err
		}
	}
	return nil
}

// loadObjects indexes the objects of the type with their plain parameters
// decoded from the embedded payload. Objects loaded earlier that reference
// the new objects get their cached names filled in.
func (o *Orchestrator) loadObjects(ctx context.Context, l *typeLoad) error {
	err := o.source.StreamObjects(ctx, l.tmoID, func(mos []model.MO) error {
		names, err := o.referenceNames(ctx, mos)
		if err != nil {
			return err
		}
		actions := make([]docstore.Action, 0, len(mos))
		for _, mo := range mos {
			src := model.ObjectSource(mo, names, o.objectParameters(l, mo))
			actions = append(actions, docstore.IndexAction(l.index, model.DocID(mo.ID), src))
		}
		if err := o.bulk(ctx, actions); err != nil {
			return &TypeLoadError{TMOID: l.tmoID, Err: fmt.Errorf("index objects: %w", err)}
		}
		objectsIndexed.Add(float64(len(mos)))
		return o.propagateNames(ctx, mos)
	})
	var tle *TypeLoadError
	if err != nil && !errors.As(err, &tle) {
		err = &TypeLoadError{TMOID: l.tmoID, Err: fmt.Errorf("stream objects: %w", err)}
	}
	return err
}

// referenceNames resolves the parent and endpoint names of a chunk. Objects
// of the chunk itself are not searchable yet and are taken from the chunk.
func (o *Orchestrator) referenceNames(ctx context.Context, mos []model.MO) (map[int64]string, error) {
	var ids []int64
	for _, mo := range mos {
		for _, ref := range []*int64{mo.PID, mo.PointAID, mo.PointBID} {
			if ref != nil {
				ids = append(ids, *ref)
			}
		}
	}
	names, err := o.resolver.ObjectNames(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, mo := range mos {
		names[mo.ID] = mo.Name
	}
	return names, nil
}

// objectParameters decodes the plain parameters embedded in mo. Link values
// are filled in by the backfill passes. Values that do not decode, such as
// integers beyond the int64 range, are left out of the document.
func (o *Orchestrator) objectParameters(l *typeLoad, mo model.MO) map[string]any {
	params := make(map[string]any, len(mo.Params))
	for _, p := range mo.Params {
		t, ok := l.types[p.TPRMID]
		if !ok || t.Kind.Group() != model.GroupPlain {
			continue
		}
		v, err := value.Decode(p.Value, t.Kind, t.Multiple)
		if err != nil {
			reason := "invalid"
			if errors.Is(err, value.ErrOutOfRange) {
				reason = "out_of_range"
			}
			valuesExcluded.WithLabelValues(reason).Inc()
			o.logger.Warn("Excluding parameter value from object", "mo_id", mo.ID, "tprm_id", t.ID, "reason", reason, "error", err)
			continue
		}
		params[model.ParameterKey(t.ID)] = v
	}
	return params
}

// propagateNames fills parent_name, point_a_name and point_b_name of
// already indexed objects referencing mos, and the values of object links
// pointing at them.
func (o *Orchestrator) propagateNames(ctx context.Context, mos []model.MO) error {
	names := make(map[int64]any, len(mos))
	ids := make([]int64, 0, len(mos))
	for _, mo := range mos {
		names[mo.ID] = mo.Name
		ids = append(ids, mo.ID)
	}
	pattern := o.indices.ObjectPattern()
	for _, ref := range []struct{ idField, nameField string }{
		{model.FieldPID, model.FieldParentName},
		{model.FieldPointAID, model.FieldPointAName},
		{model.FieldPointBID, model.FieldPointBName},
	} {
		_, err := o.store.UpdateByQuery(ctx, pattern, docstore.TermsInt64(ref.idField, ids),
			docstore.Script{docstore.SetByKey(ref.nameField, ref.idField, names)}, true)
		if err != nil {
			return fmt.Errorf("propagate %s: %w", ref.nameField, err)
		}
	}
	return o.renamer.Rename(ctx, ids)
}
