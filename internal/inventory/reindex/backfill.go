package reindex

import (
	"context"
	"fmt"

	"github.com/syntrixbase/inventory/internal/core/docstore"
	"github.com/syntrixbase/inventory/internal/inventory/model"
	"github.com/syntrixbase/inventory/internal/inventory/value"
)

type link struct {
	prm model.PRM
	ref value.Ref
}

// scanLinks pages through the flat rows of a link TPRM and hands each page
// of decoded references to fn.
func (o *Orchestrator) scanLinks(ctx context.Context, t model.TPRM, fn func(links []link, ids []int64) error) error {
	req := docstore.SearchRequest{
		Index:  o.indices.Parameters(),
		Filter: docstore.Term(model.FieldTPRMID, t.ID),
		Size:   o.cfg.PageSize,
	}
	return docstore.ScanAll(ctx, o.store, req, func(hits []docstore.Hit) error {
		links := make([]link, 0, len(hits))
		var ids []int64
		for _, h := range hits {
			p := model.PRMFromSource(h.Source)
			ref, err := value.ResolveIDs(p.Value, t.Kind, t.Multiple)
			if err != nil {
				o.logger.Warn("Skipping unreadable link value", "prm_id", p.ID, "tprm_id", t.ID, "error", err)
				continue
			}
			links = append(links, link{prm: p, ref: ref})
			ids = append(ids, ref.IDs...)
		}
		return fn(links, ids)
	})
}

// updateParameters applies parameters.<tprm_id> partial updates. Parameters
// whose owner is not indexed are ignored.
func (o *Orchestrator) updateParameters(ctx context.Context, l *typeLoad, tprmID int64, values map[int64]any) error {
	if len(values) == 0 {
		return nil
	}
	actions := make([]docstore.Action, 0, len(values))
	for moID, v := range values {
		doc := map[string]any{model.FieldParameters: map[string]any{model.ParameterKey(tprmID): v}}
		actions = append(actions, docstore.UpdateAction(l.index, model.DocID(moID), doc))
	}
	if err := docstore.IgnoreMissing(o.bulk(ctx, actions)); err != nil {
		return &TypeLoadError{TMOID: l.tmoID, TPRMID: tprmID, Err: fmt.Errorf("backfill: %w", err)}
	}
	return nil
}

// backfillObjectLinks resolves object-link values to the referenced names.
func (o *Orchestrator) backfillObjectLinks(ctx context.Context, l *typeLoad) error {
	for _, t := range l.groups[model.GroupObjectLink] {
		err := o.scanLinks(ctx, t, func(links []link, ids []int64) error {
			names, err := o.resolver.ObjectNames(ctx, ids)
			if err != nil {
				return err
			}
			values := make(map[int64]any, len(links))
			for _, lk := range links {
				if v, ok := value.ObjectLinkValue(lk.ref, names); ok {
					values[lk.prm.MOID] = v
				}
			}
			return o.updateParameters(ctx, l, t.ID, values)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// backfillParameterLinks resolves parameter-link values to the decoded
// values of their target parameters.
func (o *Orchestrator) backfillParameterLinks(ctx context.Context, l *typeLoad) error {
	for _, t := range l.groups[model.GroupParameterLink] {
		cid, _ := t.ConstraintID()
		target := l.targets[cid]
		err := o.scanLinks(ctx, t, func(links []link, ids []int64) error {
			targets, err := o.resolver.ParameterValues(ctx, ids, target)
			if err != nil {
				return err
			}
			values := make(map[int64]any, len(links))
			for _, lk := range links {
				if v, ok := value.ParameterLinkValue(lk.ref, targets); ok {
					values[lk.prm.MOID] = v
				}
			}
			return o.updateParameters(ctx, l, t.ID, values)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
