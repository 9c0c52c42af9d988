// Package reindex rebuilds the search indices from the upstream source.
//
// A full run recreates the shared indices, drops every object index and then
// loads one TMO at a time in the order persisted in the load-order table.
// A row is marked IN_PROGRESS before its type is loaded and deleted once the
// type is complete, so an interrupted run resumes at the first unfinished
// type and clears that type's partial state before redoing it.
package reindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/syntrixbase/inventory/internal/core/docstore"
	"github.com/syntrixbase/inventory/internal/core/loadorder"
	"github.com/syntrixbase/inventory/internal/core/source"
	"github.com/syntrixbase/inventory/internal/inventory/changes"
	"github.com/syntrixbase/inventory/internal/inventory/mapping"
	"github.com/syntrixbase/inventory/internal/inventory/model"
	"github.com/syntrixbase/inventory/internal/inventory/reindex/config"
	"github.com/syntrixbase/inventory/internal/inventory/resolver"
)

// Orchestrator runs bulk reindexes. Only one run per load-order table is
// active at a time; a concurrent call fails with loadorder.ErrLocked.
type Orchestrator struct {
	store    docstore.Store
	source   source.Source
	order    loadorder.Store
	resolver *resolver.Resolver
	renamer  *changes.LinkRenamer
	indices  model.Indices
	cfg      config.Config
	logger   *slog.Logger
}

// New returns an Orchestrator.
func New(store docstore.Store, src source.Source, order loadorder.Store, indices model.Indices, cfg config.Config, logger *slog.Logger) *Orchestrator {
	cfg.ApplyDefaults()
	r := resolver.New(store, indices, logger).WithChunkSize(cfg.PageSize)
	return &Orchestrator{
		store:    store,
		source:   src,
		order:    order,
		resolver: r,
		renamer:  changes.NewLinkRenamer(store, r, logger),
		indices:  indices,
		cfg:      cfg,
		logger:   logger.With("component", "reindex"),
	}
}

// FullRefresh rebuilds every index. When the load-order table still holds
// rows of an interrupted run, the run is resumed instead of restarted.
func (o *Orchestrator) FullRefresh(ctx context.Context) error {
	return o.full(ctx, true)
}

// Restart rebuilds every index from scratch, discarding any pending rows.
func (o *Orchestrator) Restart(ctx context.Context) error {
	return o.full(ctx, false)
}

func (o *Orchestrator) full(ctx context.Context, resume bool) error {
	unlock, err := o.order.TryLock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	start := time.Now()
	defer func() { runDuration.Observe(time.Since(start).Seconds()) }()

	if resume {
		pending, err := o.order.List(ctx)
		if err != nil {
			return fmt.Errorf("read load order: %w", err)
		}
		if len(pending) > 0 {
			o.logger.Info("Resuming interrupted reindex", "pending", len(pending))
			return o.runPending(ctx)
		}
	}

	o.logger.Info("Starting full reindex")
	if err := o.prepare(ctx); err != nil {
		return err
	}
	if err := o.runPending(ctx); err != nil {
		return err
	}
	o.logger.Info("Full reindex completed", "duration", time.Since(start))
	return nil
}

// prepare recreates the shared indices, drops the object indices and
// persists a fresh load order.
func (o *Orchestrator) prepare(ctx context.Context) error {
	if err := o.recreate(ctx,
		indexSpec{o.indices.ParameterLinks(), mapping.LinkProjection()},
		indexSpec{o.indices.ObjectLinks(), mapping.LinkProjection()},
		indexSpec{o.indices.Parameters(), mapping.Parameters()},
	); err != nil {
		return err
	}
	if err := o.recreate(ctx,
		indexSpec{o.indices.TMO(), mapping.TMO()},
		indexSpec{o.indices.TPRM(), mapping.TPRM()},
	); err != nil {
		return err
	}
	if err := o.dropObjectIndices(ctx); err != nil {
		return err
	}

	tmos, err := o.source.ObjectClasses(ctx)
	if err != nil {
		return fmt.Errorf("fetch object classes: %w", err)
	}
	if err := o.writeTMOs(ctx, tmos); err != nil {
		return err
	}
	ids := make([]int64, 0, len(tmos))
	for _, t := range tmos {
		ids = append(ids, t.ID)
	}
	if err := o.order.Replace(ctx, ids); err != nil {
		return fmt.Errorf("persist load order: %w", err)
	}
	o.logger.Info("Load order persisted", "types", len(ids))
	return nil
}

// RefreshTypes rebuilds the listed TMOs without touching the shared indices.
// Ids unknown to the source are skipped.
func (o *Orchestrator) RefreshTypes(ctx context.Context, tmoIDs []int64) error {
	if len(tmoIDs) == 0 {
		return nil
	}
	unlock, err := o.order.TryLock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	all, err := o.source.ObjectClasses(ctx)
	if err != nil {
		return fmt.Errorf("fetch object classes: %w", err)
	}
	wanted := make(map[int64]bool, len(tmoIDs))
	for _, id := range tmoIDs {
		wanted[id] = true
	}
	var (
		tmos []model.TMO
		ids  []int64
	)
	for _, t := range all {
		if wanted[t.ID] {
			tmos = append(tmos, t)
			ids = append(ids, t.ID)
			delete(wanted, t.ID)
		}
	}
	for id := range wanted {
		o.logger.Warn("Skipping type unknown to the source", "tmo_id", id)
	}
	for _, id := range ids {
		if err := o.clearType(ctx, id); err != nil {
			return &TypeLoadError{TMOID: id, Err: err}
		}
	}
	if err := o.writeTMOs(ctx, tmos); err != nil {
		return err
	}
	if err := o.order.Add(ctx, ids); err != nil {
		return fmt.Errorf("persist load order: %w", err)
	}
	return o.runPending(ctx)
}

// Pending returns the load-order rows that have not completed yet.
func (o *Orchestrator) Pending(ctx context.Context) ([]loadorder.Row, error) {
	return o.order.List(ctx)
}

func (o *Orchestrator) runPending(ctx context.Context) error {
	rows, err := o.order.List(ctx)
	if err != nil {
		return fmt.Errorf("read load order: %w", err)
	}
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		logger := o.logger.With("tmo_id", row.TMOID)
		if row.Status == loadorder.StatusInProgress {
			logger.Info("Clearing partial state of interrupted type")
			if err := o.clearType(ctx, row.TMOID); err != nil {
				return &TypeLoadError{TMOID: row.TMOID, Err: err}
			}
		} else if err := o.order.SetStatus(ctx, row.TMOID, loadorder.StatusInProgress); err != nil {
			return fmt.Errorf("mark tmo %d in progress: %w", row.TMOID, err)
		}

		start := time.Now()
		if err := o.loadType(ctx, row.TMOID); err != nil {
			typesLoaded.WithLabelValues("failed").Inc()
			logger.Error("Type load failed", "error", err)
			return err
		}
		if err := o.order.Delete(ctx, row.TMOID); err != nil {
			return fmt.Errorf("complete tmo %d: %w", row.TMOID, err)
		}
		typesLoaded.WithLabelValues("completed").Inc()
		typeLoadDuration.Observe(time.Since(start).Seconds())
		logger.Info("Type loaded", "duration", time.Since(start))
	}
	return nil
}

type indexSpec struct {
	name    string
	mapping docstore.Mapping
}

func (o *Orchestrator) recreate(ctx context.Context, specs ...indexSpec) error {
	for _, s := range specs {
		if err := o.store.DeleteIndex(ctx, s.name); err != nil && !errors.Is(err, docstore.ErrIndexNotFound) {
			return fmt.Errorf("drop index %s: %w", s.name, err)
		}
		if err := o.store.CreateIndex(ctx, s.name, s.mapping); err != nil {
			return fmt.Errorf("create index %s: %w", s.name, err)
		}
	}
	return nil
}

// dropObjectIndices deletes the object indices in bounded batches.
func (o *Orchestrator) dropObjectIndices(ctx context.Context) error {
	names, err := o.store.ListIndices(ctx, o.indices.ObjectPattern())
	if err != nil {
		return fmt.Errorf("list object indices: %w", err)
	}
	for start := 0; start < len(names); start += o.cfg.DeleteBatchSize {
		end := min(start+o.cfg.DeleteBatchSize, len(names))
		if err := o.store.DeleteIndex(ctx, names[start:end]...); err != nil {
			return fmt.Errorf("drop object indices: %w", err)
		}
	}
	o.logger.Info("Dropped object indices", "count", len(names))
	return nil
}

func (o *Orchestrator) writeTMOs(ctx context.Context, tmos []model.TMO) error {
	actions := make([]docstore.Action, 0, len(tmos))
	for _, t := range tmos {
		actions = append(actions, docstore.IndexAction(o.indices.TMO(), model.DocID(t.ID), t.Source()))
	}
	if err := o.bulk(ctx, actions); err != nil {
		return fmt.Errorf("index object classes: %w", err)
	}
	return nil
}

// clearType removes everything a (partial) load of tmoID wrote: the object
// index, the TPRM metadata and the raw and projected parameters of those
// TPRMs.
func (o *Orchestrator) clearType(ctx context.Context, tmoID int64) error {
	tprmIDs, err := o.typeParameterIDs(ctx, tmoID)
	if err != nil {
		return err
	}
	if len(tprmIDs) > 0 {
		filter := docstore.TermsInt64(model.FieldTPRMID, tprmIDs)
		for _, index := range []string{o.indices.Parameters(), o.indices.ObjectLinks(), o.indices.ParameterLinks()} {
			if _, err := o.store.DeleteByQuery(ctx, index, filter, true); err != nil && !errors.Is(err, docstore.ErrIndexNotFound) {
				return fmt.Errorf("clear %s: %w", index, err)
			}
		}
	}
	if _, err := o.store.DeleteByQuery(ctx, o.indices.TPRM(), docstore.Term(model.FieldTMOID, tmoID), true); err != nil && !errors.Is(err, docstore.ErrIndexNotFound) {
		return fmt.Errorf("clear tprm metadata: %w", err)
	}
	if err := o.store.DeleteIndex(ctx, o.indices.Object(tmoID)); err != nil && !errors.Is(err, docstore.ErrIndexNotFound) {
		return fmt.Errorf("drop object index: %w", err)
	}
	return nil
}

func (o *Orchestrator) typeParameterIDs(ctx context.Context, tmoID int64) ([]int64, error) {
	var ids []int64
	req := docstore.SearchRequest{
		Index:   o.indices.TPRM(),
		Filter:  docstore.Term(model.FieldTMOID, tmoID),
		Include: []string{model.FieldID},
		Size:    o.cfg.PageSize,
	}
	err := docstore.ScanAll(ctx, o.store, req, func(hits []docstore.Hit) error {
		for _, h := range hits {
			if id, ok := model.AsInt64(h.Source[model.FieldID]); ok {
				ids = append(ids, id)
			}
		}
		return nil
	})
	if errors.Is(err, docstore.ErrIndexNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list tprms of tmo %d: %w", tmoID, err)
	}
	return ids, nil
}

// bulk writes actions in chunks of BulkSize with refresh.
func (o *Orchestrator) bulk(ctx context.Context, actions []docstore.Action) error {
	for start := 0; start < len(actions); start += o.cfg.BulkSize {
		end := min(start+o.cfg.BulkSize, len(actions))
		if _, err := o.store.Bulk(ctx, actions[start:end], true); err != nil {
			return err
		}
	}
	return nil
}
