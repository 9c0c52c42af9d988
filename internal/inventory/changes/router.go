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

// Router dispatches change events to the handler of their entity kind.
type Router struct {
	objects    *ObjectHandler
	parameters *ParameterHandler
	types      *TypeHandler
	logger     *slog.Logger
}

// NewRouter wires the handlers over one store.
func NewRouter(store docstore.Store, r *resolver.Resolver, opts Options, logger *slog.Logger) *Router {
	renamer := NewLinkRenamer(store, r, logger)
	return &Router{
		objects:    NewObjectHandler(store, r, renamer, opts, logger),
		parameters: NewParameterHandler(store, r, opts, logger),
		types:      NewTypeHandler(store, r, logger),
		logger:     logger.With("component", "event-router"),
	}
}

// HandleKey parses key and dispatches payload.
func (r *Router) HandleKey(ctx context.Context, key string, payload []byte) error {
	k, err := ParseKey(key)
	if err != nil {
		return &FatalError{Err: err}
	}
	return r.Handle(ctx, Event{Key: k, Payload: payload})
}

// Handle applies one event. Malformed events fail with a FatalError.
func (r *Router) Handle(ctx context.Context, ev Event) error {
	var err error
	switch ev.Key.Kind {
	case KindMO:
		err = dispatch(ctx, ev, r.objects.Create, r.objects.Update, r.objects.Delete)
	case KindPRM:
		err = dispatch(ctx, ev, r.parameters.Create, r.parameters.Update, r.parameters.Delete)
	case KindTMO:
		err = dispatch(ctx, ev, r.types.CreateTMOs, r.types.UpdateTMOs, r.types.DeleteTMOs)
	case KindTPRM:
		err = dispatch(ctx, ev, r.types.UpsertTPRMs, r.types.UpsertTPRMs, r.types.DeleteTPRMs)
	default:
		return &FatalError{Err: fmt.Errorf("no handler for %s", ev.Key)}
	}
	if err != nil {
		r.logger.Debug("Event handling failed", "key", ev.Key.String(), "error", err)
	}
	return err
}

func dispatch[T any](ctx context.Context, ev Event, create, update, del func(context.Context, []T) error) error {
	records, err := decodeBatch[T](ev.Payload)
	if err != nil {
		return &FatalError{Err: fmt.Errorf("%s: %w", ev.Key, err)}
	}
	switch ev.Key.Action {
	case ActionCreated:
		return create(ctx, records)
	case ActionUpdated:
		return update(ctx, records)
	case ActionDeleted:
		return del(ctx, records)
	default:
		return &FatalError{Err: fmt.Errorf("no handler for %s", ev.Key)}
	}
}

// EnsureIndices creates the shared metadata, parameter and projection
// indices when they do not exist yet.
func EnsureIndices(ctx context.Context, store docstore.Admin, indices model.Indices) error {
	for name, m := range map[string]docstore.Mapping{
		indices.TMO():            mapping.TMO(),
		indices.TPRM():           mapping.TPRM(),
		indices.Parameters():     mapping.Parameters(),
		indices.ObjectLinks():    mapping.LinkProjection(),
		indices.ParameterLinks(): mapping.LinkProjection(),
	} {
		err := store.CreateIndex(ctx, name, m)
		if err != nil && !errors.Is(err, docstore.ErrIndexExists) {
			return fmt.Errorf("create index %s: %w", name, err)
		}
	}
	return nil
}
