// Package admin serves the operational HTTP API of the indexer: health,
// metrics, reindex control and hierarchy queries.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/schema"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/syntrixbase/inventory/internal/admin/config"
	"github.com/syntrixbase/inventory/internal/core/loadorder"
	"github.com/syntrixbase/inventory/internal/core/pubsub"
	"github.com/syntrixbase/inventory/internal/hierarchy"
	"github.com/syntrixbase/inventory/internal/server"
)

// Error codes
const (
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

const maxBodySize = 1 << 20

// Reindexer runs bulk reindexes.
type Reindexer interface {
	FullRefresh(ctx context.Context) error
	Restart(ctx context.Context) error
	RefreshTypes(ctx context.Context, tmoIDs []int64) error
	Pending(ctx context.Context) ([]loadorder.Row, error)
}

// Hierarchies answers hierarchy queries.
type Hierarchies interface {
	Filter(ctx context.Context, req hierarchy.FilterRequest) (*hierarchy.FilterResult, error)
	Children(ctx context.Context, hierarchyID int64, parentID string, size int, after []any) (*hierarchy.ChildrenPage, error)
}

// Handler serves the admin API.
type Handler struct {
	cfg         config.Config
	reindexer   Reindexer
	hierarchies Hierarchies
	publisher   pubsub.Publisher
	logger      *slog.Logger
	decoder     *schema.Decoder

	// Background runs are bound to ctx so Close can stop them.
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewHandler returns a Handler. A nil reindexer or hierarchies leaves the
// corresponding routes unregistered.
func NewHandler(cfg config.Config, reindexer Reindexer, hierarchies Hierarchies, logger *slog.Logger) *Handler {
	ctx, cancel := context.WithCancel(context.Background())
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	return &Handler{
		cfg:         cfg,
		reindexer:   reindexer,
		hierarchies: hierarchies,
		logger:      logger.With("component", "admin"),
		decoder:     decoder,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// SetPublisher enables POST /api/v1/events/{key}, which injects a change
// event into the event stream. Call it before Register.
func (h *Handler) SetPublisher(p pubsub.Publisher) {
	h.publisher = p
}

// Register mounts the routes on srv.
func (h *Handler) Register(srv *server.Server) {
	srv.Handle("GET /health", http.HandlerFunc(h.handleHealth))
	srv.Handle("GET /metrics", promhttp.Handler())
	if h.cfg.Disabled {
		return
	}
	if h.reindexer != nil {
		srv.Handle("POST /api/v1/reindex", http.HandlerFunc(h.handleReindex))
		srv.Handle("GET /api/v1/reindex", http.HandlerFunc(h.handlePending))
	}
	if h.hierarchies != nil {
		srv.Handle("GET /api/v1/hierarchies/{id}/children", h.withTimeout(h.handleChildren))
		srv.Handle("POST /api/v1/hierarchies/{id}/filter", h.withTimeout(h.handleFilter))
	}
	if h.publisher != nil {
		srv.Handle("POST /api/v1/events/{key}", h.withTimeout(h.handlePublish))
	}
}

// Close cancels background reindex runs and waits for them to return.
func (h *Handler) Close() {
	h.cancel()
	h.wg.Wait()
}

func (h *Handler) withTimeout(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), h.cfg.QueryTimeout)
		defer cancel()
		next(w, r.WithContext(ctx))
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// ReindexQuery selects what a reindex request refreshes. Without types the
// whole index is rebuilt.
type ReindexQuery struct {
	Types   []int64 `schema:"tmo"`
	Restart bool    `schema:"restart"`
	Wait    bool    `schema:"wait"`
}

// PendingRow is a load-order row in API responses.
type PendingRow struct {
	Position int64  `json:"position"`
	TMOID    int64  `json:"tmo_id"`
	Status   string `json:"status"`
}

func (h *Handler) handleReindex(w http.ResponseWriter, r *http.Request) {
	var q ReindexQuery
	if err := h.decoder.Decode(&q, r.URL.Query()); err != nil {
		h.logger.Warn("Reindex: invalid query parameters", "error", err)
		server.WriteError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid query parameters")
		return
	}
	if !h.running.CompareAndSwap(false, true) {
		server.WriteError(w, http.StatusConflict, ErrCodeConflict, "A reindex is already running")
		return
	}

	run := func(ctx context.Context) error {
		defer h.running.Store(false)
		start := time.Now()
		var err error
		switch {
		case len(q.Types) > 0:
			err = h.reindexer.RefreshTypes(ctx, q.Types)
		case q.Restart:
			err = h.reindexer.Restart(ctx)
		default:
			err = h.reindexer.FullRefresh(ctx)
		}
		if err != nil {
			h.logger.Error("Reindex failed", "types", q.Types, "error", err)
			return err
		}
		h.logger.Info("Reindex completed", "types", q.Types, "duration", time.Since(start))
		return nil
	}

	if q.Wait {
		if err := run(r.Context()); err != nil {
			h.writeError(w, err)
			return
		}
		server.WriteJSON(w, http.StatusOK, map[string]string{"status": "completed"})
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		_ = run(h.ctx)
	}()
	server.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (h *Handler) handlePending(w http.ResponseWriter, r *http.Request) {
	rows, err := h.reindexer.Pending(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]PendingRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, PendingRow{Position: row.Position, TMOID: row.TMOID, Status: string(row.Status)})
	}
	server.WriteJSON(w, http.StatusOK, map[string]any{
		"running": h.running.Load(),
		"pending": out,
	})
}

// ChildrenQuery pages through the children of one node. After repeats the
// cursor values returned as next by the previous page.
type ChildrenQuery struct {
	Parent string   `schema:"parent"`
	Size   int      `schema:"size"`
	After  []string `schema:"after"`
}

func (h *Handler) handleChildren(w http.ResponseWriter, r *http.Request) {
	id, ok := h.hierarchyID(w, r)
	if !ok {
		return
	}
	var q ChildrenQuery
	if err := h.decoder.Decode(&q, r.URL.Query()); err != nil {
		h.logger.Warn("Children: invalid query parameters", "error", err)
		server.WriteError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid query parameters")
		return
	}
	if q.Size < 0 || q.Size > h.cfg.MaxPageSize {
		server.WriteError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid page size")
		return
	}
	var after []any
	for _, v := range q.After {
		after = append(after, v)
	}
	page, err := h.hierarchies.Children(r.Context(), id, q.Parent, q.Size, after)
	if err != nil {
		h.writeError(w, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) handleFilter(w http.ResponseWriter, r *http.Request) {
	id, ok := h.hierarchyID(w, r)
	if !ok {
		return
	}
	var req hierarchy.FilterRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(&req); err != nil {
		h.logger.Warn("Filter: invalid request body", "error", err)
		server.WriteError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return
	}
	if req.HierarchyID != 0 && req.HierarchyID != id {
		server.WriteError(w, http.StatusBadRequest, ErrCodeBadRequest, "Hierarchy id mismatch")
		return
	}
	req.HierarchyID = id
	if req.Size > h.cfg.MaxPageSize {
		req.Size = h.cfg.MaxPageSize
	}

	res, err := h.hierarchies.Filter(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handlePublish(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		server.WriteError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return
	}
	if !json.Valid(body) {
		server.WriteError(w, http.StatusBadRequest, ErrCodeBadRequest, "Payload must be JSON")
		return
	}
	if _, err := pubsub.Subject("", key); err != nil {
		server.WriteError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	if err := h.publisher.Publish(r.Context(), key, body); err != nil {
		h.writeError(w, err)
		return
	}
	server.WriteJSON(w, http.StatusAccepted, map[string]string{"key": key})
}

func (h *Handler) hierarchyID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		server.WriteError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid hierarchy id")
		return 0, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, hierarchy.ErrLevelNotFound):
		server.WriteError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, hierarchy.ErrInvalidRequest):
		server.WriteError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, loadorder.ErrLocked):
		server.WriteError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		server.WriteError(w, http.StatusGatewayTimeout, ErrCodeInternalError, "Request timed out")
	default:
		h.logger.Error("Request failed", "error", err)
		server.WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "Internal server error")
	}
}
