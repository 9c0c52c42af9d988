// Package loadorder persists the per-type progress of a full reindex so an
// interrupted run can resume where it stopped.
package loadorder

import (
	"context"
	"errors"
)

// Status is the progress state of one load-order row.
type Status string

const (
	StatusNotInProgress Status = "NOT_IN_PROGRESS"
	StatusInProgress    Status = "IN_PROGRESS"
)

var (
	// ErrLocked is returned by TryLock when another run holds the lease.
	ErrLocked = errors.New("load order is locked by another run")
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("load order row not found")
)

// Row is one type scheduled for loading. Rows are processed by ascending
// Position; a row is deleted once its type finished loading.
type Row struct {
	Position int64
	TMOID    int64
	Status   Status
}

// Store is the persisted load-order table.
type Store interface {
	// Replace drops every row and inserts tmoIDs in order, NOT_IN_PROGRESS.
	Replace(ctx context.Context, tmoIDs []int64) error
	// Add appends rows for tmoIDs that have none yet.
	Add(ctx context.Context, tmoIDs []int64) error
	// List returns all rows by position.
	List(ctx context.Context) ([]Row, error)
	SetStatus(ctx context.Context, tmoID int64, status Status) error
	Delete(ctx context.Context, tmoID int64) error
	// TryLock takes the run lease. The returned func releases it.
	TryLock(ctx context.Context) (unlock func(), err error)
	Close() error
}
