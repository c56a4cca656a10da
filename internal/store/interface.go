package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"fitsync/internal/models"
)

// ErrNotFound is returned for lookups of queue entries or conflicts that do
// not exist. Missing collections are not an error; they read as empty.
var ErrNotFound = errors.New("store: not found")

// Store is the single durable resource shared by the sync engine, merge path
// and change-stream listener. Collections are opaque JSON array blobs keyed
// by table; the mutation queue and conflict log live beside them so queued
// work survives process restarts.
type Store interface {
	// GetRaw returns the blob stored under key, or nil if never written.
	GetRaw(ctx context.Context, key string) ([]byte, error)
	// PutRaw overwrites the blob under key. Partial writes are fatal to the
	// operation; there are no partial-collection semantics.
	PutRaw(ctx context.Context, key string, value []byte) error

	// Mutation queue. Listing order is strict enqueue order, durable across
	// restarts.
	EnqueueMutation(ctx context.Context, m *models.Mutation) error
	DequeueMutation(ctx context.Context, id string) error
	UpdateMutation(ctx context.Context, m *models.Mutation) error
	ListMutations(ctx context.Context) ([]*models.Mutation, error)
	GetMutation(ctx context.Context, id string) (*models.Mutation, error)

	// Per-table freshness bookkeeping, independent of the collection blobs.
	LastSyncTime(ctx context.Context, table models.Table) (time.Time, error)
	SetLastSyncTime(ctx context.Context, table models.Table, ts time.Time) error

	// Conflict persistence.
	CreateConflict(ctx context.Context, c *models.Conflict) error
	GetConflict(ctx context.Context, id string) (*models.Conflict, error)
	ListConflicts(ctx context.Context, resolved bool) ([]*models.Conflict, error)
	MarkConflictResolved(ctx context.Context, id string, res models.Resolution, merged json.RawMessage, at time.Time) error
	PurgeResolvedConflicts(ctx context.Context, before time.Time) (int64, error)

	// Active conflict strategy. Defaults to latest_wins when never set.
	Strategy(ctx context.Context) (models.Strategy, error)
	SetStrategy(ctx context.Context, s models.Strategy) error

	// Cached profile snapshot blob.
	SaveSnapshot(ctx context.Context, blob []byte) error
	GetSnapshot(ctx context.Context) ([]byte, error)

	Close() error
}
