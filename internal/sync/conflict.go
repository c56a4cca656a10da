package sync

import (
	"context"
	"encoding/json"
	"fmt"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fitsync/internal/events"
	"fitsync/internal/logger"
	"fitsync/internal/models"
	"fitsync/internal/store"
)

// Resolver decides which side wins when local and remote copies of a record
// have both diverged from their last common state. Conflicts deferred for
// manual handling are persisted in the store, never silently discarded.
type Resolver struct {
	store store.Store
	bus   *events.Bus

	mu       gosync.RWMutex
	strategy models.Strategy
}

func NewResolver(st store.Store, bus *events.Bus, strategy models.Strategy) *Resolver {
	if !strategy.Valid() {
		strategy = models.StrategyLatestWins
	}
	return &Resolver{store: st, bus: bus, strategy: strategy}
}

func (r *Resolver) CurrentStrategy() models.Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.strategy
}

// SetStrategy persists and activates a new strategy.
func (r *Resolver) SetStrategy(ctx context.Context, s models.Strategy) error {
	if !s.Valid() {
		return fmt.Errorf("invalid strategy %q", s)
	}
	if err := r.store.SetStrategy(ctx, s); err != nil {
		return err
	}
	r.mu.Lock()
	r.strategy = s
	r.mu.Unlock()
	return nil
}

// HasConflict reports a true conflict: the local copy carries an unpushed
// edit and the remote copy changed after the point that edit was based on.
// A clean local copy is never in conflict; the remote is simply newer.
func HasConflict(local, remote models.Syncable) bool {
	if local == nil || remote == nil {
		return false
	}
	if local.IsSynced() {
		return false
	}
	return remote.UpdatedTime().After(local.UpdatedTime())
}

// Resolve settles a detected conflict per the active strategy and returns the
// winning record plus which side it came from. Winners taken from the local
// side are re-marked dirty so they get re-pushed; remote winners are marked
// synced. Under the manual strategy the conflict is persisted for user action
// and the remote copy is returned as a safe interim value.
func Resolve[T models.Syncable](ctx context.Context, r *Resolver, table models.Table, local, remote T) (T, models.Resolution, error) {
	strategy := r.CurrentStrategy()

	switch strategy {
	case models.StrategyServerWins:
		remote.MarkSynced()
		return remote, models.ResolutionServer, nil

	case models.StrategyClientWins:
		local.MarkDirty()
		return local, models.ResolutionLocal, nil

	case models.StrategyManual:
		if err := r.recordConflict(ctx, table, local, remote); err != nil {
			return remote, models.ResolutionServer, err
		}
		remote.MarkSynced()
		return remote, models.ResolutionServer, nil

	default: // latest_wins
		if remote.UpdatedTime().After(local.UpdatedTime()) {
			remote.MarkSynced()
			return remote, models.ResolutionServer, nil
		}
		local.MarkDirty()
		return local, models.ResolutionLocal, nil
	}
}

func (r *Resolver) recordConflict(ctx context.Context, table models.Table, local, remote models.Syncable) error {
	localData, err := json.Marshal(local)
	if err != nil {
		return fmt.Errorf("failed to encode local side: %w", err)
	}
	serverData, err := json.Marshal(remote)
	if err != nil {
		return fmt.Errorf("failed to encode server side: %w", err)
	}

	conflict := &models.Conflict{
		ID:              uuid.New().String(),
		Table:           table,
		ItemID:          local.RecordID(),
		LocalData:       localData,
		ServerData:      serverData,
		LocalUpdatedAt:  local.UpdatedTime(),
		ServerUpdatedAt: remote.UpdatedTime(),
		DetectedAt:      time.Now().UTC(),
	}

	if err := r.store.CreateConflict(ctx, conflict); err != nil {
		return err
	}

	logger.Log.Info("Conflict deferred for manual resolution",
		zap.String("table", string(table)),
		zap.String("item", conflict.ItemID),
	)
	r.bus.Publish(events.Event{Type: events.ConflictDetected, Table: table, Payload: conflict})
	return nil
}

// ResolveManually settles a persisted conflict with the user's choice. Local
// and merged choices are applied dirty and queued for re-push; a server
// choice simply confirms the remote copy as synced.
func (r *Resolver) ResolveManually(ctx context.Context, conflictID string, choice models.Resolution, merged json.RawMessage) error {
	conflict, err := r.store.GetConflict(ctx, conflictID)
	if err != nil {
		return err
	}
	if conflict.Resolved() {
		return fmt.Errorf("conflict %s already resolved", conflictID)
	}

	var payload json.RawMessage
	dirty := false
	switch choice {
	case models.ResolutionLocal:
		payload, dirty = conflict.LocalData, true
	case models.ResolutionServer:
		payload = conflict.ServerData
	case models.ResolutionMerged:
		if len(merged) == 0 {
			return fmt.Errorf("merged resolution requires a payload")
		}
		payload, dirty = merged, true
	default:
		return fmt.Errorf("invalid resolution %q", choice)
	}

	stored, err := r.applyToCollection(ctx, conflict.Table, conflict.ItemID, payload, dirty)
	if err != nil {
		return err
	}

	// Re-push the record exactly as stored, not the caller's raw payload: a
	// merged payload may omit the id, and the drain addresses the remote by it.
	if dirty {
		m := &models.Mutation{
			ID:        uuid.New().String(),
			Table:     conflict.Table,
			Op:        models.OpUpdate,
			Data:      stored,
			Timestamp: time.Now().UTC(),
		}
		if err := r.store.EnqueueMutation(ctx, m); err != nil {
			return err
		}
	}

	if err := r.store.MarkConflictResolved(ctx, conflictID, choice, merged, time.Now().UTC()); err != nil {
		return err
	}

	r.bus.Publish(events.Event{Type: events.TableUpdated, Table: conflict.Table, Payload: stored})
	return nil
}

// Dismiss accepts the remote copy for a pending conflict: resolved as server,
// no re-push.
func (r *Resolver) Dismiss(ctx context.Context, conflictID string) error {
	return r.ResolveManually(ctx, conflictID, models.ResolutionServer, nil)
}

// PendingConflicts lists conflicts awaiting manual action.
func (r *Resolver) PendingConflicts(ctx context.Context) ([]*models.Conflict, error) {
	return r.store.ListConflicts(ctx, false)
}

// applyToCollection splices a raw record payload into a stored collection,
// stamping the item id and sync flags, and returns the record as stored. It
// works on the JSON shape directly because manual resolutions arrive as
// opaque payloads.
func (r *Resolver) applyToCollection(ctx context.Context, table models.Table, itemID string, payload json.RawMessage, dirty bool) (json.RawMessage, error) {
	var record map[string]any
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("failed to decode resolution payload: %w", err)
	}
	record["id"] = itemID
	record["_synced"] = !dirty
	if !dirty {
		record["_local_only"] = false
	}

	stored, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode resolved record: %w", err)
	}

	blob, err := r.store.GetRaw(ctx, table.StorageKey())
	if err != nil {
		return nil, err
	}

	var collection []map[string]any
	if blob != nil {
		if err := json.Unmarshal(blob, &collection); err != nil {
			logger.Log.Warn("Corrupt collection blob, treating as empty",
				zap.String("table", string(table)), zap.Error(err))
			collection = nil
		}
	}

	replaced := false
	for i, existing := range collection {
		if existing["id"] == itemID {
			collection[i] = record
			replaced = true
			break
		}
	}
	if !replaced {
		collection = append(collection, record)
	}

	out, err := json.Marshal(collection)
	if err != nil {
		return nil, fmt.Errorf("failed to encode collection %s: %w", table, err)
	}
	if err := r.store.PutRaw(ctx, table.StorageKey(), out); err != nil {
		return nil, err
	}
	return stored, nil
}
