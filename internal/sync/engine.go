package sync

import (
	"context"
	"encoding/json"
	"errors"
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

// Engine owns the durable write path and the push/pull reconciliation loop.
// Local writes land in the store and the mutation queue before the call
// returns; SyncAll later drains the queue against the remote source.
type Engine struct {
	store       store.Store
	remote      Remote
	resolver    *Resolver
	bus         *events.Bus
	maxAttempts int

	bindings map[models.Table]*Binding

	mu         gosync.Mutex
	syncing    bool
	lastResult *Result
}

func NewEngine(st store.Store, remote Remote, resolver *Resolver, bus *events.Bus, maxAttempts int) *Engine {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Engine{
		store:       st,
		remote:      remote,
		resolver:    resolver,
		bus:         bus,
		maxAttempts: maxAttempts,
		bindings:    make(map[models.Table]*Binding),
	}
}

// Binding carries the typed operations for one table, built once at wiring
// time so the drain and stream paths can work without knowing record types.
type Binding struct {
	Table      models.Table
	Pull       func(ctx context.Context) error
	Apply      func(ctx context.Context, ev ChangeEvent) error
	MarkSynced func(ctx context.Context, id string) error
}

// syncablePtr constrains PT to a pointer to T that satisfies Syncable, so
// generic code can allocate records it unmarshals into.
type syncablePtr[T any] interface {
	models.Syncable
	*T
}

// BindTable registers the typed pull/apply/ack operations for one table.
func BindTable[T any, PT syncablePtr[T]](e *Engine, table models.Table) *Binding {
	b := &Binding{
		Table: table,
		Pull: func(ctx context.Context) error {
			return PullTable[T, PT](ctx, e, table)
		},
		Apply: func(ctx context.Context, ev ChangeEvent) error {
			return ApplyChange[T, PT](ctx, e, ev)
		},
		MarkSynced: func(ctx context.Context, id string) error {
			return markSynced[T, PT](ctx, e, table, id)
		},
	}
	e.bindings[table] = b
	return b
}

func (e *Engine) Binding(table models.Table) (*Binding, bool) {
	b, ok := e.bindings[table]
	return b, ok
}

// AddItem applies a create to the local collection and enqueues it, both
// before returning. The record goes dirty and local-only until the remote
// acknowledges it.
func AddItem[T any, PT syncablePtr[T]](ctx context.Context, e *Engine, table models.Table, rec PT) error {
	if rec.RecordID() == "" {
		return fmt.Errorf("record for %s has no id", table)
	}
	rec.MarkLocalOnly()
	if err := upsertLocal[T, PT](ctx, e, table, rec); err != nil {
		return err
	}
	if err := e.enqueue(ctx, table, models.OpCreate, rec); err != nil {
		return err
	}
	e.bus.Publish(events.Event{Type: events.TableUpdated, Table: table, Payload: rec})
	return nil
}

// UpdateItem applies an edit locally and enqueues it. The record's
// local-only flag is preserved: an offline-created record stays local-only
// until its create is acknowledged.
func UpdateItem[T any, PT syncablePtr[T]](ctx context.Context, e *Engine, table models.Table, rec PT) error {
	if rec.RecordID() == "" {
		return fmt.Errorf("record for %s has no id", table)
	}
	rec.MarkDirty()
	if err := upsertLocal[T, PT](ctx, e, table, rec); err != nil {
		return err
	}
	if err := e.enqueue(ctx, table, models.OpUpdate, rec); err != nil {
		return err
	}
	e.bus.Publish(events.Event{Type: events.TableUpdated, Table: table, Payload: rec})
	return nil
}

// DeleteItem removes the record locally and enqueues the delete.
func DeleteItem[T any, PT syncablePtr[T]](ctx context.Context, e *Engine, table models.Table, id string) error {
	records, err := store.LoadCollection[PT](ctx, e.store, table)
	if err != nil {
		return err
	}
	kept := records[:0]
	for _, rec := range records {
		if rec.RecordID() != id {
			kept = append(kept, rec)
		}
	}
	if err := store.SaveCollection[PT](ctx, e.store, table, kept); err != nil {
		return err
	}

	payload, _ := json.Marshal(map[string]string{"id": id})
	m := &models.Mutation{
		ID:        uuid.New().String(),
		Table:     table,
		Op:        models.OpDelete,
		Data:      payload,
		Timestamp: time.Now().UTC(),
	}
	if err := e.store.EnqueueMutation(ctx, m); err != nil {
		return err
	}
	e.bus.Publish(events.Event{Type: events.TableUpdated, Table: table, Payload: id})
	return nil
}

func upsertLocal[T any, PT syncablePtr[T]](ctx context.Context, e *Engine, table models.Table, rec PT) error {
	records, err := store.LoadCollection[PT](ctx, e.store, table)
	if err != nil {
		return err
	}
	replaced := false
	for i, existing := range records {
		if existing.RecordID() == rec.RecordID() {
			records[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, rec)
	}
	return store.SaveCollection[PT](ctx, e.store, table, records)
}

func (e *Engine) enqueue(ctx context.Context, table models.Table, op models.OpType, rec models.Syncable) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode %s record: %w", table, err)
	}
	m := &models.Mutation{
		ID:        uuid.New().String(),
		Table:     table,
		Op:        op,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
	return e.store.EnqueueMutation(ctx, m)
}

// SyncAll drains the mutation queue in enqueue order. It is single-flight: a
// call made while a drain is running returns a zero-work result immediately.
// Individual failures increment the operation's attempt counter; an operation
// that reaches the attempt cap is dropped and reported as failed exactly once.
func (e *Engine) SyncAll(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	if e.syncing {
		e.mu.Unlock()
		logger.Log.Debug("Drain already in flight, skipping")
		return &Result{}, nil
	}
	e.syncing = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.syncing = false
		e.mu.Unlock()
	}()

	e.bus.Publish(events.Event{Type: events.SyncStarted})

	mutations, err := e.store.ListMutations(ctx)
	if err != nil {
		e.bus.Publish(events.Event{Type: events.SyncFailed, Payload: err})
		return nil, err
	}

	result := &Result{}
	for i, m := range mutations {
		if err := e.push(ctx, m); err != nil {
			m.Attempts++
			m.Error = err.Error()

			if m.Attempts >= e.maxAttempts {
				if derr := e.store.DequeueMutation(ctx, m.ID); derr != nil {
					e.bus.Publish(events.Event{Type: events.SyncFailed, Payload: derr})
					return result, derr
				}
				result.Failed++
				result.Failures = append(result.Failures, Failure{
					MutationID: m.ID,
					Table:      m.Table,
					Op:         m.Op,
					Error:      m.Error,
				})
				logger.Log.Error("Mutation exhausted attempts, dropping",
					zap.String("mutation", m.ID),
					zap.String("table", string(m.Table)),
					zap.String("op", string(m.Op)),
					zap.Error(err),
				)
				continue
			}

			if uerr := e.store.UpdateMutation(ctx, m); uerr != nil {
				e.bus.Publish(events.Event{Type: events.SyncFailed, Payload: uerr})
				return result, uerr
			}
			logger.Log.Warn("Mutation failed, will retry",
				zap.String("mutation", m.ID),
				zap.Int("attempts", m.Attempts),
				zap.Error(err),
			)
			continue
		}

		if err := e.store.DequeueMutation(ctx, m.ID); err != nil {
			e.bus.Publish(events.Event{Type: events.SyncFailed, Payload: err})
			return result, err
		}
		if m.Op != models.OpDelete {
			// Only ack the record if no later queued mutation still covers
			// it; otherwise the record stays dirty until that one lands.
			if id, err := m.RecordID(); err == nil && !laterMutationFor(mutations[i+1:], m.Table, id) {
				if b, ok := e.bindings[m.Table]; ok {
					if err := b.MarkSynced(ctx, id); err != nil {
						return result, err
					}
				}
			}
		}
		result.Synced++
	}

	e.mu.Lock()
	e.lastResult = result
	e.mu.Unlock()

	logger.Log.Info("Drain complete",
		zap.Int("synced", result.Synced),
		zap.Int("failed", result.Failed),
	)
	e.bus.Publish(events.Event{Type: events.SyncCompleted, Payload: result})
	return result, nil
}

func laterMutationFor(rest []*models.Mutation, table models.Table, id string) bool {
	for _, m := range rest {
		if m.Table != table {
			continue
		}
		if rid, err := m.RecordID(); err == nil && rid == id {
			return true
		}
	}
	return false
}

func (e *Engine) push(ctx context.Context, m *models.Mutation) error {
	switch m.Op {
	case models.OpCreate:
		return e.remote.Insert(ctx, m.Table.RemoteName(), m.Data)
	case models.OpUpdate:
		id, err := m.RecordID()
		if err != nil {
			return fmt.Errorf("mutation %s has no record id: %w", m.ID, err)
		}
		return e.remote.Update(ctx, m.Table.RemoteName(), id, m.Data)
	case models.OpDelete:
		id, err := m.RecordID()
		if err != nil {
			return fmt.Errorf("mutation %s has no record id: %w", m.ID, err)
		}
		return e.remote.Delete(ctx, m.Table.RemoteName(), id)
	default:
		return fmt.Errorf("unknown operation %q", m.Op)
	}
}

// RetryMutation resets the attempt counter of a queued mutation so the next
// drain tries it afresh.
func (e *Engine) RetryMutation(ctx context.Context, id string) error {
	m, err := e.store.GetMutation(ctx, id)
	if err != nil {
		return err
	}
	m.Attempts = 0
	m.Error = ""
	return e.store.UpdateMutation(ctx, m)
}

// DiscardMutation drops a queued mutation without pushing it.
func (e *Engine) DiscardMutation(ctx context.Context, id string) error {
	return e.store.DequeueMutation(ctx, id)
}

// QueuedMutations exposes the pending queue for inspection.
func (e *Engine) QueuedMutations(ctx context.Context) ([]*models.Mutation, error) {
	return e.store.ListMutations(ctx)
}

// Status reports "syncing" while a drain is in flight, "idle" otherwise.
func (e *Engine) Status() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.syncing {
		return "syncing"
	}
	return "idle"
}

func (e *Engine) LastResult() *Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastResult
}

// PullTable fetches remote changes since the table's last sync point, merges
// them with local state conflict-aware, and advances the sync timestamp.
func PullTable[T any, PT syncablePtr[T]](ctx context.Context, e *Engine, table models.Table) error {
	since, err := e.store.LastSyncTime(ctx, table)
	if err != nil {
		return err
	}

	raws, err := e.remote.Select(ctx, table.RemoteName(), since)
	if err != nil {
		return fmt.Errorf("pull %s: %w", table, err)
	}

	remote := make([]PT, 0, len(raws))
	for _, raw := range raws {
		rec := PT(new(T))
		if err := json.Unmarshal(raw, rec); err != nil {
			return fmt.Errorf("pull %s: bad record: %w", table, err)
		}
		remote = append(remote, rec)
	}

	local, err := store.LoadCollection[PT](ctx, e.store, table)
	if err != nil {
		return err
	}

	merged, err := MergeItems(ctx, e.resolver, table, local, remote)
	if err != nil {
		return err
	}

	if err := store.SaveCollection[PT](ctx, e.store, table, merged); err != nil {
		return err
	}
	if err := e.store.SetLastSyncTime(ctx, table, time.Now().UTC()); err != nil {
		return err
	}

	e.bus.Publish(events.Event{Type: events.TableUpdated, Table: table})
	return nil
}

// PullAll pulls every bound table. A failing table is logged and skipped so
// one bad pull never blocks the rest; the joined error is returned for the
// caller's bookkeeping.
func (e *Engine) PullAll(ctx context.Context) error {
	var errs []error
	for _, table := range models.Tables {
		b, ok := e.bindings[table]
		if !ok {
			continue
		}
		if err := b.Pull(ctx); err != nil {
			logger.Log.Warn("Pull failed", zap.String("table", string(table)), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ApplyChange routes one change-stream event into the store through the same
// conflict path as a pull. Inserts and updates of unknown ids append the
// record marked synced; deletes are authoritative and remove unconditionally.
func ApplyChange[T any, PT syncablePtr[T]](ctx context.Context, e *Engine, ev ChangeEvent) error {
	table := ev.Table

	if ev.Type == ChangeDelete {
		id, err := changeRecordID(ev.Old)
		if err != nil {
			return fmt.Errorf("delete event for %s has no id: %w", table, err)
		}
		records, err := store.LoadCollection[PT](ctx, e.store, table)
		if err != nil {
			return err
		}
		kept := records[:0]
		for _, rec := range records {
			if rec.RecordID() != id {
				kept = append(kept, rec)
			}
		}
		if err := store.SaveCollection[PT](ctx, e.store, table, kept); err != nil {
			return err
		}
		e.bus.Publish(events.Event{Type: events.TableUpdated, Table: table, Payload: id})
		return nil
	}

	incoming := PT(new(T))
	if err := json.Unmarshal(ev.New, incoming); err != nil {
		return fmt.Errorf("%s event for %s: bad record: %w", ev.Type, table, err)
	}

	records, err := store.LoadCollection[PT](ctx, e.store, table)
	if err != nil {
		return err
	}

	idx := -1
	for i, rec := range records {
		if rec.RecordID() == incoming.RecordID() {
			idx = i
			break
		}
	}

	if idx == -1 {
		incoming.MarkSynced()
		records = append(records, incoming)
	} else {
		merged, err := mergeOne(ctx, e.resolver, table, records[idx], incoming)
		if err != nil {
			return err
		}
		records[idx] = merged
	}

	if err := store.SaveCollection[PT](ctx, e.store, table, records); err != nil {
		return err
	}
	e.bus.Publish(events.Event{Type: events.TableUpdated, Table: table, Payload: incoming})
	return nil
}

func changeRecordID(raw json.RawMessage) (string, error) {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return "", err
	}
	if probe.ID == "" {
		return "", fmt.Errorf("empty id")
	}
	return probe.ID, nil
}

func markSynced[T any, PT syncablePtr[T]](ctx context.Context, e *Engine, table models.Table, id string) error {
	records, err := store.LoadCollection[PT](ctx, e.store, table)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if rec.RecordID() == id {
			rec.MarkSynced()
			return store.SaveCollection[PT](ctx, e.store, table, records)
		}
	}
	return nil
}
