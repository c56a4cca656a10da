package models

import "time"

// Syncable is the contract every synced record satisfies. Merge and conflict
// code is generic over it, so records keep their concrete types end to end.
// Implementations use pointer receivers; the mark methods mutate in place.
type Syncable interface {
	RecordID() string
	CreatedTime() time.Time
	UpdatedTime() time.Time

	// IsSynced reports whether the local copy is known to match the last
	// copy exchanged with the remote source.
	IsSynced() bool

	// IsLocalOnly reports whether the record was created offline and has
	// never been acknowledged by the remote source.
	IsLocalOnly() bool

	MarkSynced()
	MarkDirty()
	MarkLocalOnly()
}

// SyncMeta carries the sync bookkeeping shared by every entity. Embed it by
// value; its methods use pointer receivers so *Entity satisfies Syncable.
type SyncMeta struct {
	ID        string    `json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
	Synced    bool      `json:"_synced" db:"synced"`
	LocalOnly bool      `json:"_local_only" db:"local_only"`
}

func (m *SyncMeta) RecordID() string       { return m.ID }
func (m *SyncMeta) CreatedTime() time.Time { return m.CreatedAt }
func (m *SyncMeta) UpdatedTime() time.Time { return m.UpdatedAt }
func (m *SyncMeta) IsSynced() bool         { return m.Synced }
func (m *SyncMeta) IsLocalOnly() bool      { return m.LocalOnly }

// MarkSynced records that the local copy matches the remote source. A record
// acknowledged by the remote is by definition no longer local-only.
func (m *SyncMeta) MarkSynced() {
	m.Synced = true
	m.LocalOnly = false
}

func (m *SyncMeta) MarkDirty() {
	m.Synced = false
}

// MarkLocalOnly flags a record created offline that the remote source has
// never acknowledged.
func (m *SyncMeta) MarkLocalOnly() {
	m.Synced = false
	m.LocalOnly = true
}

// Touch stamps a local edit: updated_at advances and the record goes dirty.
func (m *SyncMeta) Touch(now time.Time) {
	m.UpdatedAt = now
	m.Synced = false
}

// Merger is implemented by entities that need field-level merging on top of
// the whole-record winner decision: editable fields follow the newer side,
// server-computed aggregates always follow the remote copy.
type Merger interface {
	Syncable
	MergeRemote(remote Syncable)
}
