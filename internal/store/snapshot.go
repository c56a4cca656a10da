package store

import "fitsync/internal/models"

// MergeSnapshot is the fast, conflict-blind merge: remote entries win unless
// the local entry with the same id is dirty, in which case local wins. It
// never detects conflicts; the conflict-aware engine merge is canonical and
// supersedes this wherever conflict detection matters. Used only for bulk
// snapshot restores where every remote record is authoritative.
func MergeSnapshot[T models.Syncable](local, remote []T) []T {
	byID := make(map[string]T, len(local))
	order := make([]string, 0, len(local)+len(remote))

	for _, rec := range local {
		byID[rec.RecordID()] = rec
		order = append(order, rec.RecordID())
	}

	for _, rec := range remote {
		existing, ok := byID[rec.RecordID()]
		if ok && !existing.IsSynced() {
			continue // uncommitted local edit wins
		}
		if !ok {
			order = append(order, rec.RecordID())
		}
		rec.MarkSynced()
		byID[rec.RecordID()] = rec
	}

	out := make([]T, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}
