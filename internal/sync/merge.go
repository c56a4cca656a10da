package sync

import (
	"context"

	"fitsync/internal/models"
)

// MergeItems reconciles a local and a freshly fetched remote collection of
// the same table into one authoritative collection.
//
// Every local record seeds the result. Remote records unknown locally are
// inserted marked synced. When both sides hold a record, a true conflict
// (dirty local, newer remote) goes through the resolver; otherwise the
// tie-break applies: remote wins only when the local copy is clean and the
// remote copy is strictly newer. Local-only ids absent from the remote set
// are left untouched — deletions are never inferred from absence, they must
// arrive as explicit delete signals.
//
// The result holds exactly one entry per id seen in either input, in local
// order followed by newly seen remote order, so merging the same inputs
// twice is a no-op.
func MergeItems[T models.Syncable](ctx context.Context, r *Resolver, table models.Table, local, remote []T) ([]T, error) {
	byID := make(map[string]T, len(local)+len(remote))
	order := make([]string, 0, len(local)+len(remote))

	for _, rec := range local {
		if _, seen := byID[rec.RecordID()]; !seen {
			order = append(order, rec.RecordID())
		}
		byID[rec.RecordID()] = rec
	}

	for _, remoteRec := range remote {
		id := remoteRec.RecordID()
		localRec, exists := byID[id]
		if !exists {
			remoteRec.MarkSynced()
			byID[id] = remoteRec
			order = append(order, id)
			continue
		}

		merged, err := mergeOne(ctx, r, table, localRec, remoteRec)
		if err != nil {
			return nil, err
		}
		byID[id] = merged
	}

	out := make([]T, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out, nil
}

// mergeOne reconciles a single record present on both sides.
func mergeOne[T models.Syncable](ctx context.Context, r *Resolver, table models.Table, local, remote T) (T, error) {
	if HasConflict(local, remote) {
		winner, res, err := Resolve(ctx, r, table, local, remote)
		if err != nil {
			return winner, err
		}
		// A local winner under latest_wins still takes the remote copy's
		// server-computed fields. client_wins returns local verbatim.
		if res == models.ResolutionLocal && r.CurrentStrategy() != models.StrategyClientWins {
			applyFieldMerge(winner, remote)
		}
		return winner, nil
	}

	// Tie-break: prefer remote only when local carries nothing unpushed and
	// remote is strictly newer.
	if local.IsSynced() && !local.IsLocalOnly() && remote.UpdatedTime().After(local.UpdatedTime()) {
		remote.MarkSynced()
		return remote, nil
	}

	// Keeping local: entity-specific merges still pull server-computed
	// aggregates from the remote copy.
	applyFieldMerge(local, remote)
	return local, nil
}

func applyFieldMerge(kept, remote models.Syncable) {
	if m, ok := kept.(models.Merger); ok {
		m.MergeRemote(remote)
	}
}
