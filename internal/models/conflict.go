package models

import (
	"encoding/json"
	"time"
)

// Resolution names which side a conflict was settled in favor of.
type Resolution string

const (
	ResolutionLocal  Resolution = "local"
	ResolutionServer Resolution = "server"
	ResolutionMerged Resolution = "merged"
)

// Strategy selects how the resolver settles detected conflicts.
type Strategy string

const (
	StrategyServerWins Strategy = "server_wins"
	StrategyClientWins Strategy = "client_wins"
	StrategyLatestWins Strategy = "latest_wins"
	StrategyManual     Strategy = "manual"
)

func (s Strategy) Valid() bool {
	switch s {
	case StrategyServerWins, StrategyClientWins, StrategyLatestWins, StrategyManual:
		return true
	}
	return false
}

// Conflict records a disagreement where both the local and remote copy of a
// record changed since the last known-consistent point. Unresolved conflicts
// persist until the user settles or dismisses them.
type Conflict struct {
	ID              string          `json:"id" db:"id"`
	Table           Table           `json:"table" db:"tbl"`
	ItemID          string          `json:"item_id" db:"item_id"`
	LocalData       json.RawMessage `json:"local_data" db:"local_data"`
	ServerData      json.RawMessage `json:"server_data" db:"server_data"`
	LocalUpdatedAt  time.Time       `json:"local_updated_at" db:"local_updated_at"`
	ServerUpdatedAt time.Time       `json:"server_updated_at" db:"server_updated_at"`
	DetectedAt      time.Time       `json:"detected_at" db:"detected_at"`

	ResolvedAt *time.Time      `json:"resolved_at,omitempty" db:"resolved_at"`
	Resolution Resolution      `json:"resolution,omitempty" db:"resolution"`
	MergedData json.RawMessage `json:"merged_data,omitempty" db:"merged_data"`
}

func (c *Conflict) Resolved() bool {
	return c.ResolvedAt != nil
}
