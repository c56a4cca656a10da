package sync

import (
	"context"
	"encoding/json"
	"time"

	"fitsync/internal/models"
)

// Remote is the consumed request/response API of the hosted backend. Every
// mutable table exposes id, created_at and updated_at; Select supports
// "changed since" catch-up via the since parameter.
type Remote interface {
	Select(ctx context.Context, table string, since time.Time) ([]json.RawMessage, error)
	Insert(ctx context.Context, table string, record json.RawMessage) error
	Update(ctx context.Context, table string, id string, record json.RawMessage) error
	Delete(ctx context.Context, table string, id string) error
}

// ChangeEventType labels one change-stream notification.
type ChangeEventType string

const (
	ChangeInsert ChangeEventType = "insert"
	ChangeUpdate ChangeEventType = "update"
	ChangeDelete ChangeEventType = "delete"
)

// ChangeEvent is one incremental change delivered by the remote change feed.
// Delivery may be duplicated or out of order; applying events is idempotent
// by record id.
type ChangeEvent struct {
	Type  ChangeEventType `json:"eventType"`
	Table models.Table    `json:"table"`
	New   json.RawMessage `json:"new,omitempty"`
	Old   json.RawMessage `json:"old,omitempty"`
}

// Failure describes one mutation that exhausted its attempt budget.
type Failure struct {
	MutationID string        `json:"mutation_id"`
	Table      models.Table  `json:"table"`
	Op         models.OpType `json:"operation"`
	Error      string        `json:"error"`
}

// Result summarizes one drain pass.
type Result struct {
	Synced   int       `json:"synced"`
	Failed   int       `json:"failed"`
	Failures []Failure `json:"failures,omitempty"`
}
