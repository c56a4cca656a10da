package models

import (
	"encoding/json"
	"time"
)

type OpType string

const (
	OpCreate OpType = "create"
	OpUpdate OpType = "update"
	OpDelete OpType = "delete"
)

// Mutation is one queued write awaiting transmission to the remote source.
// Data holds the full record for create/update and `{"id": ...}` for delete.
type Mutation struct {
	ID        string          `json:"id" db:"id"`
	Table     Table           `json:"table" db:"tbl"`
	Op        OpType          `json:"operation" db:"op"`
	Data      json.RawMessage `json:"data" db:"data"`
	Timestamp time.Time       `json:"timestamp" db:"ts"`
	Attempts  int             `json:"attempts" db:"attempts"`
	Error     string          `json:"error,omitempty" db:"error"`
}

// RecordID extracts the entity id from the payload.
func (m *Mutation) RecordID() (string, error) {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(m.Data, &probe); err != nil {
		return "", err
	}
	return probe.ID, nil
}
