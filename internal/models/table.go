package models

import "fmt"

// Table identifies one synced entity collection. Using a named type instead
// of free-form strings means an unknown table is a compile-time error at the
// call site, not a silent storage-key typo.
type Table string

const (
	TableWorkouts        Table = "workouts"
	TableTemplates       Table = "templates"
	TableWeightLog       Table = "weight_log"
	TableMeasurements    Table = "measurements"
	TablePersonalRecords Table = "personal_records"
)

// Tables lists every collection the engine manages, in pull order.
var Tables = []Table{
	TableWorkouts,
	TableTemplates,
	TableWeightLog,
	TableMeasurements,
	TablePersonalRecords,
}

// StorageKey is the local store key holding this table's collection blob.
func (t Table) StorageKey() string {
	return "collection:" + string(t)
}

// RemoteName is the table name on the hosted backend.
func (t Table) RemoteName() string {
	return string(t)
}

func (t Table) Valid() bool {
	switch t {
	case TableWorkouts, TableTemplates, TableWeightLog, TableMeasurements, TablePersonalRecords:
		return true
	}
	return false
}

// ParseTable converts an external string (API path, queue row) to a Table.
func ParseTable(s string) (Table, error) {
	t := Table(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown table %q", s)
	}
	return t, nil
}
