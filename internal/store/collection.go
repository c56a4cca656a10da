package store

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"fitsync/internal/logger"
	"fitsync/internal/models"
)

// LoadCollection reads a table's records. A key that has never been written
// reads as an empty slice so callers can iterate unconditionally. A corrupt
// blob is recoverable: it reads as empty and is logged as an anomaly.
func LoadCollection[T models.Syncable](ctx context.Context, s Store, table models.Table) ([]T, error) {
	blob, err := s.GetRaw(ctx, table.StorageKey())
	if err != nil {
		return nil, err
	}
	if blob == nil {
		return []T{}, nil
	}

	var records []T
	if err := json.Unmarshal(blob, &records); err != nil {
		logger.Log.Warn("Corrupt collection blob, treating as empty",
			zap.String("table", string(table)),
			zap.Error(err),
		)
		return []T{}, nil
	}
	if records == nil {
		records = []T{}
	}
	return records, nil
}

// SaveCollection overwrites a table's stored records wholesale.
func SaveCollection[T models.Syncable](ctx context.Context, s Store, table models.Table, records []T) error {
	blob, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode collection %s: %w", table, err)
	}
	return s.PutRaw(ctx, table.StorageKey(), blob)
}
