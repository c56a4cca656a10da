package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"fitsync/internal/logger"
	"fitsync/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS mutations (
	seq      INTEGER PRIMARY KEY AUTOINCREMENT,
	id       TEXT NOT NULL UNIQUE,
	tbl      TEXT NOT NULL,
	op       TEXT NOT NULL,
	data     BLOB NOT NULL,
	ts       INTEGER NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	error    TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS sync_times (
	tbl TEXT PRIMARY KEY,
	ts  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS conflicts (
	id                TEXT PRIMARY KEY,
	tbl               TEXT NOT NULL,
	item_id           TEXT NOT NULL,
	local_data        BLOB NOT NULL,
	server_data       BLOB NOT NULL,
	local_updated_at  INTEGER NOT NULL,
	server_updated_at INTEGER NOT NULL,
	detected_at       INTEGER NOT NULL,
	resolved_at       INTEGER,
	resolution        TEXT NOT NULL DEFAULT '',
	merged_data       BLOB
);
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// SQLiteStore persists engine state in a single on-device sqlite file.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", path, err)
	}

	// Single connection: the store is the one shared mutable resource and
	// sqlite serializes writers anyway.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate store: %w", err)
	}

	logger.Log.Info("Opened local store", zap.String("path", path))

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetRaw(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteStore) PutRaw(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) EnqueueMutation(ctx context.Context, m *models.Mutation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mutations (id, tbl, op, data, ts, attempts, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, string(m.Table), string(m.Op), []byte(m.Data),
		m.Timestamp.UnixMilli(), m.Attempts, m.Error)
	if err != nil {
		return fmt.Errorf("failed to enqueue mutation %s: %w", m.ID, err)
	}
	return nil
}

func (s *SQLiteStore) DequeueMutation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM mutations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to dequeue mutation %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) UpdateMutation(ctx context.Context, m *models.Mutation) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE mutations SET attempts = ?, error = ? WHERE id = ?`,
		m.Attempts, m.Error, m.ID)
	if err != nil {
		return fmt.Errorf("failed to update mutation %s: %w", m.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListMutations(ctx context.Context) ([]*models.Mutation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tbl, op, data, ts, attempts, error FROM mutations ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to list mutations: %w", err)
	}
	defer rows.Close()

	var out []*models.Mutation
	for rows.Next() {
		m, err := scanMutation(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetMutation(ctx context.Context, id string) (*models.Mutation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tbl, op, data, ts, attempts, error FROM mutations WHERE id = ?`, id)
	m, err := scanMutation(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return m, err
}

func scanMutation(scan func(...any) error) (*models.Mutation, error) {
	var (
		m     models.Mutation
		tbl   string
		op    string
		data  []byte
		tsMs  int64
	)
	if err := scan(&m.ID, &tbl, &op, &data, &tsMs, &m.Attempts, &m.Error); err != nil {
		return nil, err
	}
	m.Table = models.Table(tbl)
	m.Op = models.OpType(op)
	m.Data = json.RawMessage(data)
	m.Timestamp = time.UnixMilli(tsMs)
	return &m, nil
}

func (s *SQLiteStore) LastSyncTime(ctx context.Context, table models.Table) (time.Time, error) {
	var tsMs int64
	err := s.db.QueryRowContext(ctx,
		`SELECT ts FROM sync_times WHERE tbl = ?`, string(table)).Scan(&tsMs)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read sync time for %s: %w", table, err)
	}
	return time.UnixMilli(tsMs), nil
}

func (s *SQLiteStore) SetLastSyncTime(ctx context.Context, table models.Table, ts time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_times (tbl, ts) VALUES (?, ?)
		 ON CONFLICT(tbl) DO UPDATE SET ts = excluded.ts`,
		string(table), ts.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to set sync time for %s: %w", table, err)
	}
	return nil
}

func (s *SQLiteStore) CreateConflict(ctx context.Context, c *models.Conflict) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conflicts (id, tbl, item_id, local_data, server_data,
			local_updated_at, server_updated_at, detected_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, string(c.Table), c.ItemID, []byte(c.LocalData), []byte(c.ServerData),
		c.LocalUpdatedAt.UnixMilli(), c.ServerUpdatedAt.UnixMilli(), c.DetectedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record conflict for %s/%s: %w", c.Table, c.ItemID, err)
	}
	return nil
}

func (s *SQLiteStore) GetConflict(ctx context.Context, id string) (*models.Conflict, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tbl, item_id, local_data, server_data, local_updated_at,
			server_updated_at, detected_at, resolved_at, resolution, merged_data
		 FROM conflicts WHERE id = ?`, id)
	c, err := scanConflict(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return c, err
}

func (s *SQLiteStore) ListConflicts(ctx context.Context, resolved bool) ([]*models.Conflict, error) {
	cond := "resolved_at IS NULL"
	if resolved {
		cond = "resolved_at IS NOT NULL"
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tbl, item_id, local_data, server_data, local_updated_at,
			server_updated_at, detected_at, resolved_at, resolution, merged_data
		 FROM conflicts WHERE `+cond+` ORDER BY detected_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	defer rows.Close()

	var out []*models.Conflict
	for rows.Next() {
		c, err := scanConflict(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanConflict(scan func(...any) error) (*models.Conflict, error) {
	var (
		c          models.Conflict
		tbl        string
		local      []byte
		server     []byte
		localMs    int64
		serverMs   int64
		detectedMs int64
		resolvedMs sql.NullInt64
		resolution string
		merged     []byte
	)
	if err := scan(&c.ID, &tbl, &c.ItemID, &local, &server,
		&localMs, &serverMs, &detectedMs, &resolvedMs, &resolution, &merged); err != nil {
		return nil, err
	}
	c.Table = models.Table(tbl)
	c.LocalData = json.RawMessage(local)
	c.ServerData = json.RawMessage(server)
	c.LocalUpdatedAt = time.UnixMilli(localMs)
	c.ServerUpdatedAt = time.UnixMilli(serverMs)
	c.DetectedAt = time.UnixMilli(detectedMs)
	if resolvedMs.Valid {
		t := time.UnixMilli(resolvedMs.Int64)
		c.ResolvedAt = &t
	}
	c.Resolution = models.Resolution(resolution)
	if merged != nil {
		c.MergedData = json.RawMessage(merged)
	}
	return &c, nil
}

func (s *SQLiteStore) MarkConflictResolved(ctx context.Context, id string, res models.Resolution, merged json.RawMessage, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE conflicts SET resolved_at = ?, resolution = ?, merged_data = ?
		 WHERE id = ? AND resolved_at IS NULL`,
		at.UnixMilli(), string(res), []byte(merged), id)
	if err != nil {
		return fmt.Errorf("failed to resolve conflict %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) PurgeResolvedConflicts(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM conflicts WHERE resolved_at IS NOT NULL AND resolved_at < ?`,
		before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to purge conflicts: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

const strategyKey = "conflict_strategy"

func (s *SQLiteStore) Strategy(ctx context.Context) (models.Strategy, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, strategyKey).Scan(&value)
	if err == sql.ErrNoRows {
		return models.StrategyLatestWins, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read strategy: %w", err)
	}
	st := models.Strategy(value)
	if !st.Valid() {
		logger.Log.Warn("Ignoring unknown stored strategy", zap.String("value", value))
		return models.StrategyLatestWins, nil
	}
	return st, nil
}

func (s *SQLiteStore) SetStrategy(ctx context.Context, st models.Strategy) error {
	if !st.Valid() {
		return fmt.Errorf("invalid strategy %q", st)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		strategyKey, string(st))
	if err != nil {
		return fmt.Errorf("failed to set strategy: %w", err)
	}
	return nil
}

const snapshotKey = "profile_snapshot"

func (s *SQLiteStore) SaveSnapshot(ctx context.Context, blob []byte) error {
	return s.PutRaw(ctx, snapshotKey, blob)
}

func (s *SQLiteStore) GetSnapshot(ctx context.Context) ([]byte, error) {
	return s.GetRaw(ctx, snapshotKey)
}
