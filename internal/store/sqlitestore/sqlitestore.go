// Package sqlitestore implements store.Store on a local SQLite database using
// the pure-Go modernc.org/sqlite driver. Items are stored as JSON attribute
// blobs; the userId attribute is mirrored into an indexed column so
// secondary-index queries do not scan the table.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"time"

	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"

	"github.com/tonimelisma/velux-go/internal/store"
)

// dirPerms is used when creating the database directory.
const dirPerms = 0o700

const (
	sqlGetItem = `SELECT attributes FROM items WHERE id = ?`

	sqlUpsertItem = `INSERT INTO items (id, attributes, user_id, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		 attributes = excluded.attributes,
		 user_id = excluded.user_id,
		 updated_at = excluded.updated_at`

	sqlQueryByUserID = `SELECT id FROM items WHERE user_id = ? ORDER BY id LIMIT 1`
)

// indexColumns maps store index names to the mirrored column.
var indexColumns = map[string]string{
	store.UserIDIndex: "user_id",
}

// Store is a SQLite-backed store.Store.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time // injectable for deterministic tests
}

// Open opens (creating if needed) the SQLite database at dbPath and applies
// migrations. The database uses WAL mode with synchronous=FULL.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, dirPerms); err != nil {
			return nil, fmt.Errorf("sqlitestore: creating directory %s: %w", dir, err)
		}
	}

	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: opening database %s: %w", dbPath, err)
	}

	// Sole-writer pattern: only one connection writes at a time.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("sqlite store opened", slog.String("db_path", dbPath))

	return &Store{
		db:      db,
		logger:  logger,
		nowFunc: time.Now,
	}, nil
}

// Get returns the item stored at key.
func (s *Store) Get(ctx context.Context, key string) (store.Item, error) {
	return getItem(ctx, s.db, key)
}

// Put replaces the item at its key.
func (s *Store) Put(ctx context.Context, item store.Item) error {
	if item.Key() == "" {
		return store.ErrMissingKey
	}

	return s.upsert(ctx, s.db, item)
}

// Update merges fields into the item at key inside a transaction. With
// store.MustExist the transaction aborts when no item exists.
func (s *Store) Update(ctx context.Context, key string, fields map[string]string, cond store.Condition) error {
	if key == "" {
		return store.ErrMissingKey
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitestore: beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	item, err := getItem(ctx, tx, key)

	switch {
	case errors.Is(err, store.ErrNotFound):
		if cond == store.MustExist {
			return store.ErrConditionFailed
		}

		item = store.Item{}
	case err != nil:
		return err
	}

	maps.Copy(item, fields)
	item[store.KeyAttribute] = key

	if err := s.upsert(ctx, tx, item); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlitestore: committing update of %s: %w", key, err)
	}

	return nil
}

// Query resolves an indexed attribute value to the first matching key.
func (s *Store) Query(ctx context.Context, index, attribute, value string) (string, error) {
	if err := store.CheckQuery(index, attribute); err != nil {
		return "", err
	}

	if _, ok := indexColumns[index]; !ok {
		return "", store.ErrUnknownIndex
	}

	var key string

	err := s.db.QueryRowContext(ctx, sqlQueryByUserID, value).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotFound
	}

	if err != nil {
		return "", fmt.Errorf("sqlitestore: querying %s: %w", index, err)
	}

	return key, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// queryer is the subset of *sql.DB and *sql.Tx used for reads and writes.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func getItem(ctx context.Context, q queryer, key string) (store.Item, error) {
	var raw string

	err := q.QueryRowContext(ctx, sqlGetItem, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("sqlitestore: reading %s: %w", key, err)
	}

	var item store.Item
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return nil, fmt.Errorf("sqlitestore: decoding %s: %w", key, err)
	}

	return item, nil
}

func (s *Store) upsert(ctx context.Context, q queryer, item store.Item) error {
	key := item.Key()

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("sqlitestore: encoding %s: %w", key, err)
	}

	var userID sql.NullString
	if v, ok := item[store.UserIDAttribute]; ok {
		userID = sql.NullString{String: v, Valid: true}
	}

	if _, err := q.ExecContext(ctx, sqlUpsertItem, key, string(data), userID, s.nowFunc().Unix()); err != nil {
		return fmt.Errorf("sqlitestore: writing %s: %w", key, err)
	}

	return nil
}
