// Package sqlite is the durable store under the local-first core.
// One small database file holds the namespaced snapshots (game state,
// settings, markers), the per-date archive, and the pending sync queue.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the sqlite handle with the operations the store and queue need.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies migrations.
// Use ":memory:" for tests.
func Open(path string) (*DB, error) {
	handle, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Single connection: the core is serialized anyway, and sqlite's
	// in-memory mode loses its schema with more than one.
	handle.SetMaxOpenConns(1)

	db := &DB{db: handle}
	if err := db.migrate(); err != nil {
		handle.Close()
		return nil, err
	}
	return db, nil
}

// Close releases the underlying handle.
func (db *DB) Close() error { return db.db.Close() }

// Migrations returns the schema migration statements.
// Each string is a single SQL statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		// Namespaced snapshot documents (game state, settings, markers)
		`CREATE TABLE IF NOT EXISTS snapshots (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,

		// Archived per-day totals, written at day rollover
		`CREATE TABLE IF NOT EXISTS day_archive (
			day    TEXT PRIMARY KEY,
			amount INTEGER NOT NULL DEFAULT 0
		)`,

		// Pending remote mutations; rowid order is FIFO order
		`CREATE TABLE IF NOT EXISTS sync_queue (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			item_id     TEXT NOT NULL UNIQUE,
			item_type   TEXT NOT NULL,
			payload     TEXT NOT NULL,
			enqueued_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_queue_type ON sync_queue(item_type)`,
	}
}

func (db *DB) migrate() error {
	for _, stmt := range Migrations() {
		if _, err := db.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// ─── Snapshot Operations ────────────────────────────────────────────────────

// GetValue returns the stored document for a key, or ("", false) when absent.
func (db *DB) GetValue(key string) (string, bool, error) {
	var value string
	err := db.db.QueryRow(`SELECT value FROM snapshots WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SetValue upserts a document under a key.
func (db *DB) SetValue(key, value string) error {
	_, err := db.db.Exec(`
		INSERT INTO snapshots (key, value, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET
			value      = excluded.value,
			updated_at = datetime('now')
	`, key, value)
	return err
}

// DeleteValue removes a key. Missing keys are not an error.
func (db *DB) DeleteValue(key string) error {
	_, err := db.db.Exec(`DELETE FROM snapshots WHERE key = ?`, key)
	return err
}

// DeleteValuesWithPrefix removes every key under a namespace prefix.
func (db *DB) DeleteValuesWithPrefix(prefix string) error {
	pattern := strings.ReplaceAll(strings.ReplaceAll(prefix, `\`, `\\`), `%`, `\%`) + "%"
	_, err := db.db.Exec(`DELETE FROM snapshots WHERE key LIKE ? ESCAPE '\'`, pattern)
	return err
}

// ─── Day Archive Operations ─────────────────────────────────────────────────

// UpsertDayTotal stores the total for a calendar day (YYYY-MM-DD).
func (db *DB) UpsertDayTotal(day string, amount int) error {
	_, err := db.db.Exec(`
		INSERT INTO day_archive (day, amount)
		VALUES (?, ?)
		ON CONFLICT(day) DO UPDATE SET amount = excluded.amount
	`, day, amount)
	return err
}

// GetDayTotal returns the archived total for a day, zero when absent.
func (db *DB) GetDayTotal(day string) (int, error) {
	var amount int
	err := db.db.QueryRow(`SELECT amount FROM day_archive WHERE day = ?`, day).Scan(&amount)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return amount, err
}

// ListDayTotals returns all archived days, newest first.
func (db *DB) ListDayTotals() ([]struct {
	Day    string
	Amount int
}, error) {
	rows, err := db.db.Query(`SELECT day, amount FROM day_archive ORDER BY day DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []struct {
		Day    string
		Amount int
	}
	for rows.Next() {
		var r struct {
			Day    string
			Amount int
		}
		if err := rows.Scan(&r.Day, &r.Amount); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// ClearDayArchive removes every archived day.
func (db *DB) ClearDayArchive() error {
	_, err := db.db.Exec(`DELETE FROM day_archive`)
	return err
}

// ─── Sync Queue Operations ──────────────────────────────────────────────────

// AppendQueueItem persists one pending mutation at the tail of the queue.
func (db *DB) AppendQueueItem(itemID, itemType, payload string, enqueuedAt time.Time) error {
	_, err := db.db.Exec(`
		INSERT INTO sync_queue (item_id, item_type, payload, enqueued_at)
		VALUES (?, ?, ?, ?)
	`, itemID, itemType, payload, enqueuedAt.Format(time.RFC3339))
	return err
}

// ListQueueItems returns all pending payloads in FIFO order.
func (db *DB) ListQueueItems() ([]string, error) {
	rows, err := db.db.Query(`SELECT payload FROM sync_queue ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payloads []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		payloads = append(payloads, p)
	}
	return payloads, rows.Err()
}

// DeleteQueueItem removes one item after successful remote application.
func (db *DB) DeleteQueueItem(itemID string) error {
	_, err := db.db.Exec(`DELETE FROM sync_queue WHERE item_id = ?`, itemID)
	return err
}

// QueueLength returns the number of pending items.
func (db *DB) QueueLength() (int, error) {
	var n int
	err := db.db.QueryRow(`SELECT COUNT(*) FROM sync_queue`).Scan(&n)
	return n, err
}

// ClearQueue removes every pending item without applying them.
func (db *DB) ClearQueue() error {
	_, err := db.db.Exec(`DELETE FROM sync_queue`)
	return err
}
