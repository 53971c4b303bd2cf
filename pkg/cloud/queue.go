package cloud

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// QueuedEvent is one offline-queued event read back from the durable store.
type QueuedEvent struct {
	ID         int64
	EventJSON  json.RawMessage
	CreatedAt  time.Time
	RetryCount int
}

// OfflineQueue is the durable, bounded, FIFO store of events awaiting cloud
// delivery, backed by an embedded SQLite database. It is the sole durable
// hop in the pipeline: every other stage is at-most-once in-memory.
type OfflineQueue struct {
	db        *sql.DB
	maxEvents int
	log       *slog.Logger
}

// OpenOfflineQueue opens (creating and migrating if necessary) the SQLite
// database at path, capped at maxEvents rows.
func OpenOfflineQueue(path string, maxEvents int, log *slog.Logger) (*OfflineQueue, error) {
	if log == nil {
		log = slog.Default()
	}
	if maxEvents <= 0 {
		maxEvents = 100000
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cloud: open offline queue: %w", err)
	}
	// SQLite is single-writer; the queue is accessed by one drainer and one
	// exporter goroutine, serialized by this single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("cloud: set WAL mode: %w", err)
	}

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("cloud: migrate offline queue schema: %w", err)
	}

	return &OfflineQueue{db: db, maxEvents: maxEvents, log: log}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migration source: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("build migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("build migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Close releases the underlying database connection.
func (q *OfflineQueue) Close() error { return q.db.Close() }

// Enqueue appends events in order, then evicts the oldest 10% (minimum 1)
// of rows if the table now exceeds maxEvents, keeping the queue bounded
// while amortizing eviction cost.
func (q *OfflineQueue) Enqueue(ctx context.Context, events []json.RawMessage) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cloud: begin enqueue tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO offline_events (event_json, created_at, retry_count) VALUES (?, ?, 0)")
	if err != nil {
		return fmt.Errorf("cloud: prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixNano()
	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, string(e), now); err != nil {
			return fmt.Errorf("cloud: insert offline event: %w", err)
		}
	}

	if err := q.evictOverflowLocked(ctx, tx); err != nil {
		return err
	}

	return tx.Commit()
}

func (q *OfflineQueue) evictOverflowLocked(ctx context.Context, tx *sql.Tx) error {
	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM offline_events").Scan(&count); err != nil {
		return fmt.Errorf("cloud: count offline events: %w", err)
	}
	if count <= q.maxEvents {
		return nil
	}

	overflow := count - q.maxEvents
	batch := q.maxEvents / 10
	if batch < 1 {
		batch = 1
	}
	evict := overflow
	if batch > evict {
		evict = batch
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM offline_events WHERE id IN (
			SELECT id FROM offline_events ORDER BY created_at ASC, id ASC LIMIT ?
		)`, evict); err != nil {
		return fmt.Errorf("cloud: evict overflow: %w", err)
	}
	q.log.Warn("cloud: offline queue overflow, evicted oldest entries", "evicted", evict, "max_events", q.maxEvents)
	return nil
}

// Dequeue atomically removes and returns up to limit of the oldest queued
// events. Callers that fail to deliver the returned batch must re-enqueue
// it via Enqueue: a dequeued batch the server never acknowledged must not
// be lost.
func (q *OfflineQueue) Dequeue(ctx context.Context, limit int) ([]QueuedEvent, error) {
	if limit <= 0 {
		return nil, nil
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("cloud: begin dequeue tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx,
		"SELECT id, event_json, created_at, retry_count FROM offline_events ORDER BY created_at ASC, id ASC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("cloud: select for dequeue: %w", err)
	}

	var out []QueuedEvent
	var ids []int64
	for rows.Next() {
		var (
			id         int64
			eventJSON  string
			createdAt  int64
			retryCount int
		)
		if err := rows.Scan(&id, &eventJSON, &createdAt, &retryCount); err != nil {
			rows.Close()
			return nil, fmt.Errorf("cloud: scan dequeue row: %w", err)
		}
		out = append(out, QueuedEvent{
			ID:         id,
			EventJSON:  json.RawMessage(eventJSON),
			CreatedAt:  time.Unix(0, createdAt),
			RetryCount: retryCount,
		})
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("cloud: iterate dequeue rows: %w", err)
	}
	rows.Close()

	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, "DELETE FROM offline_events WHERE id = ?", id); err != nil {
			return nil, fmt.Errorf("cloud: delete dequeued row %d: %w", id, err)
		}
	}

	return out, tx.Commit()
}

// Peek returns up to limit of the oldest queued events without removing
// them.
func (q *OfflineQueue) Peek(ctx context.Context, limit int) ([]QueuedEvent, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT id, event_json, created_at, retry_count FROM offline_events ORDER BY created_at ASC, id ASC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("cloud: peek: %w", err)
	}
	defer rows.Close()

	var out []QueuedEvent
	for rows.Next() {
		var (
			id         int64
			eventJSON  string
			createdAt  int64
			retryCount int
		)
		if err := rows.Scan(&id, &eventJSON, &createdAt, &retryCount); err != nil {
			return nil, fmt.Errorf("cloud: scan peek row: %w", err)
		}
		out = append(out, QueuedEvent{ID: id, EventJSON: json.RawMessage(eventJSON), CreatedAt: time.Unix(0, createdAt), RetryCount: retryCount})
	}
	return out, rows.Err()
}

// PendingCount returns the number of events currently queued.
func (q *OfflineQueue) PendingCount(ctx context.Context) (int, error) {
	var count int
	err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM offline_events").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("cloud: pending count: %w", err)
	}
	return count, nil
}

// CleanupOld deletes rows older than maxAge, for operators who would rather
// drop stale events than ship them long after capture.
func (q *OfflineQueue) CleanupOld(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).UnixNano()
	res, err := q.db.ExecContext(ctx, "DELETE FROM offline_events WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("cloud: cleanup old: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes every queued event.
func (q *OfflineQueue) Clear(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, "DELETE FROM offline_events")
	if err != nil {
		return fmt.Errorf("cloud: clear: %w", err)
	}
	return nil
}
