package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"screentime/internal/category"
	"screentime/internal/storage"
	"screentime/internal/usage"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

func NewSQLiteStore(dbPath string) storage.Storage {
	return &SQLiteStore{dbPath: dbPath}
}

const createSchemaSQL = `
CREATE TABLE IF NOT EXISTS pending_usage (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	package TEXT NOT NULL,
	app_name TEXT NOT NULL,
	total_ms INTEGER NOT NULL,
	last_used_ms INTEGER NOT NULL,
	first_seen_ms INTEGER NOT NULL,
	category TEXT NOT NULL,
	productive BOOLEAN NOT NULL,
	sync_time_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pending_sync_time ON pending_usage (sync_time_ms);
CREATE INDEX IF NOT EXISTS idx_pending_package ON pending_usage (package);

CREATE TABLE IF NOT EXISTS sync_state (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	last_sync_ms INTEGER NOT NULL
);
`

func (s *SQLiteStore) Init(ctx context.Context) error {
	dir := filepath.Dir(s.dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create db directory %s: %w", dir, err)
	}

	log.Printf("Initializing SQLite database at: %s", s.dbPath)
	db, err := sql.Open("sqlite3", s.dbPath+"?_journal=WAL&_timeout=5000&_fk=true")
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	s.db = db

	// SQLite is best with a single writer connection.
	s.db.SetMaxOpenConns(1)
	s.db.SetMaxIdleConns(1)
	s.db.SetConnMaxLifetime(time.Minute * 5)

	if err := s.db.PingContext(ctx); err != nil {
		s.db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, createSchemaSQL); err != nil {
		s.db.Close()
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SavePendingSummaries(ctx context.Context, summaries []usage.Summary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO pending_usage
		(package, app_name, total_ms, last_used_ms, first_seen_ms, category, productive, sync_time_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, sum := range summaries {
		if _, err := stmt.ExecContext(ctx, sum.Package, sum.AppName, sum.TotalMs,
			sum.LastUsedMs, sum.FirstSeenMs, string(sum.Category), sum.Productive, sum.SyncTimeMs); err != nil {
			return fmt.Errorf("failed to insert summary for %s: %w", sum.Package, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit summaries: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PendingSummaries(ctx context.Context, since time.Time) ([]usage.Summary, error) {
	query := `SELECT package, app_name, total_ms, last_used_ms, first_seen_ms, category, productive, sync_time_ms
	          FROM pending_usage
	          WHERE sync_time_ms >= ?
	          ORDER BY sync_time_ms DESC, total_ms DESC, package ASC`

	rows, err := s.db.QueryContext(ctx, query, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query pending summaries: %w", err)
	}
	defer rows.Close()

	var summaries []usage.Summary
	for rows.Next() {
		var sum usage.Summary
		var cat string
		if err := rows.Scan(&sum.Package, &sum.AppName, &sum.TotalMs, &sum.LastUsedMs,
			&sum.FirstSeenMs, &cat, &sum.Productive, &sum.SyncTimeMs); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		sum.Category = category.Category(cat)
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating summary rows: %w", err)
	}
	return summaries, nil
}

func (s *SQLiteStore) LoadWatermark(ctx context.Context) (time.Time, bool, error) {
	var ms int64
	err := s.db.QueryRowContext(ctx, `SELECT last_sync_ms FROM sync_state WHERE id = 1`).Scan(&ms)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to load watermark: %w", err)
	}
	return time.UnixMilli(ms), true, nil
}

func (s *SQLiteStore) StoreWatermark(ctx context.Context, t time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_state (id, last_sync_ms) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET last_sync_ms = excluded.last_sync_ms`,
		t.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to store watermark: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		log.Println("Closing database connection.")
		return s.db.Close()
	}
	return nil
}
