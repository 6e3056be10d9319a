package archive

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/psilva81/inferq/pkg/models"
)

// SQLiteArchive persists evicted requests to a local SQLite file
type SQLiteArchive struct {
	db *sql.DB
}

// NewSQLiteArchive opens (or creates) the archive database at dbPath
func NewSQLiteArchive(dbPath string) (*SQLiteArchive, error) {
	// Configure SQLite connection string with parameters for concurrent access
	// - _journal_mode=WAL: Enable Write-Ahead Logging for better concurrency
	// - _busy_timeout=10000: Wait up to 10 seconds when database is locked
	// - _synchronous=NORMAL: Balance between safety and performance
	// - _cache_size=-8000: 8MB memory cache for better performance
	// - _txlock=immediate: Acquire write lock at transaction start to reduce conflicts
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=10000&_synchronous=NORMAL&_cache_size=-8000&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer to avoid SQLITE_BUSY when archival overlaps an
	// operator poking at the same file
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	a := &SQLiteArchive{db: db}
	if err := a.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return a, nil
}

// initSchema creates the database schema
func (a *SQLiteArchive) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS archived_requests (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		metadata TEXT,
		priority TEXT NOT NULL,
		status TEXT NOT NULL,
		worker_id TEXT,
		created_at DATETIME NOT NULL,
		started_at DATETIME,
		completed_at DATETIME,
		boosts INTEGER NOT NULL DEFAULT 0,
		wait_seconds REAL NOT NULL DEFAULT 0,
		processing_seconds REAL NOT NULL DEFAULT 0,
		result TEXT,
		error TEXT,
		archived_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_archived_user ON archived_requests(user_id);
	CREATE INDEX IF NOT EXISTS idx_archived_completed ON archived_requests(completed_at);
	`

	_, err := a.db.Exec(schema)
	return err
}

// Store writes one finished request. Rows are immutable once written, so
// re-archiving the same request ID is a no-op.
func (a *SQLiteArchive) Store(snap models.RequestSnapshot) error {
	metadata, err := json.Marshal(snap.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	result, err := json.Marshal(snap.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	_, err = a.db.Exec(`
		INSERT OR IGNORE INTO archived_requests
		(id, user_id, payload, metadata, priority, status, worker_id, created_at,
		 started_at, completed_at, boosts, wait_seconds, processing_seconds,
		 result, error, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, snap.ID, snap.UserID, snap.Payload, string(metadata), snap.Priority.String(),
		string(snap.Status), snap.WorkerID, snap.CreatedAt, snap.StartedAt,
		snap.CompletedAt, snap.Boosts, snap.WaitSeconds, snap.ProcessingSeconds,
		string(result), snap.Error, time.Now())

	return err
}

// Count reports the number of archived requests
func (a *SQLiteArchive) Count() (int, error) {
	var n int
	err := a.db.QueryRow(`SELECT COUNT(*) FROM archived_requests`).Scan(&n)
	return n, err
}

// HealthCheck verifies the database is reachable
func (a *SQLiteArchive) HealthCheck() error {
	return a.db.Ping()
}

// Close closes the underlying database
func (a *SQLiteArchive) Close() error {
	return a.db.Close()
}

var _ Archive = (*SQLiteArchive)(nil)
