package archive

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/psilva81/inferq/pkg/models"
)

// PostgresArchive persists evicted requests to PostgreSQL, for deployments
// where the archive should outlive the daemon's host
type PostgresArchive struct {
	db *sql.DB
}

// NewPostgresArchive connects to PostgreSQL and prepares the schema
func NewPostgresArchive(config Config) (*PostgresArchive, error) {
	db, err := sql.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxOpen := config.MaxOpenConns
	if maxOpen == 0 {
		maxOpen = 25
	}
	maxIdle := config.MaxIdleConns
	if maxIdle == 0 {
		maxIdle = 5
	}
	maxLifetime := config.ConnMaxLifetime
	if maxLifetime == 0 {
		maxLifetime = 5 * time.Minute
	}
	maxIdleTime := config.ConnMaxIdleTime
	if maxIdleTime == 0 {
		maxIdleTime = 1 * time.Minute
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)
	db.SetConnMaxIdleTime(maxIdleTime)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	a := &PostgresArchive{db: db}
	if err := a.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return a, nil
}

// initSchema creates the database schema
func (a *PostgresArchive) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS archived_requests (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		metadata JSONB,
		priority TEXT NOT NULL,
		status TEXT NOT NULL,
		worker_id TEXT,
		created_at TIMESTAMP NOT NULL,
		started_at TIMESTAMP,
		completed_at TIMESTAMP,
		boosts INTEGER NOT NULL DEFAULT 0,
		wait_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
		processing_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
		result JSONB,
		error TEXT,
		archived_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_archived_user ON archived_requests(user_id);
	CREATE INDEX IF NOT EXISTS idx_archived_completed ON archived_requests(completed_at);
	`

	_, err := a.db.Exec(schema)
	return err
}

// Store writes one finished request. Rows are immutable once written, so
// re-archiving the same request ID is a no-op.
func (a *PostgresArchive) Store(snap models.RequestSnapshot) error {
	metadata, err := json.Marshal(snap.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	result, err := json.Marshal(snap.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	_, err = a.db.Exec(`
		INSERT INTO archived_requests
		(id, user_id, payload, metadata, priority, status, worker_id, created_at,
		 started_at, completed_at, boosts, wait_seconds, processing_seconds,
		 result, error, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO NOTHING
	`, snap.ID, snap.UserID, snap.Payload, string(metadata), snap.Priority.String(),
		string(snap.Status), snap.WorkerID, snap.CreatedAt, snap.StartedAt,
		snap.CompletedAt, snap.Boosts, snap.WaitSeconds, snap.ProcessingSeconds,
		string(result), snap.Error, time.Now())

	return err
}

// Count reports the number of archived requests
func (a *PostgresArchive) Count() (int, error) {
	var n int
	err := a.db.QueryRow(`SELECT COUNT(*) FROM archived_requests`).Scan(&n)
	return n, err
}

// HealthCheck verifies the database is reachable
func (a *PostgresArchive) HealthCheck() error {
	return a.db.Ping()
}

// Close closes the underlying database
func (a *PostgresArchive) Close() error {
	return a.db.Close()
}

var _ Archive = (*PostgresArchive)(nil)
