package archive

import (
	"errors"
	"time"

	"github.com/psilva81/inferq/pkg/models"
)

// Archive is a write-only sink for finished requests evicted from the
// in-memory history. Rows are never loaded back into the queue; Count and
// HealthCheck exist for operational visibility only.
type Archive interface {
	Store(snap models.RequestSnapshot) error
	Count() (int, error)
	HealthCheck() error
	Close() error
}

// Config holds archive backend configuration
type Config struct {
	Backend string // "sqlite" or "postgres"
	DSN     string // Connection string (PostgreSQL)
	Path    string // Database file (SQLite)

	// PostgreSQL specific
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// New creates an archive based on configuration
func New(config Config) (Archive, error) {
	switch config.Backend {
	case "postgres", "postgresql":
		return NewPostgresArchive(config)
	case "sqlite", "":
		path := config.Path
		if path == "" {
			path = config.DSN
		}
		if path == "" {
			path = "inferq-archive.db"
		}
		return NewSQLiteArchive(path)
	default:
		return nil, ErrUnsupportedBackend
	}
}

var ErrUnsupportedBackend = errors.New("unsupported archive backend")
