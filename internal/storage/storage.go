// Package storage defines the durable backend interface for the pipeline
// and hosts its sqlite and postgres implementations.
package storage

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/tollgrid/cdrpipe/internal/mapping"
	"github.com/tollgrid/cdrpipe/internal/recovery"
	"github.com/tollgrid/cdrpipe/internal/storage/postgres"
	"github.com/tollgrid/cdrpipe/internal/storage/sqlite"
	"github.com/tollgrid/cdrpipe/internal/types"
)

// Store is the full durable backend: canonical events and contact
// summaries, job progress, mapping templates, dead letters, and the cache
// second tier. Event and summary writes are idempotent upserts so a re-run
// job converges instead of duplicating rows.
type Store interface {
	// Canonical events
	UpsertEvents(ctx context.Context, events []*types.CanonicalEvent) (int, error)
	GetEventsByUser(ctx context.Context, userID string, limit int) ([]*types.CanonicalEvent, error)
	UpsertContactSummaries(ctx context.Context, summaries []*types.ContactSummary) error

	// Job status
	UpdateJobStatus(ctx context.Context, status *types.JobStatus) error
	GetJobStatus(ctx context.Context, jobID string) (*types.JobStatus, error)

	// Mapping templates
	mapping.TemplateStore
	ListTemplates(ctx context.Context) ([]*mapping.Template, error)

	// Dead letters
	recovery.DeadLetterStore

	// Cache second tier
	CacheGet(ctx context.Context, key string) ([]byte, bool, error)
	CacheSet(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Close() error
}

// Backend names a storage implementation.
type Backend string

const (
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
)

// Config selects and configures a backend. The sqlite fields and the
// postgres fields are independent; only the selected backend's fields are
// read.
type Config struct {
	Backend Backend

	// Path is the sqlite database file. ":memory:" is valid for tests.
	Path string

	// Postgres connection settings.
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
}

// DefaultConfig returns a config for a local sqlite deployment.
func DefaultConfig() *Config {
	pg := postgres.DefaultConfig()
	return &Config{
		Backend:  BackendSQLite,
		Path:     "cdrpipe.db",
		Host:     pg.Host,
		Port:     pg.Port,
		Database: pg.Database,
		User:     pg.User,
		SSLMode:  pg.SSLMode,
	}
}

// ConfigFromEnv builds a config from CDRPIPE_* environment variables,
// starting from defaults. Unset or malformed values keep their defaults.
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()
	if v := os.Getenv("CDRPIPE_STORAGE_BACKEND"); v != "" {
		cfg.Backend = Backend(v)
	}
	if v := os.Getenv("CDRPIPE_DB_PATH"); v != "" {
		cfg.Path = v
	}
	if v := os.Getenv("CDRPIPE_PG_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("CDRPIPE_PG_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Port = n
		}
	}
	if v := os.Getenv("CDRPIPE_PG_DATABASE"); v != "" {
		cfg.Database = v
	}
	if v := os.Getenv("CDRPIPE_PG_USER"); v != "" {
		cfg.User = v
	}
	if v := os.Getenv("CDRPIPE_PG_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("CDRPIPE_PG_SSLMODE"); v != "" {
		cfg.SSLMode = v
	}
	return cfg
}

// NewStorage creates the configured backend. A nil config means local
// sqlite with defaults.
func NewStorage(ctx context.Context, cfg *Config) (Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	switch cfg.Backend {
	case BackendSQLite, "":
		path := cfg.Path
		if path == "" {
			path = "cdrpipe.db"
		}
		s, err := sqlite.New(path)
		if err != nil {
			return nil, err
		}
		return s, nil

	case BackendPostgres:
		pg := postgres.DefaultConfig()
		if cfg.Host != "" {
			pg.Host = cfg.Host
		}
		if cfg.Port > 0 {
			pg.Port = cfg.Port
		}
		if cfg.Database != "" {
			pg.Database = cfg.Database
		}
		if cfg.User != "" {
			pg.User = cfg.User
		}
		pg.Password = cfg.Password
		if cfg.SSLMode != "" {
			pg.SSLMode = cfg.SSLMode
		}
		s, err := postgres.New(ctx, pg)
		if err != nil {
			return nil, err
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}

// CacheAdapter exposes a Store's cache methods as the resource layer's
// CacheStore.
type CacheAdapter struct {
	Store Store
}

// Get implements the resource-layer cache store.
func (a CacheAdapter) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return a.Store.CacheGet(ctx, key)
}

// Set implements the resource-layer cache store.
func (a CacheAdapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return a.Store.CacheSet(ctx, key, value, ttl)
}
