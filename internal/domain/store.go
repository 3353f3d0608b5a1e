package domain

import (
	"context"
	"time"
)

// ResultsStore defines the persistence interface for scoring artifacts.
// All writes have upsert semantics on the (session_id, entity_id) key: a
// re-score overwrites prior rows atomically and never duplicates them. Batch
// saves are transactional per entity type, so a failed factor write cannot
// leave a half-written layer batch behind.
type ResultsStore interface {
	SaveFactors(ctx context.Context, sessionID string, factors []*Factor) error
	GetFactors(ctx context.Context, sessionID string) ([]*Factor, error)

	SaveLayers(ctx context.Context, sessionID string, layers []*Layer) error
	GetLayers(ctx context.Context, sessionID string) ([]*Layer, error)

	SaveSegments(ctx context.Context, sessionID string, segments []*Segment) error
	GetSegments(ctx context.Context, sessionID string) ([]*Segment, error)

	SaveBusinessCase(ctx context.Context, sessionID string, score *BusinessCaseScore) error
	GetBusinessCase(ctx context.Context, sessionID string) (*BusinessCaseScore, error)

	SaveScenarios(ctx context.Context, sessionID string, result *SimulationResult) error
	GetScenarios(ctx context.Context, sessionID string) (*SimulationResult, error)

	// GetSnapshot reads the full committed state for a session.
	GetSnapshot(ctx context.Context, sessionID string) (*Snapshot, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for store initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `json:"driver" koanf:"driver"`

	// SQLite specific
	SQLitePath string `json:"sqlitePath" koanf:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `json:"postgresHost" koanf:"postgres_host"`
	PostgresPort     int    `json:"postgresPort" koanf:"postgres_port"`
	PostgresUser     string `json:"postgresUser" koanf:"postgres_user"`
	PostgresPassword string `json:"postgresPassword" koanf:"postgres_password"`
	PostgresDB       string `json:"postgresDb" koanf:"postgres_db"`
	PostgresSSLMode  string `json:"postgresSslMode" koanf:"postgres_ssl_mode"`

	// Connection pool settings
	MaxOpenConns    int           `json:"maxOpenConns" koanf:"max_open_conns"`
	MaxIdleConns    int           `json:"maxIdleConns" koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" koanf:"conn_max_lifetime"`
}
