// Package domain defines the core types and interfaces for Heron.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence: rule set versions,
// the durable badge ledger, and evaluation audit records.
type Repository interface {
	// Rule set versions. Versions are immutable once saved.
	SaveRuleSet(ctx context.Context, rs *RuleSet) error
	GetRuleSet(ctx context.Context, version string) (*RuleSet, error)
	ListRuleSets(ctx context.Context) ([]*RuleSet, error)

	// Badge ledger. EarnBadge is a storage-layer conditional write:
	// true iff the grant row was newly inserted.
	EarnBadge(ctx context.Context, identity, badgeID string) (bool, error)
	ListBadges(ctx context.Context, identity string) ([]string, error)

	// Audit records
	SaveScoreRecord(ctx context.Context, rec *ScoreRecord) error
	SaveRewardRecord(ctx context.Context, rec *RewardRecord) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `json:"driver" mapstructure:"driver"`

	// SQLite specific
	SQLitePath string `json:"sqlitePath" mapstructure:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `json:"postgresHost" mapstructure:"postgres_host"`
	PostgresPort     int    `json:"postgresPort" mapstructure:"postgres_port"`
	PostgresUser     string `json:"postgresUser" mapstructure:"postgres_user"`
	PostgresPassword string `json:"-" mapstructure:"postgres_password"`
	PostgresDB       string `json:"postgresDb" mapstructure:"postgres_db"`
	PostgresSSLMode  string `json:"postgresSslMode" mapstructure:"postgres_ssl_mode"`

	// Connection pool settings
	MaxOpenConns    int           `json:"maxOpenConns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `json:"maxIdleConns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" mapstructure:"conn_max_lifetime"`
}
