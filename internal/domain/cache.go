package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations. ScoreResults are pure
// per (profileID, ruleSetVersion), which makes them safe to memoize here.
// Supports two-phase caching: local LRU (L1) + Redis (L2).
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// GetScore retrieves a memoized score result.
	// Returns nil, nil on a miss.
	GetScore(ctx context.Context, profileID, ruleSetVersion string) (*ScoreResult, error)

	// SetScore memoizes a score result.
	SetScore(ctx context.Context, result *ScoreResult, ttl time.Duration) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `json:"type" mapstructure:"type"`

	// Local LRU cache settings
	LocalMaxSize int           `json:"localMaxSize" mapstructure:"local_max_size"`
	LocalTTL     time.Duration `json:"localTtl" mapstructure:"local_ttl"`

	// ScoreTTL bounds how long a memoized ScoreResult is served.
	ScoreTTL time.Duration `json:"scoreTtl" mapstructure:"score_ttl"`

	// Redis settings
	RedisAddr     string `json:"redisAddr" mapstructure:"redis_addr"`
	RedisPassword string `json:"-" mapstructure:"redis_password"`
	RedisDB       int    `json:"redisDb" mapstructure:"redis_db"`

	// Two-phase settings
	EnableTwoPhase bool `json:"enableTwoPhase" mapstructure:"enable_two_phase"` // If true, check local first, then Redis
}
