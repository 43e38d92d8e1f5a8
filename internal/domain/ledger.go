package domain

import "context"

// BadgeLedger tracks which badges an identity has earned. It is the only
// shared mutable state in the engine.
//
// EarnIfAbsent must be atomic: across any number of concurrent callers, at
// most one call per (identity, badgeID) pair ever returns true. A badge,
// once earned, is permanent.
type BadgeLedger interface {
	// EarnIfAbsent grants the badge if the identity does not hold it yet.
	// Returns true if newly granted, false if already held.
	EarnIfAbsent(ctx context.Context, identity, badgeID string) (bool, error)

	// Badges returns the identity's current badge set. An identity that has
	// never interacted with the engine yields an empty set, not an error.
	Badges(ctx context.Context, identity string) ([]string, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// LedgerConfig holds badge ledger initialization and retry settings.
type LedgerConfig struct {
	// MaxAttempts bounds retries of a failed ledger write (>= 1).
	MaxAttempts int `json:"maxAttempts" mapstructure:"max_attempts"`

	// BackoffMs is the initial retry backoff in milliseconds; it doubles
	// per attempt.
	BackoffMs int `json:"backoffMs" mapstructure:"backoff_ms"`

	// TimeoutMs bounds a single ledger write. The ledger call is the sole
	// suspension point in a reward evaluation.
	TimeoutMs int `json:"timeoutMs" mapstructure:"timeout_ms"`
}
