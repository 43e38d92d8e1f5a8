// Package ledger provides badge ledger implementations. The ledger is the
// only shared mutable state in the engine: each (identity, badge) pair moves
// NotEarned -> Earned exactly once and never back.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/open-sustainability/heron/internal/domain"
)

// Store is the durable badge ledger backed by the repository. Atomicity of
// EarnIfAbsent comes from the storage layer's conditional write (a
// unique-constraint insert), so no process-level lock is needed and the
// guarantee holds across multiple nodes.
type Store struct {
	repo domain.Repository
}

// NewStore creates a repository-backed badge ledger.
func NewStore(repo domain.Repository) *Store {
	return &Store{repo: repo}
}

// EarnIfAbsent grants the badge if absent. True means newly granted.
func (s *Store) EarnIfAbsent(ctx context.Context, identity, badgeID string) (bool, error) {
	if identity == "" || badgeID == "" {
		return false, fmt.Errorf("identity and badgeID are required")
	}
	return s.repo.EarnBadge(ctx, identity, badgeID)
}

// Badges returns the identity's badge set.
func (s *Store) Badges(ctx context.Context, identity string) ([]string, error) {
	if identity == "" {
		return nil, fmt.Errorf("identity is required")
	}
	return s.repo.ListBadges(ctx, identity)
}

// Ping checks ledger storage health.
func (s *Store) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// Close is a no-op; the repository owns the connection.
func (s *Store) Close() error {
	return nil
}

// WithRetry wraps a ledger with a bounded-backoff retry policy and a
// per-attempt timeout. Retries target transient storage failures only:
// "already earned" is a valid outcome, not a conflict to retry. When
// attempts are exhausted the error wraps ErrLedgerUnavailable so callers
// can degrade instead of failing the reward.
type WithRetry struct {
	inner domain.BadgeLedger
	cfg   domain.LedgerConfig
}

// NewWithRetry decorates a ledger with the configured retry policy.
func NewWithRetry(inner domain.BadgeLedger, cfg domain.LedgerConfig) *WithRetry {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffMs <= 0 {
		cfg.BackoffMs = 50
	}
	if cfg.TimeoutMs <= 0 {
		cfg.TimeoutMs = 2000
	}
	return &WithRetry{inner: inner, cfg: cfg}
}

// EarnIfAbsent attempts the grant up to MaxAttempts times with doubling
// backoff between attempts.
func (r *WithRetry) EarnIfAbsent(ctx context.Context, identity, badgeID string) (bool, error) {
	backoff := time.Duration(r.cfg.BackoffMs) * time.Millisecond
	timeout := time.Duration(r.cfg.TimeoutMs) * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return false, fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		granted, err := r.inner.EarnIfAbsent(attemptCtx, identity, badgeID)
		cancel()
		if err == nil {
			return granted, nil
		}
		lastErr = err
	}

	return false, fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, lastErr)
}

// Badges passes through without retry; reads are idempotent and callers
// surface their own errors.
func (r *WithRetry) Badges(ctx context.Context, identity string) ([]string, error) {
	return r.inner.Badges(ctx, identity)
}

// Ping checks the wrapped ledger's health.
func (r *WithRetry) Ping(ctx context.Context) error {
	return r.inner.Ping(ctx)
}

// Close closes the wrapped ledger.
func (r *WithRetry) Close() error {
	return r.inner.Close()
}
