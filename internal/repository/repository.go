// Package repository provides persistent storage for rule sets, the badge
// ledger and audit records, with SQLite and PostgreSQL backends.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/open-sustainability/heron/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// SQLRepository implements domain.Repository on top of database/sql.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a repository for the configured driver.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return newSQLite(cfg)
	case "postgres":
		return newPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported repository driver: %s", cfg.Driver)
	}
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(r.rebind(schema)); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// rebind converts ? placeholders to $n for postgres.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// SaveRuleSet persists a rule set version. Versions are immutable: saving a
// version that already exists returns domain.ErrRuleSetExists.
func (r *SQLRepository) SaveRuleSet(ctx context.Context, rs *domain.RuleSet) error {
	document, err := json.Marshal(rs)
	if err != nil {
		return fmt.Errorf("marshal rule set: %w", err)
	}

	now := time.Now().UTC()
	createdAt := rs.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	query := r.rebind(`INSERT INTO rule_sets (version, name, description, document, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (version) DO NOTHING`)
	res, err := r.db.ExecContext(ctx, query,
		rs.Version, rs.Name, rs.Description, string(document), boolToInt(rs.Enabled), createdAt, now)
	if err != nil {
		return fmt.Errorf("save rule set: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save rule set: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrRuleSetExists, rs.Version)
	}
	return nil
}

// GetRuleSet fetches a rule set by version.
func (r *SQLRepository) GetRuleSet(ctx context.Context, version string) (*domain.RuleSet, error) {
	query := r.rebind(`SELECT document FROM rule_sets WHERE version = ?`)
	var document string
	err := r.db.QueryRowContext(ctx, query, version).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, version)
	}
	if err != nil {
		return nil, fmt.Errorf("get rule set: %w", err)
	}
	var rs domain.RuleSet
	if err := json.Unmarshal([]byte(document), &rs); err != nil {
		return nil, fmt.Errorf("unmarshal rule set %s: %w", version, err)
	}
	return &rs, nil
}

// ListRuleSets returns all stored rule sets ordered by version.
func (r *SQLRepository) ListRuleSets(ctx context.Context) ([]*domain.RuleSet, error) {
	query := r.rebind(`SELECT document FROM rule_sets ORDER BY version`)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list rule sets: %w", err)
	}
	defer rows.Close()

	var out []*domain.RuleSet
	for rows.Next() {
		var document string
		if err := rows.Scan(&document); err != nil {
			return nil, fmt.Errorf("scan rule set: %w", err)
		}
		var rs domain.RuleSet
		if err := json.Unmarshal([]byte(document), &rs); err != nil {
			return nil, fmt.Errorf("unmarshal rule set: %w", err)
		}
		out = append(out, &rs)
	}
	return out, rows.Err()
}

// EarnBadge records a badge grant exactly once per (identity, badge). It
// returns true only for the call that inserted the row, so concurrent grants
// of the same badge resolve to a single winner at the database.
func (r *SQLRepository) EarnBadge(ctx context.Context, identity, badgeID string) (bool, error) {
	query := r.rebind(`INSERT INTO badge_grants (identity, badge_id, granted_at)
		VALUES (?, ?, ?)
		ON CONFLICT (identity, badge_id) DO NOTHING`)
	res, err := r.db.ExecContext(ctx, query, identity, badgeID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("earn badge: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("earn badge: %w", err)
	}
	return affected == 1, nil
}

// ListBadges returns the badges held by an identity, ordered by badge id.
func (r *SQLRepository) ListBadges(ctx context.Context, identity string) ([]string, error) {
	query := r.rebind(`SELECT badge_id FROM badge_grants WHERE identity = ? ORDER BY badge_id`)
	rows, err := r.db.QueryContext(ctx, query, identity)
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	defer rows.Close()

	badges := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan badge: %w", err)
		}
		badges = append(badges, id)
	}
	return badges, rows.Err()
}

// SaveScoreRecord persists a score evaluation audit record.
func (r *SQLRepository) SaveScoreRecord(ctx context.Context, rec *domain.ScoreRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	categories, err := json.Marshal(rec.CategoryScores)
	if err != nil {
		return fmt.Errorf("marshal category scores: %w", err)
	}
	query := r.rebind(`INSERT INTO score_records (id, profile_id, rule_set_version, overall_score, tier, category_scores, evaluated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err = r.db.ExecContext(ctx, query,
		rec.ID, rec.ProfileID, rec.RuleSetVersion, rec.OverallScore, rec.Tier, string(categories), rec.EvaluatedAt)
	if err != nil {
		return fmt.Errorf("save score record: %w", err)
	}
	return nil
}

// SaveRewardRecord persists a reward grant audit record.
func (r *SQLRepository) SaveRewardRecord(ctx context.Context, rec *domain.RewardRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	badges, err := json.Marshal(rec.Badges)
	if err != nil {
		return fmt.Errorf("marshal badges: %w", err)
	}
	messages, err := json.Marshal(rec.Messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}
	query := r.rebind(`INSERT INTO reward_records (id, identity, profile_id, rule_set_version, points, badges, messages, ledger_degraded, granted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = r.db.ExecContext(ctx, query,
		rec.ID, rec.Identity, rec.ProfileID, rec.RuleSetVersion, rec.Points,
		string(badges), string(messages), boolToInt(rec.LedgerDegraded), rec.GrantedAt)
	if err != nil {
		return fmt.Errorf("save reward record: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the underlying database.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
