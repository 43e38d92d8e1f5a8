package repository

// Schema definitions for the Heron database.
// Compatible with both SQLite and PostgreSQL.

const schemaRuleSets = `
CREATE TABLE IF NOT EXISTS rule_sets (
    version TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    document TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rule_sets_enabled ON rule_sets(enabled);
`

// badge_grants is the durable badge ledger. The composite primary key makes
// EarnBadge's conditional insert atomic at the storage layer.
const schemaBadgeGrants = `
CREATE TABLE IF NOT EXISTS badge_grants (
    identity TEXT NOT NULL,
    badge_id TEXT NOT NULL,
    granted_at TIMESTAMP NOT NULL,
    PRIMARY KEY (identity, badge_id)
);

CREATE INDEX IF NOT EXISTS idx_badge_grants_identity ON badge_grants(identity);
`

const schemaScoreRecords = `
CREATE TABLE IF NOT EXISTS score_records (
    id TEXT PRIMARY KEY,
    profile_id TEXT NOT NULL,
    rule_set_version TEXT NOT NULL,
    overall_score INTEGER NOT NULL,
    tier TEXT NOT NULL,
    category_scores TEXT NOT NULL,
    evaluated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_score_records_profile ON score_records(profile_id);
CREATE INDEX IF NOT EXISTS idx_score_records_version ON score_records(rule_set_version);
`

const schemaRewardRecords = `
CREATE TABLE IF NOT EXISTS reward_records (
    id TEXT PRIMARY KEY,
    identity TEXT NOT NULL,
    profile_id TEXT NOT NULL,
    rule_set_version TEXT NOT NULL,
    points INTEGER NOT NULL,
    badges TEXT NOT NULL,
    messages TEXT NOT NULL,
    ledger_degraded INTEGER NOT NULL DEFAULT 0,
    granted_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reward_records_identity ON reward_records(identity);
CREATE INDEX IF NOT EXISTS idx_reward_records_granted ON reward_records(identity, granted_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaRuleSets,
		schemaBadgeGrants,
		schemaScoreRecords,
		schemaRewardRecords,
	}
}
