package domain

import "time"

// ScoreResult is the output of one score evaluation. Created fresh per
// evaluation and never mutated, so it is safe to cache by
// (profileID, ruleSetVersion).
type ScoreResult struct {
	ProfileID      string         `json:"profileId"`
	RuleSetVersion string         `json:"ruleSetVersion"`
	OverallScore   int            `json:"overallScore"`
	CategoryScores map[string]int `json:"categoryScores"`
	Tier           string         `json:"tier"`
}

// RewardResult is the output of one reward computation. Points repeat on
// every qualifying evaluation; badges listed here were granted for the
// first time during this evaluation.
type RewardResult struct {
	Identity       string `json:"identity"`
	ProfileID      string `json:"profileId"`
	RuleSetVersion string `json:"ruleSetVersion"`

	Points int `json:"points"`

	// NewlyEarnedBadges contains only badges the identity did not already
	// hold. Empty when every triggered badge was held before, or when the
	// ledger was degraded.
	NewlyEarnedBadges []string `json:"newlyEarnedBadges"`

	// Messages holds one justification per triggered bonus rule, in bonus
	// rule declaration order.
	Messages []string `json:"messages"`

	// LedgerDegraded distinguishes "no badge earned" from "badge status
	// unknown because the ledger write failed".
	LedgerDegraded bool `json:"ledgerDegraded,omitempty"`
}

// ScoreRecord is the persisted audit record of one score evaluation.
type ScoreRecord struct {
	ID             string         `json:"id"`
	ProfileID      string         `json:"profileId"`
	RuleSetVersion string         `json:"ruleSetVersion"`
	OverallScore   int            `json:"overallScore"`
	Tier           string         `json:"tier"`
	CategoryScores map[string]int `json:"categoryScores"`
	EvaluatedAt    time.Time      `json:"evaluatedAt"`
}

// RewardRecord is the persisted audit record of one reward computation.
type RewardRecord struct {
	ID             string    `json:"id"`
	Identity       string    `json:"identity"`
	ProfileID      string    `json:"profileId"`
	RuleSetVersion string    `json:"ruleSetVersion"`
	Points         int       `json:"points"`
	Badges         []string  `json:"badges"`
	Messages       []string  `json:"messages"`
	LedgerDegraded bool      `json:"ledgerDegraded"`
	GrantedAt      time.Time `json:"grantedAt"`
}
