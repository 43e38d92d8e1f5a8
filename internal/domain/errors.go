package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the three non-input failure classes. Every engine
// error is attributable to exactly one of: bad input, bad configuration, or
// transient infrastructure.
var (
	// ErrInvalidRuleSet marks an operator/config defect. It is raised at
	// rule set load time and never reaches request handling.
	ErrInvalidRuleSet = errors.New("invalid rule set")

	// ErrUnknownRuleSetVersion is returned when a request names a version
	// that is not loaded.
	ErrUnknownRuleSetVersion = errors.New("unknown rule set version")

	// ErrLedgerUnavailable marks a transient badge ledger failure after
	// retries are exhausted. Reward points are still served; badge status
	// is reported as unknown via the ledgerDegraded flag.
	ErrLedgerUnavailable = errors.New("badge ledger unavailable")

	// ErrRuleSetExists is returned when saving a rule set version that is
	// already stored; versions are immutable.
	ErrRuleSetExists = errors.New("rule set version already exists")
)

// MissingAttributeError reports a client-input defect: an attribute
// referenced by the active rule set is absent from the profile.
type MissingAttributeError struct {
	Attribute string
	// Rule identifies the category or bonus rule that needed the attribute.
	Rule string
}

func (e *MissingAttributeError) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("missing attribute %q required by %s", e.Attribute, e.Rule)
	}
	return fmt.Sprintf("missing attribute %q", e.Attribute)
}

// NoApplicableActionError reports a rule set coverage gap: a classification
// inside the vocabulary had no matching action rule. It indicates an
// incomplete rule set, not bad input, and is surfaced as a server error.
type NoApplicableActionError struct {
	Classification string
	RuleSetVersion string
}

func (e *NoApplicableActionError) Error() string {
	return fmt.Sprintf("no action rule matches classification %q in rule set %s",
		e.Classification, e.RuleSetVersion)
}
