package domain

import (
	"fmt"
	"math"
	"time"
)

// Weight totals a rule set may declare. Percent (sum to 100) is the default;
// fractional rule sets sum to 1.0.
const (
	WeightTotalPercent  = 100.0
	WeightTotalFraction = 1.0
)

const weightEpsilon = 1e-9

// RuleSet is the versioned, immutable configuration driving scoring, tier
// classification, action selection and rewards. A version is never edited in
// place; changed rules ship as a new version.
type RuleSet struct {
	Version     string `json:"version" yaml:"version"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// WeightTotal is the required sum of category weights: 100 or 1.0.
	// Zero means 100.
	WeightTotal float64 `json:"weightTotal,omitempty" yaml:"weightTotal,omitempty"`

	// Categories drive the weighted score, in declaration order.
	Categories []CategoryWeight `json:"categoryWeights" yaml:"categoryWeights"`

	// Tiers map overall score to a tier label, strictly descending by
	// MinScore; the last entry must have MinScore 0 so [0,100] is covered.
	Tiers []TierThreshold `json:"tierThresholds" yaml:"tierThresholds"`

	// BaseValue is the starting point total for every reward evaluation.
	BaseValue int `json:"baseValue" yaml:"baseValue"`

	// Bonuses are evaluated in declaration order.
	Bonuses []BonusRule `json:"bonusRules,omitempty" yaml:"bonusRules,omitempty"`

	// Actions map a classification to a recommended action. For one
	// classification the highest priority wins; ties go to the first
	// declared.
	Actions []ActionRule `json:"actionRules,omitempty" yaml:"actionRules,omitempty"`

	// Classifications optionally declares the classification vocabulary.
	// When empty it is derived from Actions.
	Classifications []string `json:"classifications,omitempty" yaml:"classifications,omitempty"`

	Enabled   bool      `json:"enabled" yaml:"enabled"`
	CreatedAt time.Time `json:"createdAt,omitempty" yaml:"-"`
	UpdatedAt time.Time `json:"updatedAt,omitempty" yaml:"-"`
}

// CategoryWeight is one weighted scoring category.
type CategoryWeight struct {
	Category string  `json:"category" yaml:"category"`
	Weight   float64 `json:"weight" yaml:"weight"`

	// Expression is a CEL expression over the profile producing the raw
	// category score (int or double, clamped to [0,100]). Example:
	// "numeric.recycledContent" or "boolean.compostable ? 100.0 : 0.0".
	Expression string `json:"expression" yaml:"expression"`

	// Requires lists profile attributes the expression depends on; their
	// absence is a MissingAttributeError before evaluation.
	Requires []string `json:"requires,omitempty" yaml:"requires,omitempty"`
}

// TierThreshold maps an inclusive minimum score to a tier label.
type TierThreshold struct {
	MinScore int    `json:"minScoreInclusive" yaml:"minScoreInclusive"`
	Tier     string `json:"tierLabel" yaml:"tierLabel"`
}

// BonusRule awards points, and optionally a one-time badge, when its
// predicate holds for a profile.
type BonusRule struct {
	ID string `json:"id" yaml:"id"`

	// When is a CEL predicate over the profile; must evaluate to bool.
	When string `json:"predicate" yaml:"predicate"`

	Points int `json:"points" yaml:"points"`

	// BadgeID, when set, names the badge granted at most once per identity.
	BadgeID string `json:"badgeId,omitempty" yaml:"badgeId,omitempty"`

	// Message is the human-readable justification appended when the rule
	// triggers.
	Message string `json:"message" yaml:"message"`

	Requires []string `json:"requires,omitempty" yaml:"requires,omitempty"`
}

// ActionRule binds a classification to a recommended action with a priority.
type ActionRule struct {
	Classification string `json:"classification" yaml:"classification"`
	Action         string `json:"action" yaml:"action"`
	Priority       int    `json:"priority" yaml:"priority"`
}

// Vocabulary returns the classification vocabulary: the declared list when
// present, otherwise the distinct classifications of the action rules in
// declaration order.
func (rs *RuleSet) Vocabulary() []string {
	if len(rs.Classifications) > 0 {
		return rs.Classifications
	}
	seen := make(map[string]bool, len(rs.Actions))
	var vocab []string
	for _, a := range rs.Actions {
		if !seen[a.Classification] {
			seen[a.Classification] = true
			vocab = append(vocab, a.Classification)
		}
	}
	return vocab
}

// InVocabulary reports whether the classification is part of the rule set's
// vocabulary.
func (rs *RuleSet) InVocabulary(classification string) bool {
	for _, c := range rs.Vocabulary() {
		if c == classification {
			return true
		}
	}
	return false
}

// Validate checks the structural invariants that do not require a CEL
// compiler: weight sum, threshold ordering and coverage, bonus point signs,
// and action coverage of the vocabulary. Expression validity is checked
// separately at compile time. All failures wrap ErrInvalidRuleSet.
func (rs *RuleSet) Validate() error {
	if rs.Version == "" {
		return fmt.Errorf("%w: version is required", ErrInvalidRuleSet)
	}
	if rs.BaseValue < 0 {
		return fmt.Errorf("%w: baseValue must be non-negative", ErrInvalidRuleSet)
	}

	total := rs.WeightTotal
	if total == 0 {
		total = WeightTotalPercent
	}
	if total != WeightTotalPercent && total != WeightTotalFraction {
		return fmt.Errorf("%w: weightTotal must be %v or %v, got %v",
			ErrInvalidRuleSet, WeightTotalPercent, WeightTotalFraction, total)
	}

	if len(rs.Categories) == 0 {
		return fmt.Errorf("%w: at least one category weight is required", ErrInvalidRuleSet)
	}
	var sum float64
	for _, c := range rs.Categories {
		if c.Category == "" {
			return fmt.Errorf("%w: category name is required", ErrInvalidRuleSet)
		}
		if c.Expression == "" {
			return fmt.Errorf("%w: category %q has no scoring expression", ErrInvalidRuleSet, c.Category)
		}
		if c.Weight < 0 {
			return fmt.Errorf("%w: category %q has negative weight %v", ErrInvalidRuleSet, c.Category, c.Weight)
		}
		sum += c.Weight
	}
	if math.Abs(sum-total) > weightEpsilon {
		return fmt.Errorf("%w: category weights sum to %v, want %v", ErrInvalidRuleSet, sum, total)
	}

	if len(rs.Tiers) == 0 {
		return fmt.Errorf("%w: at least one tier threshold is required", ErrInvalidRuleSet)
	}
	for i, t := range rs.Tiers {
		if t.Tier == "" {
			return fmt.Errorf("%w: tier threshold %d has no label", ErrInvalidRuleSet, i)
		}
		if t.MinScore < 0 || t.MinScore > 100 {
			return fmt.Errorf("%w: tier %q threshold %d outside [0,100]", ErrInvalidRuleSet, t.Tier, t.MinScore)
		}
		if i > 0 && t.MinScore >= rs.Tiers[i-1].MinScore {
			return fmt.Errorf("%w: tier thresholds must be strictly descending (%d >= %d at %q)",
				ErrInvalidRuleSet, t.MinScore, rs.Tiers[i-1].MinScore, t.Tier)
		}
	}
	if rs.Tiers[len(rs.Tiers)-1].MinScore != 0 {
		return fmt.Errorf("%w: lowest tier threshold must be 0 to cover the full score range", ErrInvalidRuleSet)
	}

	for _, b := range rs.Bonuses {
		if b.ID == "" {
			return fmt.Errorf("%w: bonus rule is missing an id", ErrInvalidRuleSet)
		}
		if b.When == "" {
			return fmt.Errorf("%w: bonus rule %q has no predicate", ErrInvalidRuleSet, b.ID)
		}
		if b.Points < 0 {
			return fmt.Errorf("%w: bonus rule %q has negative points", ErrInvalidRuleSet, b.ID)
		}
	}

	// Every declared classification must be covered by an action rule.
	covered := make(map[string]bool, len(rs.Actions))
	for _, a := range rs.Actions {
		if a.Classification == "" || a.Action == "" {
			return fmt.Errorf("%w: action rule requires classification and action", ErrInvalidRuleSet)
		}
		covered[a.Classification] = true
	}
	for _, c := range rs.Classifications {
		if !covered[c] {
			return fmt.Errorf("%w: classification %q has no action rule", ErrInvalidRuleSet, c)
		}
	}

	return nil
}
