package rules

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/open-sustainability/heron/internal/domain"
)

// EvaluateScore applies the rule set's weighted category rules to a profile.
// Pure function: same profile and rule set version always yield an identical
// result, which makes results safe to memoize by (profileID, version).
//
// Overall score is the weight-normalized mean of the category scores,
// rounded half-up to the nearest integer.
func (c *CompiledRuleSet) EvaluateScore(profile *domain.AttributeProfile) (*domain.ScoreResult, error) {
	if profile == nil {
		return nil, fmt.Errorf("profile is required")
	}

	activation := profile.Activation()

	categoryScores := make(map[string]int, len(c.categories))
	var weightedSum, weightTotal float64

	for _, cat := range c.categories {
		if err := requireAttributes(profile, cat.cfg.Requires, fmt.Sprintf("category %q", cat.cfg.Category)); err != nil {
			return nil, err
		}

		out, _, err := cat.program.Eval(activation)
		if err != nil {
			return nil, asAttributeError(err, fmt.Sprintf("category %q", cat.cfg.Category))
		}

		raw := clampScore(toFloat(out))
		categoryScores[cat.cfg.Category] = roundHalfUp(raw)
		weightedSum += raw * cat.cfg.Weight
		weightTotal += cat.cfg.Weight
	}

	overall := 0
	if weightTotal > 0 {
		overall = roundHalfUp(weightedSum / weightTotal)
	}

	return &domain.ScoreResult{
		ProfileID:      profile.ID,
		RuleSetVersion: c.Config.Version,
		OverallScore:   overall,
		CategoryScores: categoryScores,
		Tier:           c.ClassifyTier(overall),
	}, nil
}

// ClassifyTier maps an overall score to a tier label by scanning the
// thresholds in descending order. A score exactly at a threshold boundary
// belongs to the higher tier. Thresholds are validated at load to cover
// [0,100], so classification cannot fail for a valid score; out-of-range
// scores are clamped first.
func (c *CompiledRuleSet) ClassifyTier(score int) string {
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	tiers := c.Config.Tiers
	for _, t := range tiers {
		if score >= t.MinScore {
			return t.Tier
		}
	}
	// Unreachable after validation: the lowest threshold is 0.
	return tiers[len(tiers)-1].Tier
}

// requireAttributes checks declared attribute requirements up front so the
// offending attribute is named precisely.
func requireAttributes(profile *domain.AttributeProfile, requires []string, rule string) error {
	for _, name := range requires {
		if !profile.HasAttribute(name) {
			return &domain.MissingAttributeError{Attribute: name, Rule: rule}
		}
	}
	return nil
}

// asAttributeError converts a CEL missing-key failure into a
// MissingAttributeError; other evaluation failures pass through wrapped.
func asAttributeError(err error, rule string) error {
	const marker = "no such key: "
	msg := err.Error()
	if i := strings.Index(msg, marker); i >= 0 {
		return &domain.MissingAttributeError{Attribute: msg[i+len(marker):], Rule: rule}
	}
	return fmt.Errorf("evaluate %s: %w", rule, err)
}

func toFloat(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

// roundHalfUp rounds to the nearest integer, with .5 rounding up.
func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}
