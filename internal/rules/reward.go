package rules

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/cel-go/common/types"
	"github.com/open-sustainability/heron/internal/domain"
)

// ComputeReward evaluates the rule set's bonus table against a profile and
// grants one-time badges through the ledger.
//
// Points accrue on every qualifying evaluation; only the badge is one-time.
// That asymmetry is intentional: recurring reward, one-time recognition.
//
// The ledger write is the sole side effect and the sole suspension point.
// If a write fails after the ledger's own retries, the points are still
// returned, NewlyEarnedBadges is reported empty, and LedgerDegraded is set
// so callers can distinguish "no badge earned" from "badge status unknown".
func (c *CompiledRuleSet) ComputeReward(ctx context.Context, profile *domain.AttributeProfile, identity string, ledger domain.BadgeLedger) (*domain.RewardResult, error) {
	if profile == nil {
		return nil, fmt.Errorf("profile is required")
	}
	if identity == "" {
		return nil, fmt.Errorf("identity is required")
	}

	activation := profile.Activation()

	result := &domain.RewardResult{
		Identity:          identity,
		ProfileID:         profile.ID,
		RuleSetVersion:    c.Config.Version,
		Points:            c.Config.BaseValue,
		NewlyEarnedBadges: []string{},
		Messages:          []string{},
	}

	// Evaluate the bonus table in declaration order; badge grants happen
	// after, so a bad profile fails before any ledger write.
	var triggeredBadges []string
	for _, b := range c.bonuses {
		if err := requireAttributes(profile, b.cfg.Requires, fmt.Sprintf("bonus rule %q", b.cfg.ID)); err != nil {
			return nil, err
		}

		out, _, err := b.program.Eval(activation)
		if err != nil {
			return nil, asAttributeError(err, fmt.Sprintf("bonus rule %q", b.cfg.ID))
		}
		if out != types.True {
			continue
		}

		result.Points += b.cfg.Points
		result.Messages = append(result.Messages, b.cfg.Message)
		if b.cfg.BadgeID != "" {
			triggeredBadges = append(triggeredBadges, b.cfg.BadgeID)
		}
	}

	for _, badgeID := range triggeredBadges {
		granted, err := ledger.EarnIfAbsent(ctx, identity, badgeID)
		if err != nil {
			slog.Warn("badge ledger degraded",
				"identity", identity,
				"badge_id", badgeID,
				"error", err,
			)
			result.LedgerDegraded = true
			result.NewlyEarnedBadges = []string{}
			break
		}
		if granted {
			result.NewlyEarnedBadges = append(result.NewlyEarnedBadges, badgeID)
		}
	}

	return result, nil
}
