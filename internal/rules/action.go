package rules

import (
	"github.com/open-sustainability/heron/internal/domain"
)

// SelectAction maps a classification to the single recommended action.
// Deterministic: among the action rules matching the classification the
// numerically highest priority wins; ties on priority go to the first rule
// in declaration order.
//
// Returns NoApplicableActionError when no rule matches. Rule set validation
// requires total coverage of the declared vocabulary, so this indicates a
// rule set defect, not bad input.
func (c *CompiledRuleSet) SelectAction(classification string) (string, error) {
	found := false
	best := 0
	var action string

	for _, a := range c.Config.Actions {
		if a.Classification != classification {
			continue
		}
		// Strict > keeps the first-declared rule on priority ties.
		if !found || a.Priority > best {
			found = true
			best = a.Priority
			action = a.Action
		}
	}

	if !found {
		return "", &domain.NoApplicableActionError{
			Classification: classification,
			RuleSetVersion: c.Config.Version,
		}
	}
	return action, nil
}
