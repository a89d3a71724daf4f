package services

import (
	"context"

	"github.com/jobtrack/autopilot/internal/entities"
)

type ruleReader interface {
	GetByID(ctx context.Context, id int) (*entities.AutomationRule, error)
}

// ConsentGuard validates that automation may touch a rule at all. It holds
// no state and must be re-run at the start of every cycle, because consent
// can be revoked between cycles.
type ConsentGuard struct {
	rules ruleReader
}

func NewConsentGuard(rules ruleReader) *ConsentGuard {
	return &ConsentGuard{rules: rules}
}

func (g *ConsentGuard) Check(ctx context.Context, ruleID int) (*entities.AutomationRule, error) {

	rule, err := g.rules.GetByID(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, ErrRuleNotFound
	}

	if !rule.Consent {
		return nil, ErrConsentDenied
	}
	if !rule.Enabled {
		return nil, ErrRuleDisabled
	}
	if rule.Paused {
		return nil, ErrRulePaused
	}

	return rule, nil
}
