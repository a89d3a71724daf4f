package services

import (
	"context"

	"github.com/jobtrack/autopilot/internal/entities"
)

type capRepository interface {
	ReserveCapSlot(ctx context.Context, ruleID int, day string, cap int) (bool, error)
	GetCapCount(ctx context.Context, ruleID int, day string) (int, error)
}

// DailyCapTracker enforces the per-rule daily apply cap. A granted slot is
// consumed by exactly one cycle and is never refunded, whatever the cycle's
// outcome; total board interaction volume stays bounded either way.
type DailyCapTracker struct {
	repo capRepository
}

func NewDailyCapTracker(repo capRepository) *DailyCapTracker {
	return &DailyCapTracker{repo: repo}
}

func (t *DailyCapTracker) TryReserveSlot(ctx context.Context, rule *entities.AutomationRule, day string) error {

	reserved, err := t.repo.ReserveCapSlot(ctx, rule.ID, day, effectiveCap(rule))
	if err != nil {
		return err
	}
	if !reserved {
		return ErrCapExceeded
	}
	return nil
}

func (t *DailyCapTracker) RemainingToday(ctx context.Context, rule *entities.AutomationRule, day string) (int, error) {

	count, err := t.repo.GetCapCount(ctx, rule.ID, day)
	if err != nil {
		return 0, err
	}

	remaining := effectiveCap(rule) - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// effectiveCap is the single source of the unset-cap default, so reservation
// and reporting can never disagree on a rule's limit.
func effectiveCap(rule *entities.AutomationRule) int {
	if rule.DailyCap <= 0 {
		return entities.DefaultDailyCap
	}
	return rule.DailyCap
}
