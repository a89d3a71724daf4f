package repositories

import (
	"context"
	"time"

	"github.com/jobtrack/autopilot/internal/entities"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type Rules struct {
	db *gorm.DB
}

func NewRulesRepository(db *gorm.DB) *Rules {
	return &Rules{db: db}
}

func (repo *Rules) Add(ctx context.Context, rule *entities.AutomationRule) error {
	return repo.db.WithContext(ctx).Create(rule).Error
}

func (repo *Rules) GetByID(ctx context.Context, id int) (*entities.AutomationRule, error) {
	var rule entities.AutomationRule
	if err := repo.db.WithContext(ctx).First(&rule, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rule, nil
}

func (repo *Rules) GetByUser(ctx context.Context, userID int64) ([]entities.AutomationRule, error) {
	var rules []entities.AutomationRule
	if err := repo.db.WithContext(ctx).Find(&rules, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

// GetDispatchable pages through rules eligible for automation, oldest action
// first so no rule starves behind busier ones.
func (repo *Rules) GetDispatchable(ctx context.Context, limit, offset int) ([]entities.AutomationRule, error) {
	var rules []entities.AutomationRule
	if err := repo.db.WithContext(ctx).
		Where("consent = ? AND enabled = ? AND paused = ?", true, true, false).
		Order("last_action_at asc").
		Limit(limit).
		Offset(offset).
		Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (repo *Rules) Update(ctx context.Context, rule entities.AutomationRule) error {
	return repo.db.WithContext(ctx).Model(&entities.AutomationRule{}).Where("id = ?", rule.ID).Updates(rule).Error
}

func (repo *Rules) UpdateLastAction(ctx context.Context, id int, at time.Time) error {
	return repo.db.WithContext(ctx).Model(&entities.AutomationRule{}).Where("id = ?", id).
		Updates(map[string]any{
			"last_action_at": at.UTC(),
		}).Error
}

func (repo *Rules) SetPaused(ctx context.Context, id int, reason string) error {
	now := time.Now().UTC()
	return repo.db.WithContext(ctx).Model(&entities.AutomationRule{}).Where("id = ?", id).
		Updates(map[string]any{
			"paused":       true,
			"paused_at":    &now,
			"pause_reason": reason,
		}).Error
}

func (repo *Rules) ClearPause(ctx context.Context, id int) error {
	return repo.db.WithContext(ctx).Model(&entities.AutomationRule{}).Where("id = ?", id).
		Updates(map[string]any{
			"paused":       false,
			"paused_at":    nil,
			"pause_reason": "",
		}).Error
}

func (repo *Rules) Remove(ctx context.Context, id int) error {
	return repo.db.WithContext(ctx).Delete(&entities.AutomationRule{ID: id}).Error
}
