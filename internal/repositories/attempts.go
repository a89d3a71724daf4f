package repositories

import (
	"context"
	"time"

	"github.com/jobtrack/autopilot/internal/entities"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type Attempts struct {
	db *gorm.DB
}

func NewAttemptsRepository(db *gorm.DB) *Attempts {
	return &Attempts{db: db}
}

// ReserveCapSlot atomically takes one slot from the rule's counter for the
// given day. Returns false when the counter already sits at the cap. The
// guarded UPDATE is what makes concurrent reservations linearizable per
// (rule, day) key. Slots are never refunded.
func (repo *Attempts) ReserveCapSlot(ctx context.Context, ruleID int, day string, cap int) (bool, error) {

	reserved := false
	err := repo.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {

		now := time.Now().UTC()
		if err := tx.Exec(
			"INSERT INTO daily_cap_counters (rule_id, day, count, created_at) VALUES (?, ?, 0, ?) "+
				"ON CONFLICT (rule_id, day) DO NOTHING",
			ruleID, day, now).Error; err != nil {
			return err
		}

		res := tx.Exec(
			"UPDATE daily_cap_counters SET count = count + 1, updated_at = ? "+
				"WHERE rule_id = ? AND day = ? AND count < ?",
			now, ruleID, day, cap)
		if res.Error != nil {
			return res.Error
		}

		reserved = res.RowsAffected == 1
		return nil
	})

	return reserved, err
}

func (repo *Attempts) GetCapCount(ctx context.Context, ruleID int, day string) (int, error) {
	var counter entities.DailyCapCounter
	err := repo.db.WithContext(ctx).
		Where("rule_id = ? AND day = ?", ruleID, day).
		First(&counter).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return counter.Count, nil
}

// RecordCycle persists the outcome of one orchestration cycle in a single
// transaction: the attempt record, the application status change (if any),
// and the rule's last action time. A crash can never record an action
// without its audit row.
func (repo *Attempts) RecordCycle(ctx context.Context, attempt *entities.AutomationAttempt,
	application *entities.ApplicationRecord, actionAt time.Time) error {

	return repo.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {

		if application != nil {
			if err := tx.Save(application).Error; err != nil {
				return err
			}
			attempt.ApplicationID = &application.ID
		}

		if err := tx.Create(attempt).Error; err != nil {
			return err
		}

		return tx.Model(&entities.AutomationRule{}).Where("id = ?", attempt.RuleID).
			Updates(map[string]any{
				"last_action_at": actionAt.UTC(),
			}).Error
	})
}

func (repo *Attempts) GetLatestForRule(ctx context.Context, ruleID int) (*entities.AutomationAttempt, error) {
	var attempt entities.AutomationAttempt
	err := repo.db.WithContext(ctx).
		Where("rule_id = ?", ruleID).
		Order("created_at desc").
		First(&attempt).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &attempt, nil
}

func (repo *Attempts) GetForRule(ctx context.Context, ruleID int) ([]entities.AutomationAttempt, error) {
	var attempts []entities.AutomationAttempt
	if err := repo.db.WithContext(ctx).
		Order("created_at desc").
		Find(&attempts, "rule_id = ?", ruleID).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}

func (repo *Attempts) RemoveOldAttempts(ctx context.Context, expirationTime time.Time) (int64, error) {
	res := repo.db.WithContext(ctx).Delete(&entities.AutomationAttempt{}, "created_at < ?", expirationTime)
	return res.RowsAffected, res.Error
}
