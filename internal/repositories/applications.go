package repositories

import (
	"context"

	"github.com/jobtrack/autopilot/internal/entities"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type Applications struct {
	db *gorm.DB
}

func NewApplicationsRepository(db *gorm.DB) *Applications {
	return &Applications{db: db}
}

func (repo *Applications) Create(ctx context.Context, record *entities.ApplicationRecord) error {
	return repo.db.WithContext(ctx).Create(record).Error
}

func (repo *Applications) GetByID(ctx context.Context, id uint) (*entities.ApplicationRecord, error) {
	var record entities.ApplicationRecord
	if err := repo.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// GetByUserAndPosting finds the user's application for a posting URL, nil if
// none exists. This is what keeps automated applies idempotent.
func (repo *Applications) GetByUserAndPosting(ctx context.Context, userID int64, postingURL string) (*entities.ApplicationRecord, error) {
	var record entities.ApplicationRecord
	err := repo.db.WithContext(ctx).
		Where("user_id = ? AND posting_url = ?", userID, postingURL).
		First(&record).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (repo *Applications) GetByUser(ctx context.Context, userID int64) ([]entities.ApplicationRecord, error) {
	var records []entities.ApplicationRecord
	if err := repo.db.WithContext(ctx).Find(&records, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (repo *Applications) Save(ctx context.Context, record *entities.ApplicationRecord) error {
	return repo.db.WithContext(ctx).Save(record).Error
}
