package repositories

import (
	"context"

	"github.com/jobtrack/autopilot/internal/boards"
	"github.com/jobtrack/autopilot/internal/entities"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Credentials struct {
	db *gorm.DB
}

func NewCredentialsRepository(db *gorm.DB) *Credentials {
	return &Credentials{db: db}
}

// Get satisfies the credential source the board adapters are fed from.
func (repo *Credentials) Get(ctx context.Context, userID int64, board entities.Board) (boards.Credentials, error) {
	var credential entities.BoardCredential
	if err := repo.db.WithContext(ctx).
		First(&credential, "user_id = ? AND board = ?", userID, board).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return boards.Credentials{}, errors.Errorf("no credentials stored for board %v", board)
		}
		return boards.Credentials{}, err
	}
	return boards.Credentials{Email: credential.Email, Password: credential.Password}, nil
}

func (repo *Credentials) Set(ctx context.Context, credential entities.BoardCredential) error {
	return repo.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "board"}},
			DoUpdates: clause.AssignmentColumns([]string{"email", "password", "updated_at"}),
		}).
		Create(&credential).Error
}

func (repo *Credentials) Remove(ctx context.Context, userID int64, board entities.Board) error {
	return repo.db.WithContext(ctx).
		Delete(&entities.BoardCredential{UserID: userID, Board: board}).Error
}
