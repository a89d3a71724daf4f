package entities

import "time"

// BoardCredential stores a user's login for one job board. One row per
// (user, board); the password is whatever the deployment's secret layer put
// here, this package does not encrypt.
type BoardCredential struct {
	UserID    int64 `gorm:"primaryKey"`
	Board     Board `gorm:"primaryKey"`
	Email     string
	Password  string
	CreatedAt time.Time
	UpdatedAt time.Time
}
