package repositories

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/jobtrack/autopilot/internal/entities"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type DbContext struct {
	DB *gorm.DB
}

func NewDbContext(connectionString string, logQueries bool) (*DbContext, error) {

	logMode := logger.Error
	if logQueries {
		logMode = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(connectionString), &gorm.Config{
		Logger: logger.Default.LogMode(logMode),
	})
	if err != nil {
		return nil, err
	}

	return &DbContext{DB: db}, nil
}

func (c *DbContext) Migrate() error {
	err := c.DB.AutoMigrate(entities.AutomationRule{})
	if err != nil {
		return fmt.Errorf("failed to migrate AutomationRule entity: %w", err)
	}

	err = c.DB.AutoMigrate(entities.ApplicationRecord{})
	if err != nil {
		return fmt.Errorf("failed to migrate ApplicationRecord entity: %w", err)
	}

	err = c.DB.AutoMigrate(entities.AutomationAttempt{})
	if err != nil {
		return fmt.Errorf("failed to migrate AutomationAttempt entity: %w", err)
	}

	err = c.DB.AutoMigrate(entities.DailyCapCounter{})
	if err != nil {
		return fmt.Errorf("failed to migrate DailyCapCounter entity: %w", err)
	}

	err = c.DB.AutoMigrate(entities.BoardCredential{})
	if err != nil {
		return fmt.Errorf("failed to migrate BoardCredential entity: %w", err)
	}

	if err = c.DB.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_user_posting ON application_records (user_id, posting_url); " +
		"CREATE INDEX IF NOT EXISTS idx_attempt_rule_time ON automation_attempts (rule_id, created_at);").
		Error; err != nil {
		return fmt.Errorf("failed to create application indexes: %w", err)
	}

	return nil
}

func (c *DbContext) Close() error {
	db, err := c.DB.DB()
	if err != nil {
		return err
	}

	return db.Close()
}
