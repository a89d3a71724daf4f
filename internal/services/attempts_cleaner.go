package services

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

type AttemptCleanupRepository interface {
	RemoveOldAttempts(ctx context.Context, expirationTime time.Time) (int64, error)
}

// AttemptsCleaner purges audit records past the retention window once a day.
type AttemptsCleaner struct {
	attempts        AttemptCleanupRepository
	cron            *cron.Cron
	retentionInDays int
}

func NewAttemptsCleaner(attempts AttemptCleanupRepository, retentionInDays int) (*AttemptsCleaner, error) {

	if retentionInDays <= 0 {
		return nil, errors.New("retention in days must be greater than zero")
	}

	ac := &AttemptsCleaner{
		attempts:        attempts,
		cron:            cron.New(),
		retentionInDays: retentionInDays,
	}

	_, err := ac.cron.AddFunc("0 0 * * *", ac.cleanOldAttempts)
	if err != nil {
		return nil, err
	}

	ac.cron.Start()
	log.Infof("attempts cleaner started, retention in days: %d", ac.retentionInDays)
	return ac, nil
}

func (ac *AttemptsCleaner) Stop() {
	ac.cron.Stop()
}

func (ac *AttemptsCleaner) cleanOldAttempts() {
	expirationTime := time.Now().Add(-time.Duration(ac.retentionInDays) * 24 * time.Hour)
	rowsAffected, err := ac.attempts.RemoveOldAttempts(context.Background(), expirationTime)
	if err != nil {
		log.Errorf("Failed to clean old attempts: %v", err)
	} else {
		log.Infof("Old attempts was cleaned at %v, affected rows: %v", time.Now(), rowsAffected)
	}
}
