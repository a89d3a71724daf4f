package tests

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jobtrack/autopilot/internal/entities"
	"github.com/jobtrack/autopilot/internal/repositories"
	"github.com/stretchr/testify/assert"
)

func Test_CapReservation_ConcurrentCallersNeverExceedCap(t *testing.T) {

	defer clearDb()

	rule := addRule(t, true, 5)
	attempts := repositories.NewAttemptsRepository(dbCtx.DB)
	day := entities.DayKey(time.Now())

	var granted int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reserved, err := attempts.ReserveCapSlot(context.Background(), rule.ID, day, 5)
			assert.NoError(t, err)
			if reserved {
				atomic.AddInt64(&granted, 1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 5, granted)

	count, err := attempts.GetCapCount(context.Background(), rule.ID, day)
	assert.NoError(t, err)
	assert.Equal(t, 5, count)
}
