package tests

import (
	"context"
	"testing"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/jobtrack/autopilot/internal/boards"
	"github.com/jobtrack/autopilot/internal/entities"
	"github.com/jobtrack/autopilot/internal/events"
	"github.com/jobtrack/autopilot/internal/repositories"
	"github.com/jobtrack/autopilot/internal/services"
	"github.com/stretchr/testify/assert"
)

func clearDb() {
	dbCtx.DB.Exec("DELETE from automation_rules WHERE TRUE")
	dbCtx.DB.Exec("DELETE from application_records WHERE TRUE")
	dbCtx.DB.Exec("DELETE from automation_attempts WHERE TRUE")
	dbCtx.DB.Exec("DELETE from daily_cap_counters WHERE TRUE")
}

func testOptions() services.OrchestratorOptions {
	return services.OrchestratorOptions{
		TickInterval:     time.Hour,
		MaxWorkers:       2,
		ActionTimeout:    30 * time.Second,
		PacingMinDelay:   time.Millisecond,
		PacingMaxDelay:   2 * time.Millisecond,
		PacingJitter:     0,
		RetryCeiling:     3,
		RetryBackoffBase: time.Millisecond,
	}
}

func addRule(t *testing.T, consent bool, dailyCap int) *entities.AutomationRule {
	return addRuleForUser(t, 42, consent, dailyCap)
}

func addRuleForUser(t *testing.T, userID int64, consent bool, dailyCap int) *entities.AutomationRule {

	rule := entities.NewAutomationRule(userID, entities.BoardPNet, "golang", "Cape Town")
	rule.Consent = consent
	rule.DailyCap = dailyCap

	err := repositories.NewRulesRepository(dbCtx.DB).Add(context.Background(), rule)
	assert.NoError(t, err)
	return rule
}

func newTestOrchestrator(t *testing.T, bus EventBus.Bus, adapter boards.Adapter) *services.Orchestrator {
	return newTestOrchestratorWithOptions(t, bus, adapter, testOptions())
}

func newTestOrchestratorWithOptions(t *testing.T, bus EventBus.Bus, adapter boards.Adapter,
	options services.OrchestratorOptions) *services.Orchestrator {

	orchestrator, err := services.NewOrchestrator(bus,
		repositories.NewRulesRepository(dbCtx.DB),
		repositories.NewApplicationsRepository(dbCtx.DB),
		repositories.NewAttemptsRepository(dbCtx.DB),
		mockRegistry{adapter: adapter},
		mockCredentials{},
		options)
	assert.NoError(t, err)
	return orchestrator
}

func posting(url string) boards.JobPosting {
	return boards.JobPosting{Board: entities.BoardPNet, URL: url, Title: "Backend Engineer", Company: "Acme"}
}

func waitForAttempts(t *testing.T, ruleID int, count int) []entities.AutomationAttempt {

	attempts := repositories.NewAttemptsRepository(dbCtx.DB)

	var recorded []entities.AutomationAttempt
	assert.Eventually(t, func() bool {
		var err error
		recorded, err = attempts.GetForRule(context.Background(), ruleID)
		return err == nil && len(recorded) >= count
	}, 10*time.Second, 10*time.Millisecond)
	return recorded
}

func Test_Orchestration_DailyCapIsEnforced(t *testing.T) {

	defer clearDb()

	rule := addRule(t, true, 2)
	adapter := &scriptedAdapter{
		board:        entities.BoardPNet,
		applyResults: []boards.RawResult{{Outcome: boards.OutcomeSuccess}},
	}

	orchestrator := newTestOrchestrator(t, EventBus.New(), adapter)
	defer orchestrator.Stop()

	assert.NoError(t, orchestrator.TriggerApply(context.Background(), rule.ID, posting("https://www.pnet.co.za/jobs/1"), false))
	waitForAttempts(t, rule.ID, 1)

	assert.NoError(t, orchestrator.TriggerApply(context.Background(), rule.ID, posting("https://www.pnet.co.za/jobs/2"), false))
	waitForAttempts(t, rule.ID, 2)

	err := orchestrator.TriggerApply(context.Background(), rule.ID, posting("https://www.pnet.co.za/jobs/3"), false)
	assert.ErrorIs(t, err, services.ErrCapExceeded)

	status, err := orchestrator.GetRuleStatus(context.Background(), rule.ID)
	assert.NoError(t, err)
	assert.Equal(t, 0, status.CapRemainingToday)
	assert.Equal(t, entities.OutcomeTerminalSuccess, status.LastOutcome)
}

func Test_Orchestration_CaptchaPausesRuleUntilCleared(t *testing.T) {

	defer clearDb()

	rule := addRule(t, true, 5)
	adapter := &scriptedAdapter{
		board:        entities.BoardPNet,
		applyResults: []boards.RawResult{{Outcome: boards.OutcomeCaptchaPresented, Detail: "captcha on apply form"}},
	}

	paused := make(chan events.RulePaused, 1)
	bus := EventBus.New()
	_ = bus.Subscribe(events.RulePausedTopic, func(event events.RulePaused) {
		paused <- event
	})

	orchestrator := newTestOrchestrator(t, bus, adapter)
	defer orchestrator.Stop()

	assert.NoError(t, orchestrator.TriggerApply(context.Background(), rule.ID, posting("https://www.pnet.co.za/jobs/1"), false))

	select {
	case event := <-paused:
		assert.Equal(t, rule.ID, event.Rule.ID)
	case <-time.After(10 * time.Second):
		assert.Fail(t, "timed out waiting for pause event")
	}

	recorded := waitForAttempts(t, rule.ID, 1)
	assert.Equal(t, entities.OutcomeHumanRequired, recorded[0].Outcome)

	// no application record appears for a cycle that never submitted
	applications := repositories.NewApplicationsRepository(dbCtx.DB)
	record, err := applications.GetByUserAndPosting(context.Background(), rule.UserID, "https://www.pnet.co.za/jobs/1")
	assert.NoError(t, err)
	assert.Nil(t, record)

	err = orchestrator.TriggerApply(context.Background(), rule.ID, posting("https://www.pnet.co.za/jobs/2"), false)
	assert.ErrorIs(t, err, services.ErrRulePaused)

	assert.NoError(t, orchestrator.ClearPause(context.Background(), rule.ID))

	rules := repositories.NewRulesRepository(dbCtx.DB)
	reloaded, err := rules.GetByID(context.Background(), rule.ID)
	assert.NoError(t, err)
	assert.False(t, reloaded.Paused)
}

func Test_Orchestration_TransientFailuresRetryUpToCeiling(t *testing.T) {

	defer clearDb()

	rule := addRule(t, true, 5)
	adapter := &scriptedAdapter{
		board:        entities.BoardPNet,
		applyResults: []boards.RawResult{{Outcome: boards.OutcomeNetworkError, Detail: "connection reset"}},
	}

	orchestrator := newTestOrchestrator(t, EventBus.New(), adapter)
	defer orchestrator.Stop()

	assert.NoError(t, orchestrator.TriggerApply(context.Background(), rule.ID, posting("https://www.pnet.co.za/jobs/1"), false))

	recorded := waitForAttempts(t, rule.ID, 1)
	assert.Len(t, recorded, 1)
	assert.Equal(t, entities.OutcomeTransientRetryable, recorded[0].Outcome)
	assert.Equal(t, 2, recorded[0].RetryCount)

	adapter.mu.Lock()
	assert.Equal(t, 3, adapter.applyCalls, "ceiling of 3 means exactly 3 calls, never a 4th")
	adapter.mu.Unlock()

	// all in-cycle retries shared one cap slot
	attempts := repositories.NewAttemptsRepository(dbCtx.DB)
	count, err := attempts.GetCapCount(context.Background(), rule.ID, entities.DayKey(time.Now()))
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}

func Test_Orchestration_ScheduledCycleRetriesSamePostingOnTransientFailure(t *testing.T) {

	defer clearDb()

	rule := addRule(t, true, 5)
	adapter := &scriptedAdapter{
		board:        entities.BoardPNet,
		applyResults: []boards.RawResult{{Outcome: boards.OutcomeNetworkError, Detail: "connection reset"}},
		postings:     []boards.JobPosting{posting("https://www.pnet.co.za/jobs/1")},
	}

	orchestrator := newTestOrchestrator(t, EventBus.New(), adapter)

	tickComplete := make(chan struct{})
	orchestrator.WithTickCompleteCallback(func() {
		tickComplete <- struct{}{}
	})

	go orchestrator.Run()
	defer orchestrator.Stop()

	select {
	case <-tickComplete:
	case <-time.After(10 * time.Second):
		assert.Fail(t, "timed out waiting for tick")
	}

	// the posting picked by the search stays the cycle's target across
	// retries; a failed apply must never be reported as a successful
	// empty search
	recorded := waitForAttempts(t, rule.ID, 1)
	assert.Equal(t, entities.OutcomeTransientRetryable, recorded[0].Outcome)
	assert.Equal(t, 2, recorded[0].RetryCount)

	adapter.mu.Lock()
	assert.Equal(t, 3, adapter.applyCalls)
	adapter.mu.Unlock()

	applications := repositories.NewApplicationsRepository(dbCtx.DB)
	record, err := applications.GetByUserAndPosting(context.Background(), rule.UserID, "https://www.pnet.co.za/jobs/1")
	assert.NoError(t, err)
	assert.Nil(t, record)
}

func Test_Orchestration_DuplicateApplyIsRejectedWithoutBoardAction(t *testing.T) {

	defer clearDb()

	rule := addRule(t, true, 5)
	adapter := &scriptedAdapter{
		board:        entities.BoardPNet,
		applyResults: []boards.RawResult{{Outcome: boards.OutcomeSuccess}},
	}

	orchestrator := newTestOrchestrator(t, EventBus.New(), adapter)
	defer orchestrator.Stop()

	assert.NoError(t, orchestrator.TriggerApply(context.Background(), rule.ID, posting("https://www.pnet.co.za/jobs/1"), false))
	waitForAttempts(t, rule.ID, 1)

	adapter.mu.Lock()
	callsAfterFirst := adapter.applyCalls
	adapter.mu.Unlock()

	err := orchestrator.TriggerApply(context.Background(), rule.ID, posting("https://www.pnet.co.za/jobs/1"), false)
	assert.ErrorIs(t, err, services.ErrAlreadyApplied)

	adapter.mu.Lock()
	assert.Equal(t, callsAfterFirst, adapter.applyCalls)
	adapter.mu.Unlock()
}

func Test_Orchestration_DryRunConsumesCapButSubmitsNothing(t *testing.T) {

	defer clearDb()

	rule := addRule(t, true, 5)
	adapter := &scriptedAdapter{
		board:        entities.BoardPNet,
		applyResults: []boards.RawResult{{Outcome: boards.OutcomeSuccess}},
	}

	orchestrator := newTestOrchestrator(t, EventBus.New(), adapter)
	defer orchestrator.Stop()

	assert.NoError(t, orchestrator.TriggerApply(context.Background(), rule.ID, posting("https://www.pnet.co.za/jobs/1"), true))

	recorded := waitForAttempts(t, rule.ID, 1)
	assert.True(t, recorded[0].DryRun)
	assert.Equal(t, entities.OutcomeTerminalSuccess, recorded[0].Outcome)

	adapter.mu.Lock()
	assert.Zero(t, adapter.applyCalls, "dry run must never reach the board")
	adapter.mu.Unlock()

	applications := repositories.NewApplicationsRepository(dbCtx.DB)
	record, err := applications.GetByUserAndPosting(context.Background(), rule.UserID, "https://www.pnet.co.za/jobs/1")
	assert.NoError(t, err)
	assert.Nil(t, record)

	attempts := repositories.NewAttemptsRepository(dbCtx.DB)
	count, err := attempts.GetCapCount(context.Background(), rule.ID, entities.DayKey(time.Now()))
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}

func Test_Orchestration_WithoutConsentNothingRuns(t *testing.T) {

	defer clearDb()

	rule := addRule(t, false, 5)
	adapter := &scriptedAdapter{
		board:        entities.BoardPNet,
		applyResults: []boards.RawResult{{Outcome: boards.OutcomeSuccess}},
		postings:     []boards.JobPosting{posting("https://www.pnet.co.za/jobs/1")},
	}

	orchestrator := newTestOrchestrator(t, EventBus.New(), adapter)

	err := orchestrator.TriggerApply(context.Background(), rule.ID, posting("https://www.pnet.co.za/jobs/1"), false)
	assert.ErrorIs(t, err, services.ErrConsentDenied)

	tickComplete := make(chan struct{})
	orchestrator.WithTickCompleteCallback(func() {
		tickComplete <- struct{}{}
	})

	go orchestrator.Run()
	defer orchestrator.Stop()

	select {
	case <-tickComplete:
	case <-time.After(10 * time.Second):
		assert.Fail(t, "timed out waiting for tick")
	}

	attempts, err := repositories.NewAttemptsRepository(dbCtx.DB).GetForRule(context.Background(), rule.ID)
	assert.NoError(t, err)
	assert.Empty(t, attempts)

	adapter.mu.Lock()
	assert.Zero(t, adapter.loginCalls)
	adapter.mu.Unlock()
}

func Test_Orchestration_ScheduledCycleSearchesAndApplies(t *testing.T) {

	defer clearDb()

	rule := addRule(t, true, 5)
	adapter := &scriptedAdapter{
		board:        entities.BoardPNet,
		applyResults: []boards.RawResult{{Outcome: boards.OutcomeSuccess, Detail: "application submitted"}},
		postings:     []boards.JobPosting{posting("https://www.pnet.co.za/jobs/1")},
	}

	applied := make(chan events.ApplicationApplied, 1)
	bus := EventBus.New()
	_ = bus.Subscribe(events.ApplicationAppliedTopic, func(event events.ApplicationApplied) {
		applied <- event
	})

	orchestrator := newTestOrchestrator(t, bus, adapter)

	tickComplete := make(chan struct{})
	orchestrator.WithTickCompleteCallback(func() {
		tickComplete <- struct{}{}
	})

	go orchestrator.Run()
	defer orchestrator.Stop()

	select {
	case <-tickComplete:
	case <-time.After(10 * time.Second):
		assert.Fail(t, "timed out waiting for tick")
	}

	select {
	case event := <-applied:
		assert.Equal(t, "https://www.pnet.co.za/jobs/1", event.Application.PostingURL)
	case <-time.After(time.Second):
		assert.Fail(t, "no applied event published")
	}

	recorded := waitForAttempts(t, rule.ID, 1)
	assert.Equal(t, entities.OutcomeTerminalSuccess, recorded[0].Outcome)

	applications := repositories.NewApplicationsRepository(dbCtx.DB)
	record, err := applications.GetByUserAndPosting(context.Background(), rule.UserID, "https://www.pnet.co.za/jobs/1")
	assert.NoError(t, err)
	assert.NotNil(t, record)
	assert.Equal(t, entities.StatusApplied, record.Status)
	assert.NotNil(t, record.AppliedAt)

	reloaded, err := repositories.NewRulesRepository(dbCtx.DB).GetByID(context.Background(), rule.ID)
	assert.NoError(t, err)
	assert.False(t, reloaded.LastActionAt.IsZero())
}

func Test_Orchestration_TickDispatchesEveryDueRule(t *testing.T) {

	defer clearDb()

	// more rules than one dispatch page, so the tick has to walk pages
	var rules []*entities.AutomationRule
	for i := 0; i < 25; i++ {
		rules = append(rules, addRuleForUser(t, int64(100+i), true, 5))
	}

	adapter := &scriptedAdapter{
		board:        entities.BoardPNet,
		applyResults: []boards.RawResult{{Outcome: boards.OutcomeSuccess}},
		postings:     []boards.JobPosting{posting("https://www.pnet.co.za/jobs/1")},
	}

	orchestrator := newTestOrchestrator(t, EventBus.New(), adapter)

	tickComplete := make(chan struct{})
	orchestrator.WithTickCompleteCallback(func() {
		tickComplete <- struct{}{}
	})

	go orchestrator.Run()
	defer orchestrator.Stop()

	select {
	case <-tickComplete:
	case <-time.After(30 * time.Second):
		assert.Fail(t, "timed out waiting for tick")
	}

	attempts := repositories.NewAttemptsRepository(dbCtx.DB)
	for _, rule := range rules {
		recorded, err := attempts.GetForRule(context.Background(), rule.ID)
		assert.NoError(t, err)
		assert.Len(t, recorded, 1, "rule %v must run exactly once per tick", rule.ID)
	}
}

func Test_Orchestration_CancelledWhileQueuedStillRecordsAttempt(t *testing.T) {

	defer clearDb()

	first := addRuleForUser(t, 42, true, 5)
	second := addRuleForUser(t, 43, true, 5)

	release := make(chan struct{})
	adapter := &scriptedAdapter{
		board:        entities.BoardPNet,
		applyResults: []boards.RawResult{{Outcome: boards.OutcomeSuccess}},
		applyBlock:   release,
	}

	options := testOptions()
	options.MaxWorkers = 1
	orchestrator := newTestOrchestratorWithOptions(t, EventBus.New(), adapter, options)

	assert.NoError(t, orchestrator.TriggerApply(context.Background(), first.ID, posting("https://www.pnet.co.za/jobs/1"), false))

	assert.Eventually(t, func() bool {
		adapter.mu.Lock()
		defer adapter.mu.Unlock()
		return adapter.applyCalls == 1
	}, 5*time.Second, 5*time.Millisecond, "first cycle should occupy the only worker")

	assert.NoError(t, orchestrator.TriggerApply(context.Background(), second.ID, posting("https://www.pnet.co.za/jobs/2"), false))
	time.Sleep(100 * time.Millisecond)

	go func() {
		time.Sleep(300 * time.Millisecond)
		close(release)
	}()
	orchestrator.Stop()

	// the queued cycle consumed a cap slot, so its cancellation must
	// still show up in the audit trail
	recorded := waitForAttempts(t, second.ID, 1)
	assert.Equal(t, entities.OutcomeTransientRetryable, recorded[0].Outcome)

	attempts := repositories.NewAttemptsRepository(dbCtx.DB)
	count, err := attempts.GetCapCount(context.Background(), second.ID, entities.DayKey(time.Now()))
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}
