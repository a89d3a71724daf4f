package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/jobtrack/autopilot/internal/boards"
	"github.com/jobtrack/autopilot/internal/entities"
	"github.com/jobtrack/autopilot/internal/events"
	"github.com/jobtrack/autopilot/internal/logger"
	"github.com/jobtrack/autopilot/internal/metrics"
	gocache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

type rulesRepository interface {
	GetByID(ctx context.Context, id int) (*entities.AutomationRule, error)
	GetDispatchable(ctx context.Context, limit, offset int) ([]entities.AutomationRule, error)
	SetPaused(ctx context.Context, id int, reason string) error
	ClearPause(ctx context.Context, id int) error
}

type applicationRepository interface {
	GetByUserAndPosting(ctx context.Context, userID int64, postingURL string) (*entities.ApplicationRecord, error)
}

type attemptRepository interface {
	ReserveCapSlot(ctx context.Context, ruleID int, day string, cap int) (bool, error)
	GetCapCount(ctx context.Context, ruleID int, day string) (int, error)
	RecordCycle(ctx context.Context, attempt *entities.AutomationAttempt,
		application *entities.ApplicationRecord, actionAt time.Time) error
	GetLatestForRule(ctx context.Context, ruleID int) (*entities.AutomationAttempt, error)
}

type adapterRegistry interface {
	Get(board entities.Board) (boards.Adapter, error)
}

// RuleStatus is what the dashboard reads for one rule.
type RuleStatus struct {
	LastActionAt      time.Time
	CapRemainingToday int
	Paused            bool
	LastOutcome       entities.OutcomeKind
}

type OrchestratorOptions struct {
	TickInterval     time.Duration
	MaxWorkers       int
	ActionTimeout    time.Duration
	PacingMinDelay   time.Duration
	PacingMaxDelay   time.Duration
	PacingJitter     float64
	RetryCeiling     int
	RetryBackoffBase time.Duration
}

// Orchestrator is the scheduling loop that decides when an automated action
// may run, dispatches it to a browser worker, and reconciles the result with
// application state. It is the only component that writes to more than one
// record; everything it calls is a pure decision function or a single gate.
type Orchestrator struct {
	bus          EventBus.Bus
	rules        rulesRepository
	applications applicationRepository
	attempts     attemptRepository
	registry     adapterRegistry
	credentials  boards.CredentialSource

	guard  *ConsentGuard
	caps   *DailyCapTracker
	pacing *PacingController
	retry  *RetryPolicy
	states ApplicationStateMachine

	recentPostings *gocache.Cache
	tickInterval   time.Duration
	actionTimeout  time.Duration
	searchLimit    int

	workers   chan struct{}
	ruleLocks sync.Map
	cancels   sync.Map

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	tickCompleteCallback func()
}

func NewOrchestrator(bus EventBus.Bus, rules rulesRepository, applications applicationRepository,
	attempts attemptRepository, registry adapterRegistry, credentials boards.CredentialSource,
	opts OrchestratorOptions) (*Orchestrator, error) {

	if bus == nil {
		return nil, errors.New("bus is nil")
	}

	pacing, err := NewPacingController(opts.PacingMinDelay, opts.PacingMaxDelay, opts.PacingJitter)
	if err != nil {
		return nil, err
	}

	retry, err := NewRetryPolicy(opts.RetryCeiling, opts.RetryBackoffBase)
	if err != nil {
		return nil, err
	}

	if opts.MaxWorkers < 1 {
		return nil, errors.New("worker pool size must be at least 1")
	}
	if opts.TickInterval <= 0 || opts.ActionTimeout <= 0 {
		return nil, errors.New("tick interval and action timeout must be positive")
	}

	ctx, stop := context.WithCancel(context.Background())

	o := &Orchestrator{
		bus:            bus,
		rules:          rules,
		applications:   applications,
		attempts:       attempts,
		registry:       registry,
		credentials:    credentials,
		guard:          NewConsentGuard(rules),
		caps:           NewDailyCapTracker(attempts),
		pacing:         pacing,
		retry:          retry,
		recentPostings: gocache.New(6*time.Hour, 12*time.Hour),
		tickInterval:   opts.TickInterval,
		actionTimeout:  opts.ActionTimeout,
		searchLimit:    50,
		workers:        make(chan struct{}, opts.MaxWorkers),
		ctx:            ctx,
		stop:           stop,
	}

	if err = bus.Subscribe(events.ConsentRevokedTopic, o.onConsentRevoked); err != nil {
		stop()
		return nil, err
	}

	return o, nil
}

// WithTickCompleteCallback registers a callback fired after every scheduling
// tick. Used by tests to synchronize on tick boundaries.
func (o *Orchestrator) WithTickCompleteCallback(callback func()) {
	o.tickCompleteCallback = callback
}

// Run drives scheduling ticks until Stop is called.
func (o *Orchestrator) Run() {

	log.Infof("orchestrator started, tick interval %v", o.tickInterval)

	ticker := time.NewTicker(o.tickInterval)
	defer ticker.Stop()

	for {
		start := time.Now()
		o.runTick()
		log.Debugf("scheduling tick ended after %v", time.Since(start))

		if o.tickCompleteCallback != nil {
			o.tickCompleteCallback()
		}

		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop is the global kill switch: cancels every in-flight action and waits
// for them to record their attempts and release their sessions.
func (o *Orchestrator) Stop() {
	o.stop()
	o.wg.Wait()
}

func (o *Orchestrator) runTick() {

	const pageSize = 20
	now := time.Now()

	// collect the full page walk before dispatching anything: completed
	// cycles bump last_action_at and would reshuffle the ordering under
	// the offset, skipping rules within the tick
	var rules []entities.AutomationRule
	for pageNum := 0; ; pageNum++ {
		batch, err := o.rules.GetDispatchable(o.ctx, pageSize, pageNum*pageSize)
		if err != nil {
			log.WithField(logger.ErrorTypeField, logger.ErrorTypeDb).Errorf("failed to get dispatchable rules: %v", err)
			return
		}
		rules = append(rules, batch...)
		if len(batch) < pageSize {
			break
		}
	}

	due := lo.Filter(rules, func(rule entities.AutomationRule, _ int) bool {
		return o.pacing.Ready(&rule, now)
	})

	dispatched := 0
	var wg sync.WaitGroup
	for _, rule := range due {
		if o.dispatchCycle(&wg, rule) {
			dispatched++
		}
	}
	wg.Wait()

	if dispatched > 0 {
		log.Infof("dispatched %v automation cycles", dispatched)
	}
}

func (o *Orchestrator) dispatchCycle(wg *sync.WaitGroup, rule entities.AutomationRule) bool {

	mutex := o.lockFor(rule.ID)
	if !mutex.TryLock() {
		// an action for this rule is already in flight
		return false
	}

	day := entities.DayKey(time.Now())
	if err := o.caps.TryReserveSlot(o.ctx, &rule, day); err != nil {
		mutex.Unlock()
		if errors.Is(err, ErrCapExceeded) {
			metrics.CapExhaustedCounter.Inc()
			log.Debugf("daily cap exhausted for rule %v", rule.ID)
		} else {
			log.WithField(logger.ErrorTypeField, logger.ErrorTypeDb).Errorf("failed to reserve cap slot: %v", err)
		}
		return false
	}

	wg.Add(1)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer wg.Done()
		defer mutex.Unlock()
		o.executeCycle(rule, nil, false)
	}()
	return true
}

// TriggerApply enqueues one apply cycle for a specific posting. Gate
// failures come back synchronously; the cycle itself resolves asynchronously.
func (o *Orchestrator) TriggerApply(ctx context.Context, ruleID int, posting boards.JobPosting, dryRun bool) error {

	rule, err := o.guard.Check(ctx, ruleID)
	if err != nil {
		return err
	}

	existing, err := o.applications.GetByUserAndPosting(ctx, rule.UserID, posting.URL)
	if err != nil {
		return err
	}
	if existing != nil && existing.Status.AtOrPast(entities.StatusApplied) {
		return ErrAlreadyApplied
	}

	if err = o.caps.TryReserveSlot(ctx, rule, entities.DayKey(time.Now())); err != nil {
		if errors.Is(err, ErrCapExceeded) {
			metrics.CapExhaustedCounter.Inc()
		}
		return err
	}

	accepted := *rule
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		mutex := o.lockFor(accepted.ID)
		mutex.Lock()
		defer mutex.Unlock()
		o.executeCycle(accepted, &posting, dryRun)
	}()

	return nil
}

// TriggerSearch runs a search under the rule's session and returns the
// postings found. Searches consume no cap slot.
func (o *Orchestrator) TriggerSearch(ctx context.Context, ruleID int, criteria entities.SearchCriteria) ([]boards.JobPosting, error) {

	rule, err := o.guard.Check(ctx, ruleID)
	if err != nil {
		return nil, err
	}

	mutex := o.lockFor(rule.ID)
	mutex.Lock()
	defer mutex.Unlock()

	select {
	case o.workers <- struct{}{}:
		defer func() { <-o.workers }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	adapter, err := o.registry.Get(rule.Board)
	if err != nil {
		return nil, err
	}

	credentials, err := o.credentials.Get(ctx, rule.UserID, rule.Board)
	if err != nil {
		return nil, err
	}

	session, err := adapter.Login(ctx, credentials)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	sequence, err := adapter.Search(ctx, session, criteria)
	if err != nil {
		return nil, err
	}

	var postings []boards.JobPosting
	for len(postings) < o.searchLimit {
		posting, err := sequence.Next(ctx)
		if err != nil {
			return postings, err
		}
		if posting == nil {
			break
		}
		postings = append(postings, *posting)
	}

	attempt := &entities.AutomationAttempt{
		RuleID:     rule.ID,
		Outcome:    entities.OutcomeTerminalSuccess,
		Diagnostic: "search returned " + strconv.Itoa(len(postings)) + " postings",
	}
	if err = o.attempts.RecordCycle(context.Background(), attempt, nil, time.Now()); err != nil {
		log.WithField(logger.ErrorTypeField, logger.ErrorTypeDb).Errorf("failed to record search attempt: %v", err)
	}
	o.pacing.NextDelay(rule.ID)

	return postings, nil
}

// GetRuleStatus reports the rule's automation state for the dashboard.
func (o *Orchestrator) GetRuleStatus(ctx context.Context, ruleID int) (*RuleStatus, error) {

	rule, err := o.rules.GetByID(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, ErrRuleNotFound
	}

	remaining, err := o.caps.RemainingToday(ctx, rule, entities.DayKey(time.Now()))
	if err != nil {
		return nil, err
	}

	status := &RuleStatus{
		LastActionAt:      rule.LastActionAt,
		CapRemainingToday: remaining,
		Paused:            rule.Paused,
	}

	latest, err := o.attempts.GetLatestForRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		status.LastOutcome = latest.Outcome
	}

	return status, nil
}

// ClearPause is the human-acknowledgement entry point. Only this clears a
// pause; the orchestrator itself never does.
func (o *Orchestrator) ClearPause(ctx context.Context, ruleID int) error {

	rule, err := o.rules.GetByID(ctx, ruleID)
	if err != nil {
		return err
	}
	if rule == nil {
		return ErrRuleNotFound
	}
	if !rule.Paused {
		return nil
	}

	if err = o.rules.ClearPause(ctx, ruleID); err != nil {
		return err
	}

	metrics.PausedRulesGauge.Dec()
	log.Infof("pause cleared for rule %v", ruleID)
	return nil
}

func (o *Orchestrator) lockFor(ruleID int) *sync.Mutex {
	lock, _ := o.ruleLocks.LoadOrStore(ruleID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func (o *Orchestrator) onConsentRevoked(event events.ConsentRevoked) {
	if cancel, ok := o.cancels.Load(event.RuleID); ok {
		cancel.(context.CancelFunc)()
		o.cancels.Delete(event.RuleID)
		log.Infof("in-flight action canceled for rule %v", event.RuleID)
	}
}

type cycleResult struct {
	raw         boards.RawResult
	kind        entities.OutcomeKind
	decision    RetryDecision
	retryCount  int
	application *entities.ApplicationRecord
	posting     *boards.JobPosting
}

// executeCycle runs one full orchestration cycle for a rule. The caller
// holds the rule's exclusive execution right and has already reserved a cap
// slot. posting == nil means search for one first.
func (o *Orchestrator) executeCycle(rule entities.AutomationRule, posting *boards.JobPosting, dryRun bool) {

	start := time.Now()

	ctx, cancel := context.WithTimeout(o.ctx, o.actionTimeout)
	o.cancels.Store(rule.ID, cancel)
	defer func() {
		cancel()
		o.cancels.Delete(rule.ID)
	}()

	select {
	case o.workers <- struct{}{}:
		defer func() { <-o.workers }()
	case <-ctx.Done():
		// the cap slot is already consumed; a canceled action still
		// leaves its audit row
		o.resolve(rule, cycleResult{
			raw:      boards.RawResult{Outcome: boards.OutcomeNetworkError, Detail: "canceled while queued: " + ctx.Err().Error()},
			kind:     entities.OutcomeTransientRetryable,
			decision: RetryDecision{Action: Abort},
		}, dryRun, start)
		return
	}

	// consent can be revoked between selection and dispatch
	current, err := o.guard.Check(ctx, rule.ID)
	if err != nil {
		log.Infof("cycle skipped for rule %v: %v", rule.ID, err)
		return
	}
	rule = *current

	result, err := o.runAttempts(ctx, rule, posting, dryRun)
	if err != nil {
		// infrastructure fault: no partial state change, retried next tick
		log.WithField(logger.ErrorTypeField, logger.ErrorTypeDb).Errorf("cycle failed for rule %v: %v", rule.ID, err)
		return
	}

	o.resolve(rule, result, dryRun, start)
}

// runAttempts is the in-cycle retry loop. The attempt ceiling counts calls
// made, so three transient failures with ceiling 3 abort without a fourth
// call ever happening.
func (o *Orchestrator) runAttempts(ctx context.Context, rule entities.AutomationRule,
	posting *boards.JobPosting, dryRun bool) (cycleResult, error) {

	result := cycleResult{}

	for attemptCount := 1; ; attemptCount++ {

		raw, application, acted, err := o.performAction(ctx, rule, posting, dryRun)
		if err != nil {
			return result, err
		}
		if posting == nil {
			// a retry repeats the same action against the same posting,
			// never a fresh search
			posting = acted
		}

		result.posting = posting
		result.raw = raw
		result.application = application
		result.retryCount = attemptCount - 1
		result.kind = ClassifyOutcome(raw.Outcome)
		result.decision = o.retry.Decide(result.kind, attemptCount)

		if result.decision.Action != RetryNow && result.decision.Action != RetryAfterBackoff {
			return result, nil
		}

		select {
		case <-ctx.Done():
			result.raw = boards.RawResult{Outcome: boards.OutcomeNetworkError, Detail: ctx.Err().Error()}
			result.kind = entities.OutcomeTransientRetryable
			result.decision = RetryDecision{Action: Abort}
			return result, nil
		case <-time.After(result.decision.Delay):
		}
	}
}

// performAction executes one board interaction: login, optionally search for
// a posting, then apply. The session is torn down on every exit path. The
// third return value is the posting the action targeted, so the retry loop
// can repeat the same action. Returned errors are infrastructure faults only;
// board-level failures come back as raw outcomes.
func (o *Orchestrator) performAction(ctx context.Context, rule entities.AutomationRule,
	posting *boards.JobPosting, dryRun bool) (boards.RawResult, *entities.ApplicationRecord, *boards.JobPosting, error) {

	adapter, err := o.registry.Get(rule.Board)
	if err != nil {
		return boards.RawResult{}, nil, nil, err
	}

	credentials, err := o.credentials.Get(ctx, rule.UserID, rule.Board)
	if err != nil {
		return boards.RawResult{}, nil, nil, errors.Wrap(err, "failed to get board credentials")
	}

	start := time.Now()
	session, err := adapter.Login(ctx, credentials)
	metrics.CycleStepDuration.WithLabelValues("login").Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, boards.ErrAuthFailure) {
			return boards.RawResult{Outcome: boards.OutcomeRejected, Detail: "login failed: " + err.Error()}, nil, posting, nil
		}
		return boards.RawResult{Outcome: boards.OutcomeNetworkError, Detail: err.Error()}, nil, posting, nil
	}
	defer session.Close()

	if posting == nil {
		found, raw, err := o.findPosting(ctx, adapter, session, rule)
		if err != nil || raw != nil {
			if raw != nil {
				return *raw, nil, nil, err
			}
			return boards.RawResult{}, nil, nil, err
		}
		posting = found
	}

	existing, err := o.applications.GetByUserAndPosting(ctx, rule.UserID, posting.URL)
	if err != nil {
		return boards.RawResult{}, nil, posting, err
	}

	application := existing
	if application != nil && application.Status.AtOrPast(entities.StatusApplied) {
		// idempotence at the record level: never reissue the board action
		return boards.RawResult{Outcome: boards.OutcomeAlreadyApplied, Detail: "record already at or past applied"}, application, posting, nil
	}
	if application == nil {
		ruleID := rule.ID
		application = entities.NewApplicationRecord(rule.UserID, &ruleID, rule.Board,
			posting.URL, posting.Title, posting.Company)
	}

	if dryRun {
		return boards.RawResult{Outcome: boards.OutcomeSuccess, Detail: "dry run - no application submitted"}, application, posting, nil
	}

	start = time.Now()
	raw, err := adapter.Apply(ctx, session, *posting)
	metrics.CycleStepDuration.WithLabelValues("apply").Observe(time.Since(start).Seconds())

	if err != nil {
		return boards.RawResult{Outcome: boards.OutcomeNetworkError, Detail: err.Error()}, application, posting, nil
	}
	return raw, application, posting, nil
}

// findPosting walks the lazy search sequence for the first posting the rule
// has not already covered. An empty result is a successful no-op cycle.
func (o *Orchestrator) findPosting(ctx context.Context, adapter boards.Adapter, session *boards.Session,
	rule entities.AutomationRule) (*boards.JobPosting, *boards.RawResult, error) {

	start := time.Now()
	defer func() {
		metrics.CycleStepDuration.WithLabelValues("search").Observe(time.Since(start).Seconds())
	}()

	sequence, err := adapter.Search(ctx, session, rule.Criteria())
	if err != nil {
		return nil, &boards.RawResult{Outcome: boards.OutcomeNetworkError, Detail: err.Error()}, nil
	}

	for scanned := 0; scanned < o.searchLimit; scanned++ {

		posting, err := sequence.Next(ctx)
		if err != nil {
			return nil, &boards.RawResult{Outcome: boards.OutcomeNetworkError, Detail: err.Error()}, nil
		}
		if posting == nil {
			break
		}

		if o.recentlyAttempted(rule.ID, posting.URL) {
			continue
		}

		existing, err := o.applications.GetByUserAndPosting(ctx, rule.UserID, posting.URL)
		if err != nil {
			return nil, nil, err
		}
		if existing != nil && existing.Status.AtOrPast(entities.StatusApplied) {
			continue
		}

		return posting, nil, nil
	}

	return nil, &boards.RawResult{Outcome: boards.OutcomeSuccess, Detail: "no new postings found"}, nil
}

// resolve records the cycle's attempt, advances application state on
// success, and pauses the rule when a human is required. Persistence uses a
// fresh context so a canceled action still leaves its audit trail.
func (o *Orchestrator) resolve(rule entities.AutomationRule, result cycleResult, dryRun bool, start time.Time) {

	now := time.Now()
	persistCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	attempt := &entities.AutomationAttempt{
		RuleID:     rule.ID,
		Outcome:    result.kind,
		RetryCount: result.retryCount,
		Diagnostic: string(result.raw.Outcome) + ": " + result.raw.Detail,
		DryRun:     dryRun,
	}
	if result.application != nil && result.application.ID != 0 {
		id := result.application.ID
		attempt.ApplicationID = &id
	}

	var applicationToSave *entities.ApplicationRecord

	switch result.decision.Action {
	case PauseForHuman:
		reason := result.raw.Detail
		if reason == "" {
			reason = "captcha presented"
		}
		if err := o.rules.SetPaused(persistCtx, rule.ID, reason); err != nil {
			log.WithField(logger.ErrorTypeField, logger.ErrorTypeDb).Errorf("failed to pause rule %v: %v", rule.ID, err)
		} else {
			metrics.PausedRulesGauge.Inc()
			o.bus.Publish(events.RulePausedTopic, events.RulePaused{Rule: rule, Reason: reason})
			log.Warnf("rule %v paused: human action required", rule.ID)
		}

	default:
		// dry runs report success but must leave every record untouched
		if result.kind == entities.OutcomeTerminalSuccess && result.application != nil && !dryRun {
			err := o.states.MarkApplied(result.application, now)
			switch {
			case err == nil:
				applicationToSave = result.application
				o.bus.Publish(events.ApplicationAppliedTopic, events.ApplicationApplied{
					Rule:        rule,
					Application: *result.application,
				})
			case errors.Is(err, ErrAlreadyApplied):
				// record stays as is, attempt still links to it
			default:
				log.Errorf("failed to mark application as applied: %v", err)
			}
		}
		// aborted and failed cycles leave the record's status untouched
	}

	// only settled actions enter the dedupe cache: a transiently failed
	// posting must stay eligible for the next cycle
	if result.posting != nil && !dryRun &&
		(result.kind == entities.OutcomeTerminalSuccess || result.kind == entities.OutcomeTerminalFailure) {
		o.markRecentlyAttempted(rule.ID, result.posting.URL)
	}

	if err := o.attempts.RecordCycle(persistCtx, attempt, applicationToSave, now); err != nil {
		log.WithField(logger.ErrorTypeField, logger.ErrorTypeDb).Errorf("failed to record automation attempt: %v", err)
	}

	o.pacing.NextDelay(rule.ID)
	metrics.AttemptsCounter.WithLabelValues(string(result.kind)).Inc()
	metrics.CycleDuration.Observe(time.Since(start).Seconds())
}

func (o *Orchestrator) recentlyAttempted(ruleID int, postingURL string) bool {
	_, found := o.recentPostings.Get(postingCacheID(ruleID, postingURL))
	return found
}

func (o *Orchestrator) markRecentlyAttempted(ruleID int, postingURL string) {
	if err := o.recentPostings.Add(postingCacheID(ruleID, postingURL), "", gocache.DefaultExpiration); err != nil {
		log.Debugf("failed to cache attempted posting: %v", err)
	}
}

func postingCacheID(ruleID int, postingURL string) string {
	urlHash := sha256.Sum256([]byte(postingURL))
	return strconv.Itoa(ruleID) + hex.EncodeToString(urlHash[:])
}
