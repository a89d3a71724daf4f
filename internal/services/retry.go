package services

import (
	"time"

	"github.com/jobtrack/autopilot/internal/entities"
	"github.com/pkg/errors"
)

type RetryAction int

const (
	RetryNow RetryAction = iota
	RetryAfterBackoff
	Abort
	PauseForHuman
)

type RetryDecision struct {
	Action RetryAction
	Delay  time.Duration
}

// RetryPolicy decides what happens after each attempt. Transient outcomes
// back off exponentially up to the attempt ceiling; the ceiling counts
// attempts made, not distinct outcomes seen.
type RetryPolicy struct {
	ceiling     int
	backoffBase time.Duration
}

func NewRetryPolicy(ceiling int, backoffBase time.Duration) (*RetryPolicy, error) {

	if ceiling < 1 {
		return nil, errors.New("retry ceiling must be at least 1")
	}
	if backoffBase <= 0 {
		return nil, errors.New("retry backoff base must be positive")
	}

	return &RetryPolicy{ceiling: ceiling, backoffBase: backoffBase}, nil
}

func (p *RetryPolicy) Decide(kind entities.OutcomeKind, attemptCount int) RetryDecision {

	switch kind {
	case entities.OutcomeHumanRequired:
		return RetryDecision{Action: PauseForHuman}

	case entities.OutcomeTransientRetryable:
		if attemptCount >= p.ceiling {
			return RetryDecision{Action: Abort}
		}
		return RetryDecision{Action: RetryAfterBackoff, Delay: p.backoff(attemptCount)}

	default:
		// Terminal outcomes need no further action this cycle.
		return RetryDecision{Action: Abort}
	}
}

func (p *RetryPolicy) backoff(attemptCount int) time.Duration {
	delay := p.backoffBase
	for i := 1; i < attemptCount; i++ {
		delay *= 2
	}
	return delay
}
