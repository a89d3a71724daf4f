package services

import (
	"testing"
	"time"

	"github.com/jobtrack/autopilot/internal/entities"
	"github.com/stretchr/testify/assert"
)

func Test_RetryPolicy_WhenHumanRequired_ShouldPause(t *testing.T) {

	policy, err := NewRetryPolicy(3, time.Minute)
	assert.NoError(t, err)

	decision := policy.Decide(entities.OutcomeHumanRequired, 1)
	assert.Equal(t, PauseForHuman, decision.Action)
}

func Test_RetryPolicy_WhenTransient_ShouldBackOffExponentially(t *testing.T) {

	policy, err := NewRetryPolicy(4, time.Minute)
	assert.NoError(t, err)

	first := policy.Decide(entities.OutcomeTransientRetryable, 1)
	second := policy.Decide(entities.OutcomeTransientRetryable, 2)
	third := policy.Decide(entities.OutcomeTransientRetryable, 3)

	assert.Equal(t, RetryAfterBackoff, first.Action)
	assert.Equal(t, time.Minute, first.Delay)
	assert.Equal(t, 2*time.Minute, second.Delay)
	assert.Equal(t, 4*time.Minute, third.Delay)
}

func Test_RetryPolicy_WhenCeilingReached_ShouldAbort(t *testing.T) {

	policy, err := NewRetryPolicy(3, time.Minute)
	assert.NoError(t, err)

	decision := policy.Decide(entities.OutcomeTransientRetryable, 3)
	assert.Equal(t, Abort, decision.Action)
}

func Test_RetryPolicy_WhenTerminal_ShouldAbort(t *testing.T) {

	policy, err := NewRetryPolicy(3, time.Minute)
	assert.NoError(t, err)

	assert.Equal(t, Abort, policy.Decide(entities.OutcomeTerminalSuccess, 1).Action)
	assert.Equal(t, Abort, policy.Decide(entities.OutcomeTerminalFailure, 1).Action)
}

func Test_NewRetryPolicy_WhenParametersInvalid_ShouldFail(t *testing.T) {

	_, err := NewRetryPolicy(0, time.Minute)
	assert.Error(t, err)

	_, err = NewRetryPolicy(3, 0)
	assert.Error(t, err)
}
