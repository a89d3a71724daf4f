package services

import (
	"testing"
	"time"

	"github.com/jobtrack/autopilot/internal/entities"
	"github.com/stretchr/testify/assert"
)

func Test_StateMachine_AllowsForwardChain(t *testing.T) {

	machine := ApplicationStateMachine{}
	ruleID := 1
	record := entities.NewApplicationRecord(1, &ruleID, entities.BoardPNet, "https://pnet.example/1", "Engineer", "Acme")

	chain := []entities.Status{
		entities.StatusApplied,
		entities.StatusScreening,
		entities.StatusInterview,
		entities.StatusOffer,
		entities.StatusAccepted,
	}

	for _, status := range chain {
		assert.NoError(t, machine.Transition(record, status, time.Now()))
	}
	assert.Equal(t, entities.StatusAccepted, record.Status)
}

func Test_StateMachine_WhenJumpingStages_ShouldReject(t *testing.T) {

	machine := ApplicationStateMachine{}
	ruleID := 1
	record := entities.NewApplicationRecord(1, &ruleID, entities.BoardPNet, "https://pnet.example/1", "Engineer", "Acme")

	err := machine.Transition(record, entities.StatusInterview, time.Now())
	assert.Error(t, err)
	assert.Equal(t, entities.StatusDraft, record.Status)
}

func Test_StateMachine_WhenStatusIsTerminal_ShouldRejectAnyMove(t *testing.T) {

	machine := ApplicationStateMachine{}

	for _, terminal := range []entities.Status{entities.StatusAccepted, entities.StatusRejected, entities.StatusWithdrawn} {
		assert.Empty(t, machine.AvailableTransitions(terminal))
	}
}

func Test_StateMachine_SelfTransitionIsIdempotent(t *testing.T) {

	machine := ApplicationStateMachine{}
	ruleID := 1
	record := entities.NewApplicationRecord(1, &ruleID, entities.BoardIndeed, "https://indeed.example/1", "Engineer", "Acme")

	assert.NoError(t, machine.Transition(record, entities.StatusApplied, time.Now()))
	appliedAt := *record.AppliedAt

	assert.NoError(t, machine.Transition(record, entities.StatusApplied, time.Now().Add(time.Hour)))
	assert.Equal(t, appliedAt, *record.AppliedAt)
}

func Test_StateMachine_RejectionIsAllowedMidPipeline(t *testing.T) {

	machine := ApplicationStateMachine{}
	ruleID := 1
	record := entities.NewApplicationRecord(1, &ruleID, entities.BoardLinkedIn, "https://linkedin.example/1", "Engineer", "Acme")

	assert.NoError(t, machine.Transition(record, entities.StatusApplied, time.Now()))
	assert.NoError(t, machine.Transition(record, entities.StatusScreening, time.Now()))
	assert.NoError(t, machine.Transition(record, entities.StatusRejected, time.Now()))
	assert.True(t, record.Status.Terminal())
}

func Test_MarkApplied_WhenAlreadyApplied_ShouldReturnSentinel(t *testing.T) {

	machine := ApplicationStateMachine{}
	ruleID := 1
	record := entities.NewApplicationRecord(1, &ruleID, entities.BoardCareers24, "https://careers24.example/1", "Engineer", "Acme")

	assert.NoError(t, machine.MarkApplied(record, time.Now()))
	assert.ErrorIs(t, machine.MarkApplied(record, time.Now()), ErrAlreadyApplied)
}

func Test_MarkApplied_RecordsStatusTime(t *testing.T) {

	machine := ApplicationStateMachine{}
	ruleID := 1
	record := entities.NewApplicationRecord(1, &ruleID, entities.BoardPNet, "https://pnet.example/2", "Engineer", "Acme")

	at := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	assert.NoError(t, machine.MarkApplied(record, at))

	times := record.StatusTimesAsMap()
	assert.Equal(t, at, times[entities.StatusApplied])
	assert.NotNil(t, record.AppliedAt)
}
