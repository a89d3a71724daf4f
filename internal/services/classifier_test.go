package services

import (
	"testing"

	"github.com/jobtrack/autopilot/internal/boards"
	"github.com/jobtrack/autopilot/internal/entities"
	"github.com/stretchr/testify/assert"
)

func Test_ClassifyOutcome_MapsEveryRawOutcome(t *testing.T) {

	cases := map[boards.RawOutcome]entities.OutcomeKind{
		boards.OutcomeSuccess:          entities.OutcomeTerminalSuccess,
		boards.OutcomeAlreadyApplied:   entities.OutcomeTerminalSuccess,
		boards.OutcomeRejected:         entities.OutcomeTerminalFailure,
		boards.OutcomeCaptchaPresented: entities.OutcomeHumanRequired,
		boards.OutcomeNetworkError:     entities.OutcomeTransientRetryable,
		boards.OutcomeElementNotFound:  entities.OutcomeTransientRetryable,
		boards.OutcomeUnexpectedPage:   entities.OutcomeTransientRetryable,
	}

	for raw, expected := range cases {
		assert.Equal(t, expected, ClassifyOutcome(raw), "raw outcome %v", raw)
	}
}

func Test_ClassifyOutcome_WhenOutcomeIsUnknown_ShouldFallBackToTransient(t *testing.T) {
	assert.Equal(t, entities.OutcomeTransientRetryable, ClassifyOutcome("something_new"))
}
