package services

import (
	"github.com/jobtrack/autopilot/internal/boards"
	"github.com/jobtrack/autopilot/internal/entities"
)

// ClassifyOutcome maps a raw adapter result onto the fixed outcome set the
// retry policy understands. AlreadyAppliedOnBoard counts as success so the
// orchestrator never burns further attempts on a job that is already done.
func ClassifyOutcome(raw boards.RawOutcome) entities.OutcomeKind {
	switch raw {
	case boards.OutcomeSuccess, boards.OutcomeAlreadyApplied:
		return entities.OutcomeTerminalSuccess
	case boards.OutcomeRejected:
		return entities.OutcomeTerminalFailure
	case boards.OutcomeCaptchaPresented:
		return entities.OutcomeHumanRequired
	case boards.OutcomeNetworkError, boards.OutcomeElementNotFound, boards.OutcomeUnexpectedPage:
		return entities.OutcomeTransientRetryable
	default:
		return entities.OutcomeTransientRetryable
	}
}
