package services

import (
	"time"

	"github.com/jobtrack/autopilot/internal/entities"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// validTransitions is the authoritative transition table. Terminal statuses
// map to nothing: once accepted, rejected or withdrawn, a record stays put
// unless a human overrides it outside this subsystem.
var validTransitions = map[entities.Status][]entities.Status{
	entities.StatusDraft:      {entities.StatusApplied, entities.StatusWithdrawn},
	entities.StatusApplied:    {entities.StatusScreening, entities.StatusRejected, entities.StatusWithdrawn},
	entities.StatusScreening:  {entities.StatusInterview, entities.StatusRejected, entities.StatusWithdrawn},
	entities.StatusInterview:  {entities.StatusAssessment, entities.StatusOffer, entities.StatusRejected, entities.StatusWithdrawn},
	entities.StatusAssessment: {entities.StatusOffer, entities.StatusRejected, entities.StatusWithdrawn},
	entities.StatusOffer:      {entities.StatusAccepted, entities.StatusRejected, entities.StatusWithdrawn},
	entities.StatusAccepted:   {},
	entities.StatusRejected:   {},
	entities.StatusWithdrawn:  {},
}

// ApplicationStateMachine owns status transitions for application records.
// Automation only ever drives draft to applied; everything downstream comes
// from the user or external board polling.
type ApplicationStateMachine struct{}

func (ApplicationStateMachine) CanTransition(from, to entities.Status) bool {
	if from == to {
		return true
	}
	return lo.Contains(validTransitions[from], to)
}

func (ApplicationStateMachine) AvailableTransitions(from entities.Status) []entities.Status {
	return validTransitions[from]
}

func (m ApplicationStateMachine) Transition(record *entities.ApplicationRecord, to entities.Status, at time.Time) error {

	if !m.CanTransition(record.Status, to) {
		return errors.Errorf("invalid status transition: %v -> %v", record.Status, to)
	}
	if record.Status == to {
		return nil
	}

	record.Status = to
	record.MarkStatusReached(to, at)

	if to == entities.StatusApplied && record.AppliedAt == nil {
		applied := at.UTC()
		record.AppliedAt = &applied
	}
	return nil
}

// MarkApplied drives the one automated transition. Records already at or
// past applied come back as ErrAlreadyApplied so the caller never reissues
// the board action or creates a duplicate.
func (m ApplicationStateMachine) MarkApplied(record *entities.ApplicationRecord, at time.Time) error {

	if record.Status.AtOrPast(entities.StatusApplied) {
		return ErrAlreadyApplied
	}
	return m.Transition(record, entities.StatusApplied, at)
}
