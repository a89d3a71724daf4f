package entities

import (
	"time"

	"github.com/pkg/errors"
)

type Board string

const (
	BoardLinkedIn  Board = "linkedin"
	BoardIndeed    Board = "indeed"
	BoardPNet      Board = "pnet"
	BoardCareers24 Board = "careers24"
)

func ToBoard(s string) (Board, error) {
	switch s {
	case string(BoardLinkedIn):
		return BoardLinkedIn, nil
	case string(BoardIndeed):
		return BoardIndeed, nil
	case string(BoardPNet):
		return BoardPNet, nil
	case string(BoardCareers24):
		return BoardCareers24, nil
	default:
		return "", errors.New("invalid board type")
	}
}

type SearchCriteria struct {
	Keywords  string
	Location  string
	SalaryMin int
}

const DefaultDailyCap = 5

// AutomationRule is a user-owned policy for automated applying on one job
// board. The orchestrator only ever mutates LastActionAt and the pause
// fields; everything else changes through explicit rule edits.
type AutomationRule struct {
	ID           int
	UserID       int64
	Board        Board
	Keywords     string
	Location     string
	SalaryMin    int
	DailyCap     int
	Consent      bool
	Enabled      bool
	Paused       bool
	PausedAt     *time.Time
	PauseReason  string
	LastActionAt time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func NewAutomationRule(userID int64, board Board, keywords, location string) *AutomationRule {
	return &AutomationRule{
		UserID:   userID,
		Board:    board,
		Keywords: keywords,
		Location: location,
		DailyCap: DefaultDailyCap,
		Consent:  false,
		Enabled:  true,
	}
}

// Dispatchable reports whether the orchestrator may act on this rule at all.
// Pacing and cap checks come on top of this.
func (r *AutomationRule) Dispatchable() bool {
	return r.Consent && r.Enabled && !r.Paused
}

func (r *AutomationRule) Criteria() SearchCriteria {
	return SearchCriteria{
		Keywords:  r.Keywords,
		Location:  r.Location,
		SalaryMin: r.SalaryMin,
	}
}
