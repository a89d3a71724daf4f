package entities

import "time"

type OutcomeKind string

const (
	OutcomeTerminalSuccess    OutcomeKind = "terminal_success"
	OutcomeTerminalFailure    OutcomeKind = "terminal_failure"
	OutcomeTransientRetryable OutcomeKind = "transient_retryable"
	OutcomeHumanRequired      OutcomeKind = "human_required"
)

// AutomationAttempt is the immutable audit record of one orchestration
// cycle. Never updated after creation.
type AutomationAttempt struct {
	ID            uint
	RuleID        int
	ApplicationID *uint
	Outcome       OutcomeKind
	RetryCount    int
	Diagnostic    string
	DryRun        bool
	CreatedAt     time.Time
}

// DailyCapCounter counts apply-actions per (rule, calendar day). Rows roll
// over by day key, they are never reset in place.
type DailyCapCounter struct {
	RuleID    int    `gorm:"primaryKey"`
	Day       string `gorm:"primaryKey"`
	Count     int
	CreatedAt time.Time
	UpdatedAt *time.Time
}

// DayKey gives the UTC calendar day used to key cap counters.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
