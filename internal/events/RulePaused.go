package events

import "github.com/jobtrack/autopilot/internal/entities"

var RulePausedTopic = "RulePausedEvent"

type RulePaused struct {
	Rule   entities.AutomationRule
	Reason string
}
