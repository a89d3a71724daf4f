package events

import "github.com/jobtrack/autopilot/internal/entities"

var ApplicationAppliedTopic = "ApplicationAppliedEvent"

type ApplicationApplied struct {
	Rule        entities.AutomationRule
	Application entities.ApplicationRecord
}
