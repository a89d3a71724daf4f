package services

import "github.com/pkg/errors"

// Gate failures. These are resolved outcomes, not faults: the orchestrator
// records them and moves on, callers branch on them with errors.Is.
var (
	ErrRuleNotFound   = errors.New("automation rule not found")
	ErrConsentDenied  = errors.New("automation consent not granted")
	ErrRuleDisabled   = errors.New("automation rule is disabled")
	ErrRulePaused     = errors.New("automation rule is paused awaiting human action")
	ErrCapExceeded    = errors.New("daily application cap exhausted")
	ErrAlreadyApplied = errors.New("application already at or past applied")
)
