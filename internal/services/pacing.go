package services

import (
	"math/rand"
	"sync"
	"time"

	"github.com/jobtrack/autopilot/internal/entities"
	"github.com/pkg/errors"
)

// PacingController spaces a rule's actions with randomized delays so
// concurrent rules never fall into a detectable rhythm. Each rule gets its
// own generator, seeded independently, so rules do not synchronize. This is
// a stealth measure, not a correctness invariant.
type PacingController struct {
	mu       sync.Mutex
	minDelay time.Duration
	maxDelay time.Duration
	jitter   float64
	rands    map[int]*rand.Rand
	next     map[int]time.Duration
}

func NewPacingController(minDelay, maxDelay time.Duration, jitter float64) (*PacingController, error) {

	if minDelay <= 0 || maxDelay < minDelay {
		return nil, errors.New("pacing delay range is invalid")
	}
	if jitter < 0 || jitter >= 1 {
		return nil, errors.New("pacing jitter must be in [0, 1)")
	}

	return &PacingController{
		minDelay: minDelay,
		maxDelay: maxDelay,
		jitter:   jitter,
		rands:    map[int]*rand.Rand{},
		next:     map[int]time.Duration{},
	}, nil
}

// NextDelay draws a fresh delay for the rule and makes it the one Ready
// checks against. Call it after every completed action.
func (p *PacingController) NextDelay(ruleID int) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	delay := p.draw(ruleID)
	p.next[ruleID] = delay
	return delay
}

// Ready reports whether enough time has passed since the rule's last action.
func (p *PacingController) Ready(rule *entities.AutomationRule, now time.Time) bool {

	if rule.LastActionAt.IsZero() {
		return true
	}

	p.mu.Lock()
	delay, ok := p.next[rule.ID]
	if !ok {
		delay = p.draw(rule.ID)
		p.next[rule.ID] = delay
	}
	p.mu.Unlock()

	return now.Sub(rule.LastActionAt) >= delay
}

func (p *PacingController) draw(ruleID int) time.Duration {

	rng, ok := p.rands[ruleID]
	if !ok {
		rng = rand.New(rand.NewSource(int64(ruleID)*2654435761 + time.Now().UnixNano()))
		p.rands[ruleID] = rng
	}

	base := p.minDelay
	if span := int64(p.maxDelay - p.minDelay); span > 0 {
		base += time.Duration(rng.Int63n(span + 1))
	}

	factor := 1 + (rng.Float64()*2-1)*p.jitter
	return time.Duration(float64(base) * factor)
}
