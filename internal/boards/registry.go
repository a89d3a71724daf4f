package boards

import (
	"fmt"

	"github.com/jobtrack/autopilot/internal/entities"
)

// Registry maps board names to their adapters. New boards register here
// without the orchestrator changing.
type Registry struct {
	adapters map[entities.Board]Adapter
}

func NewRegistry(newDriver DriverFactory) *Registry {
	return &Registry{adapters: map[entities.Board]Adapter{
		entities.BoardLinkedIn:  NewLinkedIn(newDriver),
		entities.BoardIndeed:    NewIndeed(newDriver),
		entities.BoardPNet:      NewPNet(newDriver),
		entities.BoardCareers24: NewCareers24(newDriver),
	}}
}

func (r *Registry) Get(board entities.Board) (Adapter, error) {
	adapter, ok := r.adapters[board]
	if !ok {
		return nil, fmt.Errorf("unsupported job board: %v", board)
	}
	return adapter, nil
}

func (r *Registry) SetRateLimit(maxRequestsPerSecond float32) {
	for _, adapter := range r.adapters {
		if limited, ok := adapter.(interface{ SetRateLimit(float32) }); ok {
			limited.SetRateLimit(maxRequestsPerSecond)
		}
	}
}
