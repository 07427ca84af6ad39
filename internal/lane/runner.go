package lane

import (
	"context"
)

// Runner is the contract the scheduler needs from each background lane.
// RunOnce performs at most one unit of work; with nothing eligible it
// returns nil without side effects.
type Runner interface {
	Name() string
	RunOnce(context.Context) error
	HealthCheck(context.Context) Health
}
