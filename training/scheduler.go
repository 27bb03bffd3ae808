package training

import (
	"fmt"

	"github.com/shadygm/go-splat/optimizer"
)

// LRScheduler advances a learning-rate schedule by one optimizer step.
type LRScheduler interface {
	// Step applies one schedule update to the optimizer it wraps.
	Step() error

	// GetName returns the scheduler name for logging
	GetName() string
}

// ExponentialLR multiplies one parameter group's learning rate by a fixed
// gamma on every step. With gamma = 0.01^(1/iterations) the rate decays
// smoothly by 100x over a full run. Groups other than the target keep their
// rate for the entire run.
type ExponentialLR struct {
	opt        *optimizer.Adam
	gamma      float64
	groupIndex int
}

// NewExponentialLR creates an exponential scheduler bound to one parameter
// group of the given optimizer.
func NewExponentialLR(opt *optimizer.Adam, gamma float64, groupIndex int) (*ExponentialLR, error) {
	if opt == nil {
		return nil, fmt.Errorf("ExponentialLR requires an optimizer")
	}
	if gamma <= 0 || gamma > 1 {
		return nil, fmt.Errorf("gamma must be in (0, 1], got %f", gamma)
	}
	if groupIndex < 0 || groupIndex >= opt.NumGroups() {
		return nil, fmt.Errorf("group index %d out of range [0, %d)", groupIndex, opt.NumGroups())
	}
	return &ExponentialLR{
		opt:        opt,
		gamma:      gamma,
		groupIndex: groupIndex,
	}, nil
}

func (s *ExponentialLR) Step() error {
	lr, err := s.opt.LR(s.groupIndex)
	if err != nil {
		return fmt.Errorf("scheduler step: %v", err)
	}
	if err := s.opt.SetLR(s.groupIndex, lr*s.gamma); err != nil {
		return fmt.Errorf("scheduler step: %v", err)
	}
	return nil
}

func (s *ExponentialLR) GetName() string {
	return "ExponentialLR"
}
