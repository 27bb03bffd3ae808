package optimizer

import (
	"fmt"
	"math"
	"sync"

	"github.com/shadygm/go-splat/tensor"
)

// AdamConfig holds the Adam hyperparameters shared by every parameter group.
// Per-group learning rates live on the groups themselves.
type AdamConfig struct {
	Beta1   float64
	Beta2   float64
	Eps     float64
	AMSGrad bool
}

// DefaultAdamConfig returns the configuration used for splat training. The
// epsilon is far smaller than the usual 1e-8: raw opacities and scales sit in
// log space where second moments get tiny, and a large epsilon would stall
// their updates.
func DefaultAdamConfig() AdamConfig {
	return AdamConfig{
		Beta1:   0.9,
		Beta2:   0.999,
		Eps:     1e-15,
		AMSGrad: false,
	}
}

// Validate checks configuration parameters
func (c AdamConfig) Validate() error {
	if c.Beta1 < 0 || c.Beta1 >= 1 {
		return fmt.Errorf("beta1 must be in [0, 1), got %f", c.Beta1)
	}
	if c.Beta2 < 0 || c.Beta2 >= 1 {
		return fmt.Errorf("beta2 must be in [0, 1), got %f", c.Beta2)
	}
	if c.Eps <= 0 {
		return fmt.Errorf("epsilon must be positive, got %g", c.Eps)
	}
	return nil
}

// ParamGroup binds one parameter tensor to its learning rate. The trainer
// keeps one group per splat attribute so means, colors, opacities, scales and
// rotations each carry their own rate.
type ParamGroup struct {
	Name  string
	Param *tensor.Tensor
	LR    float64
}

// State holds the per-parameter Adam moments. Step counts the updates applied
// to this parameter for bias correction; it survives moment surgery.
// MaxExpAvgSq is only populated when AMSGrad is enabled.
type State struct {
	Step        int64
	ExpAvg      *tensor.Tensor
	ExpAvgSq    *tensor.Tensor
	MaxExpAvgSq *tensor.Tensor
}

// Adam implements the Adam optimizer over named parameter groups. Moment
// state is keyed by parameter tensor identity and created lazily on the first
// step that sees a gradient, so freshly swapped-in parameters start clean.
type Adam struct {
	config AdamConfig
	groups []ParamGroup
	state  map[*tensor.Tensor]*State
	mutex  sync.RWMutex
}

// NewAdam creates an Adam optimizer over the given groups. Every group needs
// a unique name, a positive learning rate, and a Float32 parameter marked as
// requiring gradients.
func NewAdam(config AdamConfig, groups []ParamGroup) (*Adam, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid Adam config: %v", err)
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("no parameter groups provided")
	}

	seen := make(map[string]bool, len(groups))
	for i, g := range groups {
		if g.Name == "" {
			return nil, fmt.Errorf("group %d has no name", i)
		}
		if seen[g.Name] {
			return nil, fmt.Errorf("duplicate group name %q", g.Name)
		}
		seen[g.Name] = true
		if g.Param == nil {
			return nil, fmt.Errorf("group %q has no parameter", g.Name)
		}
		if g.Param.DType != tensor.Float32 {
			return nil, fmt.Errorf("group %q parameter must be Float32, got %s", g.Name, g.Param.DType)
		}
		if !g.Param.RequiresGrad() {
			return nil, fmt.Errorf("group %q parameter does not require gradients", g.Name)
		}
		if g.LR <= 0 {
			return nil, fmt.Errorf("group %q learning rate must be positive, got %g", g.Name, g.LR)
		}
	}

	return &Adam{
		config: config,
		groups: append([]ParamGroup(nil), groups...),
		state:  make(map[*tensor.Tensor]*State, len(groups)),
	}, nil
}

// Step applies one Adam update to every group whose parameter has a
// gradient. Parameters without gradients are skipped and their step counters
// do not advance.
func (a *Adam) Step() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	for i := range a.groups {
		group := &a.groups[i]
		param := group.Param
		grad := param.Grad()
		if grad == nil {
			continue
		}

		st := a.state[param]
		if st == nil {
			expAvg, err := tensor.Zeros(param.Shape, param.DType, param.Device)
			if err != nil {
				return fmt.Errorf("first moment initialization failed for %q: %v", group.Name, err)
			}
			expAvgSq, err := tensor.Zeros(param.Shape, param.DType, param.Device)
			if err != nil {
				return fmt.Errorf("second moment initialization failed for %q: %v", group.Name, err)
			}
			st = &State{ExpAvg: expAvg, ExpAvgSq: expAvgSq}
			a.state[param] = st
		}
		st.Step++

		// Bias correction factors at this parameter's step count.
		bias1 := 1.0 - math.Pow(a.config.Beta1, float64(st.Step))
		bias2 := 1.0 - math.Pow(a.config.Beta2, float64(st.Step))

		// m = beta1 * m + (1 - beta1) * grad
		beta1Term, err := tensor.MulScalar(st.ExpAvg, float32(a.config.Beta1))
		if err != nil {
			return fmt.Errorf("first moment beta1 term failed for %q: %v", group.Name, err)
		}
		gradTerm, err := tensor.MulScalar(grad, float32(1.0-a.config.Beta1))
		if err != nil {
			return fmt.Errorf("first moment grad term failed for %q: %v", group.Name, err)
		}
		newM, err := tensor.Add(beta1Term, gradTerm)
		if err != nil {
			return fmt.Errorf("first moment update failed for %q: %v", group.Name, err)
		}

		// v = beta2 * v + (1 - beta2) * grad^2
		beta2Term, err := tensor.MulScalar(st.ExpAvgSq, float32(a.config.Beta2))
		if err != nil {
			return fmt.Errorf("second moment beta2 term failed for %q: %v", group.Name, err)
		}
		gradSquared, err := tensor.Mul(grad, grad)
		if err != nil {
			return fmt.Errorf("gradient squaring failed for %q: %v", group.Name, err)
		}
		gradSquaredTerm, err := tensor.MulScalar(gradSquared, float32(1.0-a.config.Beta2))
		if err != nil {
			return fmt.Errorf("second moment grad squared term failed for %q: %v", group.Name, err)
		}
		newV, err := tensor.Add(beta2Term, gradSquaredTerm)
		if err != nil {
			return fmt.Errorf("second moment update failed for %q: %v", group.Name, err)
		}

		copy(st.ExpAvg.Data.([]float32), newM.Data.([]float32))
		copy(st.ExpAvgSq.Data.([]float32), newV.Data.([]float32))

		// AMSGrad keeps the running maximum of the second moment and uses
		// it in the denominator instead of the current estimate.
		denomSource := newV
		if a.config.AMSGrad {
			if st.MaxExpAvgSq == nil {
				maxV, err := tensor.Zeros(param.Shape, param.DType, param.Device)
				if err != nil {
					return fmt.Errorf("max second moment initialization failed for %q: %v", group.Name, err)
				}
				st.MaxExpAvgSq = maxV
			}
			newMax, err := tensor.Maximum(st.MaxExpAvgSq, newV)
			if err != nil {
				return fmt.Errorf("max second moment update failed for %q: %v", group.Name, err)
			}
			copy(st.MaxExpAvgSq.Data.([]float32), newMax.Data.([]float32))
			denomSource = newMax
		}

		// update = lr * (m / bias1) / (sqrt(v / bias2) + eps)
		mHat, err := tensor.MulScalar(newM, float32(1.0/bias1))
		if err != nil {
			return fmt.Errorf("first moment bias correction failed for %q: %v", group.Name, err)
		}
		vHat, err := tensor.MulScalar(denomSource, float32(1.0/bias2))
		if err != nil {
			return fmt.Errorf("second moment bias correction failed for %q: %v", group.Name, err)
		}
		vHatSqrt, err := tensor.Sqrt(vHat)
		if err != nil {
			return fmt.Errorf("second moment sqrt failed for %q: %v", group.Name, err)
		}
		denominator, err := tensor.AddScalar(vHatSqrt, float32(a.config.Eps))
		if err != nil {
			return fmt.Errorf("denominator computation failed for %q: %v", group.Name, err)
		}
		update, err := tensor.Div(mHat, denominator)
		if err != nil {
			return fmt.Errorf("update division failed for %q: %v", group.Name, err)
		}
		lrUpdate, err := tensor.MulScalar(update, float32(group.LR))
		if err != nil {
			return fmt.Errorf("learning rate scaling failed for %q: %v", group.Name, err)
		}

		newData, err := tensor.Sub(param, lrUpdate)
		if err != nil {
			return fmt.Errorf("parameter update failed for %q: %v", group.Name, err)
		}
		copy(param.Data.([]float32), newData.Data.([]float32))
	}

	return nil
}

// ZeroGrad resets gradients to zero for all group parameters.
func (a *Adam) ZeroGrad() {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	for i := range a.groups {
		a.groups[i].Param.ZeroGrad()
	}
}

// NumGroups returns the number of parameter groups.
func (a *Adam) NumGroups() int {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return len(a.groups)
}

// Group returns a copy of the parameter group at the given index.
func (a *Adam) Group(index int) (ParamGroup, error) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	if index < 0 || index >= len(a.groups) {
		return ParamGroup{}, fmt.Errorf("group index %d out of range [0, %d)", index, len(a.groups))
	}
	return a.groups[index], nil
}

// LR returns the learning rate of the group at the given index.
func (a *Adam) LR(index int) (float64, error) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	if index < 0 || index >= len(a.groups) {
		return 0, fmt.Errorf("group index %d out of range [0, %d)", index, len(a.groups))
	}
	return a.groups[index].LR, nil
}

// SetLR sets the learning rate of the group at the given index.
func (a *Adam) SetLR(index int, lr float64) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if index < 0 || index >= len(a.groups) {
		return fmt.Errorf("group index %d out of range [0, %d)", index, len(a.groups))
	}
	if lr <= 0 {
		return fmt.Errorf("learning rate must be positive, got %g", lr)
	}
	a.groups[index].LR = lr
	return nil
}

// StateFor returns the live Adam state for a parameter, or false if the
// parameter has not accumulated state yet.
func (a *Adam) StateFor(param *tensor.Tensor) (*State, bool) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	st, ok := a.state[param]
	return st, ok
}

// Stats summarizes the optimizer's bookkeeping.
type Stats struct {
	Groups        int
	TrackedParams int
	StateElements int
}

// GetStats returns a snapshot of group and state counts.
func (a *Adam) GetStats() Stats {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	stats := Stats{
		Groups:        len(a.groups),
		TrackedParams: len(a.state),
	}
	for _, st := range a.state {
		stats.StateElements += st.ExpAvg.NumElems + st.ExpAvgSq.NumElems
	}
	return stats
}
