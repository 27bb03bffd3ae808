package optimizer

import (
	"fmt"

	"github.com/shadygm/go-splat/tensor"
)

// Snapshot is a host-side copy of the optimizer's complete state for
// checkpointing. Moment tensors are deep copies, safe to serialize while
// training continues on the originals.
type Snapshot struct {
	Type    string
	Beta1   float64
	Beta2   float64
	Eps     float64
	AMSGrad bool
	Groups  []GroupSnapshot
}

// GroupSnapshot carries one group's hyperparameters and cloned moments. A
// group that has not accumulated state yet has nil moments and step zero.
// MaxExpAvgSq is nil unless AMSGrad accumulated one.
type GroupSnapshot struct {
	Name        string
	LR          float64
	Step        int64
	ExpAvg      *tensor.Tensor
	ExpAvgSq    *tensor.Tensor
	MaxExpAvgSq *tensor.Tensor
}

// GetState extracts optimizer state for checkpointing.
func (a *Adam) GetState() (*Snapshot, error) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	snapshot := &Snapshot{
		Type:    "Adam",
		Beta1:   a.config.Beta1,
		Beta2:   a.config.Beta2,
		Eps:     a.config.Eps,
		AMSGrad: a.config.AMSGrad,
		Groups:  make([]GroupSnapshot, 0, len(a.groups)),
	}

	for _, group := range a.groups {
		gs := GroupSnapshot{
			Name: group.Name,
			LR:   group.LR,
		}
		if st, ok := a.state[group.Param]; ok {
			expAvg, err := st.ExpAvg.Clone()
			if err != nil {
				return nil, fmt.Errorf("failed to copy first moment for %q: %v", group.Name, err)
			}
			expAvgSq, err := st.ExpAvgSq.Clone()
			if err != nil {
				return nil, fmt.Errorf("failed to copy second moment for %q: %v", group.Name, err)
			}
			gs.Step = st.Step
			gs.ExpAvg = expAvg
			gs.ExpAvgSq = expAvgSq
			if st.MaxExpAvgSq != nil {
				maxExpAvgSq, err := st.MaxExpAvgSq.Clone()
				if err != nil {
					return nil, fmt.Errorf("failed to copy max second moment for %q: %v", group.Name, err)
				}
				gs.MaxExpAvgSq = maxExpAvgSq
			}
		}
		snapshot.Groups = append(snapshot.Groups, gs)
	}

	return snapshot, nil
}

// LoadState restores optimizer state from a snapshot. Snapshot groups are
// matched to current groups by name; every current group must be covered, and
// restored moments must match the current parameter shapes.
func (a *Adam) LoadState(snapshot *Snapshot) error {
	if snapshot == nil {
		return fmt.Errorf("snapshot is nil")
	}
	if err := validateStateType("Adam", snapshot); err != nil {
		return err
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	byName := make(map[string]*GroupSnapshot, len(snapshot.Groups))
	for i := range snapshot.Groups {
		byName[snapshot.Groups[i].Name] = &snapshot.Groups[i]
	}

	// Validate everything before mutating.
	for _, group := range a.groups {
		gs, ok := byName[group.Name]
		if !ok {
			return fmt.Errorf("snapshot has no state for group %q", group.Name)
		}
		if gs.LR <= 0 {
			return fmt.Errorf("snapshot learning rate for %q must be positive, got %g", group.Name, gs.LR)
		}
		if gs.ExpAvg == nil != (gs.ExpAvgSq == nil) {
			return fmt.Errorf("snapshot moments for %q are inconsistent", group.Name)
		}
		if gs.ExpAvg != nil {
			if _, err := shapeMatch(group.Param.Shape, gs.ExpAvg.Shape); err != nil {
				return fmt.Errorf("snapshot first moment for %q: %v", group.Name, err)
			}
			if _, err := shapeMatch(group.Param.Shape, gs.ExpAvgSq.Shape); err != nil {
				return fmt.Errorf("snapshot second moment for %q: %v", group.Name, err)
			}
			if gs.MaxExpAvgSq != nil {
				if _, err := shapeMatch(group.Param.Shape, gs.MaxExpAvgSq.Shape); err != nil {
					return fmt.Errorf("snapshot max second moment for %q: %v", group.Name, err)
				}
			}
		}
	}

	a.config.Beta1 = snapshot.Beta1
	a.config.Beta2 = snapshot.Beta2
	a.config.Eps = snapshot.Eps
	a.config.AMSGrad = snapshot.AMSGrad

	for i := range a.groups {
		group := &a.groups[i]
		gs := byName[group.Name]
		group.LR = gs.LR

		if gs.ExpAvg == nil {
			delete(a.state, group.Param)
			continue
		}
		expAvg, err := gs.ExpAvg.Clone()
		if err != nil {
			return fmt.Errorf("failed to restore first moment for %q: %v", group.Name, err)
		}
		expAvgSq, err := gs.ExpAvgSq.Clone()
		if err != nil {
			return fmt.Errorf("failed to restore second moment for %q: %v", group.Name, err)
		}
		st := &State{
			Step:     gs.Step,
			ExpAvg:   expAvg,
			ExpAvgSq: expAvgSq,
		}
		if gs.MaxExpAvgSq != nil {
			maxExpAvgSq, err := gs.MaxExpAvgSq.Clone()
			if err != nil {
				return fmt.Errorf("failed to restore max second moment for %q: %v", group.Name, err)
			}
			st.MaxExpAvgSq = maxExpAvgSq
		}
		a.state[group.Param] = st
	}

	return nil
}

// validateStateType ensures the snapshot type matches the optimizer.
func validateStateType(optimizerType string, snapshot *Snapshot) error {
	if snapshot.Type != optimizerType {
		return fmt.Errorf("state type mismatch: expected %s, got %s", optimizerType, snapshot.Type)
	}
	return nil
}

func shapeMatch(want, got []int) ([]int, error) {
	if len(want) != len(got) {
		return nil, fmt.Errorf("shape %v does not match %v", got, want)
	}
	for i := range want {
		if want[i] != got[i] {
			return nil, fmt.Errorf("shape %v does not match %v", got, want)
		}
	}
	return want, nil
}
