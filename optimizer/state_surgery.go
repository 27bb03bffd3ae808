package optimizer

import (
	"fmt"

	"github.com/shadygm/go-splat/tensor"
)

// Moment surgery keeps Adam state coherent while the model is resized or
// rewritten underneath it. Relocation overwrites parameter rows in place, so
// the stale moments at those rows must be zeroed; growth swaps a parameter
// tensor for a longer one, so the moments must be re-keyed and padded.

// ResetMomentsAt zeroes the first and second moment rows of param at the
// given indices. The step counter is preserved so bias correction stays on
// its schedule. A parameter with no accumulated state is left alone.
func (a *Adam) ResetMomentsAt(param *tensor.Tensor, indices *tensor.Tensor) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	st, ok := a.state[param]
	if !ok {
		return nil
	}
	if err := tensor.IndexFill(st.ExpAvg, indices, 0); err != nil {
		return fmt.Errorf("failed to reset first moment rows: %v", err)
	}
	if err := tensor.IndexFill(st.ExpAvgSq, indices, 0); err != nil {
		return fmt.Errorf("failed to reset second moment rows: %v", err)
	}
	if st.MaxExpAvgSq != nil {
		if err := tensor.IndexFill(st.MaxExpAvgSq, indices, 0); err != nil {
			return fmt.Errorf("failed to reset max second moment rows: %v", err)
		}
	}
	return nil
}

// ExtendParam replaces oldParam with newParam in the group that owns it.
// Accumulated moments are carried over and padded with zero rows up to the
// new length, then re-keyed under the new tensor. The new parameter must
// require gradients, keep the trailing dimensions of the old one, and have at
// least as many rows.
func (a *Adam) ExtendParam(oldParam, newParam *tensor.Tensor) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	index := -1
	for i := range a.groups {
		if a.groups[i].Param == oldParam {
			index = i
			break
		}
	}
	if index == -1 {
		return fmt.Errorf("no parameter group owns the given tensor")
	}

	if newParam == nil {
		return fmt.Errorf("replacement parameter is nil")
	}
	if !newParam.RequiresGrad() {
		return fmt.Errorf("replacement parameter for %q does not require gradients", a.groups[index].Name)
	}
	if newParam.DType != oldParam.DType {
		return fmt.Errorf("replacement parameter for %q has dtype %s, expected %s",
			a.groups[index].Name, newParam.DType, oldParam.DType)
	}
	if len(newParam.Shape) != len(oldParam.Shape) {
		return fmt.Errorf("replacement parameter for %q has shape %v, expected %d dimensions",
			a.groups[index].Name, newParam.Shape, len(oldParam.Shape))
	}
	for d := 1; d < len(oldParam.Shape); d++ {
		if newParam.Shape[d] != oldParam.Shape[d] {
			return fmt.Errorf("replacement parameter for %q changes trailing dimensions: %v vs %v",
				a.groups[index].Name, newParam.Shape, oldParam.Shape)
		}
	}
	grow := newParam.Shape[0] - oldParam.Shape[0]
	if grow < 0 {
		return fmt.Errorf("replacement parameter for %q shrinks from %d to %d rows",
			a.groups[index].Name, oldParam.Shape[0], newParam.Shape[0])
	}

	if st, ok := a.state[oldParam]; ok {
		delete(a.state, oldParam)
		if grow > 0 {
			extended, err := padRows(st.ExpAvg, grow)
			if err != nil {
				return fmt.Errorf("failed to extend first moment for %q: %v", a.groups[index].Name, err)
			}
			st.ExpAvg = extended

			extended, err = padRows(st.ExpAvgSq, grow)
			if err != nil {
				return fmt.Errorf("failed to extend second moment for %q: %v", a.groups[index].Name, err)
			}
			st.ExpAvgSq = extended

			if st.MaxExpAvgSq != nil {
				extended, err = padRows(st.MaxExpAvgSq, grow)
				if err != nil {
					return fmt.Errorf("failed to extend max second moment for %q: %v", a.groups[index].Name, err)
				}
				st.MaxExpAvgSq = extended
			}
		}
		a.state[newParam] = st
	}

	a.groups[index].Param = newParam
	return nil
}

// padRows appends rows of zeros along dimension 0.
func padRows(t *tensor.Tensor, rows int) (*tensor.Tensor, error) {
	padShape := make([]int, len(t.Shape))
	copy(padShape, t.Shape)
	padShape[0] = rows

	pad, err := tensor.Zeros(padShape, t.DType, t.Device)
	if err != nil {
		return nil, err
	}
	return tensor.Cat(t, pad)
}
