package optimizer

import (
	"testing"

	"github.com/shadygm/go-splat/tensor"
)

// stepOnce drives one optimizer step with a constant gradient so the
// parameter accumulates moment state.
func stepOnce(t *testing.T, adam *Adam, param *tensor.Tensor) {
	t.Helper()
	grad, err := param.EnsureGrad()
	if err != nil {
		t.Fatalf("failed to allocate gradient: %v", err)
	}
	data := grad.Data.([]float32)
	for i := range data {
		data[i] = 1
	}
	if err := adam.Step(); err != nil {
		t.Fatalf("Step failed: %v", err)
	}
}

// TestResetMomentsAt tests zeroing moment rows at selected indices
func TestResetMomentsAt(t *testing.T) {
	param := newTestParam(t, []int{3, 2}, []float32{1, 1, 2, 2, 3, 3})
	adam, err := NewAdam(DefaultAdamConfig(), []ParamGroup{
		{Name: "w", Param: param, LR: 0.1},
	})
	if err != nil {
		t.Fatalf("NewAdam failed: %v", err)
	}
	stepOnce(t, adam, param)

	st, ok := adam.StateFor(param)
	if !ok {
		t.Fatal("Expected state after stepping")
	}
	stepBefore := st.Step

	indices, _ := tensor.NewTensor([]int{2}, tensor.Int32, tensor.CPU, []int32{0, 2})
	if err := adam.ResetMomentsAt(param, indices); err != nil {
		t.Fatalf("ResetMomentsAt failed: %v", err)
	}

	expAvg := st.ExpAvg.Data.([]float32)
	expAvgSq := st.ExpAvgSq.Data.([]float32)
	for _, col := range []int{0, 1, 4, 5} {
		if expAvg[col] != 0 || expAvgSq[col] != 0 {
			t.Errorf("Expected zeroed moments at flat index %d, got %f and %f", col, expAvg[col], expAvgSq[col])
		}
	}
	for _, col := range []int{2, 3} {
		if expAvg[col] == 0 {
			t.Errorf("Expected untouched first moment at flat index %d", col)
		}
	}
	if st.Step != stepBefore {
		t.Errorf("Expected step count %d preserved, got %d", stepBefore, st.Step)
	}

	t.Log("Moment reset test passed")
}

// TestResetMomentsAtWithoutState tests the no-op before the first step
func TestResetMomentsAtWithoutState(t *testing.T) {
	param := newTestParam(t, []int{3, 2}, make([]float32, 6))
	adam, err := NewAdam(DefaultAdamConfig(), []ParamGroup{
		{Name: "w", Param: param, LR: 0.1},
	})
	if err != nil {
		t.Fatalf("NewAdam failed: %v", err)
	}

	indices, _ := tensor.NewTensor([]int{1}, tensor.Int32, tensor.CPU, []int32{0})
	if err := adam.ResetMomentsAt(param, indices); err != nil {
		t.Errorf("ResetMomentsAt before any step should be a no-op, got %v", err)
	}
	if _, ok := adam.StateFor(param); ok {
		t.Error("ResetMomentsAt must not create state")
	}
}

// TestExtendParam tests growing a parameter with zero-padded moments
func TestExtendParam(t *testing.T) {
	oldParam := newTestParam(t, []int{2, 3}, []float32{1, 1, 1, 2, 2, 2})
	adam, err := NewAdam(DefaultAdamConfig(), []ParamGroup{
		{Name: "w", Param: oldParam, LR: 0.1},
	})
	if err != nil {
		t.Fatalf("NewAdam failed: %v", err)
	}
	stepOnce(t, adam, oldParam)

	oldState, _ := adam.StateFor(oldParam)
	oldFirstMoment := append([]float32(nil), oldState.ExpAvg.Data.([]float32)...)
	stepBefore := oldState.Step

	newParam := newTestParam(t, []int{4, 3}, make([]float32, 12))
	if err := adam.ExtendParam(oldParam, newParam); err != nil {
		t.Fatalf("ExtendParam failed: %v", err)
	}

	if _, ok := adam.StateFor(oldParam); ok {
		t.Error("State should no longer be keyed by the old parameter")
	}

	st, ok := adam.StateFor(newParam)
	if !ok {
		t.Fatal("Expected state keyed by the new parameter")
	}
	if st.Step != stepBefore {
		t.Errorf("Expected step count %d preserved, got %d", stepBefore, st.Step)
	}
	if st.ExpAvg.Shape[0] != 4 {
		t.Errorf("Expected 4 moment rows, got %d", st.ExpAvg.Shape[0])
	}

	data := st.ExpAvg.Data.([]float32)
	for i := 0; i < 6; i++ {
		if data[i] != oldFirstMoment[i] {
			t.Errorf("Moment element %d = %f, expected %f carried over", i, data[i], oldFirstMoment[i])
		}
	}
	for i := 6; i < 12; i++ {
		if data[i] != 0 {
			t.Errorf("Padded moment element %d = %f, expected 0", i, data[i])
		}
	}

	group, _ := adam.Group(0)
	if group.Param != newParam {
		t.Error("Group should own the new parameter after ExtendParam")
	}

	t.Log("Parameter extension test passed")
}

// TestExtendParamWithoutState tests swapping a parameter that never stepped
func TestExtendParamWithoutState(t *testing.T) {
	oldParam := newTestParam(t, []int{2, 3}, make([]float32, 6))
	adam, err := NewAdam(DefaultAdamConfig(), []ParamGroup{
		{Name: "w", Param: oldParam, LR: 0.1},
	})
	if err != nil {
		t.Fatalf("NewAdam failed: %v", err)
	}

	newParam := newTestParam(t, []int{5, 3}, make([]float32, 15))
	if err := adam.ExtendParam(oldParam, newParam); err != nil {
		t.Fatalf("ExtendParam failed: %v", err)
	}

	group, _ := adam.Group(0)
	if group.Param != newParam {
		t.Error("Group should own the new parameter")
	}
	if _, ok := adam.StateFor(newParam); ok {
		t.Error("No state should be created for a parameter that never stepped")
	}
}

// TestExtendParamValidation tests rejection of bad replacements
func TestExtendParamValidation(t *testing.T) {
	param := newTestParam(t, []int{4, 3}, make([]float32, 12))
	adam, err := NewAdam(DefaultAdamConfig(), []ParamGroup{
		{Name: "w", Param: param, LR: 0.1},
	})
	if err != nil {
		t.Fatalf("NewAdam failed: %v", err)
	}

	t.Run("Unknown parameter", func(t *testing.T) {
		stranger := newTestParam(t, []int{4, 3}, make([]float32, 12))
		replacement := newTestParam(t, []int{5, 3}, make([]float32, 15))
		if err := adam.ExtendParam(stranger, replacement); err == nil {
			t.Error("Expected error for a tensor no group owns")
		}
	})

	t.Run("Shrinking replacement", func(t *testing.T) {
		smaller := newTestParam(t, []int{2, 3}, make([]float32, 6))
		if err := adam.ExtendParam(param, smaller); err == nil {
			t.Error("Expected error for a replacement with fewer rows")
		}
	})

	t.Run("Changed trailing dimensions", func(t *testing.T) {
		wrong := newTestParam(t, []int{5, 4}, make([]float32, 20))
		if err := adam.ExtendParam(param, wrong); err == nil {
			t.Error("Expected error for changed trailing dimensions")
		}
	})

	t.Run("Replacement without gradient requirement", func(t *testing.T) {
		frozen, _ := tensor.NewTensor([]int{5, 3}, tensor.Float32, tensor.CPU)
		if err := adam.ExtendParam(param, frozen); err == nil {
			t.Error("Expected error for replacement without gradient requirement")
		}
	})
}
