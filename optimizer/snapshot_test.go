package optimizer

import (
	"testing"

	"github.com/shadygm/go-splat/tensor"
)

// TestSnapshotRoundTrip tests capturing state and restoring it
func TestSnapshotRoundTrip(t *testing.T) {
	param := newTestParam(t, []int{2, 2}, []float32{1, 2, 3, 4})
	adam, err := NewAdam(DefaultAdamConfig(), []ParamGroup{
		{Name: "w", Param: param, LR: 0.3},
	})
	if err != nil {
		t.Fatalf("NewAdam failed: %v", err)
	}
	stepOnce(t, adam, param)

	snapshot, err := adam.GetState()
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if snapshot.Type != "Adam" {
		t.Errorf("Expected snapshot type Adam, got %s", snapshot.Type)
	}
	if len(snapshot.Groups) != 1 {
		t.Fatalf("Expected 1 group snapshot, got %d", len(snapshot.Groups))
	}
	if snapshot.Groups[0].Step != 1 {
		t.Errorf("Expected snapshot step 1, got %d", snapshot.Groups[0].Step)
	}

	// Disturb the live state, then restore.
	if err := adam.SetLR(0, 0.001); err != nil {
		t.Fatalf("SetLR failed: %v", err)
	}
	stepOnce(t, adam, param)
	stepOnce(t, adam, param)

	if err := adam.LoadState(snapshot); err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}

	lr, _ := adam.LR(0)
	if lr != 0.3 {
		t.Errorf("Expected restored learning rate 0.3, got %f", lr)
	}
	st, ok := adam.StateFor(param)
	if !ok {
		t.Fatal("Expected state after restore")
	}
	if st.Step != 1 {
		t.Errorf("Expected restored step 1, got %d", st.Step)
	}
	if !st.ExpAvg.Equal(snapshot.Groups[0].ExpAvg) {
		t.Error("Restored first moment should match the snapshot")
	}

	t.Log("Snapshot round trip test passed")
}

// TestSnapshotIsDeepCopy tests that snapshots do not alias live state
func TestSnapshotIsDeepCopy(t *testing.T) {
	param := newTestParam(t, []int{2}, []float32{1, 2})
	adam, err := NewAdam(DefaultAdamConfig(), []ParamGroup{
		{Name: "w", Param: param, LR: 0.1},
	})
	if err != nil {
		t.Fatalf("NewAdam failed: %v", err)
	}
	stepOnce(t, adam, param)

	snapshot, err := adam.GetState()
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	before := snapshot.Groups[0].ExpAvg.Data.([]float32)[0]

	stepOnce(t, adam, param)
	after := snapshot.Groups[0].ExpAvg.Data.([]float32)[0]
	if before != after {
		t.Error("Snapshot moments should not change when training continues")
	}
}

// TestSnapshotOfFreshOptimizer tests snapshots with lazily absent state
func TestSnapshotOfFreshOptimizer(t *testing.T) {
	param := newTestParam(t, []int{2}, []float32{1, 2})
	adam, err := NewAdam(DefaultAdamConfig(), []ParamGroup{
		{Name: "w", Param: param, LR: 0.1},
	})
	if err != nil {
		t.Fatalf("NewAdam failed: %v", err)
	}

	snapshot, err := adam.GetState()
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if snapshot.Groups[0].ExpAvg != nil {
		t.Error("Expected nil moments for a group that never stepped")
	}

	// A fresh snapshot restores onto a stepped optimizer by clearing state.
	stepOnce(t, adam, param)
	if err := adam.LoadState(snapshot); err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if _, ok := adam.StateFor(param); ok {
		t.Error("Expected state cleared after restoring a fresh snapshot")
	}
}

// TestLoadStateValidation tests rejection of unusable snapshots
func TestLoadStateValidation(t *testing.T) {
	param := newTestParam(t, []int{2}, []float32{1, 2})
	adam, err := NewAdam(DefaultAdamConfig(), []ParamGroup{
		{Name: "w", Param: param, LR: 0.1},
	})
	if err != nil {
		t.Fatalf("NewAdam failed: %v", err)
	}

	t.Run("Nil snapshot", func(t *testing.T) {
		if err := adam.LoadState(nil); err == nil {
			t.Error("Expected error for nil snapshot")
		}
	})

	t.Run("Wrong type", func(t *testing.T) {
		snapshot, _ := adam.GetState()
		snapshot.Type = "SGD"
		if err := adam.LoadState(snapshot); err == nil {
			t.Error("Expected error for mismatched optimizer type")
		}
	})

	t.Run("Missing group", func(t *testing.T) {
		snapshot, _ := adam.GetState()
		snapshot.Groups[0].Name = "other"
		if err := adam.LoadState(snapshot); err == nil {
			t.Error("Expected error for snapshot missing a group")
		}
	})

	t.Run("Mismatched moment shape", func(t *testing.T) {
		stepOnce(t, adam, param)
		snapshot, _ := adam.GetState()
		wrong, _ := tensor.Zeros([]int{3}, tensor.Float32, tensor.CPU)
		snapshot.Groups[0].ExpAvg = wrong
		snapshot.Groups[0].ExpAvgSq = wrong
		if err := adam.LoadState(snapshot); err == nil {
			t.Error("Expected error for moment shape mismatch")
		}
	})
}
