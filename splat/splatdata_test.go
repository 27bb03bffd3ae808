package splat

import (
	"math/rand"
	"testing"

	"github.com/chewxy/math32"

	"github.com/shadygm/go-splat/tensor"
)

// newTestModel builds a deterministic synthetic model for tests.
func newTestModel(t *testing.T, n, shDegree int) *SplatData {
	t.Helper()
	rng := rand.New(rand.NewSource(42))
	model, err := NewRandomSplatData(n, shDegree, 2.0, rng)
	if err != nil {
		t.Fatalf("failed to create test model: %v", err)
	}
	return model
}

// TestNewRandomSplatDataShapes tests the synthetic initializer's tensor layout
func TestNewRandomSplatDataShapes(t *testing.T) {
	model := newTestModel(t, 16, 2)

	checks := []struct {
		name  string
		got   []int
		want  []int
		dtype tensor.DType
	}{
		{"means", model.Means.Shape, []int{16, 3}, model.Means.DType},
		{"sh0", model.Sh0.Shape, []int{16, 1, 3}, model.Sh0.DType},
		{"shN", model.ShN.Shape, []int{16, 8, 3}, model.ShN.DType},
		{"scalingRaw", model.ScalingRaw.Shape, []int{16, 3}, model.ScalingRaw.DType},
		{"rotationRaw", model.RotationRaw.Shape, []int{16, 4}, model.RotationRaw.DType},
		{"opacityRaw", model.OpacityRaw.Shape, []int{16, 1}, model.OpacityRaw.DType},
	}
	for _, c := range checks {
		if len(c.got) != len(c.want) {
			t.Fatalf("Expected %s shape %v, got %v", c.name, c.want, c.got)
		}
		for i := range c.want {
			if c.got[i] != c.want[i] {
				t.Errorf("Expected %s shape %v, got %v", c.name, c.want, c.got)
				break
			}
		}
		if c.dtype != tensor.Float32 {
			t.Errorf("Expected %s to be Float32, got %s", c.name, c.dtype)
		}
	}

	if model.Size() != 16 {
		t.Errorf("Expected size 16, got %d", model.Size())
	}
	if model.SceneScale() != 2.0 {
		t.Errorf("Expected scene scale 2.0, got %f", model.SceneScale())
	}
	if model.ActiveSHDegree() != 0 {
		t.Errorf("Expected active SH degree 0 at start, got %d", model.ActiveSHDegree())
	}
	if model.MaxSHDegree() != 2 {
		t.Errorf("Expected max SH degree 2, got %d", model.MaxSHDegree())
	}
}

// TestNewRandomSplatDataValidation tests rejection of invalid arguments
func TestNewRandomSplatDataValidation(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	if _, err := NewRandomSplatData(0, 2, 1.0, rng); err == nil {
		t.Error("Expected error for zero splats")
	}
	if _, err := NewRandomSplatData(8, -1, 1.0, rng); err == nil {
		t.Error("Expected error for negative SH degree")
	}
	if _, err := NewRandomSplatData(8, 2, 0, rng); err == nil {
		t.Error("Expected error for non-positive scene scale")
	}
	if _, err := NewRandomSplatData(8, 2, 1.0, nil); err == nil {
		t.Error("Expected error for nil rng")
	}
}

// TestNewSplatDataValidation tests the field-alignment and shape checks
func TestNewSplatDataValidation(t *testing.T) {
	mk := func(shape ...int) *tensor.Tensor {
		tt, err := tensor.Zeros(shape, tensor.Float32, tensor.CPU)
		if err != nil {
			t.Fatalf("failed to create tensor: %v", err)
		}
		return tt
	}

	means := mk(4, 3)
	sh0 := mk(4, 1, 3)
	shN := mk(4, 8, 3)
	scaling := mk(4, 3)
	rotation := mk(4, 4)
	opacity := mk(4, 1)

	if _, err := NewSplatData(means, sh0, shN, scaling, rotation, opacity, 1.0); err != nil {
		t.Fatalf("Expected valid model, got error: %v", err)
	}

	t.Run("Mismatched leading dimension", func(t *testing.T) {
		if _, err := NewSplatData(mk(5, 3), sh0, shN, scaling, rotation, opacity, 1.0); err == nil {
			t.Error("Expected error for mismatched row counts")
		}
	})

	t.Run("Wrong trailing shape", func(t *testing.T) {
		if _, err := NewSplatData(means, sh0, shN, scaling, mk(4, 3), opacity, 1.0); err == nil {
			t.Error("Expected error for rotation with 3 components")
		}
	})

	t.Run("Incomplete SH band", func(t *testing.T) {
		if _, err := NewSplatData(means, sh0, mk(4, 5, 3), scaling, rotation, opacity, 1.0); err == nil {
			t.Error("Expected error for SH coefficient count 5")
		}
	})

	t.Run("Nil field", func(t *testing.T) {
		if _, err := NewSplatData(means, nil, shN, scaling, rotation, opacity, 1.0); err == nil {
			t.Error("Expected error for nil sh0")
		}
	})

	t.Run("Wrong dtype", func(t *testing.T) {
		intMeans, err := tensor.Zeros([]int{4, 3}, tensor.Int32, tensor.CPU)
		if err != nil {
			t.Fatalf("failed to create tensor: %v", err)
		}
		if _, err := NewSplatData(intMeans, sh0, shN, scaling, rotation, opacity, 1.0); err == nil {
			t.Error("Expected error for Int32 means")
		}
	})

	t.Run("Non-positive scene scale", func(t *testing.T) {
		if _, err := NewSplatData(means, sh0, shN, scaling, rotation, opacity, -1.0); err == nil {
			t.Error("Expected error for negative scene scale")
		}
	})
}

// TestDegreeForCoefficients tests the SH band arithmetic
func TestDegreeForCoefficients(t *testing.T) {
	valid := map[int]int{0: 0, 3: 1, 8: 2, 15: 3}
	for k, want := range valid {
		got, err := degreeForCoefficients(k)
		if err != nil {
			t.Errorf("Expected degree %d for %d coefficients, got error: %v", want, k, err)
			continue
		}
		if got != want {
			t.Errorf("Expected degree %d for %d coefficients, got %d", want, k, got)
		}
	}
	for _, k := range []int{-1, 1, 5, 9} {
		if _, err := degreeForCoefficients(k); err == nil {
			t.Errorf("Expected error for %d coefficients", k)
		}
	}
}

// TestOpacityActivation tests the sigmoid activation and squeeze
func TestOpacityActivation(t *testing.T) {
	model := newTestModel(t, 8, 1)

	opacity, err := model.Opacity()
	if err != nil {
		t.Fatalf("Opacity failed: %v", err)
	}
	if len(opacity.Shape) != 1 || opacity.Shape[0] != 8 {
		t.Fatalf("Expected opacity shape [8], got %v", opacity.Shape)
	}

	// The synthetic initializer fills opacityRaw with logit(0.1).
	data := opacity.Data.([]float32)
	for i, v := range data {
		if math32.Abs(v-0.1) > 1e-5 {
			t.Errorf("Expected opacity 0.1 at index %d, got %f", i, v)
		}
	}
}

// TestScalingActivation tests the exp activation
func TestScalingActivation(t *testing.T) {
	model := newTestModel(t, 8, 1)

	scaling, err := model.Scaling()
	if err != nil {
		t.Fatalf("Scaling failed: %v", err)
	}
	rawData := model.ScalingRaw.Data.([]float32)
	actData := scaling.Data.([]float32)
	for i := range actData {
		if actData[i] <= 0 {
			t.Errorf("Expected positive scale at index %d, got %f", i, actData[i])
		}
		want := math32.Exp(rawData[i])
		if math32.Abs(actData[i]-want) > 1e-6 {
			t.Errorf("Expected scale %f at index %d, got %f", want, i, actData[i])
		}
	}
}

// TestRotationNormalization tests quaternion normalization
func TestRotationNormalization(t *testing.T) {
	model := newTestModel(t, 3, 0)

	raw := model.RotationRaw.Data.([]float32)
	copy(raw, []float32{
		2, 0, 0, 0, // scaled identity
		1, 2, 3, 4, // arbitrary
		0, 0, 0, 0, // degenerate
	})

	rotation, err := model.Rotation()
	if err != nil {
		t.Fatalf("Rotation failed: %v", err)
	}
	data := rotation.Data.([]float32)

	if math32.Abs(data[0]-1) > 1e-6 || data[1] != 0 || data[2] != 0 || data[3] != 0 {
		t.Errorf("Expected identity quaternion, got %v", data[:4])
	}

	var norm float32
	for j := 4; j < 8; j++ {
		norm += data[j] * data[j]
	}
	if math32.Abs(norm-1) > 1e-5 {
		t.Errorf("Expected unit norm for arbitrary row, got squared norm %f", norm)
	}

	for j := 8; j < 12; j++ {
		if math32.IsNaN(data[j]) || math32.IsInf(data[j], 0) {
			t.Errorf("Expected finite values for degenerate row, got %v", data[8:12])
			break
		}
	}

	// The raw tensor must be untouched.
	if raw[0] != 2 {
		t.Error("Rotation must not modify the raw tensor in place")
	}
}

// TestIncrementSHDegree tests the band unlock cap
func TestIncrementSHDegree(t *testing.T) {
	model := newTestModel(t, 4, 2)

	degrees := []int{1, 2, 2, 2}
	for i, want := range degrees {
		model.IncrementSHDegree()
		if model.ActiveSHDegree() != want {
			t.Errorf("Expected active degree %d after %d increments, got %d", want, i+1, model.ActiveSHDegree())
		}
	}

	t.Log("SH degree increment test passed")
}
