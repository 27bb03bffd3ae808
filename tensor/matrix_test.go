package tensor

import (
	"math"
	"reflect"
	"testing"
)

func TestReshape(t *testing.T) {
	a, _ := NewTensor([]int{2, 3}, Float32, CPU, []float32{1, 2, 3, 4, 5, 6})

	reshaped, err := a.Reshape([]int{3, 2})
	if err != nil {
		t.Fatalf("Reshape failed: %v", err)
	}
	if !reflect.DeepEqual(reshaped.Shape, []int{3, 2}) {
		t.Errorf("Shape = %v, expected [3 2]", reshaped.Shape)
	}
	if !reflect.DeepEqual(reshaped.Data.([]float32), a.Data.([]float32)) {
		t.Errorf("Data = %v, expected %v", reshaped.Data, a.Data)
	}

	if _, err := a.Reshape([]int{4, 2}); err == nil {
		t.Error("Expected error for element count mismatch")
	}
}

func TestUnsqueezeSqueeze(t *testing.T) {
	a, _ := NewTensor([]int{4, 3}, Float32, CPU)

	expanded, err := a.Unsqueeze(2)
	if err != nil {
		t.Fatalf("Unsqueeze failed: %v", err)
	}
	if !reflect.DeepEqual(expanded.Shape, []int{4, 3, 1}) {
		t.Errorf("Shape = %v, expected [4 3 1]", expanded.Shape)
	}

	squeezed, err := expanded.Squeeze(2)
	if err != nil {
		t.Fatalf("Squeeze failed: %v", err)
	}
	if !reflect.DeepEqual(squeezed.Shape, []int{4, 3}) {
		t.Errorf("Shape = %v, expected [4 3]", squeezed.Shape)
	}

	if _, err := a.Unsqueeze(5); err == nil {
		t.Error("Expected error for unsqueeze position past the end")
	}
	if _, err := a.Squeeze(0); err == nil {
		t.Error("Expected error for squeezing a dimension of size 4")
	}
}

func TestBmm(t *testing.T) {
	t.Run("Batched product", func(t *testing.T) {
		// Batch 0: [[1 2], [3 4]] x [[5 6], [7 8]] = [[19 22], [43 50]]
		// Batch 1: identity x [[1 2], [3 4]] = [[1 2], [3 4]]
		a, _ := NewTensor([]int{2, 2, 2}, Float32, CPU, []float32{
			1, 2, 3, 4,
			1, 0, 0, 1,
		})
		b, _ := NewTensor([]int{2, 2, 2}, Float32, CPU, []float32{
			5, 6, 7, 8,
			1, 2, 3, 4,
		})

		result, err := Bmm(a, b)
		if err != nil {
			t.Fatalf("Bmm failed: %v", err)
		}
		expected := []float32{19, 22, 43, 50, 1, 2, 3, 4}
		data := result.Data.([]float32)
		for i := range data {
			if math.Abs(float64(data[i]-expected[i])) > 1e-6 {
				t.Errorf("Bmm element %d = %f, expected %f", i, data[i], expected[i])
			}
		}
	})

	t.Run("Matrix-vector batch", func(t *testing.T) {
		// [1, 3, 3] x [1, 3, 1]
		m, _ := NewTensor([]int{1, 3, 3}, Float32, CPU, []float32{
			2, 0, 0,
			0, 3, 0,
			0, 0, 4,
		})
		v, _ := NewTensor([]int{1, 3, 1}, Float32, CPU, []float32{1, 1, 1})

		result, err := Bmm(m, v)
		if err != nil {
			t.Fatalf("Bmm failed: %v", err)
		}
		if !reflect.DeepEqual(result.Shape, []int{1, 3, 1}) {
			t.Errorf("Shape = %v, expected [1 3 1]", result.Shape)
		}
		expected := []float32{2, 3, 4}
		if !reflect.DeepEqual(result.Data.([]float32), expected) {
			t.Errorf("Result = %v, expected %v", result.Data, expected)
		}
	})

	t.Run("Shape validation", func(t *testing.T) {
		a, _ := NewTensor([]int{2, 2, 3}, Float32, CPU)
		b, _ := NewTensor([]int{2, 2, 2}, Float32, CPU)
		if _, err := Bmm(a, b); err == nil {
			t.Error("Expected error for inner dimension mismatch")
		}

		c, _ := NewTensor([]int{3, 2, 2}, Float32, CPU)
		if _, err := Bmm(b, c); err == nil {
			t.Error("Expected error for batch size mismatch")
		}

		flat, _ := NewTensor([]int{2, 2}, Float32, CPU)
		if _, err := Bmm(flat, b); err == nil {
			t.Error("Expected error for 2-dimensional input")
		}
	})
}
