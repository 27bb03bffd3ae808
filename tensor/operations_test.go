package tensor

import (
	"math"
	"reflect"
	"testing"
)

func TestCheckCompatibility(t *testing.T) {
	t1 := &Tensor{DType: Float32, Device: CPU}
	t2 := &Tensor{DType: Float32, Device: CPU}
	t3 := &Tensor{DType: Int32, Device: CPU}
	t4 := &Tensor{DType: Float32, Device: GPU}

	if err := checkCompatibility(t1, t2); err != nil {
		t.Errorf("Expected no error for compatible tensors, got %v", err)
	}
	if err := checkCompatibility(t1, t3); err == nil {
		t.Error("Expected error for different dtypes")
	}
	if err := checkCompatibility(t1, t4); err == nil {
		t.Error("Expected error for different devices")
	}
}

func TestCheckShapesCompatible(t *testing.T) {
	t.Run("Compatible shapes", func(t *testing.T) {
		result, err := checkShapesCompatible([]int{2, 3}, []int{2, 3})
		if err != nil {
			t.Errorf("Expected no error, got %v", err)
		}
		if !reflect.DeepEqual(result, []int{2, 3}) {
			t.Errorf("Result = %v, expected [2 3]", result)
		}
	})

	t.Run("Different shapes", func(t *testing.T) {
		if _, err := checkShapesCompatible([]int{2, 3}, []int{3, 2}); err == nil {
			t.Error("Expected error for different shapes")
		}
	})

	t.Run("Different dimensions", func(t *testing.T) {
		if _, err := checkShapesCompatible([]int{2, 3}, []int{2, 3, 4}); err == nil {
			t.Error("Expected error for different number of dimensions")
		}
	})
}

func TestElementwiseOps(t *testing.T) {
	t.Run("Float32 arithmetic", func(t *testing.T) {
		a, _ := NewTensor([]int{2, 2}, Float32, CPU, []float32{1, 2, 3, 4})
		b, _ := NewTensor([]int{2, 2}, Float32, CPU, []float32{5, 6, 7, 8})

		tests := []struct {
			name     string
			op       func(t1, t2 *Tensor) (*Tensor, error)
			expected []float32
		}{
			{"Add", Add, []float32{6, 8, 10, 12}},
			{"Sub", Sub, []float32{-4, -4, -4, -4}},
			{"Mul", Mul, []float32{5, 12, 21, 32}},
			{"Div", Div, []float32{0.2, 2.0 / 6.0, 3.0 / 7.0, 0.5}},
		}

		for _, test := range tests {
			result, err := test.op(a, b)
			if err != nil {
				t.Fatalf("%s failed: %v", test.name, err)
			}
			data := result.Data.([]float32)
			for i := range data {
				if math.Abs(float64(data[i]-test.expected[i])) > 1e-6 {
					t.Errorf("%s element %d = %f, expected %f", test.name, i, data[i], test.expected[i])
				}
			}
		}
	})

	t.Run("Int32 arithmetic", func(t *testing.T) {
		a, _ := NewTensor([]int{3}, Int32, CPU, []int32{10, 20, 30})
		b, _ := NewTensor([]int{3}, Int32, CPU, []int32{1, 2, 3})

		result, err := Add(a, b)
		if err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		if !reflect.DeepEqual(result.Data.([]int32), []int32{11, 22, 33}) {
			t.Errorf("Result = %v, expected [11 22 33]", result.Data)
		}
	})

	t.Run("Incompatible dtypes", func(t *testing.T) {
		a, _ := NewTensor([]int{2}, Float32, CPU, []float32{1, 2})
		b, _ := NewTensor([]int{2}, Int32, CPU, []int32{1, 2})
		if _, err := Add(a, b); err == nil {
			t.Error("Expected error for mixed dtypes")
		}
	})

	t.Run("Mismatched shapes", func(t *testing.T) {
		a, _ := NewTensor([]int{2}, Float32, CPU, []float32{1, 2})
		b, _ := NewTensor([]int{3}, Float32, CPU, []float32{1, 2, 3})
		if _, err := Mul(a, b); err == nil {
			t.Error("Expected error for mismatched shapes")
		}
	})
}

func TestScalarOps(t *testing.T) {
	a, _ := NewTensor([]int{4}, Float32, CPU, []float32{1, 2, 3, 4})

	tests := []struct {
		name     string
		result   func() (*Tensor, error)
		expected []float32
	}{
		{"AddScalar", func() (*Tensor, error) { return AddScalar(a, 10) }, []float32{11, 12, 13, 14}},
		{"SubScalar", func() (*Tensor, error) { return SubScalar(a, 1) }, []float32{0, 1, 2, 3}},
		{"ScalarSub", func() (*Tensor, error) { return ScalarSub(1, a) }, []float32{0, -1, -2, -3}},
		{"MulScalar", func() (*Tensor, error) { return MulScalar(a, 2) }, []float32{2, 4, 6, 8}},
		{"DivScalar", func() (*Tensor, error) { return DivScalar(a, 2) }, []float32{0.5, 1, 1.5, 2}},
		{"Neg", func() (*Tensor, error) { return Neg(a) }, []float32{-1, -2, -3, -4}},
	}

	for _, test := range tests {
		result, err := test.result()
		if err != nil {
			t.Fatalf("%s failed: %v", test.name, err)
		}
		if !reflect.DeepEqual(result.Data.([]float32), test.expected) {
			t.Errorf("%s = %v, expected %v", test.name, result.Data, test.expected)
		}
	}

	if _, err := DivScalar(a, 0); err == nil {
		t.Error("Expected error for division by zero scalar")
	}

	b, _ := NewTensor([]int{2}, Int32, CPU, []int32{1, 2})
	if _, err := AddScalar(b, 1); err == nil {
		t.Error("Expected error for scalar op on Int32 tensor")
	}
}

func TestMaximum(t *testing.T) {
	a, _ := NewTensor([]int{4}, Float32, CPU, []float32{1, 5, -2, 0})
	b, _ := NewTensor([]int{4}, Float32, CPU, []float32{3, 2, -7, 0})

	result, err := Maximum(a, b)
	if err != nil {
		t.Fatalf("Maximum failed: %v", err)
	}
	expected := []float32{3, 5, -2, 0}
	if !reflect.DeepEqual(result.Data.([]float32), expected) {
		t.Errorf("Maximum = %v, expected %v", result.Data, expected)
	}
}

func TestCountNonzero(t *testing.T) {
	a, _ := NewTensor([]int{5}, Float32, CPU, []float32{0, 1, 0, 0.5, -3})
	count, err := CountNonzero(a)
	if err != nil {
		t.Fatalf("CountNonzero failed: %v", err)
	}
	if count != 3 {
		t.Errorf("CountNonzero = %d, expected 3", count)
	}

	b, _ := NewTensor([]int{3}, Int32, CPU, []int32{0, 7, 0})
	count, err = CountNonzero(b)
	if err != nil {
		t.Fatalf("CountNonzero failed: %v", err)
	}
	if count != 1 {
		t.Errorf("CountNonzero = %d, expected 1", count)
	}
}

func TestReductions(t *testing.T) {
	t.Run("Sum Float32", func(t *testing.T) {
		a, _ := NewTensor([]int{2, 2}, Float32, CPU, []float32{1, 2, 3, 4})
		result, err := Sum(a)
		if err != nil {
			t.Fatalf("Sum failed: %v", err)
		}
		v, _ := result.Item()
		if v != 10 {
			t.Errorf("Sum = %f, expected 10", v)
		}
	})

	t.Run("Sum Int32", func(t *testing.T) {
		a, _ := NewTensor([]int{3}, Int32, CPU, []int32{1, 2, 3})
		result, err := Sum(a)
		if err != nil {
			t.Fatalf("Sum failed: %v", err)
		}
		v, _ := result.Item()
		if v != 6 {
			t.Errorf("Sum = %f, expected 6", v)
		}
	})

	t.Run("Mean", func(t *testing.T) {
		a, _ := NewTensor([]int{4}, Float32, CPU, []float32{1, 2, 3, 4})
		result, err := Mean(a)
		if err != nil {
			t.Fatalf("Mean failed: %v", err)
		}
		v, _ := result.Item()
		if v != 2.5 {
			t.Errorf("Mean = %f, expected 2.5", v)
		}
	})

	t.Run("Max", func(t *testing.T) {
		a, _ := NewTensor([]int{4}, Float32, CPU, []float32{3, 1, 4, 2})
		v, err := Max(a)
		if err != nil {
			t.Fatalf("Max failed: %v", err)
		}
		if v != 4 {
			t.Errorf("Max = %f, expected 4", v)
		}
	})

	t.Run("Empty tensor errors", func(t *testing.T) {
		a, _ := NewTensor([]int{0}, Float32, CPU)
		if _, err := Mean(a); err == nil {
			t.Error("Expected error for mean of empty tensor")
		}
		if _, err := Max(a); err == nil {
			t.Error("Expected error for max of empty tensor")
		}
	})
}
