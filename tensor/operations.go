package tensor

import (
	"fmt"
)

func checkCompatibility(t1, t2 *Tensor) error {
	if t1.DType != t2.DType {
		return fmt.Errorf("tensors must have same dtype: %s vs %s", t1.DType, t2.DType)
	}
	if t1.Device != t2.Device {
		return fmt.Errorf("tensors must be on same device: %s vs %s", t1.Device, t2.Device)
	}
	return nil
}

func checkShapesCompatible(shape1, shape2 []int) ([]int, error) {
	if len(shape1) == 0 || len(shape2) == 0 {
		return nil, fmt.Errorf("cannot operate on empty tensors")
	}

	if len(shape1) != len(shape2) {
		return nil, fmt.Errorf("tensor shapes must have same number of dimensions: %v vs %v", shape1, shape2)
	}

	for i := range shape1 {
		if shape1[i] != shape2[i] {
			return nil, fmt.Errorf("tensor shapes must match: %v vs %v", shape1, shape2)
		}
	}

	return shape1, nil
}

func Add(t1, t2 *Tensor) (*Tensor, error) {
	return elementwiseBinary(t1, t2, "Add",
		func(a, b float32) float32 { return a + b },
		func(a, b int32) int32 { return a + b })
}

func Sub(t1, t2 *Tensor) (*Tensor, error) {
	return elementwiseBinary(t1, t2, "Sub",
		func(a, b float32) float32 { return a - b },
		func(a, b int32) int32 { return a - b })
}

func Mul(t1, t2 *Tensor) (*Tensor, error) {
	return elementwiseBinary(t1, t2, "Mul",
		func(a, b float32) float32 { return a * b },
		func(a, b int32) int32 { return a * b })
}

func Div(t1, t2 *Tensor) (*Tensor, error) {
	return elementwiseBinary(t1, t2, "Div",
		func(a, b float32) float32 { return a / b },
		func(a, b int32) int32 { return a / b })
}

func elementwiseBinary(t1, t2 *Tensor, name string, f32 func(a, b float32) float32, i32 func(a, b int32) int32) (*Tensor, error) {
	if err := checkCompatibility(t1, t2); err != nil {
		return nil, err
	}

	outputShape, err := checkShapesCompatible(t1.Shape, t2.Shape)
	if err != nil {
		return nil, err
	}

	result, err := Zeros(outputShape, t1.DType, t1.Device)
	if err != nil {
		return nil, err
	}

	switch t1.DType {
	case Float32:
		data1 := t1.Data.([]float32)
		data2 := t2.Data.([]float32)
		resultData := result.Data.([]float32)

		for i := 0; i < t1.NumElems; i++ {
			resultData[i] = f32(data1[i], data2[i])
		}
	case Int32:
		data1 := t1.Data.([]int32)
		data2 := t2.Data.([]int32)
		resultData := result.Data.([]int32)

		for i := 0; i < t1.NumElems; i++ {
			resultData[i] = i32(data1[i], data2[i])
		}
	default:
		return nil, fmt.Errorf("unsupported dtype for %s: %s", name, t1.DType)
	}

	return result, nil
}

func AddScalar(t *Tensor, scalar float32) (*Tensor, error) {
	return elementwiseUnary(t, "AddScalar", func(v float32) float32 { return v + scalar })
}

func SubScalar(t *Tensor, scalar float32) (*Tensor, error) {
	return elementwiseUnary(t, "SubScalar", func(v float32) float32 { return v - scalar })
}

// ScalarSub computes scalar - t elementwise.
func ScalarSub(scalar float32, t *Tensor) (*Tensor, error) {
	return elementwiseUnary(t, "ScalarSub", func(v float32) float32 { return scalar - v })
}

func MulScalar(t *Tensor, scalar float32) (*Tensor, error) {
	return elementwiseUnary(t, "MulScalar", func(v float32) float32 { return v * scalar })
}

func DivScalar(t *Tensor, scalar float32) (*Tensor, error) {
	if scalar == 0 {
		return nil, fmt.Errorf("division by zero scalar")
	}
	return elementwiseUnary(t, "DivScalar", func(v float32) float32 { return v / scalar })
}

func Neg(t *Tensor) (*Tensor, error) {
	return elementwiseUnary(t, "Neg", func(v float32) float32 { return -v })
}

func elementwiseUnary(t *Tensor, name string, f32 func(v float32) float32) (*Tensor, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("unsupported dtype for %s: %s", name, t.DType)
	}

	result, err := Zeros(t.Shape, t.DType, t.Device)
	if err != nil {
		return nil, err
	}

	data := t.Data.([]float32)
	resultData := result.Data.([]float32)
	for i := 0; i < t.NumElems; i++ {
		resultData[i] = f32(data[i])
	}

	return result, nil
}

// Maximum returns the elementwise maximum of two tensors.
func Maximum(t1, t2 *Tensor) (*Tensor, error) {
	return elementwiseBinary(t1, t2, "Maximum",
		func(a, b float32) float32 {
			if a > b {
				return a
			}
			return b
		},
		func(a, b int32) int32 {
			if a > b {
				return a
			}
			return b
		})
}

// Sum reduces over all elements and returns a scalar-shaped tensor.
func Sum(t *Tensor) (*Tensor, error) {
	switch t.DType {
	case Float32:
		data := t.Data.([]float32)
		var sum float64
		for _, v := range data {
			sum += float64(v)
		}
		return NewTensor([]int{1}, Float32, t.Device, []float32{float32(sum)})
	case Int32:
		data := t.Data.([]int32)
		var sum int32
		for _, v := range data {
			sum += v
		}
		return NewTensor([]int{1}, Int32, t.Device, []int32{sum})
	default:
		return nil, fmt.Errorf("unsupported dtype for Sum: %s", t.DType)
	}
}

// Mean reduces over all elements and returns a scalar-shaped Float32 tensor.
func Mean(t *Tensor) (*Tensor, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("unsupported dtype for Mean: %s", t.DType)
	}
	if t.NumElems == 0 {
		return nil, fmt.Errorf("cannot take mean of empty tensor")
	}
	data := t.Data.([]float32)
	var sum float64
	for _, v := range data {
		sum += float64(v)
	}
	return NewTensor([]int{1}, Float32, t.Device, []float32{float32(sum / float64(t.NumElems))})
}

// CountNonzero returns the number of nonzero elements.
func CountNonzero(t *Tensor) (int, error) {
	count := 0
	switch t.DType {
	case Float32:
		for _, v := range t.Data.([]float32) {
			if v != 0 {
				count++
			}
		}
	case Int32:
		for _, v := range t.Data.([]int32) {
			if v != 0 {
				count++
			}
		}
	default:
		return 0, fmt.Errorf("unsupported dtype for CountNonzero: %s", t.DType)
	}
	return count, nil
}

// Max returns the largest element of a Float32 tensor.
func Max(t *Tensor) (float32, error) {
	if t.DType != Float32 {
		return 0, fmt.Errorf("unsupported dtype for Max: %s", t.DType)
	}
	if t.NumElems == 0 {
		return 0, fmt.Errorf("cannot take max of empty tensor")
	}
	data := t.Data.([]float32)
	max := data[0]
	for _, v := range data[1:] {
		if v > max {
			max = v
		}
	}
	return max, nil
}
