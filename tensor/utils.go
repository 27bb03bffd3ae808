package tensor

import (
	"fmt"
)

// Clone creates a deep copy of the tensor. Gradient state is not copied.
func (t *Tensor) Clone() (*Tensor, error) {
	clone, err := NewTensor(t.Shape, t.DType, t.Device)
	if err != nil {
		return nil, fmt.Errorf("failed to clone tensor: %v", err)
	}
	switch t.DType {
	case Float32:
		copy(clone.Data.([]float32), t.Data.([]float32))
	case Int32:
		copy(clone.Data.([]int32), t.Data.([]int32))
	default:
		return nil, fmt.Errorf("unsupported dtype for Clone: %s", t.DType)
	}
	return clone, nil
}

// Numel returns the total number of elements.
func (t *Tensor) Numel() int {
	return t.NumElems
}

// Dim returns the number of dimensions.
func (t *Tensor) Dim() int {
	return len(t.Shape)
}

// Size returns the length of the given dimension.
func (t *Tensor) Size(dim int) (int, error) {
	if dim < 0 || dim >= len(t.Shape) {
		return 0, fmt.Errorf("dimension %d out of range for shape %v", dim, t.Shape)
	}
	return t.Shape[dim], nil
}

// flatIndex converts multi-dimensional indices to a flat offset.
func (t *Tensor) flatIndex(indices []int) (int, error) {
	if len(indices) != len(t.Shape) {
		return 0, fmt.Errorf("expected %d indices for shape %v, got %d", len(t.Shape), t.Shape, len(indices))
	}
	flat := 0
	for i, idx := range indices {
		if idx < 0 || idx >= t.Shape[i] {
			return 0, fmt.Errorf("index %d out of range for dimension %d of shape %v", idx, i, t.Shape)
		}
		flat += idx * t.Strides[i]
	}
	return flat, nil
}

// At returns the element at the given indices as a float32. Int32 tensors
// are converted.
func (t *Tensor) At(indices ...int) (float32, error) {
	flat, err := t.flatIndex(indices)
	if err != nil {
		return 0, err
	}
	switch t.DType {
	case Float32:
		return t.Data.([]float32)[flat], nil
	case Int32:
		return float32(t.Data.([]int32)[flat]), nil
	default:
		return 0, fmt.Errorf("unsupported dtype for At: %s", t.DType)
	}
}

// SetAt writes a float32 value at the given indices.
func (t *Tensor) SetAt(value float32, indices ...int) error {
	flat, err := t.flatIndex(indices)
	if err != nil {
		return err
	}
	switch t.DType {
	case Float32:
		t.Data.([]float32)[flat] = value
	case Int32:
		t.Data.([]int32)[flat] = int32(value)
	default:
		return fmt.Errorf("unsupported dtype for SetAt: %s", t.DType)
	}
	return nil
}

// Item returns the value of a single-element tensor.
func (t *Tensor) Item() (float32, error) {
	if t.NumElems != 1 {
		return 0, fmt.Errorf("Item requires a single-element tensor, got %d elements", t.NumElems)
	}
	switch t.DType {
	case Float32:
		return t.Data.([]float32)[0], nil
	case Int32:
		return float32(t.Data.([]int32)[0]), nil
	default:
		return 0, fmt.Errorf("unsupported dtype for Item: %s", t.DType)
	}
}

// Equal reports whether two tensors have the same shape, dtype, and
// elementwise-identical data.
func (t *Tensor) Equal(other *Tensor) bool {
	if other == nil || t.DType != other.DType || len(t.Shape) != len(other.Shape) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != other.Shape[i] {
			return false
		}
	}
	switch t.DType {
	case Float32:
		a := t.Data.([]float32)
		b := other.Data.([]float32)
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
	case Int32:
		a := t.Data.([]int32)
		b := other.Data.([]int32)
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
	default:
		return false
	}
	return true
}

// ZeroGrad resets the gradient to zero if one has been allocated.
func (t *Tensor) ZeroGrad() {
	if t.grad == nil {
		return
	}
	switch data := t.grad.Data.(type) {
	case []float32:
		for i := range data {
			data[i] = 0
		}
	case []int32:
		for i := range data {
			data[i] = 0
		}
	}
}
