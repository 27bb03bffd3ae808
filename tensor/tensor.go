package tensor

import (
	"fmt"
)

type DType int

const (
	Float32 DType = iota
	Int32
)

func (d DType) String() string {
	switch d {
	case Float32:
		return "Float32"
	case Int32:
		return "Int32"
	default:
		return "Unknown"
	}
}

type DeviceType int

const (
	CPU DeviceType = iota
	GPU
)

func (d DeviceType) String() string {
	switch d {
	case CPU:
		return "CPU"
	case GPU:
		return "GPU"
	default:
		return "Unknown"
	}
}

// Tensor is a dense row-major n-dimensional array. Gradients are plain
// companion tensors deposited by the caller after its backward pass; there is
// no autodiff graph in this module.
type Tensor struct {
	Shape        []int
	Strides      []int
	DType        DType
	Device       DeviceType
	Data         interface{}
	NumElems     int
	requiresGrad bool
	grad         *Tensor
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(shape=%v, dtype=%s, device=%s, elements=%d)",
		t.Shape, t.DType, t.Device, t.NumElems)
}

func (t *Tensor) RequiresGrad() bool {
	return t.requiresGrad
}

func (t *Tensor) SetRequiresGrad(requires bool) {
	t.requiresGrad = requires
}

func (t *Tensor) Grad() *Tensor {
	return t.grad
}

// EnsureGrad returns the gradient tensor, allocating a zero-filled one on
// first use. Callers write gradient values directly into its data slice.
func (t *Tensor) EnsureGrad() (*Tensor, error) {
	if !t.requiresGrad {
		return nil, fmt.Errorf("tensor does not require gradients")
	}
	if t.grad == nil {
		g, err := Zeros(t.Shape, t.DType, t.Device)
		if err != nil {
			return nil, fmt.Errorf("failed to allocate gradient: %v", err)
		}
		t.grad = g
	}
	return t.grad, nil
}

// SetGrad replaces the gradient tensor. The shape must match the parameter.
func (t *Tensor) SetGrad(grad *Tensor) error {
	if grad == nil {
		t.grad = nil
		return nil
	}
	if _, err := checkShapesCompatible(t.Shape, grad.Shape); err != nil {
		return fmt.Errorf("gradient shape mismatch: %v", err)
	}
	t.grad = grad
	return nil
}

func calculateStrides(shape []int) []int {
	if len(shape) == 0 {
		return []int{}
	}

	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

func calculateNumElements(shape []int) int {
	if len(shape) == 0 {
		return 0
	}

	elements := 1
	for _, dim := range shape {
		elements *= dim
	}
	return elements
}

// validateShape accepts zero-size dimensions: index selections and nonzero
// scans can legitimately produce tensors with no rows.
func validateShape(shape []int) error {
	for i, dim := range shape {
		if dim < 0 {
			return fmt.Errorf("invalid shape: dimension %d has size %d, must be non-negative", i, dim)
		}
	}
	return nil
}

// rowSize returns the number of elements in one row along the leading
// dimension, i.e. the product of all trailing dimensions.
func rowSize(shape []int) int {
	size := 1
	for _, dim := range shape[1:] {
		size *= dim
	}
	return size
}
