package tensor

import (
	"fmt"
)

// Reshape returns a copy of the tensor with a new shape. The total number of
// elements must be unchanged.
func (t *Tensor) Reshape(newShape []int) (*Tensor, error) {
	if err := validateShape(newShape); err != nil {
		return nil, err
	}
	if calculateNumElements(newShape) != t.NumElems {
		return nil, fmt.Errorf("cannot reshape tensor of %d elements to shape %v", t.NumElems, newShape)
	}

	result, err := NewTensor(newShape, t.DType, t.Device)
	if err != nil {
		return nil, err
	}
	switch t.DType {
	case Float32:
		copy(result.Data.([]float32), t.Data.([]float32))
	case Int32:
		copy(result.Data.([]int32), t.Data.([]int32))
	default:
		return nil, fmt.Errorf("unsupported dtype for Reshape: %s", t.DType)
	}
	return result, nil
}

// Unsqueeze inserts a dimension of size 1 at the given position.
func (t *Tensor) Unsqueeze(dim int) (*Tensor, error) {
	if dim < 0 || dim > len(t.Shape) {
		return nil, fmt.Errorf("invalid dimension %d for unsqueeze of shape %v", dim, t.Shape)
	}
	newShape := make([]int, 0, len(t.Shape)+1)
	newShape = append(newShape, t.Shape[:dim]...)
	newShape = append(newShape, 1)
	newShape = append(newShape, t.Shape[dim:]...)
	return t.Reshape(newShape)
}

// Squeeze removes a dimension of size 1 at the given position.
func (t *Tensor) Squeeze(dim int) (*Tensor, error) {
	if dim < 0 || dim >= len(t.Shape) {
		return nil, fmt.Errorf("invalid dimension %d for squeeze of shape %v", dim, t.Shape)
	}
	if t.Shape[dim] != 1 {
		return nil, fmt.Errorf("cannot squeeze dimension %d of size %d in shape %v", dim, t.Shape[dim], t.Shape)
	}
	newShape := make([]int, 0, len(t.Shape)-1)
	newShape = append(newShape, t.Shape[:dim]...)
	newShape = append(newShape, t.Shape[dim+1:]...)
	return t.Reshape(newShape)
}

// Bmm performs batched matrix multiplication: [B, M, K] x [B, K, N] yields
// [B, M, N]. Both inputs must be Float32.
func Bmm(a, b *Tensor) (*Tensor, error) {
	if a.DType != Float32 || b.DType != Float32 {
		return nil, fmt.Errorf("Bmm requires Float32 tensors, got %s and %s", a.DType, b.DType)
	}
	if len(a.Shape) != 3 || len(b.Shape) != 3 {
		return nil, fmt.Errorf("Bmm requires 3-dimensional tensors, got shapes %v and %v", a.Shape, b.Shape)
	}
	if a.Shape[0] != b.Shape[0] {
		return nil, fmt.Errorf("Bmm batch size mismatch: %d vs %d", a.Shape[0], b.Shape[0])
	}
	if a.Shape[2] != b.Shape[1] {
		return nil, fmt.Errorf("Bmm inner dimension mismatch: %v x %v", a.Shape, b.Shape)
	}

	batch, m, k := a.Shape[0], a.Shape[1], a.Shape[2]
	n := b.Shape[2]

	result, err := NewTensor([]int{batch, m, n}, Float32, a.Device)
	if err != nil {
		return nil, err
	}

	aData := a.Data.([]float32)
	bData := b.Data.([]float32)
	cData := result.Data.([]float32)

	for bi := 0; bi < batch; bi++ {
		aOff := bi * m * k
		bOff := bi * k * n
		cOff := bi * m * n
		for i := 0; i < m; i++ {
			for j := 0; j < n; j++ {
				var sum float32
				for kk := 0; kk < k; kk++ {
					sum += aData[aOff+i*k+kk] * bData[bOff+kk*n+j]
				}
				cData[cOff+i*n+j] = sum
			}
		}
	}
	return result, nil
}
