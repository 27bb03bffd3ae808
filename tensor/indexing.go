package tensor

import (
	"fmt"
)

// Index operations act along the leading dimension: an index i addresses the
// whole row t[i, ...]. This matches how the training code treats dimension 0
// as the element axis and everything behind it as per-element payload.

// checkIndexBounds validates that every index addresses a row of t.
func checkIndexBounds(t *Tensor, indices *Tensor, op string) ([]int32, error) {
	if len(t.Shape) == 0 {
		return nil, fmt.Errorf("%s requires a tensor with at least one dimension", op)
	}
	if indices.DType != Int32 {
		return nil, fmt.Errorf("%s indices must be Int32, got %s", op, indices.DType)
	}
	if len(indices.Shape) != 1 {
		return nil, fmt.Errorf("%s indices must be 1-dimensional, got shape %v", op, indices.Shape)
	}
	idx := indices.Data.([]int32)
	n := int32(t.Shape[0])
	for i, v := range idx {
		if v < 0 || v >= n {
			return nil, fmt.Errorf("%s index %d out of range [0, %d) at position %d", op, v, n, i)
		}
	}
	return idx, nil
}

// IndexSelect returns a new tensor whose rows are t[indices[0]],
// t[indices[1]], ... in order. Duplicate indices are allowed.
func IndexSelect(t *Tensor, indices *Tensor) (*Tensor, error) {
	idx, err := checkIndexBounds(t, indices, "IndexSelect")
	if err != nil {
		return nil, err
	}

	outShape := make([]int, len(t.Shape))
	copy(outShape, t.Shape)
	outShape[0] = len(idx)
	row := rowSize(t.Shape)

	result, err := NewTensor(outShape, t.DType, t.Device)
	if err != nil {
		return nil, err
	}

	switch t.DType {
	case Float32:
		src := t.Data.([]float32)
		dst := result.Data.([]float32)
		for i, v := range idx {
			copy(dst[i*row:(i+1)*row], src[int(v)*row:(int(v)+1)*row])
		}
	case Int32:
		src := t.Data.([]int32)
		dst := result.Data.([]int32)
		for i, v := range idx {
			copy(dst[i*row:(i+1)*row], src[int(v)*row:(int(v)+1)*row])
		}
	default:
		return nil, fmt.Errorf("unsupported dtype for IndexSelect: %s", t.DType)
	}
	return result, nil
}

// IndexPut writes values row-by-row into t at the given indices, in place:
// t[indices[i]] = values[i]. Trailing dimensions of t and values must match.
func IndexPut(t *Tensor, indices *Tensor, values *Tensor) error {
	idx, err := checkIndexBounds(t, indices, "IndexPut")
	if err != nil {
		return err
	}
	if t.DType != values.DType {
		return fmt.Errorf("IndexPut dtype mismatch: %s vs %s", t.DType, values.DType)
	}
	if len(values.Shape) != len(t.Shape) || values.Shape[0] != len(idx) {
		return fmt.Errorf("IndexPut values shape %v does not match %d indices into %v",
			values.Shape, len(idx), t.Shape)
	}
	for d := 1; d < len(t.Shape); d++ {
		if values.Shape[d] != t.Shape[d] {
			return fmt.Errorf("IndexPut values shape %v does not match target shape %v",
				values.Shape, t.Shape)
		}
	}

	row := rowSize(t.Shape)
	switch t.DType {
	case Float32:
		dst := t.Data.([]float32)
		src := values.Data.([]float32)
		for i, v := range idx {
			copy(dst[int(v)*row:(int(v)+1)*row], src[i*row:(i+1)*row])
		}
	case Int32:
		dst := t.Data.([]int32)
		src := values.Data.([]int32)
		for i, v := range idx {
			copy(dst[int(v)*row:(int(v)+1)*row], src[i*row:(i+1)*row])
		}
	default:
		return fmt.Errorf("unsupported dtype for IndexPut: %s", t.DType)
	}
	return nil
}

// IndexFill overwrites the rows at indices with a constant, in place.
func IndexFill(t *Tensor, indices *Tensor, value float32) error {
	idx, err := checkIndexBounds(t, indices, "IndexFill")
	if err != nil {
		return err
	}
	row := rowSize(t.Shape)
	switch t.DType {
	case Float32:
		dst := t.Data.([]float32)
		for _, v := range idx {
			base := int(v) * row
			for j := 0; j < row; j++ {
				dst[base+j] = value
			}
		}
	case Int32:
		dst := t.Data.([]int32)
		iv := int32(value)
		for _, v := range idx {
			base := int(v) * row
			for j := 0; j < row; j++ {
				dst[base+j] = iv
			}
		}
	default:
		return fmt.Errorf("unsupported dtype for IndexFill: %s", t.DType)
	}
	return nil
}

// IndexAddOnes adds 1 to every row addressed by indices, in place. Duplicate
// indices accumulate, which is what turns a sampled index list into per-row
// draw counts.
func IndexAddOnes(t *Tensor, indices *Tensor) error {
	idx, err := checkIndexBounds(t, indices, "IndexAddOnes")
	if err != nil {
		return err
	}
	row := rowSize(t.Shape)
	switch t.DType {
	case Float32:
		dst := t.Data.([]float32)
		for _, v := range idx {
			base := int(v) * row
			for j := 0; j < row; j++ {
				dst[base+j]++
			}
		}
	case Int32:
		dst := t.Data.([]int32)
		for _, v := range idx {
			base := int(v) * row
			for j := 0; j < row; j++ {
				dst[base+j]++
			}
		}
	default:
		return fmt.Errorf("unsupported dtype for IndexAddOnes: %s", t.DType)
	}
	return nil
}

// Cat concatenates two tensors along dimension 0. Trailing dimensions and
// dtypes must match.
func Cat(a, b *Tensor) (*Tensor, error) {
	if a.DType != b.DType {
		return nil, fmt.Errorf("Cat dtype mismatch: %s vs %s", a.DType, b.DType)
	}
	if len(a.Shape) != len(b.Shape) || len(a.Shape) == 0 {
		return nil, fmt.Errorf("Cat shape mismatch: %v vs %v", a.Shape, b.Shape)
	}
	for d := 1; d < len(a.Shape); d++ {
		if a.Shape[d] != b.Shape[d] {
			return nil, fmt.Errorf("Cat trailing dimension mismatch: %v vs %v", a.Shape, b.Shape)
		}
	}

	outShape := make([]int, len(a.Shape))
	copy(outShape, a.Shape)
	outShape[0] = a.Shape[0] + b.Shape[0]

	result, err := NewTensor(outShape, a.DType, a.Device)
	if err != nil {
		return nil, err
	}

	switch a.DType {
	case Float32:
		dst := result.Data.([]float32)
		n := copy(dst, a.Data.([]float32))
		copy(dst[n:], b.Data.([]float32))
	case Int32:
		dst := result.Data.([]int32)
		n := copy(dst, a.Data.([]int32))
		copy(dst[n:], b.Data.([]int32))
	default:
		return nil, fmt.Errorf("unsupported dtype for Cat: %s", a.DType)
	}
	return result, nil
}

// Nonzero returns the indices of all nonzero elements of a 1-dimensional
// tensor, as an Int32 tensor. An all-zero input yields an empty index list.
func Nonzero(t *Tensor) (*Tensor, error) {
	if len(t.Shape) != 1 {
		return nil, fmt.Errorf("Nonzero expects a 1-dimensional tensor, got shape %v", t.Shape)
	}

	var idx []int32
	switch t.DType {
	case Float32:
		for i, v := range t.Data.([]float32) {
			if v != 0 {
				idx = append(idx, int32(i))
			}
		}
	case Int32:
		for i, v := range t.Data.([]int32) {
			if v != 0 {
				idx = append(idx, int32(i))
			}
		}
	default:
		return nil, fmt.Errorf("unsupported dtype for Nonzero: %s", t.DType)
	}

	result, err := NewTensor([]int{len(idx)}, Int32, t.Device)
	if err != nil {
		return nil, err
	}
	copy(result.Data.([]int32), idx)
	return result, nil
}
