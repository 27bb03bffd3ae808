package splat

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/shadygm/go-splat/tensor"
)

// BinomialTable builds the [nMax, nMax] float32 table of binomial
// coefficients used by ComputeRelocation: row n holds C(n, k) for k <= n and
// zeros above the diagonal. Each row is filled with the incremental product
// C(n, k+1) = C(n, k) * (n-k) / (k+1), so no factorials are evaluated.
func BinomialTable(nMax int) (*tensor.Tensor, error) {
	if nMax <= 0 {
		return nil, fmt.Errorf("BinomialTable: table size must be positive, got %d", nMax)
	}
	table, err := tensor.Zeros([]int{nMax, nMax}, tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("BinomialTable: %v", err)
	}
	data := table.Data.([]float32)
	for n := 0; n < nMax; n++ {
		binom := float32(1)
		for k := 0; k <= n; k++ {
			data[n*nMax+k] = binom
			binom = binom * float32(n-k) / float32(k+1)
		}
	}
	return table, nil
}

// ComputeRelocation splits each source splat into ratio[i] children while
// conserving the rendered appearance. For a splat of opacity o split r ways,
// the children receive
//
//	newOpacity = 1 - (1 - o)^(1/r)
//
// so that r overlapping children composite back to o, and the scale is
// shrunk by o divided by an alternating binomial sum over the new opacity's
// powers. Ratios must lie in [1, nMax] where nMax is the table size; a
// ratio of 1 leaves opacity and scale unchanged.
//
// opacities is [M], scales is [M, 3], ratios is an Int32 [M], and binoms is
// the square table from BinomialTable. Returns the new [M] opacities and
// [M, 3] scales.
func ComputeRelocation(opacities, scales, ratios, binoms *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
	if opacities == nil || scales == nil || ratios == nil || binoms == nil {
		return nil, nil, fmt.Errorf("ComputeRelocation: nil input tensor")
	}
	if opacities.DType != tensor.Float32 || len(opacities.Shape) != 1 {
		return nil, nil, fmt.Errorf("ComputeRelocation: opacities must be a 1-D Float32 tensor, got %s %v", opacities.DType, opacities.Shape)
	}
	m := opacities.Shape[0]
	if scales.DType != tensor.Float32 || len(scales.Shape) != 2 || scales.Shape[0] != m || scales.Shape[1] != 3 {
		return nil, nil, fmt.Errorf("ComputeRelocation: scales must be Float32 [%d, 3], got %s %v", m, scales.DType, scales.Shape)
	}
	if ratios.DType != tensor.Int32 || len(ratios.Shape) != 1 || ratios.Shape[0] != m {
		return nil, nil, fmt.Errorf("ComputeRelocation: ratios must be an Int32 [%d] tensor, got %s %v", m, ratios.DType, ratios.Shape)
	}
	if binoms.DType != tensor.Float32 || len(binoms.Shape) != 2 || binoms.Shape[0] != binoms.Shape[1] {
		return nil, nil, fmt.Errorf("ComputeRelocation: binoms must be a square Float32 table, got %s %v", binoms.DType, binoms.Shape)
	}
	nMax := binoms.Shape[0]

	newOpacities, err := tensor.Zeros([]int{m}, tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, nil, fmt.Errorf("ComputeRelocation: %v", err)
	}
	newScales, err := tensor.Zeros([]int{m, 3}, tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, nil, fmt.Errorf("ComputeRelocation: %v", err)
	}

	opacityData := opacities.Data.([]float32)
	scaleData := scales.Data.([]float32)
	ratioData := ratios.Data.([]int32)
	binomData := binoms.Data.([]float32)
	newOpacityData := newOpacities.Data.([]float32)
	newScaleData := newScales.Data.([]float32)

	for idx := 0; idx < m; idx++ {
		ratio := int(ratioData[idx])
		if ratio < 1 || ratio > nMax {
			return nil, nil, fmt.Errorf("ComputeRelocation: ratio %d at index %d outside [1, %d]", ratio, idx, nMax)
		}
		opacity := opacityData[idx]
		newOpacity := 1 - math32.Pow(1-opacity, 1/float32(ratio))
		newOpacityData[idx] = newOpacity

		var denom float32
		for i := 1; i <= ratio; i++ {
			for k := 0; k < i; k++ {
				binCoeff := binomData[(i-1)*nMax+k]
				sign := float32(1)
				if k%2 == 1 {
					sign = -1
				}
				term := sign / math32.Sqrt(float32(k+1)) * math32.Pow(newOpacity, float32(k+1))
				denom += binCoeff * term
			}
		}
		coeff := opacity / denom
		for d := 0; d < 3; d++ {
			newScaleData[idx*3+d] = coeff * scaleData[idx*3+d]
		}
	}

	return newOpacities, newScales, nil
}
