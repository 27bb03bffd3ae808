package training

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/shadygm/go-splat/tensor"
)

// sampleMultinomial draws n indices with replacement, probability
// proportional to weight. Weight vectors within the categorical sampler's
// element ceiling delegate to it; larger vectors fall back to a host prefix
// sum walked by binary search, which produces the same distribution. Callers
// never see which path executed.
func sampleMultinomial(weights *tensor.Tensor, n int, rng *rand.Rand) (*tensor.Tensor, error) {
	if weights == nil {
		return nil, fmt.Errorf("sampleMultinomial: weights tensor is nil")
	}
	if weights.Numel() <= tensor.MultinomialMaxElements {
		return tensor.Multinomial(weights, n, true, rng)
	}
	return sampleByPrefixSum(weights, n, rng)
}

// sampleByPrefixSum implements the oversized-vector path: normalize on the
// host, build the cumulative distribution, and lower-bound binary-search one
// uniform draw per sample.
func sampleByPrefixSum(weights *tensor.Tensor, n int, rng *rand.Rand) (*tensor.Tensor, error) {
	if weights.DType != tensor.Float32 || len(weights.Shape) != 1 {
		return nil, fmt.Errorf("sampleByPrefixSum: weights must be a 1-D Float32 tensor, got %s %v", weights.DType, weights.Shape)
	}
	if n <= 0 {
		return nil, fmt.Errorf("sampleByPrefixSum: sample count must be positive, got %d", n)
	}
	if rng == nil {
		return nil, fmt.Errorf("sampleByPrefixSum: rng is nil")
	}

	data := weights.Data.([]float32)
	m := len(data)
	if m == 0 {
		return nil, fmt.Errorf("sampleByPrefixSum: cannot sample from empty weights")
	}

	var total float64
	for i, w := range data {
		if w < 0 {
			return nil, fmt.Errorf("sampleByPrefixSum: negative weight %f at index %d", w, i)
		}
		total += float64(w)
	}
	if total <= 0 {
		return nil, fmt.Errorf("sampleByPrefixSum: weights sum to zero")
	}

	cumulative := make([]float64, m)
	var running float64
	for i, w := range data {
		running += float64(w) / total
		cumulative[i] = running
	}

	indices := make([]int32, n)
	for i := 0; i < n; i++ {
		u := rng.Float64()
		idx := sort.Search(m, func(j int) bool { return cumulative[j] > u })
		if idx >= m {
			idx = m - 1
		}
		indices[i] = int32(idx)
	}

	return tensor.NewTensor([]int{n}, tensor.Int32, tensor.CPU, indices)
}
