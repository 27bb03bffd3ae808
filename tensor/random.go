package tensor

import (
	"fmt"
	"math/rand"
	"sort"
)

// MultinomialMaxElements is the largest category count Multinomial accepts.
// The limit matches the 2^24 ceiling of the GPU multinomial kernel this
// implementation stands in for; callers sampling from larger populations are
// expected to run their own host-side sampler.
const MultinomialMaxElements = 1 << 24

// Multinomial draws numSamples category indices from the distribution given
// by weights, with replacement. Weights must be a 1-dimensional Float32
// tensor of non-negative entries with a positive sum; they do not need to be
// normalized. The result is an Int32 tensor of shape [numSamples].
func Multinomial(weights *Tensor, numSamples int, replacement bool, rng *rand.Rand) (*Tensor, error) {
	if !replacement {
		return nil, fmt.Errorf("multinomial without replacement is not supported")
	}
	if weights.DType != Float32 {
		return nil, fmt.Errorf("multinomial weights must be Float32, got %s", weights.DType)
	}
	if len(weights.Shape) != 1 {
		return nil, fmt.Errorf("multinomial weights must be 1-dimensional, got shape %v", weights.Shape)
	}
	if numSamples <= 0 {
		return nil, fmt.Errorf("multinomial sample count must be positive, got %d", numSamples)
	}
	n := weights.Shape[0]
	if n == 0 {
		return nil, fmt.Errorf("multinomial weights are empty")
	}
	if n > MultinomialMaxElements {
		return nil, fmt.Errorf("multinomial supports at most %d categories, got %d", MultinomialMaxElements, n)
	}

	data := weights.Data.([]float32)
	cumulative := make([]float64, n)
	var total float64
	for i, w := range data {
		if w < 0 {
			return nil, fmt.Errorf("multinomial weight at index %d is negative: %f", i, w)
		}
		total += float64(w)
		cumulative[i] = total
	}
	if !(total > 0) {
		return nil, fmt.Errorf("multinomial weights must have a positive sum")
	}

	result, err := NewTensor([]int{numSamples}, Int32, weights.Device)
	if err != nil {
		return nil, err
	}
	out := result.Data.([]int32)
	for s := 0; s < numSamples; s++ {
		u := rng.Float64() * total
		idx := sort.Search(n, func(i int) bool { return cumulative[i] > u })
		if idx >= n {
			idx = n - 1
		}
		out[s] = int32(idx)
	}
	return result, nil
}
