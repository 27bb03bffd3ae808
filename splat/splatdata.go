package splat

import (
	"fmt"
	"math/rand"

	"github.com/chewxy/math32"

	"github.com/shadygm/go-splat/tensor"
)

// quatNormEps guards quaternion normalization against zero rows.
const quatNormEps = 1e-12

// sh0Coefficient is the zeroth-order spherical harmonics basis constant.
// Dividing a centered color by it yields the DC coefficient that renders
// back to that color.
const sh0Coefficient = 0.28209479177387814

// SplatData holds the trainable parameters of a Gaussian splat model as a
// struct of tensors. All fields share the same leading dimension N (one row
// per splat), and that alignment is maintained across every resize. The Raw
// fields store pre-activation values: opacity in logit space, scaling in log
// space, rotation as unnormalized quaternions.
type SplatData struct {
	Means       *tensor.Tensor // [N, 3] positions
	Sh0         *tensor.Tensor // [N, 1, 3] DC color coefficients
	ShN         *tensor.Tensor // [N, K, 3] higher-order color coefficients
	ScalingRaw  *tensor.Tensor // [N, 3] log-space scales
	RotationRaw *tensor.Tensor // [N, 4] unnormalized quaternions (w, x, y, z)
	OpacityRaw  *tensor.Tensor // [N, 1] logit-space opacities

	activeSHDegree int
	maxSHDegree    int
	sceneScale     float32
}

// NewSplatData assembles a model from pre-built parameter tensors. All six
// tensors must be Float32 with matching leading dimensions, and ShN's middle
// dimension must correspond to a complete spherical harmonics band, i.e.
// K = (d+1)^2 - 1 for some degree d. The active SH degree starts at zero.
func NewSplatData(means, sh0, shN, scalingRaw, rotationRaw, opacityRaw *tensor.Tensor, sceneScale float32) (*SplatData, error) {
	fields := []struct {
		name     string
		t        *tensor.Tensor
		trailing []int
	}{
		{"means", means, []int{3}},
		{"sh0", sh0, []int{1, 3}},
		{"shN", shN, nil}, // middle dimension checked separately
		{"scalingRaw", scalingRaw, []int{3}},
		{"rotationRaw", rotationRaw, []int{4}},
		{"opacityRaw", opacityRaw, []int{1}},
	}

	for _, f := range fields {
		if f.t == nil {
			return nil, fmt.Errorf("NewSplatData: %s tensor is nil", f.name)
		}
		if f.t.DType != tensor.Float32 {
			return nil, fmt.Errorf("NewSplatData: %s must be Float32, got %s", f.name, f.t.DType)
		}
	}

	n := means.Shape[0]
	for _, f := range fields {
		if f.t.Dim() == 0 || f.t.Shape[0] != n {
			return nil, fmt.Errorf("NewSplatData: %s has leading dimension %v, expected %d rows", f.name, f.t.Shape, n)
		}
		if f.trailing == nil {
			continue
		}
		if len(f.t.Shape) != 1+len(f.trailing) {
			return nil, fmt.Errorf("NewSplatData: %s has shape %v, expected %d dimensions", f.name, f.t.Shape, 1+len(f.trailing))
		}
		for i, want := range f.trailing {
			if f.t.Shape[1+i] != want {
				return nil, fmt.Errorf("NewSplatData: %s has shape %v, expected trailing dimensions %v", f.name, f.t.Shape, f.trailing)
			}
		}
	}

	if len(shN.Shape) != 3 || shN.Shape[2] != 3 {
		return nil, fmt.Errorf("NewSplatData: shN has shape %v, expected [N, K, 3]", shN.Shape)
	}
	maxDegree, err := degreeForCoefficients(shN.Shape[1])
	if err != nil {
		return nil, fmt.Errorf("NewSplatData: %v", err)
	}
	if sceneScale <= 0 {
		return nil, fmt.Errorf("NewSplatData: scene scale must be positive, got %f", sceneScale)
	}

	return &SplatData{
		Means:       means,
		Sh0:         sh0,
		ShN:         shN,
		ScalingRaw:  scalingRaw,
		RotationRaw: rotationRaw,
		OpacityRaw:  opacityRaw,
		maxSHDegree: maxDegree,
		sceneScale:  sceneScale,
	}, nil
}

// degreeForCoefficients maps a higher-order coefficient count K back to the
// SH degree d satisfying K = (d+1)^2 - 1.
func degreeForCoefficients(k int) (int, error) {
	if k < 0 {
		return 0, fmt.Errorf("invalid SH coefficient count %d", k)
	}
	for d := 0; ; d++ {
		total := (d + 1) * (d + 1)
		if total-1 == k {
			return d, nil
		}
		if total-1 > k {
			return 0, fmt.Errorf("SH coefficient count %d does not correspond to a complete degree", k)
		}
	}
}

// NewRandomSplatData builds a synthetic model of n splats for demos and
// tests: positions uniform in a cube of half-extent sceneScale, colors
// uniform, higher-order SH zeroed, isotropic scales around 2% of the scene
// extent, identity rotations, and opacities of 0.1.
func NewRandomSplatData(n, shDegree int, sceneScale float32, rng *rand.Rand) (*SplatData, error) {
	if n <= 0 {
		return nil, fmt.Errorf("NewRandomSplatData: number of splats must be positive, got %d", n)
	}
	if shDegree < 0 {
		return nil, fmt.Errorf("NewRandomSplatData: SH degree must be non-negative, got %d", shDegree)
	}
	if sceneScale <= 0 {
		return nil, fmt.Errorf("NewRandomSplatData: scene scale must be positive, got %f", sceneScale)
	}
	if rng == nil {
		return nil, fmt.Errorf("NewRandomSplatData: rng is nil")
	}

	means, err := tensor.RandomUniformFrom(rng, []int{n, 3}, -sceneScale, sceneScale, tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("NewRandomSplatData: means: %v", err)
	}

	// Uniform colors mapped to DC coefficients.
	sh0, err := tensor.RandomUniformFrom(rng, []int{n, 1, 3}, 0, 1, tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("NewRandomSplatData: sh0: %v", err)
	}
	sh0Data := sh0.Data.([]float32)
	for i := range sh0Data {
		sh0Data[i] = (sh0Data[i] - 0.5) / sh0Coefficient
	}

	k := (shDegree+1)*(shDegree+1) - 1
	shN, err := tensor.Zeros([]int{n, k, 3}, tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("NewRandomSplatData: shN: %v", err)
	}

	// Log-space scales with mild variation around 0.02 * sceneScale.
	scalingRaw, err := tensor.RandomUniformFrom(rng, []int{n, 3}, 0.5, 1.5, tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("NewRandomSplatData: scalingRaw: %v", err)
	}
	base := 0.02 * sceneScale
	scalingData := scalingRaw.Data.([]float32)
	for i := range scalingData {
		scalingData[i] = math32.Log(base * scalingData[i])
	}

	rotationRaw, err := tensor.Zeros([]int{n, 4}, tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("NewRandomSplatData: rotationRaw: %v", err)
	}
	rotationData := rotationRaw.Data.([]float32)
	for i := 0; i < n; i++ {
		rotationData[i*4] = 1 // identity quaternion
	}

	initialOpacity := float32(0.1)
	logitOpacity := math32.Log(initialOpacity / (1 - initialOpacity))
	opacityRaw, err := tensor.Full([]int{n, 1}, logitOpacity, tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("NewRandomSplatData: opacityRaw: %v", err)
	}

	return NewSplatData(means, sh0, shN, scalingRaw, rotationRaw, opacityRaw, sceneScale)
}

// Size returns the current number of splats.
func (s *SplatData) Size() int {
	return s.Means.Shape[0]
}

// SceneScale returns the scene extent the model was initialized with.
func (s *SplatData) SceneScale() float32 {
	return s.sceneScale
}

// ActiveSHDegree returns the SH degree currently used for rendering.
func (s *SplatData) ActiveSHDegree() int {
	return s.activeSHDegree
}

// MaxSHDegree returns the highest SH degree the model stores coefficients for.
func (s *SplatData) MaxSHDegree() int {
	return s.maxSHDegree
}

// IncrementSHDegree unlocks the next spherical harmonics band, capped at the
// model's maximum degree.
func (s *SplatData) IncrementSHDegree() {
	if s.activeSHDegree < s.maxSHDegree {
		s.activeSHDegree++
	}
}

// Opacity returns the activated opacities as a 1-D [N] tensor:
// sigmoid applied to the raw logits, trailing dimension squeezed.
func (s *SplatData) Opacity() (*tensor.Tensor, error) {
	activated, err := tensor.Sigmoid(s.OpacityRaw)
	if err != nil {
		return nil, fmt.Errorf("Opacity: %v", err)
	}
	squeezed, err := activated.Squeeze(1)
	if err != nil {
		return nil, fmt.Errorf("Opacity: %v", err)
	}
	return squeezed, nil
}

// Scaling returns the activated [N, 3] scales, exp applied to the raw
// log-space values.
func (s *SplatData) Scaling() (*tensor.Tensor, error) {
	activated, err := tensor.Exp(s.ScalingRaw)
	if err != nil {
		return nil, fmt.Errorf("Scaling: %v", err)
	}
	return activated, nil
}

// Rotation returns the [N, 4] unit quaternions, each raw row normalized to
// unit length.
func (s *SplatData) Rotation() (*tensor.Tensor, error) {
	out, err := s.RotationRaw.Clone()
	if err != nil {
		return nil, fmt.Errorf("Rotation: %v", err)
	}
	data := out.Data.([]float32)
	n := out.Shape[0]
	for i := 0; i < n; i++ {
		base := i * 4
		var sumSq float32
		for j := 0; j < 4; j++ {
			v := data[base+j]
			sumSq += v * v
		}
		norm := math32.Sqrt(sumSq)
		if norm < quatNormEps {
			norm = quatNormEps
		}
		for j := 0; j < 4; j++ {
			data[base+j] /= norm
		}
	}
	return out, nil
}
