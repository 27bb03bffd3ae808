package training

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/shadygm/go-splat/optimizer"
	"github.com/shadygm/go-splat/render"
	"github.com/shadygm/go-splat/splat"
	"github.com/shadygm/go-splat/tensor"
)

// Tunable constants of the MCMC strategy. They are named here rather than
// inlined so the noise calibration and table bounds can be referenced from
// tests.
const (
	// NoiseLR rescales the means learning rate into the position-noise
	// magnitude.
	NoiseLR float32 = 5e5

	// NoiseK and NoiseX0 shape the opacity gate on noise injection:
	// gate = sigmoid(NoiseK * ((1 - opacity) - NoiseX0)). Near-transparent
	// splats get gate values near 1, near-opaque splats near 0.
	NoiseK  float32 = 100.0
	NoiseX0 float32 = 0.995

	// BinomialMaxN bounds the relocation ratio and sizes the binomial
	// table.
	BinomialMaxN = 51
)

// opacityClampMargin keeps relocated opacities strictly below 1 so the logit
// stays finite.
const opacityClampMargin float32 = 1e-7

// shDegreeInterval is the iteration cadence for unlocking the next spherical
// harmonics band.
const shDegreeInterval = 1000

// meansGroupIndex is the parameter group the exponential scheduler decays.
// Only the position rate decays over a run; the other five groups keep
// their configured rate.
const meansGroupIndex = 0

// MCMC is the stochastic density-control strategy: dead splats are respawned
// at the positions of sampled high-opacity survivors, the population grows
// multiplicatively toward MaxCap, and every iteration ends with
// covariance-shaped position noise scaled by the current means learning
// rate. The optimizer's moment state is kept row-aligned with the model
// through every relocation and resize.
type MCMC struct {
	mu sync.RWMutex

	model     *splat.SplatData
	params    OptimizationParams
	opt       *optimizer.Adam
	scheduler *ExponentialLR
	binoms    *tensor.Tensor
	rng       *rand.Rand
	metrics   *MetricsCollector
}

// NewMCMC creates a strategy owning the given model. Initialize must be
// called before the per-iteration entry points.
func NewMCMC(model *splat.SplatData) (*MCMC, error) {
	if model == nil {
		return nil, fmt.Errorf("NewMCMC: model is nil")
	}
	return &MCMC{
		model:   model,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		metrics: NewMetricsCollector(),
	}, nil
}

// fieldBinding pairs a model field with its parameter group name and a
// setter for the growth path, which must swap in a longer tensor. The
// binding order matches the optimizer group order.
type fieldBinding struct {
	name string
	get  func() *tensor.Tensor
	set  func(*tensor.Tensor)
}

func (m *MCMC) fieldBindings() []fieldBinding {
	return []fieldBinding{
		{"means", func() *tensor.Tensor { return m.model.Means }, func(t *tensor.Tensor) { m.model.Means = t }},
		{"sh0", func() *tensor.Tensor { return m.model.Sh0 }, func(t *tensor.Tensor) { m.model.Sh0 = t }},
		{"shN", func() *tensor.Tensor { return m.model.ShN }, func(t *tensor.Tensor) { m.model.ShN = t }},
		{"scaling", func() *tensor.Tensor { return m.model.ScalingRaw }, func(t *tensor.Tensor) { m.model.ScalingRaw = t }},
		{"rotation", func() *tensor.Tensor { return m.model.RotationRaw }, func(t *tensor.Tensor) { m.model.RotationRaw = t }},
		{"opacity", func() *tensor.Tensor { return m.model.OpacityRaw }, func(t *tensor.Tensor) { m.model.OpacityRaw = t }},
	}
}

// Initialize validates the configuration and builds the optimizer, the
// exponential scheduler on the means group, and the binomial table. It must
// run exactly once.
func (m *MCMC) Initialize(params OptimizationParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.opt != nil {
		return fmt.Errorf("Initialize called twice")
	}
	if err := params.Validate(); err != nil {
		return fmt.Errorf("invalid optimization params: %v", err)
	}

	binoms, err := splat.BinomialTable(BinomialMaxN)
	if err != nil {
		return fmt.Errorf("failed to build binomial table: %v", err)
	}

	for _, b := range m.fieldBindings() {
		b.get().SetRequiresGrad(true)
	}

	sceneScale := float64(m.model.SceneScale())
	groups := []optimizer.ParamGroup{
		{Name: "means", Param: m.model.Means, LR: params.MeansLR * sceneScale},
		{Name: "sh0", Param: m.model.Sh0, LR: params.ShsLR},
		{Name: "shN", Param: m.model.ShN, LR: params.ShsLR / 20},
		{Name: "scaling", Param: m.model.ScalingRaw, LR: params.ScalingLR},
		{Name: "rotation", Param: m.model.RotationRaw, LR: params.RotationLR},
		{Name: "opacity", Param: m.model.OpacityRaw, LR: params.OpacityLR},
	}
	opt, err := optimizer.NewAdam(optimizer.DefaultAdamConfig(), groups)
	if err != nil {
		return fmt.Errorf("failed to build optimizer: %v", err)
	}

	// Decay the means rate by 100x over the whole run.
	gamma := math.Pow(0.01, 1/float64(params.Iterations))
	scheduler, err := NewExponentialLR(opt, gamma, meansGroupIndex)
	if err != nil {
		return fmt.Errorf("failed to build scheduler: %v", err)
	}

	m.params = params
	m.opt = opt
	m.scheduler = scheduler
	m.binoms = binoms
	return nil
}

// PostBackward runs the per-iteration density control: SH band unlocks on
// a fixed cadence, relocation and growth inside the refinement window, and
// noise injection unconditionally last. The render output is accepted for
// call symmetry with the backward pass; nothing is read from it.
func (m *MCMC) PostBackward(iter int, out *render.Output) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.opt == nil {
		return fmt.Errorf("PostBackward called before Initialize")
	}

	if iter%shDegreeInterval == 0 {
		m.model.IncrementSHDegree()
	}

	relocated, added := 0, 0
	if m.isRefining(iter) {
		var err error
		if relocated, err = m.relocateDead(); err != nil {
			return fmt.Errorf("relocation failed: %v", err)
		}
		if added, err = m.growPopulation(); err != nil {
			return fmt.Errorf("growth failed: %v", err)
		}
		tensor.EmptyCache()
	}

	if err := m.injectNoise(); err != nil {
		return fmt.Errorf("noise injection failed: %v", err)
	}

	if m.metrics.IsEnabled() {
		if lr, err := m.opt.LR(meansGroupIndex); err == nil {
			m.metrics.RecordIteration(IterationRecord{
				Iteration:  iter,
				Population: m.model.Size(),
				Relocated:  relocated,
				Added:      added,
				MeansLR:    lr,
			})
		}
	}
	return nil
}

// Step applies accumulated gradients and advances the scheduler, skipping
// iterations past the configured training length.
func (m *MCMC) Step(iter int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.opt == nil {
		return fmt.Errorf("Step called before Initialize")
	}
	if iter >= m.params.Iterations {
		return nil
	}

	start := time.Now()
	if err := m.opt.Step(); err != nil {
		return fmt.Errorf("optimizer step failed: %v", err)
	}
	m.opt.ZeroGrad()
	if err := m.scheduler.Step(); err != nil {
		return fmt.Errorf("scheduler step failed: %v", err)
	}

	if m.metrics.IsEnabled() {
		m.metrics.RecordStepTime(time.Since(start))
	}
	return nil
}

// IsRefining reports whether the given iteration falls strictly inside the
// refinement window on the configured cadence.
func (m *MCMC) IsRefining(iter int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.opt == nil {
		return false
	}
	return m.isRefining(iter)
}

func (m *MCMC) isRefining(iter int) bool {
	return iter < m.params.StopRefine &&
		iter > m.params.StartRefine &&
		iter%m.params.RefineEvery == 0
}

// Model returns the model being optimized.
func (m *MCMC) Model() *splat.SplatData {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.model
}

// Optimizer exposes the optimizer for checkpoint writers.
func (m *MCMC) Optimizer() *optimizer.Adam {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.opt
}

// Metrics returns the strategy's collector. Recording is off until the
// caller enables it.
func (m *MCMC) Metrics() *MetricsCollector {
	return m.metrics
}

// relocateDead respawns every dead splat (activated opacity at or below the
// threshold) as a copy of an alive splat sampled proportionally to opacity.
// Each sampled source is first re-split across its draw count so the copies
// conserve its appearance, then its moment state is dropped. Returns the
// number of dead splats rewritten.
func (m *MCMC) relocateDead() (int, error) {
	opacity, err := m.model.Opacity()
	if err != nil {
		return 0, err
	}

	deadMask, err := tensor.LessEqual(opacity, m.params.MinOpacity)
	if err != nil {
		return 0, err
	}
	deadIdx, err := tensor.Nonzero(deadMask)
	if err != nil {
		return 0, err
	}
	nDead := deadIdx.Shape[0]
	if nDead == 0 {
		return 0, nil
	}

	aliveMask, err := tensor.ScalarSub(1, deadMask)
	if err != nil {
		return 0, err
	}
	aliveIdx, err := tensor.Nonzero(aliveMask)
	if err != nil {
		return 0, err
	}
	if aliveIdx.Shape[0] == 0 {
		// Nothing left to copy from.
		return 0, nil
	}

	probs, err := tensor.IndexSelect(opacity, aliveIdx)
	if err != nil {
		return 0, err
	}
	sampledLocal, err := sampleMultinomial(probs, nDead, m.rng)
	if err != nil {
		return 0, err
	}
	sampledIdx, err := tensor.IndexSelect(aliveIdx, sampledLocal)
	if err != nil {
		return 0, err
	}

	if err := m.splitSampled(sampledIdx, opacity); err != nil {
		return 0, err
	}

	// Dead rows become copies of the freshly split sources, field by field.
	for _, b := range m.fieldBindings() {
		rows, err := tensor.IndexSelect(b.get(), sampledIdx)
		if err != nil {
			return 0, fmt.Errorf("%s: %v", b.name, err)
		}
		if err := tensor.IndexPut(b.get(), deadIdx, rows); err != nil {
			return 0, fmt.Errorf("%s: %v", b.name, err)
		}
	}

	// The sources changed abruptly; their momentum is stale.
	for _, b := range m.fieldBindings() {
		if err := m.opt.ResetMomentsAt(b.get(), sampledIdx); err != nil {
			return 0, fmt.Errorf("%s: %v", b.name, err)
		}
	}

	return nDead, nil
}

// growPopulation appends copies of opacity-sampled splats until the
// population reaches GrowthFactor times its size, capped at MaxCap. The
// sampled parents are split first so parent plus children conserve the
// parent's appearance; the optimizer re-keys each group onto the grown
// tensor with zeroed moment rows for the children. Returns the number of
// appended splats.
func (m *MCMC) growPopulation() (int, error) {
	if m.opt == nil {
		fmt.Printf("Warning: population growth requested before optimizer initialization\n")
		return 0, nil
	}

	n := m.model.Size()
	target := int(math.Round(float64(m.params.GrowthFactor) * float64(n)))
	if target > m.params.MaxCap {
		target = m.params.MaxCap
	}
	nNew := target - n
	if nNew <= 0 {
		return 0, nil
	}

	opacity, err := m.model.Opacity()
	if err != nil {
		return 0, err
	}
	sampledIdx, err := sampleMultinomial(opacity, nNew, m.rng)
	if err != nil {
		return 0, err
	}

	if err := m.splitSampled(sampledIdx, opacity); err != nil {
		return 0, err
	}

	for _, b := range m.fieldBindings() {
		old := b.get()
		rows, err := tensor.IndexSelect(old, sampledIdx)
		if err != nil {
			return 0, fmt.Errorf("%s: %v", b.name, err)
		}
		grown, err := tensor.Cat(old, rows)
		if err != nil {
			return 0, fmt.Errorf("%s: %v", b.name, err)
		}
		grown.SetRequiresGrad(true)
		if err := m.opt.ExtendParam(old, grown); err != nil {
			return 0, fmt.Errorf("%s: %v", b.name, err)
		}
		b.set(grown)
	}

	return nNew, nil
}

// splitSampled applies the relocation transform to the sampled source rows:
// each source's opacity and scale are recomputed for its draw count and
// written back into the raw parameters in place.
func (m *MCMC) splitSampled(sampledIdx, opacity *tensor.Tensor) error {
	ratios, err := m.relocationRatios(sampledIdx)
	if err != nil {
		return err
	}
	sampledOp, err := tensor.IndexSelect(opacity, sampledIdx)
	if err != nil {
		return err
	}
	scaling, err := m.model.Scaling()
	if err != nil {
		return err
	}
	sampledScale, err := tensor.IndexSelect(scaling, sampledIdx)
	if err != nil {
		return err
	}

	newOp, newScale, err := splat.ComputeRelocation(sampledOp, sampledScale, ratios, m.binoms)
	if err != nil {
		return err
	}

	if err := m.writeOpacityRaw(sampledIdx, newOp); err != nil {
		return err
	}
	return m.writeScalingRaw(sampledIdx, newScale)
}

// relocationRatios counts how many times each sampled index was drawn, adds
// one for the source itself, and clamps into the binomial table's range.
func (m *MCMC) relocationRatios(sampledIdx *tensor.Tensor) (*tensor.Tensor, error) {
	counts, err := tensor.Zeros([]int{m.model.Size()}, tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, err
	}
	if err := tensor.IndexAddOnes(counts, sampledIdx); err != nil {
		return nil, err
	}
	drawn, err := tensor.IndexSelect(counts, sampledIdx)
	if err != nil {
		return nil, err
	}
	shifted, err := tensor.AddScalar(drawn, 1)
	if err != nil {
		return nil, err
	}
	clamped, err := tensor.Clamp(shifted, 1, BinomialMaxN)
	if err != nil {
		return nil, err
	}

	src := clamped.Data.([]float32)
	ratios := make([]int32, len(src))
	for i, v := range src {
		ratios[i] = int32(v)
	}
	return tensor.NewTensor([]int{len(ratios)}, tensor.Int32, tensor.CPU, ratios)
}

// writeOpacityRaw stores activated opacities back into logit space at the
// given rows, clamped away from saturation so the logit stays finite.
func (m *MCMC) writeOpacityRaw(indices, opacities *tensor.Tensor) error {
	clamped, err := tensor.Clamp(opacities, m.params.MinOpacity, 1-opacityClampMargin)
	if err != nil {
		return err
	}
	logits, err := tensor.Logit(clamped)
	if err != nil {
		return err
	}
	col, err := logits.Unsqueeze(1)
	if err != nil {
		return err
	}
	return tensor.IndexPut(m.model.OpacityRaw, indices, col)
}

// writeScalingRaw stores activated scales back into log space at the given
// rows.
func (m *MCMC) writeScalingRaw(indices, scales *tensor.Tensor) error {
	logs, err := tensor.Log(scales)
	if err != nil {
		return err
	}
	return tensor.IndexPut(m.model.ScalingRaw, indices, logs)
}

// injectNoise perturbs every position by normal noise gated on opacity,
// scaled by the current means learning rate, and shaped through the splat's
// own covariance so perturbation follows the splat's extent. Runs every
// iteration; near-opaque splats are effectively pinned by the gate.
func (m *MCMC) injectNoise() error {
	opacity, err := m.model.Opacity()
	if err != nil {
		return err
	}
	rotation, err := m.model.Rotation()
	if err != nil {
		return err
	}
	scaling, err := m.model.Scaling()
	if err != nil {
		return err
	}
	covars, err := splat.QuatScaleToCovar(rotation, scaling)
	if err != nil {
		return err
	}

	// gate = sigmoid(NoiseK * ((1 - opacity) - NoiseX0))
	inverted, err := tensor.ScalarSub(1, opacity)
	if err != nil {
		return err
	}
	centered, err := tensor.SubScalar(inverted, NoiseX0)
	if err != nil {
		return err
	}
	sharpened, err := tensor.MulScalar(centered, NoiseK)
	if err != nil {
		return err
	}
	gate, err := tensor.Sigmoid(sharpened)
	if err != nil {
		return err
	}

	lr, err := m.opt.LR(meansGroupIndex)
	if err != nil {
		return err
	}

	n := m.model.Size()
	noise, err := tensor.RandomNormalFrom(m.rng, []int{n, 3}, 0, 1, tensor.Float32, tensor.CPU)
	if err != nil {
		return err
	}

	pool := tensor.GetGlobalBufferPool()
	factors := pool.Get(n)
	defer pool.Put(factors)

	gateData := gate.Data.([]float32)
	lrScale := float32(lr) * NoiseLR
	for i := 0; i < n; i++ {
		factors[i] = gateData[i] * lrScale
	}
	noiseData := noise.Data.([]float32)
	for i := 0; i < n; i++ {
		f := factors[i]
		noiseData[i*3] *= f
		noiseData[i*3+1] *= f
		noiseData[i*3+2] *= f
	}

	col, err := noise.Unsqueeze(2)
	if err != nil {
		return err
	}
	shaped, err := tensor.Bmm(covars, col)
	if err != nil {
		return err
	}
	flat, err := shaped.Squeeze(2)
	if err != nil {
		return err
	}

	meansData := m.model.Means.Data.([]float32)
	flatData := flat.Data.([]float32)
	for i := range meansData {
		meansData[i] += flatData[i]
	}
	return nil
}
