package training

import "fmt"

// OptimizationParams holds configuration for a density-control run. Learning
// rates are per parameter group; the refinement window and cadence gate the
// relocate/grow cascade.
type OptimizationParams struct {
	Iterations int // total training length, also fixes the LR decay horizon

	MeansLR    float64 // position group, multiplied by the model's scene scale
	ShsLR      float64 // DC color group; higher-order coefficients use ShsLR/20
	OpacityLR  float64
	ScalingLR  float64
	RotationLR float64

	MinOpacity  float32 // dead threshold for relocation
	StartRefine int     // refinement runs strictly after this iteration
	StopRefine  int     // and strictly before this one
	RefineEvery int     // cadence within the window

	MaxCap       int     // population ceiling
	GrowthFactor float32 // per-refinement population multiplier
}

// DefaultOptimizationParams returns the standard configuration for a
// 30k-iteration run.
func DefaultOptimizationParams() OptimizationParams {
	return OptimizationParams{
		Iterations:   30000,
		MeansLR:      1.6e-4,
		ShsLR:        2.5e-3,
		OpacityLR:    5e-2,
		ScalingLR:    5e-3,
		RotationLR:   1e-3,
		MinOpacity:   0.005,
		StartRefine:  500,
		StopRefine:   25000,
		RefineEvery:  100,
		MaxCap:       1_000_000,
		GrowthFactor: 1.05,
	}
}

// Validate checks the configuration for values the strategy cannot run with.
func (p OptimizationParams) Validate() error {
	if p.Iterations <= 0 {
		return fmt.Errorf("iterations must be positive, got %d", p.Iterations)
	}
	lrs := []struct {
		name string
		lr   float64
	}{
		{"means_lr", p.MeansLR},
		{"shs_lr", p.ShsLR},
		{"opacity_lr", p.OpacityLR},
		{"scaling_lr", p.ScalingLR},
		{"rotation_lr", p.RotationLR},
	}
	for _, g := range lrs {
		if g.lr <= 0 {
			return fmt.Errorf("%s must be positive, got %g", g.name, g.lr)
		}
	}
	if p.MinOpacity <= 0 || p.MinOpacity >= 1 {
		return fmt.Errorf("min_opacity must be in (0, 1), got %f", p.MinOpacity)
	}
	if p.StartRefine < 0 {
		return fmt.Errorf("start_refine must be non-negative, got %d", p.StartRefine)
	}
	if p.RefineEvery <= 0 {
		return fmt.Errorf("refine_every must be positive, got %d", p.RefineEvery)
	}
	if p.MaxCap <= 0 {
		return fmt.Errorf("max_cap must be positive, got %d", p.MaxCap)
	}
	if p.GrowthFactor < 1 {
		return fmt.Errorf("growth_factor must be at least 1, got %f", p.GrowthFactor)
	}
	return nil
}
