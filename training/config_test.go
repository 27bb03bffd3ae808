package training

import "testing"

// TestDefaultOptimizationParams tests the standard configuration
func TestDefaultOptimizationParams(t *testing.T) {
	p := DefaultOptimizationParams()

	if err := p.Validate(); err != nil {
		t.Fatalf("Default params should validate, got %v", err)
	}
	if p.Iterations != 30000 {
		t.Errorf("Expected 30000 iterations, got %d", p.Iterations)
	}
	if p.MinOpacity != 0.005 {
		t.Errorf("Expected min opacity 0.005, got %f", p.MinOpacity)
	}
	if p.GrowthFactor != 1.05 {
		t.Errorf("Expected growth factor 1.05, got %f", p.GrowthFactor)
	}
	if p.MaxCap != 1_000_000 {
		t.Errorf("Expected max cap 1000000, got %d", p.MaxCap)
	}
	if p.StartRefine >= p.StopRefine {
		t.Errorf("Expected refinement window to be non-empty, got [%d, %d]", p.StartRefine, p.StopRefine)
	}
}

// TestOptimizationParamsValidate tests rejection of unusable configurations
func TestOptimizationParamsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*OptimizationParams)
	}{
		{"zero iterations", func(p *OptimizationParams) { p.Iterations = 0 }},
		{"negative means lr", func(p *OptimizationParams) { p.MeansLR = -1 }},
		{"zero shs lr", func(p *OptimizationParams) { p.ShsLR = 0 }},
		{"zero opacity lr", func(p *OptimizationParams) { p.OpacityLR = 0 }},
		{"zero scaling lr", func(p *OptimizationParams) { p.ScalingLR = 0 }},
		{"zero rotation lr", func(p *OptimizationParams) { p.RotationLR = 0 }},
		{"zero min opacity", func(p *OptimizationParams) { p.MinOpacity = 0 }},
		{"min opacity at one", func(p *OptimizationParams) { p.MinOpacity = 1 }},
		{"negative start refine", func(p *OptimizationParams) { p.StartRefine = -1 }},
		{"zero refine every", func(p *OptimizationParams) { p.RefineEvery = 0 }},
		{"zero max cap", func(p *OptimizationParams) { p.MaxCap = 0 }},
		{"growth below one", func(p *OptimizationParams) { p.GrowthFactor = 0.9 }},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			p := DefaultOptimizationParams()
			test.mutate(&p)
			if err := p.Validate(); err == nil {
				t.Errorf("Expected validation error for %s", test.name)
			}
		})
	}
}
