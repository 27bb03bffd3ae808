// Package training implements adaptive density control for Gaussian splat
// models. A Strategy owns the model for the duration of a run and is driven
// by the host loop: one PostBackward call after gradients land, one Step call
// to apply them. The MCMC strategy relocates dead splats, grows the
// population toward a capacity target, keeps the optimizer's moment state
// aligned through every resize, and perturbs positions with
// covariance-shaped noise.
package training

import (
	"github.com/shadygm/go-splat/render"
	"github.com/shadygm/go-splat/splat"
)

// Strategy is the contract between the training loop and a density-control
// implementation.
type Strategy interface {
	// Initialize builds the optimizer, scheduler, and any precomputed
	// tables. Must be called once before PostBackward or Step.
	Initialize(params OptimizationParams) error

	// PostBackward runs once per iteration after the backward pass and
	// before Step. It may restructure the model.
	PostBackward(iter int, out *render.Output) error

	// Step applies accumulated gradients and advances the learning-rate
	// schedule. Runs once per iteration.
	Step(iter int) error

	// IsRefining reports whether the given iteration restructures the
	// model. Pure query, no side effects.
	IsRefining(iter int) bool

	// Model returns the model being optimized, for renderers and
	// checkpoint writers.
	Model() *splat.SplatData
}
