// Package render defines the boundary to the rasterization backend. The
// density-control optimizer never renders; it only hands the model to a
// Rasterizer and receives per-pass statistics back through Output.
package render

import (
	"github.com/shadygm/go-splat/splat"
	"github.com/shadygm/go-splat/tensor"
)

// Camera is the minimal pose and intrinsics a rasterizer needs.
type Camera struct {
	ViewMatrix     *tensor.Tensor // [4, 4] world-to-camera transform
	FocalX, FocalY float32
	Width, Height  int
}

// Output carries one rasterization pass's image and per-splat statistics.
// The training strategies receive it for call-order symmetry with the
// backward pass but read nothing from it.
type Output struct {
	Image        *tensor.Tensor // [H, W, 3]
	Radii        *tensor.Tensor // [N] screen-space radii, zero for culled splats
	VisibleCount int
}

// Rasterizer renders a splat model from a camera pose over a background
// color, with a global multiplier applied to the splat scales.
type Rasterizer interface {
	Rasterize(cam Camera, model *splat.SplatData, background *tensor.Tensor, scaleModifier float32) (*Output, error)
}
