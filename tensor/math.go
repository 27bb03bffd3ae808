package tensor

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Float kernels for the raw<->activated parameter transforms. All of them are
// float32 end to end via chewxy/math32 so values round-trip without a float64
// detour.

func Sqrt(t *Tensor) (*Tensor, error) {
	return elementwiseUnary(t, "Sqrt", func(v float32) float32 {
		if v < 0 {
			return math32.NaN()
		}
		return math32.Sqrt(v)
	})
}

func Exp(t *Tensor) (*Tensor, error) {
	return elementwiseUnary(t, "Exp", math32.Exp)
}

func Log(t *Tensor) (*Tensor, error) {
	return elementwiseUnary(t, "Log", math32.Log)
}

func Sigmoid(t *Tensor) (*Tensor, error) {
	return elementwiseUnary(t, "Sigmoid", func(v float32) float32 {
		return 1.0 / (1.0 + math32.Exp(-v))
	})
}

// Logit is the inverse of Sigmoid: log(p / (1-p)). Inputs are expected to be
// clamped away from 0 and 1 by the caller; exact 0 or 1 yields -Inf/+Inf.
func Logit(t *Tensor) (*Tensor, error) {
	return elementwiseUnary(t, "Logit", func(v float32) float32 {
		return math32.Log(v / (1.0 - v))
	})
}

// Pow raises base elementwise to the matching exponent. Both tensors must be
// Float32 with identical shapes.
func Pow(base, exponent *Tensor) (*Tensor, error) {
	if base.DType != Float32 || exponent.DType != Float32 {
		return nil, fmt.Errorf("Pow requires Float32 tensors, got %s and %s", base.DType, exponent.DType)
	}
	return elementwiseBinary(base, exponent, "Pow", math32.Pow, nil)
}

// PowScalar raises every element to a fixed exponent.
func PowScalar(t *Tensor, exponent float32) (*Tensor, error) {
	return elementwiseUnary(t, "PowScalar", func(v float32) float32 {
		return math32.Pow(v, exponent)
	})
}

func Clamp(t *Tensor, min, max float32) (*Tensor, error) {
	if min > max {
		return nil, fmt.Errorf("invalid clamp range [%f, %f]", min, max)
	}
	return elementwiseUnary(t, "Clamp", func(v float32) float32 {
		if v < min {
			return min
		}
		if v > max {
			return max
		}
		return v
	})
}

// LessEqual returns a Float32 mask with 1 where t <= threshold, else 0.
func LessEqual(t *Tensor, threshold float32) (*Tensor, error) {
	return elementwiseUnary(t, "LessEqual", func(v float32) float32 {
		if v <= threshold {
			return 1
		}
		return 0
	})
}

// HasNaN reports whether any element of a Float32 tensor is NaN or Inf.
func HasNaN(t *Tensor) (bool, error) {
	if t.DType != Float32 {
		return false, fmt.Errorf("unsupported dtype for HasNaN: %s", t.DType)
	}
	data := t.Data.([]float32)
	for _, v := range data {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			return true, nil
		}
	}
	return false, nil
}
