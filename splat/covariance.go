package splat

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/shadygm/go-splat/tensor"
)

// QuatScaleToCovar converts per-splat rotations and scales into 3x3
// covariance matrices: covar = R * diag(s) * diag(s) * R^T, where R is the
// rotation matrix of the (w, x, y, z) quaternion. Quaternions are normalized
// internally, so raw rows are accepted. Returns a [N, 3, 3] tensor.
func QuatScaleToCovar(quats, scales *tensor.Tensor) (*tensor.Tensor, error) {
	if quats == nil || scales == nil {
		return nil, fmt.Errorf("QuatScaleToCovar: nil input tensor")
	}
	if quats.DType != tensor.Float32 || len(quats.Shape) != 2 || quats.Shape[1] != 4 {
		return nil, fmt.Errorf("QuatScaleToCovar: quats must be Float32 [N, 4], got %s %v", quats.DType, quats.Shape)
	}
	n := quats.Shape[0]
	if scales.DType != tensor.Float32 || len(scales.Shape) != 2 || scales.Shape[0] != n || scales.Shape[1] != 3 {
		return nil, fmt.Errorf("QuatScaleToCovar: scales must be Float32 [%d, 3], got %s %v", n, scales.DType, scales.Shape)
	}

	covars, err := tensor.Zeros([]int{n, 3, 3}, tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("QuatScaleToCovar: %v", err)
	}

	quatData := quats.Data.([]float32)
	scaleData := scales.Data.([]float32)
	covarData := covars.Data.([]float32)

	for i := 0; i < n; i++ {
		w, x, y, z := quatData[i*4], quatData[i*4+1], quatData[i*4+2], quatData[i*4+3]
		norm := math32.Sqrt(w*w + x*x + y*y + z*z)
		if norm < quatNormEps {
			norm = quatNormEps
		}
		w, x, y, z = w/norm, x/norm, y/norm, z/norm

		r := [3][3]float32{
			{1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y)},
			{2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x)},
			{2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y)},
		}

		// M = R * diag(s); covar = M * M^T.
		var m [3][3]float32
		for row := 0; row < 3; row++ {
			for col := 0; col < 3; col++ {
				m[row][col] = r[row][col] * scaleData[i*3+col]
			}
		}
		for row := 0; row < 3; row++ {
			for col := 0; col < 3; col++ {
				var sum float32
				for k := 0; k < 3; k++ {
					sum += m[row][k] * m[col][k]
				}
				covarData[i*9+row*3+col] = sum
			}
		}
	}

	return covars, nil
}
