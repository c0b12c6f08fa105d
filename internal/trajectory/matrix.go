package trajectory

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// RotationMatrix returns the 3x3 matrix Rz(roll)·Ry(yaw)·Rx(pitch).
// The composition order matches what the render engine expects from an
// XYZ Euler and must not change independently of it.
func (e EulerAngles) RotationMatrix() *mat.Dense {
	cp, sp := math.Cos(e.Pitch), math.Sin(e.Pitch)
	cy, sy := math.Cos(e.Yaw), math.Sin(e.Yaw)
	cr, sr := math.Cos(e.Roll), math.Sin(e.Roll)

	rx := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, cp, -sp,
		0, sp, cp,
	})
	ry := mat.NewDense(3, 3, []float64{
		cy, 0, sy,
		0, 1, 0,
		-sy, 0, cy,
	})
	rz := mat.NewDense(3, 3, []float64{
		cr, -sr, 0,
		sr, cr, 0,
		0, 0, 1,
	})

	var zy, zyx mat.Dense
	zy.Mul(rz, ry)
	zyx.Mul(&zy, rx)
	return &zyx
}
