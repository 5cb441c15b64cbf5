package camera

import (
	"math"

	"github.com/golang/geo/r3"
)

// Mat3 is a 3x3 matrix stored row-major: m00,m01,m02, m10,...
type Mat3 [9]float64

// Identity3 returns the 3x3 identity matrix.
func Identity3() Mat3 {
	return Mat3{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// MulVec returns m * v.
func (m Mat3) MulVec(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m[0]*v.X + m[1]*v.Y + m[2]*v.Z,
		Y: m[3]*v.X + m[4]*v.Y + m[5]*v.Z,
		Z: m[6]*v.X + m[7]*v.Y + m[8]*v.Z,
	}
}

// Mul returns m * n.
func (m Mat3) Mul(n Mat3) Mat3 {
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i*3+j] = m[i*3]*n[j] + m[i*3+1]*n[3+j] + m[i*3+2]*n[6+j]
		}
	}
	return out
}

// Transpose returns mᵀ.
func (m Mat3) Transpose() Mat3 {
	return Mat3{m[0], m[3], m[6], m[1], m[4], m[7], m[2], m[5], m[8]}
}

// Det returns the determinant of m.
func (m Mat3) Det() float64 {
	return m[0]*(m[4]*m[8]-m[5]*m[7]) - m[1]*(m[3]*m[8]-m[5]*m[6]) + m[2]*(m[3]*m[7]-m[4]*m[6])
}

// Col returns column j of m.
func (m Mat3) Col(j int) r3.Vector {
	return r3.Vector{X: m[j], Y: m[3+j], Z: m[6+j]}
}

// Rodrigues converts a rotation vector (axis * angle, radians) to a rotation matrix.
func Rodrigues(r r3.Vector) Mat3 {
	theta := r.Norm()
	if theta < 1e-12 {
		// first-order expansion: I + [r]x
		return Mat3{
			1, -r.Z, r.Y,
			r.Z, 1, -r.X,
			-r.Y, r.X, 1,
		}
	}
	k := r.Mul(1 / theta)
	c, s := math.Cos(theta), math.Sin(theta)
	v := 1 - c
	return Mat3{
		c + k.X*k.X*v, k.X*k.Y*v - k.Z*s, k.X*k.Z*v + k.Y*s,
		k.Y*k.X*v + k.Z*s, c + k.Y*k.Y*v, k.Y*k.Z*v - k.X*s,
		k.Z*k.X*v - k.Y*s, k.Z*k.Y*v + k.X*s, c + k.Z*k.Z*v,
	}
}

// RotationVector converts a rotation matrix back to its Rodrigues vector.
// The returned angle lies in [0, π].
func RotationVector(m Mat3) r3.Vector {
	cosTheta := (m[0] + m[4] + m[8] - 1) / 2
	cosTheta = math.Max(-1, math.Min(1, cosTheta))
	theta := math.Acos(cosTheta)

	axis := r3.Vector{X: m[7] - m[5], Y: m[2] - m[6], Z: m[3] - m[1]}
	sinTheta := math.Sin(theta)

	switch {
	case theta < 1e-9:
		return axis.Mul(0.5)
	case sinTheta > 1e-6:
		return axis.Mul(theta / (2 * sinTheta))
	}

	// theta ≈ π: recover the axis from the symmetric part (R + I) / 2 = k kᵀ.
	a := [9]float64{}
	for i := range a {
		a[i] = m[i] / 2
	}
	a[0] += 0.5
	a[4] += 0.5
	a[8] += 0.5

	i := 0
	if a[4] > a[i*4] {
		i = 1
	}
	if a[8] > a[i*4] {
		i = 2
	}
	k := [3]float64{}
	k[i] = math.Sqrt(a[i*4])
	for j := 0; j < 3; j++ {
		if j != i {
			k[j] = a[i*3+j] / k[i]
		}
	}
	v := r3.Vector{X: k[0], Y: k[1], Z: k[2]}.Normalize()
	return v.Mul(theta)
}
