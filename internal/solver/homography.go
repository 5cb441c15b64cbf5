package solver

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/markercal/internal/camera"
	"github.com/banshee-data/markercal/internal/vision"
)

// degenerateCondition is the smallest accepted ratio between the two
// smallest informative singular values of the normalised DLT system. Below it
// the correspondences are (nearly) collinear and the homography is not unique.
const degenerateCondition = 1e-7

// findHomography estimates H with dst ~ H * src using the normalised DLT.
// It needs at least four correspondences, no three of them collinear.
func findHomography(src, dst []camera.Point2) (camera.Mat3, error) {
	n := len(src)
	if n != len(dst) {
		return camera.Mat3{}, fmt.Errorf("%w: homography needs matching point counts, got %d and %d", vision.ErrComputation, n, len(dst))
	}
	if n < 4 {
		return camera.Mat3{}, fmt.Errorf("%w: homography needs at least 4 points, got %d", vision.ErrComputation, n)
	}

	ts, okS := normalisation(src)
	td, okD := normalisation(dst)
	if !okS || !okD {
		return camera.Mat3{}, fmt.Errorf("%w: homography points are coincident", vision.ErrComputation)
	}

	a := mat.NewDense(2*n, 9, nil)
	for i := 0; i < n; i++ {
		x, y := applyAffine(ts, src[i])
		u, v := applyAffine(td, dst[i])
		a.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return camera.Mat3{}, fmt.Errorf("%w: homography SVD failed", vision.ErrComputation)
	}
	values := svd.Values(nil)
	if values[0] == 0 || values[7]/values[0] < degenerateCondition {
		return camera.Mat3{}, fmt.Errorf("%w: degenerate point configuration (near-collinear)", vision.ErrComputation)
	}
	var v mat.Dense
	svd.VTo(&v)

	var hn camera.Mat3
	for i := 0; i < 9; i++ {
		hn[i] = v.At(i, 8)
	}

	// H = Td⁻¹ * Hn * Ts
	h := invertAffine(td).Mul(hn).Mul(ts)
	scale := h[8]
	if math.Abs(scale) < 1e-15 {
		scale = math.Sqrt(dot9(h, h))
	}
	for i := range h {
		h[i] /= scale
	}
	return h, nil
}

// normalisation returns the similarity that moves the centroid to the origin
// and sets the mean distance from it to √2.
func normalisation(pts []camera.Point2) (camera.Mat3, bool) {
	var cx, cy float64
	for _, p := range pts {
		cx += p.X
		cy += p.Y
	}
	cx /= float64(len(pts))
	cy /= float64(len(pts))

	var mean float64
	for _, p := range pts {
		mean += math.Hypot(p.X-cx, p.Y-cy)
	}
	mean /= float64(len(pts))
	if mean < 1e-15 {
		return camera.Mat3{}, false
	}
	s := math.Sqrt2 / mean
	return camera.Mat3{
		s, 0, -s * cx,
		0, s, -s * cy,
		0, 0, 1,
	}, true
}

func applyAffine(t camera.Mat3, p camera.Point2) (float64, float64) {
	return t[0]*p.X + t[1]*p.Y + t[2], t[3]*p.X + t[4]*p.Y + t[5]
}

// invertAffine inverts a normalisation produced by normalisation.
func invertAffine(t camera.Mat3) camera.Mat3 {
	s := t[0]
	return camera.Mat3{
		1 / s, 0, -t[2] / s,
		0, 1 / s, -t[5] / s,
		0, 0, 1,
	}
}

func dot9(a, b camera.Mat3) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
