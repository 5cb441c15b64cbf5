package camera

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

var (
	// ErrInvalidModel is returned when intrinsics or distortion are unusable.
	ErrInvalidModel = errors.New("invalid camera model")

	// ErrBehindCamera is returned when a point projects from behind the image plane.
	ErrBehindCamera = errors.New("point behind camera")
)

// undistortIterations bounds the fixed-point undistortion loop.
const undistortIterations = 20

// minDepth is the smallest camera-frame Z accepted for projection.
const minDepth = 1e-9

// Point2 is an image-plane point in pixels (or normalised units where stated).
type Point2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sub returns p - q.
func (p Point2) Sub(q Point2) Point2 { return Point2{X: p.X - q.X, Y: p.Y - q.Y} }

// Norm returns the Euclidean length of p.
func (p Point2) Norm() float64 { return math.Hypot(p.X, p.Y) }

// Model is a pinhole camera with lens distortion.
//
// Distortion follows the k1, k2, p1, p2[, k3[, k4, k5, k6]] ordering.
type Model struct {
	FX, FY     float64
	CX, CY     float64
	Skew       float64
	Distortion []float64
}

// NewModel builds a Model from a row-major 3x3 camera matrix and a distortion vector.
func NewModel(k Mat3, dist []float64) (Model, error) {
	if k[3] != 0 || k[6] != 0 || k[7] != 0 || k[8] != 1 {
		return Model{}, fmt.Errorf("%w: camera matrix bottom rows must be [0 fy cy; 0 0 1]", ErrInvalidModel)
	}
	m := Model{
		FX:         k[0],
		Skew:       k[1],
		CX:         k[2],
		FY:         k[4],
		CY:         k[5],
		Distortion: append([]float64(nil), dist...),
	}
	if err := m.Validate(); err != nil {
		return Model{}, err
	}
	return m, nil
}

// Matrix returns the row-major 3x3 intrinsic matrix.
func (m Model) Matrix() Mat3 {
	return Mat3{
		m.FX, m.Skew, m.CX,
		0, m.FY, m.CY,
		0, 0, 1,
	}
}

// Validate checks focal lengths and the distortion vector length.
func (m Model) Validate() error {
	for _, v := range []float64{m.FX, m.FY, m.CX, m.CY, m.Skew} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite intrinsic", ErrInvalidModel)
		}
	}
	if m.FX <= 0 || m.FY <= 0 {
		return fmt.Errorf("%w: focal lengths must be positive, got fx=%g fy=%g", ErrInvalidModel, m.FX, m.FY)
	}
	switch len(m.Distortion) {
	case 0, 4, 5, 8:
	default:
		return fmt.Errorf("%w: unsupported distortion length %d (want 0, 4, 5 or 8)", ErrInvalidModel, len(m.Distortion))
	}
	for _, v := range m.Distortion {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite distortion coefficient", ErrInvalidModel)
		}
	}
	return nil
}

// coefficients returns k1 k2 p1 p2 k3 k4 k5 k6, zero-padded.
func (m Model) coefficients() [8]float64 {
	var k [8]float64
	copy(k[:], m.Distortion)
	return k
}

// Distort applies lens distortion to a normalised image point.
func (m Model) Distort(x, y float64) (float64, float64) {
	k := m.coefficients()
	r2 := x*x + y*y
	r4 := r2 * r2
	r6 := r4 * r2
	radial := (1 + k[0]*r2 + k[1]*r4 + k[4]*r6) / (1 + k[5]*r2 + k[6]*r4 + k[7]*r6)
	xd := x*radial + 2*k[2]*x*y + k[3]*(r2+2*x*x)
	yd := y*radial + k[2]*(r2+2*y*y) + 2*k[3]*x*y
	return xd, yd
}

// ToPixel maps a normalised, undistorted point to pixel coordinates.
func (m Model) ToPixel(x, y float64) Point2 {
	xd, yd := m.Distort(x, y)
	return Point2{
		X: m.FX*xd + m.Skew*yd + m.CX,
		Y: m.FY*yd + m.CY,
	}
}

// Normalize maps a pixel to normalised, undistorted coordinates.
func (m Model) Normalize(p Point2) (float64, float64) {
	y0 := (p.Y - m.CY) / m.FY
	x0 := (p.X - m.CX - m.Skew*y0) / m.FX
	if len(m.Distortion) == 0 {
		return x0, y0
	}

	k := m.coefficients()
	x, y := x0, y0
	for i := 0; i < undistortIterations; i++ {
		r2 := x*x + y*y
		r4 := r2 * r2
		r6 := r4 * r2
		icdist := (1 + k[5]*r2 + k[6]*r4 + k[7]*r6) / (1 + k[0]*r2 + k[1]*r4 + k[4]*r6)
		dx := 2*k[2]*x*y + k[3]*(r2+2*x*x)
		dy := k[2]*(r2+2*y*y) + 2*k[3]*x*y
		x = (x0 - dx) * icdist
		y = (y0 - dy) * icdist
	}
	return x, y
}

// Pose is a rigid transform from an object frame to the camera frame.
type Pose struct {
	Rotation    r3.Vector `json:"rvec"`
	Translation r3.Vector `json:"tvec"`
}

// Transform applies the pose to an object-frame point.
func (p Pose) Transform(v r3.Vector) r3.Vector {
	return Rodrigues(p.Rotation).MulVec(v).Add(p.Translation)
}

// ProjectPoints projects object-frame points through pose and model.
// Output order matches input order.
func ProjectPoints(m Model, pose Pose, points []r3.Vector) ([]Point2, error) {
	rot := Rodrigues(pose.Rotation)
	out := make([]Point2, len(points))
	for i, p := range points {
		c := rot.MulVec(p).Add(pose.Translation)
		if c.Z < minDepth {
			return nil, fmt.Errorf("%w: point %d at depth %g", ErrBehindCamera, i, c.Z)
		}
		out[i] = m.ToPixel(c.X/c.Z, c.Y/c.Z)
	}
	return out, nil
}

// Thickness returns the ratio of the minor to the major principal spread of
// points: 0 when they are coincident or collinear, 1 for an isotropic cloud.
// A square seen at an angle θ from its normal has thickness about cos θ.
func Thickness(points []Point2) float64 {
	if len(points) == 0 {
		return 0
	}
	var mx, my float64
	for _, p := range points {
		mx += p.X
		my += p.Y
	}
	n := float64(len(points))
	mx /= n
	my /= n

	var sxx, syy, sxy float64
	for _, p := range points {
		dx, dy := p.X-mx, p.Y-my
		sxx += dx * dx
		syy += dy * dy
		sxy += dx * dy
	}
	half := (sxx + syy) / 2
	if half <= 0 {
		return 0
	}
	disc := math.Hypot((sxx-syy)/2, sxy)
	major, minor := half+disc, math.Max(half-disc, 0)
	return math.Sqrt(minor / major)
}

// ReprojectionErrors projects object through pose and returns the RMS and the
// largest pixel distance to the matching image points.
func ReprojectionErrors(m Model, pose Pose, object []r3.Vector, image []Point2) (rms, worst float64, err error) {
	if len(object) != len(image) {
		return 0, 0, fmt.Errorf("%d object points vs %d image points", len(object), len(image))
	}
	projected, err := ProjectPoints(m, pose, object)
	if err != nil {
		return 0, 0, err
	}
	var sum float64
	for i := range projected {
		d := projected[i].Sub(image[i]).Norm()
		sum += d * d
		worst = math.Max(worst, d)
	}
	if len(projected) > 0 {
		rms = math.Sqrt(sum / float64(len(projected)))
	}
	return rms, worst, nil
}
