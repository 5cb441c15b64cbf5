package solver

import (
	"context"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/markercal/internal/camera"
	"github.com/banshee-data/markercal/internal/vision"
)

// planarTolerance is the largest |Z| accepted for a "planar" object point,
// relative to the object extent.
const planarTolerance = 1e-9

// DefaultMaxReprojectionError is the largest corner miss, in pixels, accepted
// for a solved pose.
const DefaultMaxReprojectionError = 2.0

// minImageThickness is the smallest camera.Thickness accepted for the image
// points of a pose solve. A square seen 89° off its normal is about 0.017.
const minImageThickness = 0.01

// PlanarPoseSolver recovers the pose of a planar target (all object points on
// Z = 0) from four or more correspondences. It implements vision.PoseSolver.
type PlanarPoseSolver struct {
	// MaxIterations bounds the refinement; zero means the default.
	MaxIterations int
	// MaxReprojectionError rejects a refined pose that misses any corner by
	// more pixels; zero means DefaultMaxReprojectionError.
	MaxReprojectionError float64
}

// SolvePose returns the object-to-camera pose.
func (s PlanarPoseSolver) SolvePose(object []r3.Vector, image []camera.Point2, cam camera.Model) (camera.Pose, error) {
	if len(object) != len(image) {
		return camera.Pose{}, fmt.Errorf("%w: %d object points vs %d image points", vision.ErrConfiguration, len(object), len(image))
	}
	if len(object) < 4 {
		return camera.Pose{}, fmt.Errorf("%w: pose needs at least 4 points, got %d", vision.ErrComputation, len(object))
	}
	if err := cam.Validate(); err != nil {
		return camera.Pose{}, fmt.Errorf("%w: %v", vision.ErrConfiguration, err)
	}
	if err := CheckImagePoints(image); err != nil {
		return camera.Pose{}, err
	}
	plane, err := planeCoordinates(object)
	if err != nil {
		return camera.Pose{}, err
	}

	normalised := make([]camera.Point2, len(image))
	for i, p := range image {
		x, y := cam.Normalize(p)
		normalised[i] = camera.Point2{X: x, Y: y}
	}

	h, err := findHomography(plane, normalised)
	if err != nil {
		return camera.Pose{}, err
	}
	initial, err := poseFromHomography(h)
	if err != nil {
		return camera.Pose{}, err
	}

	settings := defaultLMSettings()
	if s.MaxIterations > 0 {
		settings.MaxIterations = s.MaxIterations
	}
	pose, err := refinePose(context.Background(), object, image, cam, initial, settings)
	if err != nil {
		return camera.Pose{}, err
	}
	pose.Rotation = camera.RotationVector(camera.Rodrigues(pose.Rotation))
	if err := CheckPose(object, image, cam, pose, s.MaxReprojectionError); err != nil {
		return camera.Pose{}, err
	}
	return pose, nil
}

// CheckImagePoints rejects coincident or near-collinear image points, which
// admit no unique planar pose.
func CheckImagePoints(image []camera.Point2) error {
	if t := camera.Thickness(image); t < minImageThickness {
		return fmt.Errorf("%w: image points are degenerate (thickness %.4f)", vision.ErrComputation, t)
	}
	return nil
}

// CheckPose rejects a pose that is not finite, lies behind the camera, or
// misses any image point by more than maxError pixels. Zero maxError means
// DefaultMaxReprojectionError.
func CheckPose(object []r3.Vector, image []camera.Point2, cam camera.Model, pose camera.Pose, maxError float64) error {
	if maxError <= 0 {
		maxError = DefaultMaxReprojectionError
	}
	if !finitePose(pose) || pose.Translation.Z <= 0 {
		return fmt.Errorf("%w: solver produced an invalid pose", vision.ErrComputation)
	}
	_, worst, err := camera.ReprojectionErrors(cam, pose, object, image)
	if err != nil {
		return fmt.Errorf("%w: reproject pose: %v", vision.ErrComputation, err)
	}
	if worst > maxError {
		return fmt.Errorf("%w: pose misses a corner by %.2f px (limit %.2f)", vision.ErrComputation, worst, maxError)
	}
	return nil
}

// planeCoordinates checks that every point lies on Z = 0 and returns (X, Y).
func planeCoordinates(object []r3.Vector) ([]camera.Point2, error) {
	var extent float64
	for _, p := range object {
		extent = math.Max(extent, math.Max(math.Abs(p.X), math.Abs(p.Y)))
	}
	limit := planarTolerance * math.Max(extent, 1)
	out := make([]camera.Point2, len(object))
	for i, p := range object {
		if math.Abs(p.Z) > limit {
			return nil, fmt.Errorf("%w: object point %d is off the Z=0 plane (z=%g)", vision.ErrComputation, i, p.Z)
		}
		out[i] = camera.Point2{X: p.X, Y: p.Y}
	}
	return out, nil
}

// poseFromHomography decomposes H ~ [r1 r2 t] (normalised image coordinates)
// into a rotation and translation in front of the camera.
func poseFromHomography(h camera.Mat3) (camera.Pose, error) {
	h1, h2, h3 := h.Col(0), h.Col(1), h.Col(2)
	n1, n2 := h1.Norm(), h2.Norm()
	if n1 < 1e-15 || n2 < 1e-15 {
		return camera.Pose{}, fmt.Errorf("%w: degenerate homography", vision.ErrComputation)
	}
	lambda := 2 / (n1 + n2)
	if h3.Z*lambda < 0 {
		lambda = -lambda
	}

	r1 := h1.Mul(lambda)
	r2 := h2.Mul(lambda)
	r3v := r1.Cross(r2)
	rot, err := nearestRotation(camera.Mat3{
		r1.X, r2.X, r3v.X,
		r1.Y, r2.Y, r3v.Y,
		r1.Z, r2.Z, r3v.Z,
	})
	if err != nil {
		return camera.Pose{}, err
	}
	return camera.Pose{
		Rotation:    camera.RotationVector(rot),
		Translation: h3.Mul(lambda),
	}, nil
}

// nearestRotation projects m onto SO(3) in the Frobenius sense.
func nearestRotation(m camera.Mat3) (camera.Mat3, error) {
	var svd mat.SVD
	if !svd.Factorize(mat.NewDense(3, 3, m[:]), mat.SVDFull) {
		return camera.Mat3{}, fmt.Errorf("%w: rotation SVD failed", vision.ErrComputation)
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var r mat.Dense
	r.Mul(&u, v.T())
	if mat.Det(&r) < 0 {
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		r.Mul(&u, v.T())
	}

	var out camera.Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i*3+j] = r.At(i, j)
		}
	}
	return out, nil
}

// refinePose minimises pixel reprojection error over the six pose parameters.
func refinePose(ctx context.Context, object []r3.Vector, image []camera.Point2, cam camera.Model, initial camera.Pose, settings lmSettings) (camera.Pose, error) {
	res := func(p, out []float64) error {
		pose := poseFromParams(p)
		projected, err := camera.ProjectPoints(cam, pose, object)
		if err != nil {
			return err
		}
		for i := range projected {
			out[2*i] = projected[i].X - image[i].X
			out[2*i+1] = projected[i].Y - image[i].Y
		}
		return nil
	}

	result, err := levenbergMarquardt(ctx, 2*len(object), poseParams(initial), res, nil, settings)
	if err != nil {
		return camera.Pose{}, fmt.Errorf("%w: pose refinement: %v", vision.ErrComputation, err)
	}
	return poseFromParams(result.Params), nil
}

func poseParams(p camera.Pose) []float64 {
	return []float64{
		p.Rotation.X, p.Rotation.Y, p.Rotation.Z,
		p.Translation.X, p.Translation.Y, p.Translation.Z,
	}
}

func poseFromParams(p []float64) camera.Pose {
	return camera.Pose{
		Rotation:    r3.Vector{X: p[0], Y: p[1], Z: p[2]},
		Translation: r3.Vector{X: p[3], Y: p[4], Z: p[5]},
	}
}

func finitePose(p camera.Pose) bool {
	for _, v := range poseParams(p) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
