package cvio

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/golang/geo/r3"
	"gocv.io/x/gocv"

	"github.com/banshee-data/markercal/internal/camera"
	"github.com/banshee-data/markercal/internal/monitoring"
	"github.com/banshee-data/markercal/internal/solver"
	"github.com/banshee-data/markercal/internal/vision"
)

// cv::calibrateCamera flag bits.
const (
	calibFixK3         = 1 << 7
	calibRationalModel = 1 << 14
)

// cv::SOLVEPNP_ITERATIVE
const solvePnPIterative = 0

// Calibrator runs cv::calibrateCamera. It implements vision.Calibrator.
type Calibrator struct {
	// DistortionCoefficients selects 4, 5 or 8 coefficients; zero means 5.
	DistortionCoefficients int
}

var _ vision.Calibrator = Calibrator{}

// Calibrate estimates intrinsics and distortion, then recovers each view's
// board pose against the result for per-view error reporting.
func (c Calibrator) Calibrate(ctx context.Context, sets []vision.PointSet, imageSize image.Point) (vision.Calibration, error) {
	n, flags, err := calibrationModel(c.DistortionCoefficients)
	if err != nil {
		return vision.Calibration{}, err
	}
	if imageSize.X <= 0 || imageSize.Y <= 0 {
		return vision.Calibration{}, fmt.Errorf("%w: image size must be positive, got %v", vision.ErrConfiguration, imageSize)
	}
	if len(sets) == 0 {
		return vision.Calibration{}, fmt.Errorf("%w: no point sets", vision.ErrInsufficientData)
	}
	for i, set := range sets {
		if err := set.Validate(); err != nil {
			return vision.Calibration{}, fmt.Errorf("view %d: %w", i, err)
		}
		if len(set.Object) < 4 {
			return vision.Calibration{}, fmt.Errorf("%w: view %d has %d points, need 4", vision.ErrInsufficientData, i, len(set.Object))
		}
	}
	if err := ctx.Err(); err != nil {
		return vision.Calibration{}, err
	}

	objectPoints := gocv.NewPoints3fVector()
	defer objectPoints.Close()
	imagePoints := gocv.NewPoints2fVector()
	defer imagePoints.Close()
	for _, set := range sets {
		obj := gocv.NewPoint3fVectorFromPoints(toPoint3fs(set.Object))
		objectPoints.Append(obj)
		obj.Close()
		img := gocv.NewPoint2fVectorFromPoints(toPoint2fs(set.Image))
		imagePoints.Append(img)
		img.Close()
	}

	k := gocv.NewMat()
	defer k.Close()
	dist := gocv.NewMat()
	defer dist.Close()
	rvecs := gocv.NewMat()
	defer rvecs.Close()
	tvecs := gocv.NewMat()
	defer tvecs.Close()

	rms := gocv.CalibrateCamera(objectPoints, imagePoints, imageSize, &k, &dist, &rvecs, &tvecs, gocv.CalibFlag(flags))
	if math.IsNaN(rms) || math.IsInf(rms, 0) || k.Rows() != 3 || k.Cols() != 3 {
		return vision.Calibration{}, fmt.Errorf("%w: calibrateCamera returned rms %g with a %dx%d camera matrix", vision.ErrComputation, rms, k.Rows(), k.Cols())
	}

	var matrix camera.Mat3
	for r := 0; r < 3; r++ {
		for col := 0; col < 3; col++ {
			matrix[3*r+col] = k.GetDoubleAt(r, col)
		}
	}
	model, err := camera.NewModel(matrix, readVector(dist, n))
	if err != nil {
		return vision.Calibration{}, fmt.Errorf("%w: %v", vision.ErrComputation, err)
	}

	cal := vision.Calibration{Camera: model, RMS: rms}
	extrinsics := make([]camera.Pose, 0, len(sets))
	for i, set := range sets {
		if err := ctx.Err(); err != nil {
			return vision.Calibration{}, err
		}
		pose, err := solvePnP(set.Object, set.Image, model)
		if err != nil {
			// Per-view errors are optional; the calibration itself stands.
			monitoring.Logf("view %d: no board pose for per-view errors: %v", i+1, err)
			return cal, nil
		}
		extrinsics = append(extrinsics, pose)
	}
	cal.Extrinsics = extrinsics
	return cal, nil
}

// PoseSolver runs cv::solvePnP and rejects degenerate input and poorly
// fitting solutions. It implements vision.PoseSolver.
type PoseSolver struct {
	// MaxReprojectionError defaults to solver.DefaultMaxReprojectionError.
	MaxReprojectionError float64
}

var _ vision.PoseSolver = PoseSolver{}

// SolvePose implements vision.PoseSolver.
func (s PoseSolver) SolvePose(object []r3.Vector, image []camera.Point2, cam camera.Model) (camera.Pose, error) {
	if len(object) != len(image) {
		return camera.Pose{}, fmt.Errorf("%w: %d object points vs %d image points", vision.ErrConfiguration, len(object), len(image))
	}
	if len(object) < 4 {
		return camera.Pose{}, fmt.Errorf("%w: pose needs at least 4 points, got %d", vision.ErrComputation, len(object))
	}
	if err := cam.Validate(); err != nil {
		return camera.Pose{}, fmt.Errorf("%w: %v", vision.ErrConfiguration, err)
	}
	if err := solver.CheckImagePoints(image); err != nil {
		return camera.Pose{}, err
	}
	pose, err := solvePnP(object, image, cam)
	if err != nil {
		return camera.Pose{}, err
	}
	if err := solver.CheckPose(object, image, cam, pose, s.MaxReprojectionError); err != nil {
		return camera.Pose{}, err
	}
	return pose, nil
}

func solvePnP(object []r3.Vector, image []camera.Point2, cam camera.Model) (camera.Pose, error) {
	obj := gocv.NewPoint3fVectorFromPoints(toPoint3fs(object))
	defer obj.Close()
	img := gocv.NewPoint2fVectorFromPoints(toPoint2fs(image))
	defer img.Close()

	k := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	defer k.Close()
	m := cam.Matrix()
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			k.SetDoubleAt(r, c, m[3*r+c])
		}
	}
	dist := distortionMat(cam.Distortion)
	defer dist.Close()

	rvec := gocv.NewMat()
	defer rvec.Close()
	tvec := gocv.NewMat()
	defer tvec.Close()

	if !gocv.SolvePnP(obj, img, k, dist, &rvec, &tvec, false, solvePnPIterative) {
		return camera.Pose{}, fmt.Errorf("%w: solvePnP found no solution", vision.ErrComputation)
	}
	if rvec.Total() != 3 || tvec.Total() != 3 {
		return camera.Pose{}, fmt.Errorf("%w: solvePnP returned %d/%d pose values", vision.ErrComputation, rvec.Total(), tvec.Total())
	}
	rot := readVector(rvec, 3)
	trans := readVector(tvec, 3)
	return camera.Pose{
		Rotation:    r3.Vector{X: rot[0], Y: rot[1], Z: rot[2]},
		Translation: r3.Vector{X: trans[0], Y: trans[1], Z: trans[2]},
	}, nil
}

// calibrationModel maps a coefficient count to calibrateCamera flags.
func calibrationModel(n int) (int, int, error) {
	switch n {
	case 0, 5:
		return 5, 0, nil
	case 4:
		return 4, calibFixK3, nil
	case 8:
		return 8, calibRationalModel, nil
	}
	return 0, 0, fmt.Errorf("%w: unsupported distortion model with %d coefficients", vision.ErrConfiguration, n)
}

// distortionMat returns a 1xN CV_64F row, or an empty Mat for no distortion.
func distortionMat(coeffs []float64) gocv.Mat {
	if len(coeffs) == 0 {
		return gocv.NewMat()
	}
	d := gocv.NewMatWithSize(1, len(coeffs), gocv.MatTypeCV64F)
	for i, v := range coeffs {
		d.SetDoubleAt(0, i, v)
	}
	return d
}

// readVector reads the first n doubles of a row or column vector, padding
// with zeros.
func readVector(m gocv.Mat, n int) []float64 {
	out := make([]float64, n)
	total := m.Total()
	for i := 0; i < n && i < total; i++ {
		if m.Rows() == 1 {
			out[i] = m.GetDoubleAt(0, i)
		} else {
			out[i] = m.GetDoubleAt(i, 0)
		}
	}
	return out
}

func toPoint3fs(points []r3.Vector) []gocv.Point3f {
	out := make([]gocv.Point3f, len(points))
	for i, p := range points {
		out[i] = gocv.Point3f{X: float32(p.X), Y: float32(p.Y), Z: float32(p.Z)}
	}
	return out
}

func toPoint2fs(points []camera.Point2) []gocv.Point2f {
	out := make([]gocv.Point2f, len(points))
	for i, p := range points {
		out[i] = toPoint2f(p)
	}
	return out
}
