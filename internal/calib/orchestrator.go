package calib

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/markercal/internal/camera"
	"github.com/banshee-data/markercal/internal/fsutil"
	"github.com/banshee-data/markercal/internal/monitoring"
	"github.com/banshee-data/markercal/internal/timeutil"
	"github.com/banshee-data/markercal/internal/vision"
)

// Result is a finished calibration.
type Result struct {
	Camera camera.Model
	// RepError is the RMS reprojection error over every point, in pixels.
	RepError float64
	// PerViewErrors holds the RMS error of each calibrated view, in input
	// order. It is reported but not persisted.
	PerViewErrors []float64
	// Residuals holds observed minus reprojected image points per view, for
	// reports. Not persisted.
	Residuals    [][]camera.Point2
	ImageSize    image.Point
	ViewCount    int
	CalibratedAt time.Time
}

// OrchestratorConfig wires an Orchestrator. Calibrator is required.
type OrchestratorConfig struct {
	Calibrator vision.Calibrator
	// Projector computes per-view errors; nil skips them.
	Projector vision.Projector
	// FS defaults to the OS filesystem.
	FS fsutil.FileSystem
	// Clock stamps results; defaults to the real clock.
	Clock timeutil.Clock
}

// Orchestrator runs calibration over accepted views and persists the result.
type Orchestrator struct {
	calibrator vision.Calibrator
	projector  vision.Projector
	fs         fsutil.FileSystem
	clock      timeutil.Clock
}

// NewOrchestrator applies defaults to config.
func NewOrchestrator(config OrchestratorConfig) *Orchestrator {
	fsys := config.FS
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	clock := config.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Orchestrator{
		calibrator: config.Calibrator,
		projector:  config.Projector,
		fs:         fsys,
		clock:      clock,
	}
}

// RunCalibration calibrates from every view with at least one correspondence.
// With none it fails with vision.ErrInsufficientData before calling the
// calibrator.
func (o *Orchestrator) RunCalibration(ctx context.Context, views []View, imageSize image.Point) (Result, error) {
	sets := make([]vision.PointSet, 0, len(views))
	for _, v := range views {
		if v.PointCount() > 0 {
			sets = append(sets, v.PointSet())
		}
	}
	if len(sets) == 0 {
		return Result{}, fmt.Errorf("%w: no accepted view has correspondences", vision.ErrInsufficientData)
	}
	if imageSize.X <= 0 || imageSize.Y <= 0 {
		return Result{}, fmt.Errorf("%w: image size %v is not positive", vision.ErrConfiguration, imageSize)
	}

	start := o.clock.Now()
	cal, err := o.calibrator.Calibrate(ctx, sets, imageSize)
	if err != nil {
		if hasCategory(err) || ctx.Err() != nil {
			return Result{}, fmt.Errorf("calibrate %d views: %w", len(sets), err)
		}
		return Result{}, fmt.Errorf("%w: calibrate %d views: %v", vision.ErrComputation, len(sets), err)
	}
	if math.IsNaN(cal.RMS) || math.IsInf(cal.RMS, 0) || cal.RMS < 0 {
		return Result{}, fmt.Errorf("%w: calibrator returned reprojection error %g", vision.ErrComputation, cal.RMS)
	}
	if err := cal.Camera.Validate(); err != nil {
		return Result{}, fmt.Errorf("%w: %v", vision.ErrComputation, err)
	}

	result := Result{
		Camera:       cal.Camera,
		RepError:     cal.RMS,
		ImageSize:    imageSize,
		ViewCount:    len(sets),
		CalibratedAt: o.clock.Now().UTC(),
	}
	if o.projector != nil && len(cal.Extrinsics) == len(sets) {
		result.PerViewErrors, result.Residuals = o.perViewErrors(sets, cal)
	}

	l := monitoring.Logger()
	l.Info().
		Int("views", result.ViewCount).
		Float64("rms", result.RepError).
		Float64("fx", result.Camera.FX).
		Float64("fy", result.Camera.FY).
		Float64("cx", result.Camera.CX).
		Float64("cy", result.Camera.CY).
		Floats64("dist", result.Camera.Distortion).
		Dur("took", o.clock.Since(start)).
		Msg("calibration finished")
	return result, nil
}

// perViewErrors returns the RMS reprojection error and the residuals of each
// view. Views that fail to project get NaN and no residuals.
func (o *Orchestrator) perViewErrors(sets []vision.PointSet, cal vision.Calibration) ([]float64, [][]camera.Point2) {
	errs := make([]float64, len(sets))
	residuals := make([][]camera.Point2, len(sets))
	for i, set := range sets {
		projected, err := o.projector.Project(set.Object, cal.Extrinsics[i], cal.Camera)
		if err != nil || len(projected) != len(set.Image) {
			monitoring.Logf("view %d: reprojection failed: %v", i+1, err)
			errs[i] = math.NaN()
			continue
		}
		sq := make([]float64, len(projected))
		res := make([]camera.Point2, len(projected))
		for j := range projected {
			d := set.Image[j].Sub(projected[j])
			res[j] = d
			sq[j] = d.X*d.X + d.Y*d.Y
		}
		errs[i] = math.Sqrt(floats.Sum(sq) / float64(len(sq)))
		residuals[i] = res
	}
	return errs, residuals
}

// Persist writes result to path atomically; the format follows the extension.
// Failures wrap vision.ErrIO and leave any existing file untouched.
func (o *Orchestrator) Persist(result Result, path string) error {
	format, err := FormatForPath(path)
	if err != nil {
		return err
	}
	if err := result.Camera.Validate(); err != nil {
		return fmt.Errorf("%w: refusing to persist: %v", vision.ErrIO, err)
	}
	if math.IsNaN(result.RepError) || result.RepError < 0 {
		return fmt.Errorf("%w: refusing to persist reprojection error %g", vision.ErrIO, result.RepError)
	}

	data, err := encodeRecord(recordFromResult(result), format)
	if err != nil {
		return fmt.Errorf("%w: encode calibration: %v", vision.ErrIO, err)
	}
	if err := fsutil.WriteFileAtomic(o.fs, path, data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", vision.ErrIO, err)
	}
	monitoring.Logf("calibration written to %s", path)
	return nil
}

// Load reads a record written by Persist (or by OpenCV's FileStorage with
// the same keys). Failures wrap vision.ErrResource.
func (o *Orchestrator) Load(path string) (Result, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return Result{}, err
	}
	data, err := o.fs.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("%w: read calibration: %v", vision.ErrResource, err)
	}
	rec, err := decodeRecord(data, format)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %v", vision.ErrResource, path, err)
	}
	result, err := rec.result()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %v", vision.ErrResource, path, err)
	}
	return result, nil
}

func hasCategory(err error) bool {
	for _, c := range []error{
		vision.ErrConfiguration,
		vision.ErrResource,
		vision.ErrInsufficientData,
		vision.ErrComputation,
		vision.ErrIO,
	} {
		if errors.Is(err, c) {
			return true
		}
	}
	return false
}
