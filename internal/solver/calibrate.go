package solver

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/markercal/internal/camera"
	"github.com/banshee-data/markercal/internal/vision"
)

const intrinsicParams = 4 // fx, fy, cx, cy

// Calibrator estimates intrinsics and distortion from views of a planar
// target. It implements vision.Calibrator.
type Calibrator struct {
	// DistortionCoefficients selects the model: 4 (k1 k2 p1 p2), 5 (+k3) or
	// 8 (+k4 k5 k6, rational). Zero means 5.
	DistortionCoefficients int
	// MaxIterations bounds the joint refinement; zero means the default.
	MaxIterations int
}

// Calibrate runs the closed-form initialisation followed by joint refinement.
func (c Calibrator) Calibrate(ctx context.Context, sets []vision.PointSet, size image.Point) (vision.Calibration, error) {
	nDist := c.DistortionCoefficients
	if nDist == 0 {
		nDist = 5
	}
	if nDist != 4 && nDist != 5 && nDist != 8 {
		return vision.Calibration{}, fmt.Errorf("%w: unsupported distortion model with %d coefficients", vision.ErrConfiguration, nDist)
	}
	if size.X <= 0 || size.Y <= 0 {
		return vision.Calibration{}, fmt.Errorf("%w: image size must be positive, got %v", vision.ErrConfiguration, size)
	}
	if len(sets) == 0 {
		return vision.Calibration{}, fmt.Errorf("%w: no point sets", vision.ErrInsufficientData)
	}

	planes := make([][]camera.Point2, len(sets))
	homographies := make([]camera.Mat3, len(sets))
	total := 0
	for i, set := range sets {
		if err := set.Validate(); err != nil {
			return vision.Calibration{}, fmt.Errorf("view %d: %w", i, err)
		}
		plane, err := planeCoordinates(set.Object)
		if err != nil {
			return vision.Calibration{}, fmt.Errorf("view %d: %w", i, err)
		}
		h, err := findHomography(plane, set.Image)
		if err != nil {
			return vision.Calibration{}, fmt.Errorf("view %d: %w", i, err)
		}
		planes[i] = plane
		homographies[i] = h
		total += len(set.Object)
	}

	nParams := intrinsicParams + nDist + 6*len(sets)
	if 2*total < nParams {
		return vision.Calibration{}, fmt.Errorf("%w: %d points cannot constrain %d parameters", vision.ErrInsufficientData, total, nParams)
	}

	initial, err := initIntrinsics(homographies, size)
	if err != nil {
		return vision.Calibration{}, err
	}
	initial.Distortion = make([]float64, nDist)

	params := make([]float64, 0, nParams)
	params = append(params, initial.FX, initial.FY, initial.CX, initial.CY)
	params = append(params, initial.Distortion...)
	kInv := invertIntrinsics(initial)
	for i, h := range homographies {
		pose, err := poseFromHomography(kInv.Mul(h))
		if err != nil {
			return vision.Calibration{}, fmt.Errorf("view %d: %w", i, err)
		}
		params = append(params, poseParams(pose)...)
	}

	p := &calibrationProblem{sets: sets, nDist: nDist}
	p.index()

	settings := defaultLMSettings()
	if c.MaxIterations > 0 {
		settings.MaxIterations = c.MaxIterations
	}
	result, err := levenbergMarquardt(ctx, 2*total, params, p.residuals, p.jacobian, settings)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return vision.Calibration{}, err
		}
		return vision.Calibration{}, fmt.Errorf("%w: calibration refinement: %v", vision.ErrComputation, err)
	}

	model := p.model(result.Params)
	if err := model.Validate(); err != nil {
		return vision.Calibration{}, fmt.Errorf("%w: %v", vision.ErrComputation, err)
	}
	extrinsics := make([]camera.Pose, len(sets))
	for v := range sets {
		extrinsics[v] = p.pose(result.Params, v)
		if !finitePose(extrinsics[v]) {
			return vision.Calibration{}, fmt.Errorf("%w: view %d pose is not finite", vision.ErrComputation, v)
		}
	}
	rms := math.Sqrt(result.Cost / float64(total))
	if math.IsNaN(rms) || math.IsInf(rms, 0) {
		return vision.Calibration{}, fmt.Errorf("%w: reprojection error is not finite", vision.ErrComputation)
	}

	return vision.Calibration{Camera: model, RMS: rms, Extrinsics: extrinsics}, nil
}

// initIntrinsics estimates focal lengths from the homographies with the
// principal point fixed at the image centre and zero skew. Each view gives
// two linear constraints on (1/fx², 1/fy²).
func initIntrinsics(homographies []camera.Mat3, size image.Point) (camera.Model, error) {
	cx := float64(size.X-1) / 2
	cy := float64(size.Y-1) / 2
	f0 := float64(max(size.X, size.Y))

	// Shift the principal point to the origin and scale pixels by f0 so the
	// unknowns are O(1).
	t := camera.Mat3{
		1 / f0, 0, -cx / f0,
		0, 1 / f0, -cy / f0,
		0, 0, 1,
	}

	a := mat.NewDense(2*len(homographies), 2, nil)
	b := mat.NewVecDense(2*len(homographies), nil)
	for i, h := range homographies {
		hp := t.Mul(h)
		norm := math.Sqrt(dot9(hp, hp))
		for j := range hp {
			hp[j] /= norm
		}
		h11, h12 := hp[0], hp[1]
		h21, h22 := hp[3], hp[4]
		h31, h32 := hp[6], hp[7]

		a.SetRow(2*i, []float64{h11 * h12, h21 * h22})
		b.SetVec(2*i, -h31*h32)
		a.SetRow(2*i+1, []float64{h11*h11 - h12*h12, h21*h21 - h22*h22})
		b.SetVec(2*i+1, -(h31*h31 - h32*h32))
	}

	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return camera.Model{}, fmt.Errorf("%w: focal initialisation is singular (views parallel to the image plane?): %v", vision.ErrComputation, err)
	}
	ia, ib := x.AtVec(0), x.AtVec(1)
	if !(ia > 0) || !(ib > 0) {
		return camera.Model{}, fmt.Errorf("%w: focal initialisation failed, need views tilted relative to the camera", vision.ErrComputation)
	}
	return camera.Model{
		FX: f0 / math.Sqrt(ia),
		FY: f0 / math.Sqrt(ib),
		CX: cx,
		CY: cy,
	}, nil
}

// invertIntrinsics returns K⁻¹ for a zero-skew model.
func invertIntrinsics(m camera.Model) camera.Mat3 {
	return camera.Mat3{
		1 / m.FX, 0, -m.CX / m.FX,
		0, 1 / m.FY, -m.CY / m.FY,
		0, 0, 1,
	}
}

// calibrationProblem lays out the parameter vector as
// [fx fy cx cy | distortion | rvec₀ tvec₀ | rvec₁ tvec₁ | ...] and the residual
// vector as consecutive (du, dv) pairs per view.
type calibrationProblem struct {
	sets    []vision.PointSet
	nDist   int
	offsets []int // first residual row of each view
}

func (p *calibrationProblem) index() {
	p.offsets = make([]int, len(p.sets)+1)
	for v, set := range p.sets {
		p.offsets[v+1] = p.offsets[v] + 2*len(set.Object)
	}
}

func (p *calibrationProblem) shared() int { return intrinsicParams + p.nDist }

func (p *calibrationProblem) model(params []float64) camera.Model {
	return camera.Model{
		FX:         params[0],
		FY:         params[1],
		CX:         params[2],
		CY:         params[3],
		Distortion: append([]float64(nil), params[intrinsicParams:p.shared()]...),
	}
}

func (p *calibrationProblem) pose(params []float64, view int) camera.Pose {
	o := p.shared() + 6*view
	return poseFromParams(params[o : o+6])
}

func (p *calibrationProblem) viewResiduals(params []float64, view int, out []float64) error {
	set := p.sets[view]
	projected, err := camera.ProjectPoints(p.model(params), p.pose(params, view), set.Object)
	if err != nil {
		return err
	}
	for i := range projected {
		out[2*i] = projected[i].X - set.Image[i].X
		out[2*i+1] = projected[i].Y - set.Image[i].Y
	}
	return nil
}

func (p *calibrationProblem) residuals(params, out []float64) error {
	for v := range p.sets {
		if err := p.viewResiduals(params, v, out[p.offsets[v]:p.offsets[v+1]]); err != nil {
			return fmt.Errorf("view %d: %w", v, err)
		}
	}
	return nil
}

// jacobian uses central differences but only re-evaluates the rows a
// parameter can affect: shared parameters touch every view, pose parameters
// touch their own view.
func (p *calibrationProblem) jacobian(params, _ []float64, jac *mat.Dense) error {
	rows, cols := jac.Dims()
	plus := make([]float64, rows)
	minus := make([]float64, rows)
	work := append([]float64(nil), params...)

	for j := 0; j < cols; j++ {
		h := finiteStep(work[j])
		orig := work[j]

		lo, hi := 0, rows
		view := -1
		if j >= p.shared() {
			view = (j - p.shared()) / 6
			lo, hi = p.offsets[view], p.offsets[view+1]
		}

		eval := func(dst []float64) error {
			if view < 0 {
				return p.residuals(work, dst)
			}
			return p.viewResiduals(work, view, dst[lo:hi])
		}

		work[j] = orig + h
		if err := eval(plus); err != nil {
			return err
		}
		work[j] = orig - h
		if err := eval(minus); err != nil {
			return err
		}
		work[j] = orig

		for i := 0; i < rows; i++ {
			if i < lo || i >= hi {
				jac.Set(i, j, 0)
				continue
			}
			jac.Set(i, j, (plus[i]-minus[i])/(2*h))
		}
	}
	return nil
}
