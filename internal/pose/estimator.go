// Package pose recovers the pose of one tracked marker per frame.
package pose

import (
	"errors"
	"fmt"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/markercal/internal/camera"
	"github.com/banshee-data/markercal/internal/vision"
)

// ErrNoPose means the target marker was not detected in the frame. It is an
// absence, not a failure: callers skip the overlay for that frame.
var ErrNoPose = fmt.Errorf("%w: target marker not in frame", vision.ErrDetectionMiss)

// Estimator solves the pose of a single marker id against a fixed camera.
type Estimator struct {
	targetID int
	length   float64
	object   []r3.Vector
	camera   camera.Model
	solver   vision.PoseSolver
}

// NewEstimator validates its inputs and precomputes the marker corners.
func NewEstimator(targetID int, markerLength float64, cam camera.Model, solver vision.PoseSolver) (*Estimator, error) {
	if targetID < 0 {
		return nil, fmt.Errorf("%w: target id must be non-negative, got %d", vision.ErrConfiguration, targetID)
	}
	if markerLength <= 0 {
		return nil, fmt.Errorf("%w: marker length must be positive, got %g", vision.ErrConfiguration, markerLength)
	}
	if err := cam.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", vision.ErrConfiguration, err)
	}
	if solver == nil {
		return nil, fmt.Errorf("%w: pose solver is required", vision.ErrConfiguration)
	}
	return &Estimator{
		targetID: targetID,
		length:   markerLength,
		object:   MarkerCorners(markerLength),
		camera:   cam,
		solver:   solver,
	}, nil
}

// MarkerCorners returns the marker-frame corners in detection order: top-left
// (-L/2, L/2), top-right (L/2, L/2), bottom-right (L/2, -L/2), bottom-left
// (-L/2, -L/2), all at z = 0.
func MarkerCorners(length float64) []r3.Vector {
	h := length / 2
	return []r3.Vector{
		{X: -h, Y: h},
		{X: h, Y: h},
		{X: h, Y: -h},
		{X: -h, Y: -h},
	}
}

// TargetID returns the tracked marker id.
func (e *Estimator) TargetID() int { return e.targetID }

// MarkerLength returns the tracked marker's side length.
func (e *Estimator) MarkerLength() float64 { return e.length }

// Camera returns the calibration the estimator projects with.
func (e *Estimator) Camera() camera.Model { return e.camera }

// Estimate returns the target's pose in this frame. Translation is in the
// units of the marker length. It returns ErrNoPose when the target is absent
// and a vision.ErrComputation error when the solve is degenerate; only the
// target id is ever solved.
func (e *Estimator) Estimate(det vision.Detection) (camera.Pose, error) {
	obs, ok := det.Find(e.targetID)
	if !ok {
		return camera.Pose{}, ErrNoPose
	}
	p, err := e.solver.SolvePose(e.object, obs.Corners[:], e.camera)
	if err != nil {
		if errors.Is(err, vision.ErrComputation) {
			return camera.Pose{}, fmt.Errorf("marker %d: %w", e.targetID, err)
		}
		return camera.Pose{}, fmt.Errorf("%w: marker %d: %v", vision.ErrComputation, e.targetID, err)
	}
	return p, nil
}
