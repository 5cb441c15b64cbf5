// Package vision defines the capability contracts the calibration and
// overlay pipelines consume: marker detection, calibration, single-view pose
// solving and point projection. Implementations live elsewhere (solver for
// the numeric capabilities, cvio for the OpenCV-backed detector and camera);
// tests substitute deterministic fakes.
package vision

import (
	"context"
	"fmt"
	"image"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/markercal/internal/camera"
)

// CornersPerMarker is the number of corners reported for each marker.
const CornersPerMarker = 4

// Corner indices in detection order.
const (
	CornerTopLeft = iota
	CornerTopRight
	CornerBottomRight
	CornerBottomLeft
)

// MarkerObservation is one detected marker: its id and its corners ordered
// top-left, top-right, bottom-right, bottom-left.
type MarkerObservation struct {
	ID      int                             `json:"id"`
	Corners [CornersPerMarker]camera.Point2 `json:"corners"`
}

// Detection is the detector output for one frame.
type Detection struct {
	Markers  []MarkerObservation
	Rejected [][]camera.Point2
}

// Find returns the observation for id, if present.
func (d Detection) Find(id int) (MarkerObservation, bool) {
	for _, m := range d.Markers {
		if m.ID == id {
			return m, true
		}
	}
	return MarkerObservation{}, false
}

// IDs returns detected marker ids in detection order.
func (d Detection) IDs() []int {
	ids := make([]int, len(d.Markers))
	for i, m := range d.Markers {
		ids[i] = m.ID
	}
	return ids
}

// Frame is a captured image owned by the caller that read it.
type Frame interface {
	// Size returns width (X) and height (Y) in pixels.
	Size() image.Point
	// Close releases any native memory held by the frame.
	Close() error
}

// PointSet pairs object points with their observed image points.
type PointSet struct {
	Object []r3.Vector
	Image  []camera.Point2
}

// Validate checks that the two sides have equal, nonzero length.
func (s PointSet) Validate() error {
	if len(s.Object) != len(s.Image) {
		return fmt.Errorf("%w: %d object points vs %d image points", ErrConfiguration, len(s.Object), len(s.Image))
	}
	if len(s.Object) == 0 {
		return fmt.Errorf("%w: empty point set", ErrInsufficientData)
	}
	return nil
}

// Calibration is the raw output of a Calibrator.
type Calibration struct {
	Camera camera.Model
	// RMS is the root-mean-square reprojection error over all points, in pixels.
	RMS float64
	// Extrinsics holds one board pose per input point set.
	Extrinsics []camera.Pose
}

// Detector finds markers in a frame.
type Detector interface {
	Detect(f Frame) (Detection, error)
}

// Calibrator estimates intrinsics and distortion from several planar views.
type Calibrator interface {
	Calibrate(ctx context.Context, sets []PointSet, imageSize image.Point) (Calibration, error)
}

// PoseSolver recovers a single pose from 2D-3D correspondences.
type PoseSolver interface {
	SolvePose(object []r3.Vector, image []camera.Point2, cam camera.Model) (camera.Pose, error)
}

// Projector maps object points to pixels, preserving order.
type Projector interface {
	Project(object []r3.Vector, pose camera.Pose, cam camera.Model) ([]camera.Point2, error)
}
