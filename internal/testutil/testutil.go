// Package testutil provides shared test utilities and fixtures.
//
// It holds the synthetic camera and board-view generators used by the solver,
// calibration and overlay tests, plus scripted fakes for the capture-side
// interfaces.
package testutil

import (
	"testing"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/markercal/internal/board"
	"github.com/banshee-data/markercal/internal/camera"
	"github.com/banshee-data/markercal/internal/vision"
)

// ImageWidth and ImageHeight are the synthetic sensor size in pixels.
const (
	ImageWidth  = 640
	ImageHeight = 480
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// SyntheticCamera returns a 640x480 camera with mild barrel distortion.
func SyntheticCamera() camera.Model {
	return camera.Model{
		FX:         800,
		FY:         805,
		CX:         322,
		CY:         238,
		Distortion: []float64{-0.12, 0.05, 0.001, -0.0005, 0},
	}
}

// PinholeCamera returns SyntheticCamera without distortion.
func PinholeCamera() camera.Model {
	m := SyntheticCamera()
	m.Distortion = nil
	return m
}

// StandardLayout is the 5x7 DICT_6X6_250 board with 4 cm markers and 1 cm gaps.
func StandardLayout(t testing.TB) *board.Layout {
	t.Helper()
	l, err := board.NewLayout(board.Dict6X6_250, 5, 7, 0.04, 0.01)
	AssertNoError(t, err)
	return l
}

// FacingPose places the board centre at distance metres along the optical
// axis, rotated by rvec about that centre.
func FacingPose(l *board.Layout, rvec r3.Vector, distance float64) camera.Pose {
	centre := r3.Vector{X: l.Width() / 2, Y: l.Height() / 2}
	rc := camera.Rodrigues(rvec).MulVec(centre)
	return camera.Pose{
		Rotation:    rvec,
		Translation: r3.Vector{Z: distance}.Sub(rc),
	}
}

// TiltedPoses returns n distinct poses, each tilted out of the image plane so
// that the set constrains focal length.
func TiltedPoses(l *board.Layout, n int) []camera.Pose {
	tilts := []r3.Vector{
		{X: 0.35},
		{X: -0.3, Z: 0.05},
		{Y: 0.35},
		{Y: -0.3, Z: -0.05},
		{X: 0.25, Y: 0.25, Z: 0.1},
		{X: -0.2, Y: 0.3, Z: -0.1},
		{X: 0.3, Y: -0.2},
		{X: -0.25, Y: -0.25, Z: 0.15},
	}
	poses := make([]camera.Pose, n)
	for i := range poses {
		tilt := tilts[i%len(tilts)]
		distance := 0.6 + 0.05*float64(i%3)
		poses[i] = FacingPose(l, tilt, distance)
	}
	return poses
}

// ObserveBoard projects every marker of l into cam and returns the
// observations a perfect detector would report.
func ObserveBoard(t testing.TB, l *board.Layout, cam camera.Model, pose camera.Pose) []vision.MarkerObservation {
	t.Helper()
	obs := make([]vision.MarkerObservation, 0, l.MarkerCount())
	for _, id := range l.IDs() {
		corners, _ := l.Corners(id)
		px, err := camera.ProjectPoints(cam, pose, corners[:])
		AssertNoError(t, err)
		var o vision.MarkerObservation
		o.ID = id
		copy(o.Corners[:], px)
		obs = append(obs, o)
	}
	return obs
}

// BoardViews returns one point set per pose with all markers visible.
func BoardViews(t testing.TB, l *board.Layout, cam camera.Model, poses []camera.Pose) []vision.PointSet {
	t.Helper()
	sets := make([]vision.PointSet, len(poses))
	for i, pose := range poses {
		object, image := l.MatchImagePoints(ObserveBoard(t, l, cam, pose))
		sets[i] = vision.PointSet{Object: object, Image: image}
	}
	return sets
}
