package solver

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/markercal/internal/camera"
	"github.com/banshee-data/markercal/internal/testutil"
	"github.com/banshee-data/markercal/internal/vision"
)

// markerSquare returns the four corners of a centred square marker.
func markerSquare(length float64) []r3.Vector {
	h := length / 2
	return []r3.Vector{{X: -h, Y: h}, {X: h, Y: h}, {X: h, Y: -h}, {X: -h, Y: -h}}
}

func assertPoseNear(t *testing.T, want, got camera.Pose, rotTol, transTol float64) {
	t.Helper()
	assert.InDelta(t, 0, want.Rotation.Sub(got.Rotation).Norm(), rotTol, "rotation %v vs %v", got.Rotation, want.Rotation)
	assert.InDelta(t, 0, want.Translation.Sub(got.Translation).Norm(), transTol, "translation %v vs %v", got.Translation, want.Translation)
}

func TestPlanarPoseSolver_RecoversPose(t *testing.T) {
	cases := []struct {
		name string
		cam  camera.Model
	}{
		{"pinhole", testutil.PinholeCamera()},
		{"distorted", testutil.SyntheticCamera()},
	}
	poses := []camera.Pose{
		{Rotation: r3.Vector{X: 0.2, Y: -0.1, Z: 0.3}, Translation: r3.Vector{X: 0.05, Y: -0.02, Z: 0.5}},
		{Rotation: r3.Vector{X: -0.4, Y: 0.3}, Translation: r3.Vector{X: -0.1, Y: 0.04, Z: 0.8}},
		{Rotation: r3.Vector{Z: 2.5}, Translation: r3.Vector{Z: 0.3}},
	}

	object := markerSquare(0.05)
	for _, tc := range cases {
		for i, want := range poses {
			image, err := camera.ProjectPoints(tc.cam, want, object)
			require.NoError(t, err)

			got, err := PlanarPoseSolver{}.SolvePose(object, image, tc.cam)
			require.NoError(t, err, "%s pose %d", tc.name, i)
			assertPoseNear(t, want, got, 1e-6, 1e-7)
			assert.Greater(t, got.Translation.Z, 0.0)
		}
	}
}

func TestPlanarPoseSolver_ManyPoints(t *testing.T) {
	l := testutil.StandardLayout(t)
	cam := testutil.SyntheticCamera()
	want := testutil.FacingPose(l, r3.Vector{X: 0.3, Y: -0.2, Z: 0.1}, 0.7)
	set := testutil.BoardViews(t, l, cam, []camera.Pose{want})[0]

	got, err := PlanarPoseSolver{}.SolvePose(set.Object, set.Image, cam)
	require.NoError(t, err)
	assertPoseNear(t, want, got, 1e-7, 1e-8)
}

func TestPlanarPoseSolver_Errors(t *testing.T) {
	cam := testutil.PinholeCamera()
	object := markerSquare(0.05)

	_, err := PlanarPoseSolver{}.SolvePose(object, []camera.Point2{{1, 1}, {2, 2}, {3, 3}, {4, 4}}, cam)
	assert.ErrorIs(t, err, vision.ErrComputation, "collinear image points")

	_, err = PlanarPoseSolver{}.SolvePose(object[:3], []camera.Point2{{1, 1}, {2, 1}, {2, 2}}, cam)
	assert.ErrorIs(t, err, vision.ErrComputation, "too few points")

	_, err = PlanarPoseSolver{}.SolvePose(object, []camera.Point2{{1, 1}}, cam)
	assert.ErrorIs(t, err, vision.ErrConfiguration, "length mismatch")

	_, err = PlanarPoseSolver{}.SolvePose(object, []camera.Point2{{0, 0}, {1, 0}, {1, 1}, {0, 1}}, camera.Model{})
	assert.ErrorIs(t, err, vision.ErrConfiguration, "invalid camera")

	offPlane := append([]r3.Vector(nil), object...)
	offPlane[2].Z = 0.01
	_, err = PlanarPoseSolver{}.SolvePose(offPlane, []camera.Point2{{0, 0}, {1, 0}, {1, 1}, {0, 1}}, cam)
	assert.ErrorIs(t, err, vision.ErrComputation, "non-planar object")
}

func TestPlanarPoseSolver_DegenerateWithDistortion(t *testing.T) {
	cam := testutil.SyntheticCamera()
	object := markerSquare(0.05)
	cases := map[string][]camera.Point2{
		"collinear":      {{100, 100}, {200, 100}, {300, 100}, {400, 100}},
		"near collinear": {{100, 100}, {200, 100.5}, {300, 99.5}, {400, 100}},
		"coincident":     {{250, 250}, {250, 250}, {250, 250}, {250, 250}},
		"crossed":        {{100, 100}, {300, 300}, {300, 100}, {100, 300}},
	}
	for name, image := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := PlanarPoseSolver{}.SolvePose(object, image, cam)
			assert.ErrorIs(t, err, vision.ErrComputation)
		})
	}
}

func TestPlanarPoseSolver_RotationVectorWrapped(t *testing.T) {
	cam := testutil.SyntheticCamera()
	object := markerSquare(0.05)
	want := camera.Pose{Rotation: r3.Vector{X: math.Pi - 0.2, Y: 0.1}, Translation: r3.Vector{X: 0.01, Z: 0.4}}
	image, err := camera.ProjectPoints(cam, want, object)
	require.NoError(t, err)

	got, err := PlanarPoseSolver{}.SolvePose(object, image, cam)
	require.NoError(t, err)
	assert.LessOrEqual(t, got.Rotation.Norm(), math.Pi+1e-9)
	gotR, wantR := camera.Rodrigues(got.Rotation), camera.Rodrigues(want.Rotation)
	for i := range gotR {
		assert.InDelta(t, wantR[i], gotR[i], 1e-6, "R[%d]", i)
	}
}

func TestCheckPose(t *testing.T) {
	cam := testutil.SyntheticCamera()
	object := markerSquare(0.05)
	truth := camera.Pose{Rotation: r3.Vector{X: 0.1}, Translation: r3.Vector{Z: 0.5}}
	image, err := camera.ProjectPoints(cam, truth, object)
	require.NoError(t, err)

	assert.NoError(t, CheckPose(object, image, cam, truth, 0))

	shifted := truth
	shifted.Translation.X += 0.002 // about 3 px at 0.5 m
	assert.ErrorIs(t, CheckPose(object, image, cam, shifted, 0), vision.ErrComputation)
	assert.NoError(t, CheckPose(object, image, cam, shifted, 10))

	behind := camera.Pose{Translation: r3.Vector{Z: -0.5}}
	assert.ErrorIs(t, CheckPose(object, image, cam, behind, 0), vision.ErrComputation)
	nan := camera.Pose{Translation: r3.Vector{X: math.NaN(), Z: 0.5}}
	assert.ErrorIs(t, CheckPose(object, image, cam, nan, 0), vision.ErrComputation)
}

func TestPoseFromHomography_FrontOfCamera(t *testing.T) {
	want := camera.Pose{Rotation: r3.Vector{X: 0.1, Y: 0.2}, Translation: r3.Vector{X: 0.1, Z: 1}}
	r := camera.Rodrigues(want.Rotation)
	h := camera.Mat3{
		r[0], r[1], want.Translation.X,
		r[3], r[4], want.Translation.Y,
		r[6], r[7], want.Translation.Z,
	}
	for i := range h {
		h[i] *= -3
	}

	got, err := poseFromHomography(h)
	require.NoError(t, err)
	assertPoseNear(t, want, got, 1e-12, 1e-12)
}

func TestProjector_BehindCamera(t *testing.T) {
	pose := camera.Pose{Translation: r3.Vector{Z: -1}}
	_, err := Projector{}.Project([]r3.Vector{{}}, pose, testutil.PinholeCamera())
	assert.ErrorIs(t, err, vision.ErrComputation)
}

func TestProjector_PreservesOrder(t *testing.T) {
	cam := testutil.PinholeCamera()
	pose := camera.Pose{Translation: r3.Vector{Z: 2}}
	pts, err := Projector{}.Project([]r3.Vector{{X: 0.1}, {}, {Y: -0.1}}, pose, cam)
	require.NoError(t, err)
	require.Len(t, pts, 3)
	assert.InDelta(t, cam.CX+cam.FX*0.05, pts[0].X, 1e-9)
	assert.InDelta(t, cam.CX, pts[1].X, 1e-9)
	assert.InDelta(t, cam.CY-cam.FY*0.05, pts[2].Y, 1e-9)
	assert.False(t, math.IsNaN(pts[2].X))
}
