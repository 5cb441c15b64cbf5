package solver

import (
	"context"
	"image"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/markercal/internal/camera"
	"github.com/banshee-data/markercal/internal/testutil"
	"github.com/banshee-data/markercal/internal/vision"
)

var sensor = image.Pt(testutil.ImageWidth, testutil.ImageHeight)

func TestCalibrator_RecoversSyntheticCamera(t *testing.T) {
	l := testutil.StandardLayout(t)
	truth := testutil.SyntheticCamera()
	poses := testutil.TiltedPoses(l, 6)
	sets := testutil.BoardViews(t, l, truth, poses)

	got, err := Calibrator{}.Calibrate(context.Background(), sets, sensor)
	require.NoError(t, err)

	assert.InDelta(t, truth.FX, got.Camera.FX, 0.5)
	assert.InDelta(t, truth.FY, got.Camera.FY, 0.5)
	assert.InDelta(t, truth.CX, got.Camera.CX, 0.5)
	assert.InDelta(t, truth.CY, got.Camera.CY, 0.5)
	require.Len(t, got.Camera.Distortion, 5)
	assert.InDelta(t, truth.Distortion[0], got.Camera.Distortion[0], 0.01)
	assert.InDelta(t, truth.Distortion[1], got.Camera.Distortion[1], 0.05)
	assert.Less(t, got.RMS, 1e-3)

	require.Len(t, got.Extrinsics, len(poses))
	for i, want := range poses {
		assert.InDelta(t, 0, want.Translation.Sub(got.Extrinsics[i].Translation).Norm(), 1e-3, "view %d", i)
	}
}

func TestCalibrator_PinholeIsExact(t *testing.T) {
	l := testutil.StandardLayout(t)
	truth := testutil.PinholeCamera()
	sets := testutil.BoardViews(t, l, truth, testutil.TiltedPoses(l, 4))

	got, err := Calibrator{DistortionCoefficients: 4}.Calibrate(context.Background(), sets, sensor)
	require.NoError(t, err)
	assert.InDelta(t, truth.FX, got.Camera.FX, 0.05)
	assert.InDelta(t, truth.FY, got.Camera.FY, 0.05)
	require.Len(t, got.Camera.Distortion, 4)
	for i, k := range got.Camera.Distortion {
		assert.InDelta(t, 0, k, 1e-4, "k[%d]", i)
	}
	assert.Less(t, got.RMS, 1e-6)
}

func TestCalibrator_RMSReflectsNoise(t *testing.T) {
	l := testutil.StandardLayout(t)
	sets := testutil.BoardViews(t, l, testutil.PinholeCamera(), testutil.TiltedPoses(l, 5))
	// Alternate a fixed offset so the noise has no systematic component the
	// model could absorb.
	for v := range sets {
		for i := range sets[v].Image {
			sign := 1.0
			if (i+v)%2 == 1 {
				sign = -1
			}
			sets[v].Image[i] = sets[v].Image[i].Sub(camera.Point2{X: 0.3 * sign, Y: -0.3 * sign})
		}
	}

	got, err := Calibrator{}.Calibrate(context.Background(), sets, sensor)
	require.NoError(t, err)
	assert.Greater(t, got.RMS, 0.1)
	assert.Less(t, got.RMS, 0.5)
}

func TestCalibrator_Errors(t *testing.T) {
	l := testutil.StandardLayout(t)
	sets := testutil.BoardViews(t, l, testutil.PinholeCamera(), testutil.TiltedPoses(l, 3))

	_, err := Calibrator{}.Calibrate(context.Background(), nil, sensor)
	assert.ErrorIs(t, err, vision.ErrInsufficientData)

	_, err = Calibrator{DistortionCoefficients: 3}.Calibrate(context.Background(), sets, sensor)
	assert.ErrorIs(t, err, vision.ErrConfiguration)

	_, err = Calibrator{}.Calibrate(context.Background(), sets, image.Point{})
	assert.ErrorIs(t, err, vision.ErrConfiguration)

	mismatched := []vision.PointSet{{Object: sets[0].Object, Image: sets[0].Image[:3]}}
	_, err = Calibrator{}.Calibrate(context.Background(), mismatched, sensor)
	assert.ErrorIs(t, err, vision.ErrConfiguration)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Calibrator{}.Calibrate(ctx, sets, sensor)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCalibrator_FrontoParallelOnlyFails(t *testing.T) {
	l := testutil.StandardLayout(t)
	cam := testutil.PinholeCamera()
	poses := []camera.Pose{
		testutil.FacingPose(l, r3.Vector{}, 0.6),
		testutil.FacingPose(l, r3.Vector{}, 0.7),
	}
	sets := testutil.BoardViews(t, l, cam, poses)

	_, err := Calibrator{}.Calibrate(context.Background(), sets, sensor)
	assert.ErrorIs(t, err, vision.ErrComputation)
}
