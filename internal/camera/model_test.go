package camera

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testModel() Model {
	return Model{
		FX: 800, FY: 790, CX: 321.5, CY: 241.2,
		Distortion: []float64{-0.21, 0.08, 0.001, -0.0005, -0.01},
	}
}

func TestNewModel_FromMatrix(t *testing.T) {
	m, err := NewModel(Mat3{800, 0, 320, 0, 780, 240, 0, 0, 1}, []float64{0.1, 0, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, 800.0, m.FX)
	assert.Equal(t, 780.0, m.FY)
	assert.Equal(t, 320.0, m.CX)
	assert.Equal(t, 240.0, m.CY)
	assert.Equal(t, Mat3{800, 0, 320, 0, 780, 240, 0, 0, 1}, m.Matrix())
}

func TestNewModel_Rejects(t *testing.T) {
	_, err := NewModel(Mat3{800, 0, 320, 0, 780, 240, 0, 1, 1}, nil)
	assert.ErrorIs(t, err, ErrInvalidModel)

	_, err = NewModel(Mat3{-1, 0, 320, 0, 780, 240, 0, 0, 1}, nil)
	assert.ErrorIs(t, err, ErrInvalidModel)

	_, err = NewModel(Mat3{800, 0, 320, 0, 780, 240, 0, 0, 1}, []float64{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidModel)
}

func TestNormalize_InvertsToPixel(t *testing.T) {
	m := testModel()
	for _, pt := range [][2]float64{{0, 0}, {0.1, -0.05}, {-0.3, 0.2}, {0.25, 0.25}} {
		px := m.ToPixel(pt[0], pt[1])
		x, y := m.Normalize(px)
		assert.InDelta(t, pt[0], x, 1e-9)
		assert.InDelta(t, pt[1], y, 1e-9)
	}
}

func TestToPixel_NoDistortionIsPinhole(t *testing.T) {
	m := Model{FX: 500, FY: 500, CX: 100, CY: 50}
	p := m.ToPixel(0.2, -0.1)
	assert.InDelta(t, 200.0, p.X, 1e-12)
	assert.InDelta(t, 0.0, p.Y, 1e-12)
}

func TestProjectPoints_OrderAndDepth(t *testing.T) {
	m := Model{FX: 600, FY: 600, CX: 320, CY: 240}
	pose := Pose{Translation: r3.Vector{Z: 2}}
	pts := []r3.Vector{{}, {X: 0.1}, {Y: -0.2}}

	out, err := ProjectPoints(m, pose, pts)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, Point2{X: 320, Y: 240}, out[0])
	assert.InDelta(t, 350.0, out[1].X, 1e-9)
	assert.InDelta(t, 180.0, out[2].Y, 1e-9)

	_, err = ProjectPoints(m, Pose{Translation: r3.Vector{Z: -1}}, pts)
	assert.ErrorIs(t, err, ErrBehindCamera)
}

func TestPose_Transform(t *testing.T) {
	p := Pose{Rotation: r3.Vector{Z: 1.5707963267948966}, Translation: r3.Vector{X: 1}}
	got := p.Transform(r3.Vector{X: 1})
	assert.InDelta(t, 1.0, got.X, 1e-12)
	assert.InDelta(t, 1.0, got.Y, 1e-12)
	assert.InDelta(t, 0.0, got.Z, 1e-12)
}

func TestThickness(t *testing.T) {
	square := []Point2{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	assert.InDelta(t, 1, Thickness(square), 1e-12)

	rect := []Point2{{0, 0}, {2, 0}, {2, 1}, {0, 1}}
	assert.InDelta(t, 0.5, Thickness(rect), 1e-12)

	assert.Zero(t, Thickness([]Point2{{100, 100}, {200, 100}, {300, 100}, {400, 100}}))
	assert.Zero(t, Thickness([]Point2{{1, 1}, {2, 2}, {3, 3}, {4, 4}}))
	assert.Less(t, Thickness([]Point2{{100, 100}, {200, 100.5}, {300, 99.5}, {400, 100}}), 0.01)
	assert.Zero(t, Thickness([]Point2{{5, 5}, {5, 5}}))
	assert.Zero(t, Thickness(nil))
}

func TestReprojectionErrors(t *testing.T) {
	m := Model{FX: 100, FY: 100}
	pose := Pose{Translation: r3.Vector{Z: 1}}
	object := []r3.Vector{{}, {X: 0.1}}

	rms, worst, err := ReprojectionErrors(m, pose, object, []Point2{{0, 0}, {13, 4}})
	require.NoError(t, err)
	assert.InDelta(t, 5, worst, 1e-12)
	assert.InDelta(t, 5/math.Sqrt2, rms, 1e-12)

	_, _, err = ReprojectionErrors(m, pose, object, []Point2{{}})
	assert.Error(t, err)

	_, _, err = ReprojectionErrors(m, Pose{Translation: r3.Vector{Z: -1}}, object, []Point2{{}, {}})
	assert.ErrorIs(t, err, ErrBehindCamera)
}
