package overlay

import (
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/markercal/internal/camera"
	"github.com/banshee-data/markercal/internal/pose"
	"github.com/banshee-data/markercal/internal/solver"
	"github.com/banshee-data/markercal/internal/testutil"
	"github.com/banshee-data/markercal/internal/vision"
)

func differingAxes(a, b r3.Vector) int {
	n := 0
	for _, d := range []float64{a.X - b.X, a.Y - b.Y, a.Z - b.Z} {
		if math.Abs(d) > 1e-12 {
			n++
		}
	}
	return n
}

func TestCube_Topology(t *testing.T) {
	for _, length := range []float64{0.01, 0.05, 1} {
		m := Cube(length)
		require.Len(t, m.Points, 8)
		require.Len(t, m.Edges, 12)
		require.Len(t, m.Colors, 12)

		seen := map[Edge]bool{}
		for _, e := range m.Edges {
			assert.Equal(t, 1, differingAxes(m.Points[e[0]], m.Points[e[1]]), "edge %v", e)
			key := e
			if key[0] > key[1] {
				key = Edge{key[1], key[0]}
			}
			assert.False(t, seen[key], "duplicate edge %v", e)
			seen[key] = true
			a, b := m.Points[e[0]], m.Points[e[1]]
			assert.InDelta(t, length, a.Sub(b).Norm(), 1e-12, "edge %v length", e)
		}
		for i := 0; i < 4; i++ {
			assert.Equal(t, length, m.Points[i].Z, "top vertex %d", i)
			assert.Equal(t, 0.0, m.Points[i+4].Z, "bottom vertex %d", i)
			assert.Equal(t, m.Points[i].X, m.Points[i+4].X)
			assert.Equal(t, m.Points[i].Y, m.Points[i+4].Y)
		}
	}
}

func TestCube_MatchesMarkerFootprint(t *testing.T) {
	m := Cube(0.04)
	corners := pose.MarkerCorners(0.04)
	for _, c := range corners {
		found := false
		for _, p := range m.Points[4:] {
			if p == c {
				found = true
			}
		}
		assert.True(t, found, "bottom face misses marker corner %v", c)
	}
	assert.Equal(t, 4, m.Thickness)
	assert.Equal(t, Blue, m.Colors[0])
}

func TestAxes_Topology(t *testing.T) {
	m := Axes(0.05)
	require.Len(t, m.Points, 4)
	require.Len(t, m.Edges, 3)
	for i, e := range m.Edges {
		assert.Equal(t, 0, e[0], "segment %d shares the origin", i)
		assert.Equal(t, i+1, e[1])
		assert.InDelta(t, 0.05, m.Points[e[1]].Norm(), 1e-15)
	}
	assert.Equal(t, r3.Vector{}, m.Points[0])
	assert.Equal(t, r3.Vector{Z: 0.05}, m.Points[3])
}

func TestForKind(t *testing.T) {
	m, err := ForKind(KindCube, 0.1)
	require.NoError(t, err)
	assert.Equal(t, KindCube, m.Kind)

	_, err = ForKind("teapot", 0.1)
	assert.ErrorIs(t, err, vision.ErrConfiguration)
}

func TestProject_SkipsOnNoPose(t *testing.T) {
	p := NewProjector(testutil.PinholeCamera(), solver.Projector{})

	pts, ok, err := p.Project(Cube(0.05), camera.Pose{}, pose.ErrNoPose)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, pts)

	_, ok, err = p.Project(Cube(0.05), camera.Pose{}, vision.ErrComputation)
	assert.ErrorIs(t, err, vision.ErrComputation)
	assert.False(t, ok)
}

func TestProject_CubeOnMarker(t *testing.T) {
	cam := testutil.SyntheticCamera()
	// Marker facing the camera: marker +Z points back at the lens.
	facing := camera.Pose{Rotation: r3.Vector{X: math.Pi}, Translation: r3.Vector{Z: 0.5}}
	p := NewProjector(cam, solver.Projector{})

	m := Cube(0.05)
	pts, ok, err := p.Project(m, facing, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, pts, 8)

	// The top face is nearer the camera, so it projects larger.
	top := pts[0].Sub(pts[2]).Norm()
	bottom := pts[4].Sub(pts[6]).Norm()
	assert.Greater(t, top, bottom)

	segs := Segments(m, pts)
	require.Len(t, segs, 12)
	assert.Equal(t, pts[0], segs[0].From)
	assert.Equal(t, pts[1], segs[0].To)
	assert.Equal(t, 4, segs[0].Thickness)
}

func TestProject_PropagatesProjectorFailure(t *testing.T) {
	p := NewProjector(testutil.PinholeCamera(), solver.Projector{})
	behind := camera.Pose{Translation: r3.Vector{Z: -1}}

	_, ok, err := p.Project(Axes(0.05), behind, nil)
	assert.False(t, ok)
	assert.True(t, errors.Is(err, vision.ErrComputation))
}

func TestSegments_AxesColors(t *testing.T) {
	m := Axes(1)
	pts := []camera.Point2{{0, 0}, {1, 0}, {0, 1}, {1, 1}}
	segs := Segments(m, pts)
	require.Len(t, segs, 3)
	assert.Equal(t, Red, segs[0].Color)
	assert.Equal(t, Green, segs[1].Color)
	assert.Equal(t, Blue, segs[2].Color)

	assert.Len(t, Segments(m, pts[:2]), 1, "edges with missing points are dropped")
}

func TestTranslationLabels(t *testing.T) {
	labels := TranslationLabels(camera.Pose{Translation: r3.Vector{X: 0.1, Y: -0.25, Z: 1.5}})
	assert.Equal(t, []string{"X: 0.100000m", "Y: -0.250000m", "Z: 1.500000m"}, labels)
}
