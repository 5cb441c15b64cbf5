package solver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/markercal/internal/camera"
	"github.com/banshee-data/markercal/internal/vision"
)

func TestFindHomography_Exact(t *testing.T) {
	truth := camera.Mat3{
		1.2, 0.1, 30,
		-0.05, 0.9, 12,
		1e-4, -2e-4, 1,
	}
	src := []camera.Point2{{0, 0}, {100, 0}, {100, 80}, {0, 80}, {50, 40}, {20, 70}}
	dst := make([]camera.Point2, len(src))
	for i, p := range src {
		dst[i] = mapThrough(truth, p)
	}

	h, err := findHomography(src, dst)
	require.NoError(t, err)
	for i := range truth {
		assert.InDelta(t, truth[i], h[i], 1e-8, "element %d", i)
	}
}

func TestFindHomography_RejectsCollinear(t *testing.T) {
	src := []camera.Point2{{0, 0}, {1, 1}, {2, 2}, {3, 3}, {4, 4}}
	dst := []camera.Point2{{0, 0}, {2, 2}, {4, 4}, {6, 6}, {8, 8}}

	_, err := findHomography(src, dst)
	assert.ErrorIs(t, err, vision.ErrComputation)
}

func TestFindHomography_TooFewPoints(t *testing.T) {
	_, err := findHomography([]camera.Point2{{0, 0}, {1, 0}, {0, 1}}, []camera.Point2{{0, 0}, {1, 0}, {0, 1}})
	assert.ErrorIs(t, err, vision.ErrComputation)
}

func mapThrough(h camera.Mat3, p camera.Point2) camera.Point2 {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	return camera.Point2{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / w,
	}
}
