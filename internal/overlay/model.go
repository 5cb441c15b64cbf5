// Package overlay builds 3D wireframe models anchored on a marker and turns
// them into 2D line segments for rendering.
package overlay

import (
	"errors"
	"fmt"
	"image/color"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/markercal/internal/camera"
	"github.com/banshee-data/markercal/internal/pose"
	"github.com/banshee-data/markercal/internal/vision"
)

// Edge connects two model points by index.
type Edge [2]int

// Kind names a model variant.
type Kind string

const (
	KindAxes Kind = "axes"
	KindCube Kind = "cube"
)

// Colors used by the overlays, in RGBA.
var (
	Red   = color.RGBA{R: 255, A: 255}
	Green = color.RGBA{G: 255, A: 255}
	Blue  = color.RGBA{B: 255, A: 255}
)

// Model is an ordered point list plus the fixed edges to draw between them.
type Model struct {
	Kind   Kind
	Points []r3.Vector
	Edges  []Edge
	// Colors holds one color per edge.
	Colors []color.RGBA
	// Thickness is the line width in pixels.
	Thickness int
}

// Axes returns the origin followed by the X, Y and Z tips at distance length,
// with one segment from the origin to each tip (red, green, blue).
func Axes(length float64) Model {
	return Model{
		Kind: KindAxes,
		Points: []r3.Vector{
			{},
			{X: length},
			{Y: length},
			{Z: length},
		},
		Edges:     []Edge{{0, 1}, {0, 2}, {0, 3}},
		Colors:    []color.RGBA{Red, Green, Blue},
		Thickness: 2,
	}
}

// Cube returns a cube standing on the marker: points 0-3 are the top face at
// z = length, points 4-7 the bottom face at z = 0 in the same (x, y) order.
// Edges are the top ring, the bottom ring, then the four verticals.
func Cube(length float64) Model {
	h := length / 2
	ring := []r3.Vector{
		{X: h, Y: h},
		{X: h, Y: -h},
		{X: -h, Y: -h},
		{X: -h, Y: h},
	}
	points := make([]r3.Vector, 0, 8)
	for _, p := range ring {
		points = append(points, r3.Vector{X: p.X, Y: p.Y, Z: length})
	}
	points = append(points, ring...)

	edges := make([]Edge, 0, 12)
	for i := 0; i < 4; i++ {
		edges = append(edges, Edge{i, (i + 1) % 4})
	}
	for i := 0; i < 4; i++ {
		edges = append(edges, Edge{4 + i, 4 + (i+1)%4})
	}
	for i := 0; i < 4; i++ {
		edges = append(edges, Edge{i, i + 4})
	}

	colors := make([]color.RGBA, len(edges))
	for i := range colors {
		colors[i] = Blue
	}
	return Model{Kind: KindCube, Points: points, Edges: edges, Colors: colors, Thickness: 4}
}

// ForKind returns the model named by kind.
func ForKind(kind Kind, length float64) (Model, error) {
	switch kind {
	case KindAxes:
		return Axes(length), nil
	case KindCube:
		return Cube(length), nil
	default:
		return Model{}, fmt.Errorf("%w: unknown overlay %q", vision.ErrConfiguration, kind)
	}
}

// Segment is one line to draw, in pixels.
type Segment struct {
	From, To  camera.Point2
	Color     color.RGBA
	Thickness int
}

// Projector projects models through a calibrated camera.
type Projector struct {
	camera    camera.Model
	projector vision.Projector
}

// NewProjector binds a camera to a projection capability.
func NewProjector(cam camera.Model, p vision.Projector) *Projector {
	return &Projector{camera: cam, projector: p}
}

// Project returns the image points of m in model order. A pose error of
// pose.ErrNoPose yields (nil, false, nil): the frame is skipped, not failed.
func (p *Projector) Project(m Model, estimate camera.Pose, poseErr error) ([]camera.Point2, bool, error) {
	if poseErr != nil {
		if errors.Is(poseErr, pose.ErrNoPose) {
			return nil, false, nil
		}
		return nil, false, poseErr
	}
	pts, err := p.projector.Project(m.Points, estimate, p.camera)
	if err != nil {
		return nil, false, err
	}
	if len(pts) != len(m.Points) {
		return nil, false, fmt.Errorf("%w: projector returned %d points for %d", vision.ErrComputation, len(pts), len(m.Points))
	}
	return pts, true, nil
}

// Segments connects projected points per the model's edge list.
func Segments(m Model, projected []camera.Point2) []Segment {
	segs := make([]Segment, 0, len(m.Edges))
	for i, e := range m.Edges {
		if e[0] >= len(projected) || e[1] >= len(projected) {
			continue
		}
		c := Blue
		if i < len(m.Colors) {
			c = m.Colors[i]
		}
		segs = append(segs, Segment{From: projected[e[0]], To: projected[e[1]], Color: c, Thickness: m.Thickness})
	}
	return segs
}

// TranslationLabels formats the marker translation for the on-screen read-out.
func TranslationLabels(p camera.Pose) []string {
	return []string{
		fmt.Sprintf("X: %fm", p.Translation.X),
		fmt.Sprintf("Y: %fm", p.Translation.Y),
		fmt.Sprintf("Z: %fm", p.Translation.Z),
	}
}
