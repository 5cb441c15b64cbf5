package board

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/markercal/internal/camera"
	"github.com/banshee-data/markercal/internal/vision"
)

// Layout is a rows x columns grid of square markers. Marker ids run 0..N-1 in
// row-major order. The board frame has its origin at the top-left corner of
// marker 0, X along columns, Y along rows, and all corners on Z = 0.
//
// A Layout is immutable once constructed.
type Layout struct {
	dict         Dictionary
	rows         int
	columns      int
	markerLength float64
	separation   float64
}

// NewLayout validates the grid dimensions and returns a Layout.
func NewLayout(dict Dictionary, rows, columns int, markerLength, separation float64) (*Layout, error) {
	if !dict.Valid() {
		return nil, fmt.Errorf("%w %d", ErrUnknownDictionary, int(dict))
	}
	if rows <= 0 || columns <= 0 {
		return nil, fmt.Errorf("%w: grid must have positive rows and columns, got %dx%d", vision.ErrConfiguration, rows, columns)
	}
	if !(markerLength > 0) || math.IsInf(markerLength, 0) {
		return nil, fmt.Errorf("%w: marker length must be positive, got %g", vision.ErrConfiguration, markerLength)
	}
	if !(separation >= 0) || math.IsInf(separation, 0) {
		return nil, fmt.Errorf("%w: marker separation must be non-negative, got %g", vision.ErrConfiguration, separation)
	}
	if n := rows * columns; n > dict.Capacity() {
		return nil, fmt.Errorf("%w: %dx%d board needs %d ids but %s holds %d",
			vision.ErrConfiguration, rows, columns, n, dict, dict.Capacity())
	}
	return &Layout{
		dict:         dict,
		rows:         rows,
		columns:      columns,
		markerLength: markerLength,
		separation:   separation,
	}, nil
}

// Dictionary returns the dictionary the board is printed from.
func (l *Layout) Dictionary() Dictionary { return l.dict }

// Rows returns the number of marker rows.
func (l *Layout) Rows() int { return l.rows }

// Columns returns the number of marker columns.
func (l *Layout) Columns() int { return l.columns }

// MarkerLength returns the marker side length in board units.
func (l *Layout) MarkerLength() float64 { return l.markerLength }

// Separation returns the gap between neighbouring markers.
func (l *Layout) Separation() float64 { return l.separation }

// MarkerCount returns rows * columns.
func (l *Layout) MarkerCount() int { return l.rows * l.columns }

// Width returns the board extent along X.
func (l *Layout) Width() float64 {
	return float64(l.columns)*l.markerLength + float64(l.columns-1)*l.separation
}

// Height returns the board extent along Y.
func (l *Layout) Height() float64 {
	return float64(l.rows)*l.markerLength + float64(l.rows-1)*l.separation
}

// IDs returns every marker id on the board in row-major order.
func (l *Layout) IDs() []int {
	ids := make([]int, l.MarkerCount())
	for i := range ids {
		ids[i] = i
	}
	return ids
}

// Contains reports whether id belongs to the board.
func (l *Layout) Contains(id int) bool {
	return id >= 0 && id < l.MarkerCount()
}

// Corners returns the board-frame corners of marker id in detection order
// (top-left, top-right, bottom-right, bottom-left).
func (l *Layout) Corners(id int) ([vision.CornersPerMarker]r3.Vector, bool) {
	if !l.Contains(id) {
		return [vision.CornersPerMarker]r3.Vector{}, false
	}
	row, col := id/l.columns, id%l.columns
	pitch := l.markerLength + l.separation
	x := float64(col) * pitch
	y := float64(row) * pitch
	L := l.markerLength
	return [vision.CornersPerMarker]r3.Vector{
		{X: x, Y: y},
		{X: x + L, Y: y},
		{X: x + L, Y: y + L},
		{X: x, Y: y + L},
	}, true
}

// MatchImagePoints pairs each observed corner with its board-frame position.
// Observations whose id is not on the board are skipped; the result may be
// empty. Output order follows the observation order, four points per marker.
func (l *Layout) MatchImagePoints(observations []vision.MarkerObservation) (object []r3.Vector, image []camera.Point2) {
	for _, obs := range observations {
		corners, ok := l.Corners(obs.ID)
		if !ok {
			continue
		}
		object = append(object, corners[:]...)
		image = append(image, obs.Corners[:]...)
	}
	return object, image
}

// String describes the layout for logs.
func (l *Layout) String() string {
	return fmt.Sprintf("%s %dx%d marker=%g sep=%g", l.dict, l.rows, l.columns, l.markerLength, l.separation)
}
