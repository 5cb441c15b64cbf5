// Package calib accumulates accepted board views and turns them into a
// persisted camera calibration.
package calib

import (
	"fmt"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/markercal/internal/board"
	"github.com/banshee-data/markercal/internal/camera"
	"github.com/banshee-data/markercal/internal/vision"
)

var (
	// ErrNoMarkersDetected rejects a capture with no detections at all.
	ErrNoMarkersDetected = fmt.Errorf("%w: %w: no markers detected", vision.ErrCorrespondenceRejected, vision.ErrDetectionMiss)

	// ErrNoMatchingLayoutIDs rejects a capture whose ids are all off the board.
	ErrNoMatchingLayoutIDs = fmt.Errorf("%w: no detected marker id belongs to the board", vision.ErrCorrespondenceRejected)
)

// View is one accepted capture. Seq is 1-based and follows acceptance order.
type View struct {
	Seq          int
	Observations []vision.MarkerObservation
	ObjectPoints []r3.Vector
	ImagePoints  []camera.Point2
}

// MarkerCount is the number of observations matched to the board.
func (v View) MarkerCount() int { return len(v.ObjectPoints) / vision.CornersPerMarker }

// PointCount is the number of 3D-2D correspondence pairs.
func (v View) PointCount() int { return len(v.ObjectPoints) }

// PointSet returns the correspondences in the form the calibrator consumes.
func (v View) PointSet() vision.PointSet {
	return vision.PointSet{Object: v.ObjectPoints, Image: v.ImagePoints}
}

// CorrespondenceStore collects views matched against one board layout. It is
// owned by a single capture session and is not safe for concurrent use.
type CorrespondenceStore struct {
	layout *board.Layout
	views  []View
}

// NewStore returns an empty store for layout.
func NewStore(layout *board.Layout) *CorrespondenceStore {
	return &CorrespondenceStore{layout: layout}
}

// Layout returns the board the store matches against.
func (s *CorrespondenceStore) Layout() *board.Layout { return s.layout }

// TryAccept matches observations against the layout and, when at least one id
// is on the board, appends a new View. Every successful call appends exactly
// once; identical frames are not deduplicated.
func (s *CorrespondenceStore) TryAccept(observations []vision.MarkerObservation) (View, error) {
	if len(observations) == 0 {
		return View{}, ErrNoMarkersDetected
	}

	matched := make([]vision.MarkerObservation, 0, len(observations))
	for _, obs := range observations {
		if s.layout.Contains(obs.ID) {
			matched = append(matched, obs)
		}
	}
	if len(matched) == 0 {
		return View{}, fmt.Errorf("%w (ids %v)", ErrNoMatchingLayoutIDs, idsOf(observations))
	}

	object, image := s.layout.MatchImagePoints(matched)
	view := View{
		Seq:          len(s.views) + 1,
		Observations: matched,
		ObjectPoints: object,
		ImagePoints:  image,
	}
	s.views = append(s.views, view)
	return view, nil
}

// Len returns the number of accepted views.
func (s *CorrespondenceStore) Len() int { return len(s.views) }

// Views returns the accepted views in acceptance order. The slice is a copy.
func (s *CorrespondenceStore) Views() []View {
	return append([]View(nil), s.views...)
}

func idsOf(observations []vision.MarkerObservation) []int {
	ids := make([]int, len(observations))
	for i, o := range observations {
		ids[i] = o.ID
	}
	return ids
}
