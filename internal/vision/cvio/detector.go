package cvio

import (
	"gocv.io/x/gocv"

	"github.com/banshee-data/markercal/internal/board"
	"github.com/banshee-data/markercal/internal/camera"
	"github.com/banshee-data/markercal/internal/config"
	"github.com/banshee-data/markercal/internal/vision"
)

// Detector is the OpenCV ArUco detector.
type Detector struct {
	detector gocv.ArucoDetector
}

var _ vision.Detector = (*Detector)(nil)

// NewDetector builds a detector for dict tuned by params.
func NewDetector(dict board.Dictionary, params config.DetectorConfig) (*Detector, error) {
	code, err := DictionaryCode(dict)
	if err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	p := gocv.NewArucoDetectorParameters()
	p.SetAdaptiveThreshWinSizeMin(params.AdaptiveThreshWinSizeMin)
	p.SetAdaptiveThreshWinSizeMax(params.AdaptiveThreshWinSizeMax)
	p.SetAdaptiveThreshWinSizeStep(params.AdaptiveThreshWinSizeStep)
	p.SetMinMarkerPerimeterRate(params.MinMarkerPerimeterRate)
	p.SetMaxMarkerPerimeterRate(params.MaxMarkerPerimeterRate)
	p.SetCornerRefinementMethod(params.CornerRefinementIndex())

	return &Detector{
		detector: gocv.NewArucoDetectorWithParams(gocv.GetPredefinedDictionary(code), p),
	}, nil
}

// Detect implements vision.Detector.
func (d *Detector) Detect(f vision.Frame) (vision.Detection, error) {
	mat, err := matOf(f)
	if err != nil {
		return vision.Detection{}, err
	}
	corners, ids, rejected := d.detector.DetectMarkers(mat)

	det := vision.Detection{Markers: make([]vision.MarkerObservation, 0, len(ids))}
	for i, id := range ids {
		if i >= len(corners) || len(corners[i]) != vision.CornersPerMarker {
			continue
		}
		obs := vision.MarkerObservation{ID: id}
		for j, c := range corners[i] {
			obs.Corners[j] = fromPoint2f(c)
		}
		det.Markers = append(det.Markers, obs)
	}
	for _, quad := range rejected {
		pts := make([]camera.Point2, len(quad))
		for j, c := range quad {
			pts[j] = fromPoint2f(c)
		}
		det.Rejected = append(det.Rejected, pts)
	}
	return det, nil
}

// Close releases the native detector.
func (d *Detector) Close() error {
	d.detector.Close()
	return nil
}

func fromPoint2f(p gocv.Point2f) camera.Point2 {
	return camera.Point2{X: float64(p.X), Y: float64(p.Y)}
}

func toPoint2f(p camera.Point2) gocv.Point2f {
	return gocv.Point2f{X: float32(p.X), Y: float32(p.Y)}
}

// markerArgs converts observations back to the layout ArucoDrawDetectedMarkers
// expects.
func markerArgs(markers []vision.MarkerObservation) ([][]gocv.Point2f, []int) {
	corners := make([][]gocv.Point2f, len(markers))
	ids := make([]int, len(markers))
	for i, m := range markers {
		quad := make([]gocv.Point2f, len(m.Corners))
		for j, c := range m.Corners {
			quad[j] = toPoint2f(c)
		}
		corners[i] = quad
		ids[i] = m.ID
	}
	return corners, ids
}
