package solver

import (
	"errors"
	"fmt"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/markercal/internal/camera"
	"github.com/banshee-data/markercal/internal/vision"
)

// Projector maps 3D points through a pose and camera model. It implements
// vision.Projector.
type Projector struct{}

// Project returns one pixel per object point, in order.
func (Projector) Project(object []r3.Vector, pose camera.Pose, cam camera.Model) ([]camera.Point2, error) {
	if err := cam.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", vision.ErrConfiguration, err)
	}
	pts, err := camera.ProjectPoints(cam, pose, object)
	if err != nil {
		if errors.Is(err, camera.ErrBehindCamera) {
			return nil, fmt.Errorf("%w: %v", vision.ErrComputation, err)
		}
		return nil, err
	}
	return pts, nil
}

var (
	_ vision.Calibrator = Calibrator{}
	_ vision.PoseSolver = PlanarPoseSolver{}
	_ vision.Projector  = Projector{}
)
