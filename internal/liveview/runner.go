// Package liveview runs the per-frame pose overlay loop behind the axes and
// cube demos: detect, estimate the target marker pose, project the overlay
// model and render it until the end key is pressed.
package liveview

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/markercal/internal/camera"
	"github.com/banshee-data/markercal/internal/display"
	"github.com/banshee-data/markercal/internal/monitoring"
	"github.com/banshee-data/markercal/internal/overlay"
	"github.com/banshee-data/markercal/internal/pose"
	"github.com/banshee-data/markercal/internal/timeutil"
	"github.com/banshee-data/markercal/internal/vision"
)

// LabelOrigin is where the translation read-out starts.
var LabelOrigin = camera.Point2{X: 10, Y: 30}

// RunnerConfig wires a Runner. Devices, Detector, Estimator and Projector
// are required.
type RunnerConfig struct {
	Devices   display.Devices
	Detector  vision.Detector
	Estimator *pose.Estimator
	Projector *overlay.Projector
	Model     overlay.Model
	// Labels adds the X/Y/Z translation read-out when a pose is found.
	Labels bool
	// EndKey defaults to ESC.
	EndKey   int
	KeyDelay time.Duration
	Clock    timeutil.Clock
}

// Stats summarises a run.
type Stats struct {
	Frames int
	// Posed counts frames where the overlay was drawn.
	Posed int
	// Skipped counts frames without the target or with a failed projection.
	Skipped  int
	LastPose camera.Pose
	// Cancelled is set when ctx ended the run rather than the end key.
	Cancelled bool
}

// Runner is the overlay loop.
type Runner struct {
	devices   display.Devices
	detector  vision.Detector
	estimator *pose.Estimator
	projector *overlay.Projector
	model     overlay.Model
	labels    bool
	endKey    int
	keyDelay  time.Duration
	meter     *timeutil.RateMeter
}

// NewRunner validates config and applies defaults.
func NewRunner(config RunnerConfig) (*Runner, error) {
	if config.Devices == nil || config.Detector == nil || config.Estimator == nil || config.Projector == nil {
		return nil, fmt.Errorf("%w: live view needs devices, detector, estimator and projector", vision.ErrConfiguration)
	}
	if len(config.Model.Points) == 0 {
		return nil, fmt.Errorf("%w: empty overlay model", vision.ErrConfiguration)
	}
	endKey := config.EndKey
	if endKey == 0 {
		endKey = 27
	}
	delay := config.KeyDelay
	if delay <= 0 {
		delay = time.Millisecond
	}
	clock := config.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Runner{
		devices:   config.Devices,
		detector:  config.Detector,
		estimator: config.Estimator,
		projector: config.Projector,
		model:     config.Model,
		labels:    config.Labels,
		endKey:    endKey,
		keyDelay:  delay,
		meter:     timeutil.NewRateMeter(clock, time.Second),
	}, nil
}

// Run loops until the end key or ctx is done. Only device failures are
// returned; per-frame misses are counted in Stats.
func (r *Runner) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	cam, err := r.devices.OpenCamera()
	if err != nil {
		return stats, fmt.Errorf("%w: open camera: %v", vision.ErrResource, err)
	}
	closeCamera := display.CloseOnce(cam.Close)
	defer closeCamera()

	win, err := r.devices.OpenWindow()
	if err != nil {
		return stats, fmt.Errorf("%w: open window: %v", vision.ErrResource, err)
	}
	closeWindow := display.CloseOnce(win.Close)
	defer closeWindow()

	l := monitoring.Logger()
	l.Info().
		Str("overlay", string(r.model.Kind)).
		Int("target", r.estimator.TargetID()).
		Float64("marker_length", r.estimator.MarkerLength()).
		Msg("live view started")

	for ctx.Err() == nil {
		done, err := r.step(cam, win, &stats)
		if err != nil {
			return stats, err
		}
		if done {
			break
		}
	}
	stats.Cancelled = ctx.Err() != nil
	l.Info().Bool("cancelled", stats.Cancelled).Int("frames", stats.Frames).Int("posed", stats.Posed).Int("skipped", stats.Skipped).Msg("live view finished")
	return stats, nil
}

func (r *Runner) step(cam display.Camera, win display.Window, stats *Stats) (bool, error) {
	frame, err := cam.Read()
	if err != nil {
		return false, fmt.Errorf("%w: read frame %d: %v", vision.ErrResource, stats.Frames+1, err)
	}
	defer frame.Close()
	stats.Frames++
	if fps, ok := r.meter.Tick(); ok {
		l := monitoring.Logger()
		l.Debug().Float64("fps", fps).Int("posed", stats.Posed).Msg("live view")
	}

	det, err := r.detector.Detect(frame)
	if err != nil {
		monitoring.Logf("detect frame %d: %v", stats.Frames, err)
		det = vision.Detection{}
	}

	scene := display.Scene{Detection: det, Outline: true, LabelColor: overlay.Green, LabelOrigin: LabelOrigin}
	estimate, poseErr := r.estimator.Estimate(det)
	projected, ok, err := r.projector.Project(r.model, estimate, poseErr)
	switch {
	case err != nil:
		stats.Skipped++
		l := monitoring.Logger()
		l.Debug().Err(err).Int("frame", stats.Frames).Msg("overlay skipped")
	case !ok:
		stats.Skipped++
	default:
		stats.Posed++
		stats.LastPose = estimate
		scene.Segments = overlay.Segments(r.model, projected)
		if r.labels {
			scene.Labels = overlay.TranslationLabels(estimate)
		}
	}

	if err := win.Show(frame, scene); err != nil {
		return false, fmt.Errorf("%w: show frame: %v", vision.ErrResource, err)
	}
	return win.WaitKey(r.keyDelay) == r.endKey, nil
}
