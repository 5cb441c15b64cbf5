// Package capture runs the interactive calibration capture loop: it previews
// camera frames with detected markers outlined, accepts views on the capture
// key and hands the accumulated views on when the end key is pressed.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/markercal/internal/calib"
	"github.com/banshee-data/markercal/internal/display"
	"github.com/banshee-data/markercal/internal/monitoring"
	"github.com/banshee-data/markercal/internal/overlay"
	"github.com/banshee-data/markercal/internal/timeutil"
	"github.com/banshee-data/markercal/internal/vision"
)

// State is the session lifecycle position.
type State int

const (
	Idle State = iota
	Previewing
	Accepting
	Done
	Aborted
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Previewing:
		return "previewing"
	case Accepting:
		return "accepting"
	case Done:
		return "done"
	case Aborted:
		return "aborted"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool { return s == Done || s == Aborted || s == Cancelled }

// Default key codes.
const (
	KeyCapture = 99
	KeyEnd     = 27
)

// ErrSessionUsed is returned when Run is called on a session that already ran.
var ErrSessionUsed = errors.New("capture: session already run")

// SessionConfig wires a Session. Devices, Detector and Store are required.
type SessionConfig struct {
	Devices  display.Devices
	Detector vision.Detector
	Store    *calib.CorrespondenceStore
	// Sink receives accepted frames as image<seq>.png; nil disables audit.
	Sink display.FrameSink
	// CaptureKey and EndKey default to 'c' and ESC.
	CaptureKey int
	EndKey     int
	// KeyDelay is the per-frame WaitKey delay; defaults to 1ms.
	KeyDelay time.Duration
	// Clock drives frame-rate stats; defaults to the real clock.
	Clock timeutil.Clock
	// OnTransition, if set, observes every state change.
	OnTransition func(from, to State)
}

// Outcome summarises a finished session.
type Outcome struct {
	ID    uuid.UUID
	State State
	Views []calib.View
	// ImageSize is the size of the last accepted frame.
	ImageSize image.Point
	Frames    int
	Rejected  int
}

// Session is a single-use capture run.
type Session struct {
	id         uuid.UUID
	devices    display.Devices
	detector   vision.Detector
	store      *calib.CorrespondenceStore
	sink       display.FrameSink
	captureKey int
	endKey     int
	keyDelay   time.Duration
	meter      *timeutil.RateMeter
	observe    func(from, to State)

	state     State
	imageSize image.Point
	frames    int
	rejected  int
}

// NewSession validates config and applies defaults.
func NewSession(config SessionConfig) (*Session, error) {
	if config.Devices == nil || config.Detector == nil || config.Store == nil {
		return nil, fmt.Errorf("%w: capture session needs devices, detector and store", vision.ErrConfiguration)
	}
	captureKey := config.CaptureKey
	if captureKey == 0 {
		captureKey = KeyCapture
	}
	endKey := config.EndKey
	if endKey == 0 {
		endKey = KeyEnd
	}
	if captureKey == endKey {
		return nil, fmt.Errorf("%w: capture and end keys are both %d", vision.ErrConfiguration, captureKey)
	}
	delay := config.KeyDelay
	if delay <= 0 {
		delay = time.Millisecond
	}
	clock := config.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Session{
		id:         uuid.New(),
		devices:    config.Devices,
		detector:   config.Detector,
		store:      config.Store,
		sink:       config.Sink,
		captureKey: captureKey,
		endKey:     endKey,
		keyDelay:   delay,
		meter:      timeutil.NewRateMeter(clock, time.Second),
		observe:    config.OnTransition,
	}, nil
}

// ID identifies the session in logs and the history database.
func (s *Session) ID() uuid.UUID { return s.id }

// State returns the current state.
func (s *Session) State() State { return s.state }

func (s *Session) transition(to State) {
	from := s.state
	s.state = to
	if s.observe != nil {
		s.observe(from, to)
	}
}

// Run drives the loop until the end key (Done), a context cancellation
// (Cancelled) or a device failure (Aborted, returned as vision.ErrResource).
// Per-frame detection and acceptance failures are logged and the loop goes on.
func (s *Session) Run(ctx context.Context) (Outcome, error) {
	if s.state != Idle {
		return s.outcome(), ErrSessionUsed
	}
	log := monitoring.Logger().With().Str("session", s.id.String()).Logger()

	cam, err := s.devices.OpenCamera()
	if err != nil {
		s.transition(Aborted)
		return s.outcome(), fmt.Errorf("%w: open camera: %v", vision.ErrResource, err)
	}
	closeCamera := display.CloseOnce(cam.Close)
	defer closeCamera()

	win, err := s.devices.OpenWindow()
	if err != nil {
		s.transition(Aborted)
		return s.outcome(), fmt.Errorf("%w: open window: %v", vision.ErrResource, err)
	}
	closeWindow := display.CloseOnce(win.Close)
	defer closeWindow()

	s.transition(Previewing)
	log.Info().Int("capture_key", s.captureKey).Int("end_key", s.endKey).Msg("capture started")

	for {
		if err := ctx.Err(); err != nil {
			s.transition(Cancelled)
			log.Info().Int("views", s.store.Len()).Msg("capture cancelled")
			return s.outcome(), nil
		}

		done, err := s.step(cam, win)
		if err != nil {
			s.transition(Aborted)
			log.Error().Err(err).Msg("capture aborted")
			return s.outcome(), err
		}
		if done {
			if err := closeCamera(); err != nil {
				log.Warn().Err(err).Msg("camera close")
			}
			s.transition(Done)
			log.Info().Int("views", s.store.Len()).Int("rejected", s.rejected).Msg("capture finished")
			return s.outcome(), nil
		}
	}
}

// step reads, previews and handles the key for one frame. The frame is closed
// before step returns.
func (s *Session) step(cam display.Camera, win display.Window) (bool, error) {
	frame, err := cam.Read()
	if err != nil {
		return false, fmt.Errorf("%w: read frame %d: %v", vision.ErrResource, s.frames+1, err)
	}
	defer frame.Close()
	s.frames++
	if fps, ok := s.meter.Tick(); ok {
		l := monitoring.Logger()
		l.Debug().Float64("fps", fps).Int("views", s.store.Len()).Msg("preview")
	}

	det, err := s.detector.Detect(frame)
	if err != nil {
		monitoring.Logf("detect frame %d: %v", s.frames, err)
		det = vision.Detection{}
	}

	scene := display.Scene{
		Detection:  det,
		Outline:    true,
		Labels:     []string{fmt.Sprintf("views: %d", s.store.Len())},
		LabelColor: overlay.Green,
	}
	if err := win.Show(frame, scene); err != nil {
		return false, fmt.Errorf("%w: show frame: %v", vision.ErrResource, err)
	}

	switch win.WaitKey(s.keyDelay) {
	case s.captureKey:
		s.accept(frame, det)
	case s.endKey:
		return true, nil
	}
	return false, nil
}

func (s *Session) accept(frame vision.Frame, det vision.Detection) {
	s.transition(Accepting)
	defer s.transition(Previewing)

	view, err := s.store.TryAccept(det.Markers)
	if err != nil {
		s.rejected++
		l := monitoring.Logger()
		l.Warn().Err(err).Int("frame", s.frames).Msg("view rejected")
		return
	}
	s.imageSize = frame.Size()

	l := monitoring.Logger()
	l.Info().
		Int("seq", view.Seq).
		Int("markers", view.MarkerCount()).
		Int("points", view.PointCount()).
		Msg("view accepted")

	if s.sink == nil {
		return
	}
	name := fmt.Sprintf("image%d.png", view.Seq)
	if err := s.sink.WriteFrame(name, frame); err != nil {
		l.Warn().Err(err).Str("file", name).Msg("audit frame not written")
	}
}

func (s *Session) outcome() Outcome {
	return Outcome{
		ID:        s.id,
		State:     s.state,
		Views:     s.store.Views(),
		ImageSize: s.imageSize,
		Frames:    s.frames,
		Rejected:  s.rejected,
	}
}
