// Package display holds the device contracts shared by the interactive loops:
// a camera that yields frames, a window that renders them with annotations and
// reports key presses, and a sink for audit frames.
package display

import (
	"image/color"
	"sync"
	"time"

	"github.com/banshee-data/markercal/internal/camera"
	"github.com/banshee-data/markercal/internal/overlay"
	"github.com/banshee-data/markercal/internal/vision"
)

// NoKey is returned by Window.WaitKey when nothing was pressed.
const NoKey = -1

// Camera is an opened video source. Read returns a frame the caller must Close.
type Camera interface {
	Read() (vision.Frame, error)
	Close() error
}

// Window renders frames and polls the keyboard.
type Window interface {
	Show(f vision.Frame, scene Scene) error
	// WaitKey blocks for at most delay and returns the key code or NoKey.
	WaitKey(delay time.Duration) int
	Close() error
}

// Devices opens the camera and window for one run.
type Devices interface {
	OpenCamera() (Camera, error)
	OpenWindow() (Window, error)
}

// FrameSink stores audit copies of accepted frames.
type FrameSink interface {
	WriteFrame(name string, f vision.Frame) error
}

// Scene is what gets drawn over a frame.
type Scene struct {
	// Detection outlines detected markers when Outline is set.
	Detection vision.Detection
	Outline   bool
	Segments  []overlay.Segment
	// Labels are drawn top-left, one per line.
	Labels      []string
	LabelColor  color.RGBA
	LabelOrigin camera.Point2
}

// CloseOnce wraps a close function so repeated calls are no-ops returning the
// first result.
func CloseOnce(closeFn func() error) func() error {
	var (
		once sync.Once
		err  error
	)
	return func() error {
		once.Do(func() { err = closeFn() })
		return err
	}
}
