package testutil

import (
	"context"
	"errors"
	"image"
	"sync"

	"github.com/banshee-data/markercal/internal/vision"
)

// ErrScriptExhausted is returned by fakes asked for more than they were given.
var ErrScriptExhausted = errors.New("testutil: script exhausted")

// FakeFrame is an in-memory vision.Frame that records Close calls.
type FakeFrame struct {
	Width, Height int
	// Label lets scripted detectors key their output on the frame.
	Label string

	mu     sync.Mutex
	closed int
}

// NewFakeFrame returns a frame of the synthetic sensor size.
func NewFakeFrame(label string) *FakeFrame {
	return &FakeFrame{Width: ImageWidth, Height: ImageHeight, Label: label}
}

// Size implements vision.Frame.
func (f *FakeFrame) Size() image.Point { return image.Pt(f.Width, f.Height) }

// Close implements vision.Frame.
func (f *FakeFrame) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

// Closed reports how many times Close was called.
func (f *FakeFrame) Closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// ScriptedDetector returns detections keyed by FakeFrame label. Frames with
// no entry yield an empty detection.
type ScriptedDetector struct {
	ByLabel map[string]vision.Detection
	Err     error

	mu    sync.Mutex
	calls int
}

// Detect implements vision.Detector.
func (d *ScriptedDetector) Detect(f vision.Frame) (vision.Detection, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	if d.Err != nil {
		return vision.Detection{}, d.Err
	}
	ff, ok := f.(*FakeFrame)
	if !ok {
		return vision.Detection{}, nil
	}
	return d.ByLabel[ff.Label], nil
}

// Calls reports how many frames were passed to Detect.
func (d *ScriptedDetector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// StubCalibrator returns a fixed result and records its inputs.
type StubCalibrator struct {
	Result vision.Calibration
	Err    error

	Sets []vision.PointSet
	Size image.Point
}

// Calibrate implements vision.Calibrator.
func (c *StubCalibrator) Calibrate(ctx context.Context, sets []vision.PointSet, size image.Point) (vision.Calibration, error) {
	if err := ctx.Err(); err != nil {
		return vision.Calibration{}, err
	}
	c.Sets = sets
	c.Size = size
	return c.Result, c.Err
}
