package cvio

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"time"

	"gocv.io/x/gocv"

	"github.com/banshee-data/markercal/internal/camera"
	"github.com/banshee-data/markercal/internal/display"
	"github.com/banshee-data/markercal/internal/vision"
)

// labelLineHeight spaces the text read-out lines in pixels.
const labelLineHeight = 30

// outlineColor is the border drawn around detected markers.
var outlineColor = color.RGBA{G: 255, A: 255}

// Devices opens a capture device and a named HighGUI window.
type Devices struct {
	Device int
	Window string
}

var _ display.Devices = Devices{}

// OpenCamera implements display.Devices.
func (d Devices) OpenCamera() (display.Camera, error) {
	vc, err := gocv.VideoCaptureDevice(d.Device)
	if err != nil {
		return nil, fmt.Errorf("open video device %d: %w", d.Device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("video device %d did not open", d.Device)
	}
	return &Camera{capture: vc, device: d.Device}, nil
}

// OpenWindow implements display.Devices.
func (d Devices) OpenWindow() (display.Window, error) {
	name := d.Window
	if name == "" {
		name = "markercal"
	}
	return &Window{window: gocv.NewWindow(name)}, nil
}

// Camera reads BGR frames from a capture device.
type Camera struct {
	capture *gocv.VideoCapture
	device  int
}

// Read implements display.Camera. The caller closes the frame.
func (c *Camera) Read() (vision.Frame, error) {
	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("device %d returned no frame", c.device)
	}
	return NewFrame(mat), nil
}

// Close implements display.Camera.
func (c *Camera) Close() error { return c.capture.Close() }

// Window draws scenes over a copy of each frame and shows it.
type Window struct {
	window *gocv.Window
}

// Show implements display.Window.
func (w *Window) Show(f vision.Frame, scene display.Scene) error {
	mat, err := matOf(f)
	if err != nil {
		return err
	}
	canvas := mat.Clone()
	defer canvas.Close()

	if scene.Outline && len(scene.Detection.Markers) > 0 {
		corners, ids := markerArgs(scene.Detection.Markers)
		gocv.ArucoDrawDetectedMarkers(canvas, corners, ids, gocv.NewScalar(
			float64(outlineColor.B), float64(outlineColor.G), float64(outlineColor.R), 0))
	}
	for _, s := range scene.Segments {
		gocv.Line(&canvas, pixel(s.From), pixel(s.To), s.Color, s.Thickness)
	}
	origin := pixel(scene.LabelOrigin)
	if origin == (image.Point{}) {
		origin = image.Pt(10, labelLineHeight)
	}
	for i, label := range scene.Labels {
		at := image.Pt(origin.X, origin.Y+i*labelLineHeight)
		gocv.PutText(&canvas, label, at, gocv.FontHersheySimplex, 1, scene.LabelColor, 2)
	}

	w.window.IMShow(canvas)
	return nil
}

// WaitKey implements display.Window.
func (w *Window) WaitKey(delay time.Duration) int {
	ms := int(delay / time.Millisecond)
	if ms < 1 {
		ms = 1
	}
	key := w.window.WaitKey(ms)
	if key < 0 {
		return display.NoKey
	}
	return key & 0xff
}

// Close implements display.Window.
func (w *Window) Close() error { return w.window.Close() }

func pixel(p camera.Point2) image.Point {
	return image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
}
