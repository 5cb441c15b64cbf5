package display

import (
	"errors"
	"sync"
	"time"

	"github.com/banshee-data/markercal/internal/vision"
)

// ErrEndOfScript is returned by MockCamera once its frames run out.
var ErrEndOfScript = errors.New("display: end of scripted frames")

// MockCamera yields a fixed frame sequence, then ReadErr (or ErrEndOfScript).
type MockCamera struct {
	mu sync.Mutex

	// Frames are returned in order by Read.
	Frames []vision.Frame

	// ReadErr is returned after the frames are exhausted if set
	ReadErr error

	// CloseCalls records the number of Close calls
	CloseCalls int

	next int
}

// Read implements Camera.
func (c *MockCamera) Read() (vision.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.next >= len(c.Frames) {
		if c.ReadErr != nil {
			return nil, c.ReadErr
		}
		return nil, ErrEndOfScript
	}
	f := c.Frames[c.next]
	c.next++
	return f, nil
}

// Close implements Camera.
func (c *MockCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CloseCalls++
	return nil
}

// Reads reports how many frames have been handed out.
func (c *MockCamera) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

// MockWindow records rendered scenes and replays a key script, one key per
// WaitKey call. After the script it returns NoKey.
type MockWindow struct {
	mu sync.Mutex

	Keys []int

	// ShowErr is returned by every Show call if set
	ShowErr error

	// OnWaitKey runs before each WaitKey returns, with the zero-based call index.
	OnWaitKey func(call int)

	Scenes     []Scene
	CloseCalls int

	waits int
}

// Show implements Window.
func (w *MockWindow) Show(_ vision.Frame, scene Scene) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ShowErr != nil {
		return w.ShowErr
	}
	w.Scenes = append(w.Scenes, scene)
	return nil
}

// WaitKey implements Window.
func (w *MockWindow) WaitKey(time.Duration) int {
	w.mu.Lock()
	call := w.waits
	w.waits++
	hook := w.OnWaitKey
	key := NoKey
	if call < len(w.Keys) {
		key = w.Keys[call]
	}
	w.mu.Unlock()
	if hook != nil {
		hook(call)
	}
	return key
}

// Close implements Window.
func (w *MockWindow) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.CloseCalls++
	return nil
}

// MockDevices hands out a fixed camera and window.
type MockDevices struct {
	Camera    *MockCamera
	Window    *MockWindow
	CameraErr error
	WindowErr error
}

// OpenCamera implements Devices.
func (d *MockDevices) OpenCamera() (Camera, error) {
	if d.CameraErr != nil {
		return nil, d.CameraErr
	}
	return d.Camera, nil
}

// OpenWindow implements Devices.
func (d *MockDevices) OpenWindow() (Window, error) {
	if d.WindowErr != nil {
		return nil, d.WindowErr
	}
	return d.Window, nil
}

// MemorySink keeps audit frames by name.
type MemorySink struct {
	mu sync.Mutex

	// Err is returned by every WriteFrame call if set
	Err error

	Names []string
}

// WriteFrame implements FrameSink.
func (s *MemorySink) WriteFrame(name string, _ vision.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Names = append(s.Names, name)
	return nil
}
