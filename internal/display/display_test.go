package display

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloseOnce(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	closeFn := CloseOnce(func() error {
		calls++
		return boom
	})

	assert.ErrorIs(t, closeFn(), boom)
	assert.ErrorIs(t, closeFn(), boom)
	assert.Equal(t, 1, calls)
}

func TestMockWindow_KeyScript(t *testing.T) {
	var seen []int
	w := &MockWindow{Keys: []int{99, 27}, OnWaitKey: func(call int) { seen = append(seen, call) }}

	assert.Equal(t, 99, w.WaitKey(0))
	assert.Equal(t, 27, w.WaitKey(0))
	assert.Equal(t, NoKey, w.WaitKey(0))
	assert.Equal(t, []int{0, 1, 2}, seen)
}

func TestMockCamera_EndOfScript(t *testing.T) {
	c := &MockCamera{}
	_, err := c.Read()
	assert.ErrorIs(t, err, ErrEndOfScript)

	readErr := errors.New("unplugged")
	c = &MockCamera{ReadErr: readErr}
	_, err = c.Read()
	assert.ErrorIs(t, err, readErr)
}

func TestMockDevices(t *testing.T) {
	d := &MockDevices{Camera: &MockCamera{}, Window: &MockWindow{}}
	cam, err := d.OpenCamera()
	require.NoError(t, err)
	require.NoError(t, cam.Close())
	assert.Equal(t, 1, d.Camera.CloseCalls)

	d.WindowErr = errors.New("no display")
	_, err = d.OpenWindow()
	assert.Error(t, err)
}
