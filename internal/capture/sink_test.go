package capture

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/markercal/internal/fsutil"
	"github.com/banshee-data/markercal/internal/testutil"
	"github.com/banshee-data/markercal/internal/vision"
)

func labelEncoder(f vision.Frame) ([]byte, error) {
	return []byte(f.(*testutil.FakeFrame).Label), nil
}

func TestDirSink_WriteFrame(t *testing.T) {
	mem := fsutil.NewMemoryFileSystem()
	sink := NewDirSink("frames", mem, labelEncoder)

	require.NoError(t, sink.WriteFrame("image1.png", testutil.NewFakeFrame("first")))

	data, err := mem.ReadFile("frames/image1.png")
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
	assert.False(t, mem.Exists("frames/.image1.png.tmp"))
}

func TestDirSink_Failures(t *testing.T) {
	frame := testutil.NewFakeFrame("x")

	sink := NewDirSink("frames", fsutil.NewMemoryFileSystem(), labelEncoder)
	err := sink.WriteFrame("../escape.png", frame)
	assert.ErrorIs(t, err, vision.ErrConfiguration)

	sink = NewDirSink("frames", fsutil.NewMemoryFileSystem(), func(vision.Frame) ([]byte, error) {
		return nil, errors.New("empty mat")
	})
	assert.ErrorIs(t, sink.WriteFrame("image1.png", frame), vision.ErrIO)

	mem := fsutil.NewMemoryFileSystem()
	mem.FailWrites = "frames"
	sink = NewDirSink("frames", mem, labelEncoder)
	assert.ErrorIs(t, sink.WriteFrame("image1.png", frame), vision.ErrIO)
	assert.Empty(t, mem.Files())
}
