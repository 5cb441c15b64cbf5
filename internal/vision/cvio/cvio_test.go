package cvio

import (
	"bytes"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/banshee-data/markercal/internal/board"
	"github.com/banshee-data/markercal/internal/camera"
	"github.com/banshee-data/markercal/internal/config"
	"github.com/banshee-data/markercal/internal/testutil"
	"github.com/banshee-data/markercal/internal/vision"
)

func TestDictionaryCode_AllKnown(t *testing.T) {
	seen := map[gocv.ArucoDictionaryCode]string{}
	for _, name := range board.DictionaryNames() {
		d, err := board.LookupDictionary(name)
		require.NoError(t, err)
		code, err := DictionaryCode(d)
		require.NoError(t, err, name)
		_, dup := seen[code]
		assert.False(t, dup, "%s shares a code with %s", name, seen[code])
		seen[code] = name
	}
	assert.Len(t, seen, 17)

	_, err := DictionaryCode(board.Dictionary(99))
	assert.ErrorIs(t, err, vision.ErrConfiguration)
}

func TestMarkerArgs_RoundTrip(t *testing.T) {
	obs := vision.MarkerObservation{ID: 4, Corners: [4]camera.Point2{{X: 1, Y: 2}, {X: 3, Y: 2}, {X: 3, Y: 4}, {X: 1, Y: 4}}}
	corners, ids := markerArgs([]vision.MarkerObservation{obs})
	require.Len(t, corners, 1)
	assert.Equal(t, []int{4}, ids)
	assert.Equal(t, gocv.Point2f{X: 3, Y: 4}, corners[0][2])
	assert.Equal(t, obs.Corners[1], fromPoint2f(corners[0][1]))
}

func TestPixel_Rounds(t *testing.T) {
	assert.Equal(t, image.Pt(11, -3), pixel(camera.Point2{X: 10.6, Y: -2.6}))
}

func TestFrame_SizeAndEncode(t *testing.T) {
	mat := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	f := NewFrame(mat)
	defer f.Close()

	assert.Equal(t, image.Pt(64, 48), f.Size())
	data, err := EncodePNG(f)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))
}

func TestEncodePNG_RejectsForeignFrames(t *testing.T) {
	_, err := EncodePNG(testutil.NewFakeFrame("x"))
	assert.ErrorIs(t, err, vision.ErrConfiguration)
}

func TestDetector_BlankFrame(t *testing.T) {
	cfg := config.Default()
	d, err := NewDetector(board.Dict6X6_250, cfg.Detector)
	require.NoError(t, err)
	defer d.Close()

	f := NewFrame(gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3))
	defer f.Close()
	det, err := d.Detect(f)
	require.NoError(t, err)
	assert.Empty(t, det.Markers)

	bad := cfg.Detector
	bad.CornerRefinement = "sharpen"
	_, err = NewDetector(board.Dict6X6_250, bad)
	assert.ErrorIs(t, err, vision.ErrConfiguration)
}
