// Package cvio adapts OpenCV (through gocv) to the vision and display
// contracts: frames, the ArUco detector, the capture device and the preview
// window.
package cvio

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/banshee-data/markercal/internal/board"
	"github.com/banshee-data/markercal/internal/vision"
)

var dictionaryCodes = map[board.Dictionary]gocv.ArucoDictionaryCode{
	board.Dict4X4_50:        gocv.ArucoDict4x4_50,
	board.Dict4X4_100:       gocv.ArucoDict4x4_100,
	board.Dict4X4_250:       gocv.ArucoDict4x4_250,
	board.Dict4X4_1000:      gocv.ArucoDict4x4_1000,
	board.Dict5X5_50:        gocv.ArucoDict5x5_50,
	board.Dict5X5_100:       gocv.ArucoDict5x5_100,
	board.Dict5X5_250:       gocv.ArucoDict5x5_250,
	board.Dict5X5_1000:      gocv.ArucoDict5x5_1000,
	board.Dict6X6_50:        gocv.ArucoDict6x6_50,
	board.Dict6X6_100:       gocv.ArucoDict6x6_100,
	board.Dict6X6_250:       gocv.ArucoDict6x6_250,
	board.Dict6X6_1000:      gocv.ArucoDict6x6_1000,
	board.Dict7X7_50:        gocv.ArucoDict7x7_50,
	board.Dict7X7_100:       gocv.ArucoDict7x7_100,
	board.Dict7X7_250:       gocv.ArucoDict7x7_250,
	board.Dict7X7_1000:      gocv.ArucoDict7x7_1000,
	board.DictArucoOriginal: gocv.ArucoDictArucoOriginal,
}

// DictionaryCode maps a board dictionary to its OpenCV predefined code.
func DictionaryCode(d board.Dictionary) (gocv.ArucoDictionaryCode, error) {
	code, ok := dictionaryCodes[d]
	if !ok {
		return 0, fmt.Errorf("%w: no OpenCV dictionary for %v", vision.ErrConfiguration, d)
	}
	return code, nil
}
