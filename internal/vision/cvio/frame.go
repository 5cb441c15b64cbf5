package cvio

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/banshee-data/markercal/internal/vision"
)

// Frame wraps a BGR gocv.Mat.
type Frame struct {
	mat gocv.Mat
}

// NewFrame takes ownership of mat.
func NewFrame(mat gocv.Mat) *Frame { return &Frame{mat: mat} }

// Size implements vision.Frame.
func (f *Frame) Size() image.Point { return image.Pt(f.mat.Cols(), f.mat.Rows()) }

// Close implements vision.Frame.
func (f *Frame) Close() error { return f.mat.Close() }

// Mat exposes the underlying image. It stays owned by the frame.
func (f *Frame) Mat() gocv.Mat { return f.mat }

func matOf(f vision.Frame) (gocv.Mat, error) {
	cf, ok := f.(*Frame)
	if !ok {
		return gocv.Mat{}, fmt.Errorf("%w: %T is not an OpenCV frame", vision.ErrConfiguration, f)
	}
	if cf.mat.Empty() {
		return gocv.Mat{}, fmt.Errorf("%w: empty frame", vision.ErrResource)
	}
	return cf.mat, nil
}

// EncodePNG encodes f losslessly for the audit frame sink.
func EncodePNG(f vision.Frame) ([]byte, error) {
	mat, err := matOf(f)
	if err != nil {
		return nil, err
	}
	buf, err := gocv.IMEncode(gocv.PNGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}
