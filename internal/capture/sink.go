package capture

import (
	"fmt"

	"github.com/banshee-data/markercal/internal/fsutil"
	"github.com/banshee-data/markercal/internal/security"
	"github.com/banshee-data/markercal/internal/vision"
)

// Encoder turns a frame into file bytes (PNG for audit frames).
type Encoder func(f vision.Frame) ([]byte, error)

// DirSink writes audit frames into one directory.
type DirSink struct {
	dir    string
	fs     fsutil.FileSystem
	encode Encoder
}

// NewDirSink returns a sink rooted at dir. A nil fs means the OS filesystem.
func NewDirSink(dir string, fsys fsutil.FileSystem, encode Encoder) *DirSink {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	if dir == "" {
		dir = "."
	}
	return &DirSink{dir: dir, fs: fsys, encode: encode}
}

// WriteFrame encodes f and stores it as dir/name. Names that would leave dir
// are refused.
func (s *DirSink) WriteFrame(name string, f vision.Frame) error {
	path, err := security.JoinWithin(s.dir, name)
	if err != nil {
		return fmt.Errorf("%w: %v", vision.ErrConfiguration, err)
	}
	data, err := s.encode(f)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", vision.ErrIO, name, err)
	}
	if err := fsutil.WriteFileAtomic(s.fs, path, data, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %v", vision.ErrIO, path, err)
	}
	return nil
}
