package vision

import "errors"

// Error categories. Component errors wrap one of these so callers can decide
// between aborting the run and skipping a single frame with errors.Is.
var (
	// ErrConfiguration covers bad dictionary names, non-positive dimensions and
	// malformed arguments. Always fatal and reported before any device is opened.
	ErrConfiguration = errors.New("configuration error")

	// ErrResource covers an unavailable camera or display and unreadable
	// calibration files. Fatal, no retry.
	ErrResource = errors.New("resource error")

	// ErrDetectionMiss means no markers, or not the wanted marker, were seen.
	// Non-fatal; the frame is skipped.
	ErrDetectionMiss = errors.New("detection miss")

	// ErrCorrespondenceRejected means a frame could not be matched to the board.
	// Non-fatal; the operator may recapture.
	ErrCorrespondenceRejected = errors.New("correspondence rejected")

	// ErrInsufficientData means calibration was attempted without usable views.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrComputation means a numerical solve was degenerate or did not converge.
	ErrComputation = errors.New("computation error")

	// ErrIO means a calibration record could not be written.
	ErrIO = errors.New("io error")
)

// IsFatal reports whether err should end the run rather than skip one frame.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConfiguration) || errors.Is(err, ErrResource)
}
