// Package solver provides gonum-backed implementations of the numeric
// capabilities in package vision: a planar multi-view Calibrator, a planar
// PoseSolver and a Projector.
//
// Calibration follows the usual planar recipe: per-view homographies, a
// closed-form focal estimate with the principal point at the image centre,
// per-view extrinsics from the homographies, then a joint
// Levenberg–Marquardt refinement of intrinsics, distortion and every view
// pose. Pose solving uses the same homography decomposition followed by a
// six-parameter refinement.
package solver
