// Package camera holds the pinhole camera model shared by calibration, pose
// estimation and overlay projection.
//
// Responsibilities: intrinsics and Brown–Conrady/rational distortion,
// normalised ↔ pixel mapping, rigid poses expressed as Rodrigues rotation
// vectors, and point projection.
// Key types: Point2, Model, Pose, Mat3.
//
// Dependency rule: camera is a leaf package and imports nothing from this
// module.
package camera
