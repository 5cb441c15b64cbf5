package main

import (
	"github.com/banshee-data/markercal/internal/config"
	"github.com/banshee-data/markercal/internal/solver"
	"github.com/banshee-data/markercal/internal/vision"
	"github.com/banshee-data/markercal/internal/vision/cvio"
)

// newSolvers returns the calibration and pose solvers cfg selects: OpenCV by
// default, or the pure-Go implementation for machines without calib3d.
func newSolvers(cfg *config.Config) (vision.Calibrator, vision.PoseSolver) {
	n := cfg.Calibration.DistortionCoefficients
	if cfg.Solver == config.SolverGonum {
		return solver.Calibrator{DistortionCoefficients: n}, solver.PlanarPoseSolver{}
	}
	return cvio.Calibrator{DistortionCoefficients: n}, cvio.PoseSolver{}
}
