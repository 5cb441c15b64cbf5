package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/banshee-data/markercal/internal/calib"
	"github.com/banshee-data/markercal/internal/liveview"
	"github.com/banshee-data/markercal/internal/monitoring"
	"github.com/banshee-data/markercal/internal/overlay"
	"github.com/banshee-data/markercal/internal/pose"
	"github.com/banshee-data/markercal/internal/solver"
	"github.com/banshee-data/markercal/internal/vision/cvio"
)

// handleOverlay runs the axes or cube demo on the configured target marker.
func handleOverlay(ctx context.Context, kind overlay.Kind, args []string) error {
	fs := flag.NewFlagSet(string(kind), flag.ExitOnError)
	var o options
	o.registerCommon(fs)
	o.registerCamera(fs)
	o.registerPose(fs)
	cfg, err := parseConfig(fs, &o, args)
	if err != nil {
		return err
	}

	layout, err := cfg.Layout()
	if err != nil {
		return err
	}
	result, err := calib.NewOrchestrator(calib.OrchestratorConfig{}).Load(cfg.Calibration.Path)
	if err != nil {
		return err
	}
	_, poseSolver := newSolvers(cfg)
	estimator, err := pose.NewEstimator(cfg.Pose.TargetID, cfg.Pose.MarkerLength, result.Camera, poseSolver)
	if err != nil {
		return err
	}
	model, err := overlay.ForKind(kind, cfg.Pose.MarkerLength)
	if err != nil {
		return err
	}
	detector, err := cvio.NewDetector(layout.Dictionary(), cfg.Detector)
	if err != nil {
		return err
	}
	defer detector.Close()

	runner, err := liveview.NewRunner(liveview.RunnerConfig{
		Devices:   cvio.Devices{Device: cfg.Camera.Device, Window: cfg.Camera.Window},
		Detector:  detector,
		Estimator: estimator,
		Projector: overlay.NewProjector(result.Camera, solver.Projector{}),
		Model:     model,
		Labels:    kind == overlay.KindAxes,
		EndKey:    cfg.Keys.End,
	})
	if err != nil {
		return err
	}

	monitoring.Logf("%s overlay on marker %d using %s; ESC to quit", kind, cfg.Pose.TargetID, cfg.Calibration.Path)
	stats, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	return finishOverlay(os.Stdout, stats)
}

// finishOverlay prints the run summary. An interrupted run reports
// errCancelled so it exits the same way an interrupted calibration does.
func finishOverlay(w io.Writer, stats liveview.Stats) error {
	fmt.Fprintf(w, "frames: %d, overlay drawn: %d, skipped: %d\n", stats.Frames, stats.Posed, stats.Skipped)
	if stats.Cancelled {
		return fmt.Errorf("live view: %w", errCancelled)
	}
	return nil
}
