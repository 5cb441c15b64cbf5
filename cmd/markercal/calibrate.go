package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/banshee-data/markercal/internal/calib"
	"github.com/banshee-data/markercal/internal/calibdb"
	"github.com/banshee-data/markercal/internal/capture"
	"github.com/banshee-data/markercal/internal/config"
	"github.com/banshee-data/markercal/internal/monitoring"
	"github.com/banshee-data/markercal/internal/report"
	"github.com/banshee-data/markercal/internal/solver"
	"github.com/banshee-data/markercal/internal/vision/cvio"
)

func handleCalibrate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("calibrate", flag.ExitOnError)
	var o options
	o.registerCommon(fs)
	o.registerCamera(fs)
	o.registerBoard(fs)
	cfg, err := parseConfig(fs, &o, args)
	if err != nil {
		return err
	}

	layout, err := cfg.Layout()
	if err != nil {
		return err
	}
	detector, err := cvio.NewDetector(layout.Dictionary(), cfg.Detector)
	if err != nil {
		return err
	}
	defer detector.Close()

	store := calib.NewStore(layout)
	session, err := capture.NewSession(capture.SessionConfig{
		Devices:    cvio.Devices{Device: cfg.Camera.Device, Window: cfg.Camera.Window},
		Detector:   detector,
		Store:      store,
		Sink:       capture.NewDirSink(cfg.Calibration.FramesDir, nil, cvio.EncodePNG),
		CaptureKey: cfg.Keys.Capture,
		EndKey:     cfg.Keys.End,
	})
	if err != nil {
		return err
	}
	monitoring.Logf("board %s; press 'c' to capture, ESC to calibrate", layout)

	outcome, err := session.Run(ctx)
	if err != nil {
		return err
	}
	if outcome.State == capture.Cancelled {
		return fmt.Errorf("capture session %s: %w", outcome.ID, errCancelled)
	}

	calibrator, _ := newSolvers(cfg)
	orch := calib.NewOrchestrator(calib.OrchestratorConfig{
		Calibrator: calibrator,
		Projector:  solver.Projector{},
	})
	result, err := orch.RunCalibration(ctx, outcome.Views, outcome.ImageSize)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("calibration: %w", errCancelled)
		}
		return err
	}
	if err := orch.Persist(result, cfg.Calibration.Path); err != nil {
		return err
	}
	printCalibration(os.Stdout, cfg.Calibration.Path, result)

	recordHistory(ctx, cfg, result, outcome)
	writeReports(cfg, result, outcome)
	return nil
}

// recordHistory stores the run when a history database is configured.
// Failures are logged; the calibration file is already written.
func recordHistory(ctx context.Context, cfg *config.Config, result calib.Result, outcome capture.Outcome) {
	if cfg.Calibration.HistoryDB == "" {
		return
	}
	db, err := calibdb.Open(cfg.Calibration.HistoryDB)
	if err != nil {
		monitoring.Logf("calibration history unavailable: %v", err)
		return
	}
	defer db.Close()

	layout, err := cfg.Layout()
	if err != nil {
		monitoring.Logf("calibration history: %v", err)
		return
	}
	id, err := db.RecordRun(ctx, calibdb.NewRun(result, layout, outcome.ID, cfg.Calibration.Path))
	if err != nil {
		monitoring.Logf("calibration history: %v", err)
		return
	}
	monitoring.Logf("recorded calibration run %s in %s", id, cfg.Calibration.HistoryDB)
}

// writeReports renders the diagnostics when a report directory is configured.
func writeReports(cfg *config.Config, result calib.Result, outcome capture.Outcome) {
	if cfg.Calibration.ReportDir == "" {
		return
	}
	stem := "calibration_" + result.CalibratedAt.Format("20060102T150405Z")
	paths, err := report.NewWriter(cfg.Calibration.ReportDir, nil).Write(result, stem)
	if err != nil {
		monitoring.Logf("calibration report for session %s: %v", outcome.ID, err)
		return
	}
	monitoring.Logf("wrote %s and %s", paths.Residuals, paths.Views)
}

func printCalibration(w io.Writer, path string, result calib.Result) {
	m := result.Camera.Matrix()
	fmt.Fprintf(w, "Calibration: %s\n", path)
	fmt.Fprintf(w, "  views:            %d\n", result.ViewCount)
	fmt.Fprintf(w, "  image size:       %dx%d\n", result.ImageSize.X, result.ImageSize.Y)
	fmt.Fprintf(w, "  reprojection RMS: %.6f px\n", result.RepError)
	fmt.Fprintf(w, "  camera matrix:\n")
	for r := 0; r < 3; r++ {
		fmt.Fprintf(w, "    [%12.6f %12.6f %12.6f]\n", m[3*r], m[3*r+1], m[3*r+2])
	}
	fmt.Fprintf(w, "  distortion:       %v\n", result.Camera.Distortion)
	if !result.CalibratedAt.IsZero() {
		fmt.Fprintf(w, "  calibrated at:    %s\n", result.CalibratedAt.Format("2006-01-02 15:04:05 MST"))
	}
	for i, e := range result.PerViewErrors {
		fmt.Fprintf(w, "  view %-3d RMS:     %.6f px\n", i+1, e)
	}
}
