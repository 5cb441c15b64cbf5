package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/banshee-data/markercal/internal/calib"
)

func handleInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	var o options
	o.registerCommon(fs)
	asJSON := fs.Bool("json", false, "Print as JSON")
	cfg, err := parseConfig(fs, &o, args)
	if err != nil {
		return err
	}

	result, err := calib.NewOrchestrator(calib.OrchestratorConfig{}).Load(cfg.Calibration.Path)
	if err != nil {
		return err
	}
	if *asJSON {
		return printCalibrationJSON(os.Stdout, result)
	}
	printCalibration(os.Stdout, cfg.Calibration.Path, result)
	return nil
}

func printCalibrationJSON(w io.Writer, result calib.Result) error {
	out := struct {
		CameraMatrix [9]float64 `json:"cameraMatrix"`
		DistCoeffs   []float64  `json:"distCoeffs"`
		RepError     float64    `json:"repError"`
		ImageWidth   int        `json:"imageWidth"`
		ImageHeight  int        `json:"imageHeight"`
		ViewCount    int        `json:"viewCount"`
		CalibratedAt string     `json:"calibratedAt,omitempty"`
	}{
		CameraMatrix: result.Camera.Matrix(),
		DistCoeffs:   result.Camera.Distortion,
		RepError:     result.RepError,
		ImageWidth:   result.ImageSize.X,
		ImageHeight:  result.ImageSize.Y,
		ViewCount:    result.ViewCount,
	}
	if !result.CalibratedAt.IsZero() {
		out.CalibratedAt = result.CalibratedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode calibration: %w", err)
	}
	return nil
}
