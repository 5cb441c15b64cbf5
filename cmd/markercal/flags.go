package main

import (
	"flag"
	"fmt"

	"github.com/banshee-data/markercal/internal/config"
	"github.com/banshee-data/markercal/internal/monitoring"
)

// options holds every flag a subcommand may register. Only flags the user
// actually set override the loaded configuration.
type options struct {
	configPath   string
	dictionary   string
	solver       string
	logLevel     string
	device       int
	calibration  string
	rows         int
	columns      int
	markerLength float64
	separation   float64
	framesDir    string
	historyDB    string
	reportDir    string
	distCoeffs   int
	targetID     int
	poseLength   float64
}

func (o *options) registerCommon(fs *flag.FlagSet) {
	fs.StringVar(&o.configPath, "config", "", "Configuration file (.json, .yaml or .yml)")
	fs.StringVar(&o.dictionary, "dictionary", "", "Marker dictionary (e.g. DICT_6X6_250)")
	fs.StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	fs.StringVar(&o.calibration, "calibration", "", "Calibration record path (.yml, .yaml or .json)")
}

func (o *options) registerCamera(fs *flag.FlagSet) {
	fs.IntVar(&o.device, "device", 0, "Video capture device index")
	fs.StringVar(&o.solver, "solver", "", "Calibration and pose solver: opencv or gonum")
}

func (o *options) registerBoard(fs *flag.FlagSet) {
	fs.IntVar(&o.rows, "rows", 0, "Markers per board column (grid rows)")
	fs.IntVar(&o.columns, "columns", 0, "Markers per board row (grid columns)")
	fs.Float64Var(&o.markerLength, "marker-length", 0, "Marker side length (metres)")
	fs.Float64Var(&o.separation, "separation", 0, "Gap between markers (metres)")
	fs.StringVar(&o.framesDir, "frames-dir", "", "Directory for image<N>.png copies of accepted frames")
	fs.StringVar(&o.historyDB, "history-db", "", "SQLite calibration history (empty disables)")
	fs.StringVar(&o.reportDir, "report-dir", "", "Directory for residual plot and per-view chart (empty disables)")
	fs.IntVar(&o.distCoeffs, "dist-coeffs", 0, "Distortion coefficients to estimate: 4, 5 or 8")
}

func (o *options) registerPose(fs *flag.FlagSet) {
	fs.IntVar(&o.targetID, "target-id", 0, "Marker id to track")
	fs.Float64Var(&o.poseLength, "pose-marker-length", 0, "Tracked marker side length (metres)")
}

// apply copies every flag set on fs into cfg.
func (o *options) apply(fs *flag.FlagSet, cfg *config.Config) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "dictionary":
			cfg.Dictionary = o.dictionary
		case "solver":
			cfg.Solver = o.solver
		case "log-level":
			cfg.LogLevel = o.logLevel
		case "device":
			cfg.Camera.Device = o.device
		case "calibration":
			cfg.Calibration.Path = o.calibration
		case "rows":
			cfg.Board.Rows = o.rows
		case "columns":
			cfg.Board.Columns = o.columns
		case "marker-length":
			cfg.Board.MarkerLength = o.markerLength
		case "separation":
			cfg.Board.Separation = o.separation
		case "frames-dir":
			cfg.Calibration.FramesDir = o.framesDir
		case "history-db":
			cfg.Calibration.HistoryDB = o.historyDB
		case "report-dir":
			cfg.Calibration.ReportDir = o.reportDir
		case "dist-coeffs":
			cfg.Calibration.DistortionCoefficients = o.distCoeffs
		case "target-id":
			cfg.Pose.TargetID = o.targetID
		case "pose-marker-length":
			cfg.Pose.MarkerLength = o.poseLength
		}
	})
}

// parseConfig parses args into fs, layers the flags over the file and
// environment configuration, validates, and applies the log level. An
// unknown dictionary fails here, before any device is opened.
func parseConfig(fs *flag.FlagSet, o *options, args []string) (*config.Config, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	cfg, err := config.Read(o.configPath)
	if err != nil {
		return nil, err
	}
	o.apply(fs, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	monitoring.SetLevel(cfg.LogLevel)
	return cfg, nil
}
