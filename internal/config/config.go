// Package config loads markercal settings from defaults, an optional JSON or
// YAML file and MARKERCAL_* environment variables, in increasing priority.
// Command-line flags are applied on top by the caller.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/banshee-data/markercal/internal/board"
	"github.com/banshee-data/markercal/internal/monitoring"
	"github.com/banshee-data/markercal/internal/vision"
)

// EnvPrefix is prepended to upper-cased keys, with dots as underscores:
// board.rows is read from MARKERCAL_BOARD_ROWS.
const EnvPrefix = "MARKERCAL"

// Default key codes for the interactive capture loop.
const (
	DefaultCaptureKey = 99 // 'c'
	DefaultEndKey     = 27 // ESC
)

// Solver names accepted by the solver key.
const (
	SolverOpenCV = "opencv"
	SolverGonum  = "gonum"
)

// Config is the full runtime configuration.
type Config struct {
	Dictionary string `mapstructure:"dictionary"`
	// Solver selects the calibration and pose solvers: opencv or gonum.
	Solver      string            `mapstructure:"solver"`
	Board       BoardConfig       `mapstructure:"board"`
	Camera      CameraConfig      `mapstructure:"camera"`
	Calibration CalibrationConfig `mapstructure:"calibration"`
	Pose        PoseConfig        `mapstructure:"pose"`
	Keys        KeysConfig        `mapstructure:"keys"`
	Detector    DetectorConfig    `mapstructure:"detector"`
	LogLevel    string            `mapstructure:"logLevel"`
}

// BoardConfig describes the printed calibration grid.
type BoardConfig struct {
	Rows         int     `mapstructure:"rows"`
	Columns      int     `mapstructure:"columns"`
	MarkerLength float64 `mapstructure:"markerLength"`
	Separation   float64 `mapstructure:"separation"`
}

// CameraConfig selects the capture device and display window.
type CameraConfig struct {
	Device int    `mapstructure:"device"`
	Window string `mapstructure:"window"`
}

// CalibrationConfig controls where calibration output goes.
type CalibrationConfig struct {
	// Path is the calibration record, .yml/.yaml or .json.
	Path string `mapstructure:"path"`
	// FramesDir receives image<N>.png audit copies of accepted frames.
	FramesDir string `mapstructure:"framesDir"`
	// HistoryDB is the sqlite file recording every run; empty disables it.
	HistoryDB string `mapstructure:"historyDB"`
	// ReportDir receives the residual plot and per-view chart; empty disables it.
	ReportDir string `mapstructure:"reportDir"`
	// DistortionCoefficients is 4, 5 or 8.
	DistortionCoefficients int `mapstructure:"distortionCoefficients"`
}

// PoseConfig selects the tracked marker for the overlay demos.
type PoseConfig struct {
	TargetID     int     `mapstructure:"targetID"`
	MarkerLength float64 `mapstructure:"markerLength"`
}

// KeysConfig binds the two capture commands to key codes.
type KeysConfig struct {
	Capture int `mapstructure:"capture"`
	End     int `mapstructure:"end"`
}

// DetectorConfig tunes the marker detector.
type DetectorConfig struct {
	AdaptiveThreshWinSizeMin  int     `mapstructure:"adaptiveThreshWinSizeMin"`
	AdaptiveThreshWinSizeMax  int     `mapstructure:"adaptiveThreshWinSizeMax"`
	AdaptiveThreshWinSizeStep int     `mapstructure:"adaptiveThreshWinSizeStep"`
	MinMarkerPerimeterRate    float64 `mapstructure:"minMarkerPerimeterRate"`
	MaxMarkerPerimeterRate    float64 `mapstructure:"maxMarkerPerimeterRate"`
	// CornerRefinement is one of none, subpix, contour or apriltag.
	CornerRefinement string `mapstructure:"cornerRefinement"`
}

// CornerRefinementMethods lists the accepted detector.cornerRefinement values
// in detector enumeration order.
var CornerRefinementMethods = []string{"none", "subpix", "contour", "apriltag"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dictionary", board.Dict6X6_250.String())
	v.SetDefault("solver", SolverOpenCV)
	v.SetDefault("board.rows", 5)
	v.SetDefault("board.columns", 7)
	v.SetDefault("board.markerLength", 0.04)
	v.SetDefault("board.separation", 0.01)

	v.SetDefault("camera.device", 0)
	v.SetDefault("camera.window", "markercal")

	v.SetDefault("calibration.path", "camera.yml")
	v.SetDefault("calibration.framesDir", ".")
	v.SetDefault("calibration.historyDB", "")
	v.SetDefault("calibration.reportDir", "")
	v.SetDefault("calibration.distortionCoefficients", 5)

	v.SetDefault("pose.targetID", 0)
	v.SetDefault("pose.markerLength", 0.05)

	v.SetDefault("keys.capture", DefaultCaptureKey)
	v.SetDefault("keys.end", DefaultEndKey)

	v.SetDefault("detector.adaptiveThreshWinSizeMin", 3)
	v.SetDefault("detector.adaptiveThreshWinSizeMax", 23)
	v.SetDefault("detector.adaptiveThreshWinSizeStep", 10)
	v.SetDefault("detector.minMarkerPerimeterRate", 0.03)
	v.SetDefault("detector.maxMarkerPerimeterRate", 4.0)
	v.SetDefault("detector.cornerRefinement", "none")

	v.SetDefault("logLevel", "info")
}

// Default returns the built-in configuration, ignoring files and environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		panic(fmt.Sprintf("config defaults do not decode: %v", err))
	}
	return cfg
}

// Load reads defaults, then path (if non-empty), then the environment, and
// validates the result.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Read is Load without validation, for callers that apply further overrides
// (command-line flags) before calling Validate.
func Read(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
		switch ext {
		case "json", "yaml", "yml":
		default:
			return nil, fmt.Errorf("%w: config file must be .json, .yaml or .yml, got %q", vision.ErrConfiguration, filepath.Ext(path))
		}
		v.SetConfigFile(path)
		v.SetConfigType(ext)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: failed to read config file: %v", vision.ErrResource, err)
		}
		monitoring.Logf("loaded config from %s", v.ConfigFileUsed())
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", vision.ErrConfiguration, err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid. Errors wrap
// vision.ErrConfiguration.
func (c *Config) Validate() error {
	if _, err := board.LookupDictionary(c.Dictionary); err != nil {
		return err
	}
	switch c.Solver {
	case SolverOpenCV, SolverGonum:
	default:
		return fmt.Errorf("%w: solver must be %s or %s, got %q", vision.ErrConfiguration, SolverOpenCV, SolverGonum, c.Solver)
	}
	if c.Board.Rows <= 0 || c.Board.Columns <= 0 {
		return fmt.Errorf("%w: board rows and columns must be positive, got %dx%d", vision.ErrConfiguration, c.Board.Rows, c.Board.Columns)
	}
	if c.Board.MarkerLength <= 0 {
		return fmt.Errorf("%w: board.markerLength must be positive, got %g", vision.ErrConfiguration, c.Board.MarkerLength)
	}
	if c.Board.Separation < 0 {
		return fmt.Errorf("%w: board.separation must be non-negative, got %g", vision.ErrConfiguration, c.Board.Separation)
	}
	if c.Camera.Device < 0 {
		return fmt.Errorf("%w: camera.device must be non-negative, got %d", vision.ErrConfiguration, c.Camera.Device)
	}
	if c.Calibration.Path == "" {
		return fmt.Errorf("%w: calibration.path must be set", vision.ErrConfiguration)
	}
	switch strings.ToLower(filepath.Ext(c.Calibration.Path)) {
	case ".yml", ".yaml", ".json":
	default:
		return fmt.Errorf("%w: calibration.path must end in .yml, .yaml or .json, got %q", vision.ErrConfiguration, c.Calibration.Path)
	}
	switch c.Calibration.DistortionCoefficients {
	case 4, 5, 8:
	default:
		return fmt.Errorf("%w: calibration.distortionCoefficients must be 4, 5 or 8, got %d", vision.ErrConfiguration, c.Calibration.DistortionCoefficients)
	}
	if c.Pose.TargetID < 0 {
		return fmt.Errorf("%w: pose.targetID must be non-negative, got %d", vision.ErrConfiguration, c.Pose.TargetID)
	}
	if c.Pose.MarkerLength <= 0 {
		return fmt.Errorf("%w: pose.markerLength must be positive, got %g", vision.ErrConfiguration, c.Pose.MarkerLength)
	}
	if c.Keys.Capture == c.Keys.End {
		return fmt.Errorf("%w: keys.capture and keys.end must differ, both are %d", vision.ErrConfiguration, c.Keys.Capture)
	}
	if err := c.Detector.Validate(); err != nil {
		return err
	}
	if _, ok := monitoring.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("%w: unknown logLevel %q", vision.ErrConfiguration, c.LogLevel)
	}
	return nil
}

// Validate checks the detector window and perimeter ranges.
func (d DetectorConfig) Validate() error {
	if d.AdaptiveThreshWinSizeMin < 3 || d.AdaptiveThreshWinSizeMax < d.AdaptiveThreshWinSizeMin {
		return fmt.Errorf("%w: detector adaptive threshold window must satisfy 3 <= min <= max, got %d..%d",
			vision.ErrConfiguration, d.AdaptiveThreshWinSizeMin, d.AdaptiveThreshWinSizeMax)
	}
	if d.AdaptiveThreshWinSizeStep <= 0 {
		return fmt.Errorf("%w: detector.adaptiveThreshWinSizeStep must be positive, got %d", vision.ErrConfiguration, d.AdaptiveThreshWinSizeStep)
	}
	if d.MinMarkerPerimeterRate <= 0 || d.MaxMarkerPerimeterRate <= d.MinMarkerPerimeterRate {
		return fmt.Errorf("%w: detector perimeter rates must satisfy 0 < min < max, got %g..%g",
			vision.ErrConfiguration, d.MinMarkerPerimeterRate, d.MaxMarkerPerimeterRate)
	}
	if d.CornerRefinementIndex() < 0 {
		return fmt.Errorf("%w: detector.cornerRefinement must be one of %v, got %q", vision.ErrConfiguration, CornerRefinementMethods, d.CornerRefinement)
	}
	return nil
}

// CornerRefinementIndex returns the position of CornerRefinement in
// CornerRefinementMethods, or -1.
func (d DetectorConfig) CornerRefinementIndex() int {
	for i, m := range CornerRefinementMethods {
		if strings.EqualFold(m, d.CornerRefinement) {
			return i
		}
	}
	return -1
}

// Layout builds the board layout described by the configuration.
func (c *Config) Layout() (*board.Layout, error) {
	dict, err := board.LookupDictionary(c.Dictionary)
	if err != nil {
		return nil, err
	}
	return board.NewLayout(dict, c.Board.Rows, c.Board.Columns, c.Board.MarkerLength, c.Board.Separation)
}
