package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/markercal/internal/board"
	"github.com/banshee-data/markercal/internal/vision"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "DICT_6X6_250", cfg.Dictionary)
	assert.Equal(t, SolverOpenCV, cfg.Solver)
	assert.Equal(t, 5, cfg.Board.Rows)
	assert.Equal(t, 7, cfg.Board.Columns)
	assert.Equal(t, 0.04, cfg.Board.MarkerLength)
	assert.Equal(t, 0.01, cfg.Board.Separation)
	assert.Equal(t, "camera.yml", cfg.Calibration.Path)
	assert.Equal(t, 5, cfg.Calibration.DistortionCoefficients)
	assert.Equal(t, 99, cfg.Keys.Capture)
	assert.Equal(t, 27, cfg.Keys.End)
	assert.Equal(t, "none", cfg.Detector.CornerRefinement)
	require.NoError(t, cfg.Validate())

	layout, err := cfg.Layout()
	require.NoError(t, err)
	assert.Equal(t, board.Dict6X6_250, layout.Dictionary())
	assert.Equal(t, 35, layout.MarkerCount())
}

func TestLoad_JSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "markercal.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "dictionary": "DICT_4X4_50",
  "board": {"rows": 2, "columns": 3, "markerLength": 0.03},
  "calibration": {"path": "out/cam.json", "historyDB": "history.db"},
  "detector": {"cornerRefinement": "subpix"}
}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "DICT_4X4_50", cfg.Dictionary)
	assert.Equal(t, 2, cfg.Board.Rows)
	assert.Equal(t, 3, cfg.Board.Columns)
	assert.Equal(t, 0.03, cfg.Board.MarkerLength)
	assert.Equal(t, 0.01, cfg.Board.Separation, "unset keys keep defaults")
	assert.Equal(t, "out/cam.json", cfg.Calibration.Path)
	assert.Equal(t, "history.db", cfg.Calibration.HistoryDB)
	assert.Equal(t, 1, cfg.Detector.CornerRefinementIndex())
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "markercal.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pose:\n  targetID: 7\n  markerLength: 0.08\nlogLevel: debug\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Pose.TargetID)
	assert.Equal(t, 0.08, cfg.Pose.MarkerLength)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "markercal.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"board": {"rows": 2}}`), 0o644))
	t.Setenv("MARKERCAL_BOARD_ROWS", "4")
	t.Setenv("MARKERCAL_DICTIONARY", "DICT_5X5_100")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Board.Rows)
	assert.Equal(t, "DICT_5X5_100", cfg.Dictionary)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, vision.ErrResource)

	_, err = Load("settings.toml")
	assert.ErrorIs(t, err, vision.ErrConfiguration)

	t.Setenv("MARKERCAL_DICTIONARY", "DICT_9X9_1")
	_, err = Load("")
	assert.ErrorIs(t, err, board.ErrUnknownDictionary)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown dictionary", func(c *Config) { c.Dictionary = "DICT_3X3_10" }},
		{"unknown solver", func(c *Config) { c.Solver = "ceres" }},
		{"zero rows", func(c *Config) { c.Board.Rows = 0 }},
		{"negative columns", func(c *Config) { c.Board.Columns = -2 }},
		{"zero marker length", func(c *Config) { c.Board.MarkerLength = 0 }},
		{"negative separation", func(c *Config) { c.Board.Separation = -0.01 }},
		{"negative device", func(c *Config) { c.Camera.Device = -1 }},
		{"empty calibration path", func(c *Config) { c.Calibration.Path = "" }},
		{"unsupported record format", func(c *Config) { c.Calibration.Path = "camera.xml" }},
		{"distortion model", func(c *Config) { c.Calibration.DistortionCoefficients = 14 }},
		{"negative target", func(c *Config) { c.Pose.TargetID = -1 }},
		{"zero pose length", func(c *Config) { c.Pose.MarkerLength = 0 }},
		{"same keys", func(c *Config) { c.Keys.End = c.Keys.Capture }},
		{"detector window", func(c *Config) { c.Detector.AdaptiveThreshWinSizeMax = 2 }},
		{"detector step", func(c *Config) { c.Detector.AdaptiveThreshWinSizeStep = 0 }},
		{"detector perimeter", func(c *Config) { c.Detector.MaxMarkerPerimeterRate = 0.01 }},
		{"corner refinement", func(c *Config) { c.Detector.CornerRefinement = "magic" }},
		{"log level", func(c *Config) { c.LogLevel = "chatty" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), vision.ErrConfiguration)
		})
	}
}

func TestLayout_ExceedsDictionary(t *testing.T) {
	cfg := Default()
	cfg.Dictionary = "DICT_4X4_50"
	cfg.Board.Rows, cfg.Board.Columns = 8, 8

	_, err := cfg.Layout()
	assert.ErrorIs(t, err, vision.ErrConfiguration)
}

func TestRead_DefersValidation(t *testing.T) {
	t.Setenv("MARKERCAL_DICTIONARY", "DICT_9X9_1")

	cfg, err := Read("")
	require.NoError(t, err)
	assert.Equal(t, "DICT_9X9_1", cfg.Dictionary)
	assert.ErrorIs(t, cfg.Validate(), board.ErrUnknownDictionary)

	cfg.Dictionary = "DICT_4X4_100"
	assert.NoError(t, cfg.Validate())
}
