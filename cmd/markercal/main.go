package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/markercal/internal/monitoring"
	"github.com/banshee-data/markercal/internal/overlay"
	"github.com/banshee-data/markercal/internal/version"
	"github.com/banshee-data/markercal/internal/vision"
)

// exitCancelled is returned when the operator interrupts a run.
const exitCancelled = 130

// errCancelled marks a run stopped by SIGINT/SIGTERM.
var errCancelled = errors.New("cancelled")

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch command {
	case "calibrate":
		err = handleCalibrate(ctx, args)
	case "axes":
		err = handleOverlay(ctx, overlay.KindAxes, args)
	case "cube":
		err = handleOverlay(ctx, overlay.KindCube, args)
	case "inspect":
		err = handleInspect(args)
	case "history":
		err = handleHistory(ctx, args)
	case "version":
		fmt.Println(version.String())
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
	stop()
	os.Exit(exitCode(err))
}

// exitCode maps a command error to the process status and reports it.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errCancelled):
		monitoring.Logf("interrupted")
		return exitCancelled
	default:
		l := monitoring.Logger()
		l.Error().Err(err).Bool("fatal", vision.IsFatal(err)).Msg("markercal failed")
		return 1
	}
}

func printUsage() {
	fmt.Println(`markercal - ArUco grid camera calibration and pose overlays

Usage: markercal <command> [options]

Commands:
  calibrate  Capture views of a marker grid and calibrate the camera
  axes       Draw coordinate axes on a tracked marker
  cube       Draw a wireframe cube on a tracked marker
  inspect    Print a saved calibration
  history    List, show or delete past calibration runs
  version    Show markercal version
  help       Show this help message

Common Flags:
  --config <file>       Configuration file (.json, .yaml or .yml)
  --dictionary <name>   Marker dictionary, e.g. DICT_6X6_250
  --device <n>          Video capture device index
  --calibration <file>  Calibration record (.yml, .yaml or .json)
  --log-level <level>   debug, info, warn or error
  --solver <name>       Calibration and pose solver: opencv or gonum

Configuration is read from defaults, then --config, then MARKERCAL_*
environment variables (MARKERCAL_BOARD_ROWS=5), then flags.

Interactive keys:
  c    accept the current frame as a calibration view
  ESC  finish (calibrate runs on the accepted views)

Examples:
  # Calibrate against a 5x7 grid of 4 cm markers spaced 1 cm apart
  markercal calibrate --dictionary DICT_6X6_250 --rows 5 --columns 7 --marker-length 0.04 --separation 0.01

  # Axes on marker 3 (5 cm) using that calibration
  markercal axes --calibration camera.yml --target-id 3 --pose-marker-length 0.05

  # Show the last five calibrations
  markercal history --history-db calib.db --limit 5

  # Forget one run
  markercal history --history-db calib.db --delete <run-id>`)
}
