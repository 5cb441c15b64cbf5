package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"

	"github.com/banshee-data/markercal/internal/calibdb"
	"github.com/banshee-data/markercal/internal/vision"
)

// historyQuery selects what the history command does against the store.
type historyQuery struct {
	limit  int
	run    string
	delete string
}

func handleHistory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	var o options
	o.registerCommon(fs)
	fs.StringVar(&o.historyDB, "history-db", "", "SQLite calibration history")
	var q historyQuery
	fs.IntVar(&q.limit, "limit", 20, "Maximum runs to list (0 for all)")
	fs.StringVar(&q.run, "run", "", "Show one run with its per-view errors")
	fs.StringVar(&q.delete, "delete", "", "Delete one run and its per-view errors")
	cfg, err := parseConfig(fs, &o, args)
	if err != nil {
		return err
	}
	if cfg.Calibration.HistoryDB == "" {
		return fmt.Errorf("%w: --history-db (or calibration.historyDB) is required", vision.ErrConfiguration)
	}

	db, err := calibdb.Open(cfg.Calibration.HistoryDB)
	if err != nil {
		return err
	}
	defer db.Close()

	return runHistory(ctx, os.Stdout, db, q)
}

func runHistory(ctx context.Context, w io.Writer, db *calibdb.DB, q historyQuery) error {
	if q.run != "" && q.delete != "" {
		return fmt.Errorf("%w: -run and -delete are mutually exclusive", vision.ErrConfiguration)
	}

	if q.delete != "" {
		id, err := parseRunID(q.delete)
		if err != nil {
			return err
		}
		if err := db.DeleteRun(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(w, "deleted run %s\n", id)
		return nil
	}

	if q.run != "" {
		id, err := parseRunID(q.run)
		if err != nil {
			return err
		}
		run, err := db.GetRun(ctx, id)
		if err != nil {
			return err
		}
		printRun(w, run)
		return nil
	}

	version, dirty, err := db.MigrateVersion()
	if err != nil {
		return err
	}
	runs, err := db.ListRuns(ctx, q.limit)
	if err != nil {
		return err
	}
	printSchema(w, version, dirty)
	printRuns(w, runs)
	return nil
}

func parseRunID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: run id %q: %v", vision.ErrConfiguration, s, err)
	}
	return id, nil
}

func printSchema(w io.Writer, version uint, dirty bool) {
	if dirty {
		fmt.Fprintf(w, "schema version %d (dirty)\n", version)
		return
	}
	fmt.Fprintf(w, "schema version %d\n", version)
}

func printRuns(w io.Writer, runs []calibdb.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no calibration runs recorded")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tCALIBRATED\tBOARD\tVIEWS\tRMS(px)\tFX\tFY\tOUTPUT")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s %dx%d\t%d\t%.4f\t%.1f\t%.1f\t%s\n",
			r.ID, r.CalibratedAt.Format("2006-01-02 15:04:05"), r.Dictionary, r.Rows, r.Columns,
			r.ViewCount, r.RepError, r.FX, r.FY, r.OutputPath)
	}
	tw.Flush()
}

func printRun(w io.Writer, r calibdb.Run) {
	fmt.Fprintf(w, "Run %s\n", r.ID)
	if r.SessionID != uuid.Nil {
		fmt.Fprintf(w, "  session:     %s\n", r.SessionID)
	}
	fmt.Fprintf(w, "  calibrated:  %s\n", r.CalibratedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(w, "  board:       %s %dx%d, marker %g, separation %g\n", r.Dictionary, r.Rows, r.Columns, r.MarkerLength, r.Separation)
	fmt.Fprintf(w, "  image:       %dx%d\n", r.ImageWidth, r.ImageHeight)
	fmt.Fprintf(w, "  intrinsics:  fx=%.4f fy=%.4f cx=%.4f cy=%.4f\n", r.FX, r.FY, r.CX, r.CY)
	fmt.Fprintf(w, "  distortion:  %v\n", r.Distortion)
	fmt.Fprintf(w, "  RMS:         %.6f px over %d views\n", r.RepError, r.ViewCount)
	for i, e := range r.ViewErrors {
		if math.IsNaN(e) {
			fmt.Fprintf(w, "  view %-3d     n/a\n", i+1)
			continue
		}
		fmt.Fprintf(w, "  view %-3d     %.6f px\n", i+1, e)
	}
}
