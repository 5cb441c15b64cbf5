// Package calibdb keeps a history of calibration runs in SQLite so operators
// can compare cameras and sessions over time.
package calibdb

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/markercal/internal/board"
	"github.com/banshee-data/markercal/internal/calib"
	"github.com/banshee-data/markercal/internal/monitoring"
	"github.com/banshee-data/markercal/internal/vision"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrRunNotFound is returned by GetRun for an unknown id.
var ErrRunNotFound = errors.New("calibdb: run not found")

// DB is the calibration history database.
type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the database at path, applies pragmas and
// runs pending migrations.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", vision.ErrResource, path, err)
	}
	// One connection keeps per-connection pragmas (foreign_keys) in force.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{sqlDB}
	if err := db.applyPragmas(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("%w: %v", vision.ErrResource, err)
	}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("%w: %v", vision.ErrResource, err)
	}
	return db, nil
}

func (db *DB) applyPragmas() error {
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	return nil
}

func getMigrationsFS() (fs.FS, error) {
	return fs.Sub(migrationsFS, "migrations")
}

// MigrateUp runs all pending migrations. It is a no-op at the latest version.
func (db *DB) MigrateUp() error {
	m, err := db.newMigrate()
	if err != nil {
		return err
	}
	// Closing m would close the shared connection.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the schema version and dirty flag, or 0 when no
// migration has been applied.
func (db *DB) MigrateVersion() (uint, bool, error) {
	m, err := db.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (db *DB) newMigrate() (*migrate.Migrate, error) {
	migFS, err := getMigrationsFS()
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	source, err := iofs.New(migFS, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

// migrateLogger implements migrate.Logger.
type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool { return false }

// Run is one stored calibration.
type Run struct {
	ID           uuid.UUID
	SessionID    uuid.UUID
	CalibratedAt time.Time
	Dictionary   string
	Rows         int
	Columns      int
	MarkerLength float64
	Separation   float64
	ImageWidth   int
	ImageHeight  int
	ViewCount    int
	RepError     float64
	FX, FY       float64
	CX, CY       float64
	Distortion   []float64
	OutputPath   string
	// ViewErrors is only filled by GetRun. NaN marks a view that failed to
	// project.
	ViewErrors []float64
}

// NewRun describes result for storage. The run id is left for RecordRun.
func NewRun(result calib.Result, layout *board.Layout, sessionID uuid.UUID, outputPath string) Run {
	return Run{
		SessionID:    sessionID,
		CalibratedAt: result.CalibratedAt,
		Dictionary:   layout.Dictionary().String(),
		Rows:         layout.Rows(),
		Columns:      layout.Columns(),
		MarkerLength: layout.MarkerLength(),
		Separation:   layout.Separation(),
		ImageWidth:   result.ImageSize.X,
		ImageHeight:  result.ImageSize.Y,
		ViewCount:    result.ViewCount,
		RepError:     result.RepError,
		FX:           result.Camera.FX,
		FY:           result.Camera.FY,
		CX:           result.Camera.CX,
		CY:           result.Camera.CY,
		Distortion:   append([]float64(nil), result.Camera.Distortion...),
		OutputPath:   outputPath,
		ViewErrors:   append([]float64(nil), result.PerViewErrors...),
	}
}

// RecordRun stores run and its per-view errors in one transaction. A nil
// run id is replaced with a fresh one, which is returned.
func (db *DB) RecordRun(ctx context.Context, run Run) (uuid.UUID, error) {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	dist, err := json.Marshal(run.Distortion)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: encode distortion: %v", vision.ErrIO, err)
	}
	var session sql.NullString
	if run.SessionID != uuid.Nil {
		session = sql.NullString{String: run.SessionID.String(), Valid: true}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: begin: %v", vision.ErrIO, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO calibration_runs (
			run_id, session_id, calibrated_at, dictionary,
			board_rows, board_columns, marker_length, separation,
			image_width, image_height, view_count, rep_error,
			fx, fy, cx, cy, dist_coeffs, output_path
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID.String(), session, run.CalibratedAt.UTC().Format(time.RFC3339Nano), run.Dictionary,
		run.Rows, run.Columns, run.MarkerLength, run.Separation,
		run.ImageWidth, run.ImageHeight, run.ViewCount, run.RepError,
		run.FX, run.FY, run.CX, run.CY, string(dist), run.OutputPath,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: failed to insert calibration run: %v", vision.ErrIO, err)
	}

	for i, rms := range run.ViewErrors {
		var v sql.NullFloat64
		if !math.IsNaN(rms) && !math.IsInf(rms, 0) {
			v = sql.NullFloat64{Float64: rms, Valid: true}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO calibration_view_errors (run_id, seq, rms) VALUES (?, ?, ?)`,
			run.ID.String(), i+1, v,
		); err != nil {
			return uuid.Nil, fmt.Errorf("%w: failed to insert view error %d: %v", vision.ErrIO, i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("%w: commit: %v", vision.ErrIO, err)
	}
	return run.ID, nil
}

const runColumns = `run_id, session_id, calibrated_at, dictionary,
	board_rows, board_columns, marker_length, separation,
	image_width, image_height, view_count, rep_error,
	fx, fy, cx, cy, dist_coeffs, output_path`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run              Run
		id, calibratedAt string
		session          sql.NullString
		dist             string
	)
	err := row.Scan(
		&id, &session, &calibratedAt, &run.Dictionary,
		&run.Rows, &run.Columns, &run.MarkerLength, &run.Separation,
		&run.ImageWidth, &run.ImageHeight, &run.ViewCount, &run.RepError,
		&run.FX, &run.FY, &run.CX, &run.CY, &dist, &run.OutputPath,
	)
	if err != nil {
		return Run{}, err
	}
	if run.ID, err = uuid.Parse(id); err != nil {
		return Run{}, fmt.Errorf("run id %q: %w", id, err)
	}
	if session.Valid {
		if run.SessionID, err = uuid.Parse(session.String); err != nil {
			return Run{}, fmt.Errorf("session id %q: %w", session.String, err)
		}
	}
	if run.CalibratedAt, err = time.Parse(time.RFC3339Nano, calibratedAt); err != nil {
		return Run{}, fmt.Errorf("calibrated_at %q: %w", calibratedAt, err)
	}
	if err := json.Unmarshal([]byte(dist), &run.Distortion); err != nil {
		return Run{}, fmt.Errorf("dist_coeffs: %w", err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first. A non-positive limit
// returns every run.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM calibration_runs ORDER BY calibrated_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list runs: %v", vision.ErrIO, err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", vision.ErrIO, err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", vision.ErrIO, err)
	}
	return runs, nil
}

// GetRun returns one run with its per-view errors.
func (db *DB) GetRun(ctx context.Context, id uuid.UUID) (Run, error) {
	row := db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM calibration_runs WHERE run_id = ?`, id.String())
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("%w: %v", vision.ErrIO, err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT rms FROM calibration_view_errors WHERE run_id = ? ORDER BY seq`, id.String())
	if err != nil {
		return Run{}, fmt.Errorf("%w: failed to read view errors: %v", vision.ErrIO, err)
	}
	defer rows.Close()
	for rows.Next() {
		var v sql.NullFloat64
		if err := rows.Scan(&v); err != nil {
			return Run{}, fmt.Errorf("%w: %v", vision.ErrIO, err)
		}
		if v.Valid {
			run.ViewErrors = append(run.ViewErrors, v.Float64)
		} else {
			run.ViewErrors = append(run.ViewErrors, math.NaN())
		}
	}
	if err := rows.Err(); err != nil {
		return Run{}, fmt.Errorf("%w: %v", vision.ErrIO, err)
	}
	return run, nil
}

// DeleteRun removes a run and, through the foreign key, its view errors.
func (db *DB) DeleteRun(ctx context.Context, id uuid.UUID) error {
	res, err := db.ExecContext(ctx, `DELETE FROM calibration_runs WHERE run_id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("%w: failed to delete run: %v", vision.ErrIO, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", vision.ErrIO, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}
