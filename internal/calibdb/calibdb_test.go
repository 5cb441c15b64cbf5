package calibdb

import (
	"context"
	"image"
	"io/fs"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/markercal/internal/calib"
	"github.com/banshee-data/markercal/internal/monitoring"
	"github.com/banshee-data/markercal/internal/testutil"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	monitoring.SetLogger(nil)
	db, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleRun(t *testing.T, at time.Time) Run {
	t.Helper()
	result := calib.Result{
		Camera:        testutil.SyntheticCamera(),
		RepError:      0.21,
		PerViewErrors: []float64{0.2, math.NaN(), 0.25},
		ImageSize:     image.Pt(testutil.ImageWidth, testutil.ImageHeight),
		ViewCount:     3,
		CalibratedAt:  at,
	}
	return NewRun(result, testutil.StandardLayout(t), uuid.New(), "camera.yml")
}

func TestEmbeddedMigrations(t *testing.T) {
	migFS, err := getMigrationsFS()
	require.NoError(t, err)
	entries, err := fs.ReadDir(migFS, ".")
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestOpen_MigratesAndSetsPragmas(t *testing.T) {
	db := openTestDB(t)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var foreignKeys int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	assert.Equal(t, 1, foreignKeys)

	// Reapplying is a no-op.
	require.NoError(t, db.MigrateUp())
}

func TestRecordAndGetRun(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	run := sampleRun(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	id, err := db.RecordRun(ctx, run)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	got, err := db.GetRun(ctx, id)
	require.NoError(t, err)

	run.ID = id
	opts := cmp.Options{cmpopts.EquateNaNs(), cmpopts.EquateApprox(0, 1e-12)}
	if diff := cmp.Diff(run, got, opts); diff != "" {
		t.Errorf("GetRun mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "DICT_6X6_250", got.Dictionary)
	assert.True(t, math.IsNaN(got.ViewErrors[1]))
}

func TestListRuns_NewestFirst(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		id, err := db.RecordRun(ctx, sampleRun(t, base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	runs, err := db.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[0], runs[2].ID)
	assert.Empty(t, runs[0].ViewErrors)

	runs, err = db.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestRecordRun_KeepsGivenID(t *testing.T) {
	db := openTestDB(t)
	run := sampleRun(t, time.Now())
	run.ID = uuid.New()
	run.SessionID = uuid.Nil

	id, err := db.RecordRun(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, run.ID, id)

	got, err := db.GetRun(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, got.SessionID)

	_, err = db.RecordRun(context.Background(), run)
	assert.Error(t, err, "duplicate run id")
}

func TestDeleteRun_Cascades(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	id, err := db.RecordRun(ctx, sampleRun(t, time.Now()))
	require.NoError(t, err)

	require.NoError(t, db.DeleteRun(ctx, id))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM calibration_view_errors`).Scan(&n))
	assert.Equal(t, 0, n)

	_, err = db.GetRun(ctx, id)
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, db.DeleteRun(ctx, id), ErrRunNotFound)
}
