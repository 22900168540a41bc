package deposition

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

const testSchema = `
CREATE TABLE collection_groups (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    group_uid TEXT NOT NULL UNIQUE,
    visit TEXT NOT NULL,
    sample_id INTEGER NOT NULL,
    detector_id INTEGER NOT NULL,
    experiment_type TEXT NOT NULL,
    comment TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);

CREATE TABLE collection_records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    record_uid TEXT NOT NULL UNIQUE,
    group_uid TEXT NOT NULL REFERENCES collection_groups(group_uid),
    run_number INTEGER NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending'
        CHECK (status IN ('pending', 'running', 'succeeded', 'failed')),
    status_reason TEXT NOT NULL DEFAULT '',
    omega_start REAL NOT NULL,
    num_images INTEGER NOT NULL,
    exposure_time_s REAL NOT NULL,
    file_template TEXT NOT NULL DEFAULT '',
    directory TEXT NOT NULL DEFAULT '',
    undulator_gap_mm REAL,
    synchrotron_mode TEXT,
    slit_gap_h_mm REAL,
    slit_gap_v_mm REAL,
    transmission_fraction REAL,
    flux_photons REAL,
    started_at TEXT,
    ended_at TEXT,
    created_at TEXT NOT NULL
);
`

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening in-memory database: %v", err)
	}
	// A second pool connection would open a fresh empty memory database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec(testSchema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}
	return NewStore(NewSQLiteRepository(db), nil)
}

func createTestGroup(t *testing.T, store *Store) *CollectionGroup {
	t.Helper()
	group, err := store.CreateGroup(context.Background(), GroupParams{
		Visit:          "cm12345-1",
		SampleID:       12345,
		DetectorID:     78,
		ExperimentType: "mesh3d",
	})
	if err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}
	return group
}

func TestPlanSweeps_TwoDimensional(t *testing.T) {
	store := openTestStore(t)
	group := createTestGroup(t, store)

	records, err := store.PlanSweeps(context.Background(), group.GroupUID,
		SweepParams{OmegaStart: 0, NumImages: 400, ExposureTimeS: 0.004}, false)
	if err != nil {
		t.Fatalf("PlanSweeps() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("2D scan planned %d sweeps, want 1", len(records))
	}
	if records[0].RunNumber != 1 {
		t.Errorf("RunNumber = %d, want 1", records[0].RunNumber)
	}
	if records[0].Status != StatusPending {
		t.Errorf("Status = %s, want pending", records[0].Status)
	}
}

func TestPlanSweeps_ThreeDimensional(t *testing.T) {
	store := openTestStore(t)
	group := createTestGroup(t, store)

	records, err := store.PlanSweeps(context.Background(), group.GroupUID,
		SweepParams{OmegaStart: 0, NumImages: 400, ExposureTimeS: 0.004}, true)
	if err != nil {
		t.Fatalf("PlanSweeps() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("3D scan planned %d sweeps, want 2", len(records))
	}
	if records[1].RunNumber != 2 {
		t.Errorf("second sweep RunNumber = %d, want 2", records[1].RunNumber)
	}
	if records[1].OmegaStart != 90 {
		t.Errorf("second sweep OmegaStart = %v, want 90", records[1].OmegaStart)
	}
	if records[0].RecordUID == records[1].RecordUID {
		t.Error("sweeps share a record uid")
	}
}

func TestStore_Lifecycle(t *testing.T) {
	store := openTestStore(t)
	group := createTestGroup(t, store)
	ctx := context.Background()

	if _, err := store.PlanSweeps(ctx, group.GroupUID,
		SweepParams{OmegaStart: 0, NumImages: 400, ExposureTimeS: 0.004}, true); err != nil {
		t.Fatalf("PlanSweeps() error = %v", err)
	}

	if err := store.MarkRunning(ctx, group.GroupUID); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}
	records, err := store.Records(ctx, group.GroupUID)
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	for _, rec := range records {
		if rec.Status != StatusRunning {
			t.Errorf("record %s status = %s, want running", rec.RecordUID, rec.Status)
		}
		if rec.StartedAt == nil {
			t.Errorf("record %s has no started_at after MarkRunning", rec.RecordUID)
		}
	}

	if err := store.End(ctx, group.GroupUID, StatusSucceeded, ""); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	records, err = store.Records(ctx, group.GroupUID)
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	for _, rec := range records {
		if rec.Status != StatusSucceeded {
			t.Errorf("record %s status = %s, want succeeded", rec.RecordUID, rec.Status)
		}
		if rec.EndedAt == nil {
			t.Errorf("record %s has no ended_at after End", rec.RecordUID)
		}
	}
}

func TestEnd_RejectsNonTerminalStatus(t *testing.T) {
	store := openTestStore(t)
	group := createTestGroup(t, store)

	if err := store.End(context.Background(), group.GroupUID, StatusRunning, ""); err == nil {
		t.Error("End() accepted a non-terminal status")
	}
}

func TestAppendComment(t *testing.T) {
	store := openTestStore(t)
	group := createTestGroup(t, store)
	ctx := context.Background()

	if err := store.AppendComment(ctx, group.GroupUID, "Crystal: strength 120."); err != nil {
		t.Fatalf("AppendComment() error = %v", err)
	}
	if err := store.AppendComment(ctx, group.GroupUID, "Crystal: strength 80."); err != nil {
		t.Fatalf("AppendComment() error = %v", err)
	}

	got, err := store.Group(ctx, group.GroupUID)
	if err != nil {
		t.Fatalf("Group() error = %v", err)
	}
	want := "Crystal: strength 120. Crystal: strength 80."
	if got.Comment != want {
		t.Errorf("Comment = %q, want %q", got.Comment, want)
	}
}

func TestStore_UnknownGroup(t *testing.T) {
	store := openTestStore(t)

	if err := store.MarkRunning(context.Background(), "grp-missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkRunning() error = %v, want ErrNotFound", err)
	}
	if _, err := store.Group(context.Background(), "grp-missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Group() error = %v, want ErrNotFound", err)
	}
}

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusRunning, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusSucceeded, false},
		{StatusRunning, StatusSucceeded, true},
		{StatusRunning, StatusFailed, true},
		{StatusSucceeded, StatusRunning, false},
		{StatusFailed, StatusRunning, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}
