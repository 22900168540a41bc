package deposition

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a group or record does not exist.
var ErrNotFound = errors.New("deposition: not found")

// Repository defines the persistence operations for collection
// bookkeeping.
type Repository interface {
	InsertGroup(ctx context.Context, group *CollectionGroup) error
	InsertRecord(ctx context.Context, record *CollectionRecord) error
	GetGroup(ctx context.Context, groupUID string) (*CollectionGroup, error)
	ListRecords(ctx context.Context, groupUID string) ([]CollectionRecord, error)
	UpdateRecordsStatus(ctx context.Context, groupUID string, status Status, reason string) error
	UpdateRecordsBeamline(ctx context.Context, groupUID string, undulatorGapMM float64, mode string, slitHMM, slitVMM float64) error
	UpdateRecordsFlux(ctx context.Context, groupUID string, transmission, fluxPhotons float64) error
	AppendGroupComment(ctx context.Context, groupUID, text string) error
}

// SQLiteRepository persists collection bookkeeping in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new collection bookkeeping repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// InsertGroup inserts a new collection group. CreatedAt is generated
// if zero.
func (r *SQLiteRepository) InsertGroup(ctx context.Context, group *CollectionGroup) error {
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO collection_groups (group_uid, visit, sample_id, detector_id, experiment_type, comment, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		group.GroupUID, group.Visit, group.SampleID, group.DetectorID,
		group.ExperimentType, group.Comment,
		group.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting collection group: %w", err)
	}
	return nil
}

// InsertRecord inserts a new collection record in pending status.
func (r *SQLiteRepository) InsertRecord(ctx context.Context, record *CollectionRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if record.Status == "" {
		record.Status = StatusPending
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO collection_records (record_uid, group_uid, run_number, status, status_reason,
		   omega_start, num_images, exposure_time_s, file_template, directory, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.RecordUID, record.GroupUID, record.RunNumber,
		string(record.Status), record.StatusReason,
		record.OmegaStart, record.NumImages, record.ExposureTimeS,
		record.FileTemplate, record.Directory,
		record.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting collection record: %w", err)
	}
	return nil
}

// GetGroup returns a collection group by UID.
func (r *SQLiteRepository) GetGroup(ctx context.Context, groupUID string) (*CollectionGroup, error) {
	var group CollectionGroup
	var createdAt string

	err := r.db.QueryRowContext(ctx,
		`SELECT group_uid, visit, sample_id, detector_id, experiment_type, comment, created_at
		 FROM collection_groups WHERE group_uid = ?`, groupUID,
	).Scan(&group.GroupUID, &group.Visit, &group.SampleID, &group.DetectorID,
		&group.ExperimentType, &group.Comment, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: group %s", ErrNotFound, groupUID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying collection group: %w", err)
	}

	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing group timestamp %q: %w", createdAt, err)
	}
	group.CreatedAt = t

	return &group, nil
}

// ListRecords returns a group's records ordered by run number.
func (r *SQLiteRepository) ListRecords(ctx context.Context, groupUID string) ([]CollectionRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT record_uid, group_uid, run_number, status, status_reason,
		   omega_start, num_images, exposure_time_s, file_template, directory,
		   undulator_gap_mm, synchrotron_mode, slit_gap_h_mm, slit_gap_v_mm,
		   transmission_fraction, flux_photons, started_at, ended_at, created_at
		 FROM collection_records WHERE group_uid = ? ORDER BY run_number`, groupUID)
	if err != nil {
		return nil, fmt.Errorf("querying collection records: %w", err)
	}
	defer rows.Close()

	var records []CollectionRecord
	for rows.Next() {
		var rec CollectionRecord
		var status, createdAt string
		var mode, startedAt, endedAt sql.NullString
		var undulator, slitH, slitV, transmission, flux sql.NullFloat64

		if err := rows.Scan(&rec.RecordUID, &rec.GroupUID, &rec.RunNumber, &status, &rec.StatusReason,
			&rec.OmegaStart, &rec.NumImages, &rec.ExposureTimeS, &rec.FileTemplate, &rec.Directory,
			&undulator, &mode, &slitH, &slitV,
			&transmission, &flux, &startedAt, &endedAt, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning collection record: %w", err)
		}

		rec.Status = Status(status)
		rec.UndulatorGapMM = undulator.Float64
		rec.SynchrotronMode = mode.String
		rec.SlitGapHMM = slitH.Float64
		rec.SlitGapVMM = slitV.Float64
		rec.TransmissionFraction = transmission.Float64
		rec.FluxPhotons = flux.Float64

		if startedAt.Valid {
			t, err := time.Parse(time.RFC3339, startedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parsing record started_at %q: %w", startedAt.String, err)
			}
			rec.StartedAt = &t
		}
		if endedAt.Valid {
			t, err := time.Parse(time.RFC3339, endedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parsing record ended_at %q: %w", endedAt.String, err)
			}
			rec.EndedAt = &t
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing record timestamp %q: %w", createdAt, err)
		}
		rec.CreatedAt = t

		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating collection records: %w", err)
	}
	if records == nil {
		records = []CollectionRecord{}
	}
	return records, nil
}

// UpdateRecordsStatus moves every record in the group to the given
// status. The running transition stamps started_at; terminal
// transitions stamp ended_at.
func (r *SQLiteRepository) UpdateRecordsStatus(ctx context.Context, groupUID string, status Status, reason string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	var res sql.Result
	var err error
	switch {
	case status == StatusRunning:
		res, err = r.db.ExecContext(ctx,
			`UPDATE collection_records SET status = ?, status_reason = ?, started_at = ? WHERE group_uid = ?`,
			string(status), reason, now, groupUID)
	case status.Terminal():
		res, err = r.db.ExecContext(ctx,
			`UPDATE collection_records SET status = ?, status_reason = ?, ended_at = ? WHERE group_uid = ?`,
			string(status), reason, now, groupUID)
	default:
		res, err = r.db.ExecContext(ctx,
			`UPDATE collection_records SET status = ?, status_reason = ? WHERE group_uid = ?`,
			string(status), reason, groupUID)
	}
	if err != nil {
		return fmt.Errorf("updating record status: %w", err)
	}
	return requireRows(res, groupUID)
}

// UpdateRecordsBeamline folds the beamline-parameters readings into
// every record in the group.
func (r *SQLiteRepository) UpdateRecordsBeamline(ctx context.Context, groupUID string, undulatorGapMM float64, mode string, slitHMM, slitVMM float64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE collection_records
		 SET undulator_gap_mm = ?, synchrotron_mode = ?, slit_gap_h_mm = ?, slit_gap_v_mm = ?
		 WHERE group_uid = ?`,
		undulatorGapMM, mode, slitHMM, slitVMM, groupUID)
	if err != nil {
		return fmt.Errorf("updating beamline readings: %w", err)
	}
	return requireRows(res, groupUID)
}

// UpdateRecordsFlux folds the transmission-flux readings into every
// record in the group.
func (r *SQLiteRepository) UpdateRecordsFlux(ctx context.Context, groupUID string, transmission, fluxPhotons float64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE collection_records SET transmission_fraction = ?, flux_photons = ? WHERE group_uid = ?`,
		transmission, fluxPhotons, groupUID)
	if err != nil {
		return fmt.Errorf("updating flux readings: %w", err)
	}
	return requireRows(res, groupUID)
}

// AppendGroupComment appends text to the group's comment, separated by
// a single space when the comment is non-empty.
func (r *SQLiteRepository) AppendGroupComment(ctx context.Context, groupUID, text string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE collection_groups
		 SET comment = CASE WHEN comment = '' THEN ? ELSE comment || ' ' || ? END
		 WHERE group_uid = ?`,
		text, text, groupUID)
	if err != nil {
		return fmt.Errorf("appending group comment: %w", err)
	}
	return requireRows(res, groupUID)
}

// requireRows converts a zero-row update into ErrNotFound.
func requireRows(res sql.Result, groupUID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: group %s", ErrNotFound, groupUID)
	}
	return nil
}
