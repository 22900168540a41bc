package deposition

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// secondSweepOmegaOffset is added to the first sweep's omega start for
// the orthogonal sweep of a 3D scan.
const secondSweepOmegaOffset = 90.0

// Logger is the minimal logging interface this package needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}

// Store layers collection lifecycle semantics over a Repository.
type Store struct {
	repo   Repository
	logger Logger
}

// NewStore creates a Store.
func NewStore(repo Repository, logger Logger) *Store {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Store{repo: repo, logger: logger}
}

// CreateGroup opens a new collection group and returns it.
func (s *Store) CreateGroup(ctx context.Context, params GroupParams) (*CollectionGroup, error) {
	group := &CollectionGroup{
		GroupUID:       "grp-" + uuid.NewString()[:8],
		Visit:          params.Visit,
		SampleID:       params.SampleID,
		DetectorID:     params.DetectorID,
		ExperimentType: params.ExperimentType,
	}
	if err := s.repo.InsertGroup(ctx, group); err != nil {
		return nil, err
	}
	s.logger.Info("collection group created",
		"group_uid", group.GroupUID, "visit", group.Visit, "sample_id", group.SampleID)
	return group, nil
}

// PlanSweeps creates the group's pending records. A 2D scan deposits
// one sweep; a 3D scan adds an orthogonal second sweep with omega
// advanced by 90 degrees and the run number incremented.
//
// Returns:
//   - the created records in run order; their RecordUIDs are the
//     collection ids quoted to the analysis service
func (s *Store) PlanSweeps(ctx context.Context, groupUID string, base SweepParams, threeD bool) ([]CollectionRecord, error) {
	first := CollectionRecord{
		RecordUID:     "rec-" + uuid.NewString()[:8],
		GroupUID:      groupUID,
		RunNumber:     1,
		Status:        StatusPending,
		OmegaStart:    base.OmegaStart,
		NumImages:     base.NumImages,
		ExposureTimeS: base.ExposureTimeS,
		FileTemplate:  base.FileTemplate,
		Directory:     base.Directory,
	}
	records := []CollectionRecord{first}

	if threeD {
		second := first
		second.RecordUID = "rec-" + uuid.NewString()[:8]
		second.RunNumber = first.RunNumber + 1
		second.OmegaStart = first.OmegaStart + secondSweepOmegaOffset
		records = append(records, second)
	}

	for i := range records {
		if err := s.repo.InsertRecord(ctx, &records[i]); err != nil {
			return nil, err
		}
	}
	s.logger.Debug("sweeps planned", "group_uid", groupUID, "sweeps", len(records))
	return records, nil
}

// MarkRunning moves the group's records from pending to running. The
// caller gates this on the pre-collection readings having arrived.
func (s *Store) MarkRunning(ctx context.Context, groupUID string) error {
	return s.repo.UpdateRecordsStatus(ctx, groupUID, StatusRunning, "")
}

// End closes the group's records with a terminal status.
func (s *Store) End(ctx context.Context, groupUID string, status Status, reason string) error {
	if !status.Terminal() {
		return fmt.Errorf("deposition: %q is not a terminal status", status)
	}
	return s.repo.UpdateRecordsStatus(ctx, groupUID, status, reason)
}

// RecordBeamlineParameters folds the beamline-parameters readings into
// the group's records.
func (s *Store) RecordBeamlineParameters(ctx context.Context, groupUID string, undulatorGapMM float64, mode string, slitHMM, slitVMM float64) error {
	return s.repo.UpdateRecordsBeamline(ctx, groupUID, undulatorGapMM, mode, slitHMM, slitVMM)
}

// RecordFlux folds the transmission-flux readings into the group's
// records.
func (s *Store) RecordFlux(ctx context.Context, groupUID string, transmission, fluxPhotons float64) error {
	return s.repo.UpdateRecordsFlux(ctx, groupUID, transmission, fluxPhotons)
}

// AppendComment appends audit text to the group's comment.
func (s *Store) AppendComment(ctx context.Context, groupUID, text string) error {
	return s.repo.AppendGroupComment(ctx, groupUID, text)
}

// Group returns a collection group by UID.
func (s *Store) Group(ctx context.Context, groupUID string) (*CollectionGroup, error) {
	return s.repo.GetGroup(ctx, groupUID)
}

// Records returns a group's records in run order.
func (s *Store) Records(ctx context.Context, groupUID string) ([]CollectionRecord, error) {
	return s.repo.ListRecords(ctx, groupUID)
}
