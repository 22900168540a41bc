package deposition

import "time"

// Status is the lifecycle state of a collection record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// CanTransition reports whether moving from s to next is a legal
// lifecycle step. Pending records may fail directly when a scan aborts
// before its first exposure.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusRunning || next == StatusFailed
	case StatusRunning:
		return next == StatusSucceeded || next == StatusFailed
	default:
		return false
	}
}

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// CollectionGroup is one experiment's bookkeeping root.
type CollectionGroup struct {
	GroupUID       string    `json:"group_uid"`
	Visit          string    `json:"visit"`
	SampleID       int64     `json:"sample_id"`
	DetectorID     int64     `json:"detector_id"`
	ExperimentType string    `json:"experiment_type"`
	Comment        string    `json:"comment"`
	CreatedAt      time.Time `json:"created_at"`
}

// CollectionRecord is one sweep within a group. Its RecordUID doubles
// as the collection id quoted to the analysis service.
type CollectionRecord struct {
	RecordUID     string  `json:"record_uid"`
	GroupUID      string  `json:"group_uid"`
	RunNumber     int     `json:"run_number"`
	Status        Status  `json:"status"`
	StatusReason  string  `json:"status_reason,omitempty"`
	OmegaStart    float64 `json:"omega_start"`
	NumImages     int     `json:"num_images"`
	ExposureTimeS float64 `json:"exposure_time_s"`
	FileTemplate  string  `json:"file_template"`
	Directory     string  `json:"directory"`

	// Pre-collection hardware readings. Populated once the
	// beamline-parameters and transmission-flux streams arrive.
	UndulatorGapMM       float64 `json:"undulator_gap_mm"`
	SynchrotronMode      string  `json:"synchrotron_mode"`
	SlitGapHMM           float64 `json:"slit_gap_h_mm"`
	SlitGapVMM           float64 `json:"slit_gap_v_mm"`
	TransmissionFraction float64 `json:"transmission_fraction"`
	FluxPhotons          float64 `json:"flux_photons"`

	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// GroupParams describes the group to create.
type GroupParams struct {
	Visit          string
	SampleID       int64
	DetectorID     int64
	ExperimentType string
}

// SweepParams describes one planned sweep.
type SweepParams struct {
	OmegaStart    float64
	NumImages     int
	ExposureTimeS float64
	FileTemplate  string
	Directory     string
}
