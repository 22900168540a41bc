package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mxbeam/beamline-core/internal/deposition"
	"github.com/mxbeam/beamline-core/internal/gridscan"
)

// HealthResponse reports daemon liveness.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// handleHealth returns daemon liveness. No auth, suitable for probes.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: s.version,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	})
}

// StartScanResponse acknowledges an accepted scan request.
type StartScanResponse struct {
	Status string `json:"status"`
}

// handleStartScan validates and launches a grid scan.
//
// The scan runs asynchronously; poll the status endpoint for progress.
// Returns 409 while a previous scan is still in flight.
func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	var params gridscan.Params
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	// Reject malformed requests synchronously so the client gets the
	// reason, not a 202 followed by a failed status.
	if err := params.Validate(); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if err := s.runner.Start(params); err != nil {
		if errors.Is(err, gridscan.ErrBusy) {
			writeConflict(w, "a scan is already running")
			return
		}
		s.logger.Error("failed to start scan", "error", err)
		writeInternalError(w, "failed to start scan")
		return
	}

	writeJSON(w, http.StatusAccepted, StartScanResponse{Status: "started"})
}

// handleStopScan cancels the in-flight scan, if any. Stopping an idle
// runner is a no-op; the endpoint is idempotent.
func (s *Server) handleStopScan(w http.ResponseWriter, r *http.Request) {
	s.runner.Stop()
	writeJSON(w, http.StatusOK, StartScanResponse{Status: "stopping"})
}

// handleScanStatus returns the runner snapshot.
func (s *Server) handleScanStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.runner.Status())
}

// handleGetGroup returns one collection group.
func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	groupUID := chi.URLParam(r, "groupUID")

	group, err := s.store.Group(r.Context(), groupUID)
	if err != nil {
		if errors.Is(err, deposition.ErrNotFound) {
			writeNotFound(w, "collection group not found")
			return
		}
		s.logger.Error("failed to load collection group", "group_uid", groupUID, "error", err)
		writeInternalError(w, "failed to load collection group")
		return
	}
	writeJSON(w, http.StatusOK, group)
}

// handleListRecords returns a group's collection records.
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	groupUID := chi.URLParam(r, "groupUID")

	// Distinguish an unknown group from a group with no records yet.
	if _, err := s.store.Group(r.Context(), groupUID); err != nil {
		if errors.Is(err, deposition.ErrNotFound) {
			writeNotFound(w, "collection group not found")
			return
		}
		s.logger.Error("failed to load collection group", "group_uid", groupUID, "error", err)
		writeInternalError(w, "failed to load collection group")
		return
	}

	records, err := s.store.Records(r.Context(), groupUID)
	if err != nil {
		s.logger.Error("failed to list collection records", "group_uid", groupUID, "error", err)
		writeInternalError(w, "failed to list collection records")
		return
	}
	writeJSON(w, http.StatusOK, records)
}
