package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/darshan-rambhia/netvault/internal/model"
	"github.com/darshan-rambhia/netvault/internal/queue"
)

type claimResponse struct {
	Items []model.ClaimedExecution `json:"items"`
}

type statusRequest struct {
	Status model.ExecutionStatus `json:"status"`
}

type reportResponse struct {
	ID string `json:"id"`
}

type cleanupRequest struct {
	ThresholdSeconds *int64 `json:"thresholdSeconds"`
}

type triggerRequest struct {
	DeviceID string `json:"deviceId"`
}

type triggerResponse struct {
	ExecutionID int64 `json:"executionId"`
}

type executionsResponse struct {
	Items []model.BackupExecution `json:"items"`
}

// @Summary Claim pending executions
// @Description Moves up to limit pending executions to running, one per device, and returns them with decrypted credentials
// @Tags automation
// @Produce json
// @Security WorkerToken
// @Param limit query int false "maximum executions to claim (capped at 25)"
// @Success 200 {object} claimResponse
// @Failure 400 {object} errorBody
// @Failure 401 {object} errorBody
// @Router /api/v1/automation/executions/claim [get]
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, claimResponse{Items: s.queue.Claim(r.Context(), limit)})
}

// @Summary Update execution status
// @Description Acknowledges a running execution ("running") or marks it skipped ("skipped")
// @Tags automation
// @Accept json
// @Security WorkerToken
// @Param id path int true "execution id"
// @Param body body statusRequest true "target status"
// @Success 204
// @Failure 400 {object} errorBody
// @Failure 404 {object} errorBody
// @Failure 409 {object} errorBody
// @Router /api/v1/automation/executions/{id}/status [patch]
func (s *Server) handlePatchStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req statusRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if err := s.queue.PatchStatus(r.Context(), id, req.Status); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// @Summary Report a backup result
// @Description Records the backup artifact and completes the referenced execution, or records a terminal execution for the job
// @Tags automation
// @Accept json
// @Produce json
// @Security WorkerToken
// @Param body body model.ReportRequest true "backup result"
// @Success 201 {object} reportResponse
// @Failure 400 {object} errorBody
// @Failure 404 {object} errorBody
// @Failure 409 {object} errorBody
// @Router /api/v1/automation/backups/report [post]
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	var req model.ReportRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	id, err := s.queue.Report(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, reportResponse{ID: id})
}

// @Summary Fail stale executions
// @Description Fails pending and running executions older than thresholdSeconds (default 600)
// @Tags automation
// @Accept json
// @Security WorkerToken
// @Param body body cleanupRequest false "threshold"
// @Success 204
// @Failure 400 {object} errorBody
// @Router /api/v1/automation/executions/cleanup-stale [post]
func (s *Server) handleCleanupStale(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}
	threshold := queue.DefaultStaleThreshold
	if req.ThresholdSeconds != nil {
		if *req.ThresholdSeconds <= 0 {
			writeError(w, r, http.StatusBadRequest, codeValidation, "thresholdSeconds must be positive")
			return
		}
		threshold = time.Duration(*req.ThresholdSeconds) * time.Second
	}
	if _, err := s.queue.CleanupStale(r.Context(), threshold); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// @Summary Trigger a manual backup
// @Description Queues a pending execution for a device in the caller's tenant; requires the admin or operator role
// @Tags backups
// @Accept json
// @Produce json
// @Security UserToken
// @Param body body triggerRequest true "device"
// @Success 201 {object} triggerResponse
// @Failure 400 {object} errorBody
// @Failure 403 {object} errorBody
// @Failure 404 {object} errorBody
// @Router /api/v1/backups/trigger [post]
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	id, err := s.queue.TriggerManual(r.Context(), principal(r), req.DeviceID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, triggerResponse{ExecutionID: id})
}

// @Summary Device execution history
// @Description Returns a device's most recent backup executions, newest first
// @Tags backups
// @Produce json
// @Security UserToken
// @Param id path string true "device id"
// @Param limit query int false "maximum executions (default 20, max 100)"
// @Success 200 {object} executionsResponse
// @Failure 404 {object} errorBody
// @Router /api/v1/devices/{id}/executions [get]
func (s *Server) handleDeviceExecutions(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	execs, err := s.queue.ListExecutions(r.Context(), principal(r).TenantID, r.PathValue("id"), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, executionsResponse{Items: execs})
}

// @Summary Device interface status
// @Description Returns the cached interface oper-status bitmap of a device ('1' up, '0' otherwise, by interface index)
// @Tags devices
// @Produce json
// @Security UserToken
// @Param id path string true "device id"
// @Success 200 {object} model.InterfaceBitmap
// @Failure 404 {object} errorBody
// @Router /api/v1/devices/{id}/interfaces [get]
func (s *Server) handleDeviceInterfaces(w http.ResponseWriter, r *http.Request) {
	tenantID := principal(r).TenantID
	deviceID := r.PathValue("id")
	if _, err := s.store.GetDevice(r.Context(), tenantID, deviceID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	b, err := s.store.GetInterfaceBitmap(r.Context(), tenantID, deviceID)
	if err != nil {
		writeServiceError(w, r, fmt.Errorf("interface status of %s: %w", deviceID, err))
		return
	}
	writeJSON(w, r, http.StatusOK, b)
}
