// Package queue is the backup execution work queue consumed by automation
// workers. Claim exclusivity is delegated to the store's row locks.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/darshan-rambhia/netvault/internal/auth"
	"github.com/darshan-rambhia/netvault/internal/credentials"
	"github.com/darshan-rambhia/netvault/internal/metrics"
	"github.com/darshan-rambhia/netvault/internal/model"
	"github.com/darshan-rambhia/netvault/internal/store"
	"github.com/google/uuid"
)

// Claim and history limits.
const (
	MaxClaimBatch         = 25
	DefaultHistoryLimit   = 20
	MaxHistoryLimit       = 100
	DefaultStaleThreshold = store.DefaultStaleThreshold
)

var (
	// ErrInvalidTransition is returned for status changes the state machine
	// does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrValidation is returned for malformed requests.
	ErrValidation = errors.New("validation failed")
)

// Service implements the queue operations.
type Service struct {
	store   *store.Store
	secrets *credentials.Provider
	batch   int
	now     func() time.Time
}

// NewService creates a queue service. batch caps claims below MaxClaimBatch;
// zero means MaxClaimBatch.
func NewService(s *store.Store, secrets *credentials.Provider, batch int) *Service {
	if batch <= 0 || batch > MaxClaimBatch {
		batch = MaxClaimBatch
	}
	return &Service{store: s, secrets: secrets, batch: batch, now: time.Now}
}

// Claim moves up to limit pending executions to running, at most one per
// device, and returns them with decrypted credentials. A store failure
// yields an empty batch; the worker retries on its next poll.
func (s *Service) Claim(ctx context.Context, limit int) []model.ClaimedExecution {
	if limit <= 0 || limit > s.batch {
		limit = s.batch
	}

	rows, err := s.store.ClaimPending(ctx, limit, s.now())
	if err != nil {
		metrics.RecordClaimFailure()
		slog.Warn("claim failed, returning empty batch", "error", err)
		return []model.ClaimedExecution{}
	}

	out := make([]model.ClaimedExecution, 0, len(rows))
	for _, r := range rows {
		conn := s.secrets.Reveal(r.Device.ID, r.Secrets)
		out = append(out, model.ClaimedExecution{
			ExecutionID: r.ExecutionID,
			DeviceID:    r.Device.ID,
			TenantID:    r.Device.TenantID,
			Hostname:    r.Device.Hostname,
			MgmtIP:      r.Device.MgmtIP,
			SSHPort:     r.Device.SSHPort,
			Vendor:      r.Device.Vendor,
			Username:    conn.Username,
			Password:    conn.Password,
			Secret:      conn.Secret,
		})
	}
	metrics.RecordClaim(len(out))
	if len(out) > 0 {
		slog.Info("executions claimed", "count", len(out))
	}
	return out
}

// PatchStatus applies a worker status update. "running" acknowledges an
// execution that is already running; "skipped" moves it to skipped. Any
// other target is a validation error.
func (s *Service) PatchStatus(ctx context.Context, id int64, status model.ExecutionStatus) error {
	switch status {
	case model.ExecutionRunning:
		e, err := s.store.GetExecution(ctx, id)
		if err != nil {
			return err
		}
		if e.Status != model.ExecutionRunning {
			return fmt.Errorf("%w: execution %d is %s", ErrInvalidTransition, id, e.Status)
		}
		return nil
	case model.ExecutionSkipped:
		err := s.store.SkipExecution(ctx, id, s.now())
		if errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("%w: execution %d is not running", ErrInvalidTransition, id)
		}
		if err != nil {
			return err
		}
		slog.Info("execution skipped", "execution", id)
		return nil
	}
	return fmt.Errorf("%w: status must be running or skipped, got %q", ErrValidation, status)
}

// Report records a completed backup. The artifact record is written first,
// then the execution named by ExecutionID is completed, or a terminal
// execution is inserted for JobID. It returns the artifact id.
func (s *Service) Report(ctx context.Context, req model.ReportRequest) (string, error) {
	if err := ValidateReport(req); err != nil {
		return "", err
	}

	completion := store.Completion{
		ExecutionID: req.ExecutionID,
		JobID:       req.JobID,
		Status:      model.ExecutionFailed,
		StartedAt:   req.BackupTimestamp,
		Error:       req.ErrorMessage,
	}
	if req.Success {
		completion.Status = model.ExecutionSuccess
	}

	if err := s.checkOwnership(ctx, req); err != nil {
		return "", err
	}
	if req.ExecutionID != nil {
		// Job id is only the fallback reference.
		completion.JobID = nil
	}

	backup := model.DeviceBackup{
		ID:           uuid.NewString(),
		DeviceID:     req.DeviceID,
		TenantID:     req.TenantID,
		Vendor:       req.Vendor,
		Timestamp:    req.BackupTimestamp.Unix(),
		ConfigPath:   req.ConfigPath,
		ConfigSHA256: req.ConfigSHA256,
		SizeBytes:    req.ConfigSizeBytes,
		Success:      req.Success,
		ErrorMessage: req.ErrorMessage,
	}
	execID, err := s.store.RecordReport(ctx, backup, completion, s.now())
	if errors.Is(err, store.ErrConflict) {
		return "", fmt.Errorf("%w: execution %d was skipped", ErrInvalidTransition, *req.ExecutionID)
	}
	if err != nil {
		return "", err
	}

	metrics.RecordReport(string(completion.Status))
	slog.Info("backup reported",
		"device", req.DeviceID,
		"execution", execID,
		"backup", backup.ID,
		"success", req.Success,
	)
	return backup.ID, nil
}

// checkOwnership verifies the referenced execution or job targets the
// reported device in the reported tenant.
func (s *Service) checkOwnership(ctx context.Context, req model.ReportRequest) error {
	if req.ExecutionID != nil {
		e, err := s.store.GetExecution(ctx, *req.ExecutionID)
		if err != nil {
			return err
		}
		if e.DeviceID != req.DeviceID {
			return fmt.Errorf("%w: execution %d does not belong to device %s", ErrValidation, e.ID, req.DeviceID)
		}
		job, err := s.store.GetJob(ctx, e.JobID)
		if err != nil {
			return err
		}
		if job.TenantID != req.TenantID {
			return fmt.Errorf("%w: execution %d does not belong to tenant %s", ErrValidation, e.ID, req.TenantID)
		}
		return nil
	}

	job, err := s.store.GetJob(ctx, *req.JobID)
	if err != nil {
		return err
	}
	if job.DeviceID != req.DeviceID || job.TenantID != req.TenantID {
		return fmt.Errorf("%w: job %d does not belong to device %s", ErrValidation, job.ID, req.DeviceID)
	}
	return nil
}

// CleanupStale fails pending and running executions older than threshold.
// A non-positive threshold means DefaultStaleThreshold.
func (s *Service) CleanupStale(ctx context.Context, threshold time.Duration) (store.ReapResult, error) {
	if threshold <= 0 {
		threshold = DefaultStaleThreshold
	}
	res, err := s.store.ReapStale(ctx, threshold, s.now())
	if err != nil {
		return res, err
	}
	metrics.RecordReaped(res.Pending, res.Running)
	if res.Total() > 0 {
		slog.Warn("stale executions failed", "pending", res.Pending, "running", res.Running, "threshold", threshold)
	}
	return res, nil
}

// TriggerManual queues a pending execution for a device in the caller's
// tenant, creating its manual-only job on first use.
func (s *Service) TriggerManual(ctx context.Context, p auth.Principal, deviceID string) (int64, error) {
	if err := p.RequireElevated(); err != nil {
		return 0, err
	}
	if _, err := uuid.Parse(deviceID); err != nil {
		return 0, fmt.Errorf("%w: deviceId must be a uuid", ErrValidation)
	}
	if _, err := s.store.GetDevice(ctx, p.TenantID, deviceID); err != nil {
		return 0, err
	}

	now := s.now()
	job, err := s.store.FindOrCreateManualJob(ctx, p.TenantID, deviceID, now)
	if err != nil {
		return 0, err
	}
	id, err := s.store.CreateExecution(ctx, job, now)
	if err != nil {
		return 0, err
	}
	slog.Info("manual backup triggered", "tenant", p.TenantID, "device", deviceID, "execution", id, "user", p.UserID)
	return id, nil
}

// ListExecutions returns a device's most recent executions, newest first.
func (s *Service) ListExecutions(ctx context.Context, tenantID, deviceID string, limit int) ([]model.BackupExecution, error) {
	if _, err := s.store.GetDevice(ctx, tenantID, deviceID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	limit = min(limit, MaxHistoryLimit)
	execs, err := s.store.ListExecutions(ctx, deviceID, limit)
	if err != nil {
		return nil, err
	}
	if execs == nil {
		execs = []model.BackupExecution{}
	}
	return execs, nil
}
