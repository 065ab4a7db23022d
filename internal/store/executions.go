package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/darshan-rambhia/netvault/internal/model"
)

// ClaimedRow is an execution transitioned to running by ClaimPending, joined
// with the device it targets.
type ClaimedRow struct {
	ExecutionID int64
	Device      model.Device
	Secrets     model.DeviceSecrets
}

// FindOrCreateManualJob returns the backup job of a device, creating a
// manual-only job when none exists.
func (s *Store) FindOrCreateManualJob(ctx context.Context, tenantID, deviceID string, now time.Time) (*model.BackupJob, error) {
	_, err := s.exec(ctx, s.db, `
		INSERT INTO backup_jobs (tenant_id, device_id, schedule, manual_only, enabled, created_at)
		VALUES (?, ?, NULL, ?, ?, ?)
		ON CONFLICT(device_id) DO NOTHING`,
		tenantID, deviceID, true, true, now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating manual job for %s: %w", deviceID, err)
	}
	return s.jobByDevice(ctx, tenantID, deviceID)
}

func (s *Store) jobByDevice(ctx context.Context, tenantID, deviceID string) (*model.BackupJob, error) {
	var (
		j        model.BackupJob
		schedule sql.NullString
	)
	err := s.queryRow(ctx, s.db, `
		SELECT id, tenant_id, device_id, schedule, manual_only, enabled
		FROM backup_jobs WHERE device_id = ? AND tenant_id = ?`,
		deviceID, tenantID).Scan(&j.ID, &j.TenantID, &j.DeviceID, &schedule, &j.ManualOnly, &j.Enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting job for device %s: %w", deviceID, err)
	}
	j.Schedule = schedule.String
	return &j, nil
}

// GetJob returns a backup job by id, or ErrNotFound.
func (s *Store) GetJob(ctx context.Context, id int64) (*model.BackupJob, error) {
	var (
		j        model.BackupJob
		schedule sql.NullString
	)
	err := s.queryRow(ctx, s.db, `
		SELECT id, tenant_id, device_id, schedule, manual_only, enabled
		FROM backup_jobs WHERE id = ?`, id).
		Scan(&j.ID, &j.TenantID, &j.DeviceID, &schedule, &j.ManualOnly, &j.Enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting job %d: %w", id, err)
	}
	j.Schedule = schedule.String
	return &j, nil
}

// CreateExecution inserts a pending execution for a job.
func (s *Store) CreateExecution(ctx context.Context, job *model.BackupJob, startedAt time.Time) (int64, error) {
	var id int64
	err := s.queryRow(ctx, s.db, `
		INSERT INTO backup_executions (job_id, device_id, status, started_at)
		VALUES (?, ?, ?, ?)
		RETURNING id`,
		job.ID, job.DeviceID, string(model.ExecutionPending), startedAt.Unix(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("creating execution for job %d: %w", job.ID, err)
	}
	return id, nil
}

const executionColumns = `id, job_id, device_id, status, started_at, completed_at, error_message, backup_id`

func scanExecution(row interface{ Scan(...any) error }) (*model.BackupExecution, error) {
	var (
		e           model.BackupExecution
		status      string
		completedAt sql.NullInt64
		errMsg      sql.NullString
		backupID    sql.NullString
	)
	if err := row.Scan(&e.ID, &e.JobID, &e.DeviceID, &status, &e.StartedAt, &completedAt, &errMsg, &backupID); err != nil {
		return nil, err
	}
	e.Status = model.ExecutionStatus(status)
	e.CompletedAt = int64Ptr(completedAt)
	e.ErrorMessage = stringPtr(errMsg)
	e.BackupID = stringPtr(backupID)
	return &e, nil
}

// GetExecution returns an execution by id, or ErrNotFound.
func (s *Store) GetExecution(ctx context.Context, id int64) (*model.BackupExecution, error) {
	e, err := scanExecution(s.queryRow(ctx, s.db,
		`SELECT `+executionColumns+` FROM backup_executions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting execution %d: %w", id, err)
	}
	return e, nil
}

// ListExecutions returns the most recent executions of a device, newest first.
func (s *Store) ListExecutions(ctx context.Context, deviceID string, limit int) ([]model.BackupExecution, error) {
	rows, err := s.query(ctx, s.db, `
		SELECT `+executionColumns+` FROM backup_executions
		WHERE device_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?`, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing executions for %s: %w", deviceID, err)
	}
	defer rows.Close()

	var out []model.BackupExecution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning execution: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// ClaimPending atomically moves up to limit pending executions to running and
// returns them. At most one execution per device is selected, the one with
// the earliest started_at (ties broken by id). Selection and transition
// happen in one transaction; the dialect's lock guarantees that concurrent
// claimers receive disjoint rows. started_at is reset to now so the running
// clock starts at claim time.
func (s *Store) ClaimPending(ctx context.Context, limit int, now time.Time) ([]ClaimedRow, error) {
	var claimed []ClaimedRow
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := s.query(ctx, tx, `
			SELECT e.id, d.id, d.tenant_id, d.hostname, d.mgmt_ip, d.ssh_port, d.vendor, d.active,
				d.username, d.password_enc, d.password_iv, d.secret_enc, d.secret_iv
			FROM backup_executions e
			JOIN devices d ON d.id = e.device_id
			WHERE e.status = ?
			  AND NOT EXISTS (
				SELECT 1 FROM backup_executions p
				WHERE p.device_id = e.device_id
				  AND p.status = ?
				  AND (p.started_at < e.started_at OR (p.started_at = e.started_at AND p.id < e.id))
			  )
			ORDER BY e.started_at, e.id
			LIMIT ?`+s.dialect.claimLock(),
			string(model.ExecutionPending), string(model.ExecutionPending), limit,
		)
		if err != nil {
			return fmt.Errorf("selecting pending executions: %w", err)
		}

		seen := make(map[string]bool)
		var candidates []ClaimedRow
		for rows.Next() {
			var c ClaimedRow
			if err := rows.Scan(&c.ExecutionID, &c.Device.ID, &c.Device.TenantID, &c.Device.Hostname,
				&c.Device.MgmtIP, &c.Device.SSHPort, &c.Device.Vendor, &c.Device.Active,
				&c.Secrets.Username, &c.Secrets.Password.Ciphertext, &c.Secrets.Password.IV,
				&c.Secrets.Secret.Ciphertext, &c.Secrets.Secret.IV); err != nil {
				rows.Close()
				return fmt.Errorf("scanning pending execution: %w", err)
			}
			if seen[c.Device.ID] {
				continue
			}
			seen[c.Device.ID] = true
			candidates = append(candidates, c)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterating pending executions: %w", err)
		}

		for _, c := range candidates {
			res, err := s.exec(ctx, tx, `
				UPDATE backup_executions SET status = ?, started_at = ?
				WHERE id = ? AND status = ?`,
				string(model.ExecutionRunning), now.Unix(), c.ExecutionID, string(model.ExecutionPending),
			)
			if err != nil {
				return fmt.Errorf("claiming execution %d: %w", c.ExecutionID, err)
			}
			if n, err := res.RowsAffected(); err != nil {
				return fmt.Errorf("claiming execution %d: %w", c.ExecutionID, err)
			} else if n == 1 {
				claimed = append(claimed, c)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// SkipExecution moves a running execution to skipped. It returns ErrNotFound
// for unknown ids and ErrConflict when the execution is not running.
func (s *Store) SkipExecution(ctx context.Context, id int64, now time.Time) error {
	res, err := s.exec(ctx, s.db, `
		UPDATE backup_executions SET status = ?, completed_at = ?
		WHERE id = ? AND status = ?`,
		string(model.ExecutionSkipped), now.Unix(), id, string(model.ExecutionRunning),
	)
	if err != nil {
		return fmt.Errorf("skipping execution %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("skipping execution %d: %w", id, err)
	}
	if n == 1 {
		return nil
	}
	if _, err := s.GetExecution(ctx, id); err != nil {
		return err
	}
	return ErrConflict
}

// Completion describes how a report closes out an execution.
type Completion struct {
	ExecutionID *int64 // update this execution in place
	JobID       *int64 // or insert a terminal execution for this job
	Status      model.ExecutionStatus
	StartedAt   time.Time
	Error       *string
}

// RecordReport creates the artifact record and closes the execution in one
// transaction. It returns the id of the execution that was written.
// Reports for skipped executions are rejected with ErrConflict.
func (s *Store) RecordReport(ctx context.Context, b model.DeviceBackup, c Completion, now time.Time) (int64, error) {
	var executionID int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := s.exec(ctx, tx, `
			INSERT INTO device_backups (id, device_id, tenant_id, vendor, backup_ts, config_path,
				config_sha256, size_bytes, success, error_message, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			b.ID, b.DeviceID, b.TenantID, b.Vendor, b.Timestamp, nullString(b.ConfigPath),
			b.ConfigSHA256, b.SizeBytes, b.Success, nullString(b.ErrorMessage), now.Unix(),
		)
		if err != nil {
			return fmt.Errorf("inserting device backup: %w", err)
		}

		switch {
		case c.ExecutionID != nil:
			res, err := s.exec(ctx, tx, `
				UPDATE backup_executions
				SET status = ?, completed_at = ?, error_message = ?, backup_id = ?
				WHERE id = ? AND status <> ?`,
				string(c.Status), now.Unix(), nullString(c.Error), b.ID,
				*c.ExecutionID, string(model.ExecutionSkipped),
			)
			if err != nil {
				return fmt.Errorf("completing execution %d: %w", *c.ExecutionID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("completing execution %d: %w", *c.ExecutionID, err)
			}
			if n == 0 {
				return ErrConflict
			}
			executionID = *c.ExecutionID
		case c.JobID != nil:
			err := s.queryRow(ctx, tx, `
				INSERT INTO backup_executions (job_id, device_id, status, started_at, completed_at, error_message, backup_id)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				RETURNING id`,
				*c.JobID, b.DeviceID, string(c.Status), c.StartedAt.Unix(), now.Unix(), nullString(c.Error), b.ID,
			).Scan(&executionID)
			if err != nil {
				return fmt.Errorf("inserting terminal execution for job %d: %w", *c.JobID, err)
			}
		default:
			return errors.New("report needs an execution id or a job id")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return executionID, nil
}

// GetDeviceBackup returns an artifact record by id, or ErrNotFound.
func (s *Store) GetDeviceBackup(ctx context.Context, id string) (*model.DeviceBackup, error) {
	var (
		b          model.DeviceBackup
		configPath sql.NullString
		errMsg     sql.NullString
	)
	err := s.queryRow(ctx, s.db, `
		SELECT id, device_id, tenant_id, vendor, backup_ts, config_path, config_sha256,
			size_bytes, success, error_message
		FROM device_backups WHERE id = ?`, id).Scan(
		&b.ID, &b.DeviceID, &b.TenantID, &b.Vendor, &b.Timestamp, &configPath,
		&b.ConfigSHA256, &b.SizeBytes, &b.Success, &errMsg,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting device backup %s: %w", id, err)
	}
	b.ConfigPath = stringPtr(configPath)
	b.ErrorMessage = stringPtr(errMsg)
	return &b, nil
}

// ReapResult counts executions failed by a stale sweep.
type ReapResult struct {
	Pending int64
	Running int64
}

// Total returns the number of executions reaped.
func (r ReapResult) Total() int64 { return r.Pending + r.Running }

// ReapStale fails every pending or running execution whose started_at is
// older than threshold. Only rows already past the cutoff are touched.
func (s *Store) ReapStale(ctx context.Context, threshold time.Duration, now time.Time) (ReapResult, error) {
	var result ReapResult
	cutoff := now.Add(-threshold).Unix()
	secs := int64(threshold.Seconds())

	for _, st := range []struct {
		status  model.ExecutionStatus
		message string
		count   *int64
	}{
		{model.ExecutionPending, fmt.Sprintf("execution stayed pending for more than %ds without being claimed", secs), &result.Pending},
		{model.ExecutionRunning, fmt.Sprintf("execution was running for more than %ds without a report", secs), &result.Running},
	} {
		res, err := s.exec(ctx, s.db, `
			UPDATE backup_executions
			SET status = ?, completed_at = ?, error_message = ?
			WHERE status = ? AND started_at < ?`,
			string(model.ExecutionFailed), now.Unix(), st.message, string(st.status), cutoff,
		)
		if err != nil {
			return result, fmt.Errorf("reaping %s executions: %w", st.status, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return result, fmt.Errorf("reaping %s executions: %w", st.status, err)
		}
		*st.count = n
	}
	return result, nil
}
