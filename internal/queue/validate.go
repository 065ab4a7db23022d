package queue

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/darshan-rambhia/netvault/internal/model"
	"github.com/google/uuid"
)

// ValidateReport rejects malformed report payloads before they touch the
// queue.
func ValidateReport(r model.ReportRequest) error {
	var problems []string
	if _, err := uuid.Parse(r.TenantID); err != nil {
		problems = append(problems, "tenantId must be a uuid")
	}
	if _, err := uuid.Parse(r.DeviceID); err != nil {
		problems = append(problems, "deviceId must be a uuid")
	}
	if strings.TrimSpace(r.Vendor) == "" {
		problems = append(problems, "vendor is required")
	}
	if r.BackupTimestamp.IsZero() {
		problems = append(problems, "backupTimestamp is required")
	}
	if r.Success && !isSHA256(r.ConfigSHA256) {
		problems = append(problems, "configSha256 must be 64 hex characters")
	}
	if r.ConfigSizeBytes < 0 {
		problems = append(problems, "configSizeBytes must not be negative")
	}
	switch {
	case r.ExecutionID == nil && r.JobID == nil:
		problems = append(problems, "executionId or jobId is required")
	case r.ExecutionID != nil && *r.ExecutionID <= 0:
		problems = append(problems, "executionId must be positive")
	case r.ExecutionID == nil && *r.JobID <= 0:
		problems = append(problems, "jobId must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

func isSHA256(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
