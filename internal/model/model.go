// Package model defines all shared domain types for netvault.
package model

import "time"

// Device is the inventory view of a managed network device. Devices are
// provisioned by an external inventory service; netvault only reads them.
type Device struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Hostname string `json:"hostname"`
	MgmtIP   string `json:"mgmt_ip"`
	SSHPort  int    `json:"ssh_port"`
	Vendor   string `json:"vendor"`
	Active   bool   `json:"active"`
}

// EncryptedValue is an encrypted secret as stored by the inventory service.
type EncryptedValue struct {
	Ciphertext []byte
	IV         []byte
}

// Empty reports whether no secret has been stored.
func (e EncryptedValue) Empty() bool { return len(e.Ciphertext) == 0 }

// DeviceSecrets holds the encrypted login material for a device.
type DeviceSecrets struct {
	Username string
	Password EncryptedValue
	Secret   EncryptedValue
}

// SNMPVersion identifies the monitoring protocol version.
type SNMPVersion string

const (
	SNMPv2c SNMPVersion = "v2c"
	SNMPv3  SNMPVersion = "v3"
)

// MonitoringSecrets holds the encrypted monitoring configuration of a device.
type MonitoringSecrets struct {
	Version      SNMPVersion
	Community    EncryptedValue
	Username     string
	AuthProtocol string // "MD5", "SHA", "SHA256", ...
	AuthKey      EncryptedValue
	PrivProtocol string // "DES", "AES", "AES256", ...
	PrivKey      EncryptedValue
}

// BackupJob is the single backup job of a device.
type BackupJob struct {
	ID         int64  `json:"id"`
	TenantID   string `json:"tenant_id"`
	DeviceID   string `json:"device_id"`
	Schedule   string `json:"schedule,omitempty"` // cron expression, empty when manual-only
	ManualOnly bool   `json:"manual_only"`
	Enabled    bool   `json:"enabled"`
}

// ExecutionStatus is a state of the backup execution state machine.
type ExecutionStatus string

const (
	ExecutionPending ExecutionStatus = "pending"
	ExecutionRunning ExecutionStatus = "running"
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
	ExecutionSkipped ExecutionStatus = "skipped"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionSuccess, ExecutionFailed, ExecutionSkipped:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s ExecutionStatus) Valid() bool {
	return s == ExecutionPending || s == ExecutionRunning || s.IsTerminal()
}

// BackupExecution is one run of a backup job.
type BackupExecution struct {
	ID           int64           `json:"id"`
	JobID        int64           `json:"job_id"`
	DeviceID     string          `json:"device_id"`
	Status       ExecutionStatus `json:"status"`
	StartedAt    int64           `json:"started_at"`
	CompletedAt  *int64          `json:"completed_at,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	BackupID     *string         `json:"backup_id,omitempty"`
}

// ClaimedExecution is a claimed execution joined with everything a worker
// needs to run it.
type ClaimedExecution struct {
	ExecutionID int64  `json:"executionId"`
	DeviceID    string `json:"deviceId"`
	TenantID    string `json:"tenantId"`
	Hostname    string `json:"hostname"`
	MgmtIP      string `json:"mgmtIp"`
	SSHPort     int    `json:"sshPort"`
	Vendor      string `json:"vendor"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	Secret      string `json:"secret"`
}

// DeviceBackup is the immutable record of a produced backup artifact.
type DeviceBackup struct {
	ID           string  `json:"id"`
	DeviceID     string  `json:"device_id"`
	TenantID     string  `json:"tenant_id"`
	Vendor       string  `json:"vendor"`
	Timestamp    int64   `json:"timestamp"`
	ConfigPath   *string `json:"config_path,omitempty"`
	ConfigSHA256 string  `json:"config_sha256"`
	SizeBytes    int64   `json:"size_bytes"`
	Success      bool    `json:"success"`
	ErrorMessage *string `json:"error_message,omitempty"`
}

// ReportRequest is the completion payload posted by an automation worker.
type ReportRequest struct {
	DeviceID        string    `json:"deviceId"`
	TenantID        string    `json:"tenantId"`
	Vendor          string    `json:"vendor"`
	BackupTimestamp time.Time `json:"backupTimestamp"`
	ConfigPath      *string   `json:"configPath"`
	ConfigSHA256    string    `json:"configSha256"`
	ConfigSizeBytes int64     `json:"configSizeBytes"`
	Success         bool      `json:"success"`
	ErrorMessage    *string   `json:"errorMessage,omitempty"`
	JobID           *int64    `json:"jobId,omitempty"`
	ExecutionID     *int64    `json:"executionId,omitempty"`
}

// AlarmType identifies the condition an alarm reports.
type AlarmType string

const (
	AlarmInterfaceDown      AlarmType = "interface_down"
	AlarmResourceCPUHigh    AlarmType = "resource_cpu_high"
	AlarmResourceMemoryHigh AlarmType = "resource_memory_high"
	AlarmDeviceUnreachable  AlarmType = "device_unreachable"
)

// Severity levels.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alarm is a detected device condition.
type Alarm struct {
	ID           int64             `json:"id"`
	TenantID     string            `json:"tenant_id"`
	DeviceID     string            `json:"device_id"`
	Type         AlarmType         `json:"type"`
	Severity     string            `json:"severity"`
	Message      string            `json:"message"`
	Acknowledged bool              `json:"acknowledged"`
	CreatedAt    int64             `json:"created_at"`
	ResolvedAt   *int64            `json:"resolved_at,omitempty"`
	Meta         map[string]string `json:"meta,omitempty"`
}

// Active reports whether the alarm is neither acknowledged nor resolved.
func (a *Alarm) Active() bool { return !a.Acknowledged && a.ResolvedAt == nil }

// AlarmStatusFilter selects alarms in list queries.
type AlarmStatusFilter string

const (
	AlarmFilterActive       AlarmStatusFilter = "active"
	AlarmFilterAcknowledged AlarmStatusFilter = "acknowledged"
	AlarmFilterAll          AlarmStatusFilter = "all"
)

// Page is a 1-based page request.
type Page struct {
	Number int `json:"page"`
	Size   int `json:"page_size"`
}

// Offset returns the row offset of the page.
func (p Page) Offset() int { return (p.Number - 1) * p.Size }

// AlarmPage is one page of alarms plus the total match count.
type AlarmPage struct {
	Items []Alarm `json:"items"`
	Total int     `json:"total"`
	Page  Page    `json:"page"`
}

// AlarmPreference is a user's saved alarm list filter.
type AlarmPreference struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Severity string `json:"severity,omitempty"`
	Type     string `json:"type,omitempty"`
}

// MetricSample is one health sample of a device. Every signal is optional;
// a poll may recover only a subset.
type MetricSample struct {
	TenantID    string `json:"tenant_id"`
	DeviceID    string `json:"device_id"`
	Timestamp   int64  `json:"ts"`
	UptimeTicks *int64 `json:"uptime_ticks,omitempty"`
	CPUPct      *int   `json:"cpu_pct,omitempty"`
	MemUsedPct  *int   `json:"mem_used_pct,omitempty"`
}

// InterfaceBitmap is the cached oper-status string of a device's interfaces,
// ordered by interface index ('1' up, '0' anything else).
type InterfaceBitmap struct {
	DeviceID  string `json:"device_id"`
	TenantID  string `json:"tenant_id"`
	Bitmap    string `json:"bitmap"`
	UpdatedAt int64  `json:"updated_at"`
}

// Notification represents a structured alert message.
type Notification struct {
	AlertType string            `json:"alert_type"`
	Severity  string            `json:"severity"` // "info", "warning", "critical"
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Instance  string            `json:"instance"` // tenant id
	Subject   string            `json:"subject"`  // device id
	Timestamp time.Time         `json:"timestamp"`
	Resolved  bool              `json:"resolved"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}
