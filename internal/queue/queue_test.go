package queue

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/darshan-rambhia/netvault/internal/auth"
	"github.com/darshan-rambhia/netvault/internal/credentials"
	"github.com/darshan-rambhia/netvault/internal/model"
	"github.com/darshan-rambhia/netvault/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMasterKey = "queue-test-master-key"

var testNow = time.Unix(1_700_000_000, 0)

type fixture struct {
	store  *store.Store
	dec    *credentials.AESDecrypter
	svc    *Service
	tenant string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.New(context.Background(), store.Options{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	dec, err := credentials.NewAESDecrypter(testMasterKey)
	require.NoError(t, err)

	svc := NewService(s, credentials.NewProvider(s, dec), 0)
	svc.now = func() time.Time { return testNow }
	return &fixture{store: s, dec: dec, svc: svc, tenant: uuid.NewString()}
}

func (f *fixture) device(t *testing.T, password string) model.Device {
	t.Helper()
	enc, err := f.dec.Encrypt([]byte(password))
	require.NoError(t, err)
	d := model.Device{
		ID:       uuid.NewString(),
		TenantID: f.tenant,
		Hostname: "edge-" + uuid.NewString()[:6],
		MgmtIP:   "10.1.0.1",
		SSHPort:  2222,
		Vendor:   "juniper_junos",
		Active:   true,
	}
	require.NoError(t, f.store.UpsertDevice(context.Background(), store.DeviceRecord{
		Device:  d,
		Secrets: model.DeviceSecrets{Username: "netops", Password: enc},
	}))
	return d
}

func (f *fixture) pending(t *testing.T, d model.Device, startedAt time.Time) (int64, *model.BackupJob) {
	t.Helper()
	ctx := context.Background()
	job, err := f.store.FindOrCreateManualJob(ctx, d.TenantID, d.ID, startedAt)
	require.NoError(t, err)
	id, err := f.store.CreateExecution(ctx, job, startedAt)
	require.NoError(t, err)
	return id, job
}

func (f *fixture) status(t *testing.T, id int64) model.ExecutionStatus {
	t.Helper()
	e, err := f.store.GetExecution(context.Background(), id)
	require.NoError(t, err)
	return e.Status
}

func ptr[T any](v T) *T { return &v }

func validReport(d model.Device) model.ReportRequest {
	return model.ReportRequest{
		DeviceID:        d.ID,
		TenantID:        d.TenantID,
		Vendor:          d.Vendor,
		BackupTimestamp: testNow.Add(-time.Minute),
		ConfigPath:      ptr("backups/" + d.ID + "/running.cfg"),
		ConfigSHA256:    "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		ConfigSizeBytes: 2048,
		Success:         true,
	}
}

// ---------------------------------------------------------------------------
// Claim
// ---------------------------------------------------------------------------

func TestClaim_OnePerDeviceWithCredentials(t *testing.T) {
	f := newFixture(t)
	devices := map[string]model.Device{}
	for i := range 10 {
		d := f.device(t, "pw-"+strconv.Itoa(i))
		devices[d.ID] = d
		for j := range 3 {
			f.pending(t, d, testNow.Add(-time.Duration(60-j)*time.Second))
		}
	}

	got := f.svc.Claim(context.Background(), 50)
	require.Len(t, got, 10)
	seen := map[string]bool{}
	for _, c := range got {
		assert.False(t, seen[c.DeviceID], "device %s claimed twice", c.DeviceID)
		seen[c.DeviceID] = true
		d := devices[c.DeviceID]
		assert.Equal(t, f.tenant, c.TenantID)
		assert.Equal(t, d.Hostname, c.Hostname)
		assert.Equal(t, 2222, c.SSHPort)
		assert.Equal(t, "netops", c.Username)
		assert.Contains(t, c.Password, "pw-")
		assert.Empty(t, c.Secret)
		assert.Equal(t, model.ExecutionRunning, f.status(t, c.ExecutionID))
	}
}

func TestClaim_BatchCapped(t *testing.T) {
	f := newFixture(t)
	for range 30 {
		f.pending(t, f.device(t, "pw"), testNow.Add(-time.Minute))
	}
	assert.Len(t, f.svc.Claim(context.Background(), 1000), MaxClaimBatch)
	assert.Len(t, f.svc.Claim(context.Background(), 0), 5)
	assert.Empty(t, f.svc.Claim(context.Background(), 10))
}

func TestClaim_ConfiguredBatch(t *testing.T) {
	f := newFixture(t)
	f.svc.batch = 2
	for range 5 {
		f.pending(t, f.device(t, "pw"), testNow.Add(-time.Minute))
	}
	assert.Len(t, f.svc.Claim(context.Background(), 10), 2)
}

func TestClaim_UndecryptableSecretFallsBack(t *testing.T) {
	f := newFixture(t)
	d := model.Device{ID: uuid.NewString(), TenantID: f.tenant, Hostname: "h", MgmtIP: "10.0.0.9", SSHPort: 22, Vendor: "arista_eos", Active: true}
	require.NoError(t, f.store.UpsertDevice(context.Background(), store.DeviceRecord{
		Device: d,
		Secrets: model.DeviceSecrets{
			Username: "netops",
			Password: model.EncryptedValue{Ciphertext: []byte("garbage-ciphertext"), IV: make([]byte, 12)},
		},
	}))
	f.pending(t, d, testNow.Add(-time.Minute))

	got := f.svc.Claim(context.Background(), 1)
	require.Len(t, got, 1)
	assert.Equal(t, "netops", got[0].Username)
	assert.Empty(t, got[0].Password)
}

func TestClaim_StoreFailureReturnsEmpty(t *testing.T) {
	f := newFixture(t)
	f.pending(t, f.device(t, "pw"), testNow.Add(-time.Minute))
	require.NoError(t, f.store.Close())

	got := f.svc.Claim(context.Background(), 5)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

// ---------------------------------------------------------------------------
// PatchStatus
// ---------------------------------------------------------------------------

func TestPatchStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.device(t, "pw")
	id, _ := f.pending(t, d, testNow.Add(-time.Minute))

	assert.ErrorIs(t, f.svc.PatchStatus(ctx, id, model.ExecutionRunning), ErrInvalidTransition, "pending is not running yet")
	assert.ErrorIs(t, f.svc.PatchStatus(ctx, id, model.ExecutionSkipped), ErrInvalidTransition)

	require.Len(t, f.svc.Claim(ctx, 1), 1)
	assert.NoError(t, f.svc.PatchStatus(ctx, id, model.ExecutionRunning))
	assert.Equal(t, model.ExecutionRunning, f.status(t, id))

	assert.NoError(t, f.svc.PatchStatus(ctx, id, model.ExecutionSkipped))
	assert.Equal(t, model.ExecutionSkipped, f.status(t, id))

	assert.ErrorIs(t, f.svc.PatchStatus(ctx, id, model.ExecutionSkipped), ErrInvalidTransition, "skipped is terminal")
	assert.ErrorIs(t, f.svc.PatchStatus(ctx, id, model.ExecutionSuccess), ErrValidation)
	assert.ErrorIs(t, f.svc.PatchStatus(ctx, id, "done"), ErrValidation)
	assert.ErrorIs(t, f.svc.PatchStatus(ctx, id+999, model.ExecutionSkipped), store.ErrNotFound)
	assert.ErrorIs(t, f.svc.PatchStatus(ctx, id+999, model.ExecutionRunning), store.ErrNotFound)
}

// ---------------------------------------------------------------------------
// Report
// ---------------------------------------------------------------------------

func TestReport_ByExecutionID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.device(t, "pw")
	id, _ := f.pending(t, d, testNow.Add(-time.Minute))
	require.Len(t, f.svc.Claim(ctx, 1), 1)

	req := validReport(d)
	req.ExecutionID = &id
	backupID, err := f.svc.Report(ctx, req)
	require.NoError(t, err)
	_, err = uuid.Parse(backupID)
	assert.NoError(t, err)

	e, err := f.store.GetExecution(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionSuccess, e.Status)
	require.NotNil(t, e.BackupID)
	assert.Equal(t, backupID, *e.BackupID)
	require.NotNil(t, e.CompletedAt)
	assert.Equal(t, testNow.Unix(), *e.CompletedAt)

	b, err := f.store.GetDeviceBackup(ctx, backupID)
	require.NoError(t, err)
	assert.Equal(t, int64(2048), b.SizeBytes)
	assert.Equal(t, req.BackupTimestamp.Unix(), b.Timestamp)
	assert.True(t, b.Success)
}

func TestReport_FailureByJobID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.device(t, "pw")
	job, err := f.store.FindOrCreateManualJob(ctx, d.TenantID, d.ID, testNow)
	require.NoError(t, err)

	req := validReport(d)
	req.Success = false
	req.ConfigSHA256 = ""
	req.ConfigPath = nil
	req.ErrorMessage = ptr("ssh: handshake failed")
	req.JobID = &job.ID

	_, err = f.svc.Report(ctx, req)
	require.NoError(t, err)

	execs, err := f.svc.ListExecutions(ctx, d.TenantID, d.ID, 0)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, model.ExecutionFailed, execs[0].Status)
	require.NotNil(t, execs[0].ErrorMessage)
	assert.Equal(t, "ssh: handshake failed", *execs[0].ErrorMessage)
	assert.Equal(t, req.BackupTimestamp.Unix(), execs[0].StartedAt)
}

func TestReport_SkippedExecutionRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.device(t, "pw")
	id, _ := f.pending(t, d, testNow.Add(-time.Minute))
	require.Len(t, f.svc.Claim(ctx, 1), 1)
	require.NoError(t, f.svc.PatchStatus(ctx, id, model.ExecutionSkipped))

	req := validReport(d)
	req.ExecutionID = &id
	_, err := f.svc.Report(ctx, req)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, model.ExecutionSkipped, f.status(t, id))
}

func TestReport_Ownership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.device(t, "pw")
	other := f.device(t, "pw")
	id, job := f.pending(t, d, testNow.Add(-time.Minute))

	req := validReport(other)
	req.ExecutionID = &id
	_, err := f.svc.Report(ctx, req)
	assert.ErrorIs(t, err, ErrValidation)

	req = validReport(other)
	req.JobID = &job.ID
	_, err = f.svc.Report(ctx, req)
	assert.ErrorIs(t, err, ErrValidation)

	req = validReport(d)
	req.TenantID = uuid.NewString()
	req.ExecutionID = &id
	_, err = f.svc.Report(ctx, req)
	assert.ErrorIs(t, err, ErrValidation)

	req = validReport(d)
	req.ExecutionID = ptr(id + 500)
	_, err = f.svc.Report(ctx, req)
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.Equal(t, model.ExecutionPending, f.status(t, id))
}

func TestReport_Invalid(t *testing.T) {
	f := newFixture(t)
	req := validReport(f.device(t, "pw"))
	_, err := f.svc.Report(context.Background(), req)
	assert.ErrorIs(t, err, ErrValidation, "neither executionId nor jobId")
}

// ---------------------------------------------------------------------------
// CleanupStale
// ---------------------------------------------------------------------------

func TestCleanupStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old, _ := f.pending(t, f.device(t, "pw"), testNow.Add(-700*time.Second))
	fresh, _ := f.pending(t, f.device(t, "pw"), testNow.Add(-500*time.Second))

	res, err := f.svc.CleanupStale(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Pending)
	assert.Zero(t, res.Running)
	assert.Equal(t, model.ExecutionFailed, f.status(t, old))
	assert.Equal(t, model.ExecutionPending, f.status(t, fresh))

	res, err = f.svc.CleanupStale(ctx, 400*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Total())
}

// ---------------------------------------------------------------------------
// TriggerManual / ListExecutions
// ---------------------------------------------------------------------------

func TestTriggerManual(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.device(t, "pw")
	admin := auth.Principal{UserID: "u1", TenantID: f.tenant, Role: auth.RoleAdmin}

	_, err := f.svc.TriggerManual(ctx, auth.Principal{UserID: "u2", TenantID: f.tenant, Role: auth.RoleViewer}, d.ID)
	assert.ErrorIs(t, err, auth.ErrForbidden)

	_, err = f.svc.TriggerManual(ctx, auth.Principal{UserID: "u3", TenantID: uuid.NewString(), Role: auth.RoleAdmin}, d.ID)
	assert.ErrorIs(t, err, store.ErrNotFound, "devices of other tenants are invisible")

	_, err = f.svc.TriggerManual(ctx, admin, "not-a-uuid")
	assert.ErrorIs(t, err, ErrValidation)

	first, err := f.svc.TriggerManual(ctx, admin, d.ID)
	require.NoError(t, err)
	second, err := f.svc.TriggerManual(ctx, admin, d.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	e1, err := f.store.GetExecution(ctx, first)
	require.NoError(t, err)
	e2, err := f.store.GetExecution(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionPending, e1.Status)
	assert.Equal(t, e1.JobID, e2.JobID, "the manual job is reused")

	job, err := f.store.GetJob(ctx, e1.JobID)
	require.NoError(t, err)
	assert.True(t, job.ManualOnly)
	assert.Equal(t, f.tenant, job.TenantID)
}

func TestListExecutions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.device(t, "pw")
	for i := range 5 {
		f.pending(t, d, testNow.Add(time.Duration(i)*time.Second))
	}

	execs, err := f.svc.ListExecutions(ctx, f.tenant, d.ID, 3)
	require.NoError(t, err)
	require.Len(t, execs, 3)
	assert.Greater(t, execs[0].StartedAt, execs[1].StartedAt)

	_, err = f.svc.ListExecutions(ctx, uuid.NewString(), d.ID, 3)
	assert.ErrorIs(t, err, store.ErrNotFound)

	empty := f.device(t, "pw")
	execs, err = f.svc.ListExecutions(ctx, f.tenant, empty.ID, 0)
	require.NoError(t, err)
	assert.NotNil(t, execs)
	assert.Empty(t, execs)
}
