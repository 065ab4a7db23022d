package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/darshan-rambhia/netvault/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTenant = "7b0c7f4e-4a7e-4c55-9f0c-2f3c1b1f0a01"

func newTestStore(t testing.TB) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := New(context.Background(), Options{Driver: "sqlite", DSN: filepath.Join(dir, "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedDevice(t testing.TB, s *Store, tenantID string) model.Device {
	t.Helper()
	d := model.Device{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Hostname: "sw-" + uuid.NewString()[:8],
		MgmtIP:   "10.0.0.1",
		SSHPort:  22,
		Vendor:   "cisco_ios",
		Active:   true,
	}
	err := s.UpsertDevice(context.Background(), DeviceRecord{
		Device: d,
		Secrets: model.DeviceSecrets{
			Username: "backup",
			Password: model.EncryptedValue{Ciphertext: []byte("ct"), IV: []byte("iv")},
		},
	})
	require.NoError(t, err)
	return d
}

func seedPending(t testing.TB, s *Store, d model.Device, startedAt time.Time) int64 {
	t.Helper()
	ctx := context.Background()
	job, err := s.FindOrCreateManualJob(ctx, d.TenantID, d.ID, startedAt)
	require.NoError(t, err)
	id, err := s.CreateExecution(ctx, job, startedAt)
	require.NoError(t, err)
	return id
}

func TestNew(t *testing.T) {
	s := newTestStore(t)
	assert.NotNil(t, s)
	assert.Equal(t, "sqlite", s.Driver())
	assert.NoError(t, s.Ping(context.Background()))
}

func TestNew_InvalidPath(t *testing.T) {
	_, err := New(context.Background(), Options{DSN: "/nonexistent/dir/test.db"})
	assert.Error(t, err)
}

func TestNew_UnknownDriver(t *testing.T) {
	_, err := New(context.Background(), Options{Driver: "oracle", DSN: "x"})
	assert.ErrorContains(t, err, "unknown database driver")
}

func TestNew_WritesToDisk(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := New(context.Background(), Options{DSN: dbPath})
	require.NoError(t, err)
	s.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Migrate(context.Background()))
}

func TestMigrateDown(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.MigrateDown(ctx))
	_, err := s.ListTenants(ctx)
	assert.Error(t, err, "tables should be gone after down migration")

	require.NoError(t, s.Migrate(ctx))
	_, err = s.ListTenants(ctx)
	assert.NoError(t, err)
}

func TestSQLiteDSN(t *testing.T) {
	d := sqliteDialect{}
	dsn := d.dsn("/var/lib/netvault/netvault.db")
	assert.Contains(t, dsn, "file:/var/lib/netvault/netvault.db?")
	assert.Contains(t, dsn, "_txlock=immediate")
	assert.Contains(t, dsn, "busy_timeout(5000)")

	assert.Equal(t, "file:x.db?_txlock=deferred", d.dsn("file:x.db?_txlock=deferred"))
	assert.Contains(t, d.dsn("file:x.db?mode=rwc"), "mode=rwc&_pragma")
}

func TestRebindDollar(t *testing.T) {
	assert.Equal(t, "SELECT 1 WHERE a = $1 AND b = $2", rebindDollar("SELECT 1 WHERE a = ? AND b = ?"))
	assert.Equal(t, "SELECT 1", rebindDollar("SELECT 1"))
}

// ---------------------------------------------------------------------------
// Inventory
// ---------------------------------------------------------------------------

func TestListTenants(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	other := uuid.NewString()
	seedDevice(t, s, testTenant)
	seedDevice(t, s, testTenant)
	seedDevice(t, s, other)

	tenants, err := s.ListTenants(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{testTenant, other}, tenants)
}

func TestListActiveDevices_SkipsInactive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	active := seedDevice(t, s, testTenant)
	inactive := seedDevice(t, s, testTenant)
	inactive.Active = false
	require.NoError(t, s.UpsertDevice(ctx, DeviceRecord{Device: inactive}))

	devices, err := s.ListActiveDevices(ctx, testTenant)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, active.ID, devices[0].ID)
	assert.Equal(t, "cisco_ios", devices[0].Vendor)
	assert.Equal(t, 22, devices[0].SSHPort)
}

func TestGetDevice_TenantScoped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	d := seedDevice(t, s, testTenant)

	got, err := s.GetDevice(ctx, testTenant, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.Hostname, got.Hostname)

	_, err = s.GetDevice(ctx, uuid.NewString(), d.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetMonitoringSecrets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	d := seedDevice(t, s, testTenant)

	m, err := s.GetMonitoringSecrets(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SNMPv2c, m.Version)
	assert.True(t, m.Community.Empty())

	require.NoError(t, s.UpsertDevice(ctx, DeviceRecord{
		Device: d,
		Monitoring: model.MonitoringSecrets{
			Version:      model.SNMPv3,
			Username:     "monitor",
			AuthProtocol: "SHA",
			AuthKey:      model.EncryptedValue{Ciphertext: []byte("a"), IV: []byte("b")},
			PrivProtocol: "AES",
			PrivKey:      model.EncryptedValue{Ciphertext: []byte("c"), IV: []byte("d")},
		},
	}))
	m, err = s.GetMonitoringSecrets(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SNMPv3, m.Version)
	assert.Equal(t, "monitor", m.Username)
	assert.Equal(t, "AES", m.PrivProtocol)
	assert.Equal(t, []byte("c"), m.PrivKey.Ciphertext)
}

// ---------------------------------------------------------------------------
// Error paths: closed DB triggers all error returns
// ---------------------------------------------------------------------------

func closedTestStore(t testing.TB) *Store {
	t.Helper()
	s := newTestStore(t)
	s.Close()
	return s
}

func TestClosedDB(t *testing.T) {
	s := closedTestStore(t)
	ctx := context.Background()
	now := time.Now()

	calls := map[string]func() error{
		"ListTenants": func() error { _, err := s.ListTenants(ctx); return err },
		"GetDevice":   func() error { _, err := s.GetDevice(ctx, testTenant, "x"); return err },
		"ClaimPending": func() error {
			_, err := s.ClaimPending(ctx, 5, now)
			return err
		},
		"ReapStale": func() error { _, err := s.ReapStale(ctx, time.Minute, now); return err },
		"ListAlarms": func() error {
			_, err := s.ListAlarms(ctx, AlarmQuery{TenantID: testTenant, Page: model.Page{Number: 1, Size: 10}})
			return err
		},
		"AcknowledgeAlarm":   func() error { return s.AcknowledgeAlarm(ctx, testTenant, 1) },
		"ResolveMetricLayout": func() error { _, err := s.ResolveMetricLayout(ctx); return err },
		"UpsertInterfaceBitmap": func() error {
			return s.UpsertInterfaceBitmap(ctx, model.InterfaceBitmap{DeviceID: "d", TenantID: "t", Bitmap: "1"})
		},
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			err := call()
			require.Error(t, err)
			assert.NotErrorIs(t, err, ErrNotFound)
		})
	}
}

// ---------------------------------------------------------------------------
// Benchmarks
// ---------------------------------------------------------------------------

func BenchmarkClaimPending(b *testing.B) {
	s := newTestStore(b)
	ctx := context.Background()
	base := time.Now().Add(-time.Minute)

	devices := make([]model.Device, 25)
	for i := range devices {
		devices[i] = seedDevice(b, s, testTenant)
	}

	b.ResetTimer()
	for range b.N {
		b.StopTimer()
		for i, d := range devices {
			seedPending(b, s, d, base.Add(time.Duration(i)*time.Second))
		}
		b.StartTimer()
		if _, err := s.ClaimPending(ctx, 25, time.Now()); err != nil {
			b.Fatal(fmt.Errorf("claim: %w", err))
		}
	}
}
