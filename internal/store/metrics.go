package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/darshan-rambhia/netvault/internal/model"
)

// Metric table layouts.
const (
	LayoutCurrent = "current"
	LayoutLegacy  = "legacy"
)

// MetricWriter reads and writes health samples in one physical layout of
// the device_metrics table.
type MetricWriter interface {
	Layout() string
	InsertSample(ctx context.Context, m model.MetricSample) error
	// RecentSamples returns at most n samples of a device, newest first.
	RecentSamples(ctx context.Context, tenantID, deviceID string, n int) ([]model.MetricSample, error)
}

// ResolveMetricLayout probes the device_metrics columns once and returns the
// matching writer. A table carrying collected_at or uptime_seconds is a
// pre-migration deployment and gets the legacy translation.
func (s *Store) ResolveMetricLayout(ctx context.Context) (MetricWriter, error) {
	cols, err := s.tableColumns(ctx, "device_metrics")
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, errors.New("device_metrics table not found; run migrations first")
	}
	if cols["collected_at"] || cols["uptime_seconds"] {
		slog.Info("metric layout resolved", "layout", LayoutLegacy)
		return legacyLayout{s: s}, nil
	}
	slog.Info("metric layout resolved", "layout", LayoutCurrent)
	return currentLayout{s: s}, nil
}

func (s *Store) tableColumns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := s.query(ctx, s.db, s.dialect.columnsQuery(), table)
	if err != nil {
		return nil, fmt.Errorf("probing %s columns: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning column name: %w", err)
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

type currentLayout struct{ s *Store }

func (currentLayout) Layout() string { return LayoutCurrent }

func (l currentLayout) InsertSample(ctx context.Context, m model.MetricSample) error {
	_, err := l.s.exec(ctx, l.s.db, `
		INSERT INTO device_metrics (tenant_id, device_id, ts, uptime_ticks, cpu_pct, mem_used_pct)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.TenantID, m.DeviceID, m.Timestamp, nullInt64(m.UptimeTicks), nullInt(m.CPUPct), nullInt(m.MemUsedPct),
	)
	if err != nil {
		return fmt.Errorf("inserting metric sample for %s: %w", m.DeviceID, err)
	}
	return nil
}

func (l currentLayout) RecentSamples(ctx context.Context, tenantID, deviceID string, n int) ([]model.MetricSample, error) {
	rows, err := l.s.query(ctx, l.s.db, `
		SELECT ts, uptime_ticks, cpu_pct, mem_used_pct FROM device_metrics
		WHERE tenant_id = ? AND device_id = ?
		ORDER BY ts DESC, id DESC
		LIMIT ?`, tenantID, deviceID, n)
	if err != nil {
		return nil, fmt.Errorf("querying samples for %s: %w", deviceID, err)
	}
	defer rows.Close()

	var out []model.MetricSample
	for rows.Next() {
		var (
			m        = model.MetricSample{TenantID: tenantID, DeviceID: deviceID}
			uptime   sql.NullInt64
			cpu, mem sql.NullInt64
		)
		if err := rows.Scan(&m.Timestamp, &uptime, &cpu, &mem); err != nil {
			return nil, fmt.Errorf("scanning sample: %w", err)
		}
		m.UptimeTicks = int64Ptr(uptime)
		m.CPUPct = intPtr(cpu)
		m.MemUsedPct = intPtr(mem)
		out = append(out, m)
	}
	return out, rows.Err()
}

// legacyLayout stores uptime in seconds and names columns after the first
// schema generation.
type legacyLayout struct{ s *Store }

func (legacyLayout) Layout() string { return LayoutLegacy }

func (l legacyLayout) InsertSample(ctx context.Context, m model.MetricSample) error {
	var uptime sql.NullInt64
	if m.UptimeTicks != nil {
		uptime = sql.NullInt64{Int64: *m.UptimeTicks / 100, Valid: true}
	}
	_, err := l.s.exec(ctx, l.s.db, `
		INSERT INTO device_metrics (tenant_id, device_id, collected_at, uptime_seconds, cpu_load, memory_usage)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.TenantID, m.DeviceID, m.Timestamp, uptime, nullInt(m.CPUPct), nullInt(m.MemUsedPct),
	)
	if err != nil {
		return fmt.Errorf("inserting legacy metric sample for %s: %w", m.DeviceID, err)
	}
	return nil
}

func (l legacyLayout) RecentSamples(ctx context.Context, tenantID, deviceID string, n int) ([]model.MetricSample, error) {
	rows, err := l.s.query(ctx, l.s.db, `
		SELECT collected_at, uptime_seconds, cpu_load, memory_usage FROM device_metrics
		WHERE tenant_id = ? AND device_id = ?
		ORDER BY collected_at DESC
		LIMIT ?`, tenantID, deviceID, n)
	if err != nil {
		return nil, fmt.Errorf("querying legacy samples for %s: %w", deviceID, err)
	}
	defer rows.Close()

	var out []model.MetricSample
	for rows.Next() {
		var (
			m        = model.MetricSample{TenantID: tenantID, DeviceID: deviceID}
			uptime   sql.NullInt64
			cpu, mem sql.NullInt64
		)
		if err := rows.Scan(&m.Timestamp, &uptime, &cpu, &mem); err != nil {
			return nil, fmt.Errorf("scanning legacy sample: %w", err)
		}
		if uptime.Valid {
			ticks := uptime.Int64 * 100
			m.UptimeTicks = &ticks
		}
		m.CPUPct = intPtr(cpu)
		m.MemUsedPct = intPtr(mem)
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpsertInterfaceBitmap overwrites the cached interface bitmap of a device.
func (s *Store) UpsertInterfaceBitmap(ctx context.Context, b model.InterfaceBitmap) error {
	_, err := s.exec(ctx, s.db, `
		INSERT INTO device_interface_status (device_id, tenant_id, bitmap, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			bitmap = excluded.bitmap,
			updated_at = excluded.updated_at`,
		b.DeviceID, b.TenantID, b.Bitmap, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting interface bitmap for %s: %w", b.DeviceID, err)
	}
	return nil
}

// GetInterfaceBitmap returns the cached bitmap of a device in a tenant, or
// ErrNotFound.
func (s *Store) GetInterfaceBitmap(ctx context.Context, tenantID, deviceID string) (*model.InterfaceBitmap, error) {
	b := model.InterfaceBitmap{DeviceID: deviceID, TenantID: tenantID}
	err := s.queryRow(ctx, s.db, `
		SELECT bitmap, updated_at FROM device_interface_status
		WHERE device_id = ? AND tenant_id = ?`, deviceID, tenantID).Scan(&b.Bitmap, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting interface bitmap for %s: %w", deviceID, err)
	}
	return &b, nil
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func intPtr(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}
